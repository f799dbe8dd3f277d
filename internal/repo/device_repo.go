// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for devices and
// their current sensor snapshot.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/agrisense-backend/internal/domain"
)

// CreateDevice inserts a device, assigning a UUID when ID is empty.
func CreateDevice(ctx context.Context, db *gorm.DB, d *domain.Device) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return db.WithContext(ctx).Create(d).Error
}

// GetActiveDevice returns the oldest active device owned by userID, or
// ErrNotFound when the farmer has none.
func GetActiveDevice(ctx context.Context, db *gorm.DB, userID string) (*domain.Device, error) {
	var d domain.Device
	err := db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("created_at asc").
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDevice fetches a device by ID and owner.
func GetDevice(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Device, error) {
	var d domain.Device
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDeviceByAPIKey resolves the active device that owns apiKey.
func GetDeviceByAPIKey(ctx context.Context, db *gorm.DB, apiKey string) (*domain.Device, error) {
	var d domain.Device
	err := db.WithContext(ctx).
		Where("api_key = ? AND is_active = ?", apiKey, true).
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDevices returns every device owned by userID with its snapshot.
func ListDevices(ctx context.Context, db *gorm.DB, userID string) ([]domain.Device, error) {
	var out []domain.Device
	err := db.WithContext(ctx).
		Preload("Snapshot").
		Where("user_id = ?", userID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// DeleteDevice removes a device and its snapshot. Returns ErrNotFound when
// no device with id belongs to userID.
func DeleteDevice(ctx context.Context, db *gorm.DB, id, userID string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&domain.Device{}).Where("id = ? AND user_id = ?", id, userID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		// Snapshot first: current_sensor_data.device_id references devices.id.
		if err := tx.Where("device_id = ?", id).Delete(&domain.SensorSnapshot{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ? AND user_id = ?", id, userID).Delete(&domain.Device{}).Error
	})
}

// UpsertSnapshot writes the current reading for s.DeviceID, replacing any
// previous one through the unique device_id key. On return s.ID is the id of
// the stored row, which on the update path is the original row's.
func UpsertSnapshot(ctx context.Context, db *gorm.DB, s *domain.SensorSnapshot) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.LastUpdated.IsZero() {
		s.LastUpdated = time.Now().UTC()
	}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"moisture_level", "ph_level", "temperature", "humidity",
			"light_intensity", "soil_conductivity",
			"nitrogen_level", "phosphorus_level", "potassium_level",
			"last_updated",
		}),
	}).Create(s).Error
	if err != nil {
		return err
	}
	var ids []string
	if err := db.WithContext(ctx).Model(&domain.SensorSnapshot{}).
		Where("device_id = ?", s.DeviceID).Limit(1).Pluck("id", &ids).Error; err != nil {
		return err
	}
	if len(ids) == 1 {
		s.ID = ids[0]
	}
	return nil
}

// GetSnapshot returns the current reading for deviceID.
func GetSnapshot(ctx context.Context, db *gorm.DB, deviceID string) (*domain.SensorSnapshot, error) {
	var s domain.SensorSnapshot
	err := db.WithContext(ctx).Where("device_id = ?", deviceID).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CriticalMoistureRow is one active device whose current moisture is below
// the sweep threshold, joined with its owner's contact details.
type CriticalMoistureRow struct {
	DeviceID      string
	UserID        string
	FullName      string
	MobileNumber  string
	MoistureLevel float64
	LastUpdated   time.Time
}

// ListCriticalMoisture returns active devices with moisture < threshold.
func ListCriticalMoisture(ctx context.Context, db *gorm.DB, threshold float64) ([]CriticalMoistureRow, error) {
	var out []CriticalMoistureRow
	err := db.WithContext(ctx).
		Table("current_sensor_data AS s").
		Select("s.device_id, d.user_id, u.full_name, u.mobile_number, s.moisture_level, s.last_updated").
		Joins("JOIN devices d ON d.id = s.device_id").
		Joins("JOIN users u ON u.id = d.user_id").
		Where("d.is_active = ? AND s.moisture_level < ?", true, threshold).
		Order("s.moisture_level asc").
		Scan(&out).Error
	return out, err
}
