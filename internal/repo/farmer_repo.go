// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for farmers and
// districts.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a record is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/agrisense-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// FarmerFilter narrows the admin farmer listing. Empty fields are ignored;
// text filters are case-insensitive substring matches.
type FarmerFilter struct {
	Name       string
	Mobile     string
	DistrictID string
	District   string
	Crop       string
}

// CreateFarmer inserts a farmer, assigning a UUID when ID is empty.
func CreateFarmer(ctx context.Context, db *gorm.DB, f *domain.Farmer) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Role == "" {
		f.Role = domain.RoleFarmer
	}
	return db.WithContext(ctx).Create(f).Error
}

// CreateDistrict inserts a district, assigning a UUID when ID is empty.
func CreateDistrict(ctx context.Context, db *gorm.DB, d *domain.District) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return db.WithContext(ctx).Create(d).Error
}

// GetFarmer fetches a farmer by ID with the district preloaded.
func GetFarmer(ctx context.Context, db *gorm.DB, id string) (*domain.Farmer, error) {
	var f domain.Farmer
	err := db.WithContext(ctx).
		Preload("District").
		Where("id = ?", id).
		First(&f).Error
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// GetFarmerByMobile resolves a farmer by any of the stored spellings of a
// Bangladeshi number (01XXXXXXXXX, 8801XXXXXXXXX, +8801XXXXXXXXX).
func GetFarmerByMobile(ctx context.Context, db *gorm.DB, variants []string) (*domain.Farmer, error) {
	if len(variants) == 0 {
		return nil, ErrNotFound
	}
	var f domain.Farmer
	err := db.WithContext(ctx).
		Preload("District").
		Where("mobile_number IN ?", variants).
		Order("created_at asc").
		First(&f).Error
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFarmersWithDevices returns every farmer-role user owning at least one
// device, oldest first. This is the daily sweep population.
func ListFarmersWithDevices(ctx context.Context, db *gorm.DB) ([]domain.Farmer, error) {
	var out []domain.Farmer
	err := db.WithContext(ctx).
		Preload("District").
		Where("role = ?", domain.RoleFarmer).
		Where("EXISTS (SELECT 1 FROM devices d WHERE d.user_id = users.id)").
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

func farmerQuery(ctx context.Context, db *gorm.DB, f FarmerFilter) *gorm.DB {
	q := db.WithContext(ctx).Model(&domain.Farmer{}).Where("users.role = ?", domain.RoleFarmer)
	if s := strings.TrimSpace(f.Name); s != "" {
		q = q.Where("LOWER(users.full_name) LIKE ?", "%"+strings.ToLower(s)+"%")
	}
	if s := strings.TrimSpace(f.Mobile); s != "" {
		q = q.Where("users.mobile_number LIKE ?", "%"+s+"%")
	}
	if s := strings.TrimSpace(f.DistrictID); s != "" {
		q = q.Where("users.district_id = ?", s)
	}
	if s := strings.TrimSpace(f.District); s != "" {
		q = q.Where("users.district_id IN (SELECT id FROM districts WHERE LOWER(name) LIKE ?)", "%"+strings.ToLower(s)+"%")
	}
	if s := strings.TrimSpace(f.Crop); s != "" {
		q = q.Where("LOWER(users.crop_name) LIKE ?", "%"+strings.ToLower(s)+"%")
	}
	return q
}

// CountFarmers returns the number of farmers matching f.
func CountFarmers(ctx context.Context, db *gorm.DB, f FarmerFilter) (int64, error) {
	var total int64
	err := farmerQuery(ctx, db, f).Count(&total).Error
	return total, err
}

// ListFarmersPage returns a page of farmers matching f, newest first, with
// district, devices and each device's snapshot preloaded.
func ListFarmersPage(ctx context.Context, db *gorm.DB, f FarmerFilter, offset, limit int) ([]domain.Farmer, error) {
	var out []domain.Farmer
	err := farmerQuery(ctx, db, f).
		Preload("District").
		Preload("Devices", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at asc") }).
		Preload("Devices.Snapshot").
		Order("users.created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
