// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for farm alerts
// and the daily analysis log.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/agrisense-backend/internal/domain"
)

// CreateAlert inserts a FarmAlert with a fresh UUID and UTC timestamps.
func CreateAlert(ctx context.Context, db *gorm.DB, a *domain.FarmAlert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	return db.WithContext(ctx).Create(a).Error
}

// SMSOutcome is the result of one SMS attempt as stored on an alert.
type SMSOutcome struct {
	Sent     bool
	SentAt   *time.Time
	Response map[string]any
}

// UpdateAlertSMS records the SMS outcome on alert id.
func UpdateAlertSMS(ctx context.Context, db *gorm.DB, id string, o SMSOutcome) error {
	res := db.WithContext(ctx).
		Model(&domain.FarmAlert{ID: id}).
		Select("is_sms_sent", "sms_sent_at", "sms_response", "updated_at").
		Updates(&domain.FarmAlert{
			IsSMSSent:   o.Sent,
			SMSSentAt:   o.SentAt,
			SMSResponse: o.Response,
			UpdatedAt:   time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// VoiceOutcome is the result of one voice-call attempt as stored on an alert.
type VoiceOutcome struct {
	Initiated bool
	CallID    string
	Status    string
	Response  map[string]any
}

// UpdateAlertVoice records the voice-call outcome on alert id.
func UpdateAlertVoice(ctx context.Context, db *gorm.DB, id string, o VoiceOutcome) error {
	res := db.WithContext(ctx).
		Model(&domain.FarmAlert{ID: id}).
		Select("voice_call_initiated", "voice_call_id", "voice_call_status", "voice_call_response", "updated_at").
		Updates(&domain.FarmAlert{
			VoiceCallInitiated: o.Initiated,
			VoiceCallID:        o.CallID,
			VoiceCallStatus:    o.Status,
			VoiceCallResponse:  o.Response,
			UpdatedAt:          time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetAlert fetches an alert by ID.
func GetAlert(ctx context.Context, db *gorm.DB, id string) (*domain.FarmAlert, error) {
	var a domain.FarmAlert
	if err := db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// CountAlerts returns the number of alerts raised for userID.
func CountAlerts(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.FarmAlert{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListAlertsPage returns a page of userID's alerts, newest first.
func ListAlertsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.FarmAlert, error) {
	var out []domain.FarmAlert
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// MarkAlertRead flags alert id as read. Returns ErrNotFound when the alert
// does not exist or belongs to someone else.
func MarkAlertRead(ctx context.Context, db *gorm.DB, id, userID string) error {
	res := db.WithContext(ctx).
		Model(&domain.FarmAlert{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]any{"is_read": true, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateAnalysis inserts a FarmAnalysis log row.
func CreateAnalysis(ctx context.Context, db *gorm.DB, a *domain.FarmAnalysis) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(a).Error
}

// GetAnalysis fetches an analysis log row by ID and owner.
func GetAnalysis(ctx context.Context, db *gorm.DB, id, userID string) (*domain.FarmAnalysis, error) {
	var a domain.FarmAnalysis
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}
