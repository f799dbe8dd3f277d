// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the weather cache and market price
// queries.
package repo

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/agrisense-backend/internal/domain"
)

// CoordKey renders a coordinate rounded to 4 decimals, the cache key format.
func CoordKey(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// GetFreshWeather returns the newest cache row of type typ for the rounded
// coordinates created after since, or ErrNotFound.
func GetFreshWeather(ctx context.Context, db *gorm.DB, typ string, lat, lon float64, since time.Time) (*domain.WeatherCache, error) {
	var w domain.WeatherCache
	err := db.WithContext(ctx).
		Where("type = ? AND latitude = ? AND longitude = ? AND created_at > ?", typ, CoordKey(lat), CoordKey(lon), since).
		Order("created_at desc").
		First(&w).Error
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// CreateWeather stores a fresh upstream payload under rounded coordinates.
func CreateWeather(ctx context.Context, db *gorm.DB, typ string, lat, lon float64, data string, at time.Time) (*domain.WeatherCache, error) {
	w := &domain.WeatherCache{
		ID:        uuid.NewString(),
		Type:      typ,
		Latitude:  CoordKey(lat),
		Longitude: CoordKey(lon),
		Data:      data,
		CreatedAt: at.UTC(),
	}
	if err := db.WithContext(ctx).Create(w).Error; err != nil {
		return nil, err
	}
	return w, nil
}

// CreateMarketPrice inserts a price observation.
func CreateMarketPrice(ctx context.Context, db *gorm.DB, p *domain.MarketPrice) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.RecordedAt.IsZero() {
		p.RecordedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(p).Error
}

// ListLatestMarketPrices returns up to limit observations, newest first.
func ListLatestMarketPrices(ctx context.Context, db *gorm.DB, limit int) ([]domain.MarketPrice, error) {
	var out []domain.MarketPrice
	err := db.WithContext(ctx).
		Order("recorded_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}
