package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/agrisense-backend/internal/domain"
	"github.com/tbourn/agrisense-backend/internal/repo"
	"github.com/tbourn/agrisense-backend/internal/utils"
)

// Admin listing bounds.
const (
	DefaultFarmerPageSize = 12
	MaxFarmerPageSize     = 100
	marketPriceListLimit  = 200
)

// AdminService backs the admin dashboard.
type AdminService struct {
	DB *gorm.DB
}

// FarmerPage is one page of the admin farmer listing.
type FarmerPage struct {
	Items      []domain.Farmer `json:"items"`
	Pagination utils.Page      `json:"pagination"`
}

// ListFarmers returns farmers matching f with their devices and readings.
func (s *AdminService) ListFarmers(ctx context.Context, f repo.FarmerFilter, page, limit int) (*FarmerPage, error) {
	ctx, span := otel.Tracer("services/AdminService").Start(ctx, "ListFarmers",
		trace.WithAttributes(attribute.Int("page", page), attribute.Int("limit", limit)))
	defer span.End()

	p := utils.NewPage(page, limit, DefaultFarmerPageSize, MaxFarmerPageSize)
	total, err := repo.CountFarmers(ctx, s.DB, f)
	if err != nil {
		return nil, err
	}
	items := []domain.Farmer{}
	if total > 0 {
		if items, err = repo.ListFarmersPage(ctx, s.DB, f, p.Offset(), p.Limit); err != nil {
			return nil, err
		}
	}
	return &FarmerPage{Items: items, Pagination: p.WithTotal(total)}, nil
}

// MarketPriceInput is a new price observation.
type MarketPriceInput struct {
	CropName   string
	MarketName string
	PricePerKg float64
	Unit       string
	RecordedAt time.Time
}

// ListMarketPrices returns the newest price observations.
func (s *AdminService) ListMarketPrices(ctx context.Context) ([]domain.MarketPrice, error) {
	return repo.ListLatestMarketPrices(ctx, s.DB, marketPriceListLimit)
}

// CreateMarketPrice records one price observation.
func (s *AdminService) CreateMarketPrice(ctx context.Context, in MarketPriceInput) (*domain.MarketPrice, error) {
	in.CropName = strings.TrimSpace(in.CropName)
	in.MarketName = strings.TrimSpace(in.MarketName)
	if in.CropName == "" || in.MarketName == "" || in.PricePerKg <= 0 {
		return nil, ErrInvalidInput
	}
	if in.Unit == "" {
		in.Unit = "BDT/kg"
	}
	p := &domain.MarketPrice{
		CropName:   in.CropName,
		MarketName: in.MarketName,
		PricePerKg: in.PricePerKg,
		Unit:       in.Unit,
		RecordedAt: in.RecordedAt.UTC(),
	}
	if err := repo.CreateMarketPrice(ctx, s.DB, p); err != nil {
		return nil, fmt.Errorf("create market price: %w", err)
	}
	return p, nil
}
