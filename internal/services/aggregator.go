package services

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/agrisense-backend/internal/domain"
	"github.com/tbourn/agrisense-backend/internal/repo"
)

// WeatherSource resolves current conditions for a farm. Implementations
// return defaults rather than failing.
type WeatherSource interface {
	CurrentOrDefault(ctx context.Context, lat, lon float64) domain.WeatherInfo
}

// Aggregator assembles the FarmContext every analysis path consumes.
type Aggregator struct {
	DB      *gorm.DB
	Weather WeatherSource
}

// Build loads farmer, active device, its snapshot and weather, in that order,
// failing with the matching not-found error at the first missing piece.
func (a *Aggregator) Build(ctx context.Context, farmerID string) (*domain.FarmContext, error) {
	ctx, span := otel.Tracer("services/Aggregator").Start(ctx, "Build",
		trace.WithAttributes(attribute.String("user.id", farmerID)))
	defer span.End()

	f, err := a.farmer(ctx, farmerID)
	if err != nil {
		return nil, err
	}
	dev, err := repo.GetActiveDevice(ctx, a.DB, f.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNoActiveDevice
		}
		return nil, fmt.Errorf("load device: %w", err)
	}
	snap, err := repo.GetSnapshot(ctx, a.DB, dev.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNoSensorData
		}
		return nil, fmt.Errorf("load sensor data: %w", err)
	}
	fc := a.assemble(ctx, f, dev, snap)
	return &fc, nil
}

// BuildLenient is Build for chat and voice: only a missing farmer is an
// error; without a device or snapshot the sensors are zero valued and
// Device.ID is empty.
func (a *Aggregator) BuildLenient(ctx context.Context, farmerID string) (*domain.FarmContext, error) {
	f, err := a.farmer(ctx, farmerID)
	if err != nil {
		return nil, err
	}
	fc := a.lenient(ctx, f)
	return &fc, nil
}

// BuildLenientFor is BuildLenient for an already loaded farmer.
func (a *Aggregator) BuildLenientFor(ctx context.Context, f *domain.Farmer) domain.FarmContext {
	return a.lenient(ctx, f)
}

func (a *Aggregator) lenient(ctx context.Context, f *domain.Farmer) domain.FarmContext {
	var (
		dev  *domain.Device
		snap *domain.SensorSnapshot
	)
	if d, err := repo.GetActiveDevice(ctx, a.DB, f.ID); err == nil {
		dev = d
		if s, err := repo.GetSnapshot(ctx, a.DB, d.ID); err == nil {
			snap = s
		}
	}
	return a.assemble(ctx, f, dev, snap)
}

func (a *Aggregator) farmer(ctx context.Context, id string) (*domain.Farmer, error) {
	f, err := repo.GetFarmer(ctx, a.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrFarmerNotFound
		}
		return nil, fmt.Errorf("load farmer: %w", err)
	}
	return f, nil
}

// assemble tolerates nil dev/snap. Device.ID stays empty unless a snapshot
// exists, which is how downstream code tells live sensors from zeros.
func (a *Aggregator) assemble(ctx context.Context, f *domain.Farmer, dev *domain.Device, snap *domain.SensorSnapshot) domain.FarmContext {
	fc := domain.FarmContext{
		Farmer: domain.FarmerInfo{
			ID:       f.ID,
			Name:     f.FullName,
			Mobile:   f.MobileNumber,
			Location: f.Location(),
			LandSize: f.LandSizeAcres,
			Coordinates: domain.Coordinates{
				Latitude:  f.Latitude,
				Longitude: f.Longitude,
			},
		},
		Crop: domain.CropInfo{Type: f.CropName},
	}
	if fc.Crop.Type == "" {
		fc.Crop.Type = "Unknown"
	}
	if dev != nil && snap != nil {
		fc.Sensors = domain.SensorsFromSnapshot(*snap)
		fc.Device = domain.DeviceInfo{ID: dev.ID}
	}
	if a.Weather != nil {
		fc.Weather = a.Weather.CurrentOrDefault(ctx, f.Latitude, f.Longitude)
	} else {
		fc.Weather = domain.DefaultWeather()
	}
	return fc
}
