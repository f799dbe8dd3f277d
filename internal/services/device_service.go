package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/agrisense-backend/internal/domain"
	"github.com/tbourn/agrisense-backend/internal/repo"
)

const defaultDeviceType = "soil_sensor"

// DeviceService manages probe registration and sensor ingestion.
type DeviceService struct {
	DB *gorm.DB

	// Rand draws the synthesized fields of a reading; nil uses the global
	// source.
	Rand *rand.Rand
	Now  func() time.Time
}

func (s *DeviceService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *DeviceService) between(lo, hi float64) float64 {
	var f float64
	if s.Rand != nil {
		f = s.Rand.Float64()
	} else {
		f = rand.Float64()
	}
	// two decimals, as readings are reported
	return math.Round((lo+f*(hi-lo))*100) / 100
}

// IngestReading stores moisture for the device owning apiKey. The probes
// only measure moisture; the other channels are filled from their usual
// field ranges until the hardware reports them.
func (s *DeviceService) IngestReading(ctx context.Context, apiKey string, moisture *float64) (*domain.SensorSnapshot, error) {
	ctx, span := otel.Tracer("services/DeviceService").Start(ctx, "IngestReading")
	defer span.End()

	if moisture == nil || *moisture < 0 || *moisture > 100 {
		return nil, ErrInvalidReading
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrDeviceNotFound
	}
	dev, err := repo.GetDeviceByAPIKey(ctx, s.DB, apiKey)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("device.id", dev.ID))

	snap := &domain.SensorSnapshot{
		DeviceID:         dev.ID,
		MoistureLevel:    *moisture,
		PHLevel:          s.between(6, 8.5),
		Temperature:      s.between(18, 35),
		Humidity:         s.between(40, 90),
		LightIntensity:   s.between(100, 1000),
		SoilConductivity: s.between(100, 500),
		NitrogenLevel:    s.between(20, 80),
		PhosphorusLevel:  s.between(10, 50),
		PotassiumLevel:   s.between(20, 70),
		LastUpdated:      s.now(),
	}
	if err := repo.UpsertSnapshot(ctx, s.DB, snap); err != nil {
		return nil, fmt.Errorf("store reading: %w", err)
	}
	return snap, nil
}

// List returns the caller's devices with their current readings.
func (s *DeviceService) List(ctx context.Context, userID string) ([]domain.Device, error) {
	ctx, span := otel.Tracer("services/DeviceService").Start(ctx, "List",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()
	return repo.ListDevices(ctx, s.DB, userID)
}

// Link registers a device for userID and returns it with its generated API
// key. The key is only ever shown here.
func (s *DeviceService) Link(ctx context.Context, userID, name, deviceType string) (*domain.Device, string, error) {
	ctx, span := otel.Tracer("services/DeviceService").Start(ctx, "Link",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "", ErrInvalidInput
	}
	deviceType = strings.TrimSpace(deviceType)
	if deviceType == "" {
		deviceType = defaultDeviceType
	}
	key := "ak_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	d := &domain.Device{
		UserID:     userID,
		DeviceName: name,
		DeviceType: deviceType,
		APIKey:     key,
		IsActive:   true,
	}
	if err := repo.CreateDevice(ctx, s.DB, d); err != nil {
		return nil, "", fmt.Errorf("create device: %w", err)
	}
	return d, key, nil
}

// Unlink removes one of userID's devices with its snapshot.
func (s *DeviceService) Unlink(ctx context.Context, userID, deviceID string) error {
	ctx, span := otel.Tracer("services/DeviceService").Start(ctx, "Unlink",
		trace.WithAttributes(attribute.String("user.id", userID), attribute.String("device.id", deviceID)))
	defer span.End()

	if err := repo.DeleteDevice(ctx, s.DB, deviceID, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrDeviceNotFound
		}
		return err
	}
	return nil
}

// SensorData returns the current reading of one of userID's devices.
func (s *DeviceService) SensorData(ctx context.Context, userID, deviceID string) (*domain.SensorSnapshot, error) {
	ctx, span := otel.Tracer("services/DeviceService").Start(ctx, "SensorData",
		trace.WithAttributes(attribute.String("user.id", userID), attribute.String("device.id", deviceID)))
	defer span.End()

	if _, err := repo.GetDevice(ctx, s.DB, deviceID, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}
	snap, err := repo.GetSnapshot(ctx, s.DB, deviceID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNoSensorData
		}
		return nil, err
	}
	return snap, nil
}
