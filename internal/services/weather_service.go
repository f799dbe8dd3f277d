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

// FarmWeather is the weather at one farmer's coordinates.
type FarmWeather struct {
	Location    string               `json:"location"`
	Coordinates domain.Coordinates   `json:"coordinates"`
	Current     *domain.WeatherInfo  `json:"current,omitempty"`
	Forecast    []domain.ForecastDay `json:"forecast,omitempty"`
}

// WeatherService serves cached weather for the caller's farm. Unlike the
// aggregator it reports upstream failures instead of substituting defaults.
type WeatherService struct {
	DB      *gorm.DB
	Weather ForecastSource
}

// Current returns current conditions at userID's farm.
func (s *WeatherService) Current(ctx context.Context, userID string) (*FarmWeather, error) {
	ctx, span := otel.Tracer("services/WeatherService").Start(ctx, "Current",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	out, f, err := s.farm(ctx, userID)
	if err != nil {
		return nil, err
	}
	w, err := s.Weather.Current(ctx, f.Latitude, f.Longitude)
	if err != nil {
		return nil, err
	}
	out.Current = &w
	return out, nil
}

// Forecast returns the daily forecast at userID's farm.
func (s *WeatherService) Forecast(ctx context.Context, userID string) (*FarmWeather, error) {
	ctx, span := otel.Tracer("services/WeatherService").Start(ctx, "Forecast",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	out, f, err := s.farm(ctx, userID)
	if err != nil {
		return nil, err
	}
	days, err := s.Weather.Forecast(ctx, f.Latitude, f.Longitude)
	if err != nil {
		return nil, err
	}
	out.Forecast = days
	return out, nil
}

func (s *WeatherService) farm(ctx context.Context, userID string) (*FarmWeather, *domain.Farmer, error) {
	f, err := repo.GetFarmer(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil, ErrFarmerNotFound
		}
		return nil, nil, fmt.Errorf("load farmer: %w", err)
	}
	return &FarmWeather{
		Location:    f.Location(),
		Coordinates: domain.Coordinates{Latitude: f.Latitude, Longitude: f.Longitude},
	}, f, nil
}
