package weather

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/agrisense-backend/internal/domain"
	"github.com/tbourn/agrisense-backend/internal/repo"
)

// DefaultTTL is how long a cache row counts as fresh.
const DefaultTTL = 30 * time.Minute

// Service serves weather through the cache, falling back to the Provider on
// a miss and persisting what it fetched.
type Service struct {
	DB       *gorm.DB
	Provider Provider
	TTL      time.Duration
	Now      func() time.Time
}

// NewService returns a Service with the default TTL and wall clock.
func NewService(db *gorm.DB, p Provider, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{DB: db, Provider: p, TTL: ttl, Now: time.Now}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Current returns conditions at (lat, lon). A cache row younger than TTL is
// served as is; otherwise the provider is called and the answer cached.
func (s *Service) Current(ctx context.Context, lat, lon float64) (domain.WeatherInfo, error) {
	ctx, span := otel.Tracer("services/WeatherService").Start(ctx, "Current",
		trace.WithAttributes(attribute.String("lat", repo.CoordKey(lat)), attribute.String("lon", repo.CoordKey(lon))))
	defer span.End()

	var w domain.WeatherInfo
	if ok := s.cached(ctx, domain.WeatherCurrent, lat, lon, &w); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return w, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	if s.Provider == nil {
		return domain.WeatherInfo{}, ErrUpstream
	}
	w, err := s.Provider.Current(ctx, lat, lon)
	if err != nil {
		if !errors.Is(err, ErrUpstream) {
			err = errors.Join(ErrUpstream, err)
		}
		return domain.WeatherInfo{}, err
	}
	s.store(ctx, domain.WeatherCurrent, lat, lon, w)
	return w, nil
}

// CurrentOrDefault is Current with the fixed defaults on any failure.
func (s *Service) CurrentOrDefault(ctx context.Context, lat, lon float64) domain.WeatherInfo {
	w, err := s.Current(ctx, lat, lon)
	if err != nil {
		log.Warn().Err(err).Str("component", "weather").Msg("using default weather")
		return domain.DefaultWeather()
	}
	return w
}

// Forecast returns daily summaries at (lat, lon) through the same cache,
// under type forecast.
func (s *Service) Forecast(ctx context.Context, lat, lon float64) ([]domain.ForecastDay, error) {
	ctx, span := otel.Tracer("services/WeatherService").Start(ctx, "Forecast")
	defer span.End()

	var days []domain.ForecastDay
	if ok := s.cached(ctx, domain.WeatherForecast, lat, lon, &days); ok {
		return days, nil
	}
	if s.Provider == nil {
		return nil, ErrUpstream
	}
	days, err := s.Provider.Forecast(ctx, lat, lon)
	if err != nil {
		if !errors.Is(err, ErrUpstream) {
			err = errors.Join(ErrUpstream, err)
		}
		return nil, err
	}
	s.store(ctx, domain.WeatherForecast, lat, lon, days)
	return days, nil
}

func (s *Service) cached(ctx context.Context, typ string, lat, lon float64, out any) bool {
	if s.DB == nil {
		return false
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	row, err := repo.GetFreshWeather(ctx, s.DB, typ, lat, lon, s.now().Add(-ttl))
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			log.Warn().Err(err).Str("component", "weather").Msg("weather cache lookup failed")
		}
		return false
	}
	if err := json.Unmarshal([]byte(row.Data), out); err != nil {
		log.Warn().Err(err).Str("component", "weather").Str("id", row.ID).Msg("weather cache row unreadable")
		return false
	}
	return true
}

// store persists a fetched payload; failures only cost a future cache hit.
func (s *Service) store(ctx context.Context, typ string, lat, lon float64, v any) {
	if s.DB == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if _, err := repo.CreateWeather(ctx, s.DB, typ, lat, lon, string(b), s.now()); err != nil {
		log.Warn().Err(err).Str("component", "weather").Msg("weather cache write failed")
	}
}
