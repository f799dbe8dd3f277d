package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/agrisense-backend/internal/analysis"
	"github.com/tbourn/agrisense-backend/internal/config"
	"github.com/tbourn/agrisense-backend/internal/events"
	"github.com/tbourn/agrisense-backend/internal/http/handlers"
	"github.com/tbourn/agrisense-backend/internal/notify"
	"github.com/tbourn/agrisense-backend/internal/observability"
	"github.com/tbourn/agrisense-backend/internal/repo"
	"github.com/tbourn/agrisense-backend/internal/scheduler"
	"github.com/tbourn/agrisense-backend/internal/services"
	"github.com/tbourn/agrisense-backend/internal/weather"
)

// app holds the wired services shared by serve and sweep.
type app struct {
	DB        *gorm.DB
	Analyzer  analysis.Analyzer
	Scheduler *scheduler.Service

	analytics *services.AnalyticsService
	voice     *services.VoiceService
	weather   *services.WeatherService
	admin     *services.AdminService
	devices   *services.DeviceService
	ai        *services.AIService

	events   events.Publisher
	redis    *redis.Client
	shutdown func(context.Context) error
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	shutdown, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return nil, fmt.Errorf("otel: %w", err)
	}

	db, err := repo.Open(cfg.DB, cfg.LogLevel == "debug")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	timeout := cfg.HTTPClientTimeout
	wx := weather.NewService(db, weather.NewClient(cfg.Weather, timeout), cfg.Weather.CacheTTL)
	analyzer := analysis.New(cfg.AI, timeout)
	pub := events.New(cfg.Kafka)

	agg := &services.Aggregator{DB: db, Weather: wx}
	disp := &services.Dispatcher{
		DB:     db,
		SMS:    notify.NewBulkSMSClient(cfg.SMS, timeout),
		Voice:  notify.NewRetellClient(cfg.Voice, timeout),
		Events: pub,
	}
	a := &app{
		DB:       db,
		Analyzer: analyzer,
		analytics: &services.AnalyticsService{
			DB: db, Aggregator: agg, Analyzer: analyzer, Dispatcher: disp,
			IdempotencyTTL: cfg.IdempotencyTTL,
		},
		voice:    &services.VoiceService{DB: db, Aggregator: agg, Weather: wx, Analyzer: analyzer, Voice: disp.Voice},
		weather:  &services.WeatherService{DB: db, Weather: wx},
		admin:    &services.AdminService{DB: db},
		devices:  &services.DeviceService{DB: db},
		ai:       &services.AIService{Config: cfg.AI},
		events:   pub,
		shutdown: shutdown,
	}

	var lock scheduler.Locker
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
		}
		lock = scheduler.NewRedisLocker(a.redis, "agrisense:sweep:")
		log.Info().Str("addr", cfg.Redis.Addr).Msg("sweep lock: redis")
	}

	a.Scheduler, err = scheduler.New(cfg.Scheduler, db, a.analytics, disp, lock)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Deps exposes the services to the HTTP layer.
func (a *app) Deps() handlers.Deps {
	return handlers.Deps{
		Analytics: a.analytics,
		Voice:     a.voice,
		Admin:     a.admin,
		Scheduler: a.Scheduler,
		Devices:   a.devices,
		Weather:   a.weather,
		AI:        a.ai,
	}
}

// Close releases the broker writer, the redis client, the database and the
// tracer provider, logging failures.
func (a *app) Close() {
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			log.Error().Err(err).Msg("close event publisher")
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if a.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("otel shutdown")
		}
	}
}
