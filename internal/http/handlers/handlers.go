package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/tbourn/agrisense-backend/internal/domain"
	"github.com/tbourn/agrisense-backend/internal/http/middleware"
	"github.com/tbourn/agrisense-backend/internal/notify"
	"github.com/tbourn/agrisense-backend/internal/repo"
	"github.com/tbourn/agrisense-backend/internal/scheduler"
	"github.com/tbourn/agrisense-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// AnalyticsService runs analyses, chat and the alert inbox.
type AnalyticsService interface {
	Analyze(ctx context.Context, userID string) (*services.AnalyzeOutcome, error)
	AnalyzeIdempotent(ctx context.Context, userID, key string) (*services.AnalyzeOutcome, error)
	Chat(ctx context.Context, userID, message string) (*services.ChatReply, error)
	ListAlerts(ctx context.Context, userID string, page, pageSize int) ([]domain.FarmAlert, int64, error)
	AlertsStats(ctx context.Context, userID string) (int64, *time.Time, error)
	MarkAlertRead(ctx context.Context, userID, alertID string) error
}

// VoiceService backs the voice agent's webhook and function calls.
type VoiceService interface {
	FarmerData(ctx context.Context, phone string) (*services.FarmBundle, error)
	FarmerDataByID(ctx context.Context, userID string) (*services.FarmBundle, error)
	Webhook(ctx context.Context, req services.WebhookRequest) (*services.WebhookReply, error)
	TestCall(ctx context.Context, userID, number string) (notify.VoiceResult, error)
}

// AdminService backs the admin dashboard.
type AdminService interface {
	ListFarmers(ctx context.Context, f repo.FarmerFilter, page, limit int) (*services.FarmerPage, error)
	ListMarketPrices(ctx context.Context) ([]domain.MarketPrice, error)
	CreateMarketPrice(ctx context.Context, in services.MarketPriceInput) (*domain.MarketPrice, error)
}

// Scheduler exposes manual sweep triggers and state.
type Scheduler interface {
	TriggerDaily(ctx context.Context) error
	TriggerMoisture(ctx context.Context) error
	Status() scheduler.Status
}

// DeviceService covers device linking and sensor ingestion.
type DeviceService interface {
	IngestReading(ctx context.Context, apiKey string, moisture *float64) (*domain.SensorSnapshot, error)
	List(ctx context.Context, userID string) ([]domain.Device, error)
	Link(ctx context.Context, userID, name, deviceType string) (*domain.Device, string, error)
	Unlink(ctx context.Context, userID, deviceID string) error
	SensorData(ctx context.Context, userID, deviceID string) (*domain.SensorSnapshot, error)
}

// WeatherService serves weather at the caller's farm.
type WeatherService interface {
	Current(ctx context.Context, userID string) (*services.FarmWeather, error)
	Forecast(ctx context.Context, userID string) (*services.FarmWeather, error)
}

// AIService reports the provider and stores agent callbacks.
type AIService interface {
	Provider() services.ProviderInfo
	Receive(kind string, raw []byte) bool
	Last(kind string) *services.ReceivedCallback
}

//
// Handler wiring
//

// Deps bundles the services the handlers call. A nil Scheduler answers 503
// on the scheduler routes.
type Deps struct {
	Analytics AnalyticsService
	Voice     VoiceService
	Admin     AdminService
	Scheduler Scheduler
	Devices   DeviceService
	Weather   WeatherService
	AI        AIService
}

// Handlers groups the HTTP endpoints. It depends on the service interfaces
// only, so tests substitute fakes.
type Handlers struct {
	analytics AnalyticsService
	voice     VoiceService
	admin     AdminService
	sched     Scheduler
	devices   DeviceService
	weather   WeatherService
	ai        AIService
}

// New constructs Handlers bound to d.
func New(d Deps) *Handlers {
	return &Handlers{
		analytics: d.Analytics,
		voice:     d.Voice,
		admin:     d.Admin,
		sched:     d.Scheduler,
		devices:   d.Devices,
		weather:   d.Weather,
		ai:        d.AI,
	}
}

// RegisterValidators adds the custom binding tags ("bdmobile") to gin's
// validator. Safe to call more than once.
func RegisterValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("bdmobile", notify.ValidateBDMobile)
	}
}

// userID is the farmer authenticated by middleware.Auth.
func userID(c *gin.Context) string { return middleware.UserID(c) }
