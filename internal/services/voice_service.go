package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/agrisense-backend/internal/analysis"
	"github.com/tbourn/agrisense-backend/internal/domain"
	"github.com/tbourn/agrisense-backend/internal/notify"
	"github.com/tbourn/agrisense-backend/internal/repo"
)

// TestCallMessage is the alert text spoken by a test call.
const TestCallMessage = "মাটিতে পানির অভাব। দ্রুত সেচ দিন।"

const voiceGreeting = "আমি AgriSense। আপনার খামার সম্পর্কে কী জানতে চান?"

// ForecastSource serves current conditions and the daily forecast.
type ForecastSource interface {
	Current(ctx context.Context, lat, lon float64) (domain.WeatherInfo, error)
	Forecast(ctx context.Context, lat, lon float64) ([]domain.ForecastDay, error)
}

// VoiceFarmer is the caller profile handed to the voice agent.
type VoiceFarmer struct {
	FullName        string   `json:"full_name"`
	MobileNumber    string   `json:"mobile_number"`
	CropName        string   `json:"crop_name"`
	LandSizeAcres   *float64 `json:"land_size_acres"`
	LocationAddress string   `json:"location_address"`
}

// FarmBundle is everything the voice agent needs about one farm.
type FarmBundle struct {
	Farmer   VoiceFarmer          `json:"farmer"`
	Sensors  *domain.SensorInfo   `json:"sensors"`
	Weather  domain.WeatherInfo   `json:"weather"`
	Forecast []domain.ForecastDay `json:"forecast"`
}

// Utterance is one turn of a call transcript.
type Utterance struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// WebhookCall identifies the call a webhook belongs to.
type WebhookCall struct {
	CallID     string            `json:"call_id"`
	FromNumber string            `json:"from_number"`
	ToNumber   string            `json:"to_number"`
	Metadata   map[string]string `json:"metadata"`
}

// WebhookRequest is the conversation event posted by the voice platform.
type WebhookRequest struct {
	InteractionType string      `json:"interaction_type"`
	Transcript      []Utterance `json:"transcript"`
	Call            WebhookCall `json:"call"`
}

// WebhookReply is spoken back to the caller.
type WebhookReply struct {
	Response             string `json:"response"`
	ContinueConversation bool   `json:"continue_conversation"`
}

// VoiceService backs the voice agent's functions and webhook.
type VoiceService struct {
	DB         *gorm.DB
	Aggregator *Aggregator
	Weather    ForecastSource
	Analyzer   analysis.Analyzer
	Voice      notify.VoiceCaller
}

// FarmerData resolves the farmer by any spelling of phone and returns the
// farm bundle.
func (s *VoiceService) FarmerData(ctx context.Context, phone string) (*FarmBundle, error) {
	ctx, span := otel.Tracer("services/VoiceService").Start(ctx, "FarmerData")
	defer span.End()

	f, err := s.farmerByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	return s.bundle(ctx, f), nil
}

// FarmerDataByID is FarmerData for an authenticated farmer.
func (s *VoiceService) FarmerDataByID(ctx context.Context, userID string) (*FarmBundle, error) {
	ctx, span := otel.Tracer("services/VoiceService").Start(ctx, "FarmerDataByID",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	f, err := repo.GetFarmer(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrFarmerNotFound
		}
		return nil, err
	}
	return s.bundle(ctx, f), nil
}

func (s *VoiceService) farmerByPhone(ctx context.Context, phone string) (*domain.Farmer, error) {
	variants := notify.MobileVariants(phone)
	if len(variants) == 0 {
		// Unparseable numbers still get an exact-match attempt.
		if p := strings.TrimSpace(phone); p != "" {
			variants = []string{p}
		}
	}
	f, err := repo.GetFarmerByMobile(ctx, s.DB, variants)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrFarmerNotFound
		}
		return nil, err
	}
	return f, nil
}

func (s *VoiceService) bundle(ctx context.Context, f *domain.Farmer) *FarmBundle {
	lg := loggerFor(ctx, "voice")
	b := &FarmBundle{
		Farmer: VoiceFarmer{
			FullName:        f.FullName,
			MobileNumber:    f.MobileNumber,
			CropName:        f.CropName,
			LandSizeAcres:   f.LandSizeAcres,
			LocationAddress: f.LocationAddress,
		},
		Weather: domain.DefaultWeather(),
	}
	if dev, err := repo.GetActiveDevice(ctx, s.DB, f.ID); err == nil {
		if snap, err := repo.GetSnapshot(ctx, s.DB, dev.ID); err == nil {
			si := domain.SensorsFromSnapshot(*snap)
			b.Sensors = &si
		}
	}
	if s.Weather != nil {
		if w, err := s.Weather.Current(ctx, f.Latitude, f.Longitude); err == nil {
			b.Weather = w
		} else {
			lg.Warn().Err(err).Msg("current weather unavailable")
		}
		if fc, err := s.Weather.Forecast(ctx, f.Latitude, f.Longitude); err == nil {
			b.Forecast = fc
		} else {
			lg.Warn().Err(err).Msg("forecast unavailable")
		}
	}
	return b
}

// Webhook answers the caller's latest utterance from their farm context.
func (s *VoiceService) Webhook(ctx context.Context, req WebhookRequest) (*WebhookReply, error) {
	ctx, span := otel.Tracer("services/VoiceService").Start(ctx, "Webhook",
		trace.WithAttributes(attribute.String("call.id", req.Call.CallID)))
	defer span.End()

	question := lastUserUtterance(req.Transcript)
	if question == "" {
		return &WebhookReply{Response: voiceGreeting, ContinueConversation: true}, nil
	}

	fc := s.callerContext(ctx, req.Call)
	reply, err := s.Analyzer.Chat(ctx, fc, nil, question)
	if err != nil {
		return nil, fmt.Errorf("voice reply: %w", err)
	}
	return &WebhookReply{Response: reply, ContinueConversation: true}, nil
}

// callerContext finds the farmer behind a call, preferring the id we put in
// the call metadata, then either phone number.
func (s *VoiceService) callerContext(ctx context.Context, call WebhookCall) domain.FarmContext {
	if id := call.Metadata["user_id"]; id != "" {
		if fc, err := s.Aggregator.BuildLenient(ctx, id); err == nil {
			return *fc
		}
	}
	for _, n := range []string{call.ToNumber, call.FromNumber} {
		if n == "" {
			continue
		}
		if f, err := s.farmerByPhone(ctx, n); err == nil {
			return s.Aggregator.BuildLenientFor(ctx, f)
		}
	}
	return domain.FarmContext{Crop: domain.CropInfo{Type: "Unknown"}, Weather: domain.DefaultWeather()}
}

func lastUserUtterance(ts []Utterance) string {
	for i := len(ts) - 1; i >= 0; i-- {
		if ts[i].Role == "user" {
			if c := strings.TrimSpace(ts[i].Content); c != "" {
				return c
			}
		}
	}
	return ""
}

// TestCall dials number with mock critical farm data.
func (s *VoiceService) TestCall(ctx context.Context, userID, number string) (notify.VoiceResult, error) {
	ctx, span := otel.Tracer("services/VoiceService").Start(ctx, "TestCall",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	number = strings.TrimSpace(number)
	if number == "" {
		return notify.VoiceResult{}, ErrInvalidInput
	}
	if s.Voice == nil {
		return notify.VoiceResult{Error: notify.ErrNotConfigured.Error()}, notify.ErrNotConfigured
	}
	to := number
	if notify.IsValidBangladeshiMobile(number) {
		to = notify.FormatMobileNumber(number)
	}
	return s.Voice.Call(ctx, mockCriticalContext(userID, number), to, TestCallMessage, domain.AlertCriticalDrought)
}

func mockCriticalContext(userID, mobile string) domain.FarmContext {
	land := 2.5
	return domain.FarmContext{
		Farmer: domain.FarmerInfo{ID: userID, Name: "Test Farmer", Location: "Dhaka", LandSize: &land, Mobile: mobile},
		Crop:   domain.CropInfo{Type: "Rice"},
		Sensors: domain.SensorInfo{
			SoilMoisture:     15,
			SoilPH:           6.5,
			SoilTemperature:  25,
			Humidity:         60,
			LightIntensity:   400,
			SoilConductivity: 300,
			Nutrients:        domain.Nutrients{Nitrogen: 40, Phosphorus: 25, Potassium: 35},
			LastUpdated:      time.Now().UTC(),
		},
		Weather: domain.WeatherInfo{Temperature: 28, Humidity: 70, Rainfall: 0},
		Device:  domain.DeviceInfo{ID: "test-device-123"},
	}
}
