package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/agrisense-backend/internal/domain"
	"github.com/tbourn/agrisense-backend/internal/events"
	"github.com/tbourn/agrisense-backend/internal/notify"
	"github.com/tbourn/agrisense-backend/internal/repo"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.District{}, &domain.Farmer{}, &domain.Device{}, &domain.SensorSnapshot{},
		&domain.FarmAlert{}, &domain.FarmAnalysis{}, &domain.WeatherCache{}, &domain.MarketPrice{},
		&domain.Idempotency{},
	))
	return db
}

func seedFarmer(t *testing.T, db *gorm.DB, mobile string) *domain.Farmer {
	t.Helper()
	land := 2.0
	f := &domain.Farmer{
		FullName:        "Rahim Uddin",
		MobileNumber:    mobile,
		CropName:        "Rice",
		LandSizeAcres:   &land,
		Latitude:        23.8103,
		Longitude:       90.4125,
		LocationAddress: "Savar, Dhaka",
	}
	require.NoError(t, repo.CreateFarmer(context.Background(), db, f))
	return f
}

func seedDevice(t *testing.T, db *gorm.DB, userID string, snap *domain.SensorSnapshot) *domain.Device {
	t.Helper()
	d := &domain.Device{UserID: userID, DeviceName: "probe", DeviceType: "soil_sensor", APIKey: "ak_" + uuid.NewString()}
	require.NoError(t, repo.CreateDevice(context.Background(), db, d))
	if snap != nil {
		snap.DeviceID = d.ID
		require.NoError(t, repo.UpsertSnapshot(context.Background(), db, snap))
	}
	return d
}

func countAlerts(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&domain.FarmAlert{}).Count(&n).Error)
	return n
}

type fixedWeather struct{}

func (fixedWeather) CurrentOrDefault(context.Context, float64, float64) domain.WeatherInfo {
	return domain.WeatherInfo{Temperature: 30, Humidity: 70, Forecast: "Clear"}
}

type fakeSMS struct {
	mu    sync.Mutex
	calls []string
	fail  bool
}

func (f *fakeSMS) Send(_ context.Context, to, msg string) (notify.SMSResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, to+"|"+msg)
	if f.fail {
		return notify.SMSResult{Error: "gateway said no"}, notify.ErrRejected
	}
	return notify.SMSResult{Success: true, Response: map[string]any{"response_code": float64(202)}}, nil
}

type fakeVoice struct {
	mu    sync.Mutex
	calls []domain.AlertType
	to    []string
}

func (f *fakeVoice) Call(_ context.Context, _ domain.FarmContext, to, _ string, t domain.AlertType) (notify.VoiceResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, t)
	f.to = append(f.to, to)
	return notify.VoiceResult{Success: true, CallID: "call_1", Status: "registered"}, nil
}

type fakeAnalyzer struct {
	res      *domain.AnalysisResult
	err      error
	analyzed int
	chats    []string
	reply    string
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ domain.FarmContext, _ string) (*domain.AnalysisResult, error) {
	f.analyzed++
	if f.err != nil {
		return nil, f.err
	}
	r := *f.res
	return &r, nil
}

func (f *fakeAnalyzer) Chat(_ context.Context, _ domain.FarmContext, _ []domain.MarketPrice, msg string) (string, error) {
	f.chats = append(f.chats, msg)
	return f.reply, nil
}

func (f *fakeAnalyzer) Name() string { return "fake" }

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.AlertEvent
}

func (p *recordingPublisher) PublishAlert(_ context.Context, ev events.AlertEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func actionResult() *domain.AnalysisResult {
	return &domain.AnalysisResult{
		Analysis:       "মাটি শুকনো",
		ActionRequired: true,
		Message:        "দ্রুত সেচ দিন",
		Timestamp:      time.Now().UTC(),
	}
}
