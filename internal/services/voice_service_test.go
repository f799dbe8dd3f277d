package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tbourn/agrisense-backend/internal/domain"
	"github.com/tbourn/agrisense-backend/internal/notify"
	"github.com/tbourn/agrisense-backend/internal/weather"
)

type fakeForecast struct{ failForecast bool }

func (fakeForecast) Current(context.Context, float64, float64) (domain.WeatherInfo, error) {
	return domain.WeatherInfo{Temperature: 31, Humidity: 65, Forecast: "Clouds"}, nil
}

func (f fakeForecast) Forecast(context.Context, float64, float64) ([]domain.ForecastDay, error) {
	if f.failForecast {
		return nil, weather.ErrUpstream
	}
	return []domain.ForecastDay{{Date: "2025-06-01", Day: "Sunday", TempMin: 26, TempMax: 33, Humidity: 70, Description: "Light Rain"}}, nil
}

func newVoice(db *gorm.DB, an *fakeAnalyzer, v notify.VoiceCaller, fs ForecastSource) *VoiceService {
	return &VoiceService{
		DB:         db,
		Aggregator: &Aggregator{DB: db, Weather: fixedWeather{}},
		Weather:    fs,
		Analyzer:   an,
		Voice:      v,
	}
}

func TestVoice_FarmerData_AnySpelling(t *testing.T) {
	db := newSvcDB(t)
	f := seedFarmer(t, db, "01712345678")
	seedDevice(t, db, f.ID, &domain.SensorSnapshot{MoistureLevel: 22, PHLevel: 6.8})
	s := newVoice(db, &fakeAnalyzer{}, &fakeVoice{}, fakeForecast{})

	for _, phone := range []string{"01712345678", "8801712345678", "+8801712345678", "+880 1712-345678"} {
		b, err := s.FarmerData(context.Background(), phone)
		require.NoError(t, err, phone)
		assert.Equal(t, "Rahim Uddin", b.Farmer.FullName)
		assert.Equal(t, "Savar, Dhaka", b.Farmer.LocationAddress)
		require.NotNil(t, b.Sensors)
		assert.Equal(t, 22.0, b.Sensors.SoilMoisture)
		assert.Equal(t, 31.0, b.Weather.Temperature)
		require.Len(t, b.Forecast, 1)
		assert.Equal(t, "Sunday", b.Forecast[0].Day)
	}

	_, err := s.FarmerData(context.Background(), "01900000000")
	assert.ErrorIs(t, err, ErrFarmerNotFound)
}

func TestVoice_FarmerDataByID_DegradesWithoutSensorsOrForecast(t *testing.T) {
	db := newSvcDB(t)
	f := seedFarmer(t, db, "01712345678")
	s := newVoice(db, &fakeAnalyzer{}, &fakeVoice{}, fakeForecast{failForecast: true})

	b, err := s.FarmerDataByID(context.Background(), f.ID)
	require.NoError(t, err)
	assert.Nil(t, b.Sensors)
	assert.Nil(t, b.Forecast)

	_, err = s.FarmerDataByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrFarmerNotFound)
}

func TestVoice_Webhook_AnswersLastUserTurn(t *testing.T) {
	db := newSvcDB(t)
	f := seedFarmer(t, db, "01712345678")
	an := &fakeAnalyzer{reply: "আজ সেচ দিন"}
	s := newVoice(db, an, &fakeVoice{}, fakeForecast{})

	req := WebhookRequest{
		Transcript: []Utterance{
			{Role: "agent", Content: "কেমন আছেন?"},
			{Role: "user", Content: "আমার ধানে কী করব?"},
			{Role: "agent", Content: "একটু অপেক্ষা করুন"},
		},
		Call: WebhookCall{CallID: "c1", ToNumber: "+8801712345678", Metadata: map[string]string{"user_id": f.ID}},
	}
	out, err := s.Webhook(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "আজ সেচ দিন", out.Response)
	assert.True(t, out.ContinueConversation)
	assert.Equal(t, []string{"আমার ধানে কী করব?"}, an.chats)

	out, err = s.Webhook(context.Background(), WebhookRequest{})
	require.NoError(t, err)
	assert.Equal(t, voiceGreeting, out.Response)
	assert.Len(t, an.chats, 1)
}

func TestVoice_TestCall(t *testing.T) {
	db := newSvcDB(t)
	v := &fakeVoice{}
	s := newVoice(db, &fakeAnalyzer{}, v, fakeForecast{})

	_, err := s.TestCall(context.Background(), "u1", " ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	res, err := s.TestCall(context.Background(), "u1", "01712345678")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []domain.AlertType{domain.AlertCriticalDrought}, v.calls)
	assert.Equal(t, []string{"8801712345678"}, v.to)

	fc := mockCriticalContext("u1", "01712345678")
	assert.Equal(t, 15.0, fc.Sensors.SoilMoisture)
	assert.Equal(t, "test-device-123", fc.Device.ID)
}
