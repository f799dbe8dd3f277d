package weather

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/agrisense-backend/internal/config"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(config.WeatherConfig{APIKey: "k", BaseURL: srv.URL + "/"}, 5*time.Second)
}

func TestClient_Current_DecodesMetricPayload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/weather", r.URL.Path)
		assert.Equal(t, "metric", r.URL.Query().Get("units"))
		assert.Equal(t, "k", r.URL.Query().Get("appid"))
		assert.Equal(t, "23.8103", r.URL.Query().Get("lat"))
		_, _ = w.Write([]byte(`{"main":{"temp":31.2,"humidity":74},"weather":[{"description":"light rain"}],"rain":{"1h":1.4}}`))
	})

	got, err := c.Current(context.Background(), 23.8103, 90.4125)
	require.NoError(t, err)
	assert.Equal(t, 31.2, got.Temperature)
	assert.Equal(t, 74.0, got.Humidity)
	assert.Equal(t, 1.4, got.Rainfall)
	assert.Equal(t, "light rain", got.Forecast)
}

func TestClient_Errors_WrapErrUpstream(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, err := c.Current(context.Background(), 1, 2)
	require.ErrorIs(t, err, ErrUpstream)

	c2 := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})
	_, err = c2.Forecast(context.Background(), 1, 2)
	require.ErrorIs(t, err, ErrUpstream)

	noKey := &Client{BaseURL: "http://127.0.0.1:1", HTTP: http.DefaultClient}
	_, err = noKey.Current(context.Background(), 1, 2)
	require.ErrorIs(t, err, ErrUpstream)
}

func TestClient_Forecast_AggregatesPerDay(t *testing.T) {
	// 2025-06-01 00:00 UTC == 06:00 in Dhaka (offset 21600).
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).Unix()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forecast", r.URL.Path)
		_, _ = w.Write([]byte(`{"city":{"timezone":21600},"list":[
			{"dt":` + itoa(base) + `,"main":{"temp_min":26,"temp_max":29,"humidity":80},"weather":[{"description":"light rain"}]},
			{"dt":` + itoa(base+3*3600) + `,"main":{"temp_min":27,"temp_max":33.26,"humidity":70},"weather":[{"description":"overcast clouds"}]},
			{"dt":` + itoa(base+6*3600) + `,"main":{"temp_min":28,"temp_max":32,"humidity":60},"weather":[{"description":"light rain"}]},
			{"dt":` + itoa(base+19*3600) + `,"main":{"temp_min":25,"temp_max":27,"humidity":90},"weather":[{"description":"clear sky"}]}
		]}`))
	})

	days, err := c.Forecast(context.Background(), 23.8, 90.4)
	require.NoError(t, err)
	require.Len(t, days, 2)

	assert.Equal(t, "2025-06-01", days[0].Date)
	assert.Equal(t, "Sunday", days[0].Day)
	assert.Equal(t, 26.0, days[0].TempMin)
	assert.Equal(t, 33.3, days[0].TempMax)
	assert.Equal(t, 70.0, days[0].Humidity)
	assert.Equal(t, "Light Rain", days[0].Description)

	assert.Equal(t, "2025-06-02", days[1].Date)
	assert.Equal(t, "Clear Sky", days[1].Description)
}

func TestAggregateDaily_CapsAtFiveDays(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	raw := `{"city":{"timezone":0},"list":[`
	for i := 0; i < 7; i++ {
		if i > 0 {
			raw += ","
		}
		raw += `{"dt":` + itoa(start.AddDate(0, 0, i).Unix()) + `,"main":{"temp_min":20,"temp_max":30,"humidity":50},"weather":[{"description":"haze"}]}`
	}
	raw += `]}`

	var f owForecast
	require.NoError(t, json.Unmarshal([]byte(raw), &f))
	days := aggregateDaily(f)
	require.Len(t, days, forecastDays)
	assert.Equal(t, "2025-06-01", days[0].Date)
	assert.Equal(t, "2025-06-05", days[4].Date)
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
