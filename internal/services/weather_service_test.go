package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/agrisense-backend/internal/weather"
)

func TestWeatherService_CurrentAndForecast(t *testing.T) {
	db := newSvcDB(t)
	f := seedFarmer(t, db, "01712345678")
	s := &WeatherService{DB: db, Weather: fakeForecast{}}

	cur, err := s.Current(context.Background(), f.ID)
	require.NoError(t, err)
	assert.Equal(t, "Savar, Dhaka", cur.Location)
	assert.InDelta(t, 23.8103, cur.Coordinates.Latitude, 1e-9)
	require.NotNil(t, cur.Current)
	assert.Equal(t, 31.0, cur.Current.Temperature)

	fc, err := s.Forecast(context.Background(), f.ID)
	require.NoError(t, err)
	require.Len(t, fc.Forecast, 1)
	assert.Equal(t, "Light Rain", fc.Forecast[0].Description)
}

func TestWeatherService_Errors(t *testing.T) {
	db := newSvcDB(t)
	s := &WeatherService{DB: db, Weather: fakeForecast{failForecast: true}}

	_, err := s.Current(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrFarmerNotFound)

	f := seedFarmer(t, db, "01712345678")
	_, err = s.Forecast(context.Background(), f.ID)
	assert.ErrorIs(t, err, weather.ErrUpstream)
}
