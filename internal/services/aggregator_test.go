package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/agrisense-backend/internal/domain"
)

func TestAggregator_Build(t *testing.T) {
	db := newSvcDB(t)
	f := seedFarmer(t, db, "01712345678")
	dev := seedDevice(t, db, f.ID, &domain.SensorSnapshot{
		MoistureLevel: 18, PHLevel: 6.2, Temperature: 27, NitrogenLevel: 40,
	})
	a := &Aggregator{DB: db, Weather: fixedWeather{}}

	fc, err := a.Build(context.Background(), f.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rahim Uddin", fc.Farmer.Name)
	assert.Equal(t, "Savar, Dhaka", fc.Farmer.Location)
	assert.Equal(t, 23.8103, fc.Farmer.Coordinates.Latitude)
	assert.Equal(t, "Rice", fc.Crop.Type)
	assert.Equal(t, 18.0, fc.Sensors.SoilMoisture)
	assert.Equal(t, 40.0, fc.Sensors.Nutrients.Nitrogen)
	assert.Equal(t, dev.ID, fc.Device.ID)
	assert.Equal(t, "Clear", fc.Weather.Forecast)
}

func TestAggregator_DefaultsWithoutWeatherOrCrop(t *testing.T) {
	db := newSvcDB(t)
	f := seedFarmer(t, db, "01712345678")
	require.NoError(t, db.Model(&domain.Farmer{}).Where("id = ?", f.ID).Update("crop_name", "").Error)
	a := &Aggregator{DB: db}

	fc, err := a.BuildLenient(context.Background(), f.ID)
	require.NoError(t, err)
	assert.Equal(t, "Unknown", fc.Crop.Type)
	assert.Equal(t, domain.DefaultWeather(), fc.Weather)
	assert.Empty(t, fc.Device.ID)
	assert.Zero(t, fc.Sensors.SoilMoisture)

	_, err = a.BuildLenient(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrFarmerNotFound)
}
