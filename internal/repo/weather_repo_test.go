package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/agrisense-backend/internal/domain"
)

func TestCoordKey_RoundsToFourDecimals(t *testing.T) {
	cases := map[float64]string{
		23.8103:     "23.8103",
		90.41249999: "90.4125",
		-1.5:        "-1.5000",
		0:           "0.0000",
	}
	for in, want := range cases {
		if got := CoordKey(in); got != want {
			t.Fatalf("CoordKey(%v)=%q want %q", in, got, want)
		}
	}
}

func TestGetFreshWeather_RespectsSinceAndType(t *testing.T) {
	db := newTestDB(t, migrateAll()...)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if _, err := CreateWeather(ctx, db, domain.WeatherCurrent, 23.8103, 90.4125, `{"old":true}`, now.Add(-40*time.Minute)); err != nil {
		t.Fatalf("CreateWeather: %v", err)
	}
	if _, err := CreateWeather(ctx, db, domain.WeatherForecast, 23.8103, 90.4125, `{"f":true}`, now.Add(-5*time.Minute)); err != nil {
		t.Fatalf("CreateWeather: %v", err)
	}

	since := now.Add(-30 * time.Minute)
	if _, err := GetFreshWeather(ctx, db, domain.WeatherCurrent, 23.8103, 90.4125, since); err != ErrNotFound {
		t.Fatalf("stale current row should miss, got %v", err)
	}

	fresh, err := CreateWeather(ctx, db, domain.WeatherCurrent, 23.81031, 90.41249, `{"new":true}`, now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("CreateWeather: %v", err)
	}
	got, err := GetFreshWeather(ctx, db, domain.WeatherCurrent, 23.8103, 90.4125, since)
	if err != nil {
		t.Fatalf("GetFreshWeather: %v", err)
	}
	if got.ID != fresh.ID || got.Data != `{"new":true}` {
		t.Fatalf("unexpected cache row: %+v", got)
	}
}

func TestListLatestMarketPrices_NewestFirstWithLimit(t *testing.T) {
	db := newTestDB(t, migrateAll()...)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, crop := range []string{"Rice", "Jute", "Potato"} {
		p := &domain.MarketPrice{CropName: crop, MarketName: "Karwan Bazar", PricePerKg: float64(30 + i), Unit: "BDT/kg", RecordedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := CreateMarketPrice(ctx, db, p); err != nil {
			t.Fatalf("CreateMarketPrice: %v", err)
		}
	}
	got, err := ListLatestMarketPrices(ctx, db, 2)
	if err != nil {
		t.Fatalf("ListLatestMarketPrices: %v", err)
	}
	if len(got) != 2 || got[0].CropName != "Potato" || got[1].CropName != "Jute" {
		t.Fatalf("unexpected prices: %+v", got)
	}
}
