// Package weather fetches current conditions and daily forecasts from
// OpenWeather and caches them in the weather_cache table keyed by rounded
// coordinates.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/agrisense-backend/internal/config"
	"github.com/tbourn/agrisense-backend/internal/domain"
)

// ErrUpstream is returned when the weather provider is unreachable, not
// configured, or answers with something that cannot be decoded.
var ErrUpstream = errors.New("weather upstream failed")

const forecastDays = 5

// Provider is the upstream weather source used by Service.
type Provider interface {
	Current(ctx context.Context, lat, lon float64) (domain.WeatherInfo, error)
	Forecast(ctx context.Context, lat, lon float64) ([]domain.ForecastDay, error)
}

// Client talks to the OpenWeather 2.5 REST API.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// NewClient builds a Client with a traced transport.
func NewClient(cfg config.WeatherConfig, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(cfg.BaseURL, "/"),
		APIKey:  cfg.APIKey,
		HTTP: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type owCondition struct {
	Description string `json:"description"`
}

type owCurrent struct {
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Weather []owCondition `json:"weather"`
	Rain    struct {
		OneHour float64 `json:"1h"`
	} `json:"rain"`
}

type owForecast struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			TempMin  float64 `json:"temp_min"`
			TempMax  float64 `json:"temp_max"`
			Humidity float64 `json:"humidity"`
		} `json:"main"`
		Weather []owCondition `json:"weather"`
	} `json:"list"`
	City struct {
		Timezone int `json:"timezone"`
	} `json:"city"`
}

// Current returns the present conditions at (lat, lon) in metric units.
func (c *Client) Current(ctx context.Context, lat, lon float64) (domain.WeatherInfo, error) {
	var body owCurrent
	if err := c.get(ctx, "/weather", lat, lon, &body); err != nil {
		return domain.WeatherInfo{}, err
	}
	w := domain.WeatherInfo{
		Temperature: body.Main.Temp,
		Humidity:    body.Main.Humidity,
		Rainfall:    body.Rain.OneHour,
		Forecast:    "unavailable",
	}
	if len(body.Weather) > 0 && body.Weather[0].Description != "" {
		w.Forecast = body.Weather[0].Description
	}
	return w, nil
}

// Forecast returns up to five daily summaries built from the 3-hourly list.
func (c *Client) Forecast(ctx context.Context, lat, lon float64) ([]domain.ForecastDay, error) {
	var body owForecast
	if err := c.get(ctx, "/forecast", lat, lon, &body); err != nil {
		return nil, err
	}
	return aggregateDaily(body), nil
}

func (c *Client) get(ctx context.Context, path string, lat, lon float64, out any) error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: api key not configured", ErrUpstream)
	}
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("appid", c.APIKey)
	q.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}
	return nil
}

type dayAcc struct {
	date     time.Time
	min, max float64
	humSum   float64
	n        int
	descs    map[string]int
	order    []string
}

// aggregateDaily folds 3-hourly slots into per-day min/max temperature,
// mean humidity and the most frequent description, in the city's offset.
func aggregateDaily(f owForecast) []domain.ForecastDay {
	loc := time.FixedZone("city", f.City.Timezone)
	title := cases.Title(language.English)

	days := map[string]*dayAcc{}
	var keys []string
	for _, slot := range f.List {
		t := time.Unix(slot.Dt, 0).In(loc)
		key := t.Format("2006-01-02")
		acc, ok := days[key]
		if !ok {
			acc = &dayAcc{date: t, min: slot.Main.TempMin, max: slot.Main.TempMax, descs: map[string]int{}}
			days[key] = acc
			keys = append(keys, key)
		}
		if slot.Main.TempMin < acc.min {
			acc.min = slot.Main.TempMin
		}
		if slot.Main.TempMax > acc.max {
			acc.max = slot.Main.TempMax
		}
		acc.humSum += slot.Main.Humidity
		acc.n++
		if len(slot.Weather) > 0 {
			d := slot.Weather[0].Description
			if _, seen := acc.descs[d]; !seen {
				acc.order = append(acc.order, d)
			}
			acc.descs[d]++
		}
	}
	sort.Strings(keys)
	if len(keys) > forecastDays {
		keys = keys[:forecastDays]
	}

	out := make([]domain.ForecastDay, 0, len(keys))
	for _, k := range keys {
		acc := days[k]
		best, bestN := "", 0
		for _, d := range acc.order {
			if acc.descs[d] > bestN {
				best, bestN = d, acc.descs[d]
			}
		}
		out = append(out, domain.ForecastDay{
			Date:        k,
			Day:         acc.date.Format("Monday"),
			TempMin:     round1(acc.min),
			TempMax:     round1(acc.max),
			Humidity:    round1(acc.humSum / float64(acc.n)),
			Description: title.String(best),
		})
	}
	return out
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
