// Package environment fetches the weather and astronomy readings a
// sampling cycle attaches to each observation.
package environment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
)

// Snapshot is the per-cycle environmental reading for a coordinate.
// Sunrise and sunset are returned exactly as the upstream reports them
// (12-hour clock with AM/PM); conversion to the wire format happens at
// report-assembly time.
type Snapshot struct {
	Condition    string
	TemperatureC float64
	UVIndex      float64
	Sunrise      string
	Sunset       string
}

// Gateway queries WeatherAPI.com for current conditions and astronomy.
// Upstream calls are guarded by a circuit breaker and bounded retries; the
// sampling cycle would rather wait out a flaky upstream than report without
// environment data.
type Gateway struct {
	apiKey  string
	baseURL string
	client  *http.Client
	backoff BackoffConfig
	circuit *gobreaker.CircuitBreaker
}

// BackoffConfig controls the retry behaviour for upstream calls.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Option adjusts Gateway construction.
type Option func(*Gateway)

// WithBaseURL overrides the upstream base URL.
func WithBaseURL(u string) Option {
	return func(g *Gateway) { g.baseURL = u }
}

// NewGateway creates a Gateway using the shared HTTP client.
func NewGateway(client *http.Client, apiKey string, opts ...Option) *Gateway {
	g := &Gateway{
		apiKey:  apiKey,
		baseURL: "https://api.weatherapi.com/v1",
		client:  client,
		backoff: BackoffConfig{
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		circuit: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "weatherapi",
			MaxRequests: 5,
			Interval:    1 * time.Minute,
			Timeout:     2 * time.Minute,
		}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Fetch returns the full environmental snapshot for a coordinate: current
// conditions first, then today's astronomy. The two calls are sequential;
// astronomy is only worth fetching when current conditions succeeded.
func (g *Gateway) Fetch(ctx context.Context, lat, lon float64) (Snapshot, error) {
	if g.apiKey == "" {
		return Snapshot{}, fmt.Errorf("weatherapi api key is not configured")
	}

	snap, err := g.current(ctx, lat, lon)
	if err != nil {
		return Snapshot{}, err
	}

	sunrise, sunset, err := g.astronomy(ctx, lat, lon, time.Now())
	if err != nil {
		return Snapshot{}, err
	}
	snap.Sunrise = sunrise
	snap.Sunset = sunset

	return snap, nil
}

func (g *Gateway) current(ctx context.Context, lat, lon float64) (Snapshot, error) {
	values := url.Values{}
	values.Set("key", g.apiKey)
	values.Set("q", fmt.Sprintf("%f,%f", lat, lon))

	body, err := g.get(ctx, "/current.json", values)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch current conditions: %w", err)
	}

	var payload struct {
		Current struct {
			TempC     float64 `json:"temp_c"`
			UV        float64 `json:"uv"`
			Condition struct {
				Text string `json:"text"`
			} `json:"condition"`
		} `json:"current"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Snapshot{}, fmt.Errorf("parse current conditions: %w", err)
	}

	return Snapshot{
		Condition:    payload.Current.Condition.Text,
		TemperatureC: payload.Current.TempC,
		UVIndex:      payload.Current.UV,
	}, nil
}

func (g *Gateway) astronomy(ctx context.Context, lat, lon float64, date time.Time) (sunrise, sunset string, err error) {
	values := url.Values{}
	values.Set("key", g.apiKey)
	values.Set("q", fmt.Sprintf("%f,%f", lat, lon))
	values.Set("dt", date.Format("2006-01-02"))

	body, err := g.get(ctx, "/astronomy.json", values)
	if err != nil {
		return "", "", fmt.Errorf("fetch astronomy: %w", err)
	}

	var payload struct {
		Astronomy struct {
			Astro struct {
				Sunrise string `json:"sunrise"`
				Sunset  string `json:"sunset"`
			} `json:"astro"`
		} `json:"astronomy"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", "", fmt.Errorf("parse astronomy: %w", err)
	}

	return payload.Astronomy.Astro.Sunrise, payload.Astronomy.Astro.Sunset, nil
}
