package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds the agent's tunable parameters.
type AppConfig struct {
	// ServerBaseURL is the Solas classification server.
	ServerBaseURL string

	// WeatherAPIKey authenticates against WeatherAPI.com.
	WeatherAPIKey string

	// GeocoderAPIKey enables reverse-geocoded locality in /status when set.
	GeocoderAPIKey string

	// PollInterval is the foreground sampling cadence.
	PollInterval time.Duration

	// BackgroundInterval is the background runner's cadence.
	BackgroundInterval time.Duration

	// LocationSamples is the number of GPS fixes averaged per cycle.
	LocationSamples int

	// IdentityDBPath is the SQLite file holding the device identity.
	IdentityDBPath string

	// HTTPTimeout bounds all outbound HTTP calls.
	HTTPTimeout time.Duration

	Port     string
	LogLevel string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	// A missing .env file is fine; real deployments use the environment.
	_ = godotenv.Load()

	cfg := &AppConfig{
		ServerBaseURL:  getenvDefault("SOLAS_SERVER_URL", "http://16.170.231.125:5000"),
		WeatherAPIKey:  os.Getenv("WEATHERAPI_API_KEY"),
		GeocoderAPIKey: os.Getenv("GEOCODER_API_KEY"),
		IdentityDBPath: getenvDefault("IDENTITY_DB_PATH", "data/solas-agent.db"),
		Port:           getenvDefault("PORT", "8080"),
		LogLevel:       getenvDefault("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.PollInterval, err = getenvDuration("POLL_INTERVAL", "5m"); err != nil {
		return nil, err
	}
	if cfg.BackgroundInterval, err = getenvDuration("BACKGROUND_INTERVAL", "5m"); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "15s"); err != nil {
		return nil, err
	}

	cfg.LocationSamples = getenvInt("LOCATION_SAMPLES", 1)
	if cfg.LocationSamples < 1 {
		return nil, fmt.Errorf("LOCATION_SAMPLES must be at least 1")
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
