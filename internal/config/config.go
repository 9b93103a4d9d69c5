package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/aqwatch/air-quality-aggregation/internal/airquality"
)

// AppConfig is everything the process reads from the environment.
// Per-source credentials are opaque here; adapters receive them
// pre-resolved.
type AppConfig struct {
	Port string

	// Outbound HTTP client timeout shared by all adapters.
	HTTPTimeout time.Duration

	// Per-call ceiling the orchestrator puts on one adapter fetch.
	AdapterTimeout time.Duration

	// Cache TTLs per source kind.
	TTL airquality.TTLConfig

	// Lazy-eviction sweep cadence and grace window.
	SweepInterval time.Duration
	SweepGrace    time.Duration

	// Site registry wholesale refresh cadence (0 disables).
	SiteRefreshInterval time.Duration

	// Radius applied to location queries that do not set one.
	DefaultRadiusKM float64

	OpenAQAPIKey      string
	AirNowAPIKey      string
	PurpleAirAPIKey   string
	OpenWeatherAPIKey string
	GeocoderAPIKey    string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.Port = getenvDefault("PORT", "8080")

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.AdapterTimeout, err = getenvDuration("ADAPTER_TIMEOUT", airquality.DefaultAdapterTimeout); err != nil {
		return nil, err
	}

	// TTLs: satellite granule catalogs move slowly, ground readings
	// hourly, sensor networks and weather faster.
	if cfg.TTL.Default, err = getenvDuration("CACHE_TTL_DEFAULT", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.TTL.Satellite, err = getenvDuration("CACHE_TTL_SATELLITE", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.TTL.GroundStation, err = getenvDuration("CACHE_TTL_GROUND_STATION", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.TTL.SensorNetwork, err = getenvDuration("CACHE_TTL_SENSOR_NETWORK", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.TTL.Weather, err = getenvDuration("CACHE_TTL_WEATHER", 10*time.Minute); err != nil {
		return nil, err
	}

	if cfg.SweepInterval, err = getenvDuration("CACHE_SWEEP_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SweepGrace, err = getenvDuration("CACHE_SWEEP_GRACE", time.Hour); err != nil {
		return nil, err
	}
	if cfg.SiteRefreshInterval, err = getenvDuration("SITE_REFRESH_INTERVAL", 24*time.Hour); err != nil {
		return nil, err
	}

	cfg.DefaultRadiusKM = getenvFloat("DEFAULT_RADIUS_KM", 25)

	cfg.OpenAQAPIKey = os.Getenv("OPENAQ_API_KEY")
	cfg.AirNowAPIKey = os.Getenv("AIRNOW_API_KEY")
	cfg.PurpleAirAPIKey = os.Getenv("PURPLEAIR_API_KEY")
	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// Bare numbers are taken as seconds, for ttl_seconds-style
		// deployments.
		if secs, serr := strconv.Atoi(v); serr == nil {
			return time.Duration(secs) * time.Second, nil
		}
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}
