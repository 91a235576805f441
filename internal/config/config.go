// Package config loads service configuration from the environment and an
// optional YAML seed-market list.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"github.com/marketlens/market-enrich/pkg/logging"
	"github.com/marketlens/market-enrich/pkg/market"
	"github.com/marketlens/market-enrich/pkg/queue"
)

// Config holds the full service configuration.
type Config struct {
	// RedisURL is the Redis host:port.
	RedisURL string

	// Port is the HTTP listen port.
	Port string

	Logging logging.Config

	// ArcGIS provider settings. Credentials resolve in order: inline payload,
	// then credential file; an empty pair selects the placeholder gateway.
	ArcGISTokenURL        string
	ArcGISEnrichURL       string
	ArcGISReferer         string
	ArcGISCredentials     string
	ArcGISCredentialsFile string

	// Refresh pipeline settings.
	Stream   string
	Group    string
	Consumer string

	// SeedInterval is the wait between scheduled seed runs.
	SeedInterval time.Duration

	// SeedOnStart triggers one seed run immediately at startup.
	SeedOnStart bool

	// SeedLive routes seeding through the live provider instead of the
	// placeholder gateway.
	SeedLive bool

	// SeedMarkets are the priority markets kept warm; populated from the
	// YAML file named by SEED_MARKETS_FILE, otherwise nil so the seeder's
	// built-in defaults apply.
	SeedMarkets []market.Descriptor
}

type seedMarketsFile struct {
	Markets []struct {
		MarketID string   `yaml:"market_id"`
		City     string   `yaml:"city"`
		State    string   `yaml:"state"`
		Lat      *float64 `yaml:"lat"`
		Lon      *float64 `yaml:"lon"`
	} `yaml:"markets"`
}

// Load reads configuration from the environment, with a best-effort .env
// load first.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		RedisURL: getEnv("REDIS_URL", "localhost:6379"),
		Port:     getEnv("PORT", "8080"),
		Logging: logging.Config{
			Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
			Pretty: getBool("LOG_PRETTY", false),
		},
		ArcGISTokenURL:        os.Getenv("ARCGIS_TOKEN_URL"),
		ArcGISEnrichURL:       os.Getenv("ARCGIS_ENRICH_URL"),
		ArcGISReferer:         os.Getenv("ARCGIS_REFERER"),
		ArcGISCredentials:     os.Getenv("ARCGIS_CREDENTIALS"),
		ArcGISCredentialsFile: os.Getenv("ARCGIS_CREDENTIALS_FILE"),
		Stream:                getEnv("REFRESH_STREAM", queue.DefaultStream),
		Group:                 getEnv("REFRESH_GROUP", "refresh-workers"),
		Consumer:              getEnv("REFRESH_CONSUMER", "worker-1"),
		SeedInterval:          getDuration("SEED_INTERVAL", 24*time.Hour),
		SeedOnStart:           getBool("SEED_ON_START", false),
		SeedLive:              getBool("SEED_LIVE", false),
	}

	if path := os.Getenv("SEED_MARKETS_FILE"); path != "" {
		markets, err := loadSeedMarkets(path)
		if err != nil {
			return nil, err
		}
		cfg.SeedMarkets = markets
	}

	return cfg, nil
}

// HasCredentials reports whether a live-provider credential source is
// configured.
func (c *Config) HasCredentials() bool {
	return c.ArcGISCredentials != "" || c.ArcGISCredentialsFile != ""
}

func loadSeedMarkets(path string) ([]market.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed markets file: %w", err)
	}

	var file seedMarketsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse seed markets file %s: %w", path, err)
	}

	markets := make([]market.Descriptor, 0, len(file.Markets))
	for i, m := range file.Markets {
		d := market.Descriptor{
			MarketID: m.MarketID,
			City:     m.City,
			State:    m.State,
			Lat:      m.Lat,
			Lon:      m.Lon,
		}
		if _, err := d.ID(); err != nil {
			return nil, fmt.Errorf("seed market %d in %s: %w", i, path, err)
		}
		markets = append(markets, d)
	}
	return markets, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
