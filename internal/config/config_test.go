package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marketlens/market-enrich/pkg/logging"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.RedisURL != "localhost:6379" {
		t.Errorf("RedisURL = %q, want localhost:6379", cfg.RedisURL)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.Logging.Level != logging.LevelInfo {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Stream != "refresh:requests" {
		t.Errorf("Stream = %q, want refresh:requests", cfg.Stream)
	}
	if cfg.SeedInterval != 24*time.Hour {
		t.Errorf("SeedInterval = %v, want 24h", cfg.SeedInterval)
	}
	if cfg.SeedLive {
		t.Error("SeedLive should default to false")
	}
	if cfg.SeedMarkets != nil {
		t.Errorf("SeedMarkets = %v, want nil without a file", cfg.SeedMarkets)
	}
	if cfg.HasCredentials() {
		t.Error("HasCredentials() should be false without credential settings")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("REDIS_URL", "redis.internal:6380")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_PRETTY", "true")
	t.Setenv("SEED_INTERVAL", "6h")
	t.Setenv("SEED_LIVE", "true")
	t.Setenv("ARCGIS_CREDENTIALS", `{"username": "u", "password": "p"}`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.RedisURL != "redis.internal:6380" {
		t.Errorf("RedisURL = %q", cfg.RedisURL)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.Logging.Level != logging.LevelDebug || !cfg.Logging.Pretty {
		t.Errorf("Logging = %+v, want debug/pretty", cfg.Logging)
	}
	if cfg.SeedInterval != 6*time.Hour {
		t.Errorf("SeedInterval = %v, want 6h", cfg.SeedInterval)
	}
	if !cfg.SeedLive {
		t.Error("SeedLive should be true")
	}
	if !cfg.HasCredentials() {
		t.Error("HasCredentials() should be true with an inline payload")
	}
}

func TestLoad_SeedMarketsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markets.yaml")
	content := `markets:
  - market_id: new-york
  - city: Austin
    state: TX
  - market_id: denver_co
    lat: 39.7392
    lon: -104.9903
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write seed file: %v", err)
	}
	t.Setenv("SEED_MARKETS_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.SeedMarkets) != 3 {
		t.Fatalf("SeedMarkets = %d entries, want 3", len(cfg.SeedMarkets))
	}
	if cfg.SeedMarkets[0].MarketID != "new-york" {
		t.Errorf("first market = %q, want new-york", cfg.SeedMarkets[0].MarketID)
	}
	if id, _ := cfg.SeedMarkets[1].ID(); id != "austin_tx" {
		t.Errorf("second market id = %q, want austin_tx", id)
	}
	if !cfg.SeedMarkets[2].HasPoint() {
		t.Error("third market should carry coordinates")
	}
}

func TestLoad_SeedMarketsFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markets.yaml")
	if err := os.WriteFile(path, []byte("markets:\n  - city: Austin\n"), 0o644); err != nil {
		t.Fatalf("write seed file: %v", err)
	}
	t.Setenv("SEED_MARKETS_FILE", path)

	if _, err := Load(); err == nil {
		t.Error("Load() should reject a seed market without an identifier")
	}
}

func TestLoad_SeedMarketsFile_Missing(t *testing.T) {
	t.Setenv("SEED_MARKETS_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := Load(); err == nil {
		t.Error("Load() should fail when the seed markets file is missing")
	}
}

func TestGetBool_Invalid(t *testing.T) {
	t.Setenv("SEED_LIVE", "banana")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SeedLive {
		t.Error("unparseable boolean should fall back to the default")
	}
}
