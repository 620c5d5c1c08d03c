package config

import (
	"strings"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := fromEnv()
	if err != nil {
		t.Fatalf("fromEnv() error = %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.CacheTTL != 600*time.Second {
		t.Errorf("CacheTTL = %v, want 600s", cfg.CacheTTL)
	}
	if cfg.LookupTimeout != 30*time.Second {
		t.Errorf("LookupTimeout = %v, want 30s", cfg.LookupTimeout)
	}
	if cfg.MarketSectionsPattern != "radio|popular|today|latest" || cfg.MarketSectionsMax != 20 {
		t.Errorf("curated defaults = %q/%d", cfg.MarketSectionsPattern, cfg.MarketSectionsMax)
	}
	if cfg.RateLimitMonthly != 100 || cfg.RateLimitPerMinute != 15 {
		t.Errorf("rate limits = %d/%d, want 100/15", cfg.RateLimitMonthly, cfg.RateLimitPerMinute)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_BACKEND", "Memory")
	t.Setenv("CACHE_TTL", "2m")
	t.Setenv("LOG_PRETTY", "true")
	t.Setenv("RAPIDAPI_KEYS", " k1, k2 ,,k3")
	t.Setenv("INGEST_MARKETS", "us,gb")

	cfg, err := fromEnv()
	if err != nil {
		t.Fatalf("fromEnv() error = %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.StoreBackend != BackendMemory {
		t.Errorf("StoreBackend = %q, want memory", cfg.StoreBackend)
	}
	if cfg.CacheTTL != 2*time.Minute {
		t.Errorf("CacheTTL = %v", cfg.CacheTTL)
	}
	if !cfg.LogPretty {
		t.Error("LogPretty should be true")
	}
	if keys := cfg.Keys(); len(keys) != 3 || keys[1] != "k2" {
		t.Errorf("Keys() = %v", keys)
	}
	if markets := cfg.Markets(); len(markets) != 2 || markets[0] != "US" {
		t.Errorf("Markets() = %v", markets)
	}
}

func TestValidateAPI(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"mongo ok", func(c *Config) { c.MongoURI = "mongodb://localhost" }, ""},
		{"mongo without uri", func(c *Config) {}, "MONGO_URI"},
		{"memory ok", func(c *Config) { c.StoreBackend = BackendMemory }, ""},
		{"unknown store", func(c *Config) { c.StoreBackend = "sqlite" }, "STORE_BACKEND"},
		{"unknown cache", func(c *Config) { c.StoreBackend = BackendMemory; c.CacheBackend = "disk" }, "CACHE_BACKEND"},
		{"zero ttl", func(c *Config) { c.StoreBackend = BackendMemory; c.CacheTTL = 0 }, "CACHE_TTL"},
		{"bad section pattern", func(c *Config) { c.StoreBackend = BackendMemory; c.MarketSectionsPattern = "radio|(" }, "MARKET_SECTIONS_PATTERN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := fromEnv()
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(cfg)

			err = cfg.ValidateAPI()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateAPI() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateAPI() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestValidateIngest(t *testing.T) {
	cfg, err := fromEnv()
	if err != nil {
		t.Fatal(err)
	}
	cfg.StoreBackend = BackendMemory

	err = cfg.ValidateIngest()
	if err == nil {
		t.Fatal("ValidateIngest() should fail without credentials")
	}
	for _, want := range []string{"SPOTIFY_CLIENT_ID", "RAPIDAPI_KEYS"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %s", err, want)
		}
	}

	cfg.SpotifyClientID, cfg.SpotifyClientSecret, cfg.RapidAPIKeys = "id", "secret", "k1"
	if err := cfg.ValidateIngest(); err != nil {
		t.Errorf("ValidateIngest() error = %v", err)
	}

	cfg.RateLimitUsageBackend = "etcd"
	if err := cfg.ValidateIngest(); err == nil {
		t.Error("ValidateIngest() should reject unknown usage backend")
	}
}

func TestString_MasksSecrets(t *testing.T) {
	cfg := &Config{
		MongoURI:            "mongodb://user:hunter2@db",
		RedisPassword:       "redispw",
		SpotifyClientSecret: "topsecret",
		RapidAPIKeys:        "k1,k2",
	}

	out := cfg.String()
	for _, secret := range []string{"hunter2", "redispw", "topsecret", "k1"} {
		if strings.Contains(out, secret) {
			t.Errorf("String() leaks %q", secret)
		}
	}
	if !strings.Contains(out, "RapidAPIKeys: 2 configured") {
		t.Errorf("String() = %s", out)
	}
}
