// Package config loads process settings for the catalog API and the
// ingestion job from environment variables, with an optional local .env.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Backends.
const (
	BackendMemory = "memory"
	BackendMongo  = "mongo"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// Config holds the settings of both binaries.
type Config struct {
	// HTTP server
	Port            string        `mapstructure:"PORT"`
	CORSOrigin      string        `mapstructure:"CORS_ALLOWED_ORIGIN"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`

	// Logging
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	// Catalog store
	StoreBackend    string        `mapstructure:"STORE_BACKEND"`
	DataFile        string        `mapstructure:"DATA_FILE"`
	MongoURI        string        `mapstructure:"MONGO_URI"`
	MongoDatabase   string        `mapstructure:"MONGO_DATABASE"`
	MongoCollection string        `mapstructure:"MONGO_COLLECTION"`
	MongoTimeout    time.Duration `mapstructure:"MONGO_TIMEOUT"`

	// Cache
	CacheBackend       string        `mapstructure:"CACHE_BACKEND"`
	CacheTTL           time.Duration `mapstructure:"CACHE_TTL"`
	CacheSweepInterval time.Duration `mapstructure:"CACHE_SWEEP_INTERVAL"`
	RedisAddr          string        `mapstructure:"REDIS_ADDR"`
	RedisPassword      string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB            int           `mapstructure:"REDIS_DB"`

	// Curated market sections
	MarketSectionsPattern string `mapstructure:"MARKET_SECTIONS_PATTERN"`
	MarketSectionsMax     int    `mapstructure:"MARKET_SECTIONS_MAX"`

	// Lookup subprocess
	LookupInterpreter string        `mapstructure:"LOOKUP_INTERPRETER"`
	LookupScript      string        `mapstructure:"LOOKUP_SCRIPT"`
	LookupTimeout     time.Duration `mapstructure:"LOOKUP_TIMEOUT"`
	LookupConcurrency int           `mapstructure:"LOOKUP_CONCURRENCY"`

	// Ingestion
	SpotifyClientID       string        `mapstructure:"SPOTIFY_CLIENT_ID"`
	SpotifyClientSecret   string        `mapstructure:"SPOTIFY_CLIENT_SECRET"`
	SpotifyAuthURL        string        `mapstructure:"SPOTIFY_AUTH_URL"`
	SpotifyAPIURL         string        `mapstructure:"SPOTIFY_API_URL"`
	RapidAPIURL           string        `mapstructure:"RAPIDAPI_URL"`
	RapidAPIHost          string        `mapstructure:"RAPIDAPI_HOST"`
	RapidAPIKeys          string        `mapstructure:"RAPIDAPI_KEYS"`
	RateLimitMonthly      int           `mapstructure:"RATELIMIT_MONTHLY_LIMIT"`
	RateLimitPerMinute    int           `mapstructure:"RATELIMIT_PER_MINUTE_LIMIT"`
	RateLimitUsageBackend string        `mapstructure:"RATELIMIT_USAGE_BACKEND"`
	IngestMarkets         string        `mapstructure:"INGEST_MARKETS"`
	IngestInterval        time.Duration `mapstructure:"INGEST_INTERVAL"`
	IngestConcurrency     int           `mapstructure:"INGEST_CONCURRENCY"`
	IngestSchedule        string        `mapstructure:"INGEST_SCHEDULE"`
	IngestDumpPath        string        `mapstructure:"INGEST_DUMP_PATH"`
}

var defaults = map[string]any{
	"PORT":                       "8080",
	"CORS_ALLOWED_ORIGIN":        "*",
	"SHUTDOWN_TIMEOUT":           "15s",
	"LOG_LEVEL":                  "info",
	"LOG_PRETTY":                 false,
	"STORE_BACKEND":              BackendMongo,
	"DATA_FILE":                  "data.json",
	"MONGO_URI":                  "",
	"MONGO_DATABASE":             "catalog",
	"MONGO_COLLECTION":           "markets",
	"MONGO_TIMEOUT":              "10s",
	"CACHE_BACKEND":              BackendMemory,
	"CACHE_TTL":                  "600s",
	"CACHE_SWEEP_INTERVAL":       "5m",
	"REDIS_ADDR":                 "localhost:6379",
	"REDIS_PASSWORD":             "",
	"REDIS_DB":                   0,
	"MARKET_SECTIONS_PATTERN":    "radio|popular|today|latest",
	"MARKET_SECTIONS_MAX":        20,
	"LOOKUP_INTERPRETER":         "python",
	"LOOKUP_SCRIPT":              "python/my_spotify_script.py",
	"LOOKUP_TIMEOUT":             "30s",
	"LOOKUP_CONCURRENCY":         4,
	"SPOTIFY_CLIENT_ID":          "",
	"SPOTIFY_CLIENT_SECRET":      "",
	"SPOTIFY_AUTH_URL":           "https://accounts.spotify.com",
	"SPOTIFY_API_URL":            "https://api.spotify.com",
	"RAPIDAPI_URL":               "https://spotify-scraper.p.rapidapi.com",
	"RAPIDAPI_HOST":              "spotify-scraper.p.rapidapi.com",
	"RAPIDAPI_KEYS":              "",
	"RATELIMIT_MONTHLY_LIMIT":    100,
	"RATELIMIT_PER_MINUTE_LIMIT": 15,
	"RATELIMIT_USAGE_BACKEND":    BackendNone,
	"INGEST_MARKETS":             "",
	"INGEST_INTERVAL":            "1s",
	"INGEST_CONCURRENCY":         1,
	"INGEST_SCHEDULE":            "",
	"INGEST_DUMP_PATH":           "",
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}
	return fromEnv()
}

func fromEnv() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	cfg.CacheBackend = strings.ToLower(strings.TrimSpace(cfg.CacheBackend))
	cfg.RateLimitUsageBackend = strings.ToLower(strings.TrimSpace(cfg.RateLimitUsageBackend))
	return &cfg, nil
}

// Keys returns the RapidAPI keys, comma separated in RAPIDAPI_KEYS.
func (c *Config) Keys() []string {
	return splitList(c.RapidAPIKeys)
}

// Markets returns the markets to ingest; empty means the default list.
func (c *Config) Markets() []string {
	markets := splitList(c.IngestMarkets)
	for i, m := range markets {
		markets[i] = strings.ToUpper(m)
	}
	return markets
}

// ValidateAPI checks the settings the API server needs.
func (c *Config) ValidateAPI() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	errs = append(errs, c.validateStore()...)

	switch c.CacheBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for CACHE_BACKEND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("CACHE_BACKEND must be memory or redis (got %q)", c.CacheBackend))
	}

	if c.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("CACHE_TTL must be positive (got %s)", c.CacheTTL))
	}
	if c.LookupTimeout <= 0 {
		errs = append(errs, fmt.Errorf("LOOKUP_TIMEOUT must be positive (got %s)", c.LookupTimeout))
	}
	if _, err := regexp.Compile("(?i)" + c.MarketSectionsPattern); err != nil {
		errs = append(errs, fmt.Errorf("MARKET_SECTIONS_PATTERN is invalid: %w", err))
	}
	return errors.Join(errs...)
}

// ValidateIngest checks the settings the ingestion job needs.
func (c *Config) ValidateIngest() error {
	var errs []error
	if c.SpotifyClientID == "" || c.SpotifyClientSecret == "" {
		errs = append(errs, errors.New("SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET are required"))
	}
	if len(c.Keys()) == 0 {
		errs = append(errs, errors.New("RAPIDAPI_KEYS is required"))
	}
	if c.RateLimitMonthly < 1 || c.RateLimitPerMinute < 1 {
		errs = append(errs, errors.New("rate limits must be >= 1"))
	}
	errs = append(errs, c.validateStore()...)

	switch c.RateLimitUsageBackend {
	case BackendNone, "":
	case BackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for RATELIMIT_USAGE_BACKEND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("RATELIMIT_USAGE_BACKEND must be none or redis (got %q)", c.RateLimitUsageBackend))
	}
	return errors.Join(errs...)
}

func (c *Config) validateStore() []error {
	switch c.StoreBackend {
	case BackendMongo:
		if c.MongoURI == "" {
			return []error{errors.New("MONGO_URI is required for STORE_BACKEND=mongo")}
		}
	case BackendMemory:
		if c.DataFile == "" {
			return []error{errors.New("DATA_FILE is required for STORE_BACKEND=memory")}
		}
	default:
		return []error{fmt.Errorf("STORE_BACKEND must be mongo or memory (got %q)", c.StoreBackend)}
	}
	return nil
}

// String implements fmt.Stringer with secrets masked.
func (c *Config) String() string {
	var sb strings.Builder
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "  Port: %s\n", c.Port)
	fmt.Fprintf(&sb, "  StoreBackend: %s\n", c.StoreBackend)
	fmt.Fprintf(&sb, "  MongoURI: %s\n", mask(c.MongoURI))
	fmt.Fprintf(&sb, "  MongoDatabase: %s\n", c.MongoDatabase)
	fmt.Fprintf(&sb, "  DataFile: %s\n", c.DataFile)
	fmt.Fprintf(&sb, "  CacheBackend: %s\n", c.CacheBackend)
	fmt.Fprintf(&sb, "  CacheTTL: %s\n", c.CacheTTL)
	fmt.Fprintf(&sb, "  RedisAddr: %s\n", c.RedisAddr)
	fmt.Fprintf(&sb, "  RedisPassword: %s\n", mask(c.RedisPassword))
	fmt.Fprintf(&sb, "  LookupScript: %s\n", c.LookupScript)
	fmt.Fprintf(&sb, "  LookupTimeout: %s\n", c.LookupTimeout)
	fmt.Fprintf(&sb, "  SpotifyClientID: %s\n", c.SpotifyClientID)
	fmt.Fprintf(&sb, "  SpotifyClientSecret: %s\n", mask(c.SpotifyClientSecret))
	fmt.Fprintf(&sb, "  RapidAPIKeys: %d configured\n", len(c.Keys()))
	fmt.Fprintf(&sb, "  IngestSchedule: %s\n", c.IngestSchedule)
	return sb.String()
}

func mask(secret string) string {
	if secret == "" {
		return "(empty)"
	}
	return "********"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
