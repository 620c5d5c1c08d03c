package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sternrassler/catalog-api/internal/testutil"
	"github.com/Sternrassler/catalog-api/pkg/config"
	"github.com/Sternrassler/catalog-api/pkg/ratelimit"
	"github.com/Sternrassler/catalog-api/pkg/store/memstore"
	"github.com/rs/zerolog"
)

func testConfig(mockURL string) *config.Config {
	return &config.Config{
		StoreBackend:        config.BackendMemory,
		SpotifyClientID:     "id",
		SpotifyClientSecret: "secret",
		SpotifyAuthURL:      mockURL,
		SpotifyAPIURL:       mockURL,
		RapidAPIURL:         mockURL,
		RapidAPIKeys:        "k1,k2",
		RateLimitMonthly:    100,
		RateLimitPerMinute:  15,
		IngestMarkets:       "us,gb",
		IngestInterval:      time.Millisecond,
	}
}

func TestJobConfig(t *testing.T) {
	cfg := testConfig("")
	cfg.DataFile = "data.json"
	cfg.IngestConcurrency = 3

	jc := jobConfig(cfg)
	if jc.DumpPath != "data.json" {
		t.Errorf("DumpPath = %q, want the memory backend data file", jc.DumpPath)
	}
	if jc.Pool.Concurrency != 3 || jc.Pool.Interval != time.Millisecond {
		t.Errorf("Pool = %+v", jc.Pool)
	}
	if len(jc.Markets) != 2 || jc.Markets[0] != "US" {
		t.Errorf("Markets = %v", jc.Markets)
	}

	cfg.StoreBackend = config.BackendMongo
	if jobConfig(cfg).DumpPath != "" {
		t.Error("mongo backend should not dump unless INGEST_DUMP_PATH is set")
	}
}

func TestUpstreamConfig(t *testing.T) {
	uc := upstreamConfig(&config.Config{SpotifyClientID: "id", RapidAPIHost: "scraper.test"})
	if uc.AuthURL != "https://accounts.spotify.com" || uc.ScraperHost != "scraper.test" || uc.ClientID != "id" {
		t.Errorf("upstreamConfig() = %+v", uc)
	}
}

func TestRunner_RunOnce(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()

	cfg := testConfig(mock.URL())
	cfg.DataFile = filepath.Join(t.TempDir(), "data.json")

	writer := memstore.New()
	r := &runner{cfg: cfg, writer: writer, logger: zerolog.Nop()}

	report, err := r.runOnce(context.Background())
	if err != nil {
		t.Fatalf("runOnce() error = %v", err)
	}
	if report.Markets != 2 || report.Categories != 4 {
		t.Errorf("report = %+v", report)
	}

	dumped, err := memstore.Load(cfg.DataFile)
	if err != nil {
		t.Fatalf("Load(dump) error = %v", err)
	}
	if cats, err := dumped.Categories(context.Background(), "GB"); err != nil || len(cats) != 2 {
		t.Errorf("dumped GB categories = %v, %v", cats, err)
	}
}

// exhaustedUsage reports every key as used up.
type exhaustedUsage struct{}

func (exhaustedUsage) MonthlyCount(context.Context, string, time.Time) (int, error) {
	return 1000, nil
}

func (exhaustedUsage) Increment(context.Context, string, time.Time) error {
	return nil
}

func TestRunner_RunOnceQuotaExhausted(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()

	r := &runner{cfg: testConfig(mock.URL()), writer: memstore.New(), usage: exhaustedUsage{}, logger: zerolog.Nop()}

	_, err := r.runOnce(context.Background())
	if !errors.Is(err, ratelimit.ErrQuotaExhausted) {
		t.Errorf("runOnce() error = %v, want ErrQuotaExhausted", err)
	}
}

func TestRunner_NoOverlap(t *testing.T) {
	r := &runner{cfg: testConfig(""), writer: memstore.New(), logger: zerolog.Nop()}
	r.mu.Lock()
	defer r.mu.Unlock()

	report, err := r.runOnce(context.Background())
	if report != nil || err != nil {
		t.Errorf("runOnce() during a run = %v, %v, want skip", report, err)
	}
}
