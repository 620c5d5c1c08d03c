// Command catalog-ingest fetches categories and their contents for every
// market and writes them to the catalog store, once or on a cron schedule.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Sternrassler/catalog-api/pkg/config"
	"github.com/Sternrassler/catalog-api/pkg/ingest"
	"github.com/Sternrassler/catalog-api/pkg/logging"
	"github.com/Sternrassler/catalog-api/pkg/ratelimit"
	"github.com/Sternrassler/catalog-api/pkg/store/memstore"
	"github.com/Sternrassler/catalog-api/pkg/store/mongostore"
	"github.com/Sternrassler/catalog-api/pkg/upstream"
	"github.com/mileusna/crontab"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	once := flag.Bool("once", false, "run a single ingestion and exit, ignoring INGEST_SCHEDULE")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *once); err != nil {
		fmt.Fprintf(os.Stderr, "catalog-ingest: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, once bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Setup(logging.Config{
		Level:   logging.LogLevel(cfg.LogLevel),
		Pretty:  cfg.LogPretty,
		Service: "catalog-ingest",
		Output:  os.Stderr,
	})
	logger := logging.NewLogger("main")

	if err := cfg.ValidateIngest(); err != nil {
		logger.Error().Err(err).Msg("Invalid configuration")
		return err
	}
	logger.Info().Msgf("Configuration: %s", cfg)

	writer, closeWriter, err := openWriter(ctx, cfg, logging.NewLogger("store"))
	if err != nil {
		return err
	}
	defer closeWriter()

	var usage ratelimit.UsageStore
	if cfg.RateLimitUsageBackend == config.BackendRedis {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis at %s: %w", cfg.RedisAddr, err)
		}
		usage = ratelimit.NewRedisUsageStore(client)
	}

	r := &runner{cfg: cfg, writer: writer, usage: usage, logger: logger}

	if once || cfg.IngestSchedule == "" {
		_, err := r.runOnce(ctx)
		return err
	}

	if usage == nil {
		logger.Warn().Msg("Scheduled runs without RATELIMIT_USAGE_BACKEND=redis start every run with fresh monthly counts")
	}

	ctab := crontab.New()
	defer ctab.Shutdown()

	if err := ctab.AddJob(cfg.IngestSchedule, func() {
		if _, err := r.runOnce(ctx); err != nil {
			logger.Error().Err(err).Msg("Scheduled ingestion failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid INGEST_SCHEDULE %q: %w", cfg.IngestSchedule, err)
	}

	logger.Info().Str("schedule", cfg.IngestSchedule).Msg("Ingestion scheduled")
	<-ctx.Done()
	logger.Info().Msg("Shutting down")
	return nil
}

// runner performs one ingestion run at a time.
type runner struct {
	cfg    *config.Config
	writer ingest.Writer
	usage  ratelimit.UsageStore
	logger zerolog.Logger
	mu     sync.Mutex
}

// runOnce builds a fresh key rotator and upstream client and runs the job.
// A run that is still in progress when the next one fires is not overlapped.
func (r *runner) runOnce(ctx context.Context) (*ingest.Report, error) {
	if !r.mu.TryLock() {
		r.logger.Warn().Msg("Previous ingestion still running - skipping")
		return nil, nil
	}
	defer r.mu.Unlock()

	opts := []ratelimit.Option{ratelimit.WithLogger(logging.NewLogger("ratelimit"))}
	if r.usage != nil {
		opts = append(opts, ratelimit.WithUsageStore(r.usage))
	}

	rotator, err := ratelimit.NewRotator(r.cfg.Keys(), ratelimit.Config{
		MonthlyLimit:   r.cfg.RateLimitMonthly,
		PerMinuteLimit: r.cfg.RateLimitPerMinute,
		Window:         ratelimit.DefaultWindow,
		WaitSlack:      ratelimit.DefaultWaitSlack,
	}, opts...)
	if err != nil {
		return nil, err
	}
	if err := rotator.Restore(ctx); err != nil {
		return nil, err
	}

	client, err := upstream.New(upstreamConfig(r.cfg), rotator, logging.NewLogger("upstream"))
	if err != nil {
		return nil, err
	}
	defer client.Close()

	job := ingest.NewJob(client, r.writer, jobConfig(r.cfg), logging.NewLogger("ingest"))
	report, err := job.Run(ctx)
	if errors.Is(err, ratelimit.ErrQuotaExhausted) {
		r.logger.Error().Msg("All API keys exhausted for this month - partial catalog written")
	}
	return report, err
}

func upstreamConfig(cfg *config.Config) upstream.Config {
	uc := upstream.DefaultConfig(cfg.SpotifyClientID, cfg.SpotifyClientSecret)
	if cfg.SpotifyAuthURL != "" {
		uc.AuthURL = cfg.SpotifyAuthURL
	}
	if cfg.SpotifyAPIURL != "" {
		uc.APIURL = cfg.SpotifyAPIURL
	}
	if cfg.RapidAPIURL != "" {
		uc.ScraperURL = cfg.RapidAPIURL
	}
	if cfg.RapidAPIHost != "" {
		uc.ScraperHost = cfg.RapidAPIHost
	}
	return uc
}

func jobConfig(cfg *config.Config) ingest.Config {
	pool := ingest.DefaultPoolConfig()
	if cfg.IngestInterval > 0 {
		pool.Interval = cfg.IngestInterval
	}
	if cfg.IngestConcurrency > 0 {
		pool.Concurrency = cfg.IngestConcurrency
	}

	dump := cfg.IngestDumpPath
	if dump == "" && cfg.StoreBackend == config.BackendMemory {
		dump = cfg.DataFile
	}

	return ingest.Config{
		Markets:  cfg.Markets(),
		Pool:     pool,
		DumpPath: dump,
	}
}

// openWriter opens the store ingestion writes to. With the memory backend
// markets are kept in process and persisted through the JSON dump.
func openWriter(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (ingest.Writer, func(), error) {
	if cfg.StoreBackend == config.BackendMemory {
		return memstore.New(), func() {}, nil
	}

	store, err := mongostore.Connect(ctx, mongostore.Config{
		URI:        cfg.MongoURI,
		Database:   cfg.MongoDatabase,
		Collection: cfg.MongoCollection,
		Timeout:    cfg.MongoTimeout,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = store.Close(context.Background())
		return nil, nil, err
	}

	return store, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Warn().Err(err).Msg("Failed to disconnect from MongoDB")
		}
	}, nil
}
