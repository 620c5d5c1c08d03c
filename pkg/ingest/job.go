// Package ingest pulls the browse catalog of each market from upstream,
// derives market sections and writes one document per market.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Sternrassler/catalog-api/pkg/catalog"
	"github.com/Sternrassler/catalog-api/pkg/ratelimit"
	"github.com/Sternrassler/catalog-api/pkg/upstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// DefaultMarkets are the markets ingested when none are configured.
var DefaultMarkets = []string{
	"EG", "SA", "AE", "QA",
	"US", "CA", "MX", "GB",
	"IT", "DE", "FR", "ES",
	"PT", "AR", "BR", "AU",
	"JP", "KR",
}

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_ingest_runs_total",
		Help: "Ingestion runs by result (ok, partial, failed)",
	}, []string{"result"})

	categoriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_ingest_categories_total",
		Help: "Category detail fetches by result (ok, failed)",
	}, []string{"result"})

	lastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_ingest_last_success_timestamp_seconds",
		Help: "Unix time of the last ingestion run that completed without aborting",
	})
)

// Source is the upstream catalog.
type Source interface {
	DetailFetcher
	Categories(ctx context.Context, market string) ([]upstream.BrowseCategory, error)
}

// Writer persists market documents.
type Writer interface {
	UpsertMarket(ctx context.Context, m catalog.Market) error
}

// Config holds job settings.
type Config struct {
	// Markets to ingest (default: DefaultMarkets)
	Markets []string

	// Pool paces category detail fetches
	Pool PoolConfig

	// DumpPath, when set, receives all ingested markets as a JSON array
	DumpPath string
}

// Report summarizes one run.
type Report struct {
	Markets        int           `json:"markets"`
	FailedMarkets  int           `json:"failedMarkets"`
	Categories     int           `json:"categories"`
	Sections       int           `json:"sections"`
	Duration       time.Duration `json:"duration"`
	QuotaExhausted bool          `json:"quotaExhausted"`
}

// Job runs ingestion.
type Job struct {
	source Source
	writer Writer
	pool   *Pool
	config Config
	logger zerolog.Logger
	now    func() time.Time
}

// NewJob creates a Job.
func NewJob(source Source, writer Writer, cfg Config, logger zerolog.Logger) *Job {
	if len(cfg.Markets) == 0 {
		cfg.Markets = DefaultMarkets
	}
	return &Job{
		source: source,
		writer: writer,
		pool:   NewPool(source, cfg.Pool, logger),
		config: cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run ingests every configured market. A market whose category list
// cannot be fetched or written is skipped. Running out of API keys aborts
// the run after writing the markets completed so far, and the error wraps
// ratelimit.ErrQuotaExhausted.
func (j *Job) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{}
	var ingested []catalog.Market
	var runErr error

	for _, market := range j.config.Markets {
		m, err := j.ingestMarket(ctx, market)
		if err != nil {
			if quotaError(err) {
				report.QuotaExhausted = true
				runErr = fmt.Errorf("ingest %s: %w", market, err)
				break
			}
			if ctx.Err() != nil {
				runErr = ctx.Err()
				break
			}
			report.FailedMarkets++
			j.logger.Error().Err(err).Str("market", market).Msg("Market ingestion failed - skipping")
			continue
		}

		ingested = append(ingested, *m)
		report.Markets++
		report.Categories += len(m.Categories)
		report.Sections += len(m.Sections)
	}

	if j.config.DumpPath != "" && len(ingested) > 0 {
		if err := writeDump(j.config.DumpPath, ingested); err != nil {
			j.logger.Error().Err(err).Str("path", j.config.DumpPath).Msg("Failed to write catalog dump")
			if runErr == nil {
				runErr = err
			}
		}
	}

	report.Duration = time.Since(start)

	switch {
	case runErr != nil:
		runsTotal.WithLabelValues("failed").Inc()
	case report.FailedMarkets > 0:
		runsTotal.WithLabelValues("partial").Inc()
		lastSuccess.SetToCurrentTime()
	default:
		runsTotal.WithLabelValues("ok").Inc()
		lastSuccess.SetToCurrentTime()
	}

	event := j.logger.Info()
	if runErr != nil {
		event = j.logger.Error().Err(runErr)
	}
	event.
		Int("markets", report.Markets).
		Int("failed_markets", report.FailedMarkets).
		Int("categories", report.Categories).
		Int("sections", report.Sections).
		Bool("quota_exhausted", report.QuotaExhausted).
		Dur("duration", report.Duration).
		Msg("Ingestion run finished")

	return report, runErr
}

func (j *Job) ingestMarket(ctx context.Context, market string) (*catalog.Market, error) {
	j.logger.Info().Str("market", market).Msg("Fetching categories")

	browse, err := j.source.Categories(ctx, market)
	if err != nil {
		return nil, err
	}

	categories, err := j.pool.FetchAll(ctx, market, browse)
	if err != nil {
		// keep what was fetched before the keys ran out
		if quotaError(err) && len(categories) > 0 {
			if _, werr := j.write(ctx, market, categories); werr != nil {
				j.logger.Error().Err(werr).Str("market", market).Msg("Failed to write partial market")
			}
		}
		return nil, err
	}

	return j.write(ctx, market, categories)
}

func (j *Job) write(ctx context.Context, market string, categories []catalog.Category) (*catalog.Market, error) {
	m := catalog.Market{
		Code:       market,
		Categories: categories,
		Sections:   DeriveSections(market, categories),
		UpdatedAt:  j.now(),
	}
	if err := j.writer.UpsertMarket(ctx, m); err != nil {
		return nil, fmt.Errorf("write market %s: %w", market, err)
	}

	j.logger.Info().
		Str("market", market).
		Int("categories", len(m.Categories)).
		Int("sections", len(m.Sections)).
		Msg("Market saved")
	return &m, nil
}

func writeDump(path string, markets []catalog.Market) error {
	data, err := json.MarshalIndent(markets, "", "  ")
	if err != nil {
		return fmt.Errorf("encode catalog dump: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write catalog dump: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace catalog dump: %w", err)
	}
	return nil
}

func quotaError(err error) bool {
	return errors.Is(err, ratelimit.ErrQuotaExhausted) || errors.Is(err, ratelimit.ErrNoKeys)
}
