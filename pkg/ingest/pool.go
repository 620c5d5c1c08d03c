package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/catalog-api/pkg/catalog"
	"github.com/Sternrassler/catalog-api/pkg/upstream"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DetailFetcher fetches the contents of one category.
type DetailFetcher interface {
	GenreContents(ctx context.Context, genreID string) (*upstream.GenreContents, error)
}

// PoolConfig holds detail fetcher pool configuration.
type PoolConfig struct {
	// Concurrency is the number of parallel workers
	Concurrency int

	// Interval spaces consecutive requests across all workers
	Interval time.Duration

	// Timeout per category fetch
	Timeout time.Duration
}

// DefaultPoolConfig returns the pacing of the scraper plan: one request
// per second, one worker.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Concurrency: 1,
		Interval:    time.Second,
		Timeout:     30 * time.Second,
	}
}

// detailResult is the outcome of one category fetch.
type detailResult struct {
	index    int
	category catalog.Category
	err      error
}

// Pool fetches category details with a bounded worker pool.
type Pool struct {
	fetcher DetailFetcher
	limiter *rate.Limiter
	config  PoolConfig
	logger  zerolog.Logger
}

// NewPool creates a Pool.
func NewPool(fetcher DetailFetcher, config PoolConfig, logger zerolog.Logger) *Pool {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	limit := rate.Inf
	if config.Interval > 0 {
		limit = rate.Every(config.Interval)
	}

	return &Pool{
		fetcher: fetcher,
		limiter: rate.NewLimiter(limit, 1),
		config:  config,
		logger:  logger,
	}
}

// FetchAll fetches the contents of every category of market, keeping the
// input order. Categories that fail are logged and left out; an exhausted
// key pool stops all workers and is returned with the categories fetched
// so far.
func (p *Pool) FetchAll(ctx context.Context, market string, browse []upstream.BrowseCategory) ([]catalog.Category, error) {
	start := time.Now()
	if len(browse) == 0 {
		return []catalog.Category{}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan int, len(browse))
	for i := range browse {
		queue <- i
	}
	close(queue)

	results := make(chan detailResult, len(browse))

	var wg sync.WaitGroup
	for i := 0; i < p.config.Concurrency; i++ {
		wg.Add(1)
		go p.worker(ctx, market, browse, queue, results, &wg, i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	fetched := make([]*catalog.Category, len(browse))
	var fatal error
	failures := 0

	for res := range results {
		if res.err != nil {
			if quotaError(res.err) {
				if fatal == nil {
					fatal = res.err
					cancel()
				}
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			failures++
			categoriesTotal.WithLabelValues("failed").Inc()
			p.logger.Warn().
				Err(res.err).
				Str("market", market).
				Str("category", browse[res.index].ID).
				Msg("Category fetch failed - skipping")
			continue
		}

		c := res.category
		fetched[res.index] = &c
		categoriesTotal.WithLabelValues("ok").Inc()
	}

	out := make([]catalog.Category, 0, len(browse))
	for _, c := range fetched {
		if c != nil {
			out = append(out, *c)
		}
	}

	p.logger.Info().
		Str("market", market).
		Int("fetched", len(out)).
		Int("failed", failures).
		Int("total", len(browse)).
		Dur("duration", time.Since(start)).
		Msg("Category fetch complete")

	if fatal != nil {
		return out, fatal
	}
	// workers stop early when the context ends or the limiter cannot wait
	if len(out)+failures < len(browse) {
		err := ctx.Err()
		if err == nil {
			err = context.DeadlineExceeded
		}
		return out, fmt.Errorf("fetch categories for %s: %w", market, err)
	}
	return out, nil
}

// worker processes category indexes from the queue.
func (p *Pool) worker(ctx context.Context, market string, browse []upstream.BrowseCategory, queue <-chan int, results chan<- detailResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for index := range queue {
		if err := p.limiter.Wait(ctx); err != nil {
			p.logger.Debug().
				Int("worker_id", workerID).
				Int("processed", processed).
				Msg("Worker stopping (context cancelled)")
			return
		}

		bc := browse[index]
		fetchCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		details, err := p.fetcher.GenreContents(fetchCtx, bc.ID)
		cancel()

		res := detailResult{index: index, err: err}
		if err == nil {
			res.category = catalog.Category{
				ID:       bc.ID,
				Name:     bc.Name,
				Image:    bc.Image(),
				Contents: details.Contents,
			}
			if res.category.Contents.Items == nil {
				res.category.Contents.Items = []catalog.Item{}
			}
			p.logger.Debug().
				Str("market", market).
				Str("category", bc.ID).
				Int("items", len(details.Contents.Items)).
				Msg("Category fetched")
		}

		results <- res
		processed++
	}

	if processed > 0 {
		p.logger.Debug().
			Int("worker_id", workerID).
			Int("processed", processed).
			Msg("Worker completed")
	}
}
