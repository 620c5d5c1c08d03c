package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/catalog-api/pkg/cache"
	"github.com/Sternrassler/catalog-api/pkg/pagination"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Cache namespaces of the paginated endpoints.
const (
	NamespaceCategory           = "category"
	NamespaceSectionsByCategory = "sections-by-category"
	NamespaceMarketSections     = "market-sections"
	NamespaceSection            = "section"
)

// Default page sizes per endpoint.
const (
	DefaultCategoryLimit           = 5
	DefaultSectionsByCategoryLimit = 5
	DefaultMarketSectionsLimit     = 3
	DefaultSectionLimit            = 10
	DefaultRandomLimit             = 5
)

// Curated market section defaults.
const (
	DefaultCuratedPattern = "radio|popular|today|latest"
	DefaultCuratedMax     = 20
)

// Config holds Service settings.
type Config struct {
	// TTL of cached results (default: cache.DefaultTTL)
	TTL time.Duration

	// CuratedPattern selects market sections by title, case-insensitive
	CuratedPattern string

	// CuratedMax caps the curated list before pagination
	CuratedMax int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		TTL:            cache.DefaultTTL,
		CuratedPattern: DefaultCuratedPattern,
		CuratedMax:     DefaultCuratedMax,
	}
}

// Service answers catalog queries, caching the paginated ones.
type Service struct {
	store  Store
	cache  cache.Store
	cfg    Config
	logger zerolog.Logger
	group  singleflight.Group
}

// NewService creates a Service.
func NewService(store Store, cacheStore cache.Store, cfg Config, logger zerolog.Logger) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = cache.DefaultTTL
	}
	if cfg.CuratedPattern == "" {
		cfg.CuratedPattern = DefaultCuratedPattern
	}
	if cfg.CuratedMax < 1 {
		cfg.CuratedMax = DefaultCuratedMax
	}

	return &Service{
		store:  store,
		cache:  cacheStore,
		cfg:    cfg,
		logger: logger,
	}
}

// Markets lists every market code.
func (s *Service) Markets(ctx context.Context) ([]string, error) {
	markets, err := s.store.Markets(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list markets")
		return nil, err
	}
	return markets, nil
}

// Categories lists the categories of market.
func (s *Service) Categories(ctx context.Context, market string) ([]CategorySummary, error) {
	categories, err := s.store.Categories(ctx, market)
	if err != nil {
		s.logFailure(err, "Failed to list categories", market, "")
		return nil, err
	}
	return categories, nil
}

// Playlists lists the playlists nested in category id of market.
func (s *Service) Playlists(ctx context.Context, market, id string) ([]PlaylistSummary, error) {
	category, err := s.store.Category(ctx, market, id)
	if err != nil {
		s.logFailure(err, "Failed to load category playlists", market, id)
		return nil, err
	}
	return ExtractPlaylists(category), nil
}

// RandomSections draws up to size sections of market. Never cached.
func (s *Service) RandomSections(ctx context.Context, market string, size int) ([]Section, error) {
	if size < 1 {
		size = DefaultRandomLimit
	}
	sections, err := s.store.RandomSections(ctx, market, size)
	if err != nil {
		s.logFailure(err, "Failed to sample sections", market, "")
		return nil, err
	}
	return sections, nil
}

// CategoryDetails returns the window w over the items of category id.
// The boolean result reports whether the value came from the cache.
func (s *Service) CategoryDetails(ctx context.Context, market, id string, w pagination.Window) (*CategoryDetails, bool, error) {
	key := windowKey(NamespaceCategory, market, id, w)

	return cached(ctx, s, key, func(ctx context.Context) (*CategoryDetails, error) {
		category, err := s.store.Category(ctx, market, id)
		if err != nil {
			return nil, err
		}

		total := len(category.Contents.Items)
		return &CategoryDetails{
			ID:         category.ID,
			Name:       category.Name,
			Image:      category.Image,
			Page:       w.Page,
			Limit:      w.Limit,
			Total:      total,
			TotalPages: pagination.TotalPages(total, w.Limit),
			TotalCount: category.Contents.TotalCount,
			Items:      pagination.Slice(category.Contents.Items, w),
		}, nil
	})
}

// SectionsByCategory returns the window w over the sections of category id.
func (s *Service) SectionsByCategory(ctx context.Context, market, id string, w pagination.Window) (*Paged[Section], bool, error) {
	key := windowKey(NamespaceSectionsByCategory, market, id, w)

	return cached(ctx, s, key, func(ctx context.Context) (*Paged[Section], error) {
		sections, total, err := s.store.SectionsByCategory(ctx, market, id, w)
		if err != nil {
			return nil, err
		}
		return newPaged(sections, total, w), nil
	})
}

// MarketSections returns the window w over the curated sections of market.
func (s *Service) MarketSections(ctx context.Context, market string, w pagination.Window) (*Paged[Section], bool, error) {
	key := cache.NewKey(NamespaceMarketSections).
		With("market", market).
		With("pattern", s.cfg.CuratedPattern).
		WithInt("max", s.cfg.CuratedMax).
		WithInt("page", w.Page).
		WithInt("limit", w.Limit)

	return cached(ctx, s, key, func(ctx context.Context) (*Paged[Section], error) {
		sections, total, err := s.store.CuratedSections(ctx, market, s.cfg.CuratedPattern, s.cfg.CuratedMax, w)
		if err != nil {
			return nil, err
		}
		return newPaged(sections, total, w), nil
	})
}

// SectionDetails returns the window w over the items of section id.
func (s *Service) SectionDetails(ctx context.Context, market, id string, w pagination.Window) (*SectionDetails, bool, error) {
	key := windowKey(NamespaceSection, market, id, w)

	return cached(ctx, s, key, func(ctx context.Context) (*SectionDetails, error) {
		section, total, err := s.store.SectionWindow(ctx, market, id, w)
		if err != nil {
			return nil, err
		}

		items := section.Contents.Items
		if items == nil {
			items = []Item{}
		}
		return &SectionDetails{
			ID:         section.ID,
			Title:      section.Title,
			CategoryID: section.CategoryID,
			Page:       w.Page,
			Limit:      w.Limit,
			Total:      total,
			TotalPages: pagination.TotalPages(total, w.Limit),
			TotalCount: section.Contents.TotalCount,
			Items:      items,
		}, nil
	})
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func windowKey(namespace, market, id string, w pagination.Window) cache.Key {
	return cache.NewKey(namespace).
		With("market", market).
		With("id", id).
		WithInt("page", w.Page).
		WithInt("limit", w.Limit)
}

func newPaged[T any](data []T, total int, w pagination.Window) *Paged[T] {
	if data == nil {
		data = []T{}
	}
	return &Paged[T]{
		Page:       w.Page,
		Limit:      w.Limit,
		Total:      total,
		TotalPages: pagination.TotalPages(total, w.Limit),
		Data:       data,
	}
}

// cached returns the value stored under key, or computes it with load and
// stores it. Concurrent misses on the same key share one load.
// Cache failures are logged and never fail the request.
func cached[T any](ctx context.Context, s *Service, key cache.Key, load func(context.Context) (T, error)) (T, bool, error) {
	var zero T
	cacheKey := key.String()

	raw, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		var v T
		decodeErr := json.Unmarshal(raw, &v)
		if decodeErr == nil {
			s.logger.Debug().Str("cache_key", cacheKey).Msg("Cache hit")
			return v, true, nil
		}
		s.logger.Warn().Err(decodeErr).Str("cache_key", cacheKey).Msg("Discarding undecodable cache entry")
		_ = s.cache.Delete(ctx, key)
	case errors.Is(err, cache.ErrCacheMiss):
		s.logger.Debug().Str("cache_key", cacheKey).Msg("Cache miss")
	default:
		s.logger.Warn().Err(err).Str("cache_key", cacheKey).Msg("Cache read failed - loading from store")
	}

	// The shared load outlives any single caller; each caller still
	// gives up when its own context ends.
	loadCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(cacheKey, func() (any, error) {
		v, err := load(loadCtx)
		if err != nil {
			return nil, err
		}

		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s result: %w", key.Namespace, err)
		}
		if err := s.cache.Set(loadCtx, key, encoded, s.cfg.TTL); err != nil {
			s.logger.Warn().Err(err).Str("cache_key", cacheKey).Msg("Cache write failed")
		}
		return v, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
	if res.Err != nil {
		s.logFailure(res.Err, "Failed to load "+key.Namespace, key.Params["market"], key.Params["id"])
		return zero, false, res.Err
	}

	if res.Shared {
		s.logger.Debug().Str("cache_key", cacheKey).Msg("Shared in-flight load")
	}
	return res.Val.(T), false, nil
}

func (s *Service) logFailure(err error, msg, market, id string) {
	event := s.logger.Error()
	if errors.Is(err, ErrNotFound) {
		event = s.logger.Debug()
	}
	event.Err(err).Str("market", market).Str("id", id).Msg(msg)
}
