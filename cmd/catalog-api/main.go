// Command catalog-api serves the catalog read API and the lookup endpoints.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/catalog-api/pkg/cache"
	"github.com/Sternrassler/catalog-api/pkg/catalog"
	"github.com/Sternrassler/catalog-api/pkg/clock"
	"github.com/Sternrassler/catalog-api/pkg/config"
	"github.com/Sternrassler/catalog-api/pkg/logging"
	"github.com/Sternrassler/catalog-api/pkg/lookup"
	"github.com/Sternrassler/catalog-api/pkg/server"
	"github.com/Sternrassler/catalog-api/pkg/store/memstore"
	"github.com/Sternrassler/catalog-api/pkg/store/mongostore"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "catalog-api: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Setup(logging.Config{
		Level:   logging.LogLevel(cfg.LogLevel),
		Pretty:  cfg.LogPretty,
		Service: "catalog-api",
		Output:  os.Stderr,
	})
	logger := logging.NewLogger("main")

	if err := cfg.ValidateAPI(); err != nil {
		logger.Error().Err(err).Msg("Invalid configuration")
		return err
	}
	logger.Info().Msgf("Configuration: %s", cfg)

	store, closeStore, err := openStore(ctx, cfg, logging.NewLogger("store"))
	if err != nil {
		return err
	}
	defer closeStore()

	cacheStore, closeCache, err := openCache(ctx, cfg, logging.NewLogger("cache"))
	if err != nil {
		return err
	}
	defer closeCache()

	handler := buildHandler(cfg, store, cacheStore)
	return server.New(":"+cfg.Port, handler, logging.NewLogger("http")).Run(ctx, cfg.ShutdownTimeout)
}

// buildHandler wires the catalog service and lookup runner into the router.
func buildHandler(cfg *config.Config, store catalog.Store, cacheStore cache.Store) http.Handler {
	service := catalog.NewService(store, cacheStore, catalog.Config{
		TTL:            cfg.CacheTTL,
		CuratedPattern: cfg.MarketSectionsPattern,
		CuratedMax:     cfg.MarketSectionsMax,
	}, logging.NewLogger("catalog"))

	runner := lookup.NewRunner(lookup.Config{
		Command:        cfg.LookupInterpreter,
		Script:         cfg.LookupScript,
		Timeout:        cfg.LookupTimeout,
		MaxConcurrency: cfg.LookupConcurrency,
	}, logging.NewLogger("lookup"))

	return server.NewRouter(server.Deps{
		Catalog:    service,
		Lookup:     runner,
		CORSOrigin: cfg.CORSOrigin,
		Logger:     logging.NewLogger("http"),
	})
}

// openStore connects the configured catalog backend.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (catalog.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		store, err := memstore.Load(cfg.DataFile)
		if err != nil {
			return nil, nil, err
		}
		markets, _ := store.Markets(ctx)
		logger.Info().Str("file", cfg.DataFile).Int("markets", len(markets)).Msg("Loaded catalog dump")
		return store, func() {}, nil

	default:
		store, err := mongostore.Connect(ctx, mongostore.Config{
			URI:        cfg.MongoURI,
			Database:   cfg.MongoDatabase,
			Collection: cfg.MongoCollection,
			Timeout:    cfg.MongoTimeout,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(context.Background()); err != nil {
				logger.Warn().Err(err).Msg("Failed to disconnect from MongoDB")
			}
		}, nil
	}
}

// openCache creates the configured cache backend. The in-memory backend
// sweeps expired entries in the background until ctx ends.
func openCache(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (cache.Store, func(), error) {
	switch cfg.CacheBackend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis at %s: %w", cfg.RedisAddr, err)
		}
		logger.Info().Str("addr", cfg.RedisAddr).Msg("Connected to Redis")
		return cache.NewRedisStore(client, clock.Real{}), func() { _ = client.Close() }, nil

	default:
		store := cache.NewMemoryStore(clock.Real{})
		store.StartSweeper(ctx, cfg.CacheSweepInterval)
		logger.Info().Dur("sweep_interval", cfg.CacheSweepInterval).Msg("Using in-memory cache")
		return store, func() {}, nil
	}
}
