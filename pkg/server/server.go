// Package server exposes the catalog and lookup operations over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Sternrassler/catalog-api/pkg/catalog"
	"github.com/Sternrassler/catalog-api/pkg/metrics"
	"github.com/Sternrassler/catalog-api/pkg/pagination"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// BasePath prefixes every API route.
const BasePath = "/api/v1"

// Catalog is the read side served by the router.
type Catalog interface {
	Markets(ctx context.Context) ([]string, error)
	Categories(ctx context.Context, market string) ([]catalog.CategorySummary, error)
	Playlists(ctx context.Context, market, id string) ([]catalog.PlaylistSummary, error)
	RandomSections(ctx context.Context, market string, size int) ([]catalog.Section, error)
	CategoryDetails(ctx context.Context, market, id string, w pagination.Window) (*catalog.CategoryDetails, bool, error)
	SectionsByCategory(ctx context.Context, market, id string, w pagination.Window) (*catalog.Paged[catalog.Section], bool, error)
	MarketSections(ctx context.Context, market string, w pagination.Window) (*catalog.Paged[catalog.Section], bool, error)
	SectionDetails(ctx context.Context, market, id string, w pagination.Window) (*catalog.SectionDetails, bool, error)
	Ping(ctx context.Context) error
}

// Lookup fetches single items through the external lookup capability.
type Lookup interface {
	Playlist(ctx context.Context, id string) (json.RawMessage, error)
	PlaylistPreview(ctx context.Context, id string) (json.RawMessage, error)
	BatchedPlaylist(ctx context.Context, id string, w pagination.OffsetWindow) (json.RawMessage, error)
	BatchedAlbum(ctx context.Context, id string, w pagination.OffsetWindow) (json.RawMessage, error)
	BatchedArtist(ctx context.Context, id string, w pagination.OffsetWindow) (json.RawMessage, error)
	Track(ctx context.Context, id string) (json.RawMessage, error)
	SearchTracks(ctx context.Context, query string, w pagination.OffsetWindow) (json.RawMessage, error)
}

// Deps holds the router dependencies.
type Deps struct {
	Catalog    Catalog
	Lookup     Lookup
	CORSOrigin string
	Logger     zerolog.Logger
}

// NewRouter builds the HTTP handler.
//
// Middleware order: Recover → RequestID → AccessLog → CORS.
func NewRouter(deps Deps) http.Handler {
	h := &handlers{catalog: deps.Catalog, lookup: deps.Lookup, logger: deps.Logger}

	r := chi.NewRouter()
	r.Use(Recover(deps.Logger))
	r.Use(RequestID)
	r.Use(AccessLog(deps.Logger))
	r.Use(CORS(deps.CORSOrigin))

	r.Get("/health", h.health)
	r.Get("/ready", h.ready)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route(BasePath, func(r chi.Router) {
		r.Route("/category", func(r chi.Router) {
			r.Get("/", h.markets)
			r.Get("/{market}/categories", h.categories)
			r.Get("/{market}/categories/{id}", h.categoryDetails)
			r.Get("/{market}/categories/{id}/playlists", h.playlists)
		})

		r.Route("/section/{market}", func(r chi.Router) {
			r.Get("/categories/{id}/sections", h.sectionsByCategory)
			r.Get("/sections", h.marketSections)
			r.Get("/sections/random", h.randomSections)
			r.Get("/sections/{id}", h.sectionDetails)
		})

		r.Route("/playlist/{id}", func(r chi.Router) {
			r.Get("/", h.playlist)
			r.Get("/preview", h.playlistPreview)
			r.Get("/batched", h.batchedPlaylist)
		})

		r.Get("/album/{id}/batched", h.batchedAlbum)
		r.Get("/artist/{id}/batched", h.batchedArtist)
		r.Get("/track/{id}", h.track)
		r.Get("/search/tracks/{query}", h.searchTracks)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Route not found")
	})

	return r
}

// Server wraps http.Server with graceful shutdown.
type Server struct {
	http   *http.Server
	logger zerolog.Logger
}

// New creates a Server listening on addr.
func New(addr string, handler http.Handler, logger zerolog.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			// lookups may take up to their own timeout
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  2 * time.Minute,
		},
		logger: logger,
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests for
// at most shutdownTimeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.http.Addr).Msg("HTTP server listening")
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Dur("timeout", shutdownTimeout).Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}
