package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/Sternrassler/catalog-api/pkg/catalog"
	"github.com/Sternrassler/catalog-api/pkg/pagination"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Default page sizes of the offset-based lookup endpoints.
const (
	DefaultSearchLimit  = 5
	DefaultBatchedLimit = 5
)

type handlers struct {
	catalog Catalog
	lookup  Lookup
	logger  zerolog.Logger
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.catalog.Ping(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("Readiness check failed")
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// window reads page and limit for a page-based endpoint.
func window(r *http.Request, defaultLimit int) pagination.Window {
	q := r.URL.Query()
	return pagination.Parse(q.Get("page"), q.Get("limit"), defaultLimit)
}

// pathParam returns the decoded value of a path parameter. chi matches on
// the raw path when it holds escapes such as %2F.
func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if decoded, err := url.PathUnescape(v); err == nil {
		return decoded
	}
	return v
}

// offsetWindow reads offset and limit for an offset-based endpoint.
func offsetWindow(r *http.Request, defaultLimit int) pagination.OffsetWindow {
	q := r.URL.Query()
	return pagination.ParseOffset(q.Get("offset"), q.Get("limit"), defaultLimit)
}

func (h *handlers) markets(w http.ResponseWriter, r *http.Request) {
	markets, err := h.catalog.Markets(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, markets)
}

func (h *handlers) categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.Categories(r.Context(), pathParam(r, "market"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (h *handlers) categoryDetails(w http.ResponseWriter, r *http.Request) {
	details, fromCache, err := h.catalog.CategoryDetails(r.Context(),
		pathParam(r, "market"), pathParam(r, "id"), window(r, catalog.DefaultCategoryLimit))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeCached(w, r, details, categoryDetailsResponse{FromCache: fromCache, CategoryDetails: details})
}

func (h *handlers) playlists(w http.ResponseWriter, r *http.Request) {
	playlists, err := h.catalog.Playlists(r.Context(), pathParam(r, "market"), pathParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, playlists)
}

func (h *handlers) sectionsByCategory(w http.ResponseWriter, r *http.Request) {
	paged, fromCache, err := h.catalog.SectionsByCategory(r.Context(),
		pathParam(r, "market"), pathParam(r, "id"), window(r, catalog.DefaultSectionsByCategoryLimit))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeCached(w, r, paged, pagedSectionsResponse{FromCache: fromCache, Paged: paged})
}

func (h *handlers) marketSections(w http.ResponseWriter, r *http.Request) {
	paged, fromCache, err := h.catalog.MarketSections(r.Context(),
		pathParam(r, "market"), window(r, catalog.DefaultMarketSectionsLimit))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeCached(w, r, paged, pagedSectionsResponse{FromCache: fromCache, Paged: paged})
}

func (h *handlers) randomSections(w http.ResponseWriter, r *http.Request) {
	size := pagination.ParseLimit(r.URL.Query().Get("limit"), catalog.DefaultRandomLimit)

	sections, err := h.catalog.RandomSections(r.Context(), pathParam(r, "market"), size)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sections)
}

func (h *handlers) sectionDetails(w http.ResponseWriter, r *http.Request) {
	details, fromCache, err := h.catalog.SectionDetails(r.Context(),
		pathParam(r, "market"), pathParam(r, "id"), window(r, catalog.DefaultSectionLimit))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeCached(w, r, details, sectionDetailsResponse{FromCache: fromCache, SectionDetails: details})
}

// lookupBy adapts a lookup call on the {id} path parameter to a handler.
func (h *handlers) lookupBy(call func(ctx context.Context, id string) (json.RawMessage, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := call(r.Context(), pathParam(r, "id"))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeRaw(w, body)
	}
}

// batchedBy adapts an offset-paged lookup call to a handler.
func (h *handlers) batchedBy(param string, defaultLimit int, call func(ctx context.Context, id string, w pagination.OffsetWindow) (json.RawMessage, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := call(r.Context(), pathParam(r, param), offsetWindow(r, defaultLimit))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeRaw(w, body)
	}
}

func (h *handlers) playlist(w http.ResponseWriter, r *http.Request) {
	h.lookupBy(h.lookup.Playlist)(w, r)
}

func (h *handlers) playlistPreview(w http.ResponseWriter, r *http.Request) {
	h.lookupBy(h.lookup.PlaylistPreview)(w, r)
}

func (h *handlers) track(w http.ResponseWriter, r *http.Request) {
	h.lookupBy(h.lookup.Track)(w, r)
}

func (h *handlers) batchedPlaylist(w http.ResponseWriter, r *http.Request) {
	h.batchedBy("id", DefaultBatchedLimit, h.lookup.BatchedPlaylist)(w, r)
}

func (h *handlers) batchedAlbum(w http.ResponseWriter, r *http.Request) {
	h.batchedBy("id", DefaultBatchedLimit, h.lookup.BatchedAlbum)(w, r)
}

func (h *handlers) batchedArtist(w http.ResponseWriter, r *http.Request) {
	h.batchedBy("id", DefaultBatchedLimit, h.lookup.BatchedArtist)(w, r)
}

func (h *handlers) searchTracks(w http.ResponseWriter, r *http.Request) {
	h.batchedBy("query", DefaultSearchLimit, h.lookup.SearchTracks)(w, r)
}
