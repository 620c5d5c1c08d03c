package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Sternrassler/catalog-api/pkg/cache"
	"github.com/Sternrassler/catalog-api/pkg/catalog"
)

// errorBody is the body of every non-2xx response.
type errorBody struct {
	Error string `json:"error"`
}

// Envelopes of the cached endpoints. fromCache is set per response and
// never stored with the cached value.
type (
	categoryDetailsResponse struct {
		FromCache bool `json:"fromCache"`
		*catalog.CategoryDetails
	}

	sectionDetailsResponse struct {
		FromCache bool `json:"fromCache"`
		*catalog.SectionDetails
	}

	pagedSectionsResponse struct {
		FromCache bool `json:"fromCache"`
		*catalog.Paged[catalog.Section]
	}
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, body json.RawMessage) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeCached writes a cached endpoint response. The ETag covers the
// payload only, so a hit and the miss that filled it share one validator.
func writeCached(w http.ResponseWriter, r *http.Request, payload, envelope any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	etag := cache.ETag(raw)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if cache.NotModified(r, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, envelope)
}

// fail maps err to a status: 404 for missing catalog entries, 500 for
// everything else, including lookup failures.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	h.logger.Error().
		Err(err).
		Str("request_id", RequestIDFromContext(r.Context())).
		Str("path", r.URL.Path).
		Msg("Request failed")
	writeError(w, http.StatusInternalServerError, err.Error())
}

