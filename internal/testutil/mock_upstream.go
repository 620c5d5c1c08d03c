package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior of a mock endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockUpstream serves the token, browse-categories and genre-contents
// endpoints used by the ingestion job.
type MockUpstream struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount int
	TokenCount   int
	KeysUsed     []string
	Paths        []string
}

// NewMockUpstream creates a mock upstream with default handlers for one
// market: categories pop and rock, each with two sections.
func NewMockUpstream() *MockUpstream {
	mock := &MockUpstream{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.Paths = append(mock.Paths, r.URL.Path)
		if key := r.Header.Get("x-rapidapi-key"); key != "" {
			mock.KeysUsed = append(mock.KeysUsed, key)
		}
		if r.URL.Path == "/api/token" {
			mock.TokenCount++
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.server.Close()
}

// SetHandler sets a custom handler for a path.
func (m *MockUpstream) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockUpstream) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests served.
func (m *MockUpstream) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetTokenCount returns the number of token requests served.
func (m *MockUpstream) GetTokenCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.TokenCount
}

// GetKeysUsed returns the RapidAPI keys seen, in request order.
func (m *MockUpstream) GetKeysUsed() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.KeysUsed...)
}

func (m *MockUpstream) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	switch r.URL.Path {
	case "/api/token":
		if _, _, ok := r.BasicAuth(); !ok || r.FormValue("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		w.Write([]byte(`{"access_token":"test-token","token_type":"Bearer","expires_in":3600}`))

	case "/v1/browse/categories":
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"status":401,"message":"Invalid access token"}}`))
			return
		}
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		w.Write(CategoriesPage(offset, "pop", "rock"))

	case "/v1/genre/contents":
		if r.Header.Get("x-rapidapi-key") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"Invalid API key"}`))
			return
		}
		w.Write(GenreContents(r.URL.Query().Get("genreId"), 2))

	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not found"}`))
	}
}

// CategoriesPage renders a browse-categories page holding ids.
func CategoriesPage(offset int, ids ...string) []byte {
	items := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		items = append(items, map[string]any{
			"id":    id,
			"name":  "Category " + id,
			"icons": []map[string]any{{"url": "https://img/" + id + ".jpg"}},
		})
	}

	body, _ := json.Marshal(map[string]any{
		"categories": map[string]any{
			"items":  items,
			"limit":  50,
			"offset": offset,
			"total":  len(ids),
		},
	})
	return body
}

// GenreContents renders a genre-contents response with n sections.
func GenreContents(genreID string, n int) []byte {
	sections := make([]map[string]any, 0, n)
	for i := 1; i <= n; i++ {
		sections = append(sections, map[string]any{
			"type": "section",
			"name": fmt.Sprintf("%s section %d", genreID, i),
			"contents": map[string]any{
				"totalCount": 1,
				"items": []map[string]any{{
					"type":     "playlist",
					"id":       fmt.Sprintf("pl-%s-%d", genreID, i),
					"name":     fmt.Sprintf("Playlist %d", i),
					"shareUrl": fmt.Sprintf("https://open.spotify.com/playlist/pl-%s-%d", genreID, i),
				}},
			},
		})
	}

	body, _ := json.Marshal(map[string]any{
		"status": true,
		"type":   "genre",
		"id":     genreID,
		"name":   "Genre " + genreID,
		"contents": map[string]any{
			"totalCount": n,
			"items":      sections,
		},
	})
	return body
}
