// Package upstream is the HTTP client of the ingestion job: Spotify Web API
// for tokens and browse categories, and the RapidAPI scraper for genre
// contents, the latter authenticated with rotated keys.
package upstream

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/catalog-api/pkg/catalog"
	"github.com/Sternrassler/catalog-api/pkg/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"resty.dev/v3"
)

// Prometheus metrics for upstream requests.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_upstream_requests_total",
		Help: "Total upstream requests by endpoint and status",
	}, []string{"endpoint", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_upstream_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})
)

// Endpoint labels.
const (
	endpointToken      = "token"
	endpointCategories = "categories"
	endpointGenre      = "genre_contents"
)

// CategoriesPageSize is the browse-categories page size.
const CategoriesPageSize = 50

// tokenSlack refreshes tokens this long before they expire.
const tokenSlack = 30 * time.Second

// KeySource hands out scraper API keys.
type KeySource interface {
	Acquire(ctx context.Context) (string, error)
}

// Config holds the client configuration.
type Config struct {
	// AuthURL is the Spotify accounts service
	AuthURL string

	// APIURL is the Spotify Web API
	APIURL string

	// ScraperURL is the RapidAPI scraper
	ScraperURL string

	// ScraperHost is sent as x-rapidapi-host
	ScraperHost string

	// Client credentials (REQUIRED)
	ClientID     string
	ClientSecret string

	// Timeout per request
	Timeout time.Duration
}

// DefaultConfig returns the production endpoints.
func DefaultConfig(clientID, clientSecret string) Config {
	return Config{
		AuthURL:      "https://accounts.spotify.com",
		APIURL:       "https://api.spotify.com",
		ScraperURL:   "https://spotify-scraper.p.rapidapi.com",
		ScraperHost:  "spotify-scraper.p.rapidapi.com",
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Timeout:      30 * time.Second,
	}
}

// BrowseCategory is one Spotify browse category.
type BrowseCategory struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Icons []struct {
		URL string `json:"url"`
	} `json:"icons"`
}

// Image returns the first icon URL.
func (b BrowseCategory) Image() string {
	if len(b.Icons) == 0 {
		return ""
	}
	return b.Icons[0].URL
}

// GenreContents is the scraper's view of one category.
type GenreContents struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Contents catalog.Contents `json:"contents"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type categoriesResponse struct {
	Categories struct {
		Items  []BrowseCategory `json:"items"`
		Limit  int              `json:"limit"`
		Offset int              `json:"offset"`
		Total  int              `json:"total"`
	} `json:"categories"`
}

// Client talks to the upstream APIs.
type Client struct {
	http   *resty.Client
	config Config
	keys   KeySource
	clock  clock.Clock
	logger zerolog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// New creates a new upstream client. keys may be nil when GenreContents
// is not used.
func New(cfg Config, keys KeySource, logger zerolog.Logger) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("spotify client credentials are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:   httpClient,
		config: cfg,
		keys:   keys,
		clock:  clock.Real{},
		logger: logger,
	}, nil
}

// Close releases the underlying HTTP client.
func (c *Client) Close() error {
	return c.http.Close()
}

// SetClock sets the time source used for token expiry (for testing).
func (c *Client) SetClock(clk clock.Clock) {
	c.clock = clk
}

// Token returns a client-credentials access token, reusing the cached one
// until shortly before it expires.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if c.token != "" && now.Before(c.tokenExpiry) {
		return c.token, nil
	}

	var out tokenResponse
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBasicAuth(c.config.ClientID, c.config.ClientSecret).
		SetFormData(map[string]string{"grant_type": "client_credentials"}).
		SetResult(&out).
		Post(c.config.AuthURL + "/api/token")
	if err := c.check(endpointToken, start, resp, err); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", &Error{Endpoint: endpointToken, StatusCode: resp.StatusCode(), ErrorClass: ErrorClassServer, Message: "empty access token"}
	}

	c.token = out.AccessToken
	c.tokenExpiry = now.Add(time.Duration(out.ExpiresIn)*time.Second - tokenSlack)
	c.logger.Debug().Int("expires_in", out.ExpiresIn).Msg("Obtained access token")
	return c.token, nil
}

// Categories lists every browse category of market, page by page.
func (c *Client) Categories(ctx context.Context, market string) ([]BrowseCategory, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	var all []BrowseCategory
	for offset := 0; ; {
		var out categoriesResponse
		start := time.Now()
		resp, err := c.http.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetQueryParams(map[string]string{
				"country": market,
				"limit":   strconv.Itoa(CategoriesPageSize),
				"offset":  strconv.Itoa(offset),
			}).
			SetResult(&out).
			Get(c.config.APIURL + "/v1/browse/categories")
		if err := c.check(endpointCategories, start, resp, err); err != nil {
			return nil, fmt.Errorf("categories for %s: %w", market, err)
		}

		all = append(all, out.Categories.Items...)
		offset += len(out.Categories.Items)
		if len(out.Categories.Items) == 0 || offset >= out.Categories.Total {
			break
		}
	}

	c.logger.Debug().
		Str("market", market).
		Int("categories", len(all)).
		Msg("Fetched browse categories")
	return all, nil
}

// GenreContents fetches the contents of one category with a key from the
// key source. Key acquisition errors are returned unwrapped.
func (c *Client) GenreContents(ctx context.Context, genreID string) (*GenreContents, error) {
	if c.keys == nil {
		return nil, ErrNoKeySource
	}
	key, err := c.keys.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	var out GenreContents
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("x-rapidapi-host", c.config.ScraperHost).
		SetHeader("x-rapidapi-key", key).
		SetQueryParam("genreId", genreID).
		SetResult(&out).
		Get(c.config.ScraperURL + "/v1/genre/contents")
	if err := c.check(endpointGenre, start, resp, err); err != nil {
		return nil, fmt.Errorf("genre %s: %w", url.QueryEscape(genreID), err)
	}

	if out.ID == "" {
		out.ID = genreID
	}
	return &out, nil
}

// check records metrics and turns transport failures and error statuses
// into *Error.
func (c *Client) check(endpoint string, start time.Time, resp *resty.Response, err error) error {
	upstreamRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	if err != nil {
		upstreamErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		upstreamRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("Upstream request failed")
		return &Error{Endpoint: endpoint, ErrorClass: ErrorClassNetwork, Err: err}
	}

	status := resp.StatusCode()
	upstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()

	if resp.IsError() {
		class := classify(status, nil)
		upstreamErrorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", status).
			Str("error_class", string(class)).
			Msg("Upstream request error")
		return &Error{Endpoint: endpoint, StatusCode: status, ErrorClass: class, Message: resp.String()}
	}
	return nil
}
