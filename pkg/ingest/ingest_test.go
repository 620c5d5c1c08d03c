package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/catalog-api/internal/testutil"
	"github.com/Sternrassler/catalog-api/pkg/cache"
	"github.com/Sternrassler/catalog-api/pkg/catalog"
	"github.com/Sternrassler/catalog-api/pkg/clock"
	"github.com/Sternrassler/catalog-api/pkg/pagination"
	"github.com/Sternrassler/catalog-api/pkg/ratelimit"
	"github.com/Sternrassler/catalog-api/pkg/store/memstore"
	"github.com/Sternrassler/catalog-api/pkg/upstream"
	"github.com/rs/zerolog"
)

// fakeSource serves n categories per market and fails on demand.
type fakeSource struct {
	mu           sync.Mutex
	perMarket    int
	failGenre    map[string]error
	failMarket   map[string]error
	delay        time.Duration
	genreCalls   int
	categoryCall int
}

func (f *fakeSource) Categories(_ context.Context, market string) ([]upstream.BrowseCategory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.categoryCall++
	if err := f.failMarket[market]; err != nil {
		return nil, err
	}
	out := make([]upstream.BrowseCategory, f.perMarket)
	for i := range out {
		out[i] = upstream.BrowseCategory{ID: fmt.Sprintf("cat-%d", i), Name: fmt.Sprintf("Category %d", i)}
	}
	return out, nil
}

func (f *fakeSource) GenreContents(_ context.Context, genreID string) (*upstream.GenreContents, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.genreCalls++
	err := f.failGenre[genreID]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var g upstream.GenreContents
	if err := json.Unmarshal(testutil.GenreContents(genreID, 2), &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func fastConfig(markets ...string) Config {
	return Config{
		Markets: markets,
		Pool:    PoolConfig{Concurrency: 1, Interval: 0, Timeout: time.Second},
	}
}

func TestJob_RunEndToEnd(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()

	rotator, err := ratelimit.NewRotator([]string{"k1", "k2"}, ratelimit.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	cfg := upstream.DefaultConfig("id", "secret")
	cfg.AuthURL, cfg.APIURL, cfg.ScraperURL = mock.URL(), mock.URL(), mock.URL()
	client, err := upstream.New(cfg, rotator, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	store := memstore.New()
	jobCfg := fastConfig("US", "GB")
	jobCfg.DumpPath = filepath.Join(t.TempDir(), "data.json")

	report, err := NewJob(client, store, jobCfg, zerolog.Nop()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Markets != 2 || report.Categories != 4 || report.Sections != 8 {
		t.Errorf("report = %+v, want 2 markets, 4 categories, 8 sections", report)
	}
	if mock.GetTokenCount() != 1 {
		t.Errorf("token requested %d times, want 1", mock.GetTokenCount())
	}
	if keys := mock.GetKeysUsed(); len(keys) != 4 || keys[0] != "k1" || keys[1] != "k2" {
		t.Errorf("keys used = %v, want alternating k1,k2", keys)
	}

	ctx := context.Background()
	sections, total, err := store.SectionsByCategory(ctx, "US", "pop", pagination.Window{Page: 1, Limit: 5})
	if err != nil {
		t.Fatalf("SectionsByCategory() error = %v", err)
	}
	if total != 2 || sections[0].Title != "pop section 1" {
		t.Errorf("derived sections = %+v", sections)
	}

	service := catalog.NewService(store, cache.NewMemoryStore(clock.Real{}), catalog.DefaultConfig(), zerolog.Nop())
	playlists, err := service.Playlists(ctx, "US", "pop")
	if err != nil || len(playlists) != 2 {
		t.Errorf("Playlists() = %v, %v", playlists, err)
	}

	dumped, err := memstore.Load(jobCfg.DumpPath)
	if err != nil {
		t.Fatalf("Load(dump) error = %v", err)
	}
	markets, _ := dumped.Markets(ctx)
	if len(markets) != 2 {
		t.Errorf("dump holds %v", markets)
	}
}

func TestJob_QuotaExhaustedAborts(t *testing.T) {
	limits := ratelimit.DefaultConfig()
	limits.MonthlyLimit = 3
	rotator, err := ratelimit.NewRotator([]string{"only"}, limits)
	if err != nil {
		t.Fatal(err)
	}

	source := &keyedSource{fakeSource: &fakeSource{perMarket: 2}, keys: rotator}
	store := memstore.New()

	report, err := NewJob(source, store, fastConfig("US", "GB", "FR"), zerolog.Nop()).Run(context.Background())
	if !errors.Is(err, ratelimit.ErrQuotaExhausted) {
		t.Fatalf("Run() error = %v, want ErrQuotaExhausted", err)
	}
	if !report.QuotaExhausted || report.Markets != 1 {
		t.Errorf("report = %+v, want 1 complete market and quota exhausted", report)
	}

	ctx := context.Background()
	markets, _ := store.Markets(ctx)
	if len(markets) != 2 {
		t.Errorf("stored markets = %v, want US and partial GB", markets)
	}
	cats, _ := store.Categories(ctx, "GB")
	if len(cats) != 1 {
		t.Errorf("partial GB has %d categories, want 1", len(cats))
	}
	if source.categoryCall != 2 {
		t.Errorf("FR should not be fetched after the quota ran out (calls = %d)", source.categoryCall)
	}
}

// keyedSource acquires a key per genre request like the real client.
type keyedSource struct {
	*fakeSource
	keys upstream.KeySource
}

func (k *keyedSource) GenreContents(ctx context.Context, genreID string) (*upstream.GenreContents, error) {
	if _, err := k.keys.Acquire(ctx); err != nil {
		return nil, err
	}
	return k.fakeSource.GenreContents(ctx, genreID)
}

func TestJob_SkipsFailures(t *testing.T) {
	source := &fakeSource{
		perMarket:  3,
		failGenre:  map[string]error{"cat-1": errors.New("upstream 500")},
		failMarket: map[string]error{"GB": errors.New("categories 401")},
	}
	store := memstore.New()

	report, err := NewJob(source, store, fastConfig("US", "GB"), zerolog.Nop()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Markets != 1 || report.FailedMarkets != 1 || report.Categories != 2 {
		t.Errorf("report = %+v", report)
	}

	cats, err := store.Categories(context.Background(), "US")
	if err != nil {
		t.Fatal(err)
	}
	if len(cats) != 2 || cats[0].ID != "cat-0" || cats[1].ID != "cat-2" {
		t.Errorf("US categories = %+v, want cat-0, cat-2", cats)
	}
}

type failingWriter struct{}

func (failingWriter) UpsertMarket(context.Context, catalog.Market) error {
	return errors.New("disk full")
}

func TestJob_WriteFailureSkipsMarket(t *testing.T) {
	report, err := NewJob(&fakeSource{perMarket: 1}, failingWriter{}, fastConfig("US"), zerolog.Nop()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.FailedMarkets != 1 || report.Markets != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestNewJob_DefaultMarkets(t *testing.T) {
	job := NewJob(&fakeSource{}, memstore.New(), Config{}, zerolog.Nop())
	if len(job.config.Markets) != 18 {
		t.Errorf("default markets = %d, want 18", len(job.config.Markets))
	}
}

func TestPool_KeepsOrderWithConcurrency(t *testing.T) {
	source := &fakeSource{perMarket: 12, delay: 5 * time.Millisecond}
	pool := NewPool(source, PoolConfig{Concurrency: 4, Timeout: time.Second}, zerolog.Nop())

	browse, _ := source.Categories(context.Background(), "US")
	got, err := pool.FetchAll(context.Background(), "US", browse)
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(got) != 12 {
		t.Fatalf("FetchAll() = %d categories, want 12", len(got))
	}
	for i, c := range got {
		if c.ID != fmt.Sprintf("cat-%d", i) {
			t.Errorf("position %d = %s", i, c.ID)
		}
	}
}

func TestPool_Pacing(t *testing.T) {
	source := &fakeSource{perMarket: 3}
	pool := NewPool(source, PoolConfig{Concurrency: 3, Interval: 50 * time.Millisecond, Timeout: time.Second}, zerolog.Nop())

	browse, _ := source.Categories(context.Background(), "US")
	start := time.Now()
	if _, err := pool.FetchAll(context.Background(), "US", browse); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("3 requests at 50ms spacing took %v, want >= 100ms", elapsed)
	}
}

func TestPool_ContextCancelled(t *testing.T) {
	source := &fakeSource{perMarket: 5}
	pool := NewPool(source, PoolConfig{Concurrency: 1, Interval: time.Hour, Timeout: time.Second}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	browse, _ := source.Categories(ctx, "US")
	got, err := pool.FetchAll(ctx, "US", browse)
	if err == nil {
		t.Fatal("FetchAll() should fail when the context ends")
	}
	if len(got) != 1 {
		t.Errorf("FetchAll() = %d categories before cancellation, want 1", len(got))
	}
}

func TestDeriveSections(t *testing.T) {
	var g upstream.GenreContents
	if err := json.Unmarshal(testutil.GenreContents("pop", 3), &g); err != nil {
		t.Fatal(err)
	}
	categories := []catalog.Category{
		{ID: "pop", Contents: g.Contents},
		{ID: "bare", Contents: catalog.Contents{Items: []catalog.Item{{"type": "playlist", "id": "x"}}}},
	}

	sections := DeriveSections("US", categories)
	if len(sections) != 3 {
		t.Fatalf("DeriveSections() = %d sections, want 3", len(sections))
	}
	for _, s := range sections {
		if s.CategoryID != "pop" || len(s.Contents.Items) != 1 {
			t.Errorf("section = %+v", s)
		}
	}

	again := DeriveSections("US", categories)
	if sections[0].ID != again[0].ID {
		t.Error("section ids must be stable across runs")
	}
	if sections[0].ID == sections[1].ID {
		t.Error("section ids must be distinct")
	}
	if DeriveSections("GB", categories)[0].ID == sections[0].ID {
		t.Error("section ids must differ between markets")
	}
}

func TestWriteDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	if err := writeDump(path, testutil.CatalogMarkets()); err != nil {
		t.Fatalf("writeDump() error = %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary dump file left behind")
	}
	if _, err := memstore.Load(path); err != nil {
		t.Errorf("dump is not loadable: %v", err)
	}
}
