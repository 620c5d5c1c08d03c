//go:build integration

package mongostore

import (
	"context"
	"errors"
	"testing"

	"github.com/Sternrassler/catalog-api/internal/testutil"
	"github.com/Sternrassler/catalog-api/pkg/catalog"
	"github.com/Sternrassler/catalog-api/pkg/pagination"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupMongo starts a MongoDB container and returns a store seeded with
// the catalog fixtures.
func setupMongo(t *testing.T) (*Store, func()) {
	t.Helper()
	ctx := context.Background()

	mongoContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start MongoDB container: %v", err)
	}

	endpoint, err := mongoContainer.Endpoint(ctx, "mongodb")
	if err != nil {
		t.Fatalf("Failed to get MongoDB endpoint: %v", err)
	}

	store, err := Connect(ctx, Config{URI: endpoint, Database: "catalog_test"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes failed: %v", err)
	}
	for _, m := range testutil.CatalogMarkets() {
		if err := store.UpsertMarket(ctx, m); err != nil {
			t.Fatalf("UpsertMarket(%s) failed: %v", m.Code, err)
		}
	}

	cleanup := func() {
		store.Close(ctx)
		mongoContainer.Terminate(ctx)
	}
	return store, cleanup
}

func TestStore_Integration_Queries(t *testing.T) {
	store, cleanup := setupMongo(t)
	defer cleanup()
	ctx := context.Background()

	markets, err := store.Markets(ctx)
	if err != nil || len(markets) != 2 || markets[0] != "GB" {
		t.Errorf("Markets() = %v, %v", markets, err)
	}

	cats, err := store.Categories(ctx, "US")
	if err != nil || len(cats) != 3 || cats[0].Name != "Pop" {
		t.Errorf("Categories() = %+v, %v", cats, err)
	}

	cat, err := store.Category(ctx, "US", "pop")
	if err != nil {
		t.Fatalf("Category() error = %v", err)
	}
	if len(cat.Contents.Items) != testutil.PopCategoryItems {
		t.Errorf("Category() items = %d", len(cat.Contents.Items))
	}
	if len(catalog.ExtractPlaylists(cat)) != testutil.PopCategoryItems {
		t.Error("playlists should be extractable from bson-decoded items")
	}

	sections, total, err := store.SectionsByCategory(ctx, "US", "pop", pagination.Window{Page: 5, Limit: 5})
	if err != nil {
		t.Fatalf("SectionsByCategory() error = %v", err)
	}
	if total != testutil.PopSections || len(sections) != 2 || sections[0].ID != "us-pop-21" {
		t.Errorf("SectionsByCategory() = %d sections, total %d", len(sections), total)
	}

	curated, total, err := store.CuratedSections(ctx, "US", "radio|popular|today|latest", 20, pagination.Window{Page: 1, Limit: 3})
	if err != nil {
		t.Fatalf("CuratedSections() error = %v", err)
	}
	if total != 4 || len(curated) != 3 {
		t.Errorf("CuratedSections() = %d sections, total %d", len(curated), total)
	}

	random, err := store.RandomSections(ctx, "GB", 5)
	if err != nil || len(random) != 2 {
		t.Errorf("RandomSections() = %d, %v", len(random), err)
	}

	sec, count, err := store.SectionWindow(ctx, "US", "us-popular", pagination.Window{Page: 3, Limit: 10})
	if err != nil {
		t.Fatalf("SectionWindow() error = %v", err)
	}
	if count != testutil.PopularItems || len(sec.Contents.Items) != 5 || sec.Contents.TotalCount != testutil.PopularTotalCount {
		t.Errorf("SectionWindow() = %d items, count %d, totalCount %d", len(sec.Contents.Items), count, sec.Contents.TotalCount)
	}
	if sec.Title != "Popular Playlists" {
		t.Errorf("SectionWindow() title = %q", sec.Title)
	}
}

func TestStore_Integration_NotFound(t *testing.T) {
	store, cleanup := setupMongo(t)
	defer cleanup()
	ctx := context.Background()
	w := pagination.Window{Page: 1, Limit: 5}

	tests := []struct {
		name string
		err  error
		kind string
	}{
		{"unknown market", func() error { _, err := store.Categories(ctx, "XX"); return err }(), catalog.KindMarket},
		{"unknown category", func() error { _, err := store.Category(ctx, "US", "nope"); return err }(), catalog.KindCategory},
		{"unknown category sections", func() error { _, _, err := store.SectionsByCategory(ctx, "US", "nope", w); return err }(), catalog.KindCategory},
		{"unknown section", func() error { _, _, err := store.SectionWindow(ctx, "US", "nope", w); return err }(), catalog.KindSection},
		{"random unknown market", func() error { _, err := store.RandomSections(ctx, "XX", 5); return err }(), catalog.KindMarket},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var nf *catalog.NotFoundError
			if !errors.As(tt.err, &nf) || nf.Kind != tt.kind {
				t.Errorf("error = %v, want %s not found", tt.err, tt.kind)
			}
		})
	}
}

func TestStore_Integration_UpsertReplaces(t *testing.T) {
	store, cleanup := setupMongo(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.UpsertMarket(ctx, catalog.Market{Code: "GB"}); err != nil {
		t.Fatalf("UpsertMarket() error = %v", err)
	}

	cats, err := store.Categories(ctx, "GB")
	if err != nil {
		t.Fatal(err)
	}
	if len(cats) != 0 {
		t.Errorf("Categories() after replace = %v, want none", cats)
	}
	markets, _ := store.Markets(ctx)
	if len(markets) != 2 {
		t.Errorf("upsert created a duplicate market: %v", markets)
	}
}
