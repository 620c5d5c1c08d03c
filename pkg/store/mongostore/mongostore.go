// Package mongostore implements catalog.Store on a MongoDB collection with
// one document per market. Pagination of nested arrays is pushed into
// aggregation pipelines so large sections are never loaded whole.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/catalog-api/pkg/catalog"
	"github.com/Sternrassler/catalog-api/pkg/pagination"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Defaults for Config.
const (
	DefaultDatabase   = "catalog"
	DefaultCollection = "markets"
	DefaultTimeout    = 10 * time.Second
)

var (
	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_store_query_duration_seconds",
		Help:    "MongoDB query duration by operation",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	queryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_store_query_errors_total",
		Help: "MongoDB query errors by operation",
	}, []string{"operation"})
)

// Config holds connection settings.
type Config struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store is a MongoDB-backed catalog.Store.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger zerolog.Logger
}

// Connect opens a client for cfg and pings the server.
// Nested documents decode as bson.M so items render as JSON objects.
func Connect(ctx context.Context, cfg Config, logger zerolog.Logger) (*Store, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo uri is required")
	}
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(cfg.Timeout).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	logger.Info().
		Str("database", cfg.Database).
		Str("collection", cfg.Collection).
		Msg("Connected to MongoDB")

	return New(client, cfg.Database, cfg.Collection, logger), nil
}

// New wraps an existing client.
func New(client *mongo.Client, database, collection string, logger zerolog.Logger) *Store {
	return &Store{
		client: client,
		coll:   client.Database(database).Collection(collection),
		logger: logger,
	}
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the unique market index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "market", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create market index: %w", err)
	}
	return nil
}

// Ping implements catalog.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// UpsertMarket replaces the document of m.Code, creating it if needed.
func (s *Store) UpsertMarket(ctx context.Context, m catalog.Market) error {
	defer observe("upsert_market", time.Now())

	if m.Code == "" {
		return errors.New("market code is required")
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now().UTC()
	}

	_, err := s.coll.UpdateOne(ctx,
		bson.D{{Key: "market", Value: m.Code}},
		bson.D{{Key: "$set", Value: m}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return queryFailed("upsert_market", err)
	}
	return nil
}

// Markets implements catalog.Store.
func (s *Store) Markets(ctx context.Context) ([]string, error) {
	defer observe("markets", time.Now())

	opts := options.Find().
		SetProjection(bson.D{{Key: "market", Value: 1}, {Key: "_id", Value: 0}}).
		SetSort(bson.D{{Key: "market", Value: 1}})

	cur, err := s.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, queryFailed("markets", err)
	}

	var docs []struct {
		Market string `bson:"market"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, queryFailed("markets", err)
	}

	codes := make([]string, 0, len(docs))
	for _, d := range docs {
		codes = append(codes, d.Market)
	}
	return codes, nil
}

// Categories implements catalog.Store.
func (s *Store) Categories(ctx context.Context, market string) ([]catalog.CategorySummary, error) {
	defer observe("categories", time.Now())

	opts := options.FindOne().SetProjection(bson.D{
		{Key: "_id", Value: 0},
		{Key: "categories.id", Value: 1},
		{Key: "categories.name", Value: 1},
		{Key: "categories.image", Value: 1},
	})

	var doc struct {
		Categories []catalog.CategorySummary `bson:"categories"`
	}
	err := s.coll.FindOne(ctx, bson.D{{Key: "market", Value: market}}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, catalog.NotFound(catalog.KindMarket)
	}
	if err != nil {
		return nil, queryFailed("categories", err)
	}

	if doc.Categories == nil {
		doc.Categories = []catalog.CategorySummary{}
	}
	return doc.Categories, nil
}

// Category implements catalog.Store.
func (s *Store) Category(ctx context.Context, market, id string) (*catalog.Category, error) {
	defer observe("category", time.Now())

	var doc struct {
		Category *catalog.Category `bson:"category"`
	}
	found, err := s.aggregateOne(ctx, "category", categoryPipeline(market, id), &doc)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, catalog.NotFound(catalog.KindMarket)
	}
	if doc.Category == nil {
		return nil, catalog.NotFound(catalog.KindCategory)
	}
	return doc.Category, nil
}

// SectionsByCategory implements catalog.Store.
func (s *Store) SectionsByCategory(ctx context.Context, market, categoryID string, w pagination.Window) ([]catalog.Section, int, error) {
	defer observe("sections_by_category", time.Now())

	var doc struct {
		HasCategory bool              `bson:"hasCategory"`
		Total       int               `bson:"total"`
		Data        []catalog.Section `bson:"data"`
	}
	found, err := s.aggregateOne(ctx, "sections_by_category", sectionsByCategoryPipeline(market, categoryID, w), &doc)
	if err != nil {
		return nil, 0, err
	}
	if !found {
		return nil, 0, catalog.NotFound(catalog.KindMarket)
	}
	if !doc.HasCategory {
		return nil, 0, catalog.NotFound(catalog.KindCategory)
	}
	return nonNil(doc.Data), doc.Total, nil
}

// CuratedSections implements catalog.Store.
func (s *Store) CuratedSections(ctx context.Context, market, pattern string, maxSections int, w pagination.Window) ([]catalog.Section, int, error) {
	defer observe("curated_sections", time.Now())

	var doc struct {
		Total int               `bson:"total"`
		Data  []catalog.Section `bson:"data"`
	}
	found, err := s.aggregateOne(ctx, "curated_sections", curatedSectionsPipeline(market, pattern, maxSections, w), &doc)
	if err != nil {
		return nil, 0, err
	}
	if !found {
		return nil, 0, catalog.NotFound(catalog.KindMarket)
	}
	return nonNil(doc.Data), doc.Total, nil
}

// RandomSections implements catalog.Store.
func (s *Store) RandomSections(ctx context.Context, market string, size int) ([]catalog.Section, error) {
	defer observe("random_sections", time.Now())

	cur, err := s.coll.Aggregate(ctx, randomSectionsPipeline(market, size))
	if err != nil {
		return nil, queryFailed("random_sections", err)
	}

	var sections []catalog.Section
	if err := cur.All(ctx, &sections); err != nil {
		return nil, queryFailed("random_sections", err)
	}

	if len(sections) == 0 {
		n, err := s.coll.CountDocuments(ctx, bson.D{{Key: "market", Value: market}})
		if err != nil {
			return nil, queryFailed("random_sections", err)
		}
		if n == 0 {
			return nil, catalog.NotFound(catalog.KindMarket)
		}
	}
	return nonNil(sections), nil
}

// SectionWindow implements catalog.Store.
func (s *Store) SectionWindow(ctx context.Context, market, id string, w pagination.Window) (*catalog.Section, int, error) {
	defer observe("section_window", time.Now())

	var doc struct {
		Found     bool            `bson:"found"`
		ItemCount int             `bson:"itemCount"`
		Section   catalog.Section `bson:"section"`
	}
	found, err := s.aggregateOne(ctx, "section_window", sectionWindowPipeline(market, id, w), &doc)
	if err != nil {
		return nil, 0, err
	}
	if !found {
		return nil, 0, catalog.NotFound(catalog.KindMarket)
	}
	if !doc.Found {
		return nil, 0, catalog.NotFound(catalog.KindSection)
	}
	if doc.Section.Contents.Items == nil {
		doc.Section.Contents.Items = []catalog.Item{}
	}
	return &doc.Section, doc.ItemCount, nil
}

// aggregateOne runs a pipeline expected to yield at most one document.
// It reports false when the pipeline yields nothing.
func (s *Store) aggregateOne(ctx context.Context, operation string, pipeline mongo.Pipeline, out any) (bool, error) {
	cur, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return false, queryFailed(operation, err)
	}
	defer cur.Close(ctx)

	if !cur.Next(ctx) {
		if err := cur.Err(); err != nil {
			return false, queryFailed(operation, err)
		}
		return false, nil
	}
	if err := cur.Decode(out); err != nil {
		return false, queryFailed(operation, err)
	}
	return true, nil
}

func queryFailed(operation string, err error) error {
	queryErrors.WithLabelValues(operation).Inc()
	return fmt.Errorf("mongo %s: %w", operation, err)
}

func observe(operation string, start time.Time) {
	queryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func nonNil(sections []catalog.Section) []catalog.Section {
	if sections == nil {
		return []catalog.Section{}
	}
	return sections
}
