// Package memstore is an in-memory catalog.Store backed by the ingestion
// JSON dump. It slices loaded documents in process.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/Sternrassler/catalog-api/pkg/catalog"
	"github.com/Sternrassler/catalog-api/pkg/pagination"
)

// Store holds market documents in memory.
type Store struct {
	mu      sync.RWMutex
	markets map[string]*catalog.Market

	// compiled curated patterns, keyed by source
	patterns sync.Map
}

// New creates a Store holding markets.
func New(markets ...catalog.Market) *Store {
	s := &Store{markets: make(map[string]*catalog.Market, len(markets))}
	for i := range markets {
		m := markets[i]
		s.markets[m.Code] = &m
	}
	return s
}

// Load reads a JSON array of markets from path.
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog dump: %w", err)
	}
	defer f.Close()

	return Decode(f)
}

// Decode reads a JSON array of markets from r.
func Decode(r io.Reader) (*Store, error) {
	var markets []catalog.Market
	if err := json.NewDecoder(r).Decode(&markets); err != nil {
		return nil, fmt.Errorf("decode catalog dump: %w", err)
	}
	return New(markets...), nil
}

// UpsertMarket replaces the document of m.Code.
func (s *Store) UpsertMarket(_ context.Context, m catalog.Market) error {
	if m.Code == "" {
		return fmt.Errorf("market code is required")
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[m.Code] = &m
	return nil
}

// Markets implements catalog.Store.
func (s *Store) Markets(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	codes := make([]string, 0, len(s.markets))
	for code := range s.markets {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}

// Categories implements catalog.Store.
func (s *Store) Categories(_ context.Context, market string) ([]catalog.CategorySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, err := s.market(market)
	if err != nil {
		return nil, err
	}

	out := make([]catalog.CategorySummary, len(m.Categories))
	for i, c := range m.Categories {
		out[i] = catalog.CategorySummary{ID: c.ID, Name: c.Name, Image: c.Image}
	}
	return out, nil
}

// Category implements catalog.Store.
func (s *Store) Category(_ context.Context, market, id string) (*catalog.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, err := s.market(market)
	if err != nil {
		return nil, err
	}
	for i := range m.Categories {
		if m.Categories[i].ID == id {
			c := m.Categories[i]
			return &c, nil
		}
	}
	return nil, catalog.NotFound(catalog.KindCategory)
}

// SectionsByCategory implements catalog.Store.
func (s *Store) SectionsByCategory(_ context.Context, market, categoryID string, w pagination.Window) ([]catalog.Section, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, err := s.market(market)
	if err != nil {
		return nil, 0, err
	}
	if !hasCategory(m, categoryID) {
		return nil, 0, catalog.NotFound(catalog.KindCategory)
	}

	var matched []catalog.Section
	for _, sec := range m.Sections {
		if sec.CategoryID == categoryID {
			matched = append(matched, sec)
		}
	}
	return pagination.Slice(matched, w), len(matched), nil
}

// CuratedSections implements catalog.Store.
func (s *Store) CuratedSections(_ context.Context, market, pattern string, maxSections int, w pagination.Window) ([]catalog.Section, int, error) {
	re, err := s.compile(pattern)
	if err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	m, err := s.market(market)
	if err != nil {
		return nil, 0, err
	}

	var matched []catalog.Section
	for _, sec := range m.Sections {
		if len(matched) == maxSections {
			break
		}
		if re.MatchString(sec.Title) {
			matched = append(matched, sec)
		}
	}
	return pagination.Slice(matched, w), len(matched), nil
}

func (s *Store) compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := s.patterns.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("compile section pattern: %w", err)
	}
	s.patterns.Store(pattern, re)
	return re, nil
}

// RandomSections implements catalog.Store.
func (s *Store) RandomSections(_ context.Context, market string, size int) ([]catalog.Section, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, err := s.market(market)
	if err != nil {
		return nil, err
	}

	if size > len(m.Sections) {
		size = len(m.Sections)
	}
	out := make([]catalog.Section, 0, size)
	for _, i := range rand.Perm(len(m.Sections))[:size] {
		out = append(out, m.Sections[i])
	}
	return out, nil
}

// SectionWindow implements catalog.Store.
func (s *Store) SectionWindow(_ context.Context, market, id string, w pagination.Window) (*catalog.Section, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, err := s.market(market)
	if err != nil {
		return nil, 0, err
	}
	for _, sec := range m.Sections {
		if sec.ID != id {
			continue
		}
		total := len(sec.Contents.Items)
		sec.Contents.Items = pagination.Slice(sec.Contents.Items, w)
		return &sec, total, nil
	}
	return nil, 0, catalog.NotFound(catalog.KindSection)
}

// Ping implements catalog.Store.
func (s *Store) Ping(context.Context) error {
	return nil
}

// market must be called with s.mu held.
func (s *Store) market(code string) (*catalog.Market, error) {
	m, ok := s.markets[code]
	if !ok {
		return nil, catalog.NotFound(catalog.KindMarket)
	}
	return m, nil
}

func hasCategory(m *catalog.Market, id string) bool {
	for _, c := range m.Categories {
		if c.ID == id {
			return true
		}
	}
	return false
}
