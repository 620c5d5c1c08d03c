package catalog

import (
	"context"

	"github.com/Sternrassler/catalog-api/pkg/pagination"
)

// Store is the read side of the market document store.
// Implementations return NotFoundError for a missing market, category or
// section; any other error is treated as internal.
type Store interface {
	// Markets lists the codes of every stored market.
	Markets(ctx context.Context) ([]string, error)

	// Categories lists the categories of market without their contents.
	Categories(ctx context.Context, market string) ([]CategorySummary, error)

	// Category returns one category with all of its stored items.
	Category(ctx context.Context, market, id string) (*Category, error)

	// SectionsByCategory returns the window w of sections tied to categoryID
	// and the total number of such sections.
	SectionsByCategory(ctx context.Context, market, categoryID string, w pagination.Window) ([]Section, int, error)

	// CuratedSections returns the window w of the first maxSections sections whose
	// title matches pattern (case-insensitive) and the size of that capped list.
	CuratedSections(ctx context.Context, market, pattern string, maxSections int, w pagination.Window) ([]Section, int, error)

	// RandomSections draws up to size distinct sections of market.
	RandomSections(ctx context.Context, market string, size int) ([]Section, error)

	// SectionWindow returns section id with only the items inside w, and
	// the number of stored items of the section.
	SectionWindow(ctx context.Context, market, id string, w pagination.Window) (*Section, int, error)

	// Ping checks the store is reachable.
	Ping(ctx context.Context) error
}
