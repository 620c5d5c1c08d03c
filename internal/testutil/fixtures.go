// Package testutil provides fixtures and a mock upstream server for tests.
package testutil

import (
	"fmt"
	"time"

	"github.com/Sternrassler/catalog-api/pkg/catalog"
)

// Fixture sizes, useful for asserting totals.
const (
	PopSections       = 22
	RockSections      = 4
	PopCategoryItems  = 12
	PopularItems      = 25
	PopularTotalCount = 100
)

// CatalogMarkets returns two markets:
//
//	US: categories pop (12 items), rock (3 items), jazz (empty);
//	    22 pop sections, 4 rock sections and curated sections
//	    "Popular Playlists" (25 items), "Today's Top Hits", "Latest Releases",
//	    "Radio Mixes" and the non-curated "Chill Vibes".
//	GB: one category and two sections.
func CatalogMarkets() []catalog.Market {
	updated := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	us := catalog.Market{
		Code: "US",
		Categories: []catalog.Category{
			{ID: "pop", Name: "Pop", Image: "https://img/pop.jpg", Contents: catalog.Contents{Items: sectionItems("pop", PopCategoryItems), TotalCount: 40}},
			{ID: "rock", Name: "Rock", Image: "https://img/rock.jpg", Contents: catalog.Contents{Items: sectionItems("rock", 3), TotalCount: 3}},
			{ID: "jazz", Name: "Jazz", Contents: catalog.Contents{Items: []catalog.Item{}}},
		},
		UpdatedAt: updated,
	}

	for i := 1; i <= PopSections; i++ {
		us.Sections = append(us.Sections, section(fmt.Sprintf("us-pop-%02d", i), fmt.Sprintf("Pop Mix %d", i), "pop", 3))
	}
	for i := 1; i <= RockSections; i++ {
		us.Sections = append(us.Sections, section(fmt.Sprintf("us-rock-%02d", i), fmt.Sprintf("Rock Anthems %d", i), "rock", 2))
	}

	popular := section("us-popular", "Popular Playlists", "", PopularItems)
	popular.Contents.TotalCount = PopularTotalCount
	us.Sections = append(us.Sections,
		popular,
		section("us-today", "Today's Top Hits", "", 5),
		section("us-latest", "Latest Releases", "", 5),
		section("us-radio", "Radio Mixes", "", 5),
		section("us-chill", "Chill Vibes", "", 5),
	)

	gb := catalog.Market{
		Code: "GB",
		Categories: []catalog.Category{
			{ID: "grime", Name: "Grime", Contents: catalog.Contents{Items: sectionItems("grime", 2), TotalCount: 2}},
		},
		Sections: []catalog.Section{
			section("gb-grime-01", "Grime Shutdown", "grime", 2),
			section("gb-popular", "Popular in the UK", "", 2),
		},
		UpdatedAt: updated,
	}

	return []catalog.Market{us, gb}
}

// sectionItems builds category items, each a nested section holding one
// playlist and one album.
func sectionItems(prefix string, n int) []catalog.Item {
	items := make([]catalog.Item, n)
	for i := range items {
		id := fmt.Sprintf("%s-%02d", prefix, i+1)
		items[i] = catalog.Item{
			"type": "section",
			"name": "Section " + id,
			"contents": map[string]any{
				"totalCount": 2,
				"items": []any{
					map[string]any{
						"type":        "playlist",
						"id":          "pl-" + id,
						"name":        "Playlist " + id,
						"shareUrl":    "https://open.spotify.com/playlist/pl-" + id,
						"description": "Best of " + id,
						"images": []any{
							[]any{map[string]any{"url": "https://img/pl-" + id + ".jpg"}},
						},
					},
					map[string]any{"type": "album", "id": "al-" + id, "name": "Album " + id},
				},
			},
		}
	}
	return items
}

func section(id, title, categoryID string, items int) catalog.Section {
	s := catalog.Section{
		ID:         id,
		Title:      title,
		CategoryID: categoryID,
		Contents:   catalog.Contents{Items: make([]catalog.Item, items), TotalCount: items},
	}
	for i := range s.Contents.Items {
		s.Contents.Items[i] = catalog.Item{
			"type": "track",
			"id":   fmt.Sprintf("%s-t%02d", id, i+1),
			"name": fmt.Sprintf("Track %d", i+1),
		}
	}
	return s
}
