package ingest

import (
	"strconv"

	"github.com/Sternrassler/catalog-api/pkg/catalog"
	"github.com/google/uuid"
)

// sectionNamespace scopes section ids derived by SectionID.
var sectionNamespace = uuid.MustParse("5b0c0f0e-6f1d-4f8a-9d3e-2a7c4b1e9f60")

// SectionID derives a stable id for the index-th section of a category.
// The same market, category, position and title always yield the same id,
// so section links survive re-ingestion.
func SectionID(market, categoryID string, index int, title string) string {
	name := market + "/" + categoryID + "/" + strconv.Itoa(index) + "/" + title
	return uuid.NewSHA1(sectionNamespace, []byte(name)).String()
}

// DeriveSections turns the nested sections of every category into market
// sections tied to their category. Items without contents are skipped.
func DeriveSections(market string, categories []catalog.Category) []catalog.Section {
	sections := []catalog.Section{}

	for _, c := range categories {
		for i, item := range c.Contents.Items {
			contents, ok := catalog.NestedContents(item)
			if !ok {
				continue
			}

			title, _ := item["name"].(string)
			if title == "" {
				title, _ = item["title"].(string)
			}

			sections = append(sections, catalog.Section{
				ID:         SectionID(market, c.ID, i, title),
				Title:      title,
				CategoryID: c.ID,
				Contents:   contents,
			})
		}
	}
	return sections
}
