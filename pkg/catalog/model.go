// Package catalog serves paginated, cached views over the market catalog:
// categories, sections and the items nested inside them.
package catalog

import "time"

// Item is an opaque catalog entry (playlist, album, track, nested section).
// It is passed through unchanged except for playlist projection.
type Item map[string]any

// Contents is a stored, possibly truncated, list of items.
// TotalCount is the upstream count and may exceed len(Items).
type Contents struct {
	Items      []Item `bson:"items" json:"items"`
	TotalCount int    `bson:"totalCount" json:"totalCount"`
}

// Category is a browse grouping of a market.
type Category struct {
	ID       string   `bson:"id" json:"id"`
	Name     string   `bson:"name" json:"name"`
	Image    string   `bson:"image,omitempty" json:"image,omitempty"`
	Contents Contents `bson:"contents" json:"contents"`
}

// Section is a titled sub-collection of a market, optionally tied to a category.
type Section struct {
	ID         string   `bson:"_id" json:"id"`
	Title      string   `bson:"title" json:"title"`
	CategoryID string   `bson:"categoryId,omitempty" json:"categoryId,omitempty"`
	Contents   Contents `bson:"contents" json:"contents"`
}

// Market is one regional catalog partition, stored as a single document.
type Market struct {
	Code       string     `bson:"market" json:"market"`
	Categories []Category `bson:"categories" json:"categories"`
	Sections   []Section  `bson:"sections" json:"sections"`
	UpdatedAt  time.Time  `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// CategorySummary is a category without its contents.
type CategorySummary struct {
	ID    string `bson:"id" json:"id"`
	Name  string `bson:"name" json:"name"`
	Image string `bson:"image,omitempty" json:"image,omitempty"`
}

// PlaylistSummary is the projection of a playlist item.
type PlaylistSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
}

// Paged is one window of a list endpoint.
type Paged[T any] struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
	Data       []T `json:"data"`
}

// CategoryDetails is one window over a category's items.
// Total counts stored items; TotalCount is the upstream figure.
type CategoryDetails struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Image      string `json:"image,omitempty"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	Total      int    `json:"total"`
	TotalPages int    `json:"totalPages"`
	TotalCount int    `json:"totalCount"`
	Items      []Item `json:"items"`
}

// SectionDetails is one window over a section's items.
type SectionDetails struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	CategoryID string `json:"categoryId,omitempty"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	Total      int    `json:"total"`
	TotalPages int    `json:"totalPages"`
	TotalCount int    `json:"totalCount"`
	Items      []Item `json:"items"`
}
