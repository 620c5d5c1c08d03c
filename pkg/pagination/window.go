package pagination

import (
	"strconv"
	"strings"
)

// DefaultPage is the page used when none (or an invalid one) is given.
const DefaultPage = 1

// Window is a 1-based page of a fixed size.
type Window struct {
	Page  int
	Limit int
}

// Offset is the index of the first item in the window.
func (w Window) Offset() int {
	return (w.Page - 1) * w.Limit
}

// End is the index one past the last item in the window.
func (w Window) End() int {
	return w.Offset() + w.Limit
}

// Parse resolves raw page and limit query values.
// Values that are missing, non-numeric or below 1 fall back to DefaultPage
// and defaultLimit. A defaultLimit below 1 is treated as 1.
func Parse(rawPage, rawLimit string, defaultLimit int) Window {
	if defaultLimit < 1 {
		defaultLimit = 1
	}
	return Window{
		Page:  positiveOr(rawPage, DefaultPage),
		Limit: positiveOr(rawLimit, defaultLimit),
	}
}

// OffsetWindow is a 0-based offset/limit pair.
type OffsetWindow struct {
	Offset int
	Limit  int
}

// ParseOffset resolves raw offset and limit query values.
// A missing, non-numeric or negative offset becomes 0.
func ParseOffset(rawOffset, rawLimit string, defaultLimit int) OffsetWindow {
	if defaultLimit < 1 {
		defaultLimit = 1
	}

	offset, err := strconv.Atoi(strings.TrimSpace(rawOffset))
	if err != nil || offset < 0 {
		offset = 0
	}

	return OffsetWindow{
		Offset: offset,
		Limit:  positiveOr(rawLimit, defaultLimit),
	}
}

// ParseLimit resolves a raw limit for endpoints without pages.
func ParseLimit(rawLimit string, defaultLimit int) int {
	if defaultLimit < 1 {
		defaultLimit = 1
	}
	return positiveOr(rawLimit, defaultLimit)
}

// Slice returns the items of collection inside w.
// The result is empty (never nil) when the window starts past the end.
func Slice[T any](collection []T, w Window) []T {
	if w.Limit < 1 || w.Page < 1 {
		return []T{}
	}

	start := w.Offset()
	if start >= len(collection) {
		return []T{}
	}

	end := w.End()
	if end > len(collection) {
		end = len(collection)
	}

	out := make([]T, end-start)
	copy(out, collection[start:end])
	return out
}

// TotalPages returns ceil(total / limit), or 0 when limit is below 1.
func TotalPages(total, limit int) int {
	if limit < 1 || total <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

func positiveOr(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
