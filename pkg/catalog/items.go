package catalog

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Items decoded from JSON hold map[string]any and []any; items decoded from
// MongoDB hold bson.M, bson.D and bson.A. The helpers below accept all of them.

func field(v any, name string) (any, bool) {
	switch m := v.(type) {
	case Item:
		val, ok := m[name]
		return val, ok
	case map[string]any:
		val, ok := m[name]
		return val, ok
	case bson.M:
		val, ok := m[name]
		return val, ok
	case bson.D:
		for _, e := range m {
			if e.Key == name {
				return e.Value, true
			}
		}
	}
	return nil, false
}

func list(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case bson.A:
		return s
	case []Item:
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out
	case []map[string]any:
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out
	}
	return nil
}

// lookup follows a path of field names (string) and list indexes (int).
func lookup(v any, path ...any) any {
	cur := v
	for _, step := range path {
		switch s := step.(type) {
		case string:
			next, ok := field(cur, s)
			if !ok {
				return nil
			}
			cur = next
		case int:
			items := list(cur)
			if s < 0 || s >= len(items) {
				return nil
			}
			cur = items[s]
		}
	}
	return cur
}

func text(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

// ExtractPlaylists projects every playlist item found in the sections nested
// in category, in order.
func ExtractPlaylists(category *Category) []PlaylistSummary {
	playlists := []PlaylistSummary{}
	if category == nil {
		return playlists
	}

	for _, section := range category.Contents.Items {
		for _, item := range list(lookup(section, "contents", "items")) {
			if text(lookup(item, "type")) != "playlist" {
				continue
			}
			playlists = append(playlists, PlaylistSummary{
				ID:          text(lookup(item, "id")),
				Name:        text(lookup(item, "name")),
				URL:         text(lookup(item, "shareUrl")),
				Description: text(lookup(item, "description")),
				Image:       text(lookup(item, "images", 0, 0, "url")),
			})
		}
	}
	return playlists
}

// NestedContents reads the "contents" field of item, as found on sections
// nested in a category. It reports false when item has no contents.
func NestedContents(item Item) (Contents, bool) {
	raw, ok := field(item, "contents")
	if !ok || raw == nil {
		return Contents{}, false
	}

	entries := list(lookup(raw, "items"))
	contents := Contents{
		Items:      make([]Item, 0, len(entries)),
		TotalCount: number(lookup(raw, "totalCount")),
	}
	for _, e := range entries {
		if m := toItem(e); m != nil {
			contents.Items = append(contents.Items, m)
		}
	}
	if contents.TotalCount < len(contents.Items) {
		contents.TotalCount = len(contents.Items)
	}
	return contents, true
}

func toItem(v any) Item {
	switch m := v.(type) {
	case Item:
		return m
	case map[string]any:
		return Item(m)
	case bson.M:
		return Item(m)
	case bson.D:
		out := make(Item, len(m))
		for _, e := range m {
			out[e.Key] = e.Value
		}
		return out
	}
	return nil
}

func number(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
