package catalog

import (
	"encoding/json"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestExtractPlaylists_JSONShapes(t *testing.T) {
	raw := `{
		"id": "pop",
		"name": "Pop",
		"contents": {
			"totalCount": 2,
			"items": [
				{"type": "section", "name": "Top", "contents": {"items": [
					{"type": "playlist", "id": "p1", "name": "Hits", "shareUrl": "https://open.spotify.com/playlist/p1",
					 "description": "d1", "images": [[{"url": "https://img/1.jpg"}]]},
					{"type": "album", "id": "a1", "name": "Album"}
				]}},
				{"type": "section", "name": "Fresh", "contents": {"items": [
					{"type": "playlist", "id": "p2", "name": "New"}
				]}},
				{"type": "section", "name": "Empty"}
			]
		}
	}`

	var category Category
	if err := json.Unmarshal([]byte(raw), &category); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}

	got := ExtractPlaylists(&category)
	want := []PlaylistSummary{
		{ID: "p1", Name: "Hits", URL: "https://open.spotify.com/playlist/p1", Description: "d1", Image: "https://img/1.jpg"},
		{ID: "p2", Name: "New"},
	}

	if len(got) != len(want) {
		t.Fatalf("ExtractPlaylists() returned %d playlists, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("playlist %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestExtractPlaylists_BSONShapes(t *testing.T) {
	category := &Category{
		ID: "rock",
		Contents: Contents{Items: []Item{
			{"contents": bson.M{"items": bson.A{
				bson.D{
					{Key: "type", Value: "playlist"},
					{Key: "id", Value: "p9"},
					{Key: "name", Value: "Rock Classics"},
					{Key: "images", Value: bson.A{bson.A{bson.M{"url": "https://img/9.jpg"}}}},
				},
			}}},
		}},
	}

	got := ExtractPlaylists(category)
	if len(got) != 1 {
		t.Fatalf("ExtractPlaylists() returned %d playlists, want 1", len(got))
	}
	if got[0].ID != "p9" || got[0].Image != "https://img/9.jpg" {
		t.Errorf("ExtractPlaylists() = %+v", got[0])
	}
}

func TestExtractPlaylists_Empty(t *testing.T) {
	if got := ExtractPlaylists(nil); got == nil || len(got) != 0 {
		t.Errorf("ExtractPlaylists(nil) = %v, want empty slice", got)
	}
	if got := ExtractPlaylists(&Category{}); got == nil || len(got) != 0 {
		t.Errorf("ExtractPlaylists(empty) = %v, want empty slice", got)
	}
}

func TestLookup(t *testing.T) {
	item := map[string]any{
		"images": []any{[]any{map[string]any{"url": "u"}}},
	}

	if got := lookup(item, "images", 0, 0, "url"); got != "u" {
		t.Errorf("lookup() = %v, want u", got)
	}
	if got := lookup(item, "images", 1); got != nil {
		t.Errorf("lookup() out of range = %v, want nil", got)
	}
	if got := lookup(item, "missing", "x"); got != nil {
		t.Errorf("lookup() missing = %v, want nil", got)
	}
}

func TestNotFoundError(t *testing.T) {
	err := NotFound(KindCategory)
	if err.Error() != "Category not found" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("NotFound error should match ErrNotFound")
	}
}

func TestNestedContents(t *testing.T) {
	var item Item
	raw := `{"name":"Top","contents":{"totalCount":40,"items":[{"id":"a"},{"id":"b"},"junk"]}}`
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		t.Fatal(err)
	}

	got, ok := NestedContents(item)
	if !ok {
		t.Fatal("NestedContents() reported no contents")
	}
	if got.TotalCount != 40 || len(got.Items) != 2 || got.Items[1]["id"] != "b" {
		t.Errorf("NestedContents() = %+v", got)
	}

	if _, ok := NestedContents(Item{"name": "bare"}); ok {
		t.Error("item without contents should report false")
	}

	fromBSON, ok := NestedContents(Item{"contents": bson.M{"totalCount": int32(1), "items": bson.A{bson.D{{Key: "id", Value: "x"}}, bson.M{"id": "y"}}}})
	if !ok || fromBSON.TotalCount != 2 || fromBSON.Items[0]["id"] != "x" {
		t.Errorf("NestedContents(bson) = %+v", fromBSON)
	}
}
