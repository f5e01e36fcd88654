package collection

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestItemJSONRoundTrip(t *testing.T) {
	t.Parallel()

	added := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	item := Item{
		ID:         "item-1",
		Kind:       KindBookmark,
		CategoryID: CategoryNoneID,
		TagIDs:     []string{"tag-1", "tag-2"},
		AddedAt:    added,
		Favorite:   true,
		Bookmark: &Bookmark{
			Title: "Example",
			URL:   "https://example.com",
			Icon:  "globe",
		},
	}

	data, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Item
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != item.ID || got.Kind != KindBookmark || !got.Favorite {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Bookmark == nil || got.Bookmark.URL != "https://example.com" {
		t.Fatalf("bookmark payload lost: %+v", got.Bookmark)
	}
	if got.Image != nil || got.Text != nil {
		t.Fatalf("unexpected extra payload: %+v", got)
	}
}

func TestItemMarshalRejectsPayloadMismatch(t *testing.T) {
	t.Parallel()

	item := Item{
		ID:         "item-1",
		Kind:       KindImage,
		CategoryID: CategoryNoneID,
		AddedAt:    time.Now(),
		Text:       &Text{Content: "wrong payload"},
	}
	if _, err := json.Marshal(item); err == nil {
		t.Fatal("expected marshal to reject kind/payload mismatch")
	}
}

func TestItemUnmarshalAcceptsCreationPayload(t *testing.T) {
	t.Parallel()

	// A creation request carries no id or category yet; both are filled in
	// before the item reaches the store.
	raw := `{"kind":"bookmark","bookmark":{"title":"New","url":"https://example.com"}}`
	var got Item
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("unmarshal creation payload: %v", err)
	}
	if got.ID != "" || got.CategoryID != "" {
		t.Fatalf("expected empty id and category, got %q / %q", got.ID, got.CategoryID)
	}
	if got.Bookmark == nil || got.Bookmark.URL != "https://example.com" {
		t.Fatalf("bookmark payload lost: %+v", got.Bookmark)
	}

	// Storing it without the missing fields still fails.
	if err := got.Validate(); err == nil {
		t.Fatal("expected Validate to reject an item without an id")
	}
}

func TestItemUnmarshalRejectsPayloadMismatch(t *testing.T) {
	t.Parallel()

	raw := `{"kind":"image","text":{"content":"wrong payload"}}`
	var got Item
	if err := json.Unmarshal([]byte(raw), &got); err == nil {
		t.Fatal("expected decode to reject kind/payload mismatch")
	}
}

func TestItemUnmarshalRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	raw := `{"id":"x","kind":"video","category_id":"category-none","added_at":"2026-03-01T00:00:00Z"}`
	var got Item
	err := json.Unmarshal([]byte(raw), &got)
	if err == nil || !strings.Contains(err.Error(), "unknown kind") {
		t.Fatalf("expected unknown kind error, got %v", err)
	}
}

func TestItemCloneIsIndependent(t *testing.T) {
	t.Parallel()

	item := Item{
		ID:         "item-1",
		Kind:       KindText,
		CategoryID: CategoryNoneID,
		TagIDs:     []string{"tag-1"},
		AddedAt:    time.Now(),
		Text:       &Text{Content: "original"},
	}
	clone := item.Clone()
	clone.TagIDs[0] = "mutated"
	clone.Text.Content = "mutated"

	if item.TagIDs[0] != "tag-1" {
		t.Fatalf("clone shares tag slice: %v", item.TagIDs)
	}
	if item.Text.Content != "original" {
		t.Fatalf("clone shares text payload: %v", item.Text.Content)
	}
}

func TestSystemCategories(t *testing.T) {
	t.Parallel()

	cats := SystemCategories()
	if len(cats) != 3 {
		t.Fatalf("expected 3 system categories, got %d", len(cats))
	}
	for _, c := range cats {
		if !IsSystemCategory(c.ID) {
			t.Fatalf("IsSystemCategory(%q) = false", c.ID)
		}
	}
	if IsSystemCategory("category-custom") {
		t.Fatal("IsSystemCategory accepted a user category id")
	}
}
