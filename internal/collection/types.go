// Package collection defines core types shared across subsystems.
package collection

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind discriminates the three item variants held by the store.
type Kind string

// Item kinds persisted in the items document.
const (
	KindBookmark Kind = "bookmark"
	KindImage    Kind = "image"
	KindText     Kind = "text"
)

// Bookmark holds the bookmark-specific payload of an Item.
type Bookmark struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	// Icon is either a symbol name, a favicon URL, or a data URL.
	Icon string `json:"icon,omitempty"`

	// Page metadata filled in by the enrichment run; all optional.
	MetaTitle       string `json:"meta_title,omitempty"`
	MetaDescription string `json:"meta_description,omitempty"`
	MetaImageURL    string `json:"meta_image_url,omitempty"`
	MetaSiteName    string `json:"meta_site_name,omitempty"`
	MetaURL         string `json:"meta_url,omitempty"`
	MetaFaviconURL  string `json:"meta_favicon_url,omitempty"`
}

// Image holds the image-specific payload of an Item. Path is either a bare
// filename inside the managed data directory or an http(s) URL, never an
// absolute machine-specific path.
type Image struct {
	Path          string `json:"path"`
	ThumbnailPath string `json:"thumbnail_path,omitempty"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
}

// Text holds the note-specific payload of an Item.
type Text struct {
	Content string `json:"content"`
}

// Item is the closed union over the three collection variants. Exactly one
// of Bookmark/Image/Text is populated, matching Kind.
type Item struct {
	ID         string
	Kind       Kind
	CategoryID string
	TagIDs     []string
	AddedAt    time.Time
	ModifiedAt *time.Time
	Notes      string
	Favorite   bool
	Parsed     bool

	Bookmark *Bookmark
	Image    *Image
	Text     *Text
}

// itemEnvelope is the on-disk encoding: a type tag plus exactly one populated
// payload field.
type itemEnvelope struct {
	ID         string     `json:"id"`
	Kind       Kind       `json:"kind"`
	CategoryID string     `json:"category_id"`
	TagIDs     []string   `json:"tag_ids"`
	AddedAt    time.Time  `json:"added_at"`
	ModifiedAt *time.Time `json:"modified_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	Favorite   bool       `json:"favorite"`
	Parsed     bool       `json:"parsed"`

	Bookmark *Bookmark `json:"bookmark,omitempty"`
	Image    *Image    `json:"image,omitempty"`
	Text     *Text     `json:"text,omitempty"`
}

// Validate checks that the item is complete enough to store: id and
// category present, discriminant matching the populated payload.
func (i Item) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("item id is required")
	}
	if i.CategoryID == "" {
		return fmt.Errorf("item %s: category id is required", i.ID)
	}
	return i.checkPayload()
}

// checkPayload verifies the discriminant matches the populated payload. It
// deliberately skips the id and category checks so creation payloads can be
// decoded before those fields are filled in.
func (i Item) checkPayload() error {
	switch i.Kind {
	case KindBookmark:
		if i.Bookmark == nil || i.Image != nil || i.Text != nil {
			return fmt.Errorf("item %s: bookmark payload mismatch", i.ID)
		}
	case KindImage:
		if i.Image == nil || i.Bookmark != nil || i.Text != nil {
			return fmt.Errorf("item %s: image payload mismatch", i.ID)
		}
	case KindText:
		if i.Text == nil || i.Bookmark != nil || i.Image != nil {
			return fmt.Errorf("item %s: text payload mismatch", i.ID)
		}
	default:
		return fmt.Errorf("item %s: unknown kind %q", i.ID, i.Kind)
	}
	return nil
}

// MarshalJSON encodes the item as a discriminated envelope.
func (i Item) MarshalJSON() ([]byte, error) {
	if err := i.Validate(); err != nil {
		return nil, err
	}
	env := itemEnvelope{
		ID:         i.ID,
		Kind:       i.Kind,
		CategoryID: i.CategoryID,
		TagIDs:     i.TagIDs,
		AddedAt:    i.AddedAt,
		ModifiedAt: i.ModifiedAt,
		Notes:      i.Notes,
		Favorite:   i.Favorite,
		Parsed:     i.Parsed,
		Bookmark:   i.Bookmark,
		Image:      i.Image,
		Text:       i.Text,
	}
	if env.TagIDs == nil {
		env.TagIDs = []string{}
	}
	return json.Marshal(env)
}

// UnmarshalJSON decodes the envelope and re-checks the discriminant.
func (i *Item) UnmarshalJSON(data []byte) error {
	var env itemEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode item: %w", err)
	}
	decoded := Item{
		ID:         env.ID,
		Kind:       env.Kind,
		CategoryID: env.CategoryID,
		TagIDs:     env.TagIDs,
		AddedAt:    env.AddedAt,
		ModifiedAt: env.ModifiedAt,
		Notes:      env.Notes,
		Favorite:   env.Favorite,
		Parsed:     env.Parsed,
		Bookmark:   env.Bookmark,
		Image:      env.Image,
		Text:       env.Text,
	}
	if err := decoded.checkPayload(); err != nil {
		return err
	}
	*i = decoded
	return nil
}

// Clone returns a deep copy so callers can mutate without racing readers.
func (i Item) Clone() Item {
	out := i
	if i.TagIDs != nil {
		out.TagIDs = append([]string(nil), i.TagIDs...)
	}
	if i.ModifiedAt != nil {
		ts := *i.ModifiedAt
		out.ModifiedAt = &ts
	}
	if i.Bookmark != nil {
		b := *i.Bookmark
		out.Bookmark = &b
	}
	if i.Image != nil {
		img := *i.Image
		out.Image = &img
	}
	if i.Text != nil {
		txt := *i.Text
		out.Text = &txt
	}
	return out
}

// Category groups items. The three system categories always exist and are
// immutable.
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Icon  string `json:"icon,omitempty"`
	Color string `json:"color,omitempty"`
}

// Fixed ids for the system categories.
const (
	CategoryAllID       = "category-all"
	CategoryFavoritesID = "category-favorites"
	CategoryNoneID      = "category-none"
)

// SystemCategories returns the three built-in categories in display order.
func SystemCategories() []Category {
	return []Category{
		{ID: CategoryAllID, Name: "All", Icon: "tray.full"},
		{ID: CategoryFavoritesID, Name: "Favorites", Icon: "star"},
		{ID: CategoryNoneID, Name: "None", Icon: "tray"},
	}
}

// IsSystemCategory reports whether id names a built-in category.
func IsSystemCategory(id string) bool {
	switch id {
	case CategoryAllID, CategoryFavoritesID, CategoryNoneID:
		return true
	default:
		return false
	}
}

// Tag labels items across categories.
type Tag struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}
