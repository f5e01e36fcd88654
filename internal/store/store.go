// Package store implements the thread-safe document store over collection
// items, categories, tags, and preferences.
package store

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mstanton/curator/internal/collection"
	"github.com/mstanton/curator/internal/persist"
)

// Store owns all persisted state in memory and serializes concurrent access
// under a single-writer/multiple-reader discipline. Every mutation enqueues
// a snapshot flush on the persistence backend.
type Store struct {
	logger  *zap.Logger
	backend *persist.Backend
	clock   collection.Clock

	mu         sync.RWMutex
	items      map[string]collection.Item
	categories map[string]collection.Category
	tags       map[string]collection.Tag
	prefs      map[string]string
	urlKeys    map[string]string // normalized bookmark URL -> item id
}

// New loads the backend's snapshot, heals legacy absolute file paths, and
// guarantees that the three system categories exist.
func New(backend *persist.Backend, clock collection.Clock, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	snap, err := backend.Load()
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	s := &Store{
		logger:     logger,
		backend:    backend,
		clock:      clock,
		items:      make(map[string]collection.Item, len(snap.Items)),
		categories: make(map[string]collection.Category, len(snap.Categories)+3),
		tags:       make(map[string]collection.Tag, len(snap.Tags)),
		prefs:      make(map[string]string, len(snap.Preferences)),
		urlKeys:    make(map[string]string),
	}

	for _, c := range collection.SystemCategories() {
		s.categories[c.ID] = c
	}
	for _, c := range snap.Categories {
		if collection.IsSystemCategory(c.ID) {
			continue
		}
		s.categories[c.ID] = c
	}
	for _, t := range snap.Tags {
		s.tags[t.ID] = t
	}
	for k, v := range snap.Preferences {
		s.prefs[k] = v
	}
	for _, item := range snap.Items {
		healed := item.Clone()
		normalizePaths(&healed)
		s.items[healed.ID] = healed
		if key, ok := bookmarkKey(healed); ok {
			s.urlKeys[key] = healed.ID
		}
	}
	return s, nil
}

// --- items ---

// AddItem inserts a new item. It fails with ErrDuplicateID when the id is
// taken, ErrDuplicateURL when a bookmark collides on its normalized URL, and
// ErrUnknownCategory when the category reference is dangling.
func (s *Store) AddItem(item collection.Item) error {
	item = item.Clone()
	if err := s.prepareItem(&item); err != nil {
		return err
	}
	if item.AddedAt.IsZero() {
		item.AddedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[item.ID]; exists {
		return fmt.Errorf("item %s: %w", item.ID, collection.ErrDuplicateID)
	}
	if _, ok := s.categories[item.CategoryID]; !ok {
		return fmt.Errorf("item %s references %s: %w", item.ID, item.CategoryID, collection.ErrUnknownCategory)
	}
	key, isBookmark := bookmarkKey(item)
	if isBookmark {
		if otherID, taken := s.urlKeys[key]; taken {
			return fmt.Errorf("url already saved as item %s: %w", otherID, collection.ErrDuplicateURL)
		}
	}

	s.items[item.ID] = item
	if isBookmark {
		s.urlKeys[key] = item.ID
	}
	s.persistLocked()
	return nil
}

// UpdateItem overwrites the stored item wholesale after re-validating every
// invariant. The duplicate-URL check excludes the item itself.
func (s *Store) UpdateItem(item collection.Item) error {
	item = item.Clone()
	if err := s.prepareItem(&item); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.items[item.ID]
	if !exists {
		return fmt.Errorf("item %s: %w", item.ID, collection.ErrNotFound)
	}
	if _, ok := s.categories[item.CategoryID]; !ok {
		return fmt.Errorf("item %s references %s: %w", item.ID, item.CategoryID, collection.ErrUnknownCategory)
	}
	key, isBookmark := bookmarkKey(item)
	if isBookmark {
		if otherID, taken := s.urlKeys[key]; taken && otherID != item.ID {
			return fmt.Errorf("url already saved as item %s: %w", otherID, collection.ErrDuplicateURL)
		}
	}

	if item.AddedAt.IsZero() {
		item.AddedAt = prev.AddedAt
	}
	now := s.now()
	item.ModifiedAt = &now

	if prevKey, ok := bookmarkKey(prev); ok {
		delete(s.urlKeys, prevKey)
	}
	s.items[item.ID] = item
	if isBookmark {
		s.urlKeys[key] = item.ID
	}
	s.persistLocked()
	return nil
}

// DeleteItem removes an item by id.
func (s *Store) DeleteItem(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.items[id]
	if !exists {
		return fmt.Errorf("item %s: %w", id, collection.ErrNotFound)
	}
	if key, ok := bookmarkKey(item); ok {
		delete(s.urlKeys, key)
	}
	delete(s.items, id)
	s.persistLocked()
	return nil
}

// FetchItem returns one item by id.
func (s *Store) FetchItem(id string) (collection.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return collection.Item{}, fmt.Errorf("item %s: %w", id, collection.ErrNotFound)
	}
	return item.Clone(), nil
}

// FetchAllItems returns every item, oldest first.
func (s *Store) FetchAllItems() []collection.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectLocked(func(collection.Item) bool { return true })
}

// FetchByCategory returns the items visible under a category. The system
// categories keep their UI meaning: All matches everything, Favorites
// matches favorites, None matches items filed under None.
func (s *Store) FetchByCategory(categoryID string) []collection.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch categoryID {
	case collection.CategoryAllID:
		return s.collectLocked(func(collection.Item) bool { return true })
	case collection.CategoryFavoritesID:
		return s.collectLocked(func(i collection.Item) bool { return i.Favorite })
	default:
		return s.collectLocked(func(i collection.Item) bool { return i.CategoryID == categoryID })
	}
}

// FetchByTag returns the items carrying the given tag.
func (s *Store) FetchByTag(tagID string) []collection.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectLocked(func(i collection.Item) bool {
		for _, id := range i.TagIDs {
			if id == tagID {
				return true
			}
		}
		return false
	})
}

// FetchFavorites returns every item flagged as favorite.
func (s *Store) FetchFavorites() []collection.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectLocked(func(i collection.Item) bool { return i.Favorite })
}

// --- categories ---

// AddCategory inserts a category; names are unique case-insensitively.
func (s *Store) AddCategory(cat collection.Category) error {
	if cat.ID == "" || strings.TrimSpace(cat.Name) == "" {
		return fmt.Errorf("category id and name are required")
	}
	if collection.IsSystemCategory(cat.ID) {
		return fmt.Errorf("category %s: %w", cat.ID, collection.ErrSystemCategory)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categories[cat.ID]; exists {
		return fmt.Errorf("category %s: %w", cat.ID, collection.ErrDuplicateID)
	}
	if s.categoryNameTakenLocked(cat.Name, "") {
		return fmt.Errorf("category name %q: %w", cat.Name, collection.ErrDuplicateName)
	}
	s.categories[cat.ID] = cat
	s.persistLocked()
	return nil
}

// UpdateCategory renames or restyles a category. The uniqueness check
// excludes the category itself, so renaming to a case variant of its own
// name succeeds.
func (s *Store) UpdateCategory(cat collection.Category) error {
	if collection.IsSystemCategory(cat.ID) {
		return fmt.Errorf("category %s: %w", cat.ID, collection.ErrSystemCategory)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categories[cat.ID]; !exists {
		return fmt.Errorf("category %s: %w", cat.ID, collection.ErrNotFound)
	}
	if s.categoryNameTakenLocked(cat.Name, cat.ID) {
		return fmt.Errorf("category name %q: %w", cat.Name, collection.ErrDuplicateName)
	}
	s.categories[cat.ID] = cat
	s.persistLocked()
	return nil
}

// DeleteCategory removes a category. Callers own the cascade: items filed
// under the category must already have been reassigned (normally to None).
func (s *Store) DeleteCategory(id string) error {
	if collection.IsSystemCategory(id) {
		return fmt.Errorf("category %s: %w", id, collection.ErrSystemCategory)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categories[id]; !exists {
		return fmt.Errorf("category %s: %w", id, collection.ErrNotFound)
	}
	delete(s.categories, id)
	s.persistLocked()
	return nil
}

// FetchAllCategories returns system categories first, then user categories
// sorted by name.
func (s *Store) FetchAllCategories() []collection.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := collection.SystemCategories()
	user := make([]collection.Category, 0, len(s.categories))
	for _, c := range s.categories {
		if !collection.IsSystemCategory(c.ID) {
			user = append(user, c)
		}
	}
	sort.Slice(user, func(i, j int) bool {
		return strings.ToLower(user[i].Name) < strings.ToLower(user[j].Name)
	})
	return append(out, user...)
}

// FindCategoryByName looks a category up case-insensitively.
func (s *Store) FindCategoryByName(name string) (collection.Category, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.categories {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return collection.Category{}, false
}

// --- tags ---

// AddTag inserts a tag; names are unique case-insensitively.
func (s *Store) AddTag(tag collection.Tag) error {
	if tag.ID == "" || strings.TrimSpace(tag.Name) == "" {
		return fmt.Errorf("tag id and name are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tags[tag.ID]; exists {
		return fmt.Errorf("tag %s: %w", tag.ID, collection.ErrDuplicateID)
	}
	if s.tagNameTakenLocked(tag.Name, "") {
		return fmt.Errorf("tag name %q: %w", tag.Name, collection.ErrDuplicateName)
	}
	s.tags[tag.ID] = tag
	s.persistLocked()
	return nil
}

// UpdateTag renames or restyles a tag, excluding itself from the name check.
func (s *Store) UpdateTag(tag collection.Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tags[tag.ID]; !exists {
		return fmt.Errorf("tag %s: %w", tag.ID, collection.ErrNotFound)
	}
	if s.tagNameTakenLocked(tag.Name, tag.ID) {
		return fmt.Errorf("tag name %q: %w", tag.Name, collection.ErrDuplicateName)
	}
	s.tags[tag.ID] = tag
	s.persistLocked()
	return nil
}

// DeleteTag removes a tag and strips it from every item's tag list.
func (s *Store) DeleteTag(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tags[id]; !exists {
		return fmt.Errorf("tag %s: %w", id, collection.ErrNotFound)
	}
	delete(s.tags, id)
	for itemID, item := range s.items {
		filtered := item.TagIDs[:0:0]
		for _, tagID := range item.TagIDs {
			if tagID != id {
				filtered = append(filtered, tagID)
			}
		}
		if len(filtered) != len(item.TagIDs) {
			item.TagIDs = filtered
			s.items[itemID] = item
		}
	}
	s.persistLocked()
	return nil
}

// FetchAllTags returns every tag sorted by name.
func (s *Store) FetchAllTags() []collection.Tag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]collection.Tag, 0, len(s.tags))
	for _, t := range s.tags {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// FindTagByName looks a tag up case-insensitively.
func (s *Store) FindTagByName(name string) (collection.Tag, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tags {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return collection.Tag{}, false
}

// --- preferences ---

// SetPreference stores a key/value pair, last write wins.
func (s *Store) SetPreference(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[key] = value
	s.persistLocked()
}

// Preference returns a value and whether it was set.
func (s *Store) Preference(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.prefs[key]
	return v, ok
}

// FetchAllPreferences copies the preference map.
func (s *Store) FetchAllPreferences() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.prefs))
	for k, v := range s.prefs {
		out[k] = v
	}
	return out
}

// --- persistence ---

// ForceSaveAll flushes every collection to disk synchronously. It must
// complete before the durable storage location is switched.
func (s *Store) ForceSaveAll(ctx context.Context) error {
	s.mu.RLock()
	snap := s.snapshotLocked()
	s.mu.RUnlock()
	if err := s.backend.Flush(ctx, snap); err != nil {
		return fmt.Errorf("force save: %w", err)
	}
	return nil
}

// Snapshot returns a full copy of the store contents for export.
func (s *Store) Snapshot() persist.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() persist.Snapshot {
	snap := persist.Snapshot{
		Items:       s.collectLocked(func(collection.Item) bool { return true }),
		Tags:        make([]collection.Tag, 0, len(s.tags)),
		Preferences: make(map[string]string, len(s.prefs)),
	}
	snap.Categories = collection.SystemCategories()
	user := make([]collection.Category, 0, len(s.categories))
	for _, c := range s.categories {
		if !collection.IsSystemCategory(c.ID) {
			user = append(user, c)
		}
	}
	sort.Slice(user, func(i, j int) bool { return user[i].ID < user[j].ID })
	snap.Categories = append(snap.Categories, user...)

	for _, t := range s.tags {
		snap.Tags = append(snap.Tags, t)
	}
	sort.Slice(snap.Tags, func(i, j int) bool { return snap.Tags[i].ID < snap.Tags[j].ID })
	for k, v := range s.prefs {
		snap.Preferences[k] = v
	}
	return snap
}

func (s *Store) persistLocked() {
	s.backend.Enqueue(s.snapshotLocked())
}

// --- internals ---

func (s *Store) now() time.Time {
	if s.clock != nil {
		return s.clock.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Store) prepareItem(item *collection.Item) error {
	if err := item.Validate(); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(item.TagIDs))
	for _, id := range item.TagIDs {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("item %s repeats tag %s", item.ID, id)
		}
		seen[id] = struct{}{}
	}
	normalizePaths(item)
	return nil
}

func (s *Store) collectLocked(keep func(collection.Item) bool) []collection.Item {
	out := make([]collection.Item, 0, len(s.items))
	for _, item := range s.items {
		if keep(item) {
			out = append(out, item.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].AddedAt.Before(out[j].AddedAt)
	})
	return out
}

func (s *Store) categoryNameTakenLocked(name, excludeID string) bool {
	for _, c := range s.categories {
		if c.ID != excludeID && strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

func (s *Store) tagNameTakenLocked(name, excludeID string) bool {
	for _, t := range s.tags {
		if t.ID != excludeID && strings.EqualFold(t.Name, name) {
			return true
		}
	}
	return false
}

func bookmarkKey(item collection.Item) (string, bool) {
	if item.Kind != collection.KindBookmark || item.Bookmark == nil {
		return "", false
	}
	key, err := collection.NormalizeURL(item.Bookmark.URL)
	if err != nil {
		// Unparseable URLs fall back to literal comparison.
		return item.Bookmark.URL, true
	}
	return key, true
}

// normalizePaths reduces any local filesystem path carried by the item to a
// bare filename so the persisted JSON stays portable across machines.
// http(s) URLs pass through untouched.
func normalizePaths(item *collection.Item) {
	if item.Image == nil {
		return
	}
	item.Image.Path = normalizeStoragePath(item.Image.Path)
	item.Image.ThumbnailPath = normalizeStoragePath(item.Image.ThumbnailPath)
}

func normalizeStoragePath(p string) string {
	if p == "" {
		return p
	}
	if u, err := url.Parse(p); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return p
	}
	return filepath.Base(p)
}
