package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mstanton/curator/internal/collection"
	"github.com/mstanton/curator/internal/persist"
)

// ImportReport summarizes what an import merged and what it left alone.
type ImportReport struct {
	ItemsAdded        int `json:"items_added"`
	ItemsSkipped      int `json:"items_skipped"`
	CategoriesAdded   int `json:"categories_added"`
	CategoriesSkipped int `json:"categories_skipped"`
	TagsAdded         int `json:"tags_added"`
	TagsSkipped       int `json:"tags_skipped"`
	FilesCopied       int `json:"files_copied"`
}

// Import merges the archive at srcDir into the live store. Categories and
// tags merge by case-insensitive name, items by id; nothing already present
// is modified. Category and tag references on imported items are remapped to
// the surviving ids.
func (a *Archiver) Import(srcDir string) (ImportReport, error) {
	info, err := os.Stat(srcDir)
	if err != nil {
		return ImportReport{}, fmt.Errorf("archive directory: %w", err)
	}
	if !info.IsDir() {
		return ImportReport{}, fmt.Errorf("archive path %s is not a directory", srcDir)
	}

	snap, err := persist.ReadFrom(srcDir)
	if err != nil {
		return ImportReport{}, fmt.Errorf("read archive: %w", err)
	}

	var report ImportReport
	catIDs, err := a.mergeCategories(snap.Categories, &report)
	if err != nil {
		return report, err
	}
	tagIDs, err := a.mergeTags(snap.Tags, &report)
	if err != nil {
		return report, err
	}
	if err := a.mergeItems(snap.Items, catIDs, tagIDs, &report); err != nil {
		return report, err
	}
	copied, err := a.importFiles(srcDir)
	if err != nil {
		return report, err
	}
	report.FilesCopied = copied

	a.logger.Info("imported archive",
		zap.String("dir", srcDir),
		zap.Int("items_added", report.ItemsAdded),
		zap.Int("items_skipped", report.ItemsSkipped),
	)
	return report, nil
}

// mergeCategories returns old-id to surviving-id mappings. An archived
// category whose name already exists maps onto the existing category.
func (a *Archiver) mergeCategories(cats []collection.Category, report *ImportReport) (map[string]string, error) {
	remap := make(map[string]string, len(cats))
	for _, cat := range cats {
		if collection.IsSystemCategory(cat.ID) {
			// System categories exist in every store; pass them through.
			remap[cat.ID] = cat.ID
			continue
		}
		if existing, ok := a.store.FindCategoryByName(cat.Name); ok {
			remap[cat.ID] = existing.ID
			report.CategoriesSkipped++
			continue
		}
		if err := a.addCategoryFresh(cat, remap); err != nil {
			return nil, err
		}
		report.CategoriesAdded++
	}
	return remap, nil
}

func (a *Archiver) addCategoryFresh(cat collection.Category, remap map[string]string) error {
	oldID := cat.ID
	err := a.store.AddCategory(cat)
	if errors.Is(err, collection.ErrDuplicateID) {
		// Id collision with an unrelated existing category; mint a new id.
		fresh, idErr := a.ids.NewID()
		if idErr != nil {
			return fmt.Errorf("generate category id: %w", idErr)
		}
		cat.ID = fresh
		err = a.store.AddCategory(cat)
	}
	if err != nil {
		return fmt.Errorf("import category %q: %w", cat.Name, err)
	}
	remap[oldID] = cat.ID
	return nil
}

func (a *Archiver) mergeTags(tags []collection.Tag, report *ImportReport) (map[string]string, error) {
	remap := make(map[string]string, len(tags))
	for _, tag := range tags {
		if existing, ok := a.store.FindTagByName(tag.Name); ok {
			remap[tag.ID] = existing.ID
			report.TagsSkipped++
			continue
		}
		oldID := tag.ID
		err := a.store.AddTag(tag)
		if errors.Is(err, collection.ErrDuplicateID) {
			fresh, idErr := a.ids.NewID()
			if idErr != nil {
				return nil, fmt.Errorf("generate tag id: %w", idErr)
			}
			tag.ID = fresh
			err = a.store.AddTag(tag)
		}
		if err != nil {
			return nil, fmt.Errorf("import tag %q: %w", tag.Name, err)
		}
		remap[oldID] = tag.ID
		report.TagsAdded++
	}
	return remap, nil
}

func (a *Archiver) mergeItems(items []collection.Item, catIDs, tagIDs map[string]string, report *ImportReport) error {
	for _, item := range items {
		if _, err := a.store.FetchItem(item.ID); err == nil {
			report.ItemsSkipped++
			continue
		}

		imported := item.Clone()
		imported.CategoryID = remapCategory(imported.CategoryID, catIDs)
		imported.TagIDs = remapTags(imported.TagIDs, tagIDs)

		err := a.store.AddItem(imported)
		switch {
		case err == nil:
			report.ItemsAdded++
		case errors.Is(err, collection.ErrDuplicateURL):
			// Same bookmark already saved under a different id.
			report.ItemsSkipped++
		default:
			return fmt.Errorf("import item %s: %w", item.ID, err)
		}
	}
	return nil
}

func remapCategory(id string, remap map[string]string) string {
	if collection.IsSystemCategory(id) {
		return id
	}
	if mapped, ok := remap[id]; ok {
		return mapped
	}
	// Dangling reference in the archive; file under None rather than reject.
	return collection.CategoryNoneID
}

func remapTags(ids []string, remap map[string]string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		mapped, ok := remap[id]
		if !ok {
			continue
		}
		if _, dup := seen[mapped]; dup {
			continue
		}
		seen[mapped] = struct{}{}
		out = append(out, mapped)
	}
	return out
}

// importFiles copies the archive's files directory into the live data
// directory without overwriting anything already there.
func (a *Archiver) importFiles(srcDir string) (int, error) {
	src := filepath.Join(srcDir, persist.FilesDir)
	entries, err := os.ReadDir(src)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read archive files dir: %w", err)
	}

	dst := filepath.Join(a.dataDir(), persist.FilesDir)
	if err := os.MkdirAll(dst, 0o750); err != nil {
		return 0, fmt.Errorf("create files dir: %w", err)
	}

	copied := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		dstPath := filepath.Join(dst, entry.Name())
		if _, err := os.Stat(dstPath); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return copied, fmt.Errorf("stat %s: %w", dstPath, err)
		}
		data, err := os.ReadFile(filepath.Join(src, entry.Name())) // #nosec G304 -- archive directory contents
		if err != nil {
			return copied, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		if err := os.WriteFile(dstPath, data, 0o600); err != nil {
			return copied, fmt.Errorf("copy %s: %w", entry.Name(), err)
		}
		copied++
	}
	return copied, nil
}
