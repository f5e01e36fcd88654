// Package archive writes and merges portable snapshots of the collection:
// the four JSON documents plus a files directory of raw local images.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/mstanton/curator/internal/collection"
	"github.com/mstanton/curator/internal/persist"
)

const exportDirFormat = "curator-export-20060102-150405"

// Store is the slice of the collection store the archiver needs.
type Store interface {
	Snapshot() persist.Snapshot
	FetchItem(id string) (collection.Item, error)
	AddItem(item collection.Item) error
	AddCategory(cat collection.Category) error
	AddTag(tag collection.Tag) error
	FindCategoryByName(name string) (collection.Category, bool)
	FindTagByName(name string) (collection.Tag, bool)
}

// Archiver exports and imports collection snapshots.
type Archiver struct {
	store   Store
	dataDir func() string
	clock   collection.Clock
	ids     collection.IDGenerator
	logger  *zap.Logger
}

// New wires an archiver. dataDir resolves the live data directory at call
// time because the storage location can change at runtime.
func New(store Store, dataDir func() string, clock collection.Clock, ids collection.IDGenerator, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		store:   store,
		dataDir: dataDir,
		clock:   clock,
		ids:     ids,
		logger:  logger,
	}
}

// Export writes a fresh timestamped snapshot directory under destRoot and
// returns its path. Existing directories are never overwritten; a name
// collision within the same second gets a numeric suffix.
func (a *Archiver) Export(destRoot string) (string, error) {
	if strings.TrimSpace(destRoot) == "" {
		return "", fmt.Errorf("export destination is required")
	}
	if err := os.MkdirAll(destRoot, 0o750); err != nil {
		return "", fmt.Errorf("create export root: %w", err)
	}

	dir, err := a.freshExportDir(destRoot)
	if err != nil {
		return "", err
	}

	snap := a.store.Snapshot()
	if err := persist.WriteTo(dir, snap); err != nil {
		return "", fmt.Errorf("write export documents: %w", err)
	}
	copied, err := a.copyLocalFiles(snap.Items, dir)
	if err != nil {
		return "", err
	}

	a.logger.Info("exported collection",
		zap.String("dir", dir),
		zap.Int("items", len(snap.Items)),
		zap.Int("files", copied),
	)
	return dir, nil
}

func (a *Archiver) freshExportDir(destRoot string) (string, error) {
	base := a.clock.Now().Format(exportDirFormat)
	for i := 0; i < 100; i++ {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s-%d", base, i)
		}
		dir := filepath.Join(destRoot, name)
		err := os.Mkdir(dir, 0o750)
		if err == nil {
			return dir, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("create export directory: %w", err)
		}
	}
	return "", fmt.Errorf("could not find a free export directory name under %s", destRoot)
}

// copyLocalFiles copies every local image file referenced by the snapshot's
// items into dir/files. Missing source files are logged and skipped so one
// lost thumbnail does not fail the whole export.
func (a *Archiver) copyLocalFiles(items []collection.Item, dir string) (int, error) {
	names := referencedFiles(items)
	if len(names) == 0 {
		return 0, nil
	}

	srcDir := filepath.Join(a.dataDir(), persist.FilesDir)
	dstDir := filepath.Join(dir, persist.FilesDir)
	if err := os.MkdirAll(dstDir, 0o750); err != nil {
		return 0, fmt.Errorf("create export files dir: %w", err)
	}

	copied := 0
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(srcDir, name)) // #nosec G304 -- name is a bare filename inside the data dir
		if err != nil {
			if os.IsNotExist(err) {
				a.logger.Warn("referenced file missing from data directory", zap.String("file", name))
				continue
			}
			return copied, fmt.Errorf("read %s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(dstDir, name), data, 0o600); err != nil {
			return copied, fmt.Errorf("copy %s: %w", name, err)
		}
		copied++
	}
	return copied, nil
}

// referencedFiles collects the distinct bare filenames of local image paths,
// skipping anything that is an http(s) URL.
func referencedFiles(items []collection.Item) []string {
	seen := make(map[string]struct{})
	var names []string
	add := func(p string) {
		if p == "" || strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
			return
		}
		name := filepath.Base(p)
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	for _, item := range items {
		if item.Image != nil {
			add(item.Image.Path)
			add(item.Image.ThumbnailPath)
		}
	}
	return names
}
