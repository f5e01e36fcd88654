// Package persist implements the durable JSON document backend for the
// collection store.
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mstanton/curator/internal/collection"
)

// Document file names inside the data directory.
const (
	ItemsFile       = "items.json"
	CategoriesFile  = "categories.json"
	TagsFile        = "tags.json"
	PreferencesFile = "preferences.json"

	// FilesDir holds raw local image files referenced by bare filename.
	FilesDir = "files"
)

// Snapshot is a full copy of the store contents written as four independent
// documents.
type Snapshot struct {
	Items       []collection.Item
	Categories  []collection.Category
	Tags        []collection.Tag
	Preferences map[string]string
}

// Config captures the parameters for the backend.
type Config struct {
	// Dir is the data directory the four documents live in.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// Backend persists snapshots to disk. Writes queued via Enqueue run on a
// single background goroutine and are serialized among themselves; a
// snapshot queued while a flush is in progress replaces any still-pending
// snapshot, so at most one write waits at a time.
type Backend struct {
	logger *zap.Logger

	mu      sync.Mutex
	dir     string
	pending *Snapshot
	wake    chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	closed  bool
}

// New validates the data directory and starts the background writer.
func New(cfg Config, logger *zap.Logger) (*Backend, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := ensureDir(cfg.Dir); err != nil {
		return nil, err
	}
	b := &Backend{
		logger: logger,
		dir:    cfg.Dir,
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go b.run()
	return b, nil
}

func ensureDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
				return fmt.Errorf("create data directory: %w", mkErr)
			}
			return nil
		}
		return fmt.Errorf("stat data directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data directory path is not a directory")
	}
	return nil
}

// Dir returns the current data directory.
func (b *Backend) Dir() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dir
}

// Load reads the four documents. Missing files yield empty collections so a
// fresh directory starts clean.
func (b *Backend) Load() (Snapshot, error) {
	return ReadFrom(b.Dir())
}

func readDoc(path string, out any) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path is built from the configured data dir
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

// WriteTo writes a snapshot's four documents into an arbitrary directory,
// using the same format as the data directory. Used by archive export.
func WriteTo(dir string, snap Snapshot) error {
	if err := ensureDir(dir); err != nil {
		return err
	}
	return writeSnapshot(dir, snap)
}

// ReadFrom reads a snapshot's four documents from an arbitrary directory.
// Missing files yield empty collections. Used by archive import.
func ReadFrom(dir string) (Snapshot, error) {
	snap := Snapshot{Preferences: map[string]string{}}
	if err := readDoc(filepath.Join(dir, ItemsFile), &snap.Items); err != nil {
		return Snapshot{}, err
	}
	if err := readDoc(filepath.Join(dir, CategoriesFile), &snap.Categories); err != nil {
		return Snapshot{}, err
	}
	if err := readDoc(filepath.Join(dir, TagsFile), &snap.Tags); err != nil {
		return Snapshot{}, err
	}
	if err := readDoc(filepath.Join(dir, PreferencesFile), &snap.Preferences); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Enqueue schedules an asynchronous flush of the snapshot. It replaces any
// snapshot still waiting behind an in-progress flush and never blocks.
func (b *Backend) Enqueue(snap Snapshot) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.pending = &snap
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Flush writes the snapshot synchronously, bypassing the queue. Used before
// the storage location changes and during shutdown.
func (b *Backend) Flush(_ context.Context, snap Snapshot) error {
	b.mu.Lock()
	dir := b.dir
	b.pending = nil
	b.mu.Unlock()
	return writeSnapshot(dir, snap)
}

// Relocate points the backend at a new data directory. Documents and local
// files are copied over first; files already present at the destination are
// never overwritten. The caller must have completed a forced flush.
func (b *Backend) Relocate(newDir string) error {
	if strings.TrimSpace(newDir) == "" {
		return fmt.Errorf("new data directory is required")
	}
	if err := ensureDir(newDir); err != nil {
		return err
	}
	oldDir := b.Dir()
	if filepath.Clean(oldDir) == filepath.Clean(newDir) {
		return nil
	}
	if err := copyMissing(oldDir, newDir); err != nil {
		return err
	}
	b.mu.Lock()
	b.dir = newDir
	b.mu.Unlock()
	b.logger.Info("storage location changed",
		zap.String("from", oldDir),
		zap.String("to", newDir),
	)
	return nil
}

func copyMissing(src, dst string) error {
	for _, name := range []string{ItemsFile, CategoriesFile, TagsFile, PreferencesFile} {
		if err := copyFileIfAbsent(filepath.Join(src, name), filepath.Join(dst, name)); err != nil {
			return err
		}
	}
	srcFiles := filepath.Join(src, FilesDir)
	entries, err := os.ReadDir(srcFiles)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read files dir: %w", err)
	}
	if err := ensureDir(filepath.Join(dst, FilesDir)); err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		err := copyFileIfAbsent(
			filepath.Join(srcFiles, entry.Name()),
			filepath.Join(dst, FilesDir, entry.Name()),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func copyFileIfAbsent(src, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", dst, err)
	}
	data, err := os.ReadFile(src) // #nosec G304 -- both paths are managed directories
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", src, err)
	}
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return nil
}

// Close flushes any pending snapshot and stops the background writer.
func (b *Backend) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.doneCh
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.stopCh)
	select {
	case <-b.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("backend close wait: %w", ctx.Err())
	}
}

func (b *Backend) run() {
	defer close(b.doneCh)
	for {
		select {
		case <-b.wake:
			b.flushPending()
		case <-b.stopCh:
			b.flushPending()
			return
		}
	}
}

func (b *Backend) flushPending() {
	b.mu.Lock()
	snap := b.pending
	b.pending = nil
	dir := b.dir
	b.mu.Unlock()
	if snap == nil {
		return
	}
	if err := writeSnapshot(dir, *snap); err != nil {
		// In-memory state stays the source of truth for the session.
		b.logger.Error("background flush failed", zap.Error(err))
	}
}

func writeSnapshot(dir string, snap Snapshot) error {
	if snap.Items == nil {
		snap.Items = []collection.Item{}
	}
	if snap.Categories == nil {
		snap.Categories = []collection.Category{}
	}
	if snap.Tags == nil {
		snap.Tags = []collection.Tag{}
	}
	if snap.Preferences == nil {
		snap.Preferences = map[string]string{}
	}
	if err := writeDoc(filepath.Join(dir, ItemsFile), snap.Items); err != nil {
		return err
	}
	if err := writeDoc(filepath.Join(dir, CategoriesFile), snap.Categories); err != nil {
		return err
	}
	if err := writeDoc(filepath.Join(dir, TagsFile), snap.Tags); err != nil {
		return err
	}
	return writeDoc(filepath.Join(dir, PreferencesFile), snap.Preferences)
}

// writeDoc writes pretty-printed JSON via a temp file and rename so readers
// never observe a torn document. Struct fields keep declaration order and
// map keys are sorted, so diffs stay stable across saves.
func writeDoc(path string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", filepath.Base(path), err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
