package freetext

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const (
	lockFileName     = "write.lock"
	manifestFileName = "commit.json"
	indexDirName     = "index"
)

// Directory is the exclusive handle on the engine's storage location. It owns
// the cross-process lock and the durable commit manifest; the writer and
// searcher manager borrow it for the engine's lifetime.
type Directory struct {
	root string
	lock *flock.Flock
}

// commitManifest is the fsynced record of the last durably committed
// generation.
type commitManifest struct {
	Generation  Generation `json:"generation"`
	DocCount    uint64     `json:"doc_count"`
	CommittedAt time.Time  `json:"committed_at"`
}

// OpenDirectory creates the storage location if missing and takes the
// exclusive lock. A lock file left behind by a crashed process is cleared:
// flock locks die with their holder, so a lock file that can still be
// acquired is stale.
func OpenDirectory(root string) (*Directory, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create index directory %s: %w", root, err)
	}

	lockPath := filepath.Join(root, lockFileName)
	_, statErr := os.Stat(lockPath)
	stale := statErr == nil

	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock index directory %s: %w", root, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrIndexLocked, root)
	}
	if stale {
		slog.Info("index_unlocked", slog.String("path", root))
	}

	return &Directory{root: root, lock: lock}, nil
}

// Root returns the storage location path.
func (d *Directory) Root() string { return d.root }

// IndexPath returns the path of the Bleve index inside the storage location.
func (d *Directory) IndexPath() string {
	return filepath.Join(d.root, indexDirName)
}

func (d *Directory) manifestPath() string {
	return filepath.Join(d.root, manifestFileName)
}

// WriteManifest durably records the given generation as committed. The
// manifest is written to a temp file, fsynced, then renamed into place.
func (d *Directory) WriteManifest(gen Generation, docCount uint64) error {
	m := commitManifest{
		Generation:  gen,
		DocCount:    docCount,
		CommittedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode commit manifest: %w", err)
	}

	tmp := d.manifestPath() + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open commit manifest: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write commit manifest: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync commit manifest: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close commit manifest: %w", err)
	}
	if err := os.Rename(tmp, d.manifestPath()); err != nil {
		return fmt.Errorf("rename commit manifest: %w", err)
	}
	return nil
}

// ReadManifest returns the last durably committed generation, or
// GenerationNone if no commit has happened yet.
func (d *Directory) ReadManifest() (Generation, error) {
	data, err := os.ReadFile(d.manifestPath())
	if os.IsNotExist(err) {
		return GenerationNone, nil
	}
	if err != nil {
		return GenerationNone, fmt.Errorf("read commit manifest: %w", err)
	}
	var m commitManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return GenerationNone, fmt.Errorf("parse commit manifest: %w", err)
	}
	return m.Generation, nil
}

// Close releases the exclusive lock and removes the lock file.
func (d *Directory) Close() error {
	if err := d.lock.Unlock(); err != nil {
		return fmt.Errorf("unlock index directory %s: %w", d.root, err)
	}
	_ = os.Remove(d.lock.Path())
	return nil
}

// Delete removes the entire storage location. The directory must be closed
// first.
func (d *Directory) Delete() error {
	if err := os.RemoveAll(d.root); err != nil {
		return fmt.Errorf("delete index directory %s: %w", d.root, err)
	}
	return nil
}
