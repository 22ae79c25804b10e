package freetext

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// State is the engine lifecycle state.
type State int32

const (
	// StateUninitialized means no storage is open; writes and searches are
	// rejected.
	StateUninitialized State = iota

	// StateReady is the only state accepting writes and searches.
	StateReady
)

func (s State) String() string {
	if s == StateReady {
		return "ready"
	}
	return "uninitialized"
}

// HealthCheckFunc probes a running engine. Concrete deployments define what
// "healthy" means; the default performs a snapshot acquire plus doc count.
type HealthCheckFunc func(ctx context.Context, e *Engine) error

// Config configures an Engine.
type Config struct {
	// Path is the storage location for the index.
	Path string

	// Language is the analyzer language code (default "en").
	Language string

	// StopWordsPath optionally points to a stopword list file.
	StopWordsPath string

	// FieldPipeline assigns analysis pipelines to fields; nil means every
	// field uses the normal pipeline.
	FieldPipeline FieldPipelineFunc

	// Fields lists field names to register explicit mappings for.
	Fields []string

	// ReopenTarget is the reopen scheduler's target interval (default 5s).
	ReopenTarget time.Duration

	// ReopenFloor is the minimum spacing between reopens (default 100ms).
	ReopenFloor time.Duration

	// CommitInterval is the commit scheduler's period (default 5m).
	CommitInterval time.Duration

	// HealthCheck overrides the default health probe.
	HealthCheck HealthCheckFunc
}

func (c Config) withDefaults() Config {
	if c.Language == "" {
		c.Language = "en"
	}
	if c.ReopenTarget <= 0 {
		c.ReopenTarget = 5 * time.Second
	}
	if c.ReopenFloor <= 0 {
		c.ReopenFloor = 100 * time.Millisecond
	}
	if c.CommitInterval <= 0 {
		c.CommitInterval = 5 * time.Minute
	}
	return c
}

// Engine is the near-real-time freetext index engine. It owns the directory,
// writer, searcher manager and both background schedulers for its lifetime.
type Engine struct {
	cfg       Config
	analyzers *AnalyzerRegistry
	tracker   *generationTracker
	state     atomic.Int32

	mu        sync.Mutex // guards lifecycle transitions
	dir       *Directory
	writer    *Writer
	searchers *SearcherManager
	reopen    *ReopenScheduler
	committer *CommitScheduler
}

// Stats is a point-in-time view of engine counters.
type Stats struct {
	State             string     `json:"state"`
	WriterGeneration  Generation `json:"writer_generation"`
	TrackedGeneration Generation `json:"tracked_generation"`
	VisibleGeneration Generation `json:"visible_generation"`
	DurableGeneration Generation `json:"durable_generation"`
	DocCount          uint64     `json:"doc_count"`
	Refreshes         int64      `json:"refreshes"`
	CommitFailures    int64      `json:"commit_failures"`
}

// Open creates an engine and initializes it. The returned engine is Ready.
func Open(cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:     cfg,
		tracker: &generationTracker{},
		analyzers: NewAnalyzerRegistry(AnalyzerOptions{
			Language:      cfg.Language,
			StopWordsPath: cfg.StopWordsPath,
			FieldPipeline: cfg.FieldPipeline,
			Fields:        cfg.Fields,
		}),
	}
	if err := e.Initialize(); err != nil {
		return nil, err
	}
	return e, nil
}

// Initialize opens the storage location, clears a stale lock, opens the
// writer, bootstraps the first snapshot and starts both schedulers. A failure
// here is fatal and leaves the engine Uninitialized.
func (e *Engine) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initializeLocked()
}

func (e *Engine) initializeLocked() error {
	if e.State() == StateReady {
		return nil
	}

	dir, err := OpenDirectory(e.cfg.Path)
	if err != nil {
		return err
	}

	im, err := e.analyzers.BuildIndexMapping()
	if err != nil {
		_ = dir.Close()
		return err
	}

	idx, err := openIndex(dir.IndexPath(), im)
	if err != nil {
		_ = dir.Close()
		return err
	}

	seed, err := dir.ReadManifest()
	if err != nil {
		slog.Warn("commit_manifest_unreadable", slog.String("error", err.Error()))
		seed = GenerationNone
	}

	writer := NewWriter(idx, dir, e.tracker, seed)
	e.tracker.Advance(seed)

	searchers := NewSearcherManager(writer)
	writer.onWrite = searchers.notifyWrite
	if err := searchers.Refresh(context.Background()); err != nil {
		_ = writer.Close()
		_ = dir.Close()
		return err
	}

	e.dir = dir
	e.writer = writer
	e.searchers = searchers

	e.reopen = NewReopenScheduler(searchers, writer, e.cfg.ReopenTarget, e.cfg.ReopenFloor)
	e.reopen.Start()
	e.committer = NewCommitScheduler(e.cfg.CommitInterval, writer.Commit)
	e.committer.Start()

	e.state.Store(int32(StateReady))
	slog.Info("index_opened",
		slog.String("path", e.cfg.Path),
		slog.String("language", e.cfg.Language),
		slog.Int64("generation", int64(seed)))
	return nil
}

// teardownLocked cancels the schedulers, then closes searcher manager,
// writer and directory in that order.
func (e *Engine) teardownLocked() error {
	if e.State() != StateReady {
		return nil
	}
	e.state.Store(int32(StateUninitialized))

	e.reopen.Stop()
	e.committer.Stop()

	var firstErr error
	if err := e.searchers.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.writer.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.dir.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Close tears the engine down, waiting for background tasks and outstanding
// snapshots. The engine ends Uninitialized; Initialize reopens it.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.teardownLocked()
}

// DeleteDirectory tears down the engine, deletes the underlying storage, then
// re-initializes, leaving an empty engine in the Ready state.
func (e *Engine) DeleteDirectory() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.teardownLocked(); err != nil {
		return err
	}
	if err := e.dir.Delete(); err != nil {
		return err
	}
	slog.Info("index_deleted", slog.String("path", e.cfg.Path))

	// The fresh index starts over at generation zero; a stale tracker value
	// would leave waiters blocked on generations that can never arrive. Reset
	// in place: TrackedGeneration reads the tracker without holding e.mu.
	e.tracker.Reset()
	return e.initializeLocked()
}

// Modify submits one mutation batch to the writer coordinator and returns its
// generation. See Writer.Modify for the error contract.
func (e *Engine) Modify(ctx context.Context, builder IndexBuilder) (Generation, error) {
	if e.State() != StateReady {
		return GenerationNone, ErrNotReady
	}
	return e.writer.Modify(ctx, builder)
}

// WaitForGeneration blocks until the given generation is visible to searches.
func (e *Engine) WaitForGeneration(ctx context.Context, gen Generation) error {
	if e.State() != StateReady {
		return ErrNotReady
	}
	return e.searchers.WaitForGeneration(ctx, gen)
}

// TrackedGeneration returns the highest generation any tracked write has
// produced on this engine.
func (e *Engine) TrackedGeneration() Generation {
	return e.tracker.Current()
}

// State returns the engine lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// CheckHealth runs the configured health probe, or the default snapshot
// round trip. It is independent of normal read/write traffic.
func (e *Engine) CheckHealth(ctx context.Context) error {
	if e.State() != StateReady {
		return ErrNotReady
	}
	if e.cfg.HealthCheck != nil {
		return e.cfg.HealthCheck(ctx, e)
	}
	return defaultHealthCheck(ctx, e)
}

func defaultHealthCheck(ctx context.Context, e *Engine) error {
	_, err := Search(ctx, e, func(ctx context.Context, snap *Snapshot) (uint64, error) {
		return snap.Index().DocCount()
	})
	if err != nil {
		return fmt.Errorf("health probe: %w", err)
	}
	return nil
}

// Stats reports current engine counters.
func (e *Engine) Stats() Stats {
	s := Stats{State: e.State().String()}
	if e.State() != StateReady {
		return s
	}
	s.WriterGeneration = e.writer.Generation()
	s.TrackedGeneration = e.tracker.Current()
	s.VisibleGeneration = e.searchers.Visible()
	s.Refreshes = e.searchers.Refreshes()
	s.CommitFailures = e.committer.Failures()
	if g, err := e.dir.ReadManifest(); err == nil {
		s.DurableGeneration = g
	}
	if n, err := e.writer.DocCount(); err == nil {
		s.DocCount = n
	}
	return s
}

// openIndex opens or creates the Bleve index, detecting and clearing a
// corrupted index rather than refusing to start.
func openIndex(path string, im mapping.IndexMapping) (bleve.Index, error) {
	if err := validateIndexIntegrity(path); err != nil {
		slog.Warn("index_corrupted",
			slog.String("path", path),
			slog.String("error", err.Error()))
		if removeErr := os.RemoveAll(path); removeErr != nil {
			return nil, fmt.Errorf("index corrupted at %s and cannot remove: %w (original error: %v)",
				path, removeErr, err)
		}
		slog.Info("index_cleared", slog.String("path", path))
	}

	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, im)
	} else if err != nil && isCorruptionError(err) {
		slog.Warn("index_open_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		if removeErr := os.RemoveAll(path); removeErr != nil {
			return nil, fmt.Errorf("index corrupted, cannot clear: %w (original: %v)", removeErr, err)
		}
		slog.Info("index_cleared", slog.String("path", path))
		idx, err = bleve.New(path, im)
	}
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	return idx, nil
}

// validateIndexIntegrity checks a Bleve index directory before opening.
// Returns nil if the index is valid or absent.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// isCorruptionError reports whether an error from bleve.Open indicates
// corruption rather than a transient failure.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	if err == bleve.ErrorIndexMetaCorrupt {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt")
}
