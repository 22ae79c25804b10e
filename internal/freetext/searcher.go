package freetext

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"
	"golang.org/x/sync/singleflight"
)

// Snapshot is a view of the index bound to the generation that was current
// when the snapshot was produced. Its generation is a lower bound on what
// searches observe: writes applied after acquisition may also be visible, but
// never fewer. Snapshots are borrowed from the SearcherManager via Acquire
// and must be released exactly once.
type Snapshot struct {
	gen Generation
	idx bleve.Index

	// refs is guarded by the owning manager's mutex.
	refs int
}

// Generation returns the generation this snapshot reflects.
func (s *Snapshot) Generation() Generation { return s.gen }

// Index returns the index view for running queries.
func (s *Snapshot) Index() bleve.Index { return s.idx }

// Search runs a search request against this snapshot.
func (s *Snapshot) Search(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error) {
	return s.idx.SearchInContext(ctx, req)
}

// SearcherManager holds the current search snapshot and hands it out with
// reference counting. Refreshing swaps in a new snapshot at the writer's
// current generation; concurrent refreshes are merged.
type SearcherManager struct {
	writer *Writer

	mu          sync.Mutex
	current     *Snapshot
	watch       chan struct{} // closed and renewed on every refresh or write
	outstanding int
	closed      bool
	released    *sync.Cond

	sf        singleflight.Group
	refreshes atomic.Int64
}

// NewSearcherManager creates a manager over the writer's index. The caller
// must Refresh once before the first Acquire to bootstrap the initial
// snapshot.
func NewSearcherManager(writer *Writer) *SearcherManager {
	m := &SearcherManager{
		writer: writer,
		watch:  make(chan struct{}),
	}
	m.released = sync.NewCond(&m.mu)
	return m
}

// Acquire borrows the current snapshot, incrementing its refcount. It never
// blocks after the initial bootstrap refresh.
func (m *SearcherManager) Acquire() (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.current == nil {
		return nil, ErrNotReady
	}
	m.current.refs++
	m.outstanding++
	return m.current, nil
}

// Release returns a borrowed snapshot. Releasing without a matching acquire
// is a contract violation and is surfaced, never silently ignored.
func (m *SearcherManager) Release(snap *Snapshot) error {
	if snap == nil {
		return ErrSnapshotReleased
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if snap.refs <= 0 {
		return ErrSnapshotReleased
	}
	snap.refs--
	m.outstanding--
	if m.outstanding == 0 {
		m.released.Broadcast()
	}
	return nil
}

// Visible returns the generation of the current snapshot, or GenerationNone
// before bootstrap.
func (m *SearcherManager) Visible() Generation {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return GenerationNone
	}
	return m.current.gen
}

// Outstanding returns the number of acquired-but-unreleased snapshots.
func (m *SearcherManager) Outstanding() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outstanding
}

// Refreshes returns how many snapshot swaps have completed.
func (m *SearcherManager) Refreshes() int64 {
	return m.refreshes.Load()
}

// Refresh produces a fresh snapshot reflecting the writer's current
// generation. Concurrent callers are merged into a single reopen. The visible
// generation never moves backwards.
func (m *SearcherManager) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err, _ := m.sf.Do("reopen", func() (interface{}, error) {
		gen := m.writer.Generation()
		snap := &Snapshot{gen: gen, idx: m.writer.Index()}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, ErrNotReady
		}
		if m.current == nil || m.current.gen < gen {
			m.current = snap
		}
		close(m.watch)
		m.watch = make(chan struct{})
		m.mu.Unlock()

		m.refreshes.Add(1)
		slog.Debug("searcher_reopened", slog.Int64("generation", int64(gen)))
		return nil, nil
	})
	return err
}

// notifyWrite wakes generation waiters after a write completes. The writer
// calls this outside its own lock ordering concerns; it only touches the
// watch channel.
func (m *SearcherManager) notifyWrite(Generation) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	close(m.watch)
	m.watch = make(chan struct{})
}

// WaitForGeneration blocks until the visible snapshot covers gen. If the
// writer has already produced gen, an out-of-band refresh is triggered,
// bypassing the reopen scheduler's floor. Waiting for GenerationNone returns
// immediately.
func (m *SearcherManager) WaitForGeneration(ctx context.Context, gen Generation) error {
	if gen == GenerationNone {
		return nil
	}

	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return ErrNotReady
		}
		visible := GenerationNone
		if m.current != nil {
			visible = m.current.gen
		}
		watch := m.watch
		m.mu.Unlock()

		if visible >= gen {
			return nil
		}

		if m.writer.Generation() >= gen {
			// The write already completed; a reopen will surface it.
			if err := m.Refresh(ctx); err != nil {
				return err
			}
			continue
		}

		select {
		case <-watch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops handing out snapshots and blocks until every outstanding
// snapshot has been released, so teardown never races an in-flight search.
func (m *SearcherManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	close(m.watch)

	for m.outstanding > 0 {
		m.released.Wait()
	}
	m.current = nil
	return nil
}

// SearcherFunc runs an arbitrary query against an acquired snapshot.
type SearcherFunc[T any] func(ctx context.Context, snap *Snapshot) (T, error)

// Search waits for the currently tracked generation, acquires a snapshot,
// runs fn, and releases the snapshot on every exit path. This is the
// read-your-writes entry point: a search issued after a successful Modify
// observes that write.
func Search[T any](ctx context.Context, e *Engine, fn SearcherFunc[T]) (T, error) {
	return SearchGeneration(ctx, e, e.TrackedGeneration(), fn)
}

// SearchGeneration is Search pinned to an explicit generation, normally one
// returned by Modify. GenerationNone skips the wait.
func SearchGeneration[T any](ctx context.Context, e *Engine, gen Generation, fn SearcherFunc[T]) (T, error) {
	var zero T

	if e.State() != StateReady {
		return zero, ErrNotReady
	}
	m := e.searchers

	if err := m.WaitForGeneration(ctx, gen); err != nil {
		return zero, err
	}

	snap, err := m.Acquire()
	if err != nil {
		return zero, err
	}

	var releaseErr error
	releasedOnce := false
	release := func() {
		if !releasedOnce {
			releasedOnce = true
			releaseErr = m.Release(snap)
		}
	}
	// Covers the panic path; the flag keeps release single-shot.
	defer release()

	result, searchErr := fn(ctx, snap)
	release()

	if searchErr != nil {
		slog.Error("search_failed", slog.String("error", searchErr.Error()))
		serr := &SearchError{Err: searchErr}
		if releaseErr != nil {
			return zero, errors.Join(serr, &ReleaseError{Err: releaseErr})
		}
		return zero, serr
	}
	if releaseErr != nil {
		// The search itself succeeded; the result is returned alongside the
		// release failure so the caller can judge it.
		return result, &ReleaseError{Err: releaseErr}
	}
	return result, nil
}
