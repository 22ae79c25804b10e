package freetext

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"
)

// MutationBatch stages an ordered set of document mutations that are applied
// as one atomic unit and tagged with exactly one generation.
type MutationBatch struct {
	batch   *bleve.Batch
	tracked bool
}

// Index stages an add or update of the document with the given id.
func (b *MutationBatch) Index(id string, doc interface{}) error {
	return b.batch.Index(id, doc)
}

// Delete stages removal of the document with the given id.
func (b *MutationBatch) Delete(id string) {
	b.batch.Delete(id)
}

// Size returns the number of staged operations.
func (b *MutationBatch) Size() int {
	return b.batch.Size()
}

// DisableTracking marks this batch as not requiring visibility tracking: the
// write still happens, but Modify returns GenerationNone and the generation
// tracker is left unchanged.
func (b *MutationBatch) DisableTracking() {
	b.tracked = false
}

// IndexBuilder stages one or more document mutations on the supplied batch.
// Returning an error aborts the batch before anything is written.
type IndexBuilder func(ctx context.Context, batch *MutationBatch) error

// Writer serializes index mutations and assigns generations. Calls may come
// from any goroutine; an internal mutex guarantees one batch at a time.
type Writer struct {
	mu      sync.Mutex
	idx     bleve.Index
	tracker *generationTracker
	gen     atomic.Int64 // last assigned generation
	dir     *Directory
	onWrite func(Generation)
	closed  bool
}

// NewWriter wraps the open index. seed is the generation to resume from,
// normally the last durably committed generation, so generations stay
// monotonic across restarts.
func NewWriter(idx bleve.Index, dir *Directory, tracker *generationTracker, seed Generation) *Writer {
	w := &Writer{idx: idx, dir: dir, tracker: tracker}
	if seed > 0 {
		w.gen.Store(int64(seed))
	}
	return w
}

// Modify runs the builder against a fresh batch, applies the batch
// atomically, and returns the assigned generation. On any failure the
// generation is not advanced and a WriteError wrapping the cause is returned;
// retry policy belongs to the caller. A batch with tracking disabled returns
// GenerationNone and leaves the tracker unchanged.
func (w *Writer) Modify(ctx context.Context, builder IndexBuilder) (Generation, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return GenerationNone, ErrNotReady
	}

	batch := &MutationBatch{batch: w.idx.NewBatch(), tracked: true}
	if err := builder(ctx, batch); err != nil {
		return GenerationNone, &WriteError{Err: err}
	}
	if err := w.idx.Batch(batch.batch); err != nil {
		return GenerationNone, &WriteError{Err: err}
	}

	gen := Generation(w.gen.Add(1))
	if !batch.tracked {
		if w.onWrite != nil {
			w.onWrite(GenerationNone)
		}
		return GenerationNone, nil
	}

	w.tracker.Advance(gen)
	if w.onWrite != nil {
		w.onWrite(gen)
	}
	return gen, nil
}

// Generation returns the last assigned generation, tracked or not.
func (w *Writer) Generation() Generation {
	return Generation(w.gen.Load())
}

// Commit durably records the writer's current generation in the commit
// manifest. Visibility (reopen) and durability (commit) are decoupled: a
// generation can be searchable before this records it, and vice versa.
func (w *Writer) Commit(ctx context.Context) error {
	gen := w.Generation()
	count, err := w.idx.DocCount()
	if err != nil {
		return err
	}
	if err := w.dir.WriteManifest(gen, count); err != nil {
		return err
	}
	slog.Debug("index_committed",
		slog.Int64("generation", int64(gen)),
		slog.Uint64("doc_count", count))
	return nil
}

// DocCount returns the number of documents in the index.
func (w *Writer) DocCount() (uint64, error) {
	return w.idx.DocCount()
}

// Index exposes the underlying index to the searcher manager.
func (w *Writer) Index() bleve.Index {
	return w.idx
}

// Close closes the underlying index. Subsequent Modify calls return
// ErrNotReady.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.idx.Close()
}
