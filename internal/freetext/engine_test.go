package freetext

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestEngine opens an engine on a temp directory with a long reopen target
// so tests control refresh timing through WaitForGeneration.
func newTestEngine(t *testing.T, mutate func(*Config)) *Engine {
	t.Helper()

	cfg := Config{
		Path:           filepath.Join(t.TempDir(), "freetext"),
		Language:       "en",
		ReopenTarget:   time.Hour,
		ReopenFloor:    time.Millisecond,
		CommitInterval: time.Hour,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	e, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func addDocument(t *testing.T, e *Engine, id string, fields map[string]interface{}) Generation {
	t.Helper()
	gen, err := e.Modify(context.Background(), func(ctx context.Context, batch *MutationBatch) error {
		return batch.Index(id, fields)
	})
	require.NoError(t, err)
	return gen
}

func searchField(t *testing.T, e *Engine, gen Generation, field, term string) *bleve.SearchResult {
	t.Helper()
	result, err := SearchGeneration(context.Background(), e, gen,
		func(ctx context.Context, snap *Snapshot) (*bleve.SearchResult, error) {
			q := bleve.NewMatchQuery(term)
			q.SetField(field)
			req := bleve.NewSearchRequest(q)
			return snap.Search(ctx, req)
		})
	require.NoError(t, err)
	return result
}

func TestEngine_OpenIsReady(t *testing.T) {
	e := newTestEngine(t, nil)
	assert.Equal(t, StateReady, e.State())
	assert.Equal(t, GenerationNone, e.TrackedGeneration())
}

func TestEngine_WriteWaitSearchRoundTrip(t *testing.T) {
	e := newTestEngine(t, nil)

	// B1: add document D with title "alpha" -> generation 1.
	gen1 := addDocument(t, e, "D", map[string]interface{}{"title": "alpha"})
	assert.Equal(t, Generation(1), gen1)

	result := searchField(t, e, gen1, "title", "alpha")
	require.Equal(t, uint64(1), result.Total)
	assert.Equal(t, "D", result.Hits[0].ID)

	// B2: delete D -> generation 2; the same search finds nothing.
	gen2, err := e.Modify(context.Background(), func(ctx context.Context, batch *MutationBatch) error {
		batch.Delete("D")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, Generation(2), gen2)

	result = searchField(t, e, gen2, "title", "alpha")
	assert.Equal(t, uint64(0), result.Total)
}

func TestEngine_MonotonicVisibility(t *testing.T) {
	e := newTestEngine(t, nil)

	gen1 := addDocument(t, e, "one", map[string]interface{}{"title": "first"})
	gen2 := addDocument(t, e, "two", map[string]interface{}{"title": "second"})
	require.Less(t, gen1, gen2)

	// Waiting for gen2 makes every effect at gen1 visible too.
	result := searchField(t, e, gen2, "title", "first")
	assert.Equal(t, uint64(1), result.Total)

	visible := e.searchers.Visible()
	assert.GreaterOrEqual(t, visible, gen2)

	// Visibility never moves backwards.
	require.NoError(t, e.searchers.Refresh(context.Background()))
	assert.GreaterOrEqual(t, e.searchers.Visible(), visible)
}

func TestEngine_FailedBuilderDoesNotAdvanceGeneration(t *testing.T) {
	e := newTestEngine(t, nil)

	gen1 := addDocument(t, e, "keep", map[string]interface{}{"title": "keep"})

	_, err := e.Modify(context.Background(), func(ctx context.Context, batch *MutationBatch) error {
		if err := batch.Index("lost", map[string]interface{}{"title": "lost"}); err != nil {
			return err
		}
		return os.ErrInvalid
	})
	require.Error(t, err)
	var writeErr *WriteError
	assert.ErrorAs(t, err, &writeErr)

	// The failed batch produced no generation and wrote nothing.
	assert.Equal(t, gen1, e.TrackedGeneration())
	result := searchField(t, e, gen1, "title", "lost")
	assert.Equal(t, uint64(0), result.Total)

	// The engine stays usable for subsequent writes.
	gen2 := addDocument(t, e, "next", map[string]interface{}{"title": "next"})
	assert.Equal(t, gen1+1, gen2)
}

func TestEngine_UntrackedBatchLeavesTrackerUnchanged(t *testing.T) {
	e := newTestEngine(t, nil)

	gen, err := e.Modify(context.Background(), func(ctx context.Context, batch *MutationBatch) error {
		batch.DisableTracking()
		return batch.Index("bg", map[string]interface{}{"title": "background"})
	})
	require.NoError(t, err)
	assert.Equal(t, GenerationNone, gen)
	assert.Equal(t, GenerationNone, e.TrackedGeneration())
}

func TestEngine_DeleteDirectoryLeavesReadyAndEmpty(t *testing.T) {
	e := newTestEngine(t, nil)

	gen := addDocument(t, e, "D", map[string]interface{}{"title": "alpha"})
	result := searchField(t, e, gen, "title", "alpha")
	require.Equal(t, uint64(1), result.Total)

	require.NoError(t, e.DeleteDirectory())

	assert.Equal(t, StateReady, e.State())
	assert.Equal(t, GenerationNone, e.TrackedGeneration())

	result = searchField(t, e, GenerationNone, "title", "alpha")
	assert.Equal(t, uint64(0), result.Total)

	// And the engine accepts new writes immediately.
	gen2 := addDocument(t, e, "E", map[string]interface{}{"title": "beta"})
	result = searchField(t, e, gen2, "title", "beta")
	assert.Equal(t, uint64(1), result.Total)
}

func TestEngine_TrackedGenerationDuringReset(t *testing.T) {
	e := newTestEngine(t, nil)
	addDocument(t, e, "D", map[string]interface{}{"title": "alpha"})

	// TrackedGeneration is read without the lifecycle lock, so it must stay
	// safe against a concurrent reset. Run under the race detector.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_ = e.TrackedGeneration()
			}
		}
	}()

	for i := 0; i < 5; i++ {
		require.NoError(t, e.DeleteDirectory())
		addDocument(t, e, "D", map[string]interface{}{"title": "alpha"})
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, Generation(1), e.TrackedGeneration())
}

func TestEngine_GenerationsResumeAfterRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "freetext")
	cfg := Config{Path: path, ReopenTarget: time.Hour, CommitInterval: time.Hour}

	e, err := Open(cfg)
	require.NoError(t, err)

	gen := addDocument(t, e, "D", map[string]interface{}{"title": "alpha"})
	e.committer.RunOnce(context.Background())
	require.NoError(t, e.Close())

	e2, err := Open(cfg)
	require.NoError(t, err)
	defer func() { _ = e2.Close() }()

	// The committed generation seeds the restarted engine.
	assert.Equal(t, gen, e2.TrackedGeneration())
	gen2 := addDocument(t, e2, "E", map[string]interface{}{"title": "beta"})
	assert.Equal(t, gen+1, gen2)
}

func TestEngine_FrenchLanguageFallsBackAndStillOpens(t *testing.T) {
	e := newTestEngine(t, func(c *Config) {
		c.Language = "fr"
	})
	assert.Equal(t, StateReady, e.State())

	// The fallback pipeline indexes and searches without stemming.
	gen := addDocument(t, e, "D", map[string]interface{}{"title": "le chat"})
	result := searchField(t, e, gen, "title", "le")
	assert.Equal(t, uint64(1), result.Total)
}

func TestEngine_FieldPipelineAssignment(t *testing.T) {
	e := newTestEngine(t, func(c *Config) {
		c.Fields = []string{"title", "title_auto"}
		c.FieldPipeline = func(field string) Pipeline {
			if field == "title_auto" {
				return PipelineAutocomplete
			}
			return PipelineNormal
		}
	})

	gen := addDocument(t, e, "D", map[string]interface{}{
		"title":      "the alpha",
		"title_auto": "the alpha",
	})

	// Stop words survive only in the autocomplete field.
	result := searchField(t, e, gen, "title_auto", "the")
	assert.Equal(t, uint64(1), result.Total)
	result = searchField(t, e, gen, "title", "the")
	assert.Equal(t, uint64(0), result.Total)
}

func TestEngine_CheckHealth(t *testing.T) {
	e := newTestEngine(t, nil)
	require.NoError(t, e.CheckHealth(context.Background()))
}

func TestEngine_CheckHealthCustomProbe(t *testing.T) {
	called := false
	e := newTestEngine(t, func(c *Config) {
		c.HealthCheck = func(ctx context.Context, e *Engine) error {
			called = true
			return nil
		}
	})

	require.NoError(t, e.CheckHealth(context.Background()))
	assert.True(t, called)
}

func TestEngine_RejectsTrafficWhenClosed(t *testing.T) {
	e := newTestEngine(t, nil)
	require.NoError(t, e.Close())

	_, err := e.Modify(context.Background(), func(ctx context.Context, batch *MutationBatch) error {
		return nil
	})
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = Search(context.Background(), e,
		func(ctx context.Context, snap *Snapshot) (struct{}, error) {
			return struct{}{}, nil
		})
	assert.ErrorIs(t, err, ErrNotReady)

	assert.ErrorIs(t, e.CheckHealth(context.Background()), ErrNotReady)
}

func TestEngine_StaleLockFromCrashedProcessIsCleared(t *testing.T) {
	path := filepath.Join(t.TempDir(), "freetext")
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, lockFileName), nil, 0o644))

	e, err := Open(Config{Path: path, ReopenTarget: time.Hour, CommitInterval: time.Hour})
	require.NoError(t, err)
	require.NoError(t, e.Close())
}

func TestEngine_Stats(t *testing.T) {
	e := newTestEngine(t, nil)

	gen := addDocument(t, e, "D", map[string]interface{}{"title": "alpha"})
	require.NoError(t, e.WaitForGeneration(context.Background(), gen))
	e.committer.RunOnce(context.Background())

	s := e.Stats()
	assert.Equal(t, "ready", s.State)
	assert.Equal(t, gen, s.TrackedGeneration)
	assert.GreaterOrEqual(t, s.VisibleGeneration, gen)
	assert.Equal(t, gen, s.DurableGeneration)
	assert.Equal(t, uint64(1), s.DocCount)
}
