package freetext

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// CommitFunc flushes accumulated writer state to durable storage.
type CommitFunc func(ctx context.Context) error

// CommitScheduler periodically flushes the writer independently of searcher
// refresh. A failed commit is logged and retried on the next tick; it never
// blocks writers or readers and is never fatal to the engine.
type CommitScheduler struct {
	interval time.Duration
	commit   CommitFunc

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}

	failures atomic.Int64
	commits  atomic.Int64
}

// NewCommitScheduler creates a scheduler running commit every interval.
func NewCommitScheduler(interval time.Duration, commit CommitFunc) *CommitScheduler {
	return &CommitScheduler{
		interval: interval,
		commit:   commit,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the background loop.
func (s *CommitScheduler) Start() {
	go s.run()
}

func (s *CommitScheduler) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.RunOnce(context.Background())
		}
	}
}

// RunOnce performs a single commit tick. Errors are contained here: logged,
// counted, and retried on the next tick.
func (s *CommitScheduler) RunOnce(ctx context.Context) {
	if err := s.commit(ctx); err != nil {
		s.failures.Add(1)
		slog.Error("commit_failed", slog.String("error", err.Error()))
		return
	}
	s.commits.Add(1)
}

// Failures returns the number of failed commit ticks.
func (s *CommitScheduler) Failures() int64 {
	return s.failures.Load()
}

// Commits returns the number of successful commit ticks.
func (s *CommitScheduler) Commits() int64 {
	return s.commits.Load()
}

// Stop cancels the scheduler and waits for any in-flight commit to finish.
// Safe to call more than once.
func (s *CommitScheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.doneCh
}
