package freetext

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ReopenScheduler periodically refreshes the searcher manager so snapshots
// reflect new writes even when nobody calls WaitForGeneration. Two tunables
// bound its behavior: the target interval (how stale a snapshot may get while
// writes are pending) and the floor (minimum spacing between consecutive
// reopens, so reopen cost stays bounded under heavy write load). Callers
// needing stronger consistency should use WaitForGeneration rather than
// shrinking the target.
type ReopenScheduler struct {
	mgr     *SearcherManager
	writer  *Writer
	target  time.Duration
	limiter *rate.Limiter

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewReopenScheduler creates a scheduler refreshing every target interval,
// never more often than floor allows.
func NewReopenScheduler(mgr *SearcherManager, writer *Writer, target, floor time.Duration) *ReopenScheduler {
	return &ReopenScheduler{
		mgr:     mgr,
		writer:  writer,
		target:  target,
		limiter: rate.NewLimiter(rate.Every(floor), 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start launches the background loop.
func (s *ReopenScheduler) Start() {
	go s.run()
}

func (s *ReopenScheduler) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.target)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.maybeReopen()
		}
	}
}

// maybeReopen refreshes when there is pending unindexed data and the floor
// allows it. Attempts inside the floor window are skipped; the next tick
// picks the writes up.
func (s *ReopenScheduler) maybeReopen() {
	if s.writer.Generation() <= s.mgr.Visible() {
		return
	}
	if !s.limiter.Allow() {
		slog.Debug("reopen_skipped",
			slog.String("reason", "minimum refresh interval"))
		return
	}
	if err := s.mgr.Refresh(context.Background()); err != nil {
		slog.Error("reopen_failed", slog.String("error", err.Error()))
	}
}

// Stop cancels the scheduler and waits for any in-flight reopen to finish.
// Safe to call more than once.
func (s *ReopenScheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.doneCh
}
