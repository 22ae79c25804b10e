package freetext

import "sync/atomic"

// Generation identifies a point in the index's mutation history. Generations
// are assigned in write order starting at 1 and never decrease.
type Generation int64

// GenerationNone means "no visibility tracking required". Real generations
// start at 1, so the zero value never collides with an assigned generation.
const GenerationNone Generation = 0

// generationTracker records the highest generation produced by any tracked
// write. It is read by the search path and written by the write path, so all
// access goes through an atomic.
type generationTracker struct {
	v atomic.Int64
}

// Advance raises the tracked generation to g if g is higher. GenerationNone
// leaves the tracker unchanged.
func (t *generationTracker) Advance(g Generation) {
	if g == GenerationNone {
		return
	}
	for {
		cur := t.v.Load()
		if int64(g) <= cur {
			return
		}
		if t.v.CompareAndSwap(cur, int64(g)) {
			return
		}
	}
}

// Current returns the highest tracked generation, or GenerationNone if no
// tracked write has completed.
func (t *generationTracker) Current() Generation {
	return Generation(t.v.Load())
}

// Reset drops the tracker back to GenerationNone. Used when the index is
// deleted and generations start over; the tracker itself stays in place so
// concurrent readers never see a torn pointer.
func (t *generationTracker) Reset() {
	t.v.Store(0)
}
