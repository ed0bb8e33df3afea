package manager

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// gate is the process-wide single-flight guard over the engine.
type gate struct {
	sem  *semaphore.Weighted
	held atomic.Bool
}

func newGate() *gate { return &gate{sem: semaphore.NewWeighted(1)} }

// TryAcquire never blocks. On success the returned release is idempotent and
// must run on every exit path.
func (g *gate) TryAcquire() (func(), bool) {
	if !g.sem.TryAcquire(1) {
		admissionTotal.WithLabelValues("busy").Inc()
		return func() {}, false
	}
	admissionTotal.WithLabelValues("admitted").Inc()
	g.mark(true)
	var once sync.Once
	return func() { once.Do(g.Release) }, true
}

// Wait blocks until the engine is free or ctx is done. Used at shutdown only.
func (g *gate) Wait(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	g.mark(true)
	return nil
}

// Release frees a slot obtained through Wait. TryAcquire callers use the
// returned func instead.
func (g *gate) Release() {
	g.mark(false)
	g.sem.Release(1)
}

func (g *gate) mark(busy bool) {
	g.held.Store(busy)
	if busy {
		engineBusy.Set(1)
	} else {
		engineBusy.Set(0)
	}
}

func (g *gate) Busy() bool { return g.held.Load() }
