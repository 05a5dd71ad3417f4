// Package bus serializes access to the SPI bus shared between the legacy
// pressure sensor and the flight datalog flash.
//
// The acquisition task must never block on the bus, so its side uses a
// zero-wait claim and simply skips a sample when the bus is busy. The
// datalog side may wait a little, but always a bounded amount. There is no
// fairness guarantee; a starved producer just retries next cycle.
package bus

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

type Arbiter struct {
	sem *semaphore.Weighted
}

func NewArbiter() *Arbiter {
	return &Arbiter{sem: semaphore.NewWeighted(1)}
}

// TryAcquire claims the bus without waiting. It returns false immediately
// when another holder has it.
func (a *Arbiter) TryAcquire() bool {
	return a.sem.TryAcquire(1)
}

// AcquireTimeout claims the bus, waiting at most d. A zero d degrades to
// TryAcquire.
func (a *Arbiter) AcquireTimeout(d time.Duration) bool {
	if d <= 0 {
		return a.TryAcquire()
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return a.sem.Acquire(ctx, 1) == nil
}

// Release gives the bus back. It must only be called after a successful
// claim.
func (a *Arbiter) Release() {
	a.sem.Release(1)
}
