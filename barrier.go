package csp

import (
	"runtime"
	"sync/atomic"

	"github.com/gocsp/csp/substrate"
)

// spinYield is the busy-wait backoff shared by every spin-variant
// primitive in this package, grounded on go-ilock's retry loops.
func spinYield() { runtime.Gosched() }

// Barrier is a multiway rendezvous point (§4.6): every enrolled process
// must call Sync before any of them is released, repeatedly, for the
// barrier's lifetime. Enroll/Resign adjust the enrolled count between
// syncs; Reset replaces it outright while the barrier is idle.
type Barrier struct {
	model substrate.Model
	lock  substrate.Locker
	cond  substrate.Cond

	enrolled int
	arrived  int
	epoch    int64

	logger *Logger
}

// BarrierOption configures a Barrier constructed by NewBarrier.
type BarrierOption func(*Barrier)

// WithBarrierSubstrate selects the concurrency substrate backing the
// barrier. Defaults to substrate.Preemptive.
func WithBarrierSubstrate(m substrate.Model) BarrierOption {
	return func(b *Barrier) { b.model = m }
}

// WithBarrierLogger attaches a Logger to the barrier. Barrier's own
// operations do not write to it; their errors are returned, not logged.
func WithBarrierLogger(l *Logger) BarrierOption { return func(b *Barrier) { b.logger = l } }

// NewBarrier constructs a Barrier with n initially enrolled processes.
func NewBarrier(n int, opts ...BarrierOption) *Barrier {
	if n < 0 {
		panic("csp: NewBarrier: n must be non-negative")
	}
	b := &Barrier{model: substrate.Preemptive, enrolled: n}
	for _, o := range opts {
		o(b)
	}
	b.lock = b.model.NewLocker()
	b.cond = b.model.NewCond(b.lock)
	return b
}

// Sync blocks the calling goroutine until every currently-enrolled process
// has called Sync for this epoch, then releases them all together.
func (b *Barrier) Sync() error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.enrolled == 0 {
		return InvariantViolationError{Reason: "sync with zero enrolled processes"}
	}
	epoch := b.epoch
	b.arrived++
	if b.arrived == b.enrolled {
		b.arrived = 0
		b.epoch++
		b.cond.Broadcast()
		return nil
	}
	for b.epoch == epoch {
		b.cond.Wait()
	}
	return nil
}

// Enroll adds one process to the barrier's population. It must not be
// called concurrently with a Sync in progress for the same epoch.
func (b *Barrier) Enroll() {
	b.lock.Lock()
	b.enrolled++
	b.lock.Unlock()
}

// Resign removes one process from the barrier's population, releasing the
// current epoch immediately if its departure makes every remaining
// arrival complete.
func (b *Barrier) Resign() error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.enrolled == 0 {
		return InvariantViolationError{Reason: "resign with zero enrolled processes"}
	}
	b.enrolled--
	if b.enrolled > 0 && b.arrived == b.enrolled {
		b.arrived = 0
		b.epoch++
		b.cond.Broadcast()
	}
	return nil
}

// Reset replaces the enrolled population outright. It must only be called
// while no Sync is in flight.
func (b *Barrier) Reset(n int) error {
	if n < 0 {
		return ProtocolViolationError{Reason: "reset: n must be non-negative"}
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.arrived != 0 {
		return ProtocolViolationError{Reason: "reset: barrier has processes waiting"}
	}
	b.enrolled = n
	return nil
}

// BusyBarrier is the busy-wait variant of Barrier (§4.6), trading blocked
// goroutines for spinning on an atomic iteration counter, grounded on
// go-ilock's CAS-retry idiom.
type BusyBarrier struct {
	enrolled int64
	arrived  int64
	epoch    int64
}

// NewBusyBarrier constructs a BusyBarrier with n initially enrolled
// processes.
func NewBusyBarrier(n int64) *BusyBarrier {
	if n < 0 {
		panic("csp: NewBusyBarrier: n must be non-negative")
	}
	return &BusyBarrier{enrolled: n}
}

// Sync spins the calling goroutine until every enrolled process has called
// Sync for this epoch.
func (b *BusyBarrier) Sync() error {
	if atomic.LoadInt64(&b.enrolled) == 0 {
		return InvariantViolationError{Reason: "sync with zero enrolled processes"}
	}
	epoch := atomic.LoadInt64(&b.epoch)
	n := atomic.LoadInt64(&b.enrolled)
	if atomic.AddInt64(&b.arrived, 1) == n {
		atomic.StoreInt64(&b.arrived, 0)
		atomic.AddInt64(&b.epoch, 1)
		return nil
	}
	for atomic.LoadInt64(&b.epoch) == epoch {
		spinYield()
	}
	return nil
}

// Enroll adds one process to the barrier's population.
func (b *BusyBarrier) Enroll() { atomic.AddInt64(&b.enrolled, 1) }

// Resign removes one process from the barrier's population.
func (b *BusyBarrier) Resign() error {
	for {
		n := atomic.LoadInt64(&b.enrolled)
		if n == 0 {
			return InvariantViolationError{Reason: "resign with zero enrolled processes"}
		}
		if atomic.CompareAndSwapInt64(&b.enrolled, n, n-1) {
			if n-1 > 0 && atomic.LoadInt64(&b.arrived) == n-1 {
				atomic.StoreInt64(&b.arrived, 0)
				atomic.AddInt64(&b.epoch, 1)
			}
			return nil
		}
	}
}

// Reset replaces the enrolled population outright. It must only be called
// while no Sync is in flight.
func (b *BusyBarrier) Reset(n int64) error {
	if n < 0 {
		return ProtocolViolationError{Reason: "reset: n must be non-negative"}
	}
	if atomic.LoadInt64(&b.arrived) != 0 {
		return ProtocolViolationError{Reason: "reset: barrier has processes waiting"}
	}
	atomic.StoreInt64(&b.enrolled, n)
	return nil
}
