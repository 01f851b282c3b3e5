package csp

import (
	"time"

	"github.com/gocsp/csp/substrate"
)

// AltingBarrier is a multiway barrier whose front-ends (FrontEnd) can also
// be offered to an Alt as a Guard (§4.5): the barrier fires, as usual, once
// every enrolled front-end has committed to it, but a front-end may commit
// via either a plain Sync or a successful alternation. Firing an
// AltingBarrier that is also a candidate inside some other Alt requires
// serializing against that Alt's ENABLE/DISABLE phases, which is what the
// shared Coordinator is for, and notifying any front-end currently
// registered with an Alt when some other front-end's plain Sync (or
// Resign) is what actually completes the epoch.
type AltingBarrier struct {
	model substrate.Model
	lock  substrate.Locker
	cond  substrate.Cond
	coord *Coordinator

	enrolled int
	arrived  int
	epoch    int64

	// pending holds every FrontEnd currently registered with some Alt
	// (enabled but not yet known ready), so a fire triggered by a
	// different front-end's path can wake their Alts too.
	pending []*FrontEnd

	logger *Logger
}

// AltingBarrierOption configures an AltingBarrier constructed by
// NewAltingBarrier.
type AltingBarrierOption func(*AltingBarrier)

// WithAltingBarrierSubstrate selects the concurrency substrate backing the
// barrier. Defaults to substrate.Preemptive.
func WithAltingBarrierSubstrate(m substrate.Model) AltingBarrierOption {
	return func(b *AltingBarrier) { b.model = m }
}

// WithAltingBarrierLogger attaches a Logger for protocol diagnostics.
func WithAltingBarrierLogger(l *Logger) AltingBarrierOption {
	return func(b *AltingBarrier) { b.logger = l }
}

// NewAltingBarrier constructs an AltingBarrier with n initially enrolled
// front-ends, coordinated against every other Alt sharing coord.
func NewAltingBarrier(n int, coord *Coordinator, opts ...AltingBarrierOption) *AltingBarrier {
	if n < 0 {
		panic("csp: NewAltingBarrier: n must be non-negative")
	}
	if coord == nil {
		panic("csp: NewAltingBarrier: coord must not be nil")
	}
	b := &AltingBarrier{model: substrate.Preemptive, coord: coord, enrolled: n}
	for _, o := range opts {
		o(b)
	}
	b.lock = b.model.NewLocker()
	b.cond = b.model.NewCond(b.lock)
	return b
}

// Enroll adds one front-end to the barrier's population.
func (b *AltingBarrier) Enroll() {
	b.lock.Lock()
	b.enrolled++
	b.lock.Unlock()
}

// Resign removes one front-end from the barrier's population, firing the
// current epoch immediately if its departure completes it.
func (b *AltingBarrier) Resign() error {
	b.lock.Lock()
	if b.enrolled == 0 {
		b.lock.Unlock()
		return InvariantViolationError{Reason: "resign with zero enrolled front-ends"}
	}
	b.enrolled--
	if b.enrolled > 0 && b.arrived == b.enrolled {
		notifyFrontEndsLocked(b.fireLocked())
	}
	b.lock.Unlock()
	return nil
}

// Reset replaces the enrolled population outright. It must only be called
// while no front-end is waiting on the current epoch.
func (b *AltingBarrier) Reset(n int) error {
	if n < 0 {
		return ProtocolViolationError{Reason: "reset: n must be non-negative"}
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.arrived != 0 {
		return ProtocolViolationError{Reason: "reset: barrier has front-ends waiting"}
	}
	b.enrolled = n
	return nil
}

// Expand allocates one new front-end bound to this base, incrementing the
// enrolled population by one. The returned front-end has no owner until
// first used, or until Mark claims one explicitly.
func (b *AltingBarrier) Expand() *FrontEnd {
	b.lock.Lock()
	b.enrolled++
	b.lock.Unlock()
	return &FrontEnd{barrier: b}
}

// ExpandN allocates n new front-ends bound to this base in a single step,
// incrementing the enrolled population by n.
func (b *AltingBarrier) ExpandN(n int) []*FrontEnd {
	if n < 0 {
		panic("csp: AltingBarrier.ExpandN: n must be non-negative")
	}
	fs := make([]*FrontEnd, n)
	b.lock.Lock()
	b.enrolled += n
	b.lock.Unlock()
	for i := range fs {
		fs[i] = &FrontEnd{barrier: b}
	}
	return fs
}

// Contract detaches the given front-ends from this base's population in a
// single atomic step, decrementing enrolled by len(fs); if their departure
// completes the current epoch, the barrier fires, waking every other
// front-end registered with an Alt. Contracting a front-end that does not
// belong to b, or one already contracted, is an InvariantViolationError:
// the enrolled/arrived bookkeeping would otherwise go out of sync with the
// live front-end population.
func (b *AltingBarrier) Contract(fs ...*FrontEnd) error {
	if len(fs) == 0 {
		return nil
	}
	b.lock.Lock()
	for _, fe := range fs {
		if fe.barrier != b || fe.contracted {
			b.lock.Unlock()
			err := InvariantViolationError{Reason: "contract: front-end not registered with this base"}
			logViolation(b.logger, "invariant", err.Reason)
			return err
		}
	}
	for _, fe := range fs {
		fe.contracted = true
		if fe.altListener != nil {
			fe.altListener = nil
			for i, p := range b.pending {
				if p == fe {
					b.pending = append(b.pending[:i], b.pending[i+1:]...)
					break
				}
			}
		}
	}
	b.enrolled -= len(fs)
	if b.enrolled > 0 && b.arrived == b.enrolled {
		notifyFrontEndsLocked(b.fireLocked())
	}
	b.lock.Unlock()
	return nil
}

// fireLocked must be called with b.lock held; it completes the current
// epoch, releases every front-end parked on a plain Sync, and returns the
// front-ends currently registered with some Alt so the caller can wake
// them with notifyFrontEndsLocked, still holding the lock.
func (b *AltingBarrier) fireLocked() []*FrontEnd {
	winners := b.pending
	b.pending = nil
	b.arrived = 0
	b.epoch++
	b.cond.Broadcast()
	return winners
}

// notifyFrontEndsLocked schedules the Alt, if any, still waiting on each
// given front-end. Must be called with the owning AltingBarrier's lock
// held: fe.altListener/fe.altIndex are otherwise also mutated by disable,
// under that same lock. Alt.schedule takes the Alt's own lock, distinct
// from the barrier's, so calling it here cannot deadlock.
func notifyFrontEndsLocked(fronts []*FrontEnd) {
	for _, fe := range fronts {
		if l := fe.altListener; l != nil {
			idx := fe.altIndex
			fe.altListener = nil
			l.schedule(idx)
		}
	}
}

// FrontEnd is one process's handle on an AltingBarrier: it can Sync
// plainly, or be used as a Guard inside an Alt via Guard().
type FrontEnd struct {
	barrier *AltingBarrier
	owner   ownerToken

	// altListener/altIndex are set while this front-end is registered
	// (enabled but not yet resolved) with an Alt, guarded by barrier.lock.
	altListener *Alt
	altIndex    int

	// contracted is set once this front-end has been detached via
	// AltingBarrier.Contract; a contracted front-end is permanently unready
	// and must not be used again.
	contracted bool
}

// NewFrontEnd returns a FrontEnd bound to b, owned by whichever goroutine
// first uses it.
func NewFrontEnd(b *AltingBarrier) *FrontEnd { return &FrontEnd{barrier: b} }

// Mark claims the calling goroutine as this front-end's owner up front,
// letting a pool manager construct and distribute a front-end (e.g. one
// returned by Expand) to the worker that will actually use it, without
// racing the lazy ownership claim Sync otherwise performs on first use.
// Only Sync checks ownership: using the front-end through Guard or Poll
// neither claims nor checks an owner.
func (f *FrontEnd) Mark() { f.owner.mark() }

// Sync blocks until every enrolled front-end has called Sync, or committed
// via a successful Alt, for this epoch.
func (f *FrontEnd) Sync() error {
	if err := f.owner.check("alting barrier front-end used from multiple goroutines"); err != nil {
		logViolation(f.barrier.logger, "ownership", err.Error())
		return err
	}
	b := f.barrier
	b.lock.Lock()
	if f.contracted {
		b.lock.Unlock()
		return ProtocolViolationError{Reason: "sync on a contracted front-end"}
	}
	if b.enrolled == 0 {
		b.lock.Unlock()
		return InvariantViolationError{Reason: "sync with zero enrolled front-ends"}
	}
	epoch := b.epoch
	b.arrived++
	if b.arrived == b.enrolled {
		notifyFrontEndsLocked(b.fireLocked())
		b.lock.Unlock()
		return nil
	}
	for b.epoch == epoch {
		b.cond.Wait()
	}
	b.lock.Unlock()
	return nil
}

// Guard returns a Guard for use inside an Alt, letting this front-end
// commit to the barrier as one branch of an alternation instead of a plain
// Sync.
func (f *FrontEnd) Guard() Guard { return &altingBarrierGuard{front: f} }

// Poll offers this front-end's Sync as the sole guard of a single-shot Alt
// with the given timeout: it returns true if the barrier fired within d,
// false if it timed out first. Per §9, this is a thin convenience over Alt
// rather than a busy-spin primitive of its own.
func (f *FrontEnd) Poll(d time.Duration) (bool, error) {
	a := NewAlt([]Guard{f.Guard(), After(d)}, WithAltSubstrate(f.barrier.model))
	idx, err := a.PriSelect()
	if err != nil {
		return false, err
	}
	return idx == 0, nil
}

type altingBarrierGuard struct {
	front *FrontEnd
}

func (g *altingBarrierGuard) coordinator() *Coordinator { return g.front.barrier.coord }

func (g *altingBarrierGuard) enable(a *Alt, index int) bool {
	b := g.front.barrier
	b.lock.Lock()
	if b.enrolled == 0 || g.front.contracted {
		b.lock.Unlock()
		return false
	}
	b.arrived++
	if b.arrived == b.enrolled {
		notifyFrontEndsLocked(b.fireLocked())
		b.lock.Unlock()
		return true
	}
	g.front.altListener = a
	g.front.altIndex = index
	b.pending = append(b.pending, g.front)
	b.lock.Unlock()
	return false
}

func (g *altingBarrierGuard) disable(a *Alt, index int) bool {
	b := g.front.barrier
	b.lock.Lock()
	defer b.lock.Unlock()
	if g.front.altListener != a {
		// already resolved by some other path (fired, and notified or
		// about to be notified asynchronously).
		return true
	}
	g.front.altListener = nil
	for i, fe := range b.pending {
		if fe == g.front {
			b.pending = append(b.pending[:i], b.pending[i+1:]...)
			break
		}
	}
	if b.arrived > 0 {
		b.arrived--
	}
	return false
}
