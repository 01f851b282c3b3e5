// Package substrate provides the two interchangeable concurrency models the
// csp kernel's blocking primitives are built on: a preemptive model backed
// by OS threads (goroutines scheduled by the Go runtime, synchronized with
// sync.Mutex/sync.Cond), and a cooperative model in which, at any instant,
// only one task is actually executing — every other cooperative task is
// either not yet started or parked at a suspension point, and progress
// passes between them only at those points (Yield, or a Cond.Wait inside
// one of the kernel's own blocking calls).
//
// Busy (spin) variants of channels and barriers bypass this package
// entirely — they are only correct under preemptive scheduling, since a
// spinning cooperative task would starve every other task sharing its
// single logical thread.
package substrate

import (
	"runtime"
	"sync"
)

type (
	// Locker is the minimal mutex contract a Model must provide.
	Locker = sync.Locker

	// Cond is the minimal condition-variable contract a Model must provide.
	// Wait and Signal/Broadcast follow sync.Cond's semantics: the caller
	// must hold the associated Locker across Wait.
	Cond interface {
		Wait()
		Signal()
		Broadcast()
	}

	// Model abstracts the scheduling substrate a primitive runs under.
	// Model implementations must be safe for concurrent use by multiple
	// tasks, except where individual methods document otherwise.
	Model interface {
		// NewLocker returns a fresh mutex appropriate to this model.
		NewLocker() Locker
		// NewCond returns a fresh condition variable bound to l.
		NewCond(l Locker) Cond
		// Go starts fn as a new task under this model and returns
		// immediately. Under Cooperative, fn does not begin executing
		// until it holds the single permit, that is, until no other
		// cooperative task is running; tasks waiting for the permit are
		// not started in any guaranteed order.
		Go(fn func())
		// Yield relinquishes the current task's turn, allowing other
		// tasks sharing the substrate to make progress. Under the
		// preemptive model this is advisory (runtime.Gosched); under
		// the cooperative model it is one of the only two ways another
		// task ever runs (the other being a Cond.Wait).
		Yield()
	}
)

// Preemptive is the default Model: every task is an independent goroutine,
// and mutexes/condition variables are the standard library's.
var Preemptive Model = preemptiveModel{}

type preemptiveModel struct{}

func (preemptiveModel) NewLocker() Locker { return new(sync.Mutex) }

func (preemptiveModel) NewCond(l Locker) Cond { return sync.NewCond(l) }

func (preemptiveModel) Go(fn func()) { go fn() }

func (preemptiveModel) Yield() { runtime.Gosched() }

// Cooperative is a Model in which tasks are goroutines (Go has no way to
// host lightweight tasks without its own scheduling loop), but at most one
// of them is ever actually running: a single permit, cooperativeBaton, is
// passed from task to task at each suspension point, the way a single
// run-loop goroutine would hand control to the next queued callback. A task
// started via Cooperative.Go blocks until it holds the permit before
// running fn, and releases it either when fn returns or when the task
// suspends inside a cooperative Cond's Wait; Yield explicitly gives up and
// immediately re-requests the permit, letting any task that was waiting for
// it run in between (called while the permit is free, it returns at once).
// This mirrors the source library's fiber/cooperative
// variant contract — identical primitive semantics to Preemptive, but
// progress is only ever observed at those handoff points, so a busy-spin
// variant built on Cooperative would starve every peer, exactly as §5
// describes.
//
// Tasks that participate in a cooperative domain must be started with
// Cooperative.Go rather than a bare go statement: only Go acquires the
// permit on a task's behalf before running it.
var Cooperative Model = cooperativeModel{}

// cooperativeBaton holds the single permit a cooperative task must acquire
// before running real code. Exactly one token ever exists, once handed out
// by the init below.
var cooperativeBaton = make(chan struct{}, 1)

func init() { cooperativeBaton <- struct{}{} }

type cooperativeModel struct{}

func (cooperativeModel) NewLocker() Locker { return new(sync.Mutex) }

func (cooperativeModel) NewCond(l Locker) Cond { return &cooperativeCond{Cond: sync.NewCond(l)} }

func (cooperativeModel) Go(fn func()) {
	go func() {
		<-cooperativeBaton
		defer func() { cooperativeBaton <- struct{}{} }()
		fn()
	}()
}

func (cooperativeModel) Yield() {
	select {
	case cooperativeBaton <- struct{}{}:
		<-cooperativeBaton
	default:
		// The permit is already free, so the caller is not a running
		// cooperative task and has no turn to give up.
	}
}

// cooperativeCond wraps a sync.Cond so Wait releases the cooperative permit
// for the duration of the suspension. Without this, a task parked in Wait
// would hold the permit forever and every other cooperative task would
// starve — the same failure mode §5 calls out for a busy-spin primitive
// run under Cooperative.
type cooperativeCond struct {
	*sync.Cond
}

func (c *cooperativeCond) Wait() {
	cooperativeBaton <- struct{}{}
	c.Cond.Wait()
	<-cooperativeBaton
}
