package csp

import (
	"time"

	"github.com/gocsp/csp/substrate"
)

// AltMode selects the priority discipline an Alt applies when more than one
// guard is ready.
type AltMode int

const (
	// FAIR rotates priority after every select so every guard gets a turn
	// at being tried first; it is the default.
	FAIR AltMode = iota
	// PRI always tries guards starting from index 0.
	PRI
)

type altState int

const (
	altInactive altState = iota
	altEnabling
	altWaiting
	altReady
)

// Alt implements alternation (external choice, "select") over a fixed
// sequence of Guards (§4.4). An Alt is owned by exactly one goroutine for
// its lifetime — see §5 — and is typically stack-scoped inside a process.
type Alt struct {
	guards []Guard
	mode   AltMode
	model  substrate.Model
	logger *Logger
	owner  ownerToken

	lock substrate.Locker
	cond substrate.Cond

	state    altState
	selected int

	hasDeadline bool
	deadline    time.Time
	deadlineIdx int

	nextPtr int // FAIR rotation pointer, persists across calls
}

// AltOption configures an Alt constructed with NewAlt.
type AltOption func(*Alt)

// WithMode sets the default priority discipline; Select uses it, while
// PriSelect/FairSelect always override it for a single call.
func WithMode(m AltMode) AltOption { return func(a *Alt) { a.mode = m } }

// WithAltSubstrate selects the concurrency substrate the Alt parks on while
// waiting. Defaults to substrate.Preemptive.
func WithAltSubstrate(m substrate.Model) AltOption { return func(a *Alt) { a.model = m } }

// WithAltLogger attaches a Logger for ownership-violation diagnostics.
func WithAltLogger(l *Logger) AltOption { return func(a *Alt) { a.logger = l } }

// NewAlt constructs an Alt over the given guards, evaluated in the given
// order. guards must not be empty.
func NewAlt(guards []Guard, opts ...AltOption) *Alt {
	if len(guards) == 0 {
		panic("csp: NewAlt: guards must not be empty")
	}
	a := &Alt{
		guards:   guards,
		mode:     FAIR,
		model:    substrate.Preemptive,
		selected: -1,
	}
	for _, o := range opts {
		o(a)
	}
	a.lock = a.model.NewLocker()
	a.cond = a.model.NewCond(a.lock)
	return a
}

// Select runs one alternation using the Alt's configured default mode and
// no pre-condition mask.
func (a *Alt) Select() (int, error) { return a.run(a.mode, nil) }

// PriSelect runs one priority-ordered alternation, regardless of the Alt's
// configured default mode.
func (a *Alt) PriSelect() (int, error) { return a.run(PRI, nil) }

// FairSelect runs one fairly-rotated alternation, regardless of the Alt's
// configured default mode.
func (a *Alt) FairSelect() (int, error) { return a.run(FAIR, nil) }

// SelectWithPre runs Select with a per-call pre-condition mask: guards at
// indices where pre[i] is false are skipped entirely for this call, as if
// they did not exist. len(pre) must equal the number of guards.
func (a *Alt) SelectWithPre(pre []bool) (int, error) { return a.run(a.mode, pre) }

// PriSelectWithPre is PriSelect with a pre-condition mask.
func (a *Alt) PriSelectWithPre(pre []bool) (int, error) { return a.run(PRI, pre) }

// FairSelectWithPre is FairSelect with a pre-condition mask.
func (a *Alt) FairSelectWithPre(pre []bool) (int, error) { return a.run(FAIR, pre) }

// schedule is called by a guard, without the Alt's lock held, to report
// that its event has become ready after enable returned false. It is a
// no-op if the Alt is not currently enabling or waiting on this guard.
func (a *Alt) schedule(index int) {
	a.lock.Lock()
	defer a.lock.Unlock()
	switch a.state {
	case altEnabling:
		if a.selected < 0 {
			a.selected = index
		}
		a.state = altReady
	case altWaiting:
		a.state = altReady
		a.selected = index
		a.cond.Signal()
	}
}

// noteDeadline records the deadline contributed by a timer guard at the
// given index, keeping the earliest one seen so far, as required by the
// WAIT phase (§4.4).
func (a *Alt) noteDeadline(index int, deadline time.Time) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if !a.hasDeadline || deadline.Before(a.deadline) {
		a.hasDeadline = true
		a.deadline = deadline
		a.deadlineIdx = index
	}
}

func (a *Alt) run(mode AltMode, pre []bool) (int, error) {
	if err := a.owner.check("alt used from multiple goroutines"); err != nil {
		logViolation(a.logger, "ownership", err.Error())
		return -1, err
	}
	n := len(a.guards)
	if pre != nil && len(pre) != n {
		return -1, ProtocolViolationError{Reason: "pre-condition mask length does not match guard count"}
	}

	var coord *Coordinator
	for _, g := range a.guards {
		if cg, ok := g.(coordinatedGuard); ok {
			coord = cg.coordinator()
			break
		}
	}

	start := 0
	if mode == FAIR {
		start = a.next()
	}

	a.lock.Lock()
	a.state = altEnabling
	a.selected = -1
	a.hasDeadline = false
	a.lock.Unlock()

	order := make([]int, n)
	enabled := make([]bool, n)
	enabledUpto := -1

	if coord != nil {
		coord.startEnable()
	}
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		order[i] = idx
		if pre != nil && !pre[idx] {
			continue
		}
		enabled[idx] = true
		ready := a.guards[idx].enable(a, idx)
		enabledUpto = i

		a.lock.Lock()
		if ready && a.state != altReady {
			a.state = altReady
			a.selected = idx
		}
		won := a.state == altReady
		a.lock.Unlock()
		if won {
			break
		}
	}
	if coord != nil {
		coord.finishEnable()
	}

	a.lock.Lock()
	if a.state != altReady {
		a.state = altWaiting
	}
	for a.state == altWaiting {
		if a.hasDeadline {
			now := time.Now()
			if !now.Before(a.deadline) {
				a.state = altReady
				a.selected = a.deadlineIdx
				break
			}
			timer := time.AfterFunc(a.deadline.Sub(now), a.fireDeadline)
			a.cond.Wait()
			timer.Stop()
		} else {
			a.cond.Wait()
		}
	}
	selected := a.selected
	a.lock.Unlock()

	// DISABLE phase: reverse of enable order, starting just before the
	// selected guard's position and wrapping all the way around, visiting
	// every other previously-enabled guard exactly once.
	pos := -1
	for i := 0; i <= enabledUpto; i++ {
		if order[i] == selected {
			pos = i
			break
		}
	}
	finalSelected := selected
	firstReadyFromDisable := -1

	if coord != nil {
		coord.startDisable(n)
	}
	if pos >= 0 {
		for steps := 1; steps < n; steps++ {
			i := ((pos-steps)%n + n) % n
			if i > enabledUpto {
				continue
			}
			idx := order[i]
			if !enabled[idx] || idx == selected {
				continue
			}
			ready := a.guards[idx].disable(a, idx)
			if ready && firstReadyFromDisable < 0 {
				firstReadyFromDisable = idx
			}
		}
	}
	if coord != nil {
		coord.finishDisable()
	}
	if firstReadyFromDisable >= 0 {
		finalSelected = firstReadyFromDisable
	}

	a.lock.Lock()
	a.state = altInactive
	a.lock.Unlock()
	a.setNext(mode, finalSelected, n)

	return finalSelected, nil
}

func (a *Alt) fireDeadline() {
	a.lock.Lock()
	if a.state == altWaiting {
		a.state = altReady
		a.selected = a.deadlineIdx
		a.cond.Signal()
	}
	a.lock.Unlock()
}

func (a *Alt) next() int {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.nextPtr
}

func (a *Alt) setNext(mode AltMode, selected, n int) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if mode == FAIR {
		a.nextPtr = (selected + 1) % n
	} else {
		a.nextPtr = 0
	}
}
