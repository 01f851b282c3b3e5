package csp

// Guard is a polymorphic event an Alt can select among: it answers "are
// you ready now?" (enable) and "were you ready when the Alt committed?"
// (disable). The method set is unexported deliberately — per §9's design
// note, guard-ness is a capability this package grants to its own channel
// ends, timers and alting barriers, not an extension point for arbitrary
// caller types, since the enable/disable contract is only safe to
// implement with access to an Alt's internal scheduling.
type Guard interface {
	// enable is called once per select, in ENABLE-phase order. index is
	// this guard's position within the Alt's guard list, passed back to
	// Alt.schedule if the event becomes ready asynchronously after enable
	// returns false. A true return commits the Alt to this guard without
	// further enabling.
	enable(a *Alt, index int) bool

	// disable is called at most once per select, in reverse enable order,
	// for every previously enabled guard except the one the Alt selected
	// before the DISABLE phase. It must undo any
	// bookkeeping enable performed (e.g. deregistering the Alt as a
	// listener) and report whether the guard's event was, in fact, ready.
	disable(a *Alt, index int) bool
}

// coordinatedGuard is implemented by guards that must serialize their
// enable/disable phases against every other Alt in the process that shares
// the same Coordinator — currently only the alting barrier guard (§4.4).
type coordinatedGuard interface {
	Guard
	coordinator() *Coordinator
}

type (
	skipGuard struct{}
	stopGuard struct{}
)

// Skip returns a Guard that is always ready. Placed last in a PriSelect, it
// implements a non-blocking poll of the guards before it: if none of them
// is ready, the select returns immediately at Skip's index instead of
// blocking. Placed at index 0 of a PriSelect, it always wins.
func Skip() Guard { return skipGuard{} }

// Stop returns a Guard that is never ready. It is chiefly useful as a
// placeholder in a guard slice built by index, where some positions are
// conditionally disabled for the lifetime of an Alt rather than per-select
// via a pre-condition mask.
func Stop() Guard { return stopGuard{} }

func (skipGuard) enable(*Alt, int) bool  { return true }
func (skipGuard) disable(*Alt, int) bool { return true }

func (stopGuard) enable(*Alt, int) bool  { return false }
func (stopGuard) disable(*Alt, int) bool { return false }
