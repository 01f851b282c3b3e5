package csp

import "time"

// Timer is a thin wrapper over the platform clock, named as a core guard
// variant by §6 even though its own body is out of scope for anything more
// than that — per spec.md §1, "timed sleeps and clock reads that are thin
// wrappers over the platform clock" are the one deliberate exception to the
// kernel's own logic living here. No third-party clock library appears
// anywhere in the retrieved pack, so this is implemented directly on the
// standard library's time package.
type Timer struct{}

// Now returns the current time.
func (Timer) Now() time.Time { return time.Now() }

// Sleep blocks the calling goroutine for d.
func (Timer) Sleep(d time.Duration) { time.Sleep(d) }

// SleepUntil blocks the calling goroutine until t.
func (Timer) SleepUntil(t time.Time) { time.Sleep(time.Until(t)) }

type timerGuard struct {
	deadline time.Time
}

// After returns a Guard that becomes ready once d has elapsed from the
// moment After is called. The deadline is fixed at that moment; enabling
// the guard in a later select does not restart it.
func After(d time.Duration) Guard { return AtTime(time.Now().Add(d)) }

// AtTime returns a Guard that becomes ready once the clock reaches t.
func AtTime(t time.Time) Guard { return &timerGuard{deadline: t} }

func (g *timerGuard) enable(a *Alt, index int) bool {
	a.noteDeadline(index, g.deadline)
	return !time.Now().Before(g.deadline)
}

func (g *timerGuard) disable(a *Alt, index int) bool {
	return !time.Now().Before(g.deadline)
}
