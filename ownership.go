package csp

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// goroutineID returns the numeric id of the calling goroutine, parsed from
// the header line of its own stack trace ("goroutine NNN [running]:"). Go
// has no first-class goroutine-local identifier; this is the same fallback
// a number of debug-only libraries reach for in its absence. It is used
// exclusively for the single-owner assertions in §5 ("Shared-resource
// policy") and is never called on a hot path.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseInt(string(b), 10, 64)
	return id
}

// ownerToken records the first goroutine to use a single-owner object (an
// Alt, or an AltingBarrier front-end) and flags use from any other
// goroutine as an OwnershipViolationError.
type ownerToken struct {
	mu sync.Mutex
	id int64 // 0 until first use
}

func (o *ownerToken) check(reason string) error {
	gid := goroutineID()
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.id == 0 {
		o.id = gid
		return nil
	}
	if o.id != gid {
		return OwnershipViolationError{Reason: reason}
	}
	return nil
}

// reset clears the recorded owner, so the next check claims the calling
// goroutine afresh.
func (o *ownerToken) reset() {
	o.mu.Lock()
	o.id = 0
	o.mu.Unlock()
}

// mark unconditionally claims the calling goroutine as owner, overwriting
// whatever was previously recorded. Used by FrontEnd.Mark, so a pool
// manager can hand a freshly expanded front-end to the worker that will
// actually use it without racing the lazy claim inside check.
func (o *ownerToken) mark() {
	o.mu.Lock()
	o.id = goroutineID()
	o.mu.Unlock()
}
