package csp

import "sync/atomic"

// spinLock is a CAS-retry mutex, generalized from go-ilock's atomic
// bit-packing idiom: instead of packing multiple fields into one word, it
// guards a handful of plain fields with a single spun flag, since the busy
// channel's invariants (at most one value in flight) don't need more than
// one bit of mutual exclusion.
type spinLock struct{ locked int32 }

func (s *spinLock) Lock() {
	for !atomic.CompareAndSwapInt32(&s.locked, 0, 1) {
		spinYield()
	}
}

func (s *spinLock) Unlock() { atomic.StoreInt32(&s.locked, 0) }

// BusyChannel is the busy-wait variant of Channel (§4.3): it never parks a
// goroutine, spinning on a CAS-guarded state word instead of a condition
// variable. Semantics otherwise match Channel exactly.
type BusyChannel[T any] struct {
	mu   spinLock
	name string

	held     bool
	extended bool
	value    T

	poisonStrength int

	altListener *Alt
	altIndex    int

	logger *Logger
}

// BusyChannelOption configures a BusyChannel constructed by NewBusyChannel.
type BusyChannelOption[T any] func(*BusyChannel[T])

// WithBusyChannelLogger attaches a Logger for poison and protocol
// diagnostics.
func WithBusyChannelLogger[T any](l *Logger) BusyChannelOption[T] {
	return func(c *BusyChannel[T]) { c.logger = l }
}

// WithBusyChannelName attaches a name used only in log fields.
func WithBusyChannelName[T any](name string) BusyChannelOption[T] {
	return func(c *BusyChannel[T]) { c.name = name }
}

// NewBusyChannel constructs a new, unpoisoned, empty BusyChannel.
func NewBusyChannel[T any](opts ...BusyChannelOption[T]) *BusyChannel[T] {
	c := &BusyChannel[T]{}
	for _, o := range opts {
		o(c)
	}
	return c
}

// In returns this channel's (exclusive, alt-able) reader end.
func (c *BusyChannel[T]) In() GuardedReaderEnd[T] { return GuardedReaderEnd[T]{ReaderEnd[T]{c}} }

// Out returns this channel's (exclusive) writer end.
func (c *BusyChannel[T]) Out() WriterEnd[T] { return WriterEnd[T]{c} }

func (c *BusyChannel[T]) write(v T) error {
	c.mu.Lock()
	for {
		if c.poisonStrength > 0 {
			s := c.poisonStrength
			c.mu.Unlock()
			logPoison(c.logger, "write", c.name, s)
			return PoisonedError{Strength: s}
		}
		if !c.held {
			break
		}
		c.mu.Unlock()
		spinYield()
		c.mu.Lock()
	}
	c.value = v
	c.held = true
	var notify *Alt
	var notifyIdx int
	if c.altListener != nil {
		notify = c.altListener
		notifyIdx = c.altIndex
		c.altListener = nil
	}
	c.mu.Unlock()

	if notify != nil {
		notify.schedule(notifyIdx)
	}

	c.mu.Lock()
	for {
		if c.poisonStrength > 0 {
			s := c.poisonStrength
			c.mu.Unlock()
			return PoisonedError{Strength: s}
		}
		if !c.held {
			break
		}
		c.mu.Unlock()
		spinYield()
		c.mu.Lock()
	}
	c.mu.Unlock()
	return nil
}

func (c *BusyChannel[T]) read() (T, error) {
	var zero T
	c.mu.Lock()
	for {
		if c.poisonStrength > 0 {
			s := c.poisonStrength
			c.mu.Unlock()
			return zero, PoisonedError{Strength: s}
		}
		if c.held && !c.extended {
			break
		}
		c.mu.Unlock()
		spinYield()
		c.mu.Lock()
	}
	v := c.value
	c.held = false
	c.mu.Unlock()
	return v, nil
}

func (c *BusyChannel[T]) startRead() (T, error) {
	var zero T
	c.mu.Lock()
	if c.extended {
		c.mu.Unlock()
		return zero, ProtocolViolationError{Reason: "start_read: extended read already in progress"}
	}
	for {
		if c.poisonStrength > 0 {
			s := c.poisonStrength
			c.mu.Unlock()
			return zero, PoisonedError{Strength: s}
		}
		if c.held {
			break
		}
		c.mu.Unlock()
		spinYield()
		c.mu.Lock()
	}
	v := c.value
	c.extended = true
	c.mu.Unlock()
	return v, nil
}

func (c *BusyChannel[T]) endRead() error {
	c.mu.Lock()
	if !c.extended {
		c.mu.Unlock()
		logViolation(c.logger, "protocol", "end_read without a matching start_read")
		return ProtocolViolationError{Reason: "end_read without a matching start_read"}
	}
	c.extended = false
	c.held = false
	c.mu.Unlock()
	return nil
}

func (c *BusyChannel[T]) pending() bool {
	c.mu.Lock()
	p := c.poisonStrength > 0 || (c.held && !c.extended)
	c.mu.Unlock()
	return p
}

func (c *BusyChannel[T]) poison(strength int) error {
	if strength <= 0 {
		return ProtocolViolationError{Reason: "poison: strength must be positive"}
	}
	c.mu.Lock()
	if strength > c.poisonStrength {
		c.poisonStrength = strength
	}
	var notify *Alt
	var notifyIdx int
	if c.altListener != nil {
		notify = c.altListener
		notifyIdx = c.altIndex
		c.altListener = nil
	}
	c.mu.Unlock()

	if notify != nil {
		notify.schedule(notifyIdx)
	}
	logPoison(c.logger, "poison", c.name, strength)
	return nil
}

func (c *BusyChannel[T]) enableGuard(a *Alt, index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.poisonStrength > 0 || (c.held && !c.extended) {
		return true
	}
	c.altListener = a
	c.altIndex = index
	return false
}

func (c *BusyChannel[T]) disableGuard(a *Alt, _ int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.altListener == a {
		c.altListener = nil
	}
	return c.poisonStrength > 0 || (c.held && !c.extended)
}
