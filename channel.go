package csp

import (
	"sync"

	"github.com/gocsp/csp/substrate"
)

// Channel is the blocking-variant synchronous channel of §4.1: a
// rendezvous point carrying values of type T, parked on a condition
// variable rather than spinning. At most one value is ever in flight.
//
// A Channel is shared by reference through its ends (In/Out/SharedIn/
// SharedOut); the zero value is not usable, use NewChannel.
type Channel[T any] struct {
	model substrate.Model
	lock  substrate.Locker
	cond  substrate.Cond
	name  string

	held     bool // a value has been deposited and not yet fully read
	extended bool // a start_read has not yet been matched by end_read
	value    T

	poisonStrength int

	altListener *Alt
	altIndex    int

	logger *Logger
}

// ChannelOption configures a Channel constructed by NewChannel.
type ChannelOption[T any] func(*Channel[T])

// WithChannelSubstrate selects the concurrency substrate backing the
// channel's mutex and condition variable. Defaults to substrate.Preemptive.
func WithChannelSubstrate[T any](m substrate.Model) ChannelOption[T] {
	return func(c *Channel[T]) { c.model = m }
}

// WithChannelLogger attaches a Logger for poison and protocol diagnostics.
func WithChannelLogger[T any](l *Logger) ChannelOption[T] {
	return func(c *Channel[T]) { c.logger = l }
}

// WithChannelName attaches a name used only in log fields.
func WithChannelName[T any](name string) ChannelOption[T] {
	return func(c *Channel[T]) { c.name = name }
}

// NewChannel constructs a new, unpoisoned, empty Channel.
func NewChannel[T any](opts ...ChannelOption[T]) *Channel[T] {
	c := &Channel[T]{model: substrate.Preemptive}
	for _, o := range opts {
		o(c)
	}
	c.lock = c.model.NewLocker()
	c.cond = c.model.NewCond(c.lock)
	return c
}

// In returns this channel's (exclusive, alt-able) reader end.
func (c *Channel[T]) In() GuardedReaderEnd[T] { return GuardedReaderEnd[T]{ReaderEnd[T]{c}} }

// Out returns this channel's (exclusive) writer end.
func (c *Channel[T]) Out() WriterEnd[T] { return WriterEnd[T]{c} }

// SharedIn returns a reader end safe for concurrent use by multiple
// goroutines, serialized by an end-level mutex distinct from the channel's
// own state mutex (§5).
func (c *Channel[T]) SharedIn() *SharedReaderEnd[T] {
	return &SharedReaderEnd[T]{ReaderEnd: ReaderEnd[T]{c}}
}

// SharedOut returns a writer end safe for concurrent use by multiple
// goroutines.
func (c *Channel[T]) SharedOut() *SharedWriterEnd[T] {
	return &SharedWriterEnd[T]{WriterEnd: WriterEnd[T]{c}}
}

func (c *Channel[T]) write(v T) error {
	c.lock.Lock()
	if c.poisonStrength > 0 {
		s := c.poisonStrength
		c.lock.Unlock()
		logPoison(c.logger, "write", c.name, s)
		return PoisonedError{Strength: s}
	}
	for c.held {
		c.cond.Wait()
		if c.poisonStrength > 0 {
			s := c.poisonStrength
			c.lock.Unlock()
			return PoisonedError{Strength: s}
		}
	}
	c.value = v
	c.held = true

	var notify *Alt
	var notifyIdx int
	if c.altListener != nil {
		notify = c.altListener
		notifyIdx = c.altIndex
		c.altListener = nil
	} else {
		c.cond.Broadcast()
	}
	c.lock.Unlock()

	if notify != nil {
		notify.schedule(notifyIdx)
	}

	c.lock.Lock()
	for c.held {
		if c.poisonStrength > 0 {
			s := c.poisonStrength
			c.lock.Unlock()
			return PoisonedError{Strength: s}
		}
		c.cond.Wait()
	}
	c.lock.Unlock()
	return nil
}

func (c *Channel[T]) read() (T, error) {
	var zero T
	c.lock.Lock()
	for {
		if c.poisonStrength > 0 {
			s := c.poisonStrength
			c.lock.Unlock()
			return zero, PoisonedError{Strength: s}
		}
		if c.held && !c.extended {
			break
		}
		c.cond.Wait()
	}
	v := c.value
	c.held = false
	c.cond.Broadcast()
	c.lock.Unlock()
	return v, nil
}

func (c *Channel[T]) startRead() (T, error) {
	var zero T
	c.lock.Lock()
	if c.extended {
		c.lock.Unlock()
		return zero, ProtocolViolationError{Reason: "start_read: extended read already in progress"}
	}
	for {
		if c.poisonStrength > 0 {
			s := c.poisonStrength
			c.lock.Unlock()
			return zero, PoisonedError{Strength: s}
		}
		if c.held {
			break
		}
		c.cond.Wait()
	}
	v := c.value
	c.extended = true
	c.lock.Unlock()
	return v, nil
}

func (c *Channel[T]) endRead() error {
	c.lock.Lock()
	if !c.extended {
		c.lock.Unlock()
		logViolation(c.logger, "protocol", "end_read without a matching start_read")
		return ProtocolViolationError{Reason: "end_read without a matching start_read"}
	}
	c.extended = false
	c.held = false
	c.cond.Broadcast()
	c.lock.Unlock()
	return nil
}

func (c *Channel[T]) pending() bool {
	c.lock.Lock()
	p := c.poisonStrength > 0 || (c.held && !c.extended)
	c.lock.Unlock()
	return p
}

func (c *Channel[T]) poison(strength int) error {
	if strength <= 0 {
		return ProtocolViolationError{Reason: "poison: strength must be positive"}
	}
	c.lock.Lock()
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
	c.cond.Broadcast()
	c.lock.Unlock()

	if notify != nil {
		notify.schedule(notifyIdx)
	}
	logPoison(c.logger, "poison", c.name, strength)
	return nil
}

// enableGuard implements the reader-side guard contract of §4.1.
func (c *Channel[T]) enableGuard(a *Alt, index int) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.poisonStrength > 0 || (c.held && !c.extended) {
		return true
	}
	c.altListener = a
	c.altIndex = index
	return false
}

// disableGuard implements the reader-side guard contract of §4.1.
func (c *Channel[T]) disableGuard(a *Alt, _ int) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.altListener == a {
		c.altListener = nil
	}
	return c.poisonStrength > 0 || (c.held && !c.extended)
}

// coreChannel is the common contract every channel transport (blocking
// unbuffered, buffered, busy) implements, letting ReaderEnd/WriterEnd and
// their variants stay transport-agnostic.
type coreChannel[T any] interface {
	write(v T) error
	read() (T, error)
	startRead() (T, error)
	endRead() error
	pending() bool
	poison(strength int) error
	enableGuard(a *Alt, index int) bool
	disableGuard(a *Alt, index int) bool
}

type (
	// ReaderEnd is the read side of a channel, constrained by convention
	// to a single task unless obtained via a Shared* constructor.
	ReaderEnd[T any] struct{ ch coreChannel[T] }

	// GuardedReaderEnd is a ReaderEnd that also implements Guard, so it
	// can be passed directly into NewAlt.
	GuardedReaderEnd[T any] struct{ ReaderEnd[T] }

	// SharedReaderEnd is a ReaderEnd safe for concurrent use by multiple
	// goroutines.
	SharedReaderEnd[T any] struct {
		ReaderEnd[T]
		mu sync.Mutex
	}

	// WriterEnd is the write side of a channel, constrained by convention
	// to a single task unless obtained via a Shared* constructor.
	WriterEnd[T any] struct{ ch coreChannel[T] }

	// SharedWriterEnd is a WriterEnd safe for concurrent use by multiple
	// goroutines.
	SharedWriterEnd[T any] struct {
		WriterEnd[T]
		mu sync.Mutex
	}
)

// Read blocks until a value is available, then returns it.
func (r ReaderEnd[T]) Read() (T, error) { return r.ch.read() }

// StartRead returns the next value without releasing its writer; the
// writer remains parked until a matching EndRead.
func (r ReaderEnd[T]) StartRead() (T, error) { return r.ch.startRead() }

// EndRead releases the writer parked by a prior StartRead.
func (r ReaderEnd[T]) EndRead() error { return r.ch.endRead() }

// Pending reports, as a hint only, whether a value is currently available.
func (r ReaderEnd[T]) Pending() bool { return r.ch.pending() }

// Poison renders the channel permanently unusable at the given strength.
func (r ReaderEnd[T]) Poison(strength int) error { return r.ch.poison(strength) }

func (g GuardedReaderEnd[T]) enable(a *Alt, index int) bool  { return g.ch.enableGuard(a, index) }
func (g GuardedReaderEnd[T]) disable(a *Alt, index int) bool { return g.ch.disableGuard(a, index) }

// Read blocks until a value is available, then returns it. Concurrent
// callers are serialized.
func (s *SharedReaderEnd[T]) Read() (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch.read()
}

// StartRead is the extended-read entry point, serialized across concurrent
// callers the same way Read is.
func (s *SharedReaderEnd[T]) StartRead() (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch.startRead()
}

// EndRead releases the writer parked by a prior StartRead.
func (s *SharedReaderEnd[T]) EndRead() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch.endRead()
}

// Poison renders the channel permanently unusable at the given strength.
func (s *SharedReaderEnd[T]) Poison(strength int) error { return s.ch.poison(strength) }

// Write blocks until a reader takes v, or the channel is poisoned. On a
// BufferedChannel it instead returns once the store has accepted v.
func (w WriterEnd[T]) Write(v T) error { return w.ch.write(v) }

// Poison renders the channel permanently unusable at the given strength.
func (w WriterEnd[T]) Poison(strength int) error { return w.ch.poison(strength) }

// Write blocks until a reader takes v, or the channel is poisoned (on a
// BufferedChannel, until the store has accepted v). Concurrent callers are
// serialized.
func (s *SharedWriterEnd[T]) Write(v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch.write(v)
}

// Poison renders the channel permanently unusable at the given strength.
func (s *SharedWriterEnd[T]) Poison(strength int) error { return s.ch.poison(strength) }
