package csp

import "github.com/gocsp/csp/substrate"

// BufferedChannel is the buffered-variant channel of §4.2: writer and
// reader are decoupled by a ChannelDataStore instead of meeting in lock
// step. Only a bounded FIFO store (BlocksWhenFull()==true) ever parks a
// writer; every other policy always accepts a Put, dropping or evicting
// as its own contract dictates.
type BufferedChannel[T any] struct {
	model substrate.Model
	lock  substrate.Locker
	cond  substrate.Cond
	name  string

	store    ChannelDataStore[T]
	extended bool

	poisonStrength int

	altListener *Alt
	altIndex    int

	logger *Logger
}

// BufferedChannelOption configures a BufferedChannel constructed by
// NewBufferedChannel.
type BufferedChannelOption[T any] func(*BufferedChannel[T])

// WithBufferedChannelSubstrate selects the concurrency substrate backing
// the channel's mutex and condition variable. Defaults to
// substrate.Preemptive.
func WithBufferedChannelSubstrate[T any](m substrate.Model) BufferedChannelOption[T] {
	return func(c *BufferedChannel[T]) { c.model = m }
}

// WithBufferedChannelLogger attaches a Logger for poison and protocol
// diagnostics.
func WithBufferedChannelLogger[T any](l *Logger) BufferedChannelOption[T] {
	return func(c *BufferedChannel[T]) { c.logger = l }
}

// WithBufferedChannelName attaches a name used only in log fields.
func WithBufferedChannelName[T any](name string) BufferedChannelOption[T] {
	return func(c *BufferedChannel[T]) { c.name = name }
}

// NewBufferedChannel constructs a new, unpoisoned BufferedChannel backed by
// the given store (see NewBoundedFIFOStore, NewInfiniteFIFOStore,
// NewOverflowingStore, NewOverwriteOldestStore, NewOverwritingNewestStore).
func NewBufferedChannel[T any](store ChannelDataStore[T], opts ...BufferedChannelOption[T]) *BufferedChannel[T] {
	if store == nil {
		panic("csp: NewBufferedChannel: store must not be nil")
	}
	c := &BufferedChannel[T]{model: substrate.Preemptive, store: store}
	for _, o := range opts {
		o(c)
	}
	c.lock = c.model.NewLocker()
	c.cond = c.model.NewCond(c.lock)
	return c
}

// In returns this channel's (exclusive, alt-able) reader end.
func (c *BufferedChannel[T]) In() GuardedReaderEnd[T] { return GuardedReaderEnd[T]{ReaderEnd[T]{c}} }

// Out returns this channel's (exclusive) writer end.
func (c *BufferedChannel[T]) Out() WriterEnd[T] { return WriterEnd[T]{c} }

// SharedIn returns a reader end safe for concurrent use by multiple
// goroutines.
func (c *BufferedChannel[T]) SharedIn() *SharedReaderEnd[T] {
	return &SharedReaderEnd[T]{ReaderEnd: ReaderEnd[T]{c}}
}

// SharedOut returns a writer end safe for concurrent use by multiple
// goroutines.
func (c *BufferedChannel[T]) SharedOut() *SharedWriterEnd[T] {
	return &SharedWriterEnd[T]{WriterEnd: WriterEnd[T]{c}}
}

func (c *BufferedChannel[T]) write(v T) error {
	c.lock.Lock()
	if c.poisonStrength > 0 {
		s := c.poisonStrength
		c.lock.Unlock()
		logPoison(c.logger, "write", c.name, s)
		return PoisonedError{Strength: s}
	}
	if c.store.BlocksWhenFull() {
		for c.store.State() == StoreFull {
			c.cond.Wait()
			if c.poisonStrength > 0 {
				s := c.poisonStrength
				c.lock.Unlock()
				return PoisonedError{Strength: s}
			}
		}
	}
	wasEmpty := c.store.State() == StoreEmpty
	c.store.Put(v)

	var notify *Alt
	var notifyIdx int
	if wasEmpty && c.altListener != nil {
		notify = c.altListener
		notifyIdx = c.altIndex
		c.altListener = nil
	}
	c.cond.Broadcast()
	c.lock.Unlock()

	if notify != nil {
		notify.schedule(notifyIdx)
	}
	return nil
}

func (c *BufferedChannel[T]) read() (T, error) {
	var zero T
	c.lock.Lock()
	for {
		if c.poisonStrength > 0 {
			s := c.poisonStrength
			c.lock.Unlock()
			return zero, PoisonedError{Strength: s}
		}
		if c.store.State() != StoreEmpty && !c.extended {
			break
		}
		c.cond.Wait()
	}
	v := c.store.Get()
	c.cond.Broadcast()
	c.lock.Unlock()
	return v, nil
}

func (c *BufferedChannel[T]) startRead() (T, error) {
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
		if c.store.State() != StoreEmpty {
			break
		}
		c.cond.Wait()
	}
	v := c.store.Peek()
	c.extended = true
	c.lock.Unlock()
	return v, nil
}

func (c *BufferedChannel[T]) endRead() error {
	c.lock.Lock()
	if !c.extended {
		c.lock.Unlock()
		logViolation(c.logger, "protocol", "end_read without a matching start_read")
		return ProtocolViolationError{Reason: "end_read without a matching start_read"}
	}
	c.store.Get()
	c.extended = false
	c.cond.Broadcast()
	c.lock.Unlock()
	return nil
}

func (c *BufferedChannel[T]) pending() bool {
	c.lock.Lock()
	p := c.poisonStrength > 0 || (c.store.State() != StoreEmpty && !c.extended)
	c.lock.Unlock()
	return p
}

func (c *BufferedChannel[T]) poison(strength int) error {
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

func (c *BufferedChannel[T]) enableGuard(a *Alt, index int) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.poisonStrength > 0 || (c.store.State() != StoreEmpty && !c.extended) {
		return true
	}
	c.altListener = a
	c.altIndex = index
	return false
}

func (c *BufferedChannel[T]) disableGuard(a *Alt, _ int) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.altListener == a {
		c.altListener = nil
	}
	return c.poisonStrength > 0 || (c.store.State() != StoreEmpty && !c.extended)
}
