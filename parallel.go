package csp

import (
	"sync"

	"github.com/gocsp/csp/substrate"
)

// Process is anything Parallel can run concurrently (§4.7): a single
// sequential unit of work, identified only by what it does when Run.
type Process interface {
	Run() error
}

// ProcessFunc adapts a plain function to Process.
type ProcessFunc func() error

// Run calls f.
func (f ProcessFunc) Run() error { return f() }

// parWorker is one persistent worker task owned by a Parallel: process.run();
// barrier.sync(); park.sync(), repeated until running is cleared while it is
// parked. park is a private 2-party barrier between this worker and the
// Parallel's controlling goroutine, used to hand the worker its next process
// (or its termination) between rounds.
type parWorker struct {
	process Process
	err     error
	running bool
	barrier *Barrier
	park    *Barrier
	done    chan struct{}
}

func (w *parWorker) loop() {
	defer close(w.done)
	for {
		w.err = w.process.Run()
		w.barrier.Sync()
		w.park.Sync()
		if !w.running {
			return
		}
	}
}

// Parallel runs a group of Processes concurrently and waits for all of them
// to finish, the way the source's PAR construct does. Processes p_0..p_{k-2}
// run on a pool of persistent worker tasks; p_{k-1} runs inline on the
// caller of Run, which joins the pool on a shared k-party Barrier rather
// than a plain WaitGroup, matching §4.7's worker-reuse contract: a repeated
// Run reuses the existing pool by resetting the shared barrier and releasing
// each worker's park, resizing it first if the process count changed.
type Parallel struct {
	model  substrate.Model
	logger *Logger

	mu        sync.Mutex
	processes []Process
	workers   []*parWorker
	barrier   *Barrier
}

// ParallelOption configures a Parallel constructed by NewParallel.
type ParallelOption func(*Parallel)

// WithParallelSubstrate selects the concurrency substrate used to spawn and
// synchronize worker tasks. Defaults to substrate.Preemptive.
func WithParallelSubstrate(m substrate.Model) ParallelOption {
	return func(p *Parallel) { p.model = m }
}

// WithParallelLogger attaches a Logger, forwarded to the shared and park
// barriers (which do not themselves emit log events).
func WithParallelLogger(l *Logger) ParallelOption {
	return func(p *Parallel) { p.logger = l }
}

// NewParallel constructs a Parallel over the given processes, run in the
// order given whenever Run is called.
func NewParallel(processes []Process, opts ...ParallelOption) *Parallel {
	p := &Parallel{model: substrate.Preemptive, processes: processes}
	for _, o := range opts {
		o(p)
	}
	return p
}

// SetProcesses replaces the set of processes the next Run executes. The
// worker pool is resized lazily, inside Run, not here.
func (p *Parallel) SetProcesses(processes []Process) {
	p.mu.Lock()
	p.processes = processes
	p.mu.Unlock()
}

// Run starts p_0..p_{k-2} on the worker pool, runs p_{k-1} inline, and
// blocks until all k have finished, collecting every non-nil error into a
// ParallelError. A Parallel with no processes returns immediately with a
// nil error.
func (p *Parallel) Run() error {
	p.mu.Lock()
	processes := p.processes
	k := len(processes)
	if k == 0 {
		p.mu.Unlock()
		return nil
	}
	if p.barrier == nil {
		p.barrier = NewBarrier(k, WithBarrierSubstrate(p.model), WithBarrierLogger(p.logger))
	} else if err := p.barrier.Reset(k); err != nil {
		p.mu.Unlock()
		return err
	}
	p.resizeLocked(k-1, processes[:k-1])
	workers := p.workers
	p.mu.Unlock()

	inlineErr := processes[k-1].Run()
	if err := p.barrier.Sync(); err != nil {
		return err
	}

	var failed []error
	if inlineErr != nil {
		failed = append(failed, inlineErr)
	}
	for _, w := range workers {
		if w.err != nil {
			failed = append(failed, w.err)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return ParallelError{Errs: failed}
}

// resizeLocked grows or shrinks the worker pool to want workers, assigning
// assigned[i] to worker i and releasing every reused or freshly spawned
// worker for the round about to run. Must be called with p.mu held.
func (p *Parallel) resizeLocked(want int, assigned []Process) {
	cur := len(p.workers)

	for i := 0; i < want && i < cur; i++ {
		w := p.workers[i]
		w.process = assigned[i]
		w.running = true
		w.park.Sync()
	}

	for i := cur; i < want; i++ {
		w := &parWorker{
			process: assigned[i],
			running: true,
			barrier: p.barrier,
			park:    NewBarrier(2, WithBarrierSubstrate(p.model), WithBarrierLogger(p.logger)),
			done:    make(chan struct{}),
		}
		p.workers = append(p.workers, w)
		p.model.Go(w.loop)
	}

	if want < cur {
		surplus := p.workers[want:]
		p.workers = p.workers[:want]
		for _, w := range surplus {
			w.running = false
			w.park.Sync()
		}
	}
}

// Close terminates every worker in the pool (setting running false,
// releasing its park, and joining it) and clears the pool. A Run after Close
// starts a fresh pool for the current process list.
func (p *Parallel) Close() {
	p.mu.Lock()
	workers := p.workers
	p.workers = nil
	for _, w := range workers {
		w.running = false
	}
	for _, w := range workers {
		w.park.Sync()
	}
	p.mu.Unlock()

	for _, w := range workers {
		<-w.done
	}
}

// ParallelError aggregates the non-nil errors returned by a Parallel's
// branches.
type ParallelError struct {
	Errs []error
}

func (e ParallelError) Error() string {
	if len(e.Errs) == 1 {
		return "csp: parallel: " + e.Errs[0].Error()
	}
	msg := "csp: parallel: multiple branch errors:"
	for _, err := range e.Errs {
		msg += " " + err.Error() + ";"
	}
	return msg
}

func (e ParallelError) Unwrap() []error { return e.Errs }

// ParFor runs fn once per index in [0, n), in parallel, waiting for every
// call to finish before returning.
func ParFor(n int, fn func(i int) error, opts ...ParallelOption) error {
	return ParForN(n, n, fn, opts...)
}

// ParForN runs fn once per index in [0, n), in parallel, at most
// concurrency invocations in flight at a time. Both are derived primitives
// built on a single one-shot Parallel (§4.7): one branch per index when
// concurrency == n, or a fixed pool of concurrency branches draining a
// shared index stream otherwise.
func ParForN(n, concurrency int, fn func(i int) error, opts ...ParallelOption) error {
	if n <= 0 {
		return nil
	}
	if concurrency <= 0 || concurrency > n {
		concurrency = n
	}

	if concurrency == n {
		procs := make([]Process, n)
		for i := 0; i < n; i++ {
			i := i
			procs[i] = ProcessFunc(func() error { return fn(i) })
		}
		p := NewParallel(procs, opts...)
		defer p.Close()
		return p.Run()
	}

	indices := make(chan int)
	errs := make([]error, n)
	procs := make([]Process, concurrency)
	for w := 0; w < concurrency; w++ {
		procs[w] = ProcessFunc(func() error {
			for i := range indices {
				errs[i] = fn(i)
			}
			return nil
		})
	}

	p := NewParallel(procs, opts...)
	defer p.Close()
	runDone := make(chan error, 1)
	p.model.Go(func() { runDone <- p.Run() })

	for i := 0; i < n; i++ {
		indices <- i
	}
	close(indices)
	if err := <-runDone; err != nil {
		return err
	}

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return ParallelError{Errs: failed}
}

// ParRead reads all given ends concurrently, returning their values in the
// same order, or a ParallelError holding every failed read's error.
func ParRead[T any](ends []ReaderEnd[T]) ([]T, error) {
	n := len(ends)
	values := make([]T, n)
	err := ParFor(n, func(i int) error {
		v, err := ends[i].Read()
		if err != nil {
			return err
		}
		values[i] = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// ParWrite writes each value to its corresponding end concurrently,
// waiting for every write to complete.
func ParWrite[T any](ends []WriterEnd[T], values []T) error {
	if len(ends) != len(values) {
		return ProtocolViolationError{Reason: "par_write: ends and values must be the same length"}
	}
	return ParFor(len(ends), func(i int) error {
		return ends[i].Write(values[i])
	})
}
