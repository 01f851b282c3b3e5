package csp

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParallel_RunsAllBranches(t *testing.T) {
	var count int32
	procs := make([]Process, 5)
	for i := range procs {
		procs[i] = ProcessFunc(func() error {
			atomic.AddInt32(&count, 1)
			return nil
		})
	}
	p := NewParallel(procs)
	require.NoError(t, p.Run())
	assert.EqualValues(t, 5, count)
}

func TestParallel_AggregatesErrors(t *testing.T) {
	boom := errors.New("boom")
	procs := []Process{
		ProcessFunc(func() error { return nil }),
		ProcessFunc(func() error { return boom }),
		ProcessFunc(func() error { return boom }),
	}
	p := NewParallel(procs)
	err := p.Run()
	var pe ParallelError
	require.ErrorAs(t, err, &pe)
	assert.Len(t, pe.Errs, 2)
}

func TestParallel_EmptyIsNoop(t *testing.T) {
	p := NewParallel(nil)
	assert.NoError(t, p.Run())
}

// TestParallel_ReusesWorkerPoolAcrossRuns exercises §4.7's "worker reuse"
// and §8 scenario S5 (barrier reset across parallel runs): the same
// Parallel, with the same process count, is Run multiple times in a row,
// proving the pool (and its shared barrier) survive and correctly
// resynchronize each round rather than needing fresh goroutines per call.
func TestParallel_ReusesWorkerPoolAcrossRuns(t *testing.T) {
	var round int32
	procs := make([]Process, 4)
	for i := range procs {
		procs[i] = ProcessFunc(func() error {
			atomic.AddInt32(&round, 1)
			return nil
		})
	}
	p := NewParallel(procs)
	defer p.Close()

	for i := 0; i < 5; i++ {
		atomic.StoreInt32(&round, 0)
		require.NoError(t, p.Run())
		assert.EqualValues(t, 4, round)
	}
}

// TestParallel_ResizesPoolBetweenRuns covers the other half of §4.7's
// worker-reuse contract: a process-count change between Run calls resizes
// the pool instead of reusing it unchanged.
func TestParallel_ResizesPoolBetweenRuns(t *testing.T) {
	var count int32
	mkProcs := func(n int) []Process {
		procs := make([]Process, n)
		for i := range procs {
			procs[i] = ProcessFunc(func() error {
				atomic.AddInt32(&count, 1)
				return nil
			})
		}
		return procs
	}

	p := NewParallel(mkProcs(2))
	defer p.Close()
	require.NoError(t, p.Run())
	assert.EqualValues(t, 2, count)

	atomic.StoreInt32(&count, 0)
	p.SetProcesses(mkProcs(6))
	require.NoError(t, p.Run())
	assert.EqualValues(t, 6, count)

	atomic.StoreInt32(&count, 0)
	p.SetProcesses(mkProcs(1))
	require.NoError(t, p.Run())
	assert.EqualValues(t, 1, count)
}

func TestParallel_CloseTerminatesWorkers(t *testing.T) {
	procs := []Process{
		ProcessFunc(func() error { return nil }),
		ProcessFunc(func() error { return nil }),
	}
	p := NewParallel(procs)
	require.NoError(t, p.Run())
	p.Close()
	assert.Empty(t, p.workers)
}

func TestParFor(t *testing.T) {
	const n = 50
	var count int32
	err := ParFor(n, func(i int) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, n, count)
}

func TestParForN_LimitsConcurrency(t *testing.T) {
	const n = 20
	const concurrency = 3
	var inFlight, maxInFlight int32
	err := ParForN(n, concurrency, func(i int) error {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			max := atomic.LoadInt32(&maxInFlight)
			if cur <= max || atomic.CompareAndSwapInt32(&maxInFlight, max, cur) {
				break
			}
		}
		atomic.AddInt32(&inFlight, -1)
		return nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, int(atomic.LoadInt32(&maxInFlight)), concurrency)
}

func TestParReadParWrite(t *testing.T) {
	a := NewChannel[int]()
	b := NewChannel[int]()

	readDone := make(chan []int, 1)
	go func() {
		v, err := ParRead([]ReaderEnd[int]{a.In().ReaderEnd, b.In().ReaderEnd})
		require.NoError(t, err)
		readDone <- v
	}()

	err := ParWrite([]WriterEnd[int]{a.Out(), b.Out()}, []int{1, 2})
	require.NoError(t, err)

	got := <-readDone
	assert.ElementsMatch(t, []int{1, 2}, got)
}

func TestParWrite_LengthMismatch(t *testing.T) {
	a := NewChannel[int]()
	err := ParWrite([]WriterEnd[int]{a.Out()}, nil)
	var pv ProtocolViolationError
	assert.ErrorAs(t, err, &pv)
}
