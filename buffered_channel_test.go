package csp

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferedChannel_WriteDoesNotBlockUntilFull(t *testing.T) {
	ch := NewBufferedChannel[int](NewBoundedFIFOStore[int](2))
	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, ch.Out().Write(1))
		require.NoError(t, ch.Out().Write(2))
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("write blocked unexpectedly while store had room")
	}

	v, err := ch.In().Read()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestBufferedChannel_BoundedFIFOBlocksWriterWhenFull(t *testing.T) {
	ch := NewBufferedChannel[int](NewBoundedFIFOStore[int](1))
	require.NoError(t, ch.Out().Write(1))

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		require.NoError(t, ch.Out().Write(2))
	}()

	select {
	case <-writeDone:
		t.Fatal("writer proceeded while store was full")
	case <-time.After(20 * time.Millisecond):
	}

	v, err := ch.In().Read()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	<-writeDone

	v, err = ch.In().Read()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestBufferedChannel_OverflowingDropsExcess(t *testing.T) {
	ch := NewBufferedChannel[int](NewOverflowingStore[int](1))
	require.NoError(t, ch.Out().Write(1))
	require.NoError(t, ch.Out().Write(2)) // dropped, store already full

	v, err := ch.In().Read()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.False(t, ch.In().Pending())
}

func TestBufferedChannel_ExtendedRead(t *testing.T) {
	ch := NewBufferedChannel[int](NewBoundedFIFOStore[int](2))
	require.NoError(t, ch.Out().Write(7))

	in := ch.In()
	v, err := in.StartRead()
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	require.NoError(t, in.EndRead())
	assert.False(t, in.Pending())
}

func TestBufferedChannel_Poison(t *testing.T) {
	ch := NewBufferedChannel[int](NewInfiniteFIFOStore[int]())
	require.NoError(t, ch.Out().Poison(3))
	err := ch.Out().Write(1)
	assert.True(t, errors.Is(err, PoisonedError{}))
	_, err = ch.In().Read()
	assert.True(t, errors.Is(err, PoisonedError{}))
}

func TestBufferedChannel_SharedEndsFanIn(t *testing.T) {
	ch := NewBufferedChannel[int](NewInfiniteFIFOStore[int]())
	out := ch.SharedOut()

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			require.NoError(t, out.Write(i))
		}()
	}
	wg.Wait()

	seen := map[int]bool{}
	for i := 0; i < n; i++ {
		v, err := ch.In().Read()
		require.NoError(t, err)
		seen[v] = true
	}
	assert.Len(t, seen, n)
}
