package csp

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusyChannel_WriteReadRendezvous(t *testing.T) {
	ch := NewBusyChannel[int]()
	var got int
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		require.NoError(t, ch.Out().Write(9))
	}()
	go func() {
		defer wg.Done()
		v, err := ch.In().Read()
		require.NoError(t, err)
		got = v
	}()
	wg.Wait()
	assert.Equal(t, 9, got)
}

func TestBusyChannel_ExtendedReadProtocol(t *testing.T) {
	ch := NewBusyChannel[int]()
	go func() { _ = ch.Out().Write(1) }()

	in := ch.In()
	v, err := in.StartRead()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = in.StartRead()
	var pv ProtocolViolationError
	assert.True(t, errors.As(err, &pv))

	require.NoError(t, in.EndRead())
}

func TestBusyChannel_Poison(t *testing.T) {
	ch := NewBusyChannel[int]()
	require.NoError(t, ch.Out().Poison(5))
	_, err := ch.In().Read()
	assert.True(t, errors.Is(err, PoisonedError{}))
	err = ch.Out().Write(1)
	assert.True(t, errors.Is(err, PoisonedError{}))
}

func TestSpinLock_MutualExclusion(t *testing.T) {
	var l spinLock
	counter := 0
	var wg sync.WaitGroup
	const n = 50
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			l.Lock()
			counter++
			l.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, n, counter)
}
