package csp

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlt_SelectsReadyGuard(t *testing.T) {
	a := NewChannel[int]()
	b := NewChannel[int]()
	go func() { _ = a.Out().Write(1) }()

	alt := NewAlt([]Guard{a.In(), b.In()})
	idx, err := alt.Select()
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	v, err := a.In().Read()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestAlt_PriSelectPrefersLowerIndex(t *testing.T) {
	a := NewChannel[int]()
	b := NewChannel[int]()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = a.Out().Write(1) }()
	go func() { defer wg.Done(); _ = b.Out().Write(2) }()

	// give both writers a chance to deposit their values before selecting.
	time.Sleep(10 * time.Millisecond)

	alt := NewAlt([]Guard{a.In(), b.In()})
	idx, err := alt.PriSelect()
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	_, _ = a.In().Read()
	_, _ = b.In().Read()
	wg.Wait()
}

func TestAlt_FairSelectRotates(t *testing.T) {
	a := NewChannel[int]()
	b := NewChannel[int]()
	alt := NewAlt([]Guard{a.In(), b.In()}, WithMode(FAIR))

	go func() { _ = a.Out().Write(1) }()
	go func() { _ = b.Out().Write(1) }()
	time.Sleep(10 * time.Millisecond)

	idx1, err := alt.FairSelect()
	require.NoError(t, err)
	assert.Equal(t, 0, idx1)
	_, _ = a.In().Read()

	go func() { _ = a.Out().Write(1) }()
	go func() { _ = b.Out().Write(1) }()
	time.Sleep(10 * time.Millisecond)

	idx2, err := alt.FairSelect()
	require.NoError(t, err)
	assert.Equal(t, 1, idx2, "fair rotation should prefer the guard after the last winner")
	_, _ = b.In().Read()
	_, _ = a.In().Read()
}

func TestAlt_PreConditionMaskSkipsGuard(t *testing.T) {
	a := NewChannel[int]()
	b := NewChannel[int]()
	go func() { _ = a.Out().Write(1) }()
	go func() { _ = b.Out().Write(2) }()
	time.Sleep(10 * time.Millisecond)

	alt := NewAlt([]Guard{a.In(), b.In()})
	idx, err := alt.PriSelectWithPre([]bool{false, true})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	_, _ = b.In().Read()
	_, _ = a.In().Read()
}

func TestAlt_PreConditionMaskWrongLength(t *testing.T) {
	a := NewChannel[int]()
	alt := NewAlt([]Guard{a.In()})
	_, err := alt.SelectWithPre([]bool{true, true})
	var pv ProtocolViolationError
	assert.ErrorAs(t, err, &pv)
}

func TestAlt_BlocksUntilGuardReady(t *testing.T) {
	a := NewChannel[int]()
	alt := NewAlt([]Guard{a.In()})

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = a.Out().Write(7)
	}()

	idx, err := alt.Select()
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	_, _ = a.In().Read()
}

func TestAlt_OwnershipViolation(t *testing.T) {
	a := NewChannel[int]()
	alt := NewAlt([]Guard{a.In(), Skip()})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = alt.Select()
	}()
	<-done

	_, err := alt.Select()
	var ov OwnershipViolationError
	assert.ErrorAs(t, err, &ov)
}

func TestAlt_TimerGuardFires(t *testing.T) {
	stop := NewChannel[int]()
	alt := NewAlt([]Guard{stop.In(), After(10 * time.Millisecond)})
	idx, err := alt.Select()
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestAlt_SkipAlwaysReady(t *testing.T) {
	a := NewChannel[int]()
	alt := NewAlt([]Guard{Skip(), a.In()})
	idx, err := alt.PriSelect()
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
}
