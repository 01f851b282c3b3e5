package csp

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOwnerToken_FirstUseWins(t *testing.T) {
	var o ownerToken
	assert.NoError(t, o.check("test"))
	assert.NoError(t, o.check("test"))
}

func TestOwnerToken_ViolationFromOtherGoroutine(t *testing.T) {
	var o ownerToken
	require := assert.New(t)
	require.NoError(o.check("test"))

	var wg sync.WaitGroup
	wg.Add(1)
	var err error
	go func() {
		defer wg.Done()
		err = o.check("test")
	}()
	wg.Wait()
	require.Error(err)
	var ov OwnershipViolationError
	require.ErrorAs(err, &ov)
}

func TestOwnerToken_ResetAllowsNewOwner(t *testing.T) {
	var o ownerToken
	assert.NoError(t, o.check("test"))
	o.reset()

	var wg sync.WaitGroup
	wg.Add(1)
	var err error
	go func() {
		defer wg.Done()
		err = o.check("test")
	}()
	wg.Wait()
	assert.NoError(t, err)
}

func TestGoroutineID_Unique(t *testing.T) {
	id1 := goroutineID()
	ids := make(chan int64, 1)
	go func() { ids <- goroutineID() }()
	id2 := <-ids
	assert.NotEqual(t, id1, id2)
}
