package csp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSkip_AlwaysWins(t *testing.T) {
	alt := NewAlt([]Guard{Stop(), Skip(), Stop()})
	idx, err := alt.PriSelect()
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestStop_NeverWinsAlone(t *testing.T) {
	ch := NewChannel[int]()
	go func() { _ = ch.Out().Write(1) }()
	alt := NewAlt([]Guard{Stop(), ch.In()})
	idx, err := alt.Select()
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	_, _ = ch.In().Read()
}
