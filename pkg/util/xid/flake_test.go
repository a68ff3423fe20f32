package xid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedMachineID() (uint16, error) { return 7, nil }

func TestGenerator_New_ReturnsDistinctIncreasingIDs(t *testing.T) {
	g, err := NewGenerator(WithMachineID(fixedMachineID))
	require.NoError(t, err)

	prev, err := g.New()
	require.NoError(t, err)
	for range 100 {
		id, err := g.New()
		require.NoError(t, err)
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestGenerator_NewString_IsBase36(t *testing.T) {
	g, err := NewGenerator(WithMachineID(fixedMachineID))
	require.NoError(t, err)

	s, err := g.NewString()
	require.NoError(t, err)
	assert.NotEmpty(t, s)
	assert.LessOrEqual(t, len(s), 13)
}

func TestNewGenerator_WhenCheckRejects_ReturnsInvalidConfig(t *testing.T) {
	_, err := NewGenerator(
		WithMachineID(fixedMachineID),
		WithCheckMachineID(func(uint16) bool { return false }),
	)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestGenerator_New_WhenNil_ReturnsErrNilGenerator(t *testing.T) {
	var g *Generator
	_, err := g.New()
	assert.ErrorIs(t, err, ErrNilGenerator)
}
