package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipePoolBound(t *testing.T) {
	pp := NewPipePool(2)
	fakePipes(pp)

	p1, err := pp.Acquire()
	require.NoError(t, err)
	p2, err := pp.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 2, pp.Used())

	_, err = pp.Acquire()
	assert.ErrorIs(t, err, ErrPoolExhausted)

	pp.Release(p1)
	assert.Equal(t, 1, pp.Used())

	p3, err := pp.Acquire()
	require.NoError(t, err)
	assert.Same(t, p1, p3, "a drained pipe is reused")
	_ = p2
}

func TestPipePoolZeroCapacity(t *testing.T) {
	pp := NewPipePool(0)
	fakePipes(pp)

	_, err := pp.Acquire()
	assert.ErrorIs(t, err, ErrPoolExhausted)
}

func TestPipePoolDirtyPipeNotReused(t *testing.T) {
	pp := NewPipePool(1)
	fakePipes(pp)

	p, err := pp.Acquire()
	require.NoError(t, err)
	p.resident = 42

	pp.Release(p)
	assert.Equal(t, 0, pp.Used())

	p2, err := pp.Acquire()
	require.NoError(t, err)
	assert.NotSame(t, p, p2)
}
