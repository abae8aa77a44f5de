package connid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseReusesLowestId(t *testing.T) {
	p := New(4)

	a := p.Acquire()
	b := p.Acquire()
	require.NotEqual(t, a, b)

	p.Release(a)
	c := p.Acquire()
	require.Equal(t, a, c)
}

func TestAcquireGrowsBeyondInitialCapacity(t *testing.T) {
	p := New(1)

	ids := make(map[uint]bool)
	for i := 0; i < 8; i++ {
		id := p.Acquire()
		require.False(t, ids[id], "id %d handed out twice", id)
		ids[id] = true
	}
}
