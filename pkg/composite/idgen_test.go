package composite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDGenerator_Layout(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	g, err := newIDGenerator(3, func() time.Time { return now })
	require.NoError(t, err)

	id := g.next()
	assert.Equal(t, uint64(now.UnixMilli()), uint64(id)>>(instanceBits+sequenceBits))
	assert.Equal(t, uint64(3), uint64(id)>>sequenceBits&MaxInstanceID)
	assert.Equal(t, uint64(0), uint64(id)&sequenceMask)
	assert.Zero(t, uint64(id)>>63)
}

func TestIDGenerator_StrictlyIncreasing(t *testing.T) {
	// A frozen clock exhausts the sequence and borrows the next millisecond.
	now := time.UnixMilli(1_700_000_000_000)
	g, err := newIDGenerator(0, func() time.Time { return now })
	require.NoError(t, err)

	prev := g.next()
	for i := 0; i < 2*(sequenceMask+1); i++ {
		id := g.next()
		require.Greater(t, uint64(id), uint64(prev))
		require.True(t, id.IsValid())
		prev = id
	}
}

func TestIDGenerator_ClockGoesBackwards(t *testing.T) {
	ms := int64(1_700_000_000_000)
	g, err := newIDGenerator(1, func() time.Time { return time.UnixMilli(ms) })
	require.NoError(t, err)

	first := g.next()
	ms -= 1000
	assert.Greater(t, uint64(g.next()), uint64(first))
}

func TestNewIDGenerator_InstanceRange(t *testing.T) {
	_, err := newIDGenerator(MaxInstanceID+1, time.Now)
	assert.Error(t, err)
}
