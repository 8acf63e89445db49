package composite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-composite/pkg/composite"
)

func TestResolveParallelStream(t *testing.T) {
	c := composite.Connect(mustService(t))
	ctx := context.Background()
	a, b := mustScalar(t, c, 1), mustScalar(t, c, 2)
	id := mustStream(t, c, b, a)

	ps, err := composite.ResolveParallelStream(ctx, c, id)
	require.NoError(t, err)
	assert.Equal(t, id, ps.ID())
	assert.Equal(t, 2, ps.Len())
	assert.Equal(t, []composite.ObjectID{b, a}, ps.Streams())

	first, ok := ps.Stream(0)
	require.True(t, ok)
	assert.Equal(t, b, first)
	_, ok = ps.Stream(2)
	assert.False(t, ok)
	_, ok = ps.Stream(-1)
	assert.False(t, ok)

	// Views hand out copies.
	ps.Streams()[0] = 0
	ps.Document().Members[0] = 0
	assert.Equal(t, []composite.ObjectID{b, a}, ps.Streams())
	assert.Equal(t, []composite.ObjectID{b, a}, ps.Document().Members)
}

func TestResolveParallelStream_WrongType(t *testing.T) {
	c := composite.Connect(mustService(t))
	a := mustScalar(t, c, 1)

	_, err := composite.ResolveParallelStream(context.Background(), c, a)
	assert.ErrorIs(t, err, composite.ErrTypeMismatch)

	_, err = composite.ResolveParallelStream(context.Background(), c, composite.ObjectID(1))
	assert.ErrorIs(t, err, composite.ErrObjectNotFound)
}

func TestParallelStream_Construct(t *testing.T) {
	var ps composite.ParallelStream
	assert.ErrorIs(t, ps.Construct(nil), composite.ErrInvalidDocument)
	assert.Nil(t, ps.Document())

	require.NoError(t, ps.Construct(&composite.Document{
		ID: 3, TypeTag: composite.ParallelStreamTypeTag, Members: []composite.ObjectID{1, 2},
	}))
	assert.Equal(t, composite.ObjectID(3), ps.ID())
	assert.Equal(t, 2, ps.Len())
}
