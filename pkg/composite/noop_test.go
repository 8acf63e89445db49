package composite_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-composite/pkg/composite"
)

func TestMultiEventSink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	sink := composite.MultiEventSink{a, composite.NewNoopEventSink(), b}
	ctx := context.Background()

	doc := &composite.Document{ID: 5, TypeTag: "scalar"}
	require.NoError(t, sink.MetadataSubmitted(ctx, doc))
	require.NoError(t, sink.ObjectSealed(ctx, doc))
	require.NoError(t, sink.SealFailed(ctx, 6, errors.New("x")))
	require.NoError(t, sink.ObjectPersisted(ctx, 5))

	// recordingSink fails ObjectDeleted; both sinks still see the event.
	assert.Error(t, sink.ObjectDeleted(ctx, 5))

	for _, r := range []*recordingSink{a, b} {
		assert.Equal(t, []composite.ObjectID{5}, r.submitted)
		assert.Equal(t, []composite.ObjectID{5}, r.sealed)
		assert.Equal(t, []composite.ObjectID{6}, r.failed)
		assert.Equal(t, []composite.ObjectID{5}, r.deleted)
		assert.Equal(t, []composite.ObjectID{5}, r.persisted)
	}
}

func TestLoggingEventSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	svc := mustService(t, composite.WithEventSink(composite.NewLoggingEventSink(logger)))
	id := mustScalar(t, composite.Connect(svc), 1)

	out := buf.String()
	assert.Contains(t, out, `"msg":"metadata submitted"`)
	assert.Contains(t, out, `"msg":"object sealed"`)
	assert.Contains(t, out, id.String())
}
