package presets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-composite/pkg/composite"
)

func buildStream(t *testing.T, c composite.Client) composite.ObjectID {
	t.Helper()
	ctx := context.Background()
	leaf, err := composite.NewScalarBuilder(composite.IntValue(1)).Build(ctx, c)
	require.NoError(t, err)
	b := composite.NewParallelStreamBuilder()
	require.NoError(t, b.AddStream(leaf))
	id, err := b.Build(ctx, c)
	require.NoError(t, err)
	return id
}

func TestNewDevelopment(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dev-data")
	svc, cleanup, err := NewDevelopment(WithDevSnapshots(dir))
	require.NoError(t, err)

	id := buildStream(t, composite.Connect(svc))
	require.NoError(t, svc.Persist(context.Background(), id))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)

	cleanup()
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "snapshot directory should be removed after cleanup")
}

func TestNewTesting(t *testing.T) {
	svc := NewTesting(t)
	id := buildStream(t, composite.Connect(svc))
	require.NoError(t, svc.Persist(context.Background(), id))

	svc = NewTesting(t, WithoutSnapshots(), WithServiceOptions(composite.WithInstanceID(3)))
	id = buildStream(t, composite.Connect(svc))
	assert.ErrorIs(t, svc.Persist(context.Background(), id), composite.ErrSnapshotsDisabled)

	doc, err := svc.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), doc.InstanceID)
}

func TestNewProduction(t *testing.T) {
	t.Setenv("DATABASE_URL", "memory")
	t.Setenv("SNAPSHOT_URL", "")
	_, err := NewProduction()
	assert.Error(t, err)

	t.Setenv("DATABASE_URL", "sqlite://"+filepath.Join(t.TempDir(), "meta.db"))
	_, err = NewProduction()
	assert.Error(t, err, "memory snapshots are refused")

	t.Setenv("SNAPSHOT_URL", "file://"+t.TempDir())
	svc, err := NewProduction()
	require.NoError(t, err)
	id := buildStream(t, composite.Connect(svc))
	require.NoError(t, svc.Persist(context.Background(), id))
}
