package fs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-composite/pkg/composite"
	"github.com/tendant/simple-composite/pkg/composite/snapshot/fs"
)

func TestFSStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := fs.New(fs.Config{BaseDir: dir})
	require.NoError(t, err)

	t.Run("PutGet", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "objects/ab/o0001.cbor", []byte("first")))
		require.NoError(t, store.Put(ctx, "objects/ab/o0001.cbor", []byte("second")))

		got, err := store.Get(ctx, "objects/ab/o0001.cbor")
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), got)

		_, err = os.Stat(filepath.Join(dir, "objects", "ab", "o0001.cbor"))
		assert.NoError(t, err)

		entries, err := os.ReadDir(filepath.Join(dir, "objects", "ab"))
		require.NoError(t, err)
		assert.Len(t, entries, 1, "no temporary files are left behind")
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := store.Get(ctx, "objects/none.cbor")
		assert.ErrorIs(t, err, composite.ErrSnapshotNotFound)

		ok, err := store.Exists(ctx, "objects/none.cbor")
		require.NoError(t, err)
		assert.False(t, ok)

		assert.NoError(t, store.Delete(ctx, "objects/none.cbor"))
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "d.cbor", []byte("x")))
		require.NoError(t, store.Delete(ctx, "d.cbor"))
		ok, err := store.Exists(ctx, "d.cbor")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("KeyEscapingBaseDir", func(t *testing.T) {
		err := store.Put(ctx, "../outside.cbor", []byte("x"))
		var storageErr *composite.StorageError
		require.ErrorAs(t, err, &storageErr)
		assert.Equal(t, "fs", storageErr.Backend)
	})
}

func TestFSStore_RequiresBaseDir(t *testing.T) {
	_, err := fs.New(fs.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base directory is required")
}
