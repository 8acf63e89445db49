package sqlite_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-composite/pkg/composite"
	"github.com/tendant/simple-composite/pkg/composite/metastore/metastoretest"
	"github.com/tendant/simple-composite/pkg/composite/metastore/sqlite"
)

func TestSQLiteStore(t *testing.T) {
	metastoretest.Run(t, func(t *testing.T) composite.MetadataStore {
		store, err := sqlite.Open(filepath.Join(t.TempDir(), "meta", "composite.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "composite.db")
	store, err := sqlite.Open(path)
	require.NoError(t, err)
	require.Equal(t, path, store.Path())
	require.NoError(t, store.Close())

	store, err = sqlite.Open(path)
	require.NoError(t, err, "schema creation is idempotent")
	require.NoError(t, store.Close())
}

// Two handles on one file behave like two processes: each has its own
// connection, so write transactions must take the lock when they begin.
func TestSQLiteStore_SharedFileWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "composite.db")
	stores := make([]*sqlite.Store, 2)
	for i := range stores {
		store, err := sqlite.Open(path)
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		stores[i] = store
	}

	ctx := context.Background()
	const perWriter = 25
	errs := make(chan error, len(stores)*perWriter)
	var wg sync.WaitGroup
	for w, store := range stores {
		wg.Add(1)
		go func(w int, store *sqlite.Store) {
			defer wg.Done()
			owner := uuid.New()
			for i := 0; i < perWriter; i++ {
				id := composite.ObjectID(w*1000 + i)
				if err := store.Reserve(ctx, id, owner, time.Now()); err != nil {
					errs <- err
					continue
				}
				doc := &composite.Document{
					ID:      id,
					TypeTag: composite.ScalarTypeTag,
					Owner:   owner,
					Fields:  map[string]composite.Value{"value": composite.IntValue(int64(i))},
				}
				if err := store.Submit(ctx, doc); err != nil {
					errs <- err
					continue
				}
				if _, _, err := store.Seal(ctx, id, time.Now()); err != nil {
					errs <- err
				}
			}
		}(w, store)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	doc, err := stores[0].Get(ctx, composite.ObjectID(1000+perWriter-1))
	require.NoError(t, err)
	assert.Equal(t, composite.ObjectStatusSealed, doc.Status)
}
