// Package metastoretest runs the behaviour every composite.MetadataStore
// must share against a concrete store.
package metastoretest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-composite/pkg/composite"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) composite.MetadataStore

var nextID atomic.Uint64

func init() {
	nextID.Store(uint64(time.Now().UnixNano()) >> 2)
}

// fresh returns an identifier no other subtest uses, so stores shared
// between subtests (a test database) do not collide.
func fresh() composite.ObjectID {
	return composite.ObjectID(nextID.Add(1))
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store composite.MetadataStore
	owner uuid.UUID
}

func (f *fixture) pending(typeTag string, members ...composite.ObjectID) composite.ObjectID {
	f.t.Helper()
	id := fresh()
	require.NoError(f.t, f.store.Reserve(f.ctx, id, f.owner, time.Now().UTC()))
	doc := &composite.Document{
		ID:        id,
		TypeTag:   typeTag,
		Members:   members,
		Status:    composite.ObjectStatusPending,
		Owner:     f.owner,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(f.t, f.store.Submit(f.ctx, doc))
	return id
}

func (f *fixture) sealed(typeTag string, members ...composite.ObjectID) composite.ObjectID {
	f.t.Helper()
	id := f.pending(typeTag, members...)
	_, changed, err := f.store.Seal(f.ctx, id, time.Now().UTC())
	require.NoError(f.t, err)
	require.True(f.t, changed)
	return id
}

func (f *fixture) status(id composite.ObjectID) composite.ObjectStatus {
	f.t.Helper()
	doc, err := f.store.Get(f.ctx, id)
	require.NoError(f.t, err)
	return doc.Status
}

// Run exercises newStore.
func Run(t *testing.T, newStore Factory) {
	setup := func(t *testing.T) *fixture {
		return &fixture{t: t, ctx: context.Background(), store: newStore(t), owner: uuid.New()}
	}

	t.Run("ReserveRejectsKnownID", func(t *testing.T) {
		f := setup(t)
		id := fresh()
		require.NoError(t, f.store.Reserve(f.ctx, id, f.owner, time.Now()))
		err := f.store.Reserve(f.ctx, id, uuid.New(), time.Now())
		assert.ErrorIs(t, err, composite.ErrIDConflict)
	})

	t.Run("SubmitChecksOwner", func(t *testing.T) {
		f := setup(t)
		id := fresh()
		require.NoError(t, f.store.Reserve(f.ctx, id, f.owner, time.Now()))

		err := f.store.Submit(f.ctx, &composite.Document{ID: id, TypeTag: "scalar", Owner: uuid.New(), CreatedAt: time.Now()})
		assert.ErrorIs(t, err, composite.ErrNotOwner)

		err = f.store.Submit(f.ctx, &composite.Document{ID: fresh(), TypeTag: "scalar", Owner: f.owner, CreatedAt: time.Now()})
		assert.ErrorIs(t, err, composite.ErrObjectNotFound)
	})

	t.Run("PendingIsNotSealed", func(t *testing.T) {
		f := setup(t)
		id := f.pending("scalar")
		assert.Equal(t, composite.ObjectStatusPending, f.status(id))

		docs, err := f.store.ListSealed(f.ctx, func(tag string) bool { return true }, 0)
		require.NoError(t, err)
		for _, d := range docs {
			assert.NotEqual(t, id, d.ID)
		}
	})

	t.Run("SealPublishesDocument", func(t *testing.T) {
		f := setup(t)
		a := f.sealed("scalar")
		b := f.sealed("scalar")
		x := f.pending("parallel_stream", a, b)

		doc, changed, err := f.store.Seal(f.ctx, x, time.Now().UTC())
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, composite.ObjectStatusSealed, doc.Status)
		assert.NotNil(t, doc.SealedAt)

		got, err := f.store.Get(f.ctx, x)
		require.NoError(t, err)
		assert.Equal(t, "parallel_stream", got.TypeTag)
		assert.Equal(t, []composite.ObjectID{a, b}, got.Members)
		assert.Equal(t, f.owner, got.Owner)
	})

	t.Run("SealIsIdempotent", func(t *testing.T) {
		f := setup(t)
		a := f.sealed("scalar")
		x := f.sealed("parallel_stream", a)

		before, err := f.store.Get(f.ctx, x)
		require.NoError(t, err)

		doc, changed, err := f.store.Seal(f.ctx, x, time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, before.SealedAt, doc.SealedAt)

		after, err := f.store.Get(f.ctx, x)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("SealRejectsDanglingReference", func(t *testing.T) {
		f := setup(t)
		a := f.sealed("scalar")
		b := f.pending("scalar")
		x := f.pending("parallel_stream", a, b)

		_, _, err := f.store.Seal(f.ctx, x, time.Now())
		require.ErrorIs(t, err, composite.ErrDanglingReference)
		var dangling *composite.DanglingReferenceError
		require.ErrorAs(t, err, &dangling)
		assert.Equal(t, b, dangling.Reference)
		assert.Equal(t, composite.ObjectStatusPending, dangling.Status)
		assert.Equal(t, composite.ObjectStatusPending, f.status(x))

		missing := fresh()
		y := f.pending("parallel_stream", missing)
		_, _, err = f.store.Seal(f.ctx, y, time.Now())
		assert.ErrorIs(t, err, composite.ErrDanglingReference)
	})

	t.Run("SealUnknownOrReserved", func(t *testing.T) {
		f := setup(t)
		_, _, err := f.store.Seal(f.ctx, fresh(), time.Now())
		assert.ErrorIs(t, err, composite.ErrObjectNotFound)

		id := fresh()
		require.NoError(t, f.store.Reserve(f.ctx, id, f.owner, time.Now()))
		_, _, err = f.store.Seal(f.ctx, id, time.Now())
		assert.ErrorIs(t, err, composite.ErrObjectNotFound)
	})

	t.Run("SubmitOverSealed", func(t *testing.T) {
		f := setup(t)
		id := f.sealed("scalar")
		err := f.store.Submit(f.ctx, &composite.Document{ID: id, TypeTag: "scalar", Owner: f.owner, CreatedAt: time.Now()})
		assert.ErrorIs(t, err, composite.ErrAlreadySealed)
	})

	t.Run("DeleteKeepsReferencedObject", func(t *testing.T) {
		f := setup(t)
		a := f.sealed("scalar")
		x := f.sealed("parallel_stream", a)

		deleted, err := f.store.Delete(f.ctx, a, composite.DeleteOptions{})
		require.NoError(t, err)
		assert.Empty(t, deleted)
		assert.Equal(t, composite.ObjectStatusSealed, f.status(a))
		assert.Equal(t, composite.ObjectStatusSealed, f.status(x))
	})

	t.Run("DeleteForceTakesReferrers", func(t *testing.T) {
		f := setup(t)
		a := f.sealed("scalar")
		x := f.sealed("parallel_stream", a)

		deleted, err := f.store.Delete(f.ctx, a, composite.DeleteOptions{Force: true})
		require.NoError(t, err)
		assert.ElementsMatch(t, []composite.ObjectID{a, x}, deleted)
		assert.Equal(t, composite.ObjectStatusDeleted, f.status(a))
		assert.Equal(t, composite.ObjectStatusDeleted, f.status(x))

		err = f.store.Reserve(f.ctx, a, f.owner, time.Now())
		assert.ErrorIs(t, err, composite.ErrIDConflict, "deleted ids are never reused")
	})

	t.Run("DeleteDeepTakesOrphanedMembers", func(t *testing.T) {
		f := setup(t)
		a := f.sealed("scalar")
		b := f.sealed("scalar")
		x := f.sealed("parallel_stream", a, b)
		y := f.sealed("parallel_stream", b)

		deleted, err := f.store.Delete(f.ctx, x, composite.DeleteOptions{Deep: true})
		require.NoError(t, err)
		assert.ElementsMatch(t, []composite.ObjectID{x, a}, deleted)
		assert.Equal(t, composite.ObjectStatusSealed, f.status(b), "b is still held by y")
		assert.Equal(t, composite.ObjectStatusSealed, f.status(y))

		_, err = f.store.Delete(f.ctx, x, composite.DeleteOptions{})
		assert.ErrorIs(t, err, composite.ErrObjectNotFound)
	})

	t.Run("DeletedMemberBlocksSeal", func(t *testing.T) {
		f := setup(t)
		a := f.sealed("scalar")
		x := f.pending("parallel_stream", a)
		_, err := f.store.Delete(f.ctx, a, composite.DeleteOptions{})
		require.NoError(t, err)

		_, _, err = f.store.Seal(f.ctx, x, time.Now())
		var dangling *composite.DanglingReferenceError
		require.ErrorAs(t, err, &dangling)
		assert.Equal(t, composite.ObjectStatusDeleted, dangling.Status)
	})

	t.Run("Names", func(t *testing.T) {
		f := setup(t)
		a := f.sealed("scalar")
		name := "name-" + uuid.NewString()

		err := f.store.PutName(f.ctx, name, f.pending("scalar"))
		assert.ErrorIs(t, err, composite.ErrObjectNotFound)

		require.NoError(t, f.store.PutName(f.ctx, name, a))
		got, err := f.store.GetName(f.ctx, name)
		require.NoError(t, err)
		assert.Equal(t, a, got)

		require.NoError(t, f.store.DropName(f.ctx, name))
		_, err = f.store.GetName(f.ctx, name)
		assert.ErrorIs(t, err, composite.ErrNameNotFound)
		assert.ErrorIs(t, f.store.DropName(f.ctx, name), composite.ErrNameNotFound)

		require.NoError(t, f.store.PutName(f.ctx, name, a))
		_, err = f.store.Delete(f.ctx, a, composite.DeleteOptions{})
		require.NoError(t, err)
		_, err = f.store.GetName(f.ctx, name)
		assert.ErrorIs(t, err, composite.ErrNameNotFound, "names of deleted objects are dropped")
	})

	t.Run("SetPersistent", func(t *testing.T) {
		f := setup(t)
		a := f.sealed("scalar")
		require.NoError(t, f.store.SetPersistent(f.ctx, []composite.ObjectID{a}))
		doc, err := f.store.Get(f.ctx, a)
		require.NoError(t, err)
		assert.True(t, doc.Persistent)

		err = f.store.SetPersistent(f.ctx, []composite.ObjectID{f.pending("scalar")})
		assert.ErrorIs(t, err, composite.ErrObjectNotFound)
	})

	t.Run("ListSealed", func(t *testing.T) {
		f := setup(t)
		tag := "list-" + uuid.NewString()
		a := f.sealed(tag)
		b := f.sealed(tag)
		f.pending(tag)

		match := func(typeTag string) bool { return typeTag == tag }
		docs, err := f.store.ListSealed(f.ctx, match, 0)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, a, docs[0].ID)
		assert.Equal(t, b, docs[1].ID)

		docs, err = f.store.ListSealed(f.ctx, match, 1)
		require.NoError(t, err)
		assert.Len(t, docs, 1)
	})

	t.Run("ConcurrentSealAndDelete", func(t *testing.T) {
		f := setup(t)
		a := f.sealed("scalar")
		x := f.pending("parallel_stream", a)

		var wg sync.WaitGroup
		var sealErr, deleteErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _, sealErr = f.store.Seal(f.ctx, x, time.Now())
		}()
		go func() {
			defer wg.Done()
			_, deleteErr = f.store.Delete(f.ctx, a, composite.DeleteOptions{})
		}()
		wg.Wait()
		require.NoError(t, deleteErr)

		// Either the seal won and a stayed referenced, or the delete won and
		// the seal saw a dangling member. Never both.
		if sealErr == nil {
			assert.Equal(t, composite.ObjectStatusSealed, f.status(a))
		} else {
			assert.ErrorIs(t, sealErr, composite.ErrDanglingReference)
			assert.Equal(t, composite.ObjectStatusPending, f.status(x))
		}
	})
}
