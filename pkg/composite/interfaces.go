package composite

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Client is the connection a Builder talks to. Implementations are passed
// explicitly; there is no process-wide connection.
type Client interface {
	// AllocateID reserves a fresh identifier in the store.
	AllocateID(ctx context.Context) (ObjectID, error)

	// SubmitMetadata records doc under id as under construction.
	SubmitMetadata(ctx context.Context, id ObjectID, doc *Document) error

	// Seal publishes id atomically. Sealing a sealed object is a no-op.
	Seal(ctx context.Context, id ObjectID) error

	// Resolve returns the sealed document stored under id.
	Resolve(ctx context.Context, id ObjectID) (*Document, error)
}

// ObjectClient is a Client that also exposes the rest of the object lifecycle.
type ObjectClient interface {
	Client

	Exists(ctx context.Context, id ObjectID) (bool, error)
	Delete(ctx context.Context, id ObjectID, opts DeleteOptions) ([]ObjectID, error)
	Persist(ctx context.Context, id ObjectID) error
	IsPersistent(ctx context.Context, id ObjectID) (bool, error)

	PutName(ctx context.Context, id ObjectID, name string) error
	GetName(ctx context.Context, name string) (ObjectID, error)
	DropName(ctx context.Context, name string) error

	List(ctx context.Context, opts ListOptions) ([]*Document, error)

	// Close releases the connection. Later calls fail with ErrNotConnected.
	Close() error
}

// MetadataStore defines the persistence contract for object documents.
// Every method is atomic with respect to the others.
type MetadataStore interface {
	// Reserve records id as allocated by owner. It fails with ErrIDConflict
	// if the store has ever seen id, tombstones included.
	Reserve(ctx context.Context, id ObjectID, owner uuid.UUID, at time.Time) error

	// Submit stores doc as pending under doc.ID. Only doc.Owner's reservation
	// may be filled; a pending document of the same owner is replaced.
	Submit(ctx context.Context, doc *Document) error

	// Seal checks that every reference of the pending document is sealed and
	// transitions it to sealed in the same step. changed is false when the
	// document was already sealed.
	Seal(ctx context.Context, id ObjectID, at time.Time) (doc *Document, changed bool, err error)

	// Get returns the record stored under id in whatever state it is.
	Get(ctx context.Context, id ObjectID) (*Document, error)

	// Delete tombstones id, and the objects PlanDelete adds for opts, and
	// returns what was deleted. Names bound to deleted objects are dropped.
	Delete(ctx context.Context, id ObjectID, opts DeleteOptions) ([]ObjectID, error)

	// SetPersistent flags sealed objects as persisted.
	SetPersistent(ctx context.Context, ids []ObjectID) error

	PutName(ctx context.Context, name string, id ObjectID) error
	GetName(ctx context.Context, name string) (ObjectID, error)
	DropName(ctx context.Context, name string) error

	// ListSealed returns sealed documents, ordered by id, whose type tag
	// satisfies match. limit <= 0 means no limit.
	ListSealed(ctx context.Context, match func(typeTag string) bool, limit int) ([]*Document, error)
}

// SnapshotStore holds the encoded snapshots written by Persist.
type SnapshotStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// EventSink receives object lifecycle events
type EventSink interface {
	// MetadataSubmitted is fired when a pending document is stored
	MetadataSubmitted(ctx context.Context, doc *Document) error

	// ObjectSealed is fired when a document becomes visible
	ObjectSealed(ctx context.Context, doc *Document) error

	// SealFailed is fired when a seal request is rejected
	SealFailed(ctx context.Context, id ObjectID, err error) error

	// ObjectDeleted is fired once per deleted object
	ObjectDeleted(ctx context.Context, id ObjectID) error

	// ObjectPersisted is fired when a snapshot has been written
	ObjectPersisted(ctx context.Context, id ObjectID) error
}
