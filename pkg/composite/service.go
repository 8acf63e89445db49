package composite

import (
	"context"

	"github.com/google/uuid"
)

// Service is the metadata service that connections talk to. Session
// identifies the connection making a request; only the session that
// allocated an identifier may submit a document for it.
type Service interface {
	// Identifier and construction
	AllocateID(ctx context.Context, session uuid.UUID) (ObjectID, error)
	SubmitMetadata(ctx context.Context, session uuid.UUID, id ObjectID, doc *Document) (*Document, error)
	Seal(ctx context.Context, id ObjectID) error

	// Reads
	Resolve(ctx context.Context, id ObjectID) (*Document, error)
	Exists(ctx context.Context, id ObjectID) (bool, error)
	List(ctx context.Context, opts ListOptions) ([]*Document, error)

	Delete(ctx context.Context, id ObjectID, opts DeleteOptions) ([]ObjectID, error)

	// Persistence
	Persist(ctx context.Context, id ObjectID) error
	IsPersistent(ctx context.Context, id ObjectID) (bool, error)
	LoadSnapshot(ctx context.Context, id ObjectID) (*Document, error)

	// Names
	PutName(ctx context.Context, id ObjectID, name string) error
	GetName(ctx context.Context, name string) (ObjectID, error)
	DropName(ctx context.Context, name string) error
}

// KeyGenerator maps an object to the key its snapshot is stored under.
type KeyGenerator interface {
	GenerateKey(id ObjectID) string
}

type defaultKeyGenerator struct{}

func (defaultKeyGenerator) GenerateKey(id ObjectID) string {
	return "snapshots/" + id.String() + ".cbor"
}
