// Package metastore holds what the SQL metadata stores share: the row shape
// they read documents from and the identifier column encoding.
package metastore

import (
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-composite/pkg/composite"
)

// Key returns the BIGINT column value for id.
func Key(id composite.ObjectID) int64 {
	return int64(id)
}

// FromKey is the inverse of Key.
func FromKey(k int64) composite.ObjectID {
	return composite.ObjectID(uint64(k))
}

// Keys converts ids for array parameters.
func Keys(ids []composite.ObjectID) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = Key(id)
	}
	return out
}

// Row is one composite_object row. Document is nil while the identifier is
// only reserved.
type Row struct {
	ID         int64
	Status     string
	Owner      uuid.UUID
	Persistent bool
	Document   []byte
	CreatedAt  time.Time
	SealedAt   *time.Time
}

// Decode rebuilds the document. Columns win over the encoded copy for the
// fields that change after submission.
func (r *Row) Decode() (*composite.Document, error) {
	doc := &composite.Document{}
	if len(r.Document) > 0 {
		decoded, err := composite.DecodeDocument(r.Document)
		if err != nil {
			return nil, err
		}
		doc = decoded
	}
	doc.ID = FromKey(r.ID)
	doc.Status = composite.ObjectStatus(r.Status)
	doc.Owner = r.Owner
	doc.Persistent = r.Persistent
	doc.CreatedAt = r.CreatedAt.UTC()
	if r.SealedAt != nil {
		t := r.SealedAt.UTC()
		doc.SealedAt = &t
	} else {
		doc.SealedAt = nil
	}
	return doc, nil
}
