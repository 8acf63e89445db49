package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-composite/pkg/composite"
)

// Store implements composite.MetadataStore using in-memory maps. A single
// lock covers every operation, which makes each seal one atomic step.
type Store struct {
	mu        sync.RWMutex
	docs      map[composite.ObjectID]*composite.Document
	referrers map[composite.ObjectID]map[composite.ObjectID]struct{} // member -> sealed referrers
	names     map[string]composite.ObjectID
}

// New creates a new in-memory metadata store
func New() *Store {
	return &Store{
		docs:      make(map[composite.ObjectID]*composite.Document),
		referrers: make(map[composite.ObjectID]map[composite.ObjectID]struct{}),
		names:     make(map[string]composite.ObjectID),
	}
}

var _ composite.MetadataStore = (*Store)(nil)

func (s *Store) Reserve(ctx context.Context, id composite.ObjectID, owner uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[id]; exists {
		return fmt.Errorf("%w: %s", composite.ErrIDConflict, id)
	}
	s.docs[id] = &composite.Document{
		ID:        id,
		Status:    composite.ObjectStatusReserved,
		Owner:     owner,
		CreatedAt: at,
	}
	return nil
}

func (s *Store) Submit(ctx context.Context, doc *composite.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.docs[doc.ID]
	if !exists {
		return fmt.Errorf("%w: %s was never allocated", composite.ErrObjectNotFound, doc.ID)
	}
	if err := composite.CanSubmit(rec.Status); err != nil {
		return err
	}
	if rec.Owner != doc.Owner {
		return fmt.Errorf("%w: %s", composite.ErrNotOwner, doc.ID)
	}

	// Store a copy to avoid external modifications
	stored := doc.Clone()
	stored.Status = composite.ObjectStatusPending
	s.docs[doc.ID] = stored
	return nil
}

func (s *Store) Seal(ctx context.Context, id composite.ObjectID, at time.Time) (*composite.Document, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.docs[id]
	if !exists {
		return nil, false, fmt.Errorf("%w: %s", composite.ErrObjectNotFound, id)
	}
	ok, err := composite.CanSeal(rec.Status)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return rec.Clone(), false, nil
	}

	refs := rec.References()
	for _, ref := range refs {
		var status composite.ObjectStatus
		if target, found := s.docs[ref]; found {
			status = target.Status
		}
		if err := composite.CanReference(ref, status); err != nil {
			return nil, false, err
		}
	}

	sealedAt := at
	rec.Status = composite.ObjectStatusSealed
	rec.SealedAt = &sealedAt
	for _, ref := range refs {
		set, ok := s.referrers[ref]
		if !ok {
			set = make(map[composite.ObjectID]struct{})
			s.referrers[ref] = set
		}
		set[id] = struct{}{}
	}
	return rec.Clone(), true, nil
}

func (s *Store) Get(ctx context.Context, id composite.ObjectID) (*composite.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.docs[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", composite.ErrObjectNotFound, id)
	}
	// Return a copy to prevent external modifications
	return rec.Clone(), nil
}

func (s *Store) Delete(ctx context.Context, id composite.ObjectID, opts composite.DeleteOptions) ([]composite.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, err := composite.PlanDelete(graph{s}, id, opts)
	if err != nil {
		return nil, err
	}

	for _, d := range plan {
		rec := s.docs[d]
		if rec.Status == composite.ObjectStatusSealed {
			for _, ref := range rec.References() {
				delete(s.referrers[ref], d)
				if len(s.referrers[ref]) == 0 {
					delete(s.referrers, ref)
				}
			}
		}
		rec.Status = composite.ObjectStatusDeleted
	}
	for _, d := range plan {
		delete(s.referrers, d)
	}
	for name, target := range s.names {
		if s.docs[target].Status == composite.ObjectStatusDeleted {
			delete(s.names, name)
		}
	}
	return plan, nil
}

func (s *Store) SetPersistent(ctx context.Context, ids []composite.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		rec, exists := s.docs[id]
		if !exists {
			return fmt.Errorf("%w: %s", composite.ErrObjectNotFound, id)
		}
		if err := composite.CanResolve(rec.Status); err != nil {
			return err
		}
	}
	for _, id := range ids {
		s.docs[id].Persistent = true
	}
	return nil
}

func (s *Store) PutName(ctx context.Context, name string, id composite.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.docs[id]
	if !exists {
		return fmt.Errorf("%w: %s", composite.ErrObjectNotFound, id)
	}
	if err := composite.CanResolve(rec.Status); err != nil {
		return err
	}
	s.names[name] = id
	return nil
}

func (s *Store) GetName(ctx context.Context, name string) (composite.ObjectID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.names[name]
	if !exists {
		return composite.InvalidObjectID, fmt.Errorf("%w: %q", composite.ErrNameNotFound, name)
	}
	return id, nil
}

func (s *Store) DropName(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.names[name]; !exists {
		return fmt.Errorf("%w: %q", composite.ErrNameNotFound, name)
	}
	delete(s.names, name)
	return nil
}

func (s *Store) ListSealed(ctx context.Context, match func(string) bool, limit int) ([]*composite.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*composite.Document
	for _, rec := range s.docs {
		if rec.Status == composite.ObjectStatusSealed && match(rec.TypeTag) {
			result = append(result, rec.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// graph exposes the locked maps to composite.PlanDelete.
type graph struct {
	s *Store
}

func (g graph) Lookup(id composite.ObjectID) (*composite.Document, error) {
	rec, exists := g.s.docs[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", composite.ErrObjectNotFound, id)
	}
	return rec, nil
}

func (g graph) Referrers(id composite.ObjectID) ([]composite.ObjectID, error) {
	set := g.s.referrers[id]
	refs := make([]composite.ObjectID, 0, len(set))
	for r := range set {
		refs = append(refs, r)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })
	return refs, nil
}
