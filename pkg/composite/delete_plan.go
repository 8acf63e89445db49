package composite

import (
	"errors"
	"fmt"
)

// ReferenceGraph is the view of a store that PlanDelete walks. Stores
// implement it over their locked state or open transaction.
type ReferenceGraph interface {
	// Lookup returns the record stored under id or ErrObjectNotFound.
	Lookup(id ObjectID) (*Document, error)
	// Referrers returns the sealed documents that reference id.
	Referrers(id ObjectID) ([]ObjectID, error)
}

// PlanDelete computes the identifiers to tombstone when deleting id.
//
// An object referenced by a sealed composite is kept, and the plan is empty,
// unless opts.Force is set; Force pulls the referrers into the plan as well.
// opts.Deep adds every reference of a planned object whose sealed referrers
// are all planned.
func PlanDelete(g ReferenceGraph, id ObjectID, opts DeleteOptions) ([]ObjectID, error) {
	root, err := g.Lookup(id)
	if err != nil {
		return nil, err
	}
	if root.Status == ObjectStatusDeleted {
		return nil, fmt.Errorf("%w: %s has been deleted", ErrObjectNotFound, id)
	}

	if !opts.Force {
		refs, err := g.Referrers(id)
		if err != nil {
			return nil, err
		}
		if len(refs) > 0 {
			return nil, nil
		}
	}

	p := &deletePlan{graph: g, planned: make(map[ObjectID]*Document)}
	if err := p.add(id, root, opts.Force); err != nil {
		return nil, err
	}
	if opts.Deep {
		if err := p.expandDeep(); err != nil {
			return nil, err
		}
	}
	return p.order, nil
}

type deletePlan struct {
	graph   ReferenceGraph
	planned map[ObjectID]*Document
	order   []ObjectID
}

func (p *deletePlan) add(id ObjectID, doc *Document, force bool) error {
	if _, ok := p.planned[id]; ok {
		return nil
	}
	p.planned[id] = doc
	p.order = append(p.order, id)
	if !force {
		return nil
	}

	refs, err := p.graph.Referrers(id)
	if err != nil {
		return err
	}
	for _, r := range refs {
		if _, ok := p.planned[r]; ok {
			continue
		}
		rdoc, err := p.graph.Lookup(r)
		if err != nil {
			return err
		}
		if err := p.add(r, rdoc, true); err != nil {
			return err
		}
	}
	return nil
}

// expandDeep runs to a fixed point: each pass may orphan further members.
func (p *deletePlan) expandDeep() error {
	for i := 0; i < len(p.order); i++ {
		doc := p.planned[p.order[i]]
		for _, ref := range doc.References() {
			if _, ok := p.planned[ref]; ok {
				continue
			}
			rdoc, err := p.graph.Lookup(ref)
			if errors.Is(err, ErrObjectNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if rdoc.Status == ObjectStatusDeleted {
				continue
			}
			orphaned, err := p.orphaned(ref)
			if err != nil {
				return err
			}
			if orphaned {
				if err := p.add(ref, rdoc, false); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (p *deletePlan) orphaned(id ObjectID) (bool, error) {
	refs, err := p.graph.Referrers(id)
	if err != nil {
		return false, err
	}
	for _, r := range refs {
		if _, ok := p.planned[r]; !ok {
			return false, nil
		}
	}
	return true, nil
}
