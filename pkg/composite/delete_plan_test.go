package composite_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-composite/pkg/composite"
)

// fakeGraph is a ReferenceGraph over a fixed set of documents. Referrers are
// derived from the sealed documents' references.
type fakeGraph map[composite.ObjectID]*composite.Document

func (g fakeGraph) Lookup(id composite.ObjectID) (*composite.Document, error) {
	doc, ok := g[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", composite.ErrObjectNotFound, id)
	}
	return doc, nil
}

func (g fakeGraph) Referrers(id composite.ObjectID) ([]composite.ObjectID, error) {
	var refs []composite.ObjectID
	for rid := composite.ObjectID(0); rid < 100; rid++ {
		doc, ok := g[rid]
		if !ok || doc.Status != composite.ObjectStatusSealed {
			continue
		}
		for _, r := range doc.References() {
			if r == id {
				refs = append(refs, rid)
				break
			}
		}
	}
	return refs, nil
}

func (g fakeGraph) add(id composite.ObjectID, status composite.ObjectStatus, members ...composite.ObjectID) {
	g[id] = &composite.Document{ID: id, TypeTag: "t", Status: status, Members: members}
}

// Layout: 10 -> {1, 2}, 11 -> {2, 3}, 12 (pending) -> {3}.
func newFakeGraph() fakeGraph {
	g := fakeGraph{}
	g.add(1, composite.ObjectStatusSealed)
	g.add(2, composite.ObjectStatusSealed)
	g.add(3, composite.ObjectStatusSealed)
	g.add(10, composite.ObjectStatusSealed, 1, 2)
	g.add(11, composite.ObjectStatusSealed, 2, 3)
	g.add(12, composite.ObjectStatusPending, 3)
	return g
}

func TestPlanDelete(t *testing.T) {
	tests := []struct {
		name string
		id   composite.ObjectID
		opts composite.DeleteOptions
		want []composite.ObjectID
	}{
		{"referenced member is kept", 2, composite.DeleteOptions{}, nil},
		{"pending referrers do not count", 12, composite.DeleteOptions{}, []composite.ObjectID{12}},
		{"root only", 10, composite.DeleteOptions{}, []composite.ObjectID{10}},
		{"deep takes orphans only", 10, composite.DeleteOptions{Deep: true}, []composite.ObjectID{10, 1}},
		{"force pulls referrers", 2, composite.DeleteOptions{Force: true}, []composite.ObjectID{2, 10, 11}},
		{"force and deep", 2, composite.DeleteOptions{Force: true, Deep: true}, []composite.ObjectID{2, 10, 11, 1, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := composite.PlanDelete(newFakeGraph(), tt.id, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlanDelete_DeepFixedPoint(t *testing.T) {
	// 20 -> 21 -> 22: deleting the top deeply takes the whole chain.
	g := fakeGraph{}
	g.add(22, composite.ObjectStatusSealed)
	g.add(21, composite.ObjectStatusSealed, 22)
	g.add(20, composite.ObjectStatusSealed, 21)

	got, err := composite.PlanDelete(g, 20, composite.DeleteOptions{Deep: true})
	require.NoError(t, err)
	assert.Equal(t, []composite.ObjectID{20, 21, 22}, got)
}

func TestPlanDelete_Missing(t *testing.T) {
	g := newFakeGraph()
	_, err := composite.PlanDelete(g, 50, composite.DeleteOptions{})
	assert.ErrorIs(t, err, composite.ErrObjectNotFound)

	g.add(4, composite.ObjectStatusDeleted)
	_, err = composite.PlanDelete(g, 4, composite.DeleteOptions{})
	assert.ErrorIs(t, err, composite.ErrObjectNotFound)
}
