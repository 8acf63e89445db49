package composite

import (
	"context"
	"fmt"
)

// ParallelStreamTypeTag is the type tag of parallel stream documents.
const ParallelStreamTypeTag = "parallel_stream"

// ParallelStreamKind groups independently produced streams into one logical
// object. It needs at least one member.
var ParallelStreamKind = Kind{
	TypeTag:    ParallelStreamTypeTag,
	MinMembers: 1,
}

// ParallelStreamBuilder builds a parallel stream from its component streams.
type ParallelStreamBuilder struct {
	*Builder
}

// NewParallelStreamBuilder returns an empty parallel stream builder.
func NewParallelStreamBuilder(opts ...BuilderOption) *ParallelStreamBuilder {
	return &ParallelStreamBuilder{Builder: NewBuilder(ParallelStreamKind, opts...)}
}

// AddStream appends a component stream. Streams keep the order they are
// added in.
func (b *ParallelStreamBuilder) AddStream(id ObjectID) error {
	return b.AddMember(id)
}

// ParallelStream is the read side of a sealed parallel stream.
type ParallelStream struct {
	id      ObjectID
	streams []ObjectID
	doc     *Document
}

// Construct fills the view from a sealed document.
func (p *ParallelStream) Construct(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: nil document", ErrInvalidDocument)
	}
	if doc.TypeTag != ParallelStreamTypeTag {
		return fmt.Errorf("%w: %s is %q, want %q", ErrTypeMismatch, doc.ID, doc.TypeTag, ParallelStreamTypeTag)
	}
	p.id = doc.ID
	p.streams = append([]ObjectID(nil), doc.Members...)
	p.doc = doc.Clone()
	return nil
}

// ResolveParallelStream reads the sealed parallel stream id through c.
func ResolveParallelStream(ctx context.Context, c Client, id ObjectID) (*ParallelStream, error) {
	doc, err := c.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	p := &ParallelStream{}
	if err := p.Construct(doc); err != nil {
		return nil, err
	}
	return p, nil
}

// ID returns the object identifier of the stream group.
func (p *ParallelStream) ID() ObjectID { return p.id }

// Streams returns the component streams in construction order.
func (p *ParallelStream) Streams() []ObjectID {
	return append([]ObjectID(nil), p.streams...)
}

// Stream returns component i.
func (p *ParallelStream) Stream(i int) (ObjectID, bool) {
	if i < 0 || i >= len(p.streams) {
		return InvalidObjectID, false
	}
	return p.streams[i], true
}

// Len returns the number of component streams.
func (p *ParallelStream) Len() int { return len(p.streams) }

// Document returns a copy of the underlying document.
func (p *ParallelStream) Document() *Document {
	if p.doc == nil {
		return nil
	}
	return p.doc.Clone()
}
