package composite

import (
	"context"
	"errors"
	"fmt"
)

// Kind describes one composite type: the tag written into its documents, the
// minimum number of members and an optional hook that completes or checks
// the assembled document before it is submitted.
type Kind struct {
	TypeTag    string
	MinMembers int
	Assemble   func(doc *Document) error
}

// DuplicatePolicy decides whether a member may be added more than once.
type DuplicatePolicy int

const (
	// AllowDuplicates keeps every AddMember call, repeats included.
	AllowDuplicates DuplicatePolicy = iota
	// RejectDuplicates fails a repeated AddMember with ErrDuplicateMember.
	RejectDuplicates
)

func (p DuplicatePolicy) String() string {
	switch p {
	case AllowDuplicates:
		return "allow"
	case RejectDuplicates:
		return "reject"
	default:
		return fmt.Sprintf("DuplicatePolicy(%d)", int(p))
	}
}

// ParseDuplicatePolicy parses "allow" or "reject".
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch s {
	case "allow", "":
		return AllowDuplicates, nil
	case "reject":
		return RejectDuplicates, nil
	default:
		return AllowDuplicates, fmt.Errorf("unknown duplicate policy %q", s)
	}
}

// BuilderState is the lifecycle position of a Builder.
type BuilderState int

const (
	BuilderEmpty BuilderState = iota
	BuilderAccumulating
	BuilderBuilt
)

func (s BuilderState) String() string {
	switch s {
	case BuilderEmpty:
		return "empty"
	case BuilderAccumulating:
		return "accumulating"
	case BuilderBuilt:
		return "built"
	default:
		return fmt.Sprintf("BuilderState(%d)", int(s))
	}
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithDuplicatePolicy sets how repeated members are treated.
func WithDuplicatePolicy(p DuplicatePolicy) BuilderOption {
	return func(b *Builder) {
		b.policy = p
	}
}

type submitState int

const (
	notSubmitted submitState = iota
	submitUnknown
	submitConfirmed
)

// Builder accumulates the members and fields of one composite and turns them
// into a sealed object with Build. A Builder has a single owner and is not
// safe for concurrent use.
type Builder struct {
	kind    Kind
	policy  DuplicatePolicy
	state   BuilderState
	members []ObjectID
	seen    map[ObjectID]struct{}
	fields  map[string]Value

	// pending is the identifier allocated by the first Build attempt.
	pending ObjectID
	submit  submitState
	doc     *Document
}

// NewBuilder returns an empty builder for kind.
func NewBuilder(kind Kind, opts ...BuilderOption) *Builder {
	b := &Builder{
		kind:    kind,
		pending: InvalidObjectID,
		seen:    make(map[ObjectID]struct{}),
		fields:  make(map[string]Value),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Kind returns the kind the builder produces.
func (b *Builder) Kind() Kind { return b.kind }

// State returns the builder's lifecycle position.
func (b *Builder) State() BuilderState { return b.state }

// PendingID returns the identifier reserved by an unfinished Build, or
// InvalidObjectID.
func (b *Builder) PendingID() ObjectID { return b.pending }

// Members returns a copy of the members added so far.
func (b *Builder) Members() []ObjectID {
	return append([]ObjectID(nil), b.members...)
}

func (b *Builder) checkMutable() error {
	if b.state == BuilderBuilt {
		return ErrAlreadyBuilt
	}
	if b.submit != notSubmitted {
		return fmt.Errorf("%w: object %s", ErrSubmitted, b.pending)
	}
	return nil
}

// AddMember appends id to the ordered member list.
func (b *Builder) AddMember(id ObjectID) error {
	if err := b.checkMutable(); err != nil {
		return err
	}
	if !id.IsValid() {
		return fmt.Errorf("%w: cannot add %s as a member", ErrInvalidObjectID, id)
	}
	if _, dup := b.seen[id]; dup && b.policy == RejectDuplicates {
		return fmt.Errorf("%w: %s", ErrDuplicateMember, id)
	}
	b.seen[id] = struct{}{}
	b.members = append(b.members, id)
	b.state = BuilderAccumulating
	return nil
}

// SetField sets a scalar field. Names used by the document layout are
// rejected with ErrReservedField.
func (b *Builder) SetField(name string, v Value) error {
	if err := b.checkMutable(); err != nil {
		return err
	}
	if IsReservedField(name) {
		return fmt.Errorf("%w: %q", ErrReservedField, name)
	}
	if err := v.validate(); err != nil {
		return fmt.Errorf("field %q: %w", name, err)
	}
	b.fields[name] = v
	b.state = BuilderAccumulating
	return nil
}

// Build publishes the composite through c and returns its identifier.
//
// The steps are validate, allocate, submit and seal. Any failure is
// reported as a *BuildError and no identifier is returned. After a document
// has been submitted the builder's inputs are frozen; calling Build again
// first checks whether the object got sealed anyway and otherwise resumes
// from the failed step under the same identifier. A retry on a connection
// that does not own that identifier moves the document to a fresh one.
func (b *Builder) Build(ctx context.Context, c Client) (ObjectID, error) {
	if b.state == BuilderBuilt {
		return InvalidObjectID, b.fail(StepValidate, ErrAlreadyBuilt)
	}
	if c == nil {
		return InvalidObjectID, b.fail(StepValidate, ErrNotConnected)
	}

	if b.submit != notSubmitted {
		return b.resume(ctx, c)
	}

	doc, err := b.assemble()
	if err != nil {
		return InvalidObjectID, b.fail(StepValidate, err)
	}

	if !b.pending.IsValid() {
		id, err := c.AllocateID(ctx)
		if err != nil {
			return InvalidObjectID, b.fail(StepAllocate, err)
		}
		b.pending = id
	}
	doc.ID = b.pending
	b.doc = doc

	if err := b.submitOrReallocate(ctx, c); err != nil {
		return InvalidObjectID, err
	}
	return b.seal(ctx, c)
}

func (b *Builder) resume(ctx context.Context, c Client) (ObjectID, error) {
	doc, err := c.Resolve(ctx, b.pending)
	switch {
	case err == nil:
		if doc.TypeTag != b.kind.TypeTag {
			return InvalidObjectID, b.fail(StepReconcile,
				fmt.Errorf("%w: %s is %q, want %q", ErrTypeMismatch, b.pending, doc.TypeTag, b.kind.TypeTag))
		}
		b.state = BuilderBuilt
		return b.pending, nil
	case !errors.Is(err, ErrObjectNotFound):
		return InvalidObjectID, b.fail(StepReconcile, err)
	}

	if b.submit == submitUnknown {
		if err := b.submitOrReallocate(ctx, c); err != nil {
			return InvalidObjectID, err
		}
	}
	return b.seal(ctx, c)
}

// submitOrReallocate submits the document under the pending identifier. A
// reservation made by an earlier attempt belongs to that attempt's session,
// so a retry on another connection is refused with ErrNotOwner. The document
// is then submitted once more under a fresh identifier and the old
// reservation is left behind unused.
func (b *Builder) submitOrReallocate(ctx context.Context, c Client) error {
	err := b.submitDoc(ctx, c)
	if err == nil || !errors.Is(err, ErrNotOwner) {
		return err
	}
	id, aerr := c.AllocateID(ctx)
	if aerr != nil {
		return b.fail(StepAllocate, aerr)
	}
	b.pending = id
	b.doc.ID = id
	b.submit = notSubmitted
	return b.submitDoc(ctx, c)
}

func (b *Builder) submitDoc(ctx context.Context, c Client) error {
	if err := c.SubmitMetadata(ctx, b.pending, b.doc.Clone()); err != nil {
		if errors.Is(err, ErrConnectionFailure) {
			b.submit = submitUnknown
		}
		return b.fail(StepSubmit, err)
	}
	b.submit = submitConfirmed
	return nil
}

func (b *Builder) seal(ctx context.Context, c Client) (ObjectID, error) {
	if err := c.Seal(ctx, b.pending); err != nil {
		return InvalidObjectID, b.fail(StepSeal, err)
	}
	b.state = BuilderBuilt
	return b.pending, nil
}

// assemble produces the document to submit from the accumulated inputs.
func (b *Builder) assemble() (*Document, error) {
	if len(b.members) < b.kind.MinMembers {
		if b.kind.MinMembers == 1 {
			return nil, ErrEmptyComposite
		}
		return nil, fmt.Errorf("%w: %s needs at least %d members, has %d",
			ErrEmptyComposite, b.kind.TypeTag, b.kind.MinMembers, len(b.members))
	}

	doc := &Document{
		ID:      InvalidObjectID,
		TypeTag: b.kind.TypeTag,
		Members: append([]ObjectID{}, b.members...),
	}
	if len(b.fields) > 0 {
		doc.Fields = make(map[string]Value, len(b.fields))
		for k, v := range b.fields {
			doc.Fields[k] = v
		}
	}
	if b.kind.Assemble != nil {
		if err := b.kind.Assemble(doc); err != nil {
			return nil, err
		}
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

func (b *Builder) fail(step string, err error) error {
	return &BuildError{
		TypeTag:  b.kind.TypeTag,
		ObjectID: b.pending,
		Step:     step,
		Err:      err,
	}
}
