package composite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxAllocateAttempts bounds the retries after an identifier collision.
const maxAllocateAttempts = 8

// service implements the Service interface
type service struct {
	store      MetadataStore
	snapshots  SnapshotStore
	keys       KeyGenerator
	eventSink  EventSink
	hooks      *Hooks
	logger     *slog.Logger
	instanceID uint64
	now        func() time.Time
	ids        *idGenerator
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithStore sets the metadata store for the service
func WithStore(store MetadataStore) Option {
	return func(s *service) {
		s.store = store
	}
}

// WithSnapshotStore enables Persist, writing snapshots to store
func WithSnapshotStore(store SnapshotStore) Option {
	return func(s *service) {
		s.snapshots = store
	}
}

// WithKeyGenerator sets how snapshot keys are derived from identifiers
func WithKeyGenerator(keys KeyGenerator) Option {
	return func(s *service) {
		s.keys = keys
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithHooks adds lifecycle hooks. It may be given more than once.
func WithHooks(hooks *Hooks) Option {
	return func(s *service) {
		s.hooks.Merge(hooks)
	}
}

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithInstanceID sets the instance id stamped on documents and mixed into
// allocated identifiers.
func WithInstanceID(id uint64) Option {
	return func(s *service) {
		s.instanceID = id
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		keys:   defaultKeyGenerator{},
		hooks:  &Hooks{},
		logger: slog.Default(),
		now:    time.Now,
	}

	for _, option := range options {
		option(s)
	}

	if s.store == nil {
		return nil, fmt.Errorf("metadata store is required")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	ids, err := newIDGenerator(s.instanceID, s.now)
	if err != nil {
		return nil, err
	}
	s.ids = ids

	return s, nil
}

func (s *service) timestamp() time.Time {
	return s.now().UTC()
}

// Identifier and construction

func (s *service) AllocateID(ctx context.Context, session uuid.UUID) (ObjectID, error) {
	for attempt := 0; attempt < maxAllocateAttempts; attempt++ {
		id := s.ids.next()
		err := s.store.Reserve(ctx, id, session, s.timestamp())
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrIDConflict) {
			s.hooks.executeOnError(ctx, "allocate", err)
			return InvalidObjectID, &ObjectError{ObjectID: id, Op: "allocate", Err: err}
		}
		s.logger.WarnContext(ctx, "object id collision, retrying", "object_id", id, "attempt", attempt+1)
	}
	return InvalidObjectID, fmt.Errorf("%w: gave up after %d attempts", ErrIDConflict, maxAllocateAttempts)
}

func (s *service) SubmitMetadata(ctx context.Context, session uuid.UUID, id ObjectID, doc *Document) (*Document, error) {
	if doc == nil {
		return nil, &ObjectError{ObjectID: id, Op: "submit", Err: fmt.Errorf("%w: nil document", ErrInvalidDocument)}
	}
	if !id.IsValid() {
		return nil, &ObjectError{ObjectID: id, Op: "submit", Err: ErrInvalidObjectID}
	}

	d := doc.Clone()
	d.ID = id
	if err := d.Validate(); err != nil {
		return nil, &ObjectError{ObjectID: id, Op: "submit", Err: err}
	}
	if err := s.hooks.executeBeforeSubmit(ctx, d); err != nil {
		s.hooks.executeOnError(ctx, "submit", err)
		return nil, &ObjectError{ObjectID: id, Op: "submit", Err: err}
	}

	sig, err := Sign(d)
	if err != nil {
		return nil, &ObjectError{ObjectID: id, Op: "submit", Err: err}
	}
	d.Status = ObjectStatusPending
	d.Owner = session
	d.InstanceID = s.instanceID
	d.Signature = sig
	d.Persistent = false
	d.CreatedAt = s.timestamp()
	d.SealedAt = nil

	if err := s.store.Submit(ctx, d); err != nil {
		s.hooks.executeOnError(ctx, "submit", err)
		return nil, &ObjectError{ObjectID: id, Op: "submit", Err: err}
	}

	if s.eventSink != nil {
		if err := s.eventSink.MetadataSubmitted(ctx, d); err != nil {
			s.logger.WarnContext(ctx, "event sink failed", "event", "submitted", "object_id", id, "err", err)
		}
	}

	return d.Clone(), nil
}

func (s *service) Seal(ctx context.Context, id ObjectID) error {
	doc, changed, err := s.store.Seal(ctx, id, s.timestamp())
	if err != nil {
		if s.eventSink != nil {
			if serr := s.eventSink.SealFailed(ctx, id, err); serr != nil {
				s.logger.WarnContext(ctx, "event sink failed", "event", "seal_failed", "object_id", id, "err", serr)
			}
		}
		s.hooks.executeOnError(ctx, "seal", err)
		return &ObjectError{ObjectID: id, Op: "seal", Err: err}
	}
	if !changed {
		return nil
	}

	if s.eventSink != nil {
		if err := s.eventSink.ObjectSealed(ctx, doc); err != nil {
			s.logger.WarnContext(ctx, "event sink failed", "event", "sealed", "object_id", id, "err", err)
		}
	}
	// The object is already visible; hook failures cannot undo that.
	if err := s.hooks.executeAfterSeal(ctx, doc); err != nil {
		s.logger.WarnContext(ctx, "after seal hook failed", "object_id", id, "err", err)
	}
	return nil
}

// Reads

func (s *service) Resolve(ctx context.Context, id ObjectID) (*Document, error) {
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, &ObjectError{ObjectID: id, Op: "resolve", Err: err}
	}
	if err := CanResolve(doc.Status); err != nil {
		return nil, &ObjectError{ObjectID: id, Op: "resolve", Err: err}
	}
	return doc, nil
}

func (s *service) Exists(ctx context.Context, id ObjectID) (bool, error) {
	doc, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrObjectNotFound) {
		return false, nil
	}
	if err != nil {
		return false, &ObjectError{ObjectID: id, Op: "exists", Err: err}
	}
	return doc.Status == ObjectStatusSealed, nil
}

func (s *service) List(ctx context.Context, opts ListOptions) ([]*Document, error) {
	match, err := NewTypeMatcher(opts)
	if err != nil {
		return nil, err
	}
	return s.store.ListSealed(ctx, match, opts.Limit)
}

func (s *service) Delete(ctx context.Context, id ObjectID, opts DeleteOptions) ([]ObjectID, error) {
	deleted, err := s.store.Delete(ctx, id, opts)
	if err != nil {
		s.hooks.executeOnError(ctx, "delete", err)
		return nil, &ObjectError{ObjectID: id, Op: "delete", Err: err}
	}
	if len(deleted) == 0 {
		s.logger.InfoContext(ctx, "object still referenced, kept", "object_id", id)
		return nil, nil
	}

	for _, d := range deleted {
		if s.snapshots != nil {
			// Snapshot removal is best effort; the tombstone is authoritative.
			if err := s.snapshots.Delete(ctx, s.keys.GenerateKey(d)); err != nil {
				s.logger.WarnContext(ctx, "failed to delete snapshot", "object_id", d, "err", err)
			}
		}
		if s.eventSink != nil {
			if err := s.eventSink.ObjectDeleted(ctx, d); err != nil {
				s.logger.WarnContext(ctx, "event sink failed", "event", "deleted", "object_id", d, "err", err)
			}
		}
	}
	return deleted, nil
}

// Persistence

func (s *service) Persist(ctx context.Context, id ObjectID) error {
	if s.snapshots == nil {
		return &ObjectError{ObjectID: id, Op: "persist", Err: ErrSnapshotsDisabled}
	}

	root, err := s.Resolve(ctx, id)
	if err != nil {
		return err
	}
	if root.Persistent {
		return nil
	}

	// Snapshots of the whole closure are written before any object is
	// flagged persistent.
	var written []ObjectID
	queue := []*Document{root}
	visited := map[ObjectID]struct{}{root.ID: {}}
	for len(queue) > 0 {
		doc := queue[0]
		queue = queue[1:]

		data, err := EncodeDocument(doc)
		if err != nil {
			return &ObjectError{ObjectID: doc.ID, Op: "persist", Err: err}
		}
		key := s.keys.GenerateKey(doc.ID)
		if err := s.snapshots.Put(ctx, key, data); err != nil {
			s.hooks.executeOnError(ctx, "persist", err)
			return &ObjectError{ObjectID: doc.ID, Op: "persist", Err: err}
		}
		written = append(written, doc.ID)

		for _, ref := range doc.References() {
			if _, ok := visited[ref]; ok {
				continue
			}
			visited[ref] = struct{}{}
			member, err := s.Resolve(ctx, ref)
			if err != nil {
				return err
			}
			if member.Persistent {
				continue
			}
			queue = append(queue, member)
		}
	}

	if err := s.store.SetPersistent(ctx, written); err != nil {
		return &ObjectError{ObjectID: id, Op: "persist", Err: err}
	}

	if s.eventSink != nil {
		for _, w := range written {
			if err := s.eventSink.ObjectPersisted(ctx, w); err != nil {
				s.logger.WarnContext(ctx, "event sink failed", "event", "persisted", "object_id", w, "err", err)
			}
		}
	}
	return nil
}

func (s *service) IsPersistent(ctx context.Context, id ObjectID) (bool, error) {
	doc, err := s.Resolve(ctx, id)
	if err != nil {
		return false, err
	}
	return doc.Persistent, nil
}

func (s *service) LoadSnapshot(ctx context.Context, id ObjectID) (*Document, error) {
	if s.snapshots == nil {
		return nil, &ObjectError{ObjectID: id, Op: "load_snapshot", Err: ErrSnapshotsDisabled}
	}
	data, err := s.snapshots.Get(ctx, s.keys.GenerateKey(id))
	if err != nil {
		return nil, &ObjectError{ObjectID: id, Op: "load_snapshot", Err: err}
	}
	doc, err := DecodeDocument(data)
	if err != nil {
		return nil, &ObjectError{ObjectID: id, Op: "load_snapshot", Err: err}
	}
	return doc, nil
}

// Names

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("%w: %q contains a reserved character", ErrInvalidName, name)
	}
	return nil
}

func (s *service) PutName(ctx context.Context, id ObjectID, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := s.store.PutName(ctx, name, id); err != nil {
		return &ObjectError{ObjectID: id, Op: "put_name", Err: err}
	}
	return nil
}

func (s *service) GetName(ctx context.Context, name string) (ObjectID, error) {
	if err := validateName(name); err != nil {
		return InvalidObjectID, err
	}
	return s.store.GetName(ctx, name)
}

func (s *service) DropName(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	return s.store.DropName(ctx, name)
}
