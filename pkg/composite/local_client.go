package composite

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// LocalClient is an in-process connection to a Service. Each client is its
// own session; requests on one client are serialized.
type LocalClient struct {
	mu      sync.Mutex
	svc     Service
	session uuid.UUID
	closed  bool
}

var _ ObjectClient = (*LocalClient)(nil)

// Connect opens a new session on svc.
func Connect(svc Service) *LocalClient {
	return &LocalClient{svc: svc, session: uuid.New()}
}

// Session returns the session identifier of the connection.
func (c *LocalClient) Session() uuid.UUID {
	return c.session
}

// Close ends the session. Closing twice is harmless.
func (c *LocalClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *LocalClient) do(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrNotConnected
	}
	return fn()
}

func (c *LocalClient) AllocateID(ctx context.Context) (ObjectID, error) {
	id := InvalidObjectID
	err := c.do(func() (err error) {
		id, err = c.svc.AllocateID(ctx, c.session)
		return err
	})
	return id, err
}

func (c *LocalClient) SubmitMetadata(ctx context.Context, id ObjectID, doc *Document) error {
	return c.do(func() error {
		_, err := c.svc.SubmitMetadata(ctx, c.session, id, doc)
		return err
	})
}

func (c *LocalClient) Seal(ctx context.Context, id ObjectID) error {
	return c.do(func() error {
		return c.svc.Seal(ctx, id)
	})
}

func (c *LocalClient) Resolve(ctx context.Context, id ObjectID) (*Document, error) {
	var doc *Document
	err := c.do(func() (err error) {
		doc, err = c.svc.Resolve(ctx, id)
		return err
	})
	return doc, err
}

func (c *LocalClient) Exists(ctx context.Context, id ObjectID) (bool, error) {
	var ok bool
	err := c.do(func() (err error) {
		ok, err = c.svc.Exists(ctx, id)
		return err
	})
	return ok, err
}

func (c *LocalClient) Delete(ctx context.Context, id ObjectID, opts DeleteOptions) ([]ObjectID, error) {
	var deleted []ObjectID
	err := c.do(func() (err error) {
		deleted, err = c.svc.Delete(ctx, id, opts)
		return err
	})
	return deleted, err
}

func (c *LocalClient) Persist(ctx context.Context, id ObjectID) error {
	return c.do(func() error {
		return c.svc.Persist(ctx, id)
	})
}

func (c *LocalClient) IsPersistent(ctx context.Context, id ObjectID) (bool, error) {
	var ok bool
	err := c.do(func() (err error) {
		ok, err = c.svc.IsPersistent(ctx, id)
		return err
	})
	return ok, err
}

func (c *LocalClient) PutName(ctx context.Context, id ObjectID, name string) error {
	return c.do(func() error {
		return c.svc.PutName(ctx, id, name)
	})
}

func (c *LocalClient) GetName(ctx context.Context, name string) (ObjectID, error) {
	id := InvalidObjectID
	err := c.do(func() (err error) {
		id, err = c.svc.GetName(ctx, name)
		return err
	})
	return id, err
}

func (c *LocalClient) DropName(ctx context.Context, name string) error {
	return c.do(func() error {
		return c.svc.DropName(ctx, name)
	})
}

func (c *LocalClient) List(ctx context.Context, opts ListOptions) ([]*Document, error) {
	var docs []*Document
	err := c.do(func() (err error) {
		docs, err = c.svc.List(ctx, opts)
		return err
	})
	return docs, err
}
