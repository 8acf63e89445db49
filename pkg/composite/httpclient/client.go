// Package httpclient is a composite.ObjectClient that talks to the metadata
// service over its HTTP API.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-composite/pkg/composite"
	"github.com/tendant/simple-composite/pkg/composite/api"
)

// Client is one session against a remote metadata service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    uuid.UUID

	mu     sync.RWMutex
	closed bool
}

var _ composite.ObjectClient = (*Client)(nil)

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout of the default http.Client
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithSession resumes an existing session instead of starting a new one
func WithSession(session uuid.UUID) Option {
	return func(c *Client) {
		c.session = session
	}
}

// New connects to the service at baseURL, e.g. "http://localhost:8080/api/v1".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		session:    uuid.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Session returns the session identifier sent with every request.
func (c *Client) Session() uuid.UUID {
	return c.session
}

// Close ends the session. Closing twice is harmless.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// do sends one request and decodes a 2xx body into out when out is non-nil.
// Transport failures and gateway errors wrap composite.ErrConnectionFailure,
// since the request may or may not have reached the service.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return composite.ErrNotConnected
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(api.SessionHeader, c.session.String())
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", composite.ErrConnectionFailure, ctxErr)
		}
		return fmt.Errorf("%w: %v", composite.ErrConnectionFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: undecodable response: %v", composite.ErrConnectionFailure, err)
		}
		return nil
	}

	return decodeError(resp)
}

func decodeError(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s", composite.ErrConnectionFailure, resp.Status)
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var e api.ErrorResponse
	if err := json.Unmarshal(data, &e); err != nil || e.Code == "" {
		return fmt.Errorf("%w: unexpected response %s", composite.ErrConnectionFailure, resp.Status)
	}

	if sentinel := api.SentinelFor(e.Code); sentinel != nil {
		return fmt.Errorf("%w: %s", sentinel, e.Error)
	}
	return &StatusError{StatusCode: resp.StatusCode, Code: e.Code, Message: e.Error}
}

// StatusError is a service error with no composite sentinel.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s (%d %s)", e.Message, e.StatusCode, e.Code)
}

func objectPath(id composite.ObjectID, suffix string) string {
	return "/objects/" + id.String() + suffix
}

func namePath(name string) string {
	return "/names/" + url.PathEscape(name)
}

func (c *Client) AllocateID(ctx context.Context) (composite.ObjectID, error) {
	var resp api.AllocateResponse
	if err := c.do(ctx, http.MethodPost, "/objects/allocate", nil, nil, &resp); err != nil {
		return composite.InvalidObjectID, err
	}
	return resp.ID, nil
}

func (c *Client) SubmitMetadata(ctx context.Context, id composite.ObjectID, doc *composite.Document) error {
	if doc == nil {
		return fmt.Errorf("%w: nil document", composite.ErrInvalidDocument)
	}
	req := api.SubmitRequest{TypeTag: doc.TypeTag, Members: doc.Members, Fields: doc.Fields}
	return c.do(ctx, http.MethodPut, objectPath(id, "/metadata"), nil, req, nil)
}

func (c *Client) Seal(ctx context.Context, id composite.ObjectID) error {
	return c.do(ctx, http.MethodPost, objectPath(id, "/seal"), nil, nil, nil)
}

func (c *Client) Resolve(ctx context.Context, id composite.ObjectID) (*composite.Document, error) {
	var doc composite.Document
	if err := c.do(ctx, http.MethodGet, objectPath(id, ""), nil, nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *Client) Exists(ctx context.Context, id composite.ObjectID) (bool, error) {
	var resp api.ExistsResponse
	if err := c.do(ctx, http.MethodGet, objectPath(id, "/exists"), nil, nil, &resp); err != nil {
		return false, err
	}
	return resp.Exists, nil
}

func (c *Client) Delete(ctx context.Context, id composite.ObjectID, opts composite.DeleteOptions) ([]composite.ObjectID, error) {
	q := url.Values{}
	if opts.Force {
		q.Set("force", "true")
	}
	if opts.Deep {
		q.Set("deep", "true")
	}
	var resp api.DeleteResponse
	if err := c.do(ctx, http.MethodDelete, objectPath(id, ""), q, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Deleted) == 0 {
		return nil, nil
	}
	return resp.Deleted, nil
}

func (c *Client) Persist(ctx context.Context, id composite.ObjectID) error {
	return c.do(ctx, http.MethodPost, objectPath(id, "/persist"), nil, nil, nil)
}

func (c *Client) IsPersistent(ctx context.Context, id composite.ObjectID) (bool, error) {
	var resp api.PersistentResponse
	if err := c.do(ctx, http.MethodGet, objectPath(id, "/persistent"), nil, nil, &resp); err != nil {
		return false, err
	}
	return resp.Persistent, nil
}

// LoadSnapshot returns the persisted copy of id.
func (c *Client) LoadSnapshot(ctx context.Context, id composite.ObjectID) (*composite.Document, error) {
	var doc composite.Document
	if err := c.do(ctx, http.MethodGet, objectPath(id, "/snapshot"), nil, nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *Client) PutName(ctx context.Context, id composite.ObjectID, name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is empty", composite.ErrInvalidName)
	}
	return c.do(ctx, http.MethodPut, namePath(name), nil, api.NameRequest{ID: id}, nil)
}

func (c *Client) GetName(ctx context.Context, name string) (composite.ObjectID, error) {
	if name == "" {
		return composite.InvalidObjectID, fmt.Errorf("%w: name is empty", composite.ErrInvalidName)
	}
	var resp api.NameResponse
	if err := c.do(ctx, http.MethodGet, namePath(name), nil, nil, &resp); err != nil {
		return composite.InvalidObjectID, err
	}
	return resp.ID, nil
}

func (c *Client) DropName(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is empty", composite.ErrInvalidName)
	}
	return c.do(ctx, http.MethodDelete, namePath(name), nil, nil, nil)
}

func (c *Client) List(ctx context.Context, opts composite.ListOptions) ([]*composite.Document, error) {
	q := url.Values{}
	if opts.Pattern != "" {
		q.Set("pattern", opts.Pattern)
	}
	if opts.Regex {
		q.Set("regex", "true")
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	var resp api.ListResponse
	if err := c.do(ctx, http.MethodGet, "/objects", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Objects, nil
}

// IsConnectionFailure reports whether err left the outcome of a request
// unknown.
func IsConnectionFailure(err error) bool {
	return errors.Is(err, composite.ErrConnectionFailure)
}
