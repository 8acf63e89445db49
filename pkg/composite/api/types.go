package api

import (
	"github.com/tendant/simple-composite/pkg/composite"
)

// SessionHeader carries the connection's session id. Only the session that
// allocated an identifier may submit its document.
const SessionHeader = "X-Session-ID"

// AllocateResponse is the response body of POST /objects/allocate.
type AllocateResponse struct {
	ID composite.ObjectID `json:"id"`
}

// SubmitRequest is the request body of PUT /objects/{id}/metadata.
type SubmitRequest struct {
	TypeTag string                     `json:"type_tag"`
	Members []composite.ObjectID       `json:"members"`
	Fields  map[string]composite.Value `json:"fields,omitempty"`
}

// ExistsResponse is the response body of GET /objects/{id}/exists.
type ExistsResponse struct {
	Exists bool `json:"exists"`
}

// PersistentResponse is the response body of GET /objects/{id}/persistent.
type PersistentResponse struct {
	Persistent bool `json:"persistent"`
}

// DeleteResponse lists the objects a delete turned into tombstones. It is
// empty when the object was kept because live composites reference it.
type DeleteResponse struct {
	Deleted []composite.ObjectID `json:"deleted"`
}

// ListResponse is the response body of GET /objects.
type ListResponse struct {
	Objects []*composite.Document `json:"objects"`
}

// NameRequest is the request body of PUT /names/{name}.
type NameRequest struct {
	ID composite.ObjectID `json:"id"`
}

// NameResponse is the response body of GET /names/{name}.
type NameResponse struct {
	Name string             `json:"name"`
	ID   composite.ObjectID `json:"id"`
}
