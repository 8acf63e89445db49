package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-composite/pkg/composite"
	"github.com/tendant/simple-composite/pkg/composite/api"
	"github.com/tendant/simple-composite/pkg/composite/metastore/memory"
	snapmemory "github.com/tendant/simple-composite/pkg/composite/snapshot/memory"
)

type testServer struct {
	t       *testing.T
	handler http.Handler
	svc     composite.Service
	session uuid.UUID
}

func setupHandlerTest(t *testing.T) *testServer {
	t.Helper()
	svc, err := composite.New(
		composite.WithStore(memory.New()),
		composite.WithSnapshotStore(snapmemory.New()),
	)
	require.NoError(t, err)
	return &testServer{
		t:       t,
		handler: api.NewObjectHandler(svc).Routes(),
		svc:     svc,
		session: uuid.New(),
	}
}

func (s *testServer) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(api.SessionHeader, s.session.String())
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// create allocates, submits and seals an object over HTTP.
func (s *testServer) create(req api.SubmitRequest) composite.ObjectID {
	s.t.Helper()
	w := s.do(http.MethodPost, "/objects/allocate", nil)
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	id := decode[api.AllocateResponse](s.t, w).ID

	w = s.do(http.MethodPut, "/objects/"+id.String()+"/metadata", req)
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/objects/"+id.String()+"/seal", nil)
	require.Equal(s.t, http.StatusNoContent, w.Code, w.Body.String())
	return id
}

func scalarRequest(v int64) api.SubmitRequest {
	return api.SubmitRequest{
		TypeTag: composite.ScalarTypeTag,
		Fields:  map[string]composite.Value{"value": composite.IntValue(v)},
	}
}

func TestObjectHandler_Lifecycle(t *testing.T) {
	s := setupHandlerTest(t)

	a := s.create(scalarRequest(1))
	b := s.create(scalarRequest(2))
	ps := s.create(api.SubmitRequest{
		TypeTag: composite.ParallelStreamTypeTag,
		Members: []composite.ObjectID{a, b},
		Fields:  map[string]composite.Value{"label": composite.StringValue("logs")},
	})

	w := s.do(http.MethodGet, "/objects/"+ps.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	doc := decode[composite.Document](t, w)
	assert.Equal(t, ps, doc.ID)
	assert.Equal(t, []composite.ObjectID{a, b}, doc.Members)
	assert.Equal(t, composite.ObjectStatusSealed, doc.Status)
	assert.Equal(t, "logs", doc.Fields["label"].Text)
	assert.Equal(t, s.session, doc.Owner)
	assert.False(t, doc.Signature.IsZero())

	w = s.do(http.MethodGet, "/objects/"+ps.String()+"/exists", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[api.ExistsResponse](t, w).Exists)

	// Sealing again is a no-op.
	w = s.do(http.MethodPost, "/objects/"+ps.String()+"/seal", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestObjectHandler_PendingIsInvisible(t *testing.T) {
	s := setupHandlerTest(t)

	w := s.do(http.MethodPost, "/objects/allocate", nil)
	id := decode[api.AllocateResponse](t, w).ID
	w = s.do(http.MethodPut, "/objects/"+id.String()+"/metadata", scalarRequest(1))
	require.Equal(t, http.StatusOK, w.Code)
	pending := decode[composite.Document](t, w)
	assert.Equal(t, composite.ObjectStatusPending, pending.Status)

	w = s.do(http.MethodGet, "/objects/"+id.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, api.CodeNotFound, decode[api.ErrorResponse](t, w).Code)

	w = s.do(http.MethodGet, "/objects/"+id.String()+"/exists", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[api.ExistsResponse](t, w).Exists)
}

func TestObjectHandler_Errors(t *testing.T) {
	s := setupHandlerTest(t)
	a := s.create(scalarRequest(1))

	tests := []struct {
		name       string
		method     string
		path       string
		body       interface{}
		wantStatus int
		wantCode   string
	}{
		{"malformed id", http.MethodGet, "/objects/nope", nil, http.StatusBadRequest, api.CodeInvalidObjectID},
		{"unknown object", http.MethodGet, "/objects/o00000000000000ff", nil, http.StatusNotFound, api.CodeNotFound},
		{"resubmit sealed", http.MethodPut, "/objects/" + a.String() + "/metadata", scalarRequest(2), http.StatusConflict, api.CodeAlreadySealed},
		{"seal unknown", http.MethodPost, "/objects/o00000000000000ff/seal", nil, http.StatusNotFound, api.CodeNotFound},
		{"bad delete flag", http.MethodDelete, "/objects/" + a.String() + "?force=perhaps", nil, http.StatusBadRequest, api.CodeBadRequest},
		{"bad limit", http.MethodGet, "/objects?limit=-1", nil, http.StatusBadRequest, api.CodeBadRequest},
		{"bad regex", http.MethodGet, "/objects?pattern=(&regex=true", nil, http.StatusBadRequest, api.CodeBadRequest},
		{"unknown name", http.MethodGet, "/names/missing", nil, http.StatusNotFound, api.CodeNameNotFound},
		{"snapshot missing", http.MethodGet, "/objects/" + a.String() + "/snapshot", nil, http.StatusNotFound, api.CodeSnapshotNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			resp := decode[api.ErrorResponse](t, w)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestObjectHandler_Session(t *testing.T) {
	s := setupHandlerTest(t)

	req := httptest.NewRequest(http.MethodPost, "/objects/allocate", nil)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, api.CodeMissingSession, decode[api.ErrorResponse](t, w).Code)

	// Another session may not submit for an identifier it did not allocate.
	w = s.do(http.MethodPost, "/objects/allocate", nil)
	id := decode[api.AllocateResponse](t, w).ID

	data, _ := json.Marshal(scalarRequest(1))
	req = httptest.NewRequest(http.MethodPut, "/objects/"+id.String()+"/metadata", bytes.NewReader(data))
	req.Header.Set(api.SessionHeader, uuid.NewString())
	w = httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, api.CodeNotOwner, decode[api.ErrorResponse](t, w).Code)
}

func TestObjectHandler_DanglingReference(t *testing.T) {
	s := setupHandlerTest(t)

	w := s.do(http.MethodPost, "/objects/allocate", nil)
	member := decode[api.AllocateResponse](t, w).ID
	w = s.do(http.MethodPut, "/objects/"+member.String()+"/metadata", scalarRequest(1))
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPost, "/objects/allocate", nil)
	parent := decode[api.AllocateResponse](t, w).ID
	w = s.do(http.MethodPut, "/objects/"+parent.String()+"/metadata", api.SubmitRequest{
		TypeTag: composite.ParallelStreamTypeTag,
		Members: []composite.ObjectID{member},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPost, "/objects/"+parent.String()+"/seal", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	resp := decode[api.ErrorResponse](t, w)
	assert.Equal(t, api.CodeDanglingReference, resp.Code)
	assert.Contains(t, resp.Error, member.String())
}

func TestObjectHandler_SubmitValidation(t *testing.T) {
	s := setupHandlerTest(t)
	w := s.do(http.MethodPost, "/objects/allocate", nil)
	id := decode[api.AllocateResponse](t, w).ID

	w = s.do(http.MethodPut, "/objects/"+id.String()+"/metadata", api.SubmitRequest{
		TypeTag: "scalar",
		Fields:  map[string]composite.Value{"member_count": composite.IntValue(3)},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, api.CodeReservedField, decode[api.ErrorResponse](t, w).Code)

	req := httptest.NewRequest(http.MethodPut, "/objects/"+id.String()+"/metadata", bytes.NewReader([]byte("{")))
	req.Header.Set(api.SessionHeader, s.session.String())
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, api.CodeInvalidDocument, decode[api.ErrorResponse](t, rec).Code)
}

func TestObjectHandler_DeleteAndList(t *testing.T) {
	s := setupHandlerTest(t)
	a := s.create(scalarRequest(1))
	b := s.create(scalarRequest(2))
	ps := s.create(api.SubmitRequest{TypeTag: composite.ParallelStreamTypeTag, Members: []composite.ObjectID{a, b}})

	w := s.do(http.MethodGet, "/objects?pattern=scalar", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[api.ListResponse](t, w).Objects, 2)

	w = s.do(http.MethodGet, "/objects?pattern=.*&regex=true&limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[api.ListResponse](t, w).Objects, 1)

	// a is still referenced by ps.
	w = s.do(http.MethodDelete, "/objects/"+a.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[api.DeleteResponse](t, w).Deleted)

	w = s.do(http.MethodDelete, "/objects/"+ps.String()+"?deep=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.ElementsMatch(t, []composite.ObjectID{ps, a, b}, decode[api.DeleteResponse](t, w).Deleted)

	w = s.do(http.MethodGet, "/objects", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[api.ListResponse](t, w).Objects)
}

func TestObjectHandler_PersistAndNames(t *testing.T) {
	s := setupHandlerTest(t)
	a := s.create(scalarRequest(1))
	ps := s.create(api.SubmitRequest{TypeTag: composite.ParallelStreamTypeTag, Members: []composite.ObjectID{a}})

	w := s.do(http.MethodPost, "/objects/"+ps.String()+"/persist", nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/objects/"+a.String()+"/persistent", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[api.PersistentResponse](t, w).Persistent)

	w = s.do(http.MethodGet, "/objects/"+ps.String()+"/snapshot", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []composite.ObjectID{a}, decode[composite.Document](t, w).Members)

	w = s.do(http.MethodPut, "/names/daily%20run", api.NameRequest{ID: ps})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/names/daily%20run", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[api.NameResponse](t, w)
	assert.Equal(t, "daily run", got.Name)
	assert.Equal(t, ps, got.ID)

	id, err := s.svc.GetName(context.Background(), "daily run")
	require.NoError(t, err)
	assert.Equal(t, ps, id)

	w = s.do(http.MethodDelete, "/names/daily%20run", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(http.MethodDelete, "/names/daily%20run", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusFor(t *testing.T) {
	status, code := api.StatusFor(&composite.ObjectError{Op: "seal", Err: &composite.DanglingReferenceError{Reference: 1}})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, api.CodeDanglingReference, code)

	status, code = api.StatusFor(assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, api.CodeInternal, code)

	assert.Equal(t, composite.ErrNotOwner, api.SentinelFor(api.CodeNotOwner))
	assert.Nil(t, api.SentinelFor(api.CodeInternal))
}
