package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/simple-composite/pkg/composite"
)

// ObjectHandler serves the metadata service over HTTP
type ObjectHandler struct {
	service composite.Service
}

// NewObjectHandler creates a new object handler
func NewObjectHandler(service composite.Service) *ObjectHandler {
	return &ObjectHandler{service: service}
}

// Routes returns the object and name routes
func (h *ObjectHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/objects", func(r chi.Router) {
		r.Get("/", h.ListObjects)
		r.Post("/allocate", h.AllocateID)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetObject)
			r.Delete("/", h.DeleteObject)
			r.Put("/metadata", h.SubmitMetadata)
			r.Post("/seal", h.Seal)
			r.Get("/exists", h.Exists)
			r.Post("/persist", h.Persist)
			r.Get("/persistent", h.IsPersistent)
			r.Get("/snapshot", h.GetSnapshot)
		})
	})

	r.Route("/names/{name}", func(r chi.Router) {
		r.Put("/", h.PutName)
		r.Get("/", h.GetName)
		r.Delete("/", h.DropName)
	})

	return r
}

func objectIDParam(w http.ResponseWriter, r *http.Request) (composite.ObjectID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := composite.ParseObjectID(raw)
	if err != nil {
		writeError(w, r, err)
		return composite.InvalidObjectID, false
	}
	return id, true
}

func nameParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		writeBadRequest(w, r, CodeBadRequest, "malformed name")
		return "", false
	}
	return name, true
}

func sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.Header.Get(SessionHeader)
	if raw == "" {
		writeBadRequest(w, r, CodeMissingSession, SessionHeader+" header is required")
		return uuid.Nil, false
	}
	session, err := uuid.Parse(raw)
	if err != nil {
		writeBadRequest(w, r, CodeMissingSession, fmt.Sprintf("invalid %s: %v", SessionHeader, err))
		return uuid.Nil, false
	}
	return session, true
}

// AllocateID reserves a new identifier for the calling session
func (h *ObjectHandler) AllocateID(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionID(w, r)
	if !ok {
		return
	}

	id, err := h.service.AllocateID(r.Context(), session)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.DebugContext(r.Context(), "object id allocated", "object_id", id, "session", session)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, AllocateResponse{ID: id})
}

// SubmitMetadata stores the pending document of an allocated identifier
func (h *ObjectHandler) SubmitMetadata(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionID(w, r)
	if !ok {
		return
	}
	id, ok := objectIDParam(w, r)
	if !ok {
		return
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", composite.ErrInvalidDocument, err))
		return
	}

	doc, err := h.service.SubmitMetadata(r.Context(), session, id, &composite.Document{
		TypeTag: req.TypeTag,
		Members: req.Members,
		Fields:  req.Fields,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, doc)
}

// Seal publishes a pending document
func (h *ObjectHandler) Seal(w http.ResponseWriter, r *http.Request) {
	id, ok := objectIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.Seal(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetObject returns a sealed document
func (h *ObjectHandler) GetObject(w http.ResponseWriter, r *http.Request) {
	id, ok := objectIDParam(w, r)
	if !ok {
		return
	}

	doc, err := h.service.Resolve(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, doc)
}

// Exists reports whether a sealed object exists
func (h *ObjectHandler) Exists(w http.ResponseWriter, r *http.Request) {
	id, ok := objectIDParam(w, r)
	if !ok {
		return
	}

	exists, err := h.service.Exists(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, ExistsResponse{Exists: exists})
}

// DeleteObject deletes an object. Query parameters force and deep map onto
// composite.DeleteOptions.
func (h *ObjectHandler) DeleteObject(w http.ResponseWriter, r *http.Request) {
	id, ok := objectIDParam(w, r)
	if !ok {
		return
	}

	var opts composite.DeleteOptions
	var err error
	q := r.URL.Query()
	if opts.Force, err = boolParam(q, "force"); err != nil {
		writeBadRequest(w, r, CodeBadRequest, err.Error())
		return
	}
	if opts.Deep, err = boolParam(q, "deep"); err != nil {
		writeBadRequest(w, r, CodeBadRequest, err.Error())
		return
	}

	deleted, err := h.service.Delete(r.Context(), id, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if deleted == nil {
		deleted = []composite.ObjectID{}
	}

	slog.InfoContext(r.Context(), "delete handled", "object_id", id, "deleted", len(deleted), "force", opts.Force, "deep", opts.Deep)
	render.JSON(w, r, DeleteResponse{Deleted: deleted})
}

// Persist writes snapshots of an object and its members
func (h *ObjectHandler) Persist(w http.ResponseWriter, r *http.Request) {
	id, ok := objectIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.Persist(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// IsPersistent reports whether an object has been persisted
func (h *ObjectHandler) IsPersistent(w http.ResponseWriter, r *http.Request) {
	id, ok := objectIDParam(w, r)
	if !ok {
		return
	}

	persistent, err := h.service.IsPersistent(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, PersistentResponse{Persistent: persistent})
}

// GetSnapshot returns the persisted copy of a document
func (h *ObjectHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := objectIDParam(w, r)
	if !ok {
		return
	}

	doc, err := h.service.LoadSnapshot(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, doc)
}

// ListObjects lists sealed documents. Query parameters: pattern, regex, limit.
func (h *ObjectHandler) ListObjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := composite.ListOptions{Pattern: q.Get("pattern")}

	var err error
	if opts.Regex, err = boolParam(q, "regex"); err != nil {
		writeBadRequest(w, r, CodeBadRequest, err.Error())
		return
	}
	if raw := q.Get("limit"); raw != "" {
		opts.Limit, err = strconv.Atoi(raw)
		if err != nil || opts.Limit < 0 {
			writeBadRequest(w, r, CodeBadRequest, "limit must be a non-negative integer")
			return
		}
	}

	if _, err := composite.NewTypeMatcher(opts); err != nil {
		writeBadRequest(w, r, CodeBadRequest, err.Error())
		return
	}

	docs, err := h.service.List(r.Context(), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []*composite.Document{}
	}

	render.JSON(w, r, ListResponse{Objects: docs})
}

// PutName binds a name to a sealed object
func (h *ObjectHandler) PutName(w http.ResponseWriter, r *http.Request) {
	name, ok := nameParam(w, r)
	if !ok {
		return
	}

	var req NameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, CodeBadRequest, err.Error())
		return
	}

	if err := h.service.PutName(r.Context(), req.ID, name); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetName resolves a name
func (h *ObjectHandler) GetName(w http.ResponseWriter, r *http.Request) {
	name, ok := nameParam(w, r)
	if !ok {
		return
	}

	id, err := h.service.GetName(r.Context(), name)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, NameResponse{Name: name, ID: id})
}

// DropName removes a name binding
func (h *ObjectHandler) DropName(w http.ResponseWriter, r *http.Request) {
	name, ok := nameParam(w, r)
	if !ok {
		return
	}

	if err := h.service.DropName(r.Context(), name); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func boolParam(q url.Values, key string) (bool, error) {
	raw := q.Get(key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean", key)
	}
	return v, nil
}
