package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/simple-composite/pkg/composite"
)

// Error codes carried in ErrorResponse.Code.
const (
	CodeBadRequest        = "bad_request"
	CodeMissingSession    = "missing_session"
	CodeNotFound          = "not_found"
	CodeNameNotFound      = "name_not_found"
	CodeSnapshotNotFound  = "snapshot_not_found"
	CodeAlreadySealed     = "already_sealed"
	CodeIDConflict        = "id_conflict"
	CodeDanglingReference = "dangling_reference"
	CodeTypeMismatch      = "type_mismatch"
	CodeNotOwner          = "not_owner"
	CodeInvalidDocument   = "invalid_document"
	CodeReservedField     = "reserved_field"
	CodeInvalidObjectID   = "invalid_object_id"
	CodeInvalidName       = "invalid_name"
	CodeSnapshotsDisabled = "snapshots_disabled"
	CodeInternal          = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type errorMapping struct {
	sentinel error
	status   int
	code     string
}

// errorMappings is checked in order; more specific sentinels come first.
var errorMappings = []errorMapping{
	{composite.ErrDanglingReference, http.StatusConflict, CodeDanglingReference},
	{composite.ErrAlreadySealed, http.StatusConflict, CodeAlreadySealed},
	{composite.ErrIDConflict, http.StatusConflict, CodeIDConflict},
	{composite.ErrTypeMismatch, http.StatusConflict, CodeTypeMismatch},
	{composite.ErrNotOwner, http.StatusForbidden, CodeNotOwner},
	{composite.ErrNameNotFound, http.StatusNotFound, CodeNameNotFound},
	{composite.ErrSnapshotNotFound, http.StatusNotFound, CodeSnapshotNotFound},
	{composite.ErrObjectNotFound, http.StatusNotFound, CodeNotFound},
	{composite.ErrReservedField, http.StatusBadRequest, CodeReservedField},
	{composite.ErrInvalidDocument, http.StatusBadRequest, CodeInvalidDocument},
	{composite.ErrInvalidObjectID, http.StatusBadRequest, CodeInvalidObjectID},
	{composite.ErrInvalidName, http.StatusBadRequest, CodeInvalidName},
	{composite.ErrSnapshotsDisabled, http.StatusNotImplemented, CodeSnapshotsDisabled},
}

// StatusFor returns the HTTP status and error code for err.
func StatusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.sentinel) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, CodeInternal
}

// SentinelFor returns the error that code stands for, or nil when the code
// has no sentinel.
func SentinelFor(code string) error {
	for _, m := range errorMappings {
		if m.code == code {
			return m.sentinel
		}
	}
	return nil
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := StatusFor(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	} else {
		slog.DebugContext(r.Context(), "request rejected", "method", r.Method, "path", r.URL.Path, "code", code, "err", err)
	}
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: err.Error(), Code: code})
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, code, msg string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{Error: msg, Code: code})
}
