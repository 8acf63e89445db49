package composite

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrAlreadyBuilt indicates Build (or a mutation) was attempted on a builder that has already been built
	ErrAlreadyBuilt = errors.New("builder already built")

	// ErrEmptyComposite indicates the builder has fewer members than its kind requires
	ErrEmptyComposite = errors.New("composite has no members")

	// ErrConnectionFailure indicates a transport-level failure talking to the metadata service
	ErrConnectionFailure = errors.New("connection failure")

	// ErrDanglingReference indicates a member did not resolve to a sealed object at seal time
	ErrDanglingReference = errors.New("dangling reference")

	// ErrNotConnected indicates the connection has been closed
	ErrNotConnected = fmt.Errorf("%w: client is not connected", ErrConnectionFailure)

	// ErrObjectNotFound indicates an object was not found or is not visible
	ErrObjectNotFound = errors.New("object not found")

	// ErrAlreadySealed indicates a sealed document cannot be replaced
	ErrAlreadySealed = errors.New("object already sealed")

	// ErrDuplicateMember indicates a member was added twice under RejectDuplicates
	ErrDuplicateMember = errors.New("duplicate member")

	// ErrReservedField indicates a scalar field uses a name owned by the document layout
	ErrReservedField = errors.New("reserved field name")

	// ErrSubmitted indicates the builder inputs are frozen because a document was already submitted
	ErrSubmitted = errors.New("document already submitted")

	// ErrTypeMismatch indicates a document has a different type tag than expected
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrInvalidObjectID indicates a malformed object identifier
	ErrInvalidObjectID = errors.New("invalid object id")

	// ErrInvalidDocument indicates a document failed validation
	ErrInvalidDocument = errors.New("invalid document")

	// ErrIDConflict indicates an allocated identifier is already known to the store
	ErrIDConflict = errors.New("object id already in use")

	// ErrNotOwner indicates a session tried to submit metadata for an identifier it did not allocate
	ErrNotOwner = errors.New("object reserved by another session")

	// ErrNameNotFound indicates a name is not bound to any object
	ErrNameNotFound = errors.New("name not found")

	// ErrInvalidName indicates an empty or malformed object name
	ErrInvalidName = errors.New("invalid name")

	// ErrSnapshotNotFound indicates no snapshot is stored under a key
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrSnapshotsDisabled indicates Persist was called on a service without snapshot storage
	ErrSnapshotsDisabled = errors.New("snapshot storage not configured")
)

// Build steps reported in BuildError.
const (
	StepValidate  = "validate"
	StepAllocate  = "allocate"
	StepSubmit    = "submit"
	StepSeal      = "seal"
	StepReconcile = "reconcile"
)

// BuildError reports which step of Build failed. ObjectID is the pending
// identifier when one had been allocated, InvalidObjectID otherwise.
type BuildError struct {
	TypeTag  string
	ObjectID ObjectID
	Step     string
	Err      error
}

func (e *BuildError) Error() string {
	if e.ObjectID.IsValid() {
		return fmt.Sprintf("build %s failed at %s for object %s: %v", e.TypeTag, e.Step, e.ObjectID, e.Err)
	}
	return fmt.Sprintf("build %s failed at %s: %v", e.TypeTag, e.Step, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// Ambiguous reports whether the failure leaves the server-side outcome unknown:
// a transport failure after the document was handed to the service.
func (e *BuildError) Ambiguous() bool {
	return (e.Step == StepSubmit || e.Step == StepSeal) && errors.Is(e.Err, ErrConnectionFailure)
}

// ObjectError represents an error related to an operation on one object
type ObjectError struct {
	ObjectID ObjectID
	Op       string
	Err      error
}

func (e *ObjectError) Error() string {
	return fmt.Sprintf("object operation %s failed for object %s: %v", e.Op, e.ObjectID, e.Err)
}

func (e *ObjectError) Unwrap() error {
	return e.Err
}

// DanglingReferenceError names the reference that failed the seal check.
type DanglingReferenceError struct {
	Reference ObjectID
	Status    ObjectStatus
}

func (e *DanglingReferenceError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("%v: %s does not exist", ErrDanglingReference, e.Reference)
	}
	return fmt.Sprintf("%v: %s is %s", ErrDanglingReference, e.Reference, e.Status)
}

func (e *DanglingReferenceError) Unwrap() error {
	return ErrDanglingReference
}

// StorageError represents an error related to snapshot storage operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
