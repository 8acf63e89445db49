package composite

import "fmt"

// CanSubmit checks whether a document may be stored over a record in status.
func CanSubmit(status ObjectStatus) error {
	switch status {
	case ObjectStatusReserved, ObjectStatusPending:
		return nil
	case ObjectStatusSealed:
		return fmt.Errorf("%w: sealed documents are immutable", ErrAlreadySealed)
	case ObjectStatusDeleted:
		return fmt.Errorf("%w: object has been deleted", ErrObjectNotFound)
	default:
		return fmt.Errorf("%w: unknown status %s", ErrObjectNotFound, status)
	}
}

// CanSeal checks whether a record in status may be sealed. It returns false
// with a nil error when the record is already sealed.
func CanSeal(status ObjectStatus) (bool, error) {
	switch status {
	case ObjectStatusPending:
		return true, nil
	case ObjectStatusSealed:
		return false, nil
	case ObjectStatusReserved:
		return false, fmt.Errorf("%w: no document has been submitted (status: %s)", ErrObjectNotFound, status)
	case ObjectStatusDeleted:
		return false, fmt.Errorf("%w: object has been deleted", ErrObjectNotFound)
	default:
		return false, fmt.Errorf("%w: unknown status %s", ErrObjectNotFound, status)
	}
}

// CanReference checks that ref, found in status, may be referenced by a
// document being sealed. An empty status means the reference does not exist.
func CanReference(ref ObjectID, status ObjectStatus) error {
	if status == ObjectStatusSealed {
		return nil
	}
	return &DanglingReferenceError{Reference: ref, Status: status}
}

// CanResolve checks that a record in status is visible to readers.
func CanResolve(status ObjectStatus) error {
	if status == ObjectStatusSealed {
		return nil
	}
	return fmt.Errorf("%w: object is not sealed (status: %s)", ErrObjectNotFound, status)
}
