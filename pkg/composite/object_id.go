package composite

import (
	"fmt"
	"strconv"
	"strings"
)

// ObjectID is an opaque, fixed-width handle for a metadata entry in the store.
type ObjectID uint64

// InvalidObjectID is never allocated and marks "no object".
const InvalidObjectID ObjectID = ^ObjectID(0)

// IsValid reports whether id may refer to an object.
func (id ObjectID) IsValid() bool {
	return id != InvalidObjectID
}

// String renders the identifier as "o" followed by 16 hex digits.
func (id ObjectID) String() string {
	return fmt.Sprintf("o%016x", uint64(id))
}

// ParseObjectID parses the textual form produced by String.
func ParseObjectID(s string) (ObjectID, error) {
	if len(s) < 2 || s[0] != 'o' {
		return InvalidObjectID, fmt.Errorf("%w: %q", ErrInvalidObjectID, s)
	}
	v, err := strconv.ParseUint(strings.ToLower(s[1:]), 16, 64)
	if err != nil {
		return InvalidObjectID, fmt.Errorf("%w: %q", ErrInvalidObjectID, s)
	}
	if ObjectID(v) == InvalidObjectID {
		return InvalidObjectID, fmt.Errorf("%w: %q is reserved", ErrInvalidObjectID, s)
	}
	return ObjectID(v), nil
}

// MustParseObjectID is like ParseObjectID but panics on malformed input.
func MustParseObjectID(s string) ObjectID {
	id, err := ParseObjectID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// MarshalText implements encoding.TextMarshaler.
func (id ObjectID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ObjectID) UnmarshalText(text []byte) error {
	parsed, err := ParseObjectID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
