package composite

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ObjectStatus is the domain type for object lifecycle states.
type ObjectStatus string

// Object status constants (typed).
const (
	// ObjectStatusReserved: identifier allocated, no document submitted yet.
	ObjectStatusReserved ObjectStatus = "reserved"
	// ObjectStatusPending: document submitted, under construction, invisible to other clients.
	ObjectStatusPending ObjectStatus = "pending"
	// ObjectStatusSealed: published, immutable and visible store-wide.
	ObjectStatusSealed ObjectStatus = "sealed"
	// ObjectStatusDeleted: tombstone; the identifier is never handed out again.
	ObjectStatusDeleted ObjectStatus = "deleted"
)

// IsValid reports whether s is a known status.
func (s ObjectStatus) IsValid() bool {
	switch s {
	case ObjectStatusReserved, ObjectStatusPending, ObjectStatusSealed, ObjectStatusDeleted:
		return true
	}
	return false
}

// Well-known document keys. Scalar fields may not use them.
const (
	KeyTypeTag     = "type_tag"
	KeyMemberCount = "member_count"
	keyMemberPfx   = "member_"
)

// MemberKey returns the flat key of member i ("member_<i>").
func MemberKey(i int) string {
	return keyMemberPfx + strconv.Itoa(i)
}

// ValueKind tags the variant held by a Value.
type ValueKind string

const (
	ValueInt    ValueKind = "int"
	ValueString ValueKind = "string"
	ValueBool   ValueKind = "bool"
	ValueRef    ValueKind = "ref"
)

// Value is a scalar field value or a reference to another object.
type Value struct {
	Kind    ValueKind `json:"kind" cbor:"kind"`
	Integer int64     `json:"int,omitempty" cbor:"int,omitempty"`
	Text    string    `json:"str,omitempty" cbor:"str,omitempty"`
	Flag    bool      `json:"bool,omitempty" cbor:"bool,omitempty"`
	Ref     ObjectID  `json:"ref,omitempty" cbor:"ref,omitempty"`
}

func IntValue(v int64) Value     { return Value{Kind: ValueInt, Integer: v} }
func StringValue(v string) Value { return Value{Kind: ValueString, Text: v} }
func BoolValue(v bool) Value     { return Value{Kind: ValueBool, Flag: v} }
func RefValue(id ObjectID) Value { return Value{Kind: ValueRef, Ref: id} }

// IsRef reports whether the value references another object.
func (v Value) IsRef() bool {
	return v.Kind == ValueRef
}

func (v Value) String() string {
	switch v.Kind {
	case ValueInt:
		return strconv.FormatInt(v.Integer, 10)
	case ValueString:
		return v.Text
	case ValueBool:
		return strconv.FormatBool(v.Flag)
	case ValueRef:
		return v.Ref.String()
	default:
		return ""
	}
}

func (v Value) validate() error {
	switch v.Kind {
	case ValueInt, ValueString, ValueBool:
		return nil
	case ValueRef:
		if !v.Ref.IsValid() {
			return fmt.Errorf("%w: reference to invalid object id", ErrInvalidDocument)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown value kind %q", ErrInvalidDocument, v.Kind)
	}
}

// Document is the metadata record of one object: a type tag, the ordered
// member references and scalar fields. The remaining fields are stamped by
// the metadata service.
type Document struct {
	ID      ObjectID         `json:"id" cbor:"id"`
	TypeTag string           `json:"type_tag" cbor:"type_tag"`
	Members []ObjectID       `json:"members" cbor:"members"`
	Fields  map[string]Value `json:"fields,omitempty" cbor:"fields,omitempty"`

	Status     ObjectStatus `json:"status,omitempty" cbor:"status,omitempty"`
	InstanceID uint64       `json:"instance_id" cbor:"instance_id"`
	NBytes     uint64       `json:"nbytes" cbor:"nbytes"`
	Signature  Signature    `json:"signature" cbor:"signature"`
	Persistent bool         `json:"persistent" cbor:"persistent"`
	Owner      uuid.UUID    `json:"owner" cbor:"owner"`
	CreatedAt  time.Time    `json:"created_at" cbor:"created_at"`
	SealedAt   *time.Time   `json:"sealed_at,omitempty" cbor:"sealed_at,omitempty"`
}

// MemberCount returns the number of member references.
func (d *Document) MemberCount() int {
	return len(d.Members)
}

// Member returns member i.
func (d *Document) Member(i int) (ObjectID, bool) {
	if i < 0 || i >= len(d.Members) {
		return InvalidObjectID, false
	}
	return d.Members[i], true
}

// Get reads the document as a flat key/value record: "type_tag",
// "member_count", "member_<i>" and scalar fields.
func (d *Document) Get(key string) (Value, bool) {
	switch key {
	case KeyTypeTag:
		return StringValue(d.TypeTag), true
	case KeyMemberCount:
		return IntValue(int64(len(d.Members))), true
	}
	if i, ok := memberIndex(key); ok {
		id, ok := d.Member(i)
		if !ok {
			return Value{}, false
		}
		return RefValue(id), true
	}
	v, ok := d.Fields[key]
	return v, ok
}

// References returns every object the document points at: members in order,
// then reference-valued fields sorted by field name. Duplicates are kept out.
func (d *Document) References() []ObjectID {
	seen := make(map[ObjectID]struct{}, len(d.Members))
	refs := make([]ObjectID, 0, len(d.Members))
	for _, id := range d.Members {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		refs = append(refs, id)
	}
	for _, name := range sortedFieldNames(d.Fields) {
		v := d.Fields[name]
		if !v.IsRef() {
			continue
		}
		if _, ok := seen[v.Ref]; ok {
			continue
		}
		seen[v.Ref] = struct{}{}
		refs = append(refs, v.Ref)
	}
	return refs
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	c := *d
	if d.Members != nil {
		c.Members = append([]ObjectID(nil), d.Members...)
	}
	if d.Fields != nil {
		c.Fields = make(map[string]Value, len(d.Fields))
		for k, v := range d.Fields {
			c.Fields[k] = v
		}
	}
	if d.SealedAt != nil {
		t := *d.SealedAt
		c.SealedAt = &t
	}
	return &c
}

// Validate checks the caller-supplied part of the document.
func (d *Document) Validate() error {
	if strings.TrimSpace(d.TypeTag) == "" {
		return fmt.Errorf("%w: type tag is required", ErrInvalidDocument)
	}
	for i, id := range d.Members {
		if !id.IsValid() {
			return fmt.Errorf("%w: member %d is not a valid object id", ErrInvalidDocument, i)
		}
	}
	for name, v := range d.Fields {
		if IsReservedField(name) {
			return fmt.Errorf("%w: %q", ErrReservedField, name)
		}
		if err := v.validate(); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
	}
	return nil
}

// IsReservedField reports whether name is owned by the document layout.
func IsReservedField(name string) bool {
	if name == KeyTypeTag || name == KeyMemberCount {
		return true
	}
	_, ok := memberIndex(name)
	return ok
}

func memberIndex(key string) (int, bool) {
	if !strings.HasPrefix(key, keyMemberPfx) {
		return 0, false
	}
	suffix := key[len(keyMemberPfx):]
	i, err := strconv.Atoi(suffix)
	if err != nil || i < 0 || strconv.Itoa(i) != suffix {
		return 0, false
	}
	return i, true
}

func sortedFieldNames(fields map[string]Value) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DeleteOptions controls Delete.
type DeleteOptions struct {
	// Force deletes the object even while live composites reference it; those
	// referrers are deleted too.
	Force bool
	// Deep also deletes members that are left without live referrers.
	Deep bool
}

// ListOptions filters sealed documents by type tag.
type ListOptions struct {
	Pattern string // glob (path.Match) unless Regex is set
	Regex   bool
	Limit   int
}
