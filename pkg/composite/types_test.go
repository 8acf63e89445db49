package composite_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-composite/pkg/composite"
)

func sampleDocument() *composite.Document {
	return &composite.Document{
		ID:      7,
		TypeTag: composite.ParallelStreamTypeTag,
		Members: []composite.ObjectID{10, 11, 10},
		Fields: map[string]composite.Value{
			"label":  composite.StringValue("logs"),
			"index":  composite.RefValue(12),
			"alias":  composite.RefValue(11),
			"shards": composite.IntValue(3),
		},
	}
}

func TestDocument_FlatKeys(t *testing.T) {
	doc := sampleDocument()

	v, ok := doc.Get(composite.KeyTypeTag)
	require.True(t, ok)
	assert.Equal(t, composite.StringValue("parallel_stream"), v)

	v, ok = doc.Get(composite.KeyMemberCount)
	require.True(t, ok)
	assert.Equal(t, int64(3), v.Integer)

	v, ok = doc.Get(composite.MemberKey(1))
	require.True(t, ok)
	assert.Equal(t, composite.RefValue(11), v)

	_, ok = doc.Get(composite.MemberKey(3))
	assert.False(t, ok)

	v, ok = doc.Get("label")
	require.True(t, ok)
	assert.Equal(t, "logs", v.String())

	_, ok = doc.Get("missing")
	assert.False(t, ok)
}

func TestDocument_References(t *testing.T) {
	// Members first in order, then ref fields by name; repeats dropped.
	assert.Equal(t, []composite.ObjectID{10, 11, 12}, sampleDocument().References())
}

func TestDocument_Clone(t *testing.T) {
	doc := sampleDocument()
	c := doc.Clone()
	c.Members[0] = 99
	c.Fields["label"] = composite.StringValue("changed")

	assert.Equal(t, composite.ObjectID(10), doc.Members[0])
	assert.Equal(t, "logs", doc.Fields["label"].Text)
}

func TestDocument_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*composite.Document)
		wantErr error
	}{
		{"valid", func(*composite.Document) {}, nil},
		{"no type tag", func(d *composite.Document) { d.TypeTag = " " }, composite.ErrInvalidDocument},
		{"invalid member", func(d *composite.Document) { d.Members[1] = composite.InvalidObjectID }, composite.ErrInvalidDocument},
		{"reserved field", func(d *composite.Document) { d.Fields["member_count"] = composite.IntValue(1) }, composite.ErrReservedField},
		{"member key field", func(d *composite.Document) { d.Fields["member_0"] = composite.IntValue(1) }, composite.ErrReservedField},
		{"unknown kind", func(d *composite.Document) { d.Fields["x"] = composite.Value{Kind: "float"} }, composite.ErrInvalidDocument},
		{"invalid ref", func(d *composite.Document) { d.Fields["x"] = composite.RefValue(composite.InvalidObjectID) }, composite.ErrInvalidDocument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := sampleDocument()
			tt.mutate(doc)
			err := doc.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestIsReservedField(t *testing.T) {
	assert.True(t, composite.IsReservedField("type_tag"))
	assert.True(t, composite.IsReservedField("member_count"))
	assert.True(t, composite.IsReservedField("member_12"))
	assert.False(t, composite.IsReservedField("member_x"))
	assert.False(t, composite.IsReservedField("member_+1"))
	assert.False(t, composite.IsReservedField("member_01"))
	assert.False(t, composite.IsReservedField("member_"))
	assert.True(t, composite.IsReservedField("member_0"))
	assert.False(t, composite.IsReservedField("members"))
}

func TestObjectStatus_IsValid(t *testing.T) {
	assert.True(t, composite.ObjectStatusSealed.IsValid())
	assert.False(t, composite.ObjectStatus("uploaded").IsValid())
}
