package composite

import "fmt"

// ScalarTypeTag is the type tag of single-value leaf objects.
const ScalarTypeTag = "scalar"

// ScalarKind is a leaf object holding one value in its "value" field.
var ScalarKind = Kind{
	TypeTag: ScalarTypeTag,
	Assemble: func(doc *Document) error {
		if _, ok := doc.Fields["value"]; !ok {
			return fmt.Errorf("%w: scalar has no value", ErrInvalidDocument)
		}
		return nil
	},
}

// NewScalarBuilder returns a builder for a scalar holding v.
func NewScalarBuilder(v Value) *Builder {
	b := NewBuilder(ScalarKind)
	// SetField only fails on reserved names or invalid values; the latter
	// surfaces again from Build.
	_ = b.SetField("value", v)
	return b
}

// GlobalDataFrameTypeTag is the type tag of partitioned data frames.
const GlobalDataFrameTypeTag = "global_dataframe"

// Field names of a global data frame's partition grid.
const (
	FieldPartitionRows    = "partition_shape_row"
	FieldPartitionColumns = "partition_shape_column"
)

// GlobalDataFrameKind is a data frame split into a rows x columns grid of
// partitions stored row-major as members.
var GlobalDataFrameKind = Kind{
	TypeTag:    GlobalDataFrameTypeTag,
	MinMembers: 1,
	Assemble:   assembleGlobalDataFrame,
}

func assembleGlobalDataFrame(doc *Document) error {
	rows, ok := doc.Fields[FieldPartitionRows]
	if !ok || rows.Kind != ValueInt || rows.Integer <= 0 {
		return fmt.Errorf("%w: partition rows must be a positive int", ErrInvalidDocument)
	}
	cols, ok := doc.Fields[FieldPartitionColumns]
	if !ok || cols.Kind != ValueInt || cols.Integer <= 0 {
		return fmt.Errorf("%w: partition columns must be a positive int", ErrInvalidDocument)
	}
	if want := rows.Integer * cols.Integer; want != int64(len(doc.Members)) {
		return fmt.Errorf("%w: %dx%d grid needs %d partitions, has %d",
			ErrInvalidDocument, rows.Integer, cols.Integer, want, len(doc.Members))
	}
	return nil
}

// GlobalDataFrameBuilder builds a global data frame partition by partition.
type GlobalDataFrameBuilder struct {
	*Builder
}

// NewGlobalDataFrameBuilder returns a builder for a rows x cols grid.
func NewGlobalDataFrameBuilder(rows, cols int, opts ...BuilderOption) *GlobalDataFrameBuilder {
	b := NewBuilder(GlobalDataFrameKind, opts...)
	_ = b.SetField(FieldPartitionRows, IntValue(int64(rows)))
	_ = b.SetField(FieldPartitionColumns, IntValue(int64(cols)))
	return &GlobalDataFrameBuilder{Builder: b}
}

// AddPartition appends the next partition in row-major order.
func (b *GlobalDataFrameBuilder) AddPartition(id ObjectID) error {
	return b.AddMember(id)
}
