package record

import (
	"fmt"
	"math"
)

// Field holds one cell's value, tagged by TypeID, mirroring
// original_source's Field/IntegerField/FloatField/CharField. Go has no
// lightweight subclassing for this, so a single struct with a type tag
// plays the role all three original classes shared: IsNull, SerializeTo,
// CompareTo.
type Field struct {
	Type    TypeID
	null    bool
	intVal  int32
	fltVal  float32
	strVal  string
}

func NewNullField(t TypeID) *Field { return &Field{Type: t, null: true} }

func NewIntegerField(v int32) *Field { return &Field{Type: TypeInteger, intVal: v} }

func NewFloatField(v float32) *Field { return &Field{Type: TypeFloat, fltVal: v} }

func NewVarcharField(v string) *Field { return &Field{Type: TypeVarchar, strVal: v} }

func (f *Field) IsNull() bool { return f.null }

func (f *Field) AsInteger() int32 { return f.intVal }

func (f *Field) AsFloat() float32 { return f.fltVal }

func (f *Field) AsVarchar() string { return f.strVal }

// GetSerializedSize matches original_source's per-type field sizes: ints
// and floats are fixed width, varchars are length-prefixed. Only called
// for non-null fields; Row handles the null bitmap itself.
func (f *Field) GetSerializedSize() uint32 {
	switch f.Type {
	case TypeInteger, TypeFloat:
		return 4
	case TypeVarchar:
		return 4 + uint32(len(f.strVal))
	default:
		return 0
	}
}

func (f *Field) SerializeTo(buf []byte) uint32 {
	switch f.Type {
	case TypeInteger:
		le.PutUint32(buf, uint32(f.intVal))
		return 4
	case TypeFloat:
		le.PutUint32(buf, math.Float32bits(f.fltVal))
		return 4
	case TypeVarchar:
		le.PutUint32(buf, uint32(len(f.strVal)))
		copy(buf[4:], f.strVal)
		return 4 + uint32(len(f.strVal))
	default:
		return 0
	}
}

// DeserializeFromField reads one field of the given type. isNull is
// supplied by the caller (Row owns the null bitmap), matching
// original_source's Field::DeserializeFrom(buf, type, &field, is_null)
// signature.
func DeserializeFromField(buf []byte, t TypeID, isNull bool) (*Field, uint32, error) {
	if isNull {
		return NewNullField(t), 0, nil
	}
	switch t {
	case TypeInteger:
		return NewIntegerField(int32(le.Uint32(buf))), 4, nil
	case TypeFloat:
		return NewFloatField(math.Float32frombits(le.Uint32(buf))), 4, nil
	case TypeVarchar:
		n := le.Uint32(buf)
		s := string(buf[4 : 4+n])
		return NewVarcharField(s), 4 + n, nil
	default:
		return nil, 0, fmt.Errorf("record: unsupported field type %v", t)
	}
}

// CompareTo orders two fields of the same type, the comparator the B+-tree
// index (internal/index) uses as its KeyManager. Nulls sort lowest,
// matching SQL NULLS FIRST semantics, a convention not specified by the
// original but needed for a total order over index keys.
func (f *Field) CompareTo(other *Field) int {
	if f.null && other.null {
		return 0
	}
	if f.null {
		return -1
	}
	if other.null {
		return 1
	}
	switch f.Type {
	case TypeInteger:
		switch {
		case f.intVal < other.intVal:
			return -1
		case f.intVal > other.intVal:
			return 1
		default:
			return 0
		}
	case TypeFloat:
		switch {
		case f.fltVal < other.fltVal:
			return -1
		case f.fltVal > other.fltVal:
			return 1
		default:
			return 0
		}
	case TypeVarchar:
		switch {
		case f.strVal < other.strVal:
			return -1
		case f.strVal > other.strVal:
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}
