// Package record implements the column/schema/row model (spec §4.5/§6),
// grounded on original_source/src/record/{column,schema,row}.cpp. Column and
// Schema encodings begin with a magic number and deserialize without any
// external type information. Row and Field encodings carry no magic number:
// a Row is decoded against its Schema and a Field against its column's type.
package record

// TypeID mirrors original_source's TypeId enum (kTypeInvalid/kTypeInt/
// kTypeFloat/kTypeChar), generalized to exported Go constants.
type TypeID uint32

const (
	TypeInvalid TypeID = iota
	TypeInteger
	TypeFloat
	TypeVarchar
)

func (t TypeID) String() string {
	switch t {
	case TypeInteger:
		return "INTEGER"
	case TypeFloat:
		return "FLOAT"
	case TypeVarchar:
		return "VARCHAR"
	default:
		return "INVALID"
	}
}

// FixedLen returns the on-disk width of a fixed-width type, and false for
// TypeVarchar (whose length is column-defined).
func (t TypeID) FixedLen() (uint32, bool) {
	switch t {
	case TypeInteger:
		return 4, true
	case TypeFloat:
		return 4, true
	default:
		return 0, false
	}
}
