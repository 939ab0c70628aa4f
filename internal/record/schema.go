package record

import "fmt"

// schemaMagicNum mirrors original_source's SCHEMA_MAGIC_NUM.
const schemaMagicNum = 200715

// Schema is an ordered list of Columns describing a table's row shape,
// grounded on original_source/src/record/schema.cpp.
type Schema struct {
	Columns []*Column
}

func NewSchema(columns []*Column) *Schema { return &Schema{Columns: columns} }

func (s *Schema) ColumnCount() uint32 { return uint32(len(s.Columns)) }

func (s *Schema) GetColumn(i uint32) *Column { return s.Columns[i] }

// GetColumnIndex returns the ordinal of the named column.
func (s *Schema) GetColumnIndex(name string) (uint32, bool) {
	for i, c := range s.Columns {
		if c.Name == name {
			return uint32(i), true
		}
	}
	return 0, false
}

func (s *Schema) GetSerializedSize() uint32 {
	size := uint32(8)
	for _, c := range s.Columns {
		size += c.GetSerializedSize()
	}
	return size
}

func (s *Schema) SerializeTo(buf []byte) uint32 {
	off := 0
	le.PutUint32(buf[off:], schemaMagicNum)
	off += 4
	le.PutUint32(buf[off:], uint32(len(s.Columns)))
	off += 4
	for _, c := range s.Columns {
		off += int(c.SerializeTo(buf[off:]))
	}
	return uint32(off)
}

func DeserializeFromSchema(buf []byte) (*Schema, uint32, error) {
	off := 0
	magic := le.Uint32(buf[off:])
	off += 4
	if magic != schemaMagicNum {
		return nil, 0, fmt.Errorf("record: bad schema magic number %d", magic)
	}
	count := le.Uint32(buf[off:])
	off += 4
	columns := make([]*Column, 0, count)
	for i := uint32(0); i < count; i++ {
		col, n, err := DeserializeFromColumn(buf[off:])
		if err != nil {
			return nil, 0, err
		}
		off += int(n)
		columns = append(columns, col)
	}
	return &Schema{Columns: columns}, uint32(off), nil
}
