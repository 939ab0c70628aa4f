package record

import (
	"fmt"

	"github.com/cinderdb/cinderdb/internal/common"
)

// Row is one tuple's in-memory form: an RID (set once the row lands in a
// table heap) plus one Field per schema column, grounded on
// original_source/src/record/row.cpp.
type Row struct {
	RID    common.RowID
	Fields []*Field
}

func NewRow(fields []*Field) *Row { return &Row{RID: common.InvalidRowID, Fields: fields} }

// GetSerializedSize matches original_source's rid (8 bytes) + one null byte
// per column + each non-null field's own serialized size.
func (r *Row) GetSerializedSize(schema *Schema) uint32 {
	size := uint32(8) + uint32(len(r.Fields))
	for i := uint32(0); i < schema.ColumnCount(); i++ {
		if r.Fields[i].IsNull() {
			continue
		}
		size += r.Fields[i].GetSerializedSize()
	}
	return size
}

func (r *Row) SerializeTo(buf []byte, schema *Schema) (uint32, error) {
	if schema.ColumnCount() != uint32(len(r.Fields)) {
		return 0, fmt.Errorf("record: row has %d fields, schema has %d columns", len(r.Fields), schema.ColumnCount())
	}
	off := 0
	le.PutUint32(buf[off:], uint32(r.RID.PageID))
	off += 4
	le.PutUint32(buf[off:], r.RID.SlotNum)
	off += 4

	for _, f := range r.Fields {
		if f.IsNull() {
			buf[off] = 1
		} else {
			buf[off] = 0
		}
		off++
	}
	for i := uint32(0); i < schema.ColumnCount(); i++ {
		if r.Fields[i].IsNull() {
			continue
		}
		off += int(r.Fields[i].SerializeTo(buf[off:]))
	}
	return uint32(off), nil
}

// DeserializeFromRow reads a Row against schema, mirroring
// original_source's Row::DeserializeFrom(buf, schema).
func DeserializeFromRow(buf []byte, schema *Schema) (*Row, uint32, error) {
	off := 0
	pageID := common.PageID(le.Uint32(buf[off:]))
	off += 4
	slotNum := le.Uint32(buf[off:])
	off += 4

	count := int(schema.ColumnCount())
	nulls := make([]bool, count)
	for i := 0; i < count; i++ {
		nulls[i] = buf[off] != 0
		off++
	}
	fields := make([]*Field, count)
	for i := 0; i < count; i++ {
		f, n, err := DeserializeFromField(buf[off:], schema.GetColumn(uint32(i)).Type, nulls[i])
		if err != nil {
			return nil, 0, err
		}
		off += int(n)
		fields[i] = f
	}
	return &Row{RID: common.RowID{PageID: pageID, SlotNum: slotNum}, Fields: fields}, uint32(off), nil
}

// GetKeyFromRow projects this row onto keySchema's columns (looked up by
// name against schema), the glue the B+-tree index uses to derive an index
// key from a freshly inserted table row.
func (r *Row) GetKeyFromRow(schema, keySchema *Schema) (*Row, error) {
	fields := make([]*Field, 0, keySchema.ColumnCount())
	for _, col := range keySchema.Columns {
		idx, ok := schema.GetColumnIndex(col.Name)
		if !ok {
			return nil, fmt.Errorf("record: key column %q not found in schema", col.Name)
		}
		fields = append(fields, r.Fields[idx])
	}
	return &Row{RID: r.RID, Fields: fields}, nil
}
