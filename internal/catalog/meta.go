package catalog

import (
	"encoding/binary"
	"fmt"

	"github.com/cinderdb/cinderdb/internal/common"
	"github.com/cinderdb/cinderdb/internal/record"
)

var le = binary.LittleEndian

// tableMetaMagic/indexMetaMagic guard each dedicated metadata page the same
// way record.Column/record.Schema guard their own encodings (spec §7:
// surface corruption rather than silently misparse).
const (
	tableMetaMagic = 0x54424C4D // "TBLM"
	indexMetaMagic = 0x49445843 // "IDXC"
)

// tableMetadata is one table's durable description (spec §6), grounded on
// original_source/src/catalog/table_metadata.h: an id, its name, the first
// page of its table heap, and the row schema.
type tableMetadata struct {
	ID          uint32
	Name        string
	FirstPageID common.PageID
	Schema      *record.Schema
}

func (m *tableMetadata) serializedSize() uint32 {
	return 4 + 4 + 4 + 4 + uint32(len(m.Name)) + m.Schema.GetSerializedSize()
}

func (m *tableMetadata) serializeTo(buf []byte) uint32 {
	off := 0
	le.PutUint32(buf[off:], tableMetaMagic)
	off += 4
	le.PutUint32(buf[off:], m.ID)
	off += 4
	le.PutUint32(buf[off:], uint32(m.FirstPageID))
	off += 4
	le.PutUint32(buf[off:], uint32(len(m.Name)))
	off += 4
	off += copy(buf[off:], m.Name)
	off += int(m.Schema.SerializeTo(buf[off:]))
	return uint32(off)
}

func deserializeTableMetadata(buf []byte) (*tableMetadata, error) {
	off := 0
	magic := le.Uint32(buf[off:])
	off += 4
	if magic != tableMetaMagic {
		return nil, fmt.Errorf("catalog: bad table metadata magic number %d", magic)
	}
	id := le.Uint32(buf[off:])
	off += 4
	firstPageID := common.PageID(int32(le.Uint32(buf[off:])))
	off += 4
	nameLen := le.Uint32(buf[off:])
	off += 4
	name := string(buf[off : off+int(nameLen)])
	off += int(nameLen)
	schema, _, err := record.DeserializeFromSchema(buf[off:])
	if err != nil {
		return nil, fmt.Errorf("catalog: table metadata %q: %w", name, err)
	}
	return &tableMetadata{ID: id, Name: name, FirstPageID: firstPageID, Schema: schema}, nil
}

// indexMetadata is one index's durable description (spec §6), grounded on
// original_source/src/catalog/indexes.h.
type indexMetadata struct {
	ID        uint32
	Name      string
	TableName string
	KeySchema *record.Schema
}

func (m *indexMetadata) serializedSize() uint32 {
	return 4 + 4 + 4 + uint32(len(m.Name)) + 4 + uint32(len(m.TableName)) + m.KeySchema.GetSerializedSize()
}

func (m *indexMetadata) serializeTo(buf []byte) uint32 {
	off := 0
	le.PutUint32(buf[off:], indexMetaMagic)
	off += 4
	le.PutUint32(buf[off:], m.ID)
	off += 4
	le.PutUint32(buf[off:], uint32(len(m.Name)))
	off += 4
	off += copy(buf[off:], m.Name)
	le.PutUint32(buf[off:], uint32(len(m.TableName)))
	off += 4
	off += copy(buf[off:], m.TableName)
	off += int(m.KeySchema.SerializeTo(buf[off:]))
	return uint32(off)
}

func deserializeIndexMetadata(buf []byte) (*indexMetadata, error) {
	off := 0
	magic := le.Uint32(buf[off:])
	off += 4
	if magic != indexMetaMagic {
		return nil, fmt.Errorf("catalog: bad index metadata magic number %d", magic)
	}
	id := le.Uint32(buf[off:])
	off += 4
	nameLen := le.Uint32(buf[off:])
	off += 4
	name := string(buf[off : off+int(nameLen)])
	off += int(nameLen)
	tableNameLen := le.Uint32(buf[off:])
	off += 4
	tableName := string(buf[off : off+int(tableNameLen)])
	off += int(tableNameLen)
	keySchema, _, err := record.DeserializeFromSchema(buf[off:])
	if err != nil {
		return nil, fmt.Errorf("catalog: index metadata %q: %w", name, err)
	}
	return &indexMetadata{ID: id, Name: name, TableName: tableName, KeySchema: keySchema}, nil
}
