// Package index implements the B+-tree index over (key, RowId) pairs
// (spec §4.7), grounded on original_source/src/index/b_plus_tree.cpp and
// the page layouts in internal/page.
package index

import (
	"bytes"
	"fmt"

	"github.com/cinderdb/cinderdb/internal/record"
)

// KeyManager serializes/compares index keys, the role original_source's
// KeyManager + GenericKey + BasicComparator play together. Every key column
// is packed into a fixed-width slot: INTEGER/FLOAT use their natural
// 4-byte width, and a VARCHAR column (spec §8's CHAR(4) UNIQUE index) uses
// its declared column Length, zero-padded the way original_source's
// GenericKey — itself a fixed-size byte array — packs a CharField; a value
// longer than that Length is rejected with an error, not truncated. A
// VARCHAR column with no declared length is rejected: there's no fixed
// width to allocate.
type KeyManager struct {
	schema  *record.Schema
	widths  []uint32
	keySize uint32
}

func NewKeyManager(keySchema *record.Schema) (*KeyManager, error) {
	widths := make([]uint32, len(keySchema.Columns))
	var size uint32
	for i, c := range keySchema.Columns {
		w, ok := c.Type.FixedLen()
		if !ok {
			if c.Type != record.TypeVarchar || c.Length == 0 {
				return nil, fmt.Errorf("index: key column %q has no fixed width, index keys must be fixed-width", c.Name)
			}
			w = c.Length
		}
		widths[i] = w
		size += w
	}
	return &KeyManager{schema: keySchema, widths: widths, keySize: size}, nil
}

func (km *KeyManager) KeySize() uint32 { return km.keySize }

func (km *KeyManager) Schema() *record.Schema { return km.schema }

// SerializeKey packs row's fields (assumed already projected onto the key
// schema via record.Row.GetKeyFromRow) into a fixed-width byte key.
func (km *KeyManager) SerializeKey(row *record.Row) ([]byte, error) {
	buf := make([]byte, km.keySize)
	off := uint32(0)
	for i, col := range km.schema.Columns {
		f := row.Fields[i]
		if f.IsNull() {
			return nil, fmt.Errorf("index: key column %q must not be null", col.Name)
		}
		w := km.widths[i]
		if col.Type == record.TypeVarchar {
			s := f.AsVarchar()
			if uint32(len(s)) > w {
				return nil, fmt.Errorf("index: value %q exceeds key column %q width %d", s, col.Name, w)
			}
			copy(buf[off:off+w], s)
		} else {
			f.SerializeTo(buf[off : off+w])
		}
		off += w
	}
	return buf, nil
}

// DeserializeKey reconstructs a Row of key fields from a raw index key.
func (km *KeyManager) DeserializeKey(buf []byte) (*record.Row, error) {
	fields := make([]*record.Field, len(km.schema.Columns))
	off := uint32(0)
	for i, col := range km.schema.Columns {
		w := km.widths[i]
		if col.Type == record.TypeVarchar {
			raw := bytes.TrimRight(buf[off:off+w], "\x00")
			fields[i] = record.NewVarcharField(string(raw))
		} else {
			f, _, err := record.DeserializeFromField(buf[off:off+w], col.Type, false)
			if err != nil {
				return nil, err
			}
			fields[i] = f
		}
		off += w
	}
	return record.NewRow(fields), nil
}

// Compare orders two raw keys field by field, the comparator the tree uses
// for every Search/Insert/Delete descent. VARCHAR columns compare their
// zero-padded bytes directly rather than round-tripping through Field,
// since a key never carries the length prefix record.Field.SerializeTo
// would otherwise expect.
func (km *KeyManager) Compare(a, b []byte) int {
	off := uint32(0)
	for i, col := range km.schema.Columns {
		w := km.widths[i]
		if col.Type == record.TypeVarchar {
			if c := bytes.Compare(a[off:off+w], b[off:off+w]); c != 0 {
				return c
			}
		} else {
			fa, _, _ := record.DeserializeFromField(a[off:off+w], col.Type, false)
			fb, _, _ := record.DeserializeFromField(b[off:off+w], col.Type, false)
			if c := fa.CompareTo(fb); c != 0 {
				return c
			}
		}
		off += w
	}
	return 0
}
