package record_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cinderdb/cinderdb/internal/record"
)

func sampleSchema(t *testing.T) *record.Schema {
	t.Helper()
	id, err := record.NewFixedColumn("id", record.TypeInteger, 0, false, true)
	require.NoError(t, err)
	name, err := record.NewVarcharColumn("name", 32, 1, true, false)
	require.NoError(t, err)
	score, err := record.NewFixedColumn("score", record.TypeFloat, 2, true, false)
	require.NoError(t, err)
	return record.NewSchema([]*record.Column{id, name, score})
}

func TestSchema_SerializeRoundTrip(t *testing.T) {
	schema := sampleSchema(t)
	buf := make([]byte, schema.GetSerializedSize())
	n := schema.SerializeTo(buf)
	require.EqualValues(t, len(buf), n)

	got, n2, err := record.DeserializeFromSchema(buf)
	require.NoError(t, err)
	require.Equal(t, n, n2)
	require.Equal(t, schema.ColumnCount(), got.ColumnCount())
	require.Equal(t, "name", got.GetColumn(1).Name)
	require.Equal(t, record.TypeVarchar, got.GetColumn(1).Type)
	require.EqualValues(t, 32, got.GetColumn(1).Length)
}

func TestRow_SerializeRoundTripWithNulls(t *testing.T) {
	schema := sampleSchema(t)
	row := record.NewRow([]*record.Field{
		record.NewIntegerField(7),
		record.NewNullField(record.TypeVarchar),
		record.NewFloatField(3.5),
	})

	buf := make([]byte, row.GetSerializedSize(schema))
	n, err := row.SerializeTo(buf, schema)
	require.NoError(t, err)
	require.EqualValues(t, len(buf), n)

	got, n2, err := record.DeserializeFromRow(buf, schema)
	require.NoError(t, err)
	require.Equal(t, n, n2)
	require.EqualValues(t, 7, got.Fields[0].AsInteger())
	require.True(t, got.Fields[1].IsNull())
	require.InDelta(t, 3.5, got.Fields[2].AsFloat(), 0.0001)
}

func TestRow_GetKeyFromRowProjectsNamedColumns(t *testing.T) {
	schema := sampleSchema(t)
	row := record.NewRow([]*record.Field{
		record.NewIntegerField(42),
		record.NewVarcharField("alice"),
		record.NewNullField(record.TypeFloat),
	})

	idCol, err := record.NewFixedColumn("id", record.TypeInteger, 0, false, true)
	require.NoError(t, err)
	keySchema := record.NewSchema([]*record.Column{idCol})

	key, err := row.GetKeyFromRow(schema, keySchema)
	require.NoError(t, err)
	require.Len(t, key.Fields, 1)
	require.EqualValues(t, 42, key.Fields[0].AsInteger())
}

func TestField_CompareToOrdersByType(t *testing.T) {
	a := record.NewIntegerField(1)
	b := record.NewIntegerField(2)
	require.Negative(t, a.CompareTo(b))
	require.Positive(t, b.CompareTo(a))
	require.Zero(t, a.CompareTo(record.NewIntegerField(1)))

	n := record.NewNullField(record.TypeInteger)
	require.Negative(t, n.CompareTo(a))
}
