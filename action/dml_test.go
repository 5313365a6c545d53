package action

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Konsultn-Engineering/stormweaver/metadata"
	"github.com/Konsultn-Engineering/stormweaver/random"
)

func TestInsertDataShape(t *testing.T) {
	cat := metadata.New()
	seedTable(cat, basicTable("t0"))

	conn := &fakeClient{}
	insert := NewInsertData(DefaultDmlConfig(), 3)
	require.NoError(t, insert.Execute(cat, random.New(1), conn))

	require.Len(t, conn.queries, 1)
	stmt := conn.queries[0]

	// The serial key is left to the server.
	assert.True(t, strings.HasPrefix(stmt, "INSERT INTO t0 (num, note) VALUES "))
	// One paren group for the column list, one per row.
	assert.Equal(t, 4, strings.Count(stmt, "("))
	assert.Equal(t, 2, strings.Count(stmt, "), ("))
	assert.True(t, strings.HasSuffix(stmt, ");"))
}

func TestInsertDataHonorsLocator(t *testing.T) {
	cat := metadata.New()
	seedTable(cat, basicTable("t0"))
	target := basicTable("target")

	conn := &fakeClient{}
	insert := NewInsertDataLocated(DefaultDmlConfig(), 1,
		func() *metadata.Table { return target })
	require.NoError(t, insert.Execute(cat, random.New(2), conn))

	require.Len(t, conn.queries, 1)
	assert.True(t, strings.HasPrefix(conn.queries[0], "INSERT INTO target "))
}

func TestInsertDataNilLocatorFallsBack(t *testing.T) {
	cat := metadata.New()
	seedTable(cat, basicTable("t0"))

	conn := &fakeClient{}
	insert := NewInsertDataLocated(DefaultDmlConfig(), 1,
		func() *metadata.Table { return nil })
	require.NoError(t, insert.Execute(cat, random.New(3), conn))

	require.Len(t, conn.queries, 1)
	assert.True(t, strings.HasPrefix(conn.queries[0], "INSERT INTO t0 "))
}

func TestInsertDataEmptyCatalog(t *testing.T) {
	cat := metadata.New()
	conn := &fakeClient{}

	insert := NewInsertData(DefaultDmlConfig(), 1)
	err := insert.Execute(cat, random.New(4), conn)

	var actionErr *Error
	require.ErrorAs(t, err, &actionErr)
	assert.Equal(t, "empty-metadata", actionErr.Name)
	assert.Empty(t, conn.queries)
}

func TestGenerateValuePartitionKeyLandsInRange(t *testing.T) {
	col := metadata.Column{Name: "pk", Type: metadata.TypeInt, PartitionKey: true}
	rp := &metadata.RangePartitioning{
		RangeSize: 10,
		Ranges:    []metadata.RangePartition{{RangeBase: 5}, {RangeBase: 9}},
	}

	rnd := random.New(5)
	for i := 0; i < 1000; i++ {
		v, err := strconv.ParseUint(generateValue(col, rnd, rp), 10, 64)
		require.NoError(t, err)
		inFirst := v >= 50 && v < 60
		inSecond := v >= 90 && v < 100
		require.True(t, inFirst || inSecond, "value %d outside live ranges", v)
	}
}

func TestGenerateValuePartitionKeyWithoutRanges(t *testing.T) {
	col := metadata.Column{Name: "pk", Type: metadata.TypeInt, PartitionKey: true}
	assert.Equal(t, "0", generateValue(col, random.New(1), nil))
	assert.Equal(t, "0",
		generateValue(col, random.New(1), &metadata.RangePartitioning{RangeSize: 10}))
}

func TestGenerateValueByType(t *testing.T) {
	rnd := random.New(6)

	v := generateValue(metadata.Column{Type: metadata.TypeInt}, rnd, nil)
	n, err := strconv.Atoi(v)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
	assert.LessOrEqual(t, n, 1000000)

	v = generateValue(metadata.Column{Type: metadata.TypeVarchar, Length: 5}, rnd, nil)
	assert.True(t, strings.HasPrefix(v, "'") && strings.HasSuffix(v, "'"))
	assert.LessOrEqual(t, len(v)-2, 5)

	v = generateValue(metadata.Column{Type: metadata.TypeText}, rnd, nil)
	assert.GreaterOrEqual(t, len(v)-2, 50)
	assert.LessOrEqual(t, len(v)-2, 1000)

	v = generateValue(metadata.Column{Type: metadata.TypeBool}, rnd, nil)
	assert.Contains(t, []string{"true", "false"}, v)
}

func TestDeleteDataShape(t *testing.T) {
	cat := metadata.New()
	seedTable(cat, basicTable("t0"))

	cfg := DmlConfig{DeleteMin: 2, DeleteMax: 7}
	conn := &fakeClient{}
	del := NewDeleteData(cfg)
	require.NoError(t, del.Execute(cat, random.New(7), conn))

	require.Len(t, conn.queries, 1)
	stmt := conn.queries[0]
	assert.True(t, strings.HasPrefix(stmt,
		"DELETE FROM t0 WHERE id IN (SELECT id FROM t0 ORDER BY random() LIMIT "))

	limit, err := strconv.Atoi(strings.TrimSuffix(
		stmt[strings.LastIndex(stmt, " ")+1:], ");"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, limit, 2)
	assert.LessOrEqual(t, limit, 7)
}

func TestUpdateOneRowShape(t *testing.T) {
	cat := metadata.New()
	seedTable(cat, basicTable("t0"))

	conn := &fakeClient{}
	update := NewUpdateOneRow(DefaultDmlConfig())
	require.NoError(t, update.Execute(cat, random.New(8), conn))

	require.Len(t, conn.queries, 1)
	stmt := conn.queries[0]
	assert.True(t, strings.HasPrefix(stmt, "UPDATE t0 SET "))
	assert.Contains(t, stmt, "num = ")
	assert.Contains(t, stmt, "note = ")
	assert.NotContains(t, stmt, "id = ")
	assert.Contains(t, stmt,
		"WHERE id IN (SELECT id FROM t0 ORDER BY random() LIMIT 1);")
}

func TestCustomSqlVerbatim(t *testing.T) {
	cat := metadata.New()
	conn := &fakeClient{}

	custom := NewCustomSql(CustomConfig{}, "VACUUM;", "")
	require.NoError(t, custom.Execute(cat, random.New(9), conn))

	require.Equal(t, []string{"VACUUM;"}, conn.queries)
}

func TestCustomSqlInjectsTable(t *testing.T) {
	cat := metadata.New()
	seedTable(cat, basicTable("t0"))

	conn := &fakeClient{}
	custom := NewCustomSql(CustomConfig{}, "ANALYZE {table};", InjectTable)
	require.NoError(t, custom.Execute(cat, random.New(10), conn))

	require.Equal(t, []string{"ANALYZE t0;"}, conn.queries)
}

func TestCustomSqlInjectEmptyCatalog(t *testing.T) {
	cat := metadata.New()
	conn := &fakeClient{}

	custom := NewCustomSql(CustomConfig{}, "ANALYZE {table};", InjectTable)
	err := custom.Execute(cat, random.New(11), conn)

	var actionErr *Error
	require.ErrorAs(t, err, &actionErr)
	assert.Equal(t, "empty-metadata", actionErr.Name)
}

func TestFindRandomTableReturnsExistingTable(t *testing.T) {
	cat := metadata.New()
	seedTable(cat, basicTable("t0"))

	table, err := FindRandomTable(cat, random.New(12))
	require.NoError(t, err)
	assert.Equal(t, "t0", table.Name)
}
