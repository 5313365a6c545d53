package action

import (
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Konsultn-Engineering/stormweaver/database"
	"github.com/Konsultn-Engineering/stormweaver/metadata"
	"github.com/Konsultn-Engineering/stormweaver/random"
)

func TestCreateTableNormal(t *testing.T) {
	cat := metadata.New()
	conn := &fakeClient{}
	rnd := random.New(1)

	create := NewCreateTable(DefaultDdlConfig(), metadata.TableNormal)
	require.NoError(t, create.Execute(cat, rnd, conn))

	require.Equal(t, 1, cat.Size())
	table := cat.Get(0)
	require.NotNil(t, table)

	assert.True(t, strings.HasPrefix(table.Name, "foo"))
	require.GreaterOrEqual(t, len(table.Columns), 2)
	assert.LessOrEqual(t, len(table.Columns), 20)

	first := table.Columns[0]
	assert.Equal(t, metadata.TypeInt, first.Type)
	assert.True(t, first.PrimaryKey)
	assert.True(t, first.AutoIncrement)
	assert.False(t, first.Nullable)

	require.Len(t, conn.queries, 1)
	assert.Contains(t, conn.queries[0], "CREATE TABLE "+table.Name)
	assert.Contains(t, conn.queries[0], first.Name+" SERIAL")
	assert.Contains(t, conn.queries[0], "PRIMARY KEY ("+first.Name+")")
	assert.NotContains(t, conn.queries[0], "PARTITION BY")
}

func TestCreateTablePartitioned(t *testing.T) {
	cat := metadata.New()
	conn := &fakeClient{}
	rnd := random.New(2)

	create := NewCreateTable(DefaultDdlConfig(), metadata.TablePartitioned)
	require.NoError(t, create.Execute(cat, rnd, conn))

	require.Equal(t, 1, cat.Size())
	table := cat.Get(0)
	require.NotNil(t, table)
	assert.Equal(t, metadata.TablePartitioned, table.Type)

	first := table.Columns[0]
	assert.True(t, first.PartitionKey)
	assert.True(t, first.PrimaryKey)
	assert.False(t, first.AutoIncrement)

	require.NotNil(t, table.Partitioning)
	assert.Equal(t, uint64(metadata.DefaultRangeSize), table.Partitioning.RangeSize)
	partitions := len(table.Partitioning.Ranges)
	assert.GreaterOrEqual(t, partitions, 3)
	assert.LessOrEqual(t, partitions, 10)

	require.Len(t, conn.queries, 1+partitions)
	assert.Contains(t, conn.queries[0], "PARTITION BY RANGE ("+first.Name+")")
	for i, r := range table.Partitioning.Ranges {
		assert.Equal(t, uint64(i), r.RangeBase)
		child := conn.queries[1+i]
		assert.Contains(t, child,
			fmt.Sprintf("CREATE TABLE %s_p%d PARTITION OF %s", table.Name, r.RangeBase, table.Name))
		assert.Contains(t, child,
			fmt.Sprintf("FOR VALUES FROM (%d) TO (%d)",
				r.RangeBase*table.Partitioning.RangeSize,
				(r.RangeBase+1)*table.Partitioning.RangeSize))
	}
}

func TestCreateTableSkipsAtMax(t *testing.T) {
	cat := metadata.New()
	seedTable(cat, basicTable("existing"))

	cfg := DefaultDdlConfig()
	cfg.MaxTableCount = 1

	conn := &fakeClient{}
	create := NewCreateTable(cfg, metadata.TableNormal)
	require.NoError(t, create.Execute(cat, random.New(1), conn))

	assert.Equal(t, 1, cat.Size())
	assert.Empty(t, conn.queries)
}

func TestCreateTableSqlFailureLeavesCatalogUntouched(t *testing.T) {
	cat := metadata.New()
	conn := &fakeClient{respond: func(string) *database.QueryResult {
		return sqlFailure("42P07")
	}}

	create := NewCreateTable(DefaultDdlConfig(), metadata.TableNormal)
	err := create.Execute(cat, random.New(3), conn)
	require.Error(t, err)

	var sqlErr *database.SqlError
	assert.ErrorAs(t, err, &sqlErr)
	assert.Equal(t, 0, cat.Size())
}

func TestCreateTableForeignKey(t *testing.T) {
	cat := metadata.New()
	seedTable(cat, basicTable("parent"))

	cfg := DefaultDdlConfig()
	cfg.ForeignKeyPercentage = 100

	conn := &fakeClient{}
	create := NewCreateTable(cfg, metadata.TableNormal)
	require.NoError(t, create.Execute(cat, random.New(4), conn))

	require.Equal(t, 2, cat.Size())
	var created *metadata.Table
	for i := 0; i < cat.Size(); i++ {
		if tab := cat.Get(i); tab.Name != "parent" {
			created = tab
		}
	}
	require.NotNil(t, created)

	second := created.Columns[1]
	assert.Equal(t, "parent", second.ForeignKeyReferences)
	assert.Equal(t, metadata.TypeInt, second.Type)
	assert.Contains(t, conn.queries[0], "REFERENCES parent ON DELETE CASCADE")
}

func TestCreateTableSuccessCallback(t *testing.T) {
	cat := metadata.New()
	conn := &fakeClient{}

	var got *metadata.Table
	create := NewCreateTable(DefaultDdlConfig(), metadata.TableNormal)
	create.SetSuccessCallback(func(table *metadata.Table) { got = table })

	require.NoError(t, create.Execute(cat, random.New(5), conn))
	require.NotNil(t, got)
	assert.Equal(t, cat.Get(0).Name, got.Name)
}

func TestDropTable(t *testing.T) {
	cat := metadata.New()
	for i := 0; i < 4; i++ {
		tab := basicTable(fmt.Sprintf("t%d", i))
		// Each table references the next one, forming a ring.
		tab.Columns[1].ForeignKeyReferences = fmt.Sprintf("t%d", (i+1)%4)
		seedTable(cat, tab)
	}

	cfg := DefaultDdlConfig()
	cfg.MinTableCount = 0

	conn := &fakeClient{}
	drop := NewDropTable(cfg)
	require.NoError(t, drop.Execute(cat, random.New(6), conn))

	require.Equal(t, 3, cat.Size())
	require.Len(t, conn.queries, 1)
	assert.Contains(t, conn.queries[0], "DROP TABLE t")
	assert.Contains(t, conn.queries[0], "CASCADE;")

	dropped := strings.TrimSuffix(strings.TrimPrefix(conn.queries[0], "DROP TABLE "), " CASCADE;")
	for i := 0; i < cat.Size(); i++ {
		tab := cat.Get(i)
		assert.NotEqual(t, dropped, tab.Name)
		assert.False(t, tab.HasReferenceTo(dropped),
			"%s still references dropped table %s", tab.Name, dropped)
	}
}

func TestDropTableSkipsAtMin(t *testing.T) {
	cat := metadata.New()
	seedTable(cat, basicTable("only"))

	conn := &fakeClient{}
	drop := NewDropTable(DefaultDdlConfig())
	require.NoError(t, drop.Execute(cat, random.New(1), conn))

	assert.Equal(t, 1, cat.Size())
	assert.Empty(t, conn.queries)
}

func TestAlterTableAddColumns(t *testing.T) {
	cat := metadata.New()
	seedTable(cat, basicTable("t0"))

	cfg := DefaultDdlConfig()
	conn := &fakeClient{}
	alter := NewAlterTable(cfg, []AlterSubcommand{AlterAddColumn})
	require.NoError(t, alter.Execute(cat, random.New(7), conn))

	require.Len(t, conn.queries, 1)
	stmt := conn.queries[0]
	assert.True(t, strings.HasPrefix(stmt, "ALTER TABLE t0"))

	added := strings.Count(stmt, "ADD COLUMN ")
	assert.GreaterOrEqual(t, added, 1)
	assert.LessOrEqual(t, added, cfg.MaxAlterClauses)

	table := cat.Get(0)
	assert.Len(t, table.Columns, 3+added)
}

func TestAlterTableChangeColumn(t *testing.T) {
	cat := metadata.New()
	seedTable(cat, basicTable("t0"))

	conn := &fakeClient{}
	cfg := DefaultDdlConfig()
	cfg.MaxAlterClauses = 1
	alter := NewAlterTable(cfg, []AlterSubcommand{AlterChangeColumn})
	require.NoError(t, alter.Execute(cat, random.New(8), conn))

	require.Len(t, conn.queries, 1)
	assert.Contains(t, conn.queries[0], "ALTER COLUMN num TYPE VARCHAR(32)")

	table := cat.Get(0)
	assert.Equal(t, metadata.TypeVarchar, table.Columns[1].Type)
	assert.Equal(t, 32, table.Columns[1].Length)
	// The serial key stays numeric.
	assert.Equal(t, metadata.TypeInt, table.Columns[0].Type)
}

func TestAlterTableChangeColumnSkipsWithoutNumericColumns(t *testing.T) {
	cat := metadata.New()
	tab := basicTable("t0")
	tab.Columns[1].Type = metadata.TypeText
	seedTable(cat, tab)

	conn := &fakeClient{}
	alter := NewAlterTable(DefaultDdlConfig(), []AlterSubcommand{AlterChangeColumn})
	require.NoError(t, alter.Execute(cat, random.New(9), conn))

	assert.Empty(t, conn.queries)
	assert.Equal(t, metadata.TypeText, cat.Get(0).Columns[1].Type)
}

func TestAlterTableDropColumnKeepsKeyAndMinimum(t *testing.T) {
	cat := metadata.New()
	tab := basicTable("t0")
	tab.Columns = append(tab.Columns,
		metadata.Column{Name: "extra", Type: metadata.TypeBool, Nullable: true})
	seedTable(cat, tab)

	conn := &fakeClient{}
	cfg := DefaultDdlConfig()
	alter := NewAlterTable(cfg, []AlterSubcommand{AlterDropColumn})
	require.NoError(t, alter.Execute(cat, random.New(10), conn))

	table := cat.Get(0)
	// Each drop requires three columns remaining beforehand, so a
	// four-column table loses at most two, and the key survives.
	assert.GreaterOrEqual(t, len(table.Columns), 2)
	assert.Equal(t, "id", table.Columns[0].Name)
	if len(conn.queries) > 0 {
		assert.NotContains(t, conn.queries[0], "DROP COLUMN id")
	}
}

func TestAlterTableChangeAccessMethodAtMostOnce(t *testing.T) {
	cat := metadata.New()
	seedTable(cat, basicTable("t0"))

	conn := &fakeClient{}
	cfg := DefaultDdlConfig()
	cfg.MaxAlterClauses = 5
	alter := NewAlterTable(cfg, []AlterSubcommand{AlterChangeAccessMethod})
	require.NoError(t, alter.Execute(cat, random.New(11), conn))

	require.Len(t, conn.queries, 1)
	assert.Equal(t, 1, strings.Count(conn.queries[0], "SET ACCESS METHOD"))
}

func TestAlterTableSqlFailureKeepsCatalog(t *testing.T) {
	cat := metadata.New()
	seedTable(cat, basicTable("t0"))

	conn := &fakeClient{respond: func(string) *database.QueryResult {
		return sqlFailure("42703")
	}}
	alter := NewAlterTable(DefaultDdlConfig(), []AlterSubcommand{AlterAddColumn})
	require.Error(t, alter.Execute(cat, random.New(12), conn))

	assert.Len(t, cat.Get(0).Columns, 3)
}

func TestRenameTable(t *testing.T) {
	cat := metadata.New()
	seedTable(cat, basicTable("t0"))

	conn := &fakeClient{}
	rename := NewRenameTable(DefaultDdlConfig())
	require.NoError(t, rename.Execute(cat, random.New(13), conn))

	table := cat.Get(0)
	assert.NotEqual(t, "t0", table.Name)
	assert.True(t, strings.HasPrefix(table.Name, "foo"))

	require.Len(t, conn.queries, 1)
	assert.Equal(t,
		fmt.Sprintf("ALTER TABLE t0 RENAME TO %s;", table.Name),
		conn.queries[0])
}

func TestUpdateReferencesRewritesOtherTables(t *testing.T) {
	cat := metadata.New()
	seedTable(cat, basicTable("parent"))

	child := basicTable("child")
	child.Columns[1].ForeignKeyReferences = "parent"
	seedTable(cat, child)

	updateReferences(cat, "parent", "renamed")

	got := cat.Get(1)
	assert.False(t, got.HasReferenceTo("parent"))
	assert.True(t, got.HasReferenceTo("renamed"))
}

func TestCreateIndex(t *testing.T) {
	cat := metadata.New()
	seedTable(cat, basicTable("t0"))

	conn := &fakeClient{}
	create := NewCreateIndex(DefaultDdlConfig())
	require.NoError(t, create.Execute(cat, random.New(14), conn))

	table := cat.Get(0)
	require.Len(t, table.Indexes, 1)
	idx := table.Indexes[0]
	assert.True(t, strings.HasPrefix(idx.Name, "idx"))
	assert.GreaterOrEqual(t, len(idx.Fields), 1)
	assert.LessOrEqual(t, len(idx.Fields), 2)

	require.Len(t, conn.queries, 1)
	stmt := conn.queries[0]
	assert.Regexp(t, "INDEX( CONCURRENTLY)? "+regexp.QuoteMeta(idx.Name)+" ON( ONLY)? t0 \\(", stmt)
	for _, field := range idx.Fields {
		dir := "ASC"
		if field.Ordering == metadata.OrderingDesc {
			dir = "DESC"
		}
		assert.Contains(t, stmt, field.ColumnName+" "+dir)
	}
}

func TestDropIndex(t *testing.T) {
	cat := metadata.New()
	tab := basicTable("t0")
	tab.Indexes = []metadata.Index{{Name: "idx1", Fields: []metadata.IndexColumn{
		{ColumnName: "num", Ordering: metadata.OrderingAsc},
	}}}
	seedTable(cat, tab)

	conn := &fakeClient{}
	drop := NewDropIndex(DefaultDdlConfig())
	require.NoError(t, drop.Execute(cat, random.New(15), conn))

	assert.Empty(t, cat.Get(0).Indexes)
	require.Len(t, conn.queries, 1)
	assert.Equal(t, "DROP INDEX idx1;", conn.queries[0])
}

func TestDropIndexNoIndexes(t *testing.T) {
	cat := metadata.New()
	seedTable(cat, basicTable("t0"))

	conn := &fakeClient{}
	drop := NewDropIndex(DefaultDdlConfig())
	require.NoError(t, drop.Execute(cat, random.New(16), conn))

	assert.Empty(t, conn.queries)
}

func partitionedTable(name string, bases ...uint64) *metadata.Table {
	tab := &metadata.Table{
		Name: name,
		Type: metadata.TablePartitioned,
		Columns: []metadata.Column{
			{Name: "id", Type: metadata.TypeInt, PrimaryKey: true, PartitionKey: true},
			{Name: "num", Type: metadata.TypeInt, Nullable: true},
		},
		Partitioning: &metadata.RangePartitioning{RangeSize: metadata.DefaultRangeSize},
	}
	for _, base := range bases {
		tab.Partitioning.Ranges = append(tab.Partitioning.Ranges,
			metadata.RangePartition{RangeBase: base})
	}
	return tab
}

func TestCreatePartition(t *testing.T) {
	cat := metadata.New()
	seedTable(cat, partitionedTable("pt", 0, 1, 2))

	conn := &fakeClient{}
	create := NewCreatePartition(DefaultDdlConfig())
	require.NoError(t, create.Execute(cat, random.New(17), conn))

	table := cat.Get(0)
	require.Len(t, table.Partitioning.Ranges, 4)
	assert.Equal(t, uint64(3), table.Partitioning.Ranges[3].RangeBase)

	require.Len(t, conn.queries, 1)
	assert.Contains(t, conn.queries[0], "CREATE TABLE pt_p3 PARTITION OF pt")
	assert.Contains(t, conn.queries[0],
		fmt.Sprintf("FOR VALUES FROM (%d) TO (%d)",
			3*uint64(metadata.DefaultRangeSize), 4*uint64(metadata.DefaultRangeSize)))
}

func TestCreatePartitionRespectsMax(t *testing.T) {
	cat := metadata.New()
	seedTable(cat, partitionedTable("pt", 0, 1, 2))

	cfg := DefaultDdlConfig()
	cfg.MaxPartitionCount = 3

	conn := &fakeClient{}
	create := NewCreatePartition(cfg)
	require.NoError(t, create.Execute(cat, random.New(18), conn))

	assert.Len(t, cat.Get(0).Partitioning.Ranges, 3)
	assert.Empty(t, conn.queries)
}

func TestDropPartition(t *testing.T) {
	cat := metadata.New()
	seedTable(cat, partitionedTable("pt", 0, 1, 2, 3))

	conn := &fakeClient{}
	drop := NewDropPartition(DefaultDdlConfig())
	require.NoError(t, drop.Execute(cat, random.New(19), conn))

	table := cat.Get(0)
	require.Len(t, table.Partitioning.Ranges, 3)
	require.Len(t, conn.queries, 1)
	assert.Contains(t, conn.queries[0], "DROP TABLE pt_p")
}

func TestDropPartitionRespectsMin(t *testing.T) {
	cat := metadata.New()
	seedTable(cat, partitionedTable("pt", 0, 1, 2))

	conn := &fakeClient{}
	drop := NewDropPartition(DefaultDdlConfig())
	require.NoError(t, drop.Execute(cat, random.New(20), conn))

	assert.Len(t, cat.Get(0).Partitioning.Ranges, 3)
	assert.Empty(t, conn.queries)
}
