package action

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Konsultn-Engineering/stormweaver/database"
	"github.com/Konsultn-Engineering/stormweaver/metadata"
	"github.com/Konsultn-Engineering/stormweaver/random"
)

// TableCallback receives the table a successful CreateTable produced.
type TableCallback func(*metadata.Table)

// CreateTable creates a random table, optionally range partitioned. The
// first column is always an integer primary key: a serial for normal
// tables, the partition key for partitioned ones.
type CreateTable struct {
	config          DdlConfig
	tableType       metadata.TableType
	successCallback TableCallback
}

// NewCreateTable builds the action for one table type.
func NewCreateTable(config DdlConfig, tableType metadata.TableType) *CreateTable {
	return &CreateTable{config: config, tableType: tableType}
}

// SetSuccessCallback installs a callback fired after the SQL succeeded,
// right before the catalog reservation completes.
func (a *CreateTable) SetSuccessCallback(cb TableCallback) {
	a.successCallback = cb
}

func (a *CreateTable) Execute(cat *metadata.Metadata, rnd *random.Random, conn database.Client) error {
	if cat.Size() >= a.config.MaxTableCount {
		return nil
	}

	res := cat.ReserveCreate()
	defer res.Cancel()
	if !res.Open() {
		return nil
	}

	table := res.Table()
	table.Name = fmt.Sprintf("foo%d", rnd.Between(1, 100000000))
	table.Type = a.tableType

	columnCount := rnd.Between(2, a.config.MaxColumnCount)
	for i := 0; i < columnCount; i++ {
		col := randomColumn(rnd, i == 0)
		if i == 0 && a.tableType == metadata.TablePartitioned {
			// Partitioned parents can't use a serial key across children;
			// the leading key doubles as the partition key instead.
			col.AutoIncrement = false
			col.PartitionKey = true
		}
		table.Columns = append(table.Columns, col)
	}

	if a.config.ForeignKeyPercentage > 0 && cat.Size() > 0 &&
		rnd.Between(1, 100) <= a.config.ForeignKeyPercentage {
		if ref, err := FindRandomTable(cat, rnd); err == nil {
			col := &table.Columns[1]
			col.Type = metadata.TypeInt
			col.Length = 0
			col.ForeignKeyReferences = ref.Name
		}
	}

	if a.tableType == metadata.TablePartitioned {
		partitions := rnd.Between(a.config.MinPartitionCount, a.config.MaxPartitionCount)
		rp := &metadata.RangePartitioning{RangeSize: metadata.DefaultRangeSize}
		for i := 0; i < partitions; i++ {
			rp.Ranges = append(rp.Ranges, metadata.RangePartition{RangeBase: uint64(i)})
		}
		table.Partitioning = rp
	}

	var defs, pkColumns []string
	for _, col := range table.Columns {
		if col.PrimaryKey {
			pkColumns = append(pkColumns, col.Name)
		}
		defs = append(defs, columnDefinition(col))
	}
	if len(pkColumns) > 0 {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pkColumns, ", ")))
	}

	stmt := fmt.Sprintf("CREATE TABLE %s (%s)", table.Name, strings.Join(defs, ",\n"))
	if a.tableType == metadata.TablePartitioned {
		stmt += fmt.Sprintf(" PARTITION BY RANGE (%s)", table.Columns[0].Name)
	}
	if _, err := conn.Execute(stmt + ";"); err != nil {
		return err
	}

	if table.Partitioning != nil {
		for _, r := range table.Partitioning.Ranges {
			from := r.RangeBase * table.Partitioning.RangeSize
			to := (r.RangeBase + 1) * table.Partitioning.RangeSize
			child := fmt.Sprintf(
				"CREATE TABLE %s_p%d PARTITION OF %s FOR VALUES FROM (%d) TO (%d);",
				table.Name, r.RangeBase, table.Name, from, to)
			if _, err := conn.Execute(child); err != nil {
				return err
			}
		}
	}

	if a.successCallback != nil {
		a.successCallback(table)
	}
	return res.Complete()
}

// DropTable drops a random table, then clears foreign key references to it
// in the rest of the catalog, best effort.
type DropTable struct {
	config DdlConfig
}

func NewDropTable(config DdlConfig) *DropTable {
	return &DropTable{config: config}
}

func (a *DropTable) Execute(cat *metadata.Metadata, rnd *random.Random, conn database.Client) error {
	if cat.Size() <= a.config.MinTableCount {
		return nil
	}

	idx := rnd.IntN(cat.Size())
	res := cat.ReserveDrop(idx)
	defer res.Cancel()
	if !res.Open() {
		return nil
	}

	name := res.Table().Name
	if _, err := conn.Execute(fmt.Sprintf("DROP TABLE %s CASCADE;", name)); err != nil {
		return err
	}
	if err := res.Complete(); err != nil {
		return err
	}

	updateReferences(cat, name, "")
	return nil
}

// updateReferences rewrites foreign key references across the whole
// catalog through alter reservations. Best effort: slots that empty out or
// change mid-walk are skipped.
func updateReferences(cat *metadata.Metadata, oldName, newName string) {
	for i := 0; i < cat.Size(); i++ {
		t := cat.Get(i)
		if t == nil || !t.HasReferenceTo(oldName) {
			continue
		}
		res := cat.ReserveAlter(i)
		if !res.Open() {
			continue
		}
		if !res.Table().HasReferenceTo(oldName) {
			res.Cancel()
			continue
		}
		res.Table().UpdateReferencesTo(oldName, newName)
		_ = res.Complete()
	}
}

// AlterSubcommand selects which ALTER TABLE clauses an AlterTable action
// may generate.
type AlterSubcommand int

const (
	AlterAddColumn AlterSubcommand = iota
	AlterDropColumn
	AlterChangeColumn
	AlterChangeAccessMethod
)

// AllAlterSubcommands enables every clause kind.
var AllAlterSubcommands = []AlterSubcommand{
	AlterAddColumn, AlterDropColumn, AlterChangeColumn, AlterChangeAccessMethod,
}

// AlterTable emits a single ALTER TABLE statement with one or more random
// clauses and applies the matching edits to the catalog copy atomically.
type AlterTable struct {
	config           DdlConfig
	possibleCommands []AlterSubcommand
}

func NewAlterTable(config DdlConfig, possibleCommands []AlterSubcommand) *AlterTable {
	if len(possibleCommands) == 0 {
		possibleCommands = AllAlterSubcommands
	}
	return &AlterTable{config: config, possibleCommands: possibleCommands}
}

func (a *AlterTable) Execute(cat *metadata.Metadata, rnd *random.Random, conn database.Client) error {
	if cat.Size() == 0 {
		return nil
	}

	idx := rnd.IntN(cat.Size())
	res := cat.ReserveAlter(idx)
	defer res.Cancel()
	if !res.Open() {
		return nil
	}

	table := res.Table()
	clauseCount := rnd.Between(1, a.config.MaxAlterClauses)

	var clauses []string
	var newColumns []metadata.Column
	var dropped []int
	changedAm := false

	// Columns eligible for drop/change; the leading key column stays.
	var available []int
	for i := 1; i < len(table.Columns); i++ {
		available = append(available, i)
	}

	for n := 0; n < clauseCount; n++ {
		added := false
		// Bounded retries: some subcommands can be inapplicable (nothing
		// numeric left to change, too few columns to drop).
		for tries := 0; tries < 20 && !added; tries++ {
			switch a.possibleCommands[rnd.IntN(len(a.possibleCommands))] {
			case AlterAddColumn:
				col := randomColumn(rnd, false)
				clauses = append(clauses, "ADD COLUMN "+columnDefinition(col))
				// New columns can't be modified or dropped by the same
				// statement; they join the copy at the end.
				newColumns = append(newColumns, col)
				added = true

			case AlterDropColumn:
				if len(table.Columns)-len(dropped) < 3 || len(available) < 1 {
					continue
				}
				k := rnd.IntN(len(available))
				ci := available[k]
				clauses = append(clauses, "DROP COLUMN "+table.Columns[ci].Name)
				dropped = append(dropped, ci)
				available = append(available[:k], available[k+1:]...)
				added = true

			case AlterChangeColumn:
				// Only numeric to string for now, skipping keys.
				for k := 0; k < len(available); k++ {
					col := &table.Columns[available[k]]
					if (col.Type == metadata.TypeInt || col.Type == metadata.TypeReal) &&
						!col.PrimaryKey && col.ForeignKeyReferences == "" {
						clauses = append(clauses,
							fmt.Sprintf("ALTER COLUMN %s TYPE VARCHAR(32)", col.Name))
						col.Type = metadata.TypeVarchar
						col.Length = 32
						available = append(available[:k], available[k+1:]...)
						added = true
						break
					}
				}

			case AlterChangeAccessMethod:
				if changedAm || len(a.config.AccessMethods) == 0 {
					continue
				}
				am := a.config.AccessMethods[rnd.IntN(len(a.config.AccessMethods))]
				clauses = append(clauses, "SET ACCESS METHOD "+am)
				changedAm = true
				added = true
			}
		}
		if !added {
			break
		}
	}

	if len(clauses) == 0 {
		return nil
	}

	sort.Sort(sort.Reverse(sort.IntSlice(dropped)))
	for _, ci := range dropped {
		table.Columns = append(table.Columns[:ci], table.Columns[ci+1:]...)
	}
	table.Columns = append(table.Columns, newColumns...)

	stmt := fmt.Sprintf("ALTER TABLE %s\n %s;", table.Name, strings.Join(clauses, ",\n"))
	if _, err := conn.Execute(stmt); err != nil {
		return err
	}
	return res.Complete()
}

// RenameTable renames a random table and rewrites foreign key references
// to it, best effort.
type RenameTable struct {
	config DdlConfig
}

func NewRenameTable(config DdlConfig) *RenameTable {
	return &RenameTable{config: config}
}

func (a *RenameTable) Execute(cat *metadata.Metadata, rnd *random.Random, conn database.Client) error {
	if cat.Size() == 0 {
		return nil
	}

	idx := rnd.IntN(cat.Size())
	res := cat.ReserveAlter(idx)
	defer res.Cancel()
	if !res.Open() {
		return nil
	}

	oldName := res.Table().Name
	newName := fmt.Sprintf("foo%d", rnd.Between(1, 1000000))
	res.Table().Name = newName

	if _, err := conn.Execute(fmt.Sprintf("ALTER TABLE %s RENAME TO %s;", oldName, newName)); err != nil {
		return err
	}
	if err := res.Complete(); err != nil {
		return err
	}

	updateReferences(cat, oldName, newName)
	return nil
}

// CreateIndex adds a random secondary index to a random table.
type CreateIndex struct {
	config DdlConfig
}

func NewCreateIndex(config DdlConfig) *CreateIndex {
	return &CreateIndex{config: config}
}

func (a *CreateIndex) Execute(cat *metadata.Metadata, rnd *random.Random, conn database.Client) error {
	if cat.Size() == 0 {
		return nil
	}

	idx := rnd.IntN(cat.Size())
	res := cat.ReserveAlter(idx)
	defer res.Cancel()
	if !res.Open() {
		return nil
	}

	table := res.Table()

	newIndex := metadata.Index{
		Name:   fmt.Sprintf("idx%d", rnd.Between(1, 100000000)),
		Unique: rnd.Bool(),
	}

	perm := rnd.Perm(len(table.Columns))
	maxColumns := len(table.Columns) - 1
	if maxColumns > 32 {
		maxColumns = 32
	}
	if maxColumns < 1 {
		maxColumns = 1
	}
	columnCount := rnd.Between(1, maxColumns)

	var indexColumns []string
	for i := 0; i < columnCount; i++ {
		columnName := table.Columns[perm[i]].Name
		ordering := metadata.OrderingDesc
		dir := "DESC"
		if rnd.Bool() {
			ordering = metadata.OrderingAsc
			dir = "ASC"
		}
		indexColumns = append(indexColumns, columnName+" "+dir)
		newIndex.Fields = append(newIndex.Fields, metadata.IndexColumn{
			ColumnName: columnName,
			Ordering:   ordering,
		})
	}

	unique := ""
	if newIndex.Unique {
		unique = " UNIQUE"
	}
	concurrently := ""
	if rnd.Bool() {
		concurrently = " CONCURRENTLY"
	}
	only := ""
	if rnd.Bool() {
		only = " ONLY"
	}

	table.Indexes = append(table.Indexes, newIndex)

	stmt := fmt.Sprintf("CREATE%s INDEX%s %s ON%s %s (%s);",
		unique, concurrently, newIndex.Name, only, table.Name,
		strings.Join(indexColumns, ", "))
	if _, err := conn.Execute(stmt); err != nil {
		return err
	}
	return res.Complete()
}

// DropIndex removes a random index from a table that has one, retrying a
// few draws to find such a table.
type DropIndex struct {
	config DdlConfig
}

func NewDropIndex(config DdlConfig) *DropIndex {
	return &DropIndex{config: config}
}

func (a *DropIndex) Execute(cat *metadata.Metadata, rnd *random.Random, conn database.Client) error {
	if cat.Size() == 0 {
		return nil
	}

	for tries := 0; tries < 10; tries++ {
		idx := rnd.IntN(cat.Size())
		t := cat.Get(idx)
		if t == nil || len(t.Indexes) == 0 {
			continue
		}

		res := cat.ReserveAlter(idx)
		if !res.Open() {
			continue
		}

		table := res.Table()
		if len(table.Indexes) == 0 {
			res.Cancel()
			continue
		}

		k := rnd.IntN(len(table.Indexes))
		name := table.Indexes[k].Name

		if _, err := conn.Execute(fmt.Sprintf("DROP INDEX %s;", name)); err != nil {
			res.Cancel()
			return err
		}

		table.Indexes = append(table.Indexes[:k], table.Indexes[k+1:]...)
		return res.Complete()
	}
	return nil
}

// CreatePartition adds one range partition to a partitioned table whose
// partition count is still below the configured maximum.
type CreatePartition struct {
	config DdlConfig
}

func NewCreatePartition(config DdlConfig) *CreatePartition {
	return &CreatePartition{config: config}
}

func (a *CreatePartition) Execute(cat *metadata.Metadata, rnd *random.Random, conn database.Client) error {
	if cat.Size() == 0 {
		return nil
	}

	for tries := 0; tries < 10; tries++ {
		idx := rnd.IntN(cat.Size())
		t := cat.Get(idx)
		if t == nil || t.Type != metadata.TablePartitioned || t.Partitioning == nil ||
			len(t.Partitioning.Ranges) >= a.config.MaxPartitionCount {
			continue
		}

		res := cat.ReserveAlter(idx)
		if !res.Open() {
			continue
		}

		table := res.Table()
		rp := table.Partitioning
		if rp == nil || len(rp.Ranges) >= a.config.MaxPartitionCount {
			res.Cancel()
			continue
		}

		// One past the highest live base keeps old and new ranges disjoint.
		var next uint64
		for _, r := range rp.Ranges {
			if r.RangeBase >= next {
				next = r.RangeBase + 1
			}
		}

		from := next * rp.RangeSize
		to := (next + 1) * rp.RangeSize
		stmt := fmt.Sprintf(
			"CREATE TABLE %s_p%d PARTITION OF %s FOR VALUES FROM (%d) TO (%d);",
			table.Name, next, table.Name, from, to)
		if _, err := conn.Execute(stmt); err != nil {
			res.Cancel()
			return err
		}

		rp.Ranges = append(rp.Ranges, metadata.RangePartition{RangeBase: next})
		return res.Complete()
	}
	return nil
}

// DropPartition removes one range partition from a partitioned table whose
// partition count is above the configured minimum.
type DropPartition struct {
	config DdlConfig
}

func NewDropPartition(config DdlConfig) *DropPartition {
	return &DropPartition{config: config}
}

func (a *DropPartition) Execute(cat *metadata.Metadata, rnd *random.Random, conn database.Client) error {
	if cat.Size() == 0 {
		return nil
	}

	for tries := 0; tries < 10; tries++ {
		idx := rnd.IntN(cat.Size())
		t := cat.Get(idx)
		if t == nil || t.Type != metadata.TablePartitioned || t.Partitioning == nil ||
			len(t.Partitioning.Ranges) <= a.config.MinPartitionCount {
			continue
		}

		res := cat.ReserveAlter(idx)
		if !res.Open() {
			continue
		}

		table := res.Table()
		rp := table.Partitioning
		if rp == nil || len(rp.Ranges) <= a.config.MinPartitionCount {
			res.Cancel()
			continue
		}

		k := rnd.IntN(len(rp.Ranges))
		base := rp.Ranges[k].RangeBase

		stmt := fmt.Sprintf("DROP TABLE %s_p%d;", table.Name, base)
		if _, err := conn.Execute(stmt); err != nil {
			res.Cancel()
			return err
		}

		rp.Ranges = append(rp.Ranges[:k], rp.Ranges[k+1:]...)
		return res.Complete()
	}
	return nil
}
