package metadata

import (
	"fmt"
	"strings"
)

// ColumnType enumerates the SQL data types the engine generates and
// discovers. The names match the SQL spelling used in statements.
type ColumnType int

const (
	TypeInt ColumnType = iota
	TypeReal
	TypeChar
	TypeVarchar
	TypeText
	TypeBytea
	TypeBool
)

// AllColumnTypes lists every ColumnType, for uniform random selection.
var AllColumnTypes = []ColumnType{
	TypeInt, TypeReal, TypeChar, TypeVarchar, TypeText, TypeBytea, TypeBool,
}

func (t ColumnType) String() string {
	switch t {
	case TypeInt:
		return "INT"
	case TypeReal:
		return "REAL"
	case TypeChar:
		return "CHAR"
	case TypeVarchar:
		return "VARCHAR"
	case TypeText:
		return "TEXT"
	case TypeBytea:
		return "BYTEA"
	case TypeBool:
		return "BOOL"
	}
	return "TEXT"
}

// Generated marks server-computed columns.
type Generated int

const (
	NotGenerated Generated = iota
	GeneratedStored
	GeneratedVirtual
)

// IndexOrdering is the per-field sort direction within an index.
type IndexOrdering int

const (
	OrderingDefault IndexOrdering = iota
	OrderingAsc
	OrderingDesc
)

// Column describes a single table column. Equality is field-wise; the
// struct is kept comparable on purpose.
type Column struct {
	Name                 string
	Type                 ColumnType
	Length               int
	Nullable             bool
	PrimaryKey           bool
	AutoIncrement        bool
	PartitionKey         bool
	ForeignKeyReferences string
	DefaultValue         string
	Generated            Generated
}

// IndexColumn is one field of an index. Field order within an index is
// significant.
type IndexColumn struct {
	ColumnName string
	Ordering   IndexOrdering
}

// Index is a named secondary index over an ordered field list.
type Index struct {
	Name   string
	Unique bool
	Fields []IndexColumn
}

// Equal reports whether two indexes match: name, uniqueness and the ordered
// field list.
func (i Index) Equal(other Index) bool {
	if i.Name != other.Name || i.Unique != other.Unique ||
		len(i.Fields) != len(other.Fields) {
		return false
	}
	for k := range i.Fields {
		if i.Fields[k] != other.Fields[k] {
			return false
		}
	}
	return true
}

// RangePartition identifies one range partition by its base; the covered
// interval is [RangeBase*rangeSize, (RangeBase+1)*rangeSize).
type RangePartition struct {
	RangeBase uint64
}

// DefaultRangeSize is the width of one range partition.
const DefaultRangeSize = 10_000_000

// RangePartitioning is the range-partition layout of a partitioned table.
type RangePartitioning struct {
	RangeSize uint64
	Ranges    []RangePartition
}

// Equal compares size and the ordered range list.
func (p *RangePartitioning) Equal(other *RangePartitioning) bool {
	if p == nil || other == nil {
		return p == other
	}
	if p.RangeSize != other.RangeSize || len(p.Ranges) != len(other.Ranges) {
		return false
	}
	for i := range p.Ranges {
		if p.Ranges[i] != other.Ranges[i] {
			return false
		}
	}
	return true
}

func (p *RangePartitioning) clone() *RangePartitioning {
	if p == nil {
		return nil
	}
	c := &RangePartitioning{RangeSize: p.RangeSize}
	c.Ranges = append(c.Ranges, p.Ranges...)
	return c
}

// TableType separates plain heap tables from range-partitioned parents.
type TableType int

const (
	TableNormal TableType = iota
	TablePartitioned
)

// Table is the client-side model of one database table.
type Table struct {
	Name         string
	Engine       string
	Tablespace   string
	Partitioning *RangePartitioning
	Type         TableType
	Columns      []Column
	Indexes      []Index
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	c := &Table{
		Name:         t.Name,
		Engine:       t.Engine,
		Tablespace:   t.Tablespace,
		Partitioning: t.Partitioning.clone(),
		Type:         t.Type,
	}
	c.Columns = append(c.Columns, t.Columns...)
	for _, idx := range t.Indexes {
		ci := Index{Name: idx.Name, Unique: idx.Unique}
		ci.Fields = append(ci.Fields, idx.Fields...)
		c.Indexes = append(c.Indexes, ci)
	}
	return c
}

// Equal compares two tables. Column and index order is irrelevant (multiset
// comparison), but the field order inside each index still matters.
func (t *Table) Equal(other *Table) bool {
	if t == nil || other == nil {
		return t == other
	}
	if t.Name != other.Name || t.Engine != other.Engine ||
		t.Tablespace != other.Tablespace ||
		!t.Partitioning.Equal(other.Partitioning) ||
		len(t.Columns) != len(other.Columns) ||
		len(t.Indexes) != len(other.Indexes) {
		return false
	}
	for _, col := range t.Columns {
		found := false
		for _, o := range other.Columns {
			if col == o {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, idx := range t.Indexes {
		found := false
		for _, o := range other.Indexes {
			if idx.Equal(o) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// HasReferenceTo reports whether any column references the named table.
func (t *Table) HasReferenceTo(tableName string) bool {
	for i := range t.Columns {
		if t.Columns[i].ForeignKeyReferences == tableName {
			return true
		}
	}
	return false
}

// RemoveReferencesTo clears foreign key references to the named table.
func (t *Table) RemoveReferencesTo(tableName string) {
	t.UpdateReferencesTo(tableName, "")
}

// UpdateReferencesTo rewrites foreign key references from one table name to
// another.
func (t *Table) UpdateReferencesTo(oldName, newName string) {
	for i := range t.Columns {
		if t.Columns[i].ForeignKeyReferences == oldName {
			t.Columns[i].ForeignKeyReferences = newName
		}
	}
}

// DebugString renders the column for catalog dumps.
func (c Column) DebugString() string {
	typeStr := c.Type.String()
	if c.Length > 0 {
		typeStr = fmt.Sprintf("%s(%d)", typeStr, c.Length)
	}

	var attrs []string
	if c.PrimaryKey {
		attrs = append(attrs, "PRIMARY KEY")
	}
	if c.AutoIncrement {
		attrs = append(attrs, "AUTO_INCREMENT")
	}
	if !c.Nullable {
		attrs = append(attrs, "NOT NULL")
	}
	if c.PartitionKey {
		attrs = append(attrs, "PARTITION KEY")
	}
	if c.ForeignKeyReferences != "" {
		attrs = append(attrs, "REFERENCES "+c.ForeignKeyReferences)
	}
	if c.DefaultValue != "" {
		attrs = append(attrs, fmt.Sprintf("DEFAULT '%s'", c.DefaultValue))
	}
	if c.Generated != NotGenerated {
		kind := "VIRTUAL"
		if c.Generated == GeneratedStored {
			kind = "STORED"
		}
		attrs = append(attrs, "GENERATED "+kind)
	}

	out := fmt.Sprintf("%s %s", c.Name, typeStr)
	if len(attrs) > 0 {
		out += " " + strings.Join(attrs, " ")
	}
	return out
}

// DebugString renders the index for catalog dumps.
func (i Index) DebugString() string {
	fields := make([]string, 0, len(i.Fields))
	for _, f := range i.Fields {
		s := f.ColumnName
		switch f.Ordering {
		case OrderingAsc:
			s += " ASC"
		case OrderingDesc:
			s += " DESC"
		}
		fields = append(fields, s)
	}
	unique := ""
	if i.Unique {
		unique = " UNIQUE"
	}
	return fmt.Sprintf("%s%s (%s)", i.Name, unique, strings.Join(fields, ", "))
}

// DebugString renders the whole table for catalog dumps.
func (t *Table) DebugString() string {
	var lines []string

	lines = append(lines, "Table: "+t.Name)
	lines = append(lines, "  Engine: "+t.Engine)
	if t.Tablespace != "" {
		lines = append(lines, "  Tablespace: "+t.Tablespace)
	}

	if t.Partitioning != nil {
		lines = append(lines, fmt.Sprintf("  Partitioning: range (size=%d, %d ranges)",
			t.Partitioning.RangeSize, len(t.Partitioning.Ranges)))
		for _, r := range t.Partitioning.Ranges {
			lines = append(lines, fmt.Sprintf("    Range: base=%d", r.RangeBase))
		}
	}

	lines = append(lines, fmt.Sprintf("  Columns (%d):", len(t.Columns)))
	for _, col := range t.Columns {
		lines = append(lines, "    "+col.DebugString())
	}

	if len(t.Indexes) > 0 {
		lines = append(lines, fmt.Sprintf("  Indexes (%d):", len(t.Indexes)))
		for _, idx := range t.Indexes {
			lines = append(lines, "    "+idx.DebugString())
		}
	}

	return strings.Join(lines, "\n")
}
