package discovery

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Konsultn-Engineering/stormweaver/database"
	"github.com/Konsultn-Engineering/stormweaver/metadata"
)

// PartitionType is the partition strategy reported by the server.
type PartitionType int

const (
	PartitionNone PartitionType = iota
	PartitionRange
	PartitionHash
	PartitionList
)

// ConstraintType classifies discovered constraints.
type ConstraintType int

const (
	ConstraintUnknown ConstraintType = iota
	ConstraintPrimaryKey
	ConstraintForeignKey
	ConstraintUnique
	ConstraintCheck
)

// DiscoveredTable is one row of the table listing read from pg_class.
type DiscoveredTable struct {
	Name          string
	TableType     metadata.TableType
	AccessMethod  string
	Tablespace    string
	IsPartition   bool
	PartitionType PartitionType
}

// DiscoveredColumn is one attribute read from pg_attribute.
type DiscoveredColumn struct {
	Name            string
	DataType        metadata.ColumnType
	Length          int
	TypeModifier    int
	NotNull         bool
	OrdinalPosition int
	IsSerial        bool
	GeneratedType   metadata.Generated
	DefaultValue    string
}

// DiscoveredIndex is one secondary index with its ordered columns.
type DiscoveredIndex struct {
	Name        string
	IsUnique    bool
	ColumnNames []string
	Orderings   []metadata.IndexOrdering
}

// DiscoveredConstraint is one table constraint.
type DiscoveredConstraint struct {
	Name              string
	Type              ConstraintType
	Columns           []string
	ReferencedTable   string
	ReferencedColumns []string
}

// DiscoveredPartition is one child partition with its raw bound expression.
type DiscoveredPartition struct {
	Name           string
	PartitionBound string
}

// Discovery reads the live schema back from the server's own catalog.
type Discovery struct {
	conn database.Client
}

// New builds a Discovery over the connection.
func New(conn database.Client) (*Discovery, error) {
	if conn == nil {
		return nil, fmt.Errorf("connection cannot be nil")
	}
	return &Discovery{conn: conn}, nil
}

func value(v *string, fallback string) string {
	if v == nil {
		return fallback
	}
	return *v
}

// DiscoverTables lists the plain and partitioned tables of the public
// schema; partition children are excluded.
func (d *Discovery) DiscoverTables() ([]DiscoveredTable, error) {
	const query = `
        SELECT
          c.relname as table_name,
          c.relkind as table_type,
          COALESCE(am.amname, 'heap') as access_method,
          COALESCE(ts.spcname, 'pg_default') as tablespace,
          c.relpartbound IS NOT NULL as is_partition,
          CASE WHEN c.relkind = 'p' THEN 'RANGE' ELSE '' END as partition_type
        FROM pg_class c
        LEFT JOIN pg_am am ON c.relam = am.oid
        LEFT JOIN pg_tablespace ts ON c.reltablespace = ts.oid
        WHERE c.relkind IN ('r', 'p')
          AND c.relnamespace = (SELECT oid FROM pg_namespace WHERE nspname = 'public')
          AND NOT c.relispartition
        ORDER BY c.relname`

	res, err := d.conn.Execute(query)
	if err != nil {
		return nil, fmt.Errorf("discover tables: %w", err)
	}

	var tables []DiscoveredTable
	if res.Data != nil {
		for i := 0; i < res.Data.NumRows(); i++ {
			row := res.Data.NextRow()
			tables = append(tables, DiscoveredTable{
				Name:          value(row.Values[0], ""),
				TableType:     parseTableType(value(row.Values[1], "")),
				AccessMethod:  value(row.Values[2], "heap"),
				Tablespace:    parseTablespace(value(row.Values[3], "pg_default")),
				IsPartition:   value(row.Values[4], "f") == "t",
				PartitionType: parsePartitionType(value(row.Values[5], "")),
			})
		}
	}
	return tables, nil
}

// DiscoverColumns lists the live attributes of a table in ordinal order.
func (d *Discovery) DiscoverColumns(tableName string) ([]DiscoveredColumn, error) {
	query := fmt.Sprintf(`
        SELECT
          a.attname as column_name,
          t.typname as data_type,
          a.attlen as length,
          a.atttypmod as type_modifier,
          a.attnotnull as not_null,
          a.attnum as ordinal_position,
          CASE WHEN pg_get_expr(ad.adbin, ad.adrelid) LIKE 'nextval%%' THEN true ELSE false END as is_serial,
          CASE WHEN a.attgenerated = 's' THEN 'stored'
               WHEN a.attgenerated = 'v' THEN 'virtual'
               ELSE 'not_generated' END as generated_type,
          COALESCE(pg_get_expr(ad.adbin, ad.adrelid), '') as default_value
        FROM pg_attribute a
        JOIN pg_type t ON a.atttypid = t.oid
        LEFT JOIN pg_attrdef ad ON a.attrelid = ad.adrelid AND a.attnum = ad.adnum
        WHERE a.attrelid = (
            SELECT c.oid FROM pg_class c
            JOIN pg_namespace n ON c.relnamespace = n.oid
            WHERE c.relname = '%s' AND n.nspname = 'public'
        )
          AND a.attnum > 0
          AND NOT a.attisdropped
        ORDER BY a.attnum`, tableName)

	res, err := d.conn.Execute(query)
	if err != nil {
		return nil, fmt.Errorf("discover columns for %s: %w", tableName, err)
	}

	var columns []DiscoveredColumn
	if res.Data != nil {
		for i := 0; i < res.Data.NumRows(); i++ {
			row := res.Data.NextRow()

			typeName := value(row.Values[1], "")
			col := DiscoveredColumn{
				Name:            value(row.Values[0], ""),
				DataType:        parseDataType(typeName),
				TypeModifier:    atoiOr(value(row.Values[3], "-1"), -1),
				NotNull:         value(row.Values[4], "f") == "t",
				OrdinalPosition: atoiOr(value(row.Values[5], "0"), 0),
				IsSerial:        value(row.Values[6], "f") == "t",
				GeneratedType:   parseGeneratedType(value(row.Values[7], "not_generated")),
				DefaultValue:    value(row.Values[8], ""),
			}
			if col.DataType == metadata.TypeVarchar || col.DataType == metadata.TypeChar {
				col.Length = parseTypeModifier(typeName, col.TypeModifier)
			}
			columns = append(columns, col)
		}
	}
	return columns, nil
}

// DiscoverIndexes lists the secondary indexes of a table; the primary key
// index is skipped. Per-column ordering is recovered from the textual
// index definition.
func (d *Discovery) DiscoverIndexes(tableName string) ([]DiscoveredIndex, error) {
	query := fmt.Sprintf(`
        SELECT
          i.relname as index_name,
          ix.indisunique as is_unique,
          a.attname as column_name,
          array_position(ix.indkey, a.attnum) as key_position,
          pg_get_indexdef(ix.indexrelid) as index_def
        FROM pg_index ix
        JOIN pg_class i ON ix.indexrelid = i.oid
        JOIN pg_class t ON ix.indrelid = t.oid
        JOIN pg_attribute a ON t.oid = a.attrelid AND a.attnum = ANY(ix.indkey)
        JOIN pg_namespace n ON t.relnamespace = n.oid
        WHERE t.relname = '%s'
          AND n.nspname = 'public'
          AND NOT ix.indisprimary
        ORDER BY i.relname, array_position(ix.indkey, a.attnum)`, tableName)

	res, err := d.conn.Execute(query)
	if err != nil {
		return nil, fmt.Errorf("discover indexes for %s: %w", tableName, err)
	}

	indexMap := make(map[string]*DiscoveredIndex)
	if res.Data != nil {
		for i := 0; i < res.Data.NumRows(); i++ {
			row := res.Data.NextRow()

			indexName := value(row.Values[0], "")
			columnName := value(row.Values[2], "")
			indexDef := value(row.Values[4], "")

			idx, ok := indexMap[indexName]
			if !ok {
				idx = &DiscoveredIndex{
					Name:     indexName,
					IsUnique: value(row.Values[1], "f") == "t",
				}
				indexMap[indexName] = idx
			}

			idx.ColumnNames = append(idx.ColumnNames, columnName)
			idx.Orderings = append(idx.Orderings, parseIndexOrdering(columnName, indexDef))
		}
	}

	names := make([]string, 0, len(indexMap))
	for name := range indexMap {
		names = append(names, name)
	}
	sort.Strings(names)

	indexes := make([]DiscoveredIndex, 0, len(names))
	for _, name := range names {
		indexes = append(indexes, *indexMap[name])
	}
	return indexes, nil
}

// DiscoverConstraints lists primary key, unique, check and foreign key
// constraints; foreign keys against a partition child resolve to the
// parent table.
func (d *Discovery) DiscoverConstraints(tableName string) ([]DiscoveredConstraint, error) {
	query := fmt.Sprintf(`
        SELECT
          c.conname as constraint_name,
          c.contype as constraint_type,
          array_to_string(array(
            SELECT a.attname
            FROM pg_attribute a
            WHERE a.attrelid = c.conrelid
              AND a.attnum = ANY(c.conkey)
            ORDER BY array_position(c.conkey, a.attnum)
          ), ',') as column_names,
          COALESCE(
            CASE
              WHEN ft.relispartition = true THEN parent_ft.relname
              ELSE ft.relname
            END,
            ''
          ) as referenced_table,
          COALESCE(array_to_string(array(
            SELECT fa.attname
            FROM pg_attribute fa
            WHERE fa.attrelid = c.confrelid
              AND fa.attnum = ANY(c.confkey)
            ORDER BY array_position(c.confkey, fa.attnum)
          ), ','), '') as referenced_columns
        FROM pg_constraint c
        JOIN pg_class t ON c.conrelid = t.oid
        LEFT JOIN pg_class ft ON c.confrelid = ft.oid
        LEFT JOIN pg_inherits inh ON ft.oid = inh.inhrelid AND ft.relispartition = true
        LEFT JOIN pg_class parent_ft ON inh.inhparent = parent_ft.oid
        JOIN pg_namespace n ON t.relnamespace = n.oid
        WHERE t.relname = '%s'
          AND n.nspname = 'public'
          AND c.contype IN ('p', 'u', 'c', 'f')
        ORDER BY c.conname`, tableName)

	res, err := d.conn.Execute(query)
	if err != nil {
		return nil, fmt.Errorf("discover constraints for %s: %w", tableName, err)
	}

	var constraints []DiscoveredConstraint
	if res.Data != nil {
		for i := 0; i < res.Data.NumRows(); i++ {
			row := res.Data.NextRow()
			constraints = append(constraints, DiscoveredConstraint{
				Name:              value(row.Values[0], ""),
				Type:              parseConstraintType(value(row.Values[1], "")),
				Columns:           splitList(value(row.Values[2], "")),
				ReferencedTable:   value(row.Values[3], ""),
				ReferencedColumns: splitList(value(row.Values[4], "")),
			})
		}
	}
	return constraints, nil
}

// DiscoverPartitions lists the child partitions of a partitioned table.
func (d *Discovery) DiscoverPartitions(tableName string) ([]DiscoveredPartition, error) {
	query := fmt.Sprintf(`
        SELECT
          child.relname as partition_name,
          pg_get_expr(child.relpartbound, child.oid) as partition_bound
        FROM pg_class parent
        JOIN pg_namespace parent_ns ON parent.relnamespace = parent_ns.oid
        JOIN pg_inherits inh ON parent.oid = inh.inhparent
        JOIN pg_class child ON inh.inhrelid = child.oid
        JOIN pg_namespace child_ns ON child.relnamespace = child_ns.oid
        WHERE parent.relname = '%s'
          AND parent_ns.nspname = 'public'
          AND child_ns.nspname = 'public'
          AND child.relispartition = true
        ORDER BY child.relname`, tableName)

	res, err := d.conn.Execute(query)
	if err != nil {
		return nil, fmt.Errorf("discover partitions for %s: %w", tableName, err)
	}

	var partitions []DiscoveredPartition
	if res.Data != nil {
		for i := 0; i < res.Data.NumRows(); i++ {
			row := res.Data.NextRow()
			partitions = append(partitions, DiscoveredPartition{
				Name:           value(row.Values[0], ""),
				PartitionBound: value(row.Values[1], ""),
			})
		}
	}
	return partitions, nil
}

// DiscoverPartitionKeys lists the partition key column names of a table in
// key order.
func (d *Discovery) DiscoverPartitionKeys(tableName string) ([]string, error) {
	query := fmt.Sprintf(`
        SELECT a.attname as column_name
        FROM pg_class c
        JOIN pg_namespace n ON c.relnamespace = n.oid
        JOIN pg_partitioned_table pt ON c.oid = pt.partrelid
        JOIN pg_attribute a ON c.oid = a.attrelid
        WHERE c.relname = '%s'
          AND n.nspname = 'public'
          AND a.attnum = ANY(pt.partattrs)
        ORDER BY array_position(pt.partattrs, a.attnum)`, tableName)

	res, err := d.conn.Execute(query)
	if err != nil {
		return nil, fmt.Errorf("discover partition keys for %s: %w", tableName, err)
	}

	var keys []string
	if res.Data != nil {
		for i := 0; i < res.Data.NumRows(); i++ {
			row := res.Data.NextRow()
			if name := value(row.Values[0], ""); name != "" {
				keys = append(keys, name)
			}
		}
	}
	return keys, nil
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

func parseTablespace(name string) string {
	if name == "pg_default" {
		return ""
	}
	return name
}

// parseTypeModifier derives the declared length: PostgreSQL stores
// length + 4 in the type modifier for varchar and bpchar.
func parseTypeModifier(typeName string, typeModifier int) int {
	if (typeName == "varchar" || typeName == "bpchar") && typeModifier >= 4 {
		return typeModifier - 4
	}
	return 0
}

func parseTableType(typeChar string) metadata.TableType {
	if typeChar == "p" {
		return metadata.TablePartitioned
	}
	return metadata.TableNormal
}

func parsePartitionType(s string) PartitionType {
	switch s {
	case "RANGE":
		return PartitionRange
	case "HASH":
		return PartitionHash
	case "LIST":
		return PartitionList
	}
	return PartitionNone
}

// parseDataType maps a backend type name onto the catalog column types.
// Timestamps, dates and anything unknown fall back to TEXT.
func parseDataType(typeName string) metadata.ColumnType {
	switch typeName {
	case "int2", "int4", "int8":
		return metadata.TypeInt
	case "varchar":
		return metadata.TypeVarchar
	case "bpchar":
		return metadata.TypeChar
	case "text":
		return metadata.TypeText
	case "float4", "float8":
		return metadata.TypeReal
	case "bool":
		return metadata.TypeBool
	case "bytea":
		return metadata.TypeBytea
	}
	return metadata.TypeText
}

func parseGeneratedType(s string) metadata.Generated {
	switch s {
	case "stored":
		return metadata.GeneratedStored
	case "virtual":
		return metadata.GeneratedVirtual
	}
	return metadata.NotGenerated
}

// parseIndexOrdering scans the index definition text for "<column> DESC";
// everything else reads as ascending.
func parseIndexOrdering(columnName, indexDef string) metadata.IndexOrdering {
	if strings.Contains(indexDef, columnName+" DESC") {
		return metadata.OrderingDesc
	}
	return metadata.OrderingAsc
}

func parseConstraintType(typeChar string) ConstraintType {
	switch typeChar {
	case "p":
		return ConstraintPrimaryKey
	case "f":
		return ConstraintForeignKey
	case "u":
		return ConstraintUnique
	case "c":
		return ConstraintCheck
	}
	return ConstraintUnknown
}
