package discovery

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/Konsultn-Engineering/stormweaver/metadata"
)

// Populator feeds discovered schema records into the metadata catalog
// through create reservations.
type Populator struct {
	cat    *metadata.Metadata
	logger *slog.Logger
}

// NewPopulator builds a populator for the catalog. A nil logger discards.
func NewPopulator(cat *metadata.Metadata, logger *slog.Logger) *Populator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Populator{cat: cat, logger: logger}
}

// PopulateFromExistingDatabase walks every discovered table into the
// catalog. Tables that don't fit (catalog full) are skipped with a
// warning; per-table conversion failures skip that table only.
func (p *Populator) PopulateFromExistingDatabase(d *Discovery) error {
	tables, err := d.DiscoverTables()
	if err != nil {
		return err
	}

	p.logger.Info("starting metadata population", "tables", len(tables))

	for _, discovered := range tables {
		res := p.cat.ReserveCreate()
		if !res.Open() {
			p.logger.Warn("no more table slots available, skipping table",
				"table", discovered.Name)
			continue
		}

		table, err := p.convertTable(d, discovered)
		if err != nil {
			res.Cancel()
			p.logger.Error("failed to populate metadata for table",
				"table", discovered.Name, "error", err)
			continue
		}

		*res.Table() = *table
		if err := res.Complete(); err != nil {
			p.logger.Error("failed to install table",
				"table", discovered.Name, "error", err)
		}
	}

	p.logger.Info("metadata population completed", "tables", p.cat.Size())
	return nil
}

func (p *Populator) convertTable(d *Discovery, discovered DiscoveredTable) (*metadata.Table, error) {
	table := &metadata.Table{
		Name:       discovered.Name,
		Tablespace: discovered.Tablespace,
		Type:       discovered.TableType,
	}
	// The access method stays unset: the DDL actions do not track it
	// either, so carrying it here would make every comparison fail.

	columns, err := d.DiscoverColumns(discovered.Name)
	if err != nil {
		return nil, err
	}
	for _, col := range columns {
		table.Columns = append(table.Columns, convertColumn(col))
	}

	indexes, err := d.DiscoverIndexes(discovered.Name)
	if err != nil {
		return nil, err
	}
	for _, idx := range indexes {
		table.Indexes = append(table.Indexes, convertIndex(idx))
	}

	constraints, err := d.DiscoverConstraints(discovered.Name)
	if err != nil {
		return nil, err
	}
	applyConstraints(table, constraints)

	keys, err := d.DiscoverPartitionKeys(discovered.Name)
	if err != nil {
		return nil, err
	}
	applyPartitionKeys(table, keys)

	partitions, err := d.DiscoverPartitions(discovered.Name)
	if err != nil {
		return nil, err
	}
	if len(partitions) > 0 {
		applyPartitioning(table, partitions)
	}

	return table, nil
}

// convertColumn maps a discovered attribute onto a catalog column. Default
// values of serial columns are dropped: they carry a nextval expression
// that would never round-trip against locally created tables.
func convertColumn(discovered DiscoveredColumn) metadata.Column {
	col := metadata.Column{
		Name:          discovered.Name,
		Type:          discovered.DataType,
		Nullable:      !discovered.NotNull,
		AutoIncrement: discovered.IsSerial,
		Generated:     discovered.GeneratedType,
	}
	if discovered.Length > 0 {
		col.Length = discovered.Length
	}
	if discovered.DefaultValue != "" && !discovered.IsSerial {
		col.DefaultValue = discovered.DefaultValue
	}
	return col
}

func convertIndex(discovered DiscoveredIndex) metadata.Index {
	idx := metadata.Index{
		Name:   discovered.Name,
		Unique: discovered.IsUnique,
	}
	for i, name := range discovered.ColumnNames {
		field := metadata.IndexColumn{ColumnName: name, Ordering: metadata.OrderingDefault}
		if i < len(discovered.Orderings) {
			field.Ordering = discovered.Orderings[i]
		}
		idx.Fields = append(idx.Fields, field)
	}
	return idx
}

// applyConstraints folds primary key and foreign key constraints onto the
// matching columns. Unique and check constraints have no catalog
// representation and are skipped.
func applyConstraints(table *metadata.Table, constraints []DiscoveredConstraint) {
	for _, constraint := range constraints {
		switch constraint.Type {
		case ConstraintPrimaryKey:
			for _, name := range constraint.Columns {
				if col := findColumn(table, name); col != nil {
					col.PrimaryKey = true
				}
			}
		case ConstraintForeignKey:
			for _, name := range constraint.Columns {
				if col := findColumn(table, name); col != nil {
					col.ForeignKeyReferences = constraint.ReferencedTable
				}
			}
		}
	}
}

func applyPartitionKeys(table *metadata.Table, keys []string) {
	for _, name := range keys {
		if col := findColumn(table, name); col != nil {
			col.PartitionKey = true
		}
	}
}

// applyPartitioning reconstructs the range layout. The range base is
// parsed from the child table name suffix (table_p0, table_p1, ...);
// unparsable names fall back to base 0.
func applyPartitioning(table *metadata.Table, partitions []DiscoveredPartition) {
	rp := &metadata.RangePartitioning{RangeSize: metadata.DefaultRangeSize}

	for _, partition := range partitions {
		var base uint64
		if pos := strings.LastIndex(partition.Name, "_"); pos >= 0 && pos+1 < len(partition.Name) {
			suffix := partition.Name[pos+1:]
			if strings.HasPrefix(suffix, "p") {
				if n, err := strconv.ParseUint(suffix[1:], 10, 64); err == nil {
					base = n
				}
			}
		}
		rp.Ranges = append(rp.Ranges, metadata.RangePartition{RangeBase: base})
	}

	table.Partitioning = rp
}

func findColumn(table *metadata.Table, name string) *metadata.Column {
	for i := range table.Columns {
		if table.Columns[i].Name == name {
			return &table.Columns[i]
		}
	}
	return nil
}
