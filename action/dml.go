package action

import (
	"fmt"
	"strings"

	"github.com/Konsultn-Engineering/stormweaver/database"
	"github.com/Konsultn-Engineering/stormweaver/metadata"
	"github.com/Konsultn-Engineering/stormweaver/random"
)

// TableLocator resolves a specific table for an action, typically the one
// a preceding create produced inside a composite.
type TableLocator func() *metadata.Table

// InsertData inserts a batch of rows with random per-type literals into a
// located or random table. Auto-increment columns are left to the server.
type InsertData struct {
	config  DmlConfig
	rows    int
	locator TableLocator
}

// NewInsertData inserts into a random table.
func NewInsertData(config DmlConfig, rows int) *InsertData {
	return &InsertData{config: config, rows: rows}
}

// NewInsertDataLocated inserts into the table the locator yields, falling
// back to a random table when it yields nil.
func NewInsertDataLocated(config DmlConfig, rows int, locator TableLocator) *InsertData {
	return &InsertData{config: config, rows: rows, locator: locator}
}

func (a *InsertData) Execute(cat *metadata.Metadata, rnd *random.Random, conn database.Client) error {
	var table *metadata.Table
	if a.locator != nil {
		table = a.locator()
	}
	if table == nil {
		var err error
		if table, err = FindRandomTable(cat, rnd); err != nil {
			return err
		}
	}

	var columns []metadata.Column
	for _, col := range table.Columns {
		if !col.AutoIncrement {
			columns = append(columns, col)
		}
	}
	if len(columns) == 0 {
		return nil
	}

	var sql strings.Builder
	sql.WriteString("INSERT INTO ")
	sql.WriteString(table.Name)
	sql.WriteString(" (")
	for i, col := range columns {
		if i > 0 {
			sql.WriteString(", ")
		}
		sql.WriteString(col.Name)
	}
	sql.WriteString(") VALUES ")

	for row := 0; row < a.rows; row++ {
		if row > 0 {
			sql.WriteString(", ")
		}
		sql.WriteString("(")
		for i, col := range columns {
			if i > 0 {
				sql.WriteString(", ")
			}
			sql.WriteString(generateValue(col, rnd, table.Partitioning))
		}
		sql.WriteString(")")
	}
	sql.WriteString(";")

	_, err := conn.Execute(sql.String())
	return err
}

// DeleteData deletes a random number of rows from a random table, selected
// by primary key.
type DeleteData struct {
	config DmlConfig
}

func NewDeleteData(config DmlConfig) *DeleteData {
	return &DeleteData{config: config}
}

func (a *DeleteData) Execute(cat *metadata.Metadata, rnd *random.Random, conn database.Client) error {
	table, err := FindRandomTable(cat, rnd)
	if err != nil {
		return err
	}

	// The single-column primary key is always the first column.
	pk := table.Columns[0].Name
	rows := rnd.Between(a.config.DeleteMin, a.config.DeleteMax)

	stmt := fmt.Sprintf(
		"DELETE FROM %s WHERE %s IN (SELECT %s FROM %s ORDER BY random() LIMIT %d);",
		table.Name, pk, pk, table.Name, rows)
	_, err = conn.Execute(stmt)
	return err
}

// UpdateOneRow rewrites every non-auto-increment column of one random row
// with freshly generated literals.
type UpdateOneRow struct {
	config DmlConfig
}

func NewUpdateOneRow(config DmlConfig) *UpdateOneRow {
	return &UpdateOneRow{config: config}
}

func (a *UpdateOneRow) Execute(cat *metadata.Metadata, rnd *random.Random, conn database.Client) error {
	table, err := FindRandomTable(cat, rnd)
	if err != nil {
		return err
	}

	pk := table.Columns[0].Name

	var sql strings.Builder
	sql.WriteString("UPDATE ")
	sql.WriteString(table.Name)
	sql.WriteString(" SET ")

	first := true
	for _, col := range table.Columns {
		if col.AutoIncrement {
			continue
		}
		if !first {
			sql.WriteString(", ")
		}
		sql.WriteString(col.Name)
		sql.WriteString(" = ")
		sql.WriteString(generateValue(col, rnd, table.Partitioning))
		first = false
	}
	if first {
		return nil
	}

	fmt.Fprintf(&sql, " WHERE %s IN (SELECT %s FROM %s ORDER BY random() LIMIT 1);",
		pk, pk, table.Name)

	_, err = conn.Execute(sql.String())
	return err
}
