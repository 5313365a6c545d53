package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/Konsultn-Engineering/stormweaver/database"
	"github.com/Konsultn-Engineering/stormweaver/metadata"
)

// Result is the content hash of one table.
type Result struct {
	TableName string
	Checksum  string
	RowCount  uint64
}

// DatabaseChecksum computes per-table content hashes for cross-run
// comparison: a SHA-256 over every row ordered by every column, fields
// joined with '|' separators, NULLs rendered empty.
type DatabaseChecksum struct {
	conn    database.Client
	cat     *metadata.Metadata
	results []Result
}

// New builds a checksummer over the connection and catalog.
func New(conn database.Client, cat *metadata.Metadata) *DatabaseChecksum {
	return &DatabaseChecksum{conn: conn, cat: cat}
}

// CalculateAllTableChecksums hashes every catalog table and stores the
// results sorted by table name.
func (c *DatabaseChecksum) CalculateAllTableChecksums() error {
	c.results = nil

	for i := 0; i < c.cat.Size(); i++ {
		table := c.cat.Get(i)
		if table == nil {
			continue
		}

		count, err := c.conn.QuerySingleValue(
			fmt.Sprintf("SELECT COUNT(*) FROM %s", table.Name))
		if err != nil {
			return err
		}
		if count == nil {
			return fmt.Errorf("failed to get row count for table %s", table.Name)
		}
		rowCount, err := strconv.ParseUint(*count, 10, 64)
		if err != nil {
			return fmt.Errorf("parse row count for table %s: %w", table.Name, err)
		}

		sum, err := c.hashTable(table)
		if err != nil {
			return err
		}

		c.results = append(c.results, Result{
			TableName: table.Name,
			Checksum:  sum,
			RowCount:  rowCount,
		})
	}

	sort.Slice(c.results, func(a, b int) bool {
		return c.results[a].TableName < c.results[b].TableName
	})
	return nil
}

func (c *DatabaseChecksum) hashTable(table *metadata.Table) (string, error) {
	var orderBy string
	if len(table.Columns) > 0 {
		names := make([]string, 0, len(table.Columns))
		for _, col := range table.Columns {
			names = append(names, col.Name)
		}
		orderBy = "ORDER BY " + strings.Join(names, ", ")
	}

	res, err := c.conn.Execute(fmt.Sprintf("SELECT * FROM %s %s", table.Name, orderBy))
	if err != nil {
		return "", fmt.Errorf("failed to execute query for table %s: %w", table.Name, err)
	}

	hasher := sha256.New()
	if res.Data != nil {
		for i := 0; i < res.Data.NumRows(); i++ {
			row := res.Data.NextRow()
			hasher.Write([]byte(buildRowHash(row)))
		}
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// buildRowHash joins the row's fields, a '|' after each one; NULL renders
// as an empty field.
func buildRowHash(row database.RowView) string {
	var b strings.Builder
	for _, v := range row.Values {
		if v != nil {
			b.WriteString(*v)
		}
		b.WriteString("|")
	}
	return b.String()
}

// Results returns the per-table checksums from the last calculation.
func (c *DatabaseChecksum) Results() []Result {
	return c.results
}

// ResultsString renders the results as CSV.
func (c *DatabaseChecksum) ResultsString() string {
	var b strings.Builder
	b.WriteString("table_name,checksum,row_count\n")
	for _, r := range c.results {
		fmt.Fprintf(&b, "%s,%s,%d\n", r.TableName, r.Checksum, r.RowCount)
	}
	return b.String()
}

// WriteResultsToFile writes the CSV rendering to a file.
func (c *DatabaseChecksum) WriteResultsToFile(filename string) error {
	if err := os.WriteFile(filename, []byte(c.ResultsString()), 0o644); err != nil {
		return fmt.Errorf("failed to open file for writing %s: %w", filename, err)
	}
	return nil
}
