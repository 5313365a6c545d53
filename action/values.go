package action

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Konsultn-Engineering/stormweaver/metadata"
	"github.com/Konsultn-Engineering/stormweaver/random"
)

func randomColumnType(rnd *random.Random) metadata.ColumnType {
	return metadata.AllColumnTypes[rnd.IntN(len(metadata.AllColumnTypes))]
}

func randomColumnLength(rnd *random.Random, t metadata.ColumnType) int {
	switch t {
	case metadata.TypeChar, metadata.TypeVarchar:
		return rnd.Between(1, 100)
	}
	return 0
}

// randomColumn generates a column definition. forceSerial produces the
// leading auto-increment integer primary key.
func randomColumn(rnd *random.Random, forceSerial bool) metadata.Column {
	col := metadata.Column{
		Name:     fmt.Sprintf("col%d", rnd.Uint64()),
		Nullable: true,
	}

	if forceSerial {
		col.Type = metadata.TypeInt
		col.PrimaryKey = true
		col.AutoIncrement = true
		col.Nullable = false
		return col
	}

	col.Type = randomColumnType(rnd)
	col.Length = randomColumnLength(rnd, col.Type)
	return col
}

// columnDefinition renders one column for CREATE TABLE / ADD COLUMN.
func columnDefinition(col metadata.Column) string {
	if col.AutoIncrement {
		return col.Name + " SERIAL"
	}

	def := fmt.Sprintf("%s %s", col.Name, col.Type)
	if col.Length > 0 {
		def += fmt.Sprintf("(%d)", col.Length)
	}
	if col.ForeignKeyReferences != "" {
		def += " REFERENCES " + col.ForeignKeyReferences + " ON DELETE CASCADE"
	}
	return def
}

// quoteString renders a single-quoted SQL literal.
func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// generateValue renders a literal for the column. Partition key values are
// drawn uniformly over the existing ranges so inserts land in a live
// partition.
func generateValue(col metadata.Column, rnd *random.Random, rp *metadata.RangePartitioning) string {
	if col.PartitionKey {
		if rp == nil || len(rp.Ranges) == 0 {
			// The statement will fail, but at least it stays well formed.
			return "0"
		}
		num := uint64(rnd.IntN(int(rp.RangeSize) * len(rp.Ranges)))
		r := rp.Ranges[num/rp.RangeSize]
		return strconv.FormatUint(r.RangeBase*rp.RangeSize+num%rp.RangeSize, 10)
	}

	switch col.Type {
	case metadata.TypeInt:
		return strconv.Itoa(rnd.Between(1, 1000000))
	case metadata.TypeReal:
		return strconv.FormatFloat(rnd.Float64Between(1, 1000000), 'f', 6, 64)
	case metadata.TypeVarchar, metadata.TypeChar:
		return quoteString(rnd.String(0, col.Length))
	case metadata.TypeText, metadata.TypeBytea:
		return quoteString(rnd.String(50, 1000))
	case metadata.TypeBool:
		if rnd.Bool() {
			return "true"
		}
		return "false"
	}
	return "''"
}
