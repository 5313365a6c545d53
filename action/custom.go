package action

import (
	"strings"

	"github.com/Konsultn-Engineering/stormweaver/database"
	"github.com/Konsultn-Engineering/stormweaver/metadata"
	"github.com/Konsultn-Engineering/stormweaver/random"
)

// InjectTable substitutes {table} in a custom statement with a random
// table name.
const InjectTable = "table"

// CustomSql executes a scenario-supplied statement.
type CustomSql struct {
	config CustomConfig
	sql    string
	inject string
}

// NewCustomSql builds the action; inject selects an optional placeholder
// substitution mode, empty for none.
func NewCustomSql(config CustomConfig, sql, inject string) *CustomSql {
	return &CustomSql{config: config, sql: sql, inject: inject}
}

func (a *CustomSql) Execute(cat *metadata.Metadata, rnd *random.Random, conn database.Client) error {
	query := a.sql

	if a.inject == InjectTable {
		table, err := FindRandomTable(cat, rnd)
		if err != nil {
			return err
		}
		query = strings.ReplaceAll(query, "{table}", table.Name)
	}

	_, err := conn.Execute(query)
	return err
}
