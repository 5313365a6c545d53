package action

import (
	"github.com/Konsultn-Engineering/stormweaver/database"
	"github.com/Konsultn-Engineering/stormweaver/metadata"
	"github.com/Konsultn-Engineering/stormweaver/random"
)

// Actions are SQL statements. An action can result in zero (in case of an
// error), one (typical success) or more (in case of CASCADE operations)
// changes to the metadata catalog. Actions are stateless, which allows a
// retry logic on top of them.
type Action interface {
	Execute(cat *metadata.Metadata, rnd *random.Random, conn database.Client) error
}

// Error is an action-local precondition failure. The worker records it and
// keeps running; it never aborts a run.
type Error struct {
	Name    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// NewError builds an Error from a short error name and a message.
func NewError(name, message string) *Error {
	return &Error{Name: name, Message: message}
}

// DdlConfig bounds the schema-changing actions.
type DdlConfig struct {
	MinTableCount        int      `json:"min_table_count" yaml:"min_table_count" mapstructure:"min_table_count"`
	MaxTableCount        int      `json:"max_table_count" yaml:"max_table_count" mapstructure:"max_table_count"`
	MaxColumnCount       int      `json:"max_column_count" yaml:"max_column_count" mapstructure:"max_column_count"`
	MaxAlterClauses      int      `json:"max_alter_clauses" yaml:"max_alter_clauses" mapstructure:"max_alter_clauses"`
	MinPartitionCount    int      `json:"min_partition_count" yaml:"min_partition_count" mapstructure:"min_partition_count"`
	MaxPartitionCount    int      `json:"max_partition_count" yaml:"max_partition_count" mapstructure:"max_partition_count"`
	AccessMethods        []string `json:"access_methods" yaml:"access_methods" mapstructure:"access_methods"`
	ForeignKeyPercentage int      `json:"ct_foreign_key_percentage" yaml:"ct_foreign_key_percentage" mapstructure:"ct_foreign_key_percentage"`
}

// DefaultDdlConfig returns the standard DDL bounds.
func DefaultDdlConfig() DdlConfig {
	return DdlConfig{
		MinTableCount:        3,
		MaxTableCount:        20,
		MaxColumnCount:       20,
		MaxAlterClauses:      5,
		MinPartitionCount:    3,
		MaxPartitionCount:    10,
		AccessMethods:        []string{"heap", "tde_heap"},
		ForeignKeyPercentage: 20,
	}
}

// DmlConfig bounds the data-changing actions.
type DmlConfig struct {
	DeleteMin int `json:"delete_min" yaml:"delete_min" mapstructure:"delete_min"`
	DeleteMax int `json:"delete_max" yaml:"delete_max" mapstructure:"delete_max"`
}

// DefaultDmlConfig returns the standard DML bounds.
func DefaultDmlConfig() DmlConfig {
	return DmlConfig{DeleteMin: 1, DeleteMax: 100}
}

// CustomConfig carries scenario-defined settings for custom SQL actions.
type CustomConfig struct {
	Params map[string]string `json:"params,omitempty" yaml:"params,omitempty" mapstructure:"params"`
}

// AllConfig bundles every action configuration; factories receive it when
// building an action instance.
type AllConfig struct {
	Ddl    DdlConfig    `json:"ddl" yaml:"ddl" mapstructure:"ddl"`
	Dml    DmlConfig    `json:"dml" yaml:"dml" mapstructure:"dml"`
	Custom CustomConfig `json:"custom" yaml:"custom" mapstructure:"custom"`
}

// DefaultConfig returns the standard configuration for every action kind.
func DefaultConfig() AllConfig {
	return AllConfig{
		Ddl: DefaultDdlConfig(),
		Dml: DefaultDmlConfig(),
	}
}
