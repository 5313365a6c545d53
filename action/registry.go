package action

import (
	"fmt"
	"sync"

	"github.com/Konsultn-Engineering/stormweaver/metadata"
)

// Factory builds one kind of action on demand and carries its selection
// weight.
type Factory struct {
	Name   string
	Build  func(config AllConfig) Action
	Weight int
}

// Registry is a thread-safe collection of action factories supporting
// weighted random lookup.
type Registry struct {
	mu        sync.Mutex
	factories []Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Insert adds a factory and returns its position. Duplicate names fail
// with an action-already-exists error.
func (r *Registry) Insert(f Factory) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.factories {
		if existing.Name == f.Name {
			return 0, NewError("action-already-exists",
				fmt.Sprintf("action %s already exists in this registry", f.Name))
		}
	}

	r.factories = append(r.factories, f)
	return len(r.factories) - 1, nil
}

// Remove deletes the named factory.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, f := range r.factories {
		if f.Name == name {
			r.factories = append(r.factories[:i], r.factories[i+1:]...)
			return nil
		}
	}
	return NewError("action-not-found",
		fmt.Sprintf("action %s does not exist in this registry", name))
}

// Lookup returns the named factory.
func (r *Registry) Lookup(name string) (Factory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range r.factories {
		if f.Name == name {
			return f, nil
		}
	}
	return Factory{}, NewError("action-not-found",
		fmt.Sprintf("action %s does not exist in this registry", name))
}

// Has reports whether the named factory is registered.
func (r *Registry) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range r.factories {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Size returns the number of registered factories.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.factories)
}

// TotalWeight returns the sum of all factory weights.
func (r *Registry) TotalWeight() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, f := range r.factories {
		total += f.Weight
	}
	return total
}

// LookupByWeightOffset maps an offset drawn from [0, TotalWeight()) onto a
// factory: the first one whose cumulative weight exceeds the offset. Each
// factory is therefore selected with probability weight/total exactly.
func (r *Registry) LookupByWeightOffset(offset int) (Factory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	accum := 0
	for _, f := range r.factories {
		accum += f.Weight
		if accum > offset {
			return f, nil
		}
	}
	return Factory{}, NewError("weight-offset-out-of-range",
		fmt.Sprintf("weight offset %d is outside of this registry", offset))
}

// Names returns the registered action names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.factories))
	for _, f := range r.factories {
		names = append(names, f.Name)
	}
	return names
}

// MakeCustomSqlAction registers a factory executing the statement as-is.
func (r *Registry) MakeCustomSqlAction(name, sql string, weight int) error {
	_, err := r.Insert(Factory{
		Name:   name,
		Weight: weight,
		Build: func(config AllConfig) Action {
			return NewCustomSql(config.Custom, sql, "")
		},
	})
	return err
}

// MakeCustomTableSqlAction registers a factory executing the statement with
// {table} replaced by a random table name.
func (r *Registry) MakeCustomTableSqlAction(name, sql string, weight int) error {
	_, err := r.Insert(Factory{
		Name:   name,
		Weight: weight,
		Build: func(config AllConfig) Action {
			return NewCustomSql(config.Custom, sql, InjectTable)
		},
	})
	return err
}

// Use replaces this registry's contents with a copy of the other's.
func (r *Registry) Use(other *Registry) {
	other.mu.Lock()
	factories := make([]Factory, len(other.factories))
	copy(factories, other.factories)
	other.mu.Unlock()

	r.mu.Lock()
	r.factories = factories
	r.mu.Unlock()
}

// Clone returns an independent copy.
func (r *Registry) Clone() *Registry {
	c := NewRegistry()
	c.Use(r)
	return c
}

// tableRef shares the table a create produced with the follow-up actions
// of the same composite.
type tableRef struct {
	ptr *metadata.Table
}

func createTableFactory(name string, tableType metadata.TableType) Factory {
	return Factory{
		Name:   name,
		Weight: 100,
		Build: func(config AllConfig) Action {
			ref := &tableRef{}
			create := NewCreateTable(config.Ddl, tableType)
			create.SetSuccessCallback(func(t *metadata.Table) { ref.ptr = t })
			insert := NewInsertDataLocated(config.Dml, 1000, func() *metadata.Table { return ref.ptr })
			return NewComposite(ref, create, NewRepeat(insert, 1))
		},
	}
}

// DefaultRegistry returns a fresh registry with the standard action mix:
// every DDL action at weight 100, the plain DML actions at weight 1000.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	mustInsert := func(f Factory) {
		if _, err := r.Insert(f); err != nil {
			panic(err)
		}
	}

	mustInsert(createTableFactory("create_normal_table", metadata.TableNormal))
	mustInsert(createTableFactory("create_partitioned_table", metadata.TablePartitioned))
	mustInsert(Factory{Name: "drop_table", Weight: 100, Build: func(c AllConfig) Action {
		return NewDropTable(c.Ddl)
	}})
	mustInsert(Factory{Name: "alter_table", Weight: 100, Build: func(c AllConfig) Action {
		return NewAlterTable(c.Ddl, AllAlterSubcommands)
	}})
	mustInsert(Factory{Name: "rename_table", Weight: 100, Build: func(c AllConfig) Action {
		return NewRenameTable(c.Ddl)
	}})
	mustInsert(Factory{Name: "create_index", Weight: 100, Build: func(c AllConfig) Action {
		return NewCreateIndex(c.Ddl)
	}})
	mustInsert(Factory{Name: "drop_index", Weight: 100, Build: func(c AllConfig) Action {
		return NewDropIndex(c.Ddl)
	}})
	mustInsert(Factory{Name: "create_partition", Weight: 100, Build: func(c AllConfig) Action {
		return NewCreatePartition(c.Ddl)
	}})
	mustInsert(Factory{Name: "drop_partition", Weight: 100, Build: func(c AllConfig) Action {
		return NewDropPartition(c.Ddl)
	}})
	mustInsert(Factory{Name: "insert_some_data", Weight: 1000, Build: func(c AllConfig) Action {
		return NewInsertData(c.Dml, 10)
	}})
	mustInsert(Factory{Name: "delete_some_data", Weight: 1000, Build: func(c AllConfig) Action {
		return NewDeleteData(c.Dml)
	}})
	mustInsert(Factory{Name: "update_one_row", Weight: 1000, Build: func(c AllConfig) Action {
		return NewUpdateOneRow(c.Dml)
	}})

	return r
}
