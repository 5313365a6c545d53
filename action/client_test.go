package action

import (
	"time"

	"github.com/Konsultn-Engineering/stormweaver/database"
	"github.com/Konsultn-Engineering/stormweaver/metadata"
)

// fakeClient records every statement and answers with canned results.
type fakeClient struct {
	queries []string
	// respond overrides the default empty success per query.
	respond     func(query string) *database.QueryResult
	accumulated time.Duration
	reconnects  int
}

func (f *fakeClient) Execute(query string) (*database.QueryResult, error) {
	f.queries = append(f.queries, query)

	var res *database.QueryResult
	if f.respond != nil {
		res = f.respond(query)
	}
	if res == nil {
		res = &database.QueryResult{Query: query}
	}
	f.accumulated += res.ExecutionTime
	return res, res.Err()
}

func (f *fakeClient) QuerySingleValue(query string) (*string, error) {
	res, err := f.Execute(query)
	if err != nil {
		return nil, err
	}
	if res.Data == nil || res.Data.NumRows() == 0 {
		return nil, nil
	}
	row := res.Data.NextRow()
	return row.Values[0], nil
}

func (f *fakeClient) Reconnect() error {
	f.reconnects++
	return nil
}

func (f *fakeClient) ServerInfo() database.ServerInfo {
	return database.ServerInfo{Flavor: database.FlavorPostgres, Version: 170000}
}

func (f *fakeClient) HostInfo() string { return "localhost:5432" }

func (f *fakeClient) AccumulatedSqlTime() time.Duration { return f.accumulated }

func (f *fakeClient) ResetAccumulatedSqlTime() { f.accumulated = 0 }

var _ database.Client = (*fakeClient)(nil)

func sqlFailure(code string) *database.QueryResult {
	return &database.QueryResult{ErrorInfo: database.ErrorInfo{
		Code: code, Message: "injected failure", Status: database.StatusError,
	}}
}

// seedTable installs a table into the catalog directly.
func seedTable(cat *metadata.Metadata, table *metadata.Table) {
	res := cat.ReserveCreate()
	if !res.Open() {
		panic("catalog full in test seed")
	}
	*res.Table() = *table
	if err := res.Complete(); err != nil {
		panic(err)
	}
}

func basicTable(name string) *metadata.Table {
	return &metadata.Table{
		Name: name,
		Columns: []metadata.Column{
			{Name: "id", Type: metadata.TypeInt, PrimaryKey: true, AutoIncrement: true},
			{Name: "num", Type: metadata.TypeInt, Nullable: true},
			{Name: "note", Type: metadata.TypeText, Nullable: true},
		},
	}
}
