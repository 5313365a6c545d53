package database

import (
	"fmt"
	"time"
)

// SqlStatus classifies the outcome of one executed statement.
type SqlStatus int

const (
	StatusSuccess SqlStatus = iota
	StatusError
	StatusServerGone
)

// SqlError is the error form of a failed statement. Code is the SQLSTATE
// when the server produced one.
type SqlError struct {
	Code    string
	Message string
	Status  SqlStatus
}

func (e *SqlError) Error() string {
	return fmt.Sprintf("error while executing query: %s %s", e.Code, e.Message)
}

// ServerGone reports that the connection must be rebuilt before further
// queries can succeed.
func (e *SqlError) ServerGone() bool {
	return e.Status == StatusServerGone
}

// ErrorInfo is the outcome record embedded in every QueryResult.
type ErrorInfo struct {
	Code    string
	Message string
	Status  SqlStatus
}

func (e ErrorInfo) Success() bool {
	return e.Status == StatusSuccess
}

func (e ErrorInfo) ServerGone() bool {
	return e.Status == StatusServerGone
}

// RowView is one materialized result row; nil entries are SQL NULLs.
type RowView struct {
	Values []*string
}

// Rows is a materialized result set with a one-way cursor.
type Rows struct {
	fields []string
	data   [][]*string
	pos    int
}

// NewRows builds a result set from field names and row data.
func NewRows(fields []string, data [][]*string) *Rows {
	return &Rows{fields: fields, data: data}
}

func (r *Rows) NumFields() int {
	return len(r.fields)
}

func (r *Rows) NumRows() int {
	return len(r.data)
}

// Fields returns the column names of the result.
func (r *Rows) Fields() []string {
	return r.fields
}

// NextRow advances the cursor and returns the next row; an empty RowView
// when exhausted.
func (r *Rows) NextRow() RowView {
	if r.pos >= len(r.data) {
		return RowView{}
	}
	row := RowView{Values: r.data[r.pos]}
	r.pos++
	return row
}

// QueryResult is the outcome of one executed statement.
type QueryResult struct {
	Query         string
	ExecutedAt    time.Time
	ExecutionTime time.Duration
	ErrorInfo     ErrorInfo
	AffectedRows  uint64
	Data          *Rows
}

func (q *QueryResult) Success() bool {
	return q.ErrorInfo.Success()
}

// Err returns nil on success, otherwise a *SqlError built from ErrorInfo.
func (q *QueryResult) Err() error {
	if q.Success() {
		return nil
	}
	return &SqlError{
		Code:    q.ErrorInfo.Code,
		Message: q.ErrorInfo.Message,
		Status:  q.ErrorInfo.Status,
	}
}

// Flavor identifies the server family.
type Flavor int

const (
	FlavorAnyPostgres Flavor = iota
	FlavorPostgres
	FlavorPerconaPostgres
)

// ServerInfo carries the server flavor and numeric version
// (server_version_num, e.g. 170002).
type ServerInfo struct {
	Flavor  Flavor
	Version uint64
}

func (s ServerInfo) IsPGLike() bool {
	return s.Flavor == FlavorPostgres || s.Flavor == FlavorPerconaPostgres ||
		s.Flavor == FlavorAnyPostgres
}

// MatchingAny reports whether the flavor matches, treating
// FlavorAnyPostgres as a wildcard over the postgres family.
func (s ServerInfo) MatchingAny(f Flavor) bool {
	if f == FlavorAnyPostgres && s.IsPGLike() {
		return true
	}
	return f == s.Flavor
}

// AfterOrIs reports a matching flavor at or past the given version.
func (s ServerInfo) AfterOrIs(f Flavor, version uint64) bool {
	return s.MatchingAny(f) && s.Version >= version
}

// Before reports a matching flavor strictly before the given version.
func (s ServerInfo) Before(f Flavor, version uint64) bool {
	return s.MatchingAny(f) && s.Version < version
}

// Driver is the wire-protocol boundary: execute one statement and report
// its outcome inside the result, never through a Go error.
type Driver interface {
	ExecuteQuery(query string) *QueryResult
	Reconnect() error
	ServerInfo() ServerInfo
	HostInfo() string
	Close() error
}

// Client is the connection surface actions and collaborators consume: a
// Driver wrapped with logging, error conversion and an SQL time
// accumulator.
type Client interface {
	Execute(query string) (*QueryResult, error)
	QuerySingleValue(query string) (*string, error)
	Reconnect() error
	ServerInfo() ServerInfo
	HostInfo() string
	AccumulatedSqlTime() time.Duration
	ResetAccumulatedSqlTime()
}
