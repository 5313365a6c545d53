package connector

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Konsultn-Engineering/stormweaver/database"
)

// errorCacheSize bounds the repeated-error dedupe cache.
const errorCacheSize = 128

// Connection wraps a Driver with per-query logging, SQL time accounting and
// single-value convenience reads. A worker owns its Connection exclusively;
// methods are not safe for concurrent use.
type Connection struct {
	name        string
	id          string
	driver      database.Driver
	logger      *slog.Logger
	accumulated time.Duration

	// seenErrors downgrades repeats of the same failure to debug level so
	// a hot loop hitting one broken statement doesn't flood the log.
	seenErrors *lru.Cache[string, int]
}

// NewConnection wraps a driver. A nil logger selects a per-connection file
// logger under logs/.
func NewConnection(name string, driver database.Driver, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = newFileLogger(name)
	}
	cache, _ := lru.New[string, int](errorCacheSize)
	id := uuid.NewString()
	return &Connection{
		name:       name,
		id:         id,
		driver:     driver,
		logger:     logger.With("connection", name, "conn_id", id),
		seenErrors: cache,
	}
}

func newFileLogger(name string) *slog.Logger {
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return slog.New(slog.DiscardHandler)
	}
	path := filepath.Join("logs", fmt.Sprintf("sql-%s.log", name))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(f, nil))
}

// Name returns the connection name given by its owner.
func (c *Connection) Name() string {
	return c.name
}

// ID returns the unique id of this connection instance; it is also what
// shows up in the connection's log lines.
func (c *Connection) ID() string {
	return c.id
}

// Execute runs one statement, accumulates its SQL time and returns the
// result together with its error form.
func (c *Connection) Execute(query string) (*database.QueryResult, error) {
	res := c.driver.ExecuteQuery(query)
	c.accumulated += res.ExecutionTime

	if err := res.Err(); err != nil {
		c.logFailure(res)
		return res, err
	}

	c.logger.Debug("query ok",
		"sql", query,
		"duration", res.ExecutionTime,
		"affected", res.AffectedRows)
	return res, nil
}

func (c *Connection) logFailure(res *database.QueryResult) {
	key := res.ErrorInfo.Code + "|" + res.ErrorInfo.Message
	if n, ok := c.seenErrors.Get(key); ok {
		c.seenErrors.Add(key, n+1)
		c.logger.Debug("query failed (repeated)",
			"code", res.ErrorInfo.Code,
			"occurrences", n+1)
		return
	}
	c.seenErrors.Add(key, 1)
	c.logger.Warn("query failed",
		"sql", res.Query,
		"code", res.ErrorInfo.Code,
		"message", res.ErrorInfo.Message)
}

// QuerySingleValue runs the statement and returns the first column of the
// first row, or nil when the result is empty or NULL.
func (c *Connection) QuerySingleValue(query string) (*string, error) {
	res, err := c.Execute(query)
	if err != nil {
		return nil, err
	}
	if res.Data == nil || res.Data.NumRows() == 0 || res.Data.NumFields() == 0 {
		return nil, nil
	}
	row := res.Data.NextRow()
	return row.Values[0], nil
}

// Reconnect rebuilds the underlying connection.
func (c *Connection) Reconnect() error {
	c.logger.Info("reconnecting")
	if err := c.driver.Reconnect(); err != nil {
		c.logger.Error("reconnect failed", "error", err)
		return err
	}
	return nil
}

func (c *Connection) ServerInfo() database.ServerInfo {
	return c.driver.ServerInfo()
}

func (c *Connection) HostInfo() string {
	return c.driver.HostInfo()
}

// AccumulatedSqlTime returns the SQL time spent since the last reset.
func (c *Connection) AccumulatedSqlTime() time.Duration {
	return c.accumulated
}

// ResetAccumulatedSqlTime clears the SQL time accumulator.
func (c *Connection) ResetAccumulatedSqlTime() {
	c.accumulated = 0
}

// Close releases the underlying driver connection.
func (c *Connection) Close() error {
	return c.driver.Close()
}

var _ database.Client = (*Connection)(nil)
