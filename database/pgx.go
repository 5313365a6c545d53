package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxDriver executes statements over a single exclusive pgx connection.
// Statements go through the simple query protocol, so multi-statement
// strings behave the way they do in psql and every value comes back in
// text format, which is what the catalog readers and the checksummer
// consume.
type PgxDriver struct {
	dsn      string
	hostInfo string
	conn     *pgx.Conn
	info     ServerInfo
}

// ConnectPgx opens a connection for the DSN and reads the server version.
func ConnectPgx(ctx context.Context, dsn string) (*PgxDriver, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	d := &PgxDriver{
		dsn:      dsn,
		hostInfo: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		conn:     conn,
	}
	if d.info, err = d.readServerInfo(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}
	return d, nil
}

func (d *PgxDriver) readServerInfo(ctx context.Context) (ServerInfo, error) {
	var versionNum, versionText string
	err := d.conn.QueryRow(ctx,
		"SELECT current_setting('server_version_num'), version()").
		Scan(&versionNum, &versionText)
	if err != nil {
		return ServerInfo{}, fmt.Errorf("read server version: %w", err)
	}

	version, err := strconv.ParseUint(versionNum, 10, 64)
	if err != nil {
		return ServerInfo{}, fmt.Errorf("parse server_version_num %q: %w", versionNum, err)
	}

	flavor := FlavorPostgres
	if strings.Contains(versionText, "Percona") {
		flavor = FlavorPerconaPostgres
	}
	return ServerInfo{Flavor: flavor, Version: version}, nil
}

// ExecuteQuery runs one statement string and materializes the outcome.
// Failures are reported inside the result, never as a Go error.
func (d *PgxDriver) ExecuteQuery(query string) *QueryResult {
	res := &QueryResult{Query: query, ExecutedAt: time.Now()}

	start := time.Now()
	results, err := d.conn.PgConn().Exec(context.Background(), query).ReadAll()
	res.ExecutionTime = time.Since(start)

	if err != nil {
		res.ErrorInfo = classifyError(err, d.conn.IsClosed())
		return res
	}

	for _, r := range results {
		if r.Err != nil {
			res.ErrorInfo = classifyError(r.Err, d.conn.IsClosed())
			return res
		}
		res.AffectedRows += uint64(r.CommandTag.RowsAffected())
		if len(r.FieldDescriptions) > 0 && res.Data == nil {
			fields := make([]string, len(r.FieldDescriptions))
			for i, fd := range r.FieldDescriptions {
				fields[i] = fd.Name
			}
			data := make([][]*string, 0, len(r.Rows))
			for _, raw := range r.Rows {
				row := make([]*string, len(raw))
				for i, cell := range raw {
					if cell != nil {
						s := string(cell)
						row[i] = &s
					}
				}
				data = append(data, row)
			}
			res.Data = NewRows(fields, data)
		}
	}
	return res
}

// Reconnect drops the current connection and dials a fresh one from the
// stored DSN.
func (d *PgxDriver) Reconnect() error {
	ctx := context.Background()
	if d.conn != nil {
		_ = d.conn.Close(ctx)
		d.conn = nil
	}

	conn, err := pgx.Connect(ctx, d.dsn)
	if err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	d.conn = conn

	if d.info, err = d.readServerInfo(ctx); err != nil {
		return err
	}
	return nil
}

func (d *PgxDriver) ServerInfo() ServerInfo {
	return d.info
}

func (d *PgxDriver) HostInfo() string {
	return d.hostInfo
}

func (d *PgxDriver) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close(context.Background())
}

// classifyError maps a pgx/pgconn error into ErrorInfo. SQLSTATE class 08
// and the 57P0x shutdown codes mean the server is gone, as do transport
// failures and a connection pgx already marked closed.
func classifyError(err error, connClosed bool) ErrorInfo {
	info := ErrorInfo{Status: StatusError, Message: err.Error()}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		info.Code = pgErr.Code
		info.Message = pgErr.Message
		if isServerGoneCode(pgErr.Code) {
			info.Status = StatusServerGone
		}
		return info
	}

	var netErr net.Error
	if connClosed || pgconn.Timeout(err) ||
		errors.As(err, &netErr) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		info.Status = StatusServerGone
		info.Code = "08006" // connection_failure
	}
	return info
}

func isServerGoneCode(code string) bool {
	switch code {
	case "57P01", "57P02", "57P03":
		// admin_shutdown, crash_shutdown, cannot_connect_now
		return true
	}
	return strings.HasPrefix(code, "08")
}

var _ Driver = (*PgxDriver)(nil)
