package workload

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Konsultn-Engineering/stormweaver/action"
	"github.com/Konsultn-Engineering/stormweaver/checksum"
	"github.com/Konsultn-Engineering/stormweaver/database"
	"github.com/Konsultn-Engineering/stormweaver/discovery"
	"github.com/Konsultn-Engineering/stormweaver/metadata"
	"github.com/Konsultn-Engineering/stormweaver/random"
	"github.com/Konsultn-Engineering/stormweaver/statistics"
)

// ConnectorFunc produces a fresh exclusive connection for a worker.
type ConnectorFunc func() (database.Client, error)

// Worker owns one connection and the shared catalog, and provides the
// schema utilities scenarios call between (or instead of) random runs.
type Worker struct {
	name      string
	connector ConnectorFunc
	conn      database.Client
	params    Params
	cat       *metadata.Metadata
	rnd       *random.Random
	logger    *slog.Logger
}

// NewWorker connects and wraps the result. A nil logger selects a
// per-worker file logger under logs/.
func NewWorker(name string, connector ConnectorFunc, params Params,
	cat *metadata.Metadata, seed uint64, logger *slog.Logger) (*Worker, error) {

	conn, err := connector()
	if err != nil {
		return nil, fmt.Errorf("worker %s: connect: %w", name, err)
	}
	if logger == nil {
		logger = newWorkerLogger(name)
	}
	return &Worker{
		name:      name,
		connector: connector,
		conn:      conn,
		params:    params,
		cat:       cat,
		rnd:       random.New(seed),
		logger:    logger.With("worker", name),
	}, nil
}

func newWorkerLogger(name string) *slog.Logger {
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return slog.New(slog.DiscardHandler)
	}
	path := filepath.Join("logs", fmt.Sprintf("worker-%s.log", name))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(f, nil))
}

// Name returns the worker name.
func (w *Worker) Name() string {
	return w.name
}

// SqlConnection returns the worker's connection.
func (w *Worker) SqlConnection() database.Client {
	return w.conn
}

// Reconnect replaces the connection with a fresh one from the factory.
func (w *Worker) Reconnect() error {
	conn, err := w.connector()
	if err != nil {
		return fmt.Errorf("worker %s: reconnect: %w", w.name, err)
	}
	w.conn = conn
	return nil
}

// CreateRandomTables runs the create-table action the given number of
// times, for seeding a database before a random run.
func (w *Worker) CreateRandomTables(count int) error {
	for i := 0; i < count; i++ {
		creator := action.NewCreateTable(w.params.ActionConfig.Ddl, metadata.TableNormal)
		if err := creator.Execute(w.cat, w.rnd, w.conn); err != nil {
			return err
		}
	}
	return nil
}

// DiscoverExistingSchema reads the live database schema into the catalog.
func (w *Worker) DiscoverExistingSchema() error {
	w.logger.Info("starting schema discovery from existing database")

	d, err := discovery.New(w.conn)
	if err != nil {
		return err
	}
	populator := discovery.NewPopulator(w.cat, w.logger)
	if err := populator.PopulateFromExistingDatabase(d); err != nil {
		w.logger.Error("schema discovery failed", "error", err)
		return err
	}

	w.logger.Info("completed schema discovery", "tables", w.cat.Size())
	return nil
}

// ResetMetadata empties the shared catalog.
func (w *Worker) ResetMetadata() {
	w.cat.Reset()
}

// ValidateMetadata checks that rediscovering the schema reproduces the
// catalog: it snapshots, resets, rediscovers and compares. On mismatch
// both versions are dumped under logs/ and false is returned.
func (w *Worker) ValidateMetadata() bool {
	original := w.cat.Snapshot()

	w.ResetMetadata()
	if err := w.DiscoverExistingSchema(); err != nil {
		w.logger.Error("metadata validation failed with error", "error", err)
		return false
	}

	if w.cat.Equal(original) {
		return true
	}

	timestamp := time.Now().Format("20060102_150405") +
		fmt.Sprintf("_%03d", time.Now().Nanosecond()/1_000_000)
	writeMetadataFile(original, timestamp, "orig")
	writeMetadataFile(w.cat, timestamp, "new")
	w.logger.Error("metadata validation failed - reloaded metadata differs from original",
		"timestamp", timestamp)
	return false
}

func writeMetadataFile(cat *metadata.Metadata, timestamp, suffix string) {
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return
	}
	filename := filepath.Join("logs", fmt.Sprintf("metadata_%s.%s.txt", timestamp, suffix))
	_ = os.WriteFile(filename, []byte(cat.DebugDump()), 0o644)
}

// CalculateDatabaseChecksums hashes every table and writes the CSV report.
func (w *Worker) CalculateDatabaseChecksums(filename string) error {
	summer := checksum.New(w.conn, w.cat)
	if err := summer.CalculateAllTableChecksums(); err != nil {
		return err
	}
	return summer.WriteResultsToFile(filename)
}

// RandomWorker drives the weighted action loop on top of a Worker.
type RandomWorker struct {
	Worker

	actions *action.Registry
	stats   statistics.WorkerStatistics

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// NewRandomWorker wraps a worker with its action registry.
func NewRandomWorker(name string, connector ConnectorFunc, params Params,
	cat *metadata.Metadata, actions *action.Registry, seed uint64,
	logger *slog.Logger) (*RandomWorker, error) {

	base, err := NewWorker(name, connector, params, cat, seed, logger)
	if err != nil {
		return nil, err
	}
	return &RandomWorker{Worker: *base, actions: actions}, nil
}

// PossibleActions returns the worker's registry.
func (w *RandomWorker) PossibleActions() *action.Registry {
	return w.actions
}

// Stats returns the statistics of the last (or current) run.
func (w *RandomWorker) Stats() *statistics.WorkerStatistics {
	return &w.stats
}

// Run starts the action loop in its own goroutine for the given duration.
// A worker that is already running logs and returns.
func (w *RandomWorker) Run(duration time.Duration) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		w.logger.Error("thread is already running")
		return
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("worker starting, resetting statistics")
	w.stats.Reset()
	w.stats.Start()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop(duration)

		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()
}

// Join waits for the action loop to exit.
func (w *RandomWorker) Join() {
	w.wg.Wait()
}

func (w *RandomWorker) loop(duration time.Duration) {
	defer func() {
		w.stats.Stop()
		w.logger.Info("worker exiting")
		w.logger.Info("worker statistics", "report", w.stats.Report())
	}()

	connectionAttempts := 0
	deadline := time.Now().Add(duration)

	for time.Now().Before(deadline) {
		total := w.actions.TotalWeight()
		if total == 0 {
			return
		}

		factory, err := w.actions.LookupByWeightOffset(w.rnd.IntN(total))
		if err != nil {
			w.logger.Error("weighted lookup failed", "error", err)
			return
		}

		act := factory.Build(w.params.ActionConfig)

		w.stats.StartAction(factory.Name)
		w.conn.ResetAccumulatedSqlTime()

		execErr := runAction(act, w.cat, w.rnd, w.conn)
		sqlTime := w.conn.AccumulatedSqlTime()

		var actionErr *action.Error
		var sqlErr *database.SqlError
		switch {
		case execErr == nil:
			_ = w.stats.RecordSuccess(factory.Name, sqlTime)
			connectionAttempts = 0

		case errors.As(execErr, &actionErr):
			_ = w.stats.RecordActionFailure(factory.Name, actionErr.Name, sqlTime)
			w.logger.Warn("action failed",
				"action", factory.Name, "name", actionErr.Name, "error", actionErr.Message)

		case errors.As(execErr, &sqlErr):
			_ = w.stats.RecordSqlFailure(factory.Name, sqlErr.Code, sqlTime)
			w.logger.Warn("sql failed",
				"action", factory.Name, "code", sqlErr.Code, "error", sqlErr.Message)

			if sqlErr.ServerGone() {
				connectionAttempts++
				if connectionAttempts > w.params.MaxReconnectAttempts {
					w.logger.Error("giving up reconnecting, stopping worker",
						"attempts", connectionAttempts-1)
					return
				}
				if connectionAttempts > 1 {
					time.Sleep(time.Second)
				}
				w.logger.Warn("lost connection to the server, trying to reconnect")
				if err := w.Reconnect(); err != nil {
					w.logger.Error("reconnect failed", "error", err)
				}
			}

		default:
			_ = w.stats.RecordOtherFailure(factory.Name, sqlTime)
			w.logger.Warn("action failed (other)",
				"action", factory.Name, "error", execErr)
		}
	}
}

// runAction converts an action panic into an error so a misbehaving custom
// action is recorded as an other-failure instead of killing the worker.
func runAction(act action.Action, cat *metadata.Metadata, rnd *random.Random,
	conn database.Client) (err error) {

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panic: %v", r)
		}
	}()
	return act.Execute(cat, rnd, conn)
}
