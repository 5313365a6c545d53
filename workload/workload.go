package workload

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Konsultn-Engineering/stormweaver/action"
	"github.com/Konsultn-Engineering/stormweaver/metadata"
)

// Workload owns a population of random workers over one shared catalog.
type Workload struct {
	durationInSeconds int
	repeatTimes       int
	runID             string
	workers           []*RandomWorker
	actions           *action.Registry
}

// NewWorkload builds the workers. Worker i is named "Worker i" (1-based)
// and seeded with params.Seed + i, so a run with the same seed draws the
// same action sequence. A zero seed picks the current time.
func NewWorkload(params Params, connector func(name string) ConnectorFunc,
	cat *metadata.Metadata, actions *action.Registry, logger *slog.Logger) (*Workload, error) {

	w := &Workload{
		durationInSeconds: params.DurationInSeconds,
		repeatTimes:       params.RepeatTimes,
		runID:             ulid.Make().String(),
		actions:           actions,
	}

	if params.RepeatTimes == 0 {
		return w, nil
	}

	seed := params.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	if logger != nil {
		logger = logger.With("run_id", w.runID)
	}

	for i := 0; i < params.NumberOfWorkers; i++ {
		name := fmt.Sprintf("Worker %d", i+1)
		worker, err := NewRandomWorker(name, connector(name), params, cat,
			actions, seed+uint64(i)+1, logger)
		if err != nil {
			return nil, err
		}
		w.workers = append(w.workers, worker)
	}
	return w, nil
}

// RunID identifies this workload instance in logs and reports.
func (w *Workload) RunID() string {
	return w.runID
}

// Run starts every worker for the configured duration.
func (w *Workload) Run() {
	for _, worker := range w.workers {
		worker.Run(time.Duration(w.durationInSeconds) * time.Second)
	}
}

// WaitCompletion joins every worker.
func (w *Workload) WaitCompletion() {
	for _, worker := range w.workers {
		worker.Join()
	}
}

// ReconnectWorkers forces a fresh connection on every worker.
func (w *Workload) ReconnectWorkers() error {
	for _, worker := range w.workers {
		if err := worker.Reconnect(); err != nil {
			return err
		}
	}
	return nil
}

// Worker returns the 1-based i-th worker.
func (w *Workload) Worker(idx int) (*RandomWorker, error) {
	if idx < 1 || idx > len(w.workers) {
		return nil, fmt.Errorf("no such worker %d, maximum is %d", idx, len(w.workers))
	}
	return w.workers[idx-1], nil
}

// WorkerCount returns the number of workers.
func (w *Workload) WorkerCount() int {
	return len(w.workers)
}
