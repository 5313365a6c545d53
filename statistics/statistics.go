package statistics

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gertd/go-pluralize"
)

// ErrNotStarted is returned when a result is recorded for an action whose
// StartAction was never called.
var ErrNotStarted = errors.New("StartAction must be called before recording results")

var plural = pluralize.NewClient()

// TimingStatistics accumulates durations.
type TimingStatistics struct {
	Total time.Duration
	Min   time.Duration
	Max   time.Duration
	Count uint64
}

// Record adds one duration.
func (t *TimingStatistics) Record(d time.Duration) {
	if t.Count == 0 || d < t.Min {
		t.Min = d
	}
	if d > t.Max {
		t.Max = d
	}
	t.Total += d
	t.Count++
}

// AverageMs returns the mean in milliseconds, zero when empty.
func (t *TimingStatistics) AverageMs() float64 {
	if t.Count == 0 {
		return 0
	}
	return float64(t.Total) / float64(t.Count) / float64(time.Millisecond)
}

// MinMs returns the minimum in milliseconds, zero when empty.
func (t *TimingStatistics) MinMs() float64 {
	if t.Count == 0 {
		return 0
	}
	return float64(t.Min) / float64(time.Millisecond)
}

// MaxMs returns the maximum in milliseconds, zero when empty.
func (t *TimingStatistics) MaxMs() float64 {
	if t.Count == 0 {
		return 0
	}
	return float64(t.Max) / float64(time.Millisecond)
}

func (t *TimingStatistics) Reset() {
	*t = TimingStatistics{}
}

func (t *TimingStatistics) HasData() bool {
	return t.Count > 0
}

// ActionStatistics aggregates outcomes for one action kind.
type ActionStatistics struct {
	SuccessCount       uint64
	ActionFailureCount uint64
	SqlFailureCount    uint64
	OtherFailureCount  uint64

	ActionErrorNames map[string]uint64
	SqlErrorCodes    map[string]uint64

	ExecutionTiming TimingStatistics
	SqlTiming       TimingStatistics

	startTime time.Time
}

// Start marks the wall-clock begin of one execution.
func (a *ActionStatistics) Start() {
	a.startTime = time.Now()
}

func (a *ActionStatistics) executionTime() (time.Duration, error) {
	if a.startTime.IsZero() {
		return 0, ErrNotStarted
	}
	return time.Since(a.startTime), nil
}

func (a *ActionStatistics) record(sqlTime time.Duration) error {
	execTime, err := a.executionTime()
	if err != nil {
		return err
	}
	a.ExecutionTiming.Record(execTime)
	a.SqlTiming.Record(sqlTime)
	return nil
}

// RecordSuccess records a successful execution with its SQL time.
func (a *ActionStatistics) RecordSuccess(sqlTime time.Duration) error {
	if err := a.record(sqlTime); err != nil {
		return err
	}
	a.SuccessCount++
	return nil
}

// RecordActionFailure records a failed action precondition.
func (a *ActionStatistics) RecordActionFailure(errorName string, sqlTime time.Duration) error {
	if err := a.record(sqlTime); err != nil {
		return err
	}
	a.ActionFailureCount++
	if a.ActionErrorNames == nil {
		a.ActionErrorNames = make(map[string]uint64)
	}
	a.ActionErrorNames[errorName]++
	return nil
}

// RecordSqlFailure records a failed statement by SQLSTATE.
func (a *ActionStatistics) RecordSqlFailure(errorCode string, sqlTime time.Duration) error {
	if err := a.record(sqlTime); err != nil {
		return err
	}
	a.SqlFailureCount++
	if a.SqlErrorCodes == nil {
		a.SqlErrorCodes = make(map[string]uint64)
	}
	a.SqlErrorCodes[errorCode]++
	return nil
}

// RecordOtherFailure records any other failure.
func (a *ActionStatistics) RecordOtherFailure(sqlTime time.Duration) error {
	if err := a.record(sqlTime); err != nil {
		return err
	}
	a.OtherFailureCount++
	return nil
}

func (a *ActionStatistics) TotalCount() uint64 {
	return a.SuccessCount + a.ActionFailureCount + a.SqlFailureCount + a.OtherFailureCount
}

func (a *ActionStatistics) TotalFailureCount() uint64 {
	return a.ActionFailureCount + a.SqlFailureCount + a.OtherFailureCount
}

// SuccessRate returns the success percentage, zero when empty.
func (a *ActionStatistics) SuccessRate() float64 {
	total := a.TotalCount()
	if total == 0 {
		return 0
	}
	return float64(a.SuccessCount) / float64(total) * 100
}

func (a *ActionStatistics) Reset() {
	*a = ActionStatistics{}
}

func (a *ActionStatistics) HasData() bool {
	return a.TotalCount() > 0
}

// WorkerStatistics aggregates per-action statistics over one worker run.
type WorkerStatistics struct {
	Actions map[string]*ActionStatistics

	startTime time.Time
	endTime   time.Time
}

func (w *WorkerStatistics) action(name string) *ActionStatistics {
	if w.Actions == nil {
		w.Actions = make(map[string]*ActionStatistics)
	}
	a, ok := w.Actions[name]
	if !ok {
		a = &ActionStatistics{}
		w.Actions[name] = a
	}
	return a
}

// StartAction marks the begin of one execution of the named action.
func (w *WorkerStatistics) StartAction(name string) {
	w.action(name).Start()
}

func (w *WorkerStatistics) RecordSuccess(name string, sqlTime time.Duration) error {
	return w.action(name).RecordSuccess(sqlTime)
}

func (w *WorkerStatistics) RecordActionFailure(name, errorName string, sqlTime time.Duration) error {
	return w.action(name).RecordActionFailure(errorName, sqlTime)
}

func (w *WorkerStatistics) RecordSqlFailure(name, errorCode string, sqlTime time.Duration) error {
	return w.action(name).RecordSqlFailure(errorCode, sqlTime)
}

func (w *WorkerStatistics) RecordOtherFailure(name string, sqlTime time.Duration) error {
	return w.action(name).RecordOtherFailure(sqlTime)
}

// Start begins the wall clock of the worker run.
func (w *WorkerStatistics) Start() {
	w.startTime = time.Now()
	w.endTime = w.startTime
}

// Stop ends the wall clock of the worker run.
func (w *WorkerStatistics) Stop() {
	w.endTime = time.Now()
}

func (w *WorkerStatistics) Reset() {
	w.Actions = nil
	w.startTime = time.Now()
	w.endTime = w.startTime
}

func (w *WorkerStatistics) TotalDurationSeconds() float64 {
	return w.endTime.Sub(w.startTime).Seconds()
}

func (w *WorkerStatistics) TotalActionCount() uint64 {
	var total uint64
	for _, a := range w.Actions {
		total += a.TotalCount()
	}
	return total
}

func (w *WorkerStatistics) TotalSuccessCount() uint64 {
	var total uint64
	for _, a := range w.Actions {
		total += a.SuccessCount
	}
	return total
}

func (w *WorkerStatistics) TotalFailureCount() uint64 {
	var total uint64
	for _, a := range w.Actions {
		total += a.TotalFailureCount()
	}
	return total
}

// OverallSuccessRate returns the success percentage across all actions.
func (w *WorkerStatistics) OverallSuccessRate() float64 {
	total := w.TotalActionCount()
	if total == 0 {
		return 0
	}
	return float64(w.TotalSuccessCount()) / float64(total) * 100
}

// ActionsPerSecond returns the throughput over the recorded wall clock.
func (w *WorkerStatistics) ActionsPerSecond() float64 {
	duration := w.TotalDurationSeconds()
	if duration <= 0 {
		return 0
	}
	return float64(w.TotalActionCount()) / duration
}

func (w *WorkerStatistics) HasData() bool {
	return w.TotalActionCount() > 0
}

// ReportSummary renders the worker totals.
func (w *WorkerStatistics) ReportSummary() string {
	var b strings.Builder
	b.WriteString("Worker Summary:\n")
	fmt.Fprintf(&b, "  Total: %s\n", plural.Pluralize("action", int(w.TotalActionCount()), true))
	fmt.Fprintf(&b, "  Successful: %d\n", w.TotalSuccessCount())
	fmt.Fprintf(&b, "  Failed: %d\n", w.TotalFailureCount())
	fmt.Fprintf(&b, "  Success rate: %.2f%%\n", w.OverallSuccessRate())
	fmt.Fprintf(&b, "  Duration: %.2fs\n", w.TotalDurationSeconds())
	fmt.Fprintf(&b, "  Actions/sec: %.2f\n", w.ActionsPerSecond())
	return b.String()
}

// ReportDetailed renders per-action sections, sorted by action name.
func (w *WorkerStatistics) ReportDetailed() string {
	var b strings.Builder
	b.WriteString("\nDetailed Action Statistics:\n")
	b.WriteString(strings.Repeat("-", 80) + "\n")

	names := make([]string, 0, len(w.Actions))
	for name := range w.Actions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		a := w.Actions[name]
		if !a.HasData() {
			continue
		}

		fmt.Fprintf(&b, "Action: %s\n", name)
		fmt.Fprintf(&b, "  Total: %d (Success: %d, Action Fail: %d, SQL Fail: %d, Other Fail: %d)\n",
			a.TotalCount(), a.SuccessCount, a.ActionFailureCount,
			a.SqlFailureCount, a.OtherFailureCount)
		fmt.Fprintf(&b, "  Success Rate: %.2f%%\n", a.SuccessRate())

		if a.ExecutionTiming.HasData() {
			fmt.Fprintf(&b, "  Execution Time: avg=%.2fms, min=%.2fms, max=%.2fms\n",
				a.ExecutionTiming.AverageMs(), a.ExecutionTiming.MinMs(), a.ExecutionTiming.MaxMs())
		}
		if a.SqlTiming.HasData() {
			fmt.Fprintf(&b, "  SQL Time: avg=%.2fms, min=%.2fms, max=%.2fms\n",
				a.SqlTiming.AverageMs(), a.SqlTiming.MinMs(), a.SqlTiming.MaxMs())
		}

		if len(a.ActionErrorNames) > 0 {
			fmt.Fprintf(&b, "  Action Errors: %s\n", formatCounts(a.ActionErrorNames))
		}
		if len(a.SqlErrorCodes) > 0 {
			fmt.Fprintf(&b, "  SQL Errors: %s\n", formatCounts(a.SqlErrorCodes))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Report renders the summary followed by the detailed section.
func (w *WorkerStatistics) Report() string {
	return w.ReportSummary() + w.ReportDetailed()
}

func formatCounts(m map[string]uint64) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return strings.Join(parts, ", ")
}
