package metadata

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// MaxTables is the fixed capacity of the catalog slot array.
const MaxTables = 1024

// Npos marks "no slot".
const Npos = -1

var (
	// ErrInvalidReservation is returned when completing a cancelled or
	// never-opened reservation.
	ErrInvalidReservation = errors.New("complete on invalid reservation")
	// ErrDoubleComplete is returned when completing a reservation twice.
	ErrDoubleComplete = errors.New("double complete not allowed")
)

// Metadata is the concurrent catalog of client-side table models. Slots
// [0, Size()) are always populated (no holes); each slot carries its own
// reader-writer lock and all mutation flows through Reservations.
//
// Size changes are gated by the lock of the current last slot: CREATE
// installs and DROP compaction both acquire it before touching tableCount,
// which is what keeps concurrent CREATE/DROP from tearing the tail of the
// array without a global lock.
type Metadata struct {
	tables [MaxTables]*Table
	locks  [MaxTables]sync.RWMutex

	tableCount   atomic.Int64
	reservedSize atomic.Int64

	// movedTo records, best effort, where DROP compaction relocated the
	// table that previously lived in a slot. Not part of correctness.
	movedTo [MaxTables]atomic.Int64

	// dropMoveHook runs between choosing the last slot and locking it
	// during DROP compaction. Tests use it to widen the race window.
	dropMoveHook func()
}

// New returns an empty catalog.
func New() *Metadata {
	m := &Metadata{}
	for i := range m.movedTo {
		m.movedTo[i].Store(Npos)
	}
	return m
}

// Size returns the number of visible tables.
func (m *Metadata) Size() int {
	return int(m.tableCount.Load())
}

// Get returns the table at the slot, or nil for an empty or out-of-range
// slot. The returned pointer is a shared snapshot: installed tables are
// never edited in place, so it stays valid across later ALTERs.
func (m *Metadata) Get(idx int) *Table {
	if idx < 0 || idx >= MaxTables {
		return nil
	}
	m.locks[idx].RLock()
	defer m.locks[idx].RUnlock()
	return m.tables[idx]
}

// MovedTo reports where DROP compaction last relocated the table that
// occupied the slot, or Npos. Best effort only.
func (m *Metadata) MovedTo(idx int) int {
	if idx < 0 || idx >= MaxTables {
		return Npos
	}
	return int(m.movedTo[idx].Load())
}

// SetDropMoveHook installs a test hook invoked between choosing the last
// slot and locking it inside DROP compaction.
func (m *Metadata) SetDropMoveHook(fn func()) {
	m.dropMoveHook = fn
}

// Reset empties the catalog.
func (m *Metadata) Reset() {
	for i := 0; i < MaxTables; i++ {
		m.locks[i].Lock()
		m.tables[i] = nil
		m.movedTo[i].Store(Npos)
		m.locks[i].Unlock()
	}
	m.tableCount.Store(0)
	m.reservedSize.Store(0)
}

// Snapshot returns a deep copy of the catalog contents.
func (m *Metadata) Snapshot() *Metadata {
	c := New()
	for i := 0; i < MaxTables; i++ {
		m.locks[i].RLock()
		if m.tables[i] != nil {
			c.tables[i] = m.tables[i].Clone()
		}
		c.movedTo[i].Store(m.movedTo[i].Load())
		m.locks[i].RUnlock()
	}
	c.tableCount.Store(m.tableCount.Load())
	c.reservedSize.Store(m.reservedSize.Load())
	return c
}

func (m *Metadata) sortedTables() []*Table {
	var tables []*Table
	for i := 0; i < MaxTables; i++ {
		if t := m.Get(i); t != nil {
			tables = append(tables, t)
		}
	}
	sort.Slice(tables, func(a, b int) bool {
		return tables[a].Name < tables[b].Name
	})
	return tables
}

// Equal compares two catalogs as name-sorted table lists; slot positions do
// not matter.
func (m *Metadata) Equal(other *Metadata) bool {
	if m.Size() != other.Size() {
		return false
	}
	mine := m.sortedTables()
	theirs := other.sortedTables()
	if len(mine) != len(theirs) {
		return false
	}
	for i := range mine {
		if !mine[i].Equal(theirs[i]) {
			return false
		}
	}
	return true
}

// DebugDump renders every table, sorted by name, in the format written to
// validation mismatch files.
func (m *Metadata) DebugDump() string {
	var lines []string
	lines = append(lines, fmt.Sprintf("Metadata dump (size=%d):", m.Size()))
	for _, t := range m.sortedTables() {
		lines = append(lines, t.DebugString(), "")
	}
	return strings.Join(lines, "\n")
}

type reservationState int

const (
	reservationPending reservationState = iota
	reservationCompleted
	reservationCancelled
)

// Reservation is a scope-bound mutation ticket on the catalog, one of three
// modes: CREATE (slot assigned on Complete), ALTER (slot write-locked,
// carries a private deep copy) and DROP (slot write-locked, carries the
// current table). Callers must finish with Complete or Cancel; Cancel is
// idempotent and safe to defer alongside a Complete.
type Reservation struct {
	storage *Metadata
	table   *Table
	drop    bool
	index   int
	locked  bool
	state   reservationState
}

func closedReservation() *Reservation {
	return &Reservation{index: Npos, state: reservationCancelled}
}

// ReserveCreate reserves capacity for a new table. When the catalog is
// full, the returned reservation is closed (Open reports false); that is
// not an error. The carried Table is fresh and owned by the caller until
// Complete installs it.
func (m *Metadata) ReserveCreate() *Reservation {
	for {
		cur := m.reservedSize.Load()
		if cur >= MaxTables {
			return closedReservation()
		}
		if m.reservedSize.CompareAndSwap(cur, cur+1) {
			break
		}
	}
	return &Reservation{storage: m, table: &Table{}, index: Npos}
}

// ReserveAlter write-locks the slot and hands out a deep copy of its table
// for private editing. Returns a closed reservation when the slot is empty.
func (m *Metadata) ReserveAlter(idx int) *Reservation {
	if idx < 0 || idx >= MaxTables {
		return closedReservation()
	}
	m.locks[idx].Lock()
	t := m.tables[idx]
	if t == nil {
		m.locks[idx].Unlock()
		return closedReservation()
	}
	return &Reservation{storage: m, table: t.Clone(), index: idx, locked: true}
}

// ReserveDrop write-locks the slot and carries its current table. Returns a
// closed reservation when the slot is empty.
func (m *Metadata) ReserveDrop(idx int) *Reservation {
	if idx < 0 || idx >= MaxTables {
		return closedReservation()
	}
	m.locks[idx].Lock()
	t := m.tables[idx]
	if t == nil {
		m.locks[idx].Unlock()
		return closedReservation()
	}
	return &Reservation{storage: m, table: t, drop: true, index: idx, locked: true}
}

// Open reports whether the reservation is still pending and usable.
func (r *Reservation) Open() bool {
	return r.storage != nil && r.state == reservationPending
}

// Table returns the carried table: the fresh table for CREATE, the private
// copy for ALTER, the live table for DROP.
func (r *Reservation) Table() *Table {
	return r.table
}

// Index returns the slot this reservation refers to; Npos for a CREATE
// reservation that has not completed yet.
func (r *Reservation) Index() int {
	return r.index
}

// Complete applies the reservation: install for CREATE, publish the edited
// copy for ALTER, compact for DROP. Completing twice returns
// ErrDoubleComplete; completing a cancelled or closed reservation returns
// ErrInvalidReservation.
func (r *Reservation) Complete() error {
	if r.state == reservationCompleted {
		return ErrDoubleComplete
	}
	if r.storage == nil || r.state != reservationPending {
		return ErrInvalidReservation
	}

	switch {
	case r.index == Npos:
		r.completeCreate()
	case r.drop:
		r.completeDrop()
	default:
		r.completeAlter()
	}
	r.state = reservationCompleted
	return nil
}

// Cancel releases the reservation without applying it: a CREATE gives back
// its capacity reservation, ALTER and DROP release the slot lock. Calling
// Cancel after Complete, or more than once, is a no-op.
func (r *Reservation) Cancel() {
	if r.storage == nil || r.state != reservationPending {
		return
	}
	if r.index == Npos {
		r.storage.reservedSize.Add(-1)
	}
	if r.locked {
		r.storage.locks[r.index].Unlock()
		r.locked = false
	}
	r.table = nil
	r.state = reservationCancelled
}

// completeAlter publishes the edited copy into the locked slot.
func (r *Reservation) completeAlter() {
	m := r.storage
	m.tables[r.index] = r.table
	m.locks[r.index].Unlock()
	r.locked = false
}

// completeCreate installs the new table after the current last slot. The
// loop acquires the last slot's lock, verifies it is still the last (a
// racing CREATE or DROP may have moved it), then locks the target slot and
// installs. tableCount is only ever advanced under the last-slot lock.
func (r *Reservation) completeCreate() {
	m := r.storage
	for {
		next := int(m.tableCount.Load())
		outer := Npos
		if next > 0 {
			last := next - 1
			m.locks[last].Lock()
			if m.tables[last] == nil || next != int(m.tableCount.Load()) {
				// No longer the last slot; a CREATE or DROP won the race.
				m.locks[last].Unlock()
				continue
			}
			outer = last
		}

		m.locks[next].Lock()
		if next == 0 && m.tableCount.Load() != 0 {
			// Another first CREATE claimed slot 0 while we held no gate.
			m.locks[next].Unlock()
			continue
		}

		m.tables[next] = r.table
		m.tableCount.Add(1)
		r.index = next

		m.locks[next].Unlock()
		if outer != Npos {
			m.locks[outer].Unlock()
		}
		return
	}
}

// completeDrop removes the locked slot's table and keeps the array compact:
// dropping the last slot just clears it, dropping an inner slot moves the
// current last table into the hole. The last-slot lock doubles as the size
// gate, so a racing CREATE waits on it instead of installing past a hole.
func (r *Reservation) completeDrop() {
	m := r.storage
	for {
		if r.index == int(m.tableCount.Load())-1 {
			m.tables[r.index] = nil
			m.tableCount.Add(-1)
			m.reservedSize.Add(-1)
			m.movedTo[r.index].Store(Npos)
			m.locks[r.index].Unlock()
			r.locked = false
			return
		}

		last := int(m.tableCount.Load()) - 1
		if m.dropMoveHook != nil {
			m.dropMoveHook()
		}
		m.locks[last].Lock()
		if m.tables[last] == nil || last != int(m.tableCount.Load())-1 {
			// A racing CREATE or DROP changed the tail; retry against the
			// new last slot.
			m.locks[last].Unlock()
			continue
		}

		m.tables[r.index] = m.tables[last]
		m.locks[r.index].Unlock()
		r.locked = false
		m.tableCount.Add(-1)
		m.reservedSize.Add(-1)
		m.tables[last] = nil
		m.movedTo[last].Store(int64(r.index))
		m.locks[last].Unlock()
		return
	}
}

// CreateTable runs fn with a CREATE reservation. When the catalog is full,
// fn is not invoked. The reservation cancels on return unless fn completed
// it.
func (m *Metadata) CreateTable(fn func(*Reservation) error) error {
	res := m.ReserveCreate()
	defer res.Cancel()
	if !res.Open() {
		return nil
	}
	return fn(res)
}

// AlterTable runs fn with an ALTER reservation on the slot; fn is skipped
// for empty slots. The reservation cancels on return unless fn completed it.
func (m *Metadata) AlterTable(idx int, fn func(*Reservation) error) error {
	res := m.ReserveAlter(idx)
	defer res.Cancel()
	if !res.Open() {
		return nil
	}
	return fn(res)
}

// DropTable runs fn with a DROP reservation on the slot; fn is skipped for
// empty slots. The reservation cancels on return unless fn completed it.
func (m *Metadata) DropTable(idx int, fn func(*Reservation) error) error {
	res := m.ReserveDrop(idx)
	defer res.Cancel()
	if !res.Open() {
		return nil
	}
	return fn(res)
}
