package inmemdb

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/appointment"
	"github.com/trezcool/shule/core/fee"
	"github.com/trezcool/shule/core/leave"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/transfer"
	"github.com/trezcool/shule/core/user"
)

type (
	// DB is an in-memory store implementing every Repository and core.Transactor.
	// Units of work are serialized; a failed unit restores the snapshot taken when it started.
	DB struct {
		txMu sync.Mutex   // held for the whole life of a unit of work
		mu   sync.RWMutex // guards data
		data *tables
	}

	tables struct {
		users        map[string]user.User
		schools      map[string]school.School
		classes      map[string]school.Class
		students     map[string]student.Student
		ledgers      map[string]fee.Ledger
		payments     []fee.Payment
		orders       map[string]fee.Order
		certificates map[string]transfer.Certificate
		histories    []transfer.StudentHistory
		leaves       map[string]leave.Request
		appointments map[string]appointment.Appointment
		messages     []appointment.Message
	}

	// txExec marks the calls made inside a unit of work. Its SQL methods are never called.
	txExec struct {
		core.DBExecutor
	}
)

var _ core.Transactor = (*DB)(nil)

func Open() *DB {
	return &DB{data: newTables()}
}

func newTables() *tables {
	return &tables{
		users:        make(map[string]user.User),
		schools:      make(map[string]school.School),
		classes:      make(map[string]school.Class),
		students:     make(map[string]student.Student),
		ledgers:      make(map[string]fee.Ledger),
		orders:       make(map[string]fee.Order),
		certificates: make(map[string]transfer.Certificate),
		leaves:       make(map[string]leave.Request),
		appointments: make(map[string]appointment.Appointment),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	c := make(map[K]V, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func cloneSlice[V any](s []V) []V {
	return append([]V(nil), s...)
}

func (t *tables) clone() *tables {
	return &tables{
		users:        cloneMap(t.users),
		schools:      cloneMap(t.schools),
		classes:      cloneMap(t.classes),
		students:     cloneMap(t.students),
		ledgers:      cloneMap(t.ledgers),
		payments:     cloneSlice(t.payments),
		orders:       cloneMap(t.orders),
		certificates: cloneMap(t.certificates),
		histories:    cloneSlice(t.histories),
		leaves:       cloneMap(t.leaves),
		appointments: cloneMap(t.appointments),
		messages:     cloneSlice(t.messages),
	}
}

// Flush empties every table.
func (db *DB) Flush() {
	db.txMu.Lock()
	defer db.txMu.Unlock()
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data = newTables()
}

func (db *DB) RunInTx(ctx context.Context, fn func(exec core.DBExecutor) error) (err error) {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.RLock()
	snapshot := db.data.clone()
	db.mu.RUnlock()

	defer func() {
		if p := recover(); p != nil {
			db.restore(snapshot)
			panic(p)
		}
		if err != nil {
			db.restore(snapshot)
		}
	}()
	if err = ctx.Err(); err != nil {
		return err
	}
	return fn(txExec{})
}

func (db *DB) restore(snapshot *tables) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data = snapshot
}

func inTx(exec []core.DBExecutor) bool {
	if len(exec) == 0 {
		return false
	}
	_, ok := exec[0].(txExec)
	return ok
}

// write runs fn with exclusive access to the tables.
// Outside of a unit of work, fn also waits for running units to end.
func (db *DB) write(exec []core.DBExecutor, fn func(t *tables) error) error {
	if !inTx(exec) {
		db.txMu.Lock()
		defer db.txMu.Unlock()
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	return fn(db.data)
}

func (db *DB) read(fn func(t *tables) error) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return fn(db.data)
}

// byCreation sorts s by creation time, then ID.
func byCreation[V any](s []V, key func(v V) (time.Time, string)) {
	sort.SliceStable(s, func(i, j int) bool {
		ti, idi := key(s[i])
		tj, idj := key(s[j])
		if ti.Equal(tj) {
			return idi < idj
		}
		return ti.Before(tj)
	})
}
