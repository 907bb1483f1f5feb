package inmemdb

import (
	"context"
	"sync"

	"github.com/trezcool/feeledger/core/fee"
)

type (
	// Student is a roster entry. Rosters are managed outside the ledger; tests and fixtures seed them.
	Student struct {
		ID       string
		SchoolID string
		ClassID  string
		IsActive bool
	}

	tables struct {
		categories      map[string]fee.Category
		feeTypes        map[string]fee.FeeType
		groups          map[string]fee.Group
		plans           map[string]fee.Plan
		concessionTypes map[string]fee.ConcessionType
		structures      map[string]fee.Structure
		payments        map[string]fee.Payment
		concessions     []fee.Concession
		events          []fee.LedgerEvent
		students        map[string]Student
	}

	// DB is an in-memory fee.Store and fee.RosterProvider.
	// Units of work are serialized and run against a copy of the tables, swapped in on success.
	DB struct {
		*repository
		mutex sync.RWMutex
		t     *tables
	}

	// repository runs against the live tables (taking the lock per call) or against a transaction copy.
	repository struct {
		db *DB
		tx *tables
	}
)

var (
	_ fee.Store          = (*DB)(nil)
	_ fee.RosterProvider = (*DB)(nil)
)

func newTables() *tables {
	return &tables{
		categories:      make(map[string]fee.Category),
		feeTypes:        make(map[string]fee.FeeType),
		groups:          make(map[string]fee.Group),
		plans:           make(map[string]fee.Plan),
		concessionTypes: make(map[string]fee.ConcessionType),
		structures:      make(map[string]fee.Structure),
		payments:        make(map[string]fee.Payment),
		students:        make(map[string]Student),
	}
}

func (t *tables) clone() *tables {
	c := &tables{
		categories:      make(map[string]fee.Category, len(t.categories)),
		feeTypes:        make(map[string]fee.FeeType, len(t.feeTypes)),
		groups:          make(map[string]fee.Group, len(t.groups)),
		plans:           make(map[string]fee.Plan, len(t.plans)),
		concessionTypes: make(map[string]fee.ConcessionType, len(t.concessionTypes)),
		structures:      make(map[string]fee.Structure, len(t.structures)),
		payments:        make(map[string]fee.Payment, len(t.payments)),
		concessions:     append([]fee.Concession(nil), t.concessions...),
		events:          append([]fee.LedgerEvent(nil), t.events...),
		students:        make(map[string]Student, len(t.students)),
	}
	for k, v := range t.categories {
		c.categories[k] = v
	}
	for k, v := range t.feeTypes {
		c.feeTypes[k] = v
	}
	// groups and structures hold reference types; they are copied on every write and read, so sharing is safe
	for k, v := range t.groups {
		c.groups[k] = v
	}
	for k, v := range t.plans {
		c.plans[k] = v
	}
	for k, v := range t.concessionTypes {
		c.concessionTypes[k] = v
	}
	for k, v := range t.structures {
		c.structures[k] = v
	}
	for k, v := range t.payments {
		c.payments[k] = v
	}
	for k, v := range t.students {
		c.students[k] = v
	}
	return c
}

func Open() *DB {
	db := &DB{t: newTables()}
	db.repository = &repository{db: db}
	return db
}

// Atomic runs fn against a private copy of the tables and commits it only if fn succeeds.
func (db *DB) Atomic(ctx context.Context, fn func(repo fee.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db.mutex.Lock()
	defer db.mutex.Unlock()

	tx := &repository{db: db, tx: db.t.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	db.t = tx.tx
	return nil
}

// AddStudent seeds the roster.
func (db *DB) AddStudent(s Student) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.t.students[s.ID] = s
}

// Reset drops every record.
func (db *DB) Reset() {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.t = newTables()
}

// tbl must be called with the lock held.
func (r *repository) tbl() *tables {
	if r.tx != nil {
		return r.tx
	}
	return r.db.t
}

func (r *repository) rlock() func() {
	if r.tx != nil {
		return func() {}
	}
	r.db.mutex.RLock()
	return r.db.mutex.RUnlock
}

func (r *repository) lock() func() {
	if r.tx != nil {
		return func() {}
	}
	r.db.mutex.Lock()
	return r.db.mutex.Unlock
}
