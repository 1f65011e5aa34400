// Package memory provides an in-process transactional implementation of
// repository.Store. Each transaction works on a clone of the state that is
// swapped in only when the callback succeeds, so a failed call leaves no
// trace. Transactions are serialised by a single mutex.
package memory

import (
	"context"
	"sync"

	"github.com/pesio-ai/be-ops-indicators/internal/repository"
)

type state struct {
	sectors    map[int64]repository.Sector
	employees  map[int64]repository.Employee
	indicators map[int64]repository.Indicator
	drafts     map[int64]repository.Draft
	values     map[int64]repository.Value
	audit      []repository.AuditEntry
	seq        map[string]int64
}

func newState() state {
	return state{
		sectors:    map[int64]repository.Sector{},
		employees:  map[int64]repository.Employee{},
		indicators: map[int64]repository.Indicator{},
		drafts:     map[int64]repository.Draft{},
		values:     map[int64]repository.Value{},
		seq:        map[string]int64{},
	}
}

// clone copies every table. Rows are stored by value and their pointer
// fields are never mutated in place, so a shallow row copy is enough.
func (s state) clone() state {
	c := state{
		sectors:    make(map[int64]repository.Sector, len(s.sectors)),
		employees:  make(map[int64]repository.Employee, len(s.employees)),
		indicators: make(map[int64]repository.Indicator, len(s.indicators)),
		drafts:     make(map[int64]repository.Draft, len(s.drafts)),
		values:     make(map[int64]repository.Value, len(s.values)),
		audit:      append([]repository.AuditEntry(nil), s.audit...),
		seq:        make(map[string]int64, len(s.seq)),
	}
	for k, v := range s.sectors {
		c.sectors[k] = v
	}
	for k, v := range s.employees {
		c.employees[k] = v
	}
	for k, v := range s.indicators {
		c.indicators[k] = v
	}
	for k, v := range s.drafts {
		c.drafts[k] = v
	}
	for k, v := range s.values {
		c.values[k] = v
	}
	for k, v := range s.seq {
		c.seq[k] = v
	}
	return c
}

func (s *state) nextID(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

// FaultFunc is consulted before every mutation with the operation name
// (for example "values.upsert"). A non-nil return aborts the operation.
type FaultFunc func(op string) error

// Store is the in-memory repository.Store.
type Store struct {
	mu    sync.Mutex
	state state
	fault FaultFunc
}

// New creates an empty store.
func New() *Store {
	return &Store{state: newState()}
}

// InjectFault installs a hook used by tests to make a mutation fail.
func (s *Store) InjectFault(fn FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

// InTransaction runs fn against a clone and commits it on success.
func (s *Store) InTransaction(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{state: s.state.clone(), fault: s.fault}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// View runs fn against a snapshot that is always discarded.
func (s *Store) View(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	snapshot := s.state.clone()
	s.mu.Unlock()

	return fn(&memTx{state: snapshot})
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// AuditEntries returns a copy of every committed audit entry, oldest first.
func (s *Store) AuditEntries() []repository.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]repository.AuditEntry(nil), s.state.audit...)
}

type memTx struct {
	state state
	fault FaultFunc
}

func (t *memTx) check(op string) error {
	if t.fault == nil {
		return nil
	}
	return t.fault(op)
}

func (t *memTx) Sectors() repository.Sectors       { return sectors{t} }
func (t *memTx) Employees() repository.Employees   { return employees{t} }
func (t *memTx) Indicators() repository.Indicators { return indicators{t} }
func (t *memTx) Drafts() repository.Drafts         { return drafts{t} }
func (t *memTx) Values() repository.Values         { return values{t} }
func (t *memTx) Audit() repository.AuditLog        { return auditLog{t} }
