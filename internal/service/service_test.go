package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pesio-ai/be-ops-indicators/internal/logger"
	"github.com/pesio-ai/be-ops-indicators/internal/repository"
	"github.com/pesio-ai/be-ops-indicators/internal/repository/memory"
)

var t0 = time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

const (
	testSecret      = "0123456789abcdef0123456789abcdef"
	testPlaceholder = "1234"
)

func strPtr(s string) *string { return &s }
func idPtr(id int64) *int64   { return &id }
func intPtr(i int) *int       { return &i }
func boolPtr(b bool) *bool    { return &b }

type recordingSink struct {
	mu      sync.Mutex
	entries []repository.AuditEntry
}

func (r *recordingSink) Publish(_ context.Context, e repository.AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recordingSink) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

type fakeLimiter struct {
	blocked  bool
	err      error
	failures map[string]int
}

func (f *fakeLimiter) Blocked(context.Context, string) (bool, error) {
	return f.blocked, f.err
}

func (f *fakeLimiter) RecordFailure(_ context.Context, key string) (int, error) {
	if f.failures == nil {
		f.failures = map[string]int{}
	}
	f.failures[key]++
	return f.failures[key], f.err
}

type fixture struct {
	t         *testing.T
	ctx       context.Context
	store     *memory.Store
	sink      *recordingSink
	limiter   *fakeLimiter
	hasher    *PasswordHasher
	resolver  *Resolver
	auth      *AuthService
	workflow  *WorkflowService
	directory *DirectoryService
	identity  *IdentityService
	seq       int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	sink := &recordingSink{}
	auditor := NewAuditor(sink)
	hasher := NewPasswordHasher(bcrypt.MinCost)
	limiter := &fakeLimiter{}
	log := logger.Nop()

	resolver, err := NewResolver(hasher, testPlaceholder)
	require.NoError(t, err)

	auth, err := NewAuthService(store, hasher, limiter, auditor, TokenConfig{
		Secret: []byte(testSecret),
		TTL:    12 * time.Hour,
		Leeway: 2 * time.Minute,
		Issuer: "be-ops-indicators",
	}, log)
	require.NoError(t, err)

	clock := func() time.Time { return t0 }
	auth.now = clock
	workflow := NewWorkflowService(store, resolver, auditor, log)
	workflow.now = clock
	directory := NewDirectoryService(store, auditor, log)
	directory.now = clock
	identity := NewIdentityService(store, hasher, testPlaceholder, auditor, log)
	identity.now = clock

	return &fixture{
		t:         t,
		ctx:       context.Background(),
		store:     store,
		sink:      sink,
		limiter:   limiter,
		hasher:    hasher,
		resolver:  resolver,
		auth:      auth,
		workflow:  workflow,
		directory: directory,
		identity:  identity,
	}
}

func (f *fixture) tx(fn func(tx repository.Tx) error) {
	f.t.Helper()
	require.NoError(f.t, f.store.InTransaction(f.ctx, fn))
}

func (f *fixture) view(fn func(tx repository.Tx) error) {
	f.t.Helper()
	require.NoError(f.t, f.store.View(f.ctx, fn))
}

func (f *fixture) sector(name string) int64 {
	f.t.Helper()
	s := &repository.Sector{Name: name, Active: true, CreatedAt: t0}
	f.tx(func(tx repository.Tx) error { return tx.Sectors().Create(f.ctx, s) })
	return s.ID
}

func (f *fixture) employee(name, email string, level int, sectorID *int64, secret string) Actor {
	f.t.Helper()
	hash, err := f.hasher.Hash(secret)
	require.NoError(f.t, err)
	e := &repository.Employee{
		Name: name, Email: email, Level: level, SectorID: sectorID,
		Active: true, PasswordHash: hash, CreatedAt: t0,
	}
	f.tx(func(tx repository.Tx) error { return tx.Employees().Create(f.ctx, e) })
	return Actor{ID: e.ID, Level: level, SectorID: sectorID, Name: name, Email: email}
}

func (f *fixture) actor(level int, sectorID *int64) Actor {
	f.t.Helper()
	f.seq++
	return f.employee(fmt.Sprintf("User %d", f.seq), fmt.Sprintf("user%d@empresa.com", f.seq), level, sectorID, "secret")
}

func (f *fixture) indicator(sectorID int64, code string, responsible *int64) *repository.Indicator {
	f.t.Helper()
	ind := &repository.Indicator{
		SectorID: sectorID, Code: code, Name: "Indicator " + code,
		Active: true, ResponsibleID: responsible, CreatedAt: t0,
	}
	f.tx(func(tx repository.Tx) error { return tx.Indicators().Create(f.ctx, ind) })
	return ind
}

func (f *fixture) draft(id int64) *repository.Draft {
	f.t.Helper()
	var d *repository.Draft
	f.view(func(tx repository.Tx) error {
		var err error
		d, err = tx.Drafts().GetForUpdate(f.ctx, id)
		return err
	})
	return d
}

func (f *fixture) values(sectorID int64) []*repository.Value {
	f.t.Helper()
	var out []*repository.Value
	f.view(func(tx repository.Tx) error {
		var err error
		out, err = tx.Values().List(f.ctx, sectorID, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
		return err
	})
	return out
}

func valuesRequest(sectorID int64, email, period string, items ...ItemInput) *ValuesRequest {
	return &ValuesRequest{
		Sector:   SectorRef{ID: idPtr(sectorID)},
		Employee: EmployeeRef{Email: email},
		Period:   period,
		Items:    items,
	}
}

func codeItem(code, value string) ItemInput {
	return ItemInput{Indicator: IndicatorRef{Code: code}, Value: strPtr(value)}
}
