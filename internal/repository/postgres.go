package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pesio-ai/be-ops-indicators/internal/database"
	"github.com/pesio-ai/be-ops-indicators/internal/errors"
)

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// InTransaction runs fn in a read-write transaction.
func (s *PostgresStore) InTransaction(ctx context.Context, fn func(tx Tx) error) error {
	return classifyTxError(s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		return fn(newPgTx(tx))
	}))
}

// View runs fn in a read-only transaction.
func (s *PostgresStore) View(ctx context.Context, fn func(tx Tx) error) error {
	return classifyTxError(s.db.InReadOnlyTransaction(ctx, func(tx pgx.Tx) error {
		return fn(newPgTx(tx))
	}))
}

// Ping checks datastore connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageUnavailable, "database unreachable")
	}
	return nil
}

// classifyTxError leaves domain errors untouched and classifies the raw
// begin/commit failures the database layer returns.
func classifyTxError(err error) error {
	if err == nil {
		return nil
	}
	var domainErr *errors.Error
	if errors.As(err, &domainErr) {
		return err
	}
	if database.IsSerializationFailure(err) {
		return errors.Wrap(err, errors.ErrCodeConflict, "concurrent update, retry")
	}
	return storageError(err, "transaction failed")
}

type pgTx struct {
	sectors    *SectorRepository
	employees  *EmployeeRepository
	indicators *IndicatorRepository
	drafts     *DraftRepository
	values     *ValueRepository
	audit      *AuditRepository
}

func newPgTx(q database.Querier) *pgTx {
	return &pgTx{
		sectors:    NewSectorRepository(q),
		employees:  NewEmployeeRepository(q),
		indicators: NewIndicatorRepository(q),
		drafts:     NewDraftRepository(q),
		values:     NewValueRepository(q),
		audit:      NewAuditRepository(q),
	}
}

func (t *pgTx) Sectors() Sectors       { return t.sectors }
func (t *pgTx) Employees() Employees   { return t.employees }
func (t *pgTx) Indicators() Indicators { return t.indicators }
func (t *pgTx) Drafts() Drafts         { return t.drafts }
func (t *pgTx) Values() Values         { return t.values }
func (t *pgTx) Audit() AuditLog        { return t.audit }

type scanner interface {
	Scan(dest ...any) error
}
