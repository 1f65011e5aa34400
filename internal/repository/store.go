package repository

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/pesio-ai/be-ops-indicators/internal/database"
	"github.com/pesio-ai/be-ops-indicators/internal/errors"
)

var errDuplicateKey = stderrors.New("duplicate key")

// ErrDuplicate is returned by Create and Update when a unique key is already
// taken. Callers decide whether that is a conflict or a reason to re-read.
// It carries CONFLICT, so match it with IsDuplicate rather than errors.Is.
var ErrDuplicate = errors.Wrap(errDuplicateKey, errors.ErrCodeConflict, "duplicate key")

// IsDuplicate reports whether err stems from ErrDuplicate. Other CONFLICT
// errors, such as serialization failures, do not match.
func IsDuplicate(err error) bool {
	return stderrors.Is(err, errDuplicateKey)
}

// Store opens transactions over the datastore. Every repository call made
// through a Tx participates in the same transaction; it commits only when fn
// returns nil.
type Store interface {
	InTransaction(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
}

// Tx exposes the per-table repositories bound to one transaction.
type Tx interface {
	Sectors() Sectors
	Employees() Employees
	Indicators() Indicators
	Drafts() Drafts
	Values() Values
	Audit() AuditLog
}

// Sectors stores sectors. Get returns NOT_FOUND on a miss; Find* return nil.
type Sectors interface {
	Get(ctx context.Context, id int64) (*Sector, error)
	FindByName(ctx context.Context, name string) (*Sector, error)
	Create(ctx context.Context, s *Sector) error
	Update(ctx context.Context, id int64, patch SectorPatch, at time.Time) (*Sector, error)
	List(ctx context.Context, filter SectorFilter) ([]*Sector, error)
}

// Employees stores identities. Emails and names match case-insensitively.
type Employees interface {
	Get(ctx context.Context, id int64) (*Employee, error)
	FindByEmail(ctx context.Context, email string) (*Employee, error)
	FindByName(ctx context.Context, name string) (*Employee, error)
	Create(ctx context.Context, e *Employee) error
	Update(ctx context.Context, id int64, patch EmployeePatch, at time.Time) (*Employee, error)
	List(ctx context.Context, filter EmployeeFilter) ([]*Employee, error)
	ExistsActiveAtLevel(ctx context.Context, level int) (bool, error)
}

// Indicators stores indicators keyed naturally by (sector, code).
type Indicators interface {
	Get(ctx context.Context, id int64) (*Indicator, error)
	FindByCode(ctx context.Context, sectorID int64, code string) (*Indicator, error)
	Create(ctx context.Context, ind *Indicator) error
	Update(ctx context.Context, id int64, patch IndicatorPatch, at time.Time) (*Indicator, error)
	List(ctx context.Context, filter IndicatorFilter) ([]*Indicator, error)
	// ResponsibleSectorIDs lists sectors where the employee owns an active indicator.
	ResponsibleSectorIDs(ctx context.Context, employeeID int64) ([]int64, error)
}

// Drafts stores draft entries. The *ForUpdate reads lock the returned rows
// until the transaction ends.
type Drafts interface {
	Create(ctx context.Context, d *Draft) error
	GetForUpdate(ctx context.Context, id int64) (*Draft, error)
	ListForUpdate(ctx context.Context, filter DraftFilter) ([]*Draft, error)
	// Submit moves DRAFT and REJECTED rows of (sector, period) to PENDING,
	// optionally restricted to one author, and returns the affected count.
	Submit(ctx context.Context, sectorID int64, period time.Time, employeeID *int64, at time.Time) (int, error)
	MarkApproved(ctx context.Context, id int64, t DraftTransition) error
	MarkRejected(ctx context.Context, id int64, t DraftTransition) error
	// List returns drafts newest first with indicator, sector and employee names.
	List(ctx context.Context, filter DraftFilter) ([]*Draft, error)
}

// Values stores authoritative values, one per (indicator, sector, period).
type Values interface {
	// Upsert inserts the value or overwrites value, employee and updated-at
	// of the existing row for the same key, atomically.
	Upsert(ctx context.Context, v *Value) error
	Get(ctx context.Context, indicatorID, sectorID int64, period time.Time) (*Value, error)
	List(ctx context.Context, sectorID int64, period time.Time) ([]*Value, error)
}

// AuditLog is append-only.
type AuditLog interface {
	Append(ctx context.Context, e *AuditEntry) error
}

// storageError classifies a driver error: connectivity problems become
// STORAGE_UNAVAILABLE, everything else INTERNAL.
func storageError(err error, message string) error {
	if database.IsUnavailable(err) {
		return errors.Wrap(err, errors.ErrCodeStorageUnavailable, message)
	}
	return errors.Wrap(err, errors.ErrCodeInternal, message)
}
