package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pesio-ai/be-ops-indicators/internal/database"
	"github.com/pesio-ai/be-ops-indicators/internal/errors"
)

// DraftRepository handles draft entries and their lifecycle transitions.
type DraftRepository struct {
	q database.Querier
}

// NewDraftRepository creates a new draft repository.
func NewDraftRepository(q database.Querier) *DraftRepository {
	return &DraftRepository{q: q}
}

const draftColumns = `
	d.id, d.indicator_id, d.sector_id, d.employee_id, d.period, d.value, d.status,
	d.created_at, d.submitted_at, d.approved_at, d.approved_by,
	d.rejected_at, d.rejected_by, d.reject_reason`

// Create inserts one draft entry.
func (r *DraftRepository) Create(ctx context.Context, d *Draft) error {
	query := `
		INSERT INTO indicator_drafts
		    (indicator_id, sector_id, employee_id, period, value, status, created_at, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := r.q.QueryRow(ctx, query,
		d.IndicatorID,
		d.SectorID,
		d.EmployeeID,
		d.Period,
		d.Value,
		d.Status,
		d.CreatedAt,
		d.SubmittedAt,
	).Scan(&d.ID)
	if err != nil {
		return storageError(err, "failed to create draft")
	}
	return nil
}

// GetForUpdate reads and locks one draft.
func (r *DraftRepository) GetForUpdate(ctx context.Context, id int64) (*Draft, error) {
	query := `SELECT ` + draftColumns + ` FROM indicator_drafts d WHERE d.id = $1 FOR UPDATE`

	d, err := scanDraft(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("draft", id)
	}
	if err != nil {
		return nil, storageError(err, "failed to get draft")
	}
	return d, nil
}

// ListForUpdate reads and locks matching drafts in ascending id order.
func (r *DraftRepository) ListForUpdate(ctx context.Context, filter DraftFilter) ([]*Draft, error) {
	where, args := draftWhere(filter)
	query := `SELECT ` + draftColumns + ` FROM indicator_drafts d WHERE ` + where + ` ORDER BY d.id FOR UPDATE`

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, storageError(err, "failed to lock drafts")
	}
	defer rows.Close()

	var drafts []*Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, storageError(err, "failed to scan draft")
		}
		drafts = append(drafts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err, "failed to lock drafts")
	}
	return drafts, nil
}

// Submit moves DRAFT and REJECTED rows to PENDING.
func (r *DraftRepository) Submit(ctx context.Context, sectorID int64, period time.Time, employeeID *int64, at time.Time) (int, error) {
	query := `
		UPDATE indicator_drafts
		SET status = 'PENDING', submitted_at = $3
		WHERE sector_id = $1
		  AND period = $2
		  AND status IN ('DRAFT', 'REJECTED')
		  AND ($4::bigint IS NULL OR employee_id = $4)
	`

	tag, err := r.q.Exec(ctx, query, sectorID, period, at, employeeID)
	if err != nil {
		return 0, storageError(err, "failed to submit drafts")
	}
	return int(tag.RowsAffected()), nil
}

// MarkApproved moves a PENDING draft to APPROVED.
func (r *DraftRepository) MarkApproved(ctx context.Context, id int64, t DraftTransition) error {
	query := `
		UPDATE indicator_drafts
		SET status = 'APPROVED', approved_at = $2, approved_by = $3
		WHERE id = $1 AND status = 'PENDING'
		RETURNING id
	`

	var returned int64
	err := r.q.QueryRow(ctx, query, id, t.At, t.ActorID).Scan(&returned)
	if errors.Is(err, pgx.ErrNoRows) {
		return errors.New(errors.ErrCodeInvalidState, fmt.Sprintf("draft %d is not pending", id))
	}
	if err != nil {
		return storageError(err, "failed to approve draft")
	}
	return nil
}

// MarkRejected moves a PENDING draft to REJECTED with a reason.
func (r *DraftRepository) MarkRejected(ctx context.Context, id int64, t DraftTransition) error {
	query := `
		UPDATE indicator_drafts
		SET status = 'REJECTED', rejected_at = $2, rejected_by = $3, reject_reason = $4
		WHERE id = $1 AND status = 'PENDING'
		RETURNING id
	`

	var returned int64
	err := r.q.QueryRow(ctx, query, id, t.At, t.ActorID, t.Reason).Scan(&returned)
	if errors.Is(err, pgx.ErrNoRows) {
		return errors.New(errors.ErrCodeInvalidState, fmt.Sprintf("draft %d is not pending", id))
	}
	if err != nil {
		return storageError(err, "failed to reject draft")
	}
	return nil
}

// List returns matching drafts newest first, joined with display names.
func (r *DraftRepository) List(ctx context.Context, filter DraftFilter) ([]*Draft, error) {
	where, args := draftWhere(filter)
	query := `
		SELECT ` + draftColumns + `,
		       i.code, i.name, s.name, COALESCE(e.name, '')
		FROM indicator_drafts d
		JOIN indicators i ON i.id = d.indicator_id
		JOIN sectors s ON s.id = d.sector_id
		LEFT JOIN employees e ON e.id = d.employee_id
		WHERE ` + where + `
		ORDER BY d.created_at DESC, d.id DESC
	`

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, storageError(err, "failed to list drafts")
	}
	defer rows.Close()

	var drafts []*Draft
	for rows.Next() {
		d := &Draft{}
		err := rows.Scan(append(draftDest(d),
			&d.IndicatorCode, &d.IndicatorName, &d.SectorName, &d.EmployeeName)...)
		if err != nil {
			return nil, storageError(err, "failed to scan draft")
		}
		drafts = append(drafts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err, "failed to list drafts")
	}
	return drafts, nil
}

func draftWhere(f DraftFilter) (string, []any) {
	conds := []string{"1=1"}
	var args []any
	if f.SectorID != nil {
		args = append(args, *f.SectorID)
		conds = append(conds, fmt.Sprintf("d.sector_id = $%d", len(args)))
	}
	if f.Period != nil {
		args = append(args, *f.Period)
		conds = append(conds, fmt.Sprintf("d.period = $%d", len(args)))
	}
	if f.EmployeeID != nil {
		args = append(args, *f.EmployeeID)
		conds = append(conds, fmt.Sprintf("d.employee_id = $%d", len(args)))
	}
	if len(f.Statuses) > 0 {
		args = append(args, f.Statuses)
		conds = append(conds, fmt.Sprintf("d.status = ANY($%d)", len(args)))
	}
	return strings.Join(conds, " AND "), args
}

func draftDest(d *Draft) []any {
	return []any{
		&d.ID,
		&d.IndicatorID,
		&d.SectorID,
		&d.EmployeeID,
		&d.Period,
		&d.Value,
		&d.Status,
		&d.CreatedAt,
		&d.SubmittedAt,
		&d.ApprovedAt,
		&d.ApprovedBy,
		&d.RejectedAt,
		&d.RejectedBy,
		&d.RejectReason,
	}
}

func scanDraft(row scanner) (*Draft, error) {
	d := &Draft{}
	if err := row.Scan(draftDest(d)...); err != nil {
		return nil, err
	}
	return d, nil
}
