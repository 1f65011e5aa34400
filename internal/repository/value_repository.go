package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pesio-ai/be-ops-indicators/internal/database"
	"github.com/pesio-ai/be-ops-indicators/internal/errors"
)

// ValueRepository handles authoritative indicator values.
type ValueRepository struct {
	q database.Querier
}

// NewValueRepository creates a new value repository.
func NewValueRepository(q database.Querier) *ValueRepository {
	return &ValueRepository{q: q}
}

// Upsert writes the value for (indicator, sector, period) in one statement,
// so concurrent approvals of the same key cannot both insert.
func (r *ValueRepository) Upsert(ctx context.Context, v *Value) error {
	query := `
		INSERT INTO indicator_values
		    (indicator_id, sector_id, employee_id, period, value, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (indicator_id, sector_id, period) DO UPDATE
		SET value       = EXCLUDED.value,
		    employee_id = EXCLUDED.employee_id,
		    updated_at  = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		v.IndicatorID,
		v.SectorID,
		v.EmployeeID,
		v.Period,
		v.Value,
		v.UpdatedAt,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return storageError(err, "failed to upsert value")
	}
	return nil
}

// Get returns the value of record for a key, or nil.
func (r *ValueRepository) Get(ctx context.Context, indicatorID, sectorID int64, period time.Time) (*Value, error) {
	query := `
		SELECT id, indicator_id, sector_id, employee_id, period, value, created_at, updated_at
		FROM indicator_values
		WHERE indicator_id = $1 AND sector_id = $2 AND period = $3
	`

	v := &Value{}
	err := r.q.QueryRow(ctx, query, indicatorID, sectorID, period).Scan(
		&v.ID, &v.IndicatorID, &v.SectorID, &v.EmployeeID, &v.Period, &v.Value, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError(err, "failed to get value")
	}
	return v, nil
}

// List returns every value of a sector for one period, ordered by indicator.
func (r *ValueRepository) List(ctx context.Context, sectorID int64, period time.Time) ([]*Value, error) {
	query := `
		SELECT v.id, v.indicator_id, v.sector_id, v.employee_id, v.period, v.value,
		       v.created_at, v.updated_at, i.code, i.name
		FROM indicator_values v
		JOIN indicators i ON i.id = v.indicator_id
		WHERE v.sector_id = $1 AND v.period = $2
		ORDER BY v.indicator_id
	`

	rows, err := r.q.Query(ctx, query, sectorID, period)
	if err != nil {
		return nil, storageError(err, "failed to list values")
	}
	defer rows.Close()

	var values []*Value
	for rows.Next() {
		v := &Value{}
		err := rows.Scan(&v.ID, &v.IndicatorID, &v.SectorID, &v.EmployeeID, &v.Period, &v.Value,
			&v.CreatedAt, &v.UpdatedAt, &v.IndicatorCode, &v.IndicatorName)
		if err != nil {
			return nil, storageError(err, "failed to scan value")
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err, "failed to list values")
	}
	return values, nil
}
