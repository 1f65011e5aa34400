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

// IndicatorRepository handles indicator data operations.
type IndicatorRepository struct {
	q database.Querier
}

// NewIndicatorRepository creates a new indicator repository.
func NewIndicatorRepository(q database.Querier) *IndicatorRepository {
	return &IndicatorRepository{q: q}
}

const indicatorColumns = `id, sector_id, code, name, type, unit, target, active, responsible_id, created_at, updated_at`

// Get retrieves an indicator by ID.
func (r *IndicatorRepository) Get(ctx context.Context, id int64) (*Indicator, error) {
	query := `SELECT ` + indicatorColumns + ` FROM indicators WHERE id = $1`

	ind, err := scanIndicator(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("indicator", id)
	}
	if err != nil {
		return nil, storageError(err, "failed to get indicator")
	}
	return ind, nil
}

// FindByCode looks an indicator up by its natural key. Returns nil when absent.
func (r *IndicatorRepository) FindByCode(ctx context.Context, sectorID int64, code string) (*Indicator, error) {
	query := `SELECT ` + indicatorColumns + ` FROM indicators WHERE sector_id = $1 AND code = $2`

	ind, err := scanIndicator(r.q.QueryRow(ctx, query, sectorID, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError(err, "failed to find indicator")
	}
	return ind, nil
}

// Create inserts an indicator. A (sector, code) clash returns ErrDuplicate.
func (r *IndicatorRepository) Create(ctx context.Context, ind *Indicator) error {
	query := `
		INSERT INTO indicators (sector_id, code, name, type, unit, target, active, responsible_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT DO NOTHING
		RETURNING id, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		ind.SectorID,
		ind.Code,
		ind.Name,
		ind.Type,
		ind.Unit,
		ind.Target,
		ind.Active,
		ind.ResponsibleID,
		ind.CreatedAt,
	).Scan(&ind.ID, &ind.CreatedAt, &ind.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicate
	}
	if err != nil {
		return storageError(err, "failed to create indicator")
	}
	return nil
}

// Update applies a patch and returns the updated row.
func (r *IndicatorRepository) Update(ctx context.Context, id int64, patch IndicatorPatch, at time.Time) (*Indicator, error) {
	args := []any{at}
	sets := []string{"updated_at = $1"}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Type != nil {
		add("type", *patch.Type)
	}
	if patch.Unit != nil {
		add("unit", *patch.Unit)
	}
	if patch.Target != nil {
		add("target", *patch.Target)
	}
	if patch.Active != nil {
		add("active", *patch.Active)
	}
	if patch.ResponsibleSet {
		add("responsible_id", patch.ResponsibleID)
	}
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE indicators SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), indicatorColumns)

	ind, err := scanIndicator(r.q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("indicator", id)
	}
	if err != nil {
		return nil, storageError(err, "failed to update indicator")
	}
	return ind, nil
}

// List returns indicators ordered by sector and code.
func (r *IndicatorRepository) List(ctx context.Context, filter IndicatorFilter) ([]*Indicator, error) {
	query := `SELECT ` + indicatorColumns + ` FROM indicators WHERE 1=1`
	args := []any{}

	if filter.SectorID != nil {
		args = append(args, *filter.SectorID)
		query += fmt.Sprintf(" AND sector_id = $%d", len(args))
	}
	if filter.ResponsibleID != nil {
		args = append(args, *filter.ResponsibleID)
		query += fmt.Sprintf(" AND responsible_id = $%d", len(args))
	}
	if filter.UnownedOrResponsible != nil {
		args = append(args, *filter.UnownedOrResponsible)
		query += fmt.Sprintf(" AND (responsible_id IS NULL OR responsible_id = $%d)", len(args))
	}
	if filter.ActiveOnly {
		query += " AND active"
	}
	query += " ORDER BY sector_id, code"

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, storageError(err, "failed to list indicators")
	}
	defer rows.Close()

	var out []*Indicator
	for rows.Next() {
		ind, err := scanIndicator(rows)
		if err != nil {
			return nil, storageError(err, "failed to scan indicator")
		}
		out = append(out, ind)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err, "failed to list indicators")
	}
	return out, nil
}

// ResponsibleSectorIDs lists the sectors where the employee owns at least one
// active indicator.
func (r *IndicatorRepository) ResponsibleSectorIDs(ctx context.Context, employeeID int64) ([]int64, error) {
	rows, err := r.q.Query(ctx, `
		SELECT DISTINCT sector_id
		FROM indicators
		WHERE active AND responsible_id = $1
		ORDER BY sector_id
	`, employeeID)
	if err != nil {
		return nil, storageError(err, "failed to list assigned sectors")
	}
	defer rows.Close()

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, storageError(err, "failed to list assigned sectors")
	}
	return ids, nil
}

func scanIndicator(row scanner) (*Indicator, error) {
	ind := &Indicator{}
	err := row.Scan(
		&ind.ID,
		&ind.SectorID,
		&ind.Code,
		&ind.Name,
		&ind.Type,
		&ind.Unit,
		&ind.Target,
		&ind.Active,
		&ind.ResponsibleID,
		&ind.CreatedAt,
		&ind.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return ind, nil
}
