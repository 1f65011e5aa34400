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

// SectorRepository handles sector data operations.
type SectorRepository struct {
	q database.Querier
}

// NewSectorRepository creates a new sector repository.
func NewSectorRepository(q database.Querier) *SectorRepository {
	return &SectorRepository{q: q}
}

const sectorColumns = `id, name, active, created_at, updated_at`

// Get retrieves a sector by ID.
func (r *SectorRepository) Get(ctx context.Context, id int64) (*Sector, error) {
	query := `SELECT ` + sectorColumns + ` FROM sectors WHERE id = $1`

	s, err := scanSector(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("sector", id)
	}
	if err != nil {
		return nil, storageError(err, "failed to get sector")
	}
	return s, nil
}

// FindByName looks a sector up case-insensitively. Returns nil when absent.
func (r *SectorRepository) FindByName(ctx context.Context, name string) (*Sector, error) {
	query := `SELECT ` + sectorColumns + ` FROM sectors WHERE lower(name) = lower($1)`

	s, err := scanSector(r.q.QueryRow(ctx, query, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError(err, "failed to find sector")
	}
	return s, nil
}

// Create inserts a sector. A name clash leaves the transaction usable and
// returns ErrDuplicate.
func (r *SectorRepository) Create(ctx context.Context, s *Sector) error {
	query := `
		INSERT INTO sectors (name, active, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT DO NOTHING
		RETURNING id, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query, s.Name, s.Active, s.CreatedAt).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicate
	}
	if err != nil {
		return storageError(err, "failed to create sector")
	}
	return nil
}

// Update applies a patch and returns the updated row.
func (r *SectorRepository) Update(ctx context.Context, id int64, patch SectorPatch, at time.Time) (*Sector, error) {
	args := []any{at}
	sets := []string{"updated_at = $1"}
	if patch.Name != nil {
		args = append(args, *patch.Name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if patch.Active != nil {
		args = append(args, *patch.Active)
		sets = append(sets, fmt.Sprintf("active = $%d", len(args)))
	}
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE sectors SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), sectorColumns)

	s, err := scanSector(r.q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("sector", id)
	}
	if database.IsUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, storageError(err, "failed to update sector")
	}
	return s, nil
}

// List returns sectors ordered by name.
func (r *SectorRepository) List(ctx context.Context, filter SectorFilter) ([]*Sector, error) {
	query := `SELECT ` + sectorColumns + ` FROM sectors WHERE 1=1`
	args := []any{}

	if filter.IDs != nil {
		args = append(args, filter.IDs)
		query += fmt.Sprintf(" AND id = ANY($%d)", len(args))
	}
	if filter.ActiveOnly {
		query += " AND active"
	}
	query += " ORDER BY name"

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, storageError(err, "failed to list sectors")
	}
	defer rows.Close()

	var sectors []*Sector
	for rows.Next() {
		s, err := scanSector(rows)
		if err != nil {
			return nil, storageError(err, "failed to scan sector")
		}
		sectors = append(sectors, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err, "failed to list sectors")
	}
	return sectors, nil
}

func scanSector(row scanner) (*Sector, error) {
	s := &Sector{}
	err := row.Scan(&s.ID, &s.Name, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}
