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

// EmployeeRepository handles identity data operations.
type EmployeeRepository struct {
	q database.Querier
}

// NewEmployeeRepository creates a new employee repository.
func NewEmployeeRepository(q database.Querier) *EmployeeRepository {
	return &EmployeeRepository{q: q}
}

const employeeColumns = `id, name, email, sector_id, level, active, password_hash, created_at, updated_at`

// Get retrieves an employee by ID.
func (r *EmployeeRepository) Get(ctx context.Context, id int64) (*Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE id = $1`

	e, err := scanEmployee(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("employee", id)
	}
	if err != nil {
		return nil, storageError(err, "failed to get employee")
	}
	return e, nil
}

// FindByEmail returns nil when no employee has that email.
func (r *EmployeeRepository) FindByEmail(ctx context.Context, email string) (*Employee, error) {
	return r.findOne(ctx, `lower(email) = lower($1)`, email)
}

// FindByName returns the oldest employee with that display name, or nil.
func (r *EmployeeRepository) FindByName(ctx context.Context, name string) (*Employee, error) {
	return r.findOne(ctx, `lower(name) = lower($1)`, name)
}

func (r *EmployeeRepository) findOne(ctx context.Context, where string, arg any) (*Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE ` + where + ` ORDER BY id LIMIT 1`

	e, err := scanEmployee(r.q.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError(err, "failed to find employee")
	}
	return e, nil
}

// Create inserts an employee. An email clash returns ErrDuplicate.
func (r *EmployeeRepository) Create(ctx context.Context, e *Employee) error {
	query := `
		INSERT INTO employees (name, email, sector_id, level, active, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT DO NOTHING
		RETURNING id, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		e.Name,
		e.Email,
		e.SectorID,
		e.Level,
		e.Active,
		e.PasswordHash,
		e.CreatedAt,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicate
	}
	if err != nil {
		return storageError(err, "failed to create employee")
	}
	return nil
}

// Update applies a patch and returns the updated row.
func (r *EmployeeRepository) Update(ctx context.Context, id int64, patch EmployeePatch, at time.Time) (*Employee, error) {
	args := []any{at}
	sets := []string{"updated_at = $1"}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Email != nil {
		add("email", *patch.Email)
	}
	if patch.SectorSet {
		add("sector_id", patch.SectorID)
	}
	if patch.Level != nil {
		add("level", *patch.Level)
	}
	if patch.Active != nil {
		add("active", *patch.Active)
	}
	if patch.PasswordHash != nil {
		add("password_hash", *patch.PasswordHash)
	}
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE employees SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), employeeColumns)

	e, err := scanEmployee(r.q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("employee", id)
	}
	if database.IsUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, storageError(err, "failed to update employee")
	}
	return e, nil
}

// List returns employees ordered by level descending, then name.
func (r *EmployeeRepository) List(ctx context.Context, filter EmployeeFilter) ([]*Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE 1=1`
	args := []any{}

	if filter.SectorID != nil {
		args = append(args, *filter.SectorID)
		query += fmt.Sprintf(" AND sector_id = $%d", len(args))
	}
	if filter.ActiveOnly {
		query += " AND active"
	}
	query += " ORDER BY level DESC, name, id"

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, storageError(err, "failed to list employees")
	}
	defer rows.Close()

	var employees []*Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, storageError(err, "failed to scan employee")
		}
		employees = append(employees, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err, "failed to list employees")
	}
	return employees, nil
}

// ExistsActiveAtLevel reports whether any active employee holds exactly level.
func (r *EmployeeRepository) ExistsActiveAtLevel(ctx context.Context, level int) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM employees WHERE active AND level = $1)`, level,
	).Scan(&exists)
	if err != nil {
		return false, storageError(err, "failed to check employees")
	}
	return exists, nil
}

func scanEmployee(row scanner) (*Employee, error) {
	e := &Employee{}
	err := row.Scan(
		&e.ID,
		&e.Name,
		&e.Email,
		&e.SectorID,
		&e.Level,
		&e.Active,
		&e.PasswordHash,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}
