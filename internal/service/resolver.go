package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/pesio-ai/be-ops-indicators/internal/errors"
	"github.com/pesio-ai/be-ops-indicators/internal/repository"
)

// SectorRef references a sector by id or by name.
type SectorRef struct {
	ID   *int64
	Name string
}

// EmployeeRef references an employee by id, email or name.
type EmployeeRef struct {
	ID    *int64
	Email string
	Name  string
}

// IndicatorRef references an indicator by id or by code within a sector. The
// descriptive fields are only used when the indicator has to be created.
type IndicatorRef struct {
	ID     *int64
	Code   string
	Name   string
	Type   *string
	Unit   *string
	Target *string
}

// Resolver turns references into directory rows, creating missing ones.
// Every method runs inside the caller's transaction.
type Resolver struct {
	placeholderHash string
}

// NewResolver creates a resolver. Auto-provisioned identities get placeholder
// as their secret.
func NewResolver(hasher *PasswordHasher, placeholder string) (*Resolver, error) {
	hash, err := hasher.Hash(placeholder)
	if err != nil {
		return nil, fmt.Errorf("hash placeholder secret: %w", err)
	}
	return &Resolver{placeholderHash: hash}, nil
}

// ResolveSector returns the id of the referenced sector.
func (r *Resolver) ResolveSector(ctx context.Context, tx repository.Tx, trail *AuditTrail, ref SectorRef) (int64, error) {
	if ref.ID != nil {
		s, err := tx.Sectors().Get(ctx, *ref.ID)
		if err != nil {
			return 0, err
		}
		return s.ID, nil
	}

	name := strings.TrimSpace(ref.Name)
	if name == "" {
		return 0, errors.InvalidInput("sector", "sector id or name is required")
	}

	found, err := tx.Sectors().FindByName(ctx, name)
	if err != nil {
		return 0, err
	}
	if found != nil {
		return found.ID, nil
	}

	sector := &repository.Sector{Name: name, Active: true, CreatedAt: trail.at, UpdatedAt: trail.at}
	if err := tx.Sectors().Create(ctx, sector); err != nil {
		if !repository.IsDuplicate(err) {
			return 0, err
		}
		found, err = tx.Sectors().FindByName(ctx, name)
		if err != nil {
			return 0, err
		}
		if found == nil {
			return 0, errors.New(errors.ErrCodeConflict, fmt.Sprintf("sector %q was created concurrently", name))
		}
		return found.ID, nil
	}

	if err := trail.Add(ctx, tx, ActionSectorAutocreate, map[string]any{
		"sector_id": sector.ID,
		"name":      sector.Name,
	}); err != nil {
		return 0, err
	}
	return sector.ID, nil
}

// ResolveEmployee returns the id of the referenced employee. Email is the
// natural key: an unknown email provisions a new level 1 identity in
// sectorID, even when another employee carries the same name. Name is only
// looked up when no email is given.
func (r *Resolver) ResolveEmployee(ctx context.Context, tx repository.Tx, trail *AuditTrail, ref EmployeeRef, sectorID int64) (int64, error) {
	if ref.ID != nil {
		e, err := tx.Employees().Get(ctx, *ref.ID)
		if err != nil {
			return 0, err
		}
		return e.ID, nil
	}

	email := strings.ToLower(strings.TrimSpace(ref.Email))
	name := strings.TrimSpace(ref.Name)
	if email == "" && name == "" {
		return 0, errors.InvalidInput("employee", "employee id, email or name is required")
	}

	if email == "" {
		found, err := tx.Employees().FindByName(ctx, name)
		if err != nil {
			return 0, err
		}
		if found == nil {
			return 0, errors.NotFound("employee", name)
		}
		return found.ID, nil
	}

	found, err := tx.Employees().FindByEmail(ctx, email)
	if err != nil {
		return 0, err
	}
	if found != nil {
		return found.ID, nil
	}

	if name == "" {
		name = email
	}
	sid := sectorID
	emp := &repository.Employee{
		Name:         name,
		Email:        email,
		SectorID:     &sid,
		Level:        repository.LevelReader,
		Active:       true,
		PasswordHash: r.placeholderHash,
		CreatedAt:    trail.at,
		UpdatedAt:    trail.at,
	}
	if err := tx.Employees().Create(ctx, emp); err != nil {
		if !repository.IsDuplicate(err) {
			return 0, err
		}
		found, err = tx.Employees().FindByEmail(ctx, email)
		if err != nil {
			return 0, err
		}
		if found == nil {
			return 0, errors.New(errors.ErrCodeConflict, fmt.Sprintf("employee %q was created concurrently", email))
		}
		return found.ID, nil
	}

	if err := trail.Add(ctx, tx, ActionEmployeeAutoprov, map[string]any{
		"employee_id": emp.ID,
		"email":       emp.Email,
		"sector_id":   sectorID,
	}); err != nil {
		return 0, err
	}
	return emp.ID, nil
}

// ResolveIndicator returns the referenced indicator, creating it under
// (sectorID, code) when missing.
func (r *Resolver) ResolveIndicator(ctx context.Context, tx repository.Tx, trail *AuditTrail, ref IndicatorRef, sectorID int64) (*repository.Indicator, error) {
	if ref.ID != nil {
		return tx.Indicators().Get(ctx, *ref.ID)
	}
	if sectorID <= 0 {
		return nil, errors.InvalidInput("sector", "sector is required to resolve an indicator")
	}
	code := strings.TrimSpace(ref.Code)
	if code == "" {
		return nil, errors.InvalidInput("indicatorCode", "indicator id or code is required")
	}

	found, err := tx.Indicators().FindByCode(ctx, sectorID, code)
	if err != nil {
		return nil, err
	}
	if found != nil {
		return found, nil
	}

	name := strings.TrimSpace(ref.Name)
	if name == "" {
		name = "Indicator " + code
	}
	ind := &repository.Indicator{
		SectorID:  sectorID,
		Code:      code,
		Name:      name,
		Type:      ref.Type,
		Unit:      ref.Unit,
		Target:    ref.Target,
		Active:    true,
		CreatedAt: trail.at,
		UpdatedAt: trail.at,
	}
	if err := tx.Indicators().Create(ctx, ind); err != nil {
		if !repository.IsDuplicate(err) {
			return nil, err
		}
		found, err = tx.Indicators().FindByCode(ctx, sectorID, code)
		if err != nil {
			return nil, err
		}
		if found == nil {
			return nil, errors.New(errors.ErrCodeConflict, fmt.Sprintf("indicator %q was created concurrently", code))
		}
		return found, nil
	}

	if err := trail.Add(ctx, tx, ActionIndicatorAutocreate, map[string]any{
		"indicator_id": ind.ID,
		"sector_id":    sectorID,
		"code":         code,
	}); err != nil {
		return nil, err
	}
	return ind, nil
}
