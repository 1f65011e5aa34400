package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pesio-ai/be-ops-indicators/internal/errors"
	"github.com/pesio-ai/be-ops-indicators/internal/logger"
	"github.com/pesio-ai/be-ops-indicators/internal/repository"
)

// IdentityService administers identities and their authorization levels.
type IdentityService struct {
	store       repository.Store
	hasher      *PasswordHasher
	placeholder string
	auditor     *Auditor
	log         *logger.Logger
	now         func() time.Time
}

// NewIdentityService creates a new identity service
func NewIdentityService(
	store repository.Store,
	hasher *PasswordHasher,
	placeholder string,
	auditor *Auditor,
	log *logger.Logger,
) *IdentityService {
	return &IdentityService{
		store:       store,
		hasher:      hasher,
		placeholder: placeholder,
		auditor:     auditor,
		log:         log,
		now:         time.Now,
	}
}

// CreateIdentityRequest represents a create identity request
type CreateIdentityRequest struct {
	Name     string
	Email    string
	Secret   string
	SectorID *int64
	Level    int
}

// UpdateIdentityRequest represents an update identity request. SectorSet
// distinguishes clearing the sector from leaving it unchanged.
type UpdateIdentityRequest struct {
	Name      *string
	Email     *string
	SectorSet bool
	SectorID  *int64
	Level     *int
	Active    *bool
}

func validLevel(level int) bool {
	return level >= repository.LevelReader && level <= repository.LevelAdmin
}

func identityForbidden(targetLevel int) error {
	return errors.Forbidden(fmt.Sprintf("not allowed to manage identities at level %d", targetLevel))
}

func emailConflict(email string) error {
	return errors.New(errors.ErrCodeConflict, fmt.Sprintf("email %q is already registered", email))
}

// ListIdentities lists every identity by level, highest first, then name.
func (s *IdentityService) ListIdentities(ctx context.Context, actor Actor) ([]*repository.Employee, error) {
	if err := requireLevel(actor, repository.LevelManagement); err != nil {
		return nil, err
	}
	var out []*repository.Employee
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.Employees().List(ctx, repository.EmployeeFilter{})
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*repository.Employee{}
	}
	return out, nil
}

// CreateIdentity creates an identity. An empty secret means the placeholder.
func (s *IdentityService) CreateIdentity(ctx context.Context, actor Actor, req *CreateIdentityRequest) (*repository.Employee, error) {
	if err := requireLevel(actor, repository.LevelManagement); err != nil {
		return nil, err
	}
	if !validLevel(req.Level) {
		return nil, errors.InvalidInput("level", "level must be between 1 and 5")
	}
	if !CanCreateOrModifyIdentity(actor, req.Level) {
		return nil, identityForbidden(req.Level)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errors.InvalidInput("name", "name is required")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, errors.InvalidInput("email", "email is required")
	}

	secret := req.Secret
	if secret == "" {
		secret = s.placeholder
	}
	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	trail := newAuditTrail(actor.ActorID(), now)
	emp := &repository.Employee{
		Name:         name,
		Email:        email,
		SectorID:     req.SectorID,
		Level:        req.Level,
		Active:       true,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.store.InTransaction(ctx, func(tx repository.Tx) error {
		if req.SectorID != nil {
			if _, err := tx.Sectors().Get(ctx, *req.SectorID); err != nil {
				return err
			}
		}
		if err := tx.Employees().Create(ctx, emp); err != nil {
			if repository.IsDuplicate(err) {
				return emailConflict(email)
			}
			return err
		}
		return trail.Add(ctx, tx, ActionIdentityCreate, map[string]any{
			"employee_id": emp.ID,
			"email":       emp.Email,
			"level":       emp.Level,
		})
	})
	if err != nil {
		return nil, err
	}
	s.auditor.Publish(ctx, trail)

	s.log.Info().
		Int64("actor_id", actor.ID).
		Int64("employee_id", emp.ID).
		Int("level", emp.Level).
		Msg("Identity created")

	return emp, nil
}

// UpdateIdentity edits an identity. The actor must be allowed to manage both
// the target's current level and, when it changes, the new one.
func (s *IdentityService) UpdateIdentity(ctx context.Context, actor Actor, id int64, req *UpdateIdentityRequest) (*repository.Employee, error) {
	if err := requireLevel(actor, repository.LevelManagement); err != nil {
		return nil, err
	}

	patch := repository.EmployeePatch{
		SectorSet: req.SectorSet,
		SectorID:  req.SectorID,
		Level:     req.Level,
		Active:    req.Active,
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, errors.InvalidInput("name", "name cannot be empty")
		}
		patch.Name = &name
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if email == "" {
			return nil, errors.InvalidInput("email", "email cannot be empty")
		}
		patch.Email = &email
	}
	if patch.Empty() {
		return nil, errors.InvalidInput("body", "nothing to update")
	}
	if patch.Level != nil && !validLevel(*patch.Level) {
		return nil, errors.InvalidInput("level", "level must be between 1 and 5")
	}

	now := s.now().UTC()
	trail := newAuditTrail(actor.ActorID(), now)
	var emp *repository.Employee
	err := s.store.InTransaction(ctx, func(tx repository.Tx) error {
		current, err := tx.Employees().Get(ctx, id)
		if err != nil {
			return err
		}
		if !CanCreateOrModifyIdentity(actor, current.Level) {
			return identityForbidden(current.Level)
		}
		if patch.Level != nil && !CanCreateOrModifyIdentity(actor, *patch.Level) {
			return identityForbidden(*patch.Level)
		}
		if patch.SectorSet && patch.SectorID != nil {
			if _, err := tx.Sectors().Get(ctx, *patch.SectorID); err != nil {
				return err
			}
		}

		emp, err = tx.Employees().Update(ctx, id, patch, now)
		if repository.IsDuplicate(err) {
			return emailConflict(*patch.Email)
		}
		if err != nil {
			return err
		}

		details := map[string]any{"employee_id": id}
		if patch.Level != nil {
			details["level_from"] = current.Level
			details["level_to"] = *patch.Level
		}
		if patch.Active != nil {
			details["active"] = *patch.Active
		}
		return trail.Add(ctx, tx, ActionIdentityUpdate, details)
	})
	if err != nil {
		return nil, err
	}
	s.auditor.Publish(ctx, trail)

	s.log.Info().
		Int64("actor_id", actor.ID).
		Int64("employee_id", id).
		Msg("Identity updated")

	return emp, nil
}

// ResetSecret replaces an identity's secret. An empty secret means the
// placeholder.
func (s *IdentityService) ResetSecret(ctx context.Context, actor Actor, id int64, secret string) error {
	if err := requireLevel(actor, repository.LevelManagement); err != nil {
		return err
	}
	if secret == "" {
		secret = s.placeholder
	}
	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	trail := newAuditTrail(actor.ActorID(), now)
	err = s.store.InTransaction(ctx, func(tx repository.Tx) error {
		current, err := tx.Employees().Get(ctx, id)
		if err != nil {
			return err
		}
		if !CanCreateOrModifyIdentity(actor, current.Level) {
			return identityForbidden(current.Level)
		}
		if _, err := tx.Employees().Update(ctx, id, repository.EmployeePatch{PasswordHash: &hash}, now); err != nil {
			return err
		}
		return trail.Add(ctx, tx, ActionIdentityResetSecret, map[string]any{"employee_id": id})
	})
	if err != nil {
		return err
	}
	s.auditor.Publish(ctx, trail)

	s.log.Info().
		Int64("actor_id", actor.ID).
		Int64("employee_id", id).
		Msg("Identity secret reset")

	return nil
}
