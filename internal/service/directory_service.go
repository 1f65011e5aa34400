package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pesio-ai/be-ops-indicators/internal/errors"
	"github.com/pesio-ai/be-ops-indicators/internal/logger"
	"github.com/pesio-ai/be-ops-indicators/internal/repository"
)

// DirectoryService administers sectors and indicators.
type DirectoryService struct {
	store   repository.Store
	auditor *Auditor
	log     *logger.Logger
	now     func() time.Time
}

// NewDirectoryService creates a new directory service
func NewDirectoryService(store repository.Store, auditor *Auditor, log *logger.Logger) *DirectoryService {
	return &DirectoryService{
		store:   store,
		auditor: auditor,
		log:     log,
		now:     time.Now,
	}
}

// IndicatorView is an indicator as seen by a given actor.
type IndicatorView struct {
	*repository.Indicator
	ReadOnly bool
}

// CreateIndicatorRequest represents a create indicator request
type CreateIndicatorRequest struct {
	SectorID      int64
	Code          string
	Name          string
	Type          *string
	Unit          *string
	Target        *string
	ResponsibleID *int64
}

// ListSectors lists active sectors. Anonymous callers and management see all
// of them; everyone else their own sector plus the ones they are assigned to.
func (s *DirectoryService) ListSectors(ctx context.Context, actor *Actor) ([]*repository.Sector, error) {
	filter := repository.SectorFilter{ActiveOnly: true}

	var out []*repository.Sector
	err := s.store.View(ctx, func(tx repository.Tx) error {
		if actor != nil && actor.Level < repository.LevelManagement {
			ids := []int64{}
			if actor.SectorID != nil {
				ids = append(ids, *actor.SectorID)
			}
			if actor.Level == repository.LevelContributor || actor.Level == repository.LevelSupervisor {
				assigned, err := tx.Indicators().ResponsibleSectorIDs(ctx, actor.ID)
				if err != nil {
					return err
				}
				ids = append(ids, assigned...)
			}
			filter.IDs = ids
		}
		var err error
		out, err = tx.Sectors().List(ctx, filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*repository.Sector{}
	}
	return out, nil
}

// CreateSector creates a sector.
func (s *DirectoryService) CreateSector(ctx context.Context, actor Actor, name string) (*repository.Sector, error) {
	if err := requireLevel(actor, repository.LevelManagement); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.InvalidInput("name", "sector name is required")
	}

	now := s.now().UTC()
	trail := newAuditTrail(actor.ActorID(), now)
	sector := &repository.Sector{Name: name, Active: true, CreatedAt: now, UpdatedAt: now}
	err := s.store.InTransaction(ctx, func(tx repository.Tx) error {
		if err := tx.Sectors().Create(ctx, sector); err != nil {
			if repository.IsDuplicate(err) {
				return errors.New(errors.ErrCodeConflict, fmt.Sprintf("sector %q already exists", name))
			}
			return err
		}
		return trail.Add(ctx, tx, ActionSectorCreate, map[string]any{
			"sector_id": sector.ID,
			"name":      sector.Name,
		})
	})
	if err != nil {
		return nil, err
	}
	s.auditor.Publish(ctx, trail)

	s.log.Info().
		Int64("sector_id", sector.ID).
		Str("name", sector.Name).
		Msg("Sector created")

	return sector, nil
}

// UpdateSector renames or (de)activates a sector.
func (s *DirectoryService) UpdateSector(ctx context.Context, actor Actor, id int64, patch repository.SectorPatch) (*repository.Sector, error) {
	if err := requireLevel(actor, repository.LevelManagement); err != nil {
		return nil, err
	}
	if patch.Empty() {
		return nil, errors.InvalidInput("body", "nothing to update")
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, errors.InvalidInput("name", "sector name cannot be empty")
		}
		patch.Name = &name
	}

	now := s.now().UTC()
	trail := newAuditTrail(actor.ActorID(), now)
	var sector *repository.Sector
	err := s.store.InTransaction(ctx, func(tx repository.Tx) error {
		var err error
		sector, err = tx.Sectors().Update(ctx, id, patch, now)
		if repository.IsDuplicate(err) {
			return errors.New(errors.ErrCodeConflict, fmt.Sprintf("sector %q already exists", *patch.Name))
		}
		if err != nil {
			return err
		}
		return trail.Add(ctx, tx, ActionSectorUpdate, map[string]any{
			"sector_id": id,
			"name":      sector.Name,
			"active":    sector.Active,
		})
	})
	if err != nil {
		return nil, err
	}
	s.auditor.Publish(ctx, trail)

	s.log.Info().Int64("sector_id", id).Msg("Sector updated")
	return sector, nil
}

// ListIndicators lists the indicators visible to actor. Anonymous callers and
// management may list any sector; everyone else must name one they can access.
func (s *DirectoryService) ListIndicators(ctx context.Context, actor *Actor, sectorID *int64) ([]IndicatorView, error) {
	if actor != nil && actor.Level < repository.LevelManagement && sectorID == nil {
		return nil, errors.InvalidInput("sectorId", "sector is required")
	}

	var list []*repository.Indicator
	err := s.store.View(ctx, func(tx repository.Tx) error {
		filter := repository.IndicatorFilter{SectorID: sectorID, ActiveOnly: true}
		if actor != nil {
			if actor.Level >= repository.LevelManagement {
				filter.ActiveOnly = false
			} else {
				if err := requireSector(ctx, tx, *actor, *sectorID); err != nil {
					return err
				}
				switch {
				case actor.Level == repository.LevelContributor:
					filter.UnownedOrResponsible = actor.ActorID()
				case actor.Level == repository.LevelSupervisor && !actor.inSector(*sectorID):
					filter.ResponsibleID = actor.ActorID()
				}
			}
		}
		var err error
		list, err = tx.Indicators().List(ctx, filter)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]IndicatorView, 0, len(list))
	for _, ind := range list {
		out = append(out, IndicatorView{Indicator: ind, ReadOnly: indicatorReadOnly(actor, ind)})
	}
	return out, nil
}

func indicatorReadOnly(actor *Actor, ind *repository.Indicator) bool {
	switch {
	case actor == nil, actor.Level <= repository.LevelReader:
		return true
	case actor.Level == repository.LevelSupervisor:
		return ind.ResponsibleID != nil && *ind.ResponsibleID != actor.ID
	default:
		return false
	}
}

// CreateIndicator creates an indicator under an existing sector.
func (s *DirectoryService) CreateIndicator(ctx context.Context, actor Actor, req *CreateIndicatorRequest) (*repository.Indicator, error) {
	if err := requireLevel(actor, repository.LevelManagement); err != nil {
		return nil, err
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, errors.InvalidInput("code", "indicator code is required")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Indicator " + code
	}

	now := s.now().UTC()
	trail := newAuditTrail(actor.ActorID(), now)
	ind := &repository.Indicator{
		SectorID:      req.SectorID,
		Code:          code,
		Name:          name,
		Type:          req.Type,
		Unit:          req.Unit,
		Target:        req.Target,
		Active:        true,
		ResponsibleID: req.ResponsibleID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := s.store.InTransaction(ctx, func(tx repository.Tx) error {
		if _, err := tx.Sectors().Get(ctx, req.SectorID); err != nil {
			return err
		}
		if req.ResponsibleID != nil {
			if _, err := tx.Employees().Get(ctx, *req.ResponsibleID); err != nil {
				return err
			}
		}
		if err := tx.Indicators().Create(ctx, ind); err != nil {
			if repository.IsDuplicate(err) {
				return errors.New(errors.ErrCodeConflict, fmt.Sprintf("indicator %q already exists in sector %d", code, req.SectorID))
			}
			return err
		}
		return trail.Add(ctx, tx, ActionIndicatorCreate, map[string]any{
			"indicator_id": ind.ID,
			"sector_id":    ind.SectorID,
			"code":         ind.Code,
		})
	})
	if err != nil {
		return nil, err
	}
	s.auditor.Publish(ctx, trail)

	s.log.Info().
		Int64("indicator_id", ind.ID).
		Int64("sector_id", ind.SectorID).
		Str("code", ind.Code).
		Msg("Indicator created")

	return ind, nil
}

// UpdateIndicator applies patch to an existing indicator.
func (s *DirectoryService) UpdateIndicator(ctx context.Context, actor Actor, id int64, patch repository.IndicatorPatch) (*repository.Indicator, error) {
	if err := requireLevel(actor, repository.LevelManagement); err != nil {
		return nil, err
	}
	if patch.Empty() {
		return nil, errors.InvalidInput("body", "nothing to update")
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, errors.InvalidInput("name", "indicator name cannot be empty")
		}
		patch.Name = &name
	}

	now := s.now().UTC()
	trail := newAuditTrail(actor.ActorID(), now)
	var ind *repository.Indicator
	err := s.store.InTransaction(ctx, func(tx repository.Tx) error {
		if patch.ResponsibleSet && patch.ResponsibleID != nil {
			if _, err := tx.Employees().Get(ctx, *patch.ResponsibleID); err != nil {
				return err
			}
		}
		var err error
		if ind, err = tx.Indicators().Update(ctx, id, patch, now); err != nil {
			return err
		}
		return trail.Add(ctx, tx, ActionIndicatorUpdate, map[string]any{
			"indicator_id": id,
			"active":       ind.Active,
		})
	})
	if err != nil {
		return nil, err
	}
	s.auditor.Publish(ctx, trail)

	s.log.Info().Int64("indicator_id", id).Msg("Indicator updated")
	return ind, nil
}

// ListSectorEmployees lists the active identities of the actor's sector by
// name.
func (s *DirectoryService) ListSectorEmployees(ctx context.Context, actor Actor) ([]*repository.Employee, error) {
	if err := requireLevel(actor, repository.LevelSupervisor); err != nil {
		return nil, err
	}
	if actor.SectorID == nil {
		return []*repository.Employee{}, nil
	}

	var out []*repository.Employee
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.Employees().List(ctx, repository.EmployeeFilter{SectorID: actor.SectorID, ActiveOnly: true})
		return err
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	if out == nil {
		out = []*repository.Employee{}
	}
	return out, nil
}
