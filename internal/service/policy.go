package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/pesio-ai/be-ops-indicators/internal/errors"
	"github.com/pesio-ai/be-ops-indicators/internal/repository"
)

// Actor is the validated caller of an operation.
type Actor struct {
	ID       int64
	Level    int
	SectorID *int64
	Name     string
	Email    string
}

// ActorID returns a pointer suitable for audit records.
func (a Actor) ActorID() *int64 {
	id := a.ID
	return &id
}

func (a Actor) inSector(sectorID int64) bool {
	return a.SectorID != nil && *a.SectorID == sectorID
}

// CanAccessSector reports whether an actor may read or write data scoped to
// sectorID. assigned lists the sectors where the actor is the designated
// responsible of an active indicator; it only matters for levels 2 and 3.
func CanAccessSector(a Actor, sectorID int64, assigned []int64) bool {
	if a.Level >= repository.LevelManagement {
		return true
	}
	if a.inSector(sectorID) {
		return true
	}
	if a.Level == repository.LevelContributor || a.Level == repository.LevelSupervisor {
		return slices.Contains(assigned, sectorID)
	}
	return false
}

// CanFillIndicator reports whether an actor may submit values for an
// indicator owned by indicatorSectorID with an optional responsible.
func CanFillIndicator(a Actor, indicatorSectorID int64, responsibleID *int64) bool {
	ownerOrUnset := responsibleID == nil || *responsibleID == a.ID
	switch {
	case a.Level >= repository.LevelManagement:
		return true
	case a.Level == repository.LevelSupervisor:
		if a.inSector(indicatorSectorID) {
			return ownerOrUnset
		}
		return responsibleID != nil && *responsibleID == a.ID
	case a.Level == repository.LevelContributor:
		return a.inSector(indicatorSectorID) && ownerOrUnset
	default:
		return false
	}
}

// CanCreateOrModifyIdentity reports whether an actor may create, edit or
// reset an identity at targetLevel. Admins may touch anyone; management only
// identities strictly below itself.
func CanCreateOrModifyIdentity(a Actor, targetLevel int) bool {
	if a.Level == repository.LevelAdmin {
		return true
	}
	return a.Level == repository.LevelManagement && targetLevel < a.Level
}

func requireLevel(a Actor, level int) error {
	if a.Level < level {
		return errors.Forbidden(fmt.Sprintf("requires level %d or above", level))
	}
	return nil
}

// sectorAllowed evaluates CanAccessSector, loading the actor's assigned
// sectors from tx only when they can matter.
func sectorAllowed(ctx context.Context, tx repository.Tx, a Actor, sectorID int64) (bool, error) {
	if a.Level >= repository.LevelManagement || a.inSector(sectorID) {
		return true, nil
	}
	var assigned []int64
	if a.Level == repository.LevelContributor || a.Level == repository.LevelSupervisor {
		var err error
		if assigned, err = tx.Indicators().ResponsibleSectorIDs(ctx, a.ID); err != nil {
			return false, err
		}
	}
	return CanAccessSector(a, sectorID, assigned), nil
}

func requireSector(ctx context.Context, tx repository.Tx, a Actor, sectorID int64) error {
	ok, err := sectorAllowed(ctx, tx, a, sectorID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Forbidden(fmt.Sprintf("no access to sector %d", sectorID))
	}
	return nil
}
