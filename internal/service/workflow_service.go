package service

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/pesio-ai/be-ops-indicators/internal/errors"
	"github.com/pesio-ai/be-ops-indicators/internal/logger"
	"github.com/pesio-ai/be-ops-indicators/internal/repository"
)

// WorkflowService moves indicator values through the draft, review and
// commit lifecycle.
type WorkflowService struct {
	store    repository.Store
	resolver *Resolver
	auditor  *Auditor
	log      *logger.Logger
	now      func() time.Time
}

// NewWorkflowService creates a new workflow service
func NewWorkflowService(
	store repository.Store,
	resolver *Resolver,
	auditor *Auditor,
	log *logger.Logger,
) *WorkflowService {
	return &WorkflowService{
		store:    store,
		resolver: resolver,
		auditor:  auditor,
		log:      log,
		now:      time.Now,
	}
}

// ValuesRequest is the payload of SaveDraft and CommitValues.
type ValuesRequest struct {
	Sector   SectorRef
	Employee EmployeeRef
	Period   string
	Items    []ItemInput
}

// ItemInput is one indicator value of a ValuesRequest.
type ItemInput struct {
	Indicator IndicatorRef
	Value     *string
}

// DraftQuery filters ListDrafts. Empty fields do not filter.
type DraftQuery struct {
	SectorID *int64
	Period   string
	Status   string
}

type resolvedItem struct {
	indicator *repository.Indicator
	value     *string
}

type resolvedValues struct {
	sectorID   int64
	employeeID int64
	items      []resolvedItem
}

// resolveValues resolves every reference of req and checks the actor may fill
// each indicator. Any failure aborts the whole request.
func (s *WorkflowService) resolveValues(ctx context.Context, tx repository.Tx, trail *AuditTrail, actor Actor, req *ValuesRequest) (*resolvedValues, error) {
	sectorID, err := s.resolver.ResolveSector(ctx, tx, trail, req.Sector)
	if err != nil {
		return nil, err
	}
	if err := requireSector(ctx, tx, actor, sectorID); err != nil {
		return nil, err
	}

	employeeID, err := s.resolver.ResolveEmployee(ctx, tx, trail, req.Employee, sectorID)
	if err != nil {
		return nil, err
	}

	out := &resolvedValues{sectorID: sectorID, employeeID: employeeID}
	for _, item := range req.Items {
		ind, err := s.resolver.ResolveIndicator(ctx, tx, trail, item.Indicator, sectorID)
		if err != nil {
			return nil, err
		}
		if !CanFillIndicator(actor, ind.SectorID, ind.ResponsibleID) {
			return nil, errors.Forbidden(fmt.Sprintf("not allowed to fill indicator %s", ind.Code))
		}
		out.items = append(out.items, resolvedItem{indicator: ind, value: item.Value})
	}
	return out, nil
}

func validateValuesRequest(req *ValuesRequest) (time.Time, error) {
	period, err := ParsePeriod(req.Period)
	if err != nil {
		return time.Time{}, err
	}
	if len(req.Items) == 0 {
		return time.Time{}, errors.InvalidInput("items", "at least one item is required")
	}
	return period, nil
}

// SaveDraft stores one draft per item. Contributors' drafts are submitted
// immediately; higher levels keep them as DRAFT.
func (s *WorkflowService) SaveDraft(ctx context.Context, actor Actor, req *ValuesRequest) ([]*repository.Draft, error) {
	if err := requireLevel(actor, repository.LevelContributor); err != nil {
		return nil, err
	}
	period, err := validateValuesRequest(req)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	status := repository.StatusDraft
	var submittedAt *time.Time
	if actor.Level == repository.LevelContributor {
		status = repository.StatusPending
		submittedAt = &now
	}

	trail := newAuditTrail(actor.ActorID(), now)
	var drafts []*repository.Draft
	var sectorID int64
	err = s.store.InTransaction(ctx, func(tx repository.Tx) error {
		rv, err := s.resolveValues(ctx, tx, trail, actor, req)
		if err != nil {
			return err
		}
		sectorID = rv.sectorID

		ids := make([]int64, 0, len(rv.items))
		for _, item := range rv.items {
			d := &repository.Draft{
				IndicatorID: item.indicator.ID,
				SectorID:    rv.sectorID,
				EmployeeID:  rv.employeeID,
				Period:      period,
				Value:       item.value,
				Status:      status,
				CreatedAt:   now,
				SubmittedAt: submittedAt,
			}
			if err := tx.Drafts().Create(ctx, d); err != nil {
				return err
			}
			drafts = append(drafts, d)
			ids = append(ids, d.ID)
		}

		return trail.Add(ctx, tx, ActionDraftSave, map[string]any{
			"sector_id":   rv.sectorID,
			"employee_id": rv.employeeID,
			"period":      FormatPeriod(period),
			"status":      status,
			"draft_ids":   ids,
		})
	})
	if err != nil {
		return nil, err
	}
	s.auditor.Publish(ctx, trail)

	s.log.Info().
		Int64("actor_id", actor.ID).
		Int64("sector_id", sectorID).
		Str("period", FormatPeriod(period)).
		Str("status", status).
		Int("count", len(drafts)).
		Msg("Drafts saved")

	return drafts, nil
}

// CommitValues writes every item straight to the authoritative values,
// acting as an implicit self-approval.
func (s *WorkflowService) CommitValues(ctx context.Context, actor Actor, req *ValuesRequest) ([]*repository.Value, error) {
	if err := requireLevel(actor, repository.LevelSupervisor); err != nil {
		return nil, err
	}
	period, err := validateValuesRequest(req)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	trail := newAuditTrail(actor.ActorID(), now)
	var values []*repository.Value
	var sectorID int64
	err = s.store.InTransaction(ctx, func(tx repository.Tx) error {
		rv, err := s.resolveValues(ctx, tx, trail, actor, req)
		if err != nil {
			return err
		}
		sectorID = rv.sectorID

		ids := make([]int64, 0, len(rv.items))
		for _, item := range rv.items {
			v := &repository.Value{
				IndicatorID: item.indicator.ID,
				SectorID:    rv.sectorID,
				EmployeeID:  rv.employeeID,
				Period:      period,
				Value:       item.value,
				UpdatedAt:   now,
			}
			if err := tx.Values().Upsert(ctx, v); err != nil {
				return err
			}
			values = append(values, v)
			ids = append(ids, item.indicator.ID)
		}

		return trail.Add(ctx, tx, ActionValuesCommit, map[string]any{
			"sector_id":     rv.sectorID,
			"employee_id":   rv.employeeID,
			"period":        FormatPeriod(period),
			"indicator_ids": ids,
		})
	})
	if err != nil {
		return nil, err
	}
	s.auditor.Publish(ctx, trail)

	s.log.Info().
		Int64("actor_id", actor.ID).
		Int64("sector_id", sectorID).
		Str("period", FormatPeriod(period)).
		Int("count", len(values)).
		Msg("Values committed")

	return values, nil
}

// SubmitDrafts moves the DRAFT and REJECTED rows of (sector, period) to
// PENDING. Contributors only submit their own rows.
func (s *WorkflowService) SubmitDrafts(ctx context.Context, actor Actor, sectorID int64, rawPeriod string) (int, error) {
	if err := requireLevel(actor, repository.LevelContributor); err != nil {
		return 0, err
	}
	period, err := ParsePeriod(rawPeriod)
	if err != nil {
		return 0, err
	}

	var author *int64
	if actor.Level == repository.LevelContributor {
		author = actor.ActorID()
	}

	now := s.now().UTC()
	trail := newAuditTrail(actor.ActorID(), now)
	var submitted int
	err = s.store.InTransaction(ctx, func(tx repository.Tx) error {
		if err := requireSector(ctx, tx, actor, sectorID); err != nil {
			return err
		}
		n, err := tx.Drafts().Submit(ctx, sectorID, period, author, now)
		if err != nil {
			return err
		}
		submitted = n
		return trail.Add(ctx, tx, ActionDraftsSubmit, map[string]any{
			"sector_id":       sectorID,
			"period":          FormatPeriod(period),
			"submitted_count": n,
		})
	})
	if err != nil {
		return 0, err
	}
	s.auditor.Publish(ctx, trail)

	s.log.Info().
		Int64("actor_id", actor.ID).
		Int64("sector_id", sectorID).
		Str("period", FormatPeriod(period)).
		Int("submitted_count", submitted).
		Msg("Drafts submitted")

	return submitted, nil
}

func approve(ctx context.Context, tx repository.Tx, d *repository.Draft, actor Actor, at time.Time) error {
	if err := tx.Values().Upsert(ctx, &repository.Value{
		IndicatorID: d.IndicatorID,
		SectorID:    d.SectorID,
		EmployeeID:  d.EmployeeID,
		Period:      d.Period,
		Value:       d.Value,
		UpdatedAt:   at,
	}); err != nil {
		return err
	}
	return tx.Drafts().MarkApproved(ctx, d.ID, repository.DraftTransition{ActorID: actor.ID, At: at})
}

// ApproveDrafts approves every PENDING row of (sector, period) in ascending
// id order, upserting each into the authoritative values. Rows sharing a key
// resolve to the last one processed.
func (s *WorkflowService) ApproveDrafts(ctx context.Context, actor Actor, sectorID int64, rawPeriod string) (int, error) {
	if err := requireLevel(actor, repository.LevelSupervisor); err != nil {
		return 0, err
	}
	period, err := ParsePeriod(rawPeriod)
	if err != nil {
		return 0, err
	}

	now := s.now().UTC()
	trail := newAuditTrail(actor.ActorID(), now)
	var approved int
	err = s.store.InTransaction(ctx, func(tx repository.Tx) error {
		if err := requireSector(ctx, tx, actor, sectorID); err != nil {
			return err
		}
		pending, err := tx.Drafts().ListForUpdate(ctx, repository.DraftFilter{
			SectorID: &sectorID,
			Period:   &period,
			Statuses: []string{repository.StatusPending},
		})
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return errors.New(errors.ErrCodeNothingToApprove, "no pending drafts for this sector and period")
		}

		ids := make([]int64, 0, len(pending))
		for _, d := range pending {
			if err := approve(ctx, tx, d, actor, now); err != nil {
				return err
			}
			ids = append(ids, d.ID)
		}
		approved = len(pending)

		return trail.Add(ctx, tx, ActionDraftsApprove, map[string]any{
			"sector_id":      sectorID,
			"period":         FormatPeriod(period),
			"approved_count": approved,
			"draft_ids":      ids,
		})
	})
	if err != nil {
		return 0, err
	}
	s.auditor.Publish(ctx, trail)

	s.log.Info().
		Int64("actor_id", actor.ID).
		Int64("sector_id", sectorID).
		Str("period", FormatPeriod(period)).
		Int("approved_count", approved).
		Msg("Drafts approved")

	return approved, nil
}

// lockPending loads a draft for update and checks the actor may review it.
func lockPending(ctx context.Context, tx repository.Tx, actor Actor, id int64) (*repository.Draft, error) {
	d, err := tx.Drafts().GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireSector(ctx, tx, actor, d.SectorID); err != nil {
		return nil, err
	}
	if d.Status != repository.StatusPending {
		return nil, errors.New(errors.ErrCodeInvalidState, fmt.Sprintf("draft %d is %s, not PENDING", d.ID, d.Status))
	}
	return d, nil
}

// ApproveOne approves a single PENDING draft.
func (s *WorkflowService) ApproveOne(ctx context.Context, actor Actor, draftID int64) (*repository.Draft, error) {
	if err := requireLevel(actor, repository.LevelSupervisor); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	trail := newAuditTrail(actor.ActorID(), now)
	var draft *repository.Draft
	err := s.store.InTransaction(ctx, func(tx repository.Tx) error {
		d, err := lockPending(ctx, tx, actor, draftID)
		if err != nil {
			return err
		}
		if err := approve(ctx, tx, d, actor, now); err != nil {
			return err
		}
		if draft, err = tx.Drafts().GetForUpdate(ctx, draftID); err != nil {
			return err
		}
		return trail.Add(ctx, tx, ActionDraftApprove, map[string]any{
			"draft_id":     d.ID,
			"indicator_id": d.IndicatorID,
			"sector_id":    d.SectorID,
			"period":       FormatPeriod(d.Period),
		})
	})
	if err != nil {
		return nil, err
	}
	s.auditor.Publish(ctx, trail)

	s.log.Info().
		Int64("actor_id", actor.ID).
		Int64("draft_id", draftID).
		Msg("Draft approved")

	return draft, nil
}

// RejectOne rejects a single PENDING draft with a reason.
func (s *WorkflowService) RejectOne(ctx context.Context, actor Actor, draftID int64, reason string) (*repository.Draft, error) {
	if err := requireLevel(actor, repository.LevelSupervisor); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errors.InvalidInput("reason", "a rejection reason is required")
	}

	now := s.now().UTC()
	trail := newAuditTrail(actor.ActorID(), now)
	var draft *repository.Draft
	err := s.store.InTransaction(ctx, func(tx repository.Tx) error {
		d, err := lockPending(ctx, tx, actor, draftID)
		if err != nil {
			return err
		}
		if err := tx.Drafts().MarkRejected(ctx, d.ID, repository.DraftTransition{
			ActorID: actor.ID,
			At:      now,
			Reason:  reason,
		}); err != nil {
			return err
		}
		if draft, err = tx.Drafts().GetForUpdate(ctx, draftID); err != nil {
			return err
		}
		return trail.Add(ctx, tx, ActionDraftReject, map[string]any{
			"draft_id":  d.ID,
			"sector_id": d.SectorID,
			"reason":    reason,
		})
	})
	if err != nil {
		return nil, err
	}
	s.auditor.Publish(ctx, trail)

	s.log.Info().
		Int64("actor_id", actor.ID).
		Int64("draft_id", draftID).
		Msg("Draft rejected")

	return draft, nil
}

// ListDrafts lists drafts newest first within the actor's scope:
// contributors see their own rows, supervisors their sector, management all.
func (s *WorkflowService) ListDrafts(ctx context.Context, actor Actor, q DraftQuery) ([]*repository.Draft, error) {
	if err := requireLevel(actor, repository.LevelContributor); err != nil {
		return nil, err
	}

	filter := repository.DraftFilter{SectorID: q.SectorID}
	if strings.TrimSpace(q.Period) != "" {
		period, err := ParsePeriod(q.Period)
		if err != nil {
			return nil, err
		}
		filter.Period = &period
	}
	if st := strings.ToUpper(strings.TrimSpace(q.Status)); st != "" {
		if !validStatus(st) {
			return nil, errors.InvalidInput("status", fmt.Sprintf("unknown status %q", q.Status))
		}
		filter.Statuses = []string{st}
	}

	switch {
	case actor.Level == repository.LevelContributor:
		filter.EmployeeID = actor.ActorID()
	case actor.Level == repository.LevelSupervisor:
		if actor.SectorID == nil {
			return []*repository.Draft{}, nil
		}
		if q.SectorID != nil && *q.SectorID != *actor.SectorID {
			return []*repository.Draft{}, nil
		}
		own := *actor.SectorID
		filter.SectorID = &own
	}

	return s.listDrafts(ctx, filter)
}

func (s *WorkflowService) listDrafts(ctx context.Context, filter repository.DraftFilter) ([]*repository.Draft, error) {
	var out []*repository.Draft
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.Drafts().List(ctx, filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*repository.Draft{}
	}
	return out, nil
}

func validStatus(st string) bool {
	return slices.Contains([]string{
		repository.StatusDraft,
		repository.StatusPending,
		repository.StatusApproved,
		repository.StatusRejected,
	}, st)
}

// ListRejected lists the actor's own rejected drafts, most recently rejected
// first.
func (s *WorkflowService) ListRejected(ctx context.Context, actor Actor, sectorID *int64) ([]*repository.Draft, error) {
	if err := requireLevel(actor, repository.LevelContributor); err != nil {
		return nil, err
	}
	out, err := s.listDrafts(ctx, repository.DraftFilter{
		SectorID:   sectorID,
		EmployeeID: actor.ActorID(),
		Statuses:   []string{repository.StatusRejected},
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return rejectedAt(out[i]).After(rejectedAt(out[j]))
	})
	return out, nil
}

func rejectedAt(d *repository.Draft) time.Time {
	if d.RejectedAt == nil {
		return time.Time{}
	}
	return *d.RejectedAt
}

// ListPending lists PENDING drafts awaiting review. Management must name a
// sector; supervisors default to their own and may name another they can
// access.
func (s *WorkflowService) ListPending(ctx context.Context, actor Actor, sectorID *int64) ([]*repository.Draft, error) {
	if err := requireLevel(actor, repository.LevelSupervisor); err != nil {
		return nil, err
	}

	var target *int64
	if actor.Level >= repository.LevelManagement {
		if sectorID == nil {
			return nil, errors.InvalidInput("sectorId", "sector is required")
		}
		target = sectorID
	} else {
		target = actor.SectorID
		if sectorID != nil {
			err := s.store.View(ctx, func(tx repository.Tx) error {
				ok, err := sectorAllowed(ctx, tx, actor, *sectorID)
				if ok {
					target = sectorID
				}
				return err
			})
			if err != nil {
				return nil, err
			}
		}
	}
	if target == nil {
		return []*repository.Draft{}, nil
	}

	return s.listDrafts(ctx, repository.DraftFilter{
		SectorID: target,
		Statuses: []string{repository.StatusPending},
	})
}

// ListValues lists the authoritative values of (sector, period).
func (s *WorkflowService) ListValues(ctx context.Context, actor Actor, sectorID int64, rawPeriod string) ([]*repository.Value, error) {
	if err := requireLevel(actor, repository.LevelReader); err != nil {
		return nil, err
	}
	period, err := ParsePeriod(rawPeriod)
	if err != nil {
		return nil, err
	}

	var out []*repository.Value
	err = s.store.View(ctx, func(tx repository.Tx) error {
		if err := requireSector(ctx, tx, actor, sectorID); err != nil {
			return err
		}
		var lerr error
		out, lerr = tx.Values().List(ctx, sectorID, period)
		return lerr
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*repository.Value{}
	}
	return out, nil
}
