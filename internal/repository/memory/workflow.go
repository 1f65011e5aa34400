package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/pesio-ai/be-ops-indicators/internal/errors"
	"github.com/pesio-ai/be-ops-indicators/internal/repository"
)

type drafts struct{ tx *memTx }

func (r drafts) Create(_ context.Context, d *repository.Draft) error {
	if err := r.tx.check("drafts.create"); err != nil {
		return err
	}
	d.ID = r.tx.state.nextID("drafts")
	r.tx.state.drafts[d.ID] = *d
	return nil
}

func (r drafts) GetForUpdate(_ context.Context, id int64) (*repository.Draft, error) {
	d, ok := r.tx.state.drafts[id]
	if !ok {
		return nil, errors.NotFound("draft", id)
	}
	return &d, nil
}

func (r drafts) match(d repository.Draft, f repository.DraftFilter) bool {
	if f.SectorID != nil && d.SectorID != *f.SectorID {
		return false
	}
	if f.Period != nil && !d.Period.Equal(*f.Period) {
		return false
	}
	if f.EmployeeID != nil && d.EmployeeID != *f.EmployeeID {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, d.Status) {
		return false
	}
	return true
}

func (r drafts) ListForUpdate(_ context.Context, f repository.DraftFilter) ([]*repository.Draft, error) {
	var out []*repository.Draft
	for _, d := range r.tx.state.drafts {
		if r.match(d, f) {
			out = append(out, &d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r drafts) Submit(_ context.Context, sectorID int64, period time.Time, employeeID *int64, at time.Time) (int, error) {
	if err := r.tx.check("drafts.submit"); err != nil {
		return 0, err
	}
	f := repository.DraftFilter{
		SectorID:   &sectorID,
		Period:     &period,
		EmployeeID: employeeID,
		Statuses:   []string{repository.StatusDraft, repository.StatusRejected},
	}
	n := 0
	for id, d := range r.tx.state.drafts {
		if !r.match(d, f) {
			continue
		}
		d.Status = repository.StatusPending
		d.SubmittedAt = &at
		r.tx.state.drafts[id] = d
		n++
	}
	return n, nil
}

func (r drafts) transition(id int64, op string, apply func(*repository.Draft)) error {
	if err := r.tx.check(op); err != nil {
		return err
	}
	d, ok := r.tx.state.drafts[id]
	if !ok || d.Status != repository.StatusPending {
		return errors.New(errors.ErrCodeInvalidState, fmt.Sprintf("draft %d is not pending", id))
	}
	apply(&d)
	r.tx.state.drafts[id] = d
	return nil
}

func (r drafts) MarkApproved(_ context.Context, id int64, t repository.DraftTransition) error {
	return r.transition(id, "drafts.approve", func(d *repository.Draft) {
		d.Status = repository.StatusApproved
		d.ApprovedAt = &t.At
		d.ApprovedBy = &t.ActorID
	})
}

func (r drafts) MarkRejected(_ context.Context, id int64, t repository.DraftTransition) error {
	return r.transition(id, "drafts.reject", func(d *repository.Draft) {
		d.Status = repository.StatusRejected
		d.RejectedAt = &t.At
		d.RejectedBy = &t.ActorID
		d.RejectReason = &t.Reason
	})
}

func (r drafts) List(_ context.Context, f repository.DraftFilter) ([]*repository.Draft, error) {
	var out []*repository.Draft
	for _, d := range r.tx.state.drafts {
		if !r.match(d, f) {
			continue
		}
		if ind, ok := r.tx.state.indicators[d.IndicatorID]; ok {
			d.IndicatorCode, d.IndicatorName = ind.Code, ind.Name
		}
		if s, ok := r.tx.state.sectors[d.SectorID]; ok {
			d.SectorName = s.Name
		}
		if e, ok := r.tx.state.employees[d.EmployeeID]; ok {
			d.EmployeeName = e.Name
		}
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

type valueKey struct {
	indicatorID int64
	sectorID    int64
	period      time.Time
}

type values struct{ tx *memTx }

func (r values) find(k valueKey) (repository.Value, bool) {
	for _, v := range r.tx.state.values {
		if v.IndicatorID == k.indicatorID && v.SectorID == k.sectorID && v.Period.Equal(k.period) {
			return v, true
		}
	}
	return repository.Value{}, false
}

func (r values) Upsert(_ context.Context, v *repository.Value) error {
	if err := r.tx.check("values.upsert"); err != nil {
		return err
	}
	existing, ok := r.find(valueKey{v.IndicatorID, v.SectorID, v.Period})
	if ok {
		existing.Value = v.Value
		existing.EmployeeID = v.EmployeeID
		existing.UpdatedAt = v.UpdatedAt
		r.tx.state.values[existing.ID] = existing
		*v = existing
		return nil
	}
	v.ID = r.tx.state.nextID("values")
	v.CreatedAt = v.UpdatedAt
	r.tx.state.values[v.ID] = *v
	return nil
}

func (r values) Get(_ context.Context, indicatorID, sectorID int64, period time.Time) (*repository.Value, error) {
	v, ok := r.find(valueKey{indicatorID, sectorID, period})
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (r values) List(_ context.Context, sectorID int64, period time.Time) ([]*repository.Value, error) {
	var out []*repository.Value
	for _, v := range r.tx.state.values {
		if v.SectorID != sectorID || !v.Period.Equal(period) {
			continue
		}
		if ind, ok := r.tx.state.indicators[v.IndicatorID]; ok {
			v.IndicatorCode, v.IndicatorName = ind.Code, ind.Name
		}
		out = append(out, &v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IndicatorID < out[j].IndicatorID })
	return out, nil
}

type auditLog struct{ tx *memTx }

func (r auditLog) Append(_ context.Context, e *repository.AuditEntry) error {
	if err := r.tx.check("audit.append"); err != nil {
		return err
	}
	e.ID = r.tx.state.nextID("audit")
	r.tx.state.audit = append(r.tx.state.audit, *e)
	return nil
}
