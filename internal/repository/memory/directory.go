package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/pesio-ai/be-ops-indicators/internal/errors"
	"github.com/pesio-ai/be-ops-indicators/internal/repository"
)

type sectors struct{ tx *memTx }

func (r sectors) Get(_ context.Context, id int64) (*repository.Sector, error) {
	s, ok := r.tx.state.sectors[id]
	if !ok {
		return nil, errors.NotFound("sector", id)
	}
	return &s, nil
}

func (r sectors) FindByName(_ context.Context, name string) (*repository.Sector, error) {
	for _, s := range r.tx.state.sectors {
		if strings.EqualFold(s.Name, name) {
			return &s, nil
		}
	}
	return nil, nil
}

func (r sectors) nameTaken(name string, except int64) bool {
	for id, s := range r.tx.state.sectors {
		if id != except && strings.EqualFold(s.Name, name) {
			return true
		}
	}
	return false
}

func (r sectors) Create(_ context.Context, s *repository.Sector) error {
	if err := r.tx.check("sectors.create"); err != nil {
		return err
	}
	if r.nameTaken(s.Name, 0) {
		return repository.ErrDuplicate
	}
	s.ID = r.tx.state.nextID("sectors")
	s.UpdatedAt = s.CreatedAt
	r.tx.state.sectors[s.ID] = *s
	return nil
}

func (r sectors) Update(_ context.Context, id int64, patch repository.SectorPatch, at time.Time) (*repository.Sector, error) {
	if err := r.tx.check("sectors.update"); err != nil {
		return nil, err
	}
	s, ok := r.tx.state.sectors[id]
	if !ok {
		return nil, errors.NotFound("sector", id)
	}
	if patch.Name != nil {
		if r.nameTaken(*patch.Name, id) {
			return nil, repository.ErrDuplicate
		}
		s.Name = *patch.Name
	}
	if patch.Active != nil {
		s.Active = *patch.Active
	}
	s.UpdatedAt = at
	r.tx.state.sectors[id] = s
	return &s, nil
}

func (r sectors) List(_ context.Context, f repository.SectorFilter) ([]*repository.Sector, error) {
	var out []*repository.Sector
	for _, s := range r.tx.state.sectors {
		if f.IDs != nil && !slices.Contains(f.IDs, s.ID) {
			continue
		}
		if f.ActiveOnly && !s.Active {
			continue
		}
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type employees struct{ tx *memTx }

func (r employees) Get(_ context.Context, id int64) (*repository.Employee, error) {
	e, ok := r.tx.state.employees[id]
	if !ok {
		return nil, errors.NotFound("employee", id)
	}
	return &e, nil
}

func (r employees) FindByEmail(_ context.Context, email string) (*repository.Employee, error) {
	return r.findOldest(func(e repository.Employee) bool { return strings.EqualFold(e.Email, email) }), nil
}

func (r employees) FindByName(_ context.Context, name string) (*repository.Employee, error) {
	return r.findOldest(func(e repository.Employee) bool { return strings.EqualFold(e.Name, name) }), nil
}

func (r employees) findOldest(match func(repository.Employee) bool) *repository.Employee {
	var found *repository.Employee
	for _, e := range r.tx.state.employees {
		if match(e) && (found == nil || e.ID < found.ID) {
			found = &e
		}
	}
	return found
}

func (r employees) emailTaken(email string, except int64) bool {
	for id, e := range r.tx.state.employees {
		if id != except && strings.EqualFold(e.Email, email) {
			return true
		}
	}
	return false
}

func (r employees) Create(_ context.Context, e *repository.Employee) error {
	if err := r.tx.check("employees.create"); err != nil {
		return err
	}
	if r.emailTaken(e.Email, 0) {
		return repository.ErrDuplicate
	}
	e.ID = r.tx.state.nextID("employees")
	e.UpdatedAt = e.CreatedAt
	r.tx.state.employees[e.ID] = *e
	return nil
}

func (r employees) Update(_ context.Context, id int64, p repository.EmployeePatch, at time.Time) (*repository.Employee, error) {
	if err := r.tx.check("employees.update"); err != nil {
		return nil, err
	}
	e, ok := r.tx.state.employees[id]
	if !ok {
		return nil, errors.NotFound("employee", id)
	}
	if p.Email != nil {
		if r.emailTaken(*p.Email, id) {
			return nil, repository.ErrDuplicate
		}
		e.Email = *p.Email
	}
	if p.Name != nil {
		e.Name = *p.Name
	}
	if p.SectorSet {
		e.SectorID = p.SectorID
	}
	if p.Level != nil {
		e.Level = *p.Level
	}
	if p.Active != nil {
		e.Active = *p.Active
	}
	if p.PasswordHash != nil {
		e.PasswordHash = *p.PasswordHash
	}
	e.UpdatedAt = at
	r.tx.state.employees[id] = e
	return &e, nil
}

func (r employees) List(_ context.Context, f repository.EmployeeFilter) ([]*repository.Employee, error) {
	var out []*repository.Employee
	for _, e := range r.tx.state.employees {
		if f.SectorID != nil && (e.SectorID == nil || *e.SectorID != *f.SectorID) {
			continue
		}
		if f.ActiveOnly && !e.Active {
			continue
		}
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Level != b.Level {
			return a.Level > b.Level
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (r employees) ExistsActiveAtLevel(_ context.Context, level int) (bool, error) {
	for _, e := range r.tx.state.employees {
		if e.Active && e.Level == level {
			return true, nil
		}
	}
	return false, nil
}

type indicators struct{ tx *memTx }

func (r indicators) Get(_ context.Context, id int64) (*repository.Indicator, error) {
	ind, ok := r.tx.state.indicators[id]
	if !ok {
		return nil, errors.NotFound("indicator", id)
	}
	return &ind, nil
}

func (r indicators) FindByCode(_ context.Context, sectorID int64, code string) (*repository.Indicator, error) {
	for _, ind := range r.tx.state.indicators {
		if ind.SectorID == sectorID && ind.Code == code {
			return &ind, nil
		}
	}
	return nil, nil
}

func (r indicators) Create(ctx context.Context, ind *repository.Indicator) error {
	if err := r.tx.check("indicators.create"); err != nil {
		return err
	}
	if existing, _ := r.FindByCode(ctx, ind.SectorID, ind.Code); existing != nil {
		return repository.ErrDuplicate
	}
	ind.ID = r.tx.state.nextID("indicators")
	ind.UpdatedAt = ind.CreatedAt
	r.tx.state.indicators[ind.ID] = *ind
	return nil
}

func (r indicators) Update(_ context.Context, id int64, p repository.IndicatorPatch, at time.Time) (*repository.Indicator, error) {
	if err := r.tx.check("indicators.update"); err != nil {
		return nil, err
	}
	ind, ok := r.tx.state.indicators[id]
	if !ok {
		return nil, errors.NotFound("indicator", id)
	}
	if p.Name != nil {
		ind.Name = *p.Name
	}
	if p.Type != nil {
		ind.Type = p.Type
	}
	if p.Unit != nil {
		ind.Unit = p.Unit
	}
	if p.Target != nil {
		ind.Target = p.Target
	}
	if p.Active != nil {
		ind.Active = *p.Active
	}
	if p.ResponsibleSet {
		ind.ResponsibleID = p.ResponsibleID
	}
	ind.UpdatedAt = at
	r.tx.state.indicators[id] = ind
	return &ind, nil
}

func (r indicators) List(_ context.Context, f repository.IndicatorFilter) ([]*repository.Indicator, error) {
	var out []*repository.Indicator
	for _, ind := range r.tx.state.indicators {
		if f.SectorID != nil && ind.SectorID != *f.SectorID {
			continue
		}
		if f.ResponsibleID != nil && !sameID(ind.ResponsibleID, *f.ResponsibleID) {
			continue
		}
		if f.UnownedOrResponsible != nil && ind.ResponsibleID != nil && *ind.ResponsibleID != *f.UnownedOrResponsible {
			continue
		}
		if f.ActiveOnly && !ind.Active {
			continue
		}
		out = append(out, &ind)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SectorID != out[j].SectorID {
			return out[i].SectorID < out[j].SectorID
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

func (r indicators) ResponsibleSectorIDs(_ context.Context, employeeID int64) ([]int64, error) {
	var ids []int64
	for _, ind := range r.tx.state.indicators {
		if ind.Active && sameID(ind.ResponsibleID, employeeID) && !slices.Contains(ids, ind.SectorID) {
			ids = append(ids, ind.SectorID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func sameID(p *int64, id int64) bool {
	return p != nil && *p == id
}
