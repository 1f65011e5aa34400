package handler

import (
	"time"

	"github.com/pesio-ai/be-ops-indicators/internal/repository"
	"github.com/pesio-ai/be-ops-indicators/internal/service"
)

type sectorView struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

func newSectorView(s *repository.Sector) sectorView {
	return sectorView{ID: s.ID, Name: s.Name, Active: s.Active}
}

func sectorViews(list []*repository.Sector) []sectorView {
	out := make([]sectorView, 0, len(list))
	for _, s := range list {
		out = append(out, newSectorView(s))
	}
	return out
}

// employeeView never carries the password hash.
type employeeView struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	SectorID *int64 `json:"sectorId"`
	Level    int    `json:"level"`
	Active   bool   `json:"active"`
}

func newEmployeeView(e *repository.Employee) employeeView {
	return employeeView{
		ID:       e.ID,
		Name:     e.Name,
		Email:    e.Email,
		SectorID: e.SectorID,
		Level:    e.Level,
		Active:   e.Active,
	}
}

func employeeViews(list []*repository.Employee) []employeeView {
	out := make([]employeeView, 0, len(list))
	for _, e := range list {
		out = append(out, newEmployeeView(e))
	}
	return out
}

type indicatorView struct {
	ID            int64   `json:"id"`
	SectorID      int64   `json:"sectorId"`
	Code          string  `json:"code"`
	Name          string  `json:"name"`
	Type          *string `json:"type"`
	Unit          *string `json:"unit"`
	Target        *string `json:"target"`
	Active        bool    `json:"active"`
	ResponsibleID *int64  `json:"responsibleId"`
	ReadOnly      bool    `json:"readOnly"`
}

func newIndicatorView(ind *repository.Indicator, readOnly bool) indicatorView {
	return indicatorView{
		ID:            ind.ID,
		SectorID:      ind.SectorID,
		Code:          ind.Code,
		Name:          ind.Name,
		Type:          ind.Type,
		Unit:          ind.Unit,
		Target:        ind.Target,
		Active:        ind.Active,
		ResponsibleID: ind.ResponsibleID,
		ReadOnly:      readOnly,
	}
}

func indicatorViews(list []service.IndicatorView) []indicatorView {
	out := make([]indicatorView, 0, len(list))
	for _, v := range list {
		out = append(out, newIndicatorView(v.Indicator, v.ReadOnly))
	}
	return out
}

type draftView struct {
	ID            int64      `json:"id"`
	IndicatorID   int64      `json:"indicatorId"`
	IndicatorCode string     `json:"indicatorCode,omitempty"`
	IndicatorName string     `json:"indicatorName,omitempty"`
	SectorID      int64      `json:"sectorId"`
	SectorName    string     `json:"sectorName,omitempty"`
	EmployeeID    int64      `json:"employeeId"`
	EmployeeName  string     `json:"employeeName,omitempty"`
	Period        string     `json:"period"`
	Value         *string    `json:"value"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	SubmittedAt   *time.Time `json:"submittedAt,omitempty"`
	ApprovedAt    *time.Time `json:"approvedAt,omitempty"`
	ApprovedBy    *int64     `json:"approvedBy,omitempty"`
	RejectedAt    *time.Time `json:"rejectedAt,omitempty"`
	RejectedBy    *int64     `json:"rejectedBy,omitempty"`
	RejectReason  *string    `json:"rejectReason,omitempty"`
}

func newDraftView(d *repository.Draft) draftView {
	return draftView{
		ID:            d.ID,
		IndicatorID:   d.IndicatorID,
		IndicatorCode: d.IndicatorCode,
		IndicatorName: d.IndicatorName,
		SectorID:      d.SectorID,
		SectorName:    d.SectorName,
		EmployeeID:    d.EmployeeID,
		EmployeeName:  d.EmployeeName,
		Period:        service.FormatPeriod(d.Period),
		Value:         d.Value,
		Status:        d.Status,
		CreatedAt:     d.CreatedAt,
		SubmittedAt:   d.SubmittedAt,
		ApprovedAt:    d.ApprovedAt,
		ApprovedBy:    d.ApprovedBy,
		RejectedAt:    d.RejectedAt,
		RejectedBy:    d.RejectedBy,
		RejectReason:  d.RejectReason,
	}
}

func draftViews(list []*repository.Draft) []draftView {
	out := make([]draftView, 0, len(list))
	for _, d := range list {
		out = append(out, newDraftView(d))
	}
	return out
}

type valueView struct {
	ID            int64     `json:"id"`
	IndicatorID   int64     `json:"indicatorId"`
	IndicatorCode string    `json:"indicatorCode,omitempty"`
	IndicatorName string    `json:"indicatorName,omitempty"`
	SectorID      int64     `json:"sectorId"`
	EmployeeID    int64     `json:"employeeId"`
	Period        string    `json:"period"`
	Value         *string   `json:"value"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func valueViews(list []*repository.Value) []valueView {
	out := make([]valueView, 0, len(list))
	for _, v := range list {
		out = append(out, valueView{
			ID:            v.ID,
			IndicatorID:   v.IndicatorID,
			IndicatorCode: v.IndicatorCode,
			IndicatorName: v.IndicatorName,
			SectorID:      v.SectorID,
			EmployeeID:    v.EmployeeID,
			Period:        service.FormatPeriod(v.Period),
			Value:         v.Value,
			UpdatedAt:     v.UpdatedAt,
		})
	}
	return out
}
