package repository

import "time"

// Draft statuses.
const (
	StatusDraft    = "DRAFT"
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
)

// Authorization levels.
const (
	LevelReader      = 1
	LevelContributor = 2
	LevelSupervisor  = 3
	LevelManagement  = 4
	LevelAdmin       = 5
)

// Sector is an organizational unit owning indicators and employees.
type Sector struct {
	ID        int64
	Name      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Employee is an identity that can log in and author drafts.
type Employee struct {
	ID           int64
	Name         string
	Email        string
	SectorID     *int64
	Level        int
	Active       bool
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Indicator is a metric tracked per sector per period. When ResponsibleID is
// set only that employee (or management) may fill it.
type Indicator struct {
	ID            int64
	SectorID      int64
	Code          string
	Name          string
	Type          *string
	Unit          *string
	Target        *string
	Active        bool
	ResponsibleID *int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Draft is one submitted, not yet authoritative value.
type Draft struct {
	ID           int64
	IndicatorID  int64
	SectorID     int64
	EmployeeID   int64
	Period       time.Time
	Value        *string
	Status       string
	CreatedAt    time.Time
	SubmittedAt  *time.Time
	ApprovedAt   *time.Time
	ApprovedBy   *int64
	RejectedAt   *time.Time
	RejectedBy   *int64
	RejectReason *string

	// Populated by list queries only.
	IndicatorCode string
	IndicatorName string
	SectorName    string
	EmployeeName  string
}

// Value is the committed value of record for (indicator, sector, period).
type Value struct {
	ID          int64
	IndicatorID int64
	SectorID    int64
	EmployeeID  int64
	Period      time.Time
	Value       *string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Populated by list queries only.
	IndicatorCode string
	IndicatorName string
}

// AuditEntry is one append-only audit record.
type AuditEntry struct {
	ID      int64
	At      time.Time
	ActorID *int64
	Action  string
	Details map[string]any
}

// SectorFilter narrows ListSectors. A nil IDs slice means all sectors.
type SectorFilter struct {
	IDs        []int64
	ActiveOnly bool
}

// SectorPatch carries optional sector changes.
type SectorPatch struct {
	Name   *string
	Active *bool
}

// Empty reports whether the patch changes nothing.
func (p SectorPatch) Empty() bool {
	return p.Name == nil && p.Active == nil
}

// EmployeeFilter narrows ListEmployees.
type EmployeeFilter struct {
	SectorID   *int64
	ActiveOnly bool
}

// EmployeePatch carries optional identity changes. SectorSet distinguishes
// "clear the sector" from "leave it alone".
type EmployeePatch struct {
	Name         *string
	Email        *string
	SectorSet    bool
	SectorID     *int64
	Level        *int
	Active       *bool
	PasswordHash *string
}

// Empty reports whether the patch changes nothing.
func (p EmployeePatch) Empty() bool {
	return p.Name == nil && p.Email == nil && !p.SectorSet && p.Level == nil && p.Active == nil && p.PasswordHash == nil
}

// IndicatorFilter narrows ListIndicators.
type IndicatorFilter struct {
	SectorID *int64
	// ResponsibleID keeps only indicators owned by that employee.
	ResponsibleID *int64
	// UnownedOrResponsible keeps indicators with no owner or owned by this employee.
	UnownedOrResponsible *int64
	ActiveOnly           bool
}

// IndicatorPatch carries optional indicator changes.
type IndicatorPatch struct {
	Name           *string
	Type           *string
	Unit           *string
	Target         *string
	Active         *bool
	ResponsibleSet bool
	ResponsibleID  *int64
}

// Empty reports whether the patch changes nothing.
func (p IndicatorPatch) Empty() bool {
	return p.Name == nil && p.Type == nil && p.Unit == nil && p.Target == nil && p.Active == nil && !p.ResponsibleSet
}

// DraftFilter selects drafts. Zero-valued fields do not filter.
type DraftFilter struct {
	SectorID   *int64
	Period     *time.Time
	EmployeeID *int64
	Statuses   []string
}

// DraftTransition stamps the actor and time of an approval or rejection.
type DraftTransition struct {
	ActorID int64
	At      time.Time
	Reason  string
}
