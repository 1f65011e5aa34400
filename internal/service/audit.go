package service

import (
	"context"
	"time"

	"github.com/pesio-ai/be-ops-indicators/internal/logger"
	"github.com/pesio-ai/be-ops-indicators/internal/repository"
)

// Audit actions.
const (
	ActionDraftSave           = "draft.save"
	ActionValuesCommit        = "values.commit"
	ActionDraftsSubmit        = "drafts.submit"
	ActionDraftsApprove       = "drafts.approve"
	ActionDraftApprove        = "draft.approve"
	ActionDraftReject         = "draft.reject"
	ActionEmployeeAutoprov    = "employee.autoprovision"
	ActionSectorAutocreate    = "sector.autocreate"
	ActionIndicatorAutocreate = "indicator.autocreate"
	ActionSectorCreate        = "sector.create"
	ActionSectorUpdate        = "sector.update"
	ActionIndicatorCreate     = "indicator.create"
	ActionIndicatorUpdate     = "indicator.update"
	ActionIdentityCreate      = "identity.create"
	ActionIdentityUpdate      = "identity.update"
	ActionIdentityResetSecret = "identity.reset_secret"
	ActionIdentitySeed        = "identity.seed"
)

// AuditSink receives committed audit entries. Publish must not block the
// caller for long and its failures are never propagated.
type AuditSink interface {
	Publish(ctx context.Context, entry repository.AuditEntry)
}

// Auditor fans committed entries out to the configured sinks.
type Auditor struct {
	sinks []AuditSink
}

// NewAuditor creates an auditor. Nil sinks are ignored.
func NewAuditor(sinks ...AuditSink) *Auditor {
	a := &Auditor{}
	for _, s := range sinks {
		if s != nil {
			a.sinks = append(a.sinks, s)
		}
	}
	return a
}

// Publish forwards every entry of a committed trail.
func (a *Auditor) Publish(ctx context.Context, trail *AuditTrail) {
	if a == nil || trail == nil {
		return
	}
	for _, e := range trail.entries {
		for _, s := range a.sinks {
			s.Publish(ctx, e)
		}
	}
}

// AuditTrail collects the entries written by one transaction so they can be
// published once it commits.
type AuditTrail struct {
	actorID *int64
	at      time.Time
	entries []repository.AuditEntry
}

func newAuditTrail(actorID *int64, at time.Time) *AuditTrail {
	return &AuditTrail{actorID: actorID, at: at}
}

// Add appends an entry to the audit log inside tx.
func (t *AuditTrail) Add(ctx context.Context, tx repository.Tx, action string, details map[string]any) error {
	entry := repository.AuditEntry{
		At:      t.at,
		ActorID: t.actorID,
		Action:  action,
		Details: details,
	}
	if err := tx.Audit().Append(ctx, &entry); err != nil {
		return err
	}
	t.entries = append(t.entries, entry)
	return nil
}

// Entries returns the collected entries.
func (t *AuditTrail) Entries() []repository.AuditEntry {
	return t.entries
}

// LogAuditSink writes audit entries to the service log.
type LogAuditSink struct {
	log *logger.Logger
}

// NewLogAuditSink creates a log sink.
func NewLogAuditSink(log *logger.Logger) *LogAuditSink {
	return &LogAuditSink{log: log}
}

// Publish implements AuditSink.
func (s *LogAuditSink) Publish(_ context.Context, e repository.AuditEntry) {
	ev := s.log.Info().
		Int64("audit_id", e.ID).
		Str("action", e.Action).
		Time("at", e.At).
		Interface("details", e.Details)
	if e.ActorID != nil {
		ev = ev.Int64("actor_id", *e.ActorID)
	}
	ev.Msg("Audit")
}
