package repository

import (
	"context"
	"encoding/json"

	"github.com/pesio-ai/be-ops-indicators/internal/database"
	"github.com/pesio-ai/be-ops-indicators/internal/errors"
)

// AuditRepository appends immutable audit log entries. The table has an
// update/delete-prevention trigger so this is the only mutation exposed.
type AuditRepository struct {
	q database.Querier
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(q database.Querier) *AuditRepository {
	return &AuditRepository{q: q}
}

// Append inserts one audit entry.
func (r *AuditRepository) Append(ctx context.Context, entry *AuditEntry) error {
	var detailsJSON []byte
	if entry.Details != nil {
		var err error
		detailsJSON, err = json.Marshal(entry.Details)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit details")
		}
	}

	query := `
		INSERT INTO audit_log (at, actor_id, action, details)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	err := r.q.QueryRow(ctx, query,
		entry.At,
		entry.ActorID,
		entry.Action,
		detailsJSON,
	).Scan(&entry.ID)
	if err != nil {
		return storageError(err, "failed to append audit entry")
	}
	return nil
}
