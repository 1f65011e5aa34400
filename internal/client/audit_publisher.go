package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/pesio-ai/be-ops-indicators/internal/logger"
	"github.com/pesio-ai/be-ops-indicators/internal/repository"
)

// publisher is the subset of *nats.Conn the audit publisher needs.
type publisher interface {
	Publish(subj string, data []byte) error
}

// AuditPublisher publishes committed audit entries to NATS.
//
// Subject convention: <prefix>.<action>, e.g. indicators.audit.drafts.approve
//
// All publish operations are non-fatal: errors are logged but never returned,
// so a broker outage never fails a workflow operation.
type AuditPublisher struct {
	conn   publisher
	prefix string
	log    *logger.Logger
}

// AuditEvent is the JSON schema published to NATS.
type AuditEvent struct {
	ID      int64          `json:"id"`
	At      time.Time      `json:"at"`
	ActorID *int64         `json:"actor_id,omitempty"`
	Action  string         `json:"action"`
	Details map[string]any `json:"details,omitempty"`
}

// NewAuditPublisher creates a publisher backed by the given connection.
func NewAuditPublisher(conn publisher, prefix string, log *logger.Logger) *AuditPublisher {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "indicators.audit"
	}
	return &AuditPublisher{conn: conn, prefix: prefix, log: log}
}

// ConnectNATS dials the broker with reconnect handling logged through log.
func ConnectNATS(url, name string, log *logger.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

// Subject returns the subject an action is published on.
func (p *AuditPublisher) Subject(action string) string {
	return p.prefix + "." + action
}

// Publish implements service.AuditSink.
func (p *AuditPublisher) Publish(_ context.Context, e repository.AuditEntry) {
	if p == nil || p.conn == nil {
		return
	}

	data, err := json.Marshal(AuditEvent{
		ID:      e.ID,
		At:      e.At,
		ActorID: e.ActorID,
		Action:  e.Action,
		Details: e.Details,
	})
	if err != nil {
		p.log.Warn().Err(err).Str("action", e.Action).Msg("audit: failed to marshal event")
		return
	}

	subject := p.Subject(e.Action)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Int64("audit_id", e.ID).
			Msg("audit: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Int64("audit_id", e.ID).
		Msg("audit: event published")
}
