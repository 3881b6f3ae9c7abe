package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/vertyll/fastprod-auth/internal/audit"
	"github.com/vertyll/fastprod-auth/internal/ids"
)

// AuditSink appends events to the audit_log table. Rows are insert-only;
// retention and export run outside the service.
type AuditSink struct {
	db  *sql.DB
	now func() time.Time
}

var _ audit.Sink = (*AuditSink)(nil)

// AuditSink returns the database-backed audit sink.
func (s *Store) AuditSink() *AuditSink {
	return &AuditSink{db: s.db, now: time.Now}
}

// Record inserts one event row.
func (s *AuditSink) Record(ctx context.Context, event audit.Event) error {
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now().UTC()
	}
	var metadata any
	if len(event.Metadata) > 0 {
		raw, err := json.Marshal(event.Metadata)
		if err != nil {
			return err
		}
		metadata = raw
	}
	var requestID any
	if event.RequestID != "" {
		requestID = event.RequestID
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_log (id, occurred_at, actor, kind, outcome, request_id, metadata)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, ids.New(), occurredAt, event.Actor, event.Kind, event.Outcome, requestID, metadata)
	return err
}
