package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "carepilot/pkg/domain"
	audit "carepilot/pkg/platform/audit"
	txcontext "carepilot/pkg/platform/tx"
)

// Store implements audit.Store on PostgreSQL using the transactional outbox
// pattern: every audit record and PHI access row is written together with an
// outbox entry in the caller's transaction. The outbox relay publishes committed
// entries to Kafka, so rolled-back mutations never reach the export topic.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// outboxPayload is the JSON structure published to Kafka.
type outboxPayload struct {
	ID         string         `json:"id"`
	Kind       string         `json:"kind"`
	Category   string         `json:"category"`
	Timestamp  string         `json:"timestamp"`
	ActorID    string         `json:"actor_id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	ClientID   string         `json:"client_id,omitempty"`
	Success    bool           `json:"success"`
	Fields     []string       `json:"accessed_fields,omitempty"`
	NewValue   map[string]any `json:"new_value,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
}

// Append writes an audit record and its outbox entry.
func (s *Store) Append(ctx context.Context, record audit.Record) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	oldValue, err := marshalValue(record.OldValue)
	if err != nil {
		return fmt.Errorf("marshal old value: %w", err)
	}
	newValue, err := marshalValue(record.NewValue)
	if err != nil {
		return fmt.Errorf("marshal new value: %w", err)
	}

	exec := txcontext.Execer(ctx, s.db)
	query := `
		INSERT INTO audit_records (
			id, category, occurred_at, actor_id, action, entity_type, entity_id,
			success, justification, old_value, new_value, error_kind, message,
			request_id, client_ip, device
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err = exec.ExecContext(ctx, query,
		record.ID,
		string(record.Category),
		record.Timestamp,
		uuid.UUID(record.ActorID),
		string(record.Action),
		string(record.EntityType),
		record.EntityID,
		record.Success,
		record.Justification,
		oldValue,
		newValue,
		record.ErrorKind,
		record.Message,
		record.RequestID,
		record.ClientIP,
		record.Device,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}

	return s.enqueue(ctx, exec, "audit_record", record.ActorID, outboxPayload{
		ID:         record.ID.String(),
		Kind:       "audit_record",
		Category:   string(record.Category),
		Timestamp:  record.Timestamp.UTC().Format(time.RFC3339Nano),
		ActorID:    record.ActorID.String(),
		Action:     string(record.Action),
		EntityType: string(record.EntityType),
		EntityID:   record.EntityID,
		Success:    record.Success,
		NewValue:   record.NewValue,
		RequestID:  record.RequestID,
	})
}

// AppendPHIAccess writes a PHI access row and its outbox entry.
func (s *Store) AppendPHIAccess(ctx context.Context, access audit.PHIAccess) error {
	if access.ID == uuid.Nil {
		access.ID = uuid.New()
	}
	exec := txcontext.Execer(ctx, s.db)
	query := `
		INSERT INTO phi_access_log (
			id, occurred_at, actor_id, access_type, entity_type, client_id,
			justification, accessed_fields, request_id, client_ip, device
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := exec.ExecContext(ctx, query,
		access.ID,
		access.Timestamp,
		uuid.UUID(access.ActorID),
		string(access.AccessType),
		string(access.EntityType),
		uuid.UUID(access.ClientID),
		access.Justification,
		pq.Array(access.AccessedFields),
		access.RequestID,
		access.ClientIP,
		access.Device,
	)
	if err != nil {
		return fmt.Errorf("insert phi access: %w", err)
	}

	return s.enqueue(ctx, exec, "phi_access", access.ActorID, outboxPayload{
		ID:         access.ID.String(),
		Kind:       "phi_access",
		Category:   string(audit.CategoryCompliance),
		Timestamp:  access.Timestamp.UTC().Format(time.RFC3339Nano),
		ActorID:    access.ActorID.String(),
		Action:     string(access.AccessType),
		EntityType: string(access.EntityType),
		ClientID:   access.ClientID.String(),
		Success:    true,
		Fields:     access.AccessedFields,
		RequestID:  access.RequestID,
	})
}

// AppendSecurity writes a security event. Security events are not exported.
func (s *Store) AppendSecurity(ctx context.Context, event audit.SecurityEvent) error {
	query := `
		INSERT INTO audit_security (
			id, occurred_at, subject, action, reason, ip, request_id, actor_id, severity
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.New(),
		event.Timestamp,
		event.Subject,
		string(event.Action),
		event.Reason,
		event.IP,
		event.RequestID,
		event.ActorID,
		string(event.Severity),
	)
	if err != nil {
		return fmt.Errorf("insert security event: %w", err)
	}
	return nil
}

// ListByActor returns an actor's audit records, newest first.
func (s *Store) ListByActor(ctx context.Context, actorID id.UserID) ([]audit.Record, error) {
	query := `
		SELECT id, category, occurred_at, actor_id, action, entity_type, entity_id,
			   success, justification, error_kind, message, request_id, client_ip, device
		FROM audit_records
		WHERE actor_id = $1
		ORDER BY occurred_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(actorID))
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var records []audit.Record
	for rows.Next() {
		var (
			r                           audit.Record
			category, action, entityTyp string
			actor                       uuid.UUID
		)
		if err := rows.Scan(
			&r.ID, &category, &r.Timestamp, &actor, &action, &entityTyp, &r.EntityID,
			&r.Success, &r.Justification, &r.ErrorKind, &r.Message, &r.RequestID, &r.ClientIP, &r.Device,
		); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		r.Category = audit.Category(category)
		r.Action = audit.Action(action)
		r.EntityType = audit.EntityType(entityTyp)
		r.ActorID = id.UserID(actor)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}

func (s *Store) enqueue(ctx context.Context, exec txcontext.Executor, eventType string, actor id.UserID, payload outboxPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = exec.ExecContext(ctx, query,
		uuid.New(),
		"actor",
		actor.String(),
		eventType,
		body,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

func marshalValue(v map[string]any) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}
