package repositories

import (
	"context"
	"time"

	"flowline/pkg/models"
)

// AuditRepo is the append-only store behind the audit trail. Rows are never
// updated or deleted.
type AuditRepo struct {
	q DBTX
}

// AppendEvent writes one audit event, assigning the next per-resource
// sequence number. Call it from the same transaction as the state change it
// records so the seq assignment cannot interleave.
func (r *AuditRepo) AppendEvent(ctx context.Context, event *models.AuditEvent) error {
	event.CreatedAt = time.Now().UTC()

	var payload any
	if len(event.Payload) > 0 {
		payload = string(event.Payload)
	}

	return r.q.QueryRowContext(ctx, `
		INSERT INTO audit_events (resource_type, resource_id, seq, event_type, actor, payload, created_at)
		VALUES (
			?, ?,
			COALESCE((SELECT MAX(seq) FROM audit_events WHERE resource_type = ? AND resource_id = ?), 0) + 1,
			?, ?, ?, ?
		)
		RETURNING id, seq
	`,
		event.ResourceType,
		event.ResourceID,
		event.ResourceType,
		event.ResourceID,
		event.EventType,
		nullableString(event.Actor),
		payload,
		event.CreatedAt,
	).Scan(&event.ID, &event.Seq)
}

// Trail returns the full event history for a resource ordered by sequence
// ascending.
func (r *AuditRepo) Trail(ctx context.Context, resourceType, resourceID string) ([]*models.AuditEvent, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, resource_type, resource_id, seq, event_type, actor, payload, created_at
		FROM audit_events
		WHERE resource_type = ? AND resource_id = ?
		ORDER BY seq ASC
	`, resourceType, resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.AuditEvent
	for rows.Next() {
		event, err := scanAuditEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (r *AuditRepo) AppendActionLog(ctx context.Context, entry *models.ActionLog) error {
	entry.CreatedAt = time.Now().UTC()
	return r.q.QueryRowContext(ctx, `
		INSERT INTO action_logs (task_id, step_instance_id, user_id, action_id, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`,
		entry.TaskID,
		entry.StepInstanceID,
		entry.UserID,
		entry.ActionID,
		entry.Comment,
		entry.CreatedAt,
	).Scan(&entry.ID)
}

func (r *AuditRepo) ListActionLogs(ctx context.Context, taskID string) ([]*models.ActionLog, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, task_id, step_instance_id, user_id, action_id, comment, created_at
		FROM action_logs
		WHERE task_id = ?
		ORDER BY created_at ASC, id ASC
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.ActionLog
	for rows.Next() {
		var entry models.ActionLog
		if err := rows.Scan(&entry.ID, &entry.TaskID, &entry.StepInstanceID,
			&entry.UserID, &entry.ActionID, &entry.Comment, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

func scanAuditEvent(row rowScanner) (*models.AuditEvent, error) {
	var event models.AuditEvent
	var actor, payload *string
	err := row.Scan(
		&event.ID,
		&event.ResourceType,
		&event.ResourceID,
		&event.Seq,
		&event.EventType,
		&actor,
		&payload,
		&event.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	event.Actor = actor
	if payload != nil {
		event.Payload = []byte(*payload)
	}
	return &event, nil
}
