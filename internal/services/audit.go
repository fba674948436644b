package services

import (
	"context"
	"encoding/json"

	"flowline/internal/db/repositories"
	"flowline/pkg/models"
)

// AuditService wraps the append-only trail. Every state-changing operation in
// the snapshot, allocation, and transition paths records exactly one event
// through it, inside the same transaction as the change.
type AuditService struct {
	repos *repositories.Repositories
}

func NewAuditService(repos *repositories.Repositories) *AuditService {
	return &AuditService{repos: repos}
}

// Record appends one event on the given bundle. Payload values are
// marshalled to JSON; a nil payload is stored as NULL.
func (s *AuditService) Record(ctx context.Context, repos *repositories.Repositories, resourceType, resourceID, eventType string, actor *string, payload any) error {
	event := &models.AuditEvent{
		ResourceType: resourceType,
		ResourceID:   resourceID,
		EventType:    eventType,
		Actor:        actor,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		event.Payload = data
	}
	return repos.Audit.AppendEvent(ctx, event)
}

// Trail returns a resource's full history ordered by sequence ascending.
func (s *AuditService) Trail(ctx context.Context, resourceType, resourceID string) ([]*models.AuditEvent, error) {
	return s.repos.Audit.Trail(ctx, resourceType, resourceID)
}

// ActionLogs returns the operator actions recorded against a task.
func (s *AuditService) ActionLogs(ctx context.Context, taskID string) ([]*models.ActionLog, error) {
	return s.repos.Audit.ListActionLogs(ctx, taskID)
}
