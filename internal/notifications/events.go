package notifications

import (
	"context"
	"time"
)

// AssignmentNotification is emitted fire-and-forget whenever a step instance
// is created with an assignee. Downstream delivery (email, chat) is an
// external concern.
type AssignmentNotification struct {
	UserID        string    `json:"user_id"`
	UserEmail     string    `json:"user_email"`
	TaskID        string    `json:"task_id"`
	TicketSubject string    `json:"ticket_subject"`
	StepName      string    `json:"step_name"`
	AssignedAt    time.Time `json:"assigned_at"`
}

// AdminAlert is raised for conditions requiring operator attention: no
// matching workflow, an empty role, an SLA breach.
type AdminAlert struct {
	Code           string    `json:"code"`
	Message        string    `json:"message"`
	ResourceType   string    `json:"resource_type,omitempty"`
	ResourceID     string    `json:"resource_id,omitempty"`
	RoleID         string    `json:"role_id,omitempty"`
	EscalationRole string    `json:"escalation_role,omitempty"`
	RaisedAt       time.Time `json:"raised_at"`
}

const (
	AlertWorkflowNotFound = "workflow_not_found"
	AlertNoUsersForRole   = "no_users_for_role"
	AlertSLABreached      = "sla_breached"
)

// Notifier publishes flowline events. Publishes are decoupled side effects:
// callers never roll back state on a publish failure.
type Notifier interface {
	PublishAssignment(ctx context.Context, notification AssignmentNotification) error
	PublishAdminAlert(ctx context.Context, alert AdminAlert) error
	PublishTaskEvent(ctx context.Context, taskID string, event any) error
	Close()
}

// Noop satisfies Notifier when eventing is disabled.
type Noop struct{}

func (Noop) PublishAssignment(context.Context, AssignmentNotification) error { return nil }
func (Noop) PublishAdminAlert(context.Context, AdminAlert) error             { return nil }
func (Noop) PublishTaskEvent(context.Context, string, any) error             { return nil }
func (Noop) Close()                                                          {}
