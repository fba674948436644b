package models

import (
	"encoding/json"
	"time"
)

// Priority classifies a ticket's urgency. SLA durations are keyed by it.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Priorities lists all valid priorities from most to least urgent.
var Priorities = []Priority{PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Ticket mirrors an inbound helpdesk ticket. Tickets are retained even when
// no workflow matches them (status "unmatched") so they can be re-submitted
// after a workflow is published.
type Ticket struct {
	ID          string          `json:"id"`
	ExternalRef string          `json:"external_ref"`
	Subject     string          `json:"subject"`
	Category    string          `json:"category"`
	Subcategory string          `json:"subcategory"`
	Department  string          `json:"department"`
	Priority    Priority        `json:"priority"`
	Requester   string          `json:"requester"`
	Attachments json.RawMessage `json:"attachments,omitempty"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

const (
	TicketStatusOpen       = "open"
	TicketStatusInProgress = "in_progress"
	TicketStatusCompleted  = "completed"
	TicketStatusUnmatched  = "unmatched"
)

// WorkflowDefinition is the authored, mutable description of a workflow.
// It is editable while draft or published; activation freezes it into a
// WorkflowVersion and runtime state only ever references the frozen copy.
type WorkflowDefinition struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Category    string    `json:"category"`
	Subcategory string    `json:"subcategory"`
	Department  string    `json:"department"`
	SLA         SLATable  `json:"sla"`
	Status      string    `json:"status"`
	IsDefault   bool      `json:"is_default"`
	EndBehavior string    `json:"end_behavior"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const (
	WorkflowStatusDraft       = "draft"
	WorkflowStatusPublished   = "published"
	WorkflowStatusInitialized = "initialized"
	WorkflowStatusPaused      = "paused"
)

// Editable reports whether the definition may still be modified.
func (w *WorkflowDefinition) Editable() bool {
	return w.Status == WorkflowStatusDraft || w.Status == WorkflowStatusPublished
}

// SLATable holds the per-priority resolution budget in minutes. The strict
// ordering urgent < high < medium < low is enforced at definition save time.
type SLATable struct {
	UrgentMinutes int64 `json:"urgent_minutes" yaml:"urgent_minutes"`
	HighMinutes   int64 `json:"high_minutes" yaml:"high_minutes"`
	MediumMinutes int64 `json:"medium_minutes" yaml:"medium_minutes"`
	LowMinutes    int64 `json:"low_minutes" yaml:"low_minutes"`
}

// Minutes returns the SLA budget for a priority.
func (s SLATable) Minutes(p Priority) int64 {
	switch p {
	case PriorityUrgent:
		return s.UrgentMinutes
	case PriorityHigh:
		return s.HighMinutes
	case PriorityMedium:
		return s.MediumMinutes
	default:
		return s.LowMinutes
	}
}

// Duration returns the SLA budget for a priority as a time.Duration.
func (s SLATable) Duration(p Priority) time.Duration {
	return time.Duration(s.Minutes(p)) * time.Minute
}

// Ordered reports whether the table satisfies urgent < high < medium < low.
func (s SLATable) Ordered() bool {
	return s.UrgentMinutes > 0 &&
		s.UrgentMinutes < s.HighMinutes &&
		s.HighMinutes < s.MediumMinutes &&
		s.MediumMinutes < s.LowMinutes
}

// Step is one unit of work inside a workflow definition, owned by a role.
// Order defines the sequence; the step with the minimum order is the entry.
type Step struct {
	ID               int64     `json:"id"`
	WorkflowID       int64     `json:"workflow_id"`
	Name             string    `json:"name"`
	RoleID           string    `json:"role_id"`
	StepOrder        int64     `json:"step_order"`
	Weight           int64     `json:"weight"`
	EscalationRoleID *string   `json:"escalation_role_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Transition is a directed, action-labeled edge between two steps of the
// same workflow. Self-loops are rejected at save time.
type Transition struct {
	ID         int64     `json:"id"`
	WorkflowID int64     `json:"workflow_id"`
	FromStep   string    `json:"from_step"`
	ToStep     string    `json:"to_step"`
	ActionID   string    `json:"action_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// WorkflowVersion is an immutable, numbered snapshot of a workflow's full
// graph and metadata, created when the definition is activated. At most one
// version per workflow is active at any time.
type WorkflowVersion struct {
	ID         int64           `json:"id"`
	WorkflowID int64           `json:"workflow_id"`
	Version    int64           `json:"version"`
	Definition json.RawMessage `json:"definition"`
	IsActive   bool            `json:"is_active"`
	CreatedAt  time.Time       `json:"created_at"`
}

// RoundRobinPointer is the persisted rotation cursor for one role.
type RoundRobinPointer struct {
	RoleID    string    `json:"role_id"`
	Pointer   int64     `json:"pointer"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Task is the runtime execution of a workflow for one ticket. It references
// the frozen WorkflowVersion, never the live definition.
type Task struct {
	ID          string     `json:"id"`
	TicketID    string     `json:"ticket_id"`
	VersionID   int64      `json:"version_id"`
	Priority    Priority   `json:"priority"`
	SLADeadline time.Time  `json:"sla_deadline"`
	Status      string     `json:"status"`
	SLABreached bool       `json:"sla_breached"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

const (
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
)

// StepInstance is one user's pending-or-completed obligation at a step of a
// Task. HasActed only ever moves false to true. Assignee fields are nil when
// the role had no eligible members at assignment time.
type StepInstance struct {
	ID            int64      `json:"id"`
	TaskID        string     `json:"task_id"`
	StepName      string     `json:"step_name"`
	RoleID        string     `json:"role_id"`
	AssigneeID    *string    `json:"assignee_id,omitempty"`
	AssigneeEmail *string    `json:"assignee_email,omitempty"`
	HasActed      bool       `json:"has_acted"`
	AssignedAt    time.Time  `json:"assigned_at"`
	ActedAt       *time.Time `json:"acted_at,omitempty"`
}

// ActionLog is the append-only record of one operator action against a step
// instance. Rows are never updated or deleted.
type ActionLog struct {
	ID             int64     `json:"id"`
	TaskID         string    `json:"task_id"`
	StepInstanceID int64     `json:"step_instance_id"`
	UserID         string    `json:"user_id"`
	ActionID       string    `json:"action_id"`
	Comment        string    `json:"comment"`
	CreatedAt      time.Time `json:"created_at"`
}

// AuditEvent is the generic append-only trail entry written for every
// state-changing operation. Seq is monotonic per (resource_type, resource_id).
type AuditEvent struct {
	ID           int64           `json:"id"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	Seq          int64           `json:"seq"`
	EventType    string          `json:"event_type"`
	Actor        *string         `json:"actor,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

const (
	ResourceTypeTicket   = "ticket"
	ResourceTypeWorkflow = "workflow"
	ResourceTypeTask     = "task"
)

const (
	EventTypeWorkflowCreated   = "workflow_created"
	EventTypeWorkflowUpdated   = "workflow_updated"
	EventTypeWorkflowPublished = "workflow_published"
	EventTypeWorkflowPaused    = "workflow_paused"
	EventTypeVersionCreated    = "version_created"
	EventTypeTicketReceived    = "ticket_received"
	EventTypeTicketUnmatched   = "ticket_unmatched"
	EventTypeTaskCreated       = "task_created"
	EventTypeStepAssigned      = "step_assigned"
	EventTypeStepUnassigned    = "step_unassigned"
	EventTypeActionApplied     = "action_applied"
	EventTypeTaskCompleted     = "task_completed"
	EventTypeSLABreached       = "sla_breached"
)
