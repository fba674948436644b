package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"flowline/internal/db/repositories"
	"flowline/internal/directory"
	"flowline/internal/logging"
	"flowline/internal/notifications"
	"flowline/internal/workflows"
	"flowline/pkg/models"
)

// ErrInvalidPriority rejects ingestion events with an unknown priority.
var ErrInvalidPriority = errors.New("invalid ticket priority")

// TicketService runs the ingestion path: resolve an inbound ticket to the
// active version of a workflow, create the task, and assign the entry step.
// It serves both the HTTP endpoint and the broker consumer.
type TicketService struct {
	repos     *repositories.Repositories
	matcher   *workflows.Matcher
	allocator *Allocator
	audit     *AuditService
	notifier  notifications.Notifier
}

func NewTicketService(repos *repositories.Repositories, matcher *workflows.Matcher, allocator *Allocator, audit *AuditService, notifier notifications.Notifier) *TicketService {
	return &TicketService{
		repos:     repos,
		matcher:   matcher,
		allocator: allocator,
		audit:     audit,
		notifier:  notifier,
	}
}

// IngestTicketRequest mirrors the external ticket-created event.
type IngestTicketRequest struct {
	TicketID    string          `json:"ticket_id"`
	Subject     string          `json:"subject"`
	Category    string          `json:"category"`
	Subcategory string          `json:"subcategory"`
	Department  string          `json:"department"`
	Priority    models.Priority `json:"priority"`
	Requester   string          `json:"requester"`
	Attachments json.RawMessage `json:"attachments,omitempty"`
}

// IngestResult reports what ingestion did. Matched=false is a valid outcome:
// the ticket is retained as unmatched and an admin alert raised.
type IngestResult struct {
	Ticket   *models.Ticket    `json:"ticket"`
	Task     *models.Task      `json:"task,omitempty"`
	Matched  bool              `json:"matched"`
	StepName string            `json:"step_name,omitempty"`
	Assignee *directory.Member `json:"assignee,omitempty"`
}

func (s *TicketService) Ingest(ctx context.Context, req IngestTicketRequest) (*IngestResult, error) {
	if !req.Priority.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPriority, req.Priority)
	}

	ticketID := req.TicketID
	externalRef := req.TicketID
	if ticketID == "" {
		ticketID = uuid.NewString()
		externalRef = ""
	}

	if _, err := s.repos.Tickets.GetByID(ctx, ticketID); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrTicketExists, ticketID)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	ticket := &models.Ticket{
		ID:          ticketID,
		ExternalRef: externalRef,
		Subject:     req.Subject,
		Category:    req.Category,
		Subcategory: req.Subcategory,
		Department:  req.Department,
		Priority:    req.Priority,
		Requester:   req.Requester,
		Attachments: req.Attachments,
	}

	version, _, err := s.matcher.Match(ctx, workflows.TicketAttributes{
		Category:    req.Category,
		Subcategory: req.Subcategory,
		Department:  req.Department,
		Priority:    req.Priority,
	})
	if errors.Is(err, workflows.ErrWorkflowNotFound) {
		// Non-fatal: keep the ticket for later re-submission and tell an
		// administrator a workflow is missing.
		if err := s.storeUnmatched(ctx, ticket); err != nil {
			return nil, err
		}
		s.alertAsync(notifications.AdminAlert{
			Code:         notifications.AlertWorkflowNotFound,
			Message:      fmt.Sprintf("No published workflow matches ticket %s (category=%s)", ticket.ID, ticket.Category),
			ResourceType: models.ResourceTypeTicket,
			ResourceID:   ticket.ID,
		})
		return &IngestResult{Ticket: ticket, Matched: false}, nil
	}
	if err != nil {
		return nil, err
	}

	return s.createTask(ctx, ticket, version, false)
}

// IngestTicketEvent adapts broker messages onto Ingest, absorbing structural
// failures so the consumer only redelivers on infrastructure errors.
func (s *TicketService) IngestTicketEvent(ctx context.Context, event notifications.TicketEvent) error {
	_, err := s.Ingest(ctx, IngestTicketRequest{
		TicketID:    event.TicketID,
		Subject:     event.Subject,
		Category:    event.Category,
		Subcategory: event.Subcategory,
		Department:  event.Department,
		Priority:    models.Priority(event.Priority),
		Requester:   event.Requester,
		Attachments: event.Attachments,
	})
	if errors.Is(err, ErrInvalidPriority) || errors.Is(err, ErrTicketExists) {
		logging.Error("Dropping ticket event %s: %v", event.TicketID, err)
		return nil
	}
	return err
}

// ResubmitUnmatched retries matching for tickets that arrived before a
// suitable workflow was published. Matching is never retried automatically;
// this runs only on explicit request.
func (s *TicketService) ResubmitUnmatched(ctx context.Context, limit int64) ([]*IngestResult, error) {
	if limit <= 0 {
		limit = 100
	}
	tickets, err := s.repos.Tickets.ListByStatus(ctx, models.TicketStatusUnmatched, limit)
	if err != nil {
		return nil, err
	}

	var results []*IngestResult
	for _, ticket := range tickets {
		version, _, err := s.matcher.Match(ctx, workflows.TicketAttributes{
			Category:    ticket.Category,
			Subcategory: ticket.Subcategory,
			Department:  ticket.Department,
			Priority:    ticket.Priority,
		})
		if errors.Is(err, workflows.ErrWorkflowNotFound) {
			continue
		}
		if err != nil {
			return results, err
		}

		result, err := s.createTask(ctx, ticket, version, true)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *TicketService) Get(ctx context.Context, id string) (*models.Ticket, error) {
	return s.repos.Tickets.GetByID(ctx, id)
}

func (s *TicketService) storeUnmatched(ctx context.Context, ticket *models.Ticket) error {
	ticket.Status = models.TicketStatusUnmatched
	return s.repos.InWriteTx(ctx, func(txr *repositories.Repositories) error {
		if err := txr.Tickets.Create(ctx, ticket); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, txr, models.ResourceTypeTicket, ticket.ID, models.EventTypeTicketReceived, nil, nil); err != nil {
			return err
		}
		return s.audit.Record(ctx, txr, models.ResourceTypeTicket, ticket.ID, models.EventTypeTicketUnmatched, nil,
			map[string]any{"category": ticket.Category, "department": ticket.Department})
	})
}

// createTask binds a task to the frozen version, computes the SLA deadline
// from the version's table, and assigns the entry step. ticketExists marks
// the re-submission path where the ticket row is already stored.
func (s *TicketService) createTask(ctx context.Context, ticket *models.Ticket, version *models.WorkflowVersion, ticketExists bool) (*IngestResult, error) {
	def, err := workflows.ParseVersion(version)
	if err != nil {
		return nil, err
	}
	entry := def.EntryStep()

	// Directory lookup happens before the write transaction so a slow or
	// failing collaborator never holds the database write lock.
	members, membersErr := s.allocator.Members(ctx, entry.RoleID)
	if membersErr != nil && !errors.Is(membersErr, ErrNoUsersForRole) {
		return nil, membersErr
	}

	task := &models.Task{
		ID:        uuid.NewString(),
		TicketID:  ticket.ID,
		VersionID: version.ID,
		Priority:  ticket.Priority,
		Status:    models.TaskStatusPending,
	}

	instance := &models.StepInstance{
		TaskID:   task.ID,
		StepName: entry.Name,
		RoleID:   entry.RoleID,
	}

	var assignee *directory.Member
	err = s.repos.InWriteTx(ctx, func(txr *repositories.Repositories) error {
		if ticketExists {
			if err := txr.Tickets.UpdateStatus(ctx, ticket.ID, models.TicketStatusInProgress); err != nil {
				return err
			}
			ticket.Status = models.TicketStatusInProgress
		} else {
			ticket.Status = models.TicketStatusInProgress
			if err := txr.Tickets.Create(ctx, ticket); err != nil {
				return err
			}
			if err := s.audit.Record(ctx, txr, models.ResourceTypeTicket, ticket.ID, models.EventTypeTicketReceived, nil, nil); err != nil {
				return err
			}
		}

		// SLA deadline is anchored on ticket creation time, priced by the
		// frozen version's table.
		task.SLADeadline = ticket.CreatedAt.Add(def.SLA.Duration(ticket.Priority))
		if err := txr.Tasks.Create(ctx, task); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, txr, models.ResourceTypeTask, task.ID, models.EventTypeTaskCreated, nil,
			map[string]any{"ticket_id": ticket.ID, "version": version.Version, "sla_deadline": task.SLADeadline}); err != nil {
			return err
		}

		if membersErr == nil {
			member, err := s.allocator.Pick(ctx, txr, entry.RoleID, members)
			if err != nil {
				return err
			}
			assignee = &member
			instance.AssigneeID = &member.ID
			instance.AssigneeEmail = &member.Email
		}

		if err := txr.Tasks.CreateStepInstance(ctx, instance); err != nil {
			return err
		}

		eventType := models.EventTypeStepAssigned
		payload := map[string]any{"step": entry.Name, "role": entry.RoleID}
		if assignee != nil {
			payload["assignee"] = assignee.ID
		} else {
			eventType = models.EventTypeStepUnassigned
		}
		return s.audit.Record(ctx, txr, models.ResourceTypeTask, task.ID, eventType, nil, payload)
	})
	if err != nil {
		return nil, err
	}

	s.notifyAssignmentAsync(task, ticket, instance, assignee)
	if membersErr != nil {
		s.alertAsync(notifications.AdminAlert{
			Code:         notifications.AlertNoUsersForRole,
			Message:      fmt.Sprintf("Role %s has no members; step %q of task %s is unassigned", entry.RoleID, entry.Name, task.ID),
			ResourceType: models.ResourceTypeTask,
			ResourceID:   task.ID,
			RoleID:       entry.RoleID,
		})
	}

	return &IngestResult{
		Ticket:   ticket,
		Task:     task,
		Matched:  true,
		StepName: entry.Name,
		Assignee: assignee,
	}, nil
}

// notifyAssignmentAsync fires the assignment notification without awaiting
// delivery; the transaction already committed and a publish failure must not
// unwind it.
func (s *TicketService) notifyAssignmentAsync(task *models.Task, ticket *models.Ticket, instance *models.StepInstance, assignee *directory.Member) {
	if assignee == nil {
		return
	}
	notification := notifications.AssignmentNotification{
		UserID:        assignee.ID,
		UserEmail:     assignee.Email,
		TaskID:        task.ID,
		TicketSubject: ticket.Subject,
		StepName:      instance.StepName,
		AssignedAt:    time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notifier.PublishAssignment(ctx, notification); err != nil {
			logging.Error("Assignment notification for task %s failed: %v", task.ID, err)
		}
	}()
}

func (s *TicketService) alertAsync(alert notifications.AdminAlert) {
	alert.RaisedAt = time.Now().UTC()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notifier.PublishAdminAlert(ctx, alert); err != nil {
			logging.Error("Admin alert %s failed: %v", alert.Code, err)
		}
	}()
}
