package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"flowline/internal/db/repositories"
	"flowline/internal/directory"
	"flowline/internal/logging"
	"flowline/internal/notifications"
	"flowline/internal/workflows"
	"flowline/pkg/models"
)

// errDuplicateSubmission aborts the write transaction when another submission
// already flipped the step instance; mapped to a NoOp result, never surfaced.
var errDuplicateSubmission = errors.New("step instance already acted on")

// TaskService is the transition processor: it validates operator actions
// against a task's frozen version graph, applies them, and drives the task
// to completion.
type TaskService struct {
	repos     *repositories.Repositories
	allocator *Allocator
	audit     *AuditService
	notifier  notifications.Notifier
	hooks     *HookRegistry
}

func NewTaskService(repos *repositories.Repositories, allocator *Allocator, audit *AuditService, notifier notifications.Notifier, hooks *HookRegistry) *TaskService {
	return &TaskService{
		repos:     repos,
		allocator: allocator,
		audit:     audit,
		notifier:  notifier,
		hooks:     hooks,
	}
}

// ApplyRequest is one operator action against a task.
type ApplyRequest struct {
	TaskID   string
	UserID   string
	ActionID string
	Comment  string
}

type ApplyOutcome string

const (
	// OutcomeTransitioned means the task moved to the transition's target
	// step and a new step instance was assigned.
	OutcomeTransitioned ApplyOutcome = "transitioned"
	// OutcomeCompleted means the action hit an end of branch and the task
	// is done.
	OutcomeCompleted ApplyOutcome = "completed"
	// OutcomeNoOp means the submission was a duplicate of one already
	// processed; nothing was written.
	OutcomeNoOp ApplyOutcome = "noop"
)

type ApplyResult struct {
	Outcome  ApplyOutcome      `json:"outcome"`
	Task     *models.Task      `json:"task"`
	NextStep string            `json:"next_step,omitempty"`
	Assignee *directory.Member `json:"assignee,omitempty"`
}

// Apply validates and applies one action-driven transition.
//
// The read phase (task, caller's step instance, frozen graph, directory
// members for the target role) runs outside the write transaction so slow
// collaborators never hold the write lock. The write phase linearizes on the
// step instance via a conditional has_acted flip: of two concurrent
// submissions against the same instance exactly one commits, the other
// observes a no-op.
func (s *TaskService) Apply(ctx context.Context, req ApplyRequest) (*ApplyResult, error) {
	task, err := s.repos.Tasks.GetByID(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}

	instance, err := s.repos.Tasks.ActiveInstanceForUser(ctx, req.TaskID, req.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		// A caller who already acted is replaying a processed submission;
		// a caller with no instance at all was never authorized.
		acted, actedErr := s.repos.Tasks.UserHasActed(ctx, req.TaskID, req.UserID)
		if actedErr != nil {
			return nil, actedErr
		}
		if acted {
			return &ApplyResult{Outcome: OutcomeNoOp, Task: task}, nil
		}
		return nil, fmt.Errorf("%w: user %s on task %s", ErrNotAuthorizedForStep, req.UserID, req.TaskID)
	}
	if err != nil {
		return nil, err
	}

	if task.Status == models.TaskStatusCompleted {
		return nil, fmt.Errorf("%w: %s", ErrTaskCompleted, task.ID)
	}

	version, err := s.repos.Versions.GetByID(ctx, task.VersionID)
	if err != nil {
		return nil, err
	}
	def, err := workflows.ParseVersion(version)
	if err != nil {
		return nil, err
	}

	transition := def.FindTransition(instance.StepName, req.ActionID)
	if transition == nil && len(def.TransitionsFrom(instance.StepName)) > 0 {
		// The step has real outgoing actions and this is not one of them.
		return nil, fmt.Errorf("%w: %q at step %q", ErrInvalidTransitionAction, req.ActionID, instance.StepName)
	}

	if transition == nil {
		return s.complete(ctx, task, instance, def, req)
	}
	return s.transition(ctx, task, instance, def, transition, req)
}

// complete handles the end-of-branch case: no transition is wired for the
// step, so the action finishes the task and synchronizes the ticket.
func (s *TaskService) complete(ctx context.Context, task *models.Task, instance *models.StepInstance, def *workflows.VersionDefinition, req ApplyRequest) (*ApplyResult, error) {
	nextStatus, err := advanceTaskStatus(task.Status, triggerComplete)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = s.repos.InWriteTx(ctx, func(txr *repositories.Repositories) error {
		if err := s.actOnce(ctx, txr, instance, req); err != nil {
			return err
		}
		if err := txr.Tasks.UpdateStatus(ctx, task.ID, nextStatus, &now); err != nil {
			return err
		}
		if err := txr.Tickets.UpdateStatus(ctx, task.TicketID, models.TicketStatusCompleted); err != nil {
			return err
		}
		return s.audit.Record(ctx, txr, models.ResourceTypeTask, task.ID, models.EventTypeTaskCompleted, &req.UserID,
			map[string]any{"final_step": instance.StepName, "action": req.ActionID})
	})
	if errors.Is(err, errDuplicateSubmission) {
		return &ApplyResult{Outcome: OutcomeNoOp, Task: task}, nil
	}
	if err != nil {
		return nil, err
	}

	task.Status = nextStatus
	task.CompletedAt = &now
	logging.Info("Task %s completed at step %q by %s", task.ID, instance.StepName, req.UserID)

	s.runCompletionHooks(task, def)

	return &ApplyResult{Outcome: OutcomeCompleted, Task: task}, nil
}

// transition handles the wired-edge case: act, log, and assign the target
// step to the next member of its role's rotation.
func (s *TaskService) transition(ctx context.Context, task *models.Task, instance *models.StepInstance, def *workflows.VersionDefinition, tr *workflows.FrozenTransition, req ApplyRequest) (*ApplyResult, error) {
	toStep := def.StepByName(tr.ToStep)
	if toStep == nil {
		return nil, fmt.Errorf("version graph for task %s is missing step %q", task.ID, tr.ToStep)
	}

	nextStatus := task.Status
	if task.Status == models.TaskStatusPending {
		var err error
		nextStatus, err = advanceTaskStatus(task.Status, triggerStart)
		if err != nil {
			return nil, err
		}
	}

	members, membersErr := s.allocator.Members(ctx, toStep.RoleID)
	if membersErr != nil && !errors.Is(membersErr, ErrNoUsersForRole) {
		return nil, membersErr
	}

	next := &models.StepInstance{
		TaskID:   task.ID,
		StepName: toStep.Name,
		RoleID:   toStep.RoleID,
	}

	var assignee *directory.Member
	err := s.repos.InWriteTx(ctx, func(txr *repositories.Repositories) error {
		if err := s.actOnce(ctx, txr, instance, req); err != nil {
			return err
		}

		if membersErr == nil {
			member, err := s.allocator.Pick(ctx, txr, toStep.RoleID, members)
			if err != nil {
				return err
			}
			assignee = &member
			next.AssigneeID = &member.ID
			next.AssigneeEmail = &member.Email
		}

		if err := txr.Tasks.CreateStepInstance(ctx, next); err != nil {
			return err
		}

		if nextStatus != task.Status {
			if err := txr.Tasks.UpdateStatus(ctx, task.ID, nextStatus, nil); err != nil {
				return err
			}
		}

		eventType := models.EventTypeStepAssigned
		payload := map[string]any{"from": instance.StepName, "to": toStep.Name, "action": req.ActionID, "role": toStep.RoleID}
		if assignee != nil {
			payload["assignee"] = assignee.ID
		} else {
			eventType = models.EventTypeStepUnassigned
		}
		return s.audit.Record(ctx, txr, models.ResourceTypeTask, task.ID, eventType, &req.UserID, payload)
	})
	if errors.Is(err, errDuplicateSubmission) {
		return &ApplyResult{Outcome: OutcomeNoOp, Task: task}, nil
	}
	if err != nil {
		return nil, err
	}

	task.Status = nextStatus

	if assignee != nil {
		s.notifyAssignmentAsync(task, next, assignee)
	} else {
		s.alertAsync(notifications.AdminAlert{
			Code:         notifications.AlertNoUsersForRole,
			Message:      fmt.Sprintf("Role %s has no members; step %q of task %s is unassigned", toStep.RoleID, toStep.Name, task.ID),
			ResourceType: models.ResourceTypeTask,
			ResourceID:   task.ID,
			RoleID:       toStep.RoleID,
		})
	}

	return &ApplyResult{
		Outcome:  OutcomeTransitioned,
		Task:     task,
		NextStep: toStep.Name,
		Assignee: assignee,
	}, nil
}

// actOnce flips the instance's has_acted exactly once and appends the action
// log. Losing the conditional update means another submission got there
// first.
func (s *TaskService) actOnce(ctx context.Context, txr *repositories.Repositories, instance *models.StepInstance, req ApplyRequest) error {
	acted, err := txr.Tasks.MarkActed(ctx, instance.ID)
	if err != nil {
		return err
	}
	if !acted {
		return errDuplicateSubmission
	}

	entry := &models.ActionLog{
		TaskID:         req.TaskID,
		StepInstanceID: instance.ID,
		UserID:         req.UserID,
		ActionID:       req.ActionID,
		Comment:        req.Comment,
	}
	if err := txr.Audit.AppendActionLog(ctx, entry); err != nil {
		return err
	}
	return s.audit.Record(ctx, txr, models.ResourceTypeTask, req.TaskID, models.EventTypeActionApplied, &req.UserID,
		map[string]any{"step": instance.StepName, "action": req.ActionID})
}

func (s *TaskService) runCompletionHooks(task *models.Task, def *workflows.VersionDefinition) {
	if s.hooks == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		ticket, err := s.repos.Tickets.GetByID(ctx, task.TicketID)
		if err != nil {
			logging.Error("Completion hooks for task %s could not load ticket: %v", task.ID, err)
			return
		}
		s.hooks.Run(ctx, def.EndBehavior, CompletionContext{Task: task, Ticket: ticket, Definition: def})
	}()
}

func (s *TaskService) notifyAssignmentAsync(task *models.Task, instance *models.StepInstance, assignee *directory.Member) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		ticket, err := s.repos.Tickets.GetByID(ctx, task.TicketID)
		subject := ""
		if err == nil {
			subject = ticket.Subject
		}
		notification := notifications.AssignmentNotification{
			UserID:        assignee.ID,
			UserEmail:     assignee.Email,
			TaskID:        task.ID,
			TicketSubject: subject,
			StepName:      instance.StepName,
			AssignedAt:    time.Now().UTC(),
		}
		if err := s.notifier.PublishAssignment(ctx, notification); err != nil {
			logging.Error("Assignment notification for task %s failed: %v", task.ID, err)
		}
	}()
}

func (s *TaskService) alertAsync(alert notifications.AdminAlert) {
	alert.RaisedAt = time.Now().UTC()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notifier.PublishAdminAlert(ctx, alert); err != nil {
			logging.Error("Admin alert %s failed: %v", alert.Code, err)
		}
	}()
}

// CurrentStep is one live assignment in the task status read model.
type CurrentStep struct {
	StepName      string     `json:"step_name"`
	RoleID        string     `json:"role_id"`
	AssigneeID    *string    `json:"assignee_id,omitempty"`
	AssigneeEmail *string    `json:"assignee_email,omitempty"`
	AssignedAt    time.Time  `json:"assigned_at"`
	ActedAt       *time.Time `json:"acted_at,omitempty"`
}

// TaskStatusView is the read model consumed by UI and reporting layers.
type TaskStatusView struct {
	Task         *models.Task  `json:"task"`
	WorkflowName string        `json:"workflow_name"`
	Version      int64         `json:"version"`
	CurrentSteps []CurrentStep `json:"current_steps"`
	Completed    bool          `json:"completed"`
}

// Status assembles the read model: current step(s), assignees, SLA deadline,
// completion flag.
func (s *TaskService) Status(ctx context.Context, taskID string) (*TaskStatusView, error) {
	task, err := s.repos.Tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	version, err := s.repos.Versions.GetByID(ctx, task.VersionID)
	if err != nil {
		return nil, err
	}
	def, err := workflows.ParseVersion(version)
	if err != nil {
		return nil, err
	}

	active, err := s.repos.Tasks.ActiveInstances(ctx, taskID)
	if err != nil {
		return nil, err
	}

	view := &TaskStatusView{
		Task:         task,
		WorkflowName: def.Name,
		Version:      version.Version,
		Completed:    task.Status == models.TaskStatusCompleted,
	}
	for _, inst := range active {
		view.CurrentSteps = append(view.CurrentSteps, CurrentStep{
			StepName:      inst.StepName,
			RoleID:        inst.RoleID,
			AssigneeID:    inst.AssigneeID,
			AssigneeEmail: inst.AssigneeEmail,
			AssignedAt:    inst.AssignedAt,
			ActedAt:       inst.ActedAt,
		})
	}
	return view, nil
}
