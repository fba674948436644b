package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"flowline/internal/db/repositories"
	"flowline/internal/logging"
	"flowline/internal/workflows"
	"flowline/pkg/models"
)

// ErrWorkflowImmutable rejects edits to definitions past the editable states.
var ErrWorkflowImmutable = errors.New("workflow can no longer be edited")

// WorkflowService owns the authoring lifecycle: draft -> published ->
// initialized (frozen into a version) -> paused. Editing is only allowed
// while the definition is draft or published; frozen versions are never
// touched by edits.
type WorkflowService struct {
	repos *repositories.Repositories
	audit *AuditService
}

func NewWorkflowService(repos *repositories.Repositories, audit *AuditService) *WorkflowService {
	return &WorkflowService{repos: repos, audit: audit}
}

func (s *WorkflowService) Create(ctx context.Context, draft *workflows.Draft) (*models.WorkflowDefinition, workflows.ValidationResult, error) {
	validation, err := workflows.ValidateDraft(draft)
	if err != nil {
		return nil, validation, err
	}

	var created *models.WorkflowDefinition
	err = s.repos.InWriteTx(ctx, func(txr *repositories.Repositories) error {
		def := draftToDefinition(draft)
		def.Status = models.WorkflowStatusDraft

		created, err = txr.Workflows.Create(ctx, def)
		if err != nil {
			return fmt.Errorf("failed to create workflow %q: %w", draft.Name, err)
		}
		if err := txr.Workflows.ReplaceGraph(ctx, created.ID, draftSteps(created.ID, draft), draftTransitions(created.ID, draft)); err != nil {
			return fmt.Errorf("failed to store step graph for %q: %w", draft.Name, err)
		}
		return s.audit.Record(ctx, txr, models.ResourceTypeWorkflow, workflowResourceID(created.ID),
			models.EventTypeWorkflowCreated, nil, map[string]any{"name": created.Name})
	})
	if err != nil {
		return nil, validation, err
	}
	return created, validation, nil
}

func (s *WorkflowService) Update(ctx context.Context, id int64, draft *workflows.Draft) (*models.WorkflowDefinition, workflows.ValidationResult, error) {
	validation, err := workflows.ValidateDraft(draft)
	if err != nil {
		return nil, validation, err
	}

	var updated *models.WorkflowDefinition
	err = s.repos.InWriteTx(ctx, func(txr *repositories.Repositories) error {
		existing, err := txr.Workflows.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !existing.Editable() {
			return fmt.Errorf("%w: workflow %d is %s", ErrWorkflowImmutable, id, existing.Status)
		}

		def := draftToDefinition(draft)
		def.ID = id
		def.Status = existing.Status
		if err := txr.Workflows.Update(ctx, def); err != nil {
			return fmt.Errorf("failed to update workflow %d: %w", id, err)
		}
		if err := txr.Workflows.ReplaceGraph(ctx, id, draftSteps(id, draft), draftTransitions(id, draft)); err != nil {
			return fmt.Errorf("failed to replace step graph for workflow %d: %w", id, err)
		}

		updated, err = txr.Workflows.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return s.audit.Record(ctx, txr, models.ResourceTypeWorkflow, workflowResourceID(id),
			models.EventTypeWorkflowUpdated, nil, map[string]any{"name": def.Name})
	})
	if err != nil {
		return nil, validation, err
	}
	return updated, validation, nil
}

// Publish moves a draft to published, making it visible to the matcher once
// it has an active version.
func (s *WorkflowService) Publish(ctx context.Context, id int64) (*models.WorkflowDefinition, error) {
	return s.setStatus(ctx, id, models.WorkflowStatusPublished, models.EventTypeWorkflowPublished,
		models.WorkflowStatusDraft, models.WorkflowStatusPaused)
}

// Pause takes a workflow out of matching without touching its versions;
// in-flight tasks keep running against their frozen version.
func (s *WorkflowService) Pause(ctx context.Context, id int64) (*models.WorkflowDefinition, error) {
	return s.setStatus(ctx, id, models.WorkflowStatusPaused, models.EventTypeWorkflowPaused,
		models.WorkflowStatusPublished, models.WorkflowStatusInitialized)
}

// Activate freezes the definition into a new immutable version, makes it the
// single active one, and marks the workflow initialized. Re-activating an
// unchanged definition simply creates the next version.
func (s *WorkflowService) Activate(ctx context.Context, id int64) (*models.WorkflowVersion, error) {
	var version *models.WorkflowVersion
	err := s.repos.InWriteTx(ctx, func(txr *repositories.Repositories) error {
		def, err := txr.Workflows.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if def.Status == models.WorkflowStatusDraft {
			return fmt.Errorf("workflow %d must be published before activation", id)
		}

		version, err = workflows.Snapshot(ctx, txr, def)
		if err != nil {
			return err
		}

		if def.Status != models.WorkflowStatusInitialized {
			if err := txr.Workflows.UpdateStatus(ctx, id, models.WorkflowStatusInitialized); err != nil {
				return err
			}
		}
		return s.audit.Record(ctx, txr, models.ResourceTypeWorkflow, workflowResourceID(id),
			models.EventTypeVersionCreated, nil, map[string]any{"version": version.Version})
	})
	if err != nil {
		return nil, err
	}
	logging.Info("Workflow %d activated as version %d", id, version.Version)
	return version, nil
}

func (s *WorkflowService) Get(ctx context.Context, id int64) (*models.WorkflowDefinition, error) {
	return s.repos.Workflows.GetByID(ctx, id)
}

func (s *WorkflowService) List(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	return s.repos.Workflows.List(ctx)
}

func (s *WorkflowService) Steps(ctx context.Context, id int64) ([]models.Step, error) {
	return s.repos.Workflows.GetSteps(ctx, id)
}

func (s *WorkflowService) Transitions(ctx context.Context, id int64) ([]models.Transition, error) {
	return s.repos.Workflows.GetTransitions(ctx, id)
}

func (s *WorkflowService) ListVersions(ctx context.Context, id int64) ([]*models.WorkflowVersion, error) {
	return s.repos.Versions.ListByWorkflow(ctx, id)
}

// SeedFromDir loads workflow drafts from *.workflow.yaml files and upserts
// them by name. Files that fail validation are reported, not fatal.
func (s *WorkflowService) SeedFromDir(ctx context.Context, dir string) (*workflows.LoadResult, error) {
	result, err := workflows.NewLoader(dir).LoadAll()
	if err != nil {
		return nil, err
	}

	for _, wf := range result.Workflows {
		existing, err := s.repos.Workflows.GetByName(ctx, wf.Draft.Name)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, _, err := s.Create(ctx, wf.Draft); err != nil {
				result.Errors = append(result.Errors, workflows.LoadError{FilePath: wf.FilePath, Error: err})
			}
		case err != nil:
			return nil, err
		default:
			if _, _, err := s.Update(ctx, existing.ID, wf.Draft); err != nil {
				result.Errors = append(result.Errors, workflows.LoadError{FilePath: wf.FilePath, Error: err})
			}
		}
	}
	return result, nil
}

func (s *WorkflowService) setStatus(ctx context.Context, id int64, status, eventType string, allowedFrom ...string) (*models.WorkflowDefinition, error) {
	var def *models.WorkflowDefinition
	err := s.repos.InWriteTx(ctx, func(txr *repositories.Repositories) error {
		existing, err := txr.Workflows.GetByID(ctx, id)
		if err != nil {
			return err
		}
		allowed := false
		for _, from := range allowedFrom {
			if existing.Status == from {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("workflow %d cannot move from %s to %s", id, existing.Status, status)
		}
		if err := txr.Workflows.UpdateStatus(ctx, id, status); err != nil {
			return err
		}
		def, err = txr.Workflows.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return s.audit.Record(ctx, txr, models.ResourceTypeWorkflow, workflowResourceID(id), eventType, nil, nil)
	})
	return def, err
}

func draftToDefinition(draft *workflows.Draft) *models.WorkflowDefinition {
	def := &models.WorkflowDefinition{
		Name:        draft.Name,
		Category:    draft.Category,
		Subcategory: draft.Subcategory,
		Department:  draft.Department,
		SLA:         draft.SLA,
		IsDefault:   draft.IsDefault,
		EndBehavior: draft.EndBehavior,
	}
	if def.EndBehavior == "" {
		def.EndBehavior = "none"
	}
	if draft.Description != "" {
		def.Description = &draft.Description
	}
	return def
}

func draftSteps(workflowID int64, draft *workflows.Draft) []models.Step {
	steps := make([]models.Step, 0, len(draft.Steps))
	for _, spec := range draft.Steps {
		step := models.Step{
			WorkflowID: workflowID,
			Name:       spec.Name,
			RoleID:     spec.RoleID,
			StepOrder:  spec.Order,
			Weight:     spec.Weight,
		}
		if step.Weight == 0 {
			step.Weight = 1
		}
		if spec.EscalationRole != "" {
			role := spec.EscalationRole
			step.EscalationRoleID = &role
		}
		steps = append(steps, step)
	}
	return steps
}

func draftTransitions(workflowID int64, draft *workflows.Draft) []models.Transition {
	transitions := make([]models.Transition, 0, len(draft.Transitions))
	for _, spec := range draft.Transitions {
		transitions = append(transitions, models.Transition{
			WorkflowID: workflowID,
			FromStep:   spec.From,
			ToStep:     spec.To,
			ActionID:   spec.ActionID,
		})
	}
	return transitions
}

func workflowResourceID(id int64) string {
	return strconv.FormatInt(id, 10)
}
