package workflows

import (
	"context"
	"encoding/json"
	"fmt"

	"flowline/internal/db/repositories"
	"flowline/pkg/models"
)

// Snapshot freezes a workflow definition's full graph and metadata into a new
// immutable version and makes it the single active one. It must run on a
// transaction-bound repository bundle: the deactivate-old/activate-new pair
// commits atomically, so concurrent readers never observe zero or two active
// versions.
//
// Re-snapshotting an unchanged definition still produces a new version;
// versions are cheap and append-only, and numbers are never reused.
func Snapshot(ctx context.Context, repos *repositories.Repositories, def *models.WorkflowDefinition) (*models.WorkflowVersion, error) {
	steps, err := repos.Workflows.GetSteps(ctx, def.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load steps for workflow %d: %w", def.ID, err)
	}
	transitions, err := repos.Workflows.GetTransitions(ctx, def.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transitions for workflow %d: %w", def.ID, err)
	}

	frozen := Freeze(def, steps, transitions)
	if err := frozen.checkFrozen(); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(frozen)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize version graph: %w", err)
	}

	version, err := repos.Versions.CreateActive(ctx, def.ID, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create version for workflow %d: %w", def.ID, err)
	}
	return version, nil
}

// Freeze builds the typed version graph from the authored rows.
func Freeze(def *models.WorkflowDefinition, steps []models.Step, transitions []models.Transition) *VersionDefinition {
	frozen := &VersionDefinition{
		WorkflowID:  def.ID,
		Name:        def.Name,
		Category:    def.Category,
		Subcategory: def.Subcategory,
		Department:  def.Department,
		EndBehavior: def.EndBehavior,
		SLA:         def.SLA,
	}
	for _, step := range steps {
		fs := FrozenStep{
			Name:   step.Name,
			RoleID: step.RoleID,
			Order:  step.StepOrder,
			Weight: step.Weight,
		}
		if step.EscalationRoleID != nil {
			fs.EscalationRole = *step.EscalationRoleID
		}
		frozen.Steps = append(frozen.Steps, fs)
	}
	for _, tr := range transitions {
		frozen.Transitions = append(frozen.Transitions, FrozenTransition{
			FromStep: tr.FromStep,
			ToStep:   tr.ToStep,
			ActionID: tr.ActionID,
		})
	}
	return frozen
}

// ParseVersion decodes the frozen graph out of a version row.
func ParseVersion(version *models.WorkflowVersion) (*VersionDefinition, error) {
	var def VersionDefinition
	if err := json.Unmarshal(version.Definition, &def); err != nil {
		return nil, fmt.Errorf("failed to decode version %d graph: %w", version.ID, err)
	}
	if err := def.checkFrozen(); err != nil {
		return nil, err
	}
	return &def, nil
}

// checkFrozen re-asserts the structural invariants a frozen graph relies on.
// Drafts are validated before they reach the snapshot path, so a failure here
// means the stored rows were tampered with or a migration went wrong.
func (d *VersionDefinition) checkFrozen() error {
	if len(d.Steps) == 0 {
		return fmt.Errorf("version graph for workflow %d has no steps", d.WorkflowID)
	}
	if !d.SLA.Ordered() {
		return fmt.Errorf("version graph for workflow %d has an unordered SLA table", d.WorkflowID)
	}
	names := make(map[string]bool, len(d.Steps))
	for _, step := range d.Steps {
		if step.Name == "" || step.RoleID == "" {
			return fmt.Errorf("version graph for workflow %d has a step missing name or role", d.WorkflowID)
		}
		names[step.Name] = true
	}
	for _, tr := range d.Transitions {
		if !names[tr.FromStep] || !names[tr.ToStep] {
			return fmt.Errorf("version graph for workflow %d has a dangling transition %s->%s", d.WorkflowID, tr.FromStep, tr.ToStep)
		}
		if tr.FromStep == tr.ToStep {
			return fmt.Errorf("version graph for workflow %d has a self-loop on %s", d.WorkflowID, tr.FromStep)
		}
	}
	return nil
}
