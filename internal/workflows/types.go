package workflows

import (
	"errors"

	"flowline/pkg/models"
)

// ErrValidation marks definitions rejected by ValidateDraft.
var ErrValidation = errors.New("workflow validation failed")

// ErrWorkflowNotFound is returned by the matcher when no published workflow
// applies to a ticket at any fallback level.
var ErrWorkflowNotFound = errors.New("no matching workflow")

// Draft is the authorable workflow shape accepted by the API and the YAML
// loader. It is validated, persisted as a WorkflowDefinition plus its step
// graph, and frozen into a VersionDefinition on activation.
type Draft struct {
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string          `json:"category" yaml:"category"`
	Subcategory string          `json:"subcategory,omitempty" yaml:"subcategory,omitempty"`
	Department  string          `json:"department,omitempty" yaml:"department,omitempty"`
	SLA         models.SLATable `json:"sla" yaml:"sla"`
	IsDefault   bool            `json:"is_default,omitempty" yaml:"is_default,omitempty"`
	EndBehavior string          `json:"end_behavior,omitempty" yaml:"end_behavior,omitempty"`
	Steps       []StepSpec      `json:"steps" yaml:"steps"`
	Transitions []EdgeSpec      `json:"transitions" yaml:"transitions"`
}

// StepSpec declares one step of a draft.
type StepSpec struct {
	Name           string `json:"name" yaml:"name"`
	RoleID         string `json:"role_id" yaml:"role_id"`
	Order          int64  `json:"order" yaml:"order"`
	Weight         int64  `json:"weight,omitempty" yaml:"weight,omitempty"`
	EscalationRole string `json:"escalation_role,omitempty" yaml:"escalation_role,omitempty"`
}

// EdgeSpec declares one action-labeled transition of a draft.
type EdgeSpec struct {
	From     string `json:"from" yaml:"from"`
	To       string `json:"to" yaml:"to"`
	ActionID string `json:"action" yaml:"action"`
}

// VersionDefinition is the strongly-typed frozen graph serialized into a
// WorkflowVersion row. Tasks read it for their whole lifetime, so its shape
// is validated at snapshot time and trusted at read time.
type VersionDefinition struct {
	WorkflowID  int64            `json:"workflow_id"`
	Name        string           `json:"name"`
	Category    string           `json:"category"`
	Subcategory string           `json:"subcategory"`
	Department  string           `json:"department"`
	EndBehavior string           `json:"end_behavior"`
	SLA         models.SLATable  `json:"sla"`
	Steps       []FrozenStep     `json:"steps"`
	Transitions []FrozenTransition `json:"transitions"`
}

// FrozenStep is a step inside a frozen version graph.
type FrozenStep struct {
	Name           string `json:"name"`
	RoleID         string `json:"role_id"`
	Order          int64  `json:"order"`
	Weight         int64  `json:"weight"`
	EscalationRole string `json:"escalation_role,omitempty"`
}

// FrozenTransition is an edge inside a frozen version graph.
type FrozenTransition struct {
	FromStep string `json:"from_step"`
	ToStep   string `json:"to_step"`
	ActionID string `json:"action_id"`
}

// EntryStep returns the step with the lowest order.
func (d *VersionDefinition) EntryStep() *FrozenStep {
	var entry *FrozenStep
	for i := range d.Steps {
		if entry == nil || d.Steps[i].Order < entry.Order {
			entry = &d.Steps[i]
		}
	}
	return entry
}

// StepByName returns the named step, or nil.
func (d *VersionDefinition) StepByName(name string) *FrozenStep {
	for i := range d.Steps {
		if d.Steps[i].Name == name {
			return &d.Steps[i]
		}
	}
	return nil
}

// FindTransition returns the transition leaving fromStep under actionID, or
// nil when the action is not wired for that step.
func (d *VersionDefinition) FindTransition(fromStep, actionID string) *FrozenTransition {
	for i := range d.Transitions {
		if d.Transitions[i].FromStep == fromStep && d.Transitions[i].ActionID == actionID {
			return &d.Transitions[i]
		}
	}
	return nil
}

// TransitionsFrom returns every transition leaving a step. An empty result
// marks the step as an end of branch: any action submitted there completes
// the task.
func (d *VersionDefinition) TransitionsFrom(fromStep string) []FrozenTransition {
	var out []FrozenTransition
	for _, tr := range d.Transitions {
		if tr.FromStep == fromStep {
			out = append(out, tr)
		}
	}
	return out
}
