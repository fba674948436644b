package workflows

import (
	"fmt"
)

// ValidationIssue is a structured validation error or warning.
type ValidationIssue struct {
	Code    string `json:"code"`
	Path    string `json:"path"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// ValidationResult aggregates validation errors and warnings.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors"`
	Warnings []ValidationIssue `json:"warnings"`
}

func (r ValidationResult) OK() bool {
	return len(r.Errors) == 0
}

// ValidateDraft checks a draft's metadata, SLA ordering, and step graph.
// Returns ErrValidation when any error-level issue is found.
func ValidateDraft(draft *Draft) (ValidationResult, error) {
	var result ValidationResult

	if draft.Name == "" {
		result.Errors = append(result.Errors, ValidationIssue{
			Code:    "MISSING_NAME",
			Path:    "/name",
			Message: "Workflows must declare a unique name",
		})
	}

	if draft.Category == "" {
		result.Errors = append(result.Errors, ValidationIssue{
			Code:    "MISSING_CATEGORY",
			Path:    "/category",
			Message: "Workflows must declare a ticket category to match on",
		})
	}

	if !draft.SLA.Ordered() {
		result.Errors = append(result.Errors, ValidationIssue{
			Code:    "SLA_NOT_ORDERED",
			Path:    "/sla",
			Message: "SLA durations must satisfy urgent < high < medium < low, all positive",
			Hint:    "Higher-priority tickets get a strictly shorter resolution budget.",
		})
	}

	if len(draft.Steps) == 0 {
		result.Errors = append(result.Errors, ValidationIssue{
			Code:    "MISSING_STEPS",
			Path:    "/steps",
			Message: "At least one step is required",
		})
		return result, ErrValidation
	}

	// First pass: capture step names, detect duplicates and bad fields.
	stepNames := make(map[string]int)
	minOrder := draft.Steps[0].Order
	minOrderCount := 0
	for i, step := range draft.Steps {
		path := fmt.Sprintf("/steps/%d", i)
		if step.Name == "" {
			result.Errors = append(result.Errors, ValidationIssue{
				Code:    "MISSING_STEP_NAME",
				Path:    path,
				Message: "Each step must have a name",
			})
			continue
		}
		if prev, exists := stepNames[step.Name]; exists {
			result.Errors = append(result.Errors, ValidationIssue{
				Code:    "DUPLICATE_STEP_NAME",
				Path:    path,
				Message: fmt.Sprintf("Step name '%s' is already used at steps/%d", step.Name, prev),
			})
			continue
		}
		stepNames[step.Name] = i

		if step.RoleID == "" {
			result.Errors = append(result.Errors, ValidationIssue{
				Code:    "MISSING_STEP_ROLE",
				Path:    path + "/role_id",
				Message: fmt.Sprintf("Step '%s' must be owned by a role", step.Name),
			})
		}
		if step.Order <= 0 {
			result.Errors = append(result.Errors, ValidationIssue{
				Code:    "INVALID_STEP_ORDER",
				Path:    path + "/order",
				Message: fmt.Sprintf("Step '%s' must have a positive order", step.Name),
			})
		}
		if step.Order < minOrder {
			minOrder = step.Order
			minOrderCount = 1
		} else if step.Order == minOrder {
			minOrderCount++
		}
	}

	if minOrderCount > 1 {
		result.Errors = append(result.Errors, ValidationIssue{
			Code:    "AMBIGUOUS_ENTRY_STEP",
			Path:    "/steps",
			Message: "Exactly one step must carry the minimum order; it is the entry step",
		})
	}

	// Second pass: transitions must reference known steps of this workflow,
	// with no self-loops and no duplicate action per source step.
	seenActions := make(map[string]int)
	for i, edge := range draft.Transitions {
		path := fmt.Sprintf("/transitions/%d", i)
		if edge.ActionID == "" {
			result.Errors = append(result.Errors, ValidationIssue{
				Code:    "MISSING_ACTION",
				Path:    path + "/action",
				Message: "Transitions must be labeled by an action identifier",
			})
		}
		if _, ok := stepNames[edge.From]; !ok {
			result.Errors = append(result.Errors, ValidationIssue{
				Code:    "UNKNOWN_FROM_STEP",
				Path:    path + "/from",
				Message: fmt.Sprintf("Transition references unknown step '%s'", edge.From),
			})
		}
		if _, ok := stepNames[edge.To]; !ok {
			result.Errors = append(result.Errors, ValidationIssue{
				Code:    "UNKNOWN_TO_STEP",
				Path:    path + "/to",
				Message: fmt.Sprintf("Transition references unknown step '%s'", edge.To),
			})
		}
		if edge.From != "" && edge.From == edge.To {
			result.Errors = append(result.Errors, ValidationIssue{
				Code:    "SELF_LOOP",
				Path:    path,
				Message: fmt.Sprintf("Step '%s' cannot transition to itself", edge.From),
			})
		}
		key := edge.From + "\x00" + edge.ActionID
		if prev, exists := seenActions[key]; exists {
			result.Errors = append(result.Errors, ValidationIssue{
				Code:    "DUPLICATE_ACTION",
				Path:    path,
				Message: fmt.Sprintf("Action '%s' on step '%s' is already wired at transitions/%d", edge.ActionID, edge.From, prev),
			})
		}
		seenActions[key] = i
	}

	// Steps that no transition can ever reach (excluding the entry) are
	// almost always authoring mistakes, but they do not break execution.
	reachable := map[string]bool{}
	for _, edge := range draft.Transitions {
		reachable[edge.To] = true
	}
	for name, i := range stepNames {
		if draft.Steps[i].Order == minOrder {
			continue
		}
		if !reachable[name] {
			result.Warnings = append(result.Warnings, ValidationIssue{
				Code:    "UNREACHABLE_STEP",
				Path:    fmt.Sprintf("/steps/%d", i),
				Message: fmt.Sprintf("Step '%s' is not the entry step and no transition leads to it", name),
			})
		}
	}

	if len(result.Errors) > 0 {
		return result, ErrValidation
	}
	return result, nil
}
