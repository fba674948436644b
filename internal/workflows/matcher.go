package workflows

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"flowline/internal/db/repositories"
	"flowline/pkg/models"
)

// TicketAttributes carries the matching keys of an inbound ticket.
type TicketAttributes struct {
	Category    string
	Subcategory string
	Department  string
	Priority    models.Priority
}

// Matcher resolves ticket attributes to the active version of the applicable
// workflow. Matching is an ordered fallback: the first level producing a
// routable workflow wins, ties broken by most recent update.
type Matcher struct {
	repos *repositories.Repositories
}

func NewMatcher(repos *repositories.Repositories) *Matcher {
	return &Matcher{repos: repos}
}

// Match returns the currently active WorkflowVersion for the ticket, never
// the live definition. Identical attributes against an unchanged workflow set
// always resolve to the same version. Returns ErrWorkflowNotFound when every
// fallback level comes up empty; the caller keeps the ticket and alerts an
// administrator rather than discarding it.
func (m *Matcher) Match(ctx context.Context, attrs TicketAttributes) (*models.WorkflowVersion, *models.WorkflowDefinition, error) {
	def, err := m.resolveDefinition(ctx, attrs)
	if err != nil {
		return nil, nil, err
	}

	version, err := m.repos.Versions.GetActive(ctx, def.ID)
	if err != nil {
		// FindMatching filters on an active version existing, so this only
		// races with a concurrent re-activation; surface it as not found.
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrWorkflowNotFound
		}
		return nil, nil, fmt.Errorf("failed to load active version for workflow %d: %w", def.ID, err)
	}
	return version, def, nil
}

func (m *Matcher) resolveDefinition(ctx context.Context, attrs TicketAttributes) (*models.WorkflowDefinition, error) {
	// Level 1 and 2 share the same filter: the priority key only selects a
	// different SLA row inside the same workflow, so a full-attribute match
	// and a priority-agnostic match resolve identically. They are kept as
	// one query; levels below drop keys in order.
	levels := []repositories.MatchFilter{
		{
			Category:         attrs.Category,
			Subcategory:      attrs.Subcategory,
			Department:       attrs.Department,
			MatchSubcategory: true,
		},
		{
			Category:   attrs.Category,
			Department: attrs.Department,
		},
	}

	for _, filter := range levels {
		def, err := m.repos.Workflows.FindMatching(ctx, filter)
		if err == nil {
			return def, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("workflow match query failed: %w", err)
		}
	}

	def, err := m.repos.Workflows.FindDefault(ctx)
	if err == nil {
		return def, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWorkflowNotFound
	}
	return nil, fmt.Errorf("default workflow query failed: %w", err)
}
