package workflows_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowline/internal/db"
	"flowline/internal/db/repositories"
	"flowline/internal/workflows"
	"flowline/pkg/models"
)

func setupRepos(t *testing.T) *repositories.Repositories {
	t.Helper()
	database, err := db.NewTest(t)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return repositories.New(database)
}

// publishWorkflow creates a routable workflow: published definition, step
// graph stored, and one active frozen version.
func publishWorkflow(t *testing.T, repos *repositories.Repositories, name, category, subcategory, department string, isDefault bool) *models.WorkflowDefinition {
	t.Helper()
	ctx := context.Background()

	def, err := repos.Workflows.Create(ctx, &models.WorkflowDefinition{
		Name:        name,
		Category:    category,
		Subcategory: subcategory,
		Department:  department,
		SLA:         models.SLATable{UrgentMinutes: 240, HighMinutes: 480, MediumMinutes: 1440, LowMinutes: 2880},
		Status:      models.WorkflowStatusPublished,
		IsDefault:   isDefault,
		EndBehavior: "none",
	})
	require.NoError(t, err)

	steps := []models.Step{
		{Name: "Triage", RoleID: "l1-support", StepOrder: 1, Weight: 1},
		{Name: "Resolve", RoleID: "l2-support", StepOrder: 2, Weight: 1},
	}
	transitions := []models.Transition{
		{FromStep: "Triage", ToStep: "Resolve", ActionID: "approve"},
	}
	require.NoError(t, repos.Workflows.ReplaceGraph(ctx, def.ID, steps, transitions))

	_, err = workflows.Snapshot(ctx, repos, def)
	require.NoError(t, err)
	return def
}

func TestMatcherPrefersSubcategoryMatch(t *testing.T) {
	repos := setupRepos(t)
	matcher := workflows.NewMatcher(repos)
	ctx := context.Background()

	broad := publishWorkflow(t, repos, "hardware-any", "hardware", "", "IT", false)
	specific := publishWorkflow(t, repos, "hardware-laptops", "hardware", "laptops", "IT", false)

	version, def, err := matcher.Match(ctx, workflows.TicketAttributes{
		Category: "hardware", Subcategory: "laptops", Department: "IT", Priority: models.PriorityHigh,
	})
	require.NoError(t, err)
	assert.Equal(t, specific.ID, def.ID)
	assert.Equal(t, specific.ID, version.WorkflowID)

	// Without a subcategory hit, match falls back to category+department.
	_, def, err = matcher.Match(ctx, workflows.TicketAttributes{
		Category: "hardware", Subcategory: "printers", Department: "IT", Priority: models.PriorityLow,
	})
	require.NoError(t, err)
	assert.Equal(t, broad.ID, def.ID)
}

func TestMatcherIsDeterministic(t *testing.T) {
	repos := setupRepos(t)
	matcher := workflows.NewMatcher(repos)
	ctx := context.Background()

	publishWorkflow(t, repos, "software", "software", "", "IT", false)

	attrs := workflows.TicketAttributes{Category: "software", Department: "IT", Priority: models.PriorityMedium}
	first, _, err := matcher.Match(ctx, attrs)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		version, _, err := matcher.Match(ctx, attrs)
		require.NoError(t, err)
		assert.Equal(t, first.ID, version.ID)
	}
}

func TestMatcherFallsBackToDefault(t *testing.T) {
	repos := setupRepos(t)
	matcher := workflows.NewMatcher(repos)
	ctx := context.Background()

	fallback := publishWorkflow(t, repos, "catch-all", "general", "", "", true)

	_, def, err := matcher.Match(ctx, workflows.TicketAttributes{
		Category: "facilities", Department: "HQ", Priority: models.PriorityLow,
	})
	require.NoError(t, err)
	assert.Equal(t, fallback.ID, def.ID)
}

func TestMatcherReportsNotFound(t *testing.T) {
	repos := setupRepos(t)
	matcher := workflows.NewMatcher(repos)

	_, _, err := matcher.Match(context.Background(), workflows.TicketAttributes{
		Category: "facilities", Priority: models.PriorityLow,
	})
	require.ErrorIs(t, err, workflows.ErrWorkflowNotFound)
}

func TestMatcherIgnoresUnroutableWorkflows(t *testing.T) {
	repos := setupRepos(t)
	matcher := workflows.NewMatcher(repos)
	ctx := context.Background()

	// Published but never activated: no active version, so not routable.
	_, err := repos.Workflows.Create(ctx, &models.WorkflowDefinition{
		Name:     "published-no-version",
		Category: "network",
		Status:   models.WorkflowStatusPublished,
	})
	require.NoError(t, err)

	// Activated but paused: out of matching entirely.
	paused := publishWorkflow(t, repos, "paused-flow", "network2", "", "", false)
	require.NoError(t, repos.Workflows.UpdateStatus(ctx, paused.ID, models.WorkflowStatusPaused))

	_, _, err = matcher.Match(ctx, workflows.TicketAttributes{Category: "network", Priority: models.PriorityLow})
	require.ErrorIs(t, err, workflows.ErrWorkflowNotFound)

	_, _, err = matcher.Match(ctx, workflows.TicketAttributes{Category: "network2", Priority: models.PriorityLow})
	require.ErrorIs(t, err, workflows.ErrWorkflowNotFound)
}
