package workflows_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowline/internal/workflows"
	"flowline/pkg/models"
)

func TestSnapshotFreezesGraphAgainstLaterEdits(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()

	def := publishWorkflow(t, repos, "frozen-flow", "hardware", "", "IT", false)

	version, err := repos.Versions.GetActive(ctx, def.ID)
	require.NoError(t, err)

	// Rewrite the authored graph after activation.
	require.NoError(t, repos.Workflows.ReplaceGraph(ctx, def.ID, []models.Step{
		{Name: "Totally New", RoleID: "other-role", StepOrder: 1, Weight: 1},
	}, nil))

	frozen, err := workflows.ParseVersion(version)
	require.NoError(t, err)
	require.Len(t, frozen.Steps, 2)
	assert.Equal(t, "Triage", frozen.EntryStep().Name)
	assert.Equal(t, "l1-support", frozen.EntryStep().RoleID)
	assert.Len(t, frozen.Transitions, 1)
}

func TestSnapshotCapturesMetadataAndSLA(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()

	def := publishWorkflow(t, repos, "meta-flow", "software", "licenses", "IT", false)

	version, err := repos.Versions.GetActive(ctx, def.ID)
	require.NoError(t, err)

	frozen, err := workflows.ParseVersion(version)
	require.NoError(t, err)
	assert.Equal(t, def.ID, frozen.WorkflowID)
	assert.Equal(t, "meta-flow", frozen.Name)
	assert.Equal(t, "licenses", frozen.Subcategory)
	assert.EqualValues(t, 480, frozen.SLA.HighMinutes)
	assert.Equal(t, "none", frozen.EndBehavior)
}

func TestSnapshotRejectsEmptyGraph(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()

	def, err := repos.Workflows.Create(ctx, &models.WorkflowDefinition{
		Name:     "no-steps",
		Category: "misc",
		SLA:      models.SLATable{UrgentMinutes: 10, HighMinutes: 20, MediumMinutes: 30, LowMinutes: 40},
		Status:   models.WorkflowStatusPublished,
	})
	require.NoError(t, err)

	_, err = workflows.Snapshot(ctx, repos, def)
	require.Error(t, err)
}

func TestRepeatedSnapshotsIncrementVersion(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()

	def := publishWorkflow(t, repos, "re-activated", "hardware", "", "", false)

	second, err := workflows.Snapshot(ctx, repos, def)
	require.NoError(t, err)
	assert.EqualValues(t, 2, second.Version)

	count, err := repos.Versions.CountActive(ctx, def.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	active, err := repos.Versions.GetActive(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
}
