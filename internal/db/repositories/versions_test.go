package repositories_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowline/pkg/models"
)

func TestCreateActiveKeepsSingleActiveVersion(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()

	def, err := repos.Workflows.Create(ctx, &models.WorkflowDefinition{
		Name:     "versioned-" + uuid.NewString(),
		Category: "software",
		Status:   models.WorkflowStatusPublished,
	})
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		version, err := repos.Versions.CreateActive(ctx, def.ID, json.RawMessage(`{"steps":[]}`))
		require.NoError(t, err)
		assert.EqualValues(t, i, version.Version)
		assert.True(t, version.IsActive)

		count, err := repos.Versions.CountActive(ctx, def.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, count, "exactly one active version after each activation")
	}

	active, err := repos.Versions.GetActive(ctx, def.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, active.Version)

	all, err := repos.Versions.ListByWorkflow(ctx, def.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestVersionNumbersAreIndependentPerWorkflow(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()

	a, err := repos.Workflows.Create(ctx, &models.WorkflowDefinition{
		Name: "wf-a-" + uuid.NewString(), Category: "a", Status: models.WorkflowStatusPublished,
	})
	require.NoError(t, err)
	b, err := repos.Workflows.Create(ctx, &models.WorkflowDefinition{
		Name: "wf-b-" + uuid.NewString(), Category: "b", Status: models.WorkflowStatusPublished,
	})
	require.NoError(t, err)

	_, err = repos.Versions.CreateActive(ctx, a.ID, json.RawMessage(`{}`))
	require.NoError(t, err)
	_, err = repos.Versions.CreateActive(ctx, a.ID, json.RawMessage(`{}`))
	require.NoError(t, err)

	vb, err := repos.Versions.CreateActive(ctx, b.ID, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.EqualValues(t, 1, vb.Version)
}
