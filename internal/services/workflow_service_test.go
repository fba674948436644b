package services

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowline/internal/directory"
	"flowline/internal/workflows"
	"flowline/pkg/models"
)

func TestWorkflowLifecycle(t *testing.T) {
	env := newTestEnv(t, map[string][]directory.Member{})
	ctx := context.Background()

	def, validation, err := env.workflows.Create(ctx, itSupportDraft())
	require.NoError(t, err)
	require.True(t, validation.OK())
	assert.Equal(t, models.WorkflowStatusDraft, def.Status)

	steps, err := env.workflows.Steps(ctx, def.ID)
	require.NoError(t, err)
	assert.Len(t, steps, 2)

	published, err := env.workflows.Publish(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusPublished, published.Status)

	version, err := env.workflows.Activate(ctx, def.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, version.Version)
	assert.True(t, version.IsActive)

	initialized, err := env.workflows.Get(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusInitialized, initialized.Status)

	paused, err := env.workflows.Pause(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusPaused, paused.Status)

	// Paused definitions can come back.
	republished, err := env.workflows.Publish(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusPublished, republished.Status)
}

func TestCreateRejectsInvalidDraft(t *testing.T) {
	env := newTestEnv(t, map[string][]directory.Member{})

	draft := itSupportDraft()
	draft.SLA.UrgentMinutes = 5000

	_, validation, err := env.workflows.Create(context.Background(), draft)
	require.ErrorIs(t, err, workflows.ErrValidation)
	assert.False(t, validation.OK())

	defs, err := env.workflows.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, defs, "rejected drafts must not be persisted")
}

func TestActivateRequiresPublishedDefinition(t *testing.T) {
	env := newTestEnv(t, map[string][]directory.Member{})
	ctx := context.Background()

	def, _, err := env.workflows.Create(ctx, itSupportDraft())
	require.NoError(t, err)

	_, err = env.workflows.Activate(ctx, def.ID)
	require.Error(t, err)

	count, err := env.repos.Versions.CountActive(ctx, def.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestUpdateRejectedAfterActivation(t *testing.T) {
	env := newTestEnv(t, map[string][]directory.Member{})
	ctx := context.Background()

	def, _, err := env.workflows.Create(ctx, itSupportDraft())
	require.NoError(t, err)
	_, err = env.workflows.Publish(ctx, def.ID)
	require.NoError(t, err)

	// Published definitions are still editable.
	draft := itSupportDraft()
	draft.Description = "revised"
	_, _, err = env.workflows.Update(ctx, def.ID, draft)
	require.NoError(t, err)

	_, err = env.workflows.Activate(ctx, def.ID)
	require.NoError(t, err)

	_, _, err = env.workflows.Update(ctx, def.ID, draft)
	require.ErrorIs(t, err, ErrWorkflowImmutable)
}

func TestWorkflowAuditTrail(t *testing.T) {
	env := newTestEnv(t, map[string][]directory.Member{})
	ctx := context.Background()

	def, _, err := env.workflows.Create(ctx, itSupportDraft())
	require.NoError(t, err)
	_, err = env.workflows.Publish(ctx, def.ID)
	require.NoError(t, err)
	_, err = env.workflows.Activate(ctx, def.ID)
	require.NoError(t, err)
	_, err = env.workflows.Pause(ctx, def.ID)
	require.NoError(t, err)

	trail, err := env.audit.Trail(ctx, models.ResourceTypeWorkflow, strconv.FormatInt(def.ID, 10))
	require.NoError(t, err)
	require.Len(t, trail, 4)

	want := []string{
		models.EventTypeWorkflowCreated,
		models.EventTypeWorkflowPublished,
		models.EventTypeVersionCreated,
		models.EventTypeWorkflowPaused,
	}
	for i, event := range trail {
		assert.Equal(t, want[i], event.EventType)
		assert.EqualValues(t, i+1, event.Seq)
	}
}
