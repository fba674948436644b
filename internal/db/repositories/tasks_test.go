package repositories_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowline/internal/db/repositories"
	"flowline/pkg/models"
)

// createTaskFixture persists the full chain a task depends on: workflow
// definition, active version, ticket, task, and one assigned step instance.
func createTaskFixture(t *testing.T, repos *repositories.Repositories) (*models.Task, *models.StepInstance) {
	t.Helper()
	ctx := context.Background()

	def, err := repos.Workflows.Create(ctx, &models.WorkflowDefinition{
		Name:     "fixture-" + uuid.NewString(),
		Category: "hardware",
		Status:   models.WorkflowStatusDraft,
		SLA:      models.SLATable{UrgentMinutes: 240, HighMinutes: 480, MediumMinutes: 1440, LowMinutes: 2880},
	})
	require.NoError(t, err)

	version, err := repos.Versions.CreateActive(ctx, def.ID, json.RawMessage(`{"steps":[]}`))
	require.NoError(t, err)

	ticket := &models.Ticket{
		ID:       uuid.NewString(),
		Category: "hardware",
		Priority: models.PriorityHigh,
		Status:   models.TicketStatusInProgress,
	}
	require.NoError(t, repos.Tickets.Create(ctx, ticket))

	task := &models.Task{
		ID:          uuid.NewString(),
		TicketID:    ticket.ID,
		VersionID:   version.ID,
		Priority:    models.PriorityHigh,
		SLADeadline: time.Now().UTC().Add(8 * time.Hour),
		Status:      models.TaskStatusPending,
	}
	require.NoError(t, repos.Tasks.Create(ctx, task))

	assignee := "user-1"
	email := "user-1@example.com"
	instance := &models.StepInstance{
		TaskID:        task.ID,
		StepName:      "triage",
		RoleID:        "l1-support",
		AssigneeID:    &assignee,
		AssigneeEmail: &email,
	}
	require.NoError(t, repos.Tasks.CreateStepInstance(ctx, instance))
	require.NotZero(t, instance.ID)

	return task, instance
}

func TestMarkActedFlipsExactlyOnce(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()

	_, instance := createTaskFixture(t, repos)

	acted, err := repos.Tasks.MarkActed(ctx, instance.ID)
	require.NoError(t, err)
	assert.True(t, acted)

	acted, err = repos.Tasks.MarkActed(ctx, instance.ID)
	require.NoError(t, err)
	assert.False(t, acted, "second flip must be rejected")
}

func TestActiveInstanceForUser(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()

	task, instance := createTaskFixture(t, repos)

	found, err := repos.Tasks.ActiveInstanceForUser(ctx, task.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, instance.ID, found.ID)

	_, err = repos.Tasks.ActiveInstanceForUser(ctx, task.ID, "somebody-else")
	require.Error(t, err)

	acted, err := repos.Tasks.MarkActed(ctx, instance.ID)
	require.NoError(t, err)
	require.True(t, acted)

	// An acted instance is no longer active for its user.
	_, err = repos.Tasks.ActiveInstanceForUser(ctx, task.ID, "user-1")
	require.Error(t, err)

	hasActed, err := repos.Tasks.UserHasActed(ctx, task.ID, "user-1")
	require.NoError(t, err)
	assert.True(t, hasActed)
}

func TestSLABreachListingAndMarking(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()

	task, _ := createTaskFixture(t, repos)

	// Deadline in the future: nothing to report.
	breached, err := repos.Tasks.ListBreached(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	assert.Empty(t, breached)

	breached, err = repos.Tasks.ListBreached(ctx, time.Now().UTC().Add(9*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, breached, 1)
	assert.Equal(t, task.ID, breached[0].ID)

	marked, err := repos.Tasks.MarkSLABreached(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, marked)

	marked, err = repos.Tasks.MarkSLABreached(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, marked, "breach flag is one-shot")

	// Flagged tasks drop out of the sweep.
	breached, err = repos.Tasks.ListBreached(ctx, time.Now().UTC().Add(9*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, breached)
}

func TestCompletedTasksAreNotBreachable(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()

	task, _ := createTaskFixture(t, repos)
	now := time.Now().UTC()
	require.NoError(t, repos.Tasks.UpdateStatus(ctx, task.ID, models.TaskStatusCompleted, &now))

	breached, err := repos.Tasks.ListBreached(ctx, now.Add(24*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, breached)
}
