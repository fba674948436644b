package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowline/internal/directory"
	"flowline/pkg/models"
)

func ingestOne(t *testing.T, env *testEnv, ticketID string) *IngestResult {
	t.Helper()
	result, err := env.tickets.Ingest(context.Background(), highPriorityTicket(ticketID))
	require.NoError(t, err)
	require.True(t, result.Matched)
	return result
}

func TestTaskRunsToCompletion(t *testing.T) {
	env := newTestEnv(t, itSupportRoles())
	seedITSupport(t, env)
	ctx := context.Background()

	ingested := ingestOne(t, env, "TCK-100")
	taskID := ingested.Task.ID
	require.Equal(t, "alice", ingested.Assignee.ID)

	// Triage -> Resolve: the wired approve edge.
	result, err := env.tasks.Apply(ctx, ApplyRequest{
		TaskID: taskID, UserID: "alice", ActionID: "approve", Comment: "hardware fault confirmed",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeTransitioned, result.Outcome)
	assert.Equal(t, "Resolve", result.NextStep)
	require.NotNil(t, result.Assignee)
	assert.Equal(t, "carol", result.Assignee.ID)
	assert.Equal(t, models.TaskStatusInProgress, result.Task.Status)

	// Resolve has no outgoing transitions: any action completes the task.
	result, err = env.tasks.Apply(ctx, ApplyRequest{
		TaskID: taskID, UserID: "carol", ActionID: "approve",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Equal(t, models.TaskStatusCompleted, result.Task.Status)
	require.NotNil(t, result.Task.CompletedAt)

	ticket, err := env.tickets.Get(ctx, "TCK-100")
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusCompleted, ticket.Status)

	view, err := env.tasks.Status(ctx, taskID)
	require.NoError(t, err)
	assert.True(t, view.Completed)
	assert.Empty(t, view.CurrentSteps)
	assert.Equal(t, "IT-Support", view.WorkflowName)
	assert.EqualValues(t, 1, view.Version)

	logs, err := env.audit.ActionLogs(ctx, taskID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "alice", logs[0].UserID)
	assert.Equal(t, "hardware fault confirmed", logs[0].Comment)
	assert.Equal(t, "carol", logs[1].UserID)

	trail, err := env.audit.Trail(ctx, models.ResourceTypeTask, taskID)
	require.NoError(t, err)
	want := []string{
		models.EventTypeTaskCreated,
		models.EventTypeStepAssigned,
		models.EventTypeActionApplied,
		models.EventTypeStepAssigned,
		models.EventTypeActionApplied,
		models.EventTypeTaskCompleted,
	}
	require.Len(t, trail, len(want))
	for i, event := range trail {
		assert.Equal(t, want[i], event.EventType)
		assert.EqualValues(t, i+1, event.Seq)
	}
}

func TestDuplicateSubmissionIsNoOp(t *testing.T) {
	env := newTestEnv(t, itSupportRoles())
	seedITSupport(t, env)
	ctx := context.Background()

	taskID := ingestOne(t, env, "TCK-101").Task.ID

	first, err := env.tasks.Apply(ctx, ApplyRequest{TaskID: taskID, UserID: "alice", ActionID: "approve"})
	require.NoError(t, err)
	require.Equal(t, OutcomeTransitioned, first.Outcome)

	// Replay: alice already acted, so nothing happens and nothing errors.
	replay, err := env.tasks.Apply(ctx, ApplyRequest{TaskID: taskID, UserID: "alice", ActionID: "approve"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoOp, replay.Outcome)

	logs, err := env.audit.ActionLogs(ctx, taskID)
	require.NoError(t, err)
	assert.Len(t, logs, 1, "a replay must not append a second action log")

	instances, err := env.repos.Tasks.ListInstances(ctx, taskID)
	require.NoError(t, err)
	assert.Len(t, instances, 2, "a replay must not assign another step instance")
}

func TestUninvolvedUserIsRejected(t *testing.T) {
	env := newTestEnv(t, itSupportRoles())
	seedITSupport(t, env)

	taskID := ingestOne(t, env, "TCK-102").Task.ID

	_, err := env.tasks.Apply(context.Background(), ApplyRequest{
		TaskID: taskID, UserID: "mallory", ActionID: "approve",
	})
	require.ErrorIs(t, err, ErrNotAuthorizedForStep)
}

func TestUnwiredActionIsRejected(t *testing.T) {
	env := newTestEnv(t, itSupportRoles())
	seedITSupport(t, env)
	ctx := context.Background()

	taskID := ingestOne(t, env, "TCK-103").Task.ID

	_, err := env.tasks.Apply(ctx, ApplyRequest{TaskID: taskID, UserID: "alice", ActionID: "reject"})
	require.ErrorIs(t, err, ErrInvalidTransitionAction)

	// The rejected action left no trace and alice can still act.
	logs, err := env.audit.ActionLogs(ctx, taskID)
	require.NoError(t, err)
	assert.Empty(t, logs)

	result, err := env.tasks.Apply(ctx, ApplyRequest{TaskID: taskID, UserID: "alice", ActionID: "approve"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeTransitioned, result.Outcome)
}

func TestApplyOnCompletedTask(t *testing.T) {
	env := newTestEnv(t, itSupportRoles())
	seedITSupport(t, env)
	ctx := context.Background()

	taskID := ingestOne(t, env, "TCK-104").Task.ID
	_, err := env.tasks.Apply(ctx, ApplyRequest{TaskID: taskID, UserID: "alice", ActionID: "approve"})
	require.NoError(t, err)
	_, err = env.tasks.Apply(ctx, ApplyRequest{TaskID: taskID, UserID: "carol", ActionID: "approve"})
	require.NoError(t, err)

	// A stale unacted assignment on a finished task cannot act anymore.
	dave := "dave"
	require.NoError(t, env.repos.Tasks.CreateStepInstance(ctx, &models.StepInstance{
		TaskID: taskID, StepName: "Resolve", RoleID: "l2-support", AssigneeID: &dave,
	}))

	_, err = env.tasks.Apply(ctx, ApplyRequest{TaskID: taskID, UserID: "dave", ActionID: "approve"})
	require.ErrorIs(t, err, ErrTaskCompleted)

	// Participants replaying their processed submissions still get no-ops.
	replay, err := env.tasks.Apply(ctx, ApplyRequest{TaskID: taskID, UserID: "carol", ActionID: "approve"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoOp, replay.Outcome)
}

func TestTransitionToEmptyRoleDefersAssignment(t *testing.T) {
	env := newTestEnv(t, map[string][]directory.Member{
		"l1-support": {member("alice")},
	})
	seedITSupport(t, env)
	ctx := context.Background()

	taskID := ingestOne(t, env, "TCK-105").Task.ID

	result, err := env.tasks.Apply(ctx, ApplyRequest{TaskID: taskID, UserID: "alice", ActionID: "approve"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeTransitioned, result.Outcome)
	assert.Nil(t, result.Assignee)

	view, err := env.tasks.Status(ctx, taskID)
	require.NoError(t, err)
	require.Len(t, view.CurrentSteps, 1)
	assert.Equal(t, "Resolve", view.CurrentSteps[0].StepName)
	assert.Nil(t, view.CurrentSteps[0].AssigneeID)

	trail, err := env.audit.Trail(ctx, models.ResourceTypeTask, taskID)
	require.NoError(t, err)
	last := trail[len(trail)-1]
	assert.Equal(t, models.EventTypeStepUnassigned, last.EventType)
}

func TestStatusViewMidFlight(t *testing.T) {
	env := newTestEnv(t, itSupportRoles())
	seedITSupport(t, env)
	ctx := context.Background()

	ingested := ingestOne(t, env, "TCK-106")

	view, err := env.tasks.Status(ctx, ingested.Task.ID)
	require.NoError(t, err)
	assert.False(t, view.Completed)
	assert.Equal(t, models.TaskStatusPending, view.Task.Status)
	require.Len(t, view.CurrentSteps, 1)
	assert.Equal(t, "Triage", view.CurrentSteps[0].StepName)
	require.NotNil(t, view.CurrentSteps[0].AssigneeID)
	assert.Equal(t, "alice", *view.CurrentSteps[0].AssigneeID)
	assert.WithinDuration(t, time.Now().Add(8*time.Hour), view.Task.SLADeadline, time.Minute)
}
