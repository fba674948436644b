package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"flowline/internal/db"
	"flowline/internal/db/repositories"
	"flowline/internal/directory"
	"flowline/internal/notifications"
	"flowline/internal/workflows"
	"flowline/pkg/models"
)

type testEnv struct {
	repos     *repositories.Repositories
	workflows *WorkflowService
	tickets   *TicketService
	tasks     *TaskService
	audit     *AuditService
}

func newTestEnv(t *testing.T, roles map[string][]directory.Member) *testEnv {
	t.Helper()
	database, err := db.NewTest(t)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	repos := repositories.New(database)
	dir := directory.NewStatic(roles)
	notifier := notifications.Noop{}

	audit := NewAuditService(repos)
	allocator := NewAllocator(repos, dir)
	matcher := workflows.NewMatcher(repos)
	hooks := NewHookRegistry(NewNotifyRequesterHook(notifier), NewCloseExternalHook(notifier))

	return &testEnv{
		repos:     repos,
		workflows: NewWorkflowService(repos, audit),
		tickets:   NewTicketService(repos, matcher, allocator, audit, notifier),
		tasks:     NewTaskService(repos, allocator, audit, notifier, hooks),
		audit:     audit,
	}
}

func itSupportDraft() *workflows.Draft {
	return &workflows.Draft{
		Name:       "IT-Support",
		Category:   "hardware",
		Department: "IT",
		SLA:        models.SLATable{UrgentMinutes: 240, HighMinutes: 480, MediumMinutes: 1440, LowMinutes: 2880},
		Steps: []workflows.StepSpec{
			{Name: "Triage", RoleID: "l1-support", Order: 1},
			{Name: "Resolve", RoleID: "l2-support", Order: 2},
		},
		Transitions: []workflows.EdgeSpec{
			{From: "Triage", To: "Resolve", ActionID: "approve"},
		},
	}
}

// seedITSupport creates, publishes, and activates the two-step IT-Support
// workflow, returning its first version.
func seedITSupport(t *testing.T, env *testEnv) *models.WorkflowVersion {
	t.Helper()
	ctx := context.Background()

	def, validation, err := env.workflows.Create(ctx, itSupportDraft())
	require.NoError(t, err)
	require.True(t, validation.OK())

	_, err = env.workflows.Publish(ctx, def.ID)
	require.NoError(t, err)

	version, err := env.workflows.Activate(ctx, def.ID)
	require.NoError(t, err)
	return version
}

func member(id string) directory.Member {
	return directory.Member{ID: id, Email: id + "@example.com"}
}

func itSupportRoles() map[string][]directory.Member {
	return map[string][]directory.Member{
		"l1-support": {member("alice"), member("bob")},
		"l2-support": {member("carol")},
	}
}

func highPriorityTicket(id string) IngestTicketRequest {
	return IngestTicketRequest{
		TicketID:   id,
		Subject:    "Laptop will not boot",
		Category:   "hardware",
		Department: "IT",
		Priority:   models.PriorityHigh,
		Requester:  "dana@example.com",
	}
}
