package services

import "errors"

var (
	// ErrNoUsersForRole means the directory returned zero members for a
	// role. Assignment is deferred, not failed: the task stays live without
	// an assignee and an admin alert is raised.
	ErrNoUsersForRole = errors.New("no users for role")

	// ErrNotAuthorizedForStep means the caller holds no active step
	// instance on the task.
	ErrNotAuthorizedForStep = errors.New("caller has no active step on task")

	// ErrInvalidTransitionAction means the action is not wired for the
	// caller's current step even though the step has outgoing transitions.
	ErrInvalidTransitionAction = errors.New("action not valid for current step")

	// ErrTaskCompleted means the task already reached its terminal state.
	ErrTaskCompleted = errors.New("task is already completed")

	// ErrTicketExists means a ticket with the same id was already ingested.
	ErrTicketExists = errors.New("ticket already ingested")
)
