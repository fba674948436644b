package services

import (
	"fmt"

	"github.com/qmuntal/stateless"

	"flowline/pkg/models"
)

const (
	triggerStart    = "start"
	triggerComplete = "complete"
)

// newTaskMachine builds the task status machine: pending -> in_progress ->
// completed, with completed terminal. A start on an already-running task is
// ignored rather than rejected so re-entrant transitions stay cheap.
func newTaskMachine(status string) *stateless.StateMachine {
	machine := stateless.NewStateMachine(status)

	machine.Configure(models.TaskStatusPending).
		Permit(triggerStart, models.TaskStatusInProgress).
		Permit(triggerComplete, models.TaskStatusCompleted)

	machine.Configure(models.TaskStatusInProgress).
		Ignore(triggerStart).
		Permit(triggerComplete, models.TaskStatusCompleted)

	machine.Configure(models.TaskStatusCompleted)

	return machine
}

// advanceTaskStatus fires a trigger against the machine and returns the
// resulting status. Firing anything at a completed task errors.
func advanceTaskStatus(current, trigger string) (string, error) {
	machine := newTaskMachine(current)
	if err := machine.Fire(trigger); err != nil {
		return "", fmt.Errorf("task status %s cannot handle %s: %w", current, trigger, err)
	}
	next, ok := machine.MustState().(string)
	if !ok {
		return "", fmt.Errorf("unexpected task machine state type")
	}
	return next, nil
}
