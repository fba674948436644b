package services

import (
	"context"
	"time"

	"flowline/internal/logging"
	"flowline/internal/notifications"
	"flowline/internal/workflows"
	"flowline/pkg/models"
)

// CompletionContext is handed to hooks after a task reaches its terminal
// state.
type CompletionContext struct {
	Task       *models.Task
	Ticket     *models.Ticket
	Definition *workflows.VersionDefinition
}

// CompletionHook is a named side effect fired when a task completes. The
// workflow definition selects one by its end_behavior tag. Hook failures are
// logged and never unwind the completed task.
type CompletionHook interface {
	Name() string
	OnTaskComplete(ctx context.Context, cc CompletionContext) error
}

// HookRegistry maps end_behavior tags to hooks.
type HookRegistry struct {
	hooks map[string]CompletionHook
}

func NewHookRegistry(hooks ...CompletionHook) *HookRegistry {
	registry := &HookRegistry{hooks: make(map[string]CompletionHook)}
	for _, hook := range hooks {
		registry.hooks[hook.Name()] = hook
	}
	return registry
}

func (r *HookRegistry) Register(hook CompletionHook) {
	r.hooks[hook.Name()] = hook
}

// Run dispatches to the hook registered under the tag. Unknown or empty tags
// are a silent no-op; "none" is the conventional empty tag.
func (r *HookRegistry) Run(ctx context.Context, tag string, cc CompletionContext) {
	if tag == "" || tag == "none" {
		return
	}
	hook, ok := r.hooks[tag]
	if !ok {
		logging.Debug("No completion hook registered for end behavior %q", tag)
		return
	}
	if err := hook.OnTaskComplete(ctx, cc); err != nil {
		logging.Error("Completion hook %q failed for task %s: %v", tag, cc.Task.ID, err)
	}
}

// NotifyRequesterHook tells the ticket's requester their ticket is done.
type NotifyRequesterHook struct {
	notifier notifications.Notifier
}

func NewNotifyRequesterHook(notifier notifications.Notifier) *NotifyRequesterHook {
	return &NotifyRequesterHook{notifier: notifier}
}

func (h *NotifyRequesterHook) Name() string { return "notify-requester" }

func (h *NotifyRequesterHook) OnTaskComplete(ctx context.Context, cc CompletionContext) error {
	return h.notifier.PublishTaskEvent(ctx, cc.Task.ID, map[string]any{
		"event":        "ticket_completed",
		"ticket_id":    cc.Ticket.ID,
		"requester":    cc.Ticket.Requester,
		"subject":      cc.Ticket.Subject,
		"completed_at": time.Now().UTC(),
	})
}

// CloseExternalHook signals the originating helpdesk system to close the
// source ticket.
type CloseExternalHook struct {
	notifier notifications.Notifier
}

func NewCloseExternalHook(notifier notifications.Notifier) *CloseExternalHook {
	return &CloseExternalHook{notifier: notifier}
}

func (h *CloseExternalHook) Name() string { return "close-external" }

func (h *CloseExternalHook) OnTaskComplete(ctx context.Context, cc CompletionContext) error {
	return h.notifier.PublishTaskEvent(ctx, cc.Task.ID, map[string]any{
		"event":        "close_external_ticket",
		"ticket_id":    cc.Ticket.ID,
		"external_ref": cc.Ticket.ExternalRef,
	})
}
