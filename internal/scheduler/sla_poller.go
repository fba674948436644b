package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"flowline/internal/db/repositories"
	"flowline/internal/logging"
	"flowline/internal/notifications"
	"flowline/internal/services"
	"flowline/internal/workflows"
	"flowline/pkg/models"
)

// SLAPoller periodically scans live tasks whose SLA deadline has passed.
// Breach is an observed property: the poller flags the task, records an
// audit event, and raises an admin alert carrying the current step's
// escalation role. It never aborts the task.
type SLAPoller struct {
	repos    *repositories.Repositories
	audit    *services.AuditService
	notifier notifications.Notifier
	spec     string
	cron     *cron.Cron
}

func NewSLAPoller(repos *repositories.Repositories, audit *services.AuditService, notifier notifications.Notifier, spec string) *SLAPoller {
	if spec == "" {
		spec = "@every 1m"
	}
	return &SLAPoller{
		repos:    repos,
		audit:    audit,
		notifier: notifier,
		spec:     spec,
		cron:     cron.New(),
	}
}

func (p *SLAPoller) Start() error {
	if _, err := p.cron.AddFunc(p.spec, p.poll); err != nil {
		return fmt.Errorf("invalid SLA poll spec %q: %w", p.spec, err)
	}
	p.cron.Start()
	logging.Info("SLA breach poller running (%s)", p.spec)
	return nil
}

func (p *SLAPoller) Stop() {
	ctx := p.cron.Stop()
	<-ctx.Done()
}

func (p *SLAPoller) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := p.Scan(ctx); err != nil {
		logging.Error("SLA breach scan failed: %v", err)
	}
}

// Scan runs one breach sweep. Exported so tests and one-shot CLI invocations
// can drive it without the cron schedule.
func (p *SLAPoller) Scan(ctx context.Context) error {
	breached, err := p.repos.Tasks.ListBreached(ctx, time.Now().UTC(), 100)
	if err != nil {
		return err
	}

	for _, task := range breached {
		escalation, err := p.escalationRole(ctx, task)
		if err != nil {
			logging.Error("Could not resolve escalation role for task %s: %v", task.ID, err)
		}

		var flagged bool
		err = p.repos.InWriteTx(ctx, func(txr *repositories.Repositories) error {
			flagged, err = txr.Tasks.MarkSLABreached(ctx, task.ID)
			if err != nil || !flagged {
				return err
			}
			return p.audit.Record(ctx, txr, models.ResourceTypeTask, task.ID, models.EventTypeSLABreached, nil,
				map[string]any{"deadline": task.SLADeadline, "escalation_role": escalation})
		})
		if err != nil {
			return err
		}
		if !flagged {
			continue
		}

		alert := notifications.AdminAlert{
			Code:           notifications.AlertSLABreached,
			Message:        fmt.Sprintf("Task %s missed its SLA deadline %s", task.ID, task.SLADeadline.Format(time.RFC3339)),
			ResourceType:   models.ResourceTypeTask,
			ResourceID:     task.ID,
			EscalationRole: escalation,
			RaisedAt:       time.Now().UTC(),
		}
		if err := p.notifier.PublishAdminAlert(ctx, alert); err != nil {
			logging.Error("SLA breach alert for task %s failed: %v", task.ID, err)
		}
	}
	return nil
}

// escalationRole reads the escalation role of the step the task is currently
// waiting on, if any.
func (p *SLAPoller) escalationRole(ctx context.Context, task *models.Task) (string, error) {
	active, err := p.repos.Tasks.ActiveInstances(ctx, task.ID)
	if err != nil || len(active) == 0 {
		return "", err
	}

	version, err := p.repos.Versions.GetByID(ctx, task.VersionID)
	if err != nil {
		return "", err
	}
	def, err := workflows.ParseVersion(version)
	if err != nil {
		return "", err
	}

	if step := def.StepByName(active[0].StepName); step != nil {
		return step.EscalationRole, nil
	}
	return "", nil
}
