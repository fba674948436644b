package repositories

import (
	"context"
	"database/sql"
	"time"

	"flowline/pkg/models"
)

// TaskRepo manages task runtime state and the step instances attached to it.
type TaskRepo struct {
	q DBTX
}

func (r *TaskRepo) Create(ctx context.Context, task *models.Task) error {
	task.CreatedAt = time.Now().UTC()
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO tasks (id, ticket_id, version_id, priority, sla_deadline, status, sla_breached, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
	`,
		task.ID,
		task.TicketID,
		task.VersionID,
		string(task.Priority),
		task.SLADeadline,
		task.Status,
		task.CreatedAt,
	)
	return err
}

func (r *TaskRepo) GetByID(ctx context.Context, id string) (*models.Task, error) {
	row := r.q.QueryRowContext(ctx, selectTask+` WHERE id = ?`, id)
	return scanTask(row)
}

func (r *TaskRepo) GetByTicket(ctx context.Context, ticketID string) (*models.Task, error) {
	row := r.q.QueryRowContext(ctx, selectTask+` WHERE ticket_id = ? ORDER BY created_at DESC LIMIT 1`, ticketID)
	return scanTask(row)
}

func (r *TaskRepo) UpdateStatus(ctx context.Context, id, status string, completedAt *time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE tasks SET status = ?, completed_at = ? WHERE id = ?
	`, status, nullableTime(completedAt), id)
	return err
}

// ListBreached returns live tasks whose SLA deadline has passed and that have
// not yet been flagged.
func (r *TaskRepo) ListBreached(ctx context.Context, now time.Time, limit int64) ([]*models.Task, error) {
	rows, err := r.q.QueryContext(ctx, selectTask+`
		WHERE status != ? AND sla_breached = 0 AND sla_deadline < ?
		ORDER BY sla_deadline ASC
		LIMIT ?
	`, models.TaskStatusCompleted, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// MarkSLABreached flags a task once; the conditional update keeps repeated
// poller runs from emitting duplicate alerts.
func (r *TaskRepo) MarkSLABreached(ctx context.Context, id string) (bool, error) {
	result, err := r.q.ExecContext(ctx, `
		UPDATE tasks SET sla_breached = 1 WHERE id = ? AND sla_breached = 0
	`, id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected == 1, err
}

func (r *TaskRepo) CreateStepInstance(ctx context.Context, inst *models.StepInstance) error {
	inst.AssignedAt = time.Now().UTC()
	var id int64
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO step_instances (task_id, step_name, role_id, assignee_id, assignee_email, has_acted, assigned_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
		RETURNING id
	`,
		inst.TaskID,
		inst.StepName,
		inst.RoleID,
		nullableString(inst.AssigneeID),
		nullableString(inst.AssigneeEmail),
		inst.AssignedAt,
	).Scan(&id)
	if err != nil {
		return err
	}
	inst.ID = id
	return nil
}

// ActiveInstanceForUser returns the caller's oldest unacted step instance on
// the task, or sql.ErrNoRows.
func (r *TaskRepo) ActiveInstanceForUser(ctx context.Context, taskID, userID string) (*models.StepInstance, error) {
	row := r.q.QueryRowContext(ctx, selectStepInstance+`
		WHERE task_id = ? AND assignee_id = ? AND has_acted = 0
		ORDER BY assigned_at ASC
		LIMIT 1
	`, taskID, userID)
	return scanStepInstance(row)
}

// UserHasActed reports whether the user already acted on some step of the
// task. Used to classify duplicate submissions as no-ops rather than
// authorization failures.
func (r *TaskRepo) UserHasActed(ctx context.Context, taskID, userID string) (bool, error) {
	var count int64
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM step_instances
		WHERE task_id = ? AND assignee_id = ? AND has_acted = 1
	`, taskID, userID).Scan(&count)
	return count > 0, err
}

// MarkActed flips has_acted exactly once. A false return means another
// submission won the race (or the instance was already acted on) and the
// caller must treat the request as already processed.
func (r *TaskRepo) MarkActed(ctx context.Context, instanceID int64) (bool, error) {
	result, err := r.q.ExecContext(ctx, `
		UPDATE step_instances SET has_acted = 1, acted_at = ?
		WHERE id = ? AND has_acted = 0
	`, time.Now().UTC(), instanceID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected == 1, err
}

func (r *TaskRepo) ListInstances(ctx context.Context, taskID string) ([]*models.StepInstance, error) {
	return r.queryInstances(ctx, selectStepInstance+` WHERE task_id = ? ORDER BY assigned_at ASC, id ASC`, taskID)
}

func (r *TaskRepo) ActiveInstances(ctx context.Context, taskID string) ([]*models.StepInstance, error) {
	return r.queryInstances(ctx, selectStepInstance+` WHERE task_id = ? AND has_acted = 0 ORDER BY assigned_at ASC, id ASC`, taskID)
}

func (r *TaskRepo) queryInstances(ctx context.Context, query string, args ...any) ([]*models.StepInstance, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []*models.StepInstance
	for rows.Next() {
		inst, err := scanStepInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

const selectTask = `
	SELECT id, ticket_id, version_id, priority, sla_deadline, status, sla_breached, created_at, completed_at
	FROM tasks
`

func scanTask(row rowScanner) (*models.Task, error) {
	var task models.Task
	var priority string
	var completedAt sql.NullTime
	err := row.Scan(
		&task.ID,
		&task.TicketID,
		&task.VersionID,
		&priority,
		&task.SLADeadline,
		&task.Status,
		&task.SLABreached,
		&task.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}
	task.Priority = models.Priority(priority)
	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}
	return &task, nil
}

const selectStepInstance = `
	SELECT id, task_id, step_name, role_id, assignee_id, assignee_email, has_acted, assigned_at, acted_at
	FROM step_instances
`

func scanStepInstance(row rowScanner) (*models.StepInstance, error) {
	var inst models.StepInstance
	var assigneeID, assigneeEmail sql.NullString
	var actedAt sql.NullTime
	err := row.Scan(
		&inst.ID,
		&inst.TaskID,
		&inst.StepName,
		&inst.RoleID,
		&assigneeID,
		&assigneeEmail,
		&inst.HasActed,
		&inst.AssignedAt,
		&actedAt,
	)
	if err != nil {
		return nil, err
	}
	if assigneeID.Valid {
		inst.AssigneeID = &assigneeID.String
	}
	if assigneeEmail.Valid {
		inst.AssigneeEmail = &assigneeEmail.String
	}
	if actedAt.Valid {
		inst.ActedAt = &actedAt.Time
	}
	return &inst, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
