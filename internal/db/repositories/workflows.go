package repositories

import (
	"context"
	"database/sql"
	"time"

	"flowline/pkg/models"
)

// WorkflowRepo manages workflow definitions and their authored step graph.
type WorkflowRepo struct {
	q DBTX
}

func (r *WorkflowRepo) Create(ctx context.Context, def *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	now := time.Now().UTC()

	var desc sql.NullString
	if def.Description != nil {
		desc = sql.NullString{String: *def.Description, Valid: true}
	}

	var id int64
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO workflow_definitions (
			name, description, category, subcategory, department,
			sla_urgent_minutes, sla_high_minutes, sla_medium_minutes, sla_low_minutes,
			status, is_default, end_behavior, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`,
		def.Name,
		desc,
		def.Category,
		def.Subcategory,
		def.Department,
		def.SLA.UrgentMinutes,
		def.SLA.HighMinutes,
		def.SLA.MediumMinutes,
		def.SLA.LowMinutes,
		def.Status,
		def.IsDefault,
		def.EndBehavior,
		now,
		now,
	).Scan(&id)
	if err != nil {
		return nil, err
	}

	return r.GetByID(ctx, id)
}

func (r *WorkflowRepo) Update(ctx context.Context, def *models.WorkflowDefinition) error {
	var desc sql.NullString
	if def.Description != nil {
		desc = sql.NullString{String: *def.Description, Valid: true}
	}

	_, err := r.q.ExecContext(ctx, `
		UPDATE workflow_definitions SET
			name = ?, description = ?, category = ?, subcategory = ?, department = ?,
			sla_urgent_minutes = ?, sla_high_minutes = ?, sla_medium_minutes = ?, sla_low_minutes = ?,
			is_default = ?, end_behavior = ?, updated_at = ?
		WHERE id = ?
	`,
		def.Name,
		desc,
		def.Category,
		def.Subcategory,
		def.Department,
		def.SLA.UrgentMinutes,
		def.SLA.HighMinutes,
		def.SLA.MediumMinutes,
		def.SLA.LowMinutes,
		def.IsDefault,
		def.EndBehavior,
		time.Now().UTC(),
		def.ID,
	)
	return err
}

func (r *WorkflowRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE workflow_definitions SET status = ?, updated_at = ? WHERE id = ?
	`, status, time.Now().UTC(), id)
	return err
}

func (r *WorkflowRepo) GetByID(ctx context.Context, id int64) (*models.WorkflowDefinition, error) {
	row := r.q.QueryRowContext(ctx, selectDefinition+` WHERE id = ?`, id)
	return scanDefinition(row)
}

func (r *WorkflowRepo) GetByName(ctx context.Context, name string) (*models.WorkflowDefinition, error) {
	row := r.q.QueryRowContext(ctx, selectDefinition+` WHERE name = ?`, name)
	return scanDefinition(row)
}

func (r *WorkflowRepo) List(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	rows, err := r.q.QueryContext(ctx, selectDefinition+` ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []*models.WorkflowDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// MatchFilter narrows definitions for one fallback level of the matcher.
// Subcategory matching is optional; category is always required.
type MatchFilter struct {
	Category         string
	Subcategory      string
	Department       string
	MatchSubcategory bool
}

// FindMatching returns the most recently updated routable definition for the
// filter, or sql.ErrNoRows. Routable means published or initialized with an
// active version.
func (r *WorkflowRepo) FindMatching(ctx context.Context, filter MatchFilter) (*models.WorkflowDefinition, error) {
	query := selectDefinition + `
		WHERE status IN (?, ?)
		  AND category = ?
		  AND department = ?
		  AND EXISTS (
			SELECT 1 FROM workflow_versions v
			WHERE v.workflow_id = workflow_definitions.id AND v.is_active = 1
		  )
	`
	args := []any{
		models.WorkflowStatusPublished,
		models.WorkflowStatusInitialized,
		filter.Category,
		filter.Department,
	}
	if filter.MatchSubcategory {
		query += ` AND subcategory = ?`
		args = append(args, filter.Subcategory)
	}
	query += ` ORDER BY updated_at DESC LIMIT 1`

	return scanDefinition(r.q.QueryRowContext(ctx, query, args...))
}

// FindDefault returns the designated default workflow if one is configured
// and routable.
func (r *WorkflowRepo) FindDefault(ctx context.Context) (*models.WorkflowDefinition, error) {
	row := r.q.QueryRowContext(ctx, selectDefinition+`
		WHERE is_default = 1
		  AND status IN (?, ?)
		  AND EXISTS (
			SELECT 1 FROM workflow_versions v
			WHERE v.workflow_id = workflow_definitions.id AND v.is_active = 1
		  )
		ORDER BY updated_at DESC
		LIMIT 1
	`, models.WorkflowStatusPublished, models.WorkflowStatusInitialized)
	return scanDefinition(row)
}

// ReplaceGraph swaps out the authored steps and transitions of a definition.
// Only valid while the definition is editable; frozen versions are untouched.
func (r *WorkflowRepo) ReplaceGraph(ctx context.Context, workflowID int64, steps []models.Step, transitions []models.Transition) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM workflow_transitions WHERE workflow_id = ?`, workflowID); err != nil {
		return err
	}
	if _, err := r.q.ExecContext(ctx, `DELETE FROM workflow_steps WHERE workflow_id = ?`, workflowID); err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, step := range steps {
		var escalation sql.NullString
		if step.EscalationRoleID != nil {
			escalation = sql.NullString{String: *step.EscalationRoleID, Valid: true}
		}
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO workflow_steps (workflow_id, name, role_id, step_order, weight, escalation_role_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, workflowID, step.Name, step.RoleID, step.StepOrder, step.Weight, escalation, now); err != nil {
			return err
		}
	}

	for _, tr := range transitions {
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO workflow_transitions (workflow_id, from_step, to_step, action_id, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, workflowID, tr.FromStep, tr.ToStep, tr.ActionID, now); err != nil {
			return err
		}
	}

	return nil
}

func (r *WorkflowRepo) GetSteps(ctx context.Context, workflowID int64) ([]models.Step, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, workflow_id, name, role_id, step_order, weight, escalation_role_id, created_at
		FROM workflow_steps
		WHERE workflow_id = ?
		ORDER BY step_order ASC
	`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []models.Step
	for rows.Next() {
		var step models.Step
		var escalation sql.NullString
		if err := rows.Scan(&step.ID, &step.WorkflowID, &step.Name, &step.RoleID,
			&step.StepOrder, &step.Weight, &escalation, &step.CreatedAt); err != nil {
			return nil, err
		}
		if escalation.Valid {
			step.EscalationRoleID = &escalation.String
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func (r *WorkflowRepo) GetTransitions(ctx context.Context, workflowID int64) ([]models.Transition, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, workflow_id, from_step, to_step, action_id, created_at
		FROM workflow_transitions
		WHERE workflow_id = ?
		ORDER BY id ASC
	`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transitions []models.Transition
	for rows.Next() {
		var tr models.Transition
		if err := rows.Scan(&tr.ID, &tr.WorkflowID, &tr.FromStep, &tr.ToStep, &tr.ActionID, &tr.CreatedAt); err != nil {
			return nil, err
		}
		transitions = append(transitions, tr)
	}
	return transitions, rows.Err()
}

const selectDefinition = `
	SELECT id, name, description, category, subcategory, department,
		   sla_urgent_minutes, sla_high_minutes, sla_medium_minutes, sla_low_minutes,
		   status, is_default, end_behavior, created_at, updated_at
	FROM workflow_definitions
`

func scanDefinition(row rowScanner) (*models.WorkflowDefinition, error) {
	var def models.WorkflowDefinition
	var desc sql.NullString
	err := row.Scan(
		&def.ID,
		&def.Name,
		&desc,
		&def.Category,
		&def.Subcategory,
		&def.Department,
		&def.SLA.UrgentMinutes,
		&def.SLA.HighMinutes,
		&def.SLA.MediumMinutes,
		&def.SLA.LowMinutes,
		&def.Status,
		&def.IsDefault,
		&def.EndBehavior,
		&def.CreatedAt,
		&def.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if desc.Valid {
		def.Description = &desc.String
	}
	return &def, nil
}
