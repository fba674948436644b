package repositories

import (
	"context"
	"encoding/json"
	"time"

	"flowline/pkg/models"
)

// VersionRepo manages immutable workflow version snapshots. Versions are
// append-only; the only mutation ever applied is the is_active flip, and that
// happens inside the caller's activation transaction.
type VersionRepo struct {
	q DBTX
}

// CreateActive deactivates all prior versions of the workflow and inserts the
// next version as the single active one. Callers must run this on a
// transaction-bound bundle so the deactivate/insert pair commits atomically.
func (r *VersionRepo) CreateActive(ctx context.Context, workflowID int64, definition json.RawMessage) (*models.WorkflowVersion, error) {
	if _, err := r.q.ExecContext(ctx, `
		UPDATE workflow_versions SET is_active = 0 WHERE workflow_id = ?
	`, workflowID); err != nil {
		return nil, err
	}

	var id int64
	// MAX(version)+1 keeps numbers monotonic even after deactivation churn;
	// numbers are never reused.
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO workflow_versions (workflow_id, version, definition, is_active, created_at)
		VALUES (
			?,
			COALESCE((SELECT MAX(version) FROM workflow_versions WHERE workflow_id = ?), 0) + 1,
			?,
			1,
			?
		)
		RETURNING id
	`, workflowID, workflowID, string(definition), time.Now().UTC()).Scan(&id)
	if err != nil {
		return nil, err
	}

	return r.GetByID(ctx, id)
}

func (r *VersionRepo) GetByID(ctx context.Context, id int64) (*models.WorkflowVersion, error) {
	row := r.q.QueryRowContext(ctx, selectVersion+` WHERE id = ?`, id)
	return scanVersion(row)
}

func (r *VersionRepo) GetActive(ctx context.Context, workflowID int64) (*models.WorkflowVersion, error) {
	row := r.q.QueryRowContext(ctx, selectVersion+`
		WHERE workflow_id = ? AND is_active = 1
	`, workflowID)
	return scanVersion(row)
}

func (r *VersionRepo) ListByWorkflow(ctx context.Context, workflowID int64) ([]*models.WorkflowVersion, error) {
	rows, err := r.q.QueryContext(ctx, selectVersion+`
		WHERE workflow_id = ?
		ORDER BY version ASC
	`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []*models.WorkflowVersion
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

// CountActive exists for invariant checks in tests: it must never exceed 1
// for any workflow.
func (r *VersionRepo) CountActive(ctx context.Context, workflowID int64) (int64, error) {
	var count int64
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM workflow_versions WHERE workflow_id = ? AND is_active = 1
	`, workflowID).Scan(&count)
	return count, err
}

const selectVersion = `
	SELECT id, workflow_id, version, definition, is_active, created_at
	FROM workflow_versions
`

func scanVersion(row rowScanner) (*models.WorkflowVersion, error) {
	var version models.WorkflowVersion
	var definition string
	err := row.Scan(
		&version.ID,
		&version.WorkflowID,
		&version.Version,
		&definition,
		&version.IsActive,
		&version.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	version.Definition = []byte(definition)
	return &version, nil
}
