package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"flowline/pkg/models"
)

// RotationRepo persists the per-role round-robin cursor.
type RotationRepo struct {
	q DBTX
}

// advanceAttempts bounds the optimistic-update loop. Contending writers
// serialize on the SQLite write lock, so a handful of retries is plenty.
const advanceAttempts = 10

// Advance returns the rotation index to use for the next assignment and
// moves the pointer forward with wraparound. The read-modify-write is a
// conditional UPDATE keyed on the previously observed pointer value, so two
// concurrent assignments for the same role can neither pick the same index
// nor skip one.
func (r *RotationRepo) Advance(ctx context.Context, roleID string, memberCount int) (int, error) {
	if memberCount <= 0 {
		return 0, fmt.Errorf("rotation advance for role %s: member count must be positive", roleID)
	}

	for attempt := 0; attempt < advanceAttempts; attempt++ {
		pointer, err := r.currentPointer(ctx, roleID)
		if err != nil {
			return 0, err
		}

		// Clamp stale cursors left behind by membership shrinking.
		index := pointer
		if index >= int64(memberCount) {
			index = 0
		}
		next := (index + 1) % int64(memberCount)

		result, err := r.q.ExecContext(ctx, `
			UPDATE round_robin_pointers
			SET pointer = ?, updated_at = ?
			WHERE role_id = ? AND pointer = ?
		`, next, time.Now().UTC(), roleID, pointer)
		if err != nil {
			return 0, err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		if affected == 1 {
			return int(index), nil
		}
		// Lost the race; re-read and try again.
	}

	return 0, fmt.Errorf("rotation advance for role %s: exhausted retries", roleID)
}

func (r *RotationRepo) currentPointer(ctx context.Context, roleID string) (int64, error) {
	var pointer int64
	err := r.q.QueryRowContext(ctx, `
		SELECT pointer FROM round_robin_pointers WHERE role_id = ?
	`, roleID).Scan(&pointer)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO round_robin_pointers (role_id, pointer, updated_at)
			VALUES (?, 0, ?)
			ON CONFLICT(role_id) DO NOTHING
		`, roleID, time.Now().UTC()); err != nil {
			return 0, err
		}
		return 0, nil
	}
	return pointer, err
}

func (r *RotationRepo) Get(ctx context.Context, roleID string) (*models.RoundRobinPointer, error) {
	var rp models.RoundRobinPointer
	err := r.q.QueryRowContext(ctx, `
		SELECT role_id, pointer, updated_at FROM round_robin_pointers WHERE role_id = ?
	`, roleID).Scan(&rp.RoleID, &rp.Pointer, &rp.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rp, nil
}
