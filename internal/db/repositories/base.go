package repositories

import (
	"context"
	"database/sql"

	"flowline/internal/db"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so every repository can run
// standalone or joined to a caller's transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repositories struct {
	Tickets   *TicketRepo
	Workflows *WorkflowRepo
	Versions  *VersionRepo
	Tasks     *TaskRepo
	Rotations *RotationRepo
	Audit     *AuditRepo
	db        db.Database // nil when the bundle is bound to a transaction
}

func New(database db.Database) *Repositories {
	return bind(database.Conn(), database)
}

func bind(q DBTX, database db.Database) *Repositories {
	return &Repositories{
		Tickets:   &TicketRepo{q: q},
		Workflows: &WorkflowRepo{q: q},
		Versions:  &VersionRepo{q: q},
		Tasks:     &TaskRepo{q: q},
		Rotations: &RotationRepo{q: q},
		Audit:     &AuditRepo{q: q},
		db:        database,
	}
}

// WithTx returns a bundle whose repositories all run on the given transaction.
func (r *Repositories) WithTx(tx *sql.Tx) *Repositories {
	return bind(tx, nil)
}

// BeginTx starts a database transaction
func (r *Repositories) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return r.db.Conn().BeginTx(ctx, nil)
}

// InWriteTx runs fn inside a write transaction while holding the SQLite
// write mutex. The transaction commits when fn returns nil and rolls back
// otherwise.
func (r *Repositories) InWriteTx(ctx context.Context, fn func(txr *Repositories) error) error {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	tx, err := r.BeginTx(ctx)
	if err != nil {
		return err
	}

	if err := fn(r.WithTx(tx)); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}
