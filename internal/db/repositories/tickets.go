package repositories

import (
	"context"
	"database/sql"
	"time"

	"flowline/pkg/models"
)

// TicketRepo manages persisted inbound tickets.
type TicketRepo struct {
	q DBTX
}

func (r *TicketRepo) Create(ctx context.Context, ticket *models.Ticket) error {
	now := time.Now().UTC()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now

	var attachments any
	if len(ticket.Attachments) > 0 {
		attachments = string(ticket.Attachments)
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO tickets (
			id, external_ref, subject, category, subcategory, department,
			priority, requester, attachments, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ticket.ID,
		ticket.ExternalRef,
		ticket.Subject,
		ticket.Category,
		ticket.Subcategory,
		ticket.Department,
		string(ticket.Priority),
		ticket.Requester,
		attachments,
		ticket.Status,
		ticket.CreatedAt,
		ticket.UpdatedAt,
	)
	return err
}

func (r *TicketRepo) GetByID(ctx context.Context, id string) (*models.Ticket, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, external_ref, subject, category, subcategory, department,
			   priority, requester, attachments, status, created_at, updated_at
		FROM tickets
		WHERE id = ?
	`, id)
	return scanTicket(row)
}

func (r *TicketRepo) UpdateStatus(ctx context.Context, id, status string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE tickets SET status = ?, updated_at = ? WHERE id = ?
	`, status, time.Now().UTC(), id)
	return err
}

// ListByStatus returns tickets in a given status, oldest first. Used by the
// re-submission path for unmatched tickets.
func (r *TicketRepo) ListByStatus(ctx context.Context, status string, limit int64) ([]*models.Ticket, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, external_ref, subject, category, subcategory, department,
			   priority, requester, attachments, status, created_at, updated_at
		FROM tickets
		WHERE status = ?
		ORDER BY created_at ASC
		LIMIT ?
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []*models.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	return tickets, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*models.Ticket, error) {
	var ticket models.Ticket
	var priority string
	var attachments sql.NullString
	err := row.Scan(
		&ticket.ID,
		&ticket.ExternalRef,
		&ticket.Subject,
		&ticket.Category,
		&ticket.Subcategory,
		&ticket.Department,
		&priority,
		&ticket.Requester,
		&attachments,
		&ticket.Status,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	ticket.Priority = models.Priority(priority)
	if attachments.Valid {
		ticket.Attachments = []byte(attachments.String)
	}
	return &ticket, nil
}
