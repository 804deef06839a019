package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/model"
)

type TicketStore struct {
	db *sql.DB
}

func ProvideTicketStore(db *sql.DB) *TicketStore {
	return &TicketStore{db: db}
}

func (s *TicketStore) FindTicket(ctx context.Context, ticketID int64) (*model.Ticket, error) {
	query := `
		SELECT id, contact_id, queue_id, user_id, status, is_group
		FROM tickets
		WHERE id = $1
	`
	var (
		ticket model.Ticket
		userID sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, query, ticketID).Scan(
		&ticket.ID, &ticket.ContactID, &ticket.QueueID, &userID, &ticket.Status, &ticket.IsGroup,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find ticket[%v]: %w", ticketID, err)
	}
	if userID.Valid {
		ticket.UserID = &userID.Int64
	}
	return &ticket, nil
}

// AssignTicket sets the owning agent. It is a plain single-row update and
// is not coordinated with any redis state.
func (s *TicketStore) AssignTicket(ctx context.Context, ticketID, agentID int64) error {
	query := `UPDATE tickets SET user_id = $1, updated_at = NOW() WHERE id = $2`
	res, err := s.db.ExecContext(ctx, query, agentID, ticketID)
	if err != nil {
		return fmt.Errorf("assign ticket[%v] to agent[%v]: %w", ticketID, agentID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
