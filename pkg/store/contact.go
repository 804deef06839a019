package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/model"
)

type ContactStore struct {
	db *sql.DB
}

func ProvideContactStore(db *sql.DB) *ContactStore {
	return &ContactStore{db: db}
}

func (s *ContactStore) FindContact(ctx context.Context, contactID int64) (*model.Contact, error) {
	query := `SELECT id, name, wallet_user_id FROM contacts WHERE id = $1`
	var (
		contact      model.Contact
		walletUserID sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, query, contactID).Scan(&contact.ID, &contact.Name, &walletUserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find contact[%v]: %w", contactID, err)
	}
	if walletUserID.Valid {
		contact.WalletUserID = &walletUserID.Int64
	}
	return &contact, nil
}
