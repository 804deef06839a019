package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/model"
)

type QueueStore struct {
	db *sql.DB
}

func ProvideQueueStore(db *sql.DB) *QueueStore {
	return &QueueStore{db: db}
}

func (s *QueueStore) FindQueue(ctx context.Context, queueID int64) (*model.Queue, error) {
	query := `
		SELECT id, name, color, COALESCE(distribution_strategy, 'MANUAL'), prioritize_wallet
		FROM queues
		WHERE id = $1
	`
	var queue model.Queue
	err := s.db.QueryRowContext(ctx, query, queueID).Scan(
		&queue.ID, &queue.Name, &queue.Color, &queue.Strategy, &queue.PrioritizeWallet,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find queue[%v]: %w", queueID, err)
	}
	return &queue, nil
}
