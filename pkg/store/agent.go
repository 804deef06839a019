package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/config"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/model"
)

type AgentStore struct {
	db *sql.DB

	// Postgres array literal of role names excluded from auto assignment.
	excludedRoles string
}

func ProvideAgentStore(db *sql.DB, config *config.Config) *AgentStore {
	return NewAgentStore(db, config.ExcludedRoleNames())
}

func NewAgentStore(db *sql.DB, excludedRoles []string) *AgentStore {
	return &AgentStore{
		db:            db,
		excludedRoles: TextArray(excludedRoles),
	}
}

// ExcludedRoles is the array literal to bind to ExcludedRolePredicate.
func (s *AgentStore) ExcludedRoles() string {
	return s.excludedRoles
}

func scanAgent(row interface{ Scan(...any) error }) (*model.Agent, error) {
	var (
		agent            model.Agent
		lastAssignmentAt sql.NullTime
	)
	if err := row.Scan(&agent.ID, &agent.Name, &lastAssignmentAt, &agent.ExcludedFromAutoAssignment); err != nil {
		return nil, err
	}
	if lastAssignmentAt.Valid {
		at := lastAssignmentAt.Time
		agent.LastAssignmentAt = &at
	}
	return &agent, nil
}

func (s *AgentStore) FindAgent(ctx context.Context, agentID int64) (*model.Agent, error) {
	query := `
		SELECT u.id, u.name, u.last_assignment_at, ` + ExcludedRolePredicate("u.id", 2) + ` AS excluded
		FROM users u
		WHERE u.id = $1
	`
	agent, err := scanAgent(s.db.QueryRowContext(ctx, query, agentID, s.excludedRoles))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find agent[%v]: %w", agentID, err)
	}
	return agent, nil
}

// ListQueueAgents returns every member of the queue ordered by id,
// including excluded ones; callers filter on ExcludedFromAutoAssignment.
func (s *AgentStore) ListQueueAgents(ctx context.Context, queueID int64) ([]*model.Agent, error) {
	query := `
		SELECT u.id, u.name, u.last_assignment_at, ` + ExcludedRolePredicate("u.id", 2) + ` AS excluded
		FROM users u
		JOIN user_queues uq ON uq.user_id = u.id
		WHERE uq.queue_id = $1
		ORDER BY u.id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, queueID, s.excludedRoles)
	if err != nil {
		return nil, fmt.Errorf("list agents of queue[%v]: %w", queueID, err)
	}
	defer rows.Close()

	var agents []*model.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent of queue[%v]: %w", queueID, err)
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list agents of queue[%v]: %w", queueID, err)
	}
	return agents, nil
}

func (s *AgentStore) IsQueueMember(ctx context.Context, agentID, queueID int64) (bool, error) {
	var isMember bool
	query := `SELECT EXISTS (SELECT 1 FROM user_queues WHERE user_id = $1 AND queue_id = $2)`
	if err := s.db.QueryRowContext(ctx, query, agentID, queueID).Scan(&isMember); err != nil {
		return false, fmt.Errorf("check agent[%v] in queue[%v]: %w", agentID, queueID, err)
	}
	return isMember, nil
}

func (s *AgentStore) TouchLastAssignment(ctx context.Context, agentID int64, at time.Time) error {
	query := `UPDATE users SET last_assignment_at = $1, updated_at = NOW() WHERE id = $2`
	res, err := s.db.ExecContext(ctx, query, at, agentID)
	if err != nil {
		return fmt.Errorf("stamp last assignment of agent[%v]: %w", agentID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
