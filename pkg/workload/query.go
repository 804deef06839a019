// Package workload ranks the agents of a queue by how busy they are.
package workload

import (
	"context"
	"database/sql"
	"fmt"

	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/model"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/store"
)

// Ranked is one agent with its count of open and pending tickets.
type Ranked struct {
	Agent         *model.Agent
	ActiveTickets int
}

var rankQuery = `
	SELECT u.id, u.name, u.last_assignment_at, COUNT(t.id) AS active_tickets
	FROM users u
	JOIN user_queues uq ON uq.user_id = u.id AND uq.queue_id = $1
	LEFT JOIN tickets t ON t.user_id = u.id AND t.status = ANY($3::text[])
	WHERE u.id = ANY($2::bigint[])
	  AND NOT ` + store.ExcludedRolePredicate("u.id", 4) + `
	GROUP BY u.id, u.name, u.last_assignment_at
	ORDER BY active_tickets ASC, u.last_assignment_at ASC NULLS FIRST, u.id ASC
`

type Query struct {
	db            *sql.DB
	excludedRoles string
}

func ProvideQuery(db *sql.DB, agentStore *store.AgentStore) *Query {
	return NewQuery(db, agentStore.ExcludedRoles())
}

// NewQuery takes excludedRoles as a postgres array literal, see
// store.TextArray.
func NewQuery(db *sql.DB, excludedRoles string) *Query {
	return &Query{
		db:            db,
		excludedRoles: excludedRoles,
	}
}

// Rank returns the candidates that belong to the queue and are not
// excluded from auto assignment, least busy first. Ties go to the agent
// assigned longest ago, never assigned agents first. All of it runs as one
// statement so the counts come from a single snapshot.
func (q *Query) Rank(ctx context.Context, queueID int64, candidateIDs []int64) ([]Ranked, error) {
	if len(candidateIDs) == 0 {
		return nil, nil
	}

	rows, err := q.db.QueryContext(ctx, rankQuery,
		queueID, store.Int8Array(candidateIDs), store.ActiveStatuses(), q.excludedRoles,
	)
	if err != nil {
		return nil, fmt.Errorf("rank workload of queue[%v]: %w", queueID, err)
	}
	defer rows.Close()

	var ranked []Ranked
	for rows.Next() {
		var (
			agent            model.Agent
			lastAssignmentAt sql.NullTime
			activeTickets    int
		)
		if err := rows.Scan(&agent.ID, &agent.Name, &lastAssignmentAt, &activeTickets); err != nil {
			return nil, fmt.Errorf("scan workload of queue[%v]: %w", queueID, err)
		}
		if lastAssignmentAt.Valid {
			at := lastAssignmentAt.Time
			agent.LastAssignmentAt = &at
		}
		ranked = append(ranked, Ranked{Agent: &agent, ActiveTickets: activeTickets})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rank workload of queue[%v]: %w", queueID, err)
	}

	return ranked, nil
}
