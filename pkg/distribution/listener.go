package distribution

import (
	"context"

	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/model"
)

// AssignmentListener is told about every ticket the engine assigned.
// Implementations must not block.
type AssignmentListener interface {
	OnAssigned(ctx context.Context, ticket *model.Ticket, result *Result)
}

type Listeners []AssignmentListener

func (l Listeners) OnAssigned(ctx context.Context, ticket *model.Ticket, result *Result) {
	for _, listener := range l {
		listener.OnAssigned(ctx, ticket, result)
	}
}
