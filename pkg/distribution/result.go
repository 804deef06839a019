package distribution

import "cs-platform/helpdesk/helpdesk-distribution-server/pkg/model"

// Reasons are shown to operators as the audit trail of a distribution.
const (
	ReasonManual          = "Manual distribution - ticket awaiting pickup"
	ReasonAutoDisabled    = "Automatic distribution disabled - ticket awaiting pickup"
	ReasonLockUnavailable = "Distribution lock unavailable - ticket awaiting pickup"
	ReasonUnknownStrategy = "Unknown distribution strategy - ticket awaiting pickup"
	ReasonWalletOwner     = "Assigned to wallet owner"
	ReasonNoOnlineUsers   = "No online users available in queue"
	ReasonNoEligibleUsers = "No eligible users available in queue"
	ReasonLowestWorkload  = "Assigned to user with lowest workload"
	ReasonRoundRobin      = "Assigned by round-robin"
)

// Result of one distribution. A nil Agent means the ticket stays in the
// queue for manual pickup; that is a normal outcome, not an error.
type Result struct {
	Agent    *model.Agent   `json:"agent"`
	Strategy model.Strategy `json:"strategy"`
	Reason   string         `json:"reason"`
}

func (r *Result) Assigned() bool {
	return r != nil && r.Agent != nil
}

func noAgent(strategy model.Strategy, reason string) *Result {
	return &Result{Strategy: strategy, Reason: reason}
}
