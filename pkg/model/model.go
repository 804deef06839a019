package model

import "time"

type Strategy string

const (
	StrategyManual         Strategy = "MANUAL"
	StrategyAutoRoundRobin Strategy = "AUTO_ROUND_ROBIN"
	StrategyAutoBalanced   Strategy = "AUTO_BALANCED"
)

func (s Strategy) IsAutomatic() bool {
	return s == StrategyAutoRoundRobin || s == StrategyAutoBalanced
}

type TicketStatus string

const (
	TicketOpen    TicketStatus = "open"
	TicketPending TicketStatus = "pending"
	TicketClosed  TicketStatus = "closed"
)

// ActiveTicketStatuses count towards an agent's workload.
var ActiveTicketStatuses = []TicketStatus{TicketOpen, TicketPending}

// Queue is a routing group. Name and Color are each globally unique.
type Queue struct {
	ID               int64    `json:"id"`
	Name             string   `json:"name"`
	Color            string   `json:"color"`
	Strategy         Strategy `json:"distributionStrategy"`
	PrioritizeWallet bool     `json:"prioritizeWallet"`
}

type Agent struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	LastAssignmentAt *time.Time `json:"lastAssignmentAt"`

	// Resolved from role membership when the agent is loaded.
	ExcludedFromAutoAssignment bool `json:"excludedFromAutoAssignment"`
}

type Ticket struct {
	ID        int64        `json:"id"`
	ContactID int64        `json:"contactId"`
	QueueID   int64        `json:"queueId"`
	UserID    *int64       `json:"userId"`
	Status    TicketStatus `json:"status"`
	IsGroup   bool         `json:"isGroup"`
}

type Contact struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`

	// Sticky owner assigned out of band, e.g. by a sales process.
	WalletUserID *int64 `json:"walletUserId"`
}
