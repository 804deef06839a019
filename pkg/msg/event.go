package msg

type EventCode uint

const (
	// Server -> agent: a ticket was assigned to you.
	AssignmentCode EventCode = 1000

	// Server -> agent: your connection is registered.
	ConnectedCode EventCode = 1001

	// Agent -> server: still here. Refreshes presence ttl.
	HeartbeatCode EventCode = 1002

	// Server -> agent: an administrator forced you offline.
	ForcedOfflineCode EventCode = 1003
)

type AssignmentServerEvent struct {
	TicketId int64  `json:"ticketId"`
	QueueId  int64  `json:"queueId"`
	Strategy string `json:"strategy"`
	Reason   string `json:"reason"`
}

type ConnectedServerEvent struct {
	AgentId      int64  `json:"agentId"`
	ConnectionId string `json:"connectionId"`
}

type HeartbeatClientEvent struct {
	SentAtMsec int64 `json:"sentAtMsec"`
}

type ForcedOfflineServerEvent struct {
	Reason string `json:"reason"`
}
