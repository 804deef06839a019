package client

import (
	"context"
	"time"

	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/distribution"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/infra"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/model"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/msg"

	"github.com/emirpasic/gods/maps/hashmap"
	"go.uber.org/zap"
)

// Upper bound of one presence call made from the hub loop.
const presenceTimeout = 3 * time.Second

type PresenceRecorder interface {
	MarkConnected(ctx context.Context, agentID int64, connID string) error
	MarkDisconnected(ctx context.Context, agentID int64, connID string) (int64, error)
	Heartbeat(ctx context.Context, agentID int64) (bool, error)
}

type assignmentNotice struct {
	agentId   int64
	wsMessage *msg.WsMessage
}

type Hub struct {
	// Registered clients of this process. Key value: agentId ->
	// *hashmap.Map (connId -> client).
	agents *hashmap.Map

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Heartbeats (pongs and heartbeat events) from clients.
	heartbeat chan *Client

	// Assignments to push to every connection of an agent.
	assignment chan *assignmentNotice

	// Close every connection of an agent.
	kick chan int64

	presence PresenceRecorder
	logger   *zap.SugaredLogger
}

func ProvideHub(presence PresenceRecorder, loggerFactory *infra.LoggerFactory) *Hub {
	return &Hub{
		agents: hashmap.New(),

		register:   make(chan *Client, 1024),
		unregister: make(chan *Client, 1024),
		heartbeat:  make(chan *Client, 1024),
		assignment: make(chan *assignmentNotice, 1024),
		kick:       make(chan int64, 64),

		presence: presence,
		logger:   loggerFactory.Create("Hub").Sugar(),
	}
}

// Don't need lock on agents since only the Run goroutine touches it.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.logger.Debugf("register agentId[%v] connId[%v]", client.agentId, client.connId)
			h.clientsOf(client.agentId, true).Put(client.connId, client)

			if err := h.withTimeout(ctx, func(ctx context.Context) error {
				return h.presence.MarkConnected(ctx, client.agentId, client.connId)
			}); err != nil {
				h.logger.Errorf("cannot mark agentId[%v] connected %v", client.agentId, err)
			}

			if wsMessage, err := newWsMessage(msg.ConnectedCode, &msg.ConnectedServerEvent{
				AgentId:      client.agentId,
				ConnectionId: client.connId,
			}); err == nil {
				h.send(client, wsMessage)
			}

		case client := <-h.unregister:
			h.logger.Debugf("unregister agentId[%v] connId[%v]", client.agentId, client.connId)
			if !h.removeClient(client) {
				continue
			}

			if err := h.withTimeout(ctx, func(ctx context.Context) error {
				_, err := h.presence.MarkDisconnected(ctx, client.agentId, client.connId)
				return err
			}); err != nil {
				h.logger.Errorf("cannot mark agentId[%v] disconnected %v", client.agentId, err)
			}

		case client := <-h.heartbeat:
			if !h.isRegistered(client) {
				continue
			}
			if err := h.withTimeout(ctx, func(ctx context.Context) error {
				ok, err := h.presence.Heartbeat(ctx, client.agentId)
				if err == nil && !ok {
					// Marker lapsed while connections stayed open. Restore
					// all of them, not just the one that beat.
					return h.markAllConnected(ctx, client.agentId)
				}
				return err
			}); err != nil {
				h.logger.Errorf("cannot refresh agentId[%v] presence %v", client.agentId, err)
			}

		case notice := <-h.assignment:
			clients := h.clientsOf(notice.agentId, false)
			if clients == nil {
				h.logger.Debugf("agentId[%v] has no connection on this server", notice.agentId)
				continue
			}
			for _, value := range clients.Values() {
				h.send(value.(*Client), notice.wsMessage)
			}

		case agentId := <-h.kick:
			clients := h.clientsOf(agentId, false)
			if clients == nil {
				continue
			}
			wsMessage, _ := newWsMessage(msg.ForcedOfflineCode, &msg.ForcedOfflineServerEvent{Reason: "forced offline"})
			kicked := clients.Values()
			for _, value := range kicked {
				client := value.(*Client)
				h.send(client, wsMessage)
				h.removeClient(client)

				// A heartbeat handled between ForceOffline and this kick may
				// have restored the connection set.
				if err := h.withTimeout(ctx, func(ctx context.Context) error {
					_, err := h.presence.MarkDisconnected(ctx, client.agentId, client.connId)
					return err
				}); err != nil {
					h.logger.Errorf("cannot mark agentId[%v] disconnected %v", client.agentId, err)
				}
			}
			h.logger.Infof("kicked agentId[%v] connections[%v]", agentId, len(kicked))
		}
	}
}

// OnAssigned pushes the assignment to the agent's open connections. It
// never blocks the distribution call.
func (h *Hub) OnAssigned(ctx context.Context, ticket *model.Ticket, result *distribution.Result) {
	wsMessage, err := newWsMessage(msg.AssignmentCode, &msg.AssignmentServerEvent{
		TicketId: ticket.ID,
		QueueId:  ticket.QueueID,
		Strategy: string(result.Strategy),
		Reason:   result.Reason,
	})
	if err != nil {
		h.logger.Errorf("cannot marshal AssignmentServerEvent %v", err)
		return
	}

	select {
	case h.assignment <- &assignmentNotice{agentId: result.Agent.ID, wsMessage: wsMessage}:
	default:
		h.logger.Warnf("assignment channel full, drop notice for agentId[%v] ticketId[%v]", result.Agent.ID, ticket.ID)
	}
}

// Kick closes every local connection of the agent.
func (h *Hub) Kick(agentId int64) {
	h.kick <- agentId
}

func (h *Hub) clientsOf(agentId int64, create bool) *hashmap.Map {
	if value, ok := h.agents.Get(agentId); ok {
		return value.(*hashmap.Map)
	}
	if !create {
		return nil
	}
	clients := hashmap.New()
	h.agents.Put(agentId, clients)
	return clients
}

func (h *Hub) markAllConnected(ctx context.Context, agentId int64) error {
	clients := h.clientsOf(agentId, false)
	if clients == nil {
		return nil
	}
	for _, connId := range clients.Keys() {
		if err := h.presence.MarkConnected(ctx, agentId, connId.(string)); err != nil {
			return err
		}
	}
	return nil
}

func (h *Hub) isRegistered(client *Client) bool {
	clients := h.clientsOf(client.agentId, false)
	if clients == nil {
		return false
	}
	_, ok := clients.Get(client.connId)
	return ok
}

// removeClient drops the client and closes its send channel. Returns false
// if it was already removed.
func (h *Hub) removeClient(client *Client) bool {
	if !h.isRegistered(client) {
		return false
	}

	clients := h.clientsOf(client.agentId, false)
	clients.Remove(client.connId)
	if clients.Empty() {
		h.agents.Remove(client.agentId)
	}
	close(client.sendWsMessage) // Notify client it should close now.
	return true
}

// If the client's send buffer is full, assume it is dead or stuck and drop
// the message; its read deadline will unregister it.
func (h *Hub) send(client *Client, wsMessage *msg.WsMessage) {
	select {
	case client.sendWsMessage <- wsMessage:
	default:
		h.logger.Warnf("agentId[%v] connId[%v] send channel is full", client.agentId, client.connId)
	}
}

func (h *Hub) withTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, presenceTimeout)
	defer cancel()
	return fn(ctx)
}
