package client

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/distribution"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/infra"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/model"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/msg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakePresence struct {
	conns      map[int64]map[string]bool
	heartbeats int
	mu         sync.Mutex
}

func newFakePresence() *fakePresence {
	return &fakePresence{conns: make(map[int64]map[string]bool)}
}

func (p *fakePresence) MarkConnected(ctx context.Context, agentID int64, connID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conns[agentID] == nil {
		p.conns[agentID] = make(map[string]bool)
	}
	p.conns[agentID][connID] = true
	return nil
}

func (p *fakePresence) MarkDisconnected(ctx context.Context, agentID int64, connID string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.conns[agentID], connID)
	return int64(len(p.conns[agentID])), nil
}

func (p *fakePresence) Heartbeat(ctx context.Context, agentID int64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.heartbeats++
	return len(p.conns[agentID]) > 0, nil
}

// expire drops all presence of the agent, as ForceOffline or a lapsed ttl
// would.
func (p *fakePresence) expire(agentID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.conns, agentID)
}

func (p *fakePresence) connCount(agentID int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns[agentID])
}

func (p *fakePresence) heartbeatCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.heartbeats
}

func newTestHub(t *testing.T) (*Hub, *fakePresence) {
	presence := newFakePresence()
	hub := ProvideHub(presence, infra.NewLoggerFactory(zaptest.NewLogger(t)))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	return hub, presence
}

func newTestClient(hub *Hub, agentId int64, connId string) *Client {
	return &Client{
		agentId:       agentId,
		connId:        connId,
		sendWsMessage: make(chan *msg.WsMessage, 8),
		hub:           hub,
		logger:        hub.logger,
	}
}

func receive(t *testing.T, client *Client) *msg.WsMessage {
	t.Helper()
	select {
	case wsMessage := <-client.sendWsMessage:
		return wsMessage
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestRegisterMarksConnected(t *testing.T) {
	hub, presence := newTestHub(t)
	client := newTestClient(hub, 7, "conn-1")

	hub.register <- client

	wsMessage := receive(t, client)
	assert.Equal(t, msg.ConnectedCode, wsMessage.EventCode)
	assert.Equal(t, 1, presence.connCount(7))
}

func TestUnregisterLastConnectionGoesOffline(t *testing.T) {
	hub, presence := newTestHub(t)
	tab1 := newTestClient(hub, 7, "tab-1")
	tab2 := newTestClient(hub, 7, "tab-2")

	hub.register <- tab1
	hub.register <- tab2
	receive(t, tab1)
	receive(t, tab2)

	hub.unregister <- tab1
	require.Eventually(t, func() bool { return presence.connCount(7) == 1 }, time.Second, 5*time.Millisecond)

	hub.unregister <- tab2
	require.Eventually(t, func() bool { return presence.connCount(7) == 0 }, time.Second, 5*time.Millisecond)

	_, ok := <-tab2.sendWsMessage
	assert.False(t, ok, "send channel should be closed")
}

func TestAssignmentReachesEveryConnection(t *testing.T) {
	hub, _ := newTestHub(t)
	tab1 := newTestClient(hub, 7, "tab-1")
	tab2 := newTestClient(hub, 7, "tab-2")
	other := newTestClient(hub, 8, "other")
	for _, c := range []*Client{tab1, tab2, other} {
		hub.register <- c
		receive(t, c)
	}

	hub.OnAssigned(context.Background(),
		&model.Ticket{ID: 55, QueueID: 2},
		&distribution.Result{Agent: &model.Agent{ID: 7}, Strategy: model.StrategyAutoRoundRobin, Reason: distribution.ReasonRoundRobin},
	)

	for _, c := range []*Client{tab1, tab2} {
		wsMessage := receive(t, c)
		require.Equal(t, msg.AssignmentCode, wsMessage.EventCode)

		event := &msg.AssignmentServerEvent{}
		require.NoError(t, json.Unmarshal(wsMessage.EventData, event))
		assert.Equal(t, int64(55), event.TicketId)
		assert.Equal(t, distribution.ReasonRoundRobin, event.Reason)
	}
	assert.Empty(t, other.sendWsMessage)
}

func TestHeartbeatIgnoredAfterKick(t *testing.T) {
	hub, presence := newTestHub(t)
	client := newTestClient(hub, 7, "conn-1")
	hub.register <- client
	receive(t, client)

	hub.heartbeat <- client
	require.Eventually(t, func() bool { return presence.heartbeatCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Kick(7)
	wsMessage := receive(t, client)
	assert.Equal(t, msg.ForcedOfflineCode, wsMessage.EventCode)

	hub.heartbeat <- client
	hub.unregister <- client
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, presence.heartbeatCount())
}

func TestKickAfterHeartbeatLeavesAgentOffline(t *testing.T) {
	hub, presence := newTestHub(t)
	client := newTestClient(hub, 7, "conn-1")
	hub.register <- client
	receive(t, client)

	// ForceOffline cleared redis, but a pong was already queued.
	presence.expire(7)
	hub.heartbeat <- client
	require.Eventually(t, func() bool { return presence.heartbeatCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Kick(7)
	assert.Equal(t, msg.ForcedOfflineCode, receive(t, client).EventCode)
	require.Eventually(t, func() bool { return presence.connCount(7) == 0 }, time.Second, 5*time.Millisecond)

	// Socket closes afterwards.
	hub.unregister <- client
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, presence.connCount(7))
}

func TestLapsedMarkerRestoresEveryConnection(t *testing.T) {
	hub, presence := newTestHub(t)
	tab1 := newTestClient(hub, 7, "tab-1")
	tab2 := newTestClient(hub, 7, "tab-2")
	hub.register <- tab1
	hub.register <- tab2
	receive(t, tab1)
	receive(t, tab2)

	presence.expire(7)
	hub.heartbeat <- tab1
	require.Eventually(t, func() bool { return presence.connCount(7) == 2 }, time.Second, 5*time.Millisecond)

	hub.unregister <- tab1
	require.Eventually(t, func() bool { return presence.connCount(7) == 1 }, time.Second, 5*time.Millisecond)
}
