package client

import (
	"encoding/json"
	"time"

	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/msg"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 8192
)

// Client is a middleman between one agent websocket connection and the
// hub. An agent may hold several clients (tabs, devices).
type Client struct {
	agentId int64
	connId  string

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages. Closed by the hub.
	sendWsMessage chan *msg.WsMessage

	pingInterval time.Duration

	hub    *Hub
	logger *zap.SugaredLogger
}

func NewClient(agentId int64, conn *websocket.Conn, hub *Hub, pingInterval time.Duration) *Client {
	connId := uuid.NewString()
	return &Client{
		agentId:       agentId,
		connId:        connId,
		conn:          conn,
		sendWsMessage: make(chan *msg.WsMessage, 64),
		pingInterval:  pingInterval,
		hub:           hub,
		logger:        hub.logger.With("agentId", agentId, "connId", connId),
	}
}

func (c *Client) AgentId() int64 {
	return c.agentId
}

func (c *Client) ConnId() string {
	return c.connId
}

// Run registers the client and starts its pumps. Allow collection of
// memory referenced by the caller by doing all work in new goroutines.
func (c *Client) Run() {
	c.hub.register <- c
	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	// Heartbeat. Close connection if client does not respond to ping for too long.
	pongWait := c.pingInterval * 5 / 2
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.hub.heartbeat <- c
		return nil
	})

	for {
		wsMessage := &msg.WsMessage{}
		if err := c.conn.ReadJSON(wsMessage); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Errorf("read failed %v", err)
			} else {
				c.logger.Debugf("read closing %v", err)
			}
			return
		}

		switch wsMessage.EventCode {
		case msg.HeartbeatCode:
			event := &msg.HeartbeatClientEvent{}
			if len(wsMessage.EventData) > 0 {
				if err := json.Unmarshal(wsMessage.EventData, event); err != nil {
					c.logger.Warnf("invalid HeartbeatClientEvent %v", err)
					continue
				}
			}
			if event.SentAtMsec > 0 {
				c.logger.Debugf("heartbeat delay[%vms]", time.Now().UnixMilli()-event.SentAtMsec)
			}
			c.hub.heartbeat <- c
		default:
			c.logger.Warnf("invalid eventCode[%v]", wsMessage.EventCode)
		}
	}
}

func (c *Client) writePump() {
	pingTicker := time.NewTicker(c.pingInterval)

	defer func() {
		pingTicker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case wsMessage, ok := <-c.sendWsMessage:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteJSON(wsMessage); err != nil {
				c.logger.Errorf("cannot write json to ws conn %v", err)
				return
			}

		case <-pingTicker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debugf("ping failed %v", err)
				return
			}
		}
	}
}

func newWsMessage(code msg.EventCode, event interface{}) (*msg.WsMessage, error) {
	rawEvent, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return &msg.WsMessage{
		EventCode: code,
		EventData: rawEvent,
	}, nil
}
