package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

type Client struct {
	id            string
	conn          *websocket.Conn
	send          chan []byte
	hub           *Hub
	subMu         sync.RWMutex
	subscribeAll  bool
	subscriptions map[string]struct{}
}

func newClient(conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		id:            uuid.NewString(),
		conn:          conn,
		send:          make(chan []byte, 256),
		hub:           hub,
		subscribeAll:  true,
		subscriptions: make(map[string]struct{}),
	}
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregisterClient(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(1 << 20)

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && ctx.Err() == nil {
				slog.Warn("client read error", "client_id", c.id, "error", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("invalid client message", "client_id", c.id, "error", err)
			c.hub.SendError(c, "invalid message format")
			continue
		}

		switch msg.Type {
		case MsgSubscribe:
			c.subscribe(msg.SessionID)
			if msg.SessionID != "" {
				c.hub.sendSnapshot(c, msg.SessionID)
			}
		case MsgMove, MsgResize, MsgFront, MsgMinimize, MsgCloseWin,
			MsgSetContent, MsgSetTitle, MsgNewWindow, MsgExecute, MsgSave:
			if msg.SessionID == "" {
				c.hub.SendError(c, "session_id is required")
				continue
			}
			c.hub.handleAction(msg.SessionID, msg)
		default:
			c.hub.SendError(c, "unknown message type: "+msg.Type)
		}
	}
}

func (c *Client) subscribe(sessionID string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if sessionID == "" {
		c.subscribeAll = true
		c.subscriptions = make(map[string]struct{})
		return
	}
	c.subscribeAll = false
	c.subscriptions[sessionID] = struct{}{}
}

func (c *Client) wantsSession(sessionID string) bool {
	if sessionID == "" {
		return true
	}
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	if c.subscribeAll {
		return true
	}
	_, ok := c.subscriptions[sessionID]
	return ok
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		}
	}
}
