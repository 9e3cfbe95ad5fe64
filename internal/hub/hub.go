package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"github.com/user/floatlab/internal/notebook"
	"github.com/user/floatlab/internal/windows"
)

const defaultBatchInterval = 100 * time.Millisecond

// Hub fans session state out to every connected browser and routes their
// requests back to the session layer. Kernel stream output is batched per
// window before broadcasting.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan hubBroadcast
	token      string
	mu         sync.RWMutex

	stateMu     sync.RWMutex
	windowLists map[string][]windows.Record
	kernelState map[string]string

	batcher *OutputBatcher

	// onAction receives every client request that mutates or executes; the
	// session manager dispatches on the message type.
	onAction func(sessionID string, msg ClientMessage)

	ctxWrap atomic.Pointer[context.Context]
	running atomic.Bool
}

func New(token string) *Hub {
	h := &Hub{
		clients:     make(map[string]*Client),
		register:    make(chan *Client, 16),
		unregister:  make(chan *Client, 16),
		broadcast:   make(chan hubBroadcast, 256),
		token:       token,
		windowLists: make(map[string][]windows.Record),
		kernelState: make(map[string]string),
	}
	h.batcher = NewOutputBatcher(defaultBatchInterval, func(sessionID, windowID string, items []notebook.OutputItem) {
		h.send(sessionID, OutputMessage{Type: "output", SessionID: sessionID, Window: windowID, Items: items})
	})
	return h
}

// SetOnAction wires the session layer in. Must be called before Run.
func (h *Hub) SetOnAction(fn func(sessionID string, msg ClientMessage)) {
	h.onAction = fn
}

func (h *Hub) getContext() context.Context {
	if ctx := h.ctxWrap.Load(); ctx != nil {
		return *ctx
	}
	return context.Background()
}

func (h *Hub) Run(ctx context.Context) {
	h.ctxWrap.Store(&ctx)
	h.running.Store(true)
	defer h.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			h.batcher.FlushAll()
			h.mu.Lock()
			for _, c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[string]*Client)
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			go client.writePump(h.getContext())
			go client.readPump(h.getContext())
			slog.Info("client connected", "client_id", client.id, "total", h.ClientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mu.Unlock()
			slog.Info("client disconnected", "client_id", client.id, "total", h.ClientCount())

		case msg := <-h.broadcast:
			h.mu.RLock()
			for _, c := range h.clients {
				if !c.wantsSession(msg.sessionID) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					slog.Warn("client send buffer full, dropping message", "client_id", c.id)
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if h.token != "" && token != h.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}

	client := newClient(conn, h)
	select {
	case h.register <- client:
	default:
		slog.Warn("hub not accepting connections")
		conn.Close(websocket.StatusTryAgainLater, "server busy")
	}
}

// BroadcastWindows replaces the cached list for a session and pushes it to
// subscribed clients. This is the registry observer sink.
func (h *Hub) BroadcastWindows(sessionID string, list []windows.Record) {
	h.stateMu.Lock()
	h.windowLists[sessionID] = list
	h.stateMu.Unlock()

	h.send(sessionID, WindowsMessage{Type: "windows", SessionID: sessionID, List: list})
}

// BroadcastOutput queues one display item; items are flushed per window on
// the batch interval.
func (h *Hub) BroadcastOutput(sessionID, windowID string, item notebook.OutputItem) {
	h.batcher.Add(sessionID, windowID, item)
}

func (h *Hub) BroadcastStatus(sessionID, state string) {
	h.stateMu.Lock()
	h.kernelState[sessionID] = state
	h.stateMu.Unlock()

	h.send(sessionID, StatusMessage{Type: "status", SessionID: sessionID, State: state})
}

func (h *Hub) BroadcastDirty(sessionID string, dirty bool) {
	h.send(sessionID, DirtyMessage{Type: "dirty", SessionID: sessionID, Dirty: dirty})
}

// DropSession forgets cached state for a closed session.
func (h *Hub) DropSession(sessionID string) {
	h.stateMu.Lock()
	delete(h.windowLists, sessionID)
	delete(h.kernelState, sessionID)
	h.stateMu.Unlock()
}

// FlushPendingOutput forces queued output out, used when an execution ends.
func (h *Hub) FlushPendingOutput() {
	h.batcher.FlushAll()
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) send(sessionID string, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Warn("failed to marshal hub message", "error", err)
		return
	}
	select {
	case h.broadcast <- hubBroadcast{data: data, sessionID: sessionID}:
	default:
		slog.Warn("broadcast channel full, dropping message")
	}
}

// sendSnapshot delivers the current window list and kernel state for one
// session directly to a freshly subscribed client.
func (h *Hub) sendSnapshot(c *Client, sessionID string) {
	h.stateMu.RLock()
	list, ok := h.windowLists[sessionID]
	state := h.kernelState[sessionID]
	h.stateMu.RUnlock()
	if !ok {
		return
	}

	for _, msg := range []any{
		WindowsMessage{Type: "windows", SessionID: sessionID, List: list},
		StatusMessage{Type: "status", SessionID: sessionID, State: state},
	} {
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		select {
		case c.send <- data:
		default:
		}
	}
}

func (h *Hub) SendError(c *Client, message string) {
	data, err := json.Marshal(ErrorMessage{Type: "error", Message: message})
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *Hub) handleAction(sessionID string, msg ClientMessage) {
	if h.onAction != nil {
		h.onAction(sessionID, msg)
	}
}

func (h *Hub) isRunning() bool {
	return h.running.Load()
}

func (h *Hub) unregisterClient(c *Client) {
	if !h.isRunning() {
		c.conn.Close(websocket.StatusNormalClosure, "")
		return
	}
	select {
	case h.unregister <- c:
	default:
		slog.Warn("unregister channel full, forcing close", "client_id", c.id)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}
}
