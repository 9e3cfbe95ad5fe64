package kernel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/user/floatlab/internal/notebook"
)

// Connection attempts against the gateway are bounded, with a linearly
// increasing delay between them.
const (
	startAttempts     = 5
	startBackoffStep  = 500 * time.Millisecond
	restRequestTimeout = 15 * time.Second
)

var ErrNotConnected = errors.New("kernel is not connected")

// Client drives one kernel on a Jupyter Kernel Gateway: REST for lifecycle,
// a websocket channel for execution traffic.
type Client struct {
	gatewayURL string
	kernelName string
	token      string
	sessionID  string
	httpc      *http.Client

	mu         sync.Mutex
	kernelID   string
	conn       *websocket.Conn
	cancelRead context.CancelFunc
	pending    map[string]*execution
	state      string
	onStatus   func(state string)
}

type execution struct {
	onItem func(notebook.OutputItem)
	done   chan error
	count  int
}

func NewClient(gatewayURL, kernelName, token string) *Client {
	return &Client{
		gatewayURL: gatewayURL,
		kernelName: kernelName,
		token:      token,
		sessionID:  uuid.NewString(),
		httpc:      &http.Client{Timeout: restRequestTimeout},
		pending:    make(map[string]*execution),
		state:      StateStarting,
	}
}

// OnStatus registers the callback for kernel state transitions. Must be set
// before Start.
func (c *Client) OnStatus(fn func(state string)) {
	c.mu.Lock()
	c.onStatus = fn
	c.mu.Unlock()
}

// ID returns the gateway-assigned kernel id, empty before Start succeeds.
func (c *Client) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kernelID
}

// State returns the last observed execution state.
func (c *Client) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start creates a kernel and connects its channels, retrying up to
// startAttempts times and surfacing the final error once they are exhausted.
func (c *Client) Start(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= startAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(startDelay(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := c.connect(ctx); err != nil {
			lastErr = err
			slog.Warn("kernel start attempt failed", "attempt", attempt, "error", err)
			continue
		}
		return nil
	}
	return fmt.Errorf("kernel start failed after %d attempts: %w", startAttempts, lastErr)
}

// startDelay is the pause before the given attempt: 500ms before the second,
// 1s before the third, and so on.
func startDelay(attempt int) time.Duration {
	return time.Duration(attempt-1) * startBackoffStep
}

func (c *Client) connect(ctx context.Context) error {
	var created struct {
		ID string `json:"id"`
	}
	if err := c.rest(ctx, http.MethodPost, "/api/kernels", map[string]string{"name": c.kernelName}, &created); err != nil {
		return err
	}

	wsURL, err := c.channelsURL(created.ID)
	if err != nil {
		return err
	}
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: c.authHeader(),
	})
	if err != nil {
		// The kernel exists but its channels are unreachable; drop it so
		// retries do not leak kernels on the gateway.
		if derr := c.rest(ctx, http.MethodDelete, "/api/kernels/"+created.ID, nil, nil); derr != nil {
			slog.Warn("failed to clean up unconnected kernel", "kernel_id", created.ID, "error", derr)
		}
		return fmt.Errorf("failed to connect kernel channels: %w", err)
	}
	conn.SetReadLimit(1 << 24)

	readCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.kernelID = created.ID
	c.conn = conn
	c.cancelRead = cancel
	c.mu.Unlock()

	go c.readLoop(readCtx, conn)
	return nil
}

// Execute runs code on the kernel, forwarding each display item to onItem as
// it arrives. It returns the execution count once the kernel goes idle for
// this request.
func (c *Client) Execute(ctx context.Context, code string, onItem func(notebook.OutputItem)) (int, error) {
	c.mu.Lock()
	conn := c.conn
	session := c.sessionID
	c.mu.Unlock()
	if conn == nil {
		return 0, ErrNotConnected
	}

	msg, err := newMessage(session, channelShell, "execute_request", executeRequestContent{
		Code:            code,
		StoreHistory:    true,
		UserExpressions: map[string]any{},
		StopOnError:     true,
	})
	if err != nil {
		return 0, err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to encode execute request: %w", err)
	}

	exec := &execution{onItem: onItem, done: make(chan error, 1)}
	c.mu.Lock()
	c.pending[msg.Header.MsgID] = exec
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.Header.MsgID)
		c.mu.Unlock()
	}()

	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return 0, fmt.Errorf("failed to send execute request: %w", err)
	}

	select {
	case err := <-exec.done:
		return exec.count, err
	case <-ctx.Done():
		return exec.count, ctx.Err()
	}
}

// Interrupt asks the gateway to signal the kernel.
func (c *Client) Interrupt(ctx context.Context) error {
	id := c.ID()
	if id == "" {
		return ErrNotConnected
	}
	return c.rest(ctx, http.MethodPost, "/api/kernels/"+id+"/interrupt", nil, nil)
}

// Restart restarts the kernel process behind the existing channels.
func (c *Client) Restart(ctx context.Context) error {
	id := c.ID()
	if id == "" {
		return ErrNotConnected
	}
	return c.rest(ctx, http.MethodPost, "/api/kernels/"+id+"/restart", nil, nil)
}

// Shutdown tears the channel connection down and deletes the kernel on the
// gateway. Safe to call more than once.
func (c *Client) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	cancel := c.cancelRead
	id := c.kernelID
	c.conn = nil
	c.cancelRead = nil
	c.kernelID = ""
	c.state = StateDead
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "shutdown")
	}
	if id == "" {
		return nil
	}
	if err := c.rest(ctx, http.MethodDelete, "/api/kernels/"+id, nil, nil); err != nil {
		return fmt.Errorf("failed to delete kernel %s: %w", id, err)
	}
	return nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("kernel channel closed", "error", err)
				c.connectionLost(err)
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("undecodable kernel message", "error", err)
			continue
		}
		c.handleMessage(msg)
	}
}

// handleMessage routes one incoming frame: display outputs go to the pending
// execution they belong to, status transitions go to the session, and the
// idle status with a matching parent completes an execution.
func (c *Client) handleMessage(msg Message) {
	switch msg.Channel {
	case channelIOPub:
		c.handleIOPub(msg)
	case channelShell:
		if msg.Header.MsgType == "execute_reply" {
			var content executeReplyContent
			if err := json.Unmarshal(msg.Content, &content); err != nil {
				return
			}
			c.mu.Lock()
			if exec, ok := c.pending[msg.ParentHeader.MsgID]; ok && content.ExecutionCount != nil {
				exec.count = *content.ExecutionCount
			}
			c.mu.Unlock()
		}
	}
}

func (c *Client) handleIOPub(msg Message) {
	switch msg.Header.MsgType {
	case "status":
		var content statusContent
		if err := json.Unmarshal(msg.Content, &content); err != nil {
			return
		}
		c.mu.Lock()
		c.state = content.ExecutionState
		onStatus := c.onStatus
		exec, pendingOK := c.pending[msg.ParentHeader.MsgID]
		c.mu.Unlock()

		if onStatus != nil {
			onStatus(content.ExecutionState)
		}
		if pendingOK && content.ExecutionState == StateIdle {
			select {
			case exec.done <- nil:
			default:
			}
		}

	case "stream", "execute_result", "display_data", "error":
		var out notebook.Output
		if err := json.Unmarshal(msg.Content, &out); err != nil {
			slog.Warn("undecodable kernel output", "msg_type", msg.Header.MsgType, "error", err)
			return
		}
		out.OutputType = msg.Header.MsgType

		c.mu.Lock()
		exec, ok := c.pending[msg.ParentHeader.MsgID]
		if ok && out.ExecutionCount != nil {
			exec.count = *out.ExecutionCount
		}
		c.mu.Unlock()
		if !ok {
			return
		}
		if item, converted := notebook.ConvertOutput(out); converted && exec.onItem != nil {
			exec.onItem(item)
		}
	}
}

// connectionLost marks the kernel dead and fails every in-flight execution.
func (c *Client) connectionLost(err error) {
	c.mu.Lock()
	c.state = StateDead
	c.conn = nil
	onStatus := c.onStatus
	pending := c.pending
	c.pending = make(map[string]*execution)
	c.mu.Unlock()

	if onStatus != nil {
		onStatus(StateDead)
	}
	for _, exec := range pending {
		select {
		case exec.done <- fmt.Errorf("kernel connection lost: %w", err):
		default:
		}
	}
}

func (c *Client) rest(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.gatewayURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header = c.authHeader()
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway request %s %s returned %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(detail))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return nil
}

func (c *Client) authHeader() http.Header {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "token "+c.token)
	}
	return h
}

func (c *Client) channelsURL(kernelID string) (string, error) {
	u, err := url.Parse(c.gatewayURL)
	if err != nil {
		return "", fmt.Errorf("invalid gateway URL %q: %w", c.gatewayURL, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/api/kernels/" + kernelID + "/channels"
	return u.String(), nil
}
