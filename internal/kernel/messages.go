package kernel

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// The protocol version spoken over the gateway's channels endpoint.
const protocolVersion = "5.3"

// Channels of the kernel messaging protocol that this client touches.
const (
	channelShell = "shell"
	channelIOPub = "iopub"
)

// Kernel execution states reported on the iopub status topic. "dead" is
// synthesized locally when the channel connection is lost.
const (
	StateStarting = "starting"
	StateBusy     = "busy"
	StateIdle     = "idle"
	StateDead     = "dead"
)

type MessageHeader struct {
	MsgID    string `json:"msg_id"`
	MsgType  string `json:"msg_type"`
	Username string `json:"username"`
	Session  string `json:"session"`
	Date     string `json:"date"`
	Version  string `json:"version"`
}

// Message is one frame of the kernel messaging protocol as carried over the
// gateway websocket. Content stays raw until the msg_type is known.
type Message struct {
	Header       MessageHeader   `json:"header"`
	ParentHeader MessageHeader   `json:"parent_header"`
	Metadata     map[string]any  `json:"metadata"`
	Content      json.RawMessage `json:"content"`
	Channel      string          `json:"channel"`
}

func newMessage(session, channel, msgType string, content any) (Message, error) {
	encoded, err := json.Marshal(content)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode %s content: %w", msgType, err)
	}
	return Message{
		Header: MessageHeader{
			MsgID:    uuid.NewString(),
			MsgType:  msgType,
			Username: "floatlab",
			Session:  session,
			Date:     time.Now().UTC().Format(time.RFC3339),
			Version:  protocolVersion,
		},
		Metadata: map[string]any{},
		Content:  encoded,
		Channel:  channel,
	}, nil
}

type executeRequestContent struct {
	Code            string         `json:"code"`
	Silent          bool           `json:"silent"`
	StoreHistory    bool           `json:"store_history"`
	UserExpressions map[string]any `json:"user_expressions"`
	AllowStdin      bool           `json:"allow_stdin"`
	StopOnError     bool           `json:"stop_on_error"`
}

type statusContent struct {
	ExecutionState string `json:"execution_state"`
}

type executeReplyContent struct {
	Status         string `json:"status"`
	ExecutionCount *int   `json:"execution_count"`
}
