package hub

import (
	"github.com/user/floatlab/internal/notebook"
	"github.com/user/floatlab/internal/windows"
)

// Server -> client messages. Every mutation of a session's window registry
// produces a WindowsMessage carrying the full current list, not a delta.

type WindowsMessage struct {
	Type      string           `json:"type"`
	SessionID string           `json:"session_id"`
	List      []windows.Record `json:"list"`
}

type OutputMessage struct {
	Type      string                `json:"type"`
	SessionID string                `json:"session_id"`
	Window    string                `json:"window"`
	Items     []notebook.OutputItem `json:"items"`
}

type StatusMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	State     string `json:"state"`
}

type DirtyMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Dirty     bool   `json:"dirty"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ClientMessage is everything a browser can ask for over the socket. Window
// mutations mirror the registry operations one to one.
type ClientMessage struct {
	Type      string  `json:"type"`
	SessionID string  `json:"session_id,omitempty"`
	Window    string  `json:"window,omitempty"`
	X         float64 `json:"x,omitempty"`
	Y         float64 `json:"y,omitempty"`
	Width     float64 `json:"width,omitempty"`
	Height    float64 `json:"height,omitempty"`
	Kind      string  `json:"kind,omitempty"`
	Title     string  `json:"title,omitempty"`
	Content   string  `json:"content,omitempty"`
}

// Client message types.
const (
	MsgSubscribe  = "subscribe"
	MsgMove       = "move"
	MsgResize     = "resize"
	MsgFront      = "front"
	MsgMinimize   = "minimize"
	MsgCloseWin   = "close_window"
	MsgSetContent = "set_content"
	MsgSetTitle   = "set_title"
	MsgNewWindow  = "new_window"
	MsgExecute    = "execute"
	MsgSave       = "save"
)

type hubBroadcast struct {
	data      []byte
	sessionID string
}
