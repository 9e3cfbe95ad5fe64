package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/user/floatlab/internal/notebook"
	"github.com/user/floatlab/internal/windows"
)

func TestWindowsMessageMarshal(t *testing.T) {
	msg := WindowsMessage{
		Type:      "windows",
		SessionID: "s-1",
		List: []windows.Record{
			{ID: "w-1", Kind: windows.KindEditor, Title: "code", X: 60, Y: 60, Width: 480, Height: 320, ZOrder: 1, Content: "print(1)"},
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var decoded WindowsMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if decoded.SessionID != "s-1" || len(decoded.List) != 1 {
		t.Fatalf("round trip changed message: %+v", decoded)
	}
	if decoded.List[0].Kind != windows.KindEditor || decoded.List[0].ZOrder != 1 {
		t.Errorf("record fields lost: %+v", decoded.List[0])
	}
}

func TestClientMessageMarshal(t *testing.T) {
	msg := ClientMessage{Type: MsgMove, SessionID: "s-1", Window: "w-1", X: 10, Y: 20}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	var decoded ClientMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if decoded.Type != MsgMove || decoded.Window != "w-1" || decoded.X != 10 || decoded.Y != 20 {
		t.Errorf("round trip changed message: %+v", decoded)
	}
}

func TestBatcherMergesAdjacentStreamItems(t *testing.T) {
	flushed := make(chan []notebook.OutputItem, 1)
	b := NewOutputBatcher(10*time.Millisecond, func(sessionID, windowID string, items []notebook.OutputItem) {
		if sessionID != "s-1" || windowID != "w-1" {
			t.Errorf("unexpected flush target: %s/%s", sessionID, windowID)
		}
		flushed <- items
	})

	b.Add("s-1", "w-1", notebook.OutputItem{Type: notebook.ItemStream, Text: "a"})
	b.Add("s-1", "w-1", notebook.OutputItem{Type: notebook.ItemStream, Text: "b"})
	b.Add("s-1", "w-1", notebook.OutputItem{Type: notebook.ItemError, Text: "Error: \n"})
	b.Add("s-1", "w-1", notebook.OutputItem{Type: notebook.ItemStream, Text: "c"})

	select {
	case items := <-flushed:
		if len(items) != 3 {
			t.Fatalf("expected 3 items, got %d: %#v", len(items), items)
		}
		if items[0].Text != "ab" {
			t.Errorf("adjacent stream items not merged: %#v", items[0])
		}
		if items[1].Type != notebook.ItemError || items[2].Text != "c" {
			t.Errorf("item order lost: %#v", items)
		}
	case <-time.After(time.Second):
		t.Fatal("batcher never flushed")
	}
}

func TestBatcherFlushAll(t *testing.T) {
	flushed := make(chan string, 2)
	b := NewOutputBatcher(time.Hour, func(sessionID, windowID string, items []notebook.OutputItem) {
		flushed <- windowID
	})

	b.Add("s-1", "w-1", notebook.OutputItem{Type: notebook.ItemStream, Text: "x"})
	b.Add("s-1", "w-2", notebook.OutputItem{Type: notebook.ItemStream, Text: "y"})
	b.FlushAll()

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case w := <-flushed:
			got[w] = true
		case <-time.After(time.Second):
			t.Fatal("FlushAll did not flush everything")
		}
	}
	if !got["w-1"] || !got["w-2"] {
		t.Errorf("flushed windows: %v", got)
	}
}

func httpHandlerFunc(h *Hub) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.HandleWebSocket)
	return mux
}

func TestHubSubscribeDeliversSnapshot(t *testing.T) {
	h := New("secret")

	actions := make(chan ClientMessage, 1)
	h.SetOnAction(func(sessionID string, msg ClientMessage) {
		if sessionID != "s-1" {
			t.Errorf("session: got %q", sessionID)
		}
		actions <- msg
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	h.BroadcastWindows("s-1", []windows.Record{{ID: "w-1", Kind: windows.KindEditor, Title: "code"}})
	h.BroadcastStatus("s-1", "idle")

	srv := httptest.NewServer(httpHandlerFunc(h))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=secret"
	dialCtx, dialCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dialCancel()
	conn, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	sub, _ := json.Marshal(ClientMessage{Type: MsgSubscribe, SessionID: "s-1"})
	if err := conn.Write(dialCtx, websocket.MessageText, sub); err != nil {
		t.Fatalf("subscribe write failed: %v", err)
	}

	_, data, err := conn.Read(dialCtx)
	if err != nil {
		t.Fatalf("snapshot read failed: %v", err)
	}
	var snapshot WindowsMessage
	if err := json.Unmarshal(data, &snapshot); err != nil || snapshot.Type != "windows" {
		t.Fatalf("expected windows snapshot, got %s", data)
	}
	if len(snapshot.List) != 1 || snapshot.List[0].ID != "w-1" {
		t.Fatalf("snapshot list: %+v", snapshot.List)
	}

	move, _ := json.Marshal(ClientMessage{Type: MsgMove, SessionID: "s-1", Window: "w-1", X: 5, Y: 6})
	if err := conn.Write(dialCtx, websocket.MessageText, move); err != nil {
		t.Fatalf("move write failed: %v", err)
	}
	select {
	case msg := <-actions:
		if msg.Type != MsgMove || msg.Window != "w-1" || msg.X != 5 {
			t.Errorf("action payload: %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("action callback never fired")
	}
}

func TestHubRejectsBadToken(t *testing.T) {
	h := New("secret")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	srv := httptest.NewServer(httpHandlerFunc(h))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=wrong"
	dialCtx, dialCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer dialCancel()
	if _, _, err := websocket.Dial(dialCtx, url, nil); err == nil {
		t.Fatal("expected dial to fail with a bad token")
	}
}
