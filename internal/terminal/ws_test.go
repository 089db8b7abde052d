package terminal

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ccdev-ai/ccdev-backend/internal/sandbox"
)

func dialTestTerminal(t *testing.T, sessionID string) *websocket.Conn {
	t.Helper()
	registry := NewRegistry(sandbox.NewMockGateway(), nil, 10, slog.Default())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		registry.ServeWS(w, r, sessionID)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrameUntil(t *testing.T, conn *websocket.Conn, match func(Frame) bool) Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var f Frame
		if err := json.Unmarshal(payload, &f); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if match(f) {
			return f
		}
	}
}

func TestWSWelcomeAndEcho(t *testing.T) {
	conn := dialTestTerminal(t, "ws-session")

	readFrameUntil(t, conn, func(f Frame) bool {
		return f.Type == "output" && strings.Contains(f.Data, "ccdev sandbox terminal")
	})

	input, _ := json.Marshal(clientFrame{Type: "input", Data: "echo over-ws\r"})
	if err := conn.WriteMessage(websocket.TextMessage, input); err != nil {
		t.Fatalf("write: %v", err)
	}
	readFrameUntil(t, conn, func(f Frame) bool {
		return f.Type == "output" && strings.Contains(f.Data, "over-ws\r\n")
	})
}

func TestWSMalformedFrameKeepsConnection(t *testing.T) {
	conn := dialTestTerminal(t, "ws-session")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	readFrameUntil(t, conn, func(f Frame) bool {
		return f.Type == "error" && strings.Contains(f.Data, "malformed")
	})

	// The connection survives and processes the next valid frame.
	input, _ := json.Marshal(clientFrame{Type: "input", Data: "pwd\r"})
	if err := conn.WriteMessage(websocket.TextMessage, input); err != nil {
		t.Fatalf("write: %v", err)
	}
	readFrameUntil(t, conn, func(f Frame) bool {
		return f.Type == "output" && strings.Contains(f.Data, "/\r\n")
	})
}

func TestWSUnknownFrameType(t *testing.T) {
	conn := dialTestTerminal(t, "ws-session")

	payload, _ := json.Marshal(clientFrame{Type: "dance"})
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	readFrameUntil(t, conn, func(f Frame) bool {
		return f.Type == "error" && strings.Contains(f.Data, "unknown frame type")
	})
}

func TestWSResize(t *testing.T) {
	registry := NewRegistry(sandbox.NewMockGateway(), nil, 10, slog.Default())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		registry.ServeWS(w, r, "resize-session")
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	payload, _ := json.Marshal(clientFrame{Type: "resize", Cols: 132, Rows: 50})
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	session := registry.Get("resize-session")
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := session.Snapshot()
		if snap.Cols == 132 && snap.Rows == 50 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("resize not applied: %+v", session.Snapshot())
}
