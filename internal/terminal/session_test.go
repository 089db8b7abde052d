package terminal

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ccdev-ai/ccdev-backend/internal/sandbox"
)

func newTestSession(t *testing.T) (*Session, *Client) {
	t.Helper()
	return newTestSessionMax(t, DefaultHistoryMax)
}

func newTestSessionMax(t *testing.T, histMax int) (*Session, *Client) {
	t.Helper()
	gw := sandbox.NewMockGateway()
	s := newSession("test-session", gw, nil, histMax, slog.Default())
	c := &Client{session: s, send: make(chan []byte, 256)}
	s.attach(c)
	readUntil(t, c, "$ ") // welcome banner + initial prompt
	return s, c
}

// readUntil drains output frames until the accumulated text contains want.
func readUntil(t *testing.T, c *Client, want string) string {
	t.Helper()
	var acc strings.Builder
	deadline := time.After(2 * time.Second)
	for {
		select {
		case payload := <-c.send:
			var f Frame
			if err := json.Unmarshal(payload, &f); err != nil {
				t.Fatalf("bad frame: %v", err)
			}
			if f.Type == "output" {
				acc.WriteString(f.Data)
			}
			if strings.Contains(acc.String(), want) {
				return acc.String()
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q, got %q", want, acc.String())
		}
	}
}

func waitIdle(t *testing.T, s *Session) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !s.Snapshot().Executing {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("session still executing")
}

func TestEchoCommand(t *testing.T) {
	s, c := newTestSession(t)
	s.HandleInput("echo hello\r")
	out := readUntil(t, c, "hello\r\n")
	// The typed characters echo back before the command output.
	if !strings.Contains(out, "echo hello") {
		t.Errorf("typed characters not echoed: %q", out)
	}
	readUntil(t, c, "$ ") // fresh prompt after the command
	waitIdle(t, s)
	if got := s.Snapshot().History; len(got) != 1 || got[0] != "echo hello" {
		t.Errorf("history = %v", got)
	}
}

func TestBackspaceEditing(t *testing.T) {
	s, c := newTestSession(t)
	s.HandleInput("echoX\x7f hi\r")
	readUntil(t, c, "hi\r\n")
	waitIdle(t, s)
	if got := s.Snapshot().History; len(got) != 1 || got[0] != "echo hi" {
		t.Errorf("history = %v", got)
	}
}

func TestBackspaceOnEmptyLine(t *testing.T) {
	s, c := newTestSession(t)
	s.HandleInput("\x7f\x7f")
	s.HandleInput("pwd\r")
	readUntil(t, c, "/\r\n")
}

func TestEmptyLineNoHistory(t *testing.T) {
	s, c := newTestSession(t)
	s.HandleInput("abc\x7f\x7f\x7f\r")
	readUntil(t, c, "$ ")
	if got := s.Snapshot().History; len(got) != 0 {
		t.Errorf("history = %v, want empty", got)
	}
}

func TestCtrlCClearsLine(t *testing.T) {
	s, c := newTestSession(t)
	s.HandleInput("garbage\x03")
	readUntil(t, c, "^C")
	s.HandleInput("pwd\r")
	readUntil(t, c, "/\r\n")
	waitIdle(t, s)
	if got := s.Snapshot().History; len(got) != 1 || got[0] != "pwd" {
		t.Errorf("history = %v", got)
	}
}

func TestHistoryDedup(t *testing.T) {
	s, c := newTestSession(t)
	for i := 0; i < 3; i++ {
		s.HandleInput("pwd\r")
		readUntil(t, c, "/\r\n")
		waitIdle(t, s)
	}
	if got := s.Snapshot().History; len(got) != 1 {
		t.Errorf("history = %v, want single entry", got)
	}
}

func TestHistoryCap(t *testing.T) {
	s, c := newTestSessionMax(t, 2)
	for _, cmd := range []string{"echo a", "echo b", "echo c"} {
		s.HandleInput(cmd + "\r")
		readUntil(t, c, "$ ")
		waitIdle(t, s)
	}
	got := s.Snapshot().History
	if len(got) != 2 || got[0] != "echo b" || got[1] != "echo c" {
		t.Errorf("history = %v, want [echo b, echo c]", got)
	}
}

func TestHistoryNavigation(t *testing.T) {
	s, c := newTestSession(t)
	for _, cmd := range []string{"echo one", "echo two"} {
		s.HandleInput(cmd + "\r")
		readUntil(t, c, "$ ")
		waitIdle(t, s)
	}

	// Up recalls the newest entry, up again the older one; further
	// presses at the oldest entry change nothing.
	s.HandleInput("\x1b[A")
	readUntil(t, c, "echo two")
	s.HandleInput("\x1b[A")
	readUntil(t, c, "echo one")
	s.HandleInput("\x1b[A")
	s.mu.Lock()
	line := string(s.input)
	s.mu.Unlock()
	if line != "echo one" {
		t.Errorf("line after repeated up = %q", line)
	}

	// Down walks back toward the present and restores the empty line.
	s.HandleInput("\x1b[B")
	readUntil(t, c, "echo two")
	s.HandleInput("\x1b[B")
	s.mu.Lock()
	line = string(s.input)
	idx := s.histIdx
	s.mu.Unlock()
	if line != "" || idx != -1 {
		t.Errorf("line = %q, histIdx = %d after down past newest", line, idx)
	}

	// Down with no navigation in progress is a no-op.
	s.HandleInput("\x1b[B")
	s.mu.Lock()
	idx = s.histIdx
	s.mu.Unlock()
	if idx != -1 {
		t.Errorf("histIdx = %d, want -1", idx)
	}
}

func TestHistoryRecallRunsCommand(t *testing.T) {
	s, c := newTestSession(t)
	s.HandleInput("echo replay\r")
	readUntil(t, c, "replay\r\n")
	waitIdle(t, s)

	s.HandleInput("\x1b[A\r")
	readUntil(t, c, "replay\r\n")
	waitIdle(t, s)
	if got := s.Snapshot().History; len(got) != 1 {
		t.Errorf("history = %v, want deduped single entry", got)
	}
}

func TestCdAndPwd(t *testing.T) {
	s, c := newTestSession(t)
	if err := s.gw.WriteFile(context.Background(), "/proj/a.txt", []byte("x")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	s.HandleInput("cd /proj\r")
	waitIdle(t, s)
	if got := s.Snapshot().Cwd; got != "/proj" {
		t.Errorf("cwd = %q", got)
	}

	s.HandleInput("pwd\r")
	readUntil(t, c, "/proj\r\n")
}

func TestCdMissingDirectory(t *testing.T) {
	s, c := newTestSession(t)
	s.HandleInput("cd /nope\r")
	readUntil(t, c, "cd: no such directory: /nope")
	waitIdle(t, s)
	if got := s.Snapshot().Cwd; got != "/" {
		t.Errorf("cwd = %q, want unchanged /", got)
	}
}

func TestLsAndCat(t *testing.T) {
	s, c := newTestSession(t)
	if err := s.gw.WriteFile(context.Background(), "/notes.txt", []byte("line1\nline2")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	s.HandleInput("ls\r")
	readUntil(t, c, "notes.txt")
	waitIdle(t, s)

	s.HandleInput("cat notes.txt\r")
	out := readUntil(t, c, "line2")
	if !strings.Contains(out, "line1\r\nline2") {
		t.Errorf("cat output = %q, want CRLF-normalized", out)
	}
}

func TestInputDroppedWhileExecuting(t *testing.T) {
	s, _ := newTestSession(t)
	s.mu.Lock()
	s.executing = true
	s.mu.Unlock()

	s.HandleInput("echo should-not-run\r")
	s.mu.Lock()
	line := string(s.input)
	history := len(s.history)
	s.mu.Unlock()
	if line != "" || history != 0 {
		t.Errorf("input processed during execution: line=%q history=%d", line, history)
	}

	s.mu.Lock()
	s.executing = false
	s.mu.Unlock()
}

func TestResizeAnytime(t *testing.T) {
	s, _ := newTestSession(t)
	s.mu.Lock()
	s.executing = true
	s.mu.Unlock()

	s.Resize(120, 40)
	snap := s.Snapshot()
	if snap.Cols != 120 || snap.Rows != 40 {
		t.Errorf("size = %dx%d, want 120x40", snap.Cols, snap.Rows)
	}

	// Zero dimensions are ignored.
	s.Resize(0, 0)
	snap = s.Snapshot()
	if snap.Cols != 120 || snap.Rows != 40 {
		t.Errorf("size changed on zero resize: %dx%d", snap.Cols, snap.Rows)
	}
}

func TestDelegatedCommandOutput(t *testing.T) {
	s, c := newTestSession(t)
	// Unknown commands go to the gateway; the mock labels its output.
	s.HandleInput("make build\r")
	readUntil(t, c, "[mock sandbox]")
}

func TestRegistryReusesSessions(t *testing.T) {
	r := NewRegistry(sandbox.NewMockGateway(), nil, 10, slog.Default())
	a := r.Get("s1")
	b := r.Get("s1")
	if a != b {
		t.Error("same id produced different sessions")
	}
	if _, ok := r.Lookup("s2"); ok {
		t.Error("Lookup created a session")
	}
	if len(r.List()) != 1 {
		t.Errorf("List = %v", r.List())
	}
}
