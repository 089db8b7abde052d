// Package terminal implements durable server-side terminal sessions: a line
// editor with history, a set of built-in commands, and delegation of
// everything else to the sandbox gateway. Sessions outlive WebSocket
// connections; clients attach and detach freely.
package terminal

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/ccdev-ai/ccdev-backend/internal/historydb"
	"github.com/ccdev-ai/ccdev-backend/internal/sandbox"
)

const (
	defaultCols = 80
	defaultRows = 24

	// DefaultHistoryMax caps the in-memory history ring per session.
	DefaultHistoryMax = 100
)

// Frame is a server-to-client message. Data carries terminal bytes for
// output frames and the error text for error frames.
type Frame struct {
	Type     string `json:"type"` // output, error, exit
	Data     string `json:"data,omitempty"`
	ExitCode int    `json:"exitCode,omitempty"`
}

// Session is one terminal's durable state. All mutation goes through the
// mutex; command execution runs outside it so output can stream while the
// session keeps accepting resize frames.
type Session struct {
	ID string

	gw    sandbox.Gateway
	store *historydb.Store
	log   *slog.Logger

	mu         sync.Mutex
	cols, rows uint16
	cwd        string
	input      []rune
	history    []string // oldest first
	histIdx    int      // -1 when not navigating
	savedInput string
	histMax    int
	executing  bool
	clients    map[*Client]bool
}

func newSession(id string, gw sandbox.Gateway, store *historydb.Store, histMax int, log *slog.Logger) *Session {
	if histMax <= 0 {
		histMax = DefaultHistoryMax
	}
	s := &Session{
		ID:      id,
		gw:      gw,
		store:   store,
		log:     log,
		cols:    defaultCols,
		rows:    defaultRows,
		cwd:     "/",
		histIdx: -1,
		histMax: histMax,
		clients: make(map[*Client]bool),
	}
	if store != nil {
		history, err := store.Recent(id, histMax)
		if err != nil {
			log.Warn("history load failed", "session", id, "error", err)
		} else {
			s.history = history
		}
	}
	return s
}

// Info is a point-in-time snapshot of a session for the info endpoint.
type Info struct {
	ID        string   `json:"id"`
	Cwd       string   `json:"cwd"`
	Cols      uint16   `json:"cols"`
	Rows      uint16   `json:"rows"`
	Executing bool     `json:"executing"`
	Clients   int      `json:"clients"`
	History   []string `json:"history"`
}

// Snapshot returns the session's current state.
func (s *Session) Snapshot() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := make([]string, len(s.history))
	copy(history, s.history)
	return Info{
		ID:        s.ID,
		Cwd:       s.cwd,
		Cols:      s.cols,
		Rows:      s.rows,
		Executing: s.executing,
		Clients:   len(s.clients),
		History:   history,
	}
}

func (s *Session) attach(c *Client) {
	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()
	c.enqueue(encodeFrame(Frame{Type: "output", Data: s.banner() + s.prompt()}))
}

func (s *Session) detach(c *Client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

func (s *Session) banner() string {
	return "\x1b[1;36mccdev sandbox terminal\x1b[0m\r\n" +
		"Type \x1b[1mhelp\x1b[0m for built-in commands.\r\n\r\n"
}

func (s *Session) prompt() string {
	return "\x1b[1;32muser@ccdev\x1b[0m:\x1b[1;34m" + s.cwd + "\x1b[0m$ "
}

// Resize updates the session's terminal dimensions. Allowed at any time,
// including mid-command.
func (s *Session) Resize(cols, rows uint16) {
	if cols == 0 || rows == 0 {
		return
	}
	s.mu.Lock()
	s.cols, s.rows = cols, rows
	s.mu.Unlock()
}

// HandleInput processes raw keyboard input from a client. Input arriving
// while a command is running is dropped; the line editor resumes when the
// command finishes and the prompt is reprinted.
func (s *Session) HandleInput(data string) {
	s.mu.Lock()
	if s.executing {
		s.mu.Unlock()
		return
	}

	rest := data
	for len(rest) > 0 {
		// Arrow keys arrive as 3-byte CSI sequences.
		switch {
		case strings.HasPrefix(rest, "\x1b[A"):
			s.historyUp()
			rest = rest[3:]
			continue
		case strings.HasPrefix(rest, "\x1b[B"):
			s.historyDown()
			rest = rest[3:]
			continue
		case strings.HasPrefix(rest, "\x1b[C"), strings.HasPrefix(rest, "\x1b[D"):
			// Cursor movement within the line is not supported yet.
			rest = rest[3:]
			continue
		}

		r := []rune(rest)[0]
		rest = rest[len(string(r)):]

		switch r {
		case '\r', '\n':
			line := strings.TrimSpace(string(s.input))
			s.input = s.input[:0]
			s.histIdx = -1
			s.savedInput = ""
			s.broadcastLocked("\r\n")
			if line == "" {
				s.broadcastLocked(s.prompt())
				continue
			}
			s.pushHistory(line)
			s.executing = true
			go s.runCommand(line)
			// Remaining input in this chunk is dropped, matching the
			// mid-execution rule.
			s.mu.Unlock()
			return
		case 0x7f, '\b':
			if len(s.input) > 0 {
				s.input = s.input[:len(s.input)-1]
				s.broadcastLocked("\b \b")
			}
		case 0x03: // ctrl-C clears the pending line
			s.input = s.input[:0]
			s.histIdx = -1
			s.savedInput = ""
			s.broadcastLocked("^C\r\n" + s.prompt())
		default:
			if r >= 0x20 {
				s.input = append(s.input, r)
				s.broadcastLocked(string(r))
			}
		}
	}
	s.mu.Unlock()
}

// historyUp recalls the previous history entry. Repeated presses at the
// oldest entry are no-ops. Caller holds the mutex.
func (s *Session) historyUp() {
	if len(s.history) == 0 {
		return
	}
	switch {
	case s.histIdx == -1:
		s.savedInput = string(s.input)
		s.histIdx = len(s.history) - 1
	case s.histIdx > 0:
		s.histIdx--
	default:
		return
	}
	s.replaceLine(s.history[s.histIdx])
}

// historyDown moves toward the present; past the newest entry it restores
// whatever was typed before navigation began. Caller holds the mutex.
func (s *Session) historyDown() {
	if s.histIdx == -1 {
		return
	}
	s.histIdx++
	if s.histIdx >= len(s.history) {
		s.histIdx = -1
		s.replaceLine(s.savedInput)
		return
	}
	s.replaceLine(s.history[s.histIdx])
}

// replaceLine redraws the edit line with new contents. Caller holds the
// mutex.
func (s *Session) replaceLine(line string) {
	s.input = []rune(line)
	s.broadcastLocked("\r\x1b[K" + s.prompt() + line)
}

// pushHistory appends a committed command, skipping consecutive duplicates
// and evicting the oldest entry past the cap. Caller holds the mutex.
func (s *Session) pushHistory(line string) {
	if len(s.history) > 0 && s.history[len(s.history)-1] == line {
		return
	}
	s.history = append(s.history, line)
	if len(s.history) > s.histMax {
		s.history = s.history[len(s.history)-s.histMax:]
	}
	if s.store != nil {
		if err := s.store.Append(s.ID, line); err != nil {
			s.log.Warn("history append failed", "session", s.ID, "error", err)
		} else if err := s.store.Trim(s.ID, s.histMax); err != nil {
			s.log.Warn("history trim failed", "session", s.ID, "error", err)
		}
	}
}

// runCommand executes one committed line and reprints the prompt. It runs
// outside the mutex; the executing flag keeps the line editor quiet.
func (s *Session) runCommand(line string) {
	s.execute(line)
	s.mu.Lock()
	s.executing = false
	s.broadcastLocked(s.prompt())
	s.mu.Unlock()
}

// output broadcasts terminal output to every attached client.
func (s *Session) output(data string) {
	s.mu.Lock()
	s.broadcastLocked(data)
	s.mu.Unlock()
}

func (s *Session) sendFrame(f Frame) {
	s.mu.Lock()
	s.broadcastFrameLocked(f)
	s.mu.Unlock()
}

func (s *Session) broadcastLocked(data string) {
	s.broadcastFrameLocked(Frame{Type: "output", Data: data})
}

func (s *Session) broadcastFrameLocked(f Frame) {
	payload := encodeFrame(f)
	for c := range s.clients {
		c.enqueue(payload)
	}
}

func encodeFrame(f Frame) []byte {
	data, _ := json.Marshal(f)
	return data
}

// crlf normalizes bare newlines for raw terminal rendering.
func crlf(data string) string {
	data = strings.ReplaceAll(data, "\r\n", "\n")
	return strings.ReplaceAll(data, "\n", "\r\n")
}
