package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ccdev-ai/ccdev-backend/internal/auth"
	"github.com/ccdev-ai/ccdev-backend/internal/chat"
	"github.com/ccdev-ai/ccdev-backend/internal/config"
	"github.com/ccdev-ai/ccdev-backend/internal/model"
	"github.com/ccdev-ai/ccdev-backend/internal/sandbox"
	"github.com/ccdev-ai/ccdev-backend/internal/terminal"
)

// MaxCodeLength bounds the snippet size accepted by the execute endpoint.
const MaxCodeLength = 100000

type Server struct {
	cfg       config.Config
	gw        sandbox.Gateway
	loop      *chat.Loop
	terminals *terminal.Registry
	auth      *auth.Middleware
	log       *slog.Logger
}

func NewServer(cfg config.Config, gw sandbox.Gateway, loop *chat.Loop, terminals *terminal.Registry, log *slog.Logger) *Server {
	return &Server{
		cfg:       cfg,
		gw:        gw,
		loop:      loop,
		terminals: terminals,
		auth:      auth.NewMiddleware(cfg.APIToken),
		log:       log,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", s.handleHealth)

	// Agent chat
	mux.HandleFunc("POST /api/chat", s.auth.RequireAuthFunc(s.handleChat))

	// Direct execution
	mux.HandleFunc("POST /api/execute", s.auth.RequireAuthFunc(s.handleExecute))

	// Workspace files
	mux.HandleFunc("GET /api/files", s.auth.RequireAuthFunc(s.handleListFiles))
	mux.HandleFunc("GET /api/files/content", s.auth.RequireAuthFunc(s.handleGetFile))
	mux.HandleFunc("PUT /api/files/content", s.auth.RequireAuthFunc(s.handlePutFile))
	mux.HandleFunc("DELETE /api/files", s.auth.RequireAuthFunc(s.handleDeleteFile))
	mux.HandleFunc("POST /api/files/mkdir", s.auth.RequireAuthFunc(s.handleMkdir))

	// Terminal
	mux.HandleFunc("POST /api/terminal", s.auth.RequireAuthFunc(s.handleCreateTerminal))
	mux.HandleFunc("GET /api/terminal/{sessionId}/info", s.auth.RequireAuthFunc(s.handleTerminalInfo))
	mux.HandleFunc("GET /ws/terminal/{sessionId}", s.auth.RequireAuthFunc(s.handleTerminalWS))

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// errorBody is the JSON error envelope shared by all endpoints.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Error: code, Message: message, Details: details})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Chat

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages []chatMessage `json:"messages"`
	Model    string        `json:"model,omitempty"`
	Yolo     bool          `json:"yolo,omitempty"`
}

func (req chatRequest) validate() []string {
	var details []string
	if len(req.Messages) == 0 {
		details = append(details, "messages must not be empty")
	}
	for i, m := range req.Messages {
		if m.Role != "user" && m.Role != "assistant" {
			details = append(details, fmt.Sprintf("messages[%d].role must be user or assistant", i))
		}
		if m.Content == "" {
			details = append(details, fmt.Sprintf("messages[%d].content must not be empty", i))
		}
	}
	if len(req.Messages) > 0 && req.Messages[len(req.Messages)-1].Role != "user" {
		details = append(details, "last message must be from the user")
	}
	return details
}

// handleChat runs the agent loop for one conversation, streaming events as
// SSE. The stream is closed exactly once, after the done or error event.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body", []string{err.Error()})
		return
	}
	if details := req.validate(); len(details) > 0 {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid chat request", details)
		return
	}
	if s.loop == nil {
		writeError(w, http.StatusInternalServerError, "configuration_error", "no model provider configured", nil)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_error", "response writer does not support streaming", nil)
		return
	}

	messages := make([]model.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := model.RoleUser
		if m.Role == "assistant" {
			role = model.RoleAssistant
		}
		messages = append(messages, model.Message{
			Role:    role,
			Content: []model.ContentBlock{model.TextBlock(m.Content)},
		})
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	_, err := s.loop.Run(r.Context(), messages, chat.RunOptions{Model: req.Model, Yolo: req.Yolo}, func(e chat.Event) {
		writeSSE(w, flusher, e)
	})
	if err != nil {
		s.log.Error("chat run failed", "error", err)
	}
}

// writeSSE emits one event in text/event-stream framing and flushes it so
// the client sees tokens as they arrive.
func writeSSE(w io.Writer, flusher http.Flusher, e chat.Event) {
	data := []byte("{}")
	if e.Data != nil {
		if encoded, err := json.Marshal(e.Data); err == nil {
			data = encoded
		}
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
	flusher.Flush()
}

// Execute

type executeRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Timeout  int    `json:"timeout,omitempty"` // seconds
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body", []string{err.Error()})
		return
	}
	var details []string
	if req.Code == "" {
		details = append(details, "code must not be empty")
	}
	if len(req.Code) > MaxCodeLength {
		details = append(details, fmt.Sprintf("code exceeds maximum length of %d", MaxCodeLength))
	}
	if req.Language == "" {
		details = append(details, "language must not be empty")
	}
	if len(details) > 0 {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid execute request", details)
		return
	}

	timeout := time.Duration(s.cfg.ExecTimeoutSeconds) * time.Second
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Second
	}
	result, err := s.gw.Execute(r.Context(), req.Language, req.Code, sandbox.ExecOptions{Timeout: timeout})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "execution_error", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Files

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "/"
	}
	entries, err := s.gw.ListFiles(r.Context(), path)
	if err != nil {
		s.writeFileError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": entries})
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "path parameter required", nil)
		return
	}
	data, err := s.gw.ReadFile(r.Context(), path)
	if err != nil {
		s.writeFileError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

func (s *Server) handlePutFile(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "path parameter required", nil)
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}
	if err := s.gw.WriteFile(r.Context(), path, data); err != nil {
		s.writeFileError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "path parameter required", nil)
		return
	}
	if err := s.gw.DeleteFile(r.Context(), path); err != nil {
		s.writeFileError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMkdir(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path      string `json:"path"`
		Recursive bool   `json:"recursive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body", []string{err.Error()})
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "path must not be empty", nil)
		return
	}
	if err := s.gw.Mkdir(r.Context(), req.Path, req.Recursive); err != nil {
		s.writeFileError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) writeFileError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sandbox.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, sandbox.ErrInvalidPath):
		writeError(w, http.StatusBadRequest, "invalid_path", err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), nil)
	}
}

// Terminal

// handleCreateTerminal mints a fresh session id for clients that do not
// supply their own. Connecting to the WebSocket with an unknown id also
// creates a session; this endpoint just makes the id server-assigned.
func (s *Server) handleCreateTerminal(w http.ResponseWriter, r *http.Request) {
	id := uuid.New().String()
	s.terminals.Get(id)
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleTerminalInfo(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	session, ok := s.terminals.Lookup(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "session not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (s *Server) handleTerminalWS(w http.ResponseWriter, r *http.Request) {
	s.terminals.ServeWS(w, r, r.PathValue("sessionId"))
}
