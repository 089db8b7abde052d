// Package chat runs the agent loop: it alternates model turns with tool
// execution and emits a flat stream of events that the HTTP layer forwards
// as server-sent events.
package chat

import "encoding/json"

// EventType names the event kinds emitted during a chat run.
type EventType string

const (
	EventMessage    EventType = "message"
	EventToolUse    EventType = "tool_use"
	EventToolResult EventType = "tool_result"
	EventDone       EventType = "done"
	EventError      EventType = "error"
)

// Event is one element of the run's output stream. Data holds the payload
// struct matching Type; nil for done.
type Event struct {
	Type EventType
	Data any
}

// MessageData carries one assistant text fragment.
type MessageData struct {
	Content string `json:"content"`
}

// ToolUseData announces a tool call before it executes.
type ToolUseData struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResultData carries a tool call's outcome, paired to its tool_use by ID.
type ToolResultData struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error"`
}

// ErrorData is the terminal payload for a failed run.
type ErrorData struct {
	Message string `json:"message"`
}
