// Package model defines the provider-neutral message types exchanged with a
// language model, plus the Provider interface implemented by concrete
// backends (see the anthropic sub-package).
package model

import (
	"context"
	"encoding/json"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType discriminates the content block union.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ToolUse is a structured request from the model to invoke a named tool.
// IDs are opaque and model-assigned; they are unique within a turn.
type ToolUse struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult carries the outcome of one tool call back to the model.
type ToolResult struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error"`
}

// ContentBlock is one element of a message body. Exactly one of the payload
// fields is set, selected by Type.
type ContentBlock struct {
	Type       BlockType   `json:"type"`
	Text       string      `json:"text,omitempty"`
	ToolUse    *ToolUse    `json:"tool_use,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// TextBlock builds a plain text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolUseBlock builds a tool-use content block.
func ToolUseBlock(tu ToolUse) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ToolUse: &tu}
}

// ToolResultBlock builds a tool-result content block.
func ToolResultBlock(tr ToolResult) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolResult: &tr}
}

// Message is one turn of a conversation.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// UserText builds a user message with a single text block.
func UserText(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock(text)}}
}

// ToolUses returns the tool-use blocks of a message, in emission order.
func (m Message) ToolUses() []ToolUse {
	var uses []ToolUse
	for _, block := range m.Content {
		if block.Type == BlockToolUse && block.ToolUse != nil {
			uses = append(uses, *block.ToolUse)
		}
	}
	return uses
}

// Text concatenates the text blocks of a message.
func (m Message) Text() string {
	var out string
	for _, block := range m.Content {
		if block.Type == BlockText {
			out += block.Text
		}
	}
	return out
}

// SchemaProperty describes one field of a tool's input schema.
type SchemaProperty struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// InputSchema is a JSON-schema-style object description. Field names are a
// wire contract with the provider and must remain stable.
type InputSchema struct {
	Properties map[string]SchemaProperty `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

// ToolSpec declares one callable tool to the model.
type ToolSpec struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// StopReason reports why the model ended its turn.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

// Request is a single model round-trip: the conversation so far plus the
// tool declarations for this turn.
type Request struct {
	Model     string
	System    string
	MaxTokens int
	Messages  []Message
	Tools     []ToolSpec
}

// Turn is the model's complete response to one Request.
type Turn struct {
	Message    Message
	StopReason StopReason
}

// Provider streams one model turn. onDelta is invoked for each text fragment
// as it arrives over the wire; the complete assistant message is returned
// once the turn ends. Implementations must not retry failed calls.
type Provider interface {
	Stream(ctx context.Context, req Request, onDelta func(text string)) (*Turn, error)
}
