// Package anthropic adapts the Anthropic Messages API to the model.Provider
// interface.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ccdev-ai/ccdev-backend/internal/model"
)

// Provider calls the Anthropic Messages API with streaming enabled.
type Provider struct {
	client sdk.Client
}

// New creates a Provider authenticated with the given API key. Extra request
// options (base URL overrides, custom HTTP client) are passed through to the
// SDK.
func New(apiKey string, opts ...option.RequestOption) *Provider {
	all := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Provider{client: sdk.NewClient(all...)}
}

// Stream implements model.Provider. Text deltas are forwarded to onDelta as
// they arrive; tool-use blocks are only surfaced on the returned Turn once
// their input JSON is complete.
func (p *Provider) Stream(ctx context.Context, req model.Request, onDelta func(text string)) (*model.Turn, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  toMessageParams(req.Messages),
	}
	if len(req.Tools) > 0 {
		params.Tools = toToolParams(req.Tools)
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	var acc sdk.Message
	for stream.Next() {
		event := stream.Current()
		if err := acc.Accumulate(event); err != nil {
			return nil, fmt.Errorf("accumulating stream event: %w", err)
		}
		switch ev := event.AsAny().(type) {
		case sdk.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(sdk.TextDelta); ok && delta.Text != "" && onDelta != nil {
				onDelta(delta.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}

	return &model.Turn{
		Message:    fromSDKMessage(acc),
		StopReason: model.StopReason(acc.StopReason),
	}, nil
}

func fromSDKMessage(msg sdk.Message) model.Message {
	out := model.Message{Role: model.RoleAssistant}
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case sdk.TextBlock:
			out.Content = append(out.Content, model.TextBlock(variant.Text))
		case sdk.ToolUseBlock:
			out.Content = append(out.Content, model.ToolUseBlock(model.ToolUse{
				ID:    variant.ID,
				Name:  variant.Name,
				Input: json.RawMessage(variant.JSON.Input.Raw()),
			}))
		}
	}
	return out
}

func toMessageParams(messages []model.Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, 0, len(messages))
	for _, msg := range messages {
		blocks := make([]sdk.ContentBlockParamUnion, 0, len(msg.Content))
		for _, block := range msg.Content {
			switch block.Type {
			case model.BlockText:
				blocks = append(blocks, sdk.NewTextBlock(block.Text))
			case model.BlockToolUse:
				blocks = append(blocks, sdk.NewToolUseBlock(block.ToolUse.ID, block.ToolUse.Input, block.ToolUse.Name))
			case model.BlockToolResult:
				tr := block.ToolResult
				blocks = append(blocks, sdk.NewToolResultBlock(tr.ToolUseID, tr.Content, tr.IsError))
			}
		}
		if msg.Role == model.RoleAssistant {
			out = append(out, sdk.NewAssistantMessage(blocks...))
		} else {
			out = append(out, sdk.NewUserMessage(blocks...))
		}
	}
	return out
}

func toToolParams(tools []model.ToolSpec) []sdk.ToolUnionParam {
	out := make([]sdk.ToolUnionParam, 0, len(tools))
	for _, spec := range tools {
		properties := make(map[string]any, len(spec.InputSchema.Properties))
		for name, prop := range spec.InputSchema.Properties {
			properties[name] = prop
		}
		tool := sdk.ToolParam{
			Name:        spec.Name,
			Description: sdk.String(spec.Description),
			InputSchema: sdk.ToolInputSchemaParam{
				Properties: properties,
				Required:   spec.InputSchema.Required,
			},
		}
		out = append(out, sdk.ToolUnionParam{OfTool: &tool})
	}
	return out
}
