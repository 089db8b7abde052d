package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ccdev-ai/ccdev-backend/internal/model"
	"github.com/ccdev-ai/ccdev-backend/internal/tools"
)

// DefaultMaxToolIterations bounds the number of model turns in one run so a
// model that keeps requesting tools cannot spin forever.
const DefaultMaxToolIterations = 10

const systemPrompt = `You are a coding assistant with access to a sandboxed execution environment.
You can run code, and read, write and list files in the sandbox workspace.
When a task calls for running code, use the tools rather than guessing at output.
Keep answers concise and show the relevant results.`

// Loop drives the agent conversation: model turn, tool execution, repeat.
type Loop struct {
	provider   model.Provider
	dispatcher *tools.Dispatcher
	modelName  string
	maxTokens  int
	maxIters   int
	log        *slog.Logger
}

// Options configure a Loop.
type Options struct {
	Model             string
	MaxTokens         int
	MaxToolIterations int
	Logger            *slog.Logger
}

// NewLoop creates a loop over the given provider and dispatcher.
func NewLoop(provider model.Provider, dispatcher *tools.Dispatcher, opts Options) *Loop {
	if opts.MaxToolIterations <= 0 {
		opts.MaxToolIterations = DefaultMaxToolIterations
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Loop{
		provider:   provider,
		dispatcher: dispatcher,
		modelName:  opts.Model,
		maxTokens:  opts.MaxTokens,
		maxIters:   opts.MaxToolIterations,
		log:        opts.Logger,
	}
}

// RunOptions adjust a single run.
type RunOptions struct {
	// Model overrides the loop's default model when non-empty.
	Model string
	// Yolo enables the mutating tools (execute_code, write_file). When
	// false only the read-only catalog is offered.
	Yolo bool
}

// Run executes the agent loop over the given conversation. Events are
// delivered to emit in order; the final event is always done or error. The
// returned slice is the conversation extended with every assistant and tool
// message produced during the run.
func (l *Loop) Run(ctx context.Context, messages []model.Message, opts RunOptions, emit func(Event)) ([]model.Message, error) {
	modelName := l.modelName
	if opts.Model != "" {
		modelName = opts.Model
	}
	specs := tools.Specs()
	if !opts.Yolo {
		specs = tools.ReadOnlySpecs()
	}

	for iter := 0; iter < l.maxIters; iter++ {
		turn, err := l.provider.Stream(ctx, model.Request{
			Model:     modelName,
			System:    systemPrompt,
			MaxTokens: l.maxTokens,
			Messages:  messages,
			Tools:     specs,
		}, func(text string) {
			emit(Event{Type: EventMessage, Data: MessageData{Content: text}})
		})
		if err != nil {
			l.log.Error("model turn failed", "error", err, "iteration", iter)
			emit(Event{Type: EventError, Data: ErrorData{Message: err.Error()}})
			return messages, err
		}

		messages = append(messages, turn.Message)
		uses := turn.Message.ToolUses()
		if len(uses) == 0 || turn.StopReason == model.StopEndTurn {
			emit(Event{Type: EventDone})
			return messages, nil
		}

		// Announce every call before running any of them, then execute
		// in the order the model emitted them.
		for _, use := range uses {
			emit(Event{Type: EventToolUse, Data: ToolUseData{ID: use.ID, Name: use.Name, Input: use.Input}})
		}
		results := make([]model.ContentBlock, 0, len(uses))
		for _, use := range uses {
			result := l.runTool(ctx, specs, use)
			emit(Event{Type: EventToolResult, Data: ToolResultData{
				ToolUseID: use.ID,
				Content:   result.Text,
				IsError:   result.IsError,
			}})
			results = append(results, model.ToolResultBlock(model.ToolResult{
				ToolUseID: use.ID,
				Content:   result.Text,
				IsError:   result.IsError,
			}))
		}
		messages = append(messages, model.Message{Role: model.RoleUser, Content: results})
	}

	// Iteration cap reached: end the run cleanly rather than erroring, so
	// the client sees what happened.
	notice := fmt.Sprintf("Stopped after %d tool iterations without reaching a final answer.", l.maxIters)
	l.log.Warn("tool iteration cap reached", "max", l.maxIters)
	emit(Event{Type: EventMessage, Data: MessageData{Content: notice}})
	messages = append(messages, model.Message{Role: model.RoleAssistant, Content: []model.ContentBlock{model.TextBlock(notice)}})
	emit(Event{Type: EventDone})
	return messages, nil
}

// runTool executes one call, rejecting tools the model was not offered this
// run. Rejection is a tool result, not a run failure.
func (l *Loop) runTool(ctx context.Context, specs []model.ToolSpec, use model.ToolUse) tools.Result {
	if !tools.Offered(specs, use.Name) {
		return tools.Result{
			Text:    fmt.Sprintf("tool %s is not available in this session", use.Name),
			IsError: true,
		}
	}
	l.log.Debug("dispatching tool", "tool", use.Name, "id", use.ID)
	return l.dispatcher.Dispatch(ctx, use.Name, use.Input)
}
