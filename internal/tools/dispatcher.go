package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ccdev-ai/ccdev-backend/internal/sandbox"
)

// Result is the outcome of one tool call, formatted for the model.
type Result struct {
	Text    string
	IsError bool
}

// Dispatcher executes parsed tool calls against a sandbox gateway. Failures
// are reported as error results for the model to react to, never as Go
// errors; a tool call must not abort the surrounding agent turn.
type Dispatcher struct {
	gw      sandbox.Gateway
	timeout time.Duration
}

// NewDispatcher creates a dispatcher. A zero timeout falls back to the
// sandbox default.
func NewDispatcher(gw sandbox.Gateway, timeout time.Duration) *Dispatcher {
	return &Dispatcher{gw: gw, timeout: timeout}
}

// Dispatch parses and runs one tool invocation.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, input []byte) Result {
	call, err := ParseCall(name, input)
	if err != nil {
		return errorResult(err)
	}
	switch call.Name {
	case NameExecuteCode:
		return d.executeCode(ctx, call.ExecuteCode)
	case NameReadFile:
		return d.readFile(ctx, call.ReadFile)
	case NameWriteFile:
		return d.writeFile(ctx, call.WriteFile)
	case NameListFiles:
		return d.listFiles(ctx, call.ListFiles)
	}
	// ParseCall only returns catalog names.
	return errorResult(fmt.Errorf("unknown tool: %s", call.Name))
}

func (d *Dispatcher) executeCode(ctx context.Context, in *ExecuteCodeInput) Result {
	result, err := d.gw.Execute(ctx, in.Language, in.Code, sandbox.ExecOptions{Timeout: d.timeout})
	if err != nil {
		return errorResult(err)
	}
	return formatExecution(result)
}

// formatExecution renders an execution outcome as model-readable text. A
// nonzero exit code marks the result as an error so the model can correct
// its code on the next turn.
func formatExecution(result sandbox.ExecutionResult) Result {
	var b strings.Builder
	if result.Stdout != "" {
		b.WriteString(result.Stdout)
		if !strings.HasSuffix(result.Stdout, "\n") {
			b.WriteByte('\n')
		}
	}
	if result.Stderr != "" {
		b.WriteString("stderr:\n")
		b.WriteString(result.Stderr)
		if !strings.HasSuffix(result.Stderr, "\n") {
			b.WriteByte('\n')
		}
	}
	if result.ExitCode != 0 {
		fmt.Fprintf(&b, "exit code: %d\n", result.ExitCode)
		return Result{Text: b.String(), IsError: true}
	}
	if b.Len() == 0 {
		b.WriteString("(no output)\n")
	}
	return Result{Text: b.String()}
}

func (d *Dispatcher) readFile(ctx context.Context, in *ReadFileInput) Result {
	data, err := d.gw.ReadFile(ctx, in.Path)
	if err != nil {
		return errorResult(describePathErr(err, in.Path))
	}
	return Result{Text: string(data)}
}

func (d *Dispatcher) writeFile(ctx context.Context, in *WriteFileInput) Result {
	if err := d.gw.WriteFile(ctx, in.Path, []byte(in.Content)); err != nil {
		return errorResult(describePathErr(err, in.Path))
	}
	return Result{Text: fmt.Sprintf("wrote %d bytes to %s", len(in.Content), in.Path)}
}

func (d *Dispatcher) listFiles(ctx context.Context, in *ListFilesInput) Result {
	entries, err := d.gw.ListFiles(ctx, in.Path)
	if err != nil {
		return errorResult(describePathErr(err, in.Path))
	}
	if len(entries) == 0 {
		return Result{Text: "(empty directory)"}
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir {
			lines = append(lines, e.Name+"/")
		} else {
			lines = append(lines, fmt.Sprintf("%s (%d bytes)", e.Name, e.Size))
		}
	}
	return Result{Text: strings.Join(lines, "\n")}
}

func describePathErr(err error, path string) error {
	switch {
	case errors.Is(err, sandbox.ErrNotFound):
		return fmt.Errorf("no such file or directory: %s", path)
	case errors.Is(err, sandbox.ErrInvalidPath):
		return fmt.Errorf("invalid path: %s", path)
	default:
		return err
	}
}

func errorResult(err error) Result {
	return Result{Text: err.Error(), IsError: true}
}
