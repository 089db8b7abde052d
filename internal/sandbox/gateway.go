// Package sandbox abstracts the isolated execution environment behind a
// single Gateway interface. Three backends exist: a remote HTTP sidecar
// (production), a local workspace-jailed executor (development), and a
// deterministic in-memory mock (no backend configured). Callers never need
// to know which one is active.
package sandbox

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by file operations on missing paths.
	ErrNotFound = errors.New("file or directory not found")
	// ErrInvalidPath is returned for paths that escape or malform.
	ErrInvalidPath = errors.New("invalid path")
)

// DefaultTimeout bounds executions when the caller does not supply one.
const DefaultTimeout = 30 * time.Second

// TimeoutExitCode is reported when an execution exceeds its budget. A
// timeout is surfaced as a nonzero-exit result, never as a hung call or an
// error return.
const TimeoutExitCode = 124

// ExecutionResult is the outcome of running code or a command. Immutable
// once returned. Field names are part of the client wire contract.
type ExecutionResult struct {
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	ExitCode        int    `json:"exitCode"`
	ExecutionTimeMs int64  `json:"executionTimeMs"`
}

// Entry describes one file or directory in a listing.
type Entry struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Size  int64  `json:"size"`
	IsDir bool   `json:"is_dir"`
}

// ExecOptions tune a single execution.
type ExecOptions struct {
	// Timeout bounds the run; zero means DefaultTimeout.
	Timeout time.Duration
	// Workdir is the working directory, relative to the sandbox root.
	Workdir string
	// Env entries in KEY=VALUE form, appended to the sandbox defaults.
	Env []string
	// Cols and Rows size the pty when the backend allocates one for
	// streaming runs. Zero means the backend default.
	Cols, Rows uint16
}

func (o ExecOptions) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}

// Gateway is the execution surface exposed to the tool dispatcher and the
// terminal sessions. File paths are absolute within the sandbox filesystem
// ("/" is the sandbox root). All operations honor ctx cancellation and the
// per-call timeout.
type Gateway interface {
	// Execute runs a code snippet under the interpreter for language
	// (javascript, typescript, python, bash).
	Execute(ctx context.Context, language, code string, opts ExecOptions) (ExecutionResult, error)

	// Run executes a shell command line and returns its collected output.
	Run(ctx context.Context, command string, opts ExecOptions) (ExecutionResult, error)

	// RunStream executes a shell command line, delivering output chunks to
	// onOutput as they arrive. The final result carries the exit code; the
	// accumulated output fields may be empty when everything was streamed.
	RunStream(ctx context.Context, command string, opts ExecOptions, onOutput func(chunk []byte)) (ExecutionResult, error)

	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, content []byte) error
	ListFiles(ctx context.Context, path string) ([]Entry, error)
	Stat(ctx context.Context, path string) (Entry, error)
	Mkdir(ctx context.Context, path string, recursive bool) error
	DeleteFile(ctx context.Context, path string) error
}

// ShellQuote wraps s in single quotes so it is safe to embed in a shell
// command line, escaping embedded single quotes with the '\'' idiom. Any
// path or code originating from untrusted chat or tool input must pass
// through here before concatenation.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// interpreterArgv maps a tool language to the argv prefix that evaluates an
// inline snippet. The snippet itself is appended as the final argument.
func interpreterArgv(language string) ([]string, bool) {
	switch language {
	case "javascript":
		return []string{"node", "-e"}, true
	case "typescript":
		return []string{"npx", "-y", "tsx", "-e"}, true
	case "python":
		return []string{"python3", "-c"}, true
	case "bash":
		return []string{"bash", "-c"}, true
	default:
		return nil, false
	}
}

func timeoutResult(opts ExecOptions, started time.Time) ExecutionResult {
	return ExecutionResult{
		Stderr:          "execution timed out after " + opts.timeout().String(),
		ExitCode:        TimeoutExitCode,
		ExecutionTimeMs: time.Since(started).Milliseconds(),
	}
}
