package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/creack/pty"

	"github.com/ccdev-ai/ccdev-backend/internal/fs"
)

// LocalGateway executes commands directly on the host, confined to a
// workspace directory. It is the development-mode backend; isolation is the
// workspace jail only, so it must never be exposed to untrusted tenants.
type LocalGateway struct {
	ws  *fs.Workspace
	env []string
}

// NewLocalGateway creates a gateway rooted at the given workspace.
func NewLocalGateway(ws *fs.Workspace) *LocalGateway {
	return &LocalGateway{
		ws: ws,
		env: []string{
			"HOME=" + ws.Root(),
			"TERM=xterm-256color",
			"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin",
		},
	}
}

func (g *LocalGateway) workdir(opts ExecOptions) string {
	if opts.Workdir != "" {
		if full, err := g.ws.Abs(opts.Workdir); err == nil {
			if info, statErr := g.ws.Stat(opts.Workdir); statErr == nil && info.IsDir {
				return full
			}
		}
	}
	return g.ws.Root()
}

func (g *LocalGateway) command(ctx context.Context, argv []string, opts ExecOptions) *exec.Cmd {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = g.workdir(opts)
	cmd.Env = append(append([]string{}, g.env...), opts.Env...)
	return cmd
}

// Execute runs a code snippet under the matching interpreter. The snippet is
// passed as a single argv element, so no shell quoting is involved.
func (g *LocalGateway) Execute(ctx context.Context, language, code string, opts ExecOptions) (ExecutionResult, error) {
	started := time.Now()
	argv, ok := interpreterArgv(language)
	if !ok {
		return ExecutionResult{
			Stderr:          fmt.Sprintf("unsupported language: %s", language),
			ExitCode:        1,
			ExecutionTimeMs: time.Since(started).Milliseconds(),
		}, nil
	}
	return g.collect(ctx, append(argv, code), opts, started)
}

// Run executes a shell command line via sh -c.
func (g *LocalGateway) Run(ctx context.Context, command string, opts ExecOptions) (ExecutionResult, error) {
	return g.collect(ctx, []string{"/bin/sh", "-c", command}, opts, time.Now())
}

func (g *LocalGateway) collect(ctx context.Context, argv []string, opts ExecOptions, started time.Time) (ExecutionResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, opts.timeout())
	defer cancel()

	cmd := g.command(runCtx, argv, opts)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return timeoutResult(opts, started), nil
	}
	if ctx.Err() != nil {
		return ExecutionResult{}, ctx.Err()
	}

	result := ExecutionResult{
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		ExecutionTimeMs: time.Since(started).Milliseconds(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			// Spawn failure (missing interpreter, etc) is data, not an
			// error: the shell convention for "command not found".
			result.ExitCode = 127
			if result.Stderr == "" {
				result.Stderr = err.Error()
			}
		}
	}
	return result, nil
}

// RunStream executes a shell command line under a pty sized to the caller's
// terminal, streaming combined output as it is produced.
func (g *LocalGateway) RunStream(ctx context.Context, command string, opts ExecOptions, onOutput func([]byte)) (ExecutionResult, error) {
	started := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, opts.timeout())
	defer cancel()

	cmd := g.command(runCtx, []string{"/bin/sh", "-c", command}, opts)
	size := &pty.Winsize{Cols: opts.Cols, Rows: opts.Rows}
	if size.Cols == 0 {
		size.Cols = 80
	}
	if size.Rows == 0 {
		size.Rows = 24
	}

	tty, err := pty.StartWithSize(cmd, size)
	if err != nil {
		return ExecutionResult{
			Stderr:          err.Error(),
			ExitCode:        127,
			ExecutionTimeMs: time.Since(started).Milliseconds(),
		}, nil
	}
	defer tty.Close()

	// CommandContext kills the child on deadline; the pty read then fails
	// and the loop unblocks.
	buf := make([]byte, 32*1024)
	for {
		n, readErr := tty.Read(buf)
		if n > 0 && onOutput != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onOutput(chunk)
		}
		if readErr != nil {
			break // EOF or EIO once the child exits
		}
	}

	err = cmd.Wait()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return timeoutResult(opts, started), nil
	}
	if ctx.Err() != nil {
		return ExecutionResult{}, ctx.Err()
	}

	result := ExecutionResult{ExecutionTimeMs: time.Since(started).Milliseconds()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = 1
		}
	}
	return result, nil
}

func (g *LocalGateway) ReadFile(ctx context.Context, path string) ([]byte, error) {
	data, err := g.ws.Read(path)
	return data, mapFSErr(err)
}

func (g *LocalGateway) WriteFile(ctx context.Context, path string, content []byte) error {
	return mapFSErr(g.ws.Write(path, content))
}

func (g *LocalGateway) ListFiles(ctx context.Context, path string) ([]Entry, error) {
	infos, err := g.ws.List(path)
	if err != nil {
		return nil, mapFSErr(err)
	}
	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, Entry{Name: info.Name, Path: info.Path, Size: info.Size, IsDir: info.IsDir})
	}
	return entries, nil
}

func (g *LocalGateway) Stat(ctx context.Context, path string) (Entry, error) {
	info, err := g.ws.Stat(path)
	if err != nil {
		return Entry{}, mapFSErr(err)
	}
	return Entry{Name: info.Name, Path: info.Path, Size: info.Size, IsDir: info.IsDir}, nil
}

func (g *LocalGateway) Mkdir(ctx context.Context, path string, recursive bool) error {
	return mapFSErr(g.ws.Mkdir(path, recursive))
}

func (g *LocalGateway) DeleteFile(ctx context.Context, path string) error {
	return mapFSErr(g.ws.Delete(path))
}

func mapFSErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, fs.ErrPathTraversal):
		return ErrInvalidPath
	default:
		return err
	}
}

var _ Gateway = (*LocalGateway)(nil)
