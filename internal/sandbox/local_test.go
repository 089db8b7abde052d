package sandbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ccdev-ai/ccdev-backend/internal/fs"
)

func newLocal(t *testing.T) *LocalGateway {
	t.Helper()
	ws, err := fs.New(t.TempDir())
	if err != nil {
		t.Fatalf("fs.New: %v", err)
	}
	return NewLocalGateway(ws)
}

func TestLocalRun(t *testing.T) {
	g := newLocal(t)
	result, err := g.Run(context.Background(), "echo hello", ExecOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("exit code = %d, stderr = %q", result.ExitCode, result.Stderr)
	}
	if strings.TrimSpace(result.Stdout) != "hello" {
		t.Errorf("stdout = %q", result.Stdout)
	}
}

func TestLocalRunExitCode(t *testing.T) {
	g := newLocal(t)
	result, err := g.Run(context.Background(), "exit 3", ExecOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", result.ExitCode)
	}
}

func TestLocalRunStderr(t *testing.T) {
	g := newLocal(t)
	result, err := g.Run(context.Background(), "echo oops 1>&2; exit 1", ExecOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 1 {
		t.Errorf("exit code = %d, want 1", result.ExitCode)
	}
	if !strings.Contains(result.Stderr, "oops") {
		t.Errorf("stderr = %q", result.Stderr)
	}
	if result.Stdout != "" {
		t.Errorf("stdout = %q, want empty", result.Stdout)
	}
}

func TestLocalRunTimeout(t *testing.T) {
	g := newLocal(t)
	result, err := g.Run(context.Background(), "sleep 10", ExecOptions{Timeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != TimeoutExitCode {
		t.Errorf("exit code = %d, want %d", result.ExitCode, TimeoutExitCode)
	}
	if !strings.Contains(result.Stderr, "timed out") {
		t.Errorf("stderr = %q", result.Stderr)
	}
}

func TestLocalExecuteUnsupportedLanguage(t *testing.T) {
	g := newLocal(t)
	result, err := g.Execute(context.Background(), "fortran", "x", ExecOptions{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.ExitCode != 1 {
		t.Errorf("exit code = %d, want 1", result.ExitCode)
	}
	if !strings.Contains(result.Stderr, "unsupported language") {
		t.Errorf("stderr = %q", result.Stderr)
	}
}

func TestLocalExecuteBash(t *testing.T) {
	g := newLocal(t)
	result, err := g.Execute(context.Background(), "bash", "echo from-bash", ExecOptions{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.ExitCode != 0 {
		t.Skipf("bash not available: %q", result.Stderr)
	}
	if strings.TrimSpace(result.Stdout) != "from-bash" {
		t.Errorf("stdout = %q", result.Stdout)
	}
}

func TestLocalRunWorkdir(t *testing.T) {
	g := newLocal(t)
	ctx := context.Background()
	if err := g.Mkdir(ctx, "/sub", false); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	result, err := g.Run(ctx, "pwd", ExecOptions{Workdir: "/sub"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.HasSuffix(strings.TrimSpace(result.Stdout), "/sub") {
		t.Errorf("pwd = %q, want .../sub", result.Stdout)
	}
}

func TestLocalRunStream(t *testing.T) {
	g := newLocal(t)
	var chunks [][]byte
	result, err := g.RunStream(context.Background(), "echo streamed", ExecOptions{Cols: 80, Rows: 24}, func(b []byte) {
		chunks = append(chunks, b)
	})
	if err != nil {
		t.Fatalf("RunStream: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("exit code = %d", result.ExitCode)
	}
	var all strings.Builder
	for _, c := range chunks {
		all.Write(c)
	}
	if !strings.Contains(all.String(), "streamed") {
		t.Errorf("streamed output = %q", all.String())
	}
}

func TestLocalFileRoundTrip(t *testing.T) {
	g := newLocal(t)
	ctx := context.Background()

	if err := g.WriteFile(ctx, "/notes/hello.txt", []byte("hi")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := g.ReadFile(ctx, "/notes/hello.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hi" {
		t.Errorf("read back %q", data)
	}

	entries, err := g.ListFiles(ctx, "/notes")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "hello.txt" {
		t.Fatalf("entries = %+v", entries)
	}

	if err := g.DeleteFile(ctx, "/notes/hello.txt"); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if _, err := g.ReadFile(ctx, "/notes/hello.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestLocalPathTraversal(t *testing.T) {
	g := newLocal(t)
	if _, err := g.ReadFile(context.Background(), "../../etc/passwd"); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("err = %v, want ErrInvalidPath", err)
	}
}
