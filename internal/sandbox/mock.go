package sandbox

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockGateway is the fallback backend used when no real sandbox is
// configured. File operations work against an in-memory tree with real
// read/write semantics; executions return deterministic, clearly-labeled
// placeholder output so callers degrade gracefully instead of erroring.
type MockGateway struct {
	mu    sync.RWMutex
	files map[string][]byte
	dirs  map[string]bool
}

// NewMockGateway creates a mock with an empty root and a short note file so
// browsing a fresh workspace is not a dead end.
func NewMockGateway() *MockGateway {
	m := &MockGateway{
		files: make(map[string][]byte),
		dirs:  map[string]bool{"/": true},
	}
	m.files["/README.txt"] = []byte("This workspace is running against the built-in mock sandbox.\nConfigure a sandbox backend to execute real commands.\n")
	return m
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	return path.Clean("/" + strings.TrimPrefix(p, "/"))
}

// Execute returns placeholder output; no code runs in mock mode.
func (m *MockGateway) Execute(ctx context.Context, language, code string, opts ExecOptions) (ExecutionResult, error) {
	started := time.Now()
	if _, ok := interpreterArgv(language); !ok {
		return ExecutionResult{
			Stderr:          fmt.Sprintf("unsupported language: %s", language),
			ExitCode:        1,
			ExecutionTimeMs: time.Since(started).Milliseconds(),
		}, nil
	}
	return ExecutionResult{
		Stdout:          fmt.Sprintf("[mock sandbox] %s execution is unavailable; %d bytes of code were not run\n", language, len(code)),
		ExecutionTimeMs: time.Since(started).Milliseconds(),
	}, nil
}

// Run returns placeholder output for arbitrary commands.
func (m *MockGateway) Run(ctx context.Context, command string, opts ExecOptions) (ExecutionResult, error) {
	started := time.Now()
	return ExecutionResult{
		Stdout:          fmt.Sprintf("[mock sandbox] command not executed: %s\n", command),
		ExecutionTimeMs: time.Since(started).Milliseconds(),
	}, nil
}

// RunStream delivers the placeholder output as a single chunk.
func (m *MockGateway) RunStream(ctx context.Context, command string, opts ExecOptions, onOutput func([]byte)) (ExecutionResult, error) {
	res, err := m.Run(ctx, command, opts)
	if err == nil && onOutput != nil && res.Stdout != "" {
		onOutput([]byte(res.Stdout))
	}
	return res, err
}

func (m *MockGateway) ReadFile(ctx context.Context, p string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[cleanPath(p)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MockGateway) WriteFile(ctx context.Context, p string, content []byte) error {
	p = cleanPath(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	// Parent directories spring into existence, matching the gateway
	// contract for write_file.
	for dir := path.Dir(p); ; dir = path.Dir(dir) {
		m.dirs[dir] = true
		if dir == "/" {
			break
		}
	}
	stored := make([]byte, len(content))
	copy(stored, content)
	m.files[p] = stored
	return nil
}

func (m *MockGateway) ListFiles(ctx context.Context, p string) ([]Entry, error) {
	p = cleanPath(p)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.dirs[p] {
		return nil, ErrNotFound
	}
	prefix := p
	if prefix != "/" {
		prefix += "/"
	}
	seen := make(map[string]Entry)
	for dir := range m.dirs {
		if dir != p && strings.HasPrefix(dir, prefix) {
			name := strings.SplitN(strings.TrimPrefix(dir, prefix), "/", 2)[0]
			seen[name] = Entry{Name: name, Path: prefix + name, IsDir: true}
		}
	}
	for file, data := range m.files {
		if strings.HasPrefix(file, prefix) {
			rest := strings.TrimPrefix(file, prefix)
			if !strings.Contains(rest, "/") {
				seen[rest] = Entry{Name: rest, Path: file, Size: int64(len(data))}
			}
		}
	}
	entries := make([]Entry, 0, len(seen))
	for _, e := range seen {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (m *MockGateway) Stat(ctx context.Context, p string) (Entry, error) {
	p = cleanPath(p)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.dirs[p] {
		return Entry{Name: path.Base(p), Path: p, IsDir: true}, nil
	}
	if data, ok := m.files[p]; ok {
		return Entry{Name: path.Base(p), Path: p, Size: int64(len(data))}, nil
	}
	return Entry{}, ErrNotFound
}

func (m *MockGateway) Mkdir(ctx context.Context, p string, recursive bool) error {
	p = cleanPath(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	if !recursive && !m.dirs[path.Dir(p)] {
		return ErrNotFound
	}
	for dir := p; ; dir = path.Dir(dir) {
		m.dirs[dir] = true
		if dir == "/" {
			break
		}
	}
	return nil
}

func (m *MockGateway) DeleteFile(ctx context.Context, p string) error {
	p = cleanPath(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[p]; ok {
		delete(m.files, p)
		return nil
	}
	if p != "/" && m.dirs[p] {
		prefix := p + "/"
		for file := range m.files {
			if strings.HasPrefix(file, prefix) {
				delete(m.files, file)
			}
		}
		for dir := range m.dirs {
			if dir == p || strings.HasPrefix(dir, prefix) {
				delete(m.dirs, dir)
			}
		}
		return nil
	}
	return ErrNotFound
}

var _ Gateway = (*MockGateway)(nil)
