package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RemoteGateway talks to a sandbox sidecar over HTTP. The sidecar exposes a
// small REST surface for command execution and workspace file access; all
// requests carry a bearer token when one is configured.
type RemoteGateway struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewRemoteGateway creates a gateway for the sidecar at baseURL.
func NewRemoteGateway(baseURL, token string) *RemoteGateway {
	return &RemoteGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		// Per-call deadlines come from the request context; the client
		// timeout is a backstop against a wedged sidecar.
		client: &http.Client{Timeout: 5 * time.Minute},
	}
}

type execRequest struct {
	Command   string   `json:"command"`
	Workdir   string   `json:"workdir,omitempty"`
	Env       []string `json:"env,omitempty"`
	TimeoutMs int64    `json:"timeout_ms"`
}

type execResponse struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	DurationMs int64  `json:"duration_ms"`
}

type apiError struct {
	Error string `json:"error"`
}

// Execute runs a code snippet by shelling out on the sidecar with the
// snippet quoted into the interpreter invocation.
func (g *RemoteGateway) Execute(ctx context.Context, language, code string, opts ExecOptions) (ExecutionResult, error) {
	argv, ok := interpreterArgv(language)
	if !ok {
		return ExecutionResult{
			Stderr:   fmt.Sprintf("unsupported language: %s", language),
			ExitCode: 1,
		}, nil
	}
	parts := make([]string, 0, len(argv)+1)
	parts = append(parts, argv...)
	parts = append(parts, ShellQuote(code))
	return g.Run(ctx, strings.Join(parts, " "), opts)
}

// Run executes a shell command line on the sidecar.
func (g *RemoteGateway) Run(ctx context.Context, command string, opts ExecOptions) (ExecutionResult, error) {
	started := time.Now()
	timeout := opts.timeout()
	runCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()

	body := execRequest{
		Command:   command,
		Workdir:   opts.Workdir,
		Env:       opts.Env,
		TimeoutMs: timeout.Milliseconds(),
	}
	var resp execResponse
	err := g.do(runCtx, http.MethodPost, "/exec", nil, body, &resp)
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return timeoutResult(opts, started), nil
	}
	if err != nil {
		return ExecutionResult{}, err
	}
	return ExecutionResult{
		Stdout:          resp.Stdout,
		Stderr:          resp.Stderr,
		ExitCode:        resp.ExitCode,
		ExecutionTimeMs: resp.DurationMs,
	}, nil
}

// RunStream runs the command and delivers its combined output as a single
// chunk; the sidecar protocol has no incremental channel.
func (g *RemoteGateway) RunStream(ctx context.Context, command string, opts ExecOptions, onOutput func([]byte)) (ExecutionResult, error) {
	result, err := g.Run(ctx, command, opts)
	if err != nil {
		return result, err
	}
	if onOutput != nil {
		if result.Stdout != "" {
			onOutput([]byte(result.Stdout))
		}
		if result.Stderr != "" {
			onOutput([]byte(result.Stderr))
		}
	}
	return result, nil
}

func (g *RemoteGateway) ReadFile(ctx context.Context, path string) ([]byte, error) {
	req, err := g.newRequest(ctx, http.MethodGet, "/file", url.Values{"path": {path}}, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (g *RemoteGateway) WriteFile(ctx context.Context, path string, content []byte) error {
	req, err := g.newRequest(ctx, http.MethodPut, "/file", url.Values{"path": {path}}, bytes.NewReader(content))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return decodeError(resp)
	}
	return nil
}

func (g *RemoteGateway) ListFiles(ctx context.Context, path string) ([]Entry, error) {
	var entries []Entry
	if err := g.do(ctx, http.MethodGet, "/files", url.Values{"path": {path}}, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (g *RemoteGateway) Stat(ctx context.Context, path string) (Entry, error) {
	var entry Entry
	if err := g.do(ctx, http.MethodGet, "/file/stat", url.Values{"path": {path}}, nil, &entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (g *RemoteGateway) Mkdir(ctx context.Context, path string, recursive bool) error {
	body := struct {
		Path      string `json:"path"`
		Recursive bool   `json:"recursive"`
	}{Path: path, Recursive: recursive}
	return g.do(ctx, http.MethodPost, "/mkdir", nil, body, nil)
}

func (g *RemoteGateway) DeleteFile(ctx context.Context, path string) error {
	req, err := g.newRequest(ctx, http.MethodDelete, "/file", url.Values{"path": {path}}, nil)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return decodeError(resp)
	}
	return nil
}

func (g *RemoteGateway) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := g.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	return req, nil
}

// do sends a JSON request and decodes a JSON response.
func (g *RemoteGateway) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := g.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode == http.StatusBadRequest {
		return ErrInvalidPath
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr apiError
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("sandbox: %s (status %d)", apiErr.Error, resp.StatusCode)
	}
	return fmt.Errorf("sandbox: unexpected status %d", resp.StatusCode)
}

var _ Gateway = (*RemoteGateway)(nil)
