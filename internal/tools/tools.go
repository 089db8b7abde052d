// Package tools defines the tool catalog offered to the assistant and the
// dispatcher that executes tool calls against a sandbox gateway.
package tools

import (
	"encoding/json"
	"fmt"

	"github.com/ccdev-ai/ccdev-backend/internal/model"
)

// Tool names as they appear on the wire.
const (
	NameExecuteCode = "execute_code"
	NameReadFile    = "read_file"
	NameWriteFile   = "write_file"
	NameListFiles   = "list_files"
)

// Languages the execute_code tool accepts.
var supportedLanguages = []string{"javascript", "typescript", "python", "bash"}

// ExecuteCodeInput is the argument payload for execute_code.
type ExecuteCodeInput struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// ReadFileInput is the argument payload for read_file.
type ReadFileInput struct {
	Path string `json:"path"`
}

// WriteFileInput is the argument payload for write_file.
type WriteFileInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ListFilesInput is the argument payload for list_files. Path is optional
// and defaults to the workspace root.
type ListFilesInput struct {
	Path string `json:"path"`
}

// Call is a validated tool invocation. Exactly one of the input fields is
// populated, matching Name.
type Call struct {
	Name        string
	ExecuteCode *ExecuteCodeInput
	ReadFile    *ReadFileInput
	WriteFile   *WriteFileInput
	ListFiles   *ListFilesInput
}

// ParseCall validates a raw tool invocation against the catalog. It returns
// an error for unknown tools, malformed JSON, or missing required arguments;
// those errors are intended to flow back to the assistant as tool results.
func ParseCall(name string, input json.RawMessage) (Call, error) {
	call := Call{Name: name}
	switch name {
	case NameExecuteCode:
		var in ExecuteCodeInput
		if err := unmarshalInput(input, &in); err != nil {
			return Call{}, err
		}
		if in.Language == "" {
			return Call{}, fmt.Errorf("%s: language is required", name)
		}
		if !languageSupported(in.Language) {
			return Call{}, fmt.Errorf("%s: unsupported language %q", name, in.Language)
		}
		if in.Code == "" {
			return Call{}, fmt.Errorf("%s: code is required", name)
		}
		call.ExecuteCode = &in
	case NameReadFile:
		var in ReadFileInput
		if err := unmarshalInput(input, &in); err != nil {
			return Call{}, err
		}
		if in.Path == "" {
			return Call{}, fmt.Errorf("%s: path is required", name)
		}
		call.ReadFile = &in
	case NameWriteFile:
		var in WriteFileInput
		if err := unmarshalInput(input, &in); err != nil {
			return Call{}, err
		}
		if in.Path == "" {
			return Call{}, fmt.Errorf("%s: path is required", name)
		}
		call.WriteFile = &in
	case NameListFiles:
		var in ListFilesInput
		if err := unmarshalInput(input, &in); err != nil {
			return Call{}, err
		}
		if in.Path == "" {
			in.Path = "/"
		}
		call.ListFiles = &in
	default:
		return Call{}, fmt.Errorf("unknown tool: %s", name)
	}
	return call, nil
}

func unmarshalInput(input json.RawMessage, v any) error {
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	if err := json.Unmarshal(input, v); err != nil {
		return fmt.Errorf("invalid tool input: %w", err)
	}
	return nil
}

func languageSupported(lang string) bool {
	for _, s := range supportedLanguages {
		if s == lang {
			return true
		}
	}
	return false
}

// Specs returns the full tool catalog as model tool specifications.
func Specs() []model.ToolSpec {
	return []model.ToolSpec{
		{
			Name:        NameExecuteCode,
			Description: "Execute a code snippet in the sandbox and return its stdout, stderr and exit code.",
			InputSchema: model.InputSchema{
				Properties: map[string]model.SchemaProperty{
					"language": {Type: "string", Description: "Language to run the code with.", Enum: supportedLanguages},
					"code":     {Type: "string", Description: "Source code to execute."},
				},
				Required: []string{"language", "code"},
			},
		},
		{
			Name:        NameReadFile,
			Description: "Read a file from the sandbox workspace and return its contents.",
			InputSchema: model.InputSchema{
				Properties: map[string]model.SchemaProperty{
					"path": {Type: "string", Description: "Workspace path of the file to read."},
				},
				Required: []string{"path"},
			},
		},
		{
			Name:        NameWriteFile,
			Description: "Write a file in the sandbox workspace, creating parent directories as needed.",
			InputSchema: model.InputSchema{
				Properties: map[string]model.SchemaProperty{
					"path":    {Type: "string", Description: "Workspace path of the file to write."},
					"content": {Type: "string", Description: "Full file contents."},
				},
				Required: []string{"path", "content"},
			},
		},
		listFilesSpec(),
	}
}

// ReadOnlySpecs returns the catalog restricted to tools that cannot modify
// the sandbox. It is offered when a chat request disables write access.
func ReadOnlySpecs() []model.ToolSpec {
	return []model.ToolSpec{
		{
			Name:        NameReadFile,
			Description: "Read a file from the sandbox workspace and return its contents.",
			InputSchema: model.InputSchema{
				Properties: map[string]model.SchemaProperty{
					"path": {Type: "string", Description: "Workspace path of the file to read."},
				},
				Required: []string{"path"},
			},
		},
		listFilesSpec(),
	}
}

func listFilesSpec() model.ToolSpec {
	return model.ToolSpec{
		Name:        NameListFiles,
		Description: "List files and directories at a workspace path.",
		InputSchema: model.InputSchema{
			Properties: map[string]model.SchemaProperty{
				"path": {Type: "string", Description: "Directory to list. Defaults to the workspace root."},
			},
		},
	}
}

// Offered reports whether name appears in the given specs.
func Offered(specs []model.ToolSpec, name string) bool {
	for _, s := range specs {
		if s.Name == name {
			return true
		}
	}
	return false
}
