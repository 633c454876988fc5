package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/haasonsaas/skilllite/internal/sandbox"
	"github.com/haasonsaas/skilllite/pkg/models"
)

// File tools operate relative to the workspace root; every path is
// resolved host-side and traversal outside the root is rejected.

func schema(raw string) json.RawMessage { return json.RawMessage(raw) }

func parseArgs(arguments string, v any) error {
	if strings.TrimSpace(arguments) == "" {
		arguments = "{}"
	}
	if err := json.Unmarshal([]byte(arguments), v); err != nil {
		return fmt.Errorf("invalid JSON arguments: %v", err)
	}
	return nil
}

// ReadFileTool reads a file. Its output is content-preserving: the
// registry never summarizes it.
type ReadFileTool struct {
	Workspace string
}

func (t *ReadFileTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "read_file",
		Description: "Read a file from the workspace. Optionally pass start_line and end_line (1-based, inclusive) to read a range.",
		Parameters: schema(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "Path relative to the workspace"},
				"start_line": {"type": "integer"},
				"end_line": {"type": "integer"}
			},
			"required": ["path"]
		}`),
	}
}

func (t *ReadFileTool) Execute(_ context.Context, arguments string) (string, error) {
	var args struct {
		Path      string `json:"path"`
		StartLine int    `json:"start_line"`
		EndLine   int    `json:"end_line"`
	}
	if err := parseArgs(arguments, &args); err != nil {
		return "", err
	}
	path, err := sandbox.ValidatePathUnderRoot(t.Workspace, args.Path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %v", args.Path, err)
	}
	content := string(data)
	if args.StartLine <= 0 && args.EndLine <= 0 {
		return content, nil
	}

	lines := strings.Split(content, "\n")
	start := args.StartLine
	if start <= 0 {
		start = 1
	}
	end := args.EndLine
	if end <= 0 || end > len(lines) {
		end = len(lines)
	}
	if start > len(lines) {
		return "", fmt.Errorf("start_line %d is past end of file (%d lines)", start, len(lines))
	}
	return strings.Join(lines[start-1:end], "\n"), nil
}

// WriteFileTool creates or overwrites a file.
type WriteFileTool struct {
	Workspace string
}

func (t *WriteFileTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "write_file",
		Description: "Write content to a file in the workspace, creating parent directories as needed.",
		Parameters: schema(`{
			"type": "object",
			"properties": {
				"path": {"type": "string"},
				"content": {"type": "string"}
			},
			"required": ["path", "content"]
		}`),
	}
}

func (t *WriteFileTool) Execute(_ context.Context, arguments string) (string, error) {
	var args struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := parseArgs(arguments, &args); err != nil {
		return "", err
	}
	path, err := sandbox.ValidatePathUnderRoot(t.Workspace, args.Path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(args.Content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %v", args.Path, err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(args.Content), args.Path), nil
}

// SearchReplaceTool replaces an exact substring once in a file.
type SearchReplaceTool struct {
	Workspace string
}

func (t *SearchReplaceTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "search_replace",
		Description: "Replace an exact text fragment in a file. The search text must occur exactly once.",
		Parameters: schema(`{
			"type": "object",
			"properties": {
				"path": {"type": "string"},
				"search": {"type": "string"},
				"replace": {"type": "string"}
			},
			"required": ["path", "search", "replace"]
		}`),
	}
}

func (t *SearchReplaceTool) Execute(_ context.Context, arguments string) (string, error) {
	var args struct {
		Path    string `json:"path"`
		Search  string `json:"search"`
		Replace string `json:"replace"`
	}
	if err := parseArgs(arguments, &args); err != nil {
		return "", err
	}
	if args.Search == "" {
		return "", fmt.Errorf("search text must not be empty")
	}
	path, err := sandbox.ValidatePathUnderRoot(t.Workspace, args.Path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %v", args.Path, err)
	}
	content := string(data)
	count := strings.Count(content, args.Search)
	if count == 0 {
		return "", fmt.Errorf("search text not found in %s", args.Path)
	}
	if count > 1 {
		return "", fmt.Errorf("search text occurs %d times in %s; make it unique", count, args.Path)
	}
	content = strings.Replace(content, args.Search, args.Replace, 1)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return fmt.Sprintf("replaced 1 occurrence in %s", args.Path), nil
}

// InsertLinesTool inserts content before a 1-based line number.
type InsertLinesTool struct {
	Workspace string
}

func (t *InsertLinesTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "insert_lines",
		Description: "Insert content before the given 1-based line number. Line 0 or a number past the end appends.",
		Parameters: schema(`{
			"type": "object",
			"properties": {
				"path": {"type": "string"},
				"line": {"type": "integer"},
				"content": {"type": "string"}
			},
			"required": ["path", "line", "content"]
		}`),
	}
}

func (t *InsertLinesTool) Execute(_ context.Context, arguments string) (string, error) {
	var args struct {
		Path    string `json:"path"`
		Line    int    `json:"line"`
		Content string `json:"content"`
	}
	if err := parseArgs(arguments, &args); err != nil {
		return "", err
	}
	path, err := sandbox.ValidatePathUnderRoot(t.Workspace, args.Path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %v", args.Path, err)
	}
	lines := strings.Split(string(data), "\n")
	at := args.Line - 1
	if at < 0 || at > len(lines) {
		at = len(lines)
	}
	inserted := strings.Split(args.Content, "\n")
	out := append(lines[:at:at], append(inserted, lines[at:]...)...)
	if err := os.WriteFile(path, []byte(strings.Join(out, "\n")), 0o644); err != nil {
		return "", err
	}
	return fmt.Sprintf("inserted %d lines into %s", len(inserted), args.Path), nil
}

// GrepFilesTool searches workspace files with a regular expression.
type GrepFilesTool struct {
	Workspace string
}

func (t *GrepFilesTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "grep_files",
		Description: "Search workspace files for a regex pattern. Returns matching lines as path:line:text.",
		Parameters: schema(`{
			"type": "object",
			"properties": {
				"pattern": {"type": "string"},
				"path": {"type": "string", "description": "Subdirectory to search; defaults to the workspace root"}
			},
			"required": ["pattern"]
		}`),
	}
}

func (t *GrepFilesTool) Execute(_ context.Context, arguments string) (string, error) {
	var args struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
	}
	if err := parseArgs(arguments, &args); err != nil {
		return "", err
	}
	re, err := regexp.Compile(args.Pattern)
	if err != nil {
		return "", fmt.Errorf("invalid pattern: %v", err)
	}
	root := t.Workspace
	if args.Path != "" {
		root, err = sandbox.ValidatePathUnderRoot(t.Workspace, args.Path)
		if err != nil {
			return "", err
		}
	}

	const maxMatches = 200
	var b strings.Builder
	matches := 0
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || matches >= maxMatches {
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if name == ".git" || name == "node_modules" || name == "__pycache__" {
				return filepath.SkipDir
			}
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil || !isText(data) {
			return nil
		}
		rel, _ := filepath.Rel(t.Workspace, path)
		for i, line := range strings.Split(string(data), "\n") {
			if re.MatchString(line) {
				fmt.Fprintf(&b, "%s:%d:%s\n", rel, i+1, line)
				matches++
				if matches >= maxMatches {
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if matches == 0 {
		return "no matches", nil
	}
	return b.String(), nil
}

// ListDirectoryTool lists a directory.
type ListDirectoryTool struct {
	Workspace string
}

func (t *ListDirectoryTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "list_directory",
		Description: "List files and directories at a workspace path.",
		Parameters: schema(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "Defaults to the workspace root"}
			}
		}`),
	}
}

func (t *ListDirectoryTool) Execute(_ context.Context, arguments string) (string, error) {
	var args struct {
		Path string `json:"path"`
	}
	if err := parseArgs(arguments, &args); err != nil {
		return "", err
	}
	dir := t.Workspace
	if args.Path != "" {
		var err error
		dir, err = sandbox.ValidatePathUnderRoot(t.Workspace, args.Path)
		if err != nil {
			return "", err
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("list %s: %v", args.Path, err)
	}
	var b strings.Builder
	for _, e := range entries {
		if e.IsDir() {
			b.WriteString(e.Name() + "/\n")
		} else {
			b.WriteString(e.Name() + "\n")
		}
	}
	if b.Len() == 0 {
		return "(empty)", nil
	}
	return b.String(), nil
}

// FileExistsTool checks for a path.
type FileExistsTool struct {
	Workspace string
}

func (t *FileExistsTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "file_exists",
		Description: "Check whether a workspace path exists. Returns 'file', 'directory', or 'missing'.",
		Parameters: schema(`{
			"type": "object",
			"properties": {"path": {"type": "string"}},
			"required": ["path"]
		}`),
	}
}

func (t *FileExistsTool) Execute(_ context.Context, arguments string) (string, error) {
	var args struct {
		Path string `json:"path"`
	}
	if err := parseArgs(arguments, &args); err != nil {
		return "", err
	}
	path, err := sandbox.ValidatePathUnderRoot(t.Workspace, args.Path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return "missing", nil
	case err != nil:
		return "", err
	case info.IsDir():
		return "directory", nil
	default:
		return "file", nil
	}
}

// isText applies a cheap binary sniff: reject NUL in the first 8 KB.
func isText(data []byte) bool {
	n := len(data)
	if n > 8192 {
		n = 8192
	}
	for _, b := range data[:n] {
		if b == 0 {
			return false
		}
	}
	return true
}
