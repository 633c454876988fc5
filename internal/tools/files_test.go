package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haasonsaas/skilllite/internal/session"
	"github.com/haasonsaas/skilllite/pkg/models"
)

func TestFileTools(t *testing.T) {
	ctx := context.Background()
	ws := t.TempDir()
	if err := os.WriteFile(filepath.Join(ws, "a.txt"), []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("read file", func(t *testing.T) {
		tool := &ReadFileTool{Workspace: ws}
		out, err := tool.Execute(ctx, `{"path": "a.txt"}`)
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if !strings.Contains(out, "two") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("read line range", func(t *testing.T) {
		tool := &ReadFileTool{Workspace: ws}
		out, err := tool.Execute(ctx, `{"path": "a.txt", "start_line": 2, "end_line": 2}`)
		if err != nil {
			t.Fatal(err)
		}
		if out != "two" {
			t.Errorf("range output = %q, want two", out)
		}
	})

	t.Run("path escape rejected", func(t *testing.T) {
		tool := &ReadFileTool{Workspace: ws}
		if _, err := tool.Execute(ctx, `{"path": "../../etc/passwd"}`); err == nil {
			t.Error("traversal accepted")
		}
	})

	t.Run("write then exists", func(t *testing.T) {
		write := &WriteFileTool{Workspace: ws}
		if _, err := write.Execute(ctx, `{"path": "sub/new.txt", "content": "data"}`); err != nil {
			t.Fatal(err)
		}
		exists := &FileExistsTool{Workspace: ws}
		out, err := exists.Execute(ctx, `{"path": "sub/new.txt"}`)
		if err != nil || out != "file" {
			t.Errorf("exists = %q err = %v", out, err)
		}
	})

	t.Run("search replace requires unique match", func(t *testing.T) {
		if err := os.WriteFile(filepath.Join(ws, "dup.txt"), []byte("x x"), 0o644); err != nil {
			t.Fatal(err)
		}
		tool := &SearchReplaceTool{Workspace: ws}
		if _, err := tool.Execute(ctx, `{"path": "dup.txt", "search": "x", "replace": "y"}`); err == nil {
			t.Error("ambiguous replacement accepted")
		}
		if _, err := tool.Execute(ctx, `{"path": "dup.txt", "search": "x x", "replace": "y"}`); err != nil {
			t.Errorf("unique replacement rejected: %v", err)
		}
	})

	t.Run("grep files", func(t *testing.T) {
		tool := &GrepFilesTool{Workspace: ws}
		out, err := tool.Execute(ctx, `{"pattern": "two"}`)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(out, "a.txt:2:two") {
			t.Errorf("grep output = %q", out)
		}
	})

	t.Run("invalid json arguments", func(t *testing.T) {
		tool := &ReadFileTool{Workspace: ws}
		if _, err := tool.Execute(ctx, `{bad json`); err == nil {
			t.Error("invalid JSON accepted")
		}
	})
}

func TestUpdateTaskPlanTool(t *testing.T) {
	state := session.New(t.TempDir())
	tool := &UpdateTaskPlanTool{State: state}

	t.Run("wholesale replacement", func(t *testing.T) {
		args := `{"tasks": [{"id": 1, "description": "first"}, {"id": 2, "description": "second"}]}`
		if _, err := tool.Execute(context.Background(), args); err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if len(state.TaskPlan.Tasks) != 2 {
			t.Errorf("plan tasks = %d, want 2", len(state.TaskPlan.Tasks))
		}
	})

	t.Run("invalid plan rejected", func(t *testing.T) {
		if _, err := tool.Execute(context.Background(), `{"tasks": []}`); err == nil {
			t.Error("empty plan accepted")
		}
		if _, err := tool.Execute(context.Background(),
			`{"tasks": [{"id": 1, "description": "a"}, {"id": 1, "description": "b"}]}`); err == nil {
			t.Error("duplicate ids accepted")
		}
	})

	t.Run("progress events for newly completed tasks", func(t *testing.T) {
		sink := &recordingSink{}
		args := `{"tasks": [{"id": 1, "description": "first", "completed": true}, {"id": 2, "description": "second"}]}`
		if _, err := tool.ExecuteWithSink(context.Background(), args, sink); err != nil {
			t.Fatal(err)
		}
		if len(sink.progress) != 1 || sink.progress[0] != 1 {
			t.Errorf("progress events = %v, want [1]", sink.progress)
		}
	})
}

type recordingSink struct {
	models.NopSink
	progress []uint32
}

func (s *recordingSink) OnTaskPlan(*models.TaskPlan) {}
func (s *recordingSink) OnTaskProgress(id uint32, completed bool) {
	if completed {
		s.progress = append(s.progress, id)
	}
}

func TestRegistry(t *testing.T) {
	t.Run("name collision rejected", func(t *testing.T) {
		r := NewRegistry(NewShaper(0, 0, nil))
		ws := t.TempDir()
		if err := r.Register(&ReadFileTool{Workspace: ws}); err != nil {
			t.Fatal(err)
		}
		if err := r.Register(&ReadFileTool{Workspace: ws}); err == nil {
			t.Error("duplicate registration accepted")
		}
	})

	t.Run("unknown tool yields error result", func(t *testing.T) {
		r := NewRegistry(NewShaper(0, 0, nil))
		result := r.Dispatch(context.Background(),
			models.ToolCall{ID: "1", Name: "missing", Arguments: "{}"}, models.NopSink{})
		if !result.IsError {
			t.Error("unknown tool did not produce error result")
		}
	})

	t.Run("run_command output redacted with footer", func(t *testing.T) {
		r := NewRegistry(NewShaper(0, 0, nil))
		ws := t.TempDir()
		if err := r.Register(&RunCommandTool{Workspace: ws}); err != nil {
			t.Fatal(err)
		}
		result := r.Dispatch(context.Background(), models.ToolCall{
			ID: "1", Name: "run_command",
			Arguments: `{"command": "echo API_KEY=supersecret123"}`,
		}, models.NopSink{})
		if result.IsError {
			t.Fatalf("command failed: %s", result.Content)
		}
		if strings.Contains(result.Content, "supersecret123") {
			t.Error("secret value leaked")
		}
		if !strings.Contains(result.Content, "redacted") {
			t.Error("redaction footer missing")
		}
	})
}

func TestRunCommandEnvelope(t *testing.T) {
	tool := &RunCommandTool{Workspace: t.TempDir()}
	out, err := tool.Execute(context.Background(), `{"command": "echo hello"}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var envelope struct {
		Stdout   string `json:"stdout"`
		ExitCode int    `json:"exit_code"`
	}
	if err := json.Unmarshal([]byte(out), &envelope); err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	if !strings.Contains(envelope.Stdout, "hello") || envelope.ExitCode != 0 {
		t.Errorf("envelope = %+v", envelope)
	}

	_, err = tool.Execute(context.Background(), `{"command": "exit 3"}`)
	if err == nil {
		t.Fatal("nonzero exit must be an error")
	}
	if !strings.Contains(err.Error(), `"exit_code":3`) {
		t.Errorf("error lacks envelope: %v", err)
	}
}
