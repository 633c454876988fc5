package tools

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/haasonsaas/skilllite/internal/sandbox"
	"github.com/haasonsaas/skilllite/pkg/models"
)

// PreviewServerTool serves a workspace directory over localhost HTTP so
// generated HTML artifacts can be opened in a browser. One server per
// session; a second call returns the existing address.
type PreviewServerTool struct {
	Workspace string

	mu     sync.Mutex
	server *http.Server
	addr   string
}

func (t *PreviewServerTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "preview_server",
		Description: "Serve a workspace directory over a local HTTP server and return its URL.",
		Parameters: schema(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "Directory to serve; defaults to the workspace root"}
			}
		}`),
	}
}

func (t *PreviewServerTool) Execute(_ context.Context, arguments string) (string, error) {
	var args struct {
		Path string `json:"path"`
	}
	if err := parseArgs(arguments, &args); err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.server != nil {
		return "preview server already running at http://" + t.addr, nil
	}

	dir := t.Workspace
	if args.Path != "" {
		var err error
		dir, err = sandbox.ValidatePathUnderRoot(t.Workspace, args.Path)
		if err != nil {
			return "", err
		}
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("start preview server: %v", err)
	}
	t.addr = listener.Addr().String()
	t.server = &http.Server{
		Handler:           http.FileServer(http.Dir(dir)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() { _ = t.server.Serve(listener) }()

	return "preview server running at http://" + t.addr, nil
}

// Shutdown stops the server if one is running.
func (t *PreviewServerTool) Shutdown(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.server != nil {
		_ = t.server.Shutdown(ctx)
		t.server = nil
	}
}
