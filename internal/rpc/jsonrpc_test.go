package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func serve(t *testing.T, s *Server, input string) []Response {
	t.Helper()
	if err := s.Serve(context.Background(), strings.NewReader(input)); err != nil {
		t.Fatalf("Serve error: %v", err)
	}
	var out []Response
	for _, line := range strings.Split(strings.TrimSpace(s.out.(*bytes.Buffer).String()), "\n") {
		if line == "" {
			continue
		}
		var resp Response
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			t.Fatalf("parse response line %q: %v", line, err)
		}
		out = append(out, resp)
	}
	return out
}

func TestServer(t *testing.T) {
	t.Run("method dispatch", func(t *testing.T) {
		s := NewServer(&bytes.Buffer{})
		s.Register("echo", func(_ context.Context, params json.RawMessage) (any, error) {
			return map[string]string{"got": string(params)}, nil
		})
		responses := serve(t, s, `{"jsonrpc":"2.0","id":1,"method":"echo","params":{"a":1}}`+"\n")
		if len(responses) != 1 {
			t.Fatalf("responses = %d, want 1", len(responses))
		}
		if responses[0].Error != nil {
			t.Fatalf("unexpected error: %+v", responses[0].Error)
		}
	})

	t.Run("parse error", func(t *testing.T) {
		s := NewServer(&bytes.Buffer{})
		responses := serve(t, s, "not json\n")
		if len(responses) != 1 || responses[0].Error == nil {
			t.Fatal("expected error response")
		}
		if responses[0].Error.Code != CodeParseError {
			t.Errorf("code = %d, want %d", responses[0].Error.Code, CodeParseError)
		}
	})

	t.Run("unknown method", func(t *testing.T) {
		s := NewServer(&bytes.Buffer{})
		responses := serve(t, s, `{"jsonrpc":"2.0","id":1,"method":"nope"}`+"\n")
		if responses[0].Error == nil || responses[0].Error.Code != CodeMethodNotFound {
			t.Errorf("response = %+v, want -32601", responses[0])
		}
	})

	t.Run("oversize request", func(t *testing.T) {
		s := NewServer(&bytes.Buffer{})
		big := `{"jsonrpc":"2.0","id":1,"method":"echo","params":"` +
			strings.Repeat("x", MaxRequestBytes) + `"}`
		responses := serve(t, s, big+"\n")
		if responses[0].Error == nil || responses[0].Error.Code != CodeInvalidRequest {
			t.Errorf("response = %+v, want -32600", responses[0])
		}
	})
}
