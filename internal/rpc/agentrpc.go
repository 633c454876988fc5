package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/haasonsaas/skilllite/internal/agent"
	"github.com/haasonsaas/skilllite/pkg/models"
)

// Agent-RPC stream protocol: one request line on stdin, many event lines
// on stdout until done or error. Confirmation responses arrive as a
// "confirm" method line on stdin with {approved: bool}.

// Event kinds emitted on the stream.
const (
	EventText         = "text"
	EventTextChunk    = "text_chunk"
	EventToolCall     = "tool_call"
	EventToolResult   = "tool_result"
	EventTaskPlan     = "task_plan"
	EventTaskProgress = "task_progress"
	EventConfirmReq   = "confirmation_request"
	EventDone         = "done"
	EventError        = "error"
	EventPong         = "pong"
)

// StreamEvent is one output line.
type StreamEvent struct {
	Kind      string           `json:"kind"`
	Text      string           `json:"text,omitempty"`
	Tool      string           `json:"tool,omitempty"`
	Arguments string           `json:"arguments,omitempty"`
	Content   string           `json:"content,omitempty"`
	IsError   bool             `json:"is_error,omitempty"`
	Plan      *models.TaskPlan `json:"plan,omitempty"`
	TaskID    uint32           `json:"task_id,omitempty"`
	Completed bool             `json:"completed,omitempty"`
	Prompt    string           `json:"prompt,omitempty"`
	Message   string           `json:"message,omitempty"`
}

// streamRequest is one input line.
type streamRequest struct {
	Method   string `json:"method"`
	Message  string `json:"message,omitempty"`
	Approved bool   `json:"approved,omitempty"`
}

// StreamServer runs agent turns over the JSON-Lines transport.
type StreamServer struct {
	loop   *agent.Loop
	logger *slog.Logger

	mu  sync.Mutex
	out io.Writer

	// confirms carries confirm lines from the reader to a blocked
	// confirmation request. Chunks are pushed as received with no
	// buffering beyond the channel slot.
	confirms chan bool
}

// NewStreamServer builds a stream server over the loop.
func NewStreamServer(loop *agent.Loop, out io.Writer) *StreamServer {
	return &StreamServer{
		loop:     loop,
		out:      out,
		logger:   slog.Default().With("component", "agent-rpc"),
		confirms: make(chan bool),
	}
}

// Serve processes request lines until EOF. A transport close cancels the
// in-flight turn at its next suspension point.
func (s *StreamServer) Serve(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxRequestBytes+1024)

	var turnWG sync.WaitGroup
	for scanner.Scan() {
		var req streamRequest
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			s.emit(StreamEvent{Kind: EventError, Message: "parse error: " + err.Error()})
			continue
		}
		switch req.Method {
		case "ping":
			s.emit(StreamEvent{Kind: EventPong})
		case "confirm":
			select {
			case s.confirms <- req.Approved:
			default:
				s.emit(StreamEvent{Kind: EventError, Message: "no pending confirmation"})
			}
		case "run", "":
			turnWG.Add(1)
			// One request per connection is the protocol; the turn runs in
			// this goroutine's place while the reader keeps servicing
			// confirm lines.
			go func(message string) {
				defer turnWG.Done()
				s.runTurn(ctx, message)
			}(req.Message)
		default:
			s.emit(StreamEvent{Kind: EventError, Message: "unknown method: " + req.Method})
		}
	}
	cancel()
	turnWG.Wait()
	return scanner.Err()
}

func (s *StreamServer) runTurn(ctx context.Context, message string) {
	result, err := s.loop.RunTurn(ctx, message, &streamSink{server: s})
	if err != nil {
		s.emit(StreamEvent{Kind: EventError, Message: err.Error()})
		return
	}
	s.emit(StreamEvent{Kind: EventDone, Text: result.FinalText})
}

func (s *StreamServer) emit(event StreamEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal event", "error", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.out.Write(append(data, '\n'))
	if f, ok := s.out.(interface{ Flush() error }); ok {
		_ = f.Flush()
	}
}

// streamSink adapts the event stream to the loop's sink interface. The
// confirmation request is a request round-trip embedded in the stream: it
// blocks all further events until the confirm line arrives.
type streamSink struct {
	server *StreamServer
}

func (s *streamSink) OnTextChunk(text string) {
	s.server.emit(StreamEvent{Kind: EventTextChunk, Text: text})
}

func (s *streamSink) OnText(text string) {
	s.server.emit(StreamEvent{Kind: EventText, Text: text})
}

func (s *streamSink) OnToolCall(name, arguments string) {
	s.server.emit(StreamEvent{Kind: EventToolCall, Tool: name, Arguments: arguments})
}

func (s *streamSink) OnToolResult(name, content string, isError bool) {
	s.server.emit(StreamEvent{Kind: EventToolResult, Tool: name, Content: content, IsError: isError})
}

func (s *streamSink) OnConfirmationRequest(prompt string) bool {
	s.server.emit(StreamEvent{Kind: EventConfirmReq, Prompt: prompt})
	return <-s.server.confirms
}

func (s *streamSink) OnTaskPlan(plan *models.TaskPlan) {
	s.server.emit(StreamEvent{Kind: EventTaskPlan, Plan: plan})
}

func (s *streamSink) OnTaskProgress(id uint32, completed bool) {
	s.server.emit(StreamEvent{Kind: EventTaskProgress, TaskID: id, Completed: completed})
}

var _ models.EventSink = (*streamSink)(nil)
