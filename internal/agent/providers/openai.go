package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/skilllite/internal/observability"
	"github.com/haasonsaas/skilllite/pkg/models"
)

// Client is the LlmClient over an OpenAI-compatible endpoint. All LLM
// traffic in the runtime goes through it: agent turns, summarization,
// compaction, planning extraction, dependency inference, and admission
// risk classification.
type Client struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewClient builds a client. Returns ErrAPIKeyMissing when apiKey is empty
// so callers can degrade to offline behavior.
func NewClient(apiKey, apiBase, model string) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyMissing
	}
	cfg := openai.DefaultConfig(apiKey)
	if apiBase != "" {
		cfg.BaseURL = apiBase
	}
	return &Client{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		maxTokens: 4096,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// Complete performs a non-streaming chat completion.
func (c *Client) Complete(ctx context.Context, messages []models.ChatMessage, tools []models.ToolDefinition) (*models.ChatMessage, error) {
	req := c.buildRequest(messages, tools, false)

	resp, err := c.withRetry(ctx, func() (openai.ChatCompletionResponse, error) {
		return c.client.CreateChatCompletion(ctx, req)
	})
	if err != nil {
		observability.ModelCalls.WithLabelValues("error").Inc()
		return nil, wrapAPIError(err)
	}
	observability.ModelCalls.WithLabelValues("ok").Inc()

	if len(resp.Choices) == 0 {
		return &models.ChatMessage{Role: models.RoleAssistant}, nil
	}
	return fromOpenAIMessage(resp.Choices[0].Message), nil
}

// CompleteStream performs a streaming chat completion, pushing text chunks
// to onChunk as they arrive and accumulating tool-call deltas by index with
// placeholder slots, as required by providers that interleave them.
func (c *Client) CompleteStream(ctx context.Context, messages []models.ChatMessage,
	tools []models.ToolDefinition, onChunk func(string)) (*models.ChatMessage, error) {

	req := c.buildRequest(messages, tools, true)

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		observability.ModelCalls.WithLabelValues("error").Inc()
		return nil, wrapAPIError(err)
	}
	defer stream.Close()

	var content string
	var calls []models.ToolCall

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			observability.ModelCalls.WithLabelValues("error").Inc()
			return nil, wrapAPIError(err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			content += delta.Content
			if onChunk != nil {
				onChunk(delta.Content)
			}
		}
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			for len(calls) <= idx {
				calls = append(calls, models.ToolCall{})
			}
			if tc.ID != "" {
				calls[idx].ID = tc.ID
			}
			if tc.Function.Name != "" {
				calls[idx].Name = tc.Function.Name
			}
			calls[idx].Arguments += tc.Function.Arguments
		}
	}
	observability.ModelCalls.WithLabelValues("ok").Inc()

	msg := &models.ChatMessage{Role: models.RoleAssistant, Content: content}
	for _, call := range calls {
		if call.Name != "" {
			msg.ToolCalls = append(msg.ToolCalls, call)
		}
	}
	return msg, nil
}

// CompleteText is the single-prompt helper used by summarization,
// compaction, and the extraction prompts.
func (c *Client) CompleteText(ctx context.Context, system, user string) (string, error) {
	messages := []models.ChatMessage{models.UserMessage(user)}
	if system != "" {
		messages = append([]models.ChatMessage{models.SystemMessage(system)}, messages...)
	}
	resp, err := c.Complete(ctx, messages, nil)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (c *Client) buildRequest(messages []models.ChatMessage, tools []models.ToolDefinition, stream bool) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Stream:    stream,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, toOpenAIMessage(m))
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  json.RawMessage(t.Parameters),
			},
		})
	}
	return req
}

func toOpenAIMessage(m models.ChatMessage) openai.ChatCompletionMessage {
	msg := openai.ChatCompletionMessage{
		Role:       string(m.Role),
		Content:    m.Content,
		Name:       m.Name,
		ToolCallID: m.ToolCallID,
	}
	for _, call := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
			ID:   call.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      call.Name,
				Arguments: call.Arguments,
			},
		})
	}
	return msg
}

func fromOpenAIMessage(m openai.ChatCompletionMessage) *models.ChatMessage {
	msg := &models.ChatMessage{Role: models.RoleAssistant, Content: m.Content}
	for _, call := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, models.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return msg
}

// withRetry retries once on transient failures with a fresh request.
func (c *Client) withRetry(ctx context.Context, call func() (openai.ChatCompletionResponse, error)) (openai.ChatCompletionResponse, error) {
	resp, err := call()
	if err == nil || !IsTransient(wrapAPIError(err)) {
		return resp, err
	}
	select {
	case <-ctx.Done():
		return resp, ctx.Err()
	case <-time.After(time.Second):
	}
	return call()
}

func wrapAPIError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		body, _ := json.Marshal(apiErr)
		return &ModelError{Status: apiErr.HTTPStatusCode, Body: string(body)}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ModelError{Status: reqErr.HTTPStatusCode, Body: reqErr.Error()}
	}
	return err
}
