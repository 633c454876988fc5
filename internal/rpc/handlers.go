package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/skilllite/internal/agent"
	"github.com/haasonsaas/skilllite/internal/memory"
	"github.com/haasonsaas/skilllite/internal/sandbox"
	"github.com/haasonsaas/skilllite/internal/session"
	"github.com/haasonsaas/skilllite/internal/skill"
	"github.com/haasonsaas/skilllite/internal/tools"
	"github.com/haasonsaas/skilllite/pkg/models"
)

// Deps wires the RPC methods to the runtime.
type Deps struct {
	Skills    map[string]*skill.Skill
	Executor  *sandbox.Executor
	Registry  *tools.Registry
	Persister *session.Persister
	Memory    *memory.Store
	AgentID   string
	ChatHome  string

	// Sessions tracks states created over RPC, keyed by session id.
	Sessions map[string]*session.State
}

// RegisterMethods installs all §6.5 methods on the server.
func RegisterMethods(s *Server, deps *Deps) {
	if deps.Sessions == nil {
		deps.Sessions = make(map[string]*session.State)
	}

	s.Register("run", deps.handleRun)
	s.Register("exec", deps.handleRun) // exec is an alias with explicit arguments
	s.Register("bash", deps.handleBash)
	s.Register("session_create", deps.handleSessionCreate)
	s.Register("session_get", deps.handleSessionGet)
	s.Register("session_update", deps.handleSessionUpdate)
	s.Register("transcript_append", deps.handleTranscriptAppend)
	s.Register("transcript_read", deps.handleTranscriptRead)
	s.Register("memory_write", deps.handleMemoryWrite)
	s.Register("memory_search", deps.handleMemorySearch)
	s.Register("token_count", deps.handleTokenCount)
	s.Register("plan_read", deps.handlePlanRead)
	s.Register("plan_write", deps.handlePlanWrite)
	s.Register("plan_textify", deps.handlePlanTextify)
	s.Register("build_skills_context", deps.handleBuildSkillsContext)
	s.Register("list_tools", deps.handleListTools)
}

func (d *Deps) findSkill(name string) (*skill.Skill, error) {
	sk, ok := d.Skills[name]
	if !ok {
		return nil, fmt.Errorf("unknown skill: %s", name)
	}
	return sk, nil
}

func (d *Deps) handleRun(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		Skill     string          `json:"skill"`
		Tool      string          `json:"tool,omitempty"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	sk, err := d.findSkill(p.Skill)
	if err != nil {
		return nil, err
	}
	toolName := p.Tool
	if toolName == "" {
		toolName = models.SanitizeToolName(sk.Name)
	}
	def := models.ToolDefinition{Name: toolName, Parameters: json.RawMessage(`{"type":"object"}`)}
	call := models.ToolCall{ID: "rpc", Name: toolName, Arguments: string(p.Arguments)}
	result := d.Executor.Execute(ctx, sk, &def, call, models.NopSink{})
	return map[string]any{"content": result.Content, "is_error": result.IsError}, nil
}

func (d *Deps) handleBash(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		Skill   string `json:"skill"`
		Command string `json:"command"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	sk, err := d.findSkill(p.Skill)
	if err != nil {
		return nil, err
	}
	if sk.Kind != skill.KindBashTool {
		return nil, fmt.Errorf("skill %s is not a bash-tool skill", p.Skill)
	}
	args, _ := json.Marshal(map[string]string{"command": p.Command})
	def := models.ToolDefinition{Name: models.SanitizeToolName(sk.Name)}
	call := models.ToolCall{ID: "rpc", Name: def.Name, Arguments: string(args)}
	result := d.Executor.Execute(ctx, sk, &def, call, models.NopSink{})
	return map[string]any{"content": result.Content, "is_error": result.IsError}, nil
}

func (d *Deps) handleSessionCreate(_ context.Context, params json.RawMessage) (any, error) {
	var p struct {
		Workspace string `json:"workspace"`
	}
	_ = json.Unmarshal(params, &p)
	st := session.New(p.Workspace)
	d.Sessions[st.SessionID] = st
	if err := d.Persister.SaveInfo(st); err != nil {
		return nil, err
	}
	return map[string]string{"session_id": st.SessionID, "session_key": st.SessionKey}, nil
}

func (d *Deps) session(params json.RawMessage) (*session.State, json.RawMessage, error) {
	var p struct {
		SessionID string          `json:"session_id"`
		Rest      json.RawMessage `json:"-"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, nil, fmt.Errorf("invalid params: %w", err)
	}
	st, ok := d.Sessions[p.SessionID]
	if !ok {
		return nil, nil, fmt.Errorf("unknown session: %s", p.SessionID)
	}
	return st, params, nil
}

func (d *Deps) handleSessionGet(_ context.Context, params json.RawMessage) (any, error) {
	st, _, err := d.session(params)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"session_id": st.SessionID,
		"workspace":  st.Workspace,
		"iterations": st.Iterations,
		"tool_calls": st.ToolCallsCount,
	}, nil
}

func (d *Deps) handleSessionUpdate(_ context.Context, params json.RawMessage) (any, error) {
	st, raw, err := d.session(params)
	if err != nil {
		return nil, err
	}
	var p struct {
		Workspace string `json:"workspace"`
		Clear     bool   `json:"clear"`
	}
	_ = json.Unmarshal(raw, &p)
	if p.Clear {
		st.Clear()
	}
	if p.Workspace != "" {
		st.Workspace = p.Workspace
	}
	return map[string]bool{"ok": true}, nil
}

func (d *Deps) handleTranscriptAppend(_ context.Context, params json.RawMessage) (any, error) {
	var p struct {
		SessionKey string               `json:"session_key"`
		Messages   []models.ChatMessage `json:"messages"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if err := d.Persister.AppendTranscript(p.SessionKey, p.Messages); err != nil {
		return nil, err
	}
	return map[string]int{"appended": len(p.Messages)}, nil
}

func (d *Deps) handleTranscriptRead(_ context.Context, params json.RawMessage) (any, error) {
	var p struct {
		SessionKey string `json:"session_key"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	messages, err := d.Persister.ReadTranscript(p.SessionKey)
	if err != nil {
		return nil, err
	}
	return map[string]any{"messages": messages}, nil
}

func (d *Deps) handleMemoryWrite(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		Content string `json:"content"`
		Source  string `json:"source"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	id, err := d.Memory.Write(ctx, d.AgentID, p.Content, p.Source)
	if err != nil {
		return nil, err
	}
	return map[string]string{"id": id}, nil
}

func (d *Deps) handleMemorySearch(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	hits, err := d.Memory.Search(ctx, d.AgentID, p.Query, p.Limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"hits": hits}, nil
}

func (d *Deps) handleTokenCount(_ context.Context, params json.RawMessage) (any, error) {
	var p struct {
		Text     string               `json:"text"`
		Messages []models.ChatMessage `json:"messages"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	tokens := len(p.Text) / 4
	if len(p.Messages) > 0 {
		tokens += agent.EstimateTokens(p.Messages)
	}
	return map[string]int{"tokens": tokens}, nil
}

func (d *Deps) handlePlanRead(_ context.Context, params json.RawMessage) (any, error) {
	var p struct {
		SessionKey string `json:"session_key"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	plan, err := d.Persister.ReadPlan(p.SessionKey)
	if err != nil {
		return nil, err
	}
	return map[string]any{"plan": plan}, nil
}

func (d *Deps) handlePlanWrite(_ context.Context, params json.RawMessage) (any, error) {
	var p struct {
		SessionKey string          `json:"session_key"`
		Plan       models.TaskPlan `json:"plan"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if err := p.Plan.Validate(); err != nil {
		return nil, err
	}
	if err := d.Persister.SavePlan(p.SessionKey, &p.Plan); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

func (d *Deps) handlePlanTextify(_ context.Context, params json.RawMessage) (any, error) {
	var p struct {
		Plan models.TaskPlan `json:"plan"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	return map[string]string{"text": p.Plan.Textify()}, nil
}

func (d *Deps) handleBuildSkillsContext(_ context.Context, _ json.RawMessage) (any, error) {
	prompt := agent.BuildSystemPrompt(d.ChatHome, d.Skills, nil, nil)
	return map[string]string{"context": prompt}, nil
}

func (d *Deps) handleListTools(_ context.Context, _ json.RawMessage) (any, error) {
	return map[string]any{"tools": d.Registry.Definitions()}, nil
}
