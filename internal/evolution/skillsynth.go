package evolution

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/haasonsaas/skilllite/internal/skill"
)

const skillSynthesisSystem = `You turn one repeatedly-successful agent workflow into a prompt-only skill.
Respond with strict JSON only:
{"name": "kebab-case-name", "description": "...", "content": "markdown body with the reusable procedure"}.
Respond with {"name": ""} when the workflow is not worth packaging.`

// synthesizeSkill asks the model to package one clean, tool-heavy success
// as a prompt-only skill under skills/_pending/. The user promotes it to
// skills/_evolved/ explicitly; evolution never activates a skill itself.
func (e *Engine) synthesizeSkill(ctx context.Context, decisions []DecisionRecord) int {
	if e.llm == nil {
		return 0
	}
	var clean *DecisionRecord
	for i := range decisions {
		d := &decisions[i]
		if d.TaskCompleted && d.Replans == 0 && d.FailedTools == 0 && d.TotalTools >= 5 {
			clean = d
			break
		}
	}
	if clean == nil {
		return 0
	}

	user := fmt.Sprintf("Task: %s\nTools used: %s", clean.TaskDescription, clean.ToolsDetail)
	text, err := e.llm.CompleteText(ctx, skillSynthesisSystem, user)
	if err != nil {
		_ = e.store.LogEvent(ctx, "skill_synthesis_failed", err.Error())
		return 0
	}
	var payload struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Content     string `json:"content"`
	}
	if err := json.Unmarshal([]byte(stripFences(text)), &payload); err != nil {
		_ = e.store.LogEvent(ctx, "skill_parse_failed", err.Error())
		return 0
	}
	if payload.Name == "" {
		return 0
	}
	if !skill.ValidName(payload.Name) || payload.Description == "" || payload.Content == "" {
		_ = e.store.LogEvent(ctx, "skill_rejected", "invalid synthesized skill fields")
		return 0
	}
	if err := e.gate.CheckContent(payload.Description + "\n" + payload.Content); err != nil {
		_ = e.store.LogEvent(ctx, "skill_rejected", err.Error())
		return 0
	}

	dir := filepath.Join(e.chatHome, "skills", "_pending", payload.Name)
	target := filepath.Join(dir, skill.SkillFilename)
	if err := e.gate.CheckPath(target); err != nil {
		_ = e.store.LogEvent(ctx, "skill_rejected", err.Error())
		return 0
	}
	if _, err := os.Stat(target); err == nil {
		return 0
	}
	doc := skill.SerializeFrontMatter(&skill.Skill{
		Name:        payload.Name,
		Description: payload.Description,
		Content:     payload.Content,
	})
	if err := WriteAtomic(target, []byte(doc)); err != nil {
		_ = e.store.LogEvent(ctx, "skill_write_failed", err.Error())
		return 0
	}
	_ = e.store.LogEvent(ctx, "skill_synthesized", payload.Name)
	return 1
}

// PromotePending moves a user-confirmed skill from _pending to _evolved.
func PromotePending(chatHome, name string) error {
	if !skill.ValidName(name) {
		return fmt.Errorf("invalid skill name: %s", name)
	}
	src := filepath.Join(chatHome, "skills", "_pending", name)
	if _, err := os.Stat(filepath.Join(src, skill.SkillFilename)); err != nil {
		return fmt.Errorf("no pending skill %q: %w", name, err)
	}
	dest := filepath.Join(chatHome, "skills", "_evolved", name)
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("skill %q already promoted", name)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.Rename(src, dest)
}
