package models

import "fmt"

// Task is one step of a task plan.
type Task struct {
	ID          uint32 `json:"id"`
	Description string `json:"description"`
	ToolHint    string `json:"tool_hint,omitempty"`
	Completed   bool   `json:"completed"`
}

// TaskPlan is an ordered sequence of tasks. Replacement is wholesale: the
// update_task_plan tool swaps the entire list after validation.
type TaskPlan struct {
	Tasks []Task `json:"tasks"`
}

// Validate checks the plan replacement rules: non-empty list, unique ids,
// non-empty descriptions.
func (p *TaskPlan) Validate() error {
	if len(p.Tasks) == 0 {
		return fmt.Errorf("task plan must contain at least one task")
	}
	seen := make(map[uint32]bool, len(p.Tasks))
	for _, t := range p.Tasks {
		if seen[t.ID] {
			return fmt.Errorf("duplicate task id %d", t.ID)
		}
		seen[t.ID] = true
		if t.Description == "" {
			return fmt.Errorf("task %d has an empty description", t.ID)
		}
	}
	return nil
}

// Empty reports whether the plan has no tasks.
func (p *TaskPlan) Empty() bool {
	return p == nil || len(p.Tasks) == 0
}

// MarkCompleted sets the completed flag on the task with the given id and
// reports whether it was found.
func (p *TaskPlan) MarkCompleted(id uint32) bool {
	for i := range p.Tasks {
		if p.Tasks[i].ID == id {
			p.Tasks[i].Completed = true
			return true
		}
	}
	return false
}

// Textify renders the plan as a numbered checklist for prompt injection.
func (p *TaskPlan) Textify() string {
	if p.Empty() {
		return ""
	}
	out := "Task plan:\n"
	for _, t := range p.Tasks {
		box := "[ ]"
		if t.Completed {
			box = "[x]"
		}
		out += fmt.Sprintf("%s %d. %s", box, t.ID, t.Description)
		if t.ToolHint != "" {
			out += fmt.Sprintf(" (tool: %s)", t.ToolHint)
		}
		out += "\n"
	}
	return out
}
