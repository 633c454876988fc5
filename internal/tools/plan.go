package tools

import (
	"context"
	"fmt"

	"github.com/haasonsaas/skilllite/internal/session"
	"github.com/haasonsaas/skilllite/pkg/models"
)

// ChatPlanTool renders the current task plan for the model.
type ChatPlanTool struct {
	State *session.State
}

func (t *ChatPlanTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "chat_plan",
		Description: "Show the current task plan with completion state.",
		Parameters:  schema(`{"type": "object", "properties": {}}`),
	}
}

func (t *ChatPlanTool) Execute(_ context.Context, _ string) (string, error) {
	if t.State.TaskPlan.Empty() {
		return "no task plan", nil
	}
	return t.State.TaskPlan.Textify(), nil
}

// UpdateTaskPlanTool replaces the plan wholesale after validation and
// emits task events through the sink.
type UpdateTaskPlanTool struct {
	State *session.State
}

func (t *UpdateTaskPlanTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "update_task_plan",
		Description: "Replace the task plan. Pass the full new list; ids must be unique and descriptions non-empty. Set completed on finished tasks.",
		Parameters: schema(`{
			"type": "object",
			"properties": {
				"tasks": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"id": {"type": "integer"},
							"description": {"type": "string"},
							"tool_hint": {"type": "string"},
							"completed": {"type": "boolean"}
						},
						"required": ["id", "description"]
					}
				}
			},
			"required": ["tasks"]
		}`),
	}
}

func (t *UpdateTaskPlanTool) Execute(ctx context.Context, arguments string) (string, error) {
	return t.ExecuteWithSink(ctx, arguments, models.NopSink{})
}

func (t *UpdateTaskPlanTool) ExecuteWithSink(_ context.Context, arguments string, sink models.EventSink) (string, error) {
	var plan models.TaskPlan
	if err := parseArgs(arguments, &plan); err != nil {
		return "", err
	}
	if err := plan.Validate(); err != nil {
		return "", fmt.Errorf("invalid task plan: %v", err)
	}

	prev := map[uint32]bool{}
	if t.State.TaskPlan != nil {
		for _, task := range t.State.TaskPlan.Tasks {
			prev[task.ID] = task.Completed
		}
	}
	if t.State.TaskPlan != nil {
		t.State.Feedback.Replans++
	}
	t.State.TaskPlan = &plan

	sink.OnTaskPlan(&plan)
	for _, task := range plan.Tasks {
		if task.Completed && !prev[task.ID] {
			sink.OnTaskProgress(task.ID, true)
		}
	}
	return fmt.Sprintf("task plan updated: %d tasks", len(plan.Tasks)), nil
}
