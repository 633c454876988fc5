package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/skilllite/internal/agent"
	"github.com/haasonsaas/skilllite/internal/config"
	"github.com/haasonsaas/skilllite/internal/evolution"
	"github.com/haasonsaas/skilllite/internal/session"
	"github.com/haasonsaas/skilllite/pkg/models"
)

func newChatCmd(flags *rootFlags) *cobra.Command {
	var once string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive agent session in the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(flags)
			if err != nil {
				return err
			}
			defer rt.memory.Close()
			if err := requireAPIKey(rt); err != nil {
				return err
			}

			loop := buildLoop(rt)
			chatHome := config.ChatHome()
			store, err := evolution.OpenStore(filepath.Join(chatHome, "decisions.sqlite"))
			if err != nil {
				return err
			}
			defer store.Close()

			// Evolution runs in its own task, talking to the loop only
			// through the decisions store.
			engine := evolution.NewEngine(store, evolutionLLM(rt), chatHome,
				newRuleStore(chatHome), newExampleStore(chatHome))
			runner := evolution.NewRunner(engine, 0, "")
			if err := runner.Start(cmd.Context()); err != nil {
				return err
			}
			defer runner.Stop()

			sink := newConsoleSink(rt.cfg.AutoApprove)
			if once != "" {
				return runOneTurn(cmd.Context(), rt, loop, store, once, sink)
			}

			fmt.Println("skilllite chat — /clear resets, /quit exits")
			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				switch {
				case line == "":
					continue
				case line == "/quit", line == "/exit":
					return nil
				case line == "/clear":
					rt.state.Clear()
					fmt.Println("session cleared")
					continue
				}
				if err := runOneTurn(cmd.Context(), rt, loop, store, line, sink); err != nil {
					fmt.Fprintln(os.Stderr, "Error:", err)
				}
				runner.NoteActivity()
			}
		},
	}
	cmd.Flags().StringVar(&once, "message", "", "run a single turn and exit")
	return cmd
}

func runOneTurn(ctx context.Context, rt *runtime, loop *agent.Loop,
	store *evolution.Store, message string, sink models.EventSink) error {

	result, err := loop.RunTurn(ctx, message, sink)

	// Record the decision regardless of outcome; failures are signal too.
	record := &evolution.DecisionRecord{
		SessionID:       rt.state.SessionID,
		TotalTools:      rt.state.Feedback.TotalTools,
		FailedTools:     rt.state.Feedback.FailedTools,
		Replans:         rt.state.Feedback.Replans,
		ElapsedMs:       rt.state.Feedback.Elapsed.Milliseconds(),
		TaskCompleted:   err == nil && rt.state.Feedback.Completed,
		Feedback:        rt.state.Feedback.Feedback,
		TaskDescription: message,
		ToolsDetail:     toolsDetail(rt.state.Feedback),
	}
	if recErr := store.RecordDecision(ctx, record); recErr != nil {
		fmt.Fprintln(os.Stderr, "warning: decision not recorded:", recErr)
	} else if result != nil && result.MatchedRuleID != "" {
		_ = store.RecordRuleTrigger(ctx, result.MatchedRuleID, record.ID)
	}

	if err != nil {
		return err
	}
	_ = rt.persister.SaveInfo(rt.state)
	_ = rt.persister.AppendTranscript(rt.state.SessionKey, result.Messages)
	if result.Plan != nil {
		_ = rt.persister.SavePlan(rt.state.SessionKey, result.Plan)
	}
	return nil
}

func toolsDetail(f session.ExecutionFeedback) string {
	var parts []string
	for _, d := range f.ToolsDetail {
		status := "ok"
		if d.IsError {
			status = "err"
		}
		parts = append(parts, d.Name+":"+status)
	}
	return strings.Join(parts, ",")
}

// consoleSink renders events on the terminal. Confirmation prompts print
// to stderr and read a y/N answer from stdin unless auto-approve is on.
type consoleSink struct {
	autoApprove bool
	stdin       *bufio.Reader
}

func newConsoleSink(autoApprove bool) *consoleSink {
	return &consoleSink{autoApprove: autoApprove, stdin: bufio.NewReader(os.Stdin)}
}

func (s *consoleSink) OnTextChunk(text string) { fmt.Print(text) }
func (s *consoleSink) OnText(string)           { fmt.Println() }

func (s *consoleSink) OnToolCall(name, _ string) {
	fmt.Fprintf(os.Stderr, "\n[tool] %s\n", name)
}

func (s *consoleSink) OnToolResult(name, content string, isError bool) {
	if isError {
		fmt.Fprintf(os.Stderr, "[tool] %s failed: %s\n", name, firstLine(content))
	}
}

func (s *consoleSink) OnConfirmationRequest(prompt string) bool {
	if s.autoApprove {
		return true
	}
	fmt.Fprintf(os.Stderr, "\n%s [y/N] ", prompt)
	line, err := s.stdin.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func (s *consoleSink) OnTaskPlan(plan *models.TaskPlan) {
	fmt.Fprintln(os.Stderr, "\n"+plan.Textify())
}

func (s *consoleSink) OnTaskProgress(id uint32, completed bool) {
	if completed {
		fmt.Fprintf(os.Stderr, "[plan] task %d done\n", id)
	}
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
