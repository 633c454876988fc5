package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/skilllite/internal/config"
	"github.com/haasonsaas/skilllite/internal/evolution"
	"github.com/haasonsaas/skilllite/internal/mcp"
	"github.com/haasonsaas/skilllite/internal/rpc"
	"github.com/haasonsaas/skilllite/internal/sandbox"
	"github.com/haasonsaas/skilllite/internal/security"
	"github.com/haasonsaas/skilllite/internal/skill"
	"github.com/haasonsaas/skilllite/pkg/models"
)

// newMCPCmd runs the MCP stdio server.
func newMCPCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(flags)
			if err != nil {
				return err
			}
			defer rt.memory.Close()

			limits := sandbox.Limits{MaxMemoryMB: rt.cfg.MaxMemoryMB, TimeoutSecs: rt.cfg.TimeoutSecs}
			handlers := &mcp.Handlers{
				Skills:    rt.skills,
				SkillsDir: rt.cfg.SkillsDir,
				Executor:  rt.executor,
				Scanner:   security.NewScanner(),
				Cache:     security.NewScanCache(0),
				Runner:    sandbox.NewRunner(rt.rc.SandboxLevel, limits, rt.audit),
				Workspace: rt.rc.Workspace,
				TempRoot:  os.TempDir(),
			}
			server := mcp.NewServer(handlers, os.Stdout)
			return server.Serve(cmd.Context(), os.Stdin)
		},
	}
}

// newRPCCmd runs the stdio JSON-RPC server.
func newRPCCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rpc",
		Short: "Run the JSON-RPC 2.0 server over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(flags)
			if err != nil {
				return err
			}
			defer rt.memory.Close()

			server := rpc.NewServer(os.Stdout)
			rpc.RegisterMethods(server, &rpc.Deps{
				Skills:    rt.skills,
				Executor:  rt.executor,
				Registry:  rt.registry,
				Persister: rt.persister,
				Memory:    rt.memory,
				AgentID:   "default",
				ChatHome:  config.ChatHome(),
			})
			return server.Serve(cmd.Context(), os.Stdin)
		},
	}
}

// newAgentRPCCmd runs the JSON-Lines streaming agent server.
func newAgentRPCCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "agent-rpc",
		Short: "Run the streaming agent-RPC server over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(flags)
			if err != nil {
				return err
			}
			defer rt.memory.Close()
			if err := requireAPIKey(rt); err != nil {
				return err
			}

			out := bufio.NewWriter(os.Stdout)
			defer out.Flush()
			server := rpc.NewStreamServer(buildLoop(rt), out)
			return server.Serve(cmd.Context(), os.Stdin)
		},
	}
}

// newEvolveCmd runs one evolution cycle immediately, or promotes a
// pending synthesized skill.
func newEvolveCmd(flags *rootFlags) *cobra.Command {
	var promote string

	cmd := &cobra.Command{
		Use:   "evolve",
		Short: "Run one evolution cycle over unprocessed decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if promote != "" {
				if err := evolution.PromotePending(config.ChatHome(), promote); err != nil {
					return err
				}
				fmt.Printf("promoted %s to skills/_evolved\n", promote)
				return nil
			}
			rt, err := buildRuntime(flags)
			if err != nil {
				return err
			}
			defer rt.memory.Close()

			chatHome := config.ChatHome()
			store, err := evolution.OpenStore(filepath.Join(chatHome, "decisions.sqlite"))
			if err != nil {
				return err
			}
			defer store.Close()

			engine := evolution.NewEngine(store, evolutionLLM(rt), chatHome,
				newRuleStore(chatHome), newExampleStore(chatHome))
			if err := engine.RunCycle(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("evolution cycle complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&promote, "promote", "", "promote a pending synthesized skill by name")
	return cmd
}

// newQuickstartCmd creates the chat-home layout and a sample skill.
func newQuickstartCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "quickstart",
		Short: "Create the chat home layout and a sample skill",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			chatHome := config.ChatHome()
			for _, dir := range []string{
				chatHome,
				filepath.Join(chatHome, "transcripts"),
				filepath.Join(chatHome, "plans"),
				filepath.Join(chatHome, "memory"),
				filepath.Join(chatHome, "prompts"),
				filepath.Join(chatHome, "skills", "_pending"),
				filepath.Join(chatHome, "skills", "_evolved"),
				filepath.Join(chatHome, "output"),
				cfg.SkillsDir,
			} {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}

			sampleDir := filepath.Join(cfg.SkillsDir, "hello-report")
			if _, err := os.Stat(sampleDir); err == nil {
				fmt.Println("chat home ready at", chatHome)
				return nil
			}
			if err := os.MkdirAll(filepath.Join(sampleDir, "scripts"), 0o755); err != nil {
				return err
			}
			sample := &skill.Skill{
				Name:          "hello-report",
				Description:   "Write a short markdown report about the workspace.",
				Compatibility: "Requires Python 3.x",
				EntryPoint:    "scripts/main.py",
				Content: "# hello-report\n\nGenerates a short markdown report summarizing the" +
					" workspace contents. Pass {\"title\": \"...\"} to set the heading.",
			}
			if err := os.WriteFile(filepath.Join(sampleDir, skill.SkillFilename),
				[]byte(skill.SerializeFrontMatter(sample)), 0o644); err != nil {
				return err
			}
			script := `import json, os, sys

args = json.loads(sys.argv[1]) if len(sys.argv) > 1 else {}
title = args.get("title", "Workspace Report")
names = sorted(os.listdir("."))[:50]
print(json.dumps({"title": title, "files": names}))
`
			if err := os.WriteFile(filepath.Join(sampleDir, "scripts", "main.py"),
				[]byte(script), 0o755); err != nil {
				return err
			}
			fmt.Println("chat home ready at", chatHome)
			fmt.Println("sample skill installed:", sampleDir)
			return nil
		},
	}
}

// newRunCmd executes one skill tool directly, bypassing the model.
func newRunCmd(flags *rootFlags) *cobra.Command {
	var argsJSON string

	cmd := &cobra.Command{
		Use:   "run <skill>",
		Short: "Run a skill directly with JSON arguments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(flags)
			if err != nil {
				return err
			}
			defer rt.memory.Close()

			sk, ok := rt.skills[args[0]]
			if !ok {
				return fmt.Errorf("unknown skill: %s", args[0])
			}
			if argsJSON != "" && !json.Valid([]byte(argsJSON)) {
				return fmt.Errorf("--args must be valid JSON")
			}

			toolName := models.SanitizeToolName(sk.Name)
			def := models.ToolDefinition{Name: toolName, Parameters: json.RawMessage(`{"type":"object"}`)}
			call := models.ToolCall{ID: "cli", Name: toolName, Arguments: argsJSON}
			sink := newConsoleSink(rt.cfg.AutoApprove)
			result := rt.executor.Execute(cmd.Context(), sk, &def, call, sink)
			fmt.Println(result.Content)
			if result.IsError {
				return fmt.Errorf("skill failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&argsJSON, "args", "{}", "JSON arguments for the skill")
	return cmd
}
