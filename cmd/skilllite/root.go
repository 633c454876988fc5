package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/skilllite/internal/admission"
	"github.com/haasonsaas/skilllite/internal/agent"
	"github.com/haasonsaas/skilllite/internal/agent/providers"
	"github.com/haasonsaas/skilllite/internal/config"
	"github.com/haasonsaas/skilllite/internal/evolution"
	"github.com/haasonsaas/skilllite/internal/memory"
	"github.com/haasonsaas/skilllite/internal/observability"
	"github.com/haasonsaas/skilllite/internal/sandbox"
	"github.com/haasonsaas/skilllite/internal/session"
	"github.com/haasonsaas/skilllite/internal/skill"
	"github.com/haasonsaas/skilllite/internal/tools"
)

// rootFlags are shared across subcommands.
type rootFlags struct {
	workspace    string
	sandboxLevel int
	offline      bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "skilllite",
		Short:         "Agent runtime for sandboxed, user-authored skills",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg := config.Load()
			observability.SetupLogging(cfg.LogLevel, cfg.Quiet)
		},
	}
	root.PersistentFlags().StringVarP(&flags.workspace, "workspace", "w", ".", "workspace directory")
	root.PersistentFlags().IntVar(&flags.sandboxLevel, "sandbox-level", 0,
		"sandbox level 1-3 (overrides SKILLLITE_SANDBOX_LEVEL)")
	root.PersistentFlags().BoolVar(&flags.offline, "offline", false, "disable network-dependent stages")

	root.AddCommand(
		newChatCmd(flags),
		newAddCmd(flags),
		newReindexCmd(flags),
		newScanCmd(),
		newRunCmd(flags),
		newListCmd(flags),
		newMCPCmd(flags),
		newRPCCmd(flags),
		newAgentRPCCmd(flags),
		newEvolveCmd(flags),
		newQuickstartCmd(flags),
		newSignCmd(),
	)
	return root
}

// runtime bundles the assembled components a command needs.
type runtime struct {
	cfg       *config.Config
	rc        *config.RuntimeContext
	skills    map[string]*skill.Skill
	executor  *sandbox.Executor
	registry  *tools.Registry
	state     *session.State
	persister *session.Persister
	memory    *memory.Store
	llm       *providers.Client
	audit     *observability.AuditLogger
}

// buildRuntime wires the core components for a workspace. The LLM client
// is nil when no API key is configured; callers degrade accordingly.
func buildRuntime(flags *rootFlags) (*runtime, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	// CLI flag wins over the environment variable.
	if flags.sandboxLevel >= config.SandboxLevelNone && flags.sandboxLevel <= config.SandboxLevelScanned &&
		flags.sandboxLevel != 0 {
		cfg.SandboxLevel = flags.sandboxLevel
	}

	rc, err := config.NewRuntimeContext(cfg, flags.workspace)
	if err != nil {
		return nil, err
	}

	skills, err := skill.Discover(cfg.SkillsDir)
	if err != nil {
		return nil, err
	}
	// Apply trust recorded at admission: a skill whose manifest entry
	// re-assesses to Deny, or whose stored tier is UNTRUSTED, is not loaded.
	// Loaded skills get no trust-based confirmation at run time; the only
	// run-time confirmation is the executor's level-3 static-scan gate.
	manifest, err := admission.LoadManifest(cfg.SkillsDir)
	if err == nil {
		for name, sk := range skills {
			if entry, ok := manifest.Skills[filepath.Base(sk.Dir)]; ok {
				assessment := admission.AssessTrust(entry.Source, entry.SignatureStatus,
					admission.IntegrityOK, false, 0)
				if assessment.Decision == admission.DecisionDeny ||
					entry.TrustTier == admission.TierUntrusted {
					delete(skills, name)
				}
			}
		}
	}

	audit := observability.NewAuditLogger(cfg.AuditLog)
	limits := sandbox.Limits{MaxMemoryMB: cfg.MaxMemoryMB, TimeoutSecs: cfg.TimeoutSecs}
	executor := sandbox.NewExecutor(rc, limits, audit)

	var llm *providers.Client
	if cfg.APIKey != "" {
		llm, err = providers.NewClient(cfg.APIKey, cfg.APIBase, cfg.Model)
		if err != nil {
			return nil, err
		}
	}

	chatHome := config.ChatHome()
	state := session.New(rc.Workspace)
	persister := session.NewPersister(chatHome)

	memStore, err := memory.Open(filepath.Join(chatHome, "memory"), "default")
	if err != nil {
		return nil, err
	}

	var summarizer tools.Summarizer
	if llm != nil {
		summarizer = llm
	}
	registry := tools.NewRegistry(tools.NewShaper(0, 0, summarizer))
	if err := registerBuiltins(registry, rc, state, persister, memStore); err != nil {
		return nil, err
	}
	for _, sk := range skills {
		for _, tool := range tools.SkillTools(sk, executor) {
			if err := registry.Register(tool); err != nil {
				return nil, fmt.Errorf("register skill tool: %w", err)
			}
		}
	}

	return &runtime{
		cfg:       cfg,
		rc:        rc,
		skills:    skills,
		executor:  executor,
		registry:  registry,
		state:     state,
		persister: persister,
		memory:    memStore,
		llm:       llm,
		audit:     audit,
	}, nil
}

func registerBuiltins(registry *tools.Registry, rc *config.RuntimeContext,
	state *session.State, persister *session.Persister, memStore *memory.Store) error {

	builtins := []tools.Tool{
		&tools.ReadFileTool{Workspace: rc.Workspace},
		&tools.WriteFileTool{Workspace: rc.Workspace},
		&tools.SearchReplaceTool{Workspace: rc.Workspace},
		&tools.InsertLinesTool{Workspace: rc.Workspace},
		&tools.GrepFilesTool{Workspace: rc.Workspace},
		&tools.ListDirectoryTool{Workspace: rc.Workspace},
		&tools.FileExistsTool{Workspace: rc.Workspace},
		&tools.RunCommandTool{Workspace: rc.Workspace, DefaultTimeout: 30 * time.Second},
		&tools.PreviewServerTool{Workspace: rc.Workspace},
		&tools.ChatPlanTool{State: state},
		&tools.UpdateTaskPlanTool{State: state},
		&tools.ChatHistoryTool{State: state, Persister: persister},
		&tools.MemorySearchTool{Store: memStore, AgentID: "default"},
		&tools.MemoryWriteTool{Store: memStore, AgentID: "default"},
		&tools.MemoryListTool{Store: memStore, AgentID: "default"},
	}
	for _, t := range builtins {
		if err := registry.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func newRuleStore(chatHome string) *agent.RuleStore {
	return agent.NewRuleStore(filepath.Join(chatHome, "prompts"))
}

func newExampleStore(chatHome string) *agent.ExampleStore {
	return agent.NewExampleStore(filepath.Join(chatHome, "prompts"))
}

// evolutionLLM adapts the runtime's client for the evolution engine; nil
// when no API key is configured.
func evolutionLLM(rt *runtime) evolution.LLM {
	if rt.llm == nil {
		return nil
	}
	return rt.llm
}

// buildLoop assembles the agent loop over a runtime.
func buildLoop(rt *runtime) *agent.Loop {
	chatHome := config.ChatHome()
	rules := newRuleStore(chatHome)
	examples := newExampleStore(chatHome)

	var extractor agent.TaskExtractor
	var llm agent.LLM
	var overflow agent.OverflowChecker
	if rt.llm != nil {
		extractor = rt.llm
		llm = rt.llm
		overflow = providers.IsContextOverflow
	}
	planner := agent.NewPlanner(rules, examples, extractor)

	var compactor *agent.Compactor
	if extractor != nil {
		compactor = agent.NewCompactor(extractor, 0, 0)
	}

	cfg := agent.DefaultConfig()
	cfg.GoalLLMExtract = rt.cfg.GoalLLMExtract

	return agent.NewLoop(llm, overflow, rt.registry, rt.skills, planner, compactor,
		rt.state, chatHome, cfg)
}

func requireAPIKey(rt *runtime) error {
	if rt.llm == nil {
		return providers.ErrAPIKeyMissing
	}
	return nil
}
