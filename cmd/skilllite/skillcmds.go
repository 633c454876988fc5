package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/skilllite/internal/admission"
	"github.com/haasonsaas/skilllite/internal/config"
	"github.com/haasonsaas/skilllite/internal/observability"
	"github.com/haasonsaas/skilllite/internal/security"
	"github.com/haasonsaas/skilllite/internal/skill"
)

// newAddCmd installs a skill through the admission pipeline. A rejection
// leaves no partial state: the destination is only created after
// admission passes.
func newAddCmd(flags *rootFlags) *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "add <skill-dir>",
		Short: "Install a skill after admission checks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(flags)
			if err != nil {
				return err
			}
			defer rt.memory.Close()

			src, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			dest := filepath.Join(rt.cfg.SkillsDir, filepath.Base(src))
			if _, err := os.Stat(dest); err == nil {
				return fmt.Errorf("skill already installed at %s", dest)
			}

			pipeline := admission.NewPipeline(admission.Options{
				Offline:          flags.offline,
				Classifier:       classifierOrNil(rt),
				ConfirmCachePath: filepath.Join(config.ChatHome(), "scan-cache.json"),
				SourceTag:        source,
			})

			// Admit against the source directory first so a rejection
			// never touches the skills dir.
			report, err := pipeline.Admit(cmd.Context(), rt.cfg.SkillsDir, src)
			if err != nil {
				var rejection *admission.RejectionError
				if errors.As(err, &rejection) {
					observabilityRecordVerdict("malicious")
					_, _ = admission.RemoveEntry(rt.cfg.SkillsDir, filepath.Base(src))
					return fmt.Errorf("rejected: %s", rejection.Reason)
				}
				return err
			}
			observabilityRecordVerdict(report.Risk.String())

			if report.Trust.Decision == admission.DecisionDeny {
				_, _ = admission.RemoveEntry(rt.cfg.SkillsDir, filepath.Base(src))
				return fmt.Errorf("rejected: trust decision is deny (%v)", report.Trust.Reasons)
			}

			if err := copyTree(src, dest); err != nil {
				os.RemoveAll(dest)
				return fmt.Errorf("install: %w", err)
			}
			// Drop the manifest entry recorded under the source directory's
			// name when it differs from the installed directory name; no
			// entry is written under the installed name here.
			if filepath.Base(src) != filepath.Base(dest) {
				_, _ = admission.RemoveEntry(rt.cfg.SkillsDir, filepath.Base(src))
			}

			fmt.Printf("installed %s (%s, trust %s, score %d)\n",
				report.Skill.Name, report.Risk, report.Trust.Tier, report.Trust.Score)
			if report.Trust.Decision == admission.DecisionRequireConfirm {
				fmt.Println("note: this skill will require confirmation before execution")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "local", "source tag (local, git, registry)")
	return cmd
}

// newReindexCmd re-runs admission over every installed skill.
func newReindexCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Re-run admission over all installed skills",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(flags)
			if err != nil {
				return err
			}
			defer rt.memory.Close()

			pipeline := admission.NewPipeline(admission.Options{
				Offline:          flags.offline,
				Classifier:       classifierOrNil(rt),
				ConfirmCachePath: filepath.Join(config.ChatHome(), "scan-cache.json"),
			})

			entries, err := os.ReadDir(rt.cfg.SkillsDir)
			if err != nil {
				return err
			}
			for _, entry := range entries {
				if !entry.IsDir() || entry.Name()[0] == '_' || entry.Name()[0] == '.' {
					continue
				}
				dir := filepath.Join(rt.cfg.SkillsDir, entry.Name())
				if _, err := os.Stat(filepath.Join(dir, skill.SkillFilename)); err != nil {
					continue
				}
				report, err := pipeline.Admit(cmd.Context(), rt.cfg.SkillsDir, dir)
				if err != nil {
					fmt.Printf("%-24s REJECTED: %v\n", entry.Name(), err)
					continue
				}
				fmt.Printf("%-24s %s trust=%s score=%d\n",
					entry.Name(), report.Risk, report.Trust.Tier, report.Trust.Score)
			}
			return nil
		},
	}
}

// newScanCmd scans a file or snippet without executing it.
func newScanCmd() *cobra.Command {
	var language string

	cmd := &cobra.Command{
		Use:   "scan <file>",
		Short: "Statically scan a script for security issues",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			lang := skill.Language(language)
			if language == "" {
				lang = skill.DetectLanguage("", args[0], nil)
			}
			result := security.NewScanner().ScanCode(string(data), lang)
			if len(result.Findings) == 0 {
				fmt.Println("no findings")
				return nil
			}
			for _, f := range result.Findings {
				fmt.Printf("[%s] %s (%s) line %d\n", f.Severity, f.Message, f.RuleID, f.Line)
			}
			if result.HasCritical() {
				return fmt.Errorf("critical findings present")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&language, "language", "", "script language (python, node, bash)")
	return cmd
}

// newListCmd prints installed skills with trust state.
func newListCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed skills",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(flags)
			if err != nil {
				return err
			}
			defer rt.memory.Close()

			manifest, _ := admission.LoadManifest(rt.cfg.SkillsDir)
			for name, sk := range rt.skills {
				tier := "-"
				if manifest != nil {
					if entry, ok := manifest.Skills[filepath.Base(sk.Dir)]; ok {
						tier = string(entry.TrustTier)
					}
				}
				fmt.Printf("%-24s %-12s %-10s %s\n", name, sk.Kind, tier, sk.Description)
			}
			return nil
		},
	}
}

// newSignCmd writes SKILL.sig with the current content fingerprint.
func newSignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sign <skill-dir>",
		Short: "Sign a skill directory with its content fingerprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fp, err := admission.WriteSignature(args[0])
			if err != nil {
				return err
			}
			fmt.Println("signed:", fp)
			return nil
		},
	}
}

func classifierOrNil(rt *runtime) admission.RiskClassifier {
	if rt.llm == nil {
		return nil
	}
	return rt.llm
}

func observabilityRecordVerdict(risk string) {
	observability.AdmissionVerdicts.WithLabelValues(risk).Inc()
}

func copyTree(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		out, err := os.Create(target)
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, in)
		return err
	})
}
