package admission

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/haasonsaas/skilllite/internal/security"
	"github.com/haasonsaas/skilllite/internal/skill"
)

// RejectionError is a fatal admission verdict; the add/install flow aborts
// and leaves no partial state on disk.
type RejectionError struct {
	Stage  string
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("admission rejected at %s: %s", e.Stage, e.Reason)
}

// Report is the non-fatal outcome of the pipeline: the parsed skill, the
// accumulated risk, and the trust gate the runtime must honor.
type Report struct {
	Skill           *skill.Skill
	Fingerprint     string
	SignatureStatus SignatureStatus
	Risk            security.Risk
	RiskReasons     []string
	Findings        []security.Finding
	Vulnerabilities []Vulnerability
	Trust           TrustAssessment
}

// Options configures pipeline behavior.
type Options struct {
	// Offline skips the dependency audit and the LLM confirmation stage.
	Offline bool

	// Classifier enables the LLM confirmation stage when non-nil and an
	// API key is configured.
	Classifier RiskClassifier

	// ConfirmCachePath persists LLM verdicts across installs.
	ConfirmCachePath string

	// SourceTag labels where the skill came from (local, git, registry).
	SourceTag string
}

// Pipeline runs the staged admission flow over one skill directory.
type Pipeline struct {
	scanner *security.Scanner
	auditor *DependencyAuditor
	opts    Options
	logger  *slog.Logger
}

// NewPipeline builds an admission pipeline.
func NewPipeline(opts Options) *Pipeline {
	if opts.SourceTag == "" {
		opts.SourceTag = "local"
	}
	return &Pipeline{
		scanner: security.NewScanner(),
		auditor: NewDependencyAuditor(),
		opts:    opts,
		logger:  slog.Default().With("component", "admission"),
	}
}

// Admit runs all stages in order, short-circuiting on fatal rejection, and
// records the result in the skills-directory manifest.
func (p *Pipeline) Admit(ctx context.Context, skillsDir, skillDir string) (*Report, error) {
	// Stage 1: metadata parse. Name violations reject here.
	sk, err := skill.Load(skillDir)
	if err != nil {
		return nil, &RejectionError{Stage: "metadata", Reason: err.Error()}
	}

	report := &Report{Skill: sk, Risk: security.RiskSafe}

	// Stage 2: malicious-package check over resolved packages and raw
	// dependency files. Any hit is fatal.
	if hit := p.checkMaliciousPackages(sk); hit != nil {
		return nil, &RejectionError{Stage: "malicious-package", Reason: hit.Reason}
	}

	// Stage 3: SKILL.md content scan.
	contentScan := security.ScanSkillContent(sk.Content)
	report.Findings = append(report.Findings, contentScan.Findings...)
	if risk := security.RiskFromContent(contentScan); risk > security.RiskSafe {
		report.Risk = report.Risk.Max(risk)
		report.RiskReasons = append(report.RiskReasons, "SKILL.md content: "+summarize(contentScan.Findings))
	}

	// Stage 4: static code scan.
	codeScan := p.scanner.ScanSkill(sk)
	report.Findings = append(report.Findings, codeScan.Findings...)
	if risk := security.RiskFromScan(codeScan); risk > security.RiskSafe {
		report.Risk = report.Risk.Max(risk)
		report.RiskReasons = append(report.RiskReasons, "static scan: "+summarize(codeScan.Findings))
	}

	// Stage 5: dependency audit (online only).
	if !p.opts.Offline && len(sk.ResolvedPackages) > 0 {
		vulns := p.auditor.Audit(ctx, sk.ResolvedPackages, sk.Language)
		report.Vulnerabilities = vulns
		if len(vulns) > 0 {
			report.Risk = report.Risk.Max(security.RiskSuspicious)
			report.RiskReasons = append(report.RiskReasons,
				fmt.Sprintf("dependency audit: %d known vulnerabilities", len(vulns)))
		}
	}

	// Stages 6-7: LLM confirmation through the persistent verdict cache,
	// only when earlier stages landed above safe.
	if report.Risk > security.RiskSafe && !p.opts.Offline && p.opts.Classifier != nil {
		cache := OpenConfirmCache(p.opts.ConfirmCachePath)
		risk, reason, err := confirmWithLLM(ctx, p.opts.Classifier, cache, sk)
		if err != nil {
			p.logger.Warn("llm confirmation failed", "skill", sk.Name, "error", err)
		} else {
			report.Risk = report.Risk.Max(risk)
			if reason != "" {
				report.RiskReasons = append(report.RiskReasons, "llm: "+reason)
			}
		}
	}

	// Stage 8: signature verification.
	fingerprint, err := ComputeFingerprint(skillDir)
	if err != nil {
		return nil, fmt.Errorf("compute fingerprint: %w", err)
	}
	report.Fingerprint = fingerprint
	sigStatus, err := VerifySignature(skillDir, fingerprint)
	if err != nil {
		return nil, err
	}
	report.SignatureStatus = sigStatus

	// Stage 10: trust tier assessment (the manifest write below records it).
	integrity := IntegrityOK
	switch sigStatus {
	case SignatureUnsigned:
		integrity = IntegrityUnsigned
	case SignatureInvalid:
		integrity = IntegritySignatureInvalid
	}
	report.Trust = AssessTrust(p.opts.SourceTag, sigStatus, integrity, false, report.Risk)

	// Stage 9: integrity manifest update.
	entry := ManifestEntry{
		Name:            sk.Name,
		Source:          p.opts.SourceTag,
		Hash:            fingerprint,
		SignatureStatus: sigStatus,
		TrustTier:       report.Trust.Tier,
		TrustScore:      report.Trust.Score,
		TierReason:      report.Trust.Reasons,
		InstalledAt:     time.Now().UTC(),
	}
	if err := UpsertEntry(skillsDir, filepath.Base(skillDir), entry); err != nil {
		return nil, fmt.Errorf("update manifest: %w", err)
	}

	return report, nil
}

// checkMaliciousPackages checks resolved packages plus raw requirements.txt
// and package.json dependency names against the embedded tables.
func (p *Pipeline) checkMaliciousPackages(sk *skill.Skill) *security.MaliciousPackageHit {
	names := append([]string(nil), sk.ResolvedPackages...)
	names = append(names, readRequirements(filepath.Join(sk.Dir, "requirements.txt"))...)

	ecosystem := security.EcosystemPyPI
	if sk.Language == skill.LanguageNode {
		ecosystem = security.EcosystemNpm
	}
	for _, name := range names {
		if hit := security.CheckMaliciousPackage(name, ecosystem); hit != nil {
			return hit
		}
	}
	for _, name := range readPackageJSONDeps(filepath.Join(sk.Dir, "package.json")) {
		if hit := security.CheckMaliciousPackage(name, security.EcosystemNpm); hit != nil {
			return hit
		}
	}
	return nil
}

// readRequirements extracts bare package names from a requirements.txt,
// stripping version specifiers and comments.
func readRequirements(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		for _, sep := range []string{"==", ">=", "<=", "~=", "!=", ">", "<", "[", ";", " "} {
			if idx := strings.Index(line, sep); idx >= 0 {
				line = line[:idx]
			}
		}
		if line != "" {
			names = append(names, line)
		}
	}
	return names
}

// readPackageJSONDeps extracts dependency names from a package.json.
func readPackageJSONDeps(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil
	}
	var names []string
	for name := range pkg.Dependencies {
		names = append(names, name)
	}
	for name := range pkg.DevDependencies {
		names = append(names, name)
	}
	return names
}

func summarize(findings []security.Finding) string {
	if len(findings) == 0 {
		return "no findings"
	}
	max := findings[0]
	for _, f := range findings[1:] {
		if f.Severity > max.Severity {
			max = f
		}
	}
	return fmt.Sprintf("%s (%s)", max.Message, max.Severity)
}
