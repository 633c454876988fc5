package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/skilllite/internal/security"
	"github.com/haasonsaas/skilllite/internal/skill"
)

// The extraction helpers implement the narrow interfaces other subsystems
// consume: package inference for the dependency resolver and risk
// classification for the admission pipeline. Both expect strict JSON and
// treat any deviation as a soft failure.

const extractPackagesSystem = `You extract installable package names from environment descriptions.
Respond with strict JSON only: {"packages": ["name", ...]}.
Use canonical pip names for python and npm names for node. Return an empty list when unsure.`

// ExtractPackages implements skill.PackageExtractor.
func (c *Client) ExtractPackages(ctx context.Context, compatibility string, language skill.Language) ([]string, error) {
	user := fmt.Sprintf("Language: %s\nCompatibility: %s", language, compatibility)
	text, err := c.CompleteText(ctx, extractPackagesSystem, user)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Packages []string `json:"packages"`
	}
	if err := json.Unmarshal([]byte(extractJSON(text)), &payload); err != nil {
		return nil, fmt.Errorf("parse package extraction: %w", err)
	}
	return payload.Packages, nil
}

const classifyRiskSystem = `You classify agent skills for safety. Given SKILL.md and script samples,
respond with strict JSON only: {"risk": "safe"|"suspicious"|"malicious", "reason": "..."}.
Classify as malicious only for clear exfiltration, credential theft, or destructive intent.`

// ClassifySkillRisk implements admission.RiskClassifier.
func (c *Client) ClassifySkillRisk(ctx context.Context, skillMD string, samples map[string]string) (security.Risk, string, error) {
	var b strings.Builder
	b.WriteString("SKILL.md:\n")
	b.WriteString(skillMD)
	for name, sample := range samples {
		fmt.Fprintf(&b, "\n\n--- %s ---\n%s", name, sample)
	}
	text, err := c.CompleteText(ctx, classifyRiskSystem, b.String())
	if err != nil {
		return security.RiskSafe, "", err
	}
	var payload struct {
		Risk   string `json:"risk"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(extractJSON(text)), &payload); err != nil {
		return security.RiskSafe, "", fmt.Errorf("parse risk classification: %w", err)
	}
	switch payload.Risk {
	case "malicious":
		return security.RiskMalicious, payload.Reason, nil
	case "suspicious":
		return security.RiskSuspicious, payload.Reason, nil
	}
	return security.RiskSafe, payload.Reason, nil
}

// extractJSON strips markdown code fences the model sometimes wraps around
// JSON output.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	if start := strings.IndexAny(text, "{["); start > 0 {
		text = text[start:]
	}
	return strings.TrimSpace(text)
}
