package admission

import (
	"strings"

	"github.com/haasonsaas/skilllite/internal/security"
)

// TrustTier is the runtime-consulted classification of an installed skill.
type TrustTier string

const (
	TierTrusted   TrustTier = "TRUSTED"
	TierVerified  TrustTier = "VERIFIED"
	TierCommunity TrustTier = "COMMUNITY"
	TierUntrusted TrustTier = "UNTRUSTED"
)

// TrustDecision tells executors how to gate a skill.
type TrustDecision string

const (
	DecisionAllow          TrustDecision = "ALLOW"
	DecisionRequireConfirm TrustDecision = "REQUIRE_CONFIRM"
	DecisionDeny           TrustDecision = "DENY"
)

// IntegritySignal summarizes manifest-hash agreement.
type IntegritySignal string

const (
	IntegrityOK               IntegritySignal = "OK"
	IntegrityHashChanged      IntegritySignal = "HASH_CHANGED"
	IntegrityUnsigned         IntegritySignal = "UNSIGNED"
	IntegritySignatureInvalid IntegritySignal = "SIGNATURE_INVALID"
)

// TrustAssessment is the pipeline's final gate output.
type TrustAssessment struct {
	Tier     TrustTier     `json:"tier"`
	Score    uint8         `json:"score"`
	Decision TrustDecision `json:"decision"`
	Reasons  []string      `json:"reasons"`
}

// trustedSources are source tags whose publishers we control.
var trustedSources = []string{"builtin", "official"}

// knownSources are source tags with an identified publisher.
var knownSources = []string{"local", "git", "registry"}

// AssessTrust combines the admission signals into a tier, a 0-100 score,
// and an executor decision. The policy: Deny on invalid signature or a
// malicious verdict; RequireConfirm on unsigned-from-unknown-source or a
// suspicious verdict; Allow otherwise.
func AssessTrust(sourceTag string, sig SignatureStatus, integrity IntegritySignal,
	maliciousPackage bool, risk security.Risk) TrustAssessment {

	score := 50
	var reasons []string

	source := strings.ToLower(strings.TrimSpace(sourceTag))
	sourceTrusted := containsString(trustedSources, source)
	sourceKnown := sourceTrusted || containsString(knownSources, source)

	switch {
	case sourceTrusted:
		score += 25
		reasons = append(reasons, "source is trusted ("+source+")")
	case sourceKnown:
		score += 10
		reasons = append(reasons, "source is known ("+source+")")
	default:
		score -= 10
		reasons = append(reasons, "source is unknown")
	}

	switch sig {
	case SignatureValid:
		score += 25
		reasons = append(reasons, "signature valid")
	case SignatureUnsigned:
		reasons = append(reasons, "skill is unsigned")
	case SignatureInvalid:
		score = 0
		reasons = append(reasons, "signature invalid: content does not match SKILL.sig")
	}

	switch integrity {
	case IntegrityOK:
		score += 10
	case IntegrityHashChanged:
		score -= 25
		reasons = append(reasons, "content changed since installation")
	case IntegritySignatureInvalid:
		score = 0
	}

	if maliciousPackage {
		score = 0
		reasons = append(reasons, "depends on a known-malicious package")
	}

	switch risk {
	case security.RiskMalicious:
		score = 0
		reasons = append(reasons, "static analysis verdict: malicious")
	case security.RiskSuspicious:
		score -= 20
		reasons = append(reasons, "static analysis verdict: suspicious")
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	var decision TrustDecision
	switch {
	case sig == SignatureInvalid || maliciousPackage || risk == security.RiskMalicious:
		decision = DecisionDeny
	case (sig == SignatureUnsigned && !sourceKnown) || risk == security.RiskSuspicious:
		decision = DecisionRequireConfirm
	default:
		decision = DecisionAllow
	}

	var tier TrustTier
	switch {
	case decision == DecisionDeny:
		tier = TierUntrusted
	case sourceTrusted && sig == SignatureValid:
		tier = TierTrusted
	case sig == SignatureValid:
		tier = TierVerified
	case sourceKnown:
		tier = TierCommunity
	default:
		tier = TierUntrusted
	}

	return TrustAssessment{
		Tier:     tier,
		Score:    uint8(score),
		Decision: decision,
		Reasons:  reasons,
	}
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
