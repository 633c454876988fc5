package admission

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/haasonsaas/skilllite/internal/security"
	"github.com/haasonsaas/skilllite/internal/skill"
)

// llmConfirmTimeout bounds the classification call.
const llmConfirmTimeout = 15 * time.Second

// Sample limits: at most three script files, truncated to 1200 chars each.
const (
	maxSampleFiles = 3
	maxSampleChars = 1200
)

// RiskClassifier asks a language model for a strict-JSON {risk, reason}
// classification of a skill. Implemented by the agent's LLM provider.
type RiskClassifier interface {
	ClassifySkillRisk(ctx context.Context, skillMD string, samples map[string]string) (security.Risk, string, error)
}

// ScriptSamples collects small excerpts of the skill's scripts for the
// classification prompt.
func ScriptSamples(sk *skill.Skill) map[string]string {
	samples := make(map[string]string)
	paths := sk.Scripts
	if sk.EntryPoint != "" {
		paths = append([]string{sk.EntryPoint}, paths...)
	}
	for _, rel := range paths {
		if len(samples) >= maxSampleFiles {
			break
		}
		if _, ok := samples[rel]; ok {
			continue
		}
		data, err := os.ReadFile(filepath.Join(sk.Dir, rel))
		if err != nil {
			continue
		}
		text := string(data)
		if len(text) > maxSampleChars {
			text = text[:maxSampleChars]
		}
		samples[rel] = text
	}
	return samples
}

// ConfirmCacheKey hashes the classification input (SKILL.md plus samples)
// so repeat installs skip the LLM call.
func ConfirmCacheKey(skillMD string, samples map[string]string) string {
	h := sha256.New()
	h.Write([]byte(skillMD))
	keys := make([]string, 0, len(samples))
	for k := range samples {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(samples[k]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// confirmCacheEntry is one persisted LLM verdict.
type confirmCacheEntry struct {
	Risk   string `json:"risk"`
	Reason string `json:"reason"`
}

// ConfirmCache persists LLM classification verdicts keyed by input hash.
type ConfirmCache struct {
	path    string
	entries map[string]confirmCacheEntry
}

// OpenConfirmCache loads (or initializes) the verdict cache at path.
func OpenConfirmCache(path string) *ConfirmCache {
	cache := &ConfirmCache{path: path, entries: map[string]confirmCacheEntry{}}
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &cache.entries)
	}
	return cache
}

// Get returns a cached verdict.
func (c *ConfirmCache) Get(key string) (security.Risk, string, bool) {
	entry, ok := c.entries[key]
	if !ok {
		return security.RiskSafe, "", false
	}
	return parseRisk(entry.Risk), entry.Reason, true
}

// Put records a verdict and persists the cache. Persistence failures are
// non-fatal; the verdict is still usable in-process.
func (c *ConfirmCache) Put(key string, risk security.Risk, reason string) {
	c.entries[key] = confirmCacheEntry{Risk: risk.String(), Reason: reason}
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return
	}
	_ = os.MkdirAll(filepath.Dir(c.path), 0o755)
	_ = os.WriteFile(c.path, data, 0o644)
}

func parseRisk(s string) security.Risk {
	switch s {
	case "malicious":
		return security.RiskMalicious
	case "suspicious":
		return security.RiskSuspicious
	}
	return security.RiskSafe
}

// confirmWithLLM runs the bounded classification call through the cache.
func confirmWithLLM(ctx context.Context, classifier RiskClassifier, cache *ConfirmCache,
	sk *skill.Skill) (security.Risk, string, error) {

	samples := ScriptSamples(sk)
	key := ConfirmCacheKey(sk.Content, samples)
	if risk, reason, ok := cache.Get(key); ok {
		return risk, reason, nil
	}

	ctx, cancel := context.WithTimeout(ctx, llmConfirmTimeout)
	defer cancel()

	risk, reason, err := classifier.ClassifySkillRisk(ctx, sk.Content, samples)
	if err != nil {
		return security.RiskSafe, "", fmt.Errorf("llm risk classification: %w", err)
	}
	cache.Put(key, risk, reason)
	return risk, reason, nil
}
