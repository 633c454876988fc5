package admission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/haasonsaas/skilllite/internal/skill"
)

// Vulnerability is one advisory affecting a resolved package.
type Vulnerability struct {
	Package string `json:"package"`
	ID      string `json:"id"`
	Summary string `json:"summary,omitempty"`
}

// DependencyAuditor queries external vulnerability databases: the PyPI JSON
// API for Python packages and OSV for npm. Skipped entirely in offline mode.
type DependencyAuditor struct {
	client *http.Client
}

// NewDependencyAuditor builds an auditor with a bounded per-request timeout.
func NewDependencyAuditor() *DependencyAuditor {
	return &DependencyAuditor{client: &http.Client{Timeout: 10 * time.Second}}
}

// Audit checks every package and returns the advisories found. Lookup
// failures for individual packages are skipped; the audit is advisory, not
// a gate.
func (a *DependencyAuditor) Audit(ctx context.Context, packages []string, language skill.Language) []Vulnerability {
	var vulns []Vulnerability
	for _, pkg := range packages {
		var found []Vulnerability
		var err error
		switch language {
		case skill.LanguagePython:
			found, err = a.auditPyPI(ctx, pkg)
		case skill.LanguageNode:
			found, err = a.auditOSV(ctx, pkg, "npm")
		default:
			continue
		}
		if err != nil {
			continue
		}
		vulns = append(vulns, found...)
	}
	return vulns
}

func (a *DependencyAuditor) auditPyPI(ctx context.Context, pkg string) ([]Vulnerability, error) {
	endpoint := "https://pypi.org/pypi/" + url.PathEscape(pkg) + "/json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pypi returned %d for %s", resp.StatusCode, pkg)
	}

	var payload struct {
		Vulnerabilities []struct {
			ID      string `json:"id"`
			Summary string `json:"summary"`
		} `json:"vulnerabilities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	var vulns []Vulnerability
	for _, v := range payload.Vulnerabilities {
		vulns = append(vulns, Vulnerability{Package: pkg, ID: v.ID, Summary: v.Summary})
	}
	return vulns, nil
}

func (a *DependencyAuditor) auditOSV(ctx context.Context, pkg, ecosystem string) ([]Vulnerability, error) {
	query := map[string]any{
		"package": map[string]string{"name": pkg, "ecosystem": ecosystem},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.osv.dev/v1/query", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("osv returned %d for %s", resp.StatusCode, pkg)
	}

	var payload struct {
		Vulns []struct {
			ID      string `json:"id"`
			Summary string `json:"summary"`
		} `json:"vulns"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	var vulns []Vulnerability
	for _, v := range payload.Vulns {
		vulns = append(vulns, Vulnerability{Package: pkg, ID: v.ID, Summary: v.Summary})
	}
	return vulns, nil
}
