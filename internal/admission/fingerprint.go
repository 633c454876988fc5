// Package admission implements the installation-time pipeline that
// classifies and gates skills: content fingerprinting, signature
// verification, the integrity manifest, malicious-package checks, and
// tiered trust assessment.
package admission

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SignatureFilename holds the expected fingerprint, one lowercase hex
// SHA-256 line.
const SignatureFilename = "SKILL.sig"

// ManifestFilename is the integrity manifest stored in the skills directory.
const ManifestFilename = ".skilllite-manifest.json"

// ignoredDirs are excluded from the content fingerprint.
var ignoredDirs = map[string]bool{
	".git":         true,
	"__pycache__":  true,
	"node_modules": true,
	"dist":         true,
	"build":        true,
	".venv":        true,
	"venv":         true,
}

// ignoredFiles are excluded from the content fingerprint. The signature
// file itself must not feed the hash it attests to.
var ignoredFiles = map[string]bool{
	ManifestFilename:  true,
	SignatureFilename: true,
	".DS_Store":       true,
}

// ComputeFingerprint returns the deterministic SHA-256 content fingerprint
// of a skill directory: files sorted by slash-joined relative path, each
// hashed as path, NUL, content, NUL. The result is identical across runs
// and platforms for stable contents.
func ComputeFingerprint(skillDir string) (string, error) {
	var files []string
	if err := collectFiles(skillDir, skillDir, &files); err != nil {
		return "", err
	}
	sort.Strings(files)

	h := sha256.New()
	for _, rel := range files {
		content, err := os.ReadFile(filepath.Join(skillDir, filepath.FromSlash(rel)))
		if err != nil {
			return "", fmt.Errorf("read file for hashing: %w", err)
		}
		h.Write([]byte(rel))
		h.Write([]byte{0})
		h.Write(content)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func collectFiles(root, current string, out *[]string) error {
	entries, err := os.ReadDir(current)
	if err != nil {
		return fmt.Errorf("read directory: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		path := filepath.Join(current, name)
		if entry.IsDir() {
			if ignoredDirs[name] {
				continue
			}
			if err := collectFiles(root, path, out); err != nil {
				return err
			}
			continue
		}
		if !entry.Type().IsRegular() {
			continue
		}
		if ignoredFiles[name] {
			continue
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		*out = append(*out, filepath.ToSlash(rel))
	}
	return nil
}

// SignatureStatus is the outcome of signature verification.
type SignatureStatus string

const (
	SignatureUnsigned SignatureStatus = "UNSIGNED"
	SignatureValid    SignatureStatus = "VALID"
	SignatureInvalid  SignatureStatus = "INVALID"
)

// VerifySignature compares SKILL.sig against the current fingerprint,
// case-insensitively. A missing file is Unsigned; an empty or mismatched
// file is Invalid.
func VerifySignature(skillDir, fingerprint string) (SignatureStatus, error) {
	data, err := os.ReadFile(filepath.Join(skillDir, SignatureFilename))
	if err != nil {
		if os.IsNotExist(err) {
			return SignatureUnsigned, nil
		}
		return SignatureInvalid, fmt.Errorf("read signature file: %w", err)
	}
	expected := strings.TrimSpace(string(data))
	if expected == "" {
		return SignatureInvalid, nil
	}
	if strings.EqualFold(expected, fingerprint) {
		return SignatureValid, nil
	}
	return SignatureInvalid, nil
}

// WriteSignature signs a skill directory by recording its current
// fingerprint in SKILL.sig.
func WriteSignature(skillDir string) (string, error) {
	fp, err := ComputeFingerprint(skillDir)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(skillDir, SignatureFilename), []byte(fp+"\n"), 0o644); err != nil {
		return "", err
	}
	return fp, nil
}
