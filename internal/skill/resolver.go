package skill

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// PackageExtractor asks a language model to pull installable package names
// out of a free-form compatibility string. Implemented by the agent's LLM
// provider; nil disables the LLM layer.
type PackageExtractor interface {
	ExtractPackages(ctx context.Context, compatibility string, language Language) ([]string, error)
}

// ResolvedDependencies is the outcome of the resolution pipeline.
type ResolvedDependencies struct {
	// Packages are pip/npm installable names.
	Packages []string

	// Resolver identifies the layer that produced the result.
	Resolver ResolverKind

	// Unknown lists resolved packages absent from the whitelist.
	Unknown []string
}

// Resolver runs the three-layer dependency pipeline: lock file, LLM
// inference, whitelist match. A successful resolution is always written back
// to the lock file.
type Resolver struct {
	extractor PackageExtractor
	offline   bool
	client    *http.Client
	logger    *slog.Logger
}

// NewResolver builds a resolver. extractor may be nil; offline additionally
// disables index verification.
func NewResolver(extractor PackageExtractor, offline bool) *Resolver {
	return &Resolver{
		extractor: extractor,
		offline:   offline,
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    slog.Default().With("component", "resolver"),
	}
}

// ResolveSync runs only the synchronous layers (lock, whitelist). Used on
// load paths that must not block on network I/O.
func (r *Resolver) ResolveSync(dir, compatibility string, language Language) ResolvedDependencies {
	if pkgs := r.fromLock(dir, compatibility); pkgs != nil {
		return ResolvedDependencies{Packages: pkgs, Resolver: ResolverLock}
	}
	if matched := MatchWhitelist(compatibility, language); len(matched) > 0 {
		return ResolvedDependencies{Packages: matched, Resolver: ResolverWhitelist}
	}
	return ResolvedDependencies{Resolver: ResolverNone}
}

// Resolve runs the full pipeline and writes the result back to the lock
// file keyed by the current compatibility hash.
func (r *Resolver) Resolve(ctx context.Context, dir, compatibility string, language Language) (ResolvedDependencies, error) {
	if pkgs := r.fromLock(dir, compatibility); pkgs != nil {
		return ResolvedDependencies{Packages: pkgs, Resolver: ResolverLock}, nil
	}

	if r.extractor != nil && !r.offline {
		pkgs, err := r.fromLLM(ctx, compatibility, language)
		if err != nil {
			r.logger.Debug("llm resolution failed, falling back to whitelist", "error", err)
		} else if len(pkgs) > 0 {
			result := ResolvedDependencies{Packages: pkgs, Resolver: ResolverLLM}
			result.Unknown = unknownPackages(pkgs, language)
			if err := WriteLock(dir, compatibility, language, pkgs, ResolverLLM); err != nil {
				return result, fmt.Errorf("write lock: %w", err)
			}
			return result, nil
		}
	}

	matched := MatchWhitelist(compatibility, language)
	kind := ResolverWhitelist
	if len(matched) == 0 {
		kind = ResolverNone
	}
	if err := WriteLock(dir, compatibility, language, matched, kind); err != nil {
		return ResolvedDependencies{}, fmt.Errorf("write lock: %w", err)
	}
	return ResolvedDependencies{Packages: matched, Resolver: kind}, nil
}

func (r *Resolver) fromLock(dir, compatibility string) []string {
	lock, err := ReadLock(dir)
	if err != nil || lock == nil {
		return nil
	}
	if lock.CompatibilityHash != CompatibilityHash(compatibility) {
		r.logger.Debug("lock file stale: compatibility hash mismatch", "dir", dir)
		return nil
	}
	if len(lock.ResolvedPackages) == 0 {
		return nil
	}
	return lock.ResolvedPackages
}

// fromLLM extracts candidate names via the model and keeps only those that
// exist in the public index for the language.
func (r *Resolver) fromLLM(ctx context.Context, compatibility string, language Language) ([]string, error) {
	candidates, err := r.extractor.ExtractPackages(ctx, compatibility, language)
	if err != nil {
		return nil, err
	}
	var verified []string
	for _, pkg := range candidates {
		if url.PathEscape(pkg) != pkg {
			continue
		}
		ok, err := r.packageExists(ctx, pkg, language)
		if err != nil {
			r.logger.Debug("index verification failed", "package", pkg, "error", err)
			continue
		}
		if ok {
			verified = append(verified, pkg)
		}
	}
	return verified, nil
}

func (r *Resolver) packageExists(ctx context.Context, pkg string, language Language) (bool, error) {
	var endpoint string
	switch language {
	case LanguagePython:
		endpoint = "https://pypi.org/pypi/" + url.PathEscape(pkg) + "/json"
	case LanguageNode:
		endpoint = "https://registry.npmjs.org/" + url.PathEscape(pkg)
	default:
		return false, fmt.Errorf("no package index for language %q", language)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

func unknownPackages(pkgs []string, language Language) []string {
	var unknown []string
	for _, p := range pkgs {
		if !KnownPackage(p, language) {
			unknown = append(unknown, p)
		}
	}
	return unknown
}
