package skill

import (
	"path/filepath"
	"strings"
)

// DetectLanguage derives the script runtime using, in order: compatibility
// string heuristics, the entry point extension, then the extensions present
// under scripts/. A skill with no language hint in its compatibility string,
// no entry point and no script yields LanguageUnknown rather than silently
// assuming Python.
func DetectLanguage(compatibility, entryPoint string, scripts []string) Language {
	if lang := languageFromCompatibility(compatibility); lang != LanguageUnknown {
		return lang
	}
	if lang := languageFromPath(entryPoint); lang != LanguageUnknown {
		return lang
	}
	for _, s := range scripts {
		if lang := languageFromPath(s); lang != LanguageUnknown {
			return lang
		}
	}
	return LanguageUnknown
}

func languageFromCompatibility(compat string) Language {
	lower := strings.ToLower(compat)
	switch {
	case strings.Contains(lower, "python"):
		return LanguagePython
	case strings.Contains(lower, "node"), strings.Contains(lower, "javascript"),
		strings.Contains(lower, "typescript"):
		return LanguageNode
	case strings.Contains(lower, "bash"), strings.Contains(lower, "shell"):
		return LanguageBash
	}
	return LanguageUnknown
}

func languageFromPath(path string) Language {
	switch filepath.Ext(path) {
	case ".py":
		return LanguagePython
	case ".js", ".ts":
		return LanguageNode
	case ".sh":
		return LanguageBash
	}
	return LanguageUnknown
}

// Extensions returns the script file extensions for the language, used to
// filter files during static scanning.
func (l Language) Extensions() []string {
	switch l {
	case LanguagePython:
		return []string{".py"}
	case LanguageNode:
		return []string{".js", ".ts"}
	case LanguageBash:
		return []string{".sh"}
	}
	return []string{".py", ".js", ".ts", ".sh"}
}
