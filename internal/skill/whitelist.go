package skill

import "strings"

// Embedded package whitelist for offline dependency resolution. Matching is
// case-insensitive with word boundaries so that "requests" does not match
// "request" inside another token.

var pythonWhitelist = []string{
	"aiohttp", "beautifulsoup4", "boto3", "click", "cryptography", "django",
	"fastapi", "flask", "httpx", "jinja2", "lxml", "matplotlib", "numpy",
	"openai", "opencv-python", "openpyxl", "pandas", "paramiko", "pillow",
	"psycopg2-binary", "pydantic", "pymongo", "pypdf", "pytest", "python-dateutil",
	"python-docx", "python-pptx", "pyyaml", "redis", "reportlab", "requests",
	"rich", "scikit-learn", "scipy", "seaborn", "sqlalchemy", "tqdm", "typer",
}

var pythonAliases = map[string]string{
	"cv2":      "opencv-python",
	"pil":      "pillow",
	"sklearn":  "scikit-learn",
	"yaml":     "pyyaml",
	"bs4":      "beautifulsoup4",
	"docx":     "python-docx",
	"pptx":     "python-pptx",
	"dateutil": "python-dateutil",
	"psycopg2": "psycopg2-binary",
}

var nodeWhitelist = []string{
	"axios", "cheerio", "chalk", "commander", "csv-parse", "dotenv", "express",
	"fs-extra", "glob", "inquirer", "jsdom", "lodash", "marked", "node-fetch",
	"ora", "pdf-lib", "playwright", "puppeteer", "sharp", "uuid", "ws",
	"yargs", "zod",
}

var nodeAliases = map[string]string{
	"fetch": "node-fetch",
}

// MatchWhitelist tokenizes the compatibility string against the embedded
// whitelist for the given language and returns the matched canonical
// package names.
func MatchWhitelist(compatibility string, language Language) []string {
	var packages []string
	var aliases map[string]string
	switch language {
	case LanguagePython:
		packages, aliases = pythonWhitelist, pythonAliases
	case LanguageNode:
		packages, aliases = nodeWhitelist, nodeAliases
	default:
		return nil
	}

	lower := strings.ToLower(compatibility)
	var matched []string
	seen := make(map[string]bool)
	for _, pkg := range packages {
		if wordBoundaryMatch(lower, strings.ToLower(pkg)) && !seen[pkg] {
			matched = append(matched, pkg)
			seen[pkg] = true
		}
	}
	for alias, canonical := range aliases {
		if wordBoundaryMatch(lower, alias) && !seen[canonical] {
			matched = append(matched, canonical)
			seen[canonical] = true
		}
	}
	return matched
}

// KnownPackage reports whether pkg appears in the whitelist for language.
func KnownPackage(pkg string, language Language) bool {
	var packages []string
	switch language {
	case LanguagePython:
		packages = pythonWhitelist
	case LanguageNode:
		packages = nodeWhitelist
	default:
		return false
	}
	lower := strings.ToLower(pkg)
	for _, p := range packages {
		if strings.ToLower(p) == lower {
			return true
		}
	}
	return false
}

func wordBoundaryMatch(text, word string) bool {
	for i := 0; i+len(word) <= len(text); i++ {
		if text[i:i+len(word)] != word {
			continue
		}
		beforeOK := i == 0 || !isAlnum(text[i-1])
		after := i + len(word)
		afterOK := after >= len(text) || !isAlnum(text[after])
		if beforeOK && afterOK {
			return true
		}
	}
	return false
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
