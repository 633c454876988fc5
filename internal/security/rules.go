package security

import (
	"regexp"

	"github.com/haasonsaas/skilllite/internal/skill"
)

// Rule is one compiled scan pattern.
type Rule struct {
	ID        string
	Pattern   *regexp.Regexp
	Type      IssueType
	Severity  Severity
	Message   string
	Languages []skill.Language
}

// AppliesTo reports whether the rule covers the given language.
func (r *Rule) AppliesTo(lang skill.Language) bool {
	if len(r.Languages) == 0 {
		return true
	}
	for _, l := range r.Languages {
		if l == lang {
			return true
		}
	}
	return false
}

func rule(id, pattern string, typ IssueType, sev Severity, msg string, langs ...skill.Language) Rule {
	return Rule{
		ID:        id,
		Pattern:   regexp.MustCompile(pattern),
		Type:      typ,
		Severity:  sev,
		Message:   msg,
		Languages: langs,
	}
}

// DefaultRules returns the built-in rule set. Patterns favor low false
// positive rates: word boundaries keep `file.open()` from matching the
// builtin `open(`.
func DefaultRules() []Rule {
	py := skill.LanguagePython
	js := skill.LanguageNode
	sh := skill.LanguageBash
	return []Rule{
		// Python: file operations
		rule("py-file-open", `(?:^|[^.\w])open\s*\(`, IssueFileOperation, SeverityMedium,
			"Built-in open() function detected (file operation)", py),
		rule("py-file-delete", `os\.(?:remove|unlink)|shutil\.rmtree`, IssueFileOperation, SeverityHigh,
			"File deletion operation", py),
		rule("py-dir-list", `os\.(?:listdir|walk)|glob\.glob|pathlib\.Path(?:\([^)]*\))?\.iterdir`,
			IssueFileOperation, SeverityMedium, "Directory listing operation", py),

		// Python: network
		rule("py-net-import", `(?:urllib|requests|http\.client|socket)\.`, IssueNetworkRequest, SeverityMedium,
			"Network library usage", py),
		rule("py-net-request", `(?:urlopen|requests\.(?:get|post|put|delete|patch)|socket\.connect)\s*\(`,
			IssueNetworkRequest, SeverityMedium, "Network request", py),

		// Python: code injection
		rule("py-eval", `(?:^|[^.\w])eval\s*\(`, IssueCodeInjection, SeverityCritical,
			"eval() function - arbitrary code execution", py),
		rule("py-exec", `(?:^|[^.\w])exec\s*\(`, IssueCodeInjection, SeverityCritical,
			"exec() function - arbitrary code execution", py),
		rule("py-compile", `(?:^|[^.\w])compile\s*\(`, IssueCodeInjection, SeverityHigh,
			"compile() function - code compilation", py),
		rule("py-unsafe-deserialize", `(?:pickle|marshal)\.loads?\s*\(|yaml\.(?:load|unsafe_load)\s*\(`,
			IssueCodeInjection, SeverityHigh, "Unsafe deserialization (potential code execution)", py),
		rule("py-dynamic-import", `__import__\s*\(|importlib\.import_module\s*\(`, IssueCodeInjection,
			SeverityHigh, "Dynamic import (bypasses static analysis)", py),
		rule("py-builtins", `__builtins__`, IssueCodeInjection, SeverityHigh, "Built-in scope access", py),
		rule("py-scope-access", `(?:globals|locals|vars)\s*\(\s*\)`, IssueCodeInjection, SeverityHigh,
			"Global/local scope access", py),
		rule("py-builtins-modify", `(?:(?:setattr|delattr)\s*\(\s*(?:__builtins__|builtins)\b|builtins\.\w+\s*=[^=])`,
			IssueCodeInjection, SeverityCritical, "Modification of built-in functions", py),

		// Python: process execution
		rule("py-subprocess", `subprocess\.(?:call|run|Popen|check_output|check_call)\s*\(`,
			IssueProcessExecution, SeverityHigh, "Subprocess execution", py),
		rule("py-os-system", `os\.(?:system|popen|spawn[lv]?[pe]?)\s*\(`, IssueProcessExecution,
			SeverityCritical, "OS command execution", py),

		// Python: memory bombs
		rule("py-large-array", `\[\s*(?:0|None|''|"")\s*\]\s*\*\s*\d{7,}`, IssueMemoryBomb, SeverityHigh,
			"Large array allocation (potential memory bomb)", py),
		rule("py-large-range", `list\s*\(\s*range\s*\(\s*\d{8,}`, IssueMemoryBomb, SeverityHigh,
			"Large range allocation (potential memory bomb)", py),
		rule("py-large-bytes", `(?:bytearray|bytes)\s*\(\s*\d{8,}\s*\)`, IssueMemoryBomb, SeverityHigh,
			"Large byte allocation (potential memory bomb)", py),
		rule("py-infinite-loop", `while\s+True\s*:`, IssueMemoryBomb, SeverityMedium,
			"Potential infinite loop", py),

		// Python: system access
		rule("py-env-access", `os\.(?:environ|getenv|putenv)`, IssueSystemAccess, SeverityMedium,
			"Environment variable access", py),
		rule("py-platform-info", `platform\.(?:system|version|platform|machine|node)`, IssueSystemAccess,
			SeverityMedium, "System information access", py),
		rule("py-sys-info", `sys\.(?:path|modules|argv|version|executable)`, IssueSystemAccess, SeverityLow,
			"Python runtime information access", py),
		rule("py-user-info", `(?:pwd\.getpwuid|os\.(?:getuid|getgid|getlogin))`, IssueSystemAccess,
			SeverityMedium, "User/group information access", py),
		rule("py-psutil", `psutil\.(?:cpu|mem|disk|net|process|Process)`, IssueSystemAccess, SeverityHigh,
			"Process/system monitoring library", py),

		// Python: dangerous modules
		rule("py-ctypes-import", `(?:^|[^#])\s*import\s+ctypes|from\s+ctypes\s+import`, IssueDangerousModule,
			SeverityCritical, "ctypes import (allows arbitrary memory access)", py),
		rule("py-os-import", `(?:^|[^#])\s*import\s+(?:os|subprocess|shutil)\b`, IssueDangerousModule,
			SeverityHigh, "System module import", py),

		// JavaScript / Node
		rule("js-eval", `(?:^|[^.\w])eval\s*\(|new\s+Function\s*\(`, IssueCodeInjection, SeverityCritical,
			"eval() or Function constructor - arbitrary code execution", js),
		rule("js-fetch", `(?:fetch|axios|got)\s*\(`, IssueNetworkRequest, SeverityMedium, "HTTP request", js),
		rule("js-xhr", `new\s+XMLHttpRequest|https?\.request\s*\(`, IssueNetworkRequest, SeverityMedium,
			"HTTP request", js),
		rule("js-fs-sync", `fs\.(?:readFileSync|writeFileSync|appendFileSync|unlinkSync|rmdirSync|rmSync)\s*\(`,
			IssueFileOperation, SeverityMedium, "Synchronous file operation", js),
		rule("js-fs-async", `fs(?:Promises)?\.(?:readFile|writeFile|appendFile|unlink|rmdir|rm)\s*\(`,
			IssueFileOperation, SeverityMedium, "Asynchronous file operation", js),
		rule("js-child-process", `child_process\.(?:exec|execSync|spawn|spawnSync|fork)\s*\(`,
			IssueProcessExecution, SeverityHigh, "Child process execution", js),
		rule("js-require-cp", `require\s*\(\s*['"]child_process['"]\s*\)`, IssueDangerousModule, SeverityHigh,
			"child_process module import", js),
		rule("js-large-array", `new\s+Array\s*\(\s*\d{6,}\s*\)|Array\s*\(\s*\d{6,}\s*\)\.fill`,
			IssueMemoryBomb, SeverityHigh, "Large array allocation (potential memory bomb)", js),
		rule("js-infinite-loop", `while\s*\(\s*true\s*\)`, IssueMemoryBomb, SeverityMedium,
			"Potential infinite loop", js),
		rule("js-env-access", `process\.env`, IssueSystemAccess, SeverityMedium,
			"Environment variable access", js),

		// Bash
		rule("sh-curl-pipe", `(?:curl|wget)[^\n]*\|\s*(?:sh|bash)`, IssueProcessExecution, SeverityCritical,
			"Remote script piped into shell", sh),
		rule("sh-rm-rf", `rm\s+-[rRf]{2,}\s+[/~]`, IssueFileOperation, SeverityCritical,
			"Recursive delete of root or home path", sh),
		rule("sh-eval", `(?:^|[^.\w])eval\s+`, IssueCodeInjection, SeverityHigh,
			"eval - arbitrary command execution", sh),
		rule("sh-netcat", `(?:^|\s)(?:nc|ncat|netcat)\s`, IssueNetworkRequest, SeverityHigh,
			"Raw network tool usage", sh),
	}
}
