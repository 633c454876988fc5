package sandbox

import (
	"path/filepath"
	"strings"
)

// Extensions treated as artifact outputs. Bare filenames with these
// extensions are rewritten to absolute paths under the output directory
// because some CLI tools ignore the child process's working directory.
var outputExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp", ".svg",
	".pdf", ".html", ".htm", ".json", ".csv", ".txt", ".md",
	".webm", ".mp4",
}

// RewriteOutputPaths rewrites bare output-filename arguments in a bash
// command to absolute paths under outputDir. Arguments that are already
// absolute, reference an env var, or are URLs are left alone.
func RewriteOutputPaths(command, outputDir string) string {
	parts := strings.Fields(command)
	if len(parts) < 2 {
		return command
	}

	out := make([]string, 0, len(parts))
	for _, part := range parts {
		lower := strings.ToLower(part)

		hasOutputExt := false
		for _, ext := range outputExtensions {
			if strings.HasSuffix(lower, ext) {
				hasOutputExt = true
				break
			}
		}

		switch {
		case !hasOutputExt,
			strings.HasPrefix(part, "/"),
			strings.Contains(part, "$"),
			strings.Contains(part, "://"):
			out = append(out, part)
		default:
			out = append(out, filepath.Join(outputDir, part))
		}
	}
	return strings.Join(out, " ")
}
