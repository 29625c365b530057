package attach

import (
	"fmt"
	"path/filepath"
	"strings"
)

var languageByExt = map[string]string{
	".go":   "go",
	".rs":   "rust",
	".py":   "python",
	".js":   "javascript",
	".ts":   "typescript",
	".tsx":  "tsx",
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".toml": "toml",
	".sh":   "bash",
	".sql":  "sql",
	".md":   "markdown",
	".html": "html",
	".css":  "css",
}

// Render lays the attachments out as fenced code blocks, ready to be
// appended to a prompt.
func Render(items []Attachment) string {
	var sb strings.Builder
	for _, item := range items {
		lang := languageByExt[strings.ToLower(filepath.Ext(item.Path))]
		fmt.Fprintf(&sb, "## File: %s\n\n```%s\n%s\n```\n\n", item.Path, lang, strings.TrimRight(item.Content, "\n"))
	}
	return sb.String()
}
