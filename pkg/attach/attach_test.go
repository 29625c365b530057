package attach

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func collected(items []Attachment) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, filepath.Base(item.Path))
	}
	return out
}

func TestCollector_HonorsGitIgnore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "secret.txt\n")
	writeFile(t, filepath.Join(root, "main.go"), "package main\n")
	writeFile(t, filepath.Join(root, "secret.txt"), "do not attach\n")

	c, err := NewCollector(root, Options{})
	require.NoError(t, err)
	items, err := c.Collect(root)
	require.NoError(t, err)

	names := collected(items)
	assert.Contains(t, names, "main.go")
	assert.NotContains(t, names, "secret.txt")
}

func TestCollector_SkipsBinariesAndOversized(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "notes.md"), "# notes\n")
	require.NoError(t, os.WriteFile(filepath.Join(root, "blob.bin"), []byte{0x00, 0x01, 0x02}, 0o644))
	big := make([]byte, 2048)
	for i := range big {
		big[i] = 'a'
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.txt"), big, 0o644))

	c, err := NewCollector(root, Options{MaxFileSize: 1024, NoGitIgnore: true})
	require.NoError(t, err)
	items, err := c.Collect(root)
	require.NoError(t, err)

	names := collected(items)
	assert.Equal(t, []string{"notes.md"}, names)
}

func TestCollector_IncludeExtsAndSkippedDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.go"), "package a\n")
	writeFile(t, filepath.Join(root, "b.txt"), "text\n")
	writeFile(t, filepath.Join(root, "node_modules", "dep.go"), "package dep\n")

	c, err := NewCollector(root, Options{IncludeExts: []string{".go"}, NoGitIgnore: true})
	require.NoError(t, err)
	items, err := c.Collect(root)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.go"}, collected(items))
	require.Len(t, items, 1)
	assert.Greater(t, items[0].Tokens, 0)
}

func TestCollector_MaxFilesTruncates(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a\n")
	writeFile(t, filepath.Join(root, "b.txt"), "b\n")
	writeFile(t, filepath.Join(root, "c.txt"), "c\n")

	c, err := NewCollector(root, Options{MaxFiles: 2, NoGitIgnore: true})
	require.NoError(t, err)
	items, err := c.Collect(root)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestRender(t *testing.T) {
	items := []Attachment{
		{Path: "cmd/main.go", Content: "package main\n"},
		{Path: "README.md", Content: "hello"},
	}
	out := Render(items)
	assert.Contains(t, out, "## File: cmd/main.go")
	assert.Contains(t, out, "```go\npackage main\n```")
	assert.Contains(t, out, "```markdown\nhello\n```")
}

func TestTotalTokens(t *testing.T) {
	items := []Attachment{{Tokens: 3}, {Tokens: 4}}
	assert.Equal(t, 7, TotalTokens(items))
	assert.Equal(t, 0, TotalTokens(nil))
}
