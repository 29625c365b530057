package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCodeBlocks(t *testing.T) {
	md := "intro\n\n```go\npackage main\n\nfunc main() {}\n```\n\ntext between\n\n```bash\necho hi\n```\n"
	blocks := ExtractCodeBlocks(md)
	require.Len(t, blocks, 2)
	assert.Equal(t, "package main\n\nfunc main() {}\n", blocks[0])
	assert.Equal(t, "echo hi\n", blocks[1])
}

func TestExtractCodeBlocks_NoBlocks(t *testing.T) {
	assert.Empty(t, ExtractCodeBlocks("just some *markdown* text"))
	assert.Empty(t, ExtractCodeBlocks(""))
}

func TestRenderMarkdown_FallsBackOnPlainText(t *testing.T) {
	out := RenderMarkdown("hello")
	assert.Contains(t, out, "hello")
}
