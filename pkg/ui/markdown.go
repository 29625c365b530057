package ui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gtext "github.com/yuin/goldmark/text"
)

// RenderMarkdown styles assistant markdown for the terminal. Rendering
// problems fall back to the raw text.
func RenderMarkdown(content string) string {
	styled, err := glamour.Render(content, "dark")
	if err != nil {
		return content
	}
	return strings.TrimRight(styled, "\n")
}

// ExtractCodeBlocks returns the contents of every fenced code block in
// the given markdown, in document order.
func ExtractCodeBlocks(markdown string) []string {
	source := []byte(markdown)
	doc := goldmark.New().Parser().Parse(gtext.NewReader(source))

	var blocks []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		block, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		var sb strings.Builder
		lines := block.Lines()
		for i := 0; i < lines.Len(); i++ {
			segment := lines.At(i)
			sb.Write(segment.Value(source))
		}
		blocks = append(blocks, sb.String())
		return ast.WalkContinue, nil
	})
	return blocks
}
