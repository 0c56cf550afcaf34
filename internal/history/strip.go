// ABOUTME: Markdown markup stripping for chat title derivation
// ABOUTME: Walks the goldmark AST and keeps only text content

package history

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// StripMarkup removes markdown control markup from s, returning plain
// text with whitespace collapsed. Code block contents and link text are
// kept; formatting characters, URLs in link targets, and structural
// markers are dropped.
func StripMarkup(s string) string {
	src := []byte(s)
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.AutoLink:
			b.Write(node.URL(src))
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(src))
				b.WriteByte(' ')
			}
		case *ast.Image:
			// Alt text arrives via child Text nodes; skip the target.
		}
		return ast.WalkContinue, nil
	})

	return strings.Join(strings.Fields(b.String()), " ")
}
