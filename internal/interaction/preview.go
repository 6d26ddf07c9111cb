package interaction

import (
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// DefaultPreviewLength is the number of runes a preview is cut to.
const DefaultPreviewLength = 80

// markdown is shared by all previews; goldmark parsers are safe for
// concurrent use.
var markdown = goldmark.New()

// MarkdownPreview flattens a markdown body into a single line of plain text
// of at most maxRunes runes. Formatting is dropped, code blocks keep their
// text and links keep their label.
func MarkdownPreview(body string, maxRunes int) string {
	src := []byte(body)
	doc := markdown.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus,
		error) {

		if !entering {
			// Separate blocks so adjacent paragraphs don't run
			// together.
			if n.Type() == ast.TypeBlock {
				b.WriteByte(' ')
			}

			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte(' ')
			}

		case *ast.String:
			b.Write(node.Value)

		case *ast.AutoLink:
			b.Write(node.Label(src))

		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				line := lines.At(i)
				b.Write(line.Value(src))
			}

			return ast.WalkSkipChildren, nil
		}

		return ast.WalkContinue, nil
	})

	return truncate(strings.Join(strings.Fields(b.String()), " "), maxRunes)
}

// truncate cuts s to at most maxRunes runes, marking the cut with an
// ellipsis.
func truncate(s string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}

	runes := []rune(s)

	return strings.TrimSpace(string(runes[:maxRunes-1])) + "…"
}
