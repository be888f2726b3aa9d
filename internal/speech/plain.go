package speech

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Extractor reduces markdown to the words a listener should hear.
type Extractor struct {
	md goldmark.Markdown

	// IncludeCode reads code blocks aloud instead of skipping them.
	IncludeCode bool
}

// NewExtractor creates an extractor that skips code blocks.
func NewExtractor() *Extractor {
	return &Extractor{md: goldmark.New()}
}

// PlainText returns the speakable text of a markdown document. Each block
// becomes one sentence.
func (e *Extractor) PlainText(markdown string) string {
	source := []byte(markdown)
	doc := e.md.Parser().Parse(text.NewReader(source))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				b.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}

		switch n := n.(type) {
		case *ast.Text:
			b.Write(n.Segment.Value(source))
			switch {
			case n.HardLineBreak():
				b.WriteByte('\n')
			case n.SoftLineBreak():
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(n.Value)
		case *ast.AutoLink:
			b.Write(n.Label(source))
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if e.IncludeCode {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					b.Write(seg.Value(source))
				}
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	var sentences []string
	for _, line := range strings.Split(b.String(), "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			continue
		}
		if !strings.ContainsAny(line[len(line)-1:], ".!?:;") {
			line += "."
		}
		sentences = append(sentences, line)
	}
	return strings.Join(sentences, " ")
}
