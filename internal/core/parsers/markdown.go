package parsers

import (
	"context"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/markdave123-py/prepdocs/internal/models"
)

// MarkdownParser strips Markdown syntax and emits the document text as one
// page, one line per block. Code blocks are kept verbatim, raw HTML is dropped.
type MarkdownParser struct {
	md goldmark.Markdown
}

func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{md: goldmark.New()}
}

func (p *MarkdownParser) Parse(ctx context.Context, content io.Reader) iter.Seq2[models.Page, error] {
	return func(yield func(models.Page, error) bool) {
		src, err := io.ReadAll(content)
		if err != nil {
			yield(models.Page{}, fmt.Errorf("read markdown: %w", err))
			return
		}
		if err := ctx.Err(); err != nil {
			yield(models.Page{}, err)
			return
		}

		doc := p.md.Parser().Parse(text.NewReader(src))
		out := strings.TrimSpace(markdownText(doc, src))
		if out == "" {
			return
		}
		yield(models.Page{Index: 0, Offset: 0, Text: out}, nil)
	}
}

func markdownText(doc ast.Node, src []byte) string {
	var b strings.Builder
	newline := func() {
		if s := b.String(); s != "" && !strings.HasSuffix(s, "\n") {
			b.WriteByte('\n')
		}
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch n := n.(type) {
		case *ast.Text:
			if entering {
				b.Write(n.Segment.Value(src))
				if n.SoftLineBreak() || n.HardLineBreak() {
					b.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				b.Write(n.Value)
			}
		case *ast.AutoLink:
			if entering {
				b.Write(n.URL(src))
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				newline()
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					b.Write(seg.Value(src))
				}
				newline()
				return ast.WalkSkipChildren, nil
			}
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		if !entering && n.Type() == ast.TypeBlock {
			newline()
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}
