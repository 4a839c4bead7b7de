// Package convert imports foreign text formats into model documents.
package convert

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/wudi/doccomposer/model"
	"github.com/wudi/doccomposer/pagesize"
)

const (
	defaultFontSize = 12.0
	lineSpacing     = 1.4
	listIndent      = 15.0
)

// markdownLayout tracks the cursor while flowing markdown blocks onto
// pages.
type markdownLayout struct {
	doc      *model.Document
	page     *model.Page
	pageSize pagesize.Size
	margin   float64
	cursorY  float64
}

// MarkdownToDocument renders markdown source onto pages of the given
// size, flowing headings, paragraphs, and list items top to bottom
// with automatic page breaks. The result always has at least one page.
func MarkdownToDocument(source string, size pagesize.Size, margin float64) *model.Document {
	md := goldmark.New()
	src := []byte(source)
	root := md.Parser().Parse(text.NewReader(src))

	l := &markdownLayout{doc: model.NewDocument(), pageSize: size, margin: margin}
	l.walk(root, src)
	l.ensurePage()
	return l.doc
}

func (l *markdownLayout) walk(node ast.Node, source []byte) {
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch n := child.(type) {
		case *ast.Heading:
			l.heading(n, source)
		case *ast.Paragraph:
			l.wrapped(paragraphText(n, source), l.margin, defaultFontSize)
		case *ast.List:
			l.walk(n, source)
		case *ast.ListItem:
			l.listItem(n, source)
		}
	}
}

func (l *markdownLayout) heading(n *ast.Heading, source []byte) {
	size := defaultFontSize * 2.0
	switch {
	case n.Level == 2:
		size = defaultFontSize * 1.5
	case n.Level >= 3:
		size = defaultFontSize * 1.25
	}
	l.line(string(n.Text(source)), l.margin, size)
}

func (l *markdownLayout) listItem(n *ast.ListItem, source []byte) {
	var content string
	if child := n.FirstChild(); child != nil {
		if p, ok := child.(*ast.Paragraph); ok {
			content = paragraphText(p, source)
		} else {
			content = string(child.Text(source))
		}
	}
	l.ensurePage()
	l.breakIfNeeded(defaultFontSize * lineSpacing)
	l.page.Append(model.TextOp{Text: "-", X: l.margin, Y: l.cursorY - defaultFontSize, Size: defaultFontSize})
	l.wrapped(content, l.margin+listIndent, defaultFontSize)
}

// paragraphText flattens inline nodes to plain text; styling spans are
// kept as their text content.
func paragraphText(n *ast.Paragraph, source []byte) string {
	var sb strings.Builder
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		if t, ok := child.(*ast.Text); ok {
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte(' ')
			}
			continue
		}
		sb.WriteString(string(child.Text(source)))
	}
	return sb.String()
}

// wrapped flows text into lines that fit between x and the right
// margin, breaking pages as needed. Width estimation is a heuristic
// (0.5em average glyph width); Helvetica metrics are close enough for
// plain-text export.
func (l *markdownLayout) wrapped(content string, x, size float64) {
	words := strings.Fields(content)
	if len(words) == 0 {
		return
	}
	maxWidth := l.pageSize.Width - l.margin - x
	line := words[0]
	for _, word := range words[1:] {
		if estimateWidth(line+" "+word, size) <= maxWidth {
			line += " " + word
			continue
		}
		l.line(line, x, size)
		line = word
	}
	l.line(line, x, size)
}

func (l *markdownLayout) line(content string, x, size float64) {
	l.ensurePage()
	l.breakIfNeeded(size * lineSpacing)
	l.page.Append(model.TextOp{Text: content, X: x, Y: l.cursorY - size, Size: size})
	l.cursorY -= size * lineSpacing
}

func (l *markdownLayout) ensurePage() {
	if l.page == nil {
		l.newPage()
	}
}

func (l *markdownLayout) breakIfNeeded(lineHeight float64) {
	if l.cursorY-lineHeight < l.margin {
		l.newPage()
	}
}

func (l *markdownLayout) newPage() {
	l.page = model.NewPage(l.pageSize.Width, l.pageSize.Height)
	l.doc.AddPage(l.page)
	l.cursorY = l.pageSize.Height - l.margin
}

func estimateWidth(content string, size float64) float64 {
	return float64(len(content)) * size * 0.5
}
