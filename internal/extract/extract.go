// Package extract pulls plain text, a preview and the outgoing links out of
// an article's markdown.
package extract

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/JakeFAU/notes-service/internal/links"
)

// PreviewMaxLen caps the preview in bytes. The preview only ever contains
// whole words.
const PreviewMaxLen = 140

// Info is what an article's markdown yields.
type Info struct {
	Text     string
	Preview  string
	Links    []string
	Language string
}

// Extractor parses markdown with GFM extensions enabled, so bare URLs count
// as links.
type Extractor struct {
	md       goldmark.Markdown
	detector links.LanguageDetector
}

// New returns an Extractor. A nil detector leaves Info.Language empty.
func New(detector links.LanguageDetector) *Extractor {
	return &Extractor{
		md:       goldmark.New(goldmark.WithExtensions(extension.GFM)),
		detector: detector,
	}
}

// Extract walks the markdown AST. Links keep document order and duplicates;
// the reconciler dedupes.
func (e *Extractor) Extract(markdown string) Info {
	source := []byte(markdown)
	doc := e.md.Parser().Parse(text.NewReader(source))

	var (
		words []string
		urls  []string
	)
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Link:
			urls = append(urls, string(node.Destination))
		case *ast.Image:
			// Image sources are not links and alt text is not prose.
			return ast.WalkSkipChildren, nil
		case *ast.AutoLink:
			urls = append(urls, string(node.URL(source)))
			words = append(words, strings.Fields(string(node.Label(source)))...)
		case *ast.Text:
			words = append(words, strings.Fields(string(node.Segment.Value(source)))...)
		case *ast.String:
			words = append(words, strings.Fields(string(node.Value))...)
		case *ast.CodeSpan:
			words = append(words, strings.Fields(codeSpanText(node, source))...)
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			words = append(words, strings.Fields(blockText(n, source))...)
		}
		return ast.WalkContinue, nil
	})

	info := Info{
		Text:    strings.Join(words, " "),
		Preview: preview(words, PreviewMaxLen),
		Links:   urls,
	}
	if e.detector != nil {
		info.Language = e.detector.Detect(info.Text)
	}
	return info
}

// preview joins whole words while the result stays within max bytes.
func preview(words []string, max int) string {
	var b strings.Builder
	for _, w := range words {
		n := len(w)
		if b.Len() > 0 {
			n++
		}
		if b.Len()+n > max {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
	}
	return b.String()
}

func codeSpanText(n *ast.CodeSpan, source []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			b.Write(t.Segment.Value(source))
		}
	}
	return b.String()
}

func blockText(n ast.Node, source []byte) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(source))
	}
	return b.String()
}
