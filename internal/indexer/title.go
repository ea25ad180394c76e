package indexer

import (
	"bytes"
	"path"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// maxTitleLength bounds titles taken from the first line of plain text
const maxTitleLength = 120

var markdown = goldmark.New()

// ExtractTitle derives a document title. Markdown files use their first
// heading; other files use their first non-empty line. Both fall back to the
// file name without extension.
func ExtractTitle(relPath, body string) string {
	var title string
	switch strings.ToLower(path.Ext(relPath)) {
	case ".md", ".markdown", ".mdx":
		title = markdownTitle(body)
	default:
		title = firstLine(body)
	}
	if title != "" {
		return title
	}
	base := path.Base(relPath)
	return strings.TrimSuffix(base, path.Ext(base))
}

// markdownTitle returns the text of the first heading at any level
func markdownTitle(body string) string {
	source := []byte(body)
	doc := markdown.Parser().Parse(text.NewReader(source))

	var title string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		title = strings.TrimSpace(inlineText(h, source))
		if title == "" {
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkStop, nil
	})
	return title
}

// inlineText concatenates the text segments under n, dropping markup
func inlineText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(t.Value)
		case *ast.CodeSpan:
			for s := t.FirstChild(); s != nil; s = s.NextSibling() {
				if st, ok := s.(*ast.Text); ok {
					buf.Write(st.Segment.Value(source))
				}
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func firstLine(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if r := []rune(line); len(r) > maxTitleLength {
			line = string(r[:maxTitleLength])
		}
		return line
	}
	return ""
}
