// Package markdown splits markdown data dictionaries into per-table sections.
package markdown

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// Section is the text under one H1 or H2 heading.
type Section struct {
	Index      int    // Position in document (0, 1, 2...)
	Level      int    // 1 or 2
	Title      string // Heading text
	HeaderPath string // Hierarchy: "# shop > ## users"
	Body       string // Text up to the next H1/H2, heading line excluded
}

// Chunker splits markdown at H1 and H2 boundaries.
type Chunker struct {
	parser goldmark.Markdown
}

// NewChunker creates a new markdown chunker configured with goldmark parser.
func NewChunker() *Chunker {
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Chunker{
		parser: md,
	}
}

type outlineItem struct {
	level int
	title string
	path  string
	node  ast.Node
}

// Sections returns the H1 and H2 sections in document order. A document
// without headings yields no sections.
func (c *Chunker) Sections(source []byte) ([]Section, error) {
	doc := c.parser.Parser().Parse(text.NewReader(source))

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(2),
		toc.Compact(true),
	)
	if err != nil {
		return nil, fmt.Errorf("inspect TOC: %w", err)
	}

	var outline []outlineItem
	flatten(doc, tree.Items, nil, &outline)

	sections := make([]Section, 0, len(outline))
	for i, item := range outline {
		start := lineEnd(source, item.node.Lines().At(0).Stop)
		end := len(source)
		if i+1 < len(outline) {
			end = lineStart(source, outline[i+1].node.Lines().At(0).Start)
		}
		if end < start {
			end = start
		}

		sections = append(sections, Section{
			Index:      len(sections),
			Level:      item.level,
			Title:      item.title,
			HeaderPath: item.path,
			Body:       strings.TrimSpace(string(source[start:end])),
		})
	}
	return sections, nil
}

// flatten walks the TOC depth-first, which matches document order.
func flatten(doc ast.Node, items toc.Items, ancestors []string, out *[]outlineItem) {
	for _, item := range items {
		title := strings.TrimSpace(string(item.Title))
		current := append(append([]string(nil), ancestors...), title)

		if node := findHeaderByID(doc, string(item.ID)); node != nil && node.Lines().Len() > 0 {
			*out = append(*out, outlineItem{
				level: node.(*ast.Heading).Level,
				title: title,
				path:  formatHeaderPath(current),
				node:  node,
			})
		}

		if len(item.Items) > 0 {
			flatten(doc, item.Items, current, out)
		}
	}
}

// formatHeaderPath builds a header hierarchy string.
// Example: ["shop", "users"] -> "# shop > ## users"
func formatHeaderPath(path []string) string {
	parts := make([]string, len(path))
	for i, segment := range path {
		parts[i] = fmt.Sprintf("%s %s", strings.Repeat("#", i+1), segment)
	}
	return strings.Join(parts, " > ")
}

// findHeaderByID locates a heading node by its auto-generated ID.
func findHeaderByID(node ast.Node, id string) ast.Node {
	var found ast.Node
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && n.Kind() == ast.KindHeading {
			headingID, ok := n.AttributeString("id")
			if ok && string(headingID.([]byte)) == id {
				found = n
				return ast.WalkStop, nil
			}
		}
		return ast.WalkContinue, nil
	})
	return found
}

// lineEnd returns the offset just past the newline at or after pos.
func lineEnd(source []byte, pos int) int {
	if i := bytes.IndexByte(source[pos:], '\n'); i >= 0 {
		return pos + i + 1
	}
	return len(source)
}

// lineStart returns the offset of the first byte of the line containing pos.
func lineStart(source []byte, pos int) int {
	return bytes.LastIndexByte(source[:pos], '\n') + 1
}
