package layout

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

var (
	markdown        = goldmark.New()
	residualMarkers = regexp.MustCompile("[#*_`~]+")
	htmlTag         = regexp.MustCompile(`<[^>]*>`)
	headingPrefix   = regexp.MustCompile(`^\s{0,3}#{1,6}\s+`)
)

// StripMarkup removes lightweight markup and returns plain text with
// blocks separated by blank lines.
func StripMarkup(src string) string {
	source := []byte(src)
	doc := markdown.Parser().Parse(text.NewReader(source))

	blocks := make([]string, 0, doc.ChildCount())
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		blocks = appendBlocks(blocks, n, source, "")
	}

	out := strings.Join(blocks, "\n\n")
	return strings.TrimSpace(residualMarkers.ReplaceAllString(out, ""))
}

// IsHeading reports whether line is a markup heading.
func IsHeading(line string) bool {
	return headingPrefix.MatchString(line)
}

func appendBlocks(blocks []string, n ast.Node, source []byte, prefix string) []string {
	switch node := n.(type) {
	case *ast.List:
		index := node.Start
		for item := node.FirstChild(); item != nil; item = item.NextSibling() {
			itemPrefix := ""
			if node.IsOrdered() {
				itemPrefix = strconv.Itoa(index) + ". "
				index++
			}
			for child := item.FirstChild(); child != nil; child = child.NextSibling() {
				blocks = appendBlocks(blocks, child, source, itemPrefix)
				itemPrefix = ""
			}
		}
		return blocks
	case *ast.Blockquote:
		for child := node.FirstChild(); child != nil; child = child.NextSibling() {
			blocks = appendBlocks(blocks, child, source, "")
		}
		return blocks
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		var buf bytes.Buffer
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(source))
		}
		if s := strings.TrimSpace(buf.String()); s != "" {
			blocks = append(blocks, prefix+s)
		}
		return blocks
	case *ast.HTMLBlock:
		var buf bytes.Buffer
		lines := node.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(source))
		}
		if node.HasClosure() {
			buf.Write(node.ClosureLine.Value(source))
		}
		if s := strings.TrimSpace(htmlTag.ReplaceAllString(buf.String(), "")); s != "" {
			blocks = append(blocks, prefix+s)
		}
		return blocks
	case *ast.ThematicBreak:
		return blocks
	default:
		if s := strings.TrimSpace(inlineText(n, source)); s != "" {
			blocks = append(blocks, prefix+s)
		}
		return blocks
	}
}

func inlineText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch c := child.(type) {
		case *ast.Text:
			buf.Write(util.UnescapePunctuations(c.Segment.Value(source)))
			if c.SoftLineBreak() || c.HardLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(c.Value)
		case *ast.AutoLink:
			buf.Write(c.URL(source))
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}
