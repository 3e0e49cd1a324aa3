package layout

import (
	"regexp"
	"strings"
)

var blankLine = regexp.MustCompile(`\n\s*\n`)

// Paragraphs splits text on blank lines, dropping empty paragraphs.
func Paragraphs(s string) []string {
	parts := blankLine.Split(strings.ReplaceAll(s, "\r\n", "\n"), -1)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// Wrap greedily fills lines with whitespace-separated words up to width.
// A word wider than width is placed alone on its own line.
func Wrap(paragraph string, width int, m Metrics) []string {
	words := strings.Fields(paragraph)
	if len(words) == 0 {
		return nil
	}

	lines := make([]string, 0, len(words)/4+1)
	current := words[0]
	for _, word := range words[1:] {
		candidate := current + " " + word
		if m.Width(candidate) <= width {
			current = candidate
			continue
		}
		lines = append(lines, current)
		current = word
	}
	return append(lines, current)
}
