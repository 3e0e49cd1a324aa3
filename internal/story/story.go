// Package story turns generated text into a title and body ready for layout.
package story

import (
	"regexp"
	"strings"

	"github.com/rbright/storybook/internal/layout"
)

// DefaultTitle is used when generated text carries no recognizable title.
const DefaultTitle = "A Story"

var titleLabel = regexp.MustCompile(`(?i)^\s*title\s*:\s*`)

// Prepare splits raw generated text into a plain title and a body that
// still carries its markup. A leading "Title:" line or a leading heading
// becomes the title.
func Prepare(raw string) (string, string) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, "\r\n", "\n"))
	if raw == "" {
		return DefaultTitle, ""
	}

	first, rest, _ := strings.Cut(raw, "\n")
	plain := layout.StripMarkup(first)
	switch {
	case titleLabel.MatchString(plain):
		return orDefault(titleLabel.ReplaceAllString(plain, "")), strings.TrimSpace(rest)
	case layout.IsHeading(first):
		return orDefault(plain), strings.TrimSpace(rest)
	default:
		return DefaultTitle, raw
	}
}

func orDefault(title string) string {
	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		return DefaultTitle
	}
	return title
}
