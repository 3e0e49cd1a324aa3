package story

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrepare(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantTitle string
		wantBody  string
	}{
		{
			name:      "title label",
			raw:       "Title: The Sleepy Moon\n\nOnce upon a time the moon yawned.\n\nThe end.",
			wantTitle: "The Sleepy Moon",
			wantBody:  "Once upon a time the moon yawned.\n\nThe end.",
		},
		{
			name:      "title label case insensitive with emphasis",
			raw:       "**TITLE:** Benny the *Brave* Bunny\nBenny hopped.",
			wantTitle: "Benny the Brave Bunny",
			wantBody:  "Benny hopped.",
		},
		{
			name:      "heading",
			raw:       "## Pancake Dragon\n\nThe dragon flipped pancakes.",
			wantTitle: "Pancake Dragon",
			wantBody:  "The dragon flipped pancakes.",
		},
		{
			name:      "no title",
			raw:       "Once there was a *tiny* robot.",
			wantTitle: DefaultTitle,
			wantBody:  "Once there was a *tiny* robot.",
		},
		{
			name:      "empty title label",
			raw:       "Title:\n\nA story with no name.",
			wantTitle: DefaultTitle,
			wantBody:  "A story with no name.",
		},
		{
			name:      "empty",
			raw:       "   ",
			wantTitle: DefaultTitle,
			wantBody:  "",
		},
		{
			name:      "fallback message",
			raw:       "Title: Oops!\n\nThe magic had a little hiccup. Try again!",
			wantTitle: "Oops!",
			wantBody:  "The magic had a little hiccup. Try again!",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			title, body := Prepare(tc.raw)
			require.Equal(t, tc.wantTitle, title)
			require.Equal(t, tc.wantBody, body)
		})
	}
}
