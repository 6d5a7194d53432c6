package chat

import (
	"fmt"
	"net/url"
	"strings"
)

const tweetLimit = 280

// ShareOptions selects which answer sections go into shared text.
type ShareOptions struct {
	Teaching bool `schema:"teaching"`
	Example  bool `schema:"example"`
	Steps    bool `schema:"steps"`
}

// DefaultShareOptions includes every section.
func DefaultShareOptions() ShareOptions {
	return ShareOptions{Teaching: true, Example: true, Steps: true}
}

// ShareText renders an answer as plain text for copying.
func (a Answer) ShareText(opts ShareOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Wisdom from Sanatani Gyan (%s):\n\n", a.ScriptureReference)
	if opts.Teaching {
		fmt.Fprintf(&b, "\"%s\"\n\n", a.ShortTeaching)
	}
	if opts.Example {
		fmt.Fprintf(&b, "Example: %s\n\n", a.RelatableExample)
	}
	if opts.Steps {
		b.WriteString("Steps:\n")
		for i, step := range a.ActionableSteps {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "%d. %s", i+1, step)
		}
	}
	return strings.TrimSpace(b.String())
}

// TweetText truncates share text to fit a single post.
func TweetText(text string) string {
	runes := []rune(text)
	if len(runes) <= tweetLimit {
		return text
	}
	return string(runes[:tweetLimit-3]) + "..."
}

// TweetIntentURL returns the X compose URL prefilled with the text.
func TweetIntentURL(text string) string {
	return "https://twitter.com/intent/tweet?text=" + url.QueryEscape(TweetText(text))
}
