package feed

import (
	stdhtml "html"
	"strings"

	xhtml "golang.org/x/net/html"
)

// Sanitize decodes HTML entities and strips markup from free-text feed
// fields. The pass runs twice: decoding entities like &lt;b&gt; reintroduces
// tags that the first strip never saw, so double-encoded feed content needs a
// second round.
func Sanitize(s string) string {
	for i := 0; i < 2; i++ {
		s = stripTags(stdhtml.UnescapeString(s))
	}
	return strings.TrimSpace(s)
}

func stripTags(s string) string {
	if !strings.ContainsAny(s, "<>") {
		return s
	}

	tokenizer := xhtml.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		tt := tokenizer.Next()
		if tt == xhtml.ErrorToken {
			break
		}
		if tt == xhtml.TextToken {
			b.Write(tokenizer.Text())
		}
	}
	return b.String()
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
