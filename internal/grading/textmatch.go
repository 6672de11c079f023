package grading

import (
	"strings"

	"golang.org/x/net/html"
)

// normalize trims and lowercases a free-text answer.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// StripHTML drops markup and keeps text content, with entities decoded.
// Input that is not HTML passes through unchanged apart from entity decoding.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}
