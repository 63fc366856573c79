package preprocess

import (
	"strings"

	"golang.org/x/net/html"
)

// looksLikeHTML is a cheap gate so plain-text bodies skip the tokenizer.
func looksLikeHTML(s string) bool {
	if strings.Contains(s, "</") || strings.Contains(s, "/>") {
		return true
	}
	lower := strings.ToLower(s)
	for _, tag := range []string{"<html", "<body", "<div", "<p>", "<br", "<table", "<span", "<a "} {
		if strings.Contains(lower, tag) {
			return true
		}
	}
	return false
}

// StripHTML reduces an HTML body to its visible text. Script, style, and
// head content is dropped; block-level boundaries become newlines so
// sentence extraction still works on the result.
func StripHTML(body string) string {
	if !looksLikeHTML(body) {
		return body
	}

	z := html.NewTokenizer(strings.NewReader(body))
	var (
		b    strings.Builder
		skip int // depth inside script/style/head
	)
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return collapseSpace(b.String())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "head", "title":
				if tt == html.StartTagToken {
					skip++
				} else if tt == html.EndTagToken && skip > 0 {
					skip--
				}
			case "br", "p", "div", "tr", "li", "h1", "h2", "h3", "h4", "blockquote":
				b.WriteByte('\n')
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

// collapseSpace squeezes runs of blanks and trims each line, keeping single
// newlines as soft sentence boundaries.
func collapseSpace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
