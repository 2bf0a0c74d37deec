package extract

import (
	"strings"

	"golang.org/x/net/html"
)

// blockElements start a new line when rendered as text
var blockElements = map[string]bool{
	"br": true, "p": true, "div": true, "tr": true, "li": true, "table": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "blockquote": true,
}

// PageText renders the visible text of a document, one block per line,
// skipping scripts and styles
func PageText(n *html.Node) string {
	return strings.Join(textLines(n), "\n")
}

// textLines returns the non-empty visible lines under n
func textLines(n *html.Node) []string {
	var lines []string
	var current strings.Builder

	flush := func() {
		line := collapseSpaces(current.String())
		if line != "" {
			lines = append(lines, line)
		}
		current.Reset()
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe":
				return
			}
			if blockElements[n.Data] {
				flush()
			}
		}

		if n.Type == html.TextNode {
			current.WriteString(n.Data)
			current.WriteString(" ")
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode && blockElements[n.Data] {
			flush()
		}
	}

	walk(n)
	flush()
	return lines
}

// collapseSpaces trims s and folds runs of whitespace, including
// non-breaking spaces, into single spaces
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most limit runes
func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
