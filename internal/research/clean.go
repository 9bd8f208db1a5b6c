package research

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	urlPattern        = regexp.MustCompile(`https?://\S+`)
	nonTextPattern    = regexp.MustCompile(`[^\w\s.,;:!?'"()\-]`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// skipElements are HTML elements whose content is never article text.
var skipElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Head:     true,
	atom.Nav:      true,
	atom.Footer:   true,
	atom.Header:   true,
}

// CleanContent normalizes raw search result content for summarization:
// HTML is reduced to visible text, embedded URLs and markup noise are
// stripped, and whitespace runs collapse to single spaces.
func CleanContent(raw string) string {
	text := raw
	if strings.Contains(raw, "<") && strings.Contains(raw, ">") {
		text = extractText(raw)
	}
	text = urlPattern.ReplaceAllString(text, " ")
	text = nonTextPattern.ReplaceAllString(text, " ")
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// extractText parses HTML and returns the visible text content.
// Unparseable input falls back to a naive tag strip via the tokenizer.
func extractText(raw string) string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return stripTags(raw)
	}
	var b strings.Builder
	walkText(doc, &b)
	return b.String()
}

func walkText(n *html.Node, b *strings.Builder) {
	if n.Type == html.ElementNode && skipElements[n.DataAtom] {
		return
	}
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		b.WriteString(" ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, b)
	}
}

// stripTags removes markup with the tokenizer, keeping text tokens.
func stripTags(s string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(tokenizer.Text())
			b.WriteString(" ")
		}
	}
}
