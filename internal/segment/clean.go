package segment

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var whitespaceRE = regexp.MustCompile(`\s+`)

// boilerplate lists elements stripped before text extraction.
var boilerplate = []string{
	"script", "style", "noscript", "template",
	"nav", "header", "footer", "aside", "form", "iframe", "svg",
}

// CleanHTML extracts the readable text from a raw HTML page. It prefers
// the <article> or <main> element when one exists, strips boilerplate
// elements, and collapses all whitespace runs to single spaces.
func CleanHTML(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	for _, sel := range boilerplate {
		doc.Find(sel).Remove()
	}

	root := doc.Selection
	if article := doc.Find("article"); article.Length() > 0 {
		root = article.First()
	} else if main := doc.Find("main"); main.Length() > 0 {
		root = main.First()
	} else if body := doc.Find("body"); body.Length() > 0 {
		root = body.First()
	}

	text := root.Text()
	text = whitespaceRE.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Title returns the contents of the page's <title> element, if any.
func Title(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
