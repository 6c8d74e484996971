package extract

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	goose "github.com/advancedlogic/GoOse/pkg/goose"
	readability "github.com/go-shiori/go-readability"
	"github.com/markusmobius/go-trafilatura"
)

// Strategy is one extraction algorithm in the cascade. Implementations
// return empty text rather than an error when the page simply has no
// content they can find; errors are reserved for parse failures.
type Strategy interface {
	Name() string
	Extract(html []byte, pageURL *url.URL) (title string, text string, err error)
}

// DefaultStrategies returns the cascade in fixed priority order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		&TrafilaturaStrategy{},
		NewGooseStrategy(),
		&ReadabilityStrategy{},
		&DOMStrategy{},
	}
}

// TrafilaturaStrategy runs densitometry-based boilerplate removal.
type TrafilaturaStrategy struct{}

// Name identifies the strategy in logs.
func (TrafilaturaStrategy) Name() string { return "trafilatura" }

// Extract pulls the main text via trafilatura.
func (TrafilaturaStrategy) Extract(html []byte, pageURL *url.URL) (string, string, error) {
	result, err := trafilatura.Extract(bytes.NewReader(html), trafilatura.Options{
		OriginalURL:     pageURL,
		ExcludeComments: true,
		EnableFallback:  true,
	})
	if err != nil {
		return "", "", err
	}
	return result.Metadata.Title, result.ContentText, nil
}

// GooseStrategy runs news/article-oriented extraction.
type GooseStrategy struct {
	g goose.Goose
}

// NewGooseStrategy builds a goose-backed strategy.
func NewGooseStrategy() *GooseStrategy {
	return &GooseStrategy{g: goose.New()}
}

// Name identifies the strategy in logs.
func (*GooseStrategy) Name() string { return "goose" }

// Extract parses the raw HTML with goose.
func (s *GooseStrategy) Extract(html []byte, pageURL *url.URL) (string, string, error) {
	article, err := s.g.ExtractFromRawHTML(string(html), pageURL.String())
	if err != nil {
		return "", "", err
	}
	if article == nil {
		return "", "", nil
	}
	return article.Title, article.CleanedText, nil
}

// ReadabilityStrategy scores the DOM for probable main content.
type ReadabilityStrategy struct{}

// Name identifies the strategy in logs.
func (ReadabilityStrategy) Name() string { return "readability" }

// Extract summarizes the probable main content.
func (ReadabilityStrategy) Extract(html []byte, pageURL *url.URL) (string, string, error) {
	article, err := readability.FromReader(bytes.NewReader(html), pageURL)
	if err != nil {
		return "", "", err
	}
	return article.Title, article.TextContent, nil
}

var contentIDPattern = regexp.MustCompile(`(?i)content|main|article`)

// Elements that never carry article prose.
const boilerplateSelector = "script,style,nav,footer,header,aside"

// DOMStrategy is the naive fallback: strip boilerplate elements, prefer a
// semantic content container and otherwise take the whole document's text.
type DOMStrategy struct{}

// Name identifies the strategy in logs.
func (DOMStrategy) Name() string { return "dom" }

// Extract walks the DOM with goquery.
func (DOMStrategy) Extract(html []byte, _ *url.URL) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", "", err
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find(boilerplateSelector).Remove()

	main := doc.Find("article").First()
	if main.Length() == 0 {
		main = doc.Find("main").First()
	}
	if main.Length() == 0 {
		doc.Find("[id]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			id, _ := s.Attr("id")
			if contentIDPattern.MatchString(id) {
				main = s
				return false
			}
			return true
		})
	}

	if main.Length() > 0 {
		return title, blockText(main), nil
	}
	return title, blockText(doc.Selection), nil
}

// blockText renders a selection to plain text with newlines between block
// elements, the way article prose reads.
func blockText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				b.WriteString(c.Text())
				return
			}
			walk(c)
			switch goquery.NodeName(c) {
			case "p", "div", "br", "li", "h1", "h2", "h3", "h4", "h5", "h6", "blockquote", "section", "article":
				b.WriteString("\n")
			}
		})
	}
	walk(sel)
	return b.String()
}
