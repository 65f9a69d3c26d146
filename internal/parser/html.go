package parser

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// HTMLParser extracts the readable article text from HTML files,
// dropping navigation, scripts, and boilerplate.
type HTMLParser struct{}

// NewHTMLParser creates an HTML parser.
func NewHTMLParser() *HTMLParser {
	return &HTMLParser{}
}

func (*HTMLParser) Supports(ext string) bool {
	return ext == ".html" || ext == ".htm"
}

func (*HTMLParser) Parse(_ context.Context, filename string, data []byte) (*Result, error) {
	article, err := readability.FromReader(bytes.NewReader(data), &url.URL{Path: filename})
	if err != nil {
		return nil, fmt.Errorf("extract readable content from %s: %w", filename, err)
	}

	text := strings.TrimSpace(article.TextContent)
	if article.Title != "" && !strings.HasPrefix(text, article.Title) {
		text = article.Title + "\n\n" + text
	}
	return &Result{Text: text, PageCount: 1}, nil
}
