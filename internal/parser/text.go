package parser

import (
	"context"
	"strings"
	"unicode/utf8"
)

// TextParser handles plain text and markdown files.
type TextParser struct{}

// NewTextParser creates a plain text parser.
func NewTextParser() *TextParser {
	return &TextParser{}
}

func (*TextParser) Supports(ext string) bool {
	return ext == ".txt" || ext == ".md"
}

// Parse decodes the bytes as UTF-8, falling back to Latin-1 for files
// with legacy encodings.
func (*TextParser) Parse(_ context.Context, _ string, data []byte) (*Result, error) {
	var text string
	if utf8.Valid(data) {
		text = string(data)
	} else {
		text = decodeLatin1(data)
	}
	return &Result{Text: strings.TrimSpace(text), PageCount: 1}, nil
}

// decodeLatin1 maps each byte to the code point of the same value.
// Latin-1 has no invalid sequences, so this never fails.
func decodeLatin1(data []byte) string {
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}
