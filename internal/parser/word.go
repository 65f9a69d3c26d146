package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// wordsPerPageEstimate approximates pages for formats without explicit
// page structure.
const wordsPerPageEstimate = 500

// WordParser extracts text from Word documents. Only the OOXML .docx
// container is readable; legacy binary .doc files are claimed so they
// produce a clear error instead of an unsupported-format rejection.
type WordParser struct{}

// NewWordParser creates a Word document parser.
func NewWordParser() *WordParser {
	return &WordParser{}
}

func (*WordParser) Supports(ext string) bool {
	return ext == ".docx" || ext == ".doc"
}

func (*WordParser) Parse(_ context.Context, filename string, data []byte) (*Result, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open %s as OOXML container (legacy .doc is not readable): %w", filename, err)
	}

	text, err := wordDocumentText(reader)
	if err != nil {
		return nil, fmt.Errorf("extract text from %s: %w", filename, err)
	}

	words := len(strings.Fields(text))
	pages := words / wordsPerPageEstimate
	if pages < 1 {
		pages = 1
	}
	return &Result{Text: text, PageCount: pages, WordCount: words}, nil
}

// wordDocumentText pulls the paragraph text out of word/document.xml.
func wordDocumentText(reader *zip.Reader) (string, error) {
	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", err
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", err
		}
		return parseWordXML(content)
	}
	return "", fmt.Errorf("word/document.xml not found in archive")
}

type wordDocument struct {
	Body struct {
		Paragraphs []wordParagraph `xml:"p"`
	} `xml:"body"`
}

type wordParagraph struct {
	Runs []wordRun `xml:"r"`
}

type wordRun struct {
	Text []wordText `xml:"t"`
}

type wordText struct {
	Content string `xml:",chardata"`
}

func parseWordXML(content []byte) (string, error) {
	var doc wordDocument
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", fmt.Errorf("parse document XML: %w", err)
	}

	var b strings.Builder
	for i, para := range doc.Body.Paragraphs {
		if i > 0 {
			b.WriteString("\n")
		}
		for _, run := range para.Runs {
			for _, t := range run.Text {
				b.WriteString(t.Content)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}
