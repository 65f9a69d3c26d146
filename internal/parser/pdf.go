package parser

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	ledongthuc "github.com/ledongthuc/pdf"
)

// PDFParser extracts text from PDF files. The primary extractor shells
// out to pdftotext, which handles layout and encodings well; when that
// fails a pure-Go reader takes over so extraction still works without
// poppler installed.
type PDFParser struct {
	runner   Runner
	fallback func(data []byte) (*Result, error)
	logger   *slog.Logger
}

// NewPDFParser creates a PDF parser using the given runner for the
// pdftotext invocation.
func NewPDFParser(runner Runner, logger *slog.Logger) *PDFParser {
	return &PDFParser{runner: runner, fallback: extractPDFNative, logger: logger}
}

func (*PDFParser) Supports(ext string) bool {
	return ext == ".pdf"
}

func (p *PDFParser) Parse(ctx context.Context, filename string, data []byte) (*Result, error) {
	res, primaryErr := p.extractWithPdftotext(ctx, data)
	if primaryErr == nil && strings.TrimSpace(res.Text) != "" {
		return res, nil
	}
	if p.logger != nil {
		p.logger.Debug("pdftotext extraction failed, using native reader",
			"filename", filename, "error", primaryErr)
	}

	res, err := p.fallback(data)
	if err != nil {
		return nil, fmt.Errorf("extract text from %s: %w", filename, err)
	}
	return res, nil
}

func (p *PDFParser) extractWithPdftotext(ctx context.Context, data []byte) (*Result, error) {
	path, cleanup, err := tempFileWith(data, "sheaf-*.pdf")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	out, err := p.runner.Run(ctx, "pdftotext", "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		return nil, err
	}

	text := string(out)
	// pdftotext terminates each page with a form feed.
	pages := strings.Count(text, "\f")
	if pages == 0 {
		pages = 1
	}
	text = strings.TrimSpace(strings.ReplaceAll(text, "\f", "\n"))
	return &Result{Text: text, PageCount: pages}, nil
}

// extractPDFNative reads the PDF with the ledongthuc/pdf library.
func extractPDFNative(data []byte) (*Result, error) {
	reader, err := ledongthuc.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	var b strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		if i > 1 {
			b.WriteString("\n")
		}
		b.WriteString(text)
	}
	return &Result{Text: strings.TrimSpace(b.String()), PageCount: pages}, nil
}

// tempFileWith writes data to a temp file for CLI-backed extractors.
func tempFileWith(data []byte, pattern string) (string, func(), error) {
	tmp, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() { os.Remove(tmp.Name()) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close temp file: %w", err)
	}
	return filepath.Clean(tmp.Name()), cleanup, nil
}
