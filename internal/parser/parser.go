// Package parser extracts plain text from uploaded files. A registry
// dispatches on file extension to format-specific parsers.
package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned when no parser handles the file
	// extension. The document stays untouched in that case.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrEmptyFile is returned for zero-length input.
	ErrEmptyFile = errors.New("file is empty")
)

// Result is the extraction output of a single file.
type Result struct {
	Text      string
	PageCount int
	WordCount int
}

// Parser extracts text from one family of file formats. Parse receives
// the raw file bytes; filename is only used for extension and error
// context.
type Parser interface {
	Supports(ext string) bool
	Parse(ctx context.Context, filename string, data []byte) (*Result, error)
}

// Runner executes an external extraction tool and returns its stdout.
// The indirection keeps CLI-backed parsers testable without the tools
// installed.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output() // #nosec G204 -- tool names and flags are hardcoded by the parsers
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// ExecRunner returns a Runner backed by os/exec.
func ExecRunner() Runner {
	return execRunner{}
}

// Registry routes files to the first parser that supports their
// extension.
type Registry struct {
	parsers []Parser
	logger  *slog.Logger
}

// NewRegistry builds the default parser set: PDF, Word, spreadsheet,
// image OCR, HTML, and plain text.
func NewRegistry(runner Runner, logger *slog.Logger) *Registry {
	if runner == nil {
		runner = ExecRunner()
	}
	return &Registry{
		parsers: []Parser{
			NewPDFParser(runner, logger),
			NewWordParser(),
			NewExcelParser(),
			NewImageParser(runner, logger),
			NewHTMLParser(),
			NewTextParser(),
		},
		logger: logger,
	}
}

// NewRegistryWith builds a registry from an explicit parser list, in
// dispatch order.
func NewRegistryWith(logger *slog.Logger, parsers ...Parser) *Registry {
	return &Registry{parsers: parsers, logger: logger}
}

// Supports reports whether any registered parser handles the filename's
// extension.
func (r *Registry) Supports(filename string) bool {
	ext := normalizeExt(filename)
	for _, p := range r.parsers {
		if p.Supports(ext) {
			return true
		}
	}
	return false
}

// Parse extracts text from the file using the first matching parser.
// Returns ErrUnsupportedFormat when no parser claims the extension.
func (r *Registry) Parse(ctx context.Context, filename string, data []byte) (*Result, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, filename)
	}

	ext := normalizeExt(filename)
	for _, p := range r.parsers {
		if !p.Supports(ext) {
			continue
		}
		res, err := p.Parse(ctx, filename, data)
		if err != nil {
			return nil, err
		}
		finishResult(res)
		if r.logger != nil {
			r.logger.Debug("file parsed",
				"filename", filename,
				"chars", len(res.Text),
				"pages", res.PageCount)
		}
		return res, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

// finishResult fills derived fields the parser left at zero.
func finishResult(res *Result) {
	if res.WordCount == 0 {
		res.WordCount = len(strings.Fields(res.Text))
	}
	if res.PageCount == 0 {
		res.PageCount = 1
	}
}

func normalizeExt(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}
