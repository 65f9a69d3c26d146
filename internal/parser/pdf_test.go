package parser

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sheaf-ai/sheaf/internal/testutil"
)

func TestPDFParser_PrimaryExtraction(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{script: func(name string, args []string) ([]byte, error) {
		if name != "pdftotext" {
			t.Errorf("unexpected tool %q", name)
		}
		return []byte("page one text\fpage two text\f"), nil
	}}

	p := NewPDFParser(runner, testutil.DiscardLogger())
	res, err := p.Parse(context.Background(), "doc.pdf", []byte("%PDF-1.7 fake"))
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	if res.PageCount != 2 {
		t.Errorf("PageCount = %d, want 2", res.PageCount)
	}
	if !strings.Contains(res.Text, "page two text") {
		t.Errorf("Text = %q", res.Text)
	}
	if strings.Contains(res.Text, "\f") {
		t.Error("form feeds leaked into extracted text")
	}
}

func TestPDFParser_FallsBackWhenPrimaryFails(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{script: func(string, []string) ([]byte, error) {
		return nil, errors.New("pdftotext: command failed")
	}}

	p := NewPDFParser(runner, testutil.DiscardLogger())
	p.fallback = func(data []byte) (*Result, error) {
		return &Result{Text: "recovered by native reader", PageCount: 3}, nil
	}

	res, err := p.Parse(context.Background(), "doc.pdf", []byte("%PDF-1.7 fake"))
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	if res.Text != "recovered by native reader" || res.PageCount != 3 {
		t.Errorf("fallback result not used: %+v", res)
	}
	if len(runner.calls) != 1 {
		t.Errorf("primary invoked %d times, want 1", len(runner.calls))
	}
}

func TestPDFParser_FallbackUsedForEmptyPrimaryOutput(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{script: func(string, []string) ([]byte, error) {
		return []byte("   \f"), nil
	}}

	p := NewPDFParser(runner, testutil.DiscardLogger())
	p.fallback = func([]byte) (*Result, error) {
		return &Result{Text: "scanned copy text", PageCount: 1}, nil
	}

	res, err := p.Parse(context.Background(), "scan.pdf", []byte("%PDF"))
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	if res.Text != "scanned copy text" {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestPDFParser_SurfacesFallbackError(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{script: func(string, []string) ([]byte, error) {
		return nil, errors.New("primary down")
	}}

	p := NewPDFParser(runner, testutil.DiscardLogger())
	fallbackErr := errors.New("damaged xref table")
	p.fallback = func([]byte) (*Result, error) { return nil, fallbackErr }

	_, err := p.Parse(context.Background(), "bad.pdf", []byte("%PDF"))
	if !errors.Is(err, fallbackErr) {
		t.Fatalf("Parse() = %v, want wrapped fallback error", err)
	}
}
