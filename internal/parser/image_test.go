package parser

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os/exec"
	"strings"
	"testing"

	"github.com/sheaf-ai/sheaf/internal/testutil"
)

func testPNG(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestImageParser_EscalatesStrategies(t *testing.T) {
	t.Parallel()

	// The raw pass yields noise below the acceptance threshold; the
	// preprocessed pass yields real text.
	runner := &fakeRunner{}
	runner.script = func(name string, args []string) ([]byte, error) {
		if len(runner.calls) == 1 {
			return []byte("a1\n"), nil
		}
		return []byte("Receipt total: 42.50 EUR\n"), nil
	}

	p := NewImageParser(runner, testutil.DiscardLogger())
	res, err := p.Parse(context.Background(), "receipt.png", testPNG(t))
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	if res.Text != "Receipt total: 42.50 EUR" {
		t.Errorf("Text = %q", res.Text)
	}
	if len(runner.calls) != 2 {
		t.Errorf("tesseract invoked %d times, want 2", len(runner.calls))
	}
}

func TestImageParser_SegmentationFlagsReachTesseract(t *testing.T) {
	t.Parallel()

	// First two passes return noise, so the sparse segmentation pass
	// must run with its flag.
	runner := &fakeRunner{}
	runner.script = func(name string, args []string) ([]byte, error) {
		if len(runner.calls) < 3 {
			return []byte("x"), nil
		}
		return []byte("text recovered with sparse mode"), nil
	}

	p := NewImageParser(runner, testutil.DiscardLogger())
	if _, err := p.Parse(context.Background(), "poster.png", testPNG(t)); err != nil {
		t.Fatalf("Parse() = %v", err)
	}

	third := strings.Join(runner.calls[2], " ")
	if !strings.Contains(third, "--psm 11") {
		t.Errorf("third invocation missing --psm 11: %v", runner.calls[2])
	}
}

func TestImageParser_NoTextFound(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{script: func(string, []string) ([]byte, error) {
		return []byte("  \n"), nil
	}}

	p := NewImageParser(runner, testutil.DiscardLogger())
	_, err := p.Parse(context.Background(), "blank.png", testPNG(t))
	if !errors.Is(err, ErrNoTextFound) {
		t.Fatalf("Parse() = %v, want ErrNoTextFound", err)
	}
}

func TestImageParser_EngineUnavailable(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{script: func(string, []string) ([]byte, error) {
		return nil, &exec.Error{Name: "tesseract", Err: exec.ErrNotFound}
	}}

	p := NewImageParser(runner, testutil.DiscardLogger())
	_, err := p.Parse(context.Background(), "img.png", testPNG(t))
	if !errors.Is(err, ErrOCRUnavailable) {
		t.Fatalf("Parse() = %v, want ErrOCRUnavailable", err)
	}
	if len(runner.calls) != 1 {
		t.Errorf("tesseract invoked %d times after missing engine, want 1", len(runner.calls))
	}
}
