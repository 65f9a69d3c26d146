package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/disintegration/imaging"
)

var (
	// ErrNoTextFound means OCR ran but produced no usable text.
	ErrNoTextFound = errors.New("no text found in image")

	// ErrOCRUnavailable means the OCR engine is not installed.
	ErrOCRUnavailable = errors.New("OCR engine unavailable")
)

// minOCRText is the shortest trimmed OCR output accepted as a real
// extraction; anything shorter is treated as noise and the next
// strategy runs.
const minOCRText = 10

// ImageParser performs OCR on image files via tesseract. Extraction
// escalates through strategies: the raw image first, then a
// preprocessed copy, then alternate page segmentation, then
// orientation detection. The first strategy yielding enough text wins.
type ImageParser struct {
	runner Runner
	logger *slog.Logger
}

// NewImageParser creates an OCR parser using the given runner for
// tesseract invocations.
func NewImageParser(runner Runner, logger *slog.Logger) *ImageParser {
	return &ImageParser{runner: runner, logger: logger}
}

func (*ImageParser) Supports(ext string) bool {
	switch ext {
	case ".png", ".jpg", ".jpeg", ".tiff", ".tif", ".bmp", ".gif", ".webp":
		return true
	}
	return false
}

func (p *ImageParser) Parse(ctx context.Context, filename string, data []byte) (*Result, error) {
	rawPath, cleanupRaw, err := tempFileWith(data, "sheaf-ocr-*"+normalizeExt(filename))
	if err != nil {
		return nil, err
	}
	defer cleanupRaw()

	// Preprocessing failures are non-fatal; the raw strategies still run.
	prePath := ""
	if pre, err := preprocessForOCR(data); err == nil {
		path, cleanupPre, err := tempFileWith(pre, "sheaf-ocr-pre-*.png")
		if err == nil {
			defer cleanupPre()
			prePath = path
		}
	} else if p.logger != nil {
		p.logger.Debug("image preprocessing failed", "filename", filename, "error", err)
	}

	strategies := []struct {
		name string
		path string
		args []string
	}{
		{"raw", rawPath, nil},
		{"preprocessed", prePath, nil},
		{"sparse-segmentation", prePath, []string{"--psm", "11"}},
		{"orientation-detection", rawPath, []string{"--psm", "1"}},
	}

	engineMissing := false
	for _, s := range strategies {
		if s.path == "" {
			continue
		}
		text, err := p.runTesseract(ctx, s.path, s.args)
		if err != nil {
			if errors.Is(err, exec.ErrNotFound) {
				engineMissing = true
				break
			}
			if p.logger != nil {
				p.logger.Debug("OCR strategy failed", "strategy", s.name, "error", err)
			}
			continue
		}
		if len([]rune(text)) >= minOCRText {
			if p.logger != nil {
				p.logger.Debug("OCR succeeded", "strategy", s.name, "chars", len(text))
			}
			return &Result{Text: text, PageCount: 1}, nil
		}
	}

	if engineMissing {
		return nil, fmt.Errorf("%w: tesseract not found in PATH", ErrOCRUnavailable)
	}
	return nil, fmt.Errorf("%w: %s", ErrNoTextFound, filename)
}

func (p *ImageParser) runTesseract(ctx context.Context, path string, extra []string) (string, error) {
	args := append([]string{path, "stdout"}, extra...)
	out, err := p.runner.Run(ctx, "tesseract", args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// preprocessForOCR improves contrast for scanned text: grayscale, a
// contrast boost, and a mild sharpen.
func preprocessForOCR(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	img = imaging.Grayscale(img)
	img = imaging.AdjustContrast(img, 20)
	img = imaging.Sharpen(img, 1.0)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode preprocessed image: %w", err)
	}
	return buf.Bytes(), nil
}
