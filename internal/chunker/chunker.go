// Package chunker splits extracted document text into overlapping
// chunks sized for embedding, preferring sentence boundaries near the
// nominal cut point.
package chunker

import (
	"log/slog"
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
)

const (
	// DefaultSize is the nominal chunk length in characters.
	DefaultSize = 2000

	// DefaultOverlap is how many characters consecutive chunks share.
	DefaultOverlap = 200

	// DefaultMinSize discards fragments shorter than this after
	// trimming.
	DefaultMinSize = 10

	// boundaryRadius bounds how far from the nominal cut a sentence
	// boundary may move the split.
	boundaryRadius = 100

	// languageSampleSize caps how much text language detection reads.
	languageSampleSize = 1000
)

// Chunk is one split piece of a document's text. Counts are in runes
// and whitespace-separated words respectively.
type Chunk struct {
	Index     int
	Content   string
	CharCount int
	WordCount int
}

// Config tunes the splitter. Zero values fall back to the defaults.
type Config struct {
	Size    int
	Overlap int
	MinSize int
}

// Chunker splits text deterministically: the same input always produces
// the same chunk sequence.
type Chunker struct {
	size    int
	overlap int
	minSize int
	logger  *slog.Logger
}

// New creates a chunker with the given tuning.
func New(cfg Config, logger *slog.Logger) *Chunker {
	if cfg.Size <= 0 {
		cfg.Size = DefaultSize
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = DefaultOverlap
	}
	if cfg.MinSize <= 0 {
		cfg.MinSize = DefaultMinSize
	}
	return &Chunker{size: cfg.Size, overlap: cfg.Overlap, minSize: cfg.MinSize, logger: logger}
}

// Split cuts text into chunks of roughly the configured size. When a
// sentence boundary (punctuation followed by whitespace) exists within
// boundaryRadius of the nominal cut, the cut moves to the last such
// boundary. Consecutive chunks overlap; trimmed fragments shorter than
// the minimum are dropped without consuming an index. Indexes of kept
// chunks are consecutive from zero.
func (c *Chunker) Split(text string) []Chunk {
	runes := []rune(text)
	total := len(runes)

	var chunks []Chunk
	start, index := 0, 0
	for start < total {
		end := start + c.size
		if end < total {
			adjusted := c.adjustToBoundary(runes, start, end)
			// A boundary at or before start+overlap would stall the
			// scan; keep the nominal cut instead.
			if adjusted > start+c.overlap {
				end = adjusted
			}
		} else {
			end = total
		}

		content := strings.TrimSpace(string(runes[start:end]))
		if len([]rune(content)) >= c.minSize {
			chunks = append(chunks, Chunk{
				Index:     index,
				Content:   content,
				CharCount: len([]rune(content)),
				WordCount: len(strings.Fields(content)),
			})
			index++
		}

		if end >= total {
			break
		}
		start = end - c.overlap
	}

	if c.logger != nil {
		c.logger.Debug("text split", "chars", total, "chunks", len(chunks))
	}
	return chunks
}

// adjustToBoundary returns the end of the last sentence boundary inside
// the search window around end, or end unchanged when none exists. The
// window never reaches back before start.
func (c *Chunker) adjustToBoundary(runes []rune, start, end int) int {
	searchStart := max(start, end-boundaryRadius)
	searchEnd := min(len(runes), end+boundaryRadius)

	adjusted := end
	for i := searchStart; i < searchEnd-1; i++ {
		if isSentencePunct(runes[i]) && unicode.IsSpace(runes[i+1]) {
			adjusted = i + 2
		}
	}
	return adjusted
}

func isSentencePunct(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// DetectLanguage reports the ISO 639-1 code of the text's language, or
// "unknown" when detection is unreliable. Only a prefix of the text is
// sampled.
func DetectLanguage(text string) string {
	sample := strings.TrimSpace(text)
	if sample == "" {
		return "unknown"
	}
	if runes := []rune(sample); len(runes) > languageSampleSize {
		sample = string(runes[:languageSampleSize])
	}

	info := whatlanggo.Detect(sample)
	if !info.IsReliable() {
		return "unknown"
	}
	code := info.Lang.Iso6391()
	if code == "" {
		return "unknown"
	}
	return code
}
