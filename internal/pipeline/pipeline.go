// Package pipeline drives documents through extraction and indexing.
// Process parses and chunks a document; Index embeds its chunks. Both
// run as queued tasks and publish progress events keyed by the owning
// user.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sheaf-ai/sheaf/internal/chunker"
	"github.com/sheaf-ai/sheaf/internal/document"
	"github.com/sheaf-ai/sheaf/internal/parser"
	"github.com/sheaf-ai/sheaf/internal/status"
	"github.com/sheaf-ai/sheaf/internal/task"
)

// ErrUnsupportedFile reports an upload whose extension no parser
// handles. The document keeps its uploaded status so a later retry with
// a capable parser can pick it up.
var ErrUnsupportedFile = parser.ErrUnsupportedFormat

// DocumentStore is the persistence surface the pipeline needs.
type DocumentStore interface {
	Get(ctx context.Context, id uuid.UUID) (*document.Document, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from []document.Status, to document.Status, errDetail *string) (bool, error)
	SetExtraction(ctx context.Context, id uuid.UUID, text string, pageCount, wordCount int, language string) error
	ReplaceChunks(ctx context.Context, docID uuid.UUID, chunks []document.Chunk) error
	ChunksByDocument(ctx context.Context, docID uuid.UUID) ([]*document.Chunk, error)
}

// BlobReader fetches uploaded content by key.
type BlobReader interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// Parser extracts text from a file.
type Parser interface {
	Supports(filename string) bool
	Parse(ctx context.Context, filename string, data []byte) (*parser.Result, error)
}

// Splitter turns extracted text into chunks.
type Splitter interface {
	Split(text string) []chunker.Chunk
}

// Embedder generates and persists chunk embeddings, reporting how many
// chunks succeeded.
type Embedder interface {
	EmbedChunks(ctx context.Context, chunks []*document.Chunk) (int, error)
}

// Publisher pushes progress events to the owning user.
type Publisher interface {
	Publish(userID uuid.UUID, ev status.Event)
}

// Enqueuer submits follow-up tasks.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, documentID uuid.UUID) (uuid.UUID, error)
}

// Controller wires the pipeline stages together.
type Controller struct {
	docs     DocumentStore
	blobs    BlobReader
	parser   Parser
	splitter Splitter
	embedder Embedder
	events   Publisher
	queue    Enqueuer
	logger   *slog.Logger
}

func New(docs DocumentStore, blobs BlobReader, p Parser, splitter Splitter, embedder Embedder, events Publisher, queue Enqueuer, logger *slog.Logger) *Controller {
	return &Controller{
		docs:     docs,
		blobs:    blobs,
		parser:   p,
		splitter: splitter,
		embedder: embedder,
		events:   events,
		queue:    queue,
		logger:   logger,
	}
}

// Process extracts text from the document's blob, chunks it and stores
// the result, then queues indexing. A document already being processed
// elsewhere is skipped silently.
func (c *Controller) Process(ctx context.Context, docID uuid.UUID) (err error) {
	doc, err := c.docs.Get(ctx, docID)
	if err != nil {
		c.logger.Error("document not found for processing", "document_id", docID, "error", err)
		return nil
	}

	if !c.parser.Supports(doc.Filename) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFile, doc.Filename)
	}

	ok, err := c.docs.TransitionStatus(ctx, docID, document.ProcessableFrom(), document.StatusProcessing, nil)
	if err != nil {
		return fmt.Errorf("transition to processing: %w", err)
	}
	if !ok {
		// Another worker claimed the document, or it is in a state
		// that cannot start processing. Both are fine to drop.
		c.logger.Info("skipping document not in a processable state", "document_id", docID)
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processing panicked: %v", r)
			c.fail(ctx, doc, document.StatusFailed, err.Error())
		}
	}()

	c.publish(doc, document.StatusProcessing, "Processing document...", nil)
	c.logger.Info("processing document", "document_id", docID, "filename", doc.Filename)

	data, err := c.blobs.Download(ctx, doc.BlobKey)
	if err != nil {
		msg := fmt.Sprintf("download failed: %v", err)
		c.fail(ctx, doc, document.StatusFailed, msg)
		return fmt.Errorf("download blob %s: %w", doc.BlobKey, err)
	}

	result, err := c.parser.Parse(ctx, doc.Filename, data)
	if err != nil {
		c.fail(ctx, doc, document.StatusFailed, err.Error())
		return fmt.Errorf("parse %s: %w", doc.Filename, err)
	}

	language := chunker.DetectLanguage(result.Text)
	if err := c.docs.SetExtraction(ctx, docID, result.Text, result.PageCount, result.WordCount, language); err != nil {
		c.fail(ctx, doc, document.StatusFailed, err.Error())
		return fmt.Errorf("store extraction: %w", err)
	}

	pieces := c.splitter.Split(result.Text)
	chunks := make([]document.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = document.Chunk{
			DocumentID: docID,
			Index:      p.Index,
			Content:    p.Content,
			CharCount:  p.CharCount,
			WordCount:  p.WordCount,
		}
	}
	if err := c.docs.ReplaceChunks(ctx, docID, chunks); err != nil {
		c.fail(ctx, doc, document.StatusFailed, err.Error())
		return fmt.Errorf("store chunks: %w", err)
	}

	if _, err := c.docs.TransitionStatus(ctx, docID, []document.Status{document.StatusProcessing}, document.StatusCompleted, nil); err != nil {
		return fmt.Errorf("transition to completed: %w", err)
	}

	c.publish(doc, document.StatusCompleted,
		fmt.Sprintf("Successfully processed %d chunks", len(chunks)),
		map[string]any{
			"chunks":     len(chunks),
			"word_count": result.WordCount,
			"language":   language,
		})
	c.logger.Info("document processed",
		"document_id", docID, "chunks", len(chunks), "language", language)

	if _, err := c.queue.Enqueue(ctx, task.NameIndex, docID); err != nil {
		return fmt.Errorf("queue indexing: %w", err)
	}
	return nil
}

// Index embeds every chunk of the document. Full success lands on
// indexed; a partial batch failure keeps what succeeded and lands on
// partially indexed.
func (c *Controller) Index(ctx context.Context, docID uuid.UUID) (err error) {
	doc, err := c.docs.Get(ctx, docID)
	if err != nil {
		c.logger.Error("document not found for indexing", "document_id", docID, "error", err)
		return nil
	}

	chunks, err := c.docs.ChunksByDocument(ctx, docID)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}
	if len(chunks) == 0 {
		c.logger.Warn("no chunks to index", "document_id", docID)
		return nil
	}

	ok, err := c.docs.TransitionStatus(ctx, docID, document.IndexableFrom(), document.StatusIndexing, nil)
	if err != nil {
		return fmt.Errorf("transition to indexing: %w", err)
	}
	if !ok {
		c.logger.Info("skipping document not in an indexable state", "document_id", docID)
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("indexing panicked: %v", r)
			c.fail(ctx, doc, document.StatusIndexingFailed, err.Error())
		}
	}()

	c.publish(doc, document.StatusIndexing,
		fmt.Sprintf("Generating embeddings for %d chunks...", len(chunks)), nil)

	succeeded, embedErr := c.embedder.EmbedChunks(ctx, chunks)

	switch {
	case succeeded == len(chunks):
		if _, err := c.docs.TransitionStatus(ctx, docID, []document.Status{document.StatusIndexing}, document.StatusIndexed, nil); err != nil {
			return fmt.Errorf("transition to indexed: %w", err)
		}
		c.publish(doc, document.StatusIndexed,
			fmt.Sprintf("Successfully indexed %d chunks", succeeded), nil)
		c.logger.Info("document indexed", "document_id", docID, "chunks", succeeded)
		return nil

	case succeeded == 0:
		msg := "Embedding generation failed"
		if embedErr != nil {
			msg = fmt.Sprintf("Embedding generation failed: %v", embedErr)
		}
		c.fail(ctx, doc, document.StatusIndexingFailed, msg)
		return fmt.Errorf("embed chunks: %w", embedErr)

	default:
		msg := fmt.Sprintf("Partially indexed: %d/%d chunks succeeded. Some embeddings failed to generate.", succeeded, len(chunks))
		if _, err := c.docs.TransitionStatus(ctx, docID, []document.Status{document.StatusIndexing}, document.StatusPartiallyIndexed, &msg); err != nil {
			return fmt.Errorf("transition to partially indexed: %w", err)
		}
		c.publish(doc, document.StatusPartiallyIndexed, msg, nil)
		c.logger.Warn("document partially indexed",
			"document_id", docID, "succeeded", succeeded, "total", len(chunks))
		return nil
	}
}

// fail moves the document to a terminal failure state and announces it.
// The transition is best effort: the original error matters more.
func (c *Controller) fail(ctx context.Context, doc *document.Document, to document.Status, detail string) {
	from := document.ProcessableFrom()
	from = append(from, document.StatusProcessing, document.StatusIndexing)
	if _, err := c.docs.TransitionStatus(ctx, doc.ID, from, to, &detail); err != nil {
		c.logger.Error("record failure state", "document_id", doc.ID, "error", err)
	}
	c.publish(doc, to, detail, nil)
}

func (c *Controller) publish(doc *document.Document, st document.Status, message string, data map[string]any) {
	if c.events == nil {
		return
	}
	c.events.Publish(doc.OwnerID, status.Event{
		DocumentID: doc.ID,
		Status:     st,
		Message:    message,
		Data:       data,
	})
}
