// Package document holds the document and chunk model plus their
// Postgres persistence.
package document

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

var (
	// ErrNotFound is returned when a document does not exist or is not
	// visible to the requesting owner.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidStatus is returned when a transition targets an unknown
	// status value.
	ErrInvalidStatus = errors.New("invalid document status")
)

// Document is one uploaded file and its extraction results.
type Document struct {
	ID           uuid.UUID
	OwnerID      uuid.UUID
	CollectionID uuid.UUID
	Filename     string
	BlobKey      string
	FileType     string
	FileSize     int64
	Status       Status

	ExtractedText *string
	PageCount     *int
	WordCount     *int
	Language      *string
	ErrorDetail   *string

	Deleted   bool
	DeletedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Chunk is one ordered slice of a document's extracted text.
// Embedding and IndexedAt are nil until the chunk has been embedded.
type Chunk struct {
	ID          uuid.UUID
	DocumentID  uuid.UUID
	Index       int
	Content     string
	CharCount   int
	WordCount   int
	PageNumbers []int32
	Embedding   *pgvector.Vector
	IndexedAt   *time.Time
	CreatedAt   time.Time
}

// FirstPage returns the first page the chunk spans, or nil when the
// source format has no page structure.
func (c *Chunk) FirstPage() *int32 {
	if len(c.PageNumbers) == 0 {
		return nil
	}
	p := c.PageNumbers[0]
	return &p
}
