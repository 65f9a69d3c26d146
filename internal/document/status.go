package document

// Status tracks the lifecycle of a document from upload through indexing.
//
// The string values are the persisted wire contract; they must not change.
type Status string

const (
	// StatusUploaded means the file is stored but not yet processed.
	StatusUploaded Status = "UPLOADED"

	// StatusProcessing means text extraction and chunking are in progress.
	StatusProcessing Status = "PROCESSING"

	// StatusCompleted means extraction succeeded and chunks are persisted.
	StatusCompleted Status = "COMPLETED"

	// StatusFailed means extraction failed; see the error detail.
	StatusFailed Status = "FAILED"

	// StatusDeleted marks a soft-deleted document.
	StatusDeleted Status = "DELETED"

	// StatusIndexing means embeddings are being generated for the chunks.
	StatusIndexing Status = "INDEXING"

	// StatusIndexed means every chunk has an embedding.
	StatusIndexed Status = "INDEXED"

	// StatusPartiallyIndexed means some but not all chunks were embedded.
	StatusPartiallyIndexed Status = "PARTIALLY_INDEXED"

	// StatusIndexingFailed means no chunk could be embedded.
	StatusIndexingFailed Status = "INDEXING_FAILED"
)

// Valid reports whether s is one of the known status values.
func (s Status) Valid() bool {
	switch s {
	case StatusUploaded, StatusProcessing, StatusCompleted, StatusFailed,
		StatusDeleted, StatusIndexing, StatusIndexed,
		StatusPartiallyIndexed, StatusIndexingFailed:
		return true
	}
	return false
}

// ProcessableFrom lists the states from which a processing run may start.
// A document that is already PROCESSING or COMPLETED is rejected; terminal
// states are re-enterable via explicit retry.
func ProcessableFrom() []Status {
	return []Status{StatusUploaded, StatusFailed, StatusIndexed,
		StatusPartiallyIndexed, StatusIndexingFailed}
}

// IndexableFrom lists the states from which an indexing run may start.
// A document that is currently INDEXING is rejected; prior indexing
// outcomes are re-enterable so the whole document can be re-embedded.
func IndexableFrom() []Status {
	return []Status{StatusCompleted, StatusIndexed,
		StatusPartiallyIndexed, StatusIndexingFailed}
}
