package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Store persists documents and chunks in Postgres.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a document store backed by the given pool.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

const documentColumns = `id, owner_id, collection_id, filename, blob_key,
		file_type, file_size, status, extracted_text, page_count, word_count,
		language, error_detail, is_deleted, deleted_at, created_at, updated_at`

// Create inserts a new document in UPLOADED state and fills in the
// generated ID and timestamps.
func (s *Store) Create(ctx context.Context, doc *Document) error {
	query := `
		INSERT INTO documents (owner_id, collection_id, filename, blob_key,
			file_type, file_size, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	err := s.pool.QueryRow(ctx, query,
		doc.OwnerID, doc.CollectionID, doc.Filename, doc.BlobKey,
		doc.FileType, doc.FileSize, StatusUploaded,
	).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	doc.Status = StatusUploaded
	return nil
}

// Get returns a document by ID regardless of owner. Soft-deleted
// documents are still returned so lifecycle workers can observe them.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	return s.scanOne(s.pool.QueryRow(ctx, query, id))
}

// GetOwned returns a document only when it belongs to ownerID and is not
// soft-deleted.
func (s *Store) GetOwned(ctx context.Context, id, ownerID uuid.UUID) (*Document, error) {
	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE id = $1 AND owner_id = $2 AND is_deleted = false`
	return s.scanOne(s.pool.QueryRow(ctx, query, id, ownerID))
}

// ListByCollection returns the collection's live documents, newest first.
func (s *Store) ListByCollection(ctx context.Context, collectionID, ownerID uuid.UUID) ([]*Document, error) {
	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE collection_id = $1 AND owner_id = $2 AND is_deleted = false
		ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, collectionID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// TransitionStatus atomically moves a document from one of the given
// states into to, recording the error detail. It reports false when the
// document is not currently in an eligible state, which makes duplicate
// lifecycle deliveries harmless.
func (s *Store) TransitionStatus(ctx context.Context, id uuid.UUID, from []Status, to Status, errDetail *string) (bool, error) {
	if !to.Valid() {
		return false, fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	query := `
		UPDATE documents
		SET status = $1, error_detail = $2, updated_at = now()
		WHERE id = $3 AND status = ANY($4)`

	tag, err := s.pool.Exec(ctx, query, to, errDetail, id, statusStrings(from))
	if err != nil {
		return false, fmt.Errorf("transition document status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetExtraction records the text extraction results after a successful
// processing run.
func (s *Store) SetExtraction(ctx context.Context, id uuid.UUID, text string, pageCount, wordCount int, language string) error {
	query := `
		UPDATE documents
		SET extracted_text = $1, page_count = $2, word_count = $3,
			language = $4, updated_at = now()
		WHERE id = $5`

	tag, err := s.pool.Exec(ctx, query, text, pageCount, wordCount, language, id)
	if err != nil {
		return fmt.Errorf("set extraction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDelete flags the document as deleted and removes its chunks so
// they stop matching searches. The blob itself is the caller's problem.
func (s *Store) SoftDelete(ctx context.Context, id, ownerID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin soft delete: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE documents
		SET is_deleted = true, deleted_at = now(), status = $1, updated_at = now()
		WHERE id = $2 AND owner_id = $3 AND is_deleted = false`,
		StatusDeleted, id, ownerID)
	if err != nil {
		return fmt.Errorf("soft delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, id); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return tx.Commit(ctx)
}

// ReplaceChunks swaps the document's chunk set atomically. Reprocessing
// a document must never leave chunks from the previous run behind.
func (s *Store) ReplaceChunks(ctx context.Context, docID uuid.UUID, chunks []Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace chunks: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, docID); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}

	query := `
		INSERT INTO document_chunks (document_id, chunk_index, content,
			char_count, word_count, page_numbers)
		VALUES ($1, $2, $3, $4, $5, $6)`
	for i := range chunks {
		c := &chunks[i]
		_, err := tx.Exec(ctx, query, docID, c.Index, c.Content,
			c.CharCount, c.WordCount, c.PageNumbers)
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.Index, err)
		}
	}
	return tx.Commit(ctx)
}

// ChunksByDocument returns the document's chunks in index order.
func (s *Store) ChunksByDocument(ctx context.Context, docID uuid.UUID) ([]*Chunk, error) {
	query := `
		SELECT id, document_id, chunk_index, content, char_count, word_count,
			page_numbers, embedding, indexed_at, created_at
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY chunk_index`

	rows, err := s.pool.Query(ctx, query, docID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		var c Chunk
		err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Content,
			&c.CharCount, &c.WordCount, &c.PageNumbers, &c.Embedding,
			&c.IndexedAt, &c.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

// SetChunkEmbedding stores a chunk's vector and stamps when it was
// indexed. Called per chunk so partial batches still persist progress.
func (s *Store) SetChunkEmbedding(ctx context.Context, chunkID uuid.UUID, vec pgvector.Vector, at time.Time) error {
	query := `
		UPDATE document_chunks
		SET embedding = $1, indexed_at = $2
		WHERE id = $3`

	tag, err := s.pool.Exec(ctx, query, vec, at, chunkID)
	if err != nil {
		return fmt.Errorf("set chunk embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountChunks returns how many chunks the document currently has.
func (s *Store) CountChunks(ctx context.Context, docID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM document_chunks WHERE document_id = $1`, docID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

func (s *Store) scanOne(row pgx.Row) (*Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.OwnerID, &d.CollectionID, &d.Filename,
		&d.BlobKey, &d.FileType, &d.FileSize, &d.Status, &d.ExtractedText,
		&d.PageCount, &d.WordCount, &d.Language, &d.ErrorDetail,
		&d.Deleted, &d.DeletedAt, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return &d, nil
}

func scanDocuments(rows pgx.Rows) ([]*Document, error) {
	var docs []*Document
	for rows.Next() {
		var d Document
		err := rows.Scan(&d.ID, &d.OwnerID, &d.CollectionID, &d.Filename,
			&d.BlobKey, &d.FileType, &d.FileSize, &d.Status, &d.ExtractedText,
			&d.PageCount, &d.WordCount, &d.Language, &d.ErrorDetail,
			&d.Deleted, &d.DeletedAt, &d.CreatedAt, &d.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, &d)
	}
	return docs, rows.Err()
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
