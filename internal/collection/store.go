package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sheaf-ai/sheaf/internal/document"
)

// uniqueViolation is the Postgres error code raised by the partial
// unique index on (owner_id, name).
const uniqueViolation = "23505"

// Store persists collections in Postgres.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a collection store backed by the given pool.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

const collectionColumns = `id, owner_id, name, description, is_deleted,
		deleted_at, created_at, updated_at`

// Create inserts a collection. Names are unique per owner among live
// collections; a clash maps to ErrNameTaken.
func (s *Store) Create(ctx context.Context, ownerID uuid.UUID, name, description string) (*Collection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	c := &Collection{OwnerID: ownerID, Name: name, Description: description}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO collections (owner_id, name, description)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`,
		ownerID, name, description,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %q", ErrNameTaken, name)
		}
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return c, nil
}

// Get returns a live collection owned by ownerID.
func (s *Store) Get(ctx context.Context, id, ownerID uuid.UUID) (*Collection, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+collectionColumns+`
		FROM collections
		WHERE id = $1 AND owner_id = $2 AND is_deleted = false`,
		id, ownerID)
	return scanCollection(row)
}

// List returns the owner's live collections with document statistics,
// newest first. The statistics are derived, never stored.
func (s *Store) List(ctx context.Context, ownerID uuid.UUID) ([]*WithStats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+collectionColumns+`
		FROM collections
		WHERE owner_id = $1 AND is_deleted = false
		ORDER BY created_at DESC`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var out []*WithStats
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, &WithStats{Collection: *c})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read collections: %w", err)
	}

	for _, c := range out {
		stats, err := s.stats(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		c.Stats = *stats
	}
	return out, nil
}

// Update changes the name or description. Empty strings leave the
// field untouched.
func (s *Store) Update(ctx context.Context, id, ownerID uuid.UUID, name, description *string) (*Collection, error) {
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return nil, ErrEmptyName
		}
		name = &trimmed
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE collections
		SET name = COALESCE($1, name),
			description = COALESCE($2, description),
			updated_at = now()
		WHERE id = $3 AND owner_id = $4 AND is_deleted = false
		RETURNING `+collectionColumns,
		name, description, id, ownerID)

	c, err := scanCollection(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %q", ErrNameTaken, *name)
		}
		return nil, err
	}
	return c, nil
}

// SoftDelete flags the collection deleted and cascades to its
// documents in the same transaction: chunks are removed, documents are
// soft-deleted, and conversation attachments drop away. Blob keys of
// the affected documents are returned so the caller can clean storage.
func (s *Store) SoftDelete(ctx context.Context, id, ownerID uuid.UUID) ([]string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin collection delete: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE collections
		SET is_deleted = true, deleted_at = now(), updated_at = now()
		WHERE id = $1 AND owner_id = $2 AND is_deleted = false`,
		id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("soft delete collection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM document_chunks
		WHERE document_id IN (SELECT id FROM documents WHERE collection_id = $1)`,
		id); err != nil {
		return nil, fmt.Errorf("delete collection chunks: %w", err)
	}

	rows, err := tx.Query(ctx, `
		UPDATE documents
		SET is_deleted = true, deleted_at = now(), status = $1, updated_at = now()
		WHERE collection_id = $2 AND is_deleted = false
		RETURNING blob_key`,
		document.StatusDeleted, id)
	if err != nil {
		return nil, fmt.Errorf("soft delete collection documents: %w", err)
	}
	var blobKeys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan blob key: %w", err)
		}
		blobKeys = append(blobKeys, key)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read blob keys: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM conversation_collections WHERE collection_id = $1`,
		id); err != nil {
		return nil, fmt.Errorf("detach collection from conversations: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit collection delete: %w", err)
	}
	if s.logger != nil {
		s.logger.Info("collection deleted",
			"collection_id", id,
			"documents", len(blobKeys))
	}
	return blobKeys, nil
}

// stats aggregates document counts, sizes, and a per-status breakdown
// for one collection.
func (s *Store) stats(ctx context.Context, collectionID uuid.UUID) (*Stats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, count(*), COALESCE(sum(file_size), 0)
		FROM documents
		WHERE collection_id = $1 AND is_deleted = false
		GROUP BY status`,
		collectionID)
	if err != nil {
		return nil, fmt.Errorf("collection stats: %w", err)
	}
	defer rows.Close()

	stats := &Stats{ByStatus: make(map[string]int)}
	for rows.Next() {
		var status string
		var count int
		var bytes int64
		if err := rows.Scan(&status, &count, &bytes); err != nil {
			return nil, fmt.Errorf("scan collection stats: %w", err)
		}
		stats.ByStatus[status] = count
		stats.DocumentCount += count
		stats.TotalBytes += bytes
	}
	return stats, rows.Err()
}

func scanCollection(row pgx.Row) (*Collection, error) {
	var c Collection
	err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Description,
		&c.Deleted, &c.DeletedAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan collection: %w", err)
	}
	return &c, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
