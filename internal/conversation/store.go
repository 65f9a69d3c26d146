package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists conversations, attachments, and messages.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a conversation store backed by the given pool.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// Create starts a new conversation.
func (s *Store) Create(ctx context.Context, ownerID uuid.UUID, title string) (*Conversation, error) {
	c := &Conversation{OwnerID: ownerID, Title: title}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (owner_id, title)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at`,
		ownerID, title,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return c, nil
}

// Get returns a conversation owned by ownerID.
func (s *Store) Get(ctx context.Context, id, ownerID uuid.UUID) (*Conversation, error) {
	var c Conversation
	err := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, title, created_at, updated_at
		FROM conversations
		WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	).Scan(&c.ID, &c.OwnerID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &c, nil
}

// List returns the owner's conversations, most recently updated first.
func (s *Store) List(ctx context.Context, ownerID uuid.UUID) ([]*Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, title, created_at, updated_at
		FROM conversations
		WHERE owner_id = $1
		ORDER BY updated_at DESC`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// AttachCollection links a collection to the conversation. The count
// check and insert run in one transaction so concurrent attaches
// cannot exceed the cap.
func (s *Store) AttachCollection(ctx context.Context, convID, ownerID, collectionID uuid.UUID) error {
	if _, err := s.Get(ctx, convID, ownerID); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin attach: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the conversation row so concurrent attaches serialise on
	// the count check.
	var locked int
	if err := tx.QueryRow(ctx, `
		SELECT 1 FROM conversations WHERE id = $1 FOR UPDATE`,
		convID).Scan(&locked); err != nil {
		return fmt.Errorf("lock conversation: %w", err)
	}

	var count int
	err = tx.QueryRow(ctx, `
		SELECT count(*) FROM conversation_collections
		WHERE conversation_id = $1`,
		convID).Scan(&count)
	if err != nil {
		return fmt.Errorf("count attachments: %w", err)
	}
	if count >= MaxAttachedCollections {
		return fmt.Errorf("%w: limit is %d", ErrTooManyCollections, MaxAttachedCollections)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO conversation_collections (conversation_id, collection_id)
		VALUES ($1, $2)`,
		convID, collectionID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyAttached
		}
		return fmt.Errorf("attach collection: %w", err)
	}
	return tx.Commit(ctx)
}

// DetachCollection removes a collection from the conversation.
func (s *Store) DetachCollection(ctx context.Context, convID, ownerID, collectionID uuid.UUID) error {
	if _, err := s.Get(ctx, convID, ownerID); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM conversation_collections
		WHERE conversation_id = $1 AND collection_id = $2`,
		convID, collectionID)
	if err != nil {
		return fmt.Errorf("detach collection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotAttached
	}
	return nil
}

// AttachedCollections returns the live collections attached to the
// conversation, oldest attachment first.
func (s *Store) AttachedCollections(ctx context.Context, convID uuid.UUID) ([]AttachedCollection, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.name, cc.attached_at
		FROM conversation_collections cc
		JOIN collections c ON c.id = cc.collection_id
		WHERE cc.conversation_id = $1 AND c.is_deleted = false
		ORDER BY cc.attached_at`,
		convID)
	if err != nil {
		return nil, fmt.Errorf("list attached collections: %w", err)
	}
	defer rows.Close()

	var out []AttachedCollection
	for rows.Next() {
		var a AttachedCollection
		if err := rows.Scan(&a.ID, &a.Name, &a.AttachedAt); err != nil {
			return nil, fmt.Errorf("scan attached collection: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AddMessage appends a message and bumps the conversation's updated_at
// so listings sort by recency.
func (s *Store) AddMessage(ctx context.Context, msg *Message) error {
	var citations []byte
	if len(msg.Citations) > 0 {
		var err error
		citations, err = json.Marshal(msg.Citations)
		if err != nil {
			return fmt.Errorf("marshal citations: %w", err)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin add message: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, role, content, citations, token_estimate)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		msg.ConversationID, msg.Role, msg.Content, citations, msg.TokenEstimate,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE conversations SET updated_at = now() WHERE id = $1`,
		msg.ConversationID); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return tx.Commit(ctx)
}

// Messages returns the conversation's messages oldest first.
func (s *Store) Messages(ctx context.Context, convID uuid.UUID) ([]*Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, role, content, citations, token_estimate, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at`,
		convID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// RecentMessages returns the last limit messages in chronological
// order, for building model context.
func (s *Store) RecentMessages(ctx context.Context, convID uuid.UUID, limit int) ([]*Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, role, content, citations, token_estimate, created_at
		FROM (
			SELECT id, conversation_id, role, content, citations, token_estimate, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at`,
		convID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows pgx.Rows) ([]*Message, error) {
	var out []*Message
	for rows.Next() {
		var m Message
		var citations []byte
		err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content,
			&citations, &m.TokenEstimate, &m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if len(citations) > 0 {
			if err := json.Unmarshal(citations, &m.Citations); err != nil {
				return nil, fmt.Errorf("unmarshal citations: %w", err)
			}
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
