// Package conversation manages chat threads, their messages, and the
// collections attached for retrieval.
package conversation

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// MaxAttachedCollections caps how many collections one conversation
// can draw context from.
const MaxAttachedCollections = 5

var (
	// ErrNotFound is returned when a conversation does not exist or
	// belongs to someone else.
	ErrNotFound = errors.New("conversation not found")

	// ErrTooManyCollections is returned when attaching would exceed
	// MaxAttachedCollections.
	ErrTooManyCollections = errors.New("too many collections attached")

	// ErrAlreadyAttached is returned when the collection is already on
	// the conversation.
	ErrAlreadyAttached = errors.New("collection already attached")

	// ErrNotAttached is returned when detaching a collection that is
	// not on the conversation.
	ErrNotAttached = errors.New("collection not attached")
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation is one chat thread.
type Conversation struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one turn in a conversation. Assistant messages carry the
// citations backing the answer and a rough token estimate.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Role           string
	Content        string
	Citations      []Citation
	TokenEstimate  int
	CreatedAt      time.Time
}

// Citation points at the chunk a statement was drawn from. The JSON
// keys are the persisted contract for stored messages and API
// responses.
type Citation struct {
	CollectionID   uuid.UUID `json:"store_id"`
	CollectionName string    `json:"store_name"`
	DocumentID     uuid.UUID `json:"document_id"`
	DocumentName   string    `json:"document_name"`
	ChunkID        uuid.UUID `json:"chunk_id"`
	ChunkText      string    `json:"chunk_text"`
	PageNumber     *int32    `json:"page_number"`
	Similarity     float64   `json:"similarity_score"`
}

// AttachedCollection is a collection linked to a conversation, in
// attachment order.
type AttachedCollection struct {
	ID         uuid.UUID
	Name       string
	AttachedAt time.Time
}
