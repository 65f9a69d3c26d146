// Package api is the JSON serving shell: collection and document
// management, retrieval, conversations and the live status stream.
// The caller's identity arrives pre-authenticated in the X-User-ID
// header; everything here scopes queries by that owner.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/sheaf-ai/sheaf/internal/collection"
	"github.com/sheaf-ai/sheaf/internal/conversation"
	"github.com/sheaf-ai/sheaf/internal/document"
	"github.com/sheaf-ai/sheaf/internal/rag"
	"github.com/sheaf-ai/sheaf/internal/search"
	"github.com/sheaf-ai/sheaf/internal/status"
)

// CollectionStore is the collection persistence surface the handlers
// consume.
type CollectionStore interface {
	Create(ctx context.Context, ownerID uuid.UUID, name, description string) (*collection.Collection, error)
	Get(ctx context.Context, id, ownerID uuid.UUID) (*collection.Collection, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]*collection.WithStats, error)
	Update(ctx context.Context, id, ownerID uuid.UUID, name, description *string) (*collection.Collection, error)
	SoftDelete(ctx context.Context, id, ownerID uuid.UUID) ([]string, error)
}

// DocumentStore is the document persistence surface the handlers
// consume.
type DocumentStore interface {
	Create(ctx context.Context, doc *document.Document) error
	GetOwned(ctx context.Context, id, ownerID uuid.UUID) (*document.Document, error)
	ListByCollection(ctx context.Context, collectionID, ownerID uuid.UUID) ([]*document.Document, error)
	SoftDelete(ctx context.Context, id, ownerID uuid.UUID) error
}

// ConversationStore is the conversation persistence surface the
// handlers consume.
type ConversationStore interface {
	Create(ctx context.Context, ownerID uuid.UUID, title string) (*conversation.Conversation, error)
	Get(ctx context.Context, id, ownerID uuid.UUID) (*conversation.Conversation, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]*conversation.Conversation, error)
	AttachCollection(ctx context.Context, convID, ownerID, collectionID uuid.UUID) error
	DetachCollection(ctx context.Context, convID, ownerID, collectionID uuid.UUID) error
	AttachedCollections(ctx context.Context, convID uuid.UUID) ([]conversation.AttachedCollection, error)
	AddMessage(ctx context.Context, msg *conversation.Message) error
	Messages(ctx context.Context, convID uuid.UUID) ([]*conversation.Message, error)
}

// BlobStore stores and removes uploaded file content.
type BlobStore interface {
	Upload(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// FormatChecker reports whether a filename has a parseable extension.
type FormatChecker interface {
	Supports(filename string) bool
}

// Enqueuer submits pipeline tasks.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, documentID uuid.UUID) (uuid.UUID, error)
}

// Searcher runs similarity search within one collection.
type Searcher interface {
	Search(ctx context.Context, collectionID, ownerID uuid.UUID, query string, topK int) ([]search.Result, error)
}

// Asker answers a question against a conversation's collections.
type Asker interface {
	Ask(ctx context.Context, convID, ownerID uuid.UUID, question string) (*rag.Answer, error)
}

// Subscriber hands out per-user event streams.
type Subscriber interface {
	Subscribe(userID uuid.UUID) (<-chan status.Event, func())
}

// ServerConfig carries the dependencies and tunables of the server.
type ServerConfig struct {
	Logger        *slog.Logger
	Collections   CollectionStore
	Documents     DocumentStore
	Conversations ConversationStore
	Blobs         BlobStore
	Formats       FormatChecker
	Queue         Enqueuer
	Searcher      Searcher
	RAG           Asker
	Events        Subscriber

	MaxUploadBytes int64
	SearchTopK     int
	SearchMaxTopK  int
}

// Server is the HTTP API server.
type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
}

// NewServer wires every route. Health probes bypass the middleware
// stack so they stay cheap and never require identity.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ch := &collectionHandler{store: cfg.Collections, searcher: cfg.Searcher, logger: logger,
		defaultTopK: cfg.SearchTopK, maxTopK: cfg.SearchMaxTopK, blobs: cfg.Blobs}
	dh := &documentHandler{docs: cfg.Documents, collections: cfg.Collections,
		blobs: cfg.Blobs, formats: cfg.Formats, queue: cfg.Queue,
		maxUploadBytes: cfg.MaxUploadBytes, logger: logger}
	vh := &conversationHandler{convs: cfg.Conversations, rag: cfg.RAG, logger: logger}
	sh := &streamHandler{events: cfg.Events, logger: logger}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/collections", ch.create)
	mux.HandleFunc("GET /api/v1/collections", ch.list)
	mux.HandleFunc("GET /api/v1/collections/{id}", ch.get)
	mux.HandleFunc("PATCH /api/v1/collections/{id}", ch.update)
	mux.HandleFunc("DELETE /api/v1/collections/{id}", ch.remove)
	mux.HandleFunc("POST /api/v1/collections/{id}/search", ch.search)

	mux.HandleFunc("POST /api/v1/collections/{id}/documents", dh.upload)
	mux.HandleFunc("GET /api/v1/collections/{id}/documents", dh.list)
	mux.HandleFunc("GET /api/v1/documents/{id}", dh.get)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", dh.remove)
	mux.HandleFunc("POST /api/v1/documents/{id}/retry", dh.retry)
	mux.HandleFunc("POST /api/v1/documents/{id}/reindex", dh.reindex)

	mux.HandleFunc("POST /api/v1/conversations", vh.create)
	mux.HandleFunc("GET /api/v1/conversations", vh.list)
	mux.HandleFunc("GET /api/v1/conversations/{id}", vh.get)
	mux.HandleFunc("GET /api/v1/conversations/{id}/messages", vh.messages)
	mux.HandleFunc("GET /api/v1/conversations/{id}/collections", vh.attached)
	mux.HandleFunc("POST /api/v1/conversations/{id}/collections/{collectionID}", vh.attach)
	mux.HandleFunc("DELETE /api/v1/conversations/{id}/collections/{collectionID}", vh.detach)
	mux.HandleFunc("POST /api/v1/conversations/{id}/ask", vh.ask)

	mux.HandleFunc("GET /api/v1/status/stream", sh.stream)

	var handler http.Handler = mux
	handler = userMiddleware()(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	top := http.NewServeMux()
	top.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	top.Handle("/", handler)

	return &Server{mux: top, logger: logger}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// pathUUID parses a path parameter as a UUID, writing the error
// response itself on failure.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", name+" must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
