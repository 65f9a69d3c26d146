// Package rag answers questions over a conversation's attached
// collections: retrieve per collection, re-rank globally, generate with
// the chat model, and attribute every answer to its chunks.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sheaf-ai/sheaf/internal/conversation"
	"github.com/sheaf-ai/sheaf/internal/search"
)

const (
	// DefaultPerCollectionTopK is how many chunks each attached
	// collection contributes before re-ranking.
	DefaultPerCollectionTopK = 5

	// DefaultContextWindow caps how many chunks survive re-ranking.
	DefaultContextWindow = 10

	// DefaultHistoryLimit is how many prior messages accompany the
	// question.
	DefaultHistoryLimit = 10

	// citationExcerptLimit truncates cited chunk text in responses.
	citationExcerptLimit = 500
)

// ErrNoCollectionsAttached means the conversation has nothing to
// retrieve from; the caller should attach a collection first.
var ErrNoCollectionsAttached = errors.New("no collections attached to conversation")

// Message is one turn handed to the chat model.
type Message struct {
	Role    string
	Content string
}

// Chat model roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Searcher retrieves the most similar chunks within one collection.
type Searcher interface {
	Search(ctx context.Context, collectionID, ownerID uuid.UUID, query string, topK int) ([]search.Result, error)
}

// ChatModel generates a completion from the full message sequence.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// ConversationReader supplies the attached collections and recent
// history of a conversation.
type ConversationReader interface {
	AttachedCollections(ctx context.Context, convID uuid.UUID) ([]conversation.AttachedCollection, error)
	RecentMessages(ctx context.Context, convID uuid.UUID, limit int) ([]*conversation.Message, error)
}

// Answer is a generated reply with its supporting citations. The token
// estimate is rough: about two tokens per answer word.
type Answer struct {
	Text          string
	Citations     []conversation.Citation
	TokenEstimate int
}

// Config tunes the orchestrator. Zero values fall back to defaults.
type Config struct {
	PerCollectionTopK int
	ContextWindow     int
	HistoryLimit      int
}

// Orchestrator runs the retrieval and generation pipeline.
type Orchestrator struct {
	searcher Searcher
	model    ChatModel
	convs    ConversationReader
	cfg      Config
	logger   *slog.Logger
}

// New creates an Orchestrator.
func New(searcher Searcher, model ChatModel, convs ConversationReader, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.PerCollectionTopK <= 0 {
		cfg.PerCollectionTopK = DefaultPerCollectionTopK
	}
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = DefaultContextWindow
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	return &Orchestrator{searcher: searcher, model: model, convs: convs, cfg: cfg, logger: logger}
}

// scoredChunk is a retrieval hit annotated with its collection.
type scoredChunk struct {
	search.Result
	CollectionID   uuid.UUID
	CollectionName string
	PageNumber     *int32
}

// Ask answers the question using the conversation's attached
// collections. Collections are searched concurrently and a failing
// collection is skipped, not fatal. When no chunk is relevant the
// canned no-context answer comes back without a model call.
func (o *Orchestrator) Ask(ctx context.Context, convID, ownerID uuid.UUID, question string) (*Answer, error) {
	attached, err := o.convs.AttachedCollections(ctx, convID)
	if err != nil {
		return nil, fmt.Errorf("load attached collections: %w", err)
	}
	if len(attached) == 0 {
		return nil, ErrNoCollectionsAttached
	}

	chunks := o.retrieve(ctx, attached, ownerID, question)
	if len(chunks) == 0 {
		if o.logger != nil {
			o.logger.Warn("no relevant chunks for question", "conversation_id", convID)
		}
		return &Answer{Text: noContextAnswer, Citations: []conversation.Citation{}}, nil
	}

	history, err := o.convs.RecentMessages(ctx, convID, o.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load conversation history: %w", err)
	}

	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: RoleSystem, Content: systemPrompt})
	for _, m := range history {
		messages = append(messages, Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, Message{Role: RoleUser, Content: buildUserPrompt(question, chunks)})

	text, err := o.model.Chat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	return &Answer{
		Text:          text,
		Citations:     citationsFrom(chunks),
		TokenEstimate: estimateTokens(text),
	}, nil
}

// retrieve fans the search out across collections and keeps the best
// chunks overall.
func (o *Orchestrator) retrieve(ctx context.Context, attached []conversation.AttachedCollection, ownerID uuid.UUID, question string) []scoredChunk {
	var (
		mu  sync.Mutex
		all []scoredChunk
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, coll := range attached {
		g.Go(func() error {
			results, err := o.searcher.Search(gctx, coll.ID, ownerID, question, o.cfg.PerCollectionTopK)
			if err != nil {
				// One broken collection must not sink the question.
				if o.logger != nil {
					o.logger.Error("collection search failed",
						"collection_id", coll.ID,
						"error", err)
				}
				return nil
			}
			mu.Lock()
			for _, r := range results {
				sc := scoredChunk{Result: r, CollectionID: coll.ID, CollectionName: coll.Name}
				if len(r.PageNumbers) > 0 {
					page := r.PageNumbers[0]
					sc.PageNumber = &page
				}
				all = append(all, sc)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	// Global re-rank: best similarity first, chunk ID breaks ties so
	// the window is deterministic.
	sort.Slice(all, func(i, j int) bool {
		if all[i].Similarity != all[j].Similarity {
			return all[i].Similarity > all[j].Similarity
		}
		return all[i].ChunkID.String() < all[j].ChunkID.String()
	})
	if len(all) > o.cfg.ContextWindow {
		all = all[:o.cfg.ContextWindow]
	}

	if o.logger != nil {
		o.logger.Debug("retrieval complete",
			"collections", len(attached),
			"chunks_kept", len(all))
	}
	return all
}

func citationsFrom(chunks []scoredChunk) []conversation.Citation {
	citations := make([]conversation.Citation, len(chunks))
	for i, c := range chunks {
		excerpt := c.Content
		if runes := []rune(excerpt); len(runes) > citationExcerptLimit {
			excerpt = string(runes[:citationExcerptLimit])
		}
		citations[i] = conversation.Citation{
			CollectionID:   c.CollectionID,
			CollectionName: c.CollectionName,
			DocumentID:     c.DocumentID,
			DocumentName:   c.DocumentName,
			ChunkID:        c.ChunkID,
			ChunkText:      excerpt,
			PageNumber:     c.PageNumber,
			Similarity:     roundTo3(c.Similarity),
		}
	}
	return citations
}

// estimateTokens assumes roughly two tokens per word.
func estimateTokens(answer string) int {
	return len(strings.Fields(answer)) * 2
}

func roundTo3(v float64) float64 {
	scaled := v * 1000
	if scaled >= 0 {
		return float64(int64(scaled+0.5)) / 1000
	}
	return float64(int64(scaled-0.5)) / 1000
}
