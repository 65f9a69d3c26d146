// Package googleai backs embedding and generation with Gemini models
// through Genkit. The API key comes from the GEMINI_API_KEY environment
// variable, read by the plugin itself.
package googleai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"google.golang.org/genai"

	"github.com/sheaf-ai/sheaf/internal/config"
	"github.com/sheaf-ai/sheaf/internal/rag"
)

// modelPrefix routes WithModelName lookups to the GoogleAI plugin.
const modelPrefix = "googleai/"

// Client wraps a Genkit instance configured for the GoogleAI plugin.
// It serves both the embedding pipeline and the chat model.
type Client struct {
	g        *genkit.Genkit
	embedder ai.Embedder
	model    string
	logger   *slog.Logger
}

// New initialises Genkit with the GoogleAI plugin and resolves the
// embedder for the configured model.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Client, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit with googleai plugin")
	}

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("unknown embedder model %q", cfg.EmbedderModel)
	}

	logger.Info("googleai provider ready",
		"model", cfg.ModelName, "embedder", cfg.EmbedderModel)

	return &Client{
		g:        g,
		embedder: embedder,
		model:    cfg.ModelName,
		logger:   logger,
	}, nil
}

// EmbedBatch embeds a batch of texts. The model is asked to truncate
// its output to the vector width of the database schema.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	docs := make([]*ai.Document, len(texts))
	for i, text := range texts {
		docs[i] = ai.DocumentFromText(text, nil)
	}

	dim := int32(config.EmbedderDimension)
	resp, err := c.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   docs,
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return nil, fmt.Errorf("embed batch of %d: %w", len(texts), err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed batch: got %d embeddings for %d inputs",
			len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		vectors[i] = e.Embedding
	}
	return vectors, nil
}

// Chat generates a completion for the message sequence. System turns
// collapse into the model's system instruction; the rest become the
// conversation.
func (c *Client) Chat(ctx context.Context, messages []rag.Message) (string, error) {
	system, turns := splitMessages(messages)

	opts := []ai.GenerateOption{
		ai.WithModelName(modelPrefix + c.model),
		ai.WithMessages(turns...),
	}
	if system != "" {
		opts = append(opts, ai.WithSystem(system))
	}

	resp, err := genkit.Generate(ctx, c.g, opts...)
	if err != nil {
		return "", fmt.Errorf("generate with %s: %w", c.model, err)
	}
	return resp.Text(), nil
}

// splitMessages separates the system instruction from the conversation
// turns. A later system turn replaces an earlier one.
func splitMessages(messages []rag.Message) (system string, turns []*ai.Message) {
	for _, m := range messages {
		switch m.Role {
		case rag.RoleSystem:
			system = m.Content
		case rag.RoleAssistant:
			turns = append(turns, ai.NewModelMessage(ai.NewTextPart(m.Content)))
		default:
			turns = append(turns, ai.NewUserMessage(ai.NewTextPart(m.Content)))
		}
	}
	return system, turns
}
