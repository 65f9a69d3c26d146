package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sheaf-ai/sheaf/internal/conversation"
	"github.com/sheaf-ai/sheaf/internal/rag"
)

type conversationHandler struct {
	convs  ConversationStore
	rag    Asker
	logger *slog.Logger
}

type conversationResponse struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toConversationResponse(c *conversation.Conversation) conversationResponse {
	return conversationResponse{ID: c.ID, Title: c.Title, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt}
}

type messageResponse struct {
	ID            uuid.UUID               `json:"id"`
	Role          string                  `json:"role"`
	Content       string                  `json:"content"`
	Citations     []conversation.Citation `json:"citations,omitempty"`
	TokenEstimate int                     `json:"token_estimate,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
}

func (h *conversationHandler) create(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	var body struct {
		Title string `json:"title"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}

	created, err := h.convs.Create(r.Context(), userID, body.Title)
	if err != nil {
		h.logger.Error("creating conversation", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not create conversation")
		return
	}
	writeJSON(w, http.StatusCreated, toConversationResponse(created))
}

func (h *conversationHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	items, err := h.convs.List(r.Context(), userID)
	if err != nil {
		h.logger.Error("listing conversations", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not list conversations")
		return
	}
	out := make([]conversationResponse, len(items))
	for i, c := range items {
		out[i] = toConversationResponse(c)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *conversationHandler) get(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	found, err := h.convs.Get(r.Context(), id, userID)
	if errors.Is(err, conversation.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "conversation not found")
		return
	}
	if err != nil {
		h.logger.Error("getting conversation", "error", err, "conversation_id", id)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not load conversation")
		return
	}
	writeJSON(w, http.StatusOK, toConversationResponse(found))
}

func (h *conversationHandler) messages(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if _, err := h.convs.Get(r.Context(), id, userID); err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "conversation not found")
			return
		}
		h.logger.Error("checking conversation", "error", err, "conversation_id", id)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not load messages")
		return
	}

	msgs, err := h.convs.Messages(r.Context(), id)
	if err != nil {
		h.logger.Error("listing messages", "error", err, "conversation_id", id)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not load messages")
		return
	}

	out := make([]messageResponse, len(msgs))
	for i, m := range msgs {
		out[i] = messageResponse{
			ID:            m.ID,
			Role:          m.Role,
			Content:       m.Content,
			Citations:     m.Citations,
			TokenEstimate: m.TokenEstimate,
			CreatedAt:     m.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *conversationHandler) attached(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if _, err := h.convs.Get(r.Context(), id, userID); err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "conversation not found")
			return
		}
		h.logger.Error("checking conversation", "error", err, "conversation_id", id)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not load attachments")
		return
	}

	items, err := h.convs.AttachedCollections(r.Context(), id)
	if err != nil {
		h.logger.Error("listing attachments", "error", err, "conversation_id", id)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not load attachments")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *conversationHandler) attach(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	collectionID, ok := pathUUID(w, r, "collectionID")
	if !ok {
		return
	}

	err := h.convs.AttachCollection(r.Context(), id, userID, collectionID)
	switch {
	case errors.Is(err, conversation.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "conversation not found")
	case errors.Is(err, conversation.ErrTooManyCollections):
		writeError(w, http.StatusConflict, "TOO_MANY_COLLECTIONS",
			"a conversation can have at most 5 attached collections")
	case errors.Is(err, conversation.ErrAlreadyAttached):
		writeError(w, http.StatusConflict, "ALREADY_ATTACHED", "collection is already attached")
	case err != nil:
		h.logger.Error("attaching collection", "error", err, "conversation_id", id)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not attach collection")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *conversationHandler) detach(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	collectionID, ok := pathUUID(w, r, "collectionID")
	if !ok {
		return
	}

	err := h.convs.DetachCollection(r.Context(), id, userID, collectionID)
	switch {
	case errors.Is(err, conversation.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "conversation not found")
	case errors.Is(err, conversation.ErrNotAttached):
		writeError(w, http.StatusNotFound, "NOT_ATTACHED", "collection is not attached")
	case err != nil:
		h.logger.Error("detaching collection", "error", err, "conversation_id", id)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not detach collection")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// ask runs retrieval and generation, persists both turns and returns
// the assistant's answer with citations.
func (h *conversationHandler) ask(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var body struct {
		Question string `json:"question"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}
	if strings.TrimSpace(body.Question) == "" {
		writeError(w, http.StatusBadRequest, "EMPTY_QUESTION", "question is required")
		return
	}

	if _, err := h.convs.Get(r.Context(), id, userID); err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "conversation not found")
			return
		}
		h.logger.Error("checking conversation", "error", err, "conversation_id", id)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not answer question")
		return
	}

	answer, err := h.rag.Ask(r.Context(), id, userID, body.Question)
	if errors.Is(err, rag.ErrNoCollectionsAttached) {
		writeError(w, http.StatusBadRequest, "NO_COLLECTIONS",
			"attach at least one collection before asking")
		return
	}
	if err != nil {
		h.logger.Error("answering question", "error", err, "conversation_id", id)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not answer question")
		return
	}

	userMsg := &conversation.Message{
		ConversationID: id,
		Role:           conversation.RoleUser,
		Content:        body.Question,
	}
	assistantMsg := &conversation.Message{
		ConversationID: id,
		Role:           conversation.RoleAssistant,
		Content:        answer.Text,
		Citations:      answer.Citations,
		TokenEstimate:  answer.TokenEstimate,
	}
	if err := h.convs.AddMessage(r.Context(), userMsg); err != nil {
		h.logger.Error("persisting user message", "error", err, "conversation_id", id)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not persist message")
		return
	}
	if err := h.convs.AddMessage(r.Context(), assistantMsg); err != nil {
		h.logger.Error("persisting assistant message", "error", err, "conversation_id", id)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not persist message")
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		ID:            assistantMsg.ID,
		Role:          assistantMsg.Role,
		Content:       assistantMsg.Content,
		Citations:     assistantMsg.Citations,
		TokenEstimate: assistantMsg.TokenEstimate,
		CreatedAt:     assistantMsg.CreatedAt,
	})
}
