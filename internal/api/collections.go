package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sheaf-ai/sheaf/internal/collection"
	"github.com/sheaf-ai/sheaf/internal/search"
)

type collectionHandler struct {
	store       CollectionStore
	searcher    Searcher
	blobs       BlobStore
	logger      *slog.Logger
	defaultTopK int
	maxTopK     int
}

type collectionResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type collectionStatsResponse struct {
	collectionResponse
	DocumentCount int            `json:"document_count"`
	TotalBytes    int64          `json:"total_bytes"`
	ByStatus      map[string]int `json:"by_status"`
}

func toCollectionResponse(c *collection.Collection) collectionResponse {
	return collectionResponse{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func (h *collectionHandler) create(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}

	created, err := h.store.Create(r.Context(), userID, body.Name, body.Description)
	switch {
	case errors.Is(err, collection.ErrEmptyName):
		writeError(w, http.StatusBadRequest, "EMPTY_NAME", "collection name is required")
	case errors.Is(err, collection.ErrNameTaken):
		writeError(w, http.StatusConflict, "NAME_TAKEN", "a collection with this name already exists")
	case err != nil:
		h.logger.Error("creating collection", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not create collection")
	default:
		writeJSON(w, http.StatusCreated, toCollectionResponse(created))
	}
}

func (h *collectionHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	items, err := h.store.List(r.Context(), userID)
	if err != nil {
		h.logger.Error("listing collections", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not list collections")
		return
	}

	out := make([]collectionStatsResponse, len(items))
	for i, item := range items {
		out[i] = collectionStatsResponse{
			collectionResponse: toCollectionResponse(&item.Collection),
			DocumentCount:      item.Stats.DocumentCount,
			TotalBytes:         item.Stats.TotalBytes,
			ByStatus:           item.Stats.ByStatus,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *collectionHandler) get(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	found, err := h.store.Get(r.Context(), id, userID)
	if errors.Is(err, collection.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "collection not found")
		return
	}
	if err != nil {
		h.logger.Error("getting collection", "error", err, "collection_id", id)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not load collection")
		return
	}
	writeJSON(w, http.StatusOK, toCollectionResponse(found))
}

func (h *collectionHandler) update(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var body struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}

	updated, err := h.store.Update(r.Context(), id, userID, body.Name, body.Description)
	switch {
	case errors.Is(err, collection.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "collection not found")
	case errors.Is(err, collection.ErrNameTaken):
		writeError(w, http.StatusConflict, "NAME_TAKEN", "a collection with this name already exists")
	case err != nil:
		h.logger.Error("updating collection", "error", err, "collection_id", id)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not update collection")
	default:
		writeJSON(w, http.StatusOK, toCollectionResponse(updated))
	}
}

func (h *collectionHandler) remove(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	blobKeys, err := h.store.SoftDelete(r.Context(), id, userID)
	if errors.Is(err, collection.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "collection not found")
		return
	}
	if err != nil {
		h.logger.Error("deleting collection", "error", err, "collection_id", id)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not delete collection")
		return
	}

	// Blob removal is best effort; the rows are already gone.
	go h.cleanupBlobs(blobKeys)

	w.WriteHeader(http.StatusNoContent)
}

func (h *collectionHandler) cleanupBlobs(keys []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, key := range keys {
		if err := h.blobs.Delete(ctx, key); err != nil {
			h.logger.Warn("removing blob after collection delete", "key", key, "error", err)
		}
	}
}

type searchResultResponse struct {
	ChunkID      uuid.UUID `json:"chunk_id"`
	ChunkIndex   int       `json:"chunk_index"`
	Content      string    `json:"content"`
	PageNumbers  []int32   `json:"page_numbers,omitempty"`
	DocumentID   uuid.UUID `json:"document_id"`
	DocumentName string    `json:"document_name"`
	Similarity   float64   `json:"similarity_score"`
}

func (h *collectionHandler) search(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var body struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}
	if strings.TrimSpace(body.Query) == "" {
		writeError(w, http.StatusBadRequest, "EMPTY_QUERY", "query is required")
		return
	}

	topK := body.TopK
	if topK <= 0 {
		topK = h.defaultTopK
	}
	if h.maxTopK > 0 && topK > h.maxTopK {
		topK = h.maxTopK
	}

	results, err := h.searcher.Search(r.Context(), id, userID, body.Query, topK)
	if err != nil {
		h.logger.Error("searching collection", "error", err, "collection_id", id)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "search failed")
		return
	}

	out := make([]searchResultResponse, len(results))
	for i, res := range results {
		out[i] = toSearchResultResponse(res)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   body.Query,
		"results": out,
	})
}

func toSearchResultResponse(res search.Result) searchResultResponse {
	return searchResultResponse{
		ChunkID:      res.ChunkID,
		ChunkIndex:   res.ChunkIndex,
		Content:      res.Content,
		PageNumbers:  res.PageNumbers,
		DocumentID:   res.DocumentID,
		DocumentName: res.DocumentName,
		Similarity:   res.Similarity,
	}
}
