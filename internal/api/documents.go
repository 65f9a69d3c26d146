package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sheaf-ai/sheaf/internal/collection"
	"github.com/sheaf-ai/sheaf/internal/document"
	"github.com/sheaf-ai/sheaf/internal/task"
)

type documentHandler struct {
	docs           DocumentStore
	collections    CollectionStore
	blobs          BlobStore
	formats        FormatChecker
	queue          Enqueuer
	maxUploadBytes int64
	logger         *slog.Logger
}

type documentResponse struct {
	ID           uuid.UUID `json:"id"`
	CollectionID uuid.UUID `json:"collection_id"`
	Filename     string    `json:"filename"`
	FileType     string    `json:"file_type"`
	FileSize     int64     `json:"file_size"`
	Status       string    `json:"status"`
	PageCount    *int      `json:"page_count,omitempty"`
	WordCount    *int      `json:"word_count,omitempty"`
	Language     *string   `json:"language,omitempty"`
	ErrorDetail  *string   `json:"error_detail,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toDocumentResponse(d *document.Document) documentResponse {
	return documentResponse{
		ID:           d.ID,
		CollectionID: d.CollectionID,
		Filename:     d.Filename,
		FileType:     d.FileType,
		FileSize:     d.FileSize,
		Status:       string(d.Status),
		PageCount:    d.PageCount,
		WordCount:    d.WordCount,
		Language:     d.Language,
		ErrorDetail:  d.ErrorDetail,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// upload accepts a multipart form with a single "file" field, stores
// the content and queues extraction. A file whose extension no parser
// handles is stored but rejected with 400, keeping its uploaded status
// for a later retry.
func (h *documentHandler) upload(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	collectionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if _, err := h.collections.Get(r.Context(), collectionID, userID); err != nil {
		if errors.Is(err, collection.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "collection not found")
			return
		}
		h.logger.Error("checking collection for upload", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "upload failed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_UPLOAD", "multipart form with a file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE",
				fmt.Sprintf("upload exceeds the %d byte limit", h.maxUploadBytes))
			return
		}
		h.logger.Error("reading upload", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "upload failed")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "EMPTY_FILE", "uploaded file is empty")
		return
	}

	filename := filepath.Base(header.Filename)
	supported := h.formats.Supports(filename)

	doc := &document.Document{
		OwnerID:      userID,
		CollectionID: collectionID,
		Filename:     filename,
		BlobKey:      blobKey(collectionID, filename),
		FileType:     strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), "."),
		FileSize:     int64(len(data)),
	}

	if err := h.blobs.Upload(r.Context(), doc.BlobKey, data); err != nil {
		h.logger.Error("storing blob", "error", err, "key", doc.BlobKey)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not store file")
		return
	}
	if err := h.docs.Create(r.Context(), doc); err != nil {
		h.logger.Error("registering document", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not register document")
		return
	}

	if !supported {
		// The document stays uploaded; no task is queued for it.
		writeError(w, http.StatusBadRequest, "UNSUPPORTED_FORMAT",
			fmt.Sprintf("no parser handles %q files", filepath.Ext(filename)))
		return
	}

	if _, err := h.queue.Enqueue(r.Context(), task.NameProcess, doc.ID); err != nil {
		h.logger.Error("queueing document processing", "error", err, "document_id", doc.ID)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not queue processing")
		return
	}

	writeJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

// blobKey spreads blobs across per-collection directories and keeps
// keys unique even when the same filename is uploaded twice.
func blobKey(collectionID uuid.UUID, filename string) string {
	return fmt.Sprintf("%s/%s%s", collectionID, uuid.New(), filepath.Ext(filename))
}

func (h *documentHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	collectionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	docs, err := h.docs.ListByCollection(r.Context(), collectionID, userID)
	if err != nil {
		h.logger.Error("listing documents", "error", err, "collection_id", collectionID)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not list documents")
		return
	}
	out := make([]documentResponse, len(docs))
	for i, d := range docs {
		out[i] = toDocumentResponse(d)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *documentHandler) get(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	doc, err := h.docs.GetOwned(r.Context(), id, userID)
	if errors.Is(err, document.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "document not found")
		return
	}
	if err != nil {
		h.logger.Error("getting document", "error", err, "document_id", id)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not load document")
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (h *documentHandler) remove(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	doc, err := h.docs.GetOwned(r.Context(), id, userID)
	if errors.Is(err, document.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "document not found")
		return
	}
	if err != nil {
		h.logger.Error("getting document for delete", "error", err, "document_id", id)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not delete document")
		return
	}

	if err := h.docs.SoftDelete(r.Context(), id, userID); err != nil {
		h.logger.Error("deleting document", "error", err, "document_id", id)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not delete document")
		return
	}
	if err := h.blobs.Delete(r.Context(), doc.BlobKey); err != nil {
		h.logger.Warn("removing blob after document delete", "key", doc.BlobKey, "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

// retry re-queues extraction for a document in a retryable state.
func (h *documentHandler) retry(w http.ResponseWriter, r *http.Request) {
	h.resubmit(w, r, task.NameProcess, document.ProcessableFrom())
}

// reindex re-queues embedding generation without re-parsing.
func (h *documentHandler) reindex(w http.ResponseWriter, r *http.Request) {
	h.resubmit(w, r, task.NameIndex, document.IndexableFrom())
}

func (h *documentHandler) resubmit(w http.ResponseWriter, r *http.Request, taskName string, allowed []document.Status) {
	userID, _ := userIDFromContext(r.Context())
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	doc, err := h.docs.GetOwned(r.Context(), id, userID)
	if errors.Is(err, document.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "document not found")
		return
	}
	if err != nil {
		h.logger.Error("getting document for resubmit", "error", err, "document_id", id)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not resubmit document")
		return
	}

	eligible := false
	for _, s := range allowed {
		if doc.Status == s {
			eligible = true
			break
		}
	}
	if !eligible {
		writeError(w, http.StatusConflict, "INVALID_STATE",
			fmt.Sprintf("document in status %s cannot be resubmitted", doc.Status))
		return
	}

	if _, err := h.queue.Enqueue(r.Context(), taskName, doc.ID); err != nil {
		h.logger.Error("queueing resubmission", "error", err, "document_id", doc.ID)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not queue task")
		return
	}
	writeJSON(w, http.StatusAccepted, toDocumentResponse(doc))
}
