package api

import (
	"log/slog"
	"net/http"
)

// streamHandler serves the live document status stream over SSE.
type streamHandler struct {
	events Subscriber
	logger *slog.Logger
}

// stream subscribes the caller to their own document events and
// forwards them until the client disconnects.
func (h *streamHandler) stream(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, cancel := h.events.Subscribe(userID)
	defer cancel()

	h.logger.Debug("status stream opened", "user_id", userID)

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("status stream closed by client", "user_id", userID)
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if err := writeEvent(w, flusher, "status", ev); err != nil {
				h.logger.Debug("writing status event", "error", err)
				return
			}
		}
	}
}
