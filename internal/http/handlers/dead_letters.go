package handlers

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/vendor-negotiation/internal/deadletter"
	"github.com/wolfman30/vendor-negotiation/internal/http/middleware"
	"github.com/wolfman30/vendor-negotiation/pkg/logging"
)

// DeadLetterHandler is the operator surface for inspecting and replaying
// dead letters.
type DeadLetterHandler struct {
	store    *deadletter.Store
	replayer *deadletter.Replayer
	logger   *logging.Logger
}

func NewDeadLetterHandler(store *deadletter.Store, replayer *deadletter.Replayer, logger *logging.Logger) *DeadLetterHandler {
	if store == nil || replayer == nil {
		panic("handlers: dead letter store and replayer are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DeadLetterHandler{store: store, replayer: replayer, logger: logger}
}

type DeadLetterListResponse struct {
	Entries []deadletter.Entry `json:"entries"`
	Total   int                `json:"total"`
}

type RetryResponse struct {
	ID        string            `json:"id"`
	Succeeded bool              `json:"succeeded"`
	Error     string            `json:"error,omitempty"`
	Entry     *deadletter.Entry `json:"entry,omitempty"`
}

// List handles GET /ops/dead-letters, oldest first. ?operation= filters.
func (h *DeadLetterHandler) List(w http.ResponseWriter, r *http.Request) {
	op := strings.TrimSpace(r.URL.Query().Get("operation"))
	all := h.store.List()
	entries := make([]deadletter.Entry, 0, len(all))
	for _, e := range all {
		if op != "" && e.Operation != op {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	writeJSON(w, http.StatusOK, DeadLetterListResponse{Entries: entries, Total: len(entries)})
}

// Get handles GET /ops/dead-letters/{id}.
func (h *DeadLetterHandler) Get(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.store.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "dead letter not found")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// Retry handles POST /ops/dead-letters/{id}/retry. A replay that fails is
// reported in the body with status 200; the entry stays in the store.
func (h *DeadLetterHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	operator, _ := middleware.OperatorFromContext(r.Context())

	err := h.replayer.Retry(r.Context(), id)
	switch {
	case err == nil:
		h.logger.Info("dead letter replayed", "dead_letter_id", id, "operator", operator)
		writeJSON(w, http.StatusOK, RetryResponse{ID: id, Succeeded: true})
	case errors.Is(err, deadletter.ErrNotFound):
		writeError(w, http.StatusNotFound, "dead letter not found")
	case errors.Is(err, deadletter.ErrRetryInProgress):
		writeError(w, http.StatusConflict, "retry already in progress")
	case errors.Is(err, deadletter.ErrNoReplayFunc):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Warn("dead letter replay failed", "dead_letter_id", id, "operator", operator, "error", err)
		resp := RetryResponse{ID: id, Error: err.Error()}
		if entry, ok := h.store.Get(id); ok {
			resp.Entry = &entry
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// Clear handles DELETE /ops/dead-letters.
func (h *DeadLetterHandler) Clear(w http.ResponseWriter, r *http.Request) {
	operator, _ := middleware.OperatorFromContext(r.Context())
	removed := h.store.Clear()
	h.logger.Warn("dead letters cleared by operator", "operator", operator, "removed", removed)
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}
