package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/wolfman30/vendor-negotiation/internal/negotiation"
	"github.com/wolfman30/vendor-negotiation/pkg/logging"
)

const maxRequestBody = 64 << 10

// NegotiationHandler exposes the guarded model calls and state repair to the
// conversation orchestrator.
type NegotiationHandler struct {
	guard  *negotiation.Guard
	model  negotiation.Model
	logger *logging.Logger
}

// NewNegotiationHandler creates the handler. model may be nil, in which case
// every request is answered by the heuristics.
func NewNegotiationHandler(guard *negotiation.Guard, model negotiation.Model, logger *logging.Logger) *NegotiationHandler {
	if guard == nil {
		panic("handlers: negotiation guard cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &NegotiationHandler{guard: guard, model: model, logger: logger}
}

type messageRequest struct {
	Message string `json:"message"`
}

type ClassifyResponse struct {
	Intent negotiation.Intent `json:"intent"`
}

type ParseResponse struct {
	Offer negotiation.Offer `json:"offer"`
}

type RepairResponse struct {
	State negotiation.ConversationState `json:"state"`
}

// Classify handles POST /v1/negotiation/classify.
func (h *NegotiationHandler) Classify(w http.ResponseWriter, r *http.Request) {
	msg, ok := h.decodeMessage(w, r)
	if !ok {
		return
	}
	var classify negotiation.ClassifyFunc
	if h.model != nil {
		classify = h.model.Classify
	}
	writeJSON(w, http.StatusOK, ClassifyResponse{Intent: h.guard.ClassifyWithFallback(r.Context(), msg, classify)})
}

// Parse handles POST /v1/negotiation/parse.
func (h *NegotiationHandler) Parse(w http.ResponseWriter, r *http.Request) {
	msg, ok := h.decodeMessage(w, r)
	if !ok {
		return
	}
	var parse negotiation.ParseFunc
	if h.model != nil {
		parse = h.model.ParseOffer
	}
	writeJSON(w, http.StatusOK, ParseResponse{Offer: h.guard.ParseOfferWithFallback(r.Context(), msg, parse)})
}

// Repair handles POST /v1/negotiation/repair. The body is the stored state
// object, however damaged.
func (h *NegotiationHandler) Repair(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	raw, err := negotiation.DecodeRawState(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "state must be a JSON object")
		return
	}
	writeJSON(w, http.StatusOK, RepairResponse{State: h.guard.RepairState(raw)})
}

func (h *NegotiationHandler) decodeMessage(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req messageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return "", false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return "", false
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return "", false
	}
	return req.Message, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
