package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rmoreira/leadqual-ai/internal/provider"
	"github.com/rmoreira/leadqual-ai/internal/qualification"
	"github.com/rmoreira/leadqual-ai/pkg/logging"
)

// AIWebhookHandler exposes the qualification engine over HTTP: the inbound
// message webhook plus the introspection and administration endpoints.
type AIWebhookHandler struct {
	engine   *qualification.Engine
	provider provider.AIProvider
	logger   *logging.Logger
}

// NewAIWebhookHandler creates the handler.
func NewAIWebhookHandler(engine *qualification.Engine, aiProvider provider.AIProvider, logger *logging.Logger) *AIWebhookHandler {
	if engine == nil {
		panic("handlers: qualification engine cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AIWebhookHandler{engine: engine, provider: aiProvider, logger: logger}
}

type inboundMessageRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
	Name    string `json:"name,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// WhatsAppWebhook handles an inbound WhatsApp message that was already
// normalized by the messaging integration: {phone, message, name}.
// The response body carries the reply to deliver back to the lead.
func (h *AIWebhookHandler) WhatsAppWebhook(w http.ResponseWriter, r *http.Request) {
	h.processInbound(w, r, nil)
}

// TestMessage runs the same turn processing for manual testing. The
// conversation is marked so downstream consumers can filter it out.
func (h *AIWebhookHandler) TestMessage(w http.ResponseWriter, r *http.Request) {
	h.processInbound(w, r, map[string]string{"channel": "test"})
}

func (h *AIWebhookHandler) processInbound(w http.ResponseWriter, r *http.Request, extra map[string]string) {
	var req inboundMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	metadata := make(map[string]string, len(extra)+1)
	if req.Name != "" {
		metadata["display_name"] = req.Name
	}
	for k, v := range extra {
		metadata[k] = v
	}

	result, err := h.engine.ProcessMessage(r.Context(), req.Phone, req.Message, metadata)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Stats reports conversation counts per status.
func (h *AIWebhookHandler) Stats(w http.ResponseWriter, r *http.Request) {
	counts := h.engine.GetStats()
	total := 0
	byStatus := make(map[string]int, len(counts))
	for status, count := range counts {
		byStatus[string(status)] = count
		total += count
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_conversations": total,
		"by_status":           byStatus,
	})
}

type conversationSummary struct {
	Phone          string    `json:"phone"`
	Status         string    `json:"status"`
	Score          int       `json:"score"`
	Attempts       int       `json:"attempts"`
	CollectedCount int       `json:"collected_count"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// ActiveConversations lists every non-terminal conversation.
func (h *AIWebhookHandler) ActiveConversations(w http.ResponseWriter, r *http.Request) {
	active := h.engine.ActiveConversations()
	summaries := make([]conversationSummary, 0, len(active))
	for _, conv := range active {
		summaries = append(summaries, conversationSummary{
			Phone:          conv.Phone,
			Status:         string(conv.Status),
			Score:          conv.Score,
			Attempts:       conv.Attempts,
			CollectedCount: conv.FilledFieldCount(),
			StartedAt:      conv.StartedAt,
			LastActivityAt: conv.LastActivityAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":         len(summaries),
		"conversations": summaries,
	})
}

// GetConversation returns the full conversation snapshot for a phone.
func (h *AIWebhookHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")
	conv, err := h.engine.GetConversation(phone)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

type endConversationRequest struct {
	Reason string `json:"reason,omitempty"`
}

// EndConversation manually terminates a conversation.
func (h *AIWebhookHandler) EndConversation(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")

	var req endConversationRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	result, err := h.engine.EndConversation(r.Context(), phone, req.Reason)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// EscalateConversation manually hands a conversation to a human.
func (h *AIWebhookHandler) EscalateConversation(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")

	result, err := h.engine.Escalate(r.Context(), phone)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetConfig returns the active qualification criteria.
func (h *AIWebhookHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Criteria())
}

// UpdateConfig hot-swaps the qualification criteria.
func (h *AIWebhookHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var criteria qualification.Criteria
	if err := json.NewDecoder(r.Body).Decode(&criteria); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	if err := h.engine.UpdateCriteria(criteria); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Criteria())
}

// Healthz reports service liveness and, when a provider is wired, backend
// reachability. A degraded provider does not fail the check: the engine
// still serves turns through the fallback reply.
func (h *AIWebhookHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{"status": "ok"}
	if h.provider != nil {
		response["provider"] = h.provider.Name()
		response["provider_healthy"] = h.provider.HealthCheck(r.Context())
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *AIWebhookHandler) writeEngineError(w http.ResponseWriter, err error) {
	var verr *qualification.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error()})
	case errors.Is(err, qualification.ErrConversationNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "conversation not found"})
	case errors.Is(err, qualification.ErrConversationEnded):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "conversation already ended"})
	default:
		h.logger.Error("unexpected engine error", "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
