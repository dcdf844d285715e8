package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/alertledger/internal/api/middleware"
	"github.com/dvloznov/alertledger/internal/strategy/model"
)

// Advisor answers free-form prompts.
type Advisor interface {
	GenerateFreeformResponse(ctx context.Context, prompt string) (string, error)
}

// AdviceHandler exposes the model's free-form mode.
type AdviceHandler struct {
	advisor Advisor
	log     zerolog.Logger
}

// NewAdviceHandler creates a new advice handler. A nil advisor makes every
// request fail with 503.
func NewAdviceHandler(advisor Advisor, log zerolog.Logger) *AdviceHandler {
	return &AdviceHandler{advisor: advisor, log: log}
}

// Advise handles POST /api/advice
func (h *AdviceHandler) Advise(w http.ResponseWriter, r *http.Request) {
	if h.advisor == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Model is not configured")
		return
	}

	var req struct {
		Prompt string `json:"prompt"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	resp, err := h.advisor.GenerateFreeformResponse(r.Context(), req.Prompt)
	if errors.Is(err, model.ErrNotReady) {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Model is not ready")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to generate advice")
		middleware.WriteError(w, http.StatusBadGateway, "Failed to generate advice")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{"response": resp})
}
