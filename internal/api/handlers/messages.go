package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/alertledger/internal/api/middleware"
	"github.com/dvloznov/alertledger/internal/domain"
	"github.com/dvloznov/alertledger/internal/jobs"
	"github.com/dvloznov/alertledger/internal/pipeline"
)

// MessageProcessor runs one message through the pipeline synchronously.
type MessageProcessor interface {
	Process(ctx context.Context, msg domain.IncomingMessage) (*pipeline.PipelineState, error)
}

// MessagesHandler accepts raw alerts.
type MessagesHandler struct {
	proc      MessageProcessor
	publisher jobs.Publisher
	log       zerolog.Logger
	now       func() time.Time
}

// NewMessagesHandler creates a new messages handler. publisher may be nil,
// in which case async submission is refused.
func NewMessagesHandler(proc MessageProcessor, publisher jobs.Publisher, log zerolog.Logger) *MessagesHandler {
	return &MessagesHandler{
		proc:      proc,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

type messageRequest struct {
	Sender     string     `json:"sender"`
	Body       string     `json:"body"`
	ReceivedAt *time.Time `json:"received_at,omitempty"`
}

func (h *MessagesHandler) readMessage(w http.ResponseWriter, r *http.Request) (domain.IncomingMessage, bool) {
	var req messageRequest
	if !decodeJSON(w, r, &req) {
		return domain.IncomingMessage{}, false
	}
	if strings.TrimSpace(req.Sender) == "" || strings.TrimSpace(req.Body) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "sender and body are required")
		return domain.IncomingMessage{}, false
	}

	msg := domain.IncomingMessage{Sender: req.Sender, Body: req.Body, ReceivedAt: h.now()}
	if req.ReceivedAt != nil {
		msg.ReceivedAt = *req.ReceivedAt
	}
	return msg, true
}

// Parse handles POST /api/messages
func (h *MessagesHandler) Parse(w http.ResponseWriter, r *http.Request) {
	msg, ok := h.readMessage(w, r)
	if !ok {
		return
	}

	state, err := h.proc.Process(r.Context(), msg)
	if err != nil {
		h.log.Error().Err(err).Str("sender", msg.Sender).Msg("Failed to process message")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to process message")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, state)
}

// Enqueue handles POST /api/messages/async
func (h *MessagesHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	if h.publisher == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Async processing is not configured")
		return
	}

	msg, ok := h.readMessage(w, r)
	if !ok {
		return
	}

	job := &jobs.ExtractMessageJob{Message: msg}
	if err := h.publisher.PublishExtractMessage(r.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue extraction job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue extraction job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("sender", msg.Sender).Msg("Extraction job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}
