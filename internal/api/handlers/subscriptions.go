package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/alertledger/internal/api/middleware"
	"github.com/dvloznov/alertledger/internal/domain"
	"github.com/dvloznov/alertledger/internal/store"
	"github.com/dvloznov/alertledger/internal/subscription"
)

// SubscriptionService is the subset of subscription.Service the API uses.
type SubscriptionService interface {
	List(ctx context.Context, filter store.SubscriptionFilter) ([]domain.SubscriptionRecord, error)
	Hide(ctx context.Context, id string) (domain.SubscriptionRecord, error)
	Unhide(ctx context.Context, id string) (domain.SubscriptionRecord, error)
	CreateFromMandate(ctx context.Context, info domain.MandateInfo) (subscription.Decision, error)
}

// SubscriptionsHandler handles subscription endpoints.
type SubscriptionsHandler struct {
	svc SubscriptionService
	log zerolog.Logger
}

// NewSubscriptionsHandler creates a new subscriptions handler.
func NewSubscriptionsHandler(svc SubscriptionService, log zerolog.Logger) *SubscriptionsHandler {
	return &SubscriptionsHandler{svc: svc, log: log}
}

// ListSubscriptions handles GET /api/subscriptions
func (h *SubscriptionsHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := store.SubscriptionFilter{Merchant: query.Get("merchant")}

	switch state := domain.SubscriptionState(query.Get("state")); state {
	case "", domain.SubscriptionActive, domain.SubscriptionHidden:
		filter.State = state
	default:
		middleware.WriteError(w, http.StatusBadRequest, "Invalid state")
		return
	}

	records, err := h.svc.List(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list subscriptions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list subscriptions")
		return
	}
	if records == nil {
		records = []domain.SubscriptionRecord{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"subscriptions": records,
		"count":         len(records),
	})
}

// Hide handles POST /api/subscriptions/{id}/hide
func (h *SubscriptionsHandler) Hide(w http.ResponseWriter, r *http.Request, id string) {
	h.setState(w, r, id, h.svc.Hide)
}

// Unhide handles POST /api/subscriptions/{id}/unhide
func (h *SubscriptionsHandler) Unhide(w http.ResponseWriter, r *http.Request, id string) {
	h.setState(w, r, id, h.svc.Unhide)
}

func (h *SubscriptionsHandler) setState(w http.ResponseWriter, r *http.Request, id string,
	fn func(context.Context, string) (domain.SubscriptionRecord, error)) {
	rec, err := fn(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Subscription not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("subscription_id", id).Msg("Failed to update subscription")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to update subscription")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, rec)
}

// CreateFromMandate handles POST /api/subscriptions/mandate
func (h *SubscriptionsHandler) CreateFromMandate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Merchant          string `json:"merchant"`
		Amount            string `json:"amount"`
		NextDeductionDate string `json:"next_deduction_date"`
		DateLayout        string `json:"date_layout"`
		UMN               string `json:"umn"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		middleware.WriteError(w, http.StatusBadRequest, "amount must be a positive decimal")
		return
	}
	if req.Merchant == "" {
		middleware.WriteError(w, http.StatusBadRequest, "merchant is required")
		return
	}

	info := domain.MandateInfo{
		Amount:            amount,
		NextDeductionDate: req.NextDeductionDate,
		DateLayout:        req.DateLayout,
		Merchant:          req.Merchant,
		UMN:               req.UMN,
	}
	d, err := h.svc.CreateFromMandate(r.Context(), info)
	if err != nil {
		h.log.Error().Err(err).Str("merchant", req.Merchant).Msg("Failed to record mandate")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to record mandate")
		return
	}

	status := http.StatusOK
	if d.Outcome == subscription.OutcomeCreated {
		status = http.StatusCreated
	}
	middleware.WriteJSON(w, status, d)
}
