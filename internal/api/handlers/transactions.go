package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/alertledger/internal/api/middleware"
	"github.com/dvloznov/alertledger/internal/domain"
	"github.com/dvloznov/alertledger/internal/store"
)

// Recategorizer applies a category to every transaction of a merchant.
type Recategorizer interface {
	UpdateCategoryForMerchant(ctx context.Context, merchant string, category domain.Category) (int64, error)
}

// TransactionsHandler handles transaction-related endpoints.
type TransactionsHandler struct {
	repo  store.TransactionStore
	recat Recategorizer
	log   zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(repo store.TransactionStore, recat Recategorizer, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		repo:  repo,
		recat: recat,
		log:   log,
	}
}

// ListTransactions handles GET /api/transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	filter := store.TransactionFilter{Merchant: query.Get("merchant")}
	filter.Limit, filter.Offset = pageParams(r)

	if v := query.Get("category"); v != "" {
		c, ok := domain.ParseCategory(v)
		if !ok {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid category")
			return
		}
		filter.Category = c
	}
	if v := query.Get("direction"); v != "" {
		d, ok := domain.ParseDirection(v)
		if !ok {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid direction")
			return
		}
		filter.Direction = d
	}
	if v := query.Get("start_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid start_date format")
			return
		}
		filter.Since = t
	}
	if v := query.Get("end_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid end_date format")
			return
		}
		// end_date is inclusive.
		filter.Until = t.AddDate(0, 0, 1)
	}

	transactions, err := h.repo.ListTransactions(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to query transactions")
		return
	}

	if transactions == nil {
		transactions = []*domain.ExtractedTransaction{}
	}
	middleware.WriteJSON(w, http.StatusOK, transactions)
}

// GetTransaction handles GET /api/transactions/{id}
func (h *TransactionsHandler) GetTransaction(w http.ResponseWriter, r *http.Request, id string) {
	tx, err := h.repo.GetTransaction(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("transaction_id", id).Msg("Failed to get transaction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get transaction")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, tx)
}

// UpdateMerchantCategory handles PUT /api/merchants/{merchant}/category
func (h *TransactionsHandler) UpdateMerchantCategory(w http.ResponseWriter, r *http.Request, merchant string) {
	var req struct {
		Category string `json:"category"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	category, ok := domain.ParseCategory(req.Category)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid category")
		return
	}
	if strings.TrimSpace(merchant) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Merchant is required")
		return
	}

	n, err := h.recat.UpdateCategoryForMerchant(r.Context(), merchant, category)
	if err != nil {
		h.log.Error().Err(err).Str("merchant", merchant).Msg("Failed to update merchant category")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to update merchant category")
		return
	}

	h.log.Info().Str("merchant", merchant).Str("category", string(category)).Int64("updated", n).Msg("Merchant re-categorised")
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"merchant": merchant,
		"category": category,
		"updated":  n,
	})
}
