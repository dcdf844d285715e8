// Package api assembles the HTTP surface: routes, method checks and middleware.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/alertledger/internal/api/handlers"
	"github.com/dvloznov/alertledger/internal/api/middleware"
)

// Handlers groups the endpoint implementations. Nil handlers leave their
// routes unregistered.
type Handlers struct {
	Messages      *handlers.MessagesHandler
	Transactions  *handlers.TransactionsHandler
	Subscriptions *handlers.SubscriptionsHandler
	Advice        *handlers.AdviceHandler
	Jobs          *handlers.JobsHandler

	// ModelState reports the model strategy state for /health; nil omits it.
	ModelState func() string
}

// only wraps fn so that other methods get 405.
func only(method string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		fn(w, r)
	}
}

// NewRouter registers every route and wraps the mux in the middleware chain.
func NewRouter(h Handlers, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	if h.Messages != nil {
		mux.HandleFunc("/api/messages", only(http.MethodPost, h.Messages.Parse))
		mux.HandleFunc("/api/messages/async", only(http.MethodPost, h.Messages.Enqueue))
	}

	if h.Transactions != nil {
		mux.HandleFunc("/api/transactions", only(http.MethodGet, h.Transactions.ListTransactions))
		mux.HandleFunc("/api/transactions/", only(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimPrefix(r.URL.Path, "/api/transactions/")
			if id == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Transaction ID is required")
				return
			}
			h.Transactions.GetTransaction(w, r, id)
		}))
		mux.HandleFunc("/api/merchants/", only(http.MethodPut, func(w http.ResponseWriter, r *http.Request) {
			rest := strings.TrimPrefix(r.URL.Path, "/api/merchants/")
			merchant, ok := strings.CutSuffix(rest, "/category")
			if !ok || merchant == "" {
				middleware.WriteError(w, http.StatusNotFound, "Not found")
				return
			}
			h.Transactions.UpdateMerchantCategory(w, r, merchant)
		}))
	}

	if h.Subscriptions != nil {
		mux.HandleFunc("/api/subscriptions", only(http.MethodGet, h.Subscriptions.ListSubscriptions))
		mux.HandleFunc("/api/subscriptions/mandate", only(http.MethodPost, h.Subscriptions.CreateFromMandate))
		mux.HandleFunc("/api/subscriptions/", only(http.MethodPost, func(w http.ResponseWriter, r *http.Request) {
			rest := strings.TrimPrefix(r.URL.Path, "/api/subscriptions/")
			if id, ok := strings.CutSuffix(rest, "/hide"); ok && id != "" {
				h.Subscriptions.Hide(w, r, id)
				return
			}
			if id, ok := strings.CutSuffix(rest, "/unhide"); ok && id != "" {
				h.Subscriptions.Unhide(w, r, id)
				return
			}
			middleware.WriteError(w, http.StatusNotFound, "Not found")
		}))
	}

	if h.Advice != nil {
		mux.HandleFunc("/api/advice", only(http.MethodPost, h.Advice.Advise))
	}

	if h.Jobs != nil {
		mux.HandleFunc("/api/jobs", only(http.MethodGet, h.Jobs.ListJobs))
		mux.HandleFunc("/api/jobs/", only(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			h.Jobs.GetJob(w, r, jobID)
		}))
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		}
		if h.ModelState != nil {
			body["model"] = h.ModelState()
		}
		middleware.WriteJSON(w, http.StatusOK, body)
	})

	return middleware.Chain(mux,
		middleware.Recovery(log),
		middleware.RequestID,
		middleware.Logger(log),
		middleware.CORS,
	)
}
