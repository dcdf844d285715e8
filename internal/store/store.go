// Package store defines the persistence contracts the pipeline relies on.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/alertledger/internal/domain"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// TransactionStore persists extracted transactions.
type TransactionStore interface {
	// InsertTransaction stores tx unless a transaction with the same ID
	// exists. It reports whether a new row was written.
	InsertTransaction(ctx context.Context, tx *domain.ExtractedTransaction) (bool, error)

	// GetTransaction retrieves a transaction by ID.
	GetTransaction(ctx context.Context, id string) (*domain.ExtractedTransaction, error)

	// ListTransactions retrieves transactions, newest first.
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]*domain.ExtractedTransaction, error)

	// UpdateCategoryForMerchant re-categorises every transaction of a merchant
	// (case-insensitive) and returns the number of rows changed.
	UpdateCategoryForMerchant(ctx context.Context, merchant string, category domain.Category) (int64, error)
}

// TransactionFilter defines filtering criteria for listing transactions.
type TransactionFilter struct {
	Merchant  string
	Category  domain.Category
	Direction domain.Direction
	Since     time.Time
	Until     time.Time
	Limit     int
	Offset    int
}

// Match reports whether tx passes the filter's field criteria.
func (f TransactionFilter) Match(tx *domain.ExtractedTransaction) bool {
	if f.Merchant != "" && !equalFold(tx.Merchant, f.Merchant) {
		return false
	}
	if f.Category != "" && tx.Category != f.Category {
		return false
	}
	if f.Direction != "" && tx.Direction != f.Direction {
		return false
	}
	if !f.Since.IsZero() && tx.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !tx.Timestamp.Before(f.Until) {
		return false
	}
	return true
}

// SubscriptionStore persists subscription records.
type SubscriptionStore interface {
	// SaveSubscription inserts or replaces a record by ID.
	SaveSubscription(ctx context.Context, rec domain.SubscriptionRecord) error

	// GetSubscription retrieves a record by ID.
	GetSubscription(ctx context.Context, id string) (domain.SubscriptionRecord, error)

	// GetSubscriptionByUMN retrieves the record registered under a mandate id.
	GetSubscriptionByUMN(ctx context.Context, umn string) (domain.SubscriptionRecord, error)

	// ListSubscriptions retrieves records ordered by next payment date.
	ListSubscriptions(ctx context.Context, filter SubscriptionFilter) ([]domain.SubscriptionRecord, error)
}

// SubscriptionFilter defines filtering criteria for listing subscriptions.
type SubscriptionFilter struct {
	State    domain.SubscriptionState
	Merchant string
}

// Match reports whether rec passes the filter.
func (f SubscriptionFilter) Match(rec domain.SubscriptionRecord) bool {
	if f.State != "" && rec.State != f.State {
		return false
	}
	if f.Merchant != "" && !equalFold(rec.MerchantName, f.Merchant) {
		return false
	}
	return true
}

// Store is a backend that holds both transactions and subscriptions.
type Store interface {
	TransactionStore
	SubscriptionStore
	Close() error
}
