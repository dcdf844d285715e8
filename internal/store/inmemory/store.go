package inmemory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dvloznov/alertledger/internal/domain"
	"github.com/dvloznov/alertledger/internal/store"
)

// Store is an in-memory implementation of store.Store.
// It is safe for concurrent use. Data is lost on restart; use the sqlite
// store for persistence.
type Store struct {
	mu            sync.RWMutex
	transactions  map[string]*domain.ExtractedTransaction
	subscriptions map[string]domain.SubscriptionRecord
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		transactions:  make(map[string]*domain.ExtractedTransaction),
		subscriptions: make(map[string]domain.SubscriptionRecord),
	}
}

// InsertTransaction implements store.TransactionStore.
func (s *Store) InsertTransaction(ctx context.Context, tx *domain.ExtractedTransaction) (bool, error) {
	if tx.ID == "" {
		return false, fmt.Errorf("transaction ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[tx.ID]; exists {
		return false, nil
	}
	txCopy := *tx
	s.transactions[tx.ID] = &txCopy
	return true, nil
}

// GetTransaction implements store.TransactionStore.
func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.ExtractedTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, exists := s.transactions[id]
	if !exists {
		return nil, fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
	}
	txCopy := *tx
	return &txCopy, nil
}

// ListTransactions implements store.TransactionStore.
func (s *Store) ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]*domain.ExtractedTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*domain.ExtractedTransaction{}
	for _, tx := range s.transactions {
		if !filter.Match(tx) {
			continue
		}
		txCopy := *tx
		result = append(result, &txCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].ID < result[j].ID
		}
		return result[i].Timestamp.After(result[j].Timestamp)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*domain.ExtractedTransaction{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

// UpdateCategoryForMerchant implements store.TransactionStore.
func (s *Store) UpdateCategoryForMerchant(ctx context.Context, merchant string, category domain.Category) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	want := strings.TrimSpace(merchant)
	for _, tx := range s.transactions {
		if strings.EqualFold(tx.Merchant, want) && tx.Category != category {
			tx.Category = category
			n++
		}
	}
	return n, nil
}

// SaveSubscription implements store.SubscriptionStore.
func (s *Store) SaveSubscription(ctx context.Context, rec domain.SubscriptionRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("subscription ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.UMN != "" {
		for id, other := range s.subscriptions {
			if id != rec.ID && other.UMN == rec.UMN {
				return fmt.Errorf("umn %s already registered to subscription %s", rec.UMN, id)
			}
		}
	}
	s.subscriptions[rec.ID] = rec
	return nil
}

// GetSubscription implements store.SubscriptionStore.
func (s *Store) GetSubscription(ctx context.Context, id string) (domain.SubscriptionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.subscriptions[id]
	if !exists {
		return domain.SubscriptionRecord{}, fmt.Errorf("subscription %s: %w", id, store.ErrNotFound)
	}
	return rec, nil
}

// GetSubscriptionByUMN implements store.SubscriptionStore.
func (s *Store) GetSubscriptionByUMN(ctx context.Context, umn string) (domain.SubscriptionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.subscriptions {
		if umn != "" && rec.UMN == umn {
			return rec, nil
		}
	}
	return domain.SubscriptionRecord{}, fmt.Errorf("subscription with umn %s: %w", umn, store.ErrNotFound)
}

// ListSubscriptions implements store.SubscriptionStore.
func (s *Store) ListSubscriptions(ctx context.Context, filter store.SubscriptionFilter) ([]domain.SubscriptionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []domain.SubscriptionRecord{}
	for _, rec := range s.subscriptions {
		if filter.Match(rec) {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i].NextPaymentDate, result[j].NextPaymentDate
		if a == b {
			return result[i].ID < result[j].ID
		}
		return a.Before(b)
	})
	return result, nil
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

var _ store.Store = (*Store)(nil)
