// Package storetest holds behaviour tests shared by every store.Store backend.
package storetest

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/alertledger/internal/domain"
	"github.com/dvloznov/alertledger/internal/store"
)

// Factory returns a fresh, empty store. The caller closes it.
type Factory func(t *testing.T) store.Store

// Run exercises the store.Store contract against the backend built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("InsertTransactionDeduplicates", func(t *testing.T) { testInsertDedup(t, newStore(t)) })
	t.Run("ListTransactionsFilters", func(t *testing.T) { testListTransactions(t, newStore(t)) })
	t.Run("UpdateCategoryForMerchant", func(t *testing.T) { testUpdateCategory(t, newStore(t)) })
	t.Run("Subscriptions", func(t *testing.T) { testSubscriptions(t, newStore(t)) })
}

func tx(id, merchant string, amount string, ts time.Time) *domain.ExtractedTransaction {
	return &domain.ExtractedTransaction{
		ID:         id,
		Amount:     decimal.RequireFromString(amount),
		Direction:  domain.DirectionDebit,
		Merchant:   merchant,
		Category:   domain.CategoryOther,
		Type:       domain.TypeOneTime,
		Confidence: 0.7,
		SourceText: "Rs." + amount + " debited at " + merchant,
		Sender:     "HDFCBK",
		Timestamp:  ts,
		Extractor:  "rule_based",
	}
}

func testInsertDedup(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()
	ts := time.Date(2024, 10, 12, 13, 0, 0, 0, time.UTC)

	inserted, err := s.InsertTransaction(ctx, tx("a", "Swiggy", "450.00", ts))
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := tx("a", "Zomato", "99", ts)
	inserted, err = s.InsertTransaction(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := s.GetTransaction(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Swiggy", got.Merchant)
	assert.True(t, decimal.RequireFromString("450").Equal(got.Amount))
	assert.True(t, ts.Equal(got.Timestamp))

	_, err = s.GetTransaction(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.InsertTransaction(ctx, tx("", "Swiggy", "1", ts))
	assert.Error(t, err)
}

func testListTransactions(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()
	base := time.Date(2024, 10, 1, 9, 0, 0, 0, time.UTC)

	for i, m := range []string{"Swiggy", "Zomato", "swiggy", "Uber"} {
		_, err := s.InsertTransaction(ctx, tx(string(rune('a'+i)), m, "100", base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}

	all, err := s.ListTransactions(ctx, store.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "d", all[0].ID, "newest first")

	swiggy, err := s.ListTransactions(ctx, store.TransactionFilter{Merchant: "SWIGGY"})
	require.NoError(t, err)
	assert.Len(t, swiggy, 2)

	window, err := s.ListTransactions(ctx, store.TransactionFilter{Since: base.Add(time.Hour), Until: base.Add(3 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, "c", window[0].ID)
	assert.Equal(t, "b", window[1].ID)

	page, err := s.ListTransactions(ctx, store.TransactionFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].ID)

	empty, err := s.ListTransactions(ctx, store.TransactionFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testUpdateCategory(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()
	ts := time.Date(2024, 10, 1, 9, 0, 0, 0, time.UTC)

	for i, m := range []string{"Swiggy", "SWIGGY", "Uber"} {
		_, err := s.InsertTransaction(ctx, tx(string(rune('a'+i)), m, "100", ts))
		require.NoError(t, err)
	}

	n, err := s.UpdateCategoryForMerchant(ctx, "swiggy", domain.CategoryFoodDining)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.UpdateCategoryForMerchant(ctx, "swiggy", domain.CategoryFoodDining)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	uber, err := s.GetTransaction(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryOther, uber.Category)
}

func testSubscriptions(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()
	now := time.Date(2024, 10, 1, 9, 0, 0, 0, time.UTC)

	netflix := domain.SubscriptionRecord{
		ID:              "sub-1",
		MerchantName:    "Netflix",
		Amount:          decimal.RequireFromString("649"),
		NextPaymentDate: civil.Date{Year: 2024, Month: time.November, Day: 5},
		State:           domain.SubscriptionActive,
		UMN:             "HDFC7a1b2c3d@ybl",
		Category:        "Entertainment",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	gym := domain.SubscriptionRecord{
		ID:              "sub-2",
		MerchantName:    "Cult Fit",
		Amount:          decimal.RequireFromString("1500"),
		NextPaymentDate: civil.Date{Year: 2024, Month: time.October, Day: 20},
		State:           domain.SubscriptionHidden,
		Category:        "Health & Fitness",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, s.SaveSubscription(ctx, netflix))
	require.NoError(t, s.SaveSubscription(ctx, gym))

	got, err := s.GetSubscriptionByUMN(ctx, "HDFC7a1b2c3d@ybl")
	require.NoError(t, err)
	assert.Equal(t, "sub-1", got.ID)
	assert.Equal(t, netflix.NextPaymentDate, got.NextPaymentDate)
	assert.True(t, netflix.Amount.Equal(got.Amount))

	_, err = s.GetSubscriptionByUMN(ctx, "unknown")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetSubscription(ctx, "sub-9")
	assert.ErrorIs(t, err, store.ErrNotFound)

	all, err := s.ListSubscriptions(ctx, store.SubscriptionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "sub-2", all[0].ID, "earliest payment first")

	hidden, err := s.ListSubscriptions(ctx, store.SubscriptionFilter{State: domain.SubscriptionHidden})
	require.NoError(t, err)
	require.Len(t, hidden, 1)
	assert.Equal(t, "Cult Fit", hidden[0].MerchantName)

	gym.State = domain.SubscriptionActive
	gym.LastChargeID = "tx-42"
	require.NoError(t, s.SaveSubscription(ctx, gym))
	got, err = s.GetSubscription(ctx, "sub-2")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionActive, got.State)
	assert.Equal(t, "tx-42", got.LastChargeID)
	assert.Empty(t, got.UMN)

	clash := gym
	clash.ID = "sub-3"
	clash.UMN = netflix.UMN
	assert.Error(t, s.SaveSubscription(ctx, clash))
}
