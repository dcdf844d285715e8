package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTransactionID(t *testing.T) {
	ts := time.Date(2024, 1, 1, 13, 5, 0, 0, time.UTC)
	body := "Rs.450.00 debited from A/c XX1234 at Swiggy"

	id := TransactionID("HDFCBK", body, ts)
	assert.Len(t, id, 36)
	assert.Equal(t, id, TransactionID("HDFCBK", body, ts))
	assert.Equal(t, id, TransactionID("HDFCBK", body, ts.In(time.FixedZone("IST", 19800))))

	assert.NotEqual(t, id, TransactionID("ICICIB", body, ts))
	assert.NotEqual(t, id, TransactionID("HDFCBK", body+".", ts))
	assert.NotEqual(t, id, TransactionID("HDFCBK", body, ts.Add(time.Millisecond)))
}

func TestParseEnums(t *testing.T) {
	d, ok := ParseDirection(" debit ")
	assert.True(t, ok)
	assert.Equal(t, DirectionDebit, d)
	_, ok = ParseDirection("refund")
	assert.False(t, ok)

	c, ok := ParseCategory("food_dining")
	assert.True(t, ok)
	assert.Equal(t, CategoryFoodDining, c)
	c, ok = ParseCategory("snacks")
	assert.False(t, ok)
	assert.Equal(t, CategoryOther, c)

	tt, ok := ParseTransactionType("Subscription")
	assert.True(t, ok)
	assert.Equal(t, TypeSubscription, tt)
	tt, ok = ParseTransactionType("gift")
	assert.False(t, ok)
	assert.Equal(t, TypeUnknown, tt)
}

func TestSignedAmount(t *testing.T) {
	tx := &ExtractedTransaction{Amount: decimal.RequireFromString("450"), Direction: DirectionDebit}
	assert.Equal(t, "-450", tx.SignedAmount().String())

	tx.Direction = DirectionCredit
	assert.Equal(t, "450", tx.SignedAmount().String())
}
