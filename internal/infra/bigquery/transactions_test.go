package bigquery

import (
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/alertledger/internal/domain"
)

func TestNewTransactionRow(t *testing.T) {
	ts := time.Date(2024, 1, 1, 18, 45, 0, 0, time.UTC)
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	tx := &domain.ExtractedTransaction{
		ID:         "tx-1",
		Amount:     decimal.RequireFromString("450.00"),
		Direction:  domain.DirectionDebit,
		Merchant:   "Swiggy",
		Category:   domain.CategoryFoodDining,
		Type:       domain.TypeOneTime,
		Confidence: 0.7,
		SourceText: "Rs.450.00 debited",
		Sender:     "HDFCBK",
		Timestamp:  ts,
		Extractor:  "rule_based",
	}

	row := NewTransactionRow(tx, now)

	assert.Equal(t, "tx-1", row.TransactionID)
	assert.Equal(t, civil.Date{Year: 2024, Month: time.January, Day: 1}, row.TransactionDate)
	assert.Equal(t, "450", row.Amount.RatString())
	assert.Equal(t, DefaultCurrency, row.Currency)
	assert.Equal(t, "DEBIT", row.Direction)
	assert.Equal(t, "FOOD_DINING", row.Category)
	assert.False(t, row.ReferenceID.Valid)
	assert.Equal(t, now, row.CreatedTS)

	tx.ReferenceID = "swiggy@icici"
	row = NewTransactionRow(tx, now)
	assert.True(t, row.ReferenceID.Valid)
	assert.Equal(t, "swiggy@icici", row.ReferenceID.StringVal)
}

func TestTransactionRowSaveUsesTransactionIDAsInsertID(t *testing.T) {
	row := &TransactionRow{TransactionID: "tx-9", Amount: big.NewRat(649, 1)}
	_, insertID, err := row.Save()
	require.NoError(t, err)
	assert.Equal(t, "tx-9", insertID)
}

func TestTableRefQualified(t *testing.T) {
	ref := TableRef{Project: "ledger-prod", Dataset: "alerts", Table: "transactions"}
	assert.Equal(t, "`ledger-prod.alerts.transactions`", ref.qualified())
}
