package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/alertledger/internal/domain"
)

// DefaultCurrency is the currency of every alert the extractors understand.
const DefaultCurrency = "INR"

// TransactionRow is one row of the transactions export table.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED
	ReceivedTS      time.Time  `bigquery:"received_ts"`      // REQUIRED

	Amount    *big.Rat `bigquery:"amount"`    // REQUIRED NUMERIC, unsigned
	Currency  string   `bigquery:"currency"`  // REQUIRED
	Direction string   `bigquery:"direction"` // REQUIRED DEBIT|CREDIT

	Merchant string `bigquery:"merchant"`
	Category string `bigquery:"category"`
	TxType   string `bigquery:"tx_type"`

	ReferenceID bigquery.NullString `bigquery:"reference_id"` // NULLABLE

	Confidence float64 `bigquery:"confidence"`
	Extractor  string  `bigquery:"extractor"`

	Sender     string `bigquery:"sender"`
	SourceText string `bigquery:"source_text"`

	CreatedTS time.Time `bigquery:"created_ts"`
}

// NewTransactionRow maps an extracted transaction onto the export schema.
func NewTransactionRow(tx *domain.ExtractedTransaction, now time.Time) *TransactionRow {
	return &TransactionRow{
		TransactionID:   tx.ID,
		TransactionDate: civil.DateOf(tx.Timestamp),
		ReceivedTS:      tx.Timestamp,
		Amount:          tx.Amount.Abs().Rat(),
		Currency:        DefaultCurrency,
		Direction:       string(tx.Direction),
		Merchant:        tx.Merchant,
		Category:        string(tx.Category),
		TxType:          string(tx.Type),
		ReferenceID:     bigquery.NullString{StringVal: tx.ReferenceID, Valid: tx.ReferenceID != ""},
		Confidence:      tx.Confidence,
		Extractor:       tx.Extractor,
		Sender:          tx.Sender,
		SourceText:      tx.SourceText,
		CreatedTS:       now,
	}
}

// Save implements bigquery.ValueSaver. The transaction id doubles as the
// streaming insert id so retried inserts are de-duplicated.
func (r *TransactionRow) Save() (map[string]bigquery.Value, string, error) {
	ss := &bigquery.StructSaver{Struct: r, InsertID: r.TransactionID}
	return ss.Save()
}

var _ bigquery.ValueSaver = (*TransactionRow)(nil)
