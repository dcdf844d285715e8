// Package bigquery exports extracted transactions to a BigQuery table.
package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/alertledger/internal/domain"
)

// TransactionSink is the export side of the pipeline. It holds a shared
// BigQuery client for the lifetime of the process.
type TransactionSink struct {
	client *bigquery.Client
	ref    TableRef
	now    func() time.Time
}

// NewTransactionSink opens a client for ref.Project.
func NewTransactionSink(ctx context.Context, ref TableRef) (*TransactionSink, error) {
	if ref.Project == "" || ref.Dataset == "" || ref.Table == "" {
		return nil, fmt.Errorf("NewTransactionSink: project, dataset and table are required")
	}
	client, err := bigquery.NewClient(ctx, ref.Project)
	if err != nil {
		return nil, fmt.Errorf("NewTransactionSink: creating client: %w", err)
	}
	return NewTransactionSinkWithClient(client, ref), nil
}

// NewTransactionSinkWithClient wraps an existing client.
func NewTransactionSinkWithClient(client *bigquery.Client, ref TableRef) *TransactionSink {
	return &TransactionSink{client: client, ref: ref, now: time.Now}
}

// Export streams one transaction.
func (s *TransactionSink) Export(ctx context.Context, tx *domain.ExtractedTransaction) error {
	return InsertTransactionsWithClient(ctx, s.client, s.ref, []*TransactionRow{NewTransactionRow(tx, s.now())})
}

// UpdateCategoryForMerchant mirrors a re-categorisation into the export table.
func (s *TransactionSink) UpdateCategoryForMerchant(ctx context.Context, merchant string, category domain.Category) (int64, error) {
	return UpdateCategoryForMerchantWithClient(ctx, s.client, s.ref, merchant, string(category))
}

// ListByDateRange returns exported rows between two dates, inclusive.
func (s *TransactionSink) ListByDateRange(ctx context.Context, start, end time.Time) ([]*TransactionRow, error) {
	return QueryTransactionsByDateRangeWithClient(ctx, s.client, s.ref, start, end)
}

// Close closes the BigQuery client connection.
func (s *TransactionSink) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
