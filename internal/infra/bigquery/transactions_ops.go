package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

const dateFormat = "2006-01-02"

// TableRef names the export table.
type TableRef struct {
	Project string
	Dataset string
	Table   string
}

func (t TableRef) qualified() string {
	return fmt.Sprintf("`%s.%s.%s`", t.Project, t.Dataset, t.Table)
}

// InsertTransactionsWithClient streams rows into the export table using the
// provided BigQuery client.
func InsertTransactionsWithClient(ctx context.Context, client *bigquery.Client, ref TableRef, rows []*TransactionRow) error {
	if len(rows) == 0 {
		return nil
	}

	table := client.DatasetInProject(ref.Project, ref.Dataset).Table(ref.Table)
	inserter := table.Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertTransactions: inserting rows: %w", err)
	}
	return nil
}

// UpdateCategoryForMerchantWithClient re-categorises every exported
// transaction of a merchant and returns the number of rows changed.
func UpdateCategoryForMerchantWithClient(ctx context.Context, client *bigquery.Client, ref TableRef, merchant, category string) (int64, error) {
	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET category = @category
		WHERE LOWER(merchant) = LOWER(@merchant)
		  AND category != @category
	`, ref.qualified()))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "category", Value: category},
		{Name: "merchant", Value: merchant},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("UpdateCategoryForMerchant: running update query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("UpdateCategoryForMerchant: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("UpdateCategoryForMerchant: job error: %w", err)
	}

	if status.Statistics != nil {
		if stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
			return stats.NumDMLAffectedRows, nil
		}
	}
	return 0, nil
}

// QueryTransactionsByDateRangeWithClient returns exported transactions whose
// transaction_date lies in [startDate, endDate].
func QueryTransactionsByDateRangeWithClient(ctx context.Context, client *bigquery.Client, ref TableRef, startDate, endDate time.Time) ([]*TransactionRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			transaction_id,
			transaction_date,
			received_ts,
			amount,
			currency,
			direction,
			merchant,
			category,
			tx_type,
			reference_id,
			confidence,
			extractor,
			sender,
			source_text,
			created_ts
		FROM %s
		WHERE transaction_date >= @start_date
		  AND transaction_date <= @end_date
		ORDER BY transaction_date, received_ts
	`, ref.qualified()))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "start_date", Value: startDate.Format(dateFormat)},
		{Name: "end_date", Value: endDate.Format(dateFormat)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryTransactionsByDateRange: query read: %w", err)
	}

	var rows []*TransactionRow
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryTransactionsByDateRange: iter next: %w", err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}
