// Package sqlite is a modernc.org/sqlite-backed implementation of store.Store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/alertledger/internal/domain"
	"github.com/dvloznov/alertledger/internal/store"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id           TEXT PRIMARY KEY,
	amount       TEXT NOT NULL,
	direction    TEXT NOT NULL,
	merchant     TEXT NOT NULL,
	category     TEXT NOT NULL,
	tx_type      TEXT NOT NULL,
	reference_id TEXT NOT NULL DEFAULT '',
	confidence   REAL NOT NULL,
	source_text  TEXT NOT NULL,
	sender       TEXT NOT NULL,
	ts_millis    INTEGER NOT NULL,
	extractor    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_transactions_merchant ON transactions (merchant COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_transactions_ts ON transactions (ts_millis);

CREATE TABLE IF NOT EXISTS subscriptions (
	id                TEXT PRIMARY KEY,
	merchant_name     TEXT NOT NULL,
	amount            TEXT NOT NULL,
	next_payment_date TEXT NOT NULL,
	state             TEXT NOT NULL,
	umn               TEXT,
	category          TEXT NOT NULL,
	last_charge_id    TEXT NOT NULL DEFAULT '',
	created_at        INTEGER NOT NULL,
	updated_at        INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_subscriptions_umn ON subscriptions (umn) WHERE umn IS NOT NULL;
`

// Store persists transactions and subscriptions in a SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite.Open: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: %w", err)
	}
	// One connection keeps writes serialised and makes :memory: usable.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.Open: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertTransaction implements store.TransactionStore.
func (s *Store) InsertTransaction(ctx context.Context, tx *domain.ExtractedTransaction) (bool, error) {
	if tx.ID == "" {
		return false, fmt.Errorf("InsertTransaction: transaction ID is required")
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions
			(id, amount, direction, merchant, category, tx_type, reference_id,
			 confidence, source_text, sender, ts_millis, extractor)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		tx.ID, tx.Amount.String(), string(tx.Direction), tx.Merchant, string(tx.Category),
		string(tx.Type), tx.ReferenceID, tx.Confidence, tx.SourceText, tx.Sender,
		tx.Timestamp.UnixMilli(), tx.Extractor,
	)
	if err != nil {
		return false, fmt.Errorf("InsertTransaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("InsertTransaction: rows affected: %w", err)
	}
	return n == 1, nil
}

const txColumns = `id, amount, direction, merchant, category, tx_type, reference_id,
	confidence, source_text, sender, ts_millis, extractor`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.ExtractedTransaction, error) {
	var (
		tx                                  domain.ExtractedTransaction
		amount, direction, category, txType string
		millis                              int64
	)
	err := row.Scan(&tx.ID, &amount, &direction, &tx.Merchant, &category, &txType,
		&tx.ReferenceID, &tx.Confidence, &tx.SourceText, &tx.Sender, &millis, &tx.Extractor)
	if err != nil {
		return nil, err
	}
	tx.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("decode amount %q: %w", amount, err)
	}
	tx.Direction = domain.Direction(direction)
	tx.Category = domain.Category(category)
	tx.Type = domain.TransactionType(txType)
	tx.Timestamp = time.UnixMilli(millis).UTC()
	return &tx, nil
}

// GetTransaction implements store.TransactionStore.
func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.ExtractedTransaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: %w", err)
	}
	return tx, nil
}

// ListTransactions implements store.TransactionStore.
func (s *Store) ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]*domain.ExtractedTransaction, error) {
	var (
		where []string
		args  []any
	)
	if filter.Merchant != "" {
		where = append(where, "merchant = ? COLLATE NOCASE")
		args = append(args, strings.TrimSpace(filter.Merchant))
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(filter.Category))
	}
	if filter.Direction != "" {
		where = append(where, "direction = ?")
		args = append(args, string(filter.Direction))
	}
	if !filter.Since.IsZero() {
		where = append(where, "ts_millis >= ?")
		args = append(args, filter.Since.UnixMilli())
	}
	if !filter.Until.IsZero() {
		where = append(where, "ts_millis < ?")
		args = append(args, filter.Until.UnixMilli())
	}

	query := `SELECT ` + txColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts_millis DESC, id ASC"
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: query: %w", err)
	}
	defer rows.Close()

	result := []*domain.ExtractedTransaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("ListTransactions: scan: %w", err)
		}
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}
	return result, nil
}

// UpdateCategoryForMerchant implements store.TransactionStore.
func (s *Store) UpdateCategoryForMerchant(ctx context.Context, merchant string, category domain.Category) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET category = ? WHERE merchant = ? COLLATE NOCASE AND category != ?`,
		string(category), strings.TrimSpace(merchant), string(category))
	if err != nil {
		return 0, fmt.Errorf("UpdateCategoryForMerchant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("UpdateCategoryForMerchant: rows affected: %w", err)
	}
	return n, nil
}

// SaveSubscription implements store.SubscriptionStore.
func (s *Store) SaveSubscription(ctx context.Context, rec domain.SubscriptionRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("SaveSubscription: subscription ID is required")
	}
	var umn any
	if rec.UMN != "" {
		umn = rec.UMN
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions
			(id, merchant_name, amount, next_payment_date, state, umn, category, last_charge_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			merchant_name = excluded.merchant_name,
			amount = excluded.amount,
			next_payment_date = excluded.next_payment_date,
			state = excluded.state,
			umn = excluded.umn,
			category = excluded.category,
			last_charge_id = excluded.last_charge_id,
			updated_at = excluded.updated_at`,
		rec.ID, rec.MerchantName, rec.Amount.String(), rec.NextPaymentDate.String(),
		string(rec.State), umn, rec.Category, rec.LastChargeID, rec.CreatedAt.UnixMilli(), rec.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("SaveSubscription: %w", err)
	}
	return nil
}

const subColumns = `id, merchant_name, amount, next_payment_date, state, umn, category, last_charge_id, created_at, updated_at`

func scanSubscription(row rowScanner) (domain.SubscriptionRecord, error) {
	var (
		rec                  domain.SubscriptionRecord
		amount, date, state  string
		umn                  sql.NullString
		createdAt, updatedAt int64
	)
	if err := row.Scan(&rec.ID, &rec.MerchantName, &amount, &date, &state, &umn,
		&rec.Category, &rec.LastChargeID, &createdAt, &updatedAt); err != nil {
		return rec, err
	}
	var err error
	rec.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return rec, fmt.Errorf("decode amount %q: %w", amount, err)
	}
	rec.NextPaymentDate, err = civil.ParseDate(date)
	if err != nil {
		return rec, fmt.Errorf("decode next payment date %q: %w", date, err)
	}
	rec.State = domain.SubscriptionState(state)
	rec.UMN = umn.String
	rec.CreatedAt = time.UnixMilli(createdAt).UTC()
	rec.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return rec, nil
}

func (s *Store) getSubscription(ctx context.Context, where string, arg any) (domain.SubscriptionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+subColumns+` FROM subscriptions WHERE `+where, arg)
	return scanSubscription(row)
}

// GetSubscription implements store.SubscriptionStore.
func (s *Store) GetSubscription(ctx context.Context, id string) (domain.SubscriptionRecord, error) {
	rec, err := s.getSubscription(ctx, "id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("subscription %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return rec, fmt.Errorf("GetSubscription: %w", err)
	}
	return rec, nil
}

// GetSubscriptionByUMN implements store.SubscriptionStore.
func (s *Store) GetSubscriptionByUMN(ctx context.Context, umn string) (domain.SubscriptionRecord, error) {
	rec, err := s.getSubscription(ctx, "umn = ?", umn)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("subscription with umn %s: %w", umn, store.ErrNotFound)
	}
	if err != nil {
		return rec, fmt.Errorf("GetSubscriptionByUMN: %w", err)
	}
	return rec, nil
}

// ListSubscriptions implements store.SubscriptionStore.
func (s *Store) ListSubscriptions(ctx context.Context, filter store.SubscriptionFilter) ([]domain.SubscriptionRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.State != "" {
		where = append(where, "state = ?")
		args = append(args, string(filter.State))
	}
	if filter.Merchant != "" {
		where = append(where, "merchant_name = ? COLLATE NOCASE")
		args = append(args, strings.TrimSpace(filter.Merchant))
	}
	query := `SELECT ` + subColumns + ` FROM subscriptions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY next_payment_date ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListSubscriptions: query: %w", err)
	}
	defer rows.Close()

	result := []domain.SubscriptionRecord{}
	for rows.Next() {
		rec, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("ListSubscriptions: scan: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListSubscriptions: %w", err)
	}
	return result, nil
}

var _ store.Store = (*Store)(nil)
