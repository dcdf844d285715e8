package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/alertledger/internal/domain"
	"github.com/dvloznov/alertledger/internal/pipeline"
	"github.com/dvloznov/alertledger/internal/store"
	"github.com/dvloznov/alertledger/internal/store/inmemory"
	"github.com/dvloznov/alertledger/internal/strategy"
	"github.com/dvloznov/alertledger/internal/subscription"
)

const swiggyAlert = "Rs.450.00 debited from A/c XX1234 at Swiggy on 01-01-24"

var received = time.Date(2024, 1, 1, 13, 5, 0, 0, time.UTC)

// MockModel is a controllable model-based strategy.
type MockModel struct {
	ready bool
	tx    *domain.ExtractedTransaction
	err   error
	calls atomic.Int32
}

func (m *MockModel) Kind() strategy.Kind              { return strategy.KindModelBased }
func (m *MockModel) Ready() bool                      { return m.ready }
func (m *MockModel) Initialize(context.Context) error { return nil }
func (m *MockModel) Accept(ctx context.Context, msg domain.IncomingMessage) (*domain.ExtractedTransaction, error) {
	m.calls.Add(1)
	return m.tx, m.err
}

// MockExporter records exports.
type MockExporter struct {
	mu            sync.Mutex
	exported      []string
	exportErr     error
	recategorized int
}

func (e *MockExporter) Export(ctx context.Context, tx *domain.ExtractedTransaction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exported = append(e.exported, tx.ID)
	return e.exportErr
}

func (e *MockExporter) UpdateCategoryForMerchant(ctx context.Context, merchant string, category domain.Category) (int64, error) {
	e.recategorized++
	return 1, nil
}

type fixture struct {
	proc     *pipeline.Processor
	store    *inmemory.Store
	exporter *MockExporter
}

func newFixture(t *testing.T, model strategy.Strategy) fixture {
	t.Helper()
	st := inmemory.New()
	exp := &MockExporter{}
	proc, err := pipeline.NewProcessor(pipeline.Options{
		Model:         model,
		Store:         st,
		Exporter:      exp,
		Subscriptions: subscription.NewService(st, subscription.NewMatcher()),
	})
	require.NoError(t, err)
	return fixture{proc: proc, store: st, exporter: exp}
}

func msg(sender, body string) domain.IncomingMessage {
	return domain.IncomingMessage{Sender: sender, Body: body, ReceivedAt: received}
}

func TestProcessRuleBasedEndToEnd(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	state, err := f.proc.Process(ctx, msg("HDFCBK", swiggyAlert))
	require.NoError(t, err)
	require.NotNil(t, state.Transaction)

	tx := state.Transaction
	assert.True(t, decimal.RequireFromString("450.00").Equal(tx.Amount))
	assert.Equal(t, domain.DirectionDebit, tx.Direction)
	assert.Equal(t, "Swiggy", tx.Merchant)
	assert.Equal(t, domain.CategoryFoodDining, tx.Category)
	assert.Equal(t, strategy.RuleBasedConfidence, tx.Confidence)
	assert.Equal(t, strategy.KindRuleBased, state.Strategy)
	assert.True(t, state.Inserted)
	assert.Equal(t, []string{tx.ID}, f.exporter.exported)

	stored, err := f.store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "Swiggy", stored.Merchant)

	// Same message, same timestamp: de-duplicated by content id.
	again, err := f.proc.Process(ctx, msg("HDFCBK", swiggyAlert))
	require.NoError(t, err)
	assert.False(t, again.Inserted)
	assert.Len(t, f.exporter.exported, 1)
}

func TestProcessRejections(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name   string
		sender string
		body   string
		reason string
	}{
		{"unknown sender", "VK-RANDOM", "Rs.450.00 debited from A/c XX1234", "unknown sender"},
		{"otp", "HDFCBK", "Your OTP for txn of Rs.450.00 is 123456", "denylisted"},
		{"spam link", "HDFCBK", "Rs.450.00 debited at Swiggy. Details: https://bit.ly/x1", "likely spam"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, err := f.proc.Process(context.Background(), msg(tt.sender, tt.body))
			require.NoError(t, err)
			assert.False(t, state.Decision.Accept)
			assert.Contains(t, state.Decision.Reason, tt.reason)
			assert.Nil(t, state.Transaction)
		})
	}
	assert.Empty(t, f.exporter.exported)
}

func TestProcessMandateThenCharge(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	notice := "E-Mandate! Rs.649.00 will be deducted on 05/02/24, 00:00:00 For Netflix mandate UMN abcd1234@hdfc"
	state, err := f.proc.Process(ctx, msg("HDFCBK", notice))
	require.NoError(t, err)
	require.NotNil(t, state.Mandate)
	require.NotNil(t, state.Subscription)
	assert.Equal(t, subscription.OutcomeCreated, state.Subscription.Outcome)
	assert.Nil(t, state.Transaction)
	assert.Equal(t, "mandate notice", state.Decision.Reason)

	charge := domain.IncomingMessage{
		Sender:     "HDFCBK",
		Body:       "Rs.649.00 debited from A/c XX1234 at Netflix on 05-02-24",
		ReceivedAt: time.Date(2024, 2, 5, 6, 0, 0, 0, time.UTC),
	}
	state, err = f.proc.Process(ctx, charge)
	require.NoError(t, err)
	require.NotNil(t, state.Transaction)
	require.NotNil(t, state.Subscription)
	assert.Equal(t, subscription.OutcomeCharged, state.Subscription.Outcome)
	assert.Equal(t, civil.Date{Year: 2024, Month: time.March, Day: 6}, state.Subscription.Record.NextPaymentDate)

	subs, err := f.store.ListSubscriptions(ctx, store.SubscriptionFilter{})
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestMandateFromUnknownSenderIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	notice := "E-Mandate! Rs.649.00 will be deducted on 05/02/24, 00:00:00 For Netflix mandate UMN abcd1234@hdfc"

	state, err := f.proc.Process(context.Background(), msg("VK-RANDOM", notice))
	require.NoError(t, err)
	assert.Nil(t, state.Mandate)
	assert.False(t, state.Decision.Accept)
}

func TestProcessUsesReadyModel(t *testing.T) {
	modelTx := &domain.ExtractedTransaction{
		ID:         "model-tx",
		Amount:     decimal.RequireFromString("450"),
		Direction:  domain.DirectionDebit,
		Merchant:   "Swiggy",
		Category:   domain.CategoryFoodDining,
		Type:       domain.TypeOneTime,
		Confidence: 0.9,
		Timestamp:  received,
		Extractor:  string(strategy.KindModelBased),
	}
	model := &MockModel{ready: true, tx: modelTx}
	f := newFixture(t, model)

	state, err := f.proc.Process(context.Background(), msg("HDFCBK", swiggyAlert))
	require.NoError(t, err)
	assert.Equal(t, strategy.KindModelBased, state.Strategy)
	assert.Equal(t, "model-tx", state.Transaction.ID)
	assert.Equal(t, int32(1), model.calls.Load())
	assert.Equal(t, 1, f.proc.BatchLimit())
}

func TestProcessFallsBackWhenModelFails(t *testing.T) {
	model := &MockModel{ready: true, err: errors.New("model context overflow: retry after reset")}
	f := newFixture(t, model)

	state, err := f.proc.Process(context.Background(), msg("HDFCBK", swiggyAlert))
	require.NoError(t, err)
	assert.Equal(t, strategy.KindRuleBased, state.Strategy)
	require.NotNil(t, state.Transaction)
	assert.Equal(t, strategy.RuleBasedConfidence, state.Transaction.Confidence)
}

func TestProcessFallsBackOnInvalidModelResult(t *testing.T) {
	model := &MockModel{ready: true, tx: &domain.ExtractedTransaction{
		ID:        "model-tx",
		Amount:    decimal.Zero,
		Direction: domain.DirectionDebit,
		Merchant:  "Swiggy",
		Category:  domain.CategoryFoodDining,
	}}
	f := newFixture(t, model)

	state, err := f.proc.Process(context.Background(), msg("HDFCBK", swiggyAlert))
	require.NoError(t, err)
	assert.Equal(t, strategy.KindRuleBased, state.Strategy)
	require.NotNil(t, state.Transaction)
	assert.True(t, decimal.RequireFromString("450").Equal(state.Transaction.Amount))
}

func TestProcessSkipsModelWhenNotReady(t *testing.T) {
	model := &MockModel{ready: false}
	f := newFixture(t, model)

	state, err := f.proc.Process(context.Background(), msg("HDFCBK", swiggyAlert))
	require.NoError(t, err)
	assert.Equal(t, strategy.KindRuleBased, state.Strategy)
	assert.Equal(t, int32(0), model.calls.Load())
	assert.Equal(t, pipeline.DefaultBatchConcurrency, f.proc.BatchLimit())
}

func TestProcessModelSaysNoTransaction(t *testing.T) {
	model := &MockModel{ready: true}
	f := newFixture(t, model)

	state, err := f.proc.Process(context.Background(), msg("HDFCBK", swiggyAlert))
	require.NoError(t, err)
	assert.Nil(t, state.Transaction)
	assert.False(t, state.Inserted)
}

func TestExportFailureKeepsLocalRecord(t *testing.T) {
	f := newFixture(t, nil)
	f.exporter.exportErr = errors.New("bigquery unavailable")

	state, err := f.proc.Process(context.Background(), msg("HDFCBK", swiggyAlert))
	require.NoError(t, err)
	assert.True(t, state.Inserted)
}

func TestProcessBatch(t *testing.T) {
	f := newFixture(t, nil)
	var msgs []domain.IncomingMessage
	for i := 0; i < 20; i++ {
		msgs = append(msgs, domain.IncomingMessage{
			Sender:     "HDFCBK",
			Body:       fmt.Sprintf("Rs.%d.00 debited from A/c XX1234 at Swiggy on 01-01-24", 100+i),
			ReceivedAt: received.Add(time.Duration(i) * time.Minute),
		})
	}
	msgs = append(msgs, msg("VK-RANDOM", "hello"))

	results, err := f.proc.ProcessBatch(context.Background(), msgs)
	require.NoError(t, err)
	require.Len(t, results, 21)
	for i := 0; i < 20; i++ {
		assert.True(t, results[i].Inserted, "message %d", i)
		assert.Equal(t, msgs[i].Body, results[i].Message.Body)
	}
	assert.Nil(t, results[20].Transaction)

	all, err := f.store.ListTransactions(context.Background(), store.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 20)
}

func TestUpdateCategoryForMerchant(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.proc.Process(ctx, msg("HDFCBK", swiggyAlert))
	require.NoError(t, err)

	n, err := f.proc.UpdateCategoryForMerchant(ctx, "swiggy", domain.CategoryGroceries)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, f.exporter.recategorized)

	_, err = f.proc.UpdateCategoryForMerchant(ctx, " ", domain.CategoryGroceries)
	assert.Error(t, err)
}

// flakyMatcher fails its first call, then delegates.
type flakyMatcher struct {
	next  *subscription.Service
	calls int
}

func (m *flakyMatcher) HandleTransaction(ctx context.Context, tx *domain.ExtractedTransaction) (subscription.Decision, error) {
	m.calls++
	if m.calls == 1 {
		return subscription.Decision{}, errors.New("transient store error")
	}
	return m.next.HandleTransaction(ctx, tx)
}

func (m *flakyMatcher) CreateFromMandate(ctx context.Context, info domain.MandateInfo) (subscription.Decision, error) {
	return m.next.CreateFromMandate(ctx, info)
}

func TestRetryAfterSubscriptionFailureStillCharges(t *testing.T) {
	ctx := context.Background()
	st := inmemory.New()
	svc := subscription.NewService(st, subscription.NewMatcher())
	flaky := &flakyMatcher{next: svc}
	exp := &MockExporter{}
	proc, err := pipeline.NewProcessor(pipeline.Options{Store: st, Exporter: exp, Subscriptions: flaky})
	require.NoError(t, err)

	created, err := svc.CreateFromMandate(ctx, domain.MandateInfo{
		Amount:            decimal.RequireFromString("649"),
		NextDeductionDate: "05/02/24",
		Merchant:          "Netflix",
	})
	require.NoError(t, err)

	charge := domain.IncomingMessage{
		Sender:     "HDFCBK",
		Body:       "Rs.649.00 debited from A/c XX1234 at Netflix on 05-02-24",
		ReceivedAt: time.Date(2024, 2, 5, 6, 0, 0, 0, time.UTC),
	}
	_, err = proc.Process(ctx, charge)
	require.Error(t, err)

	state, err := proc.Process(ctx, charge)
	require.NoError(t, err)
	assert.False(t, state.Inserted)
	assert.Equal(t, 2, flaky.calls)
	require.NotNil(t, state.Subscription)
	assert.Equal(t, subscription.OutcomeCharged, state.Subscription.Outcome)
	assert.Len(t, exp.exported, 1, "duplicates are not exported again")

	// A third delivery does not advance the date a second time.
	_, err = proc.Process(ctx, charge)
	require.NoError(t, err)
	rec, err := st.GetSubscription(ctx, created.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, civil.Date{Year: 2024, Month: time.March, Day: 6}, rec.NextPaymentDate)
}

func TestNewProcessorRequiresStore(t *testing.T) {
	_, err := pipeline.NewProcessor(pipeline.Options{})
	assert.Error(t, err)
}
