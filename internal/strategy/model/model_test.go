package model

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/alertledger/internal/artifact"
	"github.com/dvloznov/alertledger/internal/domain"
	"github.com/dvloznov/alertledger/internal/strategy"
)

const swiggyReply = `TRANSACTION:YES
DIRECTION:DEBIT
AMOUNT:450.00
MERCHANT:Swiggy
CATEGORY:FOOD_DINING
TYPE:ONE_TIME
UPI_ID:swiggy@icici`

type fakeSession struct {
	rt     *fakeRuntime
	closed bool
}

func (s *fakeSession) Generate(ctx context.Context, prompt string) (string, error) {
	s.rt.mu.Lock()
	defer s.rt.mu.Unlock()
	s.rt.prompts = append(s.rt.prompts, prompt)
	if len(s.rt.errs) > 0 {
		err := s.rt.errs[0]
		s.rt.errs = s.rt.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return s.rt.reply, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeRuntime struct {
	mu       sync.Mutex
	reply    string
	errs     []error
	loadErrs []error
	loads    int
	sessions []*fakeSession
	prompts  []string
}

func (r *fakeRuntime) Load(ctx context.Context, path string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads++
	if len(r.loadErrs) > 0 {
		err := r.loadErrs[0]
		r.loadErrs = r.loadErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	s := &fakeSession{rt: r}
	r.sessions = append(r.sessions, s)
	return s, nil
}

type fakeArtifacts map[string]bool

func (f fakeArtifacts) Exists(_ context.Context, path string) (bool, error) {
	return f[path], nil
}

func newReadyStrategy(t *testing.T, rt *fakeRuntime) *Strategy {
	t.Helper()
	m := New(rt, fakeArtifacts{"model.yaml": true}, DefaultConfig("model.yaml"))
	require.NoError(t, m.Initialize(context.Background()))
	return m
}

func TestInitializeMissingArtifact(t *testing.T) {
	m := New(&fakeRuntime{}, fakeArtifacts{}, DefaultConfig("absent.yaml"))

	err := m.Initialize(context.Background())

	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, FailureMissingArtifact, initErr.Reason)
	assert.Equal(t, "absent.yaml", initErr.Path)
	assert.Equal(t, StateFailed, m.State())
	assert.False(t, m.Ready())
	assert.Equal(t, err, m.Err())
}

func TestInitializeLoadFailureClassified(t *testing.T) {
	rt := &fakeRuntime{loadErrs: []error{errors.New("allocate tensors: out of memory")}}
	m := New(rt, fakeArtifacts{"model.yaml": true}, DefaultConfig("model.yaml"))

	err := m.Initialize(context.Background())

	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, FailureResourceExhausted, initErr.Reason)
	assert.Equal(t, StateFailed, m.State())

	// A later attempt may succeed.
	require.NoError(t, m.Initialize(context.Background()))
	assert.Equal(t, StateReady, m.State())
	assert.Nil(t, m.Err())
}

func TestGenAIRuntimeClassifiesManifestErrors(t *testing.T) {
	dir := t.TempDir()
	src := artifact.NewResolver(nil)

	bad := filepath.Join(dir, "llamacpp.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("model: local-7b\nbackend: llamacpp\n"), 0o600))
	m := New(NewGenAIRuntime(src), src, DefaultConfig(bad))

	err := m.Initialize(context.Background())
	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, FailureUnsupportedEnvironment, initErr.Reason)
	assert.ErrorIs(t, err, artifact.ErrInvalidManifest)
	assert.Equal(t, StateFailed, m.State())

	_, err = NewGenAIRuntime(src).Load(context.Background(), filepath.Join(dir, "absent.yaml"))
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, FailureMissingArtifact, initErr.Reason)
}

func TestExtractBeforeInitialize(t *testing.T) {
	m := New(&fakeRuntime{reply: swiggyReply}, nil, DefaultConfig("model.yaml"))

	_, err := m.ExtractTransaction(context.Background(), "body", "HDFCBK", time.Now())
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = m.GenerateFreeformResponse(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestExtractTransaction(t *testing.T) {
	rt := &fakeRuntime{reply: swiggyReply}
	m := newReadyStrategy(t, rt)
	body := "Rs.450.00 debited from A/c XX1234 at Swiggy on 12-10-24"
	ts := time.Date(2024, 10, 12, 13, 0, 0, 0, time.UTC)

	tx, err := m.ExtractTransaction(context.Background(), body, "HDFCBK", ts)
	require.NoError(t, err)
	require.NotNil(t, tx)

	assert.True(t, decimal.RequireFromString("450").Equal(tx.Amount))
	assert.Equal(t, domain.DirectionDebit, tx.Direction)
	assert.Equal(t, "Swiggy", tx.Merchant)
	assert.Equal(t, domain.CategoryFoodDining, tx.Category)
	assert.Equal(t, domain.TypeOneTime, tx.Type)
	assert.Equal(t, "swiggy@icici", tx.ReferenceID)
	assert.Equal(t, DefaultModelConfidence, tx.Confidence)
	assert.Equal(t, string(strategy.KindModelBased), tx.Extractor)
	assert.Equal(t, domain.TransactionID("HDFCBK", body, ts), tx.ID)

	require.Len(t, rt.prompts, 1)
	assert.Contains(t, rt.prompts[0], "SMS: "+body+"\nSender: HDFCBK")

	stats := m.Stats()
	assert.Equal(t, 1, stats.ExtractionCount)
	assert.Equal(t, EstimateTokens(rt.prompts[0])+EstimateTokens(swiggyReply), stats.TokenEstimate)
}

func TestExtractNotATransaction(t *testing.T) {
	m := newReadyStrategy(t, &fakeRuntime{reply: "TRANSACTION:NO"})

	tx, err := m.ExtractTransaction(context.Background(), "Your OTP is 1234", "HDFCBK", time.Now())
	require.NoError(t, err)
	assert.Nil(t, tx)
	assert.Equal(t, 1, m.Stats().ExtractionCount)
}

func TestSessionResetsEveryEightExtractions(t *testing.T) {
	rt := &fakeRuntime{reply: swiggyReply}
	m := newReadyStrategy(t, rt)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		_, err := m.ExtractTransaction(ctx, fmt.Sprintf("Rs.%d debited at Swiggy", i+1), "HDFCBK", time.Now())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, rt.loads)
	assert.Equal(t, 8, m.Stats().ExtractionCount)

	_, err := m.ExtractTransaction(ctx, "Rs.9 debited at Swiggy", "HDFCBK", time.Now())
	require.NoError(t, err)

	stats := m.Stats()
	assert.Equal(t, 2, rt.loads)
	assert.Equal(t, 1, stats.Resets)
	assert.Equal(t, 1, stats.ExtractionCount)
	assert.True(t, rt.sessions[0].closed)
	assert.False(t, rt.sessions[1].closed)
}

func TestSessionResetsOnTokenBudget(t *testing.T) {
	rt := &fakeRuntime{reply: swiggyReply}
	cfg := DefaultConfig("model.yaml")
	cfg.MaxSessionTokens = 1
	m := New(rt, nil, cfg)
	require.NoError(t, m.Initialize(context.Background()))

	for i := 0; i < 3; i++ {
		_, err := m.ExtractTransaction(context.Background(), "Rs.10 debited at Swiggy", "HDFCBK", time.Now())
		require.NoError(t, err)
	}
	assert.Equal(t, 2, m.Stats().Resets)
	assert.Equal(t, 3, rt.loads)
}

func TestOverflowRetriesOnce(t *testing.T) {
	rt := &fakeRuntime{
		reply: swiggyReply,
		errs:  []error{errors.New("rpc error: input is too long for the context window")},
	}
	m := newReadyStrategy(t, rt)

	tx, err := m.ExtractTransaction(context.Background(), "Rs.450 debited at Swiggy", "HDFCBK", time.Now())
	require.NoError(t, err)
	require.NotNil(t, tx)

	assert.Len(t, rt.prompts, 2)
	assert.Equal(t, rt.prompts[0], rt.prompts[1])
	assert.Equal(t, 2, rt.loads)
	stats := m.Stats()
	assert.Equal(t, 1, stats.Resets)
	assert.Equal(t, 1, stats.ExtractionCount)
	assert.Equal(t, StateReady, stats.State)
}

func TestSecondOverflowSurfaces(t *testing.T) {
	overflow := fmt.Errorf("%w: window full", ErrContextOverflow)
	rt := &fakeRuntime{reply: swiggyReply, errs: []error{overflow, overflow}}
	m := newReadyStrategy(t, rt)

	_, err := m.ExtractTransaction(context.Background(), "Rs.450 debited at Swiggy", "HDFCBK", time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContextOverflow)
	assert.Len(t, rt.prompts, 2)
	assert.Equal(t, 0, m.Stats().ExtractionCount)
}

func TestNonOverflowErrorIsNotRetried(t *testing.T) {
	rt := &fakeRuntime{reply: swiggyReply, errs: []error{errors.New("connection refused")}}
	m := newReadyStrategy(t, rt)

	_, err := m.ExtractTransaction(context.Background(), "Rs.450 debited at Swiggy", "HDFCBK", time.Now())
	require.Error(t, err)
	assert.Len(t, rt.prompts, 1)
	assert.Equal(t, 1, rt.loads)
	assert.True(t, m.Ready())
}

func TestFailedReloadLeavesStrategyFailed(t *testing.T) {
	rt := &fakeRuntime{
		reply:    swiggyReply,
		errs:     []error{ErrContextOverflow},
		loadErrs: []error{nil, errors.New("device lost")},
	}
	m := newReadyStrategy(t, rt)

	_, err := m.ExtractTransaction(context.Background(), "Rs.450 debited at Swiggy", "HDFCBK", time.Now())
	require.Error(t, err)

	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, FailureUnsupportedEnvironment, initErr.Reason)
	assert.Equal(t, StateFailed, m.State())

	_, err = m.ExtractTransaction(context.Background(), "Rs.450 debited at Swiggy", "HDFCBK", time.Now())
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestGenerateFreeformResponse(t *testing.T) {
	rt := &fakeRuntime{reply: "Answer:  Cancel the unused gym membership."}
	m := newReadyStrategy(t, rt)

	out, err := m.GenerateFreeformResponse(context.Background(), "How can I save money?")
	require.NoError(t, err)
	assert.Equal(t, "Cancel the unused gym membership.", out)

	stats := m.Stats()
	assert.Equal(t, 0, stats.ExtractionCount)
	assert.Positive(t, stats.TokenEstimate)
}

func TestCloseReturnsToUninitialized(t *testing.T) {
	rt := &fakeRuntime{reply: swiggyReply}
	m := newReadyStrategy(t, rt)

	require.NoError(t, m.Close())
	assert.Equal(t, StateUninitialized, m.State())
	assert.True(t, rt.sessions[0].closed)
}

type blockingSession struct {
	started chan struct{}
	release chan struct{}
}

func (s *blockingSession) Generate(ctx context.Context, prompt string) (string, error) {
	close(s.started)
	<-s.release
	return swiggyReply, nil
}

func (s *blockingSession) Close() error { return nil }

type blockingRuntime struct{ sess *blockingSession }

func (r blockingRuntime) Load(context.Context, string) (Session, error) { return r.sess, nil }

func TestStatusReadsDoNotWaitForInference(t *testing.T) {
	sess := &blockingSession{started: make(chan struct{}), release: make(chan struct{})}
	m := New(blockingRuntime{sess: sess}, nil, DefaultConfig("model.yaml"))
	require.NoError(t, m.Initialize(context.Background()))

	extracted := make(chan error, 1)
	go func() {
		_, err := m.ExtractTransaction(context.Background(), "Rs.450 debited at Swiggy", "HDFCBK", time.Now())
		extracted <- err
	}()
	<-sess.started

	status := make(chan SessionStats, 1)
	go func() {
		_ = m.Ready()
		status <- m.Stats()
	}()
	select {
	case stats := <-status:
		assert.Equal(t, StateReady, stats.State)
		assert.Equal(t, 0, stats.ExtractionCount)
	case <-time.After(2 * time.Second):
		t.Fatal("status read blocked behind a running model call")
	}

	close(sess.release)
	require.NoError(t, <-extracted)
	assert.Equal(t, 1, m.Stats().ExtractionCount)
}

func TestParseReply(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		reply     string
		wantNil   bool
		amount    string
		direction domain.Direction
		merchant  string
		category  domain.Category
		txType    domain.TransactionType
		reference string
		notes     int
	}{
		{
			name:    "not a transaction",
			reply:   "TRANSACTION:NO\nAMOUNT:100",
			wantNil: true,
		},
		{
			name:      "credit with formatted amount",
			reply:     "TRANSACTION: yes\nDIRECTION: credit\nAMOUNT: Rs. 1,250.50\nMERCHANT: Rahul\nCATEGORY: TRANSFER\nTYPE: TRANSFER\nUPI_ID: rahul@okaxis",
			amount:    "1250.5",
			direction: domain.DirectionCredit,
			merchant:  "Rahul",
			category:  domain.CategoryTransfer,
			txType:    domain.TypeTransfer,
			reference: "rahul@okaxis",
		},
		{
			name:      "unknown enums fall back",
			reply:     "TRANSACTION:YES\nDIRECTION:OUT\nAMOUNT:99\nMERCHANT:null\nCATEGORY:PETS\nTYPE:WEEKLY\nUPI_ID:none",
			amount:    "99",
			direction: domain.DirectionDebit,
			merchant:  domain.UnknownMerchant,
			category:  domain.CategoryOther,
			txType:    domain.TypeUnknown,
			notes:     3,
		},
		{
			name:      "subscription flag overrides type",
			reply:     "TRANSACTION:YES\nAMOUNT:649\nMERCHANT:Netflix\nCATEGORY:ENTERTAINMENT\nTYPE:ONE_TIME\nSUBSCRIPTION:YES",
			amount:    "649",
			direction: domain.DirectionDebit,
			merchant:  "Netflix",
			category:  domain.CategoryEntertainment,
			txType:    domain.TypeSubscription,
		},
		{
			name:    "unusable amount",
			reply:   "TRANSACTION:YES\nAMOUNT:unknown",
			wantNil: true,
			notes:   1,
		},
		{
			name:    "zero amount",
			reply:   "TRANSACTION:YES\nAMOUNT:0.00",
			wantNil: true,
			notes:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseReply(tt.reply, "body", "HDFCBK", ts)
			assert.Len(t, got.notes, tt.notes)
			if tt.wantNil {
				assert.Nil(t, got.tx)
				return
			}
			require.NotNil(t, got.tx)
			assert.True(t, decimal.RequireFromString(tt.amount).Equal(got.tx.Amount), "amount %s", got.tx.Amount)
			assert.Equal(t, tt.direction, got.tx.Direction)
			assert.Equal(t, tt.merchant, got.tx.Merchant)
			assert.Equal(t, tt.category, got.tx.Category)
			assert.Equal(t, tt.txType, got.tx.Type)
			assert.Equal(t, tt.reference, got.tx.ReferenceID)
		})
	}
}

func TestParseConfidence(t *testing.T) {
	assert.Equal(t, DefaultModelConfidence, parseConfidence(""))
	assert.Equal(t, DefaultModelConfidence, parseConfidence("high"))
	assert.InDelta(t, 0.85, parseConfidence("0.85"), 1e-9)
	assert.InDelta(t, 0.85, parseConfidence("85%"), 1e-9)
	assert.Equal(t, 0.0, parseConfidence("-3"))
	assert.Equal(t, 1.0, parseConfidence("250"))
}

func TestPromptAndEstimates(t *testing.T) {
	p := BuildExtractionPrompt("Rs.10 paid", "AX-ICICIB")
	assert.Contains(t, p, "SMS: Rs.10 paid\nSender: AX-ICICIB\n\nResponse:")
	assert.NotContains(t, p, "{{")

	assert.Equal(t, 10, EstimateTokens(""))
	assert.Equal(t, 11, EstimateTokens("abc"))
	assert.Equal(t, "ok", CleanFreeformResponse("  Response: ok "))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "resetting", StateResetting.String())
	assert.Equal(t, "failed", StateFailed.String())
}
