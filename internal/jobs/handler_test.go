package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/alertledger/internal/domain"
	"github.com/dvloznov/alertledger/internal/pipeline"
	"github.com/dvloznov/alertledger/internal/strategy"
	"github.com/dvloznov/alertledger/internal/subscription"
)

type fakeProcessor struct {
	state *pipeline.PipelineState
	err   error
	got   domain.IncomingMessage
}

func (f *fakeProcessor) Process(_ context.Context, msg domain.IncomingMessage) (*pipeline.PipelineState, error) {
	f.got = msg
	return f.state, f.err
}

type otherJob struct{}

func (otherJob) GetID() string        { return "x" }
func (otherJob) GetType() JobType     { return "other" }
func (otherJob) GetStatus() JobStatus { return JobStatusPending }

func TestExtractHandler_RecordsResult(t *testing.T) {
	proc := &fakeProcessor{state: &pipeline.PipelineState{
		Decision:     domain.FilterDecision{Accept: true},
		Transaction:  &domain.ExtractedTransaction{ID: "tx-1"},
		Strategy:     strategy.KindRuleBased,
		Inserted:     true,
		Subscription: &subscription.Decision{Outcome: subscription.OutcomeCharged},
	}}
	job := &ExtractMessageJob{JobID: "j1", Message: domain.IncomingMessage{Sender: "HDFCBK", Body: "hi"}}

	require.NoError(t, ExtractHandler(proc)(context.Background(), job))

	assert.Equal(t, "HDFCBK", proc.got.Sender)
	require.NotNil(t, job.Result)
	assert.Equal(t, Result{
		Accepted:            true,
		TransactionID:       "tx-1",
		Inserted:            true,
		Strategy:            "rule_based",
		SubscriptionOutcome: "charged",
	}, *job.Result)
}

func TestExtractHandler_Rejected(t *testing.T) {
	proc := &fakeProcessor{state: &pipeline.PipelineState{
		Decision: domain.FilterDecision{Reason: "unknown sender"},
	}}
	job := &ExtractMessageJob{JobID: "j2"}

	require.NoError(t, ExtractHandler(proc)(context.Background(), job))
	assert.False(t, job.Result.Accepted)
	assert.Equal(t, "unknown sender", job.Result.Reason)
	assert.Empty(t, job.Result.TransactionID)
}

func TestExtractHandler_Errors(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("store down")}

	err := ExtractHandler(proc)(context.Background(), &ExtractMessageJob{JobID: "j3"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store down")

	err = ExtractHandler(proc)(context.Background(), otherJob{})
	assert.EqualError(t, err, `ExtractHandler: unsupported job type "other"`)
}
