package jobs

import (
	"context"
	"fmt"

	"github.com/dvloznov/alertledger/internal/domain"
	"github.com/dvloznov/alertledger/internal/logger"
	"github.com/dvloznov/alertledger/internal/pipeline"
)

// MessageProcessor runs one message through the extraction pipeline.
type MessageProcessor interface {
	Process(ctx context.Context, msg domain.IncomingMessage) (*pipeline.PipelineState, error)
}

// ExtractHandler returns a JobHandler that feeds ExtractMessageJobs to proc
// and records the outcome on the job.
func ExtractHandler(proc MessageProcessor) JobHandler {
	return func(ctx context.Context, job Job) error {
		j, ok := job.(*ExtractMessageJob)
		if !ok {
			return fmt.Errorf("ExtractHandler: unsupported job type %q", job.GetType())
		}

		log := logger.FromContext(ctx).With().Str("job_id", j.JobID).Str("sender", j.Message.Sender).Logger()
		state, err := proc.Process(logger.WithContext(ctx, log), j.Message)
		if err != nil {
			return fmt.Errorf("ExtractHandler: process message: %w", err)
		}

		j.Result = ResultFromState(state)
		log.Info().
			Bool("accepted", j.Result.Accepted).
			Str("transaction_id", j.Result.TransactionID).
			Msg("Extraction job finished")
		return nil
	}
}

// ResultFromState condenses a pipeline state into a job result.
func ResultFromState(state *pipeline.PipelineState) *Result {
	r := &Result{
		Accepted: state.Decision.Accept,
		Reason:   state.Decision.Reason,
		Inserted: state.Inserted,
		Strategy: string(state.Strategy),
	}
	if state.Transaction != nil {
		r.TransactionID = state.Transaction.ID
	}
	if state.Subscription != nil {
		r.SubscriptionOutcome = string(state.Subscription.Outcome)
	}
	return r
}
