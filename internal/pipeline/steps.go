package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/alertledger/internal/domain"
	"github.com/dvloznov/alertledger/internal/extract"
	"github.com/dvloznov/alertledger/internal/gate"
	"github.com/dvloznov/alertledger/internal/logger"
	"github.com/dvloznov/alertledger/internal/sender"
	"github.com/dvloznov/alertledger/internal/store"
	"github.com/dvloznov/alertledger/internal/strategy"
	"github.com/dvloznov/alertledger/internal/subscription"
)

// PipelineStep represents a single step in the message pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps. A step
// sets Done to stop the pipeline without an error.
type PipelineState struct {
	Message      domain.IncomingMessage       `json:"message"`
	Decision     domain.FilterDecision        `json:"decision"`
	Mandate      *domain.MandateInfo          `json:"mandate,omitempty"`
	Transaction  *domain.ExtractedTransaction `json:"transaction,omitempty"`
	Strategy     strategy.Kind                `json:"strategy,omitempty"`
	Inserted     bool                         `json:"inserted"`
	Subscription *subscription.Decision       `json:"subscription,omitempty"`
	Done         bool                         `json:"-"`
}

// MandateRecorder turns mandate notices into subscription records.
type MandateRecorder interface {
	CreateFromMandate(ctx context.Context, info domain.MandateInfo) (subscription.Decision, error)
}

// ChargeMatcher matches persisted transactions against subscriptions.
type ChargeMatcher interface {
	HandleTransaction(ctx context.Context, tx *domain.ExtractedTransaction) (subscription.Decision, error)
}

// Exporter mirrors persisted transactions to an external sink.
type Exporter interface {
	Export(ctx context.Context, tx *domain.ExtractedTransaction) error
	UpdateCategoryForMerchant(ctx context.Context, merchant string, category domain.Category) (int64, error)
}

// Step 1: MandateStep routes mandate notices from known institutions to the
// subscription service. It runs before the gate, which rejects
// future-dated debit phrasing.
type MandateStep struct {
	senders       gate.SenderClassifier
	subscriptions MandateRecorder
}

func (s *MandateStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.subscriptions == nil {
		return nil
	}
	msg := state.Message
	if s.senders.Classify(msg.Sender) != sender.KnownInstitution {
		return nil
	}
	info, ok := extract.ParseMandate(msg.Body)
	if !ok {
		return nil
	}

	d, err := s.subscriptions.CreateFromMandate(ctx, *info)
	if err != nil {
		return fmt.Errorf("MandateStep: %w", err)
	}
	state.Mandate = info
	state.Subscription = &d
	state.Decision = domain.FilterDecision{Accept: false, Reason: "mandate notice"}
	state.Done = true
	return nil
}

// Step 2: GateStep applies the message gate and the spam heuristic.
type GateStep struct {
	gate *gate.Gate
}

func (s *GateStep) Execute(ctx context.Context, state *PipelineState) error {
	msg := state.Message
	state.Decision = s.gate.ShouldProcess(msg.Body, msg.Sender)
	if state.Decision.Accept && gate.IsLikelySpam(msg.Body) {
		state.Decision = domain.FilterDecision{Accept: false, Reason: "likely spam"}
	}
	if !state.Decision.Accept {
		log := logger.FromContext(ctx)
		log.Debug().Str("sender", msg.Sender).Str("reason", state.Decision.Reason).Msg("Message rejected")
		state.Done = true
	}
	return nil
}

// Step 3: ExtractStep dispatches to the model strategy when it is ready and
// to the rule-based strategy otherwise. A model failure or an invalid model
// result falls back to rules so capture never blocks on the model.
type ExtractStep struct {
	rule  *strategy.RuleBased
	model strategy.Strategy
}

func (s *ExtractStep) choose() strategy.Strategy {
	if s.model != nil && s.model.Ready() {
		return s.model
	}
	return s.rule
}

func (s *ExtractStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	msg := state.Message

	var (
		tx  *domain.ExtractedTransaction
		err error
	)
	switch chosen := s.choose(); chosen.Kind() {
	case strategy.KindModelBased:
		state.Strategy = strategy.KindModelBased
		tx, err = chosen.Accept(ctx, msg)
		if err == nil && tx != nil {
			err = ValidateTransaction(tx)
		}
		if err != nil {
			log.Warn().Err(err).Str("sender", msg.Sender).Msg("Model extraction failed, falling back to rules")
			state.Strategy = strategy.KindRuleBased
			tx, err = s.rule.Accept(ctx, msg)
		}
	case strategy.KindRuleBased:
		state.Strategy = strategy.KindRuleBased
		tx, err = s.rule.Accept(ctx, msg)
	default:
		return fmt.Errorf("ExtractStep: unknown strategy kind %q", chosen.Kind())
	}
	if err != nil {
		return fmt.Errorf("ExtractStep: %w", err)
	}

	if tx == nil {
		state.Done = true
		return nil
	}
	if err := ValidateTransaction(tx); err != nil {
		log.Warn().Err(err).Str("sender", msg.Sender).Str("strategy", string(state.Strategy)).Msg("Extraction discarded")
		state.Done = true
		return nil
	}
	state.Transaction = tx
	return nil
}

// Step 4: PersistStep stores the transaction. A duplicate is not stored
// again but still reaches SubscriptionStep: a retried job may have failed
// there after the insert, and the match is idempotent per transaction.
type PersistStep struct {
	store store.TransactionStore
}

func (s *PersistStep) Execute(ctx context.Context, state *PipelineState) error {
	inserted, err := s.store.InsertTransaction(ctx, state.Transaction)
	if err != nil {
		return fmt.Errorf("PersistStep: %w", err)
	}
	state.Inserted = inserted

	log := logger.FromContext(ctx)
	if !inserted {
		log.Debug().Str("transaction_id", state.Transaction.ID).Msg("Duplicate transaction skipped")
		return nil
	}
	log.Info().
		Str("transaction_id", state.Transaction.ID).
		Str("merchant", state.Transaction.Merchant).
		Str("amount", state.Transaction.Amount.String()).
		Str("strategy", string(state.Strategy)).
		Msg("Transaction recorded")
	return nil
}

// Step 5: ExportStep mirrors newly inserted transactions to the export sink.
// Export failures are logged; the local record stays authoritative.
type ExportStep struct {
	exporter Exporter
}

func (s *ExportStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.exporter == nil || !state.Inserted {
		return nil
	}
	if err := s.exporter.Export(ctx, state.Transaction); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("transaction_id", state.Transaction.ID).Msg("Transaction export failed")
	}
	return nil
}

// Step 6: SubscriptionStep matches the new transaction against subscriptions.
type SubscriptionStep struct {
	matcher ChargeMatcher
}

func (s *SubscriptionStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.matcher == nil {
		return nil
	}
	d, err := s.matcher.HandleTransaction(ctx, state.Transaction)
	if err != nil {
		return fmt.Errorf("SubscriptionStep: %w", err)
	}
	if d.Changed() {
		state.Subscription = &d
	}
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs steps sequentially until one fails or marks the state done.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if state.Done {
			return nil
		}
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}
