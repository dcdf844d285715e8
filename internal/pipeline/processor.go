// Package pipeline turns incoming alerts into stored transactions and
// subscription updates.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/alertledger/internal/domain"
	"github.com/dvloznov/alertledger/internal/gate"
	"github.com/dvloznov/alertledger/internal/logger"
	"github.com/dvloznov/alertledger/internal/sender"
	"github.com/dvloznov/alertledger/internal/store"
	"github.com/dvloznov/alertledger/internal/strategy"
)

// DefaultBatchConcurrency bounds ProcessBatch when only rules are in use.
const DefaultBatchConcurrency = 8

// Options wires a Processor. Store is required; everything else is optional.
type Options struct {
	Senders       *sender.Registry
	Model         strategy.Strategy
	Store         store.TransactionStore
	Exporter      Exporter
	Subscriptions interface {
		MandateRecorder
		ChargeMatcher
	}
	// Concurrency bounds ProcessBatch. It is forced to 1 while the model
	// strategy is ready, since the model owns a single session.
	Concurrency int
}

// Processor runs the message pipeline.
type Processor struct {
	pipeline    *Pipeline
	model       strategy.Strategy
	store       store.TransactionStore
	exporter    Exporter
	concurrency int
}

// NewProcessor builds the standard six-step pipeline:
// Mandate → Gate → Extract → Persist → Export → Subscription.
func NewProcessor(opts Options) (*Processor, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("NewProcessor: store is required")
	}
	senders := opts.Senders
	if senders == nil {
		senders = sender.Default()
	}
	g := gate.New(senders)

	var (
		recorder MandateRecorder
		matcher  ChargeMatcher
	)
	if opts.Subscriptions != nil {
		recorder = opts.Subscriptions
		matcher = opts.Subscriptions
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}

	p := NewPipeline(
		&MandateStep{senders: senders, subscriptions: recorder},
		&GateStep{gate: g},
		&ExtractStep{rule: strategy.NewRuleBased(g), model: opts.Model},
		&PersistStep{store: opts.Store},
		&ExportStep{exporter: opts.Exporter},
		&SubscriptionStep{matcher: matcher},
	)
	return &Processor{
		pipeline:    p,
		model:       opts.Model,
		store:       opts.Store,
		exporter:    opts.Exporter,
		concurrency: concurrency,
	}, nil
}

// Process runs one message through the pipeline. Rejections are reported in
// the returned state, not as errors.
func (p *Processor) Process(ctx context.Context, msg domain.IncomingMessage) (*PipelineState, error) {
	state := &PipelineState{Message: msg}
	if err := p.pipeline.Execute(ctx, state); err != nil {
		return state, err
	}
	return state, nil
}

// BatchLimit is the number of messages ProcessBatch runs at once.
func (p *Processor) BatchLimit() int {
	if p.model != nil && p.model.Ready() {
		return 1
	}
	return p.concurrency
}

// ProcessBatch processes msgs with bounded parallelism and returns states in
// input order. The first error cancels the remaining messages.
func (p *Processor) ProcessBatch(ctx context.Context, msgs []domain.IncomingMessage) ([]*PipelineState, error) {
	log := logger.FromContext(ctx)
	results := make([]*PipelineState, len(msgs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.BatchLimit())
	for i, msg := range msgs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			state, err := p.Process(gctx, msg)
			results[i] = state
			if err != nil {
				return fmt.Errorf("message %d from %s: %w", i, msg.Sender, err)
			}
			return nil
		})
	}
	err := g.Wait()

	var recorded int
	for _, r := range results {
		if r != nil && r.Inserted {
			recorded++
		}
	}
	log.Info().Int("messages", len(msgs)).Int("recorded", recorded).Msg("Batch processed")

	if err != nil {
		return results, fmt.Errorf("ProcessBatch: %w", err)
	}
	return results, nil
}

// UpdateCategoryForMerchant re-categorises a merchant locally and in the
// export sink when one is configured.
func (p *Processor) UpdateCategoryForMerchant(ctx context.Context, merchant string, category domain.Category) (int64, error) {
	if strings.TrimSpace(merchant) == "" {
		return 0, fmt.Errorf("UpdateCategoryForMerchant: merchant is required")
	}
	n, err := p.store.UpdateCategoryForMerchant(ctx, merchant, category)
	if err != nil {
		return 0, fmt.Errorf("UpdateCategoryForMerchant: %w", err)
	}
	if p.exporter != nil {
		if _, err := p.exporter.UpdateCategoryForMerchant(ctx, merchant, category); err != nil {
			return n, fmt.Errorf("UpdateCategoryForMerchant: export: %w", err)
		}
	}

	log := logger.FromContext(ctx)
	log.Info().Str("merchant", merchant).Str("category", string(category)).Int64("updated", n).Msg("Merchant re-categorised")
	return n, nil
}
