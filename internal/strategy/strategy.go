// Package strategy defines the extraction contract shared by the rule-based
// and model-based extractors.
package strategy

import (
	"context"

	"github.com/dvloznov/alertledger/internal/domain"
)

// Kind identifies one of the two extraction strategies.
type Kind string

const (
	KindRuleBased  Kind = "rule_based"
	KindModelBased Kind = "model_based"
)

// Strategy turns one accepted message into a transaction.
// Accept returns (nil, nil) when the message holds no transaction; an error
// means the strategy itself failed and the caller may fall back.
type Strategy interface {
	// Kind reports which variant this is, for explicit dispatch.
	Kind() Kind

	// Ready reports whether Accept can be called.
	Ready() bool

	// Initialize prepares the strategy. It is a no-op for strategies that need no setup.
	Initialize(ctx context.Context) error

	// Accept extracts a transaction from msg.
	Accept(ctx context.Context, msg domain.IncomingMessage) (*domain.ExtractedTransaction, error)
}
