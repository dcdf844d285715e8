package strategy

import (
	"context"
	"strings"
	"time"

	"github.com/dvloznov/alertledger/internal/domain"
	"github.com/dvloznov/alertledger/internal/extract"
	"github.com/dvloznov/alertledger/internal/gate"
	"github.com/dvloznov/alertledger/internal/logger"
)

// RuleBasedConfidence is assigned to every rule-based extraction.
const RuleBasedConfidence = 0.7

// RuleBased orchestrates the field extractors. It holds no mutable state and
// is safe for concurrent use.
type RuleBased struct {
	gate      *gate.Gate
	amount    extract.Extractor[extract.Amount]
	merchant  extract.Extractor[string]
	category  extract.Extractor[domain.Category]
	txType    extract.Extractor[domain.TransactionType]
	reference extract.Extractor[string]
}

// NewRuleBased wires the default extractors behind g. A nil gate uses the default registry.
func NewRuleBased(g *gate.Gate) *RuleBased {
	if g == nil {
		g = gate.New(nil)
	}
	return &RuleBased{
		gate:      g,
		amount:    extract.AmountExtractor{},
		merchant:  extract.MerchantExtractor{},
		category:  extract.CategoryExtractor{},
		txType:    extract.TypeExtractor{},
		reference: extract.ReferenceExtractor{},
	}
}

// Kind implements Strategy.
func (r *RuleBased) Kind() Kind { return KindRuleBased }

// Ready implements Strategy; the rule-based strategy is always available.
func (r *RuleBased) Ready() bool { return true }

// Initialize implements Strategy.
func (r *RuleBased) Initialize(context.Context) error { return nil }

// Accept implements Strategy. It never returns an error.
func (r *RuleBased) Accept(ctx context.Context, msg domain.IncomingMessage) (*domain.ExtractedTransaction, error) {
	tx := r.Parse(msg.Body, msg.Sender, msg.ReceivedAt)
	if tx == nil {
		log := logger.FromContext(ctx)
		log.Debug().Str("sender", msg.Sender).Msg("Rule-based strategy produced no transaction")
	}
	return tx, nil
}

// Parse runs gate, spam check and extractors over one message.
func (r *RuleBased) Parse(body, sender string, ts time.Time) *domain.ExtractedTransaction {
	if !r.gate.ShouldProcess(body, sender).Accept {
		return nil
	}
	if gate.IsLikelySpam(body) {
		return nil
	}
	// Mandate notices announce future debits; they feed subscriptions, not the ledger.
	if extract.IsMandateNotice(body) {
		return nil
	}

	amount, ok := r.amount.Extract(body, sender)
	if !ok {
		return nil
	}

	merchant, ok := r.merchant.Extract(body, sender)
	if !ok {
		merchant = domain.UnknownMerchant
	}
	category, ok := r.category.Extract(body, sender)
	if !ok {
		category = domain.CategoryOther
	}
	txType, ok := r.txType.Extract(body, sender)
	if !ok {
		txType = domain.TypeOneTime
	}
	reference, _ := r.reference.Extract(body, sender)

	lower := strings.ToLower(body)
	if strings.Contains(lower, "subscription") || strings.Contains(lower, "auto debit") {
		txType = domain.TypeSubscription
	}

	return &domain.ExtractedTransaction{
		ID:          domain.TransactionID(sender, body, ts),
		Amount:      amount.Magnitude(),
		Direction:   amount.Direction(),
		Merchant:    merchant,
		Category:    category,
		Type:        txType,
		ReferenceID: reference,
		Confidence:  RuleBasedConfidence,
		SourceText:  body,
		Sender:      sender,
		Timestamp:   ts,
		Extractor:   string(KindRuleBased),
	}
}

var _ Strategy = (*RuleBased)(nil)
