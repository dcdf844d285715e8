// Package subscription detects recurring charges and maintains subscription
// records. Matcher holds the pure decisions; Service applies them to a store.
package subscription

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/alertledger/internal/domain"
)

const (
	DefaultTolerance  = "0.05"
	DefaultPeriodDays = 30
)

// Outcome names what a decision did to a record.
type Outcome string

const (
	OutcomeNone        Outcome = "none"
	OutcomeCharged     Outcome = "charged"
	OutcomeReactivated Outcome = "reactivated"
	OutcomeCreated     Outcome = "created"
	OutcomeUpdated     Outcome = "updated"
)

// Decision is the record a Matcher operation produced and why.
type Decision struct {
	Outcome Outcome                   `json:"outcome"`
	Record  domain.SubscriptionRecord `json:"record"`
}

// Changed reports whether the decision needs to be persisted.
func (d Decision) Changed() bool { return d.Outcome != OutcomeNone }

// Matcher holds the amount tolerance and billing period.
type Matcher struct {
	Tolerance  decimal.Decimal
	PeriodDays int
}

// NewMatcher returns a matcher with the standard 5% tolerance and 30-day period.
func NewMatcher() Matcher {
	return Matcher{
		Tolerance:  decimal.RequireFromString(DefaultTolerance),
		PeriodDays: DefaultPeriodDays,
	}
}

// WithinTolerance reports whether |txAmount - recordAmount| <= tolerance * txAmount.
func (m Matcher) WithinTolerance(txAmount, recordAmount decimal.Decimal) bool {
	diff := txAmount.Sub(recordAmount).Abs()
	return diff.LessThanOrEqual(m.Tolerance.Mul(txAmount.Abs()))
}

func sameMerchant(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// MatchCharge finds an ACTIVE record for the transaction's merchant within
// tolerance and advances its next payment date by one period.
func (m Matcher) MatchCharge(tx *domain.ExtractedTransaction, records []domain.SubscriptionRecord, now time.Time) Decision {
	for _, rec := range records {
		if rec.State != domain.SubscriptionActive || !sameMerchant(rec.MerchantName, tx.Merchant) {
			continue
		}
		if !m.WithinTolerance(tx.Amount, rec.Amount) {
			continue
		}
		rec.NextPaymentDate = rec.NextPaymentDate.AddDays(m.PeriodDays)
		rec.LastChargeID = tx.ID
		rec.UpdatedAt = now
		return Decision{Outcome: OutcomeCharged, Record: rec}
	}
	return Decision{Outcome: OutcomeNone}
}

// Reactivate finds a HIDDEN record for the transaction's merchant within
// tolerance. When the charge implies a payment date other than the stored
// one, the record returns to ACTIVE with that date.
func (m Matcher) Reactivate(tx *domain.ExtractedTransaction, records []domain.SubscriptionRecord, now time.Time) Decision {
	next := civil.DateOf(tx.Timestamp).AddDays(m.PeriodDays)
	for _, rec := range records {
		if rec.State != domain.SubscriptionHidden || !sameMerchant(rec.MerchantName, tx.Merchant) {
			continue
		}
		if !m.WithinTolerance(tx.Amount, rec.Amount) {
			continue
		}
		if rec.NextPaymentDate == next {
			return Decision{Outcome: OutcomeNone, Record: rec}
		}
		rec.State = domain.SubscriptionActive
		rec.NextPaymentDate = next
		rec.LastChargeID = tx.ID
		rec.UpdatedAt = now
		return Decision{Outcome: OutcomeReactivated, Record: rec}
	}
	return Decision{Outcome: OutcomeNone}
}

// Apply runs MatchCharge and, when nothing active matched, Reactivate.
// Only debits can be subscription charges. A transaction already applied to
// one of the records is not applied again, so redelivered messages are safe.
func (m Matcher) Apply(tx *domain.ExtractedTransaction, records []domain.SubscriptionRecord, now time.Time) Decision {
	if tx == nil || tx.Direction != domain.DirectionDebit {
		return Decision{Outcome: OutcomeNone}
	}
	for _, rec := range records {
		if tx.ID != "" && rec.LastChargeID == tx.ID {
			return Decision{Outcome: OutcomeNone, Record: rec}
		}
	}
	if d := m.MatchCharge(tx, records, now); d.Changed() {
		return d
	}
	return m.Reactivate(tx, records, now)
}

// MandateDate parses the mandate's next deduction date, falling back to one
// period from now when it is missing or malformed.
func (m Matcher) MandateDate(info domain.MandateInfo, now time.Time) (civil.Date, bool) {
	layout := info.DateLayout
	if layout == "" {
		layout = domain.DefaultMandateDateLayout
	}
	if info.NextDeductionDate != "" {
		if t, err := time.Parse(layout, strings.TrimSpace(info.NextDeductionDate)); err == nil {
			return civil.DateOf(t), true
		}
	}
	return civil.DateOf(now).AddDays(m.PeriodDays), false
}

// FromMandate creates a record for a mandate or updates existing in place.
// A HIDDEN record is reactivated only when the mandate's date differs from
// the stored one.
func (m Matcher) FromMandate(info domain.MandateInfo, existing *domain.SubscriptionRecord, now time.Time) Decision {
	next, _ := m.MandateDate(info, now)
	merchant := strings.TrimSpace(info.Merchant)

	if existing != nil {
		rec := *existing
		reactivate := rec.State == domain.SubscriptionHidden && rec.NextPaymentDate != next
		rec.Amount = info.Amount
		rec.NextPaymentDate = next
		if merchant != "" {
			rec.MerchantName = merchant
		}
		if info.UMN != "" {
			rec.UMN = info.UMN
		}
		rec.UpdatedAt = now
		if reactivate {
			rec.State = domain.SubscriptionActive
			return Decision{Outcome: OutcomeReactivated, Record: rec}
		}
		return Decision{Outcome: OutcomeUpdated, Record: rec}
	}

	return Decision{
		Outcome: OutcomeCreated,
		Record: domain.SubscriptionRecord{
			ID:              uuid.NewString(),
			MerchantName:    merchant,
			Amount:          info.Amount,
			NextPaymentDate: next,
			State:           domain.SubscriptionActive,
			UMN:             info.UMN,
			Category:        InferCategory(merchant),
			CreatedAt:       now,
			UpdatedAt:       now,
		},
	}
}

// FindForMandate picks the record a mandate without UMN refers to: same
// merchant, amount within tolerance.
func (m Matcher) FindForMandate(info domain.MandateInfo, records []domain.SubscriptionRecord) *domain.SubscriptionRecord {
	for i := range records {
		rec := records[i]
		if sameMerchant(rec.MerchantName, info.Merchant) && m.WithinTolerance(info.Amount, rec.Amount) {
			return &rec
		}
	}
	return nil
}
