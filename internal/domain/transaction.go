package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UnknownMerchant is substituted when no merchant can be resolved from a message.
const UnknownMerchant = "Unknown Merchant"

// Direction tells whether money left the user (DEBIT) or arrived (CREDIT).
type Direction string

const (
	DirectionDebit  Direction = "DEBIT"
	DirectionCredit Direction = "CREDIT"
)

// ParseDirection maps a free-form value onto a Direction.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(DirectionDebit):
		return DirectionDebit, true
	case string(DirectionCredit):
		return DirectionCredit, true
	}
	return "", false
}

// Category is the closed set of spending categories.
type Category string

const (
	CategoryFoodDining     Category = "FOOD_DINING"
	CategoryTransportation Category = "TRANSPORTATION"
	CategoryShopping       Category = "SHOPPING"
	CategoryEntertainment  Category = "ENTERTAINMENT"
	CategoryBillsUtilities Category = "BILLS_UTILITIES"
	CategoryHealthcare     Category = "HEALTHCARE"
	CategoryEducation      Category = "EDUCATION"
	CategoryTravel         Category = "TRAVEL"
	CategoryGroceries      Category = "GROCERIES"
	CategorySubscription   Category = "SUBSCRIPTION"
	CategoryInvestment     Category = "INVESTMENT"
	CategoryTransfer       Category = "TRANSFER"
	CategoryOther          Category = "OTHER"
)

// Categories lists every category in the order presented to the model.
var Categories = []Category{
	CategoryFoodDining,
	CategoryTransportation,
	CategoryShopping,
	CategoryEntertainment,
	CategoryBillsUtilities,
	CategoryHealthcare,
	CategoryEducation,
	CategoryTravel,
	CategoryGroceries,
	CategorySubscription,
	CategoryInvestment,
	CategoryTransfer,
	CategoryOther,
}

// ParseCategory maps a free-form value onto a Category. Unrecognised values
// report false and yield CategoryOther.
func ParseCategory(s string) (Category, bool) {
	v := Category(strings.ToUpper(strings.TrimSpace(s)))
	for _, c := range Categories {
		if c == v {
			return c, true
		}
	}
	return CategoryOther, false
}

// TransactionType classifies the nature of a transaction.
type TransactionType string

const (
	TypeOneTime       TransactionType = "ONE_TIME"
	TypeSubscription  TransactionType = "SUBSCRIPTION"
	TypeRecurringBill TransactionType = "RECURRING_BILL"
	TypeTransfer      TransactionType = "TRANSFER"
	TypeRefund        TransactionType = "REFUND"
	TypeInvestment    TransactionType = "INVESTMENT"
	// TypeUnknown is only produced when a model reply names a type outside the set.
	TypeUnknown TransactionType = "UNKNOWN"
)

// TransactionTypes lists the types a model may answer with.
var TransactionTypes = []TransactionType{
	TypeOneTime,
	TypeSubscription,
	TypeRecurringBill,
	TypeTransfer,
	TypeRefund,
	TypeInvestment,
}

// ParseTransactionType maps a free-form value onto a TransactionType,
// yielding TypeUnknown for anything outside the set.
func ParseTransactionType(s string) (TransactionType, bool) {
	v := TransactionType(strings.ToUpper(strings.TrimSpace(s)))
	for _, t := range TransactionTypes {
		if t == v {
			return t, true
		}
	}
	return TypeUnknown, false
}

// ExtractedTransaction is the structured record produced from one message.
// Amount is always a non-negative magnitude; Direction carries the sign.
type ExtractedTransaction struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Direction   Direction       `json:"direction"`
	Merchant    string          `json:"merchant"`
	Category    Category        `json:"category"`
	Type        TransactionType `json:"type"`
	ReferenceID string          `json:"reference_id,omitempty"`
	Confidence  float64         `json:"confidence"`
	SourceText  string          `json:"source_text"`
	Sender      string          `json:"sender"`
	Timestamp   time.Time       `json:"timestamp"`

	// Extractor names the strategy that produced the record.
	Extractor string `json:"extractor"`
}

// SignedAmount returns the amount negated for debits.
func (t *ExtractedTransaction) SignedAmount() decimal.Decimal {
	if t.Direction == DirectionDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// TransactionID derives the de-duplication id of a message. The same
// (sender, body, timestamp) always yields the same id.
func TransactionID(sender, body string, ts time.Time) string {
	content := fmt.Sprintf("%s_%s_%d", sender, body, ts.UnixMilli())
	return uuid.NewMD5(uuid.NameSpaceOID, []byte(content)).String()
}
