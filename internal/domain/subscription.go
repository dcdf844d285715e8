package domain

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// SubscriptionState is the lifecycle state of a recurring payment.
type SubscriptionState string

const (
	SubscriptionActive SubscriptionState = "ACTIVE"
	// SubscriptionHidden is set by the user and left only via reactivation or unhide.
	SubscriptionHidden SubscriptionState = "HIDDEN"
)

// SubscriptionRecord is a persisted recurring payment.
type SubscriptionRecord struct {
	ID              string            `json:"id"`
	MerchantName    string            `json:"merchant_name"`
	Amount          decimal.Decimal   `json:"amount"`
	NextPaymentDate civil.Date        `json:"next_payment_date"`
	State           SubscriptionState `json:"state"`
	UMN             string            `json:"umn,omitempty"`
	Category        string            `json:"category"`
	// LastChargeID is the transaction that last advanced or reactivated the record.
	LastChargeID string    `json:"last_charge_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DefaultMandateDateLayout matches deduction dates such as "05/02/24".
const DefaultMandateDateLayout = "02/01/06"

// MandateInfo is a recurring-mandate declaration parsed from a notice.
type MandateInfo struct {
	Amount            decimal.Decimal `json:"amount"`
	NextDeductionDate string          `json:"next_deduction_date"`
	// DateLayout is the Go time layout of NextDeductionDate.
	DateLayout string `json:"date_layout"`
	Merchant   string `json:"merchant"`
	UMN        string `json:"umn,omitempty"`
}
