package extract

import (
	"regexp"
	"strings"

	"github.com/dvloznov/alertledger/internal/domain"
	"github.com/shopspring/decimal"
)

// UnknownSubscriptionMerchant is used when a mandate notice does not name the payee.
const UnknownSubscriptionMerchant = "Unknown Subscription"

var (
	mandateAmount   = regexp.MustCompile(`(?i)Rs\.?\s*([0-9,]+(?:\.\d{2})?)\s+will\s+be\s+deducted`)
	mandateDate     = regexp.MustCompile(`(?i)deducted\s+on\s+(\d{2}/\d{2}/\d{2}),?\s*\d{2}:\d{2}:\d{2}`)
	mandateMerchant = regexp.MustCompile(`(?i)For\s+([^\n]+?)\s+mandate`)
	mandateUMN      = regexp.MustCompile(`(?i)UMN\s+([a-zA-Z0-9@]+)`)

	futureDebitAmount   = regexp.MustCompile(`(?i)(?:INR\.?|Rs\.?)\s*([0-9,]+(?:\.\d{2})?)`)
	futureDebitDate     = regexp.MustCompile(`(?i)will\s+be\s+debited\s+on\s+(\d{2}/\d{2}/\d{4})`)
	futureDebitMerchant = regexp.MustCompile(`(?i)towards\s+([^\n]+?)(?:\s+UMRN|\s+ID:|\s+Alert:|\.|$)`)
)

// IsMandateNotice reports whether body announces a recurring debit rather than reporting one.
// Only future-tense phrasing counts: an executed e-mandate debit is an ordinary charge.
func IsMandateNotice(body string) bool {
	lower := strings.ToLower(body)
	if strings.Contains(lower, "mandate") && strings.Contains(lower, "will be deducted") {
		return true
	}
	return futureDebitDate.MatchString(body) &&
		containsAny(lower, "mandate", "auto debit", "auto-debit", "autopay", "standing instruction", "subscription")
}

// ParseMandate extracts the declaration carried by a mandate notice.
func ParseMandate(body string) (*domain.MandateInfo, bool) {
	if !IsMandateNotice(body) {
		return nil, false
	}
	if info, ok := parseDeductionNotice(body); ok {
		return info, true
	}
	return parseFutureDebitNotice(body)
}

func parseDeductionNotice(body string) (*domain.MandateInfo, bool) {
	m := mandateAmount.FindStringSubmatch(body)
	if m == nil {
		return nil, false
	}
	amount, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return nil, false
	}

	info := &domain.MandateInfo{
		Amount:     amount,
		DateLayout: domain.DefaultMandateDateLayout,
		Merchant:   UnknownSubscriptionMerchant,
	}
	if d := mandateDate.FindStringSubmatch(body); d != nil {
		info.NextDeductionDate = d[1]
	}
	if mm := mandateMerchant.FindStringSubmatch(body); mm != nil {
		if name := CleanMerchantName(mm[1]); name != "" {
			info.Merchant = name
		}
	}
	if u := mandateUMN.FindStringSubmatch(body); u != nil {
		info.UMN = u[1]
	}
	return info, true
}

func parseFutureDebitNotice(body string) (*domain.MandateInfo, bool) {
	m := futureDebitAmount.FindStringSubmatch(body)
	d := futureDebitDate.FindStringSubmatch(body)
	if m == nil || d == nil {
		return nil, false
	}
	amount, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return nil, false
	}

	info := &domain.MandateInfo{
		Amount:            amount,
		NextDeductionDate: d[1],
		DateLayout:        "02/01/2006",
		Merchant:          UnknownSubscriptionMerchant,
	}
	if mm := futureDebitMerchant.FindStringSubmatch(body); mm != nil {
		if name := CleanMerchantName(mm[1]); name != "" {
			info.Merchant = name
		}
	}
	return info, true
}
