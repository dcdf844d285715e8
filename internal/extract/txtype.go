package extract

import (
	"strings"

	"github.com/dvloznov/alertledger/internal/domain"
)

var typeKeywords = newKeywordTable(map[string][]string{
	string(domain.TypeSubscription): {
		"subscription", "renewal", "membership", "netflix", "spotify", "hotstar", "auto renew",
	},
	string(domain.TypeRecurringBill): {
		"bill", "emi", "electricity", "insurance premium", "postpaid", "broadband",
	},
	string(domain.TypeRefund): {
		"refund", "refunded", "reversed", "reversal", "cashback",
	},
	string(domain.TypeInvestment): {
		"sip", "mutual fund", "investment", "stocks", "demat", "zerodha", "groww",
	},
	string(domain.TypeTransfer): {
		"transfer", "transferred", "imps", "neft", "rtgs",
	},
})

// TypeExtractor classifies the nature of a transaction.
type TypeExtractor struct{}

// Extract never fails: without a keyword hit the type is inferred from phrasing.
func (TypeExtractor) Extract(body, _ string) (domain.TransactionType, bool) {
	if label, ok := typeKeywords.best(body); ok {
		return domain.TransactionType(label), true
	}
	return inferType(strings.ToLower(body)), true
}

func inferType(lower string) domain.TransactionType {
	switch {
	case containsAny(lower, "refund", "reversed", "money back", "credited back"):
		return domain.TypeRefund
	case containsAny(lower, "sent to", "received from", "transfer", "self a/c"):
		return domain.TypeTransfer
	case containsAny(lower, "auto debit", "auto-debit", "autopay", "standing instruction", "e-mandate"):
		return domain.TypeRecurringBill
	default:
		return domain.TypeOneTime
	}
}
