package extract

import (
	"regexp"
	"strings"

	"github.com/dvloznov/alertledger/internal/domain"
	"github.com/shopspring/decimal"
)

// Tried in order: currency prefix, currency suffix, keyword anchor.
var amountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:\bRs\.?|\bINR\.?|₹)\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`),
	regexp.MustCompile(`(?i)([0-9][0-9,]*(?:\.[0-9]{1,2})?)\s*(?:Rs\.?|INR|₹)`),
	regexp.MustCompile(`(?i)\b(?:amount|paid|received|debited|credited|of)\s*:?\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`),
}

var (
	debitKeywords  = regexp.MustCompile(`(?i)\b(?:debited|debit|paid|payment|withdrawn|spent|charged|deducted|purchase|bought|withdrawal)\b`)
	creditKeywords = regexp.MustCompile(`(?i)\b(?:credited|credit|received|deposited|added|refund|cashback|reversed|deposit)\b`)
)

// Amount is a signed amount as read from a message: negative for debits.
type Amount struct {
	Signed decimal.Decimal
}

// Magnitude returns the unsigned amount.
func (a Amount) Magnitude() decimal.Decimal {
	return a.Signed.Abs()
}

// Direction derives the direction from the sign.
func (a Amount) Direction() domain.Direction {
	if a.Signed.IsNegative() {
		return domain.DirectionDebit
	}
	return domain.DirectionCredit
}

// AmountExtractor reads the transaction amount and its direction.
type AmountExtractor struct{}

// Extract returns the first positive amount found, signed by direction.
func (AmountExtractor) Extract(body, _ string) (Amount, bool) {
	magnitude, ok := findAmount(body)
	if !ok {
		return Amount{}, false
	}
	if DetectDirection(body) == domain.DirectionDebit {
		return Amount{Signed: magnitude.Neg()}, true
	}
	return Amount{Signed: magnitude}, true
}

// ContainsAmount reports whether body quotes a monetary amount.
func ContainsAmount(body string) bool {
	_, ok := findAmount(body)
	return ok
}

func findAmount(body string) (decimal.Decimal, bool) {
	for _, p := range amountPatterns {
		for _, m := range p.FindAllStringSubmatch(body, -1) {
			raw := strings.ReplaceAll(m[1], ",", "")
			v, err := decimal.NewFromString(raw)
			if err != nil || !v.IsPositive() {
				continue
			}
			return v, true
		}
	}
	return decimal.Zero, false
}

// DetectDirection picks whichever keyword set matches earliest in body.
// Debit wins a tie and is the default when neither set matches.
func DetectDirection(body string) domain.Direction {
	debit := debitKeywords.FindStringIndex(body)
	credit := creditKeywords.FindStringIndex(body)
	switch {
	case credit == nil:
		return domain.DirectionDebit
	case debit == nil:
		return domain.DirectionCredit
	case credit[0] < debit[0]:
		return domain.DirectionCredit
	default:
		return domain.DirectionDebit
	}
}
