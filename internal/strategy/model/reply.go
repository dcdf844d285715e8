package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/alertledger/internal/domain"
	"github.com/dvloznov/alertledger/internal/strategy"
	"github.com/shopspring/decimal"
)

// DefaultModelConfidence is used when the reply carries no CONFIDENCE line.
const DefaultModelConfidence = 0.9

// replyFields splits a line-oriented reply into KEY -> value on the first colon.
func replyFields(reply string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(strings.TrimSpace(reply), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "```") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		fields[key] = strings.TrimSpace(value)
	}
	return fields
}

// parsedReply is the outcome of reading one model reply.
type parsedReply struct {
	tx *domain.ExtractedTransaction
	// notes lists values that were substituted with defaults.
	notes []string
}

// parseReply turns a reply into a transaction. A nil tx means the model
// answered that the message is not a transaction or gave no usable amount.
func parseReply(reply, body, sender string, ts time.Time) parsedReply {
	f := replyFields(reply)
	var out parsedReply

	if strings.ToUpper(f["TRANSACTION"]) != "YES" {
		return out
	}

	amount, err := parseAmount(f["AMOUNT"])
	if err != nil {
		out.notes = append(out.notes, fmt.Sprintf("unusable amount %q", f["AMOUNT"]))
		return out
	}

	direction, ok := domain.ParseDirection(f["DIRECTION"])
	if !ok {
		direction = domain.DirectionDebit
		if amount.IsPositive() && f["DIRECTION"] == "" && strings.HasPrefix(strings.TrimSpace(f["AMOUNT"]), "+") {
			direction = domain.DirectionCredit
		}
		if f["DIRECTION"] != "" {
			out.notes = append(out.notes, fmt.Sprintf("unknown direction %q", f["DIRECTION"]))
		}
	}

	category, ok := domain.ParseCategory(f["CATEGORY"])
	if !ok && f["CATEGORY"] != "" {
		out.notes = append(out.notes, fmt.Sprintf("unknown category %q", f["CATEGORY"]))
	}

	txType, ok := domain.ParseTransactionType(f["TYPE"])
	if !ok && f["TYPE"] != "" {
		out.notes = append(out.notes, fmt.Sprintf("unknown type %q", f["TYPE"]))
	}
	if strings.ToUpper(f["SUBSCRIPTION"]) == "YES" {
		txType = domain.TypeSubscription
	}

	merchant := f["MERCHANT"]
	if isEmptyValue(merchant) || strings.EqualFold(merchant, "unknown") {
		merchant = domain.UnknownMerchant
	}

	reference := f["UPI_ID"]
	if isEmptyValue(reference) {
		reference = ""
	}

	out.tx = &domain.ExtractedTransaction{
		ID:          domain.TransactionID(sender, body, ts),
		Amount:      amount.Abs(),
		Direction:   direction,
		Merchant:    merchant,
		Category:    category,
		Type:        txType,
		ReferenceID: reference,
		Confidence:  parseConfidence(f["CONFIDENCE"]),
		SourceText:  body,
		Sender:      sender,
		Timestamp:   ts,
		Extractor:   string(strategy.KindModelBased),
	}
	return out
}

func parseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	for _, prefix := range []string{"Rs.", "Rs", "INR", "₹", "+"} {
		s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
	}
	s = strings.ReplaceAll(s, ",", "")
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if v.IsZero() {
		return decimal.Zero, fmt.Errorf("zero amount")
	}
	return v, nil
}

// parseConfidence accepts fractions or percentages and clamps to [0,1].
func parseConfidence(raw string) float64 {
	s := strings.TrimSuffix(strings.TrimSpace(raw), "%")
	if s == "" {
		return DefaultModelConfidence
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return DefaultModelConfidence
	}
	if v > 1 && v <= 100 {
		v /= 100
	}
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func isEmptyValue(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "null", "none", "n/a", "na":
		return true
	}
	return false
}
