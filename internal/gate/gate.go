// Package gate decides whether an alert is handed to extraction at all.
package gate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dvloznov/alertledger/internal/domain"
	"github.com/dvloznov/alertledger/internal/extract"
	"github.com/dvloznov/alertledger/internal/sender"
)

// SenderClassifier is satisfied by *sender.Registry.
type SenderClassifier interface {
	Classify(senderID string) sender.Classification
}

// Gate is a stateless decision function over (body, sender).
type Gate struct {
	senders SenderClassifier
}

// New returns a gate using the given classifier, or the default registry when nil.
func New(senders SenderClassifier) *Gate {
	if senders == nil {
		senders = sender.Default()
	}
	return &Gate{senders: senders}
}

// ShouldProcess returns the gate's verdict for one message.
func (g *Gate) ShouldProcess(body, senderID string) domain.FilterDecision {
	accept, reason := g.evaluate(body, senderID)
	return domain.FilterDecision{Accept: accept, Reason: reason}
}

// FilterReason explains the verdict ShouldProcess would return.
func (g *Gate) FilterReason(body, senderID string) string {
	_, reason := g.evaluate(body, senderID)
	return reason
}

func (g *Gate) evaluate(body, senderID string) (bool, string) {
	switch g.senders.Classify(senderID) {
	case sender.Excluded:
		return false, fmt.Sprintf("sender %q is excluded", senderID)
	case sender.KnownInstitution:
		if e, denied := firstDenied(body); denied {
			return false, fmt.Sprintf("denylisted phrase %q (%s)", e.phrase, e.intent)
		}
		if !extract.ContainsAmount(body) {
			return false, "no monetary amount"
		}
		return true, "accepted"
	default:
		if strings.TrimSpace(senderID) == "" {
			return false, "no sender"
		}
		if LooksLikeBankAlert(body) {
			return false, fmt.Sprintf("unknown sender %q (content resembles a bank alert)", senderID)
		}
		return false, fmt.Sprintf("unknown sender %q", senderID)
	}
}

var shortURL = regexp.MustCompile(`(?i)\bhttps?://\S+|\bwww\.\S+|\b(?:bit\.ly|tinyurl\.com|goo\.gl|t\.co|cutt\.ly|rb\.gy|is\.gd|shorturl\.at)/\S*`)

// Pairs of terms that rarely co-occur in genuine alerts.
var spamPairs = [][2]string{
	{"congratulations", "won"},
	{"winner", "claim"},
	{"lottery", "prize"},
	{"free", "gift"},
	{"click", "link"},
	{"urgent", "blocked"},
	{"kyc", "suspended"},
	{"reward", "expire"},
}

// IsLikelySpam flags links and known scam phrasing. It is applied after
// ShouldProcess, even to accepted institutional messages.
func IsLikelySpam(body string) bool {
	if shortURL.MatchString(body) {
		return true
	}
	lower := strings.ToLower(body)
	for _, p := range spamPairs {
		if strings.Contains(lower, p[0]) && strings.Contains(lower, p[1]) {
			return true
		}
	}
	return false
}

var (
	accountIndicators = []string{
		"a/c", "account", "acct", "acc no", "available balance", "avl bal", "avbl bal", "bal:",
		"current balance", "total balance", "remaining balance",
	}
	referenceIndicators = []string{
		"txn id", "transaction id", "ref no", "reference no", "rrn:", "utr:", "imps ref", "neft ref", "rtgs ref",
	}
	cardIndicators = []string{"card ending", "card no", "xxxx", "****"}
)

// LooksLikeBankAlert reports strong banking markers in body. It only enriches
// diagnostics; unknown senders are refused regardless.
func LooksLikeBankAlert(body string) bool {
	lower := strings.ToLower(body)
	for _, s := range accountIndicators {
		if strings.Contains(lower, s) {
			return true
		}
	}
	for _, s := range referenceIndicators {
		if strings.Contains(lower, s) {
			return true
		}
	}
	hasCard := false
	for _, s := range cardIndicators {
		if strings.Contains(lower, s) {
			hasCard = true
			break
		}
	}
	return hasCard && (strings.Contains(lower, "debited") || strings.Contains(lower, "credited") || strings.Contains(lower, "withdrawn"))
}
