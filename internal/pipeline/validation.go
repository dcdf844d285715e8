package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/alertledger/internal/domain"
)

// ErrInvalidTransaction wraps every validation failure.
var ErrInvalidTransaction = errors.New("invalid transaction")

// ValidateTransaction checks an extraction before it is persisted.
// Returns nil if valid, an error wrapping ErrInvalidTransaction otherwise.
func ValidateTransaction(tx *domain.ExtractedTransaction) error {
	var problems []string

	if tx.ID == "" {
		problems = append(problems, "missing id")
	}
	if !tx.Amount.IsPositive() {
		problems = append(problems, fmt.Sprintf("amount %s is not positive", tx.Amount))
	}
	if _, ok := domain.ParseDirection(string(tx.Direction)); !ok {
		problems = append(problems, fmt.Sprintf("direction %q", tx.Direction))
	}
	if c, ok := domain.ParseCategory(string(tx.Category)); !ok || c != tx.Category {
		problems = append(problems, fmt.Sprintf("category %q", tx.Category))
	}
	if strings.TrimSpace(tx.Merchant) == "" {
		problems = append(problems, "empty merchant")
	}
	if tx.Confidence < 0 || tx.Confidence > 1 {
		problems = append(problems, fmt.Sprintf("confidence %.2f outside [0,1]", tx.Confidence))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTransaction, strings.Join(problems, ", "))
	}
	return nil
}
