package model

import "strings"

// The reply keys and enum lists must stay exactly as written; fixed-template
// models are tuned against this text.
const extractionPromptTemplate = `Extract transaction from SMS. Reply format:
TRANSACTION:YES or NO
DIRECTION:DEBIT or CREDIT
AMOUNT:123.45
MERCHANT:Zomato
CATEGORY:FOOD_DINING
TYPE:ONE_TIME
UPI_ID:merchant@paytm

DIRECTION:
- DEBIT: Money OUT (paid, sent, debited, charged TO merchant)
- CREDIT: Money IN (received, credited, refund FROM someone)
- Payment TO any merchant = DEBIT
- Refunds/cashback = CREDIT

Categories: FOOD_DINING, TRANSPORTATION, SHOPPING, ENTERTAINMENT, BILLS_UTILITIES, HEALTHCARE, EDUCATION, TRAVEL, GROCERIES, SUBSCRIPTION, INVESTMENT, TRANSFER, OTHER

Types: ONE_TIME, SUBSCRIPTION, RECURRING_BILL, TRANSFER, REFUND, INVESTMENT

SMS: {{body}}
Sender: {{sender}}

Response:`

// BuildExtractionPrompt renders the extraction prompt for one message.
func BuildExtractionPrompt(body, sender string) string {
	r := strings.NewReplacer("{{body}}", body, "{{sender}}", sender)
	return r.Replace(extractionPromptTemplate)
}

// EstimateTokens approximates the token count of text at three characters per
// token plus a fixed pad, never less than one.
func EstimateTokens(text string) int {
	n := len(text)/3 + 10
	if n < 1 {
		return 1
	}
	return n
}

// CleanFreeformResponse strips answer-prefix artifacts some models echo back.
func CleanFreeformResponse(response string) string {
	s := strings.TrimSpace(response)
	for _, prefix := range []string{"Response:", "Answer:"} {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
		}
	}
	return s
}
