package gate

import (
	"regexp"
	"strings"
)

// Intent groups denylisted phrases by why the message is not a transaction.
type Intent string

const (
	IntentOTP         Intent = "otp_verification"
	IntentPromotional Intent = "promotional"
	IntentLoanOffer   Intent = "loan_solicitation"
	IntentReward      Intent = "cashback_reward"
	IntentContest     Intent = "contest_lottery"
	IntentPending     Intent = "pending_future_dated"
	IntentFailed      Intent = "cancelled_failed"
	IntentKYC         Intent = "kyc_compliance"
	IntentInformation Intent = "informational_balance"
)

// denyEntry rejects a message containing phrase unless one of the exception
// substrings is also present.
type denyEntry struct {
	phrase     string
	intent     Intent
	exceptions []string
	pattern    *regexp.Regexp
}

func deny(intent Intent, phrase string, exceptions ...string) denyEntry {
	return denyEntry{
		phrase:     phrase,
		intent:     intent,
		exceptions: exceptions,
		pattern:    regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(phrase) + `\b`),
	}
}

func (e denyEntry) hit(body, lower string) bool {
	if !e.pattern.MatchString(body) {
		return false
	}
	for _, ex := range e.exceptions {
		if strings.Contains(lower, ex) {
			return false
		}
	}
	return true
}

var denylist = []denyEntry{
	deny(IntentOTP, "otp"),
	deny(IntentOTP, "one time password"),
	deny(IntentOTP, "verification code"),
	deny(IntentOTP, "authentication code"),
	deny(IntentOTP, "security code"),
	deny(IntentOTP, "login code"),
	deny(IntentOTP, "is your code"),
	deny(IntentOTP, "do not share this"),
	deny(IntentOTP, "to verify your"),

	deny(IntentPromotional, "special offer"),
	deny(IntentPromotional, "limited period offer"),
	deny(IntentPromotional, "exclusive offer"),
	deny(IntentPromotional, "offer valid"),
	deny(IntentPromotional, "click here"),
	deny(IntentPromotional, "apply now"),
	deny(IntentPromotional, "shop now"),
	deny(IntentPromotional, "buy now"),
	deny(IntentPromotional, "hurry"),
	deny(IntentPromotional, "use code"),
	deny(IntentPromotional, "coupon"),
	deny(IntentPromotional, "discount", "discount of rs", "discount applied"),
	deny(IntentPromotional, "sale"),
	deny(IntentPromotional, "upgrade now"),
	deny(IntentPromotional, "pre-approved"),
	deny(IntentPromotional, "pre approved"),

	deny(IntentLoanOffer, "loan", "loan disbursed", "emi debited", "loan a/c", "loan account", "emi of", "emi for", "towards loan"),
	deny(IntentLoanOffer, "personal loan", "loan disbursed"),
	deny(IntentLoanOffer, "instant loan"),
	deny(IntentLoanOffer, "eligible for"),
	deny(IntentLoanOffer, "credit limit increase"),
	deny(IntentLoanOffer, "low interest"),
	deny(IntentLoanOffer, "get credit"),

	deny(IntentReward, "cashback", "cashback credited", "cashback of rs", "credited as cashback"),
	deny(IntentReward, "reward points"),
	deny(IntentReward, "points earned"),
	deny(IntentReward, "redeem"),
	deny(IntentReward, "reward", "reward credited"),

	deny(IntentContest, "congratulations"),
	deny(IntentContest, "you have won"),
	deny(IntentContest, "winner"),
	deny(IntentContest, "lottery"),
	deny(IntentContest, "lucky draw"),
	deny(IntentContest, "jackpot"),
	deny(IntentContest, "prize"),
	deny(IntentContest, "contest"),
	deny(IntentContest, "win"),

	deny(IntentPending, "will be debited"),
	deny(IntentPending, "will be deducted"),
	deny(IntentPending, "will be credited"),
	deny(IntentPending, "scheduled"),
	deny(IntentPending, "pending"),
	deny(IntentPending, "due on"),
	deny(IntentPending, "due date"),
	deny(IntentPending, "payment due"),
	deny(IntentPending, "is due"),
	deny(IntentPending, "minimum amount due"),
	deny(IntentPending, "reminder"),
	deny(IntentPending, "has requested"),
	deny(IntentPending, "collect request"),
	deny(IntentPending, "payment request"),

	deny(IntentFailed, "cancelled"),
	deny(IntentFailed, "failed", "reversed", "refunded"),
	deny(IntentFailed, "declined"),
	deny(IntentFailed, "unsuccessful", "reversed", "refunded"),
	deny(IntentFailed, "could not be processed"),
	deny(IntentFailed, "rejected"),
	deny(IntentFailed, "insufficient balance"),

	deny(IntentKYC, "kyc"),
	deny(IntentKYC, "re-kyc"),
	deny(IntentKYC, "pan card"),
	deny(IntentKYC, "aadhaar"),
	deny(IntentKYC, "update your"),
	deny(IntentKYC, "link your"),
	deny(IntentKYC, "verify your"),
	deny(IntentKYC, "will be blocked"),

	deny(IntentInformation, "balance inquiry"),
	deny(IntentInformation, "balance enquiry"),
	deny(IntentInformation, "available balance is", "debited", "credited"),
	deny(IntentInformation, "wallet balance", "debited", "credited"),
	deny(IntentInformation, "welcome to"),
	deny(IntentInformation, "statement is ready"),
	deny(IntentInformation, "e-statement"),
	deny(IntentInformation, "bill generated"),
	deny(IntentInformation, "has been generated"),
	deny(IntentInformation, "total amount due"),
	deny(IntentInformation, "tds"),
}

// firstDenied returns the first entry that rejects body, if any.
func firstDenied(body string) (denyEntry, bool) {
	lower := strings.ToLower(body)
	for _, e := range denylist {
		if e.hit(body, lower) {
			return e, true
		}
	}
	return denyEntry{}, false
}
