package extract

import (
	"regexp"
	"strings"
	"unicode"
)

// ATMWithdrawalMerchant names cash withdrawals.
const ATMWithdrawalMerchant = "ATM Withdrawal"

// Phrase templates, most specific first. Each stops at a boundary token so a
// trailing "on <date>" or "via UPI" is not captured.
var merchantPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bPayment\s+of\s+(?:Rs\.?|INR|₹)\s*[0-9,]+(?:\.[0-9]{1,2})?\s+to\s+([a-zA-Z][a-zA-Z0-9\s\-_.]*?)(?:\s+is\s+|\s+has\s+|\s+was\s+|\s+\.|,|$)`),
	regexp.MustCompile(`(?i)\bto\s+(?:VPA\s+)?([a-zA-Z0-9\s\-_.]+?)(?:@|\s+(?:via|using|through|on|dated|dt|is)\s+|\s+\(|,|$)`),
	regexp.MustCompile(`(?i)\bfrom\s+(?:VPA\s+)?([a-zA-Z0-9\s\-_.]+?)(?:@|\s+(?:via|using|through|on|dated|dt)\s+|\s+\(|,|$)`),
	regexp.MustCompile(`(?i)\bat\s+([a-zA-Z0-9\s\-_.]+?)(?:\s+(?:using|via|through|on|dated|dt)\s+|\.|,|;|$)`),
	regexp.MustCompile(`(?i)\btowards\s+([a-zA-Z0-9\s\-_.]+?)(?:\s+(?:subscription|bill|e-mandate|mandate|UMN|UMRN)\b|@|\s+(?:using|via|through|on|dated)\s+|\.|,|$)`),
	regexp.MustCompile(`(?i)\bpaid\s+to\s+([a-zA-Z0-9\s\-_.]+?)(?:\s+(?:using|via|through|on|dated|is)\s+|\.|,|$)`),
	regexp.MustCompile(`(?i)\bspent\s+at\s+([a-zA-Z0-9\s\-_.]+?)(?:\s+(?:using|via|through|on|dated)\s+|\.|,|$)`),
	regexp.MustCompile(`(?i)(?:\bRs\.?|\bINR|₹)\s*[0-9,]+(?:\.[0-9]{1,2})?\s+(?:to|at|for)\s+([a-zA-Z][a-zA-Z0-9\s\-_.]*?)(?:\s+(?:using|via|through|on|dated|is)\s+|$)`),
}

var (
	trailingDate   = regexp.MustCompile(`\s+\d{1,2}[-/]\d{1,2}[-/]\d{2,4}.*$`)
	trailingDigits = regexp.MustCompile(`\s+\d{4,}.*$`)
	maskedNumber   = regexp.MustCompile(`(?i)^(?:x+\d*|\*+\d*|\d+)$`)
	multiSpace     = regexp.MustCompile(`\s+`)
)

var companySuffixes = map[string]struct{}{
	"LIMITED": {}, "LTD": {}, "PVT": {}, "PRIVATE": {}, "INDIA": {}, "INC": {}, "LLP": {},
	"TECHNOLOGIES": {}, "TECHNOLOGY": {}, "SERVICES": {}, "SOLUTIONS": {}, "ENTERPRISES": {},
	"RETAIL": {}, "COMMERCE": {}, "CORP": {}, "CORPORATION": {}, "CO": {},
}

// Leading words that mean a template latched onto account text instead of a counterparty.
var merchantStopWords = map[string]struct{}{
	"a": {}, "ac": {}, "a/c": {}, "account": {}, "acct": {}, "your": {}, "you": {}, "card": {},
	"bank": {}, "the": {}, "upi": {}, "ref": {}, "no": {}, "number": {}, "txn": {}, "mobile": {},
	"avl": {}, "available": {}, "bal": {}, "balance": {}, "info": {},
}

type brandMapping struct {
	key  string
	name string
}

// Ordered: the first key found in the cleaned name decides the display name.
var brandMappings = []brandMapping{
	{"BIGTREE", "BookMyShow"},
	{"BOOKMYSHOW", "BookMyShow"},
	{"INOX", "PVR"},
	{"PVR", "PVR"},
	{"NETFLIX", "Netflix"},
	{"SPOTIFY", "Spotify"},
	{"HOTSTAR", "Disney+ Hotstar"},
	{"SWIGGY", "Swiggy"},
	{"ZOMATO", "Zomato"},
	{"AMAZON", "Amazon"},
	{"FLIPKART", "Flipkart"},
	{"MYNTRA", "Myntra"},
	{"UBER", "Uber"},
	{"OLA", "Ola"},
	{"RAPIDO", "Rapido"},
	{"IRCTC", "IRCTC"},
	{"BLINKIT", "Blinkit"},
	{"ZEPTO", "Zepto"},
	{"BIGBASKET", "BigBasket"},
	{"AIRTEL", "Airtel"},
	{"JIO", "Jio"},
	{"YOUTUBE", "YouTube"},
	{"GOOGLE", "Google"},
	{"APPLE", "Apple"},
}

// MerchantExtractor finds the counterparty of a transaction.
type MerchantExtractor struct{}

// Extract returns a cleaned merchant name or false when no template matches.
func (MerchantExtractor) Extract(body, _ string) (string, bool) {
	if IsATMWithdrawal(body) {
		return ATMWithdrawalMerchant, true
	}
	for _, p := range merchantPatterns {
		for _, m := range p.FindAllStringSubmatch(body, -1) {
			name := CleanMerchantName(m[1])
			if validMerchantName(name) {
				return name, true
			}
		}
	}
	return "", false
}

// IsATMWithdrawal reports cash withdrawal phrasing.
func IsATMWithdrawal(body string) bool {
	lower := strings.ToLower(body)
	return containsAny(lower, "withdrawn", "withdrawal") && containsAny(lower, "atm", "cash")
}

// CleanMerchantName normalises a raw capture into a display name.
func CleanMerchantName(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "@"); i >= 0 {
		s = s[:i]
	}
	if len(s) > 4 && strings.EqualFold(s[:4], "VPA ") {
		s = s[4:]
	}
	s = trailingDate.ReplaceAllString(s, "")
	s = trailingDigits.ReplaceAllString(s, "")
	s = strings.Trim(multiSpace.ReplaceAllString(s, " "), " .-_")
	if s == "" {
		return ""
	}

	words := strings.Fields(s)
	kept := words[:0]
	for _, w := range words {
		if _, ok := companySuffixes[strings.ToUpper(strings.Trim(w, "."))]; ok {
			continue
		}
		kept = append(kept, w)
	}
	if len(kept) == 0 {
		return ""
	}
	if len(kept) > 3 {
		kept = kept[:3]
	}

	upper := strings.ToUpper(strings.Join(kept, " "))
	for _, bm := range brandMappings {
		if len(bm.key) >= 5 && strings.Contains(upper, bm.key) {
			return bm.name
		}
		for _, w := range kept {
			if strings.ToUpper(w) == bm.key {
				return bm.name
			}
		}
	}

	for i, w := range kept {
		kept[i] = titleWord(w)
	}
	return strings.Join(kept, " ")
}

func validMerchantName(name string) bool {
	if len(name) < 2 {
		return false
	}
	first := strings.ToLower(strings.Fields(name)[0])
	if _, stop := merchantStopWords[first]; stop {
		return false
	}
	return !maskedNumber.MatchString(strings.ReplaceAll(name, " ", ""))
}

// titleWord keeps short acronyms and upper-cases the first letter of everything else.
func titleWord(w string) string {
	if len(w) <= 3 && strings.ToUpper(w) == w {
		return w
	}
	r := []rune(strings.ToLower(w))
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
