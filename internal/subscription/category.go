package subscription

import "strings"

// GenericCategory is used when no merchant keyword matches.
const GenericCategory = "Subscriptions"

// Keywords shorter than five letters match whole words only.
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{"Entertainment", []string{"netflix", "spotify", "hotstar", "prime video", "amazon prime", "youtube", "zee5", "sonyliv", "jiocinema", "apple music", "gaana", "wynk", "disney"}},
	{"Utilities", []string{"electricity", "power", "water", "gas", "broadband", "internet", "fibernet", "tata play", "dth", "bescom"}},
	{"Insurance", []string{"insurance", "lic", "policy", "assurance", "hdfc life", "icici pru", "allianz"}},
	{"Health & Fitness", []string{"gym", "fitness", "cult", "healthify", "yoga", "fitpass"}},
	{"Mobile", []string{"airtel", "jio", "vodafone", "vi", "bsnl", "mobile", "postpaid", "recharge"}},
}

// InferCategory guesses a subscription category from the merchant name.
func InferCategory(merchant string) string {
	name := strings.ToLower(strings.TrimSpace(merchant))
	words := strings.FieldsFunc(name, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			if len(kw) >= 5 {
				if strings.Contains(name, kw) {
					return entry.category
				}
				continue
			}
			for _, w := range words {
				if w == kw {
					return entry.category
				}
			}
		}
	}
	return GenericCategory
}
