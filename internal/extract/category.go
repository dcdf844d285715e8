package extract

import (
	"strings"

	"github.com/dvloznov/alertledger/internal/domain"
)

// Institutional senders whose debits always belong to one category. Bank and
// wallet headers are absent: they carry no category signal.
var senderCategories = map[string]domain.Category{
	"ZERODH": domain.CategoryInvestment,
	"GROWWI": domain.CategoryInvestment,
	"UPSTOX": domain.CategoryInvestment,
	"KFINTK": domain.CategoryInvestment,
	"CAMSMF": domain.CategoryInvestment,
	"CREDIN": domain.CategoryBillsUtilities,
	"BBPSBP": domain.CategoryBillsUtilities,
}

var categoryKeywords = newKeywordTable(map[string][]string{
	string(domain.CategoryFoodDining): {
		"zomato", "swiggy", "restaurant", "cafe", "food", "dining", "pizza", "burger",
		"dominos", "mcdonalds", "kfc", "starbucks", "eatsure", "faasos", "barbeque",
	},
	string(domain.CategoryTransportation): {
		"uber", "ola", "rapido", "metro", "fuel", "petrol", "diesel", "parking", "toll",
		"fastag", "cab", "taxi",
	},
	string(domain.CategoryShopping): {
		"amazon", "flipkart", "myntra", "ajio", "meesho", "nykaa", "shopping", "mall",
		"decathlon", "croma", "store",
	},
	string(domain.CategoryEntertainment): {
		"netflix", "hotstar", "prime video", "spotify", "bookmyshow", "pvr", "inox", "movie",
		"cinema", "youtube", "gaming",
	},
	string(domain.CategoryBillsUtilities): {
		"electricity", "water bill", "gas bill", "broadband", "recharge", "postpaid", "dth",
		"airtel", "jio", "bsnl", "vodafone", "bill payment", "bescom", "tata power",
	},
	string(domain.CategoryHealthcare): {
		"pharmacy", "hospital", "clinic", "medical", "apollo", "medplus", "pharmeasy",
		"netmeds", "doctor", "diagnostic",
	},
	string(domain.CategoryEducation): {
		"school", "college", "university", "tuition", "course", "udemy", "coursera", "unacademy",
	},
	string(domain.CategoryTravel): {
		"makemytrip", "goibibo", "cleartrip", "irctc", "airline", "indigo", "vistara", "hotel",
		"oyo", "airbnb", "flight", "redbus",
	},
	string(domain.CategoryGroceries): {
		"bigbasket", "grofers", "blinkit", "zepto", "dmart", "grocery", "supermarket",
		"instamart", "jiomart",
	},
	string(domain.CategorySubscription): {
		"subscription", "premium", "membership", "renewal", "auto renew",
	},
	string(domain.CategoryInvestment): {
		"mutual fund", "sip", "zerodha", "groww", "upstox", "stocks", "shares", "demat",
		"fixed deposit", "ppf", "nps",
	},
	string(domain.CategoryTransfer): {
		"transfer", "imps", "neft", "rtgs", "sent to", "received from",
	},
})

// CategoryExtractor assigns one category from the closed set.
type CategoryExtractor struct{}

// Extract never fails: messages with no signal fall into OTHER.
func (CategoryExtractor) Extract(body, sender string) (domain.Category, bool) {
	if IsATMWithdrawal(body) {
		return domain.CategoryTransfer, true
	}
	if c, ok := senderCategories[senderHeader(sender)]; ok {
		return c, true
	}
	if label, ok := categoryKeywords.best(body); ok {
		return domain.Category(label), true
	}
	return domain.CategoryOther, true
}

// senderHeader strips a carrier prefix and route suffix: "VM-ZERODH-S" -> "ZERODH".
func senderHeader(sender string) string {
	id := strings.ToUpper(strings.TrimSpace(sender))
	if len(id) > 3 && id[2] == '-' {
		id = id[3:]
	}
	if i := strings.LastIndex(id, "-"); i > 0 && len(id)-i == 2 {
		id = id[:i]
	}
	return id
}
