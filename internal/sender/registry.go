// Package sender classifies the originating address of an alert.
package sender

import (
	"regexp"
	"strings"
)

// Classification is the registry's verdict for a sender id.
type Classification int

const (
	// Unknown senders have never been seen; the gate refuses them.
	Unknown Classification = iota
	// KnownInstitution is a bank, card issuer or payment provider.
	KnownInstitution
	// Excluded senders are known to quote amounts in non-financial messages.
	Excluded
)

func (c Classification) String() string {
	switch c {
	case KnownInstitution:
		return "known_institution"
	case Excluded:
		return "excluded"
	default:
		return "unknown"
	}
}

// institutionSenders are registered sender ids of banks and payment banks.
var institutionSenders = []string{
	// commercial banks
	"HDFCBK", "ICICIT", "SBIBNK", "AXISBK", "KOTAKB", "PNBSMS",
	"IDBIBK", "YESBK", "INDUSB", "SCBANK", "HSBCIN", "CITIBK",
	"RBLBNK", "BOIIND", "UNIONB", "CANBNK", "IOBCHN", "BOBBSR",
	"CENTBK", "UCOBNK", "PSBBNK", "OBCBNK", "CORPBK", "ANDBMB",
	"SYNDBK", "VIJBNK", "DENABN", "ALBBNK", "MSHBNK", "KVBLNK",
	"AXISB", "AXISHR", "AXISIN", "AXISMR", "AXISPR", "AXISSR", "AXSFI", "AXSFIN",
	"HDFCB", "HDFCBN", "HDFC",
	"SBISMS", "SBIMSG", "CBSSBI", "ATMSBI", "SBIACC", "SBIINB", "SBICRD", "SBIPSG", "ONLSBI", "STBANK",
	"ICICIB", "ICICIS", "ICICIM", "ICICI",
	"KOTMSG", "KOTBNK", "KOTAKM",
	// small finance banks
	"AUBANK", "AUBMSG", "AUBSMS", "AUDOST", "AUITSM",
	"EQBANK", "EQUITS", "EQSMSG",
	"UJJIVN", "UJJSFB",
	"SURBNK", "SURSMS",
	"FINSFB", "FINCRE",
	"UTKARB", "UTKBNK",
	"ESAFBN", "ESAFSB",
	"JNLBFL", "JANASB",
	"NBFCAP", "CAPITAL",
	// payment banks
	"PPBLNK", "PAYTMB", "AIRBPB", "FINOPB", "JIOPPB", "NSDLPB",
	// brokers, registrars and bill-payment platforms that confirm debits
	"ZERODH", "GROWWI", "UPSTOX", "KFINTK", "CAMSMF", "CREDIN", "BBPSBP",
	"BNDNBK", "BNDNHL",
	// regional rural banks
	"APGBBK", "APGBHO", "APGBIT", "APGBNK", "APGECM",
	"KGBBNK", "KKBBNK", "PKGBNK", "BGBBNK", "MGBBNK",
	"TGBBNK", "DGBBNK", "CGBBNK",
	"KERBGB", "KGRBNK",
	"TNSCBK", "PSCBNK",
	// cooperative banks
	"PMCBNK", "MUCBNK", "SVCBNK", "COSBNK", "TJSBNK", "KARADB",
	"BHARAT", "SARBNK", "DCCBNK", "GSCBNK", "NAGRIK", "JSBBNK",
	// foreign banks
	"DBSBNK", "BOFAAS", "JPBANK", "DEUTBN", "BNYBNK", "ABNABN", "RBSBNK", "SOCGEN", "BNPBNK",
	// private banks
	"FEDBNK", "FEDSMS", "TMBNET", "TMBBNK", "KVBANK", "KVBNET", "LAKSVI", "LVBANK",
	"CITYUB", "CITYUN", "DHANBN", "DHANBK", "JKBANK", "JKBSMS", "NAINBN", "NAINIB",
	"SOUTHB", "SOUTHI", "CSBBNK", "CSBNET", "DCBANK", "DCBSMS",
	"ANDBNK", "BHRDBK", "BSCBNK", "CCBANK", "CORPBN", "IDFCFB", "INDBNK",
	"OBCBMB", "PNJBMB", "SYNBMB", "UCOBMB", "VJYBMB", "ALBMBN", "MSHBMB", "KVBLMB",
}

// excludedSenders quote amounts in offers, tickets and bills that are not transactions.
var excludedSenders = []string{
	// telecom
	"AIRTEL", "VODAFONE", "JIOINF", "BSNLIN", "MTSNLI", "AIRTLM",
	// e-commerce
	"AMAZON", "FLIPKART", "MYNTRA", "SNAPDEAL", "AJIOAX", "MEESHO",
	// travel
	"REDBUS", "MAKEMT", "GOIBIB", "IRCTCS", "OLACAB", "UBERIN",
	// food delivery
	"SWIGGY", "ZOMATO", "DOMINOS", "PIZZAH", "KFCIND", "MCDIND",
	// media and directories
	"JUSTDL", "POLICYX", "TIMESJ", "NDTVPR",
}

// carrierPrefixed captures the header of ids such as "AD-HDFCBK" or "AX-HDFCBK-S".
var carrierPrefixed = regexp.MustCompile(`^[A-Z]{2}-([A-Z0-9]+)(?:-[A-Z])?$`)

type rule struct {
	name    string
	pattern *regexp.Regexp
	class   Classification
}

// Registry is an immutable sender table. The zero value is not usable; use New or Default.
type Registry struct {
	institutions map[string]struct{}
	excluded     map[string]struct{}
	rules        []rule
}

// New builds a registry from the built-in tables.
func New() *Registry {
	r := &Registry{
		institutions: toSet(institutionSenders),
		excluded:     toSet(excludedSenders),
	}
	r.rules = []rule{
		{
			name:    "carrier-prefixed major bank",
			pattern: regexp.MustCompile(`^[A-Z]{2}-(HDFCBK|HDFCB|HDFC|ICICIT|ICICIB|SBIBNK|SBISMS|AXISBK|AXISB|KOTAKB|KOTMSG|PNBSMS|YESBK|INDUSB|SCBANK|HSBCIN|CITIBK|RBLBNK)`),
			class:   KnownInstitution,
		},
		{
			name:    "carrier-prefixed public sector bank",
			pattern: regexp.MustCompile(`^[A-Z]{2}-(BOIIND|UNIONB|CANBNK|IOBCHN|BOBBSR|CENTBK|UCOBNK|PSBBNK|OBCBNK|CORPBK)`),
			class:   KnownInstitution,
		},
		{
			name:    "carrier-prefixed private bank",
			pattern: regexp.MustCompile(`^[A-Z]{2}-(FEDBNK|TMBNET|KVBANK|LAKSVI|CITYUB|DHANBN|JKBANK|NAINBN|SOUTHB|CSBBNK|DCBANK)`),
			class:   KnownInstitution,
		},
		{
			name:    "carrier-prefixed small finance bank",
			pattern: regexp.MustCompile(`^[A-Z]{2}-(AUBANK|EQBANK|UJJIVN|SURBNK|FINSFB|UTKARB|ESAFBN|JNLBFL|NBFCAP)`),
			class:   KnownInstitution,
		},
		{
			name:    "brand suffix",
			pattern: regexp.MustCompile(`-(HDFCBK|ICICIT|SBIBNK|AXISBK|KOTAKB|HDFC|ICICI|SBI|AXIS|KOTAK)`),
			class:   KnownInstitution,
		},
		{
			name:    "payment app",
			pattern: regexp.MustCompile(`^(PAYTM|PHONPE|PHONEPE|GPAY|BHIM|BHIMUPI|PYTM|PHONEPE-S)$`),
			class:   KnownInstitution,
		},
	}
	return r
}

var defaultRegistry = New()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// Classify reports whether senderID belongs to a known institution, an
// excluded non-financial sender, or neither.
func (r *Registry) Classify(senderID string) Classification {
	id := strings.ToUpper(strings.TrimSpace(senderID))
	if id == "" {
		return Unknown
	}

	if _, ok := r.institutions[id]; ok {
		return KnownInstitution
	}
	if _, ok := r.excluded[id]; ok {
		return Excluded
	}

	// Carrier-prefixed variants of any listed header resolve like the bare header.
	if m := carrierPrefixed.FindStringSubmatch(id); m != nil {
		if _, ok := r.excluded[m[1]]; ok {
			return Excluded
		}
		if _, ok := r.institutions[m[1]]; ok {
			return KnownInstitution
		}
	}

	for _, rl := range r.rules {
		if rl.pattern.MatchString(id) {
			return rl.class
		}
	}
	return Unknown
}

// Classify uses the default registry.
func Classify(senderID string) Classification {
	return defaultRegistry.Classify(senderID)
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
