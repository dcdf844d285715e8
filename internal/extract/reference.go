package extract

import (
	"regexp"
	"strings"
)

// Labeled forms first so "VPA: x@y" beats an unrelated handle earlier in the text.
var upiPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)UPI\s*ID\s*:?\s*([a-zA-Z0-9.\-_]+@[a-zA-Z0-9]+)`),
	regexp.MustCompile(`(?i)VPA\s*:?\s*([a-zA-Z0-9.\-_]+@[a-zA-Z0-9]+)`),
	regexp.MustCompile(`([a-zA-Z0-9.\-_]+@[a-zA-Z0-9]+)`),
}

var referencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:UPI\s*Ref|Ref|Reference|UTR|RRN|Txn)\s*(?:No\.?|Number|#|ID)?\s*[:.]?\s*([A-Z0-9]*[0-9][A-Z0-9]{5,})`),
	regexp.MustCompile(`(?i)\((?:UPI|Ref)\s+([0-9]{6,})\)`),
}

// ReferenceExtractor finds a UPI handle, falling back to a transaction reference number.
type ReferenceExtractor struct{}

// Extract returns the reference or false when the message carries none.
func (ReferenceExtractor) Extract(body, _ string) (string, bool) {
	if id, ok := ExtractUPIID(body); ok {
		return id, true
	}
	return firstSubmatch(referencePatterns, body)
}

// ExtractUPIID returns the first plausible local-part@handle address.
func ExtractUPIID(body string) (string, bool) {
	for _, p := range upiPatterns {
		for _, m := range p.FindAllStringSubmatch(body, -1) {
			if validUPIID(m[1]) {
				return m[1], true
			}
		}
	}
	return "", false
}

func validUPIID(id string) bool {
	return len(id) > 5 && !strings.ContainsAny(id, " \t\r\n")
}
