package util

import "strings"

// DefaultCountryCode is used when a number arrives without an international
// prefix. Overridable via config; the default matches the primary market.
const DefaultCountryCode = "55"

// NormalizePhone reduces a destination to canonical international form:
// country-code-prefixed digits only. Local-length numbers (10-11 digits,
// area code + subscriber) get the country code prepended, so "11987654321"
// and "5511987654321" normalize to the same destination.
func NormalizePhone(p, countryCode string) string {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	var b strings.Builder
	for _, r := range p {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	if len(digits) <= 11 && !strings.HasPrefix(digits, countryCode) {
		return countryCode + digits
	}
	return digits
}
