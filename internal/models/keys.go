package models

import (
	"strings"
)

// MinReferenceKeyLength is the shortest payment reference considered usable
const MinReferenceKeyLength = 3

// DocumentKey extracts the digits of a document identifier and strips leading zeros.
// An identifier without digits yields the empty key.
func DocumentKey(raw string) string {
	return strings.TrimLeft(digitsOnly(raw), "0")
}

// DualDocumentKey joins the digits of a policy number and its rider number.
// The key is empty whenever the policy part has no digits.
func DualDocumentKey(policy, rider string) string {
	policyDigits := digitsOnly(policy)
	if policyDigits == "" {
		return ""
	}
	return strings.TrimLeft(policyDigits+digitsOnly(rider), "0")
}

// DualDisplayNumber renders a policy and rider pair for reports
func DualDisplayNumber(policy, rider string) string {
	policy = strings.TrimSpace(policy)
	rider = strings.TrimSpace(rider)
	if rider == "" {
		return policy
	}
	return policy + "/" + rider
}

// ReferenceKey normalizes a payment reference: uppercase, only A-Z and 0-9,
// no leading zeros. References shorter than MinReferenceKeyLength are dropped.
func ReferenceKey(raw string) string {
	upper := strings.ToUpper(raw)

	var b strings.Builder
	b.Grow(len(upper))
	for _, c := range upper {
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		}
	}

	key := strings.TrimLeft(b.String(), "0")
	if len(key) < MinReferenceKeyLength {
		return ""
	}
	return key
}

// NormalizeCurrency uppercases and trims a currency code. TL and TRL map to TRY
// and an empty value falls back to the local currency.
func NormalizeCurrency(raw string) string {
	code := strings.ToUpper(strings.TrimSpace(raw))
	switch code {
	case "", "TL", "TRL":
		return LocalCurrency
	}
	return code
}

// IsLocalCurrency reports whether code is the local currency
func IsLocalCurrency(code string) bool {
	return NormalizeCurrency(code) == LocalCurrency
}

func digitsOnly(raw string) string {
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		if c := raw[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}
