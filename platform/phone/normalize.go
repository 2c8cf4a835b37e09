// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// NormalizeE164 formats a phone number to E.164 using the given default region.
// Malformed input never fails: when parsing or validation fails the digits of
// the input are returned, or the empty string when it carries no digits.
func NormalizeE164(input string, defaultRegion string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}

	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil {
		return digitsOnly(trimmed)
	}

	if !phonenumbers.IsValidNumber(number) {
		return digitsOnly(trimmed)
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}

func digitsOnly(input string) string {
	var b strings.Builder
	for _, r := range input {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
