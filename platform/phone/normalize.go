// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "IN"

// matchKeyLen is the number of trailing digits two numbers must share to be
// considered the same subscriber. The heuristic tolerates country-code
// prefixes and punctuation; it assumes no two distinct leads collide on
// their last 10 digits.
const matchKeyLen = 10

// Digits strips every non-digit character from the input.
func Digits(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MatchKey returns the last 10 digits of the normalized number. Numbers with
// fewer than 10 digits are too short to match confidently; ok is false and
// callers must treat that as "no match possible", not as an error.
func MatchKey(input string) (string, bool) {
	digits := Digits(input)
	if len(digits) < matchKeyLen {
		return "", false
	}
	return digits[len(digits)-matchKeyLen:], true
}

// SameSubscriber reports whether two raw numbers resolve to the same match key.
func SameSubscriber(a, b string) bool {
	ka, ok := MatchKey(a)
	if !ok {
		return false
	}
	kb, ok := MatchKey(b)
	if !ok {
		return false
	}
	return ka == kb
}

// NormalizeE164 formats a phone number to E.164. If parsing fails, it returns the trimmed input.
func NormalizeE164(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}

	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil {
		return trimmed
	}

	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}
