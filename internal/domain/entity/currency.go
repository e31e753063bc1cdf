package entity

import (
	"strings"
)

// NormalizeCode trims and upper-cases a currency code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsCurrencyCode reports whether code is three upper-case ASCII letters
func IsCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}

// PairKey builds the FROM_TO key used to index historical series
func PairKey(from, to string) string {
	return from + "_" + to
}

// SplitPairKey is the inverse of PairKey
func SplitPairKey(key string) (string, string, bool) {
	from, to, ok := strings.Cut(key, "_")
	if !ok || !IsCurrencyCode(from) || !IsCurrencyCode(to) {
		return "", "", false
	}
	return from, to, true
}
