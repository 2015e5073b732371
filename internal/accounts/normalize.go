package accounts

import (
	"net/mail"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeEmail trims, NFC-normalizes and case-folds an email address.
func NormalizeEmail(email string) string {
	email = norm.NFC.String(strings.TrimSpace(email))
	return cases.Fold().String(email)
}

// ValidEmail reports whether s parses as a bare address.
func ValidEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// NormalizeUsername trims, collapses inner whitespace and drops control characters.
func NormalizeUsername(name string) string {
	t := transform.Chain(norm.NFC, runes.Remove(runes.In(unicode.Cc)))
	result, _, _ := transform.String(t, name)
	return strings.Join(strings.Fields(result), " ")
}
