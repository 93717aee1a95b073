package transform

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// SlugifyInstitution converts an institution identifier to a path-safe slug.
// Examples: "American Express" → "american-express", "30004" → "30004"
func SlugifyInstitution(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("institution name cannot be empty")
	}

	// Strip accents
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	normalized, _, err := transform.String(t, name)
	if err != nil {
		return "", fmt.Errorf("failed to normalize institution name %q: %w", name, err)
	}

	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(normalized), "-"), "-")
	if slug == "" {
		return "", fmt.Errorf("institution name %q contains no alphanumeric characters", name)
	}
	return slug, nil
}

// MaskAccountNumber keeps the last 4 characters of an account number for
// logs. Examples: "123456789" → "*****6789", "123" → "123"
func MaskAccountNumber(accountNumber string) string {
	if len(accountNumber) <= 4 {
		return accountNumber
	}
	return strings.Repeat("*", len(accountNumber)-4) + accountNumber[len(accountNumber)-4:]
}
