package bookmeta

import (
	"strconv"
	"strings"
	"time"
)

// Shared canonicalization helpers. Every provider mapper funnels its
// date and identifier heuristics through these so the rules live in one
// place instead of being repeated per adapter.

// NormalizeISBN strips hyphens and spaces from an ISBN.
func NormalizeISBN(isbn string) string {
	normalized := strings.ReplaceAll(isbn, "-", "")
	normalized = strings.ReplaceAll(normalized, " ", "")
	return normalized
}

// ExtractYear pulls a four-digit publish year out of a free-form date
// string ("1988-03-01", "March 1988", "2008"). The first four-digit run
// that parses within [1000, currentYear+1] wins; anything else yields
// nil.
func ExtractYear(date string) *int {
	date = strings.TrimSpace(date)
	for i := 0; i+4 <= len(date); i++ {
		year, err := strconv.Atoi(date[i : i+4])
		if err != nil {
			continue
		}
		if year < 1000 || year > time.Now().Year()+1 {
			continue
		}
		return &year
	}
	return nil
}

// PreferISBN13 picks the best ISBN from the candidates a provider
// payload offers: ISBN-13 when present, otherwise ISBN-10, normalized.
// Returns nil when neither is usable.
func PreferISBN13(isbn13, isbn10 string) *string {
	if v := NormalizeISBN(isbn13); v != "" {
		return &v
	}
	if v := NormalizeISBN(isbn10); v != "" {
		return &v
	}
	return nil
}

// FirstNonEmpty returns the first non-empty string, for picking among
// provider-specific nested cover URL fields.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
