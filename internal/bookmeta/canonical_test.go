package bookmeta

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeISBN(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"978-0-13-235088-4", "9780132350884"},
		{"978 0 13 235088 4", "9780132350884"},
		{"9780132350884", "9780132350884"},
		{"", ""},
	}

	for _, tt := range tests {
		require.Equal(t, tt.expected, NormalizeISBN(tt.input))
	}
}

func TestExtractYear(t *testing.T) {
	nextYear := time.Now().Year() + 1

	tests := []struct {
		name     string
		input    string
		expected *int
	}{
		{"full date", "1988-03-01", intPtr(1988)},
		{"year only", "2008", intPtr(2008)},
		{"month name", "1991 May", intPtr(1991)},
		{"month first", "March 1988", intPtr(1988)},
		{"day month year", "1 March 1988", intPtr(1988)},
		{"non-numeric", "unknown", nil},
		{"out of range high", "3000", nil},
		{"out of range low", "0999", nil},
		{"empty", "", nil},
		{"too short", "88", nil},
		{"next year allowed", fmt.Sprintf("%d", nextYear), intPtr(nextYear)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractYear(tt.input)
			if tt.expected == nil {
				require.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			require.Equal(t, *tt.expected, *got)
		})
	}
}

func TestPreferISBN13(t *testing.T) {
	got := PreferISBN13("9780134685991", "0134685991")
	require.NotNil(t, got)
	require.Equal(t, "9780134685991", *got)

	got = PreferISBN13("", "0134685991")
	require.NotNil(t, got)
	require.Equal(t, "0134685991", *got)

	require.Nil(t, PreferISBN13("", ""))

	// Hyphenated inputs normalize.
	got = PreferISBN13("978-0-13-468599-1", "")
	require.NotNil(t, got)
	require.Equal(t, "9780134685991", *got)
}

func TestFirstNonEmpty(t *testing.T) {
	require.Equal(t, "b", FirstNonEmpty("", "b", "c"))
	require.Equal(t, "", FirstNonEmpty("", ""))
}

func intPtr(v int) *int { return &v }
