package parser

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrNoContent     = errors.New("no extractable content")
	ErrFieldNotFound = errors.New("field not found")
	ErrUnparsableNum = errors.New("unparsable numeric field")
)

// currencyCodes maps symbols and codes seen in rendered prices to ISO
// codes. Unknown tokens fall through as-is when they look like a code.
var currencyCodes = map[string]string{
	"$":   "USD",
	"€":   "EUR",
	"£":   "GBP",
	"MAD": "MAD",
	"USD": "USD",
	"EUR": "EUR",
	"GBP": "GBP",
}

var priceRe = regexp.MustCompile(`(?i)([€$£]|MAD|USD|EUR|GBP)\s*([\d\s.,\x{202f}\x{00a0}]+)|([\d\s.,\x{202f}\x{00a0}]+)\s*([€$£]|MAD|USD|EUR|GBP)`)

// ParsePrice parses a rendered price like "MAD 2,283", "€1.234,56" or
// "1 234 MAD" into a currency code and amount. Both comma and period
// decimal conventions are handled; a failure returns ErrUnparsableNum
// so callers downgrade the field instead of dropping the record.
func ParsePrice(text string) (string, float64, error) {
	m := priceRe.FindStringSubmatch(text)
	if m == nil {
		return "", 0, ErrFieldNotFound
	}

	symbol, number := m[1], m[2]
	if symbol == "" {
		number, symbol = m[3], m[4]
	}

	currency, ok := currencyCodes[strings.ToUpper(symbol)]
	if !ok {
		currency = strings.ToUpper(symbol)
	}

	amount, err := parseLocalizedNumber(number)
	if err != nil {
		return "", 0, err
	}

	return currency, amount, nil
}

// parseLocalizedNumber normalizes grouping/decimal separators across
// the locales the site renders: "2,283", "1.234,56", "1 234.50".
func parseLocalizedNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == ' ' || r == ' ' {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return 0, ErrUnparsableNum
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			// European: dot groups, comma decimal.
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		digitsAfter := len(s) - lastComma - 1
		if digitsAfter == 3 {
			// Grouping comma: "2,283".
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastDot >= 0:
		digitsAfter := len(s) - lastDot - 1
		if digitsAfter == 3 && strings.Count(s, ".") == 1 && lastDot > 0 && len(s) > 4 {
			// Ambiguous "1.234" is treated as grouping, matching how the
			// site renders whole-unit nightly rates.
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, ErrUnparsableNum
	}
	return v, nil
}

var ratingRe = regexp.MustCompile(`(?i)rated\s*(\d+(?:\.\d+)?)\s*out of\s*5`)

// ParseRating extracts a 0..5 rating from an aria-label such as
// "Rated 4.8 out of 5 stars".
func ParseRating(ariaLabel string) (float64, error) {
	m := ratingRe.FindStringSubmatch(ariaLabel)
	if m == nil {
		return 0, ErrFieldNotFound
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, ErrUnparsableNum
	}
	return v, nil
}

var (
	roomIDRe = regexp.MustCompile(`/rooms/(\d+)`)
	userIDRe = regexp.MustCompile(`/users/(?:show/)?(\d+)`)
)

// ListingIDFromURL pulls the site-assigned listing ID out of a room URL.
func ListingIDFromURL(url string) (string, bool) {
	m := roomIDRe.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// UserIDFromURL pulls the site-assigned host ID out of a profile URL.
func UserIDFromURL(url string) (string, bool) {
	m := userIDRe.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func nilIfEmpty(s string) *string {
	s = cleanText(s)
	if s == "" {
		return nil
	}
	return &s
}
