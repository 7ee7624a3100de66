package statement

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"bank-reconciliation-backend/internal/models"
)

// DateFormats are tried in order; the first that parses wins.
var DateFormats = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"02-01-2006",
	"2006/01/02",
	"02 Jan 2006",
	time.RFC3339,
}

// ParseDate parses raw against DateFormats and returns the calendar date at
// midnight UTC.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range DateFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return models.DateOnly(t), true
		}
	}
	return time.Time{}, false
}

// ParseAmount accepts thousands separators, currency symbols or codes, a
// leading sign, and parentheses for negatives. Either '.' or ',' may be the
// decimal separator: when both appear the last one is decimal, and a lone
// comma followed by one or two digits is decimal.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsDigit(r), r == '.', r == ',':
			b.WriteRune(r)
		case r == '-':
			negative = !negative
		}
	}
	cleaned, ok := normalizeSeparators(b.String())
	if !ok || cleaned == "" {
		return decimal.Zero, fmt.Errorf("invalid amount %q", raw)
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", raw)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// normalizeSeparators rewrites s so that '.' is the only separator and marks
// the decimal point. It reports false when the separators are ambiguous.
func normalizeSeparators(s string) (string, bool) {
	commas := strings.Count(s, ",")
	dots := strings.Count(s, ".")
	lastComma := strings.LastIndexByte(s, ',')
	lastDot := strings.LastIndexByte(s, '.')

	switch {
	case commas == 0:
		return s, true
	case dots > 0 && lastComma > lastDot:
		if commas > 1 {
			return "", false
		}
		return joinDecimal(s[:lastComma], '.', s[lastComma+1:])
	case dots > 0:
		if dots > 1 {
			return "", false
		}
		return joinDecimal(s[:lastDot], ',', s[lastDot+1:])
	case commas == 1 && len(s)-lastComma-1 <= 2:
		return joinDecimal(s[:lastComma], 0, s[lastComma+1:])
	default:
		return stripGroups(s, ',')
	}
}

// joinDecimal strips the thousands separator sep from the integer part and
// joins it to frac with a '.'.
func joinDecimal(whole string, sep byte, frac string) (string, bool) {
	if frac == "" {
		return "", false
	}
	if sep != 0 && strings.IndexByte(whole, sep) >= 0 {
		var ok bool
		if whole, ok = stripGroups(whole, sep); !ok {
			return "", false
		}
	}
	if whole == "" {
		whole = "0"
	}
	return whole + "." + frac, true
}

// stripGroups removes sep from s when it splits s into digit groups: a
// leading group of one to three, a final group of three, and groups of two
// or three between them (lakh grouping).
func stripGroups(s string, sep byte) (string, bool) {
	groups := strings.Split(s, string(sep))
	if n := len(groups[0]); n == 0 || n > 3 {
		return "", false
	}
	last := len(groups) - 1
	for i, g := range groups[1:] {
		n := len(g)
		if n == 3 || (n == 2 && i+1 < last) {
			continue
		}
		return "", false
	}
	return strings.Join(groups, ""), true
}
