// Package core holds the order model and the field normalizers shared by
// the parser and the aggregation code.
//
// This file converts the raw amount, quantity and date cells of an export
// into typed values. None of the normalizers fail a row except
// ParseOrderDate: amounts and quantities degrade to zero.
package core

import (
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

var ErrInvalidDate = errors.New("invalid date")

// amountNoise is removed from amount cells before numeric parsing. Exports
// sometimes wrap negatives in single quotes ("'-5.77'").
var amountNoise = strings.NewReplacer(",", "", "'", "", `"`, "")

// CleanAmount strips currency symbols, currency codes, thousands separators
// and quoting artifacts from an amount cell. Codes are only removed at the
// edges ("12.18 USD", "USD 12.18").
func CleanAmount(s string) string {
	s = amountNoise.Replace(s)
	s = strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Sc, r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsLetter(r)
	})
}

// ParseAmount converts an amount cell to a signed decimal.
//
// The result is zero when the cleaned value is not a number; refunds keep
// their sign.
//
// Examples:
//
//	ParseAmount("12.18")     -> 12.18
//	ParseAmount("'-5.77'")   -> -5.77
//	ParseAmount("$1,234.56") -> 1234.56
//	ParseAmount("12.18 USD") -> 12.18
//	ParseAmount("n/a")       -> 0
func ParseAmount(s string) decimal.Decimal {
	clean := CleanAmount(s)
	if clean == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseQuantity converts a quantity cell to a non-negative integer using its
// leading integer, so "2.0" is 2 and "3 pcs" is 3. Missing, non-numeric and
// negative values become 0.
func ParseQuantity(s string) int64 {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// dateLayouts are tried in order. Layouts without a zone are interpreted in
// the caller's location.
var dateLayouts = []struct {
	layout string
	zoned  bool
}{
	{time.RFC3339Nano, true},
	{"2006-01-02T15:04:05Z0700", true},
	{"2006-01-02 15:04:05Z07:00", true},
	{"2006-01-02T15:04:05Z07", true},
	{"2006-01-02T15:04Z07:00", true},
	{"2006-01-02T15:04:05.999999999", false},
	{"2006-01-02 15:04:05.999999999", false},
	{"2006-01-02T15:04", false},
	{"2006-01-02", false},
}

// ParseOrderDate parses an ISO 8601 date or date-time. The result is always
// expressed in loc (UTC when loc is nil).
func ParseOrderDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}
	for _, l := range dateLayouts {
		if l.zoned {
			if t, err := time.Parse(l.layout, s); err == nil {
				return t.In(loc), nil
			}
			continue
		}
		if t, err := time.ParseInLocation(l.layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidDate
}
