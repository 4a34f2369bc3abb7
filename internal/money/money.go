// Package money normalizes the amount and date strings found in Indian
// bank statements into exact decimals and calendar dates. All monetary
// math in this codebase goes through decimal.Decimal; float64 is never
// used for money.
package money

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the emission format for every date in output records.
const DateLayout = "02-01-2006"

// Tolerance is the rounding slack allowed when comparing balances.
// Statements occasionally carry bank-side rounding artifacts of a paisa.
var Tolerance = decimal.New(1, -2) // 0.01

var (
	leadingDrCr  = regexp.MustCompile(`(?i)^\(?(dr|cr)\.?\)?\s+`)
	trailingDrCr = regexp.MustCompile(`(?i)\s*\(?(dr|cr)\.?\)?$`)

	// Longer symbols first so "Rs." wins over "Rs".
	currencyStripper = strings.NewReplacer(
		"INR", "", "Rs.", "", "Rs", "", "₹", "", "£", "", "$", "", "€", "",
	)
	separatorStripper = strings.NewReplacer(",", "", " ", "", " ", "")
)

// ParseAmount converts a statement amount string into an exact decimal.
// It strips currency symbols, thousands separators and Dr/Cr markers,
// and treats a parenthesized amount as negative. Anything left over that
// is not a plain number is an error.
func ParseAmount(s string) (decimal.Decimal, error) {
	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("parse amount: empty input")
	}

	s = leadingDrCr.ReplaceAllString(s, "")
	s = trailingDrCr.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = currencyStripper.Replace(s)
	s = separatorStripper.Replace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("parse amount %q: no numeric residue", orig)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", orig, err)
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}

// ParseDate tries each layout in order and returns the first match.
// Layouts use unpadded day/month elements ("2/1/2006") so both padded
// and unpadded statement dates parse.
func ParseDate(s string, layouts []string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("parse date: empty input")
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse date %q: no known format matched", s)
}

// FormatAmount renders a decimal as a fixed two-place string for output
// records ("1234.50", "-200.00").
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// FormatDate renders a date as DD-MM-YYYY for output records.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// WithinTolerance reports whether a and b differ by at most tol.
func WithinTolerance(a, b, tol decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tol)
}
