package extractor

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-extractor/internal/models"
	"github.com/insightdelivered/statement-extractor/internal/money"
)

// Common patterns found in Indian bank statements.
var (
	// DD-MM-YYYY
	datePatternDash = regexp.MustCompile(`\b(\d{1,2}-\d{1,2}-\d{4})\b`)
	// DD/MM/YYYY
	datePatternSlash = regexp.MustCompile(`\b(\d{1,2}/\d{1,2}/\d{4})\b`)
	// DD-Mon-YYYY (e.g., 15-Jan-2024)
	datePatternMon = regexp.MustCompile(`(?i)\b(\d{1,2}-(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*-\d{4})\b`)
	// Amount with optional Indian digit grouping: 1,23,456.78 or 1234.56
	amountPattern = regexp.MustCompile(`\d{1,3}(?:,\d{2,3})*\.\d{1,2}\b`)
	// IFSC codes (four letters, zero, six alphanumerics)
	ifscPattern = regexp.MustCompile(`\b([A-Z]{4}0[A-Z0-9]{6})\b`)
	// Indian account numbers run 9-18 digits
	accountNumberPattern = regexp.MustCompile(`\b(\d{9,18})\b`)

	multiSpace = regexp.MustCompile(`\s+`)
)

// startsWithDate checks if a line begins with a date token. Used by the
// default continuation rule: lines without one belong to the previous
// transaction's remarks.
func startsWithDate(line string) bool {
	line = strings.TrimSpace(line)
	for _, p := range []*regexp.Regexp{datePatternDash, datePatternSlash, datePatternMon} {
		if loc := p.FindStringIndex(line); loc != nil && loc[0] < 3 {
			return true
		}
	}
	return false
}

// leadingDate returns the date token at the start of a line, or "".
func leadingDate(line string) string {
	line = strings.TrimSpace(line)
	for _, p := range []*regexp.Regexp{datePatternDash, datePatternSlash, datePatternMon} {
		if loc := p.FindStringIndex(line); loc != nil && loc[0] < 3 {
			return line[loc[0]:loc[1]]
		}
	}
	return ""
}

// findAmounts returns every amount-shaped token in a line, in order.
func findAmounts(line string) []string {
	return amountPattern.FindAllString(line, -1)
}

func findIFSC(text string) string {
	return ifscPattern.FindString(text)
}

func findAccountNumber(text string) string {
	return accountNumberPattern.FindString(text)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// collapseSpaces folds runs of whitespace into single spaces.
func collapseSpaces(s string) string {
	return strings.TrimSpace(multiSpace.ReplaceAllString(s, " "))
}

// classifyByBalance decides transaction direction from balance
// movement: if prev − amount lands on the new balance it was a debit,
// if prev + amount lands there it was a credit. Returns false when
// neither fits within tolerance.
func classifyByBalance(amount, balance, prevBalance decimal.Decimal) (models.TransactionType, bool) {
	switch {
	case money.WithinTolerance(prevBalance.Sub(amount), balance, money.Tolerance):
		return models.TypeDebit, true
	case money.WithinTolerance(prevBalance.Add(amount), balance, money.Tolerance):
		return models.TypeCredit, true
	}
	return "", false
}

// splitLines breaks page text into trimmed lines, dropping empties.
func splitLines(page string) []string {
	raw := strings.Split(page, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if t := strings.TrimSpace(l); t != "" {
			lines = append(lines, t)
		}
	}
	return lines
}
