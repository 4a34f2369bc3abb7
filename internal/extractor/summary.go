package extractor

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-extractor/internal/models"
	"github.com/insightdelivered/statement-extractor/internal/money"
)

// Order is the chronological direction transactions appear in a
// statement. Most banks print oldest first; Union Bank prints newest
// first.
type Order int

const (
	OldestFirst Order = iota
	NewestFirst
)

// InferOrder determines statement direction from transaction dates,
// falling back to balance-continuity fit when the whole statement
// covers a single day.
func InferOrder(txns []models.Transaction) Order {
	if len(txns) < 2 {
		return OldestFirst
	}
	first, last := txns[0].Date, txns[len(txns)-1].Date
	if first.After(last) {
		return NewestFirst
	}
	if last.After(first) {
		return OldestFirst
	}
	if continuityBreaks(chronological(txns, OldestFirst)) <= continuityBreaks(chronological(txns, NewestFirst)) {
		return OldestFirst
	}
	return NewestFirst
}

// chronological returns txns ordered oldest first.
func chronological(txns []models.Transaction, order Order) []models.Transaction {
	out := make([]models.Transaction, len(txns))
	if order == OldestFirst {
		copy(out, txns)
		return out
	}
	for i, t := range txns {
		out[len(txns)-1-i] = t
	}
	return out
}

func continuityBreaks(chron []models.Transaction) int {
	breaks := 0
	for i := 1; i < len(chron); i++ {
		want := chron[i-1].Balance.Add(chron[i].SignedAmount())
		if !money.WithinTolerance(want, chron[i].Balance, money.Tolerance) {
			breaks++
		}
	}
	return breaks
}

// ComputeSummary derives the financial aggregate purely from the
// transaction list. The opening balance is reconstructed from the
// oldest transaction (its balance minus its own effect), so the
// identities closing = opening + net and net = credits − debits hold by
// construction whenever the statement itself is consistent.
func ComputeSummary(txns []models.Transaction) models.FinancialSummary {
	if len(txns) == 0 {
		return models.FinancialSummary{}
	}

	chron := chronological(txns, InferOrder(txns))
	oldest := chron[0]
	opening := oldest.Balance.Sub(oldest.SignedAmount())
	closing := chron[len(chron)-1].Balance

	totalCredits := decimal.Zero
	totalDebits := decimal.Zero
	for _, t := range chron {
		switch t.Type {
		case models.TypeCredit:
			totalCredits = totalCredits.Add(t.Amount)
		case models.TypeDebit:
			totalDebits = totalDebits.Add(t.Amount)
		}
	}

	return models.FinancialSummary{
		OpeningBalance:   opening,
		ClosingBalance:   closing,
		TotalCredits:     totalCredits,
		TotalDebits:      totalDebits,
		NetChange:        totalCredits.Sub(totalDebits),
		TransactionCount: len(txns),
	}
}

// ValidateBalances checks running-balance continuity in chronological
// order and returns one warning per break. Breaks never fail an
// extraction; statements occasionally contain bank-side rounding
// artifacts.
func ValidateBalances(txns []models.Transaction) []string {
	chron := chronological(txns, InferOrder(txns))
	var warnings []string
	for i := 1; i < len(chron); i++ {
		want := chron[i-1].Balance.Add(chron[i].SignedAmount())
		if !money.WithinTolerance(want, chron[i].Balance, money.Tolerance) {
			warnings = append(warnings, fmt.Sprintf(
				"balance discontinuity at transaction %d (%s): balance %s, expected %s",
				chron[i].SerialNo, money.FormatDate(chron[i].Date),
				money.FormatAmount(chron[i].Balance), money.FormatAmount(want)))
		}
	}
	return warnings
}
