// Package assembler runs the extraction pipeline end to end: decrypt
// and read the PDF, resolve the bank's extractor, extract, then
// recompute the financial summary from the transactions themselves.
// The recomputed summary is authoritative; an extractor's own numbers
// only ever add a warning.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/insightdelivered/statement-extractor/internal/extractor"
	"github.com/insightdelivered/statement-extractor/internal/metrics"
	"github.com/insightdelivered/statement-extractor/internal/models"
	"github.com/insightdelivered/statement-extractor/internal/money"
	"github.com/insightdelivered/statement-extractor/internal/pdftext"
)

type Assembler struct {
	resolver *extractor.Resolver
	logger   *slog.Logger
	now      func() time.Time
}

func New(resolver *extractor.Resolver, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		resolver: resolver,
		logger:   logger,
		now:      time.Now,
	}
}

// Process extracts a complete statement from pdfData. An empty bankID
// triggers detection from the statement text. Failures carry a typed
// extractor code; transaction data never comes back partial.
func (a *Assembler) Process(ctx context.Context, pdfData []byte, bankID models.BankID, password string) (*models.StandardResponse, error) {
	start := a.now()
	resp, err := a.process(ctx, pdfData, bankID, password)

	outcome := "success"
	if err != nil {
		outcome = string(extractor.CodeOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	metrics.ExtractionsTotal.WithLabelValues(string(bankID), outcome).Inc()
	metrics.ExtractionDuration.WithLabelValues(string(bankID)).Observe(time.Since(start).Seconds())
	return resp, err
}

func (a *Assembler) process(ctx context.Context, pdfData []byte, bankID models.BankID, password string) (*models.StandardResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pages, err := pdftext.ExtractPages(pdfData, password)
	if err != nil {
		return nil, mapPDFError(err)
	}

	if bankID == "" {
		bankID, err = extractor.DetectBank(pages)
		if err != nil {
			return nil, err
		}
		a.logger.Info("bank detected from statement text", "bank", bankID)
	}

	ext, err := a.resolver.Resolve(bankID)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := ext.ExtractStatement(pages, password)
	if err != nil {
		return nil, err
	}

	warnings := append([]string(nil), result.Warnings...)
	summary := extractor.ComputeSummary(result.Transactions)
	if w := summaryDisagreement(result.Summary, summary); w != "" {
		a.logger.Warn("extractor summary disagrees with recomputation",
			"bank", bankID, "detail", w)
		warnings = append(warnings, w)
	}

	for _, w := range warnings {
		a.logger.Warn("statement warning", "bank", bankID, "warning", w)
	}
	a.logger.Info("statement extracted",
		"bank", bankID,
		"pages", len(pages),
		"transactions", len(result.Transactions),
		"warnings", len(warnings))

	return &models.StandardResponse{
		TotalTransactions: len(result.Transactions),
		ProcessedAt:       a.now().Format(time.RFC3339),
		Metadata:          result.Metadata,
		Summary:           summary,
		Transactions:      result.Transactions,
		Warnings:          warnings,
	}, nil
}

func mapPDFError(err error) error {
	switch {
	case errors.Is(err, pdftext.ErrPasswordRequired):
		return extractor.WrapErr(extractor.CodePasswordRequired, err,
			"statement is password-protected; supply a password")
	case errors.Is(err, pdftext.ErrWrongPassword):
		return extractor.WrapErr(extractor.CodeWrongPassword, err,
			"statement password is incorrect")
	default:
		return extractor.WrapErr(extractor.CodeFormatMismatch, err,
			"statement text could not be extracted")
	}
}

// summaryDisagreement compares an extractor-reported summary against
// the recomputed one. A zero-value reported summary means the
// extractor left the computation to us and is not a disagreement.
func summaryDisagreement(reported, computed models.FinancialSummary) string {
	if reported.TransactionCount == 0 && reported.OpeningBalance.IsZero() &&
		reported.ClosingBalance.IsZero() {
		return ""
	}
	if reported.TransactionCount != computed.TransactionCount {
		return fmt.Sprintf("extractor reported %d transactions, recomputed %d",
			reported.TransactionCount, computed.TransactionCount)
	}
	if !money.WithinTolerance(reported.OpeningBalance, computed.OpeningBalance, money.Tolerance) {
		return fmt.Sprintf("extractor reported opening balance %s, recomputed %s",
			money.FormatAmount(reported.OpeningBalance), money.FormatAmount(computed.OpeningBalance))
	}
	if !money.WithinTolerance(reported.ClosingBalance, computed.ClosingBalance, money.Tolerance) {
		return fmt.Sprintf("extractor reported closing balance %s, recomputed %s",
			money.FormatAmount(reported.ClosingBalance), money.FormatAmount(computed.ClosingBalance))
	}
	if !money.WithinTolerance(reported.TotalCredits, computed.TotalCredits, money.Tolerance) {
		return fmt.Sprintf("extractor reported total credits %s, recomputed %s",
			money.FormatAmount(reported.TotalCredits), money.FormatAmount(computed.TotalCredits))
	}
	if !money.WithinTolerance(reported.TotalDebits, computed.TotalDebits, money.Tolerance) {
		return fmt.Sprintf("extractor reported total debits %s, recomputed %s",
			money.FormatAmount(reported.TotalDebits), money.FormatAmount(computed.TotalDebits))
	}
	return ""
}
