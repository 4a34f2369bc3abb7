package extractor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-extractor/internal/models"
	"github.com/insightdelivered/statement-extractor/internal/money"
)

// CanaraExtractor handles Canara Bank statement PDFs.
//
// Canara statements spread one transaction across several physical
// lines:
//
//	15-01-2024 UPI/DR/400123456789/PAYEE NAME
//	/UPI/payment remark
//	Chq: -
//	1,234.56 56,789.01
//
// The block runs from the leading DD-MM-YYYY date to the "Chq:" marker;
// the line after the marker carries the amount followed by the running
// balance. A "/DR/" channel token in the block marks a debit.
type CanaraExtractor struct{}

func NewCanara() *CanaraExtractor { return &CanaraExtractor{} }

func init() {
	Register(models.BankCanara, func() Extractor { return NewCanara() })
}

func (e *CanaraExtractor) BankName() string { return "Canara Bank" }
func (e *CanaraExtractor) Version() string  { return "1.2.0" }

func (e *CanaraExtractor) Capabilities() []models.Capability {
	return append(models.StandardCapabilities(), models.CapMultiLineTransactions)
}

var (
	canaraTxnStart      = regexp.MustCompile(`^\d{2}-\d{2}-\d{4}\b`)
	canaraStatementLine = regexp.MustCompile(`Statement for A/c\s+(\d+)`)
	canaraPeriodLine    = regexp.MustCompile(`between\s+(\d{1,2}-[A-Za-z]{3}-\d{4})\s+and\s+(\d{1,2}-[A-Za-z]{3}-\d{4})`)
	canaraOpeningLine   = regexp.MustCompile(`Opening Balance\s+([\d,]+\.?\d*)`)
	canaraCustomerID    = regexp.MustCompile(`Customer Id\s+(\d+)`)
	canaraName          = regexp.MustCompile(`^Name\s+(.+)`)
	canaraPhone         = regexp.MustCompile(`Phone\s+(\+?\d+)`)
	canaraBranchCode    = regexp.MustCompile(`Branch Code\s+(\d+)`)
	canaraBranchName    = regexp.MustCompile(`Branch Name\s+(.+)`)
	canaraIFSC          = regexp.MustCompile(`IFSC Code\s+([A-Z0-9]+)`)
)

var (
	canaraDateLayouts   = []string{"2-1-2006"}
	canaraPeriodLayouts = []string{"2-Jan-2006"}
)

// canaraHeaderKeywords mark column-header lines inside the transaction
// table that must not be mistaken for rows.
var canaraHeaderKeywords = []string{"Particulars", "Deposits", "Withdrawals", "Chq Number"}

func (e *CanaraExtractor) ExtractStatement(pages []string, _ string) (*models.StatementResult, error) {
	if len(pages) == 0 {
		return nil, Errorf(CodeFormatMismatch, "statement contains no pages")
	}

	res := &models.StatementResult{Metadata: e.extractMetadata(pages[0])}

	opening, hasOpening := e.openingBalance(pages[0])
	prev, hasPrev := opening, hasOpening

	serial := 0
	for pageIdx, page := range pages {
		pageNum := pageIdx + 1
		lines := splitLines(page)

		for i := 0; i < len(lines); i++ {
			line := lines[i]
			if strings.HasPrefix(line, "Opening Balance") || containsAny(line, canaraHeaderKeywords) {
				continue
			}
			if !canaraTxnStart.MatchString(line) {
				continue
			}

			block, amountsLine, next := canaraCombine(lines, i)
			txn, err := e.parseBlock(block, amountsLine, pageNum, serial+1, prev, hasPrev)
			if err != nil {
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("page %d: skipped row %q: %v", pageNum, truncate(block, 40), err))
			} else {
				serial++
				res.Transactions = append(res.Transactions, txn)
				prev, hasPrev = txn.Balance, true
			}
			i = next - 1
		}
	}

	if len(res.Transactions) == 0 {
		if !e.looksLikeCanara(pages) {
			return nil, Errorf(CodeFormatMismatch,
				"statement text does not match the Canara Bank layout; verify bank selection")
		}
		return nil, Errorf(CodeNoTransactions, "no transactions found in statement")
	}

	res.Summary = ComputeSummary(res.Transactions)
	if hasOpening && !money.WithinTolerance(opening, res.Summary.OpeningBalance, money.Tolerance) {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"printed opening balance %s disagrees with derived %s",
			money.FormatAmount(opening), money.FormatAmount(res.Summary.OpeningBalance)))
	}
	res.Warnings = append(res.Warnings, ValidateBalances(res.Transactions)...)

	return res, nil
}

func (e *CanaraExtractor) looksLikeCanara(pages []string) bool {
	for _, page := range pages {
		if strings.Contains(page, "Statement for A/c") || canaraTxnStart.MatchString(page) {
			return true
		}
		if strings.Contains(strings.ToLower(page), "canara bank") {
			return true
		}
	}
	return false
}

// canaraCombine gathers the block for one transaction starting at
// lines[start]. The block ends at a "Chq:" marker, whose following line
// carries the amounts, or at the next dated row for malformed blocks.
// Returns the joined block, the amounts line ("" when missing) and the
// index to resume scanning from.
func canaraCombine(lines []string, start int) (block, amountsLine string, next int) {
	var parts []string
	i := start
	for i < len(lines) {
		line := lines[i]
		if i > start && canaraTxnStart.MatchString(line) {
			return strings.Join(parts, " "), "", i
		}
		parts = append(parts, line)
		if strings.HasPrefix(line, "Chq:") {
			if i+1 < len(lines) {
				amountsLine = lines[i+1]
			}
			return strings.Join(parts, " "), amountsLine, i + 2
		}
		i++
	}
	return strings.Join(parts, " "), "", i
}

func (e *CanaraExtractor) parseBlock(block, amountsLine string, pageNum, serial int, prev decimal.Decimal, hasPrev bool) (models.Transaction, error) {
	words := strings.Fields(block)
	if len(words) == 0 {
		return models.Transaction{}, fmt.Errorf("empty block")
	}

	date, err := money.ParseDate(words[0], canaraDateLayouts)
	if err != nil {
		return models.Transaction{}, err
	}

	if amountsLine == "" {
		return models.Transaction{}, fmt.Errorf("no amounts line after block")
	}
	numbers := findAmounts(amountsLine)
	if len(numbers) == 0 {
		return models.Transaction{}, fmt.Errorf("no amounts in %q", amountsLine)
	}

	var amount, balance decimal.Decimal
	if len(numbers) >= 2 {
		if amount, err = money.ParseAmount(numbers[0]); err != nil {
			return models.Transaction{}, err
		}
		if balance, err = money.ParseAmount(numbers[1]); err != nil {
			return models.Transaction{}, err
		}
	} else {
		// Single number is a balance-only row (carried forward).
		amount = decimal.Zero
		if balance, err = money.ParseAmount(numbers[0]); err != nil {
			return models.Transaction{}, err
		}
	}

	txType := e.classify(block, amount, balance, prev, hasPrev)

	remarks := collapseSpaces(strings.TrimPrefix(block, words[0]))
	if idx := strings.Index(remarks, "Chq:"); idx >= 0 {
		chq := strings.TrimSpace(remarks[idx+len("Chq:"):])
		remarks = strings.TrimSpace(remarks[:idx])
		// Placeholder cheque numbers are noise; real ones stay.
		if chq != "" && chq != "-" {
			remarks += " Chq: " + chq
		}
	}

	return models.Transaction{
		SerialNo: serial,
		Date:     date,
		Remarks:  remarks,
		Amount:   amount,
		Balance:  balance,
		Type:     txType,
		Page:     pageNum,
	}, nil
}

// classify prefers the explicit channel token; statements without one
// fall back to balance movement, then to the bank's default of credit.
func (e *CanaraExtractor) classify(block string, amount, balance, prev decimal.Decimal, hasPrev bool) models.TransactionType {
	switch {
	case strings.Contains(block, "/DR/"):
		return models.TypeDebit
	case strings.Contains(block, "/CR/"):
		return models.TypeCredit
	}
	if hasPrev {
		if t, ok := classifyByBalance(amount, balance, prev); ok {
			return t
		}
	}
	return models.TypeCredit
}

func (e *CanaraExtractor) openingBalance(firstPage string) (decimal.Decimal, bool) {
	for _, line := range splitLines(firstPage) {
		m := canaraOpeningLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if bal, err := money.ParseAmount(m[1]); err == nil {
			return bal, true
		}
	}
	return decimal.Zero, false
}

func (e *CanaraExtractor) extractMetadata(firstPage string) models.StatementMetadata {
	md := models.StatementMetadata{
		BankName: e.BankName(),
		Currency: "INR",
	}

	lines := splitLines(firstPage)
	for i, line := range lines {
		if m := canaraStatementLine.FindStringSubmatch(line); m != nil {
			md.AccountNumber = m[1]
		}
		if m := canaraPeriodLine.FindStringSubmatch(line); m != nil {
			if from, err := money.ParseDate(m[1], canaraPeriodLayouts); err == nil {
				md.Period.FromDate = money.FormatDate(from)
			}
			if to, err := money.ParseDate(m[2], canaraPeriodLayouts); err == nil {
				md.Period.ToDate = money.FormatDate(to)
			}
		}
		if m := canaraCustomerID.FindStringSubmatch(line); m != nil {
			md.CustomerCIFID = m[1]
		}
		if m := canaraName.FindStringSubmatch(line); m != nil && md.CustomerName == "" {
			md.CustomerName = strings.TrimSpace(m[1])
		}
		if m := canaraPhone.FindStringSubmatch(line); m != nil {
			md.MobileNumber = m[1]
		}
		if m := canaraBranchCode.FindStringSubmatch(line); m != nil {
			md.BranchCode = m[1]
		}
		if m := canaraBranchName.FindStringSubmatch(line); m != nil {
			md.HomeBranch = strings.TrimSpace(m[1])
		}
		if m := canaraIFSC.FindStringSubmatch(line); m != nil {
			md.IFSCCode = m[1]
		}
		if strings.HasPrefix(line, "Address") {
			md.Address = canaraAddress(lines, i)
		}
	}
	return md
}

// canaraAddress joins the address label line with up to three
// continuation lines, stopping at the next labelled field.
func canaraAddress(lines []string, start int) string {
	stop := []string{"Branch Code", "Branch Name", "IFSC", "Date"}
	var parts []string
	if rest := strings.TrimSpace(strings.TrimPrefix(lines[start], "Address")); rest != "" {
		parts = append(parts, rest)
	}
	for j := start + 1; j < len(lines) && j <= start+3; j++ {
		if containsAny(lines[j], stop) {
			break
		}
		parts = append(parts, lines[j])
	}
	return strings.Join(parts, " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
