package extractor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-extractor/internal/models"
	"github.com/insightdelivered/statement-extractor/internal/money"
)

// APGVBExtractor handles Andhra Pradesh Grameena Vikas Bank ledger
// report PDFs.
//
// APGVB rows open with two DD-MM-YYYY dates (GL date and value date)
// followed by the particulars; the amount and the running balance
// (tagged Cr) land either on the same line or up to three lines below:
//
//	01-04-2024 01-04-2024 BY CASH       2,000.00       2,000.00Cr USER456 USER789
//
// The layout carries no explicit debit/credit marker, so the direction
// comes from the balance movement against the previous row.
type APGVBExtractor struct {
	prevBalance *decimal.Decimal
}

func NewAPGVB() *APGVBExtractor { return &APGVBExtractor{} }

func init() {
	Register(models.BankAPGVB, func() Extractor { return NewAPGVB() })
}

func (e *APGVBExtractor) BankName() string { return "Andhra Pradesh Grameena Vikas Bank" }
func (e *APGVBExtractor) Version() string  { return "1.0.0" }

func (e *APGVBExtractor) Capabilities() []models.Capability {
	return models.StandardCapabilities()
}

var (
	apgvbRowStart    = regexp.MustCompile(`^(\d{1,2}-\d{1,2}-\d{4})\s+(\d{1,2}-\d{1,2}-\d{4})\s+(.+)`)
	apgvbBalanceTag  = regexp.MustCompile(`([\d,]+\.?\d*)Cr\b`)
	apgvbNumeric     = regexp.MustCompile(`[\d,]+\.?\d*`)
	apgvbDescAmount  = regexp.MustCompile(`\s+[\d,]+\.?\d*\s`)
	apgvbDescBalance = regexp.MustCompile(`\s+[\d,]+\.?\d*Cr.*$`)
	apgvbAccountNum  = regexp.MustCompile(`Account No\s*:\s*(\d+)`)
	apgvbName        = regexp.MustCompile(`Account No\s*:\s*\d+\s+INR\s+(.+)`)
	apgvbAcctType    = regexp.MustCompile(`\d+\s+(.+)`)
	apgvbBranch      = regexp.MustCompile(`Service OutLet\s*:\s*\d+\s+(.+)`)
	apgvbPeriod      = regexp.MustCompile(`(?:Period\s*:\s*|from\s+)(\d{1,2}-\d{1,2}-\d{4})\s+to\s+(\d{1,2}-\d{1,2}-\d{4})`)
	apgvbOpening     = regexp.MustCompile(`Opening Balance\s*:\s*([\d,]+(?:\.\d+)?)`)
)

var apgvbDateLayouts = []string{"2-1-2006"}

// apgvbHeaderKeywords marks table headers, footers and audit columns.
// Matching runs before row detection, same order the reports print in.
var apgvbHeaderKeywords = []string{
	"GL.", "Date", "Value", "Instrmnt", "Particulars", "Transaction",
	"Debit Amount", "Credit Amount", "Balance", "Entry", "Verified",
	"User Id", "Order by GL. Date", "Page Total", "B/F Balance",
}

func (e *APGVBExtractor) ExtractStatement(pages []string, _ string) (*models.StatementResult, error) {
	if len(pages) == 0 {
		return nil, Errorf(CodeFormatMismatch, "statement contains no pages")
	}

	res := &models.StatementResult{}
	printedOpening := e.extractMetadata(pages, &res.Metadata)
	e.prevBalance = printedOpening

	serial := 0
	for pageIdx, page := range pages {
		pageNum := pageIdx + 1
		lines := strings.Split(page, "\n")

		for i := 0; i < len(lines); i++ {
			line := strings.TrimSpace(lines[i])
			if apgvbSkipLine(line) {
				continue
			}
			row := apgvbRowStart.FindStringSubmatch(line)
			if row == nil {
				continue
			}

			txn, offset, err := e.parseRow(row, lines, i, pageNum)
			if err != nil {
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("page %d: skipped row %q: %v", pageNum, truncate(line, 40), err))
				continue
			}
			serial++
			txn.SerialNo = serial
			res.Transactions = append(res.Transactions, txn)
			i += offset
		}
	}

	if len(res.Transactions) == 0 {
		if !e.looksLikeAPGVB(pages) {
			return nil, Errorf(CodeFormatMismatch,
				"statement text does not match the APGVB ledger layout; verify bank selection")
		}
		return nil, Errorf(CodeNoTransactions, "no transactions found in statement")
	}

	res.Summary = ComputeSummary(res.Transactions)
	if printedOpening != nil && !money.WithinTolerance(res.Summary.OpeningBalance, *printedOpening, money.Tolerance) {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("printed opening balance %s disagrees with computed %s",
				money.FormatAmount(*printedOpening), money.FormatAmount(res.Summary.OpeningBalance)))
	}
	res.Warnings = append(res.Warnings, ValidateBalances(res.Transactions)...)

	return res, nil
}

func apgvbSkipLine(line string) bool {
	if line == "" || strings.HasPrefix(line, "---") || strings.Contains(line, "Page") {
		return true
	}
	return containsAny(line, apgvbHeaderKeywords)
}

func (e *APGVBExtractor) looksLikeAPGVB(pages []string) bool {
	for _, page := range pages {
		lower := strings.ToLower(page)
		if strings.Contains(lower, "andhra pradesh grameena") || strings.Contains(lower, "apgvb") {
			return true
		}
		if strings.Contains(page, "Customer Account Ledger") {
			return true
		}
	}
	return false
}

// parseRow reads the dated row and hunts up to three lines ahead for
// the Cr-tagged balance, then classifies by balance movement.
func (e *APGVBExtractor) parseRow(row []string, lines []string, idx, pageNum int) (models.Transaction, int, error) {
	date, err := money.ParseDate(row[1], apgvbDateLayouts)
	if err != nil {
		return models.Transaction{}, 0, err
	}
	particulars := strings.TrimSpace(row[3])

	amount, balance, offset, err := e.findAmounts(lines, idx)
	if err != nil {
		return models.Transaction{}, 0, err
	}

	txType := models.TypeCredit
	if e.prevBalance != nil && balance.LessThan(*e.prevBalance) {
		txType = models.TypeDebit
	}
	e.prevBalance = &balance

	return models.Transaction{
		Date:    date,
		Remarks: apgvbDescription(particulars),
		Amount:  amount,
		Balance: balance,
		Type:    txType,
		Page:    pageNum,
	}, offset, nil
}

// findAmounts scans the row line and up to three continuation lines
// for the first Cr-tagged balance; the last plain numeric before the
// tag is the transaction amount.
func (e *APGVBExtractor) findAmounts(lines []string, start int) (amount, balance decimal.Decimal, offset int, err error) {
	limit := start + 4
	if limit > len(lines) {
		limit = len(lines)
	}
	for i := start; i < limit; i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "---") {
			continue
		}
		tag := apgvbBalanceTag.FindStringSubmatchIndex(line)
		if tag == nil {
			continue
		}
		balance, err = money.ParseAmount(line[tag[2]:tag[3]])
		if err != nil {
			continue
		}
		nums := apgvbNumeric.FindAllString(line[:tag[0]], -1)
		if len(nums) == 0 {
			continue
		}
		amount, err = money.ParseAmount(nums[len(nums)-1])
		if err != nil {
			continue
		}
		return amount, balance, i - start, nil
	}
	return decimal.Decimal{}, decimal.Decimal{}, 0, fmt.Errorf("no amount and balance within %d lines", limit-start)
}

// apgvbDescription strips trailing amounts, the Cr balance and audit
// user ids from the particulars text.
func apgvbDescription(s string) string {
	if loc := apgvbDescAmount.FindStringIndex(s); loc != nil {
		return strings.TrimSpace(s[:loc[0]])
	}
	return strings.TrimSpace(apgvbDescBalance.ReplaceAllString(s, ""))
}

// extractMetadata walks the first two pages; APGVB spreads the header
// block across a page boundary on longer statements. Returns the
// printed opening balance when the report carries one.
func (e *APGVBExtractor) extractMetadata(pages []string, md *models.StatementMetadata) *decimal.Decimal {
	md.BankName = e.BankName()
	md.Currency = "INR"

	var printedOpening *decimal.Decimal
	combined := pages[0]
	if len(pages) > 1 {
		combined += "\n" + pages[1]
	}

	for _, line := range splitLines(combined) {
		if m := apgvbAccountNum.FindStringSubmatch(line); m != nil && md.AccountNumber == "" {
			md.AccountNumber = m[1]
		}
		if m := apgvbName.FindStringSubmatch(line); m != nil && md.CustomerName == "" {
			md.CustomerName = collapseSpaces(m[1])
		}
		if strings.Contains(line, "CURRENT DEPOSITS") || strings.Contains(line, "SAVINGS") {
			if m := apgvbAcctType.FindStringSubmatch(line); m != nil && md.AccountType == "" {
				md.AccountType = collapseSpaces(m[1])
			}
		}
		if m := apgvbBranch.FindStringSubmatch(line); m != nil && md.HomeBranch == "" {
			md.HomeBranch = collapseSpaces(m[1])
		}
		if md.Period.FromDate == "" {
			if m := apgvbPeriod.FindStringSubmatch(line); m != nil {
				md.Period.FromDate = apgvbFormatPeriodDate(m[1])
				md.Period.ToDate = apgvbFormatPeriodDate(m[2])
			}
		}
		if strings.HasPrefix(line, "Opening Balance") && printedOpening == nil {
			if m := apgvbOpening.FindStringSubmatch(line); m != nil {
				if v, err := money.ParseAmount(m[1]); err == nil {
					printedOpening = &v
				}
			}
		}
	}
	return printedOpening
}

func apgvbFormatPeriodDate(s string) string {
	t, err := money.ParseDate(s, apgvbDateLayouts)
	if err != nil {
		return s
	}
	return money.FormatDate(t)
}
