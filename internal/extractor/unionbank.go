package extractor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/insightdelivered/statement-extractor/internal/models"
	"github.com/insightdelivered/statement-extractor/internal/money"
)

// UnionBankExtractor handles Union Bank of India statement PDFs.
//
// Union Bank rows carry the bank's own serial number, the date and a
// transaction id, then free-text remarks, then the amount and running
// balance each tagged with (Dr) or (Cr):
//
//	42 15/1/2024 S88012345 UPI/P2P/400123/GROCERY MART 250.00 (Dr) 12,345.67 (Cr)
//
// Long remarks wrap onto following lines; a row is complete once two
// tagged amounts are present. Statements list newest transactions
// first, so the opening balance derives from the last row.
type UnionBankExtractor struct{}

func NewUnionBank() *UnionBankExtractor { return &UnionBankExtractor{} }

func init() {
	Register(models.BankUnionBank, func() Extractor { return NewUnionBank() })
}

func (e *UnionBankExtractor) BankName() string { return "Union Bank of India" }
func (e *UnionBankExtractor) Version() string  { return "2.1.0" }

func (e *UnionBankExtractor) Capabilities() []models.Capability {
	return append(models.StandardCapabilities(), models.CapMultiLineTransactions)
}

var (
	unionRowStart   = regexp.MustCompile(`^(\d+)\s+(\d{1,2}/\d{1,2}/\d{4})\s+([A-Z0-9]+)`)
	unionAmountTag  = regexp.MustCompile(`([\d,]+\.?\d*)\s*\((Dr|Cr)\)`)
	unionName       = regexp.MustCompile(`Name\s+([A-Z\s]+?)\s+Customer/CIF`)
	unionCIF        = regexp.MustCompile(`Customer/CIF ID\s+(\d+)`)
	unionAccountNum = regexp.MustCompile(`Account Number\s+(\d+)`)
	unionAcctType   = regexp.MustCompile(`Account Type\s+([A-Za-z\s]+)`)
	unionIFSC       = regexp.MustCompile(`IFSC\s+([A-Z0-9]+)`)
	unionMobile     = regexp.MustCompile(`Mobile No\s+(\d+)`)
	unionBranch     = regexp.MustCompile(`Home branch\s+([A-Z\s]+)`)
	unionPeriodFull = regexp.MustCompile(`(\d{1,2}/\d{1,2}/\d{4})\s+To\s+(\d{1,2}/\d{1,2}/\d{4})`)
	unionPeriodPart = regexp.MustCompile(`(\d{1,2}/\d{1,2}/\d{4})\s+To\s+(\d{1,2}/\d{1,2})\b`)
	unionYear       = regexp.MustCompile(`/(\d{4})`)
	unionBareYear   = regexp.MustCompile(`\b(\d{4})\b`)
)

var unionDateLayouts = []string{"2/1/2006"}

func (e *UnionBankExtractor) ExtractStatement(pages []string, _ string) (*models.StatementResult, error) {
	if len(pages) == 0 {
		return nil, Errorf(CodeFormatMismatch, "statement contains no pages")
	}

	res := &models.StatementResult{Metadata: e.extractMetadata(pages[0])}

	for pageIdx, page := range pages {
		pageNum := pageIdx + 1
		lines := splitLines(page)

		for i := 0; i < len(lines); i++ {
			line := lines[i]
			if strings.Contains(line, "S.No") && strings.Contains(line, "Date") &&
				strings.Contains(line, "Transaction Id") {
				continue
			}
			if !unionRowStart.MatchString(line) {
				continue
			}

			combined, next := unionCombine(lines, i)
			txn, err := e.parseRow(combined, pageNum)
			if err != nil {
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("page %d: skipped row %q: %v", pageNum, truncate(combined, 40), err))
				i = next - 1
				continue
			}
			res.Transactions = append(res.Transactions, txn)
			i = next - 1
		}
	}

	if len(res.Transactions) == 0 {
		if !e.looksLikeUnion(pages) {
			return nil, Errorf(CodeFormatMismatch,
				"statement text does not match the Union Bank layout; verify bank selection")
		}
		return nil, Errorf(CodeNoTransactions, "no transactions found in statement")
	}

	res.Summary = ComputeSummary(res.Transactions)
	res.Warnings = append(res.Warnings, ValidateBalances(res.Transactions)...)

	return res, nil
}

func (e *UnionBankExtractor) looksLikeUnion(pages []string) bool {
	for _, page := range pages {
		lower := strings.ToLower(page)
		if strings.Contains(lower, "union bank") || strings.Contains(lower, "ubin0") {
			return true
		}
		if strings.Contains(page, "S.No") && strings.Contains(page, "Transaction Id") {
			return true
		}
	}
	return false
}

// unionCombine appends continuation lines until the row holds two
// tagged amounts (amount and balance) or the next row begins.
func unionCombine(lines []string, start int) (combined string, next int) {
	combined = lines[start]
	j := start + 1
	for j < len(lines) && len(unionAmountTag.FindAllString(combined, -1)) < 2 {
		if unionRowStart.MatchString(lines[j]) {
			break
		}
		combined += " " + lines[j]
		j++
	}
	return combined, j
}

func (e *UnionBankExtractor) parseRow(line string, pageNum int) (models.Transaction, error) {
	head := unionRowStart.FindStringSubmatch(line)
	if head == nil {
		return models.Transaction{}, fmt.Errorf("row head did not match")
	}
	serial, _ := strconv.Atoi(head[1])

	date, err := money.ParseDate(head[2], unionDateLayouts)
	if err != nil {
		return models.Transaction{}, err
	}
	txnID := head[3]

	tags := unionAmountTag.FindAllStringSubmatchIndex(line, -1)
	if len(tags) < 2 {
		return models.Transaction{}, fmt.Errorf("expected amount and balance markers, found %d", len(tags))
	}

	first, last := tags[0], tags[len(tags)-1]
	amount, err := money.ParseAmount(line[first[2]:first[3]])
	if err != nil {
		return models.Transaction{}, err
	}
	balance, err := money.ParseAmount(line[last[2]:last[3]])
	if err != nil {
		return models.Transaction{}, err
	}

	txType := models.TypeCredit
	if line[first[4]:first[5]] == "Dr" {
		txType = models.TypeDebit
	}
	// A (Dr) balance is an overdraft.
	if line[last[4]:last[5]] == "Dr" {
		balance = balance.Neg()
	}

	// Remarks sit between the transaction id and the first tagged amount.
	remarksStart := strings.Index(line, txnID) + len(txnID)
	remarks := collapseSpaces(line[remarksStart:first[0]])

	return models.Transaction{
		SerialNo: serial,
		Date:     date,
		TxnID:    txnID,
		Remarks:  remarks,
		Amount:   amount,
		Balance:  balance,
		Type:     txType,
		Page:     pageNum,
	}, nil
}

func (e *UnionBankExtractor) extractMetadata(firstPage string) models.StatementMetadata {
	md := models.StatementMetadata{
		BankName: e.BankName(),
		Currency: "INR",
	}

	lines := splitLines(firstPage)
	for i, line := range lines {
		if m := unionName.FindStringSubmatch(line); m != nil {
			md.CustomerName = collapseSpaces(m[1])
		}
		if m := unionCIF.FindStringSubmatch(line); m != nil {
			md.CustomerCIFID = m[1]
		}
		if m := unionAccountNum.FindStringSubmatch(line); m != nil {
			md.AccountNumber = m[1]
		}
		if m := unionAcctType.FindStringSubmatch(line); m != nil {
			md.AccountType = collapseSpaces(m[1])
		}
		if m := unionIFSC.FindStringSubmatch(line); m != nil && md.IFSCCode == "" {
			md.IFSCCode = m[1]
		}
		if m := unionMobile.FindStringSubmatch(line); m != nil {
			md.MobileNumber = m[1]
		}
		if m := unionBranch.FindStringSubmatch(line); m != nil {
			md.HomeBranch = collapseSpaces(m[1])
		}
		if md.Period.FromDate == "" {
			e.extractPeriod(lines, i, &md)
		}
	}
	return md
}

// extractPeriod handles both the full "01/04/2024 To 31/03/2025" form
// and the truncated "01/04/2024 To 31/03" form whose year wrapped onto
// the surrounding text.
func (e *UnionBankExtractor) extractPeriod(lines []string, i int, md *models.StatementMetadata) {
	line := lines[i]
	if m := unionPeriodFull.FindStringSubmatch(line); m != nil {
		md.Period.FromDate = unionFormatPeriodDate(m[1])
		md.Period.ToDate = unionFormatPeriodDate(m[2])
		return
	}
	m := unionPeriodPart.FindStringSubmatch(line)
	if m == nil {
		return
	}
	from := m[1]
	partial := m[2]

	rest := line[strings.Index(line, partial)+len(partial):]
	year := ""
	if ym := unionYear.FindStringSubmatch(rest); ym != nil {
		year = ym[1]
	} else if i+1 < len(lines) {
		if ym := unionBareYear.FindStringSubmatch(lines[i+1]); ym != nil {
			year = ym[1]
		}
	}
	if year == "" {
		// Fall back to the from-date's year.
		parts := strings.Split(from, "/")
		year = parts[len(parts)-1]
	}
	md.Period.FromDate = unionFormatPeriodDate(from)
	md.Period.ToDate = unionFormatPeriodDate(partial + "/" + year)
}

func unionFormatPeriodDate(s string) string {
	t, err := money.ParseDate(s, unionDateLayouts)
	if err != nil {
		return s
	}
	return money.FormatDate(t)
}
