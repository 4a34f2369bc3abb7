// Package export renders extraction results as downloadable CSV and
// Excel files. Both formats share the same six-column layout with the
// debit and credit sides split into separate columns.
package export

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/insightdelivered/statement-extractor/internal/models"
	"github.com/insightdelivered/statement-extractor/internal/money"
)

// Row is one exported transaction. The statements carry a single
// date, so the transaction and value date columns repeat it.
type Row struct {
	TxnDate     string `csv:"Txn Date"`
	ValueDate   string `csv:"Value Date"`
	Description string `csv:"Description"`
	Debit       string `csv:"Debit"`
	Credit      string `csv:"Credit"`
	Balance     string `csv:"Balance"`
}

func buildRows(resp *models.StandardResponse) []Row {
	rows := make([]Row, 0, len(resp.Transactions))
	for _, t := range resp.Transactions {
		date := money.FormatDate(t.Date)
		r := Row{
			TxnDate:     date,
			ValueDate:   date,
			Description: t.Remarks,
			Balance:     money.FormatAmount(t.Balance),
		}
		switch t.Type {
		case models.TypeDebit:
			r.Debit = money.FormatAmount(t.Amount)
		case models.TypeCredit:
			r.Credit = money.FormatAmount(t.Amount)
		}
		rows = append(rows, r)
	}
	return rows
}

var (
	bankNameStrip = regexp.MustCompile(`[^\w\s-]`)
	bankNameSpace = regexp.MustCompile(`\s+`)
)

// Filename builds a download name like
// Canara_Bank_Statement_AC_1234_2024-04-01_to_2025-03-31.csv,
// falling back to the job id when metadata is missing.
func Filename(md models.StatementMetadata, jobID, ext string) string {
	bank := strings.TrimSpace(bankNameStrip.ReplaceAllString(md.BankName, ""))
	bank = bankNameSpace.ReplaceAllString(bank, "_")
	if bank == "" {
		return fmt.Sprintf("bank_statement_%s.%s", jobID, ext)
	}

	dateRange := time.Now().Format("2006-01-02")
	if md.Period.FromDate != "" && md.Period.ToDate != "" {
		dateRange = fmt.Sprintf("%s_to_%s",
			filenameDate(md.Period.FromDate), filenameDate(md.Period.ToDate))
	}

	if acc := md.AccountNumber; acc != "" {
		if len(acc) > 4 {
			acc = acc[len(acc)-4:]
		}
		return fmt.Sprintf("%s_Statement_AC_%s_%s.%s", bank, acc, dateRange, ext)
	}
	return fmt.Sprintf("%s_Statement_%s.%s", bank, dateRange, ext)
}

func filenameDate(s string) string {
	t, err := money.ParseDate(s, []string{"2-1-2006"})
	if err != nil {
		return strings.ReplaceAll(s, "/", "-")
	}
	return t.Format("2006-01-02")
}
