package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/insightdelivered/statement-extractor/internal/metrics"
	"github.com/insightdelivered/statement-extractor/internal/models"
)

const sheetName = "Bank Statement"

var excelHeaders = []string{"Txn Date", "Value Date", "Description", "Debit", "Credit", "Balance"}

// WriteExcel writes the statement as a styled workbook: bold grey
// header row, debits in red, credits in green, amount columns
// right-aligned.
func WriteExcel(out io.Writer, resp *models.StandardResponse) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	rightAlign, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "right"},
	})
	if err != nil {
		return fmt.Errorf("align style: %w", err)
	}
	debitStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Color: "FF0000"},
		Alignment: &excelize.Alignment{Horizontal: "right"},
	})
	if err != nil {
		return fmt.Errorf("debit style: %w", err)
	}
	creditStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Color: "008000"},
		Alignment: &excelize.Alignment{Horizontal: "right"},
	})
	if err != nil {
		return fmt.Errorf("credit style: %w", err)
	}

	for col, header := range excelHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	rows := buildRows(resp)
	widths := headerWidths()
	for i, r := range rows {
		rowNum := i + 2
		values := []string{r.TxnDate, r.ValueDate, r.Description, r.Debit, r.Credit, r.Balance}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, rowNum)
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return fmt.Errorf("write row %d: %w", rowNum, err)
			}
			if len(v) > widths[col] {
				widths[col] = len(v)
			}
		}

		debitCell, _ := excelize.CoordinatesToCellName(4, rowNum)
		creditCell, _ := excelize.CoordinatesToCellName(5, rowNum)
		balanceCell, _ := excelize.CoordinatesToCellName(6, rowNum)
		if r.Debit != "" {
			f.SetCellStyle(sheetName, debitCell, debitCell, debitStyle)
		} else {
			f.SetCellStyle(sheetName, debitCell, debitCell, rightAlign)
		}
		if r.Credit != "" {
			f.SetCellStyle(sheetName, creditCell, creditCell, creditStyle)
		} else {
			f.SetCellStyle(sheetName, creditCell, creditCell, rightAlign)
		}
		f.SetCellStyle(sheetName, balanceCell, balanceCell, rightAlign)
	}

	for col, w := range widths {
		name, _ := excelize.ColumnNumberToName(col + 1)
		width := float64(w + 2)
		if width < 10 {
			width = 10
		}
		if width > 50 {
			width = 50
		}
		f.SetColWidth(sheetName, name, name, width)
	}

	if err := f.Write(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	metrics.ExportsTotal.WithLabelValues("excel").Inc()
	return nil
}

func headerWidths() []int {
	widths := make([]int, len(excelHeaders))
	for i, h := range excelHeaders {
		widths[i] = len(h)
	}
	return widths
}
