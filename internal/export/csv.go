package export

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"github.com/insightdelivered/statement-extractor/internal/metrics"
	"github.com/insightdelivered/statement-extractor/internal/models"
)

// WriteCSV writes the statement's transactions as CSV.
func WriteCSV(out io.Writer, resp *models.StandardResponse) error {
	rows := buildRows(resp)
	if err := gocsv.Marshal(&rows, out); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	metrics.ExportsTotal.WithLabelValues("csv").Inc()
	return nil
}
