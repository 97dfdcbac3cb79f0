package writer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/insightdelivered/card-statement-ledger/internal/models"
)

// Header is the ledger CSV column order.
var Header = []string{"Date", "Card", "Source", "Description", "Type", "Amount", "Category", "Subcategory"}

// CSVWriter writes ledger transactions to CSV format.
type CSVWriter struct {
	// IncludeHeader writes the column header row first.
	IncludeHeader bool
}

// WriteToFile writes transactions to a CSV file at the given path.
func (w *CSVWriter) WriteToFile(path string, txns []models.Transaction) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %q: %w", path, err)
	}

	if err := w.Write(f, txns); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Write writes transactions in CSV format to the given writer. Dates are
// ISO formatted and amounts signed with two decimals.
func (w *CSVWriter) Write(out io.Writer, txns []models.Transaction) error {
	writer := csv.NewWriter(out)

	if w.IncludeHeader {
		if err := writer.Write(Header); err != nil {
			return fmt.Errorf("failed to write CSV header: %w", err)
		}
	}

	for _, txn := range txns {
		row := []string{
			txn.Date.Format("2006-01-02"),
			txn.Card,
			txn.SourceFile,
			txn.Description,
			txn.Type,
			txn.Amount.StringFixed(2),
			txn.Category,
			txn.Subcategory,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}
