package recon

import (
	"encoding/csv"
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Amounts in the CSV use Indian digit grouping (12,34,567.89), matching
// how the figures read on the source documents.
var enIN = message.NewPrinter(language.MustParse("en-IN"))

func formatAmount(v float64) string {
	return enIN.Sprintf("%.2f", v)
}

// WriteReportCSV serialises the reconciliation report: the summary block
// first, then one row per bill.
func WriteReportCSV(w io.Writer, report Report) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Metric", "Value"}); err != nil {
		return err
	}
	summary := [][]string{
		{"Total Payable", formatAmount(report.Summary.TotalPayable)},
		{"Total Paid", formatAmount(report.Summary.TotalPaid)},
		{"Credit Notes", formatAmount(report.Summary.CreditNotesAmount)},
		{"Debit Notes", formatAmount(report.Summary.DebitNotesAmount)},
		{"Adjusted Payable", formatAmount(report.Summary.AdjustedPayable)},
		{"Unreconciled", formatAmount(report.Summary.Unreconciled)},
	}
	for _, record := range summary {
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	if err := writer.Write([]string{}); err != nil {
		return err
	}
	if err := writer.Write([]string{"Bill Number", "Vendor", "Grand Total", "TDS", "Settled", "Remaining", "Status"}); err != nil {
		return err
	}
	for _, row := range report.Rows {
		if err := writer.Write([]string{
			row.BillNumber,
			row.Vendor,
			formatAmount(row.GrandTotal),
			formatAmount(row.TDSAmount),
			formatAmount(row.SettledAmount),
			formatAmount(row.RemainingAmount),
			string(row.Status),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
