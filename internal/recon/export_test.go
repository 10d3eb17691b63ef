package recon

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/khata-erp/khata-erp/internal/engine"
)

func TestWriteReportCSV(t *testing.T) {
	report := Report{
		GeneratedAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		Summary: engine.Reconciliation{
			TotalPayable:      1234567.5,
			TotalPaid:         1000000,
			CreditNotesAmount: 5000,
			DebitNotesAmount:  2000,
			AdjustedPayable:   1231567.5,
			Unreconciled:      231567.5,
		},
		Rows: []ReportRow{
			{BillNumber: "BILL-2026-000001", Vendor: "Acme Traders", GrandTotal: 1234567.5,
				TDSAmount: 12345.68, SettledAmount: 1000000, RemainingAmount: 217221.82,
				Status: engine.StatusPartiallyPaid},
		},
	}

	var buf bytes.Buffer
	if err := WriteReportCSV(&buf, report); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	out := buf.String()

	// Indian digit grouping: 12,34,567.50 rather than 1,234,567.50.
	if !strings.Contains(out, "12,34,567.50") {
		t.Fatalf("expected en-IN grouping in output:\n%s", out)
	}
	if !strings.Contains(out, "Total Payable") {
		t.Fatalf("missing summary block:\n%s", out)
	}
	if !strings.Contains(out, "BILL-2026-000001,Acme Traders") {
		t.Fatalf("missing bill row:\n%s", out)
	}
	if !strings.Contains(out, "PARTIALLY_PAID") {
		t.Fatalf("missing status column:\n%s", out)
	}
}

func TestFormatAmountGrouping(t *testing.T) {
	cases := map[float64]string{
		0:          "0.00",
		999:        "999.00",
		1000:       "1,000.00",
		100000:     "1,00,000.00",
		10000000:   "1,00,00,000.00",
		-250000.75: "-2,50,000.75",
	}
	for in, want := range cases {
		if got := formatAmount(in); got != want {
			t.Fatalf("formatAmount(%v) = %q want %q", in, got, want)
		}
	}
}
