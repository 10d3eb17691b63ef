package engine

// DocumentTotals aggregates line-item figures to the document level.
type DocumentTotals struct {
	Subtotal          float64 `json:"subtotal"`
	TotalDiscount     float64 `json:"totalDiscount"`
	TotalTaxableValue float64 `json:"totalTaxableValue"`
	TotalCGST         float64 `json:"totalCgst"`
	TotalSGST         float64 `json:"totalSgst"`
	TotalIGST         float64 `json:"totalIgst"`
	TotalCESS         float64 `json:"totalCess"`
	TotalTax          float64 `json:"totalTax"`
	GrandTotal        float64 `json:"grandTotal"`
}

// ComputeDocumentTotals recomputes every item and sums the derived fields.
// Totals are never maintained incrementally; any add/remove/edit of an item
// goes through a full recomputation so stored totals cannot drift from the
// lines they summarise.
func ComputeDocumentTotals(items []LineItem) DocumentTotals {
	var t DocumentTotals
	for _, raw := range items {
		item := ComputeItemTotals(raw)
		t.Subtotal += item.GrossAmount
		t.TotalDiscount += item.DiscountAmount
		t.TotalTaxableValue += item.TaxableValue
		t.TotalCGST += item.CGSTAmount
		t.TotalSGST += item.SGSTAmount
		t.TotalIGST += item.IGSTAmount
		t.TotalCESS += item.CESSAmount
	}
	t.TotalTax = t.TotalCGST + t.TotalSGST + t.TotalIGST + t.TotalCESS
	t.GrandTotal = t.TotalTaxableValue + t.TotalTax
	return t
}

// ComputeTDS returns the TDS amount withheld on a document. TDS applies to
// the taxable/service value, not the tax-inclusive grand total, so the base
// is TotalTaxableValue. Re-run whenever the taxable value or the selected
// TDS section's percentage changes.
func ComputeTDS(totals DocumentTotals, tdsPercentage float64) float64 {
	return totals.TotalTaxableValue * clamp(tdsPercentage) / 100
}
