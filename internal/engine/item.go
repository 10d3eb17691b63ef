// Package engine implements the pure calculators behind accounts payable:
// line-item GST math, document totals, bill settlement status, aging, and
// reconciliation aggregates. Every function is deterministic and stateless;
// derived figures are recomputed on demand and never persisted as
// independent truth.
package engine

import "math"

// LineItem is one product/service row on a bill or credit/debit note.
// The first block holds raw inputs; everything after is derived and is
// overwritten by ComputeItemTotals on every recomputation.
type LineItem struct {
	Description     string  `json:"description"`
	HSNCode         string  `json:"hsnCode,omitempty"`
	Quantity        float64 `json:"quantity"`
	UnitPrice       float64 `json:"unitPrice"`
	DiscountPercent float64 `json:"discountPercent"`
	CGSTRate        float64 `json:"cgstRate"`
	SGSTRate        float64 `json:"sgstRate"`
	IGSTRate        float64 `json:"igstRate"`
	CESSRate        float64 `json:"cessRate"`

	GrossAmount    float64 `json:"grossAmount"`
	DiscountAmount float64 `json:"discountAmount"`
	TaxableValue   float64 `json:"taxableValue"`
	CGSTAmount     float64 `json:"cgstAmount"`
	SGSTAmount     float64 `json:"sgstAmount"`
	IGSTAmount     float64 `json:"igstAmount"`
	CESSAmount     float64 `json:"cessAmount"`
	TotalAmount    float64 `json:"totalAmount"`
}

// ComputeItemTotals derives all monetary fields of a line item from its raw
// inputs. Negative or NaN inputs are treated as zero rather than rejected;
// input validation is a boundary concern, not a calculator concern. The
// derivation order is fixed: gross, discount, taxable value, the four GST
// components, then the item total. Each intermediate is clamped to be
// non-negative before feeding the next step.
func ComputeItemTotals(item LineItem) LineItem {
	qty := clamp(item.Quantity)
	price := clamp(item.UnitPrice)
	discountPct := clamp(item.DiscountPercent)

	item.GrossAmount = qty * price
	item.DiscountAmount = item.GrossAmount * discountPct / 100
	item.TaxableValue = clamp(item.GrossAmount - item.DiscountAmount)
	item.CGSTAmount = item.TaxableValue * clamp(item.CGSTRate) / 100
	item.SGSTAmount = item.TaxableValue * clamp(item.SGSTRate) / 100
	item.IGSTAmount = item.TaxableValue * clamp(item.IGSTRate) / 100
	item.CESSAmount = item.TaxableValue * clamp(item.CESSRate) / 100
	item.TotalAmount = item.TaxableValue + item.CGSTAmount + item.SGSTAmount + item.IGSTAmount + item.CESSAmount
	return item
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}
