package engine

import (
	"math"
	"testing"
)

func TestComputeItemTotalsGSTBreakdown(t *testing.T) {
	item := ComputeItemTotals(LineItem{
		Quantity:        10,
		UnitPrice:       100,
		DiscountPercent: 10,
		CGSTRate:        9,
		SGSTRate:        9,
	})
	if item.GrossAmount != 1000 {
		t.Fatalf("gross = %v, want 1000", item.GrossAmount)
	}
	if item.DiscountAmount != 100 {
		t.Fatalf("discount = %v, want 100", item.DiscountAmount)
	}
	if item.TaxableValue != 900 {
		t.Fatalf("taxable = %v, want 900", item.TaxableValue)
	}
	if item.CGSTAmount != 81 || item.SGSTAmount != 81 {
		t.Fatalf("cgst/sgst = %v/%v, want 81/81", item.CGSTAmount, item.SGSTAmount)
	}
	if item.IGSTAmount != 0 || item.CESSAmount != 0 {
		t.Fatalf("igst/cess = %v/%v, want 0/0", item.IGSTAmount, item.CESSAmount)
	}
	if item.TotalAmount != 1062 {
		t.Fatalf("total = %v, want 1062", item.TotalAmount)
	}
}

func TestComputeItemTotalsIdempotent(t *testing.T) {
	items := []LineItem{
		{Quantity: 3, UnitPrice: 33.33, DiscountPercent: 5, IGSTRate: 18},
		{Quantity: 1, UnitPrice: 999, CGSTRate: 14, SGSTRate: 14, CESSRate: 1},
		{Quantity: 0, UnitPrice: 100},
		{Quantity: -4, UnitPrice: 250, DiscountPercent: 120},
	}
	for i, item := range items {
		once := ComputeItemTotals(item)
		twice := ComputeItemTotals(once)
		if once != twice {
			t.Fatalf("item %d: recomputation drifted: %+v vs %+v", i, once, twice)
		}
	}
}

func TestComputeItemTotalsClampsAdversarialInput(t *testing.T) {
	cases := []LineItem{
		{Quantity: -10, UnitPrice: 100, CGSTRate: 9},
		{Quantity: 10, UnitPrice: -100, SGSTRate: 9},
		{Quantity: 10, UnitPrice: 100, DiscountPercent: -50, IGSTRate: -18},
		{Quantity: math.NaN(), UnitPrice: 100, CESSRate: math.NaN()},
	}
	for i, in := range cases {
		item := ComputeItemTotals(in)
		for name, v := range map[string]float64{
			"gross":    item.GrossAmount,
			"discount": item.DiscountAmount,
			"taxable":  item.TaxableValue,
			"cgst":     item.CGSTAmount,
			"sgst":     item.SGSTAmount,
			"igst":     item.IGSTAmount,
			"cess":     item.CESSAmount,
			"total":    item.TotalAmount,
		} {
			if v < 0 || math.IsNaN(v) {
				t.Fatalf("case %d: %s = %v, want non-negative", i, name, v)
			}
		}
	}
}

func TestComputeItemTotalsSumConsistency(t *testing.T) {
	cases := []LineItem{
		{Quantity: 7, UnitPrice: 142.85, DiscountPercent: 12.5, CGSTRate: 9, SGSTRate: 9},
		{Quantity: 100, UnitPrice: 0.99, IGSTRate: 28, CESSRate: 12},
		{Quantity: 1, UnitPrice: 1},
	}
	for i, in := range cases {
		item := ComputeItemTotals(in)
		sum := item.TaxableValue + item.CGSTAmount + item.SGSTAmount + item.IGSTAmount + item.CESSAmount
		if item.TotalAmount != sum {
			t.Fatalf("case %d: total %v != component sum %v", i, item.TotalAmount, sum)
		}
	}
}

func TestComputeItemTotalsOverfullDiscount(t *testing.T) {
	// 120% discount pushes the raw taxable value negative; it must clamp to
	// zero, taking every tax amount down with it.
	item := ComputeItemTotals(LineItem{Quantity: 2, UnitPrice: 500, DiscountPercent: 120, IGSTRate: 18})
	if item.TaxableValue != 0 {
		t.Fatalf("taxable = %v, want 0", item.TaxableValue)
	}
	if item.TotalAmount != 0 {
		t.Fatalf("total = %v, want 0", item.TotalAmount)
	}
}
