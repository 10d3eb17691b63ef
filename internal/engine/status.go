package engine

import (
	"math"
	"time"
)

// ApprovalStatus gates which documents the engine counts. Only approved
// documents participate in settlement and reconciliation.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// BillStatus is derived live from current payment and date data on every
// read; it is never stored, so it can never go stale relative to payments.
type BillStatus string

const (
	StatusFullyPaid     BillStatus = "FULLY_PAID"
	StatusPartiallyPaid BillStatus = "PARTIALLY_PAID"
	StatusNotPaid       BillStatus = "NOT_PAID"
	StatusOverdue       BillStatus = "OVERDUE"
	StatusDueSoon       BillStatus = "DUE_SOON"
)

// DueSoonWindowDays is the calendar-day window for the DUE_SOON status.
const DueSoonWindowDays = 7

// BillFigures carries the bill-level amounts the classifier and
// remaining-amount calculator operate on. SettledAmount is the sum of
// approved payments' gross amounts against the bill; TDS was already
// deducted from the payable, so counting gross payments avoids deducting
// it twice.
type BillFigures struct {
	GrandTotal    float64
	TDSAmount     float64
	SettledAmount float64
	DueDate       *time.Time
}

// NetPayable is the grand total minus withheld TDS, before credit/debit
// note adjustments.
func (b BillFigures) NetPayable() float64 {
	return b.GrandTotal - b.TDSAmount
}

// ClassifyBillStatus applies the ordered, mutually exclusive status rules;
// the first matching rule wins. FULLY_PAID is terminal and takes priority
// over any due-date condition. The due-date branches only apply to bills
// with no settlement at all.
func ClassifyBillStatus(bill BillFigures, asOf time.Time) BillStatus {
	switch {
	case bill.SettledAmount >= bill.NetPayable():
		return StatusFullyPaid
	case bill.SettledAmount > 0:
		return StatusPartiallyPaid
	}
	if bill.DueDate == nil {
		return StatusNotPaid
	}
	days := DaysUntil(asOf, *bill.DueDate)
	switch {
	case days < 0:
		return StatusOverdue
	case days <= DueSoonWindowDays:
		return StatusDueSoon
	default:
		return StatusNotPaid
	}
}

// DaysUntil counts calendar days from asOf to the due date. Both instants
// are truncated to midnight UTC, then the difference is rounded up. With
// truncated dates the quotient is already integral; the ceil keeps the
// boundary behaviour of the original day math, where exactly seven days
// out still counts as within the window.
func DaysUntil(asOf, due time.Time) int {
	from := midnight(asOf)
	to := midnight(due)
	return int(math.Ceil(to.Sub(from).Hours() / 24))
}

func midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
