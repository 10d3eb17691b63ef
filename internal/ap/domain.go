// Package ap manages vendor bills and the payments recorded against them.
// All monetary derivation goes through internal/engine; this package owns
// persistence, the approval lifecycle, and the HTTP surface.
package ap

import (
	"time"

	"github.com/google/uuid"

	"github.com/khata-erp/khata-erp/internal/engine"
)

// Bill is a vendor bill with its ordered line items. Totals and TDSAmount
// are stored for querying but are always written by recomputing from the
// items; they are never accepted from a client.
type Bill struct {
	ID            int64
	Ref           uuid.UUID
	Number        string
	Vendor        string
	BillDate      time.Time
	DueDate       *time.Time
	TDSSection    string
	TDSPercentage float64
	TDSAmount     float64
	Approval      engine.ApprovalStatus
	Items         []engine.LineItem
	Totals        engine.DocumentTotals
	CreatedBy     int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Figures projects the bill into the engine's classifier input.
func (b Bill) Figures(settled float64) engine.BillFigures {
	return engine.BillFigures{
		GrandTotal:    b.Totals.GrandTotal,
		TDSAmount:     b.TDSAmount,
		SettledAmount: settled,
		DueDate:       b.DueDate,
	}
}

// BillView is the read model: the stored bill plus figures derived live
// from current payment and note data. Nothing in the second block is
// persisted, so it can never go stale.
type BillView struct {
	Bill
	SettledAmount   float64
	RemainingAmount float64
	Status          engine.BillStatus
}

// Payment records money moved against a specific bill. NetAmount is
// computed server-side as Amount minus the TDS withheld on this payment.
type Payment struct {
	ID             int64
	Ref            uuid.UUID
	Number         string
	BillID         int64
	IdempotencyKey uuid.UUID
	Amount         float64
	TDSAmount      float64
	NetAmount      float64
	PaymentDate    time.Time
	Method         string
	Reference      string
	Approval       engine.ApprovalStatus
	Status         engine.PaymentStatus
	CreatedBy      int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// --- Input DTOs ---

// CreateBillInput for creating bills.
type CreateBillInput struct {
	Number        string
	Vendor        string
	BillDate      time.Time
	DueDate       *time.Time
	TDSSection    string
	TDSPercentage float64
	Items         []engine.LineItem
	CreatedBy     int64
}

// UpdateBillInput for editing a still-pending bill. Items replace the
// existing set wholesale; totals are recomputed from scratch.
type UpdateBillInput struct {
	BillID        int64
	DueDate       *time.Time
	TDSSection    string
	TDSPercentage float64
	Items         []engine.LineItem
}

// ApprovalInput identifies the actor deciding on a pending document.
type ApprovalInput struct {
	ID      int64
	ActorID int64
	Note    string
}

// CreatePaymentInput for recording a payment against a bill.
type CreatePaymentInput struct {
	Number         string
	BillID         int64
	IdempotencyKey uuid.UUID
	Amount         float64
	TDSAmount      float64
	PaymentDate    time.Time
	Method         string
	Reference      string
	CreatedBy      int64
}

// ListBillsRequest filters bill listings.
type ListBillsRequest struct {
	Vendor   string
	Approval engine.ApprovalStatus
	Limit    int
	Offset   int
}

// ListPaymentsRequest filters payment listings.
type ListPaymentsRequest struct {
	BillID int64
	Limit  int
	Offset int
}
