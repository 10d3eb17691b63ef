package engine

import "time"

// PaymentStatus is the payment lifecycle state. Only COMPLETED payments
// count as disbursed cash in the reconciliation aggregate.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

// NoteType distinguishes the two adjustment directions. Credit notes reduce
// the payable, debit notes increase it.
type NoteType string

const (
	NoteCredit NoteType = "CREDIT"
	NoteDebit  NoteType = "DEBIT"
)

// BillDoc is the projection of a stored bill the reconciliation aggregator
// consumes.
type BillDoc struct {
	BillNumber string
	Vendor     string
	GrandTotal float64
	TDSAmount  float64
	Approval   ApprovalStatus
}

// PaymentDoc is the projection of a stored payment. Amount is the gross
// payment; NetAmount is the amount after TDS withholding, i.e. the cash
// that actually left the bank.
type PaymentDoc struct {
	BillID    int64
	Amount    float64
	NetAmount float64
	Approval  ApprovalStatus
	Status    PaymentStatus
}

// NoteDoc is the projection of a stored credit/debit note. Notes reference
// bills weakly, by original invoice number plus vendor.
type NoteDoc struct {
	Type                  NoteType
	OriginalInvoiceNumber string
	Vendor                string
	GrandTotal            float64
	Approval              ApprovalStatus
	Cancelled             bool
}

// Live reports whether the note participates in reconciliation.
func (n NoteDoc) Live() bool {
	return n.Approval == ApprovalApproved && !n.Cancelled
}

// Reconciliation aggregates the AP position across all documents.
// Unreconciled keeps its sign; a negative value means more cash went out
// than the adjusted payable, which is itself a finding worth surfacing.
type Reconciliation struct {
	TotalPayable      float64 `json:"totalPayable"`
	TotalPaid         float64 `json:"totalPaid"`
	CreditNotesAmount float64 `json:"creditNotesAmount"`
	DebitNotesAmount  float64 `json:"debitNotesAmount"`
	AdjustedPayable   float64 `json:"adjustedPayable"`
	Unreconciled      float64 `json:"unreconciled"`
}

// ComputeReconciliation filters and sums in one pass: approved bills only,
// approved and completed payments only, live notes only. TotalPaid uses the
// TDS-net payment amount because the aggregate measures cash disbursed,
// whereas per-bill settlement (BillFigures.SettledAmount) uses the gross
// amount.
func ComputeReconciliation(bills []BillDoc, payments []PaymentDoc, notes []NoteDoc) Reconciliation {
	var rec Reconciliation
	for _, b := range bills {
		if b.Approval != ApprovalApproved {
			continue
		}
		rec.TotalPayable += b.GrandTotal
	}
	for _, p := range payments {
		if p.Approval != ApprovalApproved || p.Status != PaymentCompleted {
			continue
		}
		rec.TotalPaid += p.NetAmount
	}
	for _, n := range notes {
		if !n.Live() {
			continue
		}
		switch n.Type {
		case NoteCredit:
			rec.CreditNotesAmount += n.GrandTotal
		case NoteDebit:
			rec.DebitNotesAmount += n.GrandTotal
		}
	}
	rec.AdjustedPayable = rec.TotalPayable - rec.CreditNotesAmount + rec.DebitNotesAmount
	rec.Unreconciled = rec.AdjustedPayable - rec.TotalPaid
	return rec
}

// MatchNotes returns the live notes adjusting a specific bill. A note
// matches when its original invoice number equals the bill number and the
// vendor is the same.
func MatchNotes(billNumber, vendor string, notes []NoteDoc) []NoteDoc {
	var matched []NoteDoc
	for _, n := range notes {
		if !n.Live() {
			continue
		}
		if n.OriginalInvoiceNumber == billNumber && n.Vendor == vendor {
			matched = append(matched, n)
		}
	}
	return matched
}

// ComputeRemainingAmount is the per-bill outstanding figure used when
// recording a new payment: net payable, less the net credit/debit
// adjustment from matched notes, less what has already been settled.
func ComputeRemainingAmount(bill BillFigures, matched []NoteDoc) float64 {
	var credits, debits float64
	for _, n := range matched {
		switch n.Type {
		case NoteCredit:
			credits += n.GrandTotal
		case NoteDebit:
			debits += n.GrandTotal
		}
	}
	adjusted := bill.NetPayable() - (credits - debits)
	return adjusted - bill.SettledAmount
}

// EligibleForPayment reports whether a bill can accept another payment:
// there must be something left to pay and the bill must not already be
// fully settled.
func EligibleForPayment(bill BillFigures, matched []NoteDoc, asOf time.Time) bool {
	if ClassifyBillStatus(bill, asOf) == StatusFullyPaid {
		return false
	}
	return ComputeRemainingAmount(bill, matched) > 0
}
