// Package notes manages vendor credit and debit notes. A note adjusts a
// bill it references weakly, by original invoice number plus vendor, so
// notes can arrive before the bill they correct.
package notes

import (
	"time"

	"github.com/google/uuid"

	"github.com/khata-erp/khata-erp/internal/engine"
)

// Note is a credit or debit note with its line items. Like bills, totals
// are always recomputed from the items on write.
type Note struct {
	ID                    int64
	Ref                   uuid.UUID
	Number                string
	Type                  engine.NoteType
	Vendor                string
	OriginalInvoiceNumber string
	NoteDate              time.Time
	Reason                string
	Approval              engine.ApprovalStatus
	Cancelled             bool
	Items                 []engine.LineItem
	Totals                engine.DocumentTotals
	CreatedBy             int64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Doc projects the note into the engine's reconciliation input.
func (n Note) Doc() engine.NoteDoc {
	return engine.NoteDoc{
		Type:                  n.Type,
		OriginalInvoiceNumber: n.OriginalInvoiceNumber,
		Vendor:                n.Vendor,
		GrandTotal:            n.Totals.GrandTotal,
		Approval:              n.Approval,
		Cancelled:             n.Cancelled,
	}
}

// CreateNoteInput for creating notes.
type CreateNoteInput struct {
	Number                string
	Type                  engine.NoteType
	Vendor                string
	OriginalInvoiceNumber string
	NoteDate              time.Time
	Reason                string
	Items                 []engine.LineItem
	CreatedBy             int64
}

// UpdateNoteInput for editing a still-pending note.
type UpdateNoteInput struct {
	NoteID                int64
	OriginalInvoiceNumber string
	Reason                string
	Items                 []engine.LineItem
}

// ApprovalInput identifies the actor deciding on a pending note.
type ApprovalInput struct {
	ID      int64
	ActorID int64
	Note    string
}

// ListNotesRequest filters note listings.
type ListNotesRequest struct {
	Vendor          string
	OriginalInvoice string
	Type            engine.NoteType
	Limit           int
	Offset          int
}
