package notes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/khata-erp/khata-erp/internal/engine"
	"github.com/khata-erp/khata-erp/internal/shared"
)

// NumberSource issues document numbers.
type NumberSource interface {
	Next(ctx context.Context, prefix, sequence string) (string, error)
}

// ApprovalSink persists approval history entries.
type ApprovalSink interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// Invalidator is notified whenever a write changes what the reconciliation
// report would show.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

type Service struct {
	repo        Repository
	numbers     NumberSource
	approvals   ApprovalSink
	invalidator Invalidator
	now         func() time.Time
}

func NewService(repo Repository, numbers NumberSource, approvals ApprovalSink) *Service {
	return &Service{
		repo:      repo,
		numbers:   numbers,
		approvals: approvals,
		now:       time.Now,
	}
}

// SetInvalidator injects the reconciliation cache invalidation hook.
func (s *Service) SetInvalidator(inv Invalidator) { s.invalidator = inv }

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func checkItems(items []engine.LineItem) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: at least one line item is required", shared.ErrInvalidStatus)
	}
	for i, item := range items {
		for _, f := range []struct {
			name  string
			value float64
		}{
			{"quantity", item.Quantity},
			{"unitPrice", item.UnitPrice},
			{"discountPercent", item.DiscountPercent},
			{"cgstRate", item.CGSTRate},
			{"sgstRate", item.SGSTRate},
			{"igstRate", item.IGSTRate},
			{"cessRate", item.CESSRate},
		} {
			if err := engine.CheckAmount(fmt.Sprintf("items[%d].%s", i, f.name), f.value); err != nil {
				return err
			}
		}
	}
	return nil
}

func recompute(note *Note) {
	for i, item := range note.Items {
		note.Items[i] = engine.ComputeItemTotals(item)
	}
	note.Totals = engine.ComputeDocumentTotals(note.Items)
}

func numberPrefix(t engine.NoteType) string {
	if t == engine.NoteDebit {
		return "DN"
	}
	return "CN"
}

// CreateNote validates, computes totals, and stores the note pending
// approval.
func (s *Service) CreateNote(ctx context.Context, input CreateNoteInput) (Note, error) {
	if input.Type != engine.NoteCredit && input.Type != engine.NoteDebit {
		return Note{}, fmt.Errorf("%w: note type must be CREDIT or DEBIT", shared.ErrInvalidStatus)
	}
	if err := checkItems(input.Items); err != nil {
		return Note{}, err
	}

	note := Note{
		Ref:                   uuid.New(),
		Number:                input.Number,
		Type:                  input.Type,
		Vendor:                input.Vendor,
		OriginalInvoiceNumber: input.OriginalInvoiceNumber,
		NoteDate:              input.NoteDate,
		Reason:                input.Reason,
		Approval:              engine.ApprovalPending,
		Items:                 append([]engine.LineItem(nil), input.Items...),
		CreatedBy:             input.CreatedBy,
	}
	if note.NoteDate.IsZero() {
		note.NoteDate = s.now()
	}
	recompute(&note)

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if note.Number == "" {
			num, err := s.numbers.Next(ctx, numberPrefix(note.Type), shared.SeqNoteNumber)
			if err != nil {
				return err
			}
			note.Number = num
		}
		id, err := tx.CreateNote(ctx, note)
		if err != nil {
			return err
		}
		note.ID = id
		return tx.ReplaceNoteItems(ctx, id, note.Items)
	})
	if err != nil {
		return Note{}, err
	}

	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			Module: "notes.note", RefID: note.Ref, ActorID: input.CreatedBy, Action: shared.ApprovalSubmit,
		})
	}
	return note, nil
}

// UpdateNote replaces the items and reference of a pending note.
func (s *Service) UpdateNote(ctx context.Context, input UpdateNoteInput) (Note, error) {
	note, err := s.repo.GetNote(ctx, input.NoteID)
	if err != nil {
		return Note{}, err
	}
	if note.Approval != engine.ApprovalPending {
		return Note{}, fmt.Errorf("note %s: %w", note.Number, shared.ErrImmutable)
	}
	if err := checkItems(input.Items); err != nil {
		return Note{}, err
	}

	note.OriginalInvoiceNumber = input.OriginalInvoiceNumber
	note.Reason = input.Reason
	note.Items = append([]engine.LineItem(nil), input.Items...)
	recompute(&note)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateNote(ctx, note); err != nil {
			return err
		}
		return tx.ReplaceNoteItems(ctx, note.ID, note.Items)
	})
	if err != nil {
		return Note{}, err
	}
	return note, nil
}

// DeleteNote removes a pending note.
func (s *Service) DeleteNote(ctx context.Context, id int64) error {
	note, err := s.repo.GetNote(ctx, id)
	if err != nil {
		return err
	}
	if note.Approval != engine.ApprovalPending {
		return fmt.Errorf("note %s: %w", note.Number, shared.ErrImmutable)
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteNote(ctx, id)
	})
}

// ApproveNote makes the note count toward reconciliation and per-bill
// remaining amounts.
func (s *Service) ApproveNote(ctx context.Context, input ApprovalInput) error {
	return s.decide(ctx, input, engine.ApprovalApproved, shared.ApprovalApprove)
}

// RejectNote excludes a pending note permanently.
func (s *Service) RejectNote(ctx context.Context, input ApprovalInput) error {
	return s.decide(ctx, input, engine.ApprovalRejected, shared.ApprovalReject)
}

func (s *Service) decide(ctx context.Context, input ApprovalInput, status engine.ApprovalStatus, action shared.ApprovalAction) error {
	note, err := s.repo.GetNote(ctx, input.ID)
	if err != nil {
		return err
	}
	if note.Approval != engine.ApprovalPending {
		return fmt.Errorf("note %s: %w", note.Number, shared.ErrInvalidStatus)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetNoteApproval(ctx, input.ID, status)
	})
	if err != nil {
		return err
	}
	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			Module: "notes.note", RefID: note.Ref, ActorID: input.ActorID, Action: action, Note: input.Note,
		})
	}
	s.invalidate(ctx)
	return nil
}

// CancelNote withdraws an approved note from reconciliation. The record
// stays for the audit trail; it just stops participating.
func (s *Service) CancelNote(ctx context.Context, input ApprovalInput) error {
	note, err := s.repo.GetNote(ctx, input.ID)
	if err != nil {
		return err
	}
	if note.Approval != engine.ApprovalApproved || note.Cancelled {
		return fmt.Errorf("note %s: %w", note.Number, shared.ErrInvalidStatus)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetNoteCancelled(ctx, input.ID, true)
	})
	if err != nil {
		return err
	}
	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			Module: "notes.note", RefID: note.Ref, ActorID: input.ActorID, Action: shared.ApprovalCancel, Note: input.Note,
		})
	}
	s.invalidate(ctx)
	return nil
}

// GetNote returns a single note.
func (s *Service) GetNote(ctx context.Context, id int64) (Note, error) {
	return s.repo.GetNote(ctx, id)
}

// ListNotes returns notes matching the filter.
func (s *Service) ListNotes(ctx context.Context, req ListNotesRequest) ([]Note, error) {
	return s.repo.ListNotes(ctx, req)
}

// CountNotes returns the total matching the filter, for pagination.
func (s *Service) CountNotes(ctx context.Context, req ListNotesRequest) (int, error) {
	return s.repo.CountNotes(ctx, req)
}

// MatchedNotes returns the live note projections adjusting a bill. This is
// the lookup the AP service injects to derive remaining amounts.
func (s *Service) MatchedNotes(ctx context.Context, billNumber, vendor string) ([]engine.NoteDoc, error) {
	notes, err := s.repo.ListNotes(ctx, ListNotesRequest{Vendor: vendor, OriginalInvoice: billNumber})
	if err != nil {
		return nil, err
	}
	docs := make([]engine.NoteDoc, 0, len(notes))
	for _, n := range notes {
		docs = append(docs, n.Doc())
	}
	return engine.MatchNotes(billNumber, vendor, docs), nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	_ = s.invalidator.Invalidate(ctx)
}
