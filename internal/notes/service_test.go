package notes

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/khata-erp/khata-erp/internal/engine"
	"github.com/khata-erp/khata-erp/internal/shared"
)

type memoryRepo struct {
	notes  map[int64]Note
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{notes: map[int64]Note{}, nextID: 1}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memoryRepo) GetNote(_ context.Context, id int64) (Note, error) {
	n, ok := m.notes[id]
	if !ok {
		return Note{}, fmt.Errorf("note: %w", shared.ErrNotFound)
	}
	return n, nil
}

func (m *memoryRepo) ListNotes(_ context.Context, req ListNotesRequest) ([]Note, error) {
	var out []Note
	for _, n := range m.notes {
		if req.Vendor != "" && n.Vendor != req.Vendor {
			continue
		}
		if req.OriginalInvoice != "" && n.OriginalInvoiceNumber != req.OriginalInvoice {
			continue
		}
		if req.Type != "" && n.Type != req.Type {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (m *memoryRepo) CountNotes(ctx context.Context, req ListNotesRequest) (int, error) {
	notes, _ := m.ListNotes(ctx, req)
	return len(notes), nil
}

func (m *memoryRepo) CreateNote(_ context.Context, note Note) (int64, error) {
	id := m.nextID
	m.nextID++
	note.ID = id
	m.notes[id] = note
	return id, nil
}

func (m *memoryRepo) UpdateNote(_ context.Context, note Note) error {
	stored, ok := m.notes[note.ID]
	if !ok {
		return fmt.Errorf("note %d: %w", note.ID, shared.ErrNotFound)
	}
	note.Items = stored.Items
	m.notes[note.ID] = note
	return nil
}

func (m *memoryRepo) ReplaceNoteItems(_ context.Context, noteID int64, items []engine.LineItem) error {
	n, ok := m.notes[noteID]
	if !ok {
		return fmt.Errorf("note %d: %w", noteID, shared.ErrNotFound)
	}
	n.Items = append([]engine.LineItem(nil), items...)
	m.notes[noteID] = n
	return nil
}

func (m *memoryRepo) DeleteNote(_ context.Context, id int64) error {
	if _, ok := m.notes[id]; !ok {
		return fmt.Errorf("note %d: %w", id, shared.ErrNotFound)
	}
	delete(m.notes, id)
	return nil
}

func (m *memoryRepo) SetNoteApproval(_ context.Context, id int64, status engine.ApprovalStatus) error {
	n, ok := m.notes[id]
	if !ok {
		return fmt.Errorf("note %d: %w", id, shared.ErrNotFound)
	}
	n.Approval = status
	m.notes[id] = n
	return nil
}

func (m *memoryRepo) SetNoteCancelled(_ context.Context, id int64, cancelled bool) error {
	n, ok := m.notes[id]
	if !ok {
		return fmt.Errorf("note %d: %w", id, shared.ErrNotFound)
	}
	n.Cancelled = cancelled
	m.notes[id] = n
	return nil
}

type staticNumbers struct{ n int }

func (s *staticNumbers) Next(_ context.Context, prefix, _ string) (string, error) {
	s.n++
	return fmt.Sprintf("%s-2026-%06d", prefix, s.n), nil
}

type logSink struct{ logs []shared.ApprovalLog }

func (s *logSink) Record(_ context.Context, log shared.ApprovalLog) error {
	s.logs = append(s.logs, log)
	return nil
}

func newTestService() (*Service, *logSink) {
	sink := &logSink{}
	svc := NewService(newMemoryRepo(), &staticNumbers{}, sink)
	svc.SetClock(func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) })
	return svc, sink
}

func noteInput(t engine.NoteType) CreateNoteInput {
	return CreateNoteInput{
		Type:                  t,
		Vendor:                "Acme Traders",
		OriginalInvoiceNumber: "BILL-2026-000042",
		Reason:                "short delivery",
		Items: []engine.LineItem{{
			Description: "Steel rods returned", Quantity: 2, UnitPrice: 100, CGSTRate: 9, SGSTRate: 9,
		}},
		CreatedBy: 7,
	}
}

func TestCreateNoteComputesTotals(t *testing.T) {
	svc, sink := newTestService()

	note, err := svc.CreateNote(context.Background(), noteInput(engine.NoteCredit))
	require.NoError(t, err)

	require.Equal(t, "CN-2026-000001", note.Number)
	require.Equal(t, engine.ApprovalPending, note.Approval)
	require.InDelta(t, 236.0, note.Totals.GrandTotal, 1e-9)
	require.False(t, note.NoteDate.IsZero())

	require.Len(t, sink.logs, 1)
	require.Equal(t, shared.ApprovalSubmit, sink.logs[0].Action)
}

func TestCreateNoteNumberPrefixFollowsType(t *testing.T) {
	svc, _ := newTestService()

	debit, err := svc.CreateNote(context.Background(), noteInput(engine.NoteDebit))
	require.NoError(t, err)
	require.Equal(t, "DN-2026-000001", debit.Number)

	_, err = svc.CreateNote(context.Background(), CreateNoteInput{Type: "BOGUS", Vendor: "x",
		Items: noteInput(engine.NoteCredit).Items})
	require.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestUpdateNoteOnlyWhilePending(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	note, err := svc.CreateNote(ctx, noteInput(engine.NoteCredit))
	require.NoError(t, err)

	update := UpdateNoteInput{
		NoteID:                note.ID,
		OriginalInvoiceNumber: "BILL-2026-000099",
		Items: []engine.LineItem{{
			Description: "Steel rods returned", Quantity: 5, UnitPrice: 100, CGSTRate: 9, SGSTRate: 9,
		}},
	}
	updated, err := svc.UpdateNote(ctx, update)
	require.NoError(t, err)
	require.InDelta(t, 590.0, updated.Totals.GrandTotal, 1e-9)
	require.Equal(t, "BILL-2026-000099", updated.OriginalInvoiceNumber)

	require.NoError(t, svc.ApproveNote(ctx, ApprovalInput{ID: note.ID, ActorID: 9}))
	_, err = svc.UpdateNote(ctx, update)
	require.ErrorIs(t, err, shared.ErrImmutable)
	require.ErrorIs(t, svc.DeleteNote(ctx, note.ID), shared.ErrImmutable)
}

func TestCancelRequiresApprovedNote(t *testing.T) {
	svc, sink := newTestService()
	ctx := context.Background()

	note, err := svc.CreateNote(ctx, noteInput(engine.NoteCredit))
	require.NoError(t, err)

	// Pending notes are rejected, not cancelled.
	require.ErrorIs(t, svc.CancelNote(ctx, ApprovalInput{ID: note.ID, ActorID: 9}), shared.ErrInvalidStatus)

	require.NoError(t, svc.ApproveNote(ctx, ApprovalInput{ID: note.ID, ActorID: 9}))
	require.NoError(t, svc.CancelNote(ctx, ApprovalInput{ID: note.ID, ActorID: 9}))
	require.ErrorIs(t, svc.CancelNote(ctx, ApprovalInput{ID: note.ID, ActorID: 9}), shared.ErrInvalidStatus)

	got, err := svc.GetNote(ctx, note.ID)
	require.NoError(t, err)
	require.True(t, got.Cancelled)
	require.False(t, got.Doc().Live())

	require.Equal(t, shared.ApprovalCancel, sink.logs[len(sink.logs)-1].Action)
}

func TestMatchedNotesFiltersLiveAndMatching(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	approved, err := svc.CreateNote(ctx, noteInput(engine.NoteCredit))
	require.NoError(t, err)
	require.NoError(t, svc.ApproveNote(ctx, ApprovalInput{ID: approved.ID, ActorID: 9}))

	// Pending note for the same bill.
	_, err = svc.CreateNote(ctx, noteInput(engine.NoteDebit))
	require.NoError(t, err)

	// Approved note against a different bill.
	other := noteInput(engine.NoteCredit)
	other.OriginalInvoiceNumber = "BILL-2026-000777"
	otherNote, err := svc.CreateNote(ctx, other)
	require.NoError(t, err)
	require.NoError(t, svc.ApproveNote(ctx, ApprovalInput{ID: otherNote.ID, ActorID: 9}))

	docs, err := svc.MatchedNotes(ctx, "BILL-2026-000042", "Acme Traders")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, engine.NoteCredit, docs[0].Type)
	require.InDelta(t, 236.0, docs[0].GrandTotal, 1e-9)

	// Vendor mismatch yields nothing even with the right invoice number.
	docs, err = svc.MatchedNotes(ctx, "BILL-2026-000042", "Someone Else")
	require.NoError(t, err)
	require.Empty(t, docs)
}

func TestApproveNoteTwiceFails(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	note, err := svc.CreateNote(ctx, noteInput(engine.NoteDebit))
	require.NoError(t, err)

	require.NoError(t, svc.ApproveNote(ctx, ApprovalInput{ID: note.ID, ActorID: 9}))
	require.ErrorIs(t, svc.ApproveNote(ctx, ApprovalInput{ID: note.ID, ActorID: 9}), shared.ErrInvalidStatus)
	require.ErrorIs(t, svc.RejectNote(ctx, ApprovalInput{ID: note.ID, ActorID: 9}), shared.ErrInvalidStatus)
}
