package ap

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/khata-erp/khata-erp/internal/engine"
	"github.com/khata-erp/khata-erp/internal/shared"
)

type memoryRepo struct {
	bills    map[int64]Bill
	payments map[int64]Payment
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{bills: map[int64]Bill{}, payments: map[int64]Payment{}, nextID: 1}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memoryRepo) GetBill(_ context.Context, id int64) (Bill, error) {
	bill, ok := m.bills[id]
	if !ok {
		return Bill{}, fmt.Errorf("bill: %w", shared.ErrNotFound)
	}
	return bill, nil
}

func (m *memoryRepo) ListBills(_ context.Context, req ListBillsRequest) ([]Bill, error) {
	var out []Bill
	for _, b := range m.bills {
		if req.Vendor != "" && b.Vendor != req.Vendor {
			continue
		}
		if req.Approval != "" && b.Approval != req.Approval {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (m *memoryRepo) CountBills(ctx context.Context, req ListBillsRequest) (int, error) {
	bills, _ := m.ListBills(ctx, req)
	return len(bills), nil
}

func (m *memoryRepo) SettledAmount(_ context.Context, billID int64) (float64, error) {
	var sum float64
	for _, p := range m.payments {
		if p.BillID == billID && p.Approval == engine.ApprovalApproved {
			sum += p.Amount
		}
	}
	return sum, nil
}

func (m *memoryRepo) SettledAmounts(ctx context.Context) (map[int64]float64, error) {
	out := make(map[int64]float64)
	for id := range m.bills {
		sum, _ := m.SettledAmount(ctx, id)
		if sum > 0 {
			out[id] = sum
		}
	}
	return out, nil
}

func (m *memoryRepo) GetPayment(_ context.Context, id int64) (Payment, error) {
	p, ok := m.payments[id]
	if !ok {
		return Payment{}, fmt.Errorf("payment: %w", shared.ErrNotFound)
	}
	return p, nil
}

func (m *memoryRepo) FindPaymentByKey(_ context.Context, key uuid.UUID) (Payment, error) {
	for _, p := range m.payments {
		if p.IdempotencyKey == key {
			return p, nil
		}
	}
	return Payment{}, fmt.Errorf("payment: %w", shared.ErrNotFound)
}

func (m *memoryRepo) ListPayments(_ context.Context, req ListPaymentsRequest) ([]Payment, error) {
	var out []Payment
	for _, p := range m.payments {
		if req.BillID != 0 && p.BillID != req.BillID {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *memoryRepo) CountPayments(ctx context.Context, req ListPaymentsRequest) (int, error) {
	payments, _ := m.ListPayments(ctx, req)
	return len(payments), nil
}

func (m *memoryRepo) CreateBill(_ context.Context, bill Bill) (int64, error) {
	for _, b := range m.bills {
		if b.Number == bill.Number {
			return 0, fmt.Errorf("bills_number_key: %w", shared.ErrDuplicate)
		}
	}
	id := m.nextID
	m.nextID++
	bill.ID = id
	m.bills[id] = bill
	return id, nil
}

func (m *memoryRepo) UpdateBill(_ context.Context, bill Bill) error {
	stored, ok := m.bills[bill.ID]
	if !ok {
		return fmt.Errorf("bill %d: %w", bill.ID, shared.ErrNotFound)
	}
	bill.Items = stored.Items
	m.bills[bill.ID] = bill
	return nil
}

func (m *memoryRepo) ReplaceBillItems(_ context.Context, billID int64, items []engine.LineItem) error {
	bill, ok := m.bills[billID]
	if !ok {
		return fmt.Errorf("bill %d: %w", billID, shared.ErrNotFound)
	}
	bill.Items = append([]engine.LineItem(nil), items...)
	m.bills[billID] = bill
	return nil
}

func (m *memoryRepo) DeleteBill(_ context.Context, id int64) error {
	if _, ok := m.bills[id]; !ok {
		return fmt.Errorf("bill %d: %w", id, shared.ErrNotFound)
	}
	delete(m.bills, id)
	return nil
}

func (m *memoryRepo) SetBillApproval(_ context.Context, id int64, status engine.ApprovalStatus) error {
	bill, ok := m.bills[id]
	if !ok {
		return fmt.Errorf("bill %d: %w", id, shared.ErrNotFound)
	}
	bill.Approval = status
	m.bills[id] = bill
	return nil
}

func (m *memoryRepo) CreatePayment(_ context.Context, payment Payment) (int64, error) {
	id := m.nextID
	m.nextID++
	payment.ID = id
	m.payments[id] = payment
	return id, nil
}

func (m *memoryRepo) SetPaymentApproval(_ context.Context, id int64, status engine.ApprovalStatus) error {
	p, ok := m.payments[id]
	if !ok {
		return fmt.Errorf("payment %d: %w", id, shared.ErrNotFound)
	}
	p.Approval = status
	m.payments[id] = p
	return nil
}

func (m *memoryRepo) SetPaymentStatus(_ context.Context, id int64, status engine.PaymentStatus) error {
	p, ok := m.payments[id]
	if !ok {
		return fmt.Errorf("payment %d: %w", id, shared.ErrNotFound)
	}
	p.Status = status
	m.payments[id] = p
	return nil
}

// staticNumbers allocates per sequence name, like the Postgres sequences
// behind shared.Sequence.
type staticNumbers struct{ n map[string]int }

func (s *staticNumbers) Next(_ context.Context, prefix, sequence string) (string, error) {
	if s.n == nil {
		s.n = make(map[string]int)
	}
	s.n[sequence]++
	return fmt.Sprintf("%s-2026-%06d", prefix, s.n[sequence]), nil
}

type logSink struct{ logs []shared.ApprovalLog }

func (s *logSink) Record(_ context.Context, log shared.ApprovalLog) error {
	s.logs = append(s.logs, log)
	return nil
}

type staticNotes struct{ notes []engine.NoteDoc }

func (s *staticNotes) MatchedNotes(_ context.Context, billNumber, vendor string) ([]engine.NoteDoc, error) {
	return engine.MatchNotes(billNumber, vendor, s.notes), nil
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return nil
}

func newTestService(repo *memoryRepo) (*Service, *logSink) {
	sink := &logSink{}
	svc := NewService(repo, &staticNumbers{}, sink)
	svc.SetClock(func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) })
	return svc, sink
}

func billInput() CreateBillInput {
	due := time.Date(2026, 4, 9, 0, 0, 0, 0, time.UTC)
	return CreateBillInput{
		Vendor:        "Acme Traders",
		BillDate:      time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		DueDate:       &due,
		TDSSection:    "194C",
		TDSPercentage: 2,
		Items: []engine.LineItem{{
			Description: "Steel rods", Quantity: 10, UnitPrice: 100,
			DiscountPercent: 10, CGSTRate: 9, SGSTRate: 9,
		}},
		CreatedBy: 7,
	}
}

func TestCreateBillComputesTotalsAndTDS(t *testing.T) {
	svc, sink := newTestService(newMemoryRepo())

	bill, err := svc.CreateBill(context.Background(), billInput())
	require.NoError(t, err)

	require.Equal(t, engine.ApprovalPending, bill.Approval)
	require.Equal(t, "BILL-2026-000001", bill.Number)
	require.InDelta(t, 900.0, bill.Totals.TotalTaxableValue, 1e-9)
	require.InDelta(t, 1062.0, bill.Totals.GrandTotal, 1e-9)
	require.InDelta(t, 18.0, bill.TDSAmount, 1e-9)

	require.Len(t, sink.logs, 1)
	require.Equal(t, shared.ApprovalSubmit, sink.logs[0].Action)
	require.Equal(t, "ap.bill", sink.logs[0].Module)
}

func TestCreateBillRejectsEmptyItemsAndBadAmounts(t *testing.T) {
	svc, _ := newTestService(newMemoryRepo())

	input := billInput()
	input.Items = nil
	_, err := svc.CreateBill(context.Background(), input)
	require.ErrorIs(t, err, shared.ErrInvalidStatus)

	input = billInput()
	input.Items[0].UnitPrice = -5
	_, err = svc.CreateBill(context.Background(), input)
	var verr *engine.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, engine.KindNegativeAmount, verr.Kind)

	// Several bad fields report the first in declaration order, every run.
	input = billInput()
	input.Items[0].Quantity = -1
	input.Items[0].UnitPrice = -5
	input.Items[0].CESSRate = -3
	for range 5 {
		_, err = svc.CreateBill(context.Background(), input)
		require.ErrorAs(t, err, &verr)
		require.Equal(t, "items[0].quantity", verr.Field)
	}
}

func TestUpdateBillOnlyWhilePending(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	bill, err := svc.CreateBill(ctx, billInput())
	require.NoError(t, err)

	update := UpdateBillInput{
		BillID:        bill.ID,
		TDSSection:    "194C",
		TDSPercentage: 2,
		Items: []engine.LineItem{{
			Description: "Steel rods", Quantity: 20, UnitPrice: 100, CGSTRate: 9, SGSTRate: 9,
		}},
	}
	updated, err := svc.UpdateBill(ctx, update)
	require.NoError(t, err)
	require.InDelta(t, 2360.0, updated.Totals.GrandTotal, 1e-9)

	require.NoError(t, svc.ApproveBill(ctx, ApprovalInput{ID: bill.ID, ActorID: 9}))
	_, err = svc.UpdateBill(ctx, update)
	require.ErrorIs(t, err, shared.ErrImmutable)
	require.ErrorIs(t, svc.DeleteBill(ctx, bill.ID), shared.ErrImmutable)
}

func TestApproveBillTwiceFails(t *testing.T) {
	svc, sink := newTestService(newMemoryRepo())
	ctx := context.Background()

	bill, err := svc.CreateBill(ctx, billInput())
	require.NoError(t, err)

	require.NoError(t, svc.ApproveBill(ctx, ApprovalInput{ID: bill.ID, ActorID: 9}))
	require.ErrorIs(t, svc.ApproveBill(ctx, ApprovalInput{ID: bill.ID, ActorID: 9}), shared.ErrInvalidStatus)

	require.Len(t, sink.logs, 2)
	require.Equal(t, shared.ApprovalApprove, sink.logs[1].Action)
}

func TestRecordPaymentRequiresApprovedBill(t *testing.T) {
	svc, _ := newTestService(newMemoryRepo())
	ctx := context.Background()

	bill, err := svc.CreateBill(ctx, billInput())
	require.NoError(t, err)

	_, err = svc.RecordPayment(ctx, CreatePaymentInput{BillID: bill.ID, Amount: 500})
	require.ErrorIs(t, err, shared.ErrInvalidStatus)

	require.NoError(t, svc.ApproveBill(ctx, ApprovalInput{ID: bill.ID, ActorID: 9}))
	payment, err := svc.RecordPayment(ctx, CreatePaymentInput{BillID: bill.ID, Amount: 500, TDSAmount: 10})
	require.NoError(t, err)
	require.Equal(t, "PAY-2026-000001", payment.Number)
	require.InDelta(t, 490.0, payment.NetAmount, 1e-9)
	require.Equal(t, engine.PaymentPending, payment.Status)
}

func TestRecordPaymentValidation(t *testing.T) {
	svc, _ := newTestService(newMemoryRepo())
	ctx := context.Background()

	bill, err := svc.CreateBill(ctx, billInput())
	require.NoError(t, err)
	require.NoError(t, svc.ApproveBill(ctx, ApprovalInput{ID: bill.ID, ActorID: 9}))

	_, err = svc.RecordPayment(ctx, CreatePaymentInput{BillID: bill.ID, Amount: 0})
	require.ErrorIs(t, err, shared.ErrInvalidStatus)

	// TDS exceeding the gross amount would produce a negative net payout.
	_, err = svc.RecordPayment(ctx, CreatePaymentInput{BillID: bill.ID, Amount: 100, TDSAmount: 150})
	var verr *engine.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "netAmount", verr.Field)
}

func TestRecordPaymentIdempotencyKey(t *testing.T) {
	svc, _ := newTestService(newMemoryRepo())
	ctx := context.Background()

	bill, err := svc.CreateBill(ctx, billInput())
	require.NoError(t, err)
	require.NoError(t, svc.ApproveBill(ctx, ApprovalInput{ID: bill.ID, ActorID: 9}))

	key := uuid.New()
	first, err := svc.RecordPayment(ctx, CreatePaymentInput{BillID: bill.ID, Amount: 400, IdempotencyKey: key})
	require.NoError(t, err)

	second, err := svc.RecordPayment(ctx, CreatePaymentInput{BillID: bill.ID, Amount: 999, IdempotencyKey: key})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.InDelta(t, 400.0, second.Amount, 1e-9)

	payments, err := svc.ListPayments(ctx, ListPaymentsRequest{BillID: bill.ID})
	require.NoError(t, err)
	require.Len(t, payments, 1)
}

func TestSettlementDrivesStatusAndRemaining(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	bill, err := svc.CreateBill(ctx, billInput())
	require.NoError(t, err)
	require.NoError(t, svc.ApproveBill(ctx, ApprovalInput{ID: bill.ID, ActorID: 9}))

	// Net payable is 1062 - 18 = 1044. A partial payment leaves the rest due.
	payment, err := svc.RecordPayment(ctx, CreatePaymentInput{BillID: bill.ID, Amount: 600})
	require.NoError(t, err)
	require.NoError(t, svc.ApprovePayment(ctx, ApprovalInput{ID: payment.ID, ActorID: 9}))

	view, err := svc.GetBill(ctx, bill.ID)
	require.NoError(t, err)
	require.Equal(t, engine.StatusPartiallyPaid, view.Status)
	require.InDelta(t, 600.0, view.SettledAmount, 1e-9)
	require.InDelta(t, 444.0, view.RemainingAmount, 1e-9)

	remaining, err := svc.RemainingAmount(ctx, bill.ID)
	require.NoError(t, err)
	require.InDelta(t, 444.0, remaining, 1e-9)

	second, err := svc.RecordPayment(ctx, CreatePaymentInput{BillID: bill.ID, Amount: 444})
	require.NoError(t, err)
	require.NoError(t, svc.ApprovePayment(ctx, ApprovalInput{ID: second.ID, ActorID: 9}))

	view, err = svc.GetBill(ctx, bill.ID)
	require.NoError(t, err)
	require.Equal(t, engine.StatusFullyPaid, view.Status)
	require.InDelta(t, 0.0, view.RemainingAmount, 1e-9)

	// A fully settled bill accepts no further payments.
	_, err = svc.RecordPayment(ctx, CreatePaymentInput{BillID: bill.ID, Amount: 50})
	require.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestCreditNotesReduceRemaining(t *testing.T) {
	svc, _ := newTestService(newMemoryRepo())
	ctx := context.Background()

	bill, err := svc.CreateBill(ctx, billInput())
	require.NoError(t, err)
	require.NoError(t, svc.ApproveBill(ctx, ApprovalInput{ID: bill.ID, ActorID: 9}))

	svc.SetNotesProvider(&staticNotes{notes: []engine.NoteDoc{
		{
			Type: engine.NoteCredit, OriginalInvoiceNumber: bill.Number, Vendor: bill.Vendor,
			GrandTotal: 200, Approval: engine.ApprovalApproved,
		},
		// Pending note for the same bill must not count.
		{
			Type: engine.NoteCredit, OriginalInvoiceNumber: bill.Number, Vendor: bill.Vendor,
			GrandTotal: 999, Approval: engine.ApprovalPending,
		},
	}})

	view, err := svc.GetBill(ctx, bill.ID)
	require.NoError(t, err)
	require.InDelta(t, 844.0, view.RemainingAmount, 1e-9)
}

func TestCompletePaymentLifecycle(t *testing.T) {
	svc, _ := newTestService(newMemoryRepo())
	inv := &countingInvalidator{}
	svc.SetInvalidator(inv)
	ctx := context.Background()

	bill, err := svc.CreateBill(ctx, billInput())
	require.NoError(t, err)
	require.NoError(t, svc.ApproveBill(ctx, ApprovalInput{ID: bill.ID, ActorID: 9}))

	payment, err := svc.RecordPayment(ctx, CreatePaymentInput{BillID: bill.ID, Amount: 500})
	require.NoError(t, err)

	// Completing before approval is invalid.
	require.ErrorIs(t, svc.CompletePayment(ctx, payment.ID), shared.ErrInvalidStatus)

	require.NoError(t, svc.ApprovePayment(ctx, ApprovalInput{ID: payment.ID, ActorID: 9}))
	require.NoError(t, svc.CompletePayment(ctx, payment.ID))

	got, err := svc.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	require.Equal(t, engine.PaymentCompleted, got.Status)

	require.ErrorIs(t, svc.CompletePayment(ctx, payment.ID), shared.ErrInvalidStatus)
	require.Equal(t, 3, inv.calls)
}

func TestBillsDueSoon(t *testing.T) {
	svc, _ := newTestService(newMemoryRepo())
	ctx := context.Background()
	asOf := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	mkBill := func(due time.Time) int64 {
		input := billInput()
		input.DueDate = &due
		bill, err := svc.CreateBill(ctx, input)
		require.NoError(t, err)
		require.NoError(t, svc.ApproveBill(ctx, ApprovalInput{ID: bill.ID, ActorID: 9}))
		return bill.ID
	}

	inWindow := mkBill(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC))
	mkBill(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))

	due, err := svc.BillsDueSoon(ctx, asOf)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, inWindow, due[0].ID)
}

func TestGetBillNotFound(t *testing.T) {
	svc, _ := newTestService(newMemoryRepo())
	_, err := svc.GetBill(context.Background(), 404)
	require.True(t, errors.Is(err, shared.ErrNotFound))
}
