package ap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/khata-erp/khata-erp/internal/engine"
	"github.com/khata-erp/khata-erp/internal/shared"
)

// NotesProvider supplies the live credit/debit notes matched to a bill.
// Implemented by the notes service; injected to keep the modules decoupled.
type NotesProvider interface {
	MatchedNotes(ctx context.Context, billNumber, vendor string) ([]engine.NoteDoc, error)
}

// Invalidator is notified whenever a write changes what the reconciliation
// report would show.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// NumberSource issues document numbers.
type NumberSource interface {
	Next(ctx context.Context, prefix, sequence string) (string, error)
}

// ApprovalSink persists approval history entries.
type ApprovalSink interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

type Service struct {
	repo        Repository
	numbers     NumberSource
	approvals   ApprovalSink
	notes       NotesProvider
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

// SetNotesProvider injects the credit/debit note lookup.
func (s *Service) SetNotesProvider(p NotesProvider) { s.notes = p }

// SetInvalidator injects the reconciliation cache invalidation hook.
func (s *Service) SetInvalidator(inv Invalidator) { s.invalidator = inv }

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) checkItems(items []engine.LineItem) error {
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

// recompute derives items, totals, and TDS for the bill in place.
func recompute(bill *Bill) {
	for i, item := range bill.Items {
		bill.Items[i] = engine.ComputeItemTotals(item)
	}
	bill.Totals = engine.ComputeDocumentTotals(bill.Items)
	if bill.TDSSection != "" {
		bill.TDSAmount = engine.ComputeTDS(bill.Totals, bill.TDSPercentage)
	} else {
		bill.TDSAmount = 0
	}
}

// CreateBill validates, computes all derived figures, and stores the bill
// in the pending approval state.
func (s *Service) CreateBill(ctx context.Context, input CreateBillInput) (Bill, error) {
	if err := s.checkItems(input.Items); err != nil {
		return Bill{}, err
	}
	if err := engine.CheckAmount("tdsPercentage", input.TDSPercentage); err != nil {
		return Bill{}, err
	}

	bill := Bill{
		Ref:           uuid.New(),
		Number:        input.Number,
		Vendor:        input.Vendor,
		BillDate:      input.BillDate,
		DueDate:       input.DueDate,
		TDSSection:    input.TDSSection,
		TDSPercentage: input.TDSPercentage,
		Approval:      engine.ApprovalPending,
		Items:         append([]engine.LineItem(nil), input.Items...),
		CreatedBy:     input.CreatedBy,
	}
	recompute(&bill)

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if bill.Number == "" {
			num, err := s.numbers.Next(ctx, "BILL", shared.SeqBillNumber)
			if err != nil {
				return err
			}
			bill.Number = num
		}
		id, err := tx.CreateBill(ctx, bill)
		if err != nil {
			return err
		}
		bill.ID = id
		return tx.ReplaceBillItems(ctx, id, bill.Items)
	})
	if err != nil {
		return Bill{}, err
	}

	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			Module: "ap.bill", RefID: bill.Ref, ActorID: input.CreatedBy, Action: shared.ApprovalSubmit,
		})
	}
	return bill, nil
}

// UpdateBill replaces the line items and TDS selection of a pending bill
// and recomputes everything. Non-pending bills are immutable.
func (s *Service) UpdateBill(ctx context.Context, input UpdateBillInput) (Bill, error) {
	bill, err := s.repo.GetBill(ctx, input.BillID)
	if err != nil {
		return Bill{}, err
	}
	if bill.Approval != engine.ApprovalPending {
		return Bill{}, fmt.Errorf("bill %s: %w", bill.Number, shared.ErrImmutable)
	}
	if err := s.checkItems(input.Items); err != nil {
		return Bill{}, err
	}
	if err := engine.CheckAmount("tdsPercentage", input.TDSPercentage); err != nil {
		return Bill{}, err
	}

	bill.DueDate = input.DueDate
	bill.TDSSection = input.TDSSection
	bill.TDSPercentage = input.TDSPercentage
	bill.Items = append([]engine.LineItem(nil), input.Items...)
	recompute(&bill)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateBill(ctx, bill); err != nil {
			return err
		}
		return tx.ReplaceBillItems(ctx, bill.ID, bill.Items)
	})
	if err != nil {
		return Bill{}, err
	}
	return bill, nil
}

// DeleteBill removes a pending bill. Approved and rejected bills stay.
func (s *Service) DeleteBill(ctx context.Context, id int64) error {
	bill, err := s.repo.GetBill(ctx, id)
	if err != nil {
		return err
	}
	if bill.Approval != engine.ApprovalPending {
		return fmt.Errorf("bill %s: %w", bill.Number, shared.ErrImmutable)
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteBill(ctx, id)
	})
}

// ApproveBill moves a pending bill to approved, from which point it counts
// toward the payable position and its items freeze.
func (s *Service) ApproveBill(ctx context.Context, input ApprovalInput) error {
	return s.decideBill(ctx, input, engine.ApprovalApproved, shared.ApprovalApprove)
}

// RejectBill moves a pending bill to rejected.
func (s *Service) RejectBill(ctx context.Context, input ApprovalInput) error {
	return s.decideBill(ctx, input, engine.ApprovalRejected, shared.ApprovalReject)
}

func (s *Service) decideBill(ctx context.Context, input ApprovalInput, status engine.ApprovalStatus, action shared.ApprovalAction) error {
	bill, err := s.repo.GetBill(ctx, input.ID)
	if err != nil {
		return err
	}
	if bill.Approval != engine.ApprovalPending {
		return fmt.Errorf("bill %s: %w", bill.Number, shared.ErrInvalidStatus)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetBillApproval(ctx, input.ID, status)
	})
	if err != nil {
		return err
	}
	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			Module: "ap.bill", RefID: bill.Ref, ActorID: input.ActorID, Action: action, Note: input.Note,
		})
	}
	s.invalidate(ctx)
	return nil
}

// GetBill returns the bill with its live-derived settlement figures.
func (s *Service) GetBill(ctx context.Context, id int64) (BillView, error) {
	bill, err := s.repo.GetBill(ctx, id)
	if err != nil {
		return BillView{}, err
	}
	return s.view(ctx, bill)
}

// ListBills returns bill views matching the filter.
func (s *Service) ListBills(ctx context.Context, req ListBillsRequest) ([]BillView, error) {
	bills, err := s.repo.ListBills(ctx, req)
	if err != nil {
		return nil, err
	}
	settled, err := s.repo.SettledAmounts(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]BillView, 0, len(bills))
	for _, bill := range bills {
		matched, err := s.matchedNotes(ctx, bill)
		if err != nil {
			return nil, err
		}
		views = append(views, s.buildView(bill, settled[bill.ID], matched))
	}
	return views, nil
}

// CountBills returns the total matching the filter, for pagination.
func (s *Service) CountBills(ctx context.Context, req ListBillsRequest) (int, error) {
	return s.repo.CountBills(ctx, req)
}

// RemainingAmount returns the outstanding figure used to pre-fill a new
// payment for the bill.
func (s *Service) RemainingAmount(ctx context.Context, billID int64) (float64, error) {
	view, err := s.GetBill(ctx, billID)
	if err != nil {
		return 0, err
	}
	return view.RemainingAmount, nil
}

func (s *Service) view(ctx context.Context, bill Bill) (BillView, error) {
	settled, err := s.repo.SettledAmount(ctx, bill.ID)
	if err != nil {
		return BillView{}, err
	}
	matched, err := s.matchedNotes(ctx, bill)
	if err != nil {
		return BillView{}, err
	}
	return s.buildView(bill, settled, matched), nil
}

func (s *Service) matchedNotes(ctx context.Context, bill Bill) ([]engine.NoteDoc, error) {
	if s.notes == nil {
		return nil, nil
	}
	return s.notes.MatchedNotes(ctx, bill.Number, bill.Vendor)
}

func (s *Service) buildView(bill Bill, settled float64, matched []engine.NoteDoc) BillView {
	figures := bill.Figures(settled)
	return BillView{
		Bill:            bill,
		SettledAmount:   settled,
		RemainingAmount: engine.ComputeRemainingAmount(figures, matched),
		Status:          engine.ClassifyBillStatus(figures, s.now()),
	}
}

// RecordPayment stores a payment against an approved, still-payable bill.
// Retried submissions carrying the same idempotency key return the
// original payment instead of creating another.
func (s *Service) RecordPayment(ctx context.Context, input CreatePaymentInput) (Payment, error) {
	if err := engine.CheckAmount("amount", input.Amount); err != nil {
		return Payment{}, err
	}
	if err := engine.CheckAmount("tdsAmount", input.TDSAmount); err != nil {
		return Payment{}, err
	}
	if input.Amount <= 0 {
		return Payment{}, fmt.Errorf("%w: amount must be positive", shared.ErrInvalidStatus)
	}
	if input.TDSAmount > input.Amount {
		return Payment{}, &engine.ValidationError{Kind: engine.KindNegativeAmount, Field: "netAmount"}
	}

	if input.IdempotencyKey != uuid.Nil {
		existing, err := s.repo.FindPaymentByKey(ctx, input.IdempotencyKey)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return Payment{}, err
		}
	}

	bill, err := s.repo.GetBill(ctx, input.BillID)
	if err != nil {
		return Payment{}, err
	}
	if bill.Approval != engine.ApprovalApproved {
		return Payment{}, fmt.Errorf("bill %s must be approved before payment: %w", bill.Number, shared.ErrInvalidStatus)
	}
	settled, err := s.repo.SettledAmount(ctx, bill.ID)
	if err != nil {
		return Payment{}, err
	}
	matched, err := s.matchedNotes(ctx, bill)
	if err != nil {
		return Payment{}, err
	}
	if !engine.EligibleForPayment(bill.Figures(settled), matched, s.now()) {
		return Payment{}, fmt.Errorf("bill %s has no remaining balance: %w", bill.Number, shared.ErrInvalidStatus)
	}

	payment := Payment{
		Ref:            uuid.New(),
		Number:         input.Number,
		BillID:         input.BillID,
		IdempotencyKey: input.IdempotencyKey,
		Amount:         input.Amount,
		TDSAmount:      input.TDSAmount,
		NetAmount:      input.Amount - input.TDSAmount,
		PaymentDate:    input.PaymentDate,
		Method:         input.Method,
		Reference:      input.Reference,
		Approval:       engine.ApprovalPending,
		Status:         engine.PaymentPending,
		CreatedBy:      input.CreatedBy,
	}
	if payment.PaymentDate.IsZero() {
		payment.PaymentDate = s.now()
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if payment.Number == "" {
			num, err := s.numbers.Next(ctx, "PAY", shared.SeqPaymentNumber)
			if err != nil {
				return err
			}
			payment.Number = num
		}
		id, err := tx.CreatePayment(ctx, payment)
		if err != nil {
			return err
		}
		payment.ID = id
		return nil
	})
	if err != nil {
		return Payment{}, err
	}

	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			Module: "ap.payment", RefID: payment.Ref, ActorID: input.CreatedBy, Action: shared.ApprovalSubmit,
		})
	}
	return payment, nil
}

// ApprovePayment counts the payment toward the bill's settlement.
func (s *Service) ApprovePayment(ctx context.Context, input ApprovalInput) error {
	return s.decidePayment(ctx, input, engine.ApprovalApproved, shared.ApprovalApprove)
}

// RejectPayment excludes the payment from settlement permanently.
func (s *Service) RejectPayment(ctx context.Context, input ApprovalInput) error {
	return s.decidePayment(ctx, input, engine.ApprovalRejected, shared.ApprovalReject)
}

func (s *Service) decidePayment(ctx context.Context, input ApprovalInput, status engine.ApprovalStatus, action shared.ApprovalAction) error {
	payment, err := s.repo.GetPayment(ctx, input.ID)
	if err != nil {
		return err
	}
	if payment.Approval != engine.ApprovalPending {
		return fmt.Errorf("payment %s: %w", payment.Number, shared.ErrInvalidStatus)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetPaymentApproval(ctx, input.ID, status)
	})
	if err != nil {
		return err
	}
	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			Module: "ap.payment", RefID: payment.Ref, ActorID: input.ActorID, Action: action, Note: input.Note,
		})
	}
	s.invalidate(ctx)
	return nil
}

// CompletePayment marks an approved payment as disbursed. Only completed
// payments count as cash out in the reconciliation aggregate.
func (s *Service) CompletePayment(ctx context.Context, id int64) error {
	payment, err := s.repo.GetPayment(ctx, id)
	if err != nil {
		return err
	}
	if payment.Approval != engine.ApprovalApproved || payment.Status != engine.PaymentPending {
		return fmt.Errorf("payment %s: %w", payment.Number, shared.ErrInvalidStatus)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetPaymentStatus(ctx, id, engine.PaymentCompleted)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// GetPayment returns a single payment.
func (s *Service) GetPayment(ctx context.Context, id int64) (Payment, error) {
	return s.repo.GetPayment(ctx, id)
}

// ListPayments returns payments matching the filter.
func (s *Service) ListPayments(ctx context.Context, req ListPaymentsRequest) ([]Payment, error) {
	return s.repo.ListPayments(ctx, req)
}

// CountPayments returns the total matching the filter, for pagination.
func (s *Service) CountPayments(ctx context.Context, req ListPaymentsRequest) (int, error) {
	return s.repo.CountPayments(ctx, req)
}

// BillsDueSoon returns approved bills entering the reminder window as of
// the given date: unpaid, and due within DueSoonWindowDays.
func (s *Service) BillsDueSoon(ctx context.Context, asOf time.Time) ([]BillView, error) {
	views, err := s.ListBills(ctx, ListBillsRequest{Approval: engine.ApprovalApproved, Limit: 10000})
	if err != nil {
		return nil, err
	}
	var due []BillView
	for _, v := range views {
		if engine.ClassifyBillStatus(v.Figures(v.SettledAmount), asOf) == engine.StatusDueSoon {
			due = append(due, v)
		}
	}
	return due, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	_ = s.invalidator.Invalidate(ctx)
}
