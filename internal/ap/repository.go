package ap

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khata-erp/khata-erp/internal/engine"
	"github.com/khata-erp/khata-erp/internal/platform/db"
	"github.com/khata-erp/khata-erp/internal/shared"
)

// Repository abstracts bill and payment storage.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	GetBill(ctx context.Context, id int64) (Bill, error)
	ListBills(ctx context.Context, req ListBillsRequest) ([]Bill, error)
	CountBills(ctx context.Context, req ListBillsRequest) (int, error)
	SettledAmount(ctx context.Context, billID int64) (float64, error)
	SettledAmounts(ctx context.Context) (map[int64]float64, error)
	GetPayment(ctx context.Context, id int64) (Payment, error)
	FindPaymentByKey(ctx context.Context, key uuid.UUID) (Payment, error)
	ListPayments(ctx context.Context, req ListPaymentsRequest) ([]Payment, error)
	CountPayments(ctx context.Context, req ListPaymentsRequest) (int, error)
}

// TxRepository covers the writes that must happen atomically.
type TxRepository interface {
	CreateBill(ctx context.Context, bill Bill) (int64, error)
	UpdateBill(ctx context.Context, bill Bill) error
	ReplaceBillItems(ctx context.Context, billID int64, items []engine.LineItem) error
	DeleteBill(ctx context.Context, id int64) error
	SetBillApproval(ctx context.Context, id int64, status engine.ApprovalStatus) error
	CreatePayment(ctx context.Context, payment Payment) (int64, error)
	SetPaymentApproval(ctx context.Context, id int64, status engine.ApprovalStatus) error
	SetPaymentStatus(ctx context.Context, id int64, status engine.PaymentStatus) error
}

// PgRepository implements Repository on a pgx pool.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

type pgTx struct {
	tx pgx.Tx
}

func (r *PgRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx})
	})
}

const billColumns = `id, ref, number, vendor, bill_date, due_date, tds_section, tds_percentage, tds_amount,
approval, subtotal, total_discount, total_taxable_value, total_cgst, total_sgst, total_igst, total_cess,
total_tax, grand_total, created_by, created_at, updated_at`

func scanBill(row pgx.Row) (Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.Ref, &b.Number, &b.Vendor, &b.BillDate, &b.DueDate,
		&b.TDSSection, &b.TDSPercentage, &b.TDSAmount, &b.Approval,
		&b.Totals.Subtotal, &b.Totals.TotalDiscount, &b.Totals.TotalTaxableValue,
		&b.Totals.TotalCGST, &b.Totals.TotalSGST, &b.Totals.TotalIGST, &b.Totals.TotalCESS,
		&b.Totals.TotalTax, &b.Totals.GrandTotal, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Bill{}, fmt.Errorf("bill: %w", shared.ErrNotFound)
	}
	return b, err
}

func (r *PgRepository) GetBill(ctx context.Context, id int64) (Bill, error) {
	bill, err := scanBill(r.pool.QueryRow(ctx, `SELECT `+billColumns+` FROM bills WHERE id = $1`, id))
	if err != nil {
		return Bill{}, err
	}
	bill.Items, err = r.billItems(ctx, id)
	return bill, err
}

func (r *PgRepository) billItems(ctx context.Context, billID int64) ([]engine.LineItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT description, hsn_code, quantity, unit_price, discount_percent,
cgst_rate, sgst_rate, igst_rate, cess_rate, gross_amount, discount_amount, taxable_value,
cgst_amount, sgst_amount, igst_amount, cess_amount, total_amount
FROM bill_items WHERE bill_id = $1 ORDER BY position`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []engine.LineItem
	for rows.Next() {
		var it engine.LineItem
		if err := rows.Scan(&it.Description, &it.HSNCode, &it.Quantity, &it.UnitPrice, &it.DiscountPercent,
			&it.CGSTRate, &it.SGSTRate, &it.IGSTRate, &it.CESSRate, &it.GrossAmount, &it.DiscountAmount,
			&it.TaxableValue, &it.CGSTAmount, &it.SGSTAmount, &it.IGSTAmount, &it.CESSAmount, &it.TotalAmount); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *PgRepository) ListBills(ctx context.Context, req ListBillsRequest) ([]Bill, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+billColumns+` FROM bills
WHERE ($1 = '' OR vendor = $1) AND ($2 = '' OR approval = $2)
ORDER BY bill_date DESC, id DESC LIMIT $3 OFFSET $4`,
		req.Vendor, string(req.Approval), limit, req.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bills []Bill
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, bill)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range bills {
		items, err := r.billItems(ctx, bills[i].ID)
		if err != nil {
			return nil, err
		}
		bills[i].Items = items
	}
	return bills, nil
}

func (r *PgRepository) CountBills(ctx context.Context, req ListBillsRequest) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bills
WHERE ($1 = '' OR vendor = $1) AND ($2 = '' OR approval = $2)`,
		req.Vendor, string(req.Approval)).Scan(&total)
	return total, err
}

// SettledAmount sums the gross amounts of approved payments on one bill.
func (r *PgRepository) SettledAmount(ctx context.Context, billID int64) (float64, error) {
	var settled float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM payments
WHERE bill_id = $1 AND approval = 'APPROVED'`, billID).Scan(&settled)
	return settled, err
}

// SettledAmounts returns the approved gross payment sum per bill.
func (r *PgRepository) SettledAmounts(ctx context.Context) (map[int64]float64, error) {
	rows, err := r.pool.Query(ctx, `SELECT bill_id, SUM(amount) FROM payments
WHERE approval = 'APPROVED' GROUP BY bill_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settled := make(map[int64]float64)
	for rows.Next() {
		var billID int64
		var sum float64
		if err := rows.Scan(&billID, &sum); err != nil {
			return nil, err
		}
		settled[billID] = sum
	}
	return settled, rows.Err()
}

const paymentColumns = `id, ref, number, bill_id, idempotency_key, amount, tds_amount, net_amount,
payment_date, method, reference, approval, status, created_by, created_at, updated_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.Ref, &p.Number, &p.BillID, &p.IdempotencyKey, &p.Amount, &p.TDSAmount,
		&p.NetAmount, &p.PaymentDate, &p.Method, &p.Reference, &p.Approval, &p.Status,
		&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, fmt.Errorf("payment: %w", shared.ErrNotFound)
	}
	return p, err
}

func (r *PgRepository) GetPayment(ctx context.Context, id int64) (Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

func (r *PgRepository) FindPaymentByKey(ctx context.Context, key uuid.UUID) (Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE idempotency_key = $1`, key))
}

func (r *PgRepository) ListPayments(ctx context.Context, req ListPaymentsRequest) ([]Payment, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payments
WHERE ($1 = 0 OR bill_id = $1)
ORDER BY payment_date DESC, id DESC LIMIT $2 OFFSET $3`, req.BillID, limit, req.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *PgRepository) CountPayments(ctx context.Context, req ListPaymentsRequest) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM payments
WHERE ($1 = 0 OR bill_id = $1)`, req.BillID).Scan(&total)
	return total, err
}

// --- transactional writes ---

func (t *pgTx) CreateBill(ctx context.Context, bill Bill) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO bills (ref, number, vendor, bill_date, due_date, tds_section,
tds_percentage, tds_amount, approval, subtotal, total_discount, total_taxable_value, total_cgst,
total_sgst, total_igst, total_cess, total_tax, grand_total, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,NOW(),NOW())
RETURNING id`,
		bill.Ref, bill.Number, bill.Vendor, bill.BillDate, bill.DueDate, bill.TDSSection,
		bill.TDSPercentage, bill.TDSAmount, string(bill.Approval),
		bill.Totals.Subtotal, bill.Totals.TotalDiscount, bill.Totals.TotalTaxableValue,
		bill.Totals.TotalCGST, bill.Totals.TotalSGST, bill.Totals.TotalIGST, bill.Totals.TotalCESS,
		bill.Totals.TotalTax, bill.Totals.GrandTotal, bill.CreatedBy).Scan(&id)
	return id, mapWriteErr(err)
}

func (t *pgTx) UpdateBill(ctx context.Context, bill Bill) error {
	tag, err := t.tx.Exec(ctx, `UPDATE bills SET due_date=$2, tds_section=$3, tds_percentage=$4,
tds_amount=$5, subtotal=$6, total_discount=$7, total_taxable_value=$8, total_cgst=$9, total_sgst=$10,
total_igst=$11, total_cess=$12, total_tax=$13, grand_total=$14, updated_at=NOW()
WHERE id = $1`,
		bill.ID, bill.DueDate, bill.TDSSection, bill.TDSPercentage, bill.TDSAmount,
		bill.Totals.Subtotal, bill.Totals.TotalDiscount, bill.Totals.TotalTaxableValue,
		bill.Totals.TotalCGST, bill.Totals.TotalSGST, bill.Totals.TotalIGST, bill.Totals.TotalCESS,
		bill.Totals.TotalTax, bill.Totals.GrandTotal)
	if err != nil {
		return mapWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bill %d: %w", bill.ID, shared.ErrNotFound)
	}
	return nil
}

func (t *pgTx) ReplaceBillItems(ctx context.Context, billID int64, items []engine.LineItem) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM bill_items WHERE bill_id = $1`, billID); err != nil {
		return err
	}
	for pos, it := range items {
		_, err := t.tx.Exec(ctx, `INSERT INTO bill_items (bill_id, position, description, hsn_code,
quantity, unit_price, discount_percent, cgst_rate, sgst_rate, igst_rate, cess_rate, gross_amount,
discount_amount, taxable_value, cgst_amount, sgst_amount, igst_amount, cess_amount, total_amount)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
			billID, pos, it.Description, it.HSNCode, it.Quantity, it.UnitPrice, it.DiscountPercent,
			it.CGSTRate, it.SGSTRate, it.IGSTRate, it.CESSRate, it.GrossAmount, it.DiscountAmount,
			it.TaxableValue, it.CGSTAmount, it.SGSTAmount, it.IGSTAmount, it.CESSAmount, it.TotalAmount)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) DeleteBill(ctx context.Context, id int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM bill_items WHERE bill_id = $1`, id); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM bills WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bill %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (t *pgTx) SetBillApproval(ctx context.Context, id int64, status engine.ApprovalStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE bills SET approval=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bill %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (t *pgTx) CreatePayment(ctx context.Context, payment Payment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO payments (ref, number, bill_id, idempotency_key, amount,
tds_amount, net_amount, payment_date, method, reference, approval, status, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NOW(),NOW())
RETURNING id`,
		payment.Ref, payment.Number, payment.BillID, payment.IdempotencyKey, payment.Amount,
		payment.TDSAmount, payment.NetAmount, payment.PaymentDate, payment.Method, payment.Reference,
		string(payment.Approval), string(payment.Status), payment.CreatedBy).Scan(&id)
	return id, mapWriteErr(err)
}

func (t *pgTx) SetPaymentApproval(ctx context.Context, id int64, status engine.ApprovalStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE payments SET approval=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (t *pgTx) SetPaymentStatus(ctx context.Context, id int64, status engine.PaymentStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE payments SET status=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

// mapWriteErr converts Postgres unique violations into the shared
// duplicate sentinel so handlers can answer 409.
func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, shared.ErrDuplicate)
	}
	return err
}
