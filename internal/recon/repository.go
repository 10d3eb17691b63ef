package recon

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khata-erp/khata-erp/internal/engine"
)

// BillBalance is one bill's row in the report source data: the stored
// figures plus the gross settled sum, joined in a single query.
type BillBalance struct {
	BillID        int64
	BillNumber    string
	Vendor        string
	GrandTotal    float64
	TDSAmount     float64
	SettledAmount float64
	DueDate       *time.Time
}

// Repository reads document projections across the ap and notes tables.
// All queries are read-only; writes stay with the owning modules.
type Repository interface {
	BillDocs(ctx context.Context, vendor string) ([]engine.BillDoc, error)
	PaymentDocs(ctx context.Context, vendor string) ([]engine.PaymentDoc, error)
	NoteDocs(ctx context.Context, vendor string) ([]engine.NoteDoc, error)
	BillBalances(ctx context.Context, vendor string) ([]BillBalance, error)
	SaveSnapshot(ctx context.Context, takenAt time.Time, report Report) error
}

// PgRepository implements Repository on a pgx pool.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) BillDocs(ctx context.Context, vendor string) ([]engine.BillDoc, error) {
	rows, err := r.pool.Query(ctx, `SELECT number, vendor, grand_total, tds_amount, approval
FROM bills WHERE ($1 = '' OR vendor = $1)`, vendor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []engine.BillDoc
	for rows.Next() {
		var d engine.BillDoc
		if err := rows.Scan(&d.BillNumber, &d.Vendor, &d.GrandTotal, &d.TDSAmount, &d.Approval); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *PgRepository) PaymentDocs(ctx context.Context, vendor string) ([]engine.PaymentDoc, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.bill_id, p.amount, p.net_amount, p.approval, p.status
FROM payments p JOIN bills b ON b.id = p.bill_id
WHERE ($1 = '' OR b.vendor = $1)`, vendor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []engine.PaymentDoc
	for rows.Next() {
		var d engine.PaymentDoc
		if err := rows.Scan(&d.BillID, &d.Amount, &d.NetAmount, &d.Approval, &d.Status); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *PgRepository) NoteDocs(ctx context.Context, vendor string) ([]engine.NoteDoc, error) {
	rows, err := r.pool.Query(ctx, `SELECT note_type, original_invoice_number, vendor, grand_total, approval, cancelled
FROM credit_debit_notes WHERE ($1 = '' OR vendor = $1)`, vendor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []engine.NoteDoc
	for rows.Next() {
		var d engine.NoteDoc
		if err := rows.Scan(&d.Type, &d.OriginalInvoiceNumber, &d.Vendor, &d.GrandTotal, &d.Approval, &d.Cancelled); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// BillBalances returns approved bills with their settled sums in one pass.
func (r *PgRepository) BillBalances(ctx context.Context, vendor string) ([]BillBalance, error) {
	rows, err := r.pool.Query(ctx, `SELECT b.id, b.number, b.vendor, b.grand_total, b.tds_amount,
COALESCE(SUM(p.amount) FILTER (WHERE p.approval = 'APPROVED'), 0), b.due_date
FROM bills b LEFT JOIN payments p ON p.bill_id = b.id
WHERE b.approval = 'APPROVED' AND ($1 = '' OR b.vendor = $1)
GROUP BY b.id ORDER BY b.bill_date, b.id`, vendor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []BillBalance
	for rows.Next() {
		var b BillBalance
		if err := rows.Scan(&b.BillID, &b.BillNumber, &b.Vendor, &b.GrandTotal, &b.TDSAmount,
			&b.SettledAmount, &b.DueDate); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// SaveSnapshot persists a point-in-time copy of the aggregate for trend
// queries and the nightly snapshot job.
func (r *PgRepository) SaveSnapshot(ctx context.Context, takenAt time.Time, report Report) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO reconciliation_snapshots
(taken_at, vendor, total_payable, total_paid, credit_notes_amount, debit_notes_amount, adjusted_payable, unreconciled)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		takenAt, report.Vendor,
		report.Summary.TotalPayable, report.Summary.TotalPaid,
		report.Summary.CreditNotesAmount, report.Summary.DebitNotesAmount,
		report.Summary.AdjustedPayable, report.Summary.Unreconciled)
	return err
}
