package notes

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khata-erp/khata-erp/internal/engine"
	"github.com/khata-erp/khata-erp/internal/platform/db"
	"github.com/khata-erp/khata-erp/internal/shared"
)

// Repository abstracts note storage.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	GetNote(ctx context.Context, id int64) (Note, error)
	ListNotes(ctx context.Context, req ListNotesRequest) ([]Note, error)
	CountNotes(ctx context.Context, req ListNotesRequest) (int, error)
}

// TxRepository covers the writes that must happen atomically.
type TxRepository interface {
	CreateNote(ctx context.Context, note Note) (int64, error)
	UpdateNote(ctx context.Context, note Note) error
	ReplaceNoteItems(ctx context.Context, noteID int64, items []engine.LineItem) error
	DeleteNote(ctx context.Context, id int64) error
	SetNoteApproval(ctx context.Context, id int64, status engine.ApprovalStatus) error
	SetNoteCancelled(ctx context.Context, id int64, cancelled bool) error
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

const noteColumns = `id, ref, number, note_type, vendor, original_invoice_number, note_date, reason,
approval, cancelled, subtotal, total_discount, total_taxable_value, total_cgst, total_sgst,
total_igst, total_cess, total_tax, grand_total, created_by, created_at, updated_at`

func scanNote(row pgx.Row) (Note, error) {
	var n Note
	err := row.Scan(&n.ID, &n.Ref, &n.Number, &n.Type, &n.Vendor, &n.OriginalInvoiceNumber,
		&n.NoteDate, &n.Reason, &n.Approval, &n.Cancelled,
		&n.Totals.Subtotal, &n.Totals.TotalDiscount, &n.Totals.TotalTaxableValue,
		&n.Totals.TotalCGST, &n.Totals.TotalSGST, &n.Totals.TotalIGST, &n.Totals.TotalCESS,
		&n.Totals.TotalTax, &n.Totals.GrandTotal, &n.CreatedBy, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Note{}, fmt.Errorf("note: %w", shared.ErrNotFound)
	}
	return n, err
}

func (r *PgRepository) GetNote(ctx context.Context, id int64) (Note, error) {
	note, err := scanNote(r.pool.QueryRow(ctx, `SELECT `+noteColumns+` FROM credit_debit_notes WHERE id = $1`, id))
	if err != nil {
		return Note{}, err
	}
	note.Items, err = r.noteItems(ctx, id)
	return note, err
}

func (r *PgRepository) noteItems(ctx context.Context, noteID int64) ([]engine.LineItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT description, hsn_code, quantity, unit_price, discount_percent,
cgst_rate, sgst_rate, igst_rate, cess_rate, gross_amount, discount_amount, taxable_value,
cgst_amount, sgst_amount, igst_amount, cess_amount, total_amount
FROM note_items WHERE note_id = $1 ORDER BY position`, noteID)
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

func (r *PgRepository) ListNotes(ctx context.Context, req ListNotesRequest) ([]Note, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+noteColumns+` FROM credit_debit_notes
WHERE ($1 = '' OR vendor = $1) AND ($2 = '' OR original_invoice_number = $2) AND ($3 = '' OR note_type = $3)
ORDER BY note_date DESC, id DESC LIMIT $4 OFFSET $5`,
		req.Vendor, req.OriginalInvoice, string(req.Type), limit, req.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range notes {
		items, err := r.noteItems(ctx, notes[i].ID)
		if err != nil {
			return nil, err
		}
		notes[i].Items = items
	}
	return notes, nil
}

func (r *PgRepository) CountNotes(ctx context.Context, req ListNotesRequest) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM credit_debit_notes
WHERE ($1 = '' OR vendor = $1) AND ($2 = '' OR original_invoice_number = $2) AND ($3 = '' OR note_type = $3)`,
		req.Vendor, req.OriginalInvoice, string(req.Type)).Scan(&total)
	return total, err
}

// --- transactional writes ---

func (t *pgTx) CreateNote(ctx context.Context, note Note) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO credit_debit_notes (ref, number, note_type, vendor,
original_invoice_number, note_date, reason, approval, cancelled, subtotal, total_discount,
total_taxable_value, total_cgst, total_sgst, total_igst, total_cess, total_tax, grand_total,
created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,NOW(),NOW())
RETURNING id`,
		note.Ref, note.Number, string(note.Type), note.Vendor, note.OriginalInvoiceNumber,
		note.NoteDate, note.Reason, string(note.Approval), note.Cancelled,
		note.Totals.Subtotal, note.Totals.TotalDiscount, note.Totals.TotalTaxableValue,
		note.Totals.TotalCGST, note.Totals.TotalSGST, note.Totals.TotalIGST, note.Totals.TotalCESS,
		note.Totals.TotalTax, note.Totals.GrandTotal, note.CreatedBy).Scan(&id)
	return id, mapWriteErr(err)
}

func (t *pgTx) UpdateNote(ctx context.Context, note Note) error {
	tag, err := t.tx.Exec(ctx, `UPDATE credit_debit_notes SET original_invoice_number=$2, reason=$3,
subtotal=$4, total_discount=$5, total_taxable_value=$6, total_cgst=$7, total_sgst=$8, total_igst=$9,
total_cess=$10, total_tax=$11, grand_total=$12, updated_at=NOW()
WHERE id = $1`,
		note.ID, note.OriginalInvoiceNumber, note.Reason,
		note.Totals.Subtotal, note.Totals.TotalDiscount, note.Totals.TotalTaxableValue,
		note.Totals.TotalCGST, note.Totals.TotalSGST, note.Totals.TotalIGST, note.Totals.TotalCESS,
		note.Totals.TotalTax, note.Totals.GrandTotal)
	if err != nil {
		return mapWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("note %d: %w", note.ID, shared.ErrNotFound)
	}
	return nil
}

func (t *pgTx) ReplaceNoteItems(ctx context.Context, noteID int64, items []engine.LineItem) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM note_items WHERE note_id = $1`, noteID); err != nil {
		return err
	}
	for pos, it := range items {
		_, err := t.tx.Exec(ctx, `INSERT INTO note_items (note_id, position, description, hsn_code,
quantity, unit_price, discount_percent, cgst_rate, sgst_rate, igst_rate, cess_rate, gross_amount,
discount_amount, taxable_value, cgst_amount, sgst_amount, igst_amount, cess_amount, total_amount)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
			noteID, pos, it.Description, it.HSNCode, it.Quantity, it.UnitPrice, it.DiscountPercent,
			it.CGSTRate, it.SGSTRate, it.IGSTRate, it.CESSRate, it.GrossAmount, it.DiscountAmount,
			it.TaxableValue, it.CGSTAmount, it.SGSTAmount, it.IGSTAmount, it.CESSAmount, it.TotalAmount)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) DeleteNote(ctx context.Context, id int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM note_items WHERE note_id = $1`, id); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM credit_debit_notes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("note %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (t *pgTx) SetNoteApproval(ctx context.Context, id int64, status engine.ApprovalStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE credit_debit_notes SET approval=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("note %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (t *pgTx) SetNoteCancelled(ctx context.Context, id int64, cancelled bool) error {
	tag, err := t.tx.Exec(ctx, `UPDATE credit_debit_notes SET cancelled=$2, updated_at=NOW() WHERE id=$1`, id, cancelled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("note %d: %w", id, shared.ErrNotFound)
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
