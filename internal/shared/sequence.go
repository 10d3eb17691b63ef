package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Sequence issues document numbers from Postgres sequences. Numbers are
// allocated server-side and atomically so concurrent sessions can never
// collide, unlike client-local counters.
type Sequence struct {
	pool *pgxpool.Pool
}

// NewSequence constructs a Sequence backed by the given pool.
func NewSequence(pool *pgxpool.Pool) *Sequence {
	return &Sequence{pool: pool}
}

// Next returns the next number for a document kind, formatted as
// PREFIX-YYYY-NNNNNN, e.g. BILL-2026-000042.
func (s *Sequence) Next(ctx context.Context, prefix, sequence string) (string, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT nextval($1)`, sequence).Scan(&n); err != nil {
		return "", fmt.Errorf("shared: next %s: %w", sequence, err)
	}
	return fmt.Sprintf("%s-%d-%06d", prefix, time.Now().UTC().Year(), n), nil
}

// Sequence names provisioned by the schema.
const (
	SeqBillNumber    = "bill_number_seq"
	SeqPaymentNumber = "payment_number_seq"
	SeqNoteNumber    = "note_number_seq"
)
