package engine

import "time"

// AgingBuckets summarises outstanding balances by how far past due they
// are. Bucket30 covers 1-30 days overdue, Bucket60 31-60, and so on;
// anything beyond 90 days lands in Bucket120.
type AgingBuckets struct {
	Current   float64 `json:"current"`
	Bucket30  float64 `json:"bucket30"`
	Bucket60  float64 `json:"bucket60"`
	Bucket90  float64 `json:"bucket90"`
	Bucket120 float64 `json:"bucket120"`
}

// Total sums all buckets.
func (b AgingBuckets) Total() float64 {
	return b.Current + b.Bucket30 + b.Bucket60 + b.Bucket90 + b.Bucket120
}

// AgingEntry is one bill's outstanding balance and due date.
type AgingEntry struct {
	DueDate     *time.Time
	Outstanding float64
}

// ComputeAging distributes outstanding balances into aging buckets as of
// the given date. Settled or over-settled bills contribute nothing; bills
// without a due date are treated as current.
func ComputeAging(entries []AgingEntry, asOf time.Time) AgingBuckets {
	var buckets AgingBuckets
	for _, e := range entries {
		if e.Outstanding <= 0 {
			continue
		}
		if e.DueDate == nil {
			buckets.Current += e.Outstanding
			continue
		}
		overdue := -DaysUntil(asOf, *e.DueDate)
		switch {
		case overdue <= 0:
			buckets.Current += e.Outstanding
		case overdue <= 30:
			buckets.Bucket30 += e.Outstanding
		case overdue <= 60:
			buckets.Bucket60 += e.Outstanding
		case overdue <= 90:
			buckets.Bucket90 += e.Outstanding
		default:
			buckets.Bucket120 += e.Outstanding
		}
	}
	return buckets
}
