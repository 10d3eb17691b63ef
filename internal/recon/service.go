package recon

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/khata-erp/khata-erp/internal/engine"
	"github.com/khata-erp/khata-erp/internal/observability"
)

// ReportRow is one bill in the report with its live-derived figures.
type ReportRow struct {
	BillNumber      string            `json:"billNumber"`
	Vendor          string            `json:"vendor"`
	GrandTotal      float64           `json:"grandTotal"`
	TDSAmount       float64           `json:"tdsAmount"`
	SettledAmount   float64           `json:"settledAmount"`
	RemainingAmount float64           `json:"remainingAmount"`
	Status          engine.BillStatus `json:"status"`
}

// Report is the full reconciliation payload served over HTTP and cached
// as one JSON value.
type Report struct {
	Vendor      string                `json:"vendor,omitempty"`
	GeneratedAt time.Time             `json:"generatedAt"`
	Summary     engine.Reconciliation `json:"summary"`
	Rows        []ReportRow           `json:"rows"`
}

// AgingReport distributes outstanding balances into overdue buckets.
type AgingReport struct {
	Vendor      string              `json:"vendor,omitempty"`
	AsOf        time.Time           `json:"asOf"`
	Buckets     engine.AgingBuckets `json:"buckets"`
	Total       float64             `json:"total"`
	GeneratedAt time.Time           `json:"generatedAt"`
}

// Service computes reconciliation reports with caching and request
// collapsing. It also implements the Invalidate hook the ap and notes
// services call after writes.
type Service struct {
	repo    Repository
	cache   *Cache
	metrics *observability.Metrics
	group   singleflight.Group
	now     func() time.Time
}

func NewService(repo Repository, cache *Cache, metrics *observability.Metrics) *Service {
	return &Service{
		repo:    repo,
		cache:   cache,
		metrics: metrics,
		now:     time.Now,
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Report returns the reconciliation report, optionally filtered to one
// vendor. Concurrent requests for the same key share one computation.
func (s *Service) Report(ctx context.Context, vendor string) (Report, error) {
	key, err := s.cache.BuildKey(ctx, keyReport(vendor))
	if err != nil {
		return Report{}, err
	}
	var report Report
	err = s.fetch(ctx, key, &report, func(ctx context.Context) (interface{}, error) {
		return s.compute(ctx, vendor)
	})
	return report, err
}

// Aging returns the aging bucket report as of the given date.
func (s *Service) Aging(ctx context.Context, vendor string, asOf time.Time) (AgingReport, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	key, err := s.cache.BuildKey(ctx, keyAging(vendor, asOf))
	if err != nil {
		return AgingReport{}, err
	}
	var report AgingReport
	err = s.fetch(ctx, key, &report, func(ctx context.Context) (interface{}, error) {
		return s.computeAging(ctx, vendor, asOf)
	})
	return report, err
}

// fetch collapses concurrent loads per key, then defers to the cache.
func (s *Service) fetch(ctx context.Context, key string, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	resultChan := s.group.DoChan(key, func() (interface{}, error) {
		var out interface{}
		err := s.cache.FetchJSON(ctx, key, &out, loader)
		return out, err
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return res.Err
		}
		return reencode(res.Val, dest)
	}
}

func (s *Service) compute(ctx context.Context, vendor string) (Report, error) {
	s.metrics.ObserveReconRun()

	bills, err := s.repo.BillDocs(ctx, vendor)
	if err != nil {
		return Report{}, err
	}
	payments, err := s.repo.PaymentDocs(ctx, vendor)
	if err != nil {
		return Report{}, err
	}
	notes, err := s.repo.NoteDocs(ctx, vendor)
	if err != nil {
		return Report{}, err
	}
	balances, err := s.repo.BillBalances(ctx, vendor)
	if err != nil {
		return Report{}, err
	}

	asOf := s.now()
	report := Report{
		Vendor:      vendor,
		GeneratedAt: asOf,
		Summary:     engine.ComputeReconciliation(bills, payments, notes),
		Rows:        make([]ReportRow, 0, len(balances)),
	}
	for _, b := range balances {
		figures := engine.BillFigures{
			GrandTotal:    b.GrandTotal,
			TDSAmount:     b.TDSAmount,
			SettledAmount: b.SettledAmount,
			DueDate:       b.DueDate,
		}
		matched := engine.MatchNotes(b.BillNumber, b.Vendor, notes)
		report.Rows = append(report.Rows, ReportRow{
			BillNumber:      b.BillNumber,
			Vendor:          b.Vendor,
			GrandTotal:      b.GrandTotal,
			TDSAmount:       b.TDSAmount,
			SettledAmount:   b.SettledAmount,
			RemainingAmount: engine.ComputeRemainingAmount(figures, matched),
			Status:          engine.ClassifyBillStatus(figures, asOf),
		})
	}
	return report, nil
}

func (s *Service) computeAging(ctx context.Context, vendor string, asOf time.Time) (AgingReport, error) {
	s.metrics.ObserveReconRun()

	balances, err := s.repo.BillBalances(ctx, vendor)
	if err != nil {
		return AgingReport{}, err
	}
	notes, err := s.repo.NoteDocs(ctx, vendor)
	if err != nil {
		return AgingReport{}, err
	}

	entries := make([]engine.AgingEntry, 0, len(balances))
	for _, b := range balances {
		figures := engine.BillFigures{
			GrandTotal:    b.GrandTotal,
			TDSAmount:     b.TDSAmount,
			SettledAmount: b.SettledAmount,
			DueDate:       b.DueDate,
		}
		matched := engine.MatchNotes(b.BillNumber, b.Vendor, notes)
		entries = append(entries, engine.AgingEntry{
			DueDate:     b.DueDate,
			Outstanding: engine.ComputeRemainingAmount(figures, matched),
		})
	}
	buckets := engine.ComputeAging(entries, asOf)
	return AgingReport{
		Vendor:      vendor,
		AsOf:        asOf,
		Buckets:     buckets,
		Total:       buckets.Total(),
		GeneratedAt: s.now(),
	}, nil
}

// Invalidate bumps the cache version. Called by the ap and notes services
// after any write that changes report output.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// SaveSnapshot computes the all-vendor report fresh and persists its
// aggregate. The nightly job calls this.
func (s *Service) SaveSnapshot(ctx context.Context) error {
	report, err := s.compute(ctx, "")
	if err != nil {
		return err
	}
	return s.repo.SaveSnapshot(ctx, s.now(), report)
}

// reencode round-trips the shared singleflight value into the caller's
// typed destination.
func reencode(value interface{}, dest interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
