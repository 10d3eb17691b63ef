package engine

import (
	"fmt"
	"math"
	"time"
)

// ValidationKind classifies boundary validation failures. Validation runs
// once, when a document is loaded or submitted; the calculators themselves
// stay total functions over already well-typed numeric input.
type ValidationKind string

const (
	KindMissingAmount  ValidationKind = "missing_amount"
	KindNegativeAmount ValidationKind = "negative_amount"
	KindBadDate        ValidationKind = "bad_date"
)

// ValidationError reports a single rejected field.
type ValidationError struct {
	Kind  ValidationKind
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s: %s (%q)", e.Field, e.Kind, e.Value)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Kind)
}

// CheckAmount rejects missing (NaN/Inf) and negative monetary inputs at the
// boundary. The calculators would clamp these to zero; surfacing them here
// keeps silently-degraded input out of stored documents.
func CheckAmount(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &ValidationError{Kind: KindMissingAmount, Field: field}
	}
	if v < 0 {
		return &ValidationError{Kind: KindNegativeAmount, Field: field}
	}
	return nil
}

// ParseDate parses an ISO-8601 date or timestamp, rejecting anything that
// would otherwise propagate as NaN-bearing comparisons downstream.
func ParseDate(field, value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &ValidationError{Kind: KindBadDate, Field: field, Value: value}
}
