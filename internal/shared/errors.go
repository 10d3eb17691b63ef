package shared

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a uniqueness conflict (document number,
	// idempotency key).
	ErrDuplicate = errors.New("duplicate")
	// ErrImmutable indicates an edit or delete against a document that has
	// left the pending approval state.
	ErrImmutable = errors.New("document no longer editable")
	// ErrInvalidStatus indicates the operation does not apply in the
	// document's current lifecycle state.
	ErrInvalidStatus = errors.New("invalid status for operation")
)
