package httpx

import (
	"errors"
	"net/http"

	"github.com/khata-erp/khata-erp/internal/engine"
	"github.com/khata-erp/khata-erp/internal/shared"
)

// RespondError maps domain errors to RFC7807 responses. Unknown errors
// collapse to a bare 500 without leaking internals.
func RespondError(w http.ResponseWriter, err error) {
	var verr *engine.ValidationError
	switch {
	case errors.As(err, &verr):
		Problem(w, http.StatusBadRequest, "Validation Failed", verr.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, shared.ErrImmutable):
		Problem(w, http.StatusConflict, "Immutable", err.Error())
	case errors.Is(err, shared.ErrInvalidStatus):
		Problem(w, http.StatusUnprocessableEntity, "Invalid Status", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
