package recon

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/khata-erp/khata-erp/internal/engine"
	"github.com/khata-erp/khata-erp/internal/platform/httpx"
)

// Handler exposes the reconciliation reports. Mounted under
// /reconciliation.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.report)
	r.Get("/aging", h.aging)
	r.Get("/export.csv", h.exportCSV)
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Report(r.Context(), r.URL.Query().Get("vendor"))
	if err != nil {
		h.logger.Error("reconciliation report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var asOf time.Time
	if raw := q.Get("as_of"); raw != "" {
		parsed, err := engine.ParseDate("as_of", raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		asOf = parsed
	}
	report, err := h.service.Aging(r.Context(), q.Get("vendor"), asOf)
	if err != nil {
		h.logger.Error("aging report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Report(r.Context(), r.URL.Query().Get("vendor"))
	if err != nil {
		h.logger.Error("reconciliation export", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="reconciliation.csv"`)
	if err := WriteReportCSV(w, report); err != nil {
		h.logger.Error("write reconciliation csv", slog.Any("error", err))
	}
}
