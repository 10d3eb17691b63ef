package ap

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/khata-erp/khata-erp/internal/engine"
	"github.com/khata-erp/khata-erp/internal/platform/httpx"
	"github.com/khata-erp/khata-erp/internal/shared"
)

// Handler exposes bills and payments as a JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers bill and payment routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/bills", func(r chi.Router) {
		r.Get("/", h.listBills)
		r.Post("/", h.createBill)
		r.Get("/{id}", h.getBill)
		r.Put("/{id}", h.updateBill)
		r.Delete("/{id}", h.deleteBill)
		r.Post("/{id}/approve", h.approveBill)
		r.Post("/{id}/reject", h.rejectBill)
		r.Get("/{id}/remaining", h.remainingAmount)
	})
	r.Route("/payments", func(r chi.Router) {
		r.Get("/", h.listPayments)
		r.Post("/", h.createPayment)
		r.Get("/{id}", h.getPayment)
		r.Post("/{id}/approve", h.approvePayment)
		r.Post("/{id}/reject", h.rejectPayment)
		r.Post("/{id}/complete", h.completePayment)
	})
}

func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func actorID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	return id
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed JSON", err.Error())
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func pageParams(r *http.Request) (page, perPage int) {
	q := r.URL.Query()
	page, _ = strconv.Atoi(q.Get("page"))
	perPage, _ = strconv.Atoi(q.Get("per_page"))
	return page, perPage
}

func (h *Handler) listBills(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage := pageParams(r)
	pg := shared.NewPagination(page, perPage, 0)
	req := ListBillsRequest{
		Vendor:   q.Get("vendor"),
		Approval: engine.ApprovalStatus(q.Get("approval")),
		Limit:    pg.PerPage,
		Offset:   pg.Offset(),
	}
	views, err := h.service.ListBills(r.Context(), req)
	if err != nil {
		h.logger.Error("list bills", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	total, err := h.service.CountBills(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]billResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toBillResponse(v))
	}
	httpx.JSON(w, http.StatusOK, listResponse[billResponse]{
		Data:       out,
		Pagination: shared.NewPagination(pg.Page, pg.PerPage, total),
	})
}

func (h *Handler) createBill(w http.ResponseWriter, r *http.Request) {
	var req createBillRequest
	if !h.decode(w, r, &req) {
		return
	}
	input, err := req.toInput(actorID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	bill, err := h.service.CreateBill(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.GetBill(r.Context(), bill.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toBillResponse(view))
}

func (req createBillRequest) toInput(createdBy int64) (CreateBillInput, error) {
	billDate, err := engine.ParseDate("billDate", req.BillDate)
	if err != nil {
		return CreateBillInput{}, err
	}
	var dueDate *time.Time
	if req.DueDate != "" {
		d, err := engine.ParseDate("dueDate", req.DueDate)
		if err != nil {
			return CreateBillInput{}, err
		}
		dueDate = &d
	}
	items := make([]engine.LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, it.toItem())
	}
	return CreateBillInput{
		Number:        req.Number,
		Vendor:        req.Vendor,
		BillDate:      billDate,
		DueDate:       dueDate,
		TDSSection:    req.TDSSection,
		TDSPercentage: req.TDSPercentage,
		Items:         items,
		CreatedBy:     createdBy,
	}, nil
}

func (h *Handler) getBill(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid bill id")
		return
	}
	view, err := h.service.GetBill(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBillResponse(view))
}

func (h *Handler) updateBill(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid bill id")
		return
	}
	var req updateBillRequest
	if !h.decode(w, r, &req) {
		return
	}
	var dueDate *time.Time
	if req.DueDate != "" {
		d, err := engine.ParseDate("dueDate", req.DueDate)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		dueDate = &d
	}
	items := make([]engine.LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, it.toItem())
	}
	if _, err := h.service.UpdateBill(r.Context(), UpdateBillInput{
		BillID:        id,
		DueDate:       dueDate,
		TDSSection:    req.TDSSection,
		TDSPercentage: req.TDSPercentage,
		Items:         items,
	}); err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.GetBill(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBillResponse(view))
}

func (h *Handler) deleteBill(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid bill id")
		return
	}
	if err := h.service.DeleteBill(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) approveBill(w http.ResponseWriter, r *http.Request) {
	h.decideBill(w, r, h.service.ApproveBill)
}

func (h *Handler) rejectBill(w http.ResponseWriter, r *http.Request) {
	h.decideBill(w, r, h.service.RejectBill)
}

func (h *Handler) decideBill(w http.ResponseWriter, r *http.Request, decide func(ctx context.Context, input ApprovalInput) error) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid bill id")
		return
	}
	var req approvalRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := decide(r.Context(), ApprovalInput{ID: id, ActorID: req.ActorID, Note: req.Note}); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) remainingAmount(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid bill id")
		return
	}
	remaining, err := h.service.RemainingAmount(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]float64{"remainingAmount": remaining})
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	billID, _ := strconv.ParseInt(q.Get("bill_id"), 10, 64)
	page, perPage := pageParams(r)
	pg := shared.NewPagination(page, perPage, 0)
	req := ListPaymentsRequest{
		BillID: billID,
		Limit:  pg.PerPage,
		Offset: pg.Offset(),
	}
	payments, err := h.service.ListPayments(r.Context(), req)
	if err != nil {
		h.logger.Error("list payments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	total, err := h.service.CountPayments(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentResponse(p))
	}
	httpx.JSON(w, http.StatusOK, listResponse[paymentResponse]{
		Data:       out,
		Pagination: shared.NewPagination(pg.Page, pg.PerPage, total),
	})
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	var key uuid.UUID
	if req.IdempotencyKey != "" {
		parsed, err := uuid.Parse(req.IdempotencyKey)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "idempotencyKey must be a UUID")
			return
		}
		key = parsed
	}
	var paymentDate time.Time
	if req.PaymentDate != "" {
		d, err := engine.ParseDate("paymentDate", req.PaymentDate)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		paymentDate = d
	}
	payment, err := h.service.RecordPayment(r.Context(), CreatePaymentInput{
		Number:         req.Number,
		BillID:         req.BillID,
		IdempotencyKey: key,
		Amount:         req.Amount,
		TDSAmount:      req.TDSAmount,
		PaymentDate:    paymentDate,
		Method:         req.Method,
		Reference:      req.Reference,
		CreatedBy:      actorID(r),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPaymentResponse(payment))
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid payment id")
		return
	}
	payment, err := h.service.GetPayment(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPaymentResponse(payment))
}

func (h *Handler) approvePayment(w http.ResponseWriter, r *http.Request) {
	h.decidePayment(w, r, h.service.ApprovePayment)
}

func (h *Handler) rejectPayment(w http.ResponseWriter, r *http.Request) {
	h.decidePayment(w, r, h.service.RejectPayment)
}

func (h *Handler) decidePayment(w http.ResponseWriter, r *http.Request, decide func(ctx context.Context, input ApprovalInput) error) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid payment id")
		return
	}
	var req approvalRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := decide(r.Context(), ApprovalInput{ID: id, ActorID: req.ActorID, Note: req.Note}); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) completePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid payment id")
		return
	}
	if err := h.service.CompletePayment(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
