package notes

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/khata-erp/khata-erp/internal/engine"
	"github.com/khata-erp/khata-erp/internal/platform/httpx"
	"github.com/khata-erp/khata-erp/internal/shared"
)

// Handler exposes credit/debit notes as a JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers the note routes. Mounted under /credit-debit-notes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/reject", h.reject)
	r.Post("/{id}/cancel", h.cancel)
}

type lineItemRequest struct {
	Description     string  `json:"description"`
	HSNCode         string  `json:"hsnCode"`
	Quantity        float64 `json:"quantity" validate:"min=0"`
	UnitPrice       float64 `json:"unitPrice" validate:"min=0"`
	DiscountPercent float64 `json:"discountPercent" validate:"min=0,max=100"`
	CGSTRate        float64 `json:"cgstRate" validate:"min=0,max=28"`
	SGSTRate        float64 `json:"sgstRate" validate:"min=0,max=28"`
	IGSTRate        float64 `json:"igstRate" validate:"min=0,max=28"`
	CESSRate        float64 `json:"cessRate" validate:"min=0,max=28"`
}

func (r lineItemRequest) toItem() engine.LineItem {
	return engine.LineItem{
		Description:     r.Description,
		HSNCode:         r.HSNCode,
		Quantity:        r.Quantity,
		UnitPrice:       r.UnitPrice,
		DiscountPercent: r.DiscountPercent,
		CGSTRate:        r.CGSTRate,
		SGSTRate:        r.SGSTRate,
		IGSTRate:        r.IGSTRate,
		CESSRate:        r.CESSRate,
	}
}

type createNoteRequest struct {
	Number                string            `json:"number"`
	Type                  string            `json:"type" validate:"required,oneof=CREDIT DEBIT"`
	Vendor                string            `json:"vendor" validate:"required"`
	OriginalInvoiceNumber string            `json:"originalInvoiceNumber" validate:"required"`
	NoteDate              string            `json:"noteDate"`
	Reason                string            `json:"reason"`
	Items                 []lineItemRequest `json:"items" validate:"required,min=1,dive"`
}

type updateNoteRequest struct {
	OriginalInvoiceNumber string            `json:"originalInvoiceNumber" validate:"required"`
	Reason                string            `json:"reason"`
	Items                 []lineItemRequest `json:"items" validate:"required,min=1,dive"`
}

type approvalRequest struct {
	ActorID int64  `json:"actorId" validate:"required"`
	Note    string `json:"note"`
}

type noteResponse struct {
	ID                    int64                 `json:"id"`
	Number                string                `json:"number"`
	Type                  engine.NoteType       `json:"type"`
	Vendor                string                `json:"vendor"`
	OriginalInvoiceNumber string                `json:"originalInvoiceNumber"`
	NoteDate              time.Time             `json:"noteDate"`
	Reason                string                `json:"reason,omitempty"`
	Approval              engine.ApprovalStatus `json:"approvalStatus"`
	Cancelled             bool                  `json:"cancelled"`
	Items                 []engine.LineItem     `json:"items"`
	Totals                engine.DocumentTotals `json:"totals"`
}

func toNoteResponse(n Note) noteResponse {
	return noteResponse{
		ID:                    n.ID,
		Number:                n.Number,
		Type:                  n.Type,
		Vendor:                n.Vendor,
		OriginalInvoiceNumber: n.OriginalInvoiceNumber,
		NoteDate:              n.NoteDate,
		Reason:                n.Reason,
		Approval:              n.Approval,
		Cancelled:             n.Cancelled,
		Items:                 n.Items,
		Totals:                n.Totals,
	}
}

func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
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

// listResponse wraps paginated collections.
type listResponse struct {
	Data       []noteResponse    `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	pg := shared.NewPagination(page, perPage, 0)
	req := ListNotesRequest{
		Vendor:          q.Get("vendor"),
		OriginalInvoice: q.Get("original_invoice"),
		Type:            engine.NoteType(q.Get("type")),
		Limit:           pg.PerPage,
		Offset:          pg.Offset(),
	}
	notes, err := h.service.ListNotes(r.Context(), req)
	if err != nil {
		h.logger.Error("list notes", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	total, err := h.service.CountNotes(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]noteResponse, 0, len(notes))
	for _, n := range notes {
		out = append(out, toNoteResponse(n))
	}
	httpx.JSON(w, http.StatusOK, listResponse{
		Data:       out,
		Pagination: shared.NewPagination(pg.Page, pg.PerPage, total),
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createNoteRequest
	if !h.decode(w, r, &req) {
		return
	}
	var noteDate time.Time
	if req.NoteDate != "" {
		d, err := engine.ParseDate("noteDate", req.NoteDate)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		noteDate = d
	}
	items := make([]engine.LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, it.toItem())
	}
	createdBy, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	note, err := h.service.CreateNote(r.Context(), CreateNoteInput{
		Number:                req.Number,
		Type:                  engine.NoteType(req.Type),
		Vendor:                req.Vendor,
		OriginalInvoiceNumber: req.OriginalInvoiceNumber,
		NoteDate:              noteDate,
		Reason:                req.Reason,
		Items:                 items,
		CreatedBy:             createdBy,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toNoteResponse(note))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid note id")
		return
	}
	note, err := h.service.GetNote(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toNoteResponse(note))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid note id")
		return
	}
	var req updateNoteRequest
	if !h.decode(w, r, &req) {
		return
	}
	items := make([]engine.LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, it.toItem())
	}
	note, err := h.service.UpdateNote(r.Context(), UpdateNoteInput{
		NoteID:                id,
		OriginalInvoiceNumber: req.OriginalInvoiceNumber,
		Reason:                req.Reason,
		Items:                 items,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toNoteResponse(note))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid note id")
		return
	}
	if err := h.service.DeleteNote(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.decideNote(w, r, h.service.ApproveNote)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.decideNote(w, r, h.service.RejectNote)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.decideNote(w, r, h.service.CancelNote)
}

func (h *Handler) decideNote(w http.ResponseWriter, r *http.Request, decide func(ctx context.Context, input ApprovalInput) error) {
	id, ok := idParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid note id")
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
