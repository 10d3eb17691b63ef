package ap

import (
	"time"

	"github.com/khata-erp/khata-erp/internal/engine"
	"github.com/khata-erp/khata-erp/internal/shared"
)

// listResponse wraps paginated collections.
type listResponse[T any] struct {
	Data       []T               `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
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

type createBillRequest struct {
	Number        string            `json:"number"`
	Vendor        string            `json:"vendor" validate:"required"`
	BillDate      string            `json:"billDate" validate:"required"`
	DueDate       string            `json:"dueDate"`
	TDSSection    string            `json:"tdsSection"`
	TDSPercentage float64           `json:"tdsPercentage" validate:"min=0,max=100"`
	Items         []lineItemRequest `json:"items" validate:"required,min=1,dive"`
}

type updateBillRequest struct {
	DueDate       string            `json:"dueDate"`
	TDSSection    string            `json:"tdsSection"`
	TDSPercentage float64           `json:"tdsPercentage" validate:"min=0,max=100"`
	Items         []lineItemRequest `json:"items" validate:"required,min=1,dive"`
}

type approvalRequest struct {
	ActorID int64  `json:"actorId" validate:"required"`
	Note    string `json:"note"`
}

type createPaymentRequest struct {
	Number         string  `json:"number"`
	BillID         int64   `json:"billId" validate:"required"`
	IdempotencyKey string  `json:"idempotencyKey"`
	Amount         float64 `json:"amount" validate:"required,gt=0"`
	TDSAmount      float64 `json:"tdsAmount" validate:"min=0"`
	PaymentDate    string  `json:"paymentDate"`
	Method         string  `json:"method"`
	Reference      string  `json:"reference"`
}

type billResponse struct {
	ID            int64                 `json:"id"`
	Number        string                `json:"number"`
	Vendor        string                `json:"vendor"`
	BillDate      time.Time             `json:"billDate"`
	DueDate       *time.Time            `json:"dueDate,omitempty"`
	TDSSection    string                `json:"tdsSection,omitempty"`
	TDSPercentage float64               `json:"tdsPercentage"`
	TDSAmount     float64               `json:"tdsAmount"`
	Approval      engine.ApprovalStatus `json:"approvalStatus"`
	Items         []engine.LineItem     `json:"items"`
	Totals        engine.DocumentTotals `json:"totals"`

	SettledAmount   float64           `json:"settledAmount"`
	RemainingAmount float64           `json:"remainingAmount"`
	Status          engine.BillStatus `json:"status"`
}

func toBillResponse(v BillView) billResponse {
	return billResponse{
		ID:            v.ID,
		Number:        v.Number,
		Vendor:        v.Vendor,
		BillDate:      v.BillDate,
		DueDate:       v.DueDate,
		TDSSection:    v.TDSSection,
		TDSPercentage: v.TDSPercentage,
		TDSAmount:     v.TDSAmount,
		Approval:      v.Approval,
		Items:         v.Items,
		Totals:        v.Totals,

		SettledAmount:   v.SettledAmount,
		RemainingAmount: v.RemainingAmount,
		Status:          v.Status,
	}
}

type paymentResponse struct {
	ID          int64                 `json:"id"`
	Number      string                `json:"number"`
	BillID      int64                 `json:"billId"`
	Amount      float64               `json:"amount"`
	TDSAmount   float64               `json:"tdsAmount"`
	NetAmount   float64               `json:"netAmount"`
	PaymentDate time.Time             `json:"paymentDate"`
	Method      string                `json:"method,omitempty"`
	Reference   string                `json:"reference,omitempty"`
	Approval    engine.ApprovalStatus `json:"approvalStatus"`
	Status      engine.PaymentStatus  `json:"status"`
}

func toPaymentResponse(p Payment) paymentResponse {
	return paymentResponse{
		ID:          p.ID,
		Number:      p.Number,
		BillID:      p.BillID,
		Amount:      p.Amount,
		TDSAmount:   p.TDSAmount,
		NetAmount:   p.NetAmount,
		PaymentDate: p.PaymentDate,
		Method:      p.Method,
		Reference:   p.Reference,
		Approval:    p.Approval,
		Status:      p.Status,
	}
}
