/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  All amounts cross the wire as decimal strings ("125.50"), never as
  floats. Requests are parsed with engine.ParseMoney and rejected on
  malformed input.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - shop/service.go: Domain operations behind the handlers
*/
package api

import (
	"time"

	"github.com/warp/garage-engine/engine"
	"github.com/warp/garage-engine/shop"
)

// =============================================================================
// WORK ORDERS
// =============================================================================

// LineItemDTO is one priced line on a work order.
type LineItemDTO struct {
	Name     string `json:"name"`
	Price    string `json:"price"`
	Quantity int    `json:"quantity"`
	Category string `json:"category"`
}

// WorkOrderDTO represents a work order in API responses.
type WorkOrderDTO struct {
	ID            string        `json:"id"`
	Vehicle       string        `json:"vehicle"`
	OwnerName     string        `json:"owner_name"`
	OwnerPhone    string        `json:"owner_phone"`
	LineItems     []LineItemDTO `json:"line_items"`
	TotalEstimate string        `json:"total_estimate"`
	PaidAmount    string        `json:"paid_amount"`
	Remaining     string        `json:"remaining"`
	PaymentStatus string        `json:"payment_status"`
	Status        string        `json:"status"`
	Archived      bool          `json:"archived"`
	CreatedAt     string        `json:"created_at"`
	UpdatedAt     string        `json:"updated_at"`
}

// CreateWorkOrderRequest is the request to open a work order.
type CreateWorkOrderRequest struct {
	Vehicle    string        `json:"vehicle"`
	OwnerName  string        `json:"owner_name"`
	OwnerPhone string        `json:"owner_phone"`
	LineItems  []LineItemDTO `json:"line_items"`
}

// UpdateLineItemsRequest replaces the order's line items.
type UpdateLineItemsRequest struct {
	LineItems []LineItemDTO `json:"line_items"`
}

// =============================================================================
// BATCHES
// =============================================================================

// BatchItemDTO is one item inside a service batch.
type BatchItemDTO struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Price           string `json:"price"`
	Quantity        int    `json:"quantity"`
	Category        string `json:"category"`
	Status          string `json:"status"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	CompletedAt     string `json:"completed_at,omitempty"`
	ReviewedAt      string `json:"reviewed_at,omitempty"`
}

// BatchDTO represents a service batch in API responses.
type BatchDTO struct {
	ID            string         `json:"id"`
	WorkOrderID   string         `json:"work_order_id"`
	Items         []BatchItemDTO `json:"items"`
	TotalPrice    string         `json:"total_price"`
	PaidAmount    string         `json:"paid_amount"`
	PaymentStatus string         `json:"payment_status"`
	Status        string         `json:"status"`
	CreatedAt     string         `json:"created_at"`
}

// ReviewItemRequest approves or rejects a batch item.
type ReviewItemRequest struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

// WorkerShareDTO is one worker's computed slice of an assignment.
type WorkerShareDTO struct {
	WorkerID   string `json:"worker_id"`
	Percentage string `json:"percentage"`
	Allocated  string `json:"allocated"`
	Earning    string `json:"earning"`
	OwnerShare string `json:"owner_share"`
}

// AssignmentDTO represents an assignment in API responses.
type AssignmentDTO struct {
	ID              string           `json:"id"`
	WorkOrderID     string           `json:"work_order_id"`
	ItemID          string           `json:"item_id,omitempty"`
	Title           string           `json:"title"`
	Description     string           `json:"description,omitempty"`
	Payment         string           `json:"payment"`
	Status          string           `json:"status"`
	RejectionReason string           `json:"rejection_reason,omitempty"`
	Mode            string           `json:"share_mode"`
	Shares          []WorkerShareDTO `json:"shares"`
	CompletedAt     string           `json:"completed_at,omitempty"`
	ReviewedAt      string           `json:"reviewed_at,omitempty"`
	CreatedAt       string           `json:"created_at"`
}

// AssignWorkerEntry names one worker on an assignment request; a nil
// percentage uses the worker's stored default.
type AssignWorkerEntry struct {
	WorkerID   string  `json:"worker_id"`
	Percentage *string `json:"percentage,omitempty"`
}

// AssignWorkersRequest creates or reassigns an assignment.
type AssignWorkersRequest struct {
	AssignmentID string              `json:"assignment_id,omitempty"`
	WorkOrderID  string              `json:"work_order_id"`
	ItemID       string              `json:"item_id,omitempty"`
	Title        string              `json:"title"`
	Description  string              `json:"description,omitempty"`
	Payment      string              `json:"payment"`
	Workers      []AssignWorkerEntry `json:"workers"`
}

// RejectRequest carries the reviewer's reason.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// TransitionRequest applies a lifecycle event to a unit of work. From is
// an optional guard: when set, the stored status must match.
type TransitionRequest struct {
	Event string `json:"event"`
	From  string `json:"from,omitempty"`
}

// TransitionResponse reports the transition and its knock-on effects.
type TransitionResponse struct {
	Assignment         *AssignmentDTO `json:"assignment,omitempty"`
	Item               *BatchItemDTO  `json:"item,omitempty"`
	Batch              *BatchDTO      `json:"batch,omitempty"`
	BatchPromoted      bool           `json:"batch_promoted"`
	WorkOrderCompleted bool           `json:"work_order_completed"`
}

// =============================================================================
// WORKERS
// =============================================================================

// WorkerDTO represents a worker in API responses.
type WorkerDTO struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Percentage    string `json:"percentage"`
	Earnings      string `json:"earnings"`
	TotalEarnings string `json:"total_earnings"`
	CreatedAt     string `json:"created_at"`
}

// CreateWorkerRequest registers a worker. A zero/absent percentage uses
// the shop default.
type CreateWorkerRequest struct {
	Name       string `json:"name"`
	Percentage string `json:"percentage,omitempty"`
}

// PeriodResetResponse reports the amount folded into the lifetime total.
type PeriodResetResponse struct {
	WorkerID string `json:"worker_id"`
	Folded   string `json:"folded"`
}

// =============================================================================
// PAYMENTS AND DEBTS
// =============================================================================

// RecordPaymentRequest records a customer payment.
type RecordPaymentRequest struct {
	Amount string `json:"amount"`
	Method string `json:"method,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

// DebtPaymentDTO is one entry in a debt's payment history.
type DebtPaymentDTO struct {
	Amount string `json:"amount"`
	Date   string `json:"date"`
	Method string `json:"method,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

// DebtDTO represents a receivable in API responses.
type DebtDTO struct {
	ID          string           `json:"id"`
	WorkOrderID string           `json:"work_order_id"`
	Amount      string           `json:"amount"`
	PaidAmount  string           `json:"paid_amount"`
	Remaining   string           `json:"remaining"`
	Status      string           `json:"status"`
	Payments    []DebtPaymentDTO `json:"payments"`
	CreatedAt   string           `json:"created_at"`
}

// =============================================================================
// STATUS AND ERRORS
// =============================================================================

// OrderStatusDTO is the completion gate's view of one work order.
type OrderStatusDTO struct {
	WorkOrderID            string `json:"work_order_id"`
	Satisfied              bool   `json:"satisfied"`
	Remaining              string `json:"remaining"`
	AllAssignmentsReviewed bool   `json:"all_assignments_reviewed"`
	HasApprovedAssignment  bool   `json:"has_approved_assignment"`
	AllBatchesCompleted    bool   `json:"all_batches_completed"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes one demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// DOMAIN -> DTO MAPPING
// =============================================================================

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func fmtTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return fmtTime(*t)
}

func toLineItemDTOs(items []shop.LineItem) []LineItemDTO {
	dtos := make([]LineItemDTO, len(items))
	for i, li := range items {
		dtos[i] = LineItemDTO{
			Name:     li.Name,
			Price:    li.Price.String(),
			Quantity: li.Quantity,
			Category: string(li.Category),
		}
	}
	return dtos
}

func toWorkOrderDTO(o *shop.WorkOrder, archived bool) WorkOrderDTO {
	return WorkOrderDTO{
		ID:            string(o.ID),
		Vehicle:       o.Vehicle,
		OwnerName:     o.OwnerName,
		OwnerPhone:    o.OwnerPhone,
		LineItems:     toLineItemDTOs(o.LineItems),
		TotalEstimate: o.TotalEstimate().String(),
		PaidAmount:    o.PaidAmount.String(),
		Remaining:     o.Remaining().String(),
		PaymentStatus: string(o.PaymentStatus),
		Status:        string(o.Status),
		Archived:      archived,
		CreatedAt:     fmtTime(o.CreatedAt),
		UpdatedAt:     fmtTime(o.UpdatedAt),
	}
}

func toBatchItemDTO(it shop.BatchItem) BatchItemDTO {
	return BatchItemDTO{
		ID:              string(it.ID),
		Name:            it.Name,
		Price:           it.Price.String(),
		Quantity:        it.Quantity,
		Category:        string(it.Category),
		Status:          string(it.Status),
		RejectionReason: it.RejectionReason,
		CompletedAt:     fmtTimePtr(it.CompletedAt),
		ReviewedAt:      fmtTimePtr(it.ReviewedAt),
	}
}

func toBatchDTO(b *shop.ServiceBatch) BatchDTO {
	items := make([]BatchItemDTO, len(b.Items))
	for i, it := range b.Items {
		items[i] = toBatchItemDTO(it)
	}
	return BatchDTO{
		ID:            string(b.ID),
		WorkOrderID:   string(b.WorkOrderID),
		Items:         items,
		TotalPrice:    b.TotalPrice().String(),
		PaidAmount:    b.PaidAmount.String(),
		PaymentStatus: string(b.PaymentStatus),
		Status:        string(b.Status),
		CreatedAt:     fmtTime(b.CreatedAt),
	}
}

func toAssignmentDTO(a *shop.Assignment) AssignmentDTO {
	shares := a.Shares()
	shareDTOs := make([]WorkerShareDTO, len(shares))
	for i, sh := range shares {
		shareDTOs[i] = WorkerShareDTO{
			WorkerID:   string(sh.WorkerID),
			Percentage: sh.Percentage.String(),
			Allocated:  sh.Allocated.String(),
			Earning:    sh.Earning.String(),
			OwnerShare: sh.OwnerShare.String(),
		}
	}
	return AssignmentDTO{
		ID:              string(a.ID),
		WorkOrderID:     string(a.WorkOrderID),
		ItemID:          string(a.ItemID),
		Title:           a.Title,
		Description:     a.Description,
		Payment:         a.Payment.String(),
		Status:          string(a.Status),
		RejectionReason: a.RejectionReason,
		Mode:            string(a.Mode),
		Shares:          shareDTOs,
		CompletedAt:     fmtTimePtr(a.CompletedAt),
		ReviewedAt:      fmtTimePtr(a.ReviewedAt),
		CreatedAt:       fmtTime(a.CreatedAt),
	}
}

func toWorkerDTO(w *shop.Worker) WorkerDTO {
	return WorkerDTO{
		ID:            string(w.ID),
		Name:          w.Name,
		Percentage:    w.Percentage.String(),
		Earnings:      w.Earnings.String(),
		TotalEarnings: w.TotalEarnings.String(),
		CreatedAt:     fmtTime(w.CreatedAt),
	}
}

func toDebtDTO(d *shop.Debt) DebtDTO {
	payments := make([]DebtPaymentDTO, len(d.Payments))
	for i, p := range d.Payments {
		payments[i] = DebtPaymentDTO{
			Amount: p.Amount.String(),
			Date:   fmtTime(p.Date),
			Method: p.Method,
			Notes:  p.Notes,
		}
	}
	return DebtDTO{
		ID:          string(d.ID),
		WorkOrderID: string(d.WorkOrderID),
		Amount:      d.Amount.String(),
		PaidAmount:  d.PaidAmount.String(),
		Remaining:   d.Remaining().String(),
		Status:      string(d.Status),
		Payments:    payments,
		CreatedAt:   fmtTime(d.CreatedAt),
	}
}

// parseLineItems converts request lines to domain lines, validating
// prices and quantities as it goes.
func parseLineItems(dtos []LineItemDTO) ([]shop.LineItem, error) {
	items := make([]shop.LineItem, len(dtos))
	for i, dto := range dtos {
		price, err := engine.ParseMoney(dto.Price)
		if err != nil {
			return nil, err
		}
		if price.IsNegative() || dto.Quantity < 0 {
			return nil, engine.ErrInvalidAmount
		}
		items[i] = shop.LineItem{
			Name:     dto.Name,
			Price:    price,
			Quantity: dto.Quantity,
			Category: shop.ItemCategory(dto.Category),
		}
	}
	return items, nil
}
