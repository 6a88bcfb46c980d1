/*
handlers.go - HTTP API handlers for the garage settlement engine

PURPOSE:
  Exposes the settlement engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Work orders:
    GET    /api/orders                  List work orders
    POST   /api/orders                  Open a work order
    GET    /api/orders/{id}             Get order details
    PUT    /api/orders/{id}/items       Replace line items
    DELETE /api/orders/{id}             Soft-delete
    POST   /api/orders/{id}/payments    Record customer payment
    POST   /api/orders/{id}/deliver     Hand the vehicle back
    GET    /api/orders/{id}/status      Completion gate view
    GET    /api/orders/{id}/debt        Active receivable, if any
    GET    /api/orders/{id}/assignments Assignments on the order
    GET    /api/orders/{id}/batches     Service batches on the order

  Assignments:
    POST   /api/assignments                 Create or reassign
    POST   /api/assignments/{id}/approve    Approve completed work
    POST   /api/assignments/{id}/reject     Reject with reason
    POST   /api/assignments/{id}/transition Lifecycle event

  Batches and items:
    GET    /api/batches/{id}            Get batch details
    POST   /api/batches/{id}/payments   Record batch sub-payment
    POST   /api/items/{id}/review       Approve/reject one item
    POST   /api/items/{id}/transition   Lifecycle event

  Workers:
    GET    /api/workers                 List workers
    POST   /api/workers                 Register worker
    GET    /api/workers/{id}            Get worker
    POST   /api/workers/{id}/period-reset  Fold period earnings

  Debts:
    GET    /api/debts/{id}              Get debt with history
    POST   /api/debts/{id}/payments     Record debt payment

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (service, gate, ledger)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Illegal state transition, overpayment
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/garage-engine/engine"
	"github.com/warp/garage-engine/shop"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter is implemented by stores that can drop all data (dev only).
type Resetter interface {
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *shop.Service
	Log     zerolog.Logger

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler over the given service.
func NewHandler(svc *shop.Service, log zerolog.Logger) *Handler {
	return &Handler{Service: svc, Log: log}
}

// =============================================================================
// WORK ORDER HANDLERS
// =============================================================================

// ListWorkOrders returns all work orders. ?include_deleted=true includes
// soft-deleted ones.
func (h *Handler) ListWorkOrders(w http.ResponseWriter, r *http.Request) {
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"

	orders, err := h.Service.Store.ListWorkOrders(r.Context(), includeDeleted)
	if err != nil {
		h.writeError(w, "Failed to list work orders", err)
		return
	}

	dtos := make([]WorkOrderDTO, 0, len(orders))
	for _, o := range orders {
		archived, err := h.Service.Archived(r.Context(), o.ID)
		if err != nil {
			h.writeError(w, "Failed to resolve archive state", err)
			return
		}
		dtos = append(dtos, toWorkOrderDTO(o, archived))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetWorkOrder returns a single work order.
func (h *Handler) GetWorkOrder(w http.ResponseWriter, r *http.Request) {
	id := engine.WorkOrderID(chi.URLParam(r, "id"))

	order, err := h.Service.Store.GetWorkOrder(r.Context(), id)
	if err != nil {
		h.writeError(w, "Failed to get work order", err)
		return
	}
	archived, err := h.Service.Archived(r.Context(), id)
	if err != nil {
		h.writeError(w, "Failed to resolve archive state", err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkOrderDTO(order, archived))
}

// CreateWorkOrder opens a new work order.
func (h *Handler) CreateWorkOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	items, err := parseLineItems(req.LineItems)
	if err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "Invalid line items", err)
		return
	}

	order, err := h.Service.CreateWorkOrder(r.Context(), shop.CreateWorkOrderInput{
		Vehicle:    req.Vehicle,
		OwnerName:  req.OwnerName,
		OwnerPhone: req.OwnerPhone,
		LineItems:  items,
	})
	if err != nil {
		h.writeError(w, "Failed to create work order", err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkOrderDTO(order, false))
}

// UpdateLineItems replaces the order's line items and regenerates the
// active batch.
func (h *Handler) UpdateLineItems(w http.ResponseWriter, r *http.Request) {
	id := engine.WorkOrderID(chi.URLParam(r, "id"))

	var req UpdateLineItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	items, err := parseLineItems(req.LineItems)
	if err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "Invalid line items", err)
		return
	}

	order, err := h.Service.UpdateLineItems(r.Context(), id, items)
	if err != nil {
		h.writeError(w, "Failed to update line items", err)
		return
	}
	archived, err := h.Service.Archived(r.Context(), id)
	if err != nil {
		h.writeError(w, "Failed to resolve archive state", err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkOrderDTO(order, archived))
}

// DeleteWorkOrder soft-deletes an order. History is preserved.
func (h *Handler) DeleteWorkOrder(w http.ResponseWriter, r *http.Request) {
	id := engine.WorkOrderID(chi.URLParam(r, "id"))

	if err := h.Service.DeleteWorkOrder(r.Context(), id); err != nil {
		h.writeError(w, "Failed to delete work order", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecordOrderPayment records a customer payment against the order total.
func (h *Handler) RecordOrderPayment(w http.ResponseWriter, r *http.Request) {
	id := engine.WorkOrderID(chi.URLParam(r, "id"))

	req, amount, ok := h.decodePayment(w, r)
	if !ok {
		return
	}
	order, err := h.Service.RecordOrderPayment(r.Context(), id, amount, req.Method, req.Notes)
	if err != nil {
		h.writeError(w, "Failed to record payment", err)
		return
	}
	archived, err := h.Service.Archived(r.Context(), id)
	if err != nil {
		h.writeError(w, "Failed to resolve archive state", err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkOrderDTO(order, archived))
}

// DeliverWorkOrder moves a completed order to delivered.
func (h *Handler) DeliverWorkOrder(w http.ResponseWriter, r *http.Request) {
	id := engine.WorkOrderID(chi.URLParam(r, "id"))

	order, err := h.Service.DeliverWorkOrder(r.Context(), id)
	if err != nil {
		h.writeError(w, "Failed to deliver work order", err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkOrderDTO(order, true))
}

// GetOrderStatus returns the completion gate's view of the order.
func (h *Handler) GetOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := engine.WorkOrderID(chi.URLParam(r, "id"))

	result, err := h.Service.Gate.Evaluate(r.Context(), id)
	if err != nil {
		h.writeError(w, "Failed to evaluate order status", err)
		return
	}
	writeJSON(w, http.StatusOK, OrderStatusDTO{
		WorkOrderID:            string(id),
		Satisfied:              result.Satisfied,
		Remaining:              result.Remaining.String(),
		AllAssignmentsReviewed: result.AllAssignmentsReviewed,
		HasApprovedAssignment:  result.HasApprovedAssignment,
		AllBatchesCompleted:    result.AllBatchesCompleted,
	})
}

// GetOrderDebt returns the order's active receivable, or 404 when the
// order carries none.
func (h *Handler) GetOrderDebt(w http.ResponseWriter, r *http.Request) {
	id := engine.WorkOrderID(chi.URLParam(r, "id"))

	debt, err := h.Service.GetActiveDebt(r.Context(), id)
	if err != nil {
		h.writeError(w, "Failed to get debt", err)
		return
	}
	if debt == nil {
		writeErrorStatus(w, http.StatusNotFound, "No active debt for this order", nil)
		return
	}
	writeJSON(w, http.StatusOK, toDebtDTO(debt))
}

// GetOrderAssignments returns all assignments on the order.
func (h *Handler) GetOrderAssignments(w http.ResponseWriter, r *http.Request) {
	id := engine.WorkOrderID(chi.URLParam(r, "id"))

	assignments, err := h.Service.Store.AssignmentsByWorkOrder(r.Context(), id)
	if err != nil {
		h.writeError(w, "Failed to list assignments", err)
		return
	}
	dtos := make([]AssignmentDTO, len(assignments))
	for i, a := range assignments {
		dtos[i] = toAssignmentDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetOrderBatches returns all service batches on the order.
func (h *Handler) GetOrderBatches(w http.ResponseWriter, r *http.Request) {
	id := engine.WorkOrderID(chi.URLParam(r, "id"))

	batches, err := h.Service.Store.BatchesByWorkOrder(r.Context(), id)
	if err != nil {
		h.writeError(w, "Failed to list batches", err)
		return
	}
	dtos := make([]BatchDTO, len(batches))
	for i, b := range batches {
		dtos[i] = toBatchDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ASSIGNMENT HANDLERS
// =============================================================================

// AssignWorkers creates an assignment (or reassigns an existing one) and
// computes the payment split.
func (h *Handler) AssignWorkers(w http.ResponseWriter, r *http.Request) {
	var req AssignWorkersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	payment, err := engine.ParseMoney(req.Payment)
	if err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "Invalid payment amount", err)
		return
	}

	workers := make([]shop.AssignWorker, len(req.Workers))
	for i, entry := range req.Workers {
		aw := shop.AssignWorker{WorkerID: engine.WorkerID(entry.WorkerID)}
		if entry.Percentage != nil {
			pct, err := decimal.NewFromString(*entry.Percentage)
			if err != nil {
				writeErrorStatus(w, http.StatusBadRequest, "Invalid percentage", err)
				return
			}
			aw.Percentage = &pct
		}
		workers[i] = aw
	}

	a, err := h.Service.AssignWorkers(r.Context(), shop.AssignWorkersInput{
		AssignmentID: engine.AssignmentID(req.AssignmentID),
		WorkOrderID:  engine.WorkOrderID(req.WorkOrderID),
		ItemID:       engine.ItemID(req.ItemID),
		Title:        req.Title,
		Description:  req.Description,
		Payment:      payment,
		Workers:      workers,
	})
	if err != nil {
		h.writeError(w, "Failed to assign workers", err)
		return
	}

	status := http.StatusCreated
	if req.AssignmentID != "" {
		status = http.StatusOK
	}
	writeJSON(w, status, toAssignmentDTO(a))
}

// ApproveAssignment approves completed work, applying earnings and
// re-running settlement.
func (h *Handler) ApproveAssignment(w http.ResponseWriter, r *http.Request) {
	id := engine.AssignmentID(chi.URLParam(r, "id"))

	review, err := h.Service.ApproveAssignment(r.Context(), id)
	if err != nil {
		h.writeError(w, "Failed to approve assignment", err)
		return
	}

	dto := toAssignmentDTO(review.Assignment)
	writeJSON(w, http.StatusOK, TransitionResponse{
		Assignment:         &dto,
		WorkOrderCompleted: review.WorkOrderCompleted,
	})
}

// RejectAssignment rejects completed work with a reason.
func (h *Handler) RejectAssignment(w http.ResponseWriter, r *http.Request) {
	id := engine.AssignmentID(chi.URLParam(r, "id"))

	var req RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	review, err := h.Service.RejectAssignment(r.Context(), id, req.Reason)
	if err != nil {
		h.writeError(w, "Failed to reject assignment", err)
		return
	}

	dto := toAssignmentDTO(review.Assignment)
	writeJSON(w, http.StatusOK, TransitionResponse{
		Assignment:         &dto,
		WorkOrderCompleted: review.WorkOrderCompleted,
	})
}

// TransitionAssignment applies a lifecycle event (start/finish/restart,
// or approve/reject via the dedicated paths) to an assignment.
func (h *Handler) TransitionAssignment(w http.ResponseWriter, r *http.Request) {
	id := engine.AssignmentID(chi.URLParam(r, "id"))
	h.transitionUnit(w, r, shop.UnitRef{Kind: shop.UnitAssignment, AssignmentID: id})
}

// TransitionItem applies a lifecycle event to a batch item.
func (h *Handler) TransitionItem(w http.ResponseWriter, r *http.Request) {
	id := engine.ItemID(chi.URLParam(r, "id"))
	h.transitionUnit(w, r, shop.UnitRef{Kind: shop.UnitItem, ItemID: id})
}

func (h *Handler) transitionUnit(w http.ResponseWriter, r *http.Request, ref shop.UnitRef) {
	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Service.TransitionUnit(r.Context(), ref,
		engine.UnitStatus(req.From), engine.UnitEvent(req.Event))
	if err != nil {
		h.writeError(w, "Failed to transition unit", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransitionResponse(result))
}

func toTransitionResponse(result *shop.TransitionResult) TransitionResponse {
	resp := TransitionResponse{
		BatchPromoted:      result.BatchPromoted,
		WorkOrderCompleted: result.WorkOrderCompleted,
	}
	if result.Assignment != nil {
		dto := toAssignmentDTO(result.Assignment)
		resp.Assignment = &dto
	}
	if result.Item != nil {
		dto := toBatchItemDTO(*result.Item)
		resp.Item = &dto
	}
	if result.Batch != nil {
		dto := toBatchDTO(result.Batch)
		resp.Batch = &dto
	}
	return resp
}

// =============================================================================
// BATCH AND ITEM HANDLERS
// =============================================================================

// GetBatch returns a single service batch.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	id := engine.BatchID(chi.URLParam(r, "id"))

	batch, err := h.Service.Store.GetBatch(r.Context(), id)
	if err != nil {
		h.writeError(w, "Failed to get batch", err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchDTO(batch))
}

// RecordBatchPayment records a payment against one batch's sub-ledger.
func (h *Handler) RecordBatchPayment(w http.ResponseWriter, r *http.Request) {
	id := engine.BatchID(chi.URLParam(r, "id"))

	req, amount, ok := h.decodePayment(w, r)
	if !ok {
		return
	}
	batch, err := h.Service.RecordBatchPayment(r.Context(), id, amount, req.Method, req.Notes)
	if err != nil {
		h.writeError(w, "Failed to record batch payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchDTO(batch))
}

// ReviewItem approves or rejects one batch item and reports any batch
// promotion or order completion it caused.
func (h *Handler) ReviewItem(w http.ResponseWriter, r *http.Request) {
	id := engine.ItemID(chi.URLParam(r, "id"))

	var req ReviewItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Service.ReviewBatchItem(r.Context(), id, req.Approved, req.Reason)
	if err != nil {
		h.writeError(w, "Failed to review item", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransitionResponse(result))
}

// =============================================================================
// WORKER HANDLERS
// =============================================================================

// ListWorkers returns all workers.
func (h *Handler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := h.Service.Store.ListWorkers(r.Context())
	if err != nil {
		h.writeError(w, "Failed to list workers", err)
		return
	}
	dtos := make([]WorkerDTO, len(workers))
	for i, worker := range workers {
		dtos[i] = toWorkerDTO(worker)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetWorker returns a single worker.
func (h *Handler) GetWorker(w http.ResponseWriter, r *http.Request) {
	id := engine.WorkerID(chi.URLParam(r, "id"))

	worker, err := h.Service.Store.GetWorker(r.Context(), id)
	if err != nil {
		h.writeError(w, "Failed to get worker", err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkerDTO(worker))
}

// CreateWorker registers a new worker.
func (h *Handler) CreateWorker(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	pct := decimal.Zero
	if req.Percentage != "" {
		var err error
		pct, err = decimal.NewFromString(req.Percentage)
		if err != nil {
			writeErrorStatus(w, http.StatusBadRequest, "Invalid percentage", err)
			return
		}
	}

	worker, err := h.Service.CreateWorker(r.Context(), shop.CreateWorkerInput{
		Name:       req.Name,
		Percentage: pct,
	})
	if err != nil {
		h.writeError(w, "Failed to create worker", err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkerDTO(worker))
}

// PeriodReset folds the worker's period earnings into the lifetime total.
func (h *Handler) PeriodReset(w http.ResponseWriter, r *http.Request) {
	id := engine.WorkerID(chi.URLParam(r, "id"))

	folded, err := h.Service.PeriodReset(r.Context(), id)
	if err != nil {
		h.writeError(w, "Failed to reset period", err)
		return
	}
	writeJSON(w, http.StatusOK, PeriodResetResponse{
		WorkerID: string(id),
		Folded:   folded.String(),
	})
}

// =============================================================================
// DEBT HANDLERS
// =============================================================================

// GetDebt returns a debt with its full payment history.
func (h *Handler) GetDebt(w http.ResponseWriter, r *http.Request) {
	id := engine.DebtID(chi.URLParam(r, "id"))

	debt, err := h.Service.Store.GetDebt(r.Context(), id)
	if err != nil {
		h.writeError(w, "Failed to get debt", err)
		return
	}
	writeJSON(w, http.StatusOK, toDebtDTO(debt))
}

// RecordDebtPayment records a payment against a receivable.
func (h *Handler) RecordDebtPayment(w http.ResponseWriter, r *http.Request) {
	id := engine.DebtID(chi.URLParam(r, "id"))

	req, amount, ok := h.decodePayment(w, r)
	if !ok {
		return
	}
	debt, err := h.Service.RecordDebtPayment(r.Context(), id, amount, req.Method, req.Notes)
	if err != nil {
		h.writeError(w, "Failed to record debt payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toDebtDTO(debt))
}

// =============================================================================
// ADMIN
// =============================================================================

// ResetDatabase drops all data. Dev/demo only.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	resetter, ok := h.Service.Store.(Resetter)
	if !ok {
		writeErrorStatus(w, http.StatusNotImplemented, "Store does not support reset", nil)
		return
	}
	if err := resetter.Reset(r.Context()); err != nil {
		h.writeError(w, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

func (h *Handler) decodePayment(w http.ResponseWriter, r *http.Request) (RecordPaymentRequest, engine.Money, bool) {
	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "Invalid request body", err)
		return req, engine.Zero(), false
	}
	amount, err := engine.ParseMoney(req.Amount)
	if err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "Invalid payment amount", err)
		return req, engine.Zero(), false
	}
	return req, amount, true
}

// writeError classifies a domain error into an HTTP status. Server-side
// failures get logged; client mistakes do not.
func (h *Handler) writeError(w http.ResponseWriter, message string, err error) {
	switch {
	case engine.IsNotFound(err):
		writeErrorStatus(w, http.StatusNotFound, message, err)
	case errors.Is(err, engine.ErrInvalidTransition),
		errors.Is(err, engine.ErrInsufficientBalance):
		writeErrorStatus(w, http.StatusConflict, message, err)
	case engine.IsClientError(err):
		writeErrorStatus(w, http.StatusBadRequest, message, err)
	default:
		h.Log.Error().Err(err).Msg(message)
		writeErrorStatus(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeErrorStatus(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
