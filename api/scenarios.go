/*
scenarios.go - Demo scenario loaders

PURPOSE:
  Loads pre-built shop states so the system can be demonstrated without
  hand-entering data. Each scenario resets the database and replays a
  short sequence of real service operations, so the resulting state is
  one the engine itself produced.

SCENARIOS:
  fresh-intake:   One order just opened, nothing started
  mid-repair:     Work split across two workers, partially reviewed
  settled-debt:   Completed settlement with an underpaid balance
                  carried as a receivable

SEE ALSO:
  - handlers.go: Scenario endpoints delegate here
  - shop/service.go: Operations replayed by the loaders
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/garage-engine/engine"
	"github.com/warp/garage-engine/shop"
)

type scenario struct {
	ID          string
	Name        string
	Description string
	Load        func(ctx context.Context, svc *shop.Service) error
}

var scenarios = []scenario{
	{
		ID:          "fresh-intake",
		Name:        "Fresh intake",
		Description: "A newly opened work order with priced line items and no work started.",
		Load:        loadFreshIntake,
	},
	{
		ID:          "mid-repair",
		Name:        "Mid-repair",
		Description: "Two workers splitting a brake job, one item already approved.",
		Load:        loadMidRepair,
	},
	{
		ID:          "settled-debt",
		Name:        "Settled with debt",
		Description: "A completed order whose unpaid balance is carried as a receivable.",
		Load:        loadSettledDebt,
	},
}

// ListScenarios returns all available demo scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = ScenarioDTO{ID: s.ID, Name: s.Name, Description: s.Description}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the most recently loaded scenario.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": h.currentScenario})
}

// LoadScenario resets the database and loads the named scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var selected *scenario
	for i := range scenarios {
		if scenarios[i].ID == req.ScenarioID {
			selected = &scenarios[i]
			break
		}
	}
	if selected == nil {
		writeErrorStatus(w, http.StatusNotFound, fmt.Sprintf("Unknown scenario %q", req.ScenarioID), nil)
		return
	}

	resetter, ok := h.Service.Store.(Resetter)
	if !ok {
		writeErrorStatus(w, http.StatusNotImplemented, "Store does not support reset", nil)
		return
	}
	ctx := r.Context()
	if err := resetter.Reset(ctx); err != nil {
		h.writeError(w, "Failed to reset database", err)
		return
	}

	if err := selected.Load(ctx, h.Service); err != nil {
		h.writeError(w, "Failed to load scenario", err)
		return
	}
	h.currentScenario = selected.ID
	writeJSON(w, http.StatusOK, map[string]string{"loaded": selected.ID})
}

// =============================================================================
// LOADERS
// =============================================================================

func loadFreshIntake(ctx context.Context, svc *shop.Service) error {
	_, err := svc.CreateWorkOrder(ctx, shop.CreateWorkOrderInput{
		Vehicle:    "2014 Toyota Hilux",
		OwnerName:  "Rosa Mendes",
		OwnerPhone: "555-0142",
		LineItems: []shop.LineItem{
			{Name: "Timing belt", Price: engine.MustParseMoney("85.00"), Quantity: 1, Category: shop.CategoryPart},
			{Name: "Coolant flush", Price: engine.MustParseMoney("40.00"), Quantity: 1, Category: shop.CategoryLabor},
		},
	})
	return err
}

func loadMidRepair(ctx context.Context, svc *shop.Service) error {
	miguel, err := svc.CreateWorker(ctx, shop.CreateWorkerInput{Name: "Miguel Torres", Percentage: decimal.NewFromInt(40)})
	if err != nil {
		return err
	}
	dana, err := svc.CreateWorker(ctx, shop.CreateWorkerInput{Name: "Dana Osei"})
	if err != nil {
		return err
	}

	order, err := svc.CreateWorkOrder(ctx, shop.CreateWorkOrderInput{
		Vehicle:    "2019 Ford Transit",
		OwnerName:  "Leo Park",
		OwnerPhone: "555-0177",
		LineItems: []shop.LineItem{
			{Name: "Brake pads front", Price: engine.MustParseMoney("120.00"), Quantity: 2, Category: shop.CategoryPart},
			{Name: "Brake service labor", Price: engine.MustParseMoney("160.00"), Quantity: 1, Category: shop.CategoryLabor},
		},
	})
	if err != nil {
		return err
	}

	a, err := svc.AssignWorkers(ctx, shop.AssignWorkersInput{
		WorkOrderID: order.ID,
		Title:       "Brake job",
		Payment:     engine.MustParseMoney("400.00"),
		Workers: []shop.AssignWorker{
			{WorkerID: miguel.ID},
			{WorkerID: dana.ID},
		},
	})
	if err != nil {
		return err
	}

	ref := shop.UnitRef{Kind: shop.UnitAssignment, AssignmentID: a.ID}
	if _, err := svc.TransitionUnit(ctx, ref, "", engine.EventStart); err != nil {
		return err
	}
	if _, err := svc.TransitionUnit(ctx, ref, "", engine.EventFinish); err != nil {
		return err
	}

	// Approve one batch item so the review board shows mixed state.
	batch, err := svc.Store.ActiveBatchByWorkOrder(ctx, order.ID)
	if err != nil || batch == nil || len(batch.Items) == 0 {
		return err
	}
	itemRef := shop.UnitRef{Kind: shop.UnitItem, ItemID: batch.Items[0].ID}
	if _, err := svc.TransitionUnit(ctx, itemRef, "", engine.EventFinish); err != nil {
		return err
	}
	_, err = svc.ReviewBatchItem(ctx, batch.Items[0].ID, true, "")
	return err
}

func loadSettledDebt(ctx context.Context, svc *shop.Service) error {
	worker, err := svc.CreateWorker(ctx, shop.CreateWorkerInput{Name: "Ines Fabri", Percentage: decimal.NewFromInt(45)})
	if err != nil {
		return err
	}

	order, err := svc.CreateWorkOrder(ctx, shop.CreateWorkOrderInput{
		Vehicle:    "2011 Honda Civic",
		OwnerName:  "Sam Whitfield",
		OwnerPhone: "555-0105",
		LineItems: []shop.LineItem{
			{Name: "Alternator", Price: engine.MustParseMoney("210.00"), Quantity: 1, Category: shop.CategoryPart},
			{Name: "Install labor", Price: engine.MustParseMoney("90.00"), Quantity: 1, Category: shop.CategoryLabor},
		},
	})
	if err != nil {
		return err
	}

	// Customer pays part of the bill up front.
	if _, err := svc.RecordOrderPayment(ctx, order.ID, engine.MustParseMoney("200.00"), "cash", "deposit"); err != nil {
		return err
	}

	a, err := svc.AssignWorkers(ctx, shop.AssignWorkersInput{
		WorkOrderID: order.ID,
		Title:       "Alternator replacement",
		Payment:     engine.MustParseMoney("300.00"),
		Workers:     []shop.AssignWorker{{WorkerID: worker.ID}},
	})
	if err != nil {
		return err
	}

	ref := shop.UnitRef{Kind: shop.UnitAssignment, AssignmentID: a.ID}
	if _, err := svc.TransitionUnit(ctx, ref, "", engine.EventStart); err != nil {
		return err
	}
	if _, err := svc.TransitionUnit(ctx, ref, "", engine.EventFinish); err != nil {
		return err
	}

	batch, err := svc.Store.ActiveBatchByWorkOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	if batch != nil {
		for _, it := range batch.Items {
			itemRef := shop.UnitRef{Kind: shop.UnitItem, ItemID: it.ID}
			if _, err := svc.TransitionUnit(ctx, itemRef, "", engine.EventFinish); err != nil {
				return err
			}
			if _, err := svc.ReviewBatchItem(ctx, it.ID, true, ""); err != nil {
				return err
			}
		}
	}

	// The approval completes the order; the 100.00 shortfall becomes a debt.
	_, err = svc.ApproveAssignment(ctx, a.ID)
	return err
}
