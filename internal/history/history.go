// Package history reads the execution history and refreshes order states
// from the SMM panel.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"smm_boost/internal/model"
	"smm_boost/internal/storage"
	"smm_boost/internal/trigger"
)

// ErrNotRefreshable is returned for executions whose order was never accepted.
var ErrNotRefreshable = errors.New("execution has no refreshable order")

// Store is the persistence the history needs.
type Store interface {
	storage.HistoryStore
	HasCompletedScreenshot(ctx context.Context, executionID int64, typ model.ScreenshotType) (bool, error)
}

// RefreshResult describes one status refresh.
type RefreshResult struct {
	Execution *model.ExecutionRecord
	Previous  model.ExecutionStatus
	Changed   bool
}

// History wraps the execution history with status refresh. After screenshots
// are dispatched in the background when an order first reaches completed.
type History struct {
	store  Store
	orders trigger.Collaborators
	shots  trigger.Capturer
	log    *slog.Logger

	wg sync.WaitGroup
}

// New creates a History. shots may be nil to disable after screenshots.
func New(store Store, orders trigger.Collaborators, shots trigger.Capturer, log *slog.Logger) *History {
	return &History{store: store, orders: orders, shots: shots, log: log}
}

// List returns executions matching f, newest first.
func (h *History) List(ctx context.Context, f model.ExecutionFilter) ([]model.ExecutionRecord, error) {
	return h.store.ListExecutions(ctx, f)
}

// Get returns one execution.
func (h *History) Get(ctx context.Context, id int64) (*model.ExecutionRecord, error) {
	return h.store.GetExecution(ctx, id)
}

// Stats returns counts by status and the total cost.
func (h *History) Stats(ctx context.Context) (model.ExecutionStats, error) {
	return h.store.ExecutionStats(ctx)
}

// Refresh queries the panel for the order of execution id and stores the result.
func (h *History) Refresh(ctx context.Context, id int64) (RefreshResult, error) {
	rec, err := h.store.GetExecution(ctx, id)
	if err != nil {
		return RefreshResult{}, err
	}
	return h.refresh(ctx, rec)
}

// RefreshOrder is Refresh keyed by the panel's order ID.
func (h *History) RefreshOrder(ctx context.Context, orderID string) (RefreshResult, error) {
	rec, err := h.store.GetExecutionByOrderID(ctx, orderID)
	if err != nil {
		return RefreshResult{}, err
	}
	return h.refresh(ctx, rec)
}

func (h *History) refresh(ctx context.Context, rec *model.ExecutionRecord) (RefreshResult, error) {
	if !rec.Refreshable() {
		return RefreshResult{Execution: rec, Previous: rec.Status}, fmt.Errorf("execution %d: %w", rec.ID, ErrNotRefreshable)
	}
	orders, err := h.orders.Orders()
	if err != nil {
		return RefreshResult{}, err
	}
	st, err := orders.OrderStatus(ctx, rec.OrderID)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("get order %s status: %w", rec.OrderID, err)
	}
	status, err := model.ParseOrderStatus(st.Status)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("order %s: %w", rec.OrderID, err)
	}

	prev, err := h.store.UpdateExecutionStatus(ctx, rec.ID, status, st.Charge)
	if err != nil {
		return RefreshResult{}, err
	}
	rec.Status = status
	if st.Charge != nil {
		rec.Cost = st.Charge
	}
	log := h.log.With("execution_id", rec.ID, "order_id", rec.OrderID)
	if prev != status {
		log.Info("order status changed", "from", prev, "to", status)
	}

	if status == model.StatusCompleted && prev != model.StatusCompleted {
		h.dispatchAfter(ctx, rec)
	}
	return RefreshResult{Execution: rec, Previous: prev, Changed: prev != status}, nil
}

func (h *History) dispatchAfter(ctx context.Context, rec *model.ExecutionRecord) {
	if h.shots == nil {
		return
	}
	bg := context.WithoutCancel(ctx)
	log := h.log.With("execution_id", rec.ID)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error("after screenshot panicked", "panic", r)
			}
		}()

		done, err := h.store.HasCompletedScreenshot(bg, rec.ID, model.ShotAfter)
		if err != nil {
			log.Error("check after screenshot", "error", err)
			return
		}
		if done {
			return
		}
		if res := h.shots.Capture(bg, rec.TargetURL, rec.Platform, rec.ID, model.ShotAfter); res.Err != nil {
			log.Warn("after screenshot failed", "error", res.Err)
		}
	}()
}

// Wait blocks until every dispatched after screenshot has finished.
func (h *History) Wait() {
	h.wg.Wait()
}
