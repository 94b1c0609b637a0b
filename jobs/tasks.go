package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries alerts that must not wait behind housekeeping.
	QueueCritical = "critical"

	// TaskValuationAlert reports a FIFO layer inconsistency found during a
	// shipment. The movement already rolled back; the alert is for operators.
	TaskValuationAlert = "valuation:alert"
	// TaskLedgerIntegrity scans every tenant's posted journals and stock
	// valuation layers for drift.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskReorderScan flags products below their reorder point.
	TaskReorderScan = "inventory:reorder_scan"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// ValuationAlertPayload identifies the stock position whose layers ran out.
type ValuationAlertPayload struct {
	TenantID    uuid.UUID `json:"tenant_id"`
	ProductID   uuid.UUID `json:"product_id"`
	WarehouseID uuid.UUID `json:"warehouse_id"`
	Detail      string    `json:"detail"`
}

// NewValuationAlertTask constructs the alert task.
func NewValuationAlertTask(payload ValuationAlertPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskValuationAlert, data, asynq.Queue(QueueCritical), asynq.MaxRetry(5)), nil
}

// NewLedgerIntegrityTask constructs the periodic integrity scan task.
func NewLedgerIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerIntegrity, nil)
}

// NewReorderScanTask constructs the periodic reorder scan task.
func NewReorderScanTask() *asynq.Task {
	return asynq.NewTask(TaskReorderScan, nil)
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}

// HandleValuationAlert surfaces the inconsistency to operators. Delivery is
// log based.
func HandleValuationAlert(logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ValuationAlertPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		logger.Error("valuation layers exhausted, manual reconciliation required",
			slog.String("tenant_id", payload.TenantID.String()),
			slog.String("product_id", payload.ProductID.String()),
			slog.String("warehouse_id", payload.WarehouseID.String()),
			slog.String("detail", payload.Detail))
		return nil
	}
}
