package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
)

// ReorderScanner flags stock positions below their configured minimum.
type ReorderScanner struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewReorderScanner constructs the scanner.
func NewReorderScanner(pool *pgxpool.Pool, logger *slog.Logger) *ReorderScanner {
	return &ReorderScanner{pool: pool, logger: logger}
}

// Run walks every tenant with active reorder rules and logs suggestions.
func (s *ReorderScanner) Run(ctx context.Context) error {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT tenant_id FROM stock_reorder_rules WHERE is_active`)
	if err != nil {
		return fmt.Errorf("jobs: reorder tenants: %w", err)
	}
	defer rows.Close()
	var tenants []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return err
		}
		tenants = append(tenants, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	store := inventory.NewPgStore(s.pool)
	for _, tenantID := range tenants {
		suggestions, err := store.ListReorderSuggestions(ctx, tenantID)
		if err != nil {
			return err
		}
		for _, sgn := range suggestions {
			s.logger.Warn("stock below reorder point",
				slog.String("tenant_id", tenantID.String()),
				slog.String("product_id", sgn.ProductID.String()),
				slog.String("warehouse_id", sgn.WarehouseID.String()),
				slog.String("on_hand", sgn.OnHand.String()),
				slog.String("min_qty", sgn.MinQty.String()),
				slog.String("reorder_qty", sgn.ReorderQty.String()),
				slog.Bool("urgent", sgn.Urgent))
		}
	}
	return nil
}

// HandleReorderScan adapts the scanner to an Asynq handler.
func HandleReorderScan(scanner *ReorderScanner) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		return scanner.Run(ctx)
	}
}
