package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-erp/meridian-erp/internal/observability"
)

// IntegrityChecker scans every tenant for ledger and valuation drift. Both
// findings indicate a bug or manual data surgery; the scan reports, it never
// repairs.
type IntegrityChecker struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewIntegrityChecker constructs the checker.
func NewIntegrityChecker(pool *pgxpool.Pool, logger *slog.Logger, metrics *observability.Metrics) *IntegrityChecker {
	return &IntegrityChecker{pool: pool, logger: logger, metrics: metrics}
}

// Run executes the journal balance scan and the layer drift scan in
// parallel and reports every offending tenant.
func (c *IntegrityChecker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.scanUnbalancedJournals(ctx) })
	g.Go(func() error { return c.scanLayerDrift(ctx) })
	g.Go(func() error { return c.scanBalanceDrift(ctx) })
	return g.Wait()
}

// scanUnbalancedJournals finds posted journals whose lines do not sum to
// zero. Posting validation makes this unreachable through the API.
func (c *IntegrityChecker) scanUnbalancedJournals(ctx context.Context) error {
	rows, err := c.pool.Query(ctx, `SELECT j.tenant_id, j.id, SUM(l.debit) - SUM(l.credit)
FROM journals j
JOIN journal_lines l ON l.journal_id = j.id
WHERE j.status = 'posted'
GROUP BY j.tenant_id, j.id
HAVING SUM(l.debit) <> SUM(l.credit)`)
	if err != nil {
		return fmt.Errorf("jobs: unbalanced scan: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			tenantID  uuid.UUID
			journalID int64
			diff      string
		)
		if err := rows.Scan(&tenantID, &journalID, &diff); err != nil {
			return err
		}
		if c.metrics != nil {
			c.metrics.IntegrityFailures.Inc()
		}
		c.logger.Error("posted journal out of balance",
			slog.String("tenant_id", tenantID.String()),
			slog.Int64("journal_id", journalID),
			slog.String("difference", diff))
	}
	return rows.Err()
}

// scanLayerDrift finds FIFO stock positions whose layer remainders disagree
// with the balance row.
func (c *IntegrityChecker) scanLayerDrift(ctx context.Context) error {
	rows, err := c.pool.Query(ctx, `SELECT b.tenant_id, b.product_id, b.warehouse_id, b.qty, COALESCE(SUM(v.remaining_qty), 0)
FROM stock_balances b
JOIN products p ON p.tenant_id = b.tenant_id AND p.id = b.product_id
LEFT JOIN valuation_layers v
  ON v.tenant_id = b.tenant_id AND v.product_id = b.product_id AND v.warehouse_id = b.warehouse_id
WHERE p.valuation_method = 'fifo'
GROUP BY b.tenant_id, b.product_id, b.warehouse_id, b.qty
HAVING b.qty <> COALESCE(SUM(v.remaining_qty), 0)`)
	if err != nil {
		return fmt.Errorf("jobs: layer drift scan: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			tenantID, productID, warehouseID uuid.UUID
			balanceQty, layerQty             string
		)
		if err := rows.Scan(&tenantID, &productID, &warehouseID, &balanceQty, &layerQty); err != nil {
			return err
		}
		if c.metrics != nil {
			c.metrics.IntegrityFailures.Inc()
		}
		c.logger.Error("valuation layers drifted from balance",
			slog.String("tenant_id", tenantID.String()),
			slog.String("product_id", productID.String()),
			slog.String("warehouse_id", warehouseID.String()),
			slog.String("balance_qty", balanceQty),
			slog.String("layer_qty", layerQty))
	}
	return rows.Err()
}

// scanBalanceDrift finds balance rows that disagree with the sum of the
// stock ledger, which is the source of truth.
func (c *IntegrityChecker) scanBalanceDrift(ctx context.Context) error {
	rows, err := c.pool.Query(ctx, `SELECT b.tenant_id, b.product_id, b.warehouse_id, b.qty, COALESCE(SUM(e.qty), 0)
FROM stock_balances b
LEFT JOIN stock_ledger_entries e
  ON e.tenant_id = b.tenant_id AND e.product_id = b.product_id AND e.warehouse_id = b.warehouse_id
GROUP BY b.tenant_id, b.product_id, b.warehouse_id, b.qty
HAVING b.qty <> COALESCE(SUM(e.qty), 0)`)
	if err != nil {
		return fmt.Errorf("jobs: balance drift scan: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			tenantID, productID, warehouseID uuid.UUID
			balanceQty, ledgerQty            string
		)
		if err := rows.Scan(&tenantID, &productID, &warehouseID, &balanceQty, &ledgerQty); err != nil {
			return err
		}
		if c.metrics != nil {
			c.metrics.IntegrityFailures.Inc()
		}
		c.logger.Error("stock balance drifted from ledger",
			slog.String("tenant_id", tenantID.String()),
			slog.String("product_id", productID.String()),
			slog.String("warehouse_id", warehouseID.String()),
			slog.String("balance_qty", balanceQty),
			slog.String("ledger_qty", ledgerQty))
	}
	return rows.Err()
}

// HandleLedgerIntegrity adapts the checker to an Asynq handler.
func HandleLedgerIntegrity(checker *IntegrityChecker) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		return checker.Run(ctx)
	}
}
