package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// PgStore persists valuation state in PostgreSQL.
type PgStore struct {
	q db.Querier
}

// NewPgStore constructs a PgStore over a pool or a pgx.Tx.
func NewPgStore(q db.Querier) *PgStore {
	return &PgStore{q: q}
}

func (s *PgStore) GetPolicy(ctx context.Context, in MovementInput) (ValuationPolicy, error) {
	var policy ValuationPolicy
	err := s.q.QueryRow(ctx, `SELECT valuation_method FROM products WHERE tenant_id = $1 AND id = $2`,
		in.TenantID, in.ProductID).Scan(&policy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: %s", ErrProductNotFound, in.ProductID)
		}
		return "", fmt.Errorf("inventory: get policy: %w", err)
	}
	if policy == "" {
		policy = PolicyAverage
	}
	return policy, nil
}

// GetBalanceForUpdate locks the balance row for the rest of the transaction.
// Average recomputation and FIFO layer consumption read state only after
// this lock is held.
func (s *PgStore) GetBalanceForUpdate(ctx context.Context, in MovementInput) (Balance, error) {
	var b Balance
	err := s.q.QueryRow(ctx, `SELECT tenant_id, product_id, warehouse_id, qty, avg_cost, updated_at
FROM stock_balances WHERE tenant_id = $1 AND product_id = $2 AND warehouse_id = $3 FOR UPDATE`,
		in.TenantID, in.ProductID, in.WarehouseID).
		Scan(&b.TenantID, &b.ProductID, &b.WarehouseID, &b.Qty, &b.AvgCost, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{}, ErrBalanceNotFound
		}
		return Balance{}, fmt.Errorf("inventory: get balance: %w", err)
	}
	return b, nil
}

func (s *PgStore) UpsertBalance(ctx context.Context, balance Balance) error {
	_, err := s.q.Exec(ctx, `INSERT INTO stock_balances (tenant_id, product_id, warehouse_id, qty, avg_cost, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW())
ON CONFLICT (tenant_id, product_id, warehouse_id)
DO UPDATE SET qty = EXCLUDED.qty, avg_cost = EXCLUDED.avg_cost, updated_at = NOW()`,
		balance.TenantID, balance.ProductID, balance.WarehouseID, balance.Qty, balance.AvgCost)
	if err != nil {
		return fmt.Errorf("inventory: upsert balance: %w", err)
	}
	return nil
}

// LayersForUpdate returns unconsumed layers oldest first, locked.
func (s *PgStore) LayersForUpdate(ctx context.Context, in MovementInput) ([]Layer, error) {
	rows, err := s.q.Query(ctx, `SELECT id, tenant_id, product_id, warehouse_id, remaining_qty, unit_cost, received_at
FROM valuation_layers
WHERE tenant_id = $1 AND product_id = $2 AND warehouse_id = $3 AND remaining_qty > 0
ORDER BY received_at ASC, id ASC
FOR UPDATE`, in.TenantID, in.ProductID, in.WarehouseID)
	if err != nil {
		return nil, fmt.Errorf("inventory: list layers: %w", err)
	}
	defer rows.Close()
	var layers []Layer
	for rows.Next() {
		var l Layer
		if err := rows.Scan(&l.ID, &l.TenantID, &l.ProductID, &l.WarehouseID, &l.RemainingQty, &l.UnitCost, &l.ReceivedAt); err != nil {
			return nil, err
		}
		layers = append(layers, l)
	}
	return layers, rows.Err()
}

func (s *PgStore) InsertLayer(ctx context.Context, layer Layer) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx, `INSERT INTO valuation_layers (tenant_id, product_id, warehouse_id, remaining_qty, unit_cost, received_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		layer.TenantID, layer.ProductID, layer.WarehouseID, layer.RemainingQty, layer.UnitCost, layer.ReceivedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inventory: insert layer: %w", err)
	}
	return id, nil
}

func (s *PgStore) SetLayerRemaining(ctx context.Context, layerID int64, remaining decimal.Decimal) error {
	cmd, err := s.q.Exec(ctx, `UPDATE valuation_layers SET remaining_qty = $2 WHERE id = $1`, layerID, remaining)
	if err != nil {
		return fmt.Errorf("inventory: consume layer: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("inventory: layer %d not found", layerID)
	}
	return nil
}

func (s *PgStore) AppendEntry(ctx context.Context, entry LedgerEntry) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx, `INSERT INTO stock_ledger_entries (tenant_id, product_id, warehouse_id, qty, unit_cost, reference_type, reference_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		entry.TenantID, entry.ProductID, entry.WarehouseID, entry.Qty, entry.UnitCost,
		entry.ReferenceType, entry.ReferenceID, entry.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inventory: append entry: %w", err)
	}
	return id, nil
}

// ListReorderSuggestions returns products below their reorder point.
func (s *PgStore) ListReorderSuggestions(ctx context.Context, tenantID uuid.UUID) ([]ReorderSuggestion, error) {
	rows, err := s.q.Query(ctx, `SELECT r.product_id, r.warehouse_id, COALESCE(b.qty, 0), r.min_qty, r.reorder_qty
FROM stock_reorder_rules r
LEFT JOIN stock_balances b
  ON b.tenant_id = r.tenant_id AND b.product_id = r.product_id AND b.warehouse_id = r.warehouse_id
WHERE r.tenant_id = $1 AND r.is_active AND COALESCE(b.qty, 0) < r.min_qty
ORDER BY r.product_id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("inventory: reorder scan: %w", err)
	}
	defer rows.Close()
	var out []ReorderSuggestion
	for rows.Next() {
		var sgn ReorderSuggestion
		if err := rows.Scan(&sgn.ProductID, &sgn.WarehouseID, &sgn.OnHand, &sgn.MinQty, &sgn.ReorderQty); err != nil {
			return nil, err
		}
		half := sgn.MinQty.Div(decimal.NewFromInt(2))
		sgn.Urgent = sgn.OnHand.LessThan(half)
		out = append(out, sgn)
	}
	return out, rows.Err()
}
