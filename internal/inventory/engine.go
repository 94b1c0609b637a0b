package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Store persists valuation state. Implementations must hold the balance row
// (and FIFO layers) locked for the duration of the read-recompute-write so
// concurrent movements on the same (product, warehouse) serialize.
type Store interface {
	GetPolicy(ctx context.Context, in MovementInput) (ValuationPolicy, error)
	GetBalanceForUpdate(ctx context.Context, in MovementInput) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	LayersForUpdate(ctx context.Context, in MovementInput) ([]Layer, error)
	InsertLayer(ctx context.Context, layer Layer) (int64, error)
	SetLayerRemaining(ctx context.Context, layerID int64, remaining decimal.Decimal) error
	AppendEntry(ctx context.Context, entry LedgerEntry) (int64, error)
}

// Config groups engine settings.
type Config struct {
	// AllowNegativeStock permits backorders for average-cost products.
	// FIFO products can never go negative: there is no layer to cost from.
	AllowNegativeStock bool
}

// Engine records signed inventory movements and computes the cost of each
// outgoing movement according to the product's valuation policy.
type Engine struct {
	store    Store
	allowNeg bool
	now      func() time.Time
}

// NewEngine constructs an Engine over the given store. Callers compose the
// engine into a business transaction by building the store over their pgx.Tx.
func NewEngine(store Store, cfg Config) *Engine {
	return &Engine{store: store, allowNeg: cfg.AllowNegativeStock, now: time.Now}
}

// WithNow overrides the clock, used in tests.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// RecordMovement applies one signed movement and appends a stock ledger
// entry at the applied cost. For receipts the applied cost is the declared
// cost. For issues it is the tracked valuation (running average or FIFO
// layer cost); the declared cost is never used as the COGS basis on an
// outgoing leg. Validation failures return before anything is written.
func (e *Engine) RecordMovement(ctx context.Context, in MovementInput) (MovementResult, error) {
	if in.Qty.IsZero() {
		return MovementResult{}, ErrInvalidQuantity
	}
	if in.DeclaredUnitCost.IsNegative() {
		return MovementResult{}, ErrInvalidUnitCost
	}
	if in.ReferenceType == "" {
		return MovementResult{}, errors.New("inventory: reference type required")
	}

	policy, err := e.store.GetPolicy(ctx, in)
	if err != nil {
		return MovementResult{}, err
	}

	balance, err := e.store.GetBalanceForUpdate(ctx, in)
	if errors.Is(err, ErrBalanceNotFound) {
		balance = Balance{TenantID: in.TenantID, ProductID: in.ProductID, WarehouseID: in.WarehouseID}
	} else if err != nil {
		return MovementResult{}, err
	}

	if in.Qty.IsPositive() {
		return e.receive(ctx, in, policy, balance)
	}
	return e.issue(ctx, in, policy, balance)
}

func (e *Engine) receive(ctx context.Context, in MovementInput, policy ValuationPolicy, balance Balance) (MovementResult, error) {
	newQty := balance.Qty.Add(in.Qty)
	newAvg := balance.AvgCost

	switch policy {
	case PolicyAverage:
		if newQty.IsZero() {
			newAvg = decimal.Zero
		} else {
			total := balance.Qty.Mul(balance.AvgCost).Add(in.Qty.Mul(in.DeclaredUnitCost))
			newAvg = total.Div(newQty)
		}
	case PolicyFIFO:
		layer := Layer{
			TenantID:     in.TenantID,
			ProductID:    in.ProductID,
			WarehouseID:  in.WarehouseID,
			RemainingQty: in.Qty,
			UnitCost:     in.DeclaredUnitCost,
			ReceivedAt:   e.now().UTC(),
		}
		if _, err := e.store.InsertLayer(ctx, layer); err != nil {
			return MovementResult{}, err
		}
	default:
		return MovementResult{}, fmt.Errorf("inventory: unknown valuation policy %q", policy)
	}

	balance.Qty = newQty
	balance.AvgCost = newAvg
	if err := e.store.UpsertBalance(ctx, balance); err != nil {
		return MovementResult{}, err
	}

	entryID, err := e.appendEntry(ctx, in, in.Qty, in.DeclaredUnitCost)
	if err != nil {
		return MovementResult{}, err
	}
	return MovementResult{
		EntryID:         entryID,
		AppliedUnitCost: in.DeclaredUnitCost,
		TotalValue:      in.Qty.Mul(in.DeclaredUnitCost),
		NewOnHand:       newQty,
	}, nil
}

func (e *Engine) issue(ctx context.Context, in MovementInput, policy ValuationPolicy, balance Balance) (MovementResult, error) {
	qty := in.Qty.Neg()
	newQty := balance.Qty.Add(in.Qty)

	if newQty.IsNegative() && (!e.allowNeg || policy == PolicyFIFO) {
		return MovementResult{}, fmt.Errorf("%w: on hand %s, issuing %s", ErrInsufficientStock, balance.Qty, qty)
	}

	var (
		applied    decimal.Decimal
		totalValue decimal.Decimal
		consumed   []LayerConsumption
	)
	switch policy {
	case PolicyAverage:
		// The declared cost on an issue is a sale or transfer price and
		// must not leak into COGS.
		applied = balance.AvgCost
		totalValue = qty.Mul(applied)
		if newQty.IsZero() {
			balance.AvgCost = decimal.Zero
		}
	case PolicyFIFO:
		layers, err := e.store.LayersForUpdate(ctx, in)
		if err != nil {
			return MovementResult{}, err
		}
		available := decimal.Zero
		for _, layer := range layers {
			available = available.Add(layer.RemainingQty)
		}
		if available.LessThan(qty) {
			return MovementResult{}, fmt.Errorf("%w: layers hold %s, issuing %s", ErrLayerExhausted, available, qty)
		}
		need := qty
		total := decimal.Zero
		for _, layer := range layers {
			if need.IsZero() {
				break
			}
			take := layer.RemainingQty
			if take.GreaterThan(need) {
				take = need
			}
			if err := e.store.SetLayerRemaining(ctx, layer.ID, layer.RemainingQty.Sub(take)); err != nil {
				return MovementResult{}, err
			}
			consumed = append(consumed, LayerConsumption{LayerID: layer.ID, Qty: take, UnitCost: layer.UnitCost})
			total = total.Add(take.Mul(layer.UnitCost))
			need = need.Sub(take)
		}
		// The exact layer sum is the COGS amount; the per-unit cost is
		// derived and may round, so it is never multiplied back.
		totalValue = total
		applied = total.Div(qty)
	default:
		return MovementResult{}, fmt.Errorf("inventory: unknown valuation policy %q", policy)
	}

	balance.Qty = newQty
	if err := e.store.UpsertBalance(ctx, balance); err != nil {
		return MovementResult{}, err
	}

	entryID, err := e.appendEntry(ctx, in, in.Qty, applied)
	if err != nil {
		return MovementResult{}, err
	}
	return MovementResult{
		EntryID:         entryID,
		AppliedUnitCost: applied,
		TotalValue:      totalValue,
		NewOnHand:       newQty,
		Consumed:        consumed,
	}, nil
}

func (e *Engine) appendEntry(ctx context.Context, in MovementInput, qty, unitCost decimal.Decimal) (int64, error) {
	return e.store.AppendEntry(ctx, LedgerEntry{
		TenantID:      in.TenantID,
		ProductID:     in.ProductID,
		WarehouseID:   in.WarehouseID,
		Qty:           qty,
		UnitCost:      unitCost,
		ReferenceType: in.ReferenceType,
		ReferenceID:   in.ReferenceID,
		CreatedAt:     e.now().UTC(),
	})
}
