package inventory

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ValuationPolicy selects how outgoing movements are costed.
type ValuationPolicy string

const (
	// PolicyAverage costs issues at the running weighted average.
	PolicyAverage ValuationPolicy = "average"
	// PolicyFIFO costs issues from the oldest unconsumed receipt layers.
	PolicyFIFO ValuationPolicy = "fifo"
)

// Reference types for stock ledger entries.
const (
	ReferenceTypePO         = "PO"
	ReferenceTypeSO         = "SO"
	ReferenceTypeGRN        = "GRN"
	ReferenceTypeTransfer   = "TRANSFER"
	ReferenceTypeAdjustment = "ADJUSTMENT"
)

// LedgerEntry is one append-only stock ledger row. Positive Qty is a
// receipt, negative an issue. UnitCost is the applied cost, not the
// caller-declared cost. Entries are never mutated, only offset by
// compensating entries.
type LedgerEntry struct {
	ID            int64
	TenantID      uuid.UUID
	ProductID     uuid.UUID
	WarehouseID   uuid.UUID
	Qty           decimal.Decimal
	UnitCost      decimal.Decimal
	ReferenceType string
	ReferenceID   uuid.UUID
	CreatedAt     time.Time
}

// Balance summarises on-hand quantity per (product, warehouse). AvgCost is
// the running average and is only meaningful under PolicyAverage.
type Balance struct {
	TenantID    uuid.UUID
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
	Qty         decimal.Decimal
	AvgCost     decimal.Decimal
	UpdatedAt   time.Time
}

// Layer is one FIFO valuation layer. Layers are consumed oldest first; the
// remaining quantities of all layers for a (product, warehouse) always sum
// to the on-hand quantity.
type Layer struct {
	ID           int64
	TenantID     uuid.UUID
	ProductID    uuid.UUID
	WarehouseID  uuid.UUID
	RemainingQty decimal.Decimal
	UnitCost     decimal.Decimal
	ReceivedAt   time.Time
}

// MovementInput describes a signed inventory movement.
type MovementInput struct {
	TenantID         uuid.UUID
	ProductID        uuid.UUID
	WarehouseID      uuid.UUID
	Qty              decimal.Decimal
	DeclaredUnitCost decimal.Decimal
	ReferenceType    string
	ReferenceID      uuid.UUID
}

// LayerConsumption records how much of one layer an issue consumed.
type LayerConsumption struct {
	LayerID  int64
	Qty      decimal.Decimal
	UnitCost decimal.Decimal
}

// MovementResult reports the applied cost of a movement.
type MovementResult struct {
	EntryID         int64
	AppliedUnitCost decimal.Decimal
	TotalValue      decimal.Decimal
	NewOnHand       decimal.Decimal
	Consumed        []LayerConsumption
}

// ReorderSuggestion is a product below its reorder point.
type ReorderSuggestion struct {
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
	OnHand      decimal.Decimal
	MinQty      decimal.Decimal
	ReorderQty  decimal.Decimal
	Urgent      bool
}

var (
	// ErrInvalidQuantity indicates a zero movement quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be non zero")
	// ErrInvalidUnitCost indicates a negative declared cost.
	ErrInvalidUnitCost = errors.New("inventory: unit cost must be >= 0")
	// ErrInsufficientStock indicates the movement would drive on-hand
	// negative while backorders are disallowed. Nothing is written.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrLayerExhausted indicates FIFO layers cover less than the issued
	// quantity. This is a data inconsistency, never a costing shortcut;
	// the movement aborts and an alert should be raised.
	ErrLayerExhausted = errors.New("inventory: valuation layers exhausted")
	// ErrBalanceNotFound indicates no balance row exists yet.
	ErrBalanceNotFound = errors.New("inventory: balance not found")
	// ErrProductNotFound indicates an unknown product.
	ErrProductNotFound = errors.New("inventory: product not found")
)
