package operations

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReceiptItem is one received product line.
type ReceiptItem struct {
	ProductID   uuid.UUID       `json:"product_id" validate:"required"`
	WarehouseID uuid.UUID       `json:"warehouse_id" validate:"required"`
	Qty         decimal.Decimal `json:"qty"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
}

// ReceiptInput records goods received against a purchase order.
type ReceiptInput struct {
	TenantID        uuid.UUID     `json:"-"`
	PurchaseOrderID *uuid.UUID    `json:"purchase_order_id,omitempty"`
	Date            time.Time     `json:"date" validate:"required"`
	Items           []ReceiptItem `json:"items" validate:"required,min=1,dive"`
	Notes           string        `json:"notes,omitempty"`
}

// ReceiptResult reports the created receipt.
type ReceiptResult struct {
	RefNo      string          `json:"ref_no"`
	JournalID  int64           `json:"journal_id"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// ShipmentItem is one shipped product line. UnitPrice is the sale price and
// drives revenue only; cost of goods comes from the valuation engine.
type ShipmentItem struct {
	ProductID   uuid.UUID       `json:"product_id" validate:"required"`
	WarehouseID uuid.UUID       `json:"warehouse_id" validate:"required"`
	Qty         decimal.Decimal `json:"qty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// ShipmentInput records goods shipped against a sales order.
type ShipmentInput struct {
	TenantID     uuid.UUID      `json:"-"`
	SalesOrderID *uuid.UUID     `json:"sales_order_id,omitempty"`
	CustomerID   *uuid.UUID     `json:"customer_id,omitempty"`
	Date         time.Time      `json:"date" validate:"required"`
	Items        []ShipmentItem `json:"items" validate:"required,min=1,dive"`
	Notes        string         `json:"notes,omitempty"`
}

// ShipmentResult reports the created shipment.
type ShipmentResult struct {
	RefNo        string          `json:"ref_no"`
	JournalID    int64           `json:"journal_id"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	TotalCOGS    decimal.Decimal `json:"total_cogs"`
}

// Cash transaction directions.
const (
	CashDirectionIn  = "in"
	CashDirectionOut = "out"
)

// CashInput records a cash receipt or payment against a counter account.
type CashInput struct {
	TenantID           uuid.UUID       `json:"-"`
	Date               time.Time       `json:"date" validate:"required"`
	Direction          string          `json:"direction" validate:"required,oneof=in out"`
	Amount             decimal.Decimal `json:"amount"`
	CounterAccountCode string          `json:"counter_account_code" validate:"required"`
	PartnerID          *uuid.UUID      `json:"partner_id,omitempty"`
	Description        string          `json:"description,omitempty"`
}

// CashResult reports the created cash transaction.
type CashResult struct {
	RefNo     string `json:"ref_no"`
	JournalID int64  `json:"journal_id"`
}
