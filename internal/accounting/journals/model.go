package journals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the journal lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusPosted    Status = "posted"
	StatusCancelled Status = "cancelled"
)

// Journal is a double-entry journal header. Once Status reaches posted the
// journal and its lines are immutable; corrections go through Reverse.
type Journal struct {
	ID          int64           `json:"id"`
	TenantID    uuid.UUID       `json:"tenant_id"`
	Date        time.Time       `json:"date"`
	RefNo       string          `json:"ref_no"`
	Description string          `json:"description"`
	SourceType  string          `json:"source_type"`
	SourceID    *uuid.UUID      `json:"source_id,omitempty"`
	Status      Status          `json:"status"`
	ReversedBy  *int64          `json:"reversed_by,omitempty"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	CreatedAt   time.Time       `json:"created_at"`
	Lines       []Line          `json:"lines,omitempty"`
}

// Line is one journal leg. Exactly one of Debit and Credit is non-zero.
type Line struct {
	ID        int64           `json:"id"`
	JournalID int64           `json:"journal_id"`
	AccountID int64           `json:"account_id"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Memo      string          `json:"memo,omitempty"`
	PartnerID *uuid.UUID      `json:"partner_id,omitempty"`
}

// Source types recorded on journal headers.
const (
	SourceTypeManual       = "manual"
	SourceTypeGoodsReceipt = "goods_receipt"
	SourceTypeShipment     = "shipment"
	SourceTypeCash         = "cash"
	SourceTypeReversal     = "reversal"
)
