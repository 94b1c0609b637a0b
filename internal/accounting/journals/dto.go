package journals

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
)

// LineInput is one requested journal leg, addressed by account code.
type LineInput struct {
	AccountCode string          `json:"account_code" validate:"required"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Memo        string          `json:"memo,omitempty"`
	PartnerID   *uuid.UUID      `json:"partner_id,omitempty"`
}

// PostingInput is a complete journal to record.
type PostingInput struct {
	TenantID    uuid.UUID   `json:"-"`
	Date        time.Time   `json:"date" validate:"required"`
	RefNo       string      `json:"ref_no" validate:"required"`
	Description string      `json:"description"`
	SourceType  string      `json:"source_type"`
	SourceID    *uuid.UUID  `json:"source_id,omitempty"`
	Lines       []LineInput `json:"lines" validate:"required,min=2,dive"`

	// PostImmediately skips the approval workflow. System-generated
	// journals from inventory and cash operations use it; manual entries
	// stay pending until approved.
	PostImmediately bool `json:"-"`
}

// Validate checks the structural rules before any account is resolved:
// at least two lines, one side per line, and an exact debit/credit balance.
func (in PostingInput) Validate() error {
	if len(in.Lines) < 2 {
		return shared.ErrTooFewLines
	}
	totalDebit, totalCredit := decimal.Zero, decimal.Zero
	for i, line := range in.Lines {
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("%w: line %d has a negative amount", shared.ErrUnbalanced, i+1)
		}
		debitSet := line.Debit.IsPositive()
		creditSet := line.Credit.IsPositive()
		if debitSet == creditSet {
			return fmt.Errorf("%w: line %d must set exactly one of debit or credit", shared.ErrUnbalanced, i+1)
		}
		totalDebit = totalDebit.Add(line.Debit)
		totalCredit = totalCredit.Add(line.Credit)
	}
	if !totalDebit.Equal(totalCredit) {
		return fmt.Errorf("%w: debit %s != credit %s", shared.ErrUnbalanced, totalDebit, totalCredit)
	}
	return nil
}
