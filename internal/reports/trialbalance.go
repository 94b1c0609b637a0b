package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/accounting/accounts"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// TrialBalanceRow aggregates posted activity for one account.
type TrialBalanceRow struct {
	AccountID   int64                `json:"account_id"`
	Code        string               `json:"code"`
	Name        string               `json:"name"`
	Type        accounts.AccountType `json:"type"`
	TotalDebit  decimal.Decimal      `json:"total_debit"`
	TotalCredit decimal.Decimal      `json:"total_credit"`
	Balance     decimal.Decimal      `json:"balance"`
}

// TrialBalance is a per-tenant summary of posted journals. Balanced is
// false only when the ledger itself is corrupt; posting rules make that
// unreachable through the API.
type TrialBalance struct {
	TenantID    uuid.UUID         `json:"tenant_id"`
	From        *time.Time        `json:"from,omitempty"`
	To          *time.Time        `json:"to,omitempty"`
	Rows        []TrialBalanceRow `json:"rows"`
	TotalDebit  decimal.Decimal   `json:"total_debit"`
	TotalCredit decimal.Decimal   `json:"total_credit"`
	Balanced    bool              `json:"balanced"`
}

// Store reads trial balance rows.
type Store interface {
	TrialBalanceRows(ctx context.Context, tenantID uuid.UUID, from, to *time.Time) ([]TrialBalanceRow, error)
}

// PgStore implements Store over PostgreSQL.
type PgStore struct {
	q db.Querier
}

// NewPgStore constructs a PgStore.
func NewPgStore(q db.Querier) *PgStore {
	return &PgStore{q: q}
}

// TrialBalanceRows aggregates journal lines of posted journals only; drafts,
// pending and cancelled journals never affect reported balances.
func (s *PgStore) TrialBalanceRows(ctx context.Context, tenantID uuid.UUID, from, to *time.Time) ([]TrialBalanceRow, error) {
	rows, err := s.q.Query(ctx, `SELECT a.id, a.code, a.name, a.type,
       COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM journal_lines l
JOIN journals j ON j.id = l.journal_id
JOIN accounts a ON a.id = l.account_id
WHERE j.tenant_id = $1 AND j.status = 'posted'
  AND ($2::timestamptz IS NULL OR j.date >= $2)
  AND ($3::timestamptz IS NULL OR j.date <= $3)
GROUP BY a.id, a.code, a.name, a.type
ORDER BY a.code`, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("reports: trial balance: %w", err)
	}
	defer rows.Close()
	var out []TrialBalanceRow
	for rows.Next() {
		var r TrialBalanceRow
		if err := rows.Scan(&r.AccountID, &r.Code, &r.Name, &r.Type, &r.TotalDebit, &r.TotalCredit); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Service assembles trial balances.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// TrialBalance returns the tenant's trial balance over an optional date
// range. Asset and expense accounts carry debit balances; liability, equity
// and income accounts carry credit balances.
func (s *Service) TrialBalance(ctx context.Context, tenantID uuid.UUID, from, to *time.Time) (TrialBalance, error) {
	rows, err := s.store.TrialBalanceRows(ctx, tenantID, from, to)
	if err != nil {
		return TrialBalance{}, err
	}
	tb := TrialBalance{
		TenantID:    tenantID,
		From:        from,
		To:          to,
		Rows:        rows,
		TotalDebit:  decimal.Zero,
		TotalCredit: decimal.Zero,
	}
	for i := range tb.Rows {
		row := &tb.Rows[i]
		switch row.Type {
		case accounts.AccountTypeAsset, accounts.AccountTypeExpense:
			row.Balance = row.TotalDebit.Sub(row.TotalCredit)
		default:
			row.Balance = row.TotalCredit.Sub(row.TotalDebit)
		}
		tb.TotalDebit = tb.TotalDebit.Add(row.TotalDebit)
		tb.TotalCredit = tb.TotalCredit.Add(row.TotalCredit)
	}
	tb.Balanced = tb.TotalDebit.Equal(tb.TotalCredit)
	return tb, nil
}
