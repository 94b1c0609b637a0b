package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Store looks up accounts by code.
type Store interface {
	FindActiveByCode(ctx context.Context, tenantID uuid.UUID, code string) (Account, error)
}

// PgStore reads accounts from PostgreSQL. It runs over a pool or a pgx.Tx.
type PgStore struct {
	q db.Querier
}

// NewPgStore constructs a PgStore.
func NewPgStore(q db.Querier) *PgStore {
	return &PgStore{q: q}
}

// FindActiveByCode returns the active account with the given code for the
// tenant, or ErrUnknownAccount.
func (s *PgStore) FindActiveByCode(ctx context.Context, tenantID uuid.UUID, code string) (Account, error) {
	var a Account
	err := s.q.QueryRow(ctx, `SELECT id, tenant_id, code, name, type, parent_id, is_active, created_at, updated_at
FROM accounts WHERE tenant_id = $1 AND code = $2 AND is_active`, tenantID, code).
		Scan(&a.ID, &a.TenantID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("%w: %s", shared.ErrUnknownAccount, code)
		}
		return Account{}, fmt.Errorf("accounts: find by code: %w", err)
	}
	return a, nil
}
