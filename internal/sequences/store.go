package sequences

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// PgStore increments counters in the document_sequences table.
type PgStore struct {
	q db.Querier
}

// NewPgStore constructs a PgStore over a pool or a pgx.Tx.
func NewPgStore(q db.Querier) *PgStore {
	return &PgStore{q: q}
}

// IncrementAndGet bumps last_number for (tenant, module) in a single upsert.
// The statement takes the row lock for the duration of the read-modify-write,
// so concurrent callers on the same key serialize and each observes a
// distinct, strictly greater counter. The prefix is fixed on first use; later
// calls keep the stored prefix.
func (s *PgStore) IncrementAndGet(ctx context.Context, tenantID uuid.UUID, module, prefix string) (int64, string, error) {
	var (
		n            int64
		storedPrefix string
	)
	err := s.q.QueryRow(ctx, `INSERT INTO document_sequences (tenant_id, module, prefix, last_number)
VALUES ($1, $2, $3, 1)
ON CONFLICT (tenant_id, module)
DO UPDATE SET last_number = document_sequences.last_number + 1
RETURNING last_number, prefix`, tenantID, module, prefix).Scan(&n, &storedPrefix)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
			return 0, "", fmt.Errorf("%w: %s", ErrConflict, pgErr.Code)
		}
		return 0, "", fmt.Errorf("sequences: increment: %w", err)
	}
	return n, storedPrefix, nil
}
