package operations

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/accounting/accounts"
	"github.com/meridian-erp/meridian-erp/internal/accounting/journals"
	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/sequences"
)

// SequencePort hands out document reference numbers.
type SequencePort interface {
	Next(ctx context.Context, tenantID uuid.UUID, module, prefix string) (string, error)
}

// StockPort records inventory movements at tracked valuation.
type StockPort interface {
	RecordMovement(ctx context.Context, in inventory.MovementInput) (inventory.MovementResult, error)
}

// LedgerPort records double-entry journals.
type LedgerPort interface {
	Post(ctx context.Context, in journals.PostingInput) (journals.Journal, error)
}

// UnitOfWork bundles the three engines bound to one transaction. Every
// business operation runs against a single UnitOfWork; if any step fails the
// whole transaction rolls back and no engine's writes survive.
type UnitOfWork struct {
	Sequences SequencePort
	Stock     StockPort
	Ledger    LedgerPort
}

// TxRunner executes a function against a transaction-bound UnitOfWork.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(uow UnitOfWork) error) error
}

// PgTxRunner builds a UnitOfWork over a pgx transaction. The account
// resolver inside the transaction is uncached so resolution sees the same
// snapshot as the posting writes.
type PgTxRunner struct {
	pool       *pgxpool.Pool
	invCfg     inventory.Config
	logger     *slog.Logger
	metrics    *observability.Metrics
	seqRetries int
}

// NewPgTxRunner constructs a PgTxRunner.
func NewPgTxRunner(pool *pgxpool.Pool, invCfg inventory.Config, logger *slog.Logger, metrics *observability.Metrics) *PgTxRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &PgTxRunner{pool: pool, invCfg: invCfg, logger: logger, metrics: metrics}
}

// WithSequenceRetries overrides the number generator's conflict retry budget.
func (r *PgTxRunner) WithSequenceRetries(n int) {
	r.seqRetries = n
}

// RunInTx opens a transaction, builds the engines over it and runs fn.
func (r *PgTxRunner) RunInTx(ctx context.Context, fn func(uow UnitOfWork) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		resolver := accounts.NewResolver(accounts.NewPgStore(tx), nil, 0, r.logger)
		generator := sequences.NewGenerator(sequences.NewPgStore(tx))
		if r.seqRetries > 0 {
			generator.WithMaxRetries(r.seqRetries)
		}
		if r.metrics != nil {
			generator.WithConflictHook(r.metrics.SequenceConflicts.Inc)
		}
		uow := UnitOfWork{
			Sequences: generator,
			Stock:     inventory.NewEngine(inventory.NewPgStore(tx), r.invCfg),
			Ledger:    journals.NewService(journals.NewPgStore(tx), resolver, r.logger, r.metrics),
		}
		return fn(uow)
	})
}
