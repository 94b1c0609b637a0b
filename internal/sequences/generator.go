// Package sequences issues unique, monotonically increasing, human readable
// document numbers per (tenant, module), e.g. PO-2026-0042.
package sequences

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrConflict signals the increment lost a race and must be retried. It is
// the only transient error in the document numbering path; the generator
// retries the increment alone, never the surrounding business operation.
var ErrConflict = errors.New("sequences: counter increment conflict")

// Store performs the atomic read-increment-write on the counter row. The
// whole read-modify-write must run under a per-row exclusive lock (or an
// equivalent atomic upsert); a first call for an unseen (tenant, module)
// creates the row without racing a concurrent first call.
type Store interface {
	IncrementAndGet(ctx context.Context, tenantID uuid.UUID, module, prefix string) (int64, string, error)
}

// Generator formats document numbers from incremented counters.
type Generator struct {
	store      Store
	now        func() time.Time
	maxRetries int
	onConflict func()
}

// NewGenerator constructs a Generator with a bounded retry budget.
func NewGenerator(store Store) *Generator {
	return &Generator{store: store, now: time.Now, maxRetries: 3}
}

// WithNow overrides the clock, used in tests.
func (g *Generator) WithNow(now func() time.Time) {
	if now != nil {
		g.now = now
	}
}

// WithMaxRetries overrides the ErrConflict retry budget.
func (g *Generator) WithMaxRetries(n int) {
	if n > 0 {
		g.maxRetries = n
	}
}

// WithConflictHook registers a callback invoked once per retried conflict,
// used for counting.
func (g *Generator) WithConflictHook(fn func()) {
	g.onConflict = fn
}

// Next returns the next document number formatted {prefix}-{year}-{counter}.
// The counter is zero padded to four digits and grows beyond them when
// needed. Counters are module scoped and never reset; the year comes from the
// wall clock at issuance. Callers wanting a yearly restart issue under a new
// module key.
//
// When the store runs on the caller's transaction, the increment commits and
// rolls back with it: an aborted business operation burns no number. A store
// over the bare pool commits immediately, which can leave gaps on later
// failure; gaps are tolerated, duplicates are not.
//
// The retry loop only pays off on a pool-bound store. Inside a caller's
// transaction a serialization failure aborts that transaction, the retried
// statement fails with a non-conflict error and Next returns it immediately;
// recovery there belongs to whoever owns the transaction.
func (g *Generator) Next(ctx context.Context, tenantID uuid.UUID, module, prefix string) (string, error) {
	if module == "" {
		return "", errors.New("sequences: module required")
	}
	if prefix == "" {
		prefix = module
	}
	var lastErr error
	for attempt := 0; attempt < g.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * 10 * time.Millisecond):
			}
		}
		n, storedPrefix, err := g.store.IncrementAndGet(ctx, tenantID, module, prefix)
		if err == nil {
			return fmt.Sprintf("%s-%d-%04d", storedPrefix, g.now().Year(), n), nil
		}
		if !errors.Is(err, ErrConflict) {
			return "", err
		}
		if g.onConflict != nil {
			g.onConflict()
		}
		lastErr = err
	}
	return "", fmt.Errorf("sequences: retries exhausted: %w", lastErr)
}
