package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
)

// Resolver resolves an account code for a tenant to the account row.
// Lookups are read-through cached in Redis; concurrent misses for the same
// key are deduplicated. Unknown codes are a hard failure and are never
// cached, so a freshly configured account becomes resolvable immediately.
type Resolver struct {
	store  Store
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewResolver constructs a Resolver. cache may be nil, in which case every
// call goes to the store; business operations use an uncached resolver over
// their own transaction.
func NewResolver(store Store, cache *redis.Client, ttl time.Duration, logger *slog.Logger) *Resolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, cache: cache, ttl: ttl, logger: logger}
}

// Resolve returns the active account for (tenant, code) or ErrUnknownAccount.
func (r *Resolver) Resolve(ctx context.Context, tenantID uuid.UUID, code string) (Account, error) {
	if code == "" {
		return Account{}, fmt.Errorf("%w: empty code", shared.ErrUnknownAccount)
	}
	key := cacheKey(tenantID, code)
	if r.cache != nil {
		raw, err := r.cache.Get(ctx, key).Bytes()
		if err == nil {
			var a Account
			if err := json.Unmarshal(raw, &a); err == nil {
				return a, nil
			}
			// Corrupt entry, drop it and fall through to the store.
			_ = r.cache.Del(ctx, key).Err()
		} else if !errors.Is(err, redis.Nil) {
			r.logger.Warn("account cache read", slog.Any("error", err))
		}
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		a, err := r.store.FindActiveByCode(ctx, tenantID, code)
		if err != nil {
			return Account{}, err
		}
		if r.cache != nil {
			if raw, err := json.Marshal(a); err == nil {
				if err := r.cache.Set(ctx, key, raw, r.ttl).Err(); err != nil {
					r.logger.Warn("account cache write", slog.Any("error", err))
				}
			}
		}
		return a, nil
	})
	if err != nil {
		return Account{}, err
	}
	return v.(Account), nil
}

// Invalidate evicts the cached entry for (tenant, code). Called when the
// administrative collaborator deactivates or re-parents an account.
func (r *Resolver) Invalidate(ctx context.Context, tenantID uuid.UUID, code string) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Del(ctx, cacheKey(tenantID, code)).Err()
}

func cacheKey(tenantID uuid.UUID, code string) string {
	return fmt.Sprintf("coa:%s:%s", tenantID, code)
}
