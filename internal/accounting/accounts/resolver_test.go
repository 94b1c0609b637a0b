package accounts

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
)

type memoryStore struct {
	accounts map[string]Account
	lookups  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{accounts: make(map[string]Account)}
}

func (s *memoryStore) put(a Account) {
	s.accounts[fmt.Sprintf("%s:%s", a.TenantID, a.Code)] = a
}

func (s *memoryStore) FindActiveByCode(ctx context.Context, tenantID uuid.UUID, code string) (Account, error) {
	s.lookups++
	a, ok := s.accounts[fmt.Sprintf("%s:%s", tenantID, code)]
	if !ok || !a.IsActive {
		return Account{}, fmt.Errorf("%w: %s", shared.ErrUnknownAccount, code)
	}
	return a, nil
}

func newTestCache(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestResolveCachesHits(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	tenant := uuid.New()
	store.put(Account{ID: 7, TenantID: tenant, Code: "1103", Name: "Inventory", Type: AccountTypeAsset, IsActive: true})

	resolver := NewResolver(store, newTestCache(t), time.Minute, nil)

	a, err := resolver.Resolve(ctx, tenant, "1103")
	require.NoError(t, err)
	require.Equal(t, int64(7), a.ID)
	require.Equal(t, AccountTypeAsset, a.Type)
	require.Equal(t, 1, store.lookups)

	// Second resolve is served from cache.
	a, err = resolver.Resolve(ctx, tenant, "1103")
	require.NoError(t, err)
	require.Equal(t, int64(7), a.ID)
	require.Equal(t, 1, store.lookups)
}

func TestResolveUnknownAccountIsHardFailure(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	resolver := NewResolver(store, newTestCache(t), time.Minute, nil)

	_, err := resolver.Resolve(ctx, uuid.New(), "9999")
	require.ErrorIs(t, err, shared.ErrUnknownAccount)

	// Misses are not cached: once configured, the account resolves.
	tenant := uuid.New()
	_, err = resolver.Resolve(ctx, tenant, "1103")
	require.ErrorIs(t, err, shared.ErrUnknownAccount)
	store.put(Account{ID: 3, TenantID: tenant, Code: "1103", Type: AccountTypeAsset, IsActive: true})
	a, err := resolver.Resolve(ctx, tenant, "1103")
	require.NoError(t, err)
	require.Equal(t, int64(3), a.ID)
}

func TestResolveInactiveAccount(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	tenant := uuid.New()
	store.put(Account{ID: 9, TenantID: tenant, Code: "2101", Type: AccountTypeLiability, IsActive: false})

	resolver := NewResolver(store, nil, 0, nil)
	_, err := resolver.Resolve(ctx, tenant, "2101")
	require.ErrorIs(t, err, shared.ErrUnknownAccount)
}

func TestInvalidateEvicts(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	tenant := uuid.New()
	store.put(Account{ID: 5, TenantID: tenant, Code: "4101", Type: AccountTypeIncome, IsActive: true})

	resolver := NewResolver(store, newTestCache(t), time.Minute, nil)

	_, err := resolver.Resolve(ctx, tenant, "4101")
	require.NoError(t, err)
	require.Equal(t, 1, store.lookups)

	require.NoError(t, resolver.Invalidate(ctx, tenant, "4101"))

	_, err = resolver.Resolve(ctx, tenant, "4101")
	require.NoError(t, err)
	require.Equal(t, 2, store.lookups)
}
