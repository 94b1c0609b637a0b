package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type balanceKey struct {
	tenant    uuid.UUID
	product   uuid.UUID
	warehouse uuid.UUID
}

type memoryStore struct {
	policies map[uuid.UUID]ValuationPolicy
	balances map[balanceKey]Balance
	layers   []Layer
	entries  []LedgerEntry
	nextID   int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		policies: make(map[uuid.UUID]ValuationPolicy),
		balances: make(map[balanceKey]Balance),
	}
}

func (s *memoryStore) GetPolicy(ctx context.Context, in MovementInput) (ValuationPolicy, error) {
	policy, ok := s.policies[in.ProductID]
	if !ok {
		return "", ErrProductNotFound
	}
	return policy, nil
}

func (s *memoryStore) GetBalanceForUpdate(ctx context.Context, in MovementInput) (Balance, error) {
	b, ok := s.balances[balanceKey{in.TenantID, in.ProductID, in.WarehouseID}]
	if !ok {
		return Balance{}, ErrBalanceNotFound
	}
	return b, nil
}

func (s *memoryStore) UpsertBalance(ctx context.Context, balance Balance) error {
	s.balances[balanceKey{balance.TenantID, balance.ProductID, balance.WarehouseID}] = balance
	return nil
}

func (s *memoryStore) LayersForUpdate(ctx context.Context, in MovementInput) ([]Layer, error) {
	var out []Layer
	for _, l := range s.layers {
		if l.TenantID == in.TenantID && l.ProductID == in.ProductID && l.WarehouseID == in.WarehouseID && l.RemainingQty.IsPositive() {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *memoryStore) InsertLayer(ctx context.Context, layer Layer) (int64, error) {
	s.nextID++
	layer.ID = s.nextID
	s.layers = append(s.layers, layer)
	return layer.ID, nil
}

func (s *memoryStore) SetLayerRemaining(ctx context.Context, layerID int64, remaining decimal.Decimal) error {
	for i := range s.layers {
		if s.layers[i].ID == layerID {
			s.layers[i].RemainingQty = remaining
			return nil
		}
	}
	return ErrBalanceNotFound
}

func (s *memoryStore) AppendEntry(ctx context.Context, entry LedgerEntry) (int64, error) {
	s.nextID++
	entry.ID = s.nextID
	s.entries = append(s.entries, entry)
	return entry.ID, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func movement(tenant, product, warehouse uuid.UUID, qty, cost string) MovementInput {
	return MovementInput{
		TenantID:         tenant,
		ProductID:        product,
		WarehouseID:      warehouse,
		Qty:              dec(qty),
		DeclaredUnitCost: dec(cost),
		ReferenceType:    ReferenceTypeGRN,
		ReferenceID:      uuid.New(),
	}
}

func newTestEngine(t *testing.T, policy ValuationPolicy, cfg Config) (*Engine, *memoryStore, MovementInput) {
	t.Helper()
	store := newMemoryStore()
	tenant, product, warehouse := uuid.New(), uuid.New(), uuid.New()
	store.policies[product] = policy
	eng := NewEngine(store, cfg)
	eng.WithNow(func() time.Time { return time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC) })
	return eng, store, movement(tenant, product, warehouse, "0", "0")
}

func TestAverageReceiptsRecomputeRunningAverage(t *testing.T) {
	eng, _, base := newTestEngine(t, PolicyAverage, Config{})
	ctx := context.Background()

	base.Qty, base.DeclaredUnitCost = dec("100"), dec("10.00")
	res, err := eng.RecordMovement(ctx, base)
	require.NoError(t, err)
	require.True(t, res.NewOnHand.Equal(dec("100")))

	base.Qty, base.DeclaredUnitCost = dec("100"), dec("20.00")
	res, err = eng.RecordMovement(ctx, base)
	require.NoError(t, err)
	require.True(t, res.NewOnHand.Equal(dec("200")))

	base.Qty, base.DeclaredUnitCost, base.ReferenceType = dec("-50"), dec("99.99"), ReferenceTypeSO
	res, err = eng.RecordMovement(ctx, base)
	require.NoError(t, err)
	require.True(t, res.AppliedUnitCost.Equal(dec("15")), "issue must be costed at the running average, got %s", res.AppliedUnitCost)
	require.True(t, res.TotalValue.Equal(dec("750")))
	require.True(t, res.NewOnHand.Equal(dec("150")))
}

func TestAverageIssueIgnoresDeclaredCost(t *testing.T) {
	eng, store, base := newTestEngine(t, PolicyAverage, Config{})
	ctx := context.Background()

	base.Qty, base.DeclaredUnitCost = dec("10"), dec("4.00")
	_, err := eng.RecordMovement(ctx, base)
	require.NoError(t, err)

	base.Qty, base.DeclaredUnitCost, base.ReferenceType = dec("-4"), dec("12.50"), ReferenceTypeSO
	res, err := eng.RecordMovement(ctx, base)
	require.NoError(t, err)
	require.True(t, res.AppliedUnitCost.Equal(dec("4")))

	last := store.entries[len(store.entries)-1]
	require.True(t, last.UnitCost.Equal(dec("4")), "ledger entry must carry the applied cost, not the declared one")
}

func TestAverageResetsWhenStockReachesZero(t *testing.T) {
	eng, store, base := newTestEngine(t, PolicyAverage, Config{})
	ctx := context.Background()

	base.Qty, base.DeclaredUnitCost = dec("5"), dec("8.00")
	_, err := eng.RecordMovement(ctx, base)
	require.NoError(t, err)

	base.Qty, base.ReferenceType = dec("-5"), ReferenceTypeSO
	res, err := eng.RecordMovement(ctx, base)
	require.NoError(t, err)
	require.True(t, res.NewOnHand.IsZero())

	b := store.balances[balanceKey{base.TenantID, base.ProductID, base.WarehouseID}]
	require.True(t, b.AvgCost.IsZero())
}

func TestInsufficientStockWritesNothing(t *testing.T) {
	eng, store, base := newTestEngine(t, PolicyAverage, Config{})
	ctx := context.Background()

	base.Qty, base.DeclaredUnitCost = dec("3"), dec("7.00")
	_, err := eng.RecordMovement(ctx, base)
	require.NoError(t, err)
	entriesBefore := len(store.entries)
	balanceBefore := store.balances[balanceKey{base.TenantID, base.ProductID, base.WarehouseID}]

	base.Qty, base.ReferenceType = dec("-10"), ReferenceTypeSO
	_, err = eng.RecordMovement(ctx, base)
	require.ErrorIs(t, err, ErrInsufficientStock)

	require.Len(t, store.entries, entriesBefore)
	require.Equal(t, balanceBefore, store.balances[balanceKey{base.TenantID, base.ProductID, base.WarehouseID}])
}

func TestNegativeStockAllowedForAveragePolicy(t *testing.T) {
	eng, _, base := newTestEngine(t, PolicyAverage, Config{AllowNegativeStock: true})
	ctx := context.Background()

	base.Qty, base.DeclaredUnitCost = dec("2"), dec("5.00")
	_, err := eng.RecordMovement(ctx, base)
	require.NoError(t, err)

	base.Qty, base.ReferenceType = dec("-6"), ReferenceTypeSO
	res, err := eng.RecordMovement(ctx, base)
	require.NoError(t, err)
	require.True(t, res.NewOnHand.Equal(dec("-4")))
	require.True(t, res.AppliedUnitCost.Equal(dec("5")))
}

func TestFIFOConsumesOldestLayersFirst(t *testing.T) {
	eng, store, base := newTestEngine(t, PolicyFIFO, Config{})
	ctx := context.Background()

	base.Qty, base.DeclaredUnitCost = dec("100"), dec("10.00")
	_, err := eng.RecordMovement(ctx, base)
	require.NoError(t, err)
	base.Qty, base.DeclaredUnitCost = dec("50"), dec("12.00")
	_, err = eng.RecordMovement(ctx, base)
	require.NoError(t, err)

	base.Qty, base.DeclaredUnitCost, base.ReferenceType = dec("-120"), dec("0"), ReferenceTypeSO
	res, err := eng.RecordMovement(ctx, base)
	require.NoError(t, err)

	// 100 @ 10 + 20 @ 12 = 1240 over 120 units.
	require.True(t, res.TotalValue.Equal(dec("1240")), "total value is the exact layer sum")
	require.Len(t, res.Consumed, 2)
	require.True(t, res.Consumed[0].Qty.Equal(dec("100")))
	require.True(t, res.Consumed[0].UnitCost.Equal(dec("10")))
	require.True(t, res.Consumed[1].Qty.Equal(dec("20")))
	require.True(t, res.Consumed[1].UnitCost.Equal(dec("12")))

	remaining := decimal.Zero
	for _, l := range store.layers {
		remaining = remaining.Add(l.RemainingQty)
	}
	require.True(t, remaining.Equal(dec("30")), "layer remainders must sum to on-hand")
	require.True(t, res.NewOnHand.Equal(dec("30")))
}

func TestFIFONeverGoesNegative(t *testing.T) {
	eng, _, base := newTestEngine(t, PolicyFIFO, Config{AllowNegativeStock: true})
	ctx := context.Background()

	base.Qty, base.DeclaredUnitCost = dec("10"), dec("3.00")
	_, err := eng.RecordMovement(ctx, base)
	require.NoError(t, err)

	base.Qty, base.ReferenceType = dec("-11"), ReferenceTypeSO
	_, err = eng.RecordMovement(ctx, base)
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestFIFOLayerExhaustionAbortsBeforeWriting(t *testing.T) {
	eng, store, base := newTestEngine(t, PolicyFIFO, Config{})
	ctx := context.Background()

	base.Qty, base.DeclaredUnitCost = dec("10"), dec("3.00")
	_, err := eng.RecordMovement(ctx, base)
	require.NoError(t, err)

	// Simulate drift: the balance says 10 but the layers only hold 6.
	store.layers[0].RemainingQty = dec("6")
	layersBefore := append([]Layer(nil), store.layers...)
	entriesBefore := len(store.entries)

	base.Qty, base.ReferenceType = dec("-8"), ReferenceTypeSO
	_, err = eng.RecordMovement(ctx, base)
	require.ErrorIs(t, err, ErrLayerExhausted)

	require.Equal(t, layersBefore, store.layers, "no layer may be partially consumed on abort")
	require.Len(t, store.entries, entriesBefore)
}

func TestZeroQuantityRejected(t *testing.T) {
	eng, _, base := newTestEngine(t, PolicyAverage, Config{})
	_, err := eng.RecordMovement(context.Background(), base)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestNegativeDeclaredCostRejected(t *testing.T) {
	eng, _, base := newTestEngine(t, PolicyAverage, Config{})
	base.Qty, base.DeclaredUnitCost = dec("1"), dec("-0.01")
	_, err := eng.RecordMovement(context.Background(), base)
	require.ErrorIs(t, err, ErrInvalidUnitCost)
}

func TestUnknownProductRejected(t *testing.T) {
	eng, _, base := newTestEngine(t, PolicyAverage, Config{})
	base.ProductID = uuid.New()
	base.Qty, base.DeclaredUnitCost = dec("1"), dec("1")
	_, err := eng.RecordMovement(context.Background(), base)
	require.ErrorIs(t, err, ErrProductNotFound)
}
