package operations

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/accounting/accounts"
	"github.com/meridian-erp/meridian-erp/internal/accounting/journals"
	acctshared "github.com/meridian-erp/meridian-erp/internal/accounting/shared"
	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/sequences"
)

func newTestGenerator(state *memoryState) *sequences.Generator {
	g := sequences.NewGenerator(state)
	g.WithNow(func() time.Time { return time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC) })
	return g
}

// memoryState is the shared world the memory runner snapshots and restores
// around each unit of work, mimicking transaction rollback.
type memoryState struct {
	mu sync.Mutex

	// sequences
	counters map[string]int64
	prefixes map[string]string

	// inventory
	policies map[uuid.UUID]inventory.ValuationPolicy
	balances map[string]inventory.Balance
	layers   []inventory.Layer
	entries  []inventory.LedgerEntry

	// journals
	journals map[int64]*journals.Journal
	refNos   map[string]bool

	// accounts
	accounts map[string]accounts.Account

	nextID int64
}

func newMemoryState() *memoryState {
	return &memoryState{
		counters: make(map[string]int64),
		prefixes: make(map[string]string),
		policies: make(map[uuid.UUID]inventory.ValuationPolicy),
		balances: make(map[string]inventory.Balance),
		journals: make(map[int64]*journals.Journal),
		refNos:   make(map[string]bool),
		accounts: make(map[string]accounts.Account),
	}
}

func (s *memoryState) snapshot() *memoryState {
	c := newMemoryState()
	for k, v := range s.counters {
		c.counters[k] = v
	}
	for k, v := range s.prefixes {
		c.prefixes[k] = v
	}
	for k, v := range s.policies {
		c.policies[k] = v
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	c.layers = append([]inventory.Layer(nil), s.layers...)
	c.entries = append([]inventory.LedgerEntry(nil), s.entries...)
	for k, v := range s.journals {
		j := *v
		j.Lines = append([]journals.Line(nil), v.Lines...)
		c.journals[k] = &j
	}
	for k, v := range s.refNos {
		c.refNos[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	c.nextID = s.nextID
	return c
}

func (s *memoryState) restore(from *memoryState) {
	s.counters = from.counters
	s.prefixes = from.prefixes
	s.policies = from.policies
	s.balances = from.balances
	s.layers = from.layers
	s.entries = from.entries
	s.journals = from.journals
	s.refNos = from.refNos
	s.accounts = from.accounts
	s.nextID = from.nextID
}

func (s *memoryState) id() int64 {
	s.nextID++
	return s.nextID
}

func balKey(tenant, product, warehouse uuid.UUID) string {
	return fmt.Sprintf("%s:%s:%s", tenant, product, warehouse)
}

// sequence store

func (s *memoryState) IncrementAndGet(ctx context.Context, tenantID uuid.UUID, module, prefix string) (int64, string, error) {
	key := fmt.Sprintf("%s:%s", tenantID, module)
	if _, ok := s.prefixes[key]; !ok {
		s.prefixes[key] = prefix
	}
	s.counters[key]++
	return s.counters[key], s.prefixes[key], nil
}

// inventory store

func (s *memoryState) GetPolicy(ctx context.Context, in inventory.MovementInput) (inventory.ValuationPolicy, error) {
	policy, ok := s.policies[in.ProductID]
	if !ok {
		return "", inventory.ErrProductNotFound
	}
	return policy, nil
}

func (s *memoryState) GetBalanceForUpdate(ctx context.Context, in inventory.MovementInput) (inventory.Balance, error) {
	b, ok := s.balances[balKey(in.TenantID, in.ProductID, in.WarehouseID)]
	if !ok {
		return inventory.Balance{}, inventory.ErrBalanceNotFound
	}
	return b, nil
}

func (s *memoryState) UpsertBalance(ctx context.Context, balance inventory.Balance) error {
	s.balances[balKey(balance.TenantID, balance.ProductID, balance.WarehouseID)] = balance
	return nil
}

func (s *memoryState) LayersForUpdate(ctx context.Context, in inventory.MovementInput) ([]inventory.Layer, error) {
	var out []inventory.Layer
	for _, l := range s.layers {
		if l.TenantID == in.TenantID && l.ProductID == in.ProductID && l.WarehouseID == in.WarehouseID && l.RemainingQty.IsPositive() {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *memoryState) InsertLayer(ctx context.Context, layer inventory.Layer) (int64, error) {
	layer.ID = s.id()
	s.layers = append(s.layers, layer)
	return layer.ID, nil
}

func (s *memoryState) SetLayerRemaining(ctx context.Context, layerID int64, remaining decimal.Decimal) error {
	for i := range s.layers {
		if s.layers[i].ID == layerID {
			s.layers[i].RemainingQty = remaining
			return nil
		}
	}
	return fmt.Errorf("layer %d not found", layerID)
}

func (s *memoryState) AppendEntry(ctx context.Context, entry inventory.LedgerEntry) (int64, error) {
	entry.ID = s.id()
	s.entries = append(s.entries, entry)
	return entry.ID, nil
}

// journal store

func (s *memoryState) InsertJournal(ctx context.Context, j journals.Journal) (int64, error) {
	key := fmt.Sprintf("%s:%s", j.TenantID, j.RefNo)
	if s.refNos[key] {
		return 0, fmt.Errorf("%w: %s", acctshared.ErrDuplicateRefNo, j.RefNo)
	}
	s.refNos[key] = true
	j.ID = s.id()
	s.journals[j.ID] = &j
	return j.ID, nil
}

func (s *memoryState) InsertLines(ctx context.Context, journalID int64, lines []journals.Line) error {
	j, ok := s.journals[journalID]
	if !ok {
		return acctshared.ErrJournalNotFound
	}
	j.Lines = append(j.Lines, lines...)
	return nil
}

func (s *memoryState) GetJournal(ctx context.Context, tenantID uuid.UUID, id int64) (journals.Journal, error) {
	j, ok := s.journals[id]
	if !ok || j.TenantID != tenantID {
		return journals.Journal{}, acctshared.ErrJournalNotFound
	}
	return *j, nil
}

func (s *memoryState) ListJournals(ctx context.Context, tenantID uuid.UUID, status journals.Status, limit, offset int) ([]journals.Journal, error) {
	var out []journals.Journal
	for _, j := range s.journals {
		if j.TenantID == tenantID {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (s *memoryState) UpdateStatus(ctx context.Context, tenantID uuid.UUID, id int64, to journals.Status, from ...journals.Status) error {
	j, ok := s.journals[id]
	if !ok {
		return acctshared.ErrJournalNotFound
	}
	j.Status = to
	return nil
}

func (s *memoryState) SetReversedBy(ctx context.Context, tenantID uuid.UUID, id, reversalID int64) error {
	j, ok := s.journals[id]
	if !ok {
		return acctshared.ErrJournalNotFound
	}
	j.ReversedBy = &reversalID
	return nil
}

// account resolver

func (s *memoryState) Resolve(ctx context.Context, tenantID uuid.UUID, code string) (accounts.Account, error) {
	a, ok := s.accounts[code]
	if !ok {
		return accounts.Account{}, fmt.Errorf("%w: %s", acctshared.ErrUnknownAccount, code)
	}
	return a, nil
}

// memoryRunner builds a unit of work over the shared state and restores the
// pre-call snapshot when fn fails, the way a rolled back transaction would.
type memoryRunner struct {
	state  *memoryState
	invCfg inventory.Config
}

func (r *memoryRunner) RunInTx(ctx context.Context, fn func(uow UnitOfWork) error) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	before := r.state.snapshot()
	uow := UnitOfWork{
		Sequences: newTestGenerator(r.state),
		Stock:     inventory.NewEngine(r.state, r.invCfg),
		Ledger:    journals.NewService(r.state, r.state, nil, nil),
	}
	if err := fn(uow); err != nil {
		r.state.restore(before)
		return err
	}
	return nil
}

type recordingAlerts struct {
	calls []string
}

func (a *recordingAlerts) NotifyValuationExhausted(ctx context.Context, tenantID, productID, warehouseID uuid.UUID, detail string) error {
	a.calls = append(a.calls, productID.String())
	return nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newFixture(t *testing.T, policy inventory.ValuationPolicy, cfg inventory.Config) (*Service, *memoryState, *recordingAlerts, uuid.UUID, uuid.UUID, uuid.UUID) {
	t.Helper()
	state := newMemoryState()
	tenant, product, warehouse := uuid.New(), uuid.New(), uuid.New()
	state.policies[product] = policy
	for i, code := range []string{"1101", "1102", "1103", "2101", "4101", "5101"} {
		state.accounts[code] = accounts.Account{ID: int64(i + 1), Code: code, IsActive: true}
	}
	alerts := &recordingAlerts{}
	svc := NewService(&memoryRunner{state: state, invCfg: cfg}, DefaultAccountCodes(), alerts, nil, nil)
	return svc, state, alerts, tenant, product, warehouse
}

func receiptInput(tenant, product, warehouse uuid.UUID, qty, cost string) ReceiptInput {
	return ReceiptInput{
		TenantID: tenant,
		Date:     time.Date(2026, time.March, 14, 0, 0, 0, 0, time.UTC),
		Items: []ReceiptItem{
			{ProductID: product, WarehouseID: warehouse, Qty: dec(qty), UnitCost: dec(cost)},
		},
	}
}

func shipmentInput(tenant, product, warehouse uuid.UUID, qty, price string) ShipmentInput {
	return ShipmentInput{
		TenantID: tenant,
		Date:     time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC),
		Items: []ShipmentItem{
			{ProductID: product, WarehouseID: warehouse, Qty: dec(qty), UnitPrice: dec(price)},
		},
	}
}

func TestReceiveGoodsPostsInventoryAgainstAccrual(t *testing.T) {
	svc, state, _, tenant, product, warehouse := newFixture(t, inventory.PolicyAverage, inventory.Config{})

	res, err := svc.ReceiveGoods(context.Background(), receiptInput(tenant, product, warehouse, "100", "10.00"))
	require.NoError(t, err)
	require.Equal(t, "GRN-2026-0001", res.RefNo)
	require.True(t, res.TotalValue.Equal(dec("1000")))

	j := state.journals[res.JournalID]
	require.NotNil(t, j)
	require.Equal(t, journals.StatusPosted, j.Status)
	require.Equal(t, journals.SourceTypeGoodsReceipt, j.SourceType)
	require.Len(t, j.Lines, 2)
	require.True(t, j.Lines[0].Debit.Equal(dec("1000")), "inventory is debited")
	require.True(t, j.Lines[1].Credit.Equal(dec("1000")), "accrual is credited")

	b := state.balances[balKey(tenant, product, warehouse)]
	require.True(t, b.Qty.Equal(dec("100")))
	require.True(t, b.AvgCost.Equal(dec("10")))
}

func TestShipGoodsCostsAtValuationNotSalePrice(t *testing.T) {
	svc, state, _, tenant, product, warehouse := newFixture(t, inventory.PolicyAverage, inventory.Config{})
	ctx := context.Background()

	_, err := svc.ReceiveGoods(ctx, receiptInput(tenant, product, warehouse, "100", "10.00"))
	require.NoError(t, err)

	res, err := svc.ShipGoods(ctx, shipmentInput(tenant, product, warehouse, "40", "25.00"))
	require.NoError(t, err)
	require.Equal(t, "SO-2026-0001", res.RefNo)
	require.True(t, res.TotalRevenue.Equal(dec("1000")))
	require.True(t, res.TotalCOGS.Equal(dec("400")), "cost of goods comes from the running average, not the sale price")

	j := state.journals[res.JournalID]
	require.NotNil(t, j)
	require.Len(t, j.Lines, 4)
	totalDebit, totalCredit := decimal.Zero, decimal.Zero
	for _, l := range j.Lines {
		totalDebit = totalDebit.Add(l.Debit)
		totalCredit = totalCredit.Add(l.Credit)
	}
	require.True(t, totalDebit.Equal(totalCredit))
}

func TestShipGoodsInsufficientStockRollsBackEverything(t *testing.T) {
	svc, state, _, tenant, product, warehouse := newFixture(t, inventory.PolicyAverage, inventory.Config{})
	ctx := context.Background()

	_, err := svc.ReceiveGoods(ctx, receiptInput(tenant, product, warehouse, "10", "5.00"))
	require.NoError(t, err)
	journalsBefore := len(state.journals)
	entriesBefore := len(state.entries)
	counterBefore := state.counters[fmt.Sprintf("%s:%s", tenant, "SO")]

	_, err = svc.ShipGoods(ctx, shipmentInput(tenant, product, warehouse, "11", "9.00"))
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	require.Len(t, state.journals, journalsBefore, "no journal survives the rollback")
	require.Len(t, state.entries, entriesBefore, "no stock entry survives the rollback")
	require.Equal(t, counterBefore, state.counters[fmt.Sprintf("%s:%s", tenant, "SO")], "the burned number rolls back with the transaction")
	b := state.balances[balKey(tenant, product, warehouse)]
	require.True(t, b.Qty.Equal(dec("10")))
}

func TestShipGoodsLayerExhaustionRaisesAlert(t *testing.T) {
	svc, state, alerts, tenant, product, warehouse := newFixture(t, inventory.PolicyFIFO, inventory.Config{})
	ctx := context.Background()

	_, err := svc.ReceiveGoods(ctx, receiptInput(tenant, product, warehouse, "10", "5.00"))
	require.NoError(t, err)

	// Corrupt the layer so the balance and the layers disagree.
	state.layers[0].RemainingQty = dec("4")

	_, err = svc.ShipGoods(ctx, shipmentInput(tenant, product, warehouse, "8", "9.00"))
	require.ErrorIs(t, err, inventory.ErrLayerExhausted)
	require.Len(t, alerts.calls, 1)
	require.Equal(t, product.String(), alerts.calls[0])
}

func TestShipGoodsFIFOJournalMatchesLayerCosts(t *testing.T) {
	svc, state, _, tenant, product, warehouse := newFixture(t, inventory.PolicyFIFO, inventory.Config{})
	ctx := context.Background()

	_, err := svc.ReceiveGoods(ctx, receiptInput(tenant, product, warehouse, "100", "10.00"))
	require.NoError(t, err)
	_, err = svc.ReceiveGoods(ctx, receiptInput(tenant, product, warehouse, "50", "12.00"))
	require.NoError(t, err)

	res, err := svc.ShipGoods(ctx, shipmentInput(tenant, product, warehouse, "120", "30.00"))
	require.NoError(t, err)
	require.True(t, res.TotalCOGS.Equal(dec("1240")), "100 @ 10 plus 20 @ 12")

	remaining := decimal.Zero
	for _, l := range state.layers {
		remaining = remaining.Add(l.RemainingQty)
	}
	require.True(t, remaining.Equal(dec("30")))
}

func TestRecordCashIn(t *testing.T) {
	svc, state, _, tenant, _, _ := newFixture(t, inventory.PolicyAverage, inventory.Config{})

	res, err := svc.RecordCash(context.Background(), CashInput{
		TenantID:           tenant,
		Date:               time.Date(2026, time.March, 16, 0, 0, 0, 0, time.UTC),
		Direction:          CashDirectionIn,
		Amount:             dec("750.00"),
		CounterAccountCode: "1102",
		Description:        "Invoice settlement",
	})
	require.NoError(t, err)
	require.Equal(t, "CASH-2026-0001", res.RefNo)

	j := state.journals[res.JournalID]
	require.NotNil(t, j)
	require.Equal(t, journals.SourceTypeCash, j.SourceType)
	require.Equal(t, journals.StatusPosted, j.Status)
	require.True(t, j.Lines[0].Debit.Equal(dec("750")), "cash is debited on a receipt")
	require.True(t, j.Lines[1].Credit.Equal(dec("750")))
}

func TestRecordCashOutUnknownCounterAccountRollsBack(t *testing.T) {
	svc, state, _, tenant, _, _ := newFixture(t, inventory.PolicyAverage, inventory.Config{})

	_, err := svc.RecordCash(context.Background(), CashInput{
		TenantID:           tenant,
		Date:               time.Now(),
		Direction:          CashDirectionOut,
		Amount:             dec("10.00"),
		CounterAccountCode: "9999",
	})
	require.ErrorIs(t, err, acctshared.ErrUnknownAccount)
	require.Empty(t, state.journals)
	require.Zero(t, state.counters[fmt.Sprintf("%s:%s", tenant, "CASH")])
}

func TestReceiveGoodsZeroCostRecordsStockWithoutJournal(t *testing.T) {
	svc, state, _, tenant, product, warehouse := newFixture(t, inventory.PolicyAverage, inventory.Config{})

	res, err := svc.ReceiveGoods(context.Background(), receiptInput(tenant, product, warehouse, "5", "0.00"))
	require.NoError(t, err)
	require.Equal(t, "GRN-2026-0001", res.RefNo)
	require.Zero(t, res.JournalID)
	require.Empty(t, state.journals, "a zero-value receipt posts no journal")

	b := state.balances[balKey(tenant, product, warehouse)]
	require.True(t, b.Qty.Equal(dec("5")))
	require.Len(t, state.entries, 1, "the stock movement is still recorded")
}

func TestShipGoodsZeroPricePostsOnlyCostLegs(t *testing.T) {
	svc, state, _, tenant, product, warehouse := newFixture(t, inventory.PolicyAverage, inventory.Config{})
	ctx := context.Background()

	_, err := svc.ReceiveGoods(ctx, receiptInput(tenant, product, warehouse, "10", "5.00"))
	require.NoError(t, err)

	res, err := svc.ShipGoods(ctx, shipmentInput(tenant, product, warehouse, "4", "0.00"))
	require.NoError(t, err)
	require.True(t, res.TotalRevenue.IsZero())
	require.True(t, res.TotalCOGS.Equal(dec("20")))

	j := state.journals[res.JournalID]
	require.NotNil(t, j)
	require.Len(t, j.Lines, 2, "the revenue pair is omitted on a free-of-charge shipment")
	require.True(t, j.Lines[0].Debit.Equal(dec("20")), "cost of goods is still debited")
	require.True(t, j.Lines[1].Credit.Equal(dec("20")))
}

func TestShipGoodsZeroCostZeroPriceRecordsStockOnly(t *testing.T) {
	svc, state, _, tenant, product, warehouse := newFixture(t, inventory.PolicyAverage, inventory.Config{})
	ctx := context.Background()

	_, err := svc.ReceiveGoods(ctx, receiptInput(tenant, product, warehouse, "3", "0.00"))
	require.NoError(t, err)

	res, err := svc.ShipGoods(ctx, shipmentInput(tenant, product, warehouse, "2", "0.00"))
	require.NoError(t, err)
	require.Zero(t, res.JournalID)
	require.Empty(t, state.journals)

	b := state.balances[balKey(tenant, product, warehouse)]
	require.True(t, b.Qty.Equal(dec("1")))
}

func TestReceiveGoodsRejectsNonPositiveQty(t *testing.T) {
	svc, _, _, tenant, product, warehouse := newFixture(t, inventory.PolicyAverage, inventory.Config{})
	in := receiptInput(tenant, product, warehouse, "0", "1.00")
	_, err := svc.ReceiveGoods(context.Background(), in)
	require.Error(t, err)
}
