package testutil

import (
	"PerpIndexer/internal/event"
	"PerpIndexer/internal/model"
	"PerpIndexer/internal/store"
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PositionKey identifies a perpetual position row.
type PositionKey struct {
	SubaccountID uuid.UUID
	PerpetualID  uint32
}

// AssetKey identifies an asset position row.
type AssetKey struct {
	SubaccountID uuid.UUID
	AssetID      uint32
}

// MemState is the full content of a MemStore.
type MemState struct {
	Blocks             map[string]model.Block
	Txs                map[uuid.UUID]model.TendermintTx
	Events             map[string]model.TendermintEvent // hex event id
	OraclePrices       map[uuid.UUID]model.OraclePrice
	Orders             map[uuid.UUID]model.Order
	Fills              map[uuid.UUID]model.Fill
	PerpetualPositions map[PositionKey]model.PerpetualPosition
	AssetPositions     map[AssetKey]model.AssetPosition
	Subaccounts        map[uuid.UUID]model.Subaccount
	Transfers          map[uuid.UUID]model.Transfer
	FundingUpdates     map[uuid.UUID]model.FundingIndexUpdate
	Candles            map[uuid.UUID]model.Candle
}

func newMemState() *MemState {
	return &MemState{
		Blocks:             make(map[string]model.Block),
		Txs:                make(map[uuid.UUID]model.TendermintTx),
		Events:             make(map[string]model.TendermintEvent),
		OraclePrices:       make(map[uuid.UUID]model.OraclePrice),
		Orders:             make(map[uuid.UUID]model.Order),
		Fills:              make(map[uuid.UUID]model.Fill),
		PerpetualPositions: make(map[PositionKey]model.PerpetualPosition),
		AssetPositions:     make(map[AssetKey]model.AssetPosition),
		Subaccounts:        make(map[uuid.UUID]model.Subaccount),
		Transfers:          make(map[uuid.UUID]model.Transfer),
		FundingUpdates:     make(map[uuid.UUID]model.FundingIndexUpdate),
		Candles:            make(map[uuid.UUID]model.Candle),
	}
}

func (s *MemState) clone() *MemState {
	c := newMemState()
	for k, v := range s.Blocks {
		c.Blocks[k] = v
	}
	for k, v := range s.Txs {
		c.Txs[k] = v
	}
	for k, v := range s.Events {
		c.Events[k] = v
	}
	for k, v := range s.OraclePrices {
		c.OraclePrices[k] = v
	}
	for k, v := range s.Orders {
		c.Orders[k] = v
	}
	for k, v := range s.Fills {
		c.Fills[k] = v
	}
	for k, v := range s.PerpetualPositions {
		c.PerpetualPositions[k] = v
	}
	for k, v := range s.AssetPositions {
		c.AssetPositions[k] = v
	}
	for k, v := range s.Subaccounts {
		c.Subaccounts[k] = v
	}
	for k, v := range s.Transfers {
		c.Transfers[k] = v
	}
	for k, v := range s.FundingUpdates {
		c.FundingUpdates[k] = v
	}
	for k, v := range s.Candles {
		c.Candles[k] = v
	}
	return c
}

// MemStore is an in-memory store.Store. A block transaction works on a copy
// of the committed state and swaps it in on Commit, so a rolled back block
// leaves no trace.
type MemStore struct {
	mu    sync.Mutex
	state *MemState

	// FailOn, when set, is consulted before every operation by name
	// ("InsertFill", "Commit", ...). A non-nil return fails the operation.
	FailOn func(op string) error

	commits   int
	rollbacks int
	snapshots int
}

var _ store.Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{state: newMemState()}
}

// State returns a copy of the committed state.
func (m *MemStore) State() *MemState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Commits returns the number of committed block transactions.
func (m *MemStore) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

// Rollbacks returns the number of rolled back block transactions.
func (m *MemStore) Rollbacks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rollbacks
}

// Snapshots returns how many snapshot transactions were opened.
func (m *MemStore) Snapshots() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshots
}

// Seed mutates the committed state directly.
func (m *MemStore) Seed(fn func(s *MemState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.state)
}

func (m *MemStore) fail(op string) error {
	if m.FailOn == nil {
		return nil
	}
	return m.FailOn(op)
}

func (m *MemStore) BeginBlock(ctx context.Context) (store.Tx, error) {
	if err := m.fail("BeginBlock"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return &memTx{parent: m, state: m.state.clone()}, nil
}

func (m *MemStore) BeginSnapshot(ctx context.Context) (store.Snapshot, error) {
	if err := m.fail("BeginSnapshot"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots++
	return &memSnapshot{parent: m, state: m.state.clone()}, nil
}

type memTx struct {
	mu     sync.Mutex
	parent *MemStore
	state  *MemState
	done   bool
}

// begin locks the transaction and runs the fault hook for op.
func (t *memTx) begin(op string) error {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return store.ErrTxDone
	}
	if err := t.parent.fail(op); err != nil {
		t.mu.Unlock()
		return err
	}
	return nil
}

func (t *memTx) InsertBlock(ctx context.Context, b model.Block) error {
	if err := t.begin("InsertBlock"); err != nil {
		return err
	}
	defer t.mu.Unlock()
	if _, ok := t.state.Blocks[b.Height]; !ok {
		t.state.Blocks[b.Height] = b
	}
	return nil
}

func (t *memTx) InsertTendermintTx(ctx context.Context, tx model.TendermintTx) error {
	if err := t.begin("InsertTendermintTx"); err != nil {
		return err
	}
	defer t.mu.Unlock()
	if _, ok := t.state.Txs[tx.ID]; !ok {
		t.state.Txs[tx.ID] = tx
	}
	return nil
}

func (t *memTx) InsertTendermintEvent(ctx context.Context, e model.TendermintEvent) error {
	if err := t.begin("InsertTendermintEvent"); err != nil {
		return err
	}
	defer t.mu.Unlock()
	key := hex.EncodeToString(e.ID)
	if _, ok := t.state.Events[key]; !ok {
		t.state.Events[key] = e
	}
	return nil
}

func (t *memTx) InsertOraclePrice(ctx context.Context, p model.OraclePrice) error {
	if err := t.begin("InsertOraclePrice"); err != nil {
		return err
	}
	defer t.mu.Unlock()
	if _, ok := t.state.OraclePrices[p.ID]; !ok {
		t.state.OraclePrices[p.ID] = p
	}
	return nil
}

func (t *memTx) FindOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	if err := t.begin("FindOrder"); err != nil {
		return nil, err
	}
	defer t.mu.Unlock()
	o, ok := t.state.Orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (t *memTx) UpsertOrder(ctx context.Context, o model.Order) error {
	if err := t.begin("UpsertOrder"); err != nil {
		return err
	}
	defer t.mu.Unlock()
	t.state.Orders[o.ID] = o
	return nil
}

func (t *memTx) InsertFill(ctx context.Context, f model.Fill) (bool, error) {
	if err := t.begin("InsertFill"); err != nil {
		return false, err
	}
	defer t.mu.Unlock()
	if _, ok := t.state.Fills[f.ID]; ok {
		return false, nil
	}
	t.state.Fills[f.ID] = f
	return true, nil
}

func (t *memTx) FindPerpetualPosition(ctx context.Context, subaccountID uuid.UUID, perpetualID uint32) (*model.PerpetualPosition, error) {
	if err := t.begin("FindPerpetualPosition"); err != nil {
		return nil, err
	}
	defer t.mu.Unlock()
	p, ok := t.state.PerpetualPositions[PositionKey{subaccountID, perpetualID}]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (t *memTx) UpsertPerpetualPosition(ctx context.Context, p model.PerpetualPosition) error {
	if err := t.begin("UpsertPerpetualPosition"); err != nil {
		return err
	}
	defer t.mu.Unlock()
	t.state.PerpetualPositions[PositionKey{p.SubaccountID, p.PerpetualID}] = p
	return nil
}

func (t *memTx) UpsertAssetPosition(ctx context.Context, p model.AssetPosition) error {
	if err := t.begin("UpsertAssetPosition"); err != nil {
		return err
	}
	defer t.mu.Unlock()
	t.state.AssetPositions[AssetKey{p.SubaccountID, p.AssetID}] = p
	return nil
}

func (t *memTx) UpsertSubaccount(ctx context.Context, s model.Subaccount) error {
	if err := t.begin("UpsertSubaccount"); err != nil {
		return err
	}
	defer t.mu.Unlock()
	t.state.Subaccounts[s.ID] = s
	return nil
}

func (t *memTx) InsertTransfer(ctx context.Context, tr model.Transfer) error {
	if err := t.begin("InsertTransfer"); err != nil {
		return err
	}
	defer t.mu.Unlock()
	if _, ok := t.state.Transfers[tr.ID]; !ok {
		t.state.Transfers[tr.ID] = tr
	}
	return nil
}

func (t *memTx) InsertFundingIndexUpdate(ctx context.Context, f model.FundingIndexUpdate) error {
	if err := t.begin("InsertFundingIndexUpdate"); err != nil {
		return err
	}
	defer t.mu.Unlock()
	if _, ok := t.state.FundingUpdates[f.ID]; !ok {
		t.state.FundingUpdates[f.ID] = f
	}
	return nil
}

func (t *memTx) UpsertCandle(ctx context.Context, c model.Candle) error {
	if err := t.begin("UpsertCandle"); err != nil {
		return err
	}
	defer t.mu.Unlock()
	t.state.Candles[c.ID] = c
	return nil
}

func (t *memTx) Commit() error {
	if err := t.begin("Commit"); err != nil {
		return err
	}
	defer t.mu.Unlock()
	t.done = true
	t.parent.mu.Lock()
	t.parent.state = t.state
	t.parent.commits++
	t.parent.mu.Unlock()
	return nil
}

func (t *memTx) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return store.ErrTxDone
	}
	t.done = true
	t.parent.mu.Lock()
	t.parent.rollbacks++
	t.parent.mu.Unlock()
	return nil
}

type memSnapshot struct {
	parent *MemStore
	state  *MemState
}

func (s *memSnapshot) LatestBlockHeight(ctx context.Context) (string, error) {
	if err := s.parent.fail("LatestBlockHeight"); err != nil {
		return "", err
	}
	latest := ""
	for h := range s.state.Blocks {
		if latest == "" || event.CompareHeights(h, latest) > 0 {
			latest = h
		}
	}
	return latest, nil
}

func (s *memSnapshot) LatestCandles(ctx context.Context) ([]model.Candle, error) {
	if err := s.parent.fail("LatestCandles"); err != nil {
		return nil, err
	}
	latest := make(map[string]model.Candle)
	for _, c := range s.state.Candles {
		key := fmt.Sprintf("%s|%s", c.Ticker, c.Resolution)
		if cur, ok := latest[key]; !ok || c.StartedAt.After(cur.StartedAt) {
			latest[key] = c
		}
	}
	out := make([]model.Candle, 0, len(latest))
	for _, c := range latest {
		out = append(out, c)
	}
	return out, nil
}

func (s *memSnapshot) LatestPrices(ctx context.Context) (map[uint32]decimal.Decimal, error) {
	if err := s.parent.fail("LatestPrices"); err != nil {
		return nil, err
	}
	heights := make(map[uint32]string)
	out := make(map[uint32]decimal.Decimal)
	for _, p := range s.state.OraclePrices {
		if h, ok := heights[p.MarketID]; ok && event.CompareHeights(p.EffectiveAtHeight, h) <= 0 {
			continue
		}
		heights[p.MarketID] = p.EffectiveAtHeight
		out[p.MarketID] = p.Price
	}
	return out, nil
}

func (s *memSnapshot) Rollback() error {
	return nil
}
