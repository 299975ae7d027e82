package inventory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fogon-pos/fogon/internal/shared"
)

type memoryLedger struct {
	stocks    map[uuid.UUID]Stock
	movements []Movement
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{stocks: make(map[uuid.UUID]Stock)}
}

func (m *memoryLedger) WithTx(ctx context.Context, fn func(context.Context, TxLedger) error) error {
	snapshot := make(map[uuid.UUID]Stock, len(m.stocks))
	for k, v := range m.stocks {
		snapshot[k] = v
	}
	count := len(m.movements)
	if err := fn(ctx, m); err != nil {
		m.stocks = snapshot
		m.movements = m.movements[:count]
		return err
	}
	return nil
}

func (m *memoryLedger) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	out := make([]Movement, len(m.movements))
	copy(out, m.movements)
	return out, nil
}

func (m *memoryLedger) ListStock(ctx context.Context) ([]Stock, error) {
	out := []Stock{}
	for _, s := range m.stocks {
		out = append(out, s)
	}
	return out, nil
}

func (m *memoryLedger) LowStock(ctx context.Context) ([]Stock, error) {
	out := []Stock{}
	for _, s := range m.stocks {
		if s.Trackable && s.Qty <= s.MinQty {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memoryLedger) GetStockForUpdate(ctx context.Context, productID uuid.UUID) (Stock, error) {
	stock, ok := m.stocks[productID]
	if !ok {
		return Stock{}, shared.ErrNotFound
	}
	return stock, nil
}

func (m *memoryLedger) InsertMovement(ctx context.Context, movement Movement) error {
	m.movements = append(m.movements, movement)
	return nil
}

func (m *memoryLedger) UpdateStock(ctx context.Context, productID uuid.UUID, qty, avgCost float64) error {
	stock := m.stocks[productID]
	stock.Qty = qty
	stock.AvgCost = avgCost
	m.stocks[productID] = stock
	return nil
}

func seedStock(repo *memoryLedger, qty, cost float64, trackable bool) uuid.UUID {
	id := uuid.New()
	repo.stocks[id] = Stock{ProductID: id, Name: "item", Qty: qty, AvgCost: cost, MinQty: 1, Trackable: trackable}
	return id
}

func TestWeightedAverage(t *testing.T) {
	require.InDelta(t, 3.0, WeightedAverage(10, 2.00, 5, 5.00), 1e-9)
	// average restarts when the base is depleted
	require.InDelta(t, 4.0, WeightedAverage(0, 9.99, 3, 4.00), 1e-9)
	require.InDelta(t, 4.0, WeightedAverage(-2, 9.99, 3, 4.00), 1e-9)
	// non-positive incoming quantity keeps the current cost
	require.InDelta(t, 2.5, WeightedAverage(10, 2.5, 0, 4.0), 1e-9)
}

func TestRecordReceiptUpdatesAverage(t *testing.T) {
	repo := newMemoryLedger()
	id := seedStock(repo, 10, 2.00, true)
	ctx := context.Background()

	_, err := Record(ctx, repo, MovementInput{ProductID: id, Kind: MovementReceipt, Quantity: 5, UnitCost: 5.00, Reason: "purchase", Actor: "ana"})
	require.NoError(t, err)
	require.InDelta(t, 15.0, repo.stocks[id].Qty, 1e-9)
	require.InDelta(t, 3.00, repo.stocks[id].AvgCost, 1e-9)
}

func TestRecordIssueKeepsAverage(t *testing.T) {
	repo := newMemoryLedger()
	id := seedStock(repo, 10, 2.50, true)
	ctx := context.Background()

	_, err := Record(ctx, repo, MovementInput{ProductID: id, Kind: MovementIssue, Quantity: -4, Reason: "sale", Actor: "ana"})
	require.NoError(t, err)
	require.InDelta(t, 6.0, repo.stocks[id].Qty, 1e-9)
	require.InDelta(t, 2.50, repo.stocks[id].AvgCost, 1e-9)
}

func TestRecordRejectsMissingReason(t *testing.T) {
	repo := newMemoryLedger()
	id := seedStock(repo, 10, 2.50, true)

	_, err := Record(context.Background(), repo, MovementInput{ProductID: id, Kind: MovementIssue, Quantity: -4, Reason: "  ", Actor: "ana"})
	require.True(t, shared.IsValidation(err))
	require.Empty(t, repo.movements)
}

func TestRecordRejectsNegativeResult(t *testing.T) {
	repo := newMemoryLedger()
	id := seedStock(repo, 3, 2.50, true)

	_, err := Record(context.Background(), repo, MovementInput{ProductID: id, Kind: MovementIssue, Quantity: -5, Reason: "sale", Actor: "ana"})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.InDelta(t, 3.0, repo.stocks[id].Qty, 1e-9)
}

func TestRecordAllowsNegativeForNonTrackable(t *testing.T) {
	repo := newMemoryLedger()
	id := seedStock(repo, 0, 0, false)

	_, err := Record(context.Background(), repo, MovementInput{ProductID: id, Kind: MovementIssue, Quantity: -2, Reason: "composed sale", Actor: "ana"})
	require.NoError(t, err)
	require.InDelta(t, -2.0, repo.stocks[id].Qty, 1e-9)
}

func TestQuantityEqualsSumOfMovements(t *testing.T) {
	repo := newMemoryLedger()
	id := seedStock(repo, 0, 0, true)
	ctx := context.Background()

	deltas := []MovementInput{
		{ProductID: id, Kind: MovementReceipt, Quantity: 10, UnitCost: 1, Reason: "r1", Actor: "a"},
		{ProductID: id, Kind: MovementIssue, Quantity: -3, Reason: "i1", Actor: "a"},
		{ProductID: id, Kind: MovementAdjustment, Quantity: -2, Reason: "waste", Actor: "a"},
		{ProductID: id, Kind: MovementReceipt, Quantity: 4, UnitCost: 2, Reason: "r2", Actor: "a"},
	}
	for _, d := range deltas {
		_, err := Record(ctx, repo, d)
		require.NoError(t, err)
	}

	var sum float64
	for _, m := range repo.movements {
		sum += m.Quantity
	}
	require.InDelta(t, sum, repo.stocks[id].Qty, 1e-9)
	require.InDelta(t, 9.0, repo.stocks[id].Qty, 1e-9)
}

func TestAdjustClassifiesDirection(t *testing.T) {
	repo := newMemoryLedger()
	id := seedStock(repo, 10, 2.00, true)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	mv, err := svc.Adjust(ctx, AdjustmentInput{ProductID: id, Quantity: 5, UnitCost: 3, Class: ReasonPurchaseReceipt, Reason: "GRN-7", Actor: "ana"})
	require.NoError(t, err)
	require.Equal(t, MovementReceipt, mv.Kind)
	require.InDelta(t, 15.0, repo.stocks[id].Qty, 1e-9)

	mv, err = svc.Adjust(ctx, AdjustmentInput{ProductID: id, Quantity: 2, Class: ReasonWaste, Reason: "burnt batch", Actor: "ana"})
	require.NoError(t, err)
	require.Equal(t, MovementIssue, mv.Kind)
	require.InDelta(t, -2.0, mv.Quantity, 1e-9)

	_, err = svc.Adjust(ctx, AdjustmentInput{ProductID: id, Quantity: 1, Class: "mystery", Reason: "??", Actor: "ana"})
	require.True(t, shared.IsValidation(err))
}
