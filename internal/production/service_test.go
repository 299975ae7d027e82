package production

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fogon-pos/fogon/internal/inventory"
	"github.com/fogon-pos/fogon/internal/shared"
)

type memoryRepo struct {
	stocks    map[uuid.UUID]inventory.Stock
	recipes   map[uuid.UUID][]RecipeLine
	orders    map[uuid.UUID]Order
	movements []inventory.Movement
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		stocks:  map[uuid.UUID]inventory.Stock{},
		recipes: map[uuid.UUID][]RecipeLine{},
		orders:  map[uuid.UUID]Order{},
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	stocks := make(map[uuid.UUID]inventory.Stock, len(m.stocks))
	for k, v := range m.stocks {
		stocks[k] = v
	}
	orders := make(map[uuid.UUID]Order, len(m.orders))
	for k, v := range m.orders {
		orders[k] = v
	}
	count := len(m.movements)
	if err := fn(ctx, m); err != nil {
		m.stocks = stocks
		m.orders = orders
		m.movements = m.movements[:count]
		return err
	}
	return nil
}

func (m *memoryRepo) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	order, ok := m.orders[id]
	if !ok {
		return Order{}, shared.ErrNotFound
	}
	return order, nil
}

func (m *memoryRepo) ListOrders(ctx context.Context, limit int) ([]Order, error) {
	out := []Order{}
	for _, o := range m.orders {
		out = append(out, o)
	}
	return out, nil
}

func (m *memoryRepo) CreateOrder(ctx context.Context, order Order) error {
	m.orders[order.ID] = order
	return nil
}

func (m *memoryRepo) GetRecipe(ctx context.Context, productID uuid.UUID) ([]RecipeLine, error) {
	return m.recipes[productID], nil
}

func (m *memoryRepo) ReplaceRecipe(ctx context.Context, productID uuid.UUID, lines []RecipeLine) error {
	m.recipes[productID] = lines
	return nil
}

func (m *memoryRepo) RecipeGraph(ctx context.Context) (map[uuid.UUID][]uuid.UUID, error) {
	graph := map[uuid.UUID][]uuid.UUID{}
	for product, lines := range m.recipes {
		for _, line := range lines {
			graph[product] = append(graph[product], line.IngredientID)
		}
	}
	return graph, nil
}

func (m *memoryRepo) StockFor(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]inventory.Stock, error) {
	out := map[uuid.UUID]inventory.Stock{}
	for _, id := range ids {
		if s, ok := m.stocks[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

func (m *memoryRepo) GetStockForUpdate(ctx context.Context, productID uuid.UUID) (inventory.Stock, error) {
	stock, ok := m.stocks[productID]
	if !ok {
		return inventory.Stock{}, shared.ErrNotFound
	}
	return stock, nil
}

func (m *memoryRepo) InsertMovement(ctx context.Context, movement inventory.Movement) error {
	m.movements = append(m.movements, movement)
	return nil
}

func (m *memoryRepo) UpdateStock(ctx context.Context, productID uuid.UUID, qty, avgCost float64) error {
	stock := m.stocks[productID]
	stock.Qty = qty
	stock.AvgCost = avgCost
	m.stocks[productID] = stock
	return nil
}

func (m *memoryRepo) ClaimOrder(ctx context.Context, orderID uuid.UUID, unitCost float64, actor string) (bool, error) {
	order, ok := m.orders[orderID]
	if !ok || order.Status != OrderDraft {
		return false, nil
	}
	order.Status = OrderConfirmed
	order.ProducedUnitCost = unitCost
	order.ConfirmedBy = actor
	m.orders[orderID] = order
	return true, nil
}

func (m *memoryRepo) seedStock(name string, qty, cost float64, trackable bool) uuid.UUID {
	id := uuid.New()
	m.stocks[id] = inventory.Stock{ProductID: id, Name: name, Qty: qty, AvgCost: cost, Trackable: trackable}
	return id
}

func TestPlanFeasibility(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	flour := repo.seedStock("flour", 5, 0.80, true)
	salsa := repo.seedStock("salsa", 10, 1.20, true)
	tamal := repo.seedStock("tamal", 0, 0, true)
	repo.recipes[tamal] = []RecipeLine{
		{ProductID: tamal, IngredientID: flour, QtyPerUnit: 2},
		{ProductID: tamal, IngredientID: salsa, QtyPerUnit: 0.5},
	}

	plan, err := svc.PlanProduction(ctx, tamal, 2)
	require.NoError(t, err)
	require.True(t, plan.Feasible)
	// flour caps the batch: 5 / 2 per unit = 2.5
	require.InDelta(t, 2.5, plan.MaxFeasible, 1e-9)
	require.InDelta(t, 2*2*0.80+2*0.5*1.20, plan.BatchCost, 1e-9)

	plan, err = svc.PlanProduction(ctx, tamal, 3)
	require.NoError(t, err)
	require.False(t, plan.Feasible)
}

func TestPlanFloorsMaxFeasibleToOneDecimal(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)

	egg := repo.seedStock("egg", 7, 0.30, true)
	flan := repo.seedStock("flan", 0, 0, true)
	repo.recipes[flan] = []RecipeLine{{ProductID: flan, IngredientID: egg, QtyPerUnit: 3}}

	// 7/3 = 2.333... floors to 2.3
	max, err := svc.MaxFeasible(context.Background(), flan)
	require.NoError(t, err)
	require.InDelta(t, 2.3, max, 1e-9)
}

func TestPlanRejectsEmptyRecipe(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)

	_, err := svc.PlanProduction(context.Background(), uuid.New(), 1)
	require.True(t, shared.IsValidation(err))
}

func TestConfirmMovesStockAndCost(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	flour := repo.seedStock("flour", 10, 0.80, true)
	tamal := repo.seedStock("tamal", 4, 1.00, true)
	repo.recipes[tamal] = []RecipeLine{{ProductID: tamal, IngredientID: flour, QtyPerUnit: 2}}

	order, err := svc.CreateOrder(ctx, tamal, 4, "", "cook")
	require.NoError(t, err)

	confirmed, err := svc.Confirm(ctx, order.ID, "cook")
	require.NoError(t, err)
	require.Equal(t, OrderConfirmed, confirmed.Status)

	// 8 flour at 0.80 = 6.40 batch cost, 1.60 per unit
	require.InDelta(t, 1.60, confirmed.ProducedUnitCost, 1e-9)
	require.InDelta(t, 2.0, repo.stocks[flour].Qty, 1e-9)
	require.InDelta(t, 8.0, repo.stocks[tamal].Qty, 1e-9)
	// weighted average of 4 @ 1.00 and 4 @ 1.60
	require.InDelta(t, 1.30, repo.stocks[tamal].AvgCost, 1e-9)
	require.Len(t, repo.movements, 2)
}

func TestConfirmInfeasibleLeavesNothingBehind(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	flour := repo.seedStock("flour", 3, 0.80, true)
	tamal := repo.seedStock("tamal", 0, 0, true)
	repo.recipes[tamal] = []RecipeLine{{ProductID: tamal, IngredientID: flour, QtyPerUnit: 2}}

	order, err := svc.CreateOrder(ctx, tamal, 4, "", "cook")
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, order.ID, "cook")
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.InDelta(t, 3.0, repo.stocks[flour].Qty, 1e-9)
	require.Empty(t, repo.movements)
	require.Equal(t, OrderDraft, repo.orders[order.ID].Status)
}

func TestConfirmTwiceConflicts(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	flour := repo.seedStock("flour", 100, 0.80, true)
	tamal := repo.seedStock("tamal", 0, 0, true)
	repo.recipes[tamal] = []RecipeLine{{ProductID: tamal, IngredientID: flour, QtyPerUnit: 1}}

	order, err := svc.CreateOrder(ctx, tamal, 5, "", "cook")
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, order.ID, "cook")
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, order.ID, "cook")
	require.ErrorIs(t, err, shared.ErrStateConflict)
	// the second attempt must not move stock again
	require.InDelta(t, 95.0, repo.stocks[flour].Qty, 1e-9)
}

func TestSaveRecipeRejectsCycles(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	masa := uuid.New()
	tamal := uuid.New()
	repo.recipes[masa] = []RecipeLine{{ProductID: masa, IngredientID: tamal, QtyPerUnit: 1}}

	err := svc.SaveRecipe(ctx, tamal, []RecipeLine{{ProductID: tamal, IngredientID: masa, QtyPerUnit: 2}})
	require.True(t, shared.IsValidation(err))

	err = svc.SaveRecipe(ctx, tamal, []RecipeLine{{ProductID: tamal, IngredientID: tamal, QtyPerUnit: 1}})
	require.True(t, shared.IsValidation(err))

	flour := uuid.New()
	err = svc.SaveRecipe(ctx, tamal, []RecipeLine{{ProductID: tamal, IngredientID: flour, QtyPerUnit: 2}})
	require.NoError(t, err)
	require.Len(t, repo.recipes[tamal], 1)
}
