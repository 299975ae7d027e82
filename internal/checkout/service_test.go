package checkout

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fogon-pos/fogon/internal/catalog"
	"github.com/fogon-pos/fogon/internal/inventory"
	"github.com/fogon-pos/fogon/internal/shared"
)

type memoryRepo struct {
	stocks    map[uuid.UUID]inventory.Stock
	orders    map[uuid.UUID]Order
	lines     map[uuid.UUID][]OrderLine
	payments  map[uuid.UUID][]Payment
	movements []inventory.Movement
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		stocks:   map[uuid.UUID]inventory.Stock{},
		orders:   map[uuid.UUID]Order{},
		lines:    map[uuid.UUID][]OrderLine{},
		payments: map[uuid.UUID][]Payment{},
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
	lines := make(map[uuid.UUID][]OrderLine, len(m.lines))
	for k, v := range m.lines {
		lines[k] = v
	}
	payments := make(map[uuid.UUID][]Payment, len(m.payments))
	for k, v := range m.payments {
		payments[k] = v
	}
	count := len(m.movements)
	if err := fn(ctx, m); err != nil {
		m.stocks, m.orders, m.lines, m.payments = stocks, orders, lines, payments
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
	order.Lines = m.lines[id]
	order.Payments = m.payments[id]
	return order, nil
}

func (m *memoryRepo) ListOrders(ctx context.Context, sessionID uuid.UUID, limit int) ([]Order, error) {
	out := []Order{}
	for _, o := range m.orders {
		if sessionID == uuid.Nil || o.CashSessionID == sessionID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memoryRepo) InsertOrder(ctx context.Context, order Order) error {
	stored := order
	stored.Lines, stored.Payments = nil, nil
	m.orders[order.ID] = stored
	return nil
}

func (m *memoryRepo) InsertLine(ctx context.Context, line OrderLine) error {
	stored := line
	stored.Modifiers = nil
	m.lines[line.OrderID] = append(m.lines[line.OrderID], stored)
	return nil
}

func (m *memoryRepo) InsertLineModifier(ctx context.Context, mod LineModifier) error {
	for orderID, lines := range m.lines {
		for i := range lines {
			if lines[i].ID == mod.OrderLineID {
				lines[i].Modifiers = append(lines[i].Modifiers, mod)
				m.lines[orderID] = lines
				return nil
			}
		}
	}
	return shared.ErrNotFound
}

func (m *memoryRepo) InsertPayment(ctx context.Context, payment Payment) error {
	m.payments[payment.OrderID] = append(m.payments[payment.OrderID], payment)
	return nil
}

func (m *memoryRepo) MarkCancelled(ctx context.Context, orderID uuid.UUID) (bool, error) {
	order, ok := m.orders[orderID]
	if !ok {
		return false, shared.ErrNotFound
	}
	if order.Status == OrderCancelled {
		return false, nil
	}
	order.Status = OrderCancelled
	m.orders[orderID] = order
	return true, nil
}

func (m *memoryRepo) GetLines(ctx context.Context, orderID uuid.UUID) ([]OrderLine, error) {
	return m.lines[orderID], nil
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

type fakeCatalog struct {
	products  map[uuid.UUID]catalog.Product
	modifiers map[uuid.UUID]catalog.Modifier
}

func (f *fakeCatalog) Product(ctx context.Context, id uuid.UUID) (catalog.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return catalog.Product{}, shared.ErrNotFound
	}
	return p, nil
}

func (f *fakeCatalog) Modifiers(ctx context.Context, ids []uuid.UUID) ([]catalog.Modifier, error) {
	out := []catalog.Modifier{}
	for _, id := range ids {
		if m, ok := f.modifiers[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeSessions struct {
	id uuid.UUID
}

func (f *fakeSessions) OpenSessionID(ctx context.Context) (uuid.UUID, error) {
	if f.id == uuid.Nil {
		return uuid.Nil, shared.ErrNotFound
	}
	return f.id, nil
}

type fakeIdem struct {
	keys map[string]bool
}

func (f *fakeIdem) CheckAndInsert(ctx context.Context, key, module string) error {
	if f.keys == nil {
		f.keys = map[string]bool{}
	}
	if f.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	f.keys[key] = true
	return nil
}

func (f *fakeIdem) Delete(ctx context.Context, key string) error {
	delete(f.keys, key)
	return nil
}

type fixture struct {
	repo     *memoryRepo
	catalog  *fakeCatalog
	sessions *fakeSessions
	idem     *fakeIdem
	svc      *Service
}

func newFixture(taxRate float64) *fixture {
	f := &fixture{
		repo:     newMemoryRepo(),
		catalog:  &fakeCatalog{products: map[uuid.UUID]catalog.Product{}, modifiers: map[uuid.UUID]catalog.Modifier{}},
		sessions: &fakeSessions{id: uuid.New()},
		idem:     &fakeIdem{},
	}
	f.svc = NewService(f.repo, f.catalog, f.sessions, f.idem, nil, taxRate, nil)
	return f
}

func (f *fixture) seedProduct(name string, price, cost, stock float64) uuid.UUID {
	id := uuid.New()
	f.catalog.products[id] = catalog.Product{ID: id, Name: name, Type: catalog.ProductSimple, Price: price, BaseCost: cost, IsActive: true}
	f.repo.stocks[id] = inventory.Stock{ProductID: id, Name: name, Qty: stock, AvgCost: cost, Trackable: true}
	return id
}

func TestCheckoutRecordsOrderAndMovements(t *testing.T) {
	f := newFixture(0)
	taco := f.seedProduct("taco", 25.00, 8.00, 20)
	method := uuid.New()
	ctx := context.Background()

	order, err := f.svc.Checkout(ctx, CheckoutInput{
		Lines:    []CartLine{{ProductID: taco, Quantity: 2}},
		Payments: []PaymentInput{{MethodID: method, Amount: 50.00}},
		Actor:    "cashier",
	})
	require.NoError(t, err)
	require.Equal(t, OrderCompleted, order.Status)
	require.InDelta(t, 50.00, order.Total, 1e-9)
	require.InDelta(t, 0.0, order.Change, 1e-9)
	require.Equal(t, f.sessions.id, order.CashSessionID)

	require.InDelta(t, 18.0, f.repo.stocks[taco].Qty, 1e-9)
	require.Len(t, f.repo.movements, 1)
	require.Equal(t, inventory.MovementIssue, f.repo.movements[0].Kind)

	stored, err := f.svc.Order(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, stored.Lines, 1)
	require.InDelta(t, 8.00, stored.Lines[0].UnitCost, 1e-9)
	require.Len(t, stored.Payments, 1)
}

func TestCheckoutPaymentEpsilon(t *testing.T) {
	f := newFixture(0)
	taco := f.seedProduct("taco", 25.00, 8.00, 20)
	method := uuid.New()
	ctx := context.Background()

	// 49.98 misses the 0.01 tolerance on a 50.00 total
	_, err := f.svc.Checkout(ctx, CheckoutInput{
		Lines:    []CartLine{{ProductID: taco, Quantity: 2}},
		Payments: []PaymentInput{{MethodID: method, Amount: 49.98}},
	})
	require.ErrorIs(t, err, ErrPaymentMismatch)
	require.Empty(t, f.repo.orders)
	require.InDelta(t, 20.0, f.repo.stocks[taco].Qty, 1e-9)

	// 50.01 passes with the cent surfaced as change
	order, err := f.svc.Checkout(ctx, CheckoutInput{
		Lines:    []CartLine{{ProductID: taco, Quantity: 2}},
		Payments: []PaymentInput{{MethodID: method, Amount: 50.01}},
	})
	require.NoError(t, err)
	require.InDelta(t, 0.01, order.Change, 1e-9)
}

func TestCheckoutAppliesTax(t *testing.T) {
	f := newFixture(0.16)
	taco := f.seedProduct("taco", 25.00, 8.00, 20)
	method := uuid.New()

	order, err := f.svc.Checkout(context.Background(), CheckoutInput{
		Lines:    []CartLine{{ProductID: taco, Quantity: 2}},
		Payments: []PaymentInput{{MethodID: method, Amount: 58.00}},
	})
	require.NoError(t, err)
	require.InDelta(t, 50.00, order.Subtotal, 1e-9)
	require.InDelta(t, 8.00, order.Tax, 1e-9)
	require.InDelta(t, 58.00, order.Total, 1e-9)
}

func TestCheckoutRequiresOpenSession(t *testing.T) {
	f := newFixture(0)
	taco := f.seedProduct("taco", 25.00, 8.00, 20)
	f.sessions.id = uuid.Nil

	_, err := f.svc.Checkout(context.Background(), CheckoutInput{
		Lines:    []CartLine{{ProductID: taco, Quantity: 1}},
		Payments: []PaymentInput{{MethodID: uuid.New(), Amount: 25.00}},
	})
	require.ErrorIs(t, err, ErrNoOpenSession)
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

func TestCheckoutModifierConsumesTrackedItem(t *testing.T) {
	f := newFixture(0)
	taco := f.seedProduct("taco", 25.00, 8.00, 20)
	cheese := f.seedProduct("cheese", 0, 2.00, 10)
	extraCheese := uuid.New()
	f.catalog.modifiers[extraCheese] = catalog.Modifier{
		ID: extraCheese, Name: "extra cheese", Price: 5.00, Cost: 1.00,
		IsActive: true, InventoryProductID: &cheese, QuantityConsumed: 0.25,
	}
	method := uuid.New()

	order, err := f.svc.Checkout(context.Background(), CheckoutInput{
		Lines:    []CartLine{{ProductID: taco, Quantity: 2, ModifierIDs: []uuid.UUID{extraCheese}}},
		Payments: []PaymentInput{{MethodID: method, Amount: 60.00}},
	})
	require.NoError(t, err)
	// 25+5 per unit, cost 8+1 snapshotted on the line
	require.InDelta(t, 60.00, order.Total, 1e-9)
	require.InDelta(t, 9.00, order.Lines[0].UnitCost, 1e-9)
	require.InDelta(t, 9.5, f.repo.stocks[cheese].Qty, 1e-9)
	require.Len(t, f.repo.movements, 2)
}

func TestCheckoutWholeOrderAbortsOnStockFailure(t *testing.T) {
	f := newFixture(0)
	taco := f.seedProduct("taco", 25.00, 8.00, 20)
	flan := f.seedProduct("flan", 30.00, 10.00, 1)
	method := uuid.New()

	_, err := f.svc.Checkout(context.Background(), CheckoutInput{
		Lines: []CartLine{
			{ProductID: taco, Quantity: 2},
			{ProductID: flan, Quantity: 3},
		},
		Payments:       []PaymentInput{{MethodID: method, Amount: 140.00}},
		IdempotencyKey: "k-1",
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	// nothing persisted, first line rolled back too
	require.Empty(t, f.repo.orders)
	require.Empty(t, f.repo.movements)
	require.InDelta(t, 20.0, f.repo.stocks[taco].Qty, 1e-9)
	// the key is released so a corrected retry can reuse it
	require.False(t, f.idem.keys["k-1"])
}

func TestCheckoutReplayedKeyConflicts(t *testing.T) {
	f := newFixture(0)
	taco := f.seedProduct("taco", 25.00, 8.00, 20)
	method := uuid.New()
	ctx := context.Background()

	input := CheckoutInput{
		Lines:          []CartLine{{ProductID: taco, Quantity: 1}},
		Payments:       []PaymentInput{{MethodID: method, Amount: 25.00}},
		IdempotencyKey: "k-2",
	}
	_, err := f.svc.Checkout(ctx, input)
	require.NoError(t, err)

	_, err = f.svc.Checkout(ctx, input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, f.repo.orders, 1)
}

func TestCancelRestocksExactlyOnce(t *testing.T) {
	f := newFixture(0)
	taco := f.seedProduct("taco", 25.00, 8.00, 20)
	cheese := f.seedProduct("cheese", 0, 2.00, 10)
	extraCheese := uuid.New()
	f.catalog.modifiers[extraCheese] = catalog.Modifier{
		ID: extraCheese, Name: "extra cheese", Price: 5.00, Cost: 1.00,
		IsActive: true, InventoryProductID: &cheese, QuantityConsumed: 0.5,
	}
	method := uuid.New()
	ctx := context.Background()

	order, err := f.svc.Checkout(ctx, CheckoutInput{
		Lines:    []CartLine{{ProductID: taco, Quantity: 2, ModifierIDs: []uuid.UUID{extraCheese}}},
		Payments: []PaymentInput{{MethodID: method, Amount: 60.00}},
	})
	require.NoError(t, err)
	require.InDelta(t, 18.0, f.repo.stocks[taco].Qty, 1e-9)
	require.InDelta(t, 9.0, f.repo.stocks[cheese].Qty, 1e-9)

	require.NoError(t, f.svc.Cancel(ctx, order.ID, "manager"))
	require.InDelta(t, 20.0, f.repo.stocks[taco].Qty, 1e-9)
	require.InDelta(t, 10.0, f.repo.stocks[cheese].Qty, 1e-9)
	// cancellation receipts enter at the running average
	require.InDelta(t, 8.00, f.repo.stocks[taco].AvgCost, 1e-9)

	err = f.svc.Cancel(ctx, order.ID, "manager")
	require.ErrorIs(t, err, shared.ErrStateConflict)
	require.InDelta(t, 20.0, f.repo.stocks[taco].Qty, 1e-9)
}
