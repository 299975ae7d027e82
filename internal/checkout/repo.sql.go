package checkout

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fogon-pos/fogon/internal/inventory"
	"github.com/fogon-pos/fogon/internal/platform/db"
	"github.com/fogon-pos/fogon/internal/shared"
)

// Repository persists orders on Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxLedger: inventory.NewTxLedger(tx), tx: tx})
	})
}

// GetOrder fetches an order with its lines, modifier snapshots and payments.
func (r *Repository) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, status, subtotal, tax, total, change, cash_session_id,
		       COALESCE(created_by, ''), created_at
		FROM orders WHERE id = $1`, id)
	var order Order
	err := row.Scan(&order.ID, &order.Status, &order.Subtotal, &order.Tax, &order.Total,
		&order.Change, &order.CashSessionID, &order.CreatedBy, &order.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, shared.ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	if order.Lines, err = getLines(ctx, r.pool, id); err != nil {
		return Order{}, err
	}
	if order.Payments, err = r.getPayments(ctx, id); err != nil {
		return Order{}, err
	}
	return order, nil
}

// ListOrders returns recent orders, optionally scoped to a cash session.
// Lines and payments are not expanded.
func (r *Repository) ListOrders(ctx context.Context, sessionID uuid.UUID, limit int) ([]Order, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, status, subtotal, tax, total, change, cash_session_id,
		       COALESCE(created_by, ''), created_at
		FROM orders
		WHERE ($1::uuid IS NULL OR cash_session_id = $1)
		ORDER BY created_at DESC
		LIMIT $2`, nullUUID(sessionID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var order Order
		if err := rows.Scan(&order.ID, &order.Status, &order.Subtotal, &order.Tax, &order.Total,
			&order.Change, &order.CashSessionID, &order.CreatedBy, &order.CreatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (r *Repository) getPayments(ctx context.Context, orderID uuid.UUID) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, payment_method_id, amount, COALESCE(reference, '')
		FROM order_payments WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.OrderID, &p.MethodID, &p.Amount, &p.Reference); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

type txRepository struct {
	inventory.TxLedger
	tx pgx.Tx
}

func (t *txRepository) InsertOrder(ctx context.Context, order Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders (id, status, subtotal, tax, total, change, cash_session_id, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		order.ID, order.Status, order.Subtotal, order.Tax, order.Total,
		order.Change, order.CashSessionID, order.CreatedBy, order.CreatedAt)
	return err
}

func (t *txRepository) InsertLine(ctx context.Context, line OrderLine) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO order_items (id, order_id, product_id, name, quantity, unit_price, unit_cost)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		line.ID, line.OrderID, line.ProductID, line.Name, line.Quantity, line.UnitPrice, line.UnitCost)
	return err
}

func (t *txRepository) InsertLineModifier(ctx context.Context, mod LineModifier) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO order_item_modifiers (id, order_item_id, modifier_id, name, price, cost, inventory_product_id, quantity_consumed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		mod.ID, mod.OrderLineID, mod.ModifierID, mod.Name, mod.Price, mod.Cost,
		mod.InventoryProductID, mod.QuantityConsumed)
	return err
}

func (t *txRepository) InsertPayment(ctx context.Context, payment Payment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO order_payments (id, order_id, payment_method_id, amount, reference)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))`,
		payment.ID, payment.OrderID, payment.MethodID, payment.Amount, payment.Reference)
	return err
}

func (t *txRepository) MarkCancelled(ctx context.Context, orderID uuid.UUID) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status <> $2`, orderID, OrderCancelled)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		// distinguish missing from already cancelled
		var exists bool
		if err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
			return false, err
		}
		if !exists {
			return false, shared.ErrNotFound
		}
		return false, nil
	}
	return true, nil
}

func (t *txRepository) GetLines(ctx context.Context, orderID uuid.UUID) ([]OrderLine, error) {
	return getLines(ctx, t.tx, orderID)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func getLines(ctx context.Context, q querier, orderID uuid.UUID) ([]OrderLine, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, name, quantity, unit_price, unit_cost
		FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []OrderLine
	byID := map[uuid.UUID]int{}
	for rows.Next() {
		var line OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ProductID, &line.Name,
			&line.Quantity, &line.UnitPrice, &line.UnitCost); err != nil {
			return nil, err
		}
		byID[line.ID] = len(lines)
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	modRows, err := q.Query(ctx, `
		SELECT m.id, m.order_item_id, m.modifier_id, m.name, m.price, m.cost,
		       m.inventory_product_id, m.quantity_consumed
		FROM order_item_modifiers m
		JOIN order_items i ON i.id = m.order_item_id
		WHERE i.order_id = $1`, orderID)
	if err != nil {
		return nil, err
	}
	defer modRows.Close()

	for modRows.Next() {
		var mod LineModifier
		if err := modRows.Scan(&mod.ID, &mod.OrderLineID, &mod.ModifierID, &mod.Name,
			&mod.Price, &mod.Cost, &mod.InventoryProductID, &mod.QuantityConsumed); err != nil {
			return nil, err
		}
		if idx, ok := byID[mod.OrderLineID]; ok {
			lines[idx].Modifiers = append(lines[idx].Modifiers, mod)
		}
	}
	return lines, modRows.Err()
}

func nullUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
