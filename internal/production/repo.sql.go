package production

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fogon-pos/fogon/internal/inventory"
	"github.com/fogon-pos/fogon/internal/platform/db"
	"github.com/fogon-pos/fogon/internal/shared"
)

// Repository persists recipes and production orders on Postgres.
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

// GetOrder fetches one production order.
func (r *Repository) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT po.id, po.product_id, COALESCE(p.name, ''), po.quantity, po.status,
		       COALESCE(po.notes, ''), COALESCE(po.produced_unit_cost, 0),
		       COALESCE(po.confirmed_by, ''), po.created_at
		FROM production_orders po
		LEFT JOIN products p ON p.id = po.product_id
		WHERE po.id = $1`, id)
	return scanOrder(row)
}

// ListOrders returns recent orders, newest first.
func (r *Repository) ListOrders(ctx context.Context, limit int) ([]Order, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT po.id, po.product_id, COALESCE(p.name, ''), po.quantity, po.status,
		       COALESCE(po.notes, ''), COALESCE(po.produced_unit_cost, 0),
		       COALESCE(po.confirmed_by, ''), po.created_at
		FROM production_orders po
		LEFT JOIN products p ON p.id = po.product_id
		ORDER BY po.created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// CreateOrder inserts a draft order.
func (r *Repository) CreateOrder(ctx context.Context, order Order) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO production_orders (id, product_id, quantity, status, notes, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NOW())`,
		order.ID, order.ProductID, order.Quantity, order.Status, order.Notes)
	return err
}

// GetRecipe loads the recipe lines of a product.
func (r *Repository) GetRecipe(ctx context.Context, productID uuid.UUID) ([]RecipeLine, error) {
	return getRecipe(ctx, r.pool, productID)
}

// ReplaceRecipe swaps the full recipe of a product in one transaction.
func (r *Repository) ReplaceRecipe(ctx context.Context, productID uuid.UUID, lines []RecipeLine) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM product_recipes WHERE product_id = $1`, productID); err != nil {
			return err
		}
		for _, line := range lines {
			_, err := tx.Exec(ctx, `
				INSERT INTO product_recipes (product_id, ingredient_id, qty_per_unit)
				VALUES ($1, $2, $3)`,
				productID, line.IngredientID, line.QtyPerUnit)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// RecipeGraph loads the full product -> ingredient adjacency.
func (r *Repository) RecipeGraph(ctx context.Context) (map[uuid.UUID][]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT product_id, ingredient_id FROM product_recipes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	graph := map[uuid.UUID][]uuid.UUID{}
	for rows.Next() {
		var product, ingredient uuid.UUID
		if err := rows.Scan(&product, &ingredient); err != nil {
			return nil, err
		}
		graph[product] = append(graph[product], ingredient)
	}
	return graph, rows.Err()
}

// StockFor fetches current stock for a set of products.
func (r *Repository) StockFor(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]inventory.Stock, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, stock, base_cost, min_stock, type <> 'compound'
		FROM products
		WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stocks := map[uuid.UUID]inventory.Stock{}
	for rows.Next() {
		var s inventory.Stock
		if err := rows.Scan(&s.ProductID, &s.Name, &s.Qty, &s.AvgCost, &s.MinQty, &s.Trackable); err != nil {
			return nil, err
		}
		stocks[s.ProductID] = s
	}
	return stocks, rows.Err()
}

type txRepository struct {
	inventory.TxLedger
	tx pgx.Tx
}

func (t *txRepository) GetRecipe(ctx context.Context, productID uuid.UUID) ([]RecipeLine, error) {
	return getRecipe(ctx, t.tx, productID)
}

func (t *txRepository) ClaimOrder(ctx context.Context, orderID uuid.UUID, unitCost float64, actor string) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE production_orders
		SET status = $2, produced_unit_cost = $3, confirmed_by = $4, confirmed_at = NOW()
		WHERE id = $1 AND status = $5`,
		orderID, OrderConfirmed, unitCost, actor, OrderDraft)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func getRecipe(ctx context.Context, q querier, productID uuid.UUID) ([]RecipeLine, error) {
	rows, err := q.Query(ctx, `
		SELECT product_id, ingredient_id, qty_per_unit
		FROM product_recipes
		WHERE product_id = $1
		ORDER BY ingredient_id`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []RecipeLine
	for rows.Next() {
		var line RecipeLine
		if err := rows.Scan(&line.ProductID, &line.IngredientID, &line.QtyPerUnit); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var order Order
	err := row.Scan(&order.ID, &order.ProductID, &order.ProductName, &order.Quantity,
		&order.Status, &order.Notes, &order.ProducedUnitCost, &order.ConfirmedBy, &order.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return Order{}, shared.ErrNotFound
	}
	return order, err
}
