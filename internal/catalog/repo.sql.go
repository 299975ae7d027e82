package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fogon-pos/fogon/internal/shared"
)

// Repository reads catalog data from PostgreSQL. The core treats the
// catalog as an external, read-only collaborator: nothing here mutates
// products, modifiers or payment methods.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id, name, type, price, base_cost, stock, min_stock, is_producible, is_active`

// GetProduct loads a single product.
func (r *Repository) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	return scanProduct(row)
}

// ListProducts lists active products ordered by name.
func (r *Repository) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// GetModifiers loads modifiers by ID, active or not: checkout must be able
// to snapshot a modifier that was deactivated between cart build and commit.
func (r *Repository) GetModifiers(ctx context.Context, ids []uuid.UUID) ([]Modifier, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name, price, cost, is_active, inventory_product_id, COALESCE(quantity_consumed, 0)
FROM modifiers WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	modifiers := []Modifier{}
	for rows.Next() {
		var m Modifier
		if err := rows.Scan(&m.ID, &m.Name, &m.Price, &m.Cost, &m.IsActive, &m.InventoryProductID, &m.QuantityConsumed); err != nil {
			return nil, err
		}
		modifiers = append(modifiers, m)
	}
	return modifiers, rows.Err()
}

// ListModifiers lists active modifiers.
func (r *Repository) ListModifiers(ctx context.Context) ([]Modifier, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, price, cost, is_active, inventory_product_id, COALESCE(quantity_consumed, 0)
FROM modifiers WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	modifiers := []Modifier{}
	for rows.Next() {
		var m Modifier
		if err := rows.Scan(&m.ID, &m.Name, &m.Price, &m.Cost, &m.IsActive, &m.InventoryProductID, &m.QuantityConsumed); err != nil {
			return nil, err
		}
		modifiers = append(modifiers, m)
	}
	return modifiers, rows.Err()
}

// ListPaymentMethods lists active payment methods in display order.
func (r *Repository) ListPaymentMethods(ctx context.Context) ([]PaymentMethod, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, type, is_active, requires_reference, sort_order
FROM payment_methods WHERE is_active ORDER BY sort_order, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	methods := []PaymentMethod{}
	for rows.Next() {
		var m PaymentMethod
		if err := rows.Scan(&m.ID, &m.Name, &m.Type, &m.IsActive, &m.RequiresReference, &m.SortOrder); err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	return methods, rows.Err()
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Type, &p.Price, &p.BaseCost, &p.Stock, &p.MinStock, &p.IsProducible, &p.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, shared.ErrNotFound
		}
		return Product{}, err
	}
	return p, nil
}
