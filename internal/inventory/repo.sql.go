package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fogon-pos/fogon/internal/shared"
)

// Repository persists inventory data in PostgreSQL. Stock lives on the
// products table; movements are appended to inventory_movements.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxLedger) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, NewTxLedger(tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// ListMovements lists movement history, newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, kind, quantity, unit_cost, reason, actor, created_at
FROM inventory_movements
WHERE ($1::uuid IS NULL OR product_id = $1)
  AND created_at BETWEEN COALESCE($2, '-infinity') AND COALESCE($3, 'infinity')
ORDER BY created_at DESC, id DESC
LIMIT $4`, nullUUID(filter.ProductID), nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Kind, &m.Quantity, &m.UnitCost, &m.Reason, &m.Actor, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// ListStock lists balances for all active products.
func (r *Repository) ListStock(ctx context.Context) ([]Stock, error) {
	return r.queryStock(ctx, `SELECT id, name, stock, base_cost, min_stock, type <> 'compound' AS trackable
FROM products WHERE is_active ORDER BY name`)
}

// LowStock lists trackable items at or below their reorder threshold.
func (r *Repository) LowStock(ctx context.Context) ([]Stock, error) {
	return r.queryStock(ctx, `SELECT id, name, stock, base_cost, min_stock, type <> 'compound' AS trackable
FROM products WHERE is_active AND type <> 'compound' AND stock <= min_stock ORDER BY name`)
}

func (r *Repository) queryStock(ctx context.Context, query string) ([]Stock, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	stocks := []Stock{}
	for rows.Next() {
		var s Stock
		if err := rows.Scan(&s.ProductID, &s.Name, &s.Qty, &s.AvgCost, &s.MinQty, &s.Trackable); err != nil {
			return nil, err
		}
		stocks = append(stocks, s)
	}
	return stocks, rows.Err()
}

// txLedger implements TxLedger over a pgx transaction.
type txLedger struct {
	tx pgx.Tx
}

// NewTxLedger wraps an open transaction so other modules can append ledger
// entries atomically with their own writes.
func NewTxLedger(tx pgx.Tx) TxLedger {
	return &txLedger{tx: tx}
}

func (l *txLedger) GetStockForUpdate(ctx context.Context, productID uuid.UUID) (Stock, error) {
	var s Stock
	err := l.tx.QueryRow(ctx, `SELECT id, name, stock, base_cost, min_stock, type <> 'compound' AS trackable
FROM products WHERE id = $1 FOR UPDATE`, productID).
		Scan(&s.ProductID, &s.Name, &s.Qty, &s.AvgCost, &s.MinQty, &s.Trackable)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Stock{}, shared.ErrNotFound
		}
		return Stock{}, err
	}
	return s, nil
}

func (l *txLedger) InsertMovement(ctx context.Context, movement Movement) error {
	_, err := l.tx.Exec(ctx, `INSERT INTO inventory_movements (id, product_id, kind, quantity, unit_cost, reason, actor, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		movement.ID, movement.ProductID, string(movement.Kind), movement.Quantity, movement.UnitCost, movement.Reason, movement.Actor, movement.CreatedAt)
	return err
}

func (l *txLedger) UpdateStock(ctx context.Context, productID uuid.UUID, qty, avgCost float64) error {
	_, err := l.tx.Exec(ctx, `UPDATE products SET stock = $2, base_cost = $3, updated_at = NOW() WHERE id = $1`, productID, qty, avgCost)
	return err
}

func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
