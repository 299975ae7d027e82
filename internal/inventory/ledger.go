package inventory

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fogon-pos/fogon/internal/shared"
)

const qtyEpsilon = 1e-4

// TxLedger is the slice of a storage transaction the ledger needs. The
// checkout and production modules implement it over their own transactions
// so their movements commit atomically with their own records.
type TxLedger interface {
	// GetStockForUpdate loads the product balance under a row lock held
	// for the rest of the transaction.
	GetStockForUpdate(ctx context.Context, productID uuid.UUID) (Stock, error)
	InsertMovement(ctx context.Context, movement Movement) error
	UpdateStock(ctx context.Context, productID uuid.UUID, qty, avgCost float64) error
}

// Record validates and applies a single ledger entry inside the caller's
// transaction: it locks the balance, enforces the non-negativity rule,
// updates the weighted-average cost for receipts and appends the immutable
// movement row. The movement is durable only if the whole transaction
// commits, so a costing or balance failure leaves nothing behind.
func Record(ctx context.Context, tx TxLedger, input MovementInput) (Movement, error) {
	if strings.TrimSpace(input.Reason) == "" {
		return Movement{}, shared.Validation("reason", "reason is required")
	}
	if math.Abs(input.Quantity) < qtyEpsilon {
		return Movement{}, shared.Validation("quantity", "quantity must be non-zero")
	}
	if input.Kind == MovementReceipt && input.Quantity < 0 {
		return Movement{}, shared.Validation("quantity", "receipt quantity must be positive")
	}
	if input.Kind == MovementIssue && input.Quantity > 0 {
		return Movement{}, shared.Validation("quantity", "issue quantity must be negative")
	}
	if input.UnitCost < 0 {
		return Movement{}, shared.Validation("unit_cost", "unit cost must be >= 0")
	}

	stock, err := tx.GetStockForUpdate(ctx, input.ProductID)
	if err != nil {
		return Movement{}, err
	}

	newQty := stock.Qty + input.Quantity
	if math.Abs(newQty) < qtyEpsilon {
		newQty = 0
	}
	if newQty < 0 && stock.Trackable {
		return Movement{}, ErrInsufficientStock
	}

	newAvg := stock.AvgCost
	unitCost := stock.AvgCost
	if input.Kind == MovementReceipt {
		newAvg = WeightedAverage(stock.Qty, stock.AvgCost, input.Quantity, input.UnitCost)
		unitCost = input.UnitCost
	}

	movement := Movement{
		ID:        uuid.New(),
		ProductID: input.ProductID,
		Kind:      input.Kind,
		Quantity:  input.Quantity,
		UnitCost:  unitCost,
		Reason:    input.Reason,
		Actor:     input.Actor,
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.InsertMovement(ctx, movement); err != nil {
		return Movement{}, err
	}
	if err := tx.UpdateStock(ctx, input.ProductID, newQty, newAvg); err != nil {
		return Movement{}, err
	}
	return movement, nil
}
