package production

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fogon-pos/fogon/internal/shared"
)

// RecipeLine maps one ingredient requirement of a producible item.
type RecipeLine struct {
	ProductID    uuid.UUID `json:"product_id"`
	IngredientID uuid.UUID `json:"ingredient_id"`
	QtyPerUnit   float64   `json:"qty_per_unit"`
}

// OrderStatus is the production order lifecycle. Confirmation is terminal:
// a confirmed order is never edited or re-confirmed.
type OrderStatus string

const (
	OrderDraft     OrderStatus = "draft"
	OrderConfirmed OrderStatus = "confirmed"
)

// Order is a production batch request.
type Order struct {
	ID               uuid.UUID   `json:"id"`
	ProductID        uuid.UUID   `json:"product_id"`
	ProductName      string      `json:"product_name,omitempty"`
	Quantity         float64     `json:"quantity"`
	Status           OrderStatus `json:"status"`
	Notes            string      `json:"notes,omitempty"`
	ProducedUnitCost float64     `json:"produced_unit_cost,omitempty"`
	ConfirmedBy      string      `json:"confirmed_by,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
}

// PlanLine is the computed requirement for one ingredient of a batch.
type PlanLine struct {
	IngredientID uuid.UUID `json:"ingredient_id"`
	Name         string    `json:"name"`
	QtyPerUnit   float64   `json:"qty_per_unit"`
	Required     float64   `json:"required"`
	Available    float64   `json:"available"`
	UnitCost     float64   `json:"unit_cost"`
	Sufficient   bool      `json:"sufficient"`
}

// Plan is the full feasibility picture for a requested batch.
type Plan struct {
	ProductID   uuid.UUID  `json:"product_id"`
	Quantity    float64    `json:"quantity"`
	Lines       []PlanLine `json:"lines"`
	Feasible    bool       `json:"feasible"`
	MaxFeasible float64    `json:"max_feasible"`
	BatchCost   float64    `json:"batch_cost"`
}

var (
	// ErrAlreadyConfirmed guards the terminal state.
	ErrAlreadyConfirmed = fmt.Errorf("production: order already confirmed: %w", shared.ErrStateConflict)
	// ErrInsufficientStock is surfaced when a confirmation would overdraw
	// an ingredient.
	ErrInsufficientStock = fmt.Errorf("production: %w", shared.ErrInsufficientStock)
)
