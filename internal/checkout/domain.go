package checkout

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fogon-pos/fogon/internal/shared"
)

// OrderStatus is the order lifecycle. Cancelled is terminal and reached
// only through the compensating cancel flow.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// Order is a committed sale. Lines and payments are immutable once written;
// price and cost live on the lines as sale-time snapshots.
type Order struct {
	ID            uuid.UUID   `json:"id"`
	Status        OrderStatus `json:"status"`
	Subtotal      float64     `json:"subtotal"`
	Tax           float64     `json:"tax"`
	Total         float64     `json:"total"`
	Change        float64     `json:"change"`
	CashSessionID uuid.UUID   `json:"cash_session_id"`
	CreatedBy     string      `json:"created_by"`
	CreatedAt     time.Time   `json:"created_at"`
	Lines         []OrderLine `json:"lines,omitempty"`
	Payments      []Payment   `json:"payments,omitempty"`
}

// OrderLine snapshots what was sold at what price and cost. UnitCost is the
// product base cost plus the summed modifier costs at sale time.
type OrderLine struct {
	ID        uuid.UUID      `json:"id"`
	OrderID   uuid.UUID      `json:"order_id"`
	ProductID uuid.UUID      `json:"product_id"`
	Name      string         `json:"name"`
	Quantity  float64        `json:"quantity"`
	UnitPrice float64        `json:"unit_price"`
	UnitCost  float64        `json:"unit_cost"`
	Modifiers []LineModifier `json:"modifiers,omitempty"`
}

// LineModifier snapshots a selected modifier, including the inventory
// consumption it carried at sale time so a cancellation can reverse it even
// after the modifier is edited or deactivated.
type LineModifier struct {
	ID                 uuid.UUID  `json:"id"`
	OrderLineID        uuid.UUID  `json:"order_line_id"`
	ModifierID         uuid.UUID  `json:"modifier_id"`
	Name               string     `json:"name"`
	Price              float64    `json:"price"`
	Cost               float64    `json:"cost"`
	InventoryProductID *uuid.UUID `json:"inventory_product_id,omitempty"`
	QuantityConsumed   float64    `json:"quantity_consumed"`
}

// Payment is one tender against an order.
type Payment struct {
	ID        uuid.UUID `json:"id"`
	OrderID   uuid.UUID `json:"order_id"`
	MethodID  uuid.UUID `json:"method_id"`
	Amount    float64   `json:"amount"`
	Reference string    `json:"reference,omitempty"`
}

// CartLine is one requested line in a checkout.
type CartLine struct {
	ProductID   uuid.UUID
	Quantity    float64
	ModifierIDs []uuid.UUID
}

// PaymentInput is one tender offered by the client.
type PaymentInput struct {
	MethodID  uuid.UUID
	Amount    float64
	Reference string
}

// CheckoutInput is the full request for a sale.
type CheckoutInput struct {
	Lines          []CartLine
	Payments       []PaymentInput
	IdempotencyKey string
	Actor          string
}

// payments may undershoot the total by at most this before blocking
const paymentEpsilon = 0.01

var (
	ErrNoOpenSession   = fmt.Errorf("checkout: no open cash session: %w", shared.ErrStateConflict)
	ErrPaymentMismatch = shared.Validation("payments", "payments do not cover the order total")
)
