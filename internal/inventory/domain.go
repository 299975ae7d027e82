package inventory

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fogon-pos/fogon/internal/shared"
)

// MovementKind enumerates supported ledger movements.
type MovementKind string

const (
	// MovementReceipt represents inbound stock: purchase receipts and
	// production outputs. Receipts are the only movements that re-weight
	// the average unit cost.
	MovementReceipt MovementKind = "receipt"
	// MovementIssue represents outbound stock: sales and production
	// ingredient consumption. Issues never change the average cost.
	MovementIssue MovementKind = "issue"
	// MovementAdjustment covers manual corrections: waste, internal
	// consumption, admin errors, audit corrections.
	MovementAdjustment MovementKind = "adjustment"
)

// ReasonClass groups manual adjustments for reporting. The free-text reason
// is still mandatory on every movement.
type ReasonClass string

const (
	ReasonPurchaseReceipt ReasonClass = "purchase_receipt"
	ReasonWaste           ReasonClass = "waste"
	ReasonInternalUse     ReasonClass = "internal_use"
	ReasonAdminError      ReasonClass = "admin_error"
	ReasonAuditFix        ReasonClass = "audit_fix"
)

// Movement is an immutable ledger entry. Quantity carries the sign of the
// delta. Corrections are recorded as new compensating movements, never by
// editing an existing row.
type Movement struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	Kind      MovementKind
	Quantity  float64
	UnitCost  float64
	Reason    string
	Actor     string
	CreatedAt time.Time
}

// Stock is the derived balance for a product. It is mutated only through
// Ledger.Record; callers never write quantity or cost directly.
type Stock struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	Qty       float64   `json:"qty"`
	AvgCost   float64   `json:"avg_cost"`
	MinQty    float64   `json:"min_qty"`
	// Trackable is false for composed items that are never directly
	// stocked; those are exempt from the non-negativity check.
	Trackable bool `json:"trackable"`
}

// MovementInput describes a requested ledger entry.
type MovementInput struct {
	ProductID uuid.UUID
	Kind      MovementKind
	Quantity  float64
	// UnitCost is the incoming unit cost for receipts; ignored for issues
	// and adjustments.
	UnitCost float64
	Reason   string
	Actor    string
}

// AdjustmentInput describes a manual stock adjustment request.
type AdjustmentInput struct {
	ProductID uuid.UUID
	Quantity  float64
	UnitCost  float64
	Class     ReasonClass
	Reason    string
	Actor     string
}

// MovementFilter filters the movement history.
type MovementFilter struct {
	ProductID uuid.UUID
	From      time.Time
	To        time.Time
	Limit     int
}

// ErrInsufficientStock is returned when a movement would drive a trackable
// item's quantity negative.
var ErrInsufficientStock = fmt.Errorf("inventory: %w", shared.ErrInsufficientStock)
