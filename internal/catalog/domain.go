package catalog

import (
	"github.com/google/uuid"
)

// ProductType mirrors how the menu is modelled: simple items are sold and
// stocked as-is, compound items are assembled at sale time from tracked
// ingredients, production items are manufactured in batches ahead of sale.
type ProductType string

const (
	ProductSimple     ProductType = "simple"
	ProductCompound   ProductType = "compound"
	ProductProduction ProductType = "production"
)

// Product is a catalog entry. Price and BaseCost are the current list
// values; checkout snapshots them onto order lines so later edits never
// rewrite history.
type Product struct {
	ID           uuid.UUID   `json:"id"`
	Name         string      `json:"name"`
	Type         ProductType `json:"type"`
	Price        float64     `json:"price"`
	BaseCost     float64     `json:"base_cost"`
	Stock        float64     `json:"stock"`
	MinStock     float64     `json:"min_stock"`
	IsProducible bool        `json:"is_producible"`
	IsActive     bool        `json:"is_active"`
}

// Trackable reports whether the product participates in the non-negative
// stock check. Compound items are composed at sale time and never directly
// stocked.
func (p Product) Trackable() bool {
	return p.Type != ProductCompound
}

// Modifier is a sale-time option with price and cost impact. When
// InventoryProductID is set the modifier consumes that tracked item at
// QuantityConsumed units per product sold.
type Modifier struct {
	ID                 uuid.UUID  `json:"id"`
	Name               string     `json:"name"`
	Price              float64    `json:"price"`
	Cost               float64    `json:"cost"`
	IsActive           bool       `json:"is_active"`
	InventoryProductID *uuid.UUID `json:"inventory_product_id,omitempty"`
	QuantityConsumed   float64    `json:"quantity_consumed"`
}

// PaymentMethodType groups methods for drawer reconciliation.
type PaymentMethodType string

const (
	MethodCash    PaymentMethodType = "cash"
	MethodDigital PaymentMethodType = "digital"
	MethodMixed   PaymentMethodType = "mixed"
)

// PaymentMethod is a configured tender type.
type PaymentMethod struct {
	ID                uuid.UUID         `json:"id"`
	Name              string            `json:"name"`
	Type              PaymentMethodType `json:"type"`
	IsActive          bool              `json:"is_active"`
	RequiresReference bool              `json:"requires_reference"`
	SortOrder         int               `json:"sort_order"`
}
