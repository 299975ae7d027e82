package production

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/fogon-pos/fogon/internal/inventory"
	"github.com/fogon-pos/fogon/internal/shared"
)

// TxRepository exposes the transactional operations a confirmation needs.
// The embedded ledger guarantees the ingredient issues, the product receipt
// and the status flip commit or roll back as one unit.
type TxRepository interface {
	inventory.TxLedger
	GetRecipe(ctx context.Context, productID uuid.UUID) ([]RecipeLine, error)
	// ClaimOrder atomically moves a draft order to confirmed, storing the
	// resulting unit cost and actor. Returns false when the order was not
	// in draft, closing the double-confirm race.
	ClaimOrder(ctx context.Context, orderID uuid.UUID, unitCost float64, actor string) (bool, error)
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id uuid.UUID) (Order, error)
	ListOrders(ctx context.Context, limit int) ([]Order, error)
	CreateOrder(ctx context.Context, order Order) error
	GetRecipe(ctx context.Context, productID uuid.UUID) ([]RecipeLine, error)
	ReplaceRecipe(ctx context.Context, productID uuid.UUID, lines []RecipeLine) error
	// RecipeGraph returns product -> ingredient adjacency for every
	// configured recipe, used by the cycle check.
	RecipeGraph(ctx context.Context) (map[uuid.UUID][]uuid.UUID, error)
	StockFor(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]inventory.Stock, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service plans and confirms production batches.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

// floor1 rounds down to one decimal place, matching how partial batches are
// offered to operators.
func floor1(v float64) float64 {
	return math.Floor(v*10) / 10
}

// SaveRecipe replaces the recipe of a product after validating it: no
// self-reference, no transitive cycle, positive quantities.
func (s *Service) SaveRecipe(ctx context.Context, productID uuid.UUID, lines []RecipeLine) error {
	for _, line := range lines {
		if line.QtyPerUnit <= 0 {
			return shared.Validation("qty_per_unit", "ingredient quantity must be positive")
		}
		if line.IngredientID == productID {
			return shared.Validation("ingredient_id", "a product cannot be its own ingredient")
		}
	}
	graph, err := s.repo.RecipeGraph(ctx)
	if err != nil {
		return err
	}
	next := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		next = append(next, line.IngredientID)
	}
	graph[productID] = next
	if hasCycle(graph, productID) {
		return shared.Validation("recipe", "recipe would introduce an ingredient cycle")
	}
	return s.repo.ReplaceRecipe(ctx, productID, lines)
}

// Recipe returns the configured recipe for a product.
func (s *Service) Recipe(ctx context.Context, productID uuid.UUID) ([]RecipeLine, error) {
	return s.repo.GetRecipe(ctx, productID)
}

// PlanProduction expands a requested batch into per-ingredient requirements
// with availability, the maximum feasible batch size and the batch cost at
// current ingredient costs.
func (s *Service) PlanProduction(ctx context.Context, productID uuid.UUID, quantity float64) (Plan, error) {
	if quantity <= 0 {
		return Plan{}, shared.Validation("quantity", "quantity must be positive")
	}
	recipe, err := s.repo.GetRecipe(ctx, productID)
	if err != nil {
		return Plan{}, err
	}
	if len(recipe) == 0 {
		return Plan{}, shared.Validation("recipe", "product has no recipe configured; producing requires ingredients")
	}

	ids := make([]uuid.UUID, 0, len(recipe))
	for _, line := range recipe {
		ids = append(ids, line.IngredientID)
	}
	stocks, err := s.repo.StockFor(ctx, ids)
	if err != nil {
		return Plan{}, err
	}

	plan := Plan{ProductID: productID, Quantity: quantity, Feasible: true, MaxFeasible: math.Inf(1)}
	for _, line := range recipe {
		stock := stocks[line.IngredientID]
		required := line.QtyPerUnit * quantity
		sufficient := stock.Qty >= required
		if !sufficient {
			plan.Feasible = false
		}
		if max := floor1(stock.Qty / line.QtyPerUnit); max < plan.MaxFeasible {
			plan.MaxFeasible = max
		}
		plan.BatchCost += stock.AvgCost * required
		plan.Lines = append(plan.Lines, PlanLine{
			IngredientID: line.IngredientID,
			Name:         stock.Name,
			QtyPerUnit:   line.QtyPerUnit,
			Required:     required,
			Available:    stock.Qty,
			UnitCost:     stock.AvgCost,
			Sufficient:   sufficient,
		})
	}
	if math.IsInf(plan.MaxFeasible, 1) {
		plan.MaxFeasible = 0
	}
	return plan, nil
}

// MaxFeasible returns the largest batch the current ingredient stock
// supports, floored to one decimal.
func (s *Service) MaxFeasible(ctx context.Context, productID uuid.UUID) (float64, error) {
	plan, err := s.PlanProduction(ctx, productID, 1)
	if err != nil {
		return 0, err
	}
	return plan.MaxFeasible, nil
}

// CreateOrder registers a draft production order.
func (s *Service) CreateOrder(ctx context.Context, productID uuid.UUID, quantity float64, notes, actor string) (Order, error) {
	if quantity <= 0 {
		return Order{}, shared.Validation("quantity", "quantity must be positive")
	}
	recipe, err := s.repo.GetRecipe(ctx, productID)
	if err != nil {
		return Order{}, err
	}
	if len(recipe) == 0 {
		return Order{}, shared.Validation("recipe", "product has no recipe configured; producing requires ingredients")
	}
	order := Order{
		ID:        uuid.New(),
		ProductID: productID,
		Quantity:  quantity,
		Status:    OrderDraft,
		Notes:     notes,
	}
	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return Order{}, err
	}
	return order, nil
}

// Orders lists recent production orders.
func (s *Service) Orders(ctx context.Context, limit int) ([]Order, error) {
	return s.repo.ListOrders(ctx, limit)
}

// Confirm executes a draft order: it re-checks feasibility under row locks,
// issues every ingredient, receives the produced quantity at batch cost and
// flips the order to confirmed. Any failure leaves stock and order
// untouched.
func (s *Service) Confirm(ctx context.Context, orderID uuid.UUID, actor string) (Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.Status != OrderDraft {
		return Order{}, ErrAlreadyConfirmed
	}

	var unitCost float64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		recipe, err := tx.GetRecipe(ctx, order.ProductID)
		if err != nil {
			return err
		}
		if len(recipe) == 0 {
			return shared.Validation("recipe", "product has no recipe configured; producing requires ingredients")
		}

		// Lock ingredients first and verify feasibility before touching
		// anything: stock may have moved since planning.
		type requirement struct {
			line     RecipeLine
			required float64
			cost     float64
		}
		requirements := make([]requirement, 0, len(recipe))
		var batchCost float64
		for _, line := range recipe {
			stock, err := tx.GetStockForUpdate(ctx, line.IngredientID)
			if err != nil {
				return err
			}
			required := line.QtyPerUnit * order.Quantity
			if stock.Trackable && stock.Qty < required {
				return fmt.Errorf("%w: %s needs %.2f, has %.2f", ErrInsufficientStock, stock.Name, required, stock.Qty)
			}
			batchCost += stock.AvgCost * required
			requirements = append(requirements, requirement{line: line, required: required, cost: stock.AvgCost})
		}

		for _, req := range requirements {
			_, err := inventory.Record(ctx, tx, inventory.MovementInput{
				ProductID: req.line.IngredientID,
				Kind:      inventory.MovementIssue,
				Quantity:  -req.required,
				Reason:    fmt.Sprintf("production %s: ingredient", order.ID),
				Actor:     actor,
			})
			if err != nil {
				return err
			}
		}

		unitCost = batchCost / order.Quantity
		if _, err := inventory.Record(ctx, tx, inventory.MovementInput{
			ProductID: order.ProductID,
			Kind:      inventory.MovementReceipt,
			Quantity:  order.Quantity,
			UnitCost:  unitCost,
			Reason:    fmt.Sprintf("production %s: output", order.ID),
			Actor:     actor,
		}); err != nil {
			return err
		}

		claimed, err := tx.ClaimOrder(ctx, order.ID, unitCost, actor)
		if err != nil {
			return err
		}
		if !claimed {
			return ErrAlreadyConfirmed
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	order.Status = OrderConfirmed
	order.ProducedUnitCost = unitCost
	order.ConfirmedBy = actor
	s.recordAudit(ctx, order)
	return order, nil
}

func (s *Service) recordAudit(ctx context.Context, order Order) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Entity:   "production_order",
		EntityID: order.ID.String(),
		Action:   "confirm",
		Actor:    order.ConfirmedBy,
		NewValue: map[string]any{
			"product_id": order.ProductID.String(),
			"quantity":   order.Quantity,
			"unit_cost":  order.ProducedUnitCost,
			"total_cost": order.ProducedUnitCost * order.Quantity,
		},
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit write failed", slog.Any("error", err))
	}
}

// hasCycle reports whether start can reach itself through the adjacency.
func hasCycle(graph map[uuid.UUID][]uuid.UUID, start uuid.UUID) bool {
	seen := map[uuid.UUID]bool{}
	var visit func(id uuid.UUID) bool
	visit = func(id uuid.UUID) bool {
		for _, next := range graph[id] {
			if next == start {
				return true
			}
			if !seen[next] {
				seen[next] = true
				if visit(next) {
					return true
				}
			}
		}
		return false
	}
	return visit(start)
}
