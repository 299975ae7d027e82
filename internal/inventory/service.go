package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/fogon-pos/fogon/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxLedger) error) error
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	ListStock(ctx context.Context) ([]Stock, error)
	LowStock(ctx context.Context) ([]Stock, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CacheInvalidator drops cached catalog listings after a stock write.
type CacheInvalidator interface {
	Invalidate(ctx context.Context)
}

// Service coordinates manual inventory operations.
type Service struct {
	repo       RepositoryPort
	audit      AuditPort
	logger     *slog.Logger
	invalidate CacheInvalidator
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

// OnStockChange registers a cache invalidator notified after successful
// adjustments.
func (s *Service) OnStockChange(inv CacheInvalidator) {
	s.invalidate = inv
}

// Adjust records a manual stock adjustment. The reason class decides the
// movement direction the same way the register UI did: purchase receipts
// come in, waste and internal use go out, administrative corrections keep
// the operator's sign.
func (s *Service) Adjust(ctx context.Context, input AdjustmentInput) (Movement, error) {
	if input.Quantity == 0 {
		return Movement{}, shared.Validation("quantity", "quantity must be non-zero")
	}

	movementInput := MovementInput{
		ProductID: input.ProductID,
		Reason:    fmt.Sprintf("%s: %s", input.Class, input.Reason),
		Actor:     input.Actor,
	}
	switch input.Class {
	case ReasonPurchaseReceipt:
		movementInput.Kind = MovementReceipt
		movementInput.Quantity = math.Abs(input.Quantity)
		movementInput.UnitCost = input.UnitCost
	case ReasonWaste, ReasonInternalUse:
		movementInput.Kind = MovementIssue
		movementInput.Quantity = -math.Abs(input.Quantity)
	case ReasonAdminError, ReasonAuditFix:
		movementInput.Kind = MovementAdjustment
		movementInput.Quantity = input.Quantity
	default:
		return Movement{}, shared.Validation("class", "unknown adjustment class")
	}

	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxLedger) error {
		var err error
		movement, err = Record(ctx, tx, movementInput)
		return err
	})
	if err != nil {
		return Movement{}, err
	}

	if s.invalidate != nil {
		s.invalidate.Invalidate(ctx)
	}
	s.recordAudit(ctx, movement, input)
	return movement, nil
}

// Movements lists the movement history.
func (s *Service) Movements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	return s.repo.ListMovements(ctx, filter)
}

// Stock lists current balances.
func (s *Service) Stock(ctx context.Context) ([]Stock, error) {
	return s.repo.ListStock(ctx)
}

// LowStock lists items at or below their reorder threshold.
func (s *Service) LowStock(ctx context.Context) ([]Stock, error) {
	return s.repo.LowStock(ctx)
}

func (s *Service) recordAudit(ctx context.Context, movement Movement, input AdjustmentInput) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Entity:   "inventory_movement",
		EntityID: movement.ID.String(),
		Action:   "manual_adjustment",
		Actor:    input.Actor,
		NewValue: map[string]any{
			"product_id": movement.ProductID.String(),
			"kind":       string(movement.Kind),
			"quantity":   movement.Quantity,
			"class":      string(input.Class),
			"reason":     input.Reason,
		},
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit write failed", slog.Any("error", err))
	}
}
