package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/fogon-pos/fogon/internal/catalog"
	"github.com/fogon-pos/fogon/internal/inventory"
	"github.com/fogon-pos/fogon/internal/shared"
)

// TxRepository is the transactional surface of a checkout or cancellation.
// The embedded ledger makes the stock issues part of the same commit as the
// order rows.
type TxRepository interface {
	inventory.TxLedger
	InsertOrder(ctx context.Context, order Order) error
	InsertLine(ctx context.Context, line OrderLine) error
	InsertLineModifier(ctx context.Context, mod LineModifier) error
	InsertPayment(ctx context.Context, payment Payment) error
	// MarkCancelled flips status to cancelled unless it already is.
	// Returns false when the order was already cancelled.
	MarkCancelled(ctx context.Context, orderID uuid.UUID) (bool, error)
	GetLines(ctx context.Context, orderID uuid.UUID) ([]OrderLine, error)
}

// RepositoryPort abstracts order storage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id uuid.UUID) (Order, error)
	ListOrders(ctx context.Context, sessionID uuid.UUID, limit int) ([]Order, error)
}

// CatalogPort is the read-only slice of the catalog checkout needs.
type CatalogPort interface {
	Product(ctx context.Context, id uuid.UUID) (catalog.Product, error)
	Modifiers(ctx context.Context, ids []uuid.UUID) ([]catalog.Modifier, error)
}

// SessionPort resolves the currently open cash session.
// shared.ErrNotFound means no session is open.
type SessionPort interface {
	OpenSessionID(ctx context.Context) (uuid.UUID, error)
}

// IdempotencyPort guards against replayed checkout requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service records sales and their reversals.
type Service struct {
	repo     RepositoryPort
	catalog  CatalogPort
	sessions SessionPort
	idem     IdempotencyPort
	audit    AuditPort
	taxRate  float64
	logger   *slog.Logger
}

// NewService builds Service. taxRate applies on the subtotal.
func NewService(repo RepositoryPort, cat CatalogPort, sessions SessionPort, idem IdempotencyPort, audit AuditPort, taxRate float64, logger *slog.Logger) *Service {
	return &Service{repo: repo, catalog: cat, sessions: sessions, idem: idem, audit: audit, taxRate: taxRate, logger: logger}
}

// Checkout records an order, its line and modifier snapshots, its payments
// and the matching stock issues as one commit. A stock failure on any line
// aborts the whole sale.
func (s *Service) Checkout(ctx context.Context, input CheckoutInput) (Order, error) {
	if len(input.Lines) == 0 {
		return Order{}, shared.Validation("lines", "cart is empty")
	}
	if input.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, input.IdempotencyKey, "checkout"); err != nil {
			return Order{}, err
		}
	}

	order, err := s.checkout(ctx, input)
	if err != nil {
		// the key must not block a corrected retry
		if input.IdempotencyKey != "" && s.idem != nil {
			if derr := s.idem.Delete(ctx, input.IdempotencyKey); derr != nil && s.logger != nil {
				s.logger.Warn("idempotency key cleanup failed", slog.Any("error", derr))
			}
		}
		return Order{}, err
	}
	s.recordAudit(ctx, order, "checkout")
	return order, nil
}

func (s *Service) checkout(ctx context.Context, input CheckoutInput) (Order, error) {
	sessionID, err := s.sessions.OpenSessionID(ctx)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Order{}, ErrNoOpenSession
		}
		return Order{}, err
	}

	order := Order{
		ID:            uuid.New(),
		Status:        OrderCompleted,
		CashSessionID: sessionID,
		CreatedBy:     input.Actor,
		CreatedAt:     time.Now().UTC(),
	}

	for _, cartLine := range input.Lines {
		if cartLine.Quantity <= 0 {
			return Order{}, shared.Validation("quantity", "line quantity must be positive")
		}
		product, err := s.catalog.Product(ctx, cartLine.ProductID)
		if err != nil {
			return Order{}, err
		}
		if !product.IsActive {
			return Order{}, shared.Validation("product_id", fmt.Sprintf("%s is not for sale", product.Name))
		}

		line := OrderLine{
			ID:        uuid.New(),
			OrderID:   order.ID,
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  cartLine.Quantity,
			UnitPrice: product.Price,
			UnitCost:  product.BaseCost,
		}
		if len(cartLine.ModifierIDs) > 0 {
			mods, err := s.catalog.Modifiers(ctx, cartLine.ModifierIDs)
			if err != nil {
				return Order{}, err
			}
			if len(mods) != len(cartLine.ModifierIDs) {
				return Order{}, shared.Validation("modifier_ids", "unknown modifier")
			}
			for _, mod := range mods {
				line.UnitPrice += mod.Price
				line.UnitCost += mod.Cost
				line.Modifiers = append(line.Modifiers, LineModifier{
					ID:                 uuid.New(),
					OrderLineID:        line.ID,
					ModifierID:         mod.ID,
					Name:               mod.Name,
					Price:              mod.Price,
					Cost:               mod.Cost,
					InventoryProductID: mod.InventoryProductID,
					QuantityConsumed:   mod.QuantityConsumed,
				})
			}
		}
		order.Subtotal += line.UnitPrice * line.Quantity
		order.Lines = append(order.Lines, line)
	}

	order.Tax = round2(order.Subtotal * s.taxRate)
	order.Subtotal = round2(order.Subtotal)
	order.Total = round2(order.Subtotal + order.Tax)

	var paid float64
	for _, p := range input.Payments {
		if p.Amount <= 0 {
			return Order{}, shared.Validation("payments", "payment amount must be positive")
		}
		paid += p.Amount
		order.Payments = append(order.Payments, Payment{
			ID:        uuid.New(),
			OrderID:   order.ID,
			MethodID:  p.MethodID,
			Amount:    p.Amount,
			Reference: p.Reference,
		})
	}
	if paid < order.Total-paymentEpsilon {
		return Order{}, ErrPaymentMismatch
	}
	if paid > order.Total {
		order.Change = round2(paid - order.Total)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		for _, line := range order.Lines {
			if err := tx.InsertLine(ctx, line); err != nil {
				return err
			}
			for _, mod := range line.Modifiers {
				if err := tx.InsertLineModifier(ctx, mod); err != nil {
					return err
				}
			}
			if err := s.issueLine(ctx, tx, order.ID, line, order.CreatedBy); err != nil {
				return err
			}
		}
		for _, payment := range order.Payments {
			if err := tx.InsertPayment(ctx, payment); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

func (s *Service) issueLine(ctx context.Context, tx TxRepository, orderID uuid.UUID, line OrderLine, actor string) error {
	_, err := inventory.Record(ctx, tx, inventory.MovementInput{
		ProductID: line.ProductID,
		Kind:      inventory.MovementIssue,
		Quantity:  -line.Quantity,
		Reason:    fmt.Sprintf("sale %s", orderID),
		Actor:     actor,
	})
	if err != nil {
		return err
	}
	for _, mod := range line.Modifiers {
		if mod.InventoryProductID == nil || mod.QuantityConsumed <= 0 {
			continue
		}
		_, err := inventory.Record(ctx, tx, inventory.MovementInput{
			ProductID: *mod.InventoryProductID,
			Kind:      inventory.MovementIssue,
			Quantity:  -mod.QuantityConsumed * line.Quantity,
			Reason:    fmt.Sprintf("sale %s: modifier %s", orderID, mod.Name),
			Actor:     actor,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Cancel reverses a completed order: it flips the status with an atomic
// guard and records compensating receipts for every line and consuming
// modifier in the same transaction. Receipts enter at the current average
// cost so cancellations do not move the average.
func (s *Service) Cancel(ctx context.Context, orderID uuid.UUID, actor string) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.MarkCancelled(ctx, orderID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("order already cancelled: %w", shared.ErrStateConflict)
		}

		lines, err := tx.GetLines(ctx, orderID)
		if err != nil {
			return err
		}
		for _, line := range lines {
			if err := s.restock(ctx, tx, orderID, line.ProductID, line.Quantity, actor); err != nil {
				return err
			}
			for _, mod := range line.Modifiers {
				if mod.InventoryProductID == nil || mod.QuantityConsumed <= 0 {
					continue
				}
				if err := s.restock(ctx, tx, orderID, *mod.InventoryProductID, mod.QuantityConsumed*line.Quantity, actor); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.recordAudit(ctx, Order{ID: orderID, CreatedBy: actor}, "cancel")
	return nil
}

func (s *Service) restock(ctx context.Context, tx TxRepository, orderID, productID uuid.UUID, qty float64, actor string) error {
	stock, err := tx.GetStockForUpdate(ctx, productID)
	if err != nil {
		return err
	}
	_, err = inventory.Record(ctx, tx, inventory.MovementInput{
		ProductID: productID,
		Kind:      inventory.MovementReceipt,
		Quantity:  qty,
		UnitCost:  stock.AvgCost,
		Reason:    fmt.Sprintf("cancellation of sale %s", orderID),
		Actor:     actor,
	})
	return err
}

// Order fetches one order with lines and payments.
func (s *Service) Order(ctx context.Context, id uuid.UUID) (Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// Orders lists recent orders, optionally scoped to a session.
func (s *Service) Orders(ctx context.Context, sessionID uuid.UUID, limit int) ([]Order, error) {
	return s.repo.ListOrders(ctx, sessionID, limit)
}

func (s *Service) recordAudit(ctx context.Context, order Order, action string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Entity:   "order",
		EntityID: order.ID.String(),
		Action:   action,
		Actor:    order.CreatedBy,
		NewValue: map[string]any{"total": order.Total, "session_id": order.CashSessionID.String()},
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit write failed", slog.Any("error", err))
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
