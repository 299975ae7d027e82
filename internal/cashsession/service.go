package cashsession

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/fogon-pos/fogon/internal/catalog"
	"github.com/fogon-pos/fogon/internal/shared"
)

// RepositoryPort abstracts session storage.
type RepositoryPort interface {
	// CreateSession inserts an open session. The store enforces the
	// single-open-session rule atomically and returns
	// shared.ErrStateConflict when one is already open.
	CreateSession(ctx context.Context, session Session) error
	GetSession(ctx context.Context, id uuid.UUID) (Session, error)
	// OpenSession returns the currently open session or shared.ErrNotFound.
	OpenSession(ctx context.Context) (Session, error)
	ListSessions(ctx context.Context, limit int) ([]Session, error)
	UpsertDeclaration(ctx context.Context, d Declaration) error
	ListDeclarations(ctx context.Context, sessionID uuid.UUID) ([]Declaration, error)
	// TheoreticalTotals sums recorded payment amounts of non-cancelled
	// orders attributed to the session, grouped by payment method.
	TheoreticalTotals(ctx context.Context, sessionID uuid.UUID) (map[uuid.UUID]float64, error)
	// CloseSession flips open to closed, storing the closing figures.
	// Returns false when the session was not open.
	CloseSession(ctx context.Context, id uuid.UUID, closingAmount float64, closedBy string, closedAt time.Time) (bool, error)
}

// CatalogPort lists the configured payment methods.
type CatalogPort interface {
	PaymentMethods(ctx context.Context) ([]catalog.PaymentMethod, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service runs the drawer lifecycle and the closing reconciliation.
type Service struct {
	repo    RepositoryPort
	catalog CatalogPort
	audit   AuditPort
	logger  *slog.Logger
	group   singleflight.Group
}

// NewService builds Service.
func NewService(repo RepositoryPort, cat CatalogPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, catalog: cat, audit: audit, logger: logger}
}

// Open starts a new session. At most one session may be open at a time;
// the storage guard makes concurrent opens lose with ErrStateConflict.
func (s *Service) Open(ctx context.Context, openingFloat float64, actor string) (Session, error) {
	if openingFloat < 0 {
		return Session{}, shared.Validation("opening_float", "opening float must be >= 0")
	}
	session := Session{
		ID:           uuid.New(),
		Status:       SessionOpen,
		OpeningFloat: openingFloat,
		OpenedBy:     actor,
		OpenedAt:     time.Now().UTC(),
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return Session{}, err
	}
	s.recordAudit(ctx, session, "open", actor)
	return session, nil
}

// OpenSessionID resolves the currently open session, for callers that only
// need to attribute work to it. shared.ErrNotFound means none is open.
func (s *Service) OpenSessionID(ctx context.Context) (uuid.UUID, error) {
	session, err := s.repo.OpenSession(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	return session.ID, nil
}

// Current returns the open session with its declarations.
func (s *Service) Current(ctx context.Context) (Session, error) {
	session, err := s.repo.OpenSession(ctx)
	if err != nil {
		return Session{}, err
	}
	session.Declarations, err = s.repo.ListDeclarations(ctx, session.ID)
	return session, err
}

// Session fetches one session with declarations.
func (s *Service) Session(ctx context.Context, id uuid.UUID) (Session, error) {
	session, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return Session{}, err
	}
	session.Declarations, err = s.repo.ListDeclarations(ctx, id)
	return session, err
}

// Sessions lists recent sessions.
func (s *Service) Sessions(ctx context.Context, limit int) ([]Session, error) {
	return s.repo.ListSessions(ctx, limit)
}

// TheoreticalTotals computes what each method should hold according to the
// recorded payments. Concurrent reads for the same session are collapsed
// into one query.
func (s *Service) TheoreticalTotals(ctx context.Context, sessionID uuid.UUID) (map[uuid.UUID]float64, error) {
	v, err, _ := s.group.Do("totals:"+sessionID.String(), func() (any, error) {
		return s.repo.TheoreticalTotals(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	return v.(map[uuid.UUID]float64), nil
}

// Declare records the counted amount for one method. Re-declaring
// overwrites. Closed sessions reject any declaration.
func (s *Service) Declare(ctx context.Context, sessionID, methodID uuid.UUID, amount float64, justification string) error {
	if amount < 0 {
		return shared.Validation("amount", "declared amount must be >= 0")
	}
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != SessionOpen {
		return fmt.Errorf("session is closed: %w", shared.ErrStateConflict)
	}
	return s.repo.UpsertDeclaration(ctx, Declaration{
		SessionID:     sessionID,
		MethodID:      methodID,
		Amount:        amount,
		Justification: justification,
		DeclaredAt:    time.Now().UTC(),
	})
}

// ValidateClose checks the full closing checklist and returns every
// violation at once: a declared amount per active method, and a written
// justification wherever the count diverges from the recorded payments.
func (s *Service) ValidateClose(ctx context.Context, sessionID uuid.UUID) ([]CloseViolation, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != SessionOpen {
		return nil, fmt.Errorf("session is closed: %w", shared.ErrStateConflict)
	}

	methods, err := s.catalog.PaymentMethods(ctx)
	if err != nil {
		return nil, err
	}
	theoretical, err := s.TheoreticalTotals(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	declarations, err := s.repo.ListDeclarations(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	declared := make(map[uuid.UUID]Declaration, len(declarations))
	for _, d := range declarations {
		declared[d.MethodID] = d
	}

	threshold := decimal.RequireFromString(varianceThreshold)
	var violations []CloseViolation
	for _, method := range methods {
		if !method.IsActive {
			continue
		}
		d, ok := declared[method.ID]
		if !ok {
			violations = append(violations, CloseViolation{
				MethodID: method.ID,
				Method:   method.Name,
				Message:  "no declared amount",
			})
			continue
		}
		diff := decimal.NewFromFloat(d.Amount).Sub(decimal.NewFromFloat(theoretical[method.ID])).Abs()
		if diff.Cmp(threshold) >= 0 && len(d.Justification) < minJustificationLen {
			violations = append(violations, CloseViolation{
				MethodID: method.ID,
				Method:   method.Name,
				Message: fmt.Sprintf("variance of %s requires a justification of at least %d characters",
					diff.StringFixed(2), minJustificationLen),
			})
		}
	}
	return violations, nil
}

// Close freezes the session. It refuses with a CloseBlockedError while any
// closing violation remains, and with ErrStateConflict once closed.
func (s *Service) Close(ctx context.Context, sessionID uuid.UUID, actor string) (Session, error) {
	violations, err := s.ValidateClose(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if len(violations) > 0 {
		return Session{}, &CloseBlockedError{Violations: violations}
	}

	declarations, err := s.repo.ListDeclarations(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	closing := decimal.Zero
	for _, d := range declarations {
		closing = closing.Add(decimal.NewFromFloat(d.Amount))
	}
	closingAmount, _ := closing.Float64()

	closedAt := time.Now().UTC()
	ok, err := s.repo.CloseSession(ctx, sessionID, closingAmount, actor, closedAt)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, fmt.Errorf("session is closed: %w", shared.ErrStateConflict)
	}

	session, err := s.Session(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	s.recordAudit(ctx, session, "close", actor)
	return session, nil
}

func (s *Service) recordAudit(ctx context.Context, session Session, action, actor string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Entity:   "cash_session",
		EntityID: session.ID.String(),
		Action:   action,
		Actor:    actor,
		NewValue: map[string]any{
			"opening_float":  session.OpeningFloat,
			"closing_amount": session.ClosingAmount,
			"status":         string(session.Status),
		},
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit write failed", slog.Any("error", err))
	}
}
