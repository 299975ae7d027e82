package cashsession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fogon-pos/fogon/internal/shared"
)

// Repository persists cash sessions on Postgres. A partial unique index on
// cash_sessions(status) WHERE status = 'open' backs the single-open-session
// rule.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateSession inserts an open session. A concurrent open loses on the
// unique index and surfaces as a state conflict.
func (r *Repository) CreateSession(ctx context.Context, session Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO cash_sessions (id, status, opening_float, opened_by, opened_at)
		VALUES ($1, $2, $3, $4, $5)`,
		session.ID, session.Status, session.OpeningFloat, session.OpenedBy, session.OpenedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("a session is already open: %w", shared.ErrStateConflict)
		}
		return err
	}
	return nil
}

// GetSession fetches one session.
func (r *Repository) GetSession(ctx context.Context, id uuid.UUID) (Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, status, opening_float, COALESCE(closing_amount, 0),
		       COALESCE(opened_by, ''), COALESCE(closed_by, ''), opened_at, closed_at
		FROM cash_sessions WHERE id = $1`, id)
	return scanSession(row)
}

// OpenSession returns the open session, shared.ErrNotFound when none.
func (r *Repository) OpenSession(ctx context.Context) (Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, status, opening_float, COALESCE(closing_amount, 0),
		       COALESCE(opened_by, ''), COALESCE(closed_by, ''), opened_at, closed_at
		FROM cash_sessions WHERE status = $1`, SessionOpen)
	return scanSession(row)
}

// ListSessions returns recent sessions, newest first.
func (r *Repository) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, status, opening_float, COALESCE(closing_amount, 0),
		       COALESCE(opened_by, ''), COALESCE(closed_by, ''), opened_at, closed_at
		FROM cash_sessions
		ORDER BY opened_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// UpsertDeclaration writes the count for one method, last write wins.
func (r *Repository) UpsertDeclaration(ctx context.Context, d Declaration) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO cash_session_declarations (session_id, payment_method_id, amount, justification, declared_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		ON CONFLICT (session_id, payment_method_id)
		DO UPDATE SET amount = EXCLUDED.amount, justification = EXCLUDED.justification, declared_at = EXCLUDED.declared_at`,
		d.SessionID, d.MethodID, d.Amount, d.Justification, d.DeclaredAt)
	return err
}

// ListDeclarations returns the declared counts for a session.
func (r *Repository) ListDeclarations(ctx context.Context, sessionID uuid.UUID) ([]Declaration, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT session_id, payment_method_id, amount, COALESCE(justification, ''), declared_at
		FROM cash_session_declarations WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var declarations []Declaration
	for rows.Next() {
		var d Declaration
		if err := rows.Scan(&d.SessionID, &d.MethodID, &d.Amount, &d.Justification, &d.DeclaredAt); err != nil {
			return nil, err
		}
		declarations = append(declarations, d)
	}
	return declarations, rows.Err()
}

// TheoreticalTotals sums payments of non-cancelled orders in the session.
func (r *Repository) TheoreticalTotals(ctx context.Context, sessionID uuid.UUID) (map[uuid.UUID]float64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.payment_method_id, COALESCE(SUM(p.amount), 0)
		FROM order_payments p
		JOIN orders o ON o.id = p.order_id
		WHERE o.cash_session_id = $1 AND o.status <> 'cancelled'
		GROUP BY p.payment_method_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := map[uuid.UUID]float64{}
	for rows.Next() {
		var methodID uuid.UUID
		var amount float64
		if err := rows.Scan(&methodID, &amount); err != nil {
			return nil, err
		}
		totals[methodID] = amount
	}
	return totals, rows.Err()
}

// CloseSession flips open to closed.
func (r *Repository) CloseSession(ctx context.Context, id uuid.UUID, closingAmount float64, closedBy string, closedAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE cash_sessions
		SET status = $2, closing_amount = $3, closed_by = $4, closed_at = $5
		WHERE id = $1 AND status = $6`,
		id, SessionClosed, closingAmount, closedBy, closedAt, SessionOpen)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanSession(row pgx.Row) (Session, error) {
	var session Session
	err := row.Scan(&session.ID, &session.Status, &session.OpeningFloat, &session.ClosingAmount,
		&session.OpenedBy, &session.ClosedBy, &session.OpenedAt, &session.ClosedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, shared.ErrNotFound
	}
	return session, err
}
