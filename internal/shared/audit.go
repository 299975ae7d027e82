package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in audit_logs. OldValue/NewValue hold
// arbitrary before/after snapshots serialised as JSON.
type AuditLog struct {
	Entity   string
	EntityID string
	Action   string
	Actor    string
	OldValue map[string]any
	NewValue map[string]any
	At       time.Time
}

// AuditLogger writes records into audit_logs. Writes are fire-and-forget
// from the caller's perspective: a failed audit write must never roll back
// the transaction it describes.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Entity == "" || log.EntityID == "" || log.Action == "" {
		return errors.New("audit log requires entity/entity_id/action")
	}
	oldJSON, err := json.Marshal(log.OldValue)
	if err != nil {
		return err
	}
	newJSON, err := json.Marshal(log.NewValue)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (entity, entity_id, action, actor, old_value, new_value, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE(NULLIF($7, '0001-01-01 00:00:00+00'::timestamptz), NOW()))`,
		log.Entity, log.EntityID, log.Action, log.Actor, oldJSON, newJSON, log.At)
	return err
}
