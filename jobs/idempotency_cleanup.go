package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fogon-pos/fogon/internal/observability"
	"github.com/fogon-pos/fogon/internal/shared"
)

// NewIdempotencyCleanupHandler builds the handler that prunes idempotency
// keys older than the retention window.
func NewIdempotencyCleanupHandler(store *shared.IdempotencyStore, retention time.Duration, metrics *observability.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ScanPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		err := store.Cleanup(ctx, retention)
		if metrics != nil {
			metrics.JobRun(TaskIdempotencyCleanup, err)
		}
		if err != nil {
			return err
		}
		logger.Info("idempotency cleanup done", slog.Duration("retention", retention))
		return nil
	}
}
