package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/fogon-pos/fogon/internal/inventory"
	"github.com/fogon-pos/fogon/internal/observability"
)

// NewLowStockScanHandler builds the handler for periodic low stock sweeps.
// Items at or under their reorder threshold are logged so the morning shift
// can restock before service.
func NewLowStockScanHandler(svc *inventory.Service, metrics *observability.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ScanPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		stocks, err := svc.LowStock(ctx)
		if metrics != nil {
			metrics.JobRun(TaskLowStockScan, err)
		}
		if err != nil {
			return err
		}
		for _, s := range stocks {
			logger.Warn("low stock",
				slog.String("product_id", s.ProductID.String()),
				slog.String("name", s.Name),
				slog.Float64("qty", s.Qty),
				slog.Float64("min_qty", s.MinQty))
		}
		logger.Info("low stock scan done", slog.Int("flagged", len(stocks)))
		return nil
	}
}
