package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/fogon-pos/fogon/internal/cashsession"
	"github.com/fogon-pos/fogon/internal/catalog"
	"github.com/fogon-pos/fogon/internal/checkout"
	"github.com/fogon-pos/fogon/internal/inventory"
	"github.com/fogon-pos/fogon/internal/observability"
	"github.com/fogon-pos/fogon/internal/production"
	"github.com/fogon-pos/fogon/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	InventoryHandler   *inventory.Handler
	CatalogHandler     *catalog.Handler
	ProductionHandler  *production.Handler
	CheckoutHandler    *checkout.Handler
	CashSessionHandler *cashsession.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with Fogon defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if params.InventoryHandler != nil {
			r.Route("/inventory", params.InventoryHandler.MountRoutes)
		}
		if params.CatalogHandler != nil {
			r.Route("/catalog", params.CatalogHandler.MountRoutes)
		}
		if params.ProductionHandler != nil {
			r.Route("/production", params.ProductionHandler.MountRoutes)
		}
		if params.CheckoutHandler != nil {
			r.Route("/orders", params.CheckoutHandler.MountRoutes)
		}
		if params.CashSessionHandler != nil {
			r.Route("/cash-sessions", params.CashSessionHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
