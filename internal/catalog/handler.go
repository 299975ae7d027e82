package catalog

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fogon-pos/fogon/internal/platform/httpx"
)

// Handler exposes read-only catalog endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the catalog handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products", h.handleProducts)
	r.Get("/modifiers", h.handleModifiers)
	r.Get("/payment-methods", h.handlePaymentMethods)
}

func (h *Handler) handleProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.Products(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, products)
}

func (h *Handler) handleModifiers(w http.ResponseWriter, r *http.Request) {
	modifiers, err := h.service.ActiveModifiers(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, modifiers)
}

func (h *Handler) handlePaymentMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.service.PaymentMethods(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, methods)
}
