package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/fogon-pos/fogon/internal/platform/httpx"
	"github.com/fogon-pos/fogon/internal/shared"
)

// Handler wires HTTP endpoints for the inventory module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/adjustments", h.handleAdjustment)
	r.Get("/movements", h.handleMovements)
	r.Get("/stock", h.handleStock)
	r.Get("/stock/low", h.handleLowStock)
}

type adjustmentRequest struct {
	ProductID string  `json:"product_id" validate:"required,uuid4"`
	Quantity  float64 `json:"quantity" validate:"required"`
	UnitCost  float64 `json:"unit_cost" validate:"gte=0"`
	Class     string  `json:"class" validate:"required,oneof=purchase_receipt waste internal_use admin_error audit_fix"`
	Reason    string  `json:"reason" validate:"required,min=3"`
}

type movementResponse struct {
	ID        string  `json:"id"`
	ProductID string  `json:"product_id"`
	Kind      string  `json:"kind"`
	Quantity  float64 `json:"quantity"`
	UnitCost  float64 `json:"unit_cost"`
	Reason    string  `json:"reason"`
	Actor     string  `json:"actor"`
	CreatedAt string  `json:"created_at"`
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id must be a UUID")
		return
	}

	movement, err := h.service.Adjust(r.Context(), AdjustmentInput{
		ProductID: productID,
		Quantity:  req.Quantity,
		UnitCost:  req.UnitCost,
		Class:     ReasonClass(req.Class),
		Reason:    req.Reason,
		Actor:     shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toMovementResponse(movement))
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := MovementFilter{}
	if raw := q.Get("product_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id must be a UUID")
			return
		}
		filter.ProductID = id
	}
	if raw := q.Get("from"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			filter.From = t
		}
	}
	if raw := q.Get("to"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			filter.To = t
		}
	}
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			filter.Limit = n
		}
	}

	movements, err := h.service.Movements(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, toMovementResponse(m))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleStock(w http.ResponseWriter, r *http.Request) {
	stocks, err := h.service.Stock(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stocks)
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	stocks, err := h.service.LowStock(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stocks)
}

func toMovementResponse(m Movement) movementResponse {
	return movementResponse{
		ID:        m.ID.String(),
		ProductID: m.ProductID.String(),
		Kind:      string(m.Kind),
		Quantity:  m.Quantity,
		UnitCost:  m.UnitCost,
		Reason:    m.Reason,
		Actor:     m.Actor,
		CreatedAt: m.CreatedAt.Format(time.RFC3339),
	}
}
