package production

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/fogon-pos/fogon/internal/platform/httpx"
	"github.com/fogon-pos/fogon/internal/shared"
)

// Handler wires HTTP endpoints for recipes and production orders.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the production handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers production routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Put("/recipes/{productID}", h.handleSaveRecipe)
	r.Get("/recipes/{productID}", h.handleGetRecipe)
	r.Get("/plan/{productID}", h.handlePlan)
	r.Post("/orders", h.handleCreateOrder)
	r.Get("/orders", h.handleListOrders)
	r.Post("/orders/{orderID}/confirm", h.handleConfirm)
}

type recipeLineRequest struct {
	IngredientID string  `json:"ingredient_id" validate:"required,uuid4"`
	QtyPerUnit   float64 `json:"qty_per_unit" validate:"required,gt=0"`
}

type recipeRequest struct {
	Lines []recipeLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type createOrderRequest struct {
	ProductID string  `json:"product_id" validate:"required,uuid4"`
	Quantity  float64 `json:"quantity" validate:"required,gt=0"`
	Notes     string  `json:"notes"`
}

func (h *Handler) handleSaveRecipe(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "productID must be a UUID")
		return
	}
	var req recipeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	lines := make([]RecipeLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		ingredientID, err := uuid.Parse(l.IngredientID)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "ingredient_id must be a UUID")
			return
		}
		lines = append(lines, RecipeLine{ProductID: productID, IngredientID: ingredientID, QtyPerUnit: l.QtyPerUnit})
	}
	if err := h.service.SaveRecipe(r.Context(), productID, lines); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (h *Handler) handleGetRecipe(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "productID must be a UUID")
		return
	}
	lines, err := h.service.Recipe(r.Context(), productID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lines)
}

func (h *Handler) handlePlan(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "productID must be a UUID")
		return
	}
	quantity := 1.0
	if raw := r.URL.Query().Get("quantity"); raw != "" {
		if q, err := strconv.ParseFloat(raw, 64); err == nil {
			quantity = q
		}
	}
	plan, err := h.service.PlanProduction(r.Context(), productID, quantity)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, plan)
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
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
	order, err := h.service.CreateOrder(r.Context(), productID, req.Quantity, req.Notes, shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	orders, err := h.service.Orders(r.Context(), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orders)
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "orderID must be a UUID")
		return
	}
	order, err := h.service.Confirm(r.Context(), orderID, shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}
