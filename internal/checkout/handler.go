package checkout

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

// Handler wires HTTP endpoints for checkout.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the checkout handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers checkout routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCheckout)
	r.Get("/", h.handleList)
	r.Get("/{orderID}", h.handleGet)
	r.Post("/{orderID}/cancel", h.handleCancel)
}

type cartLineRequest struct {
	ProductID   string   `json:"product_id" validate:"required,uuid4"`
	Quantity    float64  `json:"quantity" validate:"required,gt=0"`
	ModifierIDs []string `json:"modifier_ids" validate:"dive,uuid4"`
}

type paymentRequest struct {
	MethodID  string  `json:"method_id" validate:"required,uuid4"`
	Amount    float64 `json:"amount" validate:"required,gt=0"`
	Reference string  `json:"reference"`
}

type checkoutRequest struct {
	Lines    []cartLineRequest `json:"lines" validate:"required,min=1,dive"`
	Payments []paymentRequest  `json:"payments" validate:"required,min=1,dive"`
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	input := CheckoutInput{
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		Actor:          shared.ActorFromContext(r.Context()),
	}
	for _, l := range req.Lines {
		productID, err := uuid.Parse(l.ProductID)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id must be a UUID")
			return
		}
		line := CartLine{ProductID: productID, Quantity: l.Quantity}
		for _, raw := range l.ModifierIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "modifier_ids must be UUIDs")
				return
			}
			line.ModifierIDs = append(line.ModifierIDs, id)
		}
		input.Lines = append(input.Lines, line)
	}
	for _, p := range req.Payments {
		methodID, err := uuid.Parse(p.MethodID)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "method_id must be a UUID")
			return
		}
		input.Payments = append(input.Payments, PaymentInput{MethodID: methodID, Amount: p.Amount, Reference: p.Reference})
	}

	order, err := h.service.Checkout(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "orderID must be a UUID")
		return
	}
	order, err := h.service.Order(r.Context(), orderID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var sessionID uuid.UUID
	if raw := q.Get("session_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "session_id must be a UUID")
			return
		}
		sessionID = id
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	orders, err := h.service.Orders(r.Context(), sessionID, limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orders)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "orderID must be a UUID")
		return
	}
	if err := h.service.Cancel(r.Context(), orderID, shared.ActorFromContext(r.Context())); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
