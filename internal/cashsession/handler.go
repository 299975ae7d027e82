package cashsession

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/fogon-pos/fogon/internal/platform/httpx"
	"github.com/fogon-pos/fogon/internal/shared"
)

// Handler wires HTTP endpoints for cash sessions.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the cash session handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers cash session routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleOpen)
	r.Get("/", h.handleList)
	r.Get("/current", h.handleCurrent)
	r.Get("/{sessionID}", h.handleGet)
	r.Get("/{sessionID}/totals", h.handleTotals)
	r.Put("/{sessionID}/declarations", h.handleDeclare)
	r.Get("/{sessionID}/close-check", h.handleCloseCheck)
	r.Post("/{sessionID}/close", h.handleClose)
	r.Get("/{sessionID}/report", h.handleReport)
}

type openRequest struct {
	OpeningFloat float64 `json:"opening_float" validate:"gte=0"`
}

type declareRequest struct {
	MethodID      string  `json:"method_id" validate:"required,uuid4"`
	Amount        float64 `json:"amount" validate:"gte=0"`
	Justification string  `json:"justification"`
}

func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	session, err := h.service.Open(r.Context(), req.OpeningFloat, shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, session)
}

func (h *Handler) handleCurrent(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.Current(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	sessions, err := h.service.Sessions(r.Context(), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	session, err := h.service.Session(r.Context(), sessionID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

func (h *Handler) handleTotals(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	totals, err := h.service.TheoreticalTotals(r.Context(), sessionID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, totals)
}

func (h *Handler) handleDeclare(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req declareRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	methodID, err := uuid.Parse(req.MethodID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "method_id must be a UUID")
		return
	}
	if err := h.service.Declare(r.Context(), sessionID, methodID, req.Amount, req.Justification); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "declared"})
}

func (h *Handler) handleCloseCheck(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	violations, err := h.service.ValidateClose(r.Context(), sessionID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"can_close":  len(violations) == 0,
		"violations": violations,
	})
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	session, err := h.service.Close(r.Context(), sessionID, shared.ActorFromContext(r.Context()))
	if err != nil {
		var blocked *CloseBlockedError
		if errors.As(err, &blocked) {
			httpx.JSON(w, http.StatusUnprocessableEntity, map[string]any{
				"title":      "Close Blocked",
				"violations": blocked.Violations,
			})
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	report, err := h.service.Report(r.Context(), sessionID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(report))
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "sessionID must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
