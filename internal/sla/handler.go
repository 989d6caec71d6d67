package sla

import (
	"net/http"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for SLA targets.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new SLA handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: httputil.NewValidator(),
	}
}

// RegisterRoutes registers read-only SLA routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sla", h.ListTargets)
}

// RegisterAdminRoutes registers routes that change SLA targets.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Put("/sla/{severity}", h.UpsertTarget)
}

// UpsertTargetRequest represents the request body for setting an SLA target.
type UpsertTargetRequest struct {
	SessionID               string `json:"session_id"`
	ResponseTargetMinutes   *int   `json:"response_target_minutes" validate:"omitempty,min=0"`
	ResolutionTargetMinutes *int   `json:"resolution_target_minutes" validate:"omitempty,min=0"`
}

// ListTargets handles GET /sla request.
func (h *Handler) ListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := h.service.ListTargets(r.Context(), httputil.SessionID(r, ""))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	httputil.Success(w, http.StatusOK, targets)
}

// UpsertTarget handles PUT /sla/{severity} request.
func (h *Handler) UpsertTarget(w http.ResponseWriter, r *http.Request) {
	var req UpsertTargetRequest
	if !httputil.Decode(w, r, h.validator, &req) {
		return
	}

	target, err := h.service.UpsertTarget(r.Context(),
		httputil.SessionID(r, req.SessionID),
		domain.Severity(chi.URLParam(r, "severity")),
		req.ResponseTargetMinutes,
		req.ResolutionTargetMinutes,
	)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
			{Error: ErrInvalidSeverity, Status: http.StatusBadRequest},
			{Error: ErrNegativeTarget, Status: http.StatusBadRequest},
		})
		return
	}

	httputil.Success(w, http.StatusOK, target)
}
