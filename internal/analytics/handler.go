package analytics

import (
	"net/http"

	"github.com/bissquit/incident-tracker/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

// Handler serves metrics views over HTTP.
type Handler struct {
	service *Service
}

// NewHandler creates a new analytics handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers analytics routes. All of them are read-only.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/dashboard", h.GetDashboard)
	r.Get("/metrics/summary", h.GetSummary)
	r.Get("/sla/compliance", h.GetCompliance)
}

// GetDashboard handles GET /dashboard request.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.service.Dashboard(r.Context(), httputil.SessionID(r, ""))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}
	httputil.Success(w, http.StatusOK, dashboard)
}

// GetSummary handles GET /metrics/summary request.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context(), httputil.SessionID(r, ""))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}
	httputil.Success(w, http.StatusOK, summary)
}

// GetCompliance handles GET /sla/compliance request.
func (h *Handler) GetCompliance(w http.ResponseWriter, r *http.Request) {
	compliance, err := h.service.Compliance(r.Context(), httputil.SessionID(r, ""))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}
	httputil.Success(w, http.StatusOK, compliance)
}
