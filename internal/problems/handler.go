package problems

import (
	"context"
	"net/http"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/incidents"
	"github.com/bissquit/incident-tracker/internal/pkg/ctxlog"
	"github.com/bissquit/incident-tracker/internal/pkg/httputil"
	"github.com/bissquit/incident-tracker/internal/pkg/timeutil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for the problems module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new problems handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: httputil.NewValidator(),
	}
}

// RegisterRoutes registers read-only problem routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/problems", h.ListProblems)
	r.Get("/problems/{id}", h.GetProblem)
}

// RegisterWriteRoutes registers routes that modify problems.
func (h *Handler) RegisterWriteRoutes(r chi.Router) {
	r.Post("/problems", h.CreateProblem)
	r.Put("/problems/{id}", h.UpdateProblem)
	r.Post("/problems/{id}/link/{incidentID}", h.LinkIncident)
}

func parseDate(ctx context.Context, field string, value *string) *time.Time {
	if value == nil || *value == "" {
		return nil
	}
	t := timeutil.ParsePtr(value)
	if t == nil {
		ctxlog.FromContext(ctx).Warn("ignoring unparseable timestamp", "field", field, "value", *value)
	}
	return t
}

// CreateProblemRequest represents the request body for creating a problem.
type CreateProblemRequest struct {
	SessionID         string   `json:"session_id"`
	Title             string   `json:"title" validate:"required,max=500"`
	Description       string   `json:"description"`
	RootCause         string   `json:"root_cause"`
	RootCauseCategory string   `json:"root_cause_category"`
	PermanentFix      string   `json:"permanent_fix"`
	FixStatus         string   `json:"fix_status" validate:"omitempty,oneof=open in_progress implemented verified"`
	FixOwner          string   `json:"fix_owner"`
	FixDueDate        *string  `json:"fix_due_date"`
	EstimatedCost     *float64 `json:"estimated_cost" validate:"omitempty,min=0"`
	KnownError        bool     `json:"known_error"`
	WikiURL           string   `json:"wiki_url"`
	Workaround        string   `json:"workaround"`
	Priority          string   `json:"priority" validate:"omitempty,oneof=critical high medium low"`
}

// UpdateProblemRequest represents the request body for a partial problem update.
type UpdateProblemRequest struct {
	SessionID            string   `json:"session_id"`
	Title                *string  `json:"title" validate:"omitempty,max=500"`
	Description          *string  `json:"description"`
	RootCause            *string  `json:"root_cause"`
	RootCauseCategory    *string  `json:"root_cause_category"`
	PermanentFix         *string  `json:"permanent_fix"`
	FixStatus            *string  `json:"fix_status" validate:"omitempty,oneof=open in_progress implemented verified"`
	FixOwner             *string  `json:"fix_owner"`
	FixDueDate           *string  `json:"fix_due_date"`
	FixCompletedDate     *string  `json:"fix_completed_date"`
	EstimatedCost        *float64 `json:"estimated_cost" validate:"omitempty,min=0"`
	IncidentCount        *int     `json:"incident_count" validate:"omitempty,min=0"`
	TotalDowntimeMinutes *int     `json:"total_downtime_minutes" validate:"omitempty,min=0"`
	KnownError           *bool    `json:"known_error"`
	WikiURL              *string  `json:"wiki_url"`
	Workaround           *string  `json:"workaround"`
	Priority             *string  `json:"priority" validate:"omitempty,oneof=critical high medium low"`
}

// ToInput converts the request to service input.
func (req *UpdateProblemRequest) ToInput(ctx context.Context) UpdateProblemInput {
	in := UpdateProblemInput{
		Title:                req.Title,
		Description:          req.Description,
		RootCause:            req.RootCause,
		RootCauseCategory:    req.RootCauseCategory,
		PermanentFix:         req.PermanentFix,
		FixOwner:             req.FixOwner,
		FixDueDate:           parseDate(ctx, "fix_due_date", req.FixDueDate),
		FixCompletedDate:     parseDate(ctx, "fix_completed_date", req.FixCompletedDate),
		EstimatedCost:        req.EstimatedCost,
		IncidentCount:        req.IncidentCount,
		TotalDowntimeMinutes: req.TotalDowntimeMinutes,
		KnownError:           req.KnownError,
		WikiURL:              req.WikiURL,
		Workaround:           req.Workaround,
	}
	if req.FixStatus != nil {
		s := domain.FixStatus(*req.FixStatus)
		in.FixStatus = &s
	}
	if req.Priority != nil {
		p := domain.Severity(*req.Priority)
		in.Priority = &p
	}
	return in
}

// CreateProblem handles POST /problems request.
func (h *Handler) CreateProblem(w http.ResponseWriter, r *http.Request) {
	var req CreateProblemRequest
	if !httputil.Decode(w, r, h.validator, &req) {
		return
	}

	problem, err := h.service.CreateProblem(r.Context(), CreateProblemInput{
		SessionID:         httputil.SessionID(r, req.SessionID),
		Title:             req.Title,
		Description:       req.Description,
		RootCause:         req.RootCause,
		RootCauseCategory: req.RootCauseCategory,
		PermanentFix:      req.PermanentFix,
		FixStatus:         domain.FixStatus(req.FixStatus),
		FixOwner:          req.FixOwner,
		FixDueDate:        parseDate(r.Context(), "fix_due_date", req.FixDueDate),
		EstimatedCost:     req.EstimatedCost,
		KnownError:        req.KnownError,
		WikiURL:           req.WikiURL,
		Workaround:        req.Workaround,
		Priority:          domain.Severity(req.Priority),
	})
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusCreated, problem)
}

// ListProblems handles GET /problems request.
func (h *Handler) ListProblems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	input := ListProblemsInput{SessionID: httputil.SessionID(r, "")}

	if v := q.Get("fix_status"); v != "" {
		status := domain.FixStatus(v)
		if !status.IsValid() {
			httputil.Error(w, http.StatusBadRequest, ErrInvalidFixStatus.Error())
			return
		}
		input.FixStatus = &status
	}
	if v := q.Get("priority"); v != "" {
		priority := domain.Severity(v)
		if !priority.IsValid() {
			httputil.Error(w, http.StatusBadRequest, ErrInvalidPriority.Error())
			return
		}
		input.Priority = &priority
	}
	var err error
	if input.Page, err = httputil.PositiveQueryInt(r, "page"); err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if input.PerPage, err = httputil.PositiveQueryInt(r, "per_page"); err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.service.ListProblems(r.Context(), input)
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, page)
}

// GetProblem handles GET /problems/{id} request.
func (h *Handler) GetProblem(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.GetProblemDetail(r.Context(), httputil.SessionID(r, ""), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, detail)
}

// UpdateProblem handles PUT /problems/{id} request.
func (h *Handler) UpdateProblem(w http.ResponseWriter, r *http.Request) {
	var req UpdateProblemRequest
	if !httputil.Decode(w, r, h.validator, &req) {
		return
	}

	problem, err := h.service.UpdateProblem(r.Context(), httputil.SessionID(r, req.SessionID), chi.URLParam(r, "id"), req.ToInput(r.Context()))
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, problem)
}

// LinkIncident handles POST /problems/{id}/link/{incidentID} request.
func (h *Handler) LinkIncident(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.LinkIncident(r.Context(),
		httputil.SessionID(r, ""),
		chi.URLParam(r, "id"),
		chi.URLParam(r, "incidentID"),
	)
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, result)
}

func (h *Handler) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	httputil.HandleError(ctx, w, err, []httputil.ErrorMapping{
		{Match: IsValidationError, Status: http.StatusBadRequest},
		{Error: ErrProblemNotFound, Status: http.StatusNotFound},
		{Error: incidents.ErrIncidentNotFound, Status: http.StatusNotFound},
	})
}
