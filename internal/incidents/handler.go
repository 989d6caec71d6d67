package incidents

import (
	"context"
	"net/http"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/pkg/ctxlog"
	"github.com/bissquit/incident-tracker/internal/pkg/httputil"
	"github.com/bissquit/incident-tracker/internal/pkg/timeutil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for the incidents module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new incidents handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: httputil.NewValidator(),
	}
}

// RegisterRoutes registers read-only incident routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/incidents", h.ListIncidents)
	r.Get("/incidents/{id}", h.GetIncident)
	r.Get("/incidents/{id}/report", h.GetReport)
	r.Get("/incidents/{id}/timeline", h.ListTimeline)
}

// RegisterWriteRoutes registers routes that modify incidents.
func (h *Handler) RegisterWriteRoutes(r chi.Router) {
	r.Post("/incidents", h.CreateIncident)
	r.Put("/incidents/{id}", h.UpdateIncident)
	r.Put("/incidents/{id}/status", h.UpdateStatus)
	r.Put("/incidents/{id}/assign", h.Assign)
	r.Put("/incidents/{id}/resolve", h.Resolve)
	r.Post("/incidents/{id}/timeline", h.AddTimelineEntry)
	r.Post("/incidents/{id}/responders", h.AddResponder)
	r.Post("/incidents/{id}/assets", h.AddAsset)
	r.Post("/incidents/{id}/communications", h.AddCommunication)
}

// parseTime converts an optional caller timestamp. Unparseable values are
// logged and treated as absent.
func parseTime(ctx context.Context, field string, value *string) *time.Time {
	if value == nil || *value == "" {
		return nil
	}
	t := timeutil.ParsePtr(value)
	if t == nil {
		ctxlog.FromContext(ctx).Warn("ignoring unparseable timestamp", "field", field, "value", *value)
	}
	return t
}

// CreateIncidentRequest represents the request body for creating an incident.
type CreateIncidentRequest struct {
	SessionID         string   `json:"session_id"`
	Title             string   `json:"title" validate:"required,max=500"`
	Description       string   `json:"description"`
	Severity          string   `json:"severity" validate:"omitempty,oneof=critical high medium low"`
	Category          string   `json:"category" validate:"omitempty,oneof=outage degradation security data_loss access_issue other"`
	Status            string   `json:"status" validate:"omitempty,oneof=open investigating identified monitoring resolved closed"`
	ReportedAt        *string  `json:"reported_at"`
	DetectedAt        *string  `json:"detected_at"`
	ImpactDescription string   `json:"impact_description"`
	UsersAffected     *int     `json:"users_affected" validate:"omitempty,min=0"`
	BusinessImpact    string   `json:"business_impact"`
	DataBreach        bool     `json:"data_breach"`
	ReportedBy        string   `json:"reported_by"`
	AssignedTo        string   `json:"assigned_to"`
	Workaround        string   `json:"workaround"`
	WikiURL           string   `json:"wiki_url"`
	Tags              []string `json:"tags"`
}

// ToInput converts the request to service input.
func (req *CreateIncidentRequest) ToInput(ctx context.Context, sessionID string) CreateIncidentInput {
	return CreateIncidentInput{
		SessionID:         sessionID,
		Title:             req.Title,
		Description:       req.Description,
		Severity:          domain.Severity(req.Severity),
		Category:          domain.Category(req.Category),
		Status:            domain.IncidentStatus(req.Status),
		ReportedAt:        parseTime(ctx, "reported_at", req.ReportedAt),
		DetectedAt:        parseTime(ctx, "detected_at", req.DetectedAt),
		ImpactDescription: req.ImpactDescription,
		UsersAffected:     req.UsersAffected,
		BusinessImpact:    req.BusinessImpact,
		DataBreach:        req.DataBreach,
		ReportedBy:        httputil.Author(ctx, req.ReportedBy),
		AssignedTo:        req.AssignedTo,
		Workaround:        req.Workaround,
		WikiURL:           req.WikiURL,
		Tags:              req.Tags,
	}
}

// UpdateIncidentRequest represents the request body for a partial incident update.
type UpdateIncidentRequest struct {
	SessionID             string    `json:"session_id"`
	Title                 *string   `json:"title" validate:"omitempty,max=500"`
	Description           *string   `json:"description"`
	Severity              *string   `json:"severity" validate:"omitempty,oneof=critical high medium low"`
	Category              *string   `json:"category" validate:"omitempty,oneof=outage degradation security data_loss access_issue other"`
	Status                *string   `json:"status" validate:"omitempty,oneof=open investigating identified monitoring resolved closed"`
	DetectedAt            *string   `json:"detected_at"`
	AcknowledgedAt        *string   `json:"acknowledged_at"`
	ResolvedAt            *string   `json:"resolved_at"`
	ClosedAt              *string   `json:"closed_at"`
	ImpactDescription     *string   `json:"impact_description"`
	UsersAffected         *int      `json:"users_affected" validate:"omitempty,min=0"`
	BusinessImpact        *string   `json:"business_impact"`
	DataBreach            *bool     `json:"data_breach"`
	ReportedBy            *string   `json:"reported_by"`
	AssignedTo            *string   `json:"assigned_to"`
	ResolvedBy            *string   `json:"resolved_by"`
	ResolutionSummary     *string   `json:"resolution_summary"`
	RootCause             *string   `json:"root_cause"`
	Workaround            *string   `json:"workaround"`
	ProblemID             *string   `json:"problem_id" validate:"omitempty,uuid"`
	WikiURL               *string   `json:"wiki_url"`
	PostIncidentCompleted *bool     `json:"post_incident_completed"`
	LessonsLearned        *string   `json:"lessons_learned"`
	PreventiveActions     *string   `json:"preventive_actions"`
	Tags                  *[]string `json:"tags"`
}

// ToInput converts the request to service input.
func (req *UpdateIncidentRequest) ToInput(ctx context.Context) UpdateIncidentInput {
	in := UpdateIncidentInput{
		Title:                 req.Title,
		Description:           req.Description,
		DetectedAt:            parseTime(ctx, "detected_at", req.DetectedAt),
		AcknowledgedAt:        parseTime(ctx, "acknowledged_at", req.AcknowledgedAt),
		ResolvedAt:            parseTime(ctx, "resolved_at", req.ResolvedAt),
		ClosedAt:              parseTime(ctx, "closed_at", req.ClosedAt),
		ImpactDescription:     req.ImpactDescription,
		UsersAffected:         req.UsersAffected,
		BusinessImpact:        req.BusinessImpact,
		DataBreach:            req.DataBreach,
		ReportedBy:            req.ReportedBy,
		AssignedTo:            req.AssignedTo,
		ResolvedBy:            req.ResolvedBy,
		ResolutionSummary:     req.ResolutionSummary,
		RootCause:             req.RootCause,
		Workaround:            req.Workaround,
		ProblemID:             req.ProblemID,
		WikiURL:               req.WikiURL,
		PostIncidentCompleted: req.PostIncidentCompleted,
		LessonsLearned:        req.LessonsLearned,
		PreventiveActions:     req.PreventiveActions,
		Tags:                  req.Tags,
	}
	if req.Severity != nil {
		s := domain.Severity(*req.Severity)
		in.Severity = &s
	}
	if req.Category != nil {
		c := domain.Category(*req.Category)
		in.Category = &c
	}
	if req.Status != nil {
		s := domain.IncidentStatus(*req.Status)
		in.Status = &s
	}
	return in
}

// UpdateStatusRequest represents the request body for a status change.
type UpdateStatusRequest struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status" validate:"required,oneof=open investigating identified monitoring resolved closed"`
	Author    string `json:"author"`
	Content   string `json:"content"`
}

// AssignRequest represents the request body for assigning an incident.
type AssignRequest struct {
	SessionID  string `json:"session_id"`
	AssignedTo string `json:"assigned_to" validate:"required"`
	Author     string `json:"author"`
}

// ResolveRequest represents the request body for resolving an incident.
type ResolveRequest struct {
	SessionID         string  `json:"session_id"`
	ResolvedAt        *string `json:"resolved_at"`
	ResolvedBy        string  `json:"resolved_by"`
	ResolutionSummary string  `json:"resolution_summary"`
	RootCause         *string `json:"root_cause"`
}

// TimelineEntryRequest represents the request body for a manual timeline entry.
type TimelineEntryRequest struct {
	SessionID string  `json:"session_id"`
	EntryType string  `json:"entry_type" validate:"omitempty,oneof=update status_change assignment resolution communication"`
	Content   string  `json:"content" validate:"required"`
	Author    string  `json:"author"`
	CreatedAt *string `json:"created_at"`
}

// ResponderRequest represents the request body for adding a responder.
type ResponderRequest struct {
	SessionID  string `json:"session_id"`
	PersonName string `json:"person_name" validate:"required"`
	Role       string `json:"role"`
}

// AssetRequest represents the request body for recording an affected asset.
type AssetRequest struct {
	SessionID      string `json:"session_id"`
	AssetTrackerID string `json:"asset_tracker_id"`
	AssetName      string `json:"asset_name" validate:"required"`
	AssetType      string `json:"asset_type"`
	ImpactType     string `json:"impact_type"`
	Notes          string `json:"notes"`
}

// CommunicationRequest represents the request body for recording an outbound message.
type CommunicationRequest struct {
	SessionID string  `json:"session_id"`
	Channel   string  `json:"channel" validate:"required"`
	Recipient string  `json:"recipient"`
	Message   string  `json:"message"`
	SentAt    *string `json:"sent_at"`
	SentBy    string  `json:"sent_by"`
}

// decode reads and validates the JSON body, answering the request itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	return httputil.Decode(w, r, h.validator, dst)
}

// CreateIncident handles POST /incidents request.
func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	var req CreateIncidentRequest
	if !h.decode(w, r, &req) {
		return
	}

	inc, err := h.service.CreateIncident(r.Context(), req.ToInput(r.Context(), httputil.SessionID(r, req.SessionID)))
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusCreated, inc)
}

// ListIncidents handles GET /incidents request.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	input := ListIncidentsInput{
		SessionID:  httputil.SessionID(r, ""),
		AssignedTo: q.Get("assigned_to"),
		Search:     q.Get("search"),
	}

	if v := q.Get("status"); v != "" {
		status := domain.IncidentStatus(v)
		if !status.IsValid() {
			httputil.Error(w, http.StatusBadRequest, ErrInvalidStatus.Error())
			return
		}
		input.Status = &status
	}
	if v := q.Get("severity"); v != "" {
		severity := domain.Severity(v)
		if !severity.IsValid() {
			httputil.Error(w, http.StatusBadRequest, ErrInvalidSeverity.Error())
			return
		}
		input.Severity = &severity
	}
	if v := q.Get("category"); v != "" {
		category := domain.Category(v)
		if !category.IsValid() {
			httputil.Error(w, http.StatusBadRequest, ErrInvalidCategory.Error())
			return
		}
		input.Category = &category
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

	page, err := h.service.ListIncidents(r.Context(), input)
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, page)
}

// GetIncident handles GET /incidents/{id} request.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.GetIncidentDetail(r.Context(), httputil.SessionID(r, ""), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, detail)
}

// UpdateIncident handles PUT /incidents/{id} request.
func (h *Handler) UpdateIncident(w http.ResponseWriter, r *http.Request) {
	var req UpdateIncidentRequest
	if !h.decode(w, r, &req) {
		return
	}

	inc, err := h.service.UpdateIncident(r.Context(), httputil.SessionID(r, req.SessionID), chi.URLParam(r, "id"), req.ToInput(r.Context()))
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, inc)
}

// UpdateStatus handles PUT /incidents/{id}/status request.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	inc, err := h.service.UpdateStatus(r.Context(),
		httputil.SessionID(r, req.SessionID),
		chi.URLParam(r, "id"),
		domain.IncidentStatus(req.Status),
		httputil.Author(r.Context(), req.Author),
		req.Content,
	)
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, inc)
}

// Assign handles PUT /incidents/{id}/assign request.
func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if !h.decode(w, r, &req) {
		return
	}

	inc, err := h.service.Assign(r.Context(),
		httputil.SessionID(r, req.SessionID),
		chi.URLParam(r, "id"),
		req.AssignedTo,
		httputil.Author(r.Context(), req.Author),
	)
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, inc)
}

// Resolve handles PUT /incidents/{id}/resolve request.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if !h.decode(w, r, &req) {
		return
	}

	inc, err := h.service.Resolve(r.Context(), httputil.SessionID(r, req.SessionID), chi.URLParam(r, "id"), ResolutionInput{
		ResolvedAt: parseTime(r.Context(), "resolved_at", req.ResolvedAt),
		ResolvedBy: httputil.Author(r.Context(), req.ResolvedBy),
		Summary:    req.ResolutionSummary,
		RootCause:  req.RootCause,
	})
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, inc)
}

// GetReport handles GET /incidents/{id}/report request.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Report(r.Context(), httputil.SessionID(r, ""), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, report)
}

// ListTimeline handles GET /incidents/{id}/timeline request.
func (h *Handler) ListTimeline(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ListTimeline(r.Context(), httputil.SessionID(r, ""), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, entries)
}

// AddTimelineEntry handles POST /incidents/{id}/timeline request.
func (h *Handler) AddTimelineEntry(w http.ResponseWriter, r *http.Request) {
	var req TimelineEntryRequest
	if !h.decode(w, r, &req) {
		return
	}

	entry, err := h.service.AddTimelineEntry(r.Context(), httputil.SessionID(r, req.SessionID), chi.URLParam(r, "id"), TimelineEntryInput{
		Type:      domain.TimelineEntryType(req.EntryType),
		Content:   req.Content,
		Author:    httputil.Author(r.Context(), req.Author),
		CreatedAt: parseTime(r.Context(), "created_at", req.CreatedAt),
	})
	if err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusCreated, entry)
}

// AddResponder handles POST /incidents/{id}/responders request.
func (h *Handler) AddResponder(w http.ResponseWriter, r *http.Request) {
	var req ResponderRequest
	if !h.decode(w, r, &req) {
		return
	}

	responder := &domain.Responder{PersonName: req.PersonName, Role: req.Role}
	if err := h.service.AddResponder(r.Context(), httputil.SessionID(r, req.SessionID), chi.URLParam(r, "id"), responder); err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusCreated, responder)
}

// AddAsset handles POST /incidents/{id}/assets request.
func (h *Handler) AddAsset(w http.ResponseWriter, r *http.Request) {
	var req AssetRequest
	if !h.decode(w, r, &req) {
		return
	}

	asset := &domain.Asset{
		AssetTrackerID: req.AssetTrackerID,
		AssetName:      req.AssetName,
		AssetType:      req.AssetType,
		ImpactType:     req.ImpactType,
		Notes:          req.Notes,
	}
	if err := h.service.AddAsset(r.Context(), httputil.SessionID(r, req.SessionID), chi.URLParam(r, "id"), asset); err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusCreated, asset)
}

// AddCommunication handles POST /incidents/{id}/communications request.
func (h *Handler) AddCommunication(w http.ResponseWriter, r *http.Request) {
	var req CommunicationRequest
	if !h.decode(w, r, &req) {
		return
	}

	comm := &domain.Communication{
		Channel:   req.Channel,
		Recipient: req.Recipient,
		Message:   req.Message,
		SentBy:    httputil.Author(r.Context(), req.SentBy),
	}
	if sentAt := parseTime(r.Context(), "sent_at", req.SentAt); sentAt != nil {
		comm.SentAt = *sentAt
	}
	if err := h.service.AddCommunication(r.Context(), httputil.SessionID(r, req.SessionID), chi.URLParam(r, "id"), comm); err != nil {
		h.handleServiceError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusCreated, comm)
}

func (h *Handler) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	httputil.HandleError(ctx, w, err, []httputil.ErrorMapping{
		{Match: IsValidationError, Status: http.StatusBadRequest},
		{Error: ErrIncidentNotFound, Status: http.StatusNotFound},
		{Error: ErrProblemNotFound, Status: http.StatusNotFound},
	})
}
