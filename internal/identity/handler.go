package identity

import (
	"net/http"

	"github.com/bissquit/incident-tracker/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for the identity module.
type Handler struct {
	service   *Service
	validator *validator.Validate
	limiter   *httputil.RateLimiter
}

// NewHandler creates a new identity handler. Logins are throttled per client by limiter.
func NewHandler(service *Service, limiter *httputil.RateLimiter) *Handler {
	return &Handler{
		service:   service,
		validator: httputil.NewValidator(),
		limiter:   limiter,
	}
}

// RegisterRoutes registers identity routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(h.limiter.Middleware).Post("/auth/login", h.Login)
}

// RegisterProtectedRoutes registers routes that require authentication.
func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/me", h.Me)
}

// LoginRequest represents login request body.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httputil.Decode(w, r, h.validator, &req) {
		return
	}

	token, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
			{Error: ErrInvalidCredentials, Status: http.StatusUnauthorized},
		})
		return
	}

	httputil.Success(w, http.StatusOK, token)
}

// Me handles GET /me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	if userID == "" {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.service.GetUserByID(r.Context(), userID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
			{Error: ErrUserNotFound, Status: http.StatusNotFound},
		})
		return
	}

	httputil.Success(w, http.StatusOK, user)
}
