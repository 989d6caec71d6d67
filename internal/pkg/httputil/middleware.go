package httputil

import (
	"context"
	"net/http"
	"strings"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/pkg/ctxlog"
)

// CORSMiddleware answers preflight requests and sets CORS headers for the
// allowed origins. "*" allows any origin. Credentials travel in the
// Authorization header, so cookies are never allowed.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAny := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAny = true
		}
		allowed[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowAny || allowed[origin]) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Expose-Headers", "Retry-After, X-Request-Id")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h := w.Header()
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+SessionHeader)
				h.Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type principalKey struct{}

type principal struct {
	userID string
	role   domain.Role
}

// TokenValidator resolves a bearer token to a user and role.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (userID string, role domain.Role, err error)
}

// WithPrincipal stores the authenticated user in ctx.
func WithPrincipal(ctx context.Context, userID string, role domain.Role) context.Context {
	return context.WithValue(ctx, principalKey{}, principal{userID: userID, role: role})
}

// AuthMiddleware rejects requests without a valid bearer token.
func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
				Error(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			userID, role, err := validator.ValidateToken(r.Context(), strings.TrimSpace(token))
			if err != nil {
				Error(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := WithPrincipal(r.Context(), userID, role)
			ctx = ctxlog.With(ctx, "user_id", userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects users below minRole. It must run after AuthMiddleware.
func RequireRole(minRole domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := r.Context().Value(principalKey{}).(principal)
			if !ok {
				Error(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !p.role.HasPermission(minRole) {
				Error(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetUserID returns the authenticated user, or "" on open routes.
func GetUserID(ctx context.Context) string {
	p, _ := ctx.Value(principalKey{}).(principal)
	return p.userID
}

// GetRole returns the authenticated user's role, or "".
func GetRole(ctx context.Context) domain.Role {
	p, _ := ctx.Value(principalKey{}).(principal)
	return p.role
}

// Author picks the author recorded on a write: the explicit value when
// given, otherwise the authenticated user.
func Author(ctx context.Context, explicit string) string {
	if strings.TrimSpace(explicit) != "" {
		return explicit
	}
	return GetUserID(ctx)
}
