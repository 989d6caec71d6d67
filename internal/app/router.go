package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bissquit/incident-tracker/api/openapi"
	"github.com/bissquit/incident-tracker/internal/analytics"
	"github.com/bissquit/incident-tracker/internal/config"
	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/identity"
	"github.com/bissquit/incident-tracker/internal/incidents"
	"github.com/bissquit/incident-tracker/internal/pkg/ctxlog"
	"github.com/bissquit/incident-tracker/internal/pkg/httputil"
	"github.com/bissquit/incident-tracker/internal/problems"
	"github.com/bissquit/incident-tracker/internal/sla"
	"github.com/bissquit/incident-tracker/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const requestTimeout = 60 * time.Second

const docsPage = `<!DOCTYPE html>
<html>
<head>
    <title>Incident Tracker API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        SwaggerUIBundle({ url: "/api/openapi.yaml", dom_id: "#swagger-ui" });
    </script>
</body>
</html>`

func (a *App) setupRouter() (*chi.Mux, *analytics.Reporter, error) {
	r := chi.NewRouter()

	// metrics first so the histogram covers the whole chain
	r.Use(httputil.MetricsMiddleware)
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)
	r.Get("/api/openapi.yaml", specHandler)
	r.Get("/docs", docsHandler)

	services := NewServices(a.db)

	incidentsHandler := incidents.NewHandler(services.Incidents)
	problemsHandler := problems.NewHandler(services.Problems)
	slaHandler := sla.NewHandler(services.SLA)
	analyticsHandler := analytics.NewHandler(services.Analytics)

	var (
		identityHandler *identity.Handler
		identityService *identity.Service
	)
	if a.config.Auth.Required {
		var err error
		identityService, err = identity.NewService(identityConfig(a.config.Auth))
		if err != nil {
			return nil, nil, fmt.Errorf("create identity service: %w", err)
		}
		limiter := httputil.NewRateLimiter(a.config.Auth.LoginRatePerMinute, a.config.Auth.LoginBurst)
		identityHandler = identity.NewHandler(identityService, limiter)
	} else {
		a.logger.Warn("authentication is disabled, write routes accept anonymous requests")
	}

	r.Route("/api/v1", func(r chi.Router) {
		incidentsHandler.RegisterRoutes(r)
		problemsHandler.RegisterRoutes(r)
		slaHandler.RegisterRoutes(r)
		analyticsHandler.RegisterRoutes(r)

		if identityHandler == nil {
			incidentsHandler.RegisterWriteRoutes(r)
			problemsHandler.RegisterWriteRoutes(r)
			slaHandler.RegisterAdminRoutes(r)
			return
		}

		identityHandler.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(identityService))
			identityHandler.RegisterProtectedRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(httputil.RequireRole(domain.RoleResponder))
				incidentsHandler.RegisterWriteRoutes(r)
				problemsHandler.RegisterWriteRoutes(r)
			})

			r.Group(func(r chi.Router) {
				r.Use(httputil.RequireRole(domain.RoleAdmin))
				slaHandler.RegisterAdminRoutes(r)
			})
		})
	})

	var reporter *analytics.Reporter
	if a.config.Reporter.Enabled {
		reporter = analytics.NewReporter(services.Analytics, analytics.ReporterConfig{
			Schedule: a.config.Reporter.Schedule,
			Sessions: a.config.Reporter.Sessions,
		})
	}

	return r, reporter, nil
}

func identityConfig(cfg config.AuthConfig) identity.Config {
	users := make([]identity.UserConfig, 0, len(cfg.Users))
	for _, u := range cfg.Users {
		users = append(users, identity.UserConfig{
			Username:     u.Username,
			FullName:     u.FullName,
			Role:         domain.Role(u.Role),
			Password:     u.Password,
			PasswordHash: u.PasswordHash,
		})
	}
	return identity.Config{
		SecretKey:     cfg.JWTSecret,
		TokenDuration: cfg.TokenDuration,
		Users:         users,
	}
}

func specHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/x-yaml")
	_, _ = w.Write(openapi.Spec)
}

func docsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(docsPage))
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

// readyzHandler reports ready once the database answers a ping.
func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", slog.Any("error", err))
		httputil.Text(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, version.Info())
}
