package httputil

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/bissquit/incident-tracker/internal/pkg/ctxlog"
	"github.com/go-chi/chi/v5/middleware"
)

// quietPaths are polled constantly and only logged on failure.
var quietPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
}

// RequestLoggerMiddleware puts a logger carrying request_id and session_id
// into the request context and logs one line per request. 5xx responses
// log at error level, 4xx at warn.
func RequestLoggerMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			logger := base.With("request_id", middleware.GetReqID(r.Context()))
			if session := SessionID(r, ""); session != "" {
				logger = logger.With("session_id", session)
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctxlog.WithLogger(r.Context(), logger)))

			status := ww.Status()
			level := slog.LevelInfo
			switch {
			case status >= http.StatusInternalServerError:
				level = slog.LevelError
			case status >= http.StatusBadRequest:
				level = slog.LevelWarn
			case quietPaths[r.URL.Path]:
				return
			}

			logger.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}
