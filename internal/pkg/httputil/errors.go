package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/bissquit/incident-tracker/internal/pkg/ctxlog"
)

// ErrorMapping maps a class of service errors to a response. A mapping
// matches when errors.Is(err, Error) holds or, if set, Match(err) is true.
type ErrorMapping struct {
	Error   error
	Match   func(error) bool
	Status  int
	Message string // defaults to err.Error()
}

func (m ErrorMapping) matches(err error) bool {
	if m.Match != nil && m.Match(err) {
		return true
	}
	return m.Error != nil && errors.Is(err, m.Error)
}

// HandleError writes the first matching mapping. Unmatched errors are logged
// and answered with 500; a request that ran past its deadline gets 503.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	for _, m := range mappings {
		if !m.matches(err) {
			continue
		}
		msg := m.Message
		if msg == "" {
			msg = err.Error()
		}
		Error(w, m.Status, msg)
		return
	}

	logger := ctxlog.FromContext(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("request timed out", "error", err)
		Error(w, http.StatusServiceUnavailable, "request timed out")
		return
	}
	logger.Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, "internal error")
}
