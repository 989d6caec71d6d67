package httputil

import (
	"net/http"
	"strings"
)

// SessionHeader carries the session id when it is not in the query string.
const SessionHeader = "X-Session-ID"

// SessionID returns the session id from the session_id query parameter or
// the X-Session-ID header, falling back to body. Empty means the caller
// should use the default session.
func SessionID(r *http.Request, body string) string {
	if v := strings.TrimSpace(r.URL.Query().Get("session_id")); v != "" {
		return v
	}
	if v := strings.TrimSpace(r.Header.Get(SessionHeader)); v != "" {
		return v
	}
	return strings.TrimSpace(body)
}
