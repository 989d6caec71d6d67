package identity

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bissquit/incident-tracker/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, perMinute, burst int) *chi.Mux {
	t.Helper()
	svc := newTestService(t)
	h := NewHandler(svc, httputil.NewRateLimiter(perMinute, burst))

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	r.Group(func(r chi.Router) {
		r.Use(httputil.AuthMiddleware(svc))
		h.RegisterProtectedRoutes(r)
	})
	return r
}

func login(r http.Handler, username, password string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	req.RemoteAddr = "10.0.0.1:5000"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandler_LoginAndMe(t *testing.T) {
	r := newTestRouter(t, 0, 1)

	rec := login(r, "oncall", "pager")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data Token `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.Data.AccessToken)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Data.AccessToken)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"oncall"`)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestHandler_Login_Errors(t *testing.T) {
	r := newTestRouter(t, 0, 1)

	rec := login(r, "oncall", "nope")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = login(r, "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_Login_RateLimited(t *testing.T) {
	r := newTestRouter(t, 1, 2)

	assert.Equal(t, http.StatusUnauthorized, login(r, "oncall", "bad").Code)
	assert.Equal(t, http.StatusUnauthorized, login(r, "oncall", "bad").Code)

	rec := login(r, "oncall", "pager")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}
