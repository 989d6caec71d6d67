package incidents

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter() (http.Handler, *mockRepository) {
	svc, repo, _ := newTestService()
	h := NewHandler(svc)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	h.RegisterWriteRoutes(r)
	return r, repo
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func TestHandler_CreateAndGetIncident(t *testing.T) {
	router, _ := newTestRouter()

	rec := doJSON(t, router, http.MethodPost, "/incidents", map[string]interface{}{
		"title":       "Database down",
		"severity":    "critical",
		"reported_at": "2026-03-01 10:00:00",
		"tags":        []string{"db"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		ID             string `json:"id"`
		IncidentNumber string `json:"incident_number"`
		Severity       string `json:"severity"`
		Status         string `json:"status"`
		ReportedAt     string `json:"reported_at"`
	}
	decodeData(t, rec, &created)
	assert.Equal(t, "INC-2026-0001", created.IncidentNumber)
	assert.Equal(t, "critical", created.Severity)
	assert.Equal(t, "open", created.Status)
	assert.Equal(t, "2026-03-01T10:00:00Z", created.ReportedAt)

	rec = doJSON(t, router, http.MethodGet, "/incidents/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var detail struct {
		ID       string `json:"id"`
		Timeline []struct {
			EntryType string `json:"entry_type"`
			Content   string `json:"content"`
		} `json:"timeline"`
	}
	decodeData(t, rec, &detail)
	assert.Equal(t, created.ID, detail.ID)
	require.Len(t, detail.Timeline, 1)
	assert.Equal(t, "update", detail.Timeline[0].EntryType)
	assert.Equal(t, "Incident created: Database down", detail.Timeline[0].Content)
}

func TestHandler_CreateIncident_Validation(t *testing.T) {
	router, _ := newTestRouter()

	tests := []struct {
		name string
		body interface{}
	}{
		{"missing title", map[string]string{"description": "x"}},
		{"bad severity", map[string]string{"title": "x", "severity": "urgent"}},
		{"bad category", map[string]string{"title": "x", "category": "weather"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/incidents", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandler_InvalidJSON(t *testing.T) {
	router, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/incidents", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid json")
}

func TestHandler_NotFound(t *testing.T) {
	router, _ := newTestRouter()

	rec := doJSON(t, router, http.MethodGet, "/incidents/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodPut, "/incidents/missing/status", map[string]string{"status": "resolved"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_UpdateIncident_ProblemID(t *testing.T) {
	router, _ := newTestRouter()

	rec := doJSON(t, router, http.MethodPost, "/incidents", map[string]string{"title": "disk full"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		ID string `json:"id"`
	}
	decodeData(t, rec, &created)

	tests := []struct {
		name      string
		problemID string
		want      int
	}{
		{"not a uuid", "prb-1", http.StatusBadRequest},
		{"problem of another session", foreignProblemID, http.StatusNotFound},
		{"unknown problem", "5a1f0e3b-9c2d-4e8f-a7b6-3d4c5e6f7a8b", http.StatusNotFound},
		{"same session", storageProblemID, http.StatusOK},
		{"unlink", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPut, "/incidents/"+created.ID, map[string]string{"problem_id": tt.problemID})
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestHandler_SessionFromHeader(t *testing.T) {
	router, _ := newTestRouter()

	rec := doJSON(t, router, http.MethodPost, "/incidents?session_id=alpha", map[string]string{"title": "scoped"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID        string `json:"id"`
		SessionID string `json:"session_id"`
	}
	decodeData(t, rec, &created)
	assert.Equal(t, "alpha", created.SessionID)

	req := httptest.NewRequest(http.MethodGet, "/incidents/"+created.ID, nil)
	req.Header.Set("X-Session-ID", "alpha")
	hrec := httptest.NewRecorder()
	router.ServeHTTP(hrec, req)
	assert.Equal(t, http.StatusOK, hrec.Code)

	rec = doJSON(t, router, http.MethodGet, "/incidents/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_StatusAndResolve(t *testing.T) {
	router, _ := newTestRouter()

	rec := doJSON(t, router, http.MethodPost, "/incidents", map[string]string{"title": "slow api"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID string `json:"id"`
	}
	decodeData(t, rec, &created)

	rec = doJSON(t, router, http.MethodPut, "/incidents/"+created.ID+"/status", map[string]string{"status": "investigating"})
	require.Equal(t, http.StatusOK, rec.Code)
	var inc struct {
		Status         string  `json:"status"`
		AcknowledgedAt *string `json:"acknowledged_at"`
		ResolvedAt     *string `json:"resolved_at"`
		ResolvedBy     string  `json:"resolved_by"`
	}
	decodeData(t, rec, &inc)
	assert.Equal(t, "investigating", inc.Status)
	assert.NotNil(t, inc.AcknowledgedAt)

	rec = doJSON(t, router, http.MethodPut, "/incidents/"+created.ID+"/status", map[string]string{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPut, "/incidents/"+created.ID+"/resolve", map[string]string{
		"resolved_by":        "alice",
		"resolution_summary": "restarted",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &inc)
	assert.Equal(t, "resolved", inc.Status)
	assert.Equal(t, "alice", inc.ResolvedBy)
	assert.NotNil(t, inc.ResolvedAt)

	rec = doJSON(t, router, http.MethodGet, "/incidents/"+created.ID+"/timeline", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var timeline []struct {
		EntryType string `json:"entry_type"`
	}
	decodeData(t, rec, &timeline)
	require.Len(t, timeline, 3)
	assert.Equal(t, "resolution", timeline[2].EntryType)
}

func TestHandler_ListIncidents(t *testing.T) {
	router, _ := newTestRouter()

	for _, title := range []string{"one", "two", "three"} {
		rec := doJSON(t, router, http.MethodPost, "/incidents", map[string]string{"title": title})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, router, http.MethodGet, "/incidents?per_page=2&page=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Incidents []json.RawMessage `json:"incidents"`
		Total     int               `json:"total"`
		PerPage   int               `json:"per_page"`
	}
	decodeData(t, rec, &page)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.PerPage)
	assert.Len(t, page.Incidents, 2)

	rec = doJSON(t, router, http.MethodGet, "/incidents?status=unknown", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/incidents?page=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_AddRelatedRecords(t *testing.T) {
	router, _ := newTestRouter()

	rec := doJSON(t, router, http.MethodPost, "/incidents", map[string]string{"title": "vpn"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID string `json:"id"`
	}
	decodeData(t, rec, &created)
	base := "/incidents/" + created.ID

	rec = doJSON(t, router, http.MethodPost, base+"/responders", map[string]string{"person_name": "bob", "role": "lead"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, base+"/assets", map[string]string{"asset_name": "vpn-gw-1"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, base+"/assets", map[string]string{"notes": "no name"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, base+"/communications", map[string]string{
		"channel":   "email",
		"recipient": "staff",
		"message":   "VPN is down",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, base+"/timeline", map[string]string{
		"content":    "vendor contacted",
		"created_at": "not a date",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		Timeline       []json.RawMessage `json:"timeline"`
		Responders     []json.RawMessage `json:"responders"`
		AffectedAssets []json.RawMessage `json:"affected_assets"`
		Communications []json.RawMessage `json:"communications"`
	}
	decodeData(t, rec, &detail)
	assert.Len(t, detail.Responders, 1)
	assert.Len(t, detail.AffectedAssets, 1)
	assert.Len(t, detail.Communications, 1)
	assert.Len(t, detail.Timeline, 3)
}
