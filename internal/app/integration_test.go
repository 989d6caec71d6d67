//go:build integration

package app_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/bissquit/incident-tracker/api/openapi"
	"github.com/bissquit/incident-tracker/internal/app"
	"github.com/bissquit/incident-tracker/internal/config"
	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/seed"
	"github.com/bissquit/incident-tracker/internal/sequence"
	sequencepostgres "github.com/bissquit/incident-tracker/internal/sequence/postgres"
	"github.com/bissquit/incident-tracker/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testApp       *app.App
	testServer    *httptest.Server
	testValidator *testutil.OpenAPIValidator
)

var incidentNumberRe = regexp.MustCompile(`^INC-\d{4}-\d{4,}$`)

func TestMain(m *testing.M) {
	ctx := context.Background()

	pgContainer, err := testutil.NewPostgresContainer(ctx)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	cfg.Server.MetricsPort = "0"
	cfg.Database.URL = pgContainer.ConnectionString
	cfg.Database.MaxOpenConns = 10
	cfg.Database.ConnectAttempts = 3
	cfg.Log = config.LogConfig{Level: "error", Format: "text"}
	cfg.Reporter.Enabled = false
	cfg.Auth = config.AuthConfig{
		Required:           true,
		JWTSecret:          "test-secret-key",
		TokenDuration:      15 * time.Minute,
		LoginRatePerMinute: 1000,
		LoginBurst:         100,
		Users: []config.UserConfig{
			{Username: "admin", Role: "admin", Password: "admin123"},
			{Username: "oncall", Role: "responder", Password: "pager"},
			{Username: "watcher", Role: "viewer", Password: "viewer"},
		},
	}

	testApp, err = app.New(cfg)
	if err != nil {
		log.Fatalf("create app: %v", err)
	}

	testServer = httptest.NewServer(testApp.Router())

	testValidator, err = testutil.LoadOpenAPIValidator(openapi.Spec)
	if err != nil {
		log.Fatalf("load OpenAPI validator: %v", err)
	}

	code := m.Run()

	testServer.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := testApp.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown app: %v", err)
	}
	cancel()

	if err := pgContainer.Terminate(ctx); err != nil {
		log.Printf("terminate postgres: %v", err)
	}

	os.Exit(code)
}

// newTestClient returns a validating client bound to a fresh session.
func newTestClient(t *testing.T) *testutil.Client {
	t.Helper()
	return testutil.NewClient(t, testServer.URL, testValidator).InSession(uuid.NewString())
}

type envelope[T any] struct {
	Data T `json:"data"`
}

func decode[T any](t *testing.T, resp *http.Response, want int) T {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("unexpected status %d (want %d): %s", resp.StatusCode, want, testutil.ReadBody(t, resp))
	}
	var body envelope[T]
	testutil.DecodeJSON(t, resp, &body)
	return body.Data
}

func createIncident(t *testing.T, client *testutil.Client, payload map[string]interface{}) domain.Incident {
	t.Helper()
	resp, err := client.POST("/api/v1/incidents", payload)
	require.NoError(t, err)
	return decode[domain.Incident](t, resp, http.StatusCreated)
}

func TestIncidentLifecycle(t *testing.T) {
	client := newTestClient(t)
	client.LoginAs(t, "oncall", "pager")

	inc := createIncident(t, client, map[string]interface{}{
		"title":       "Checkout latency",
		"severity":    "high",
		"category":    "degradation",
		"reported_at": "2026-03-01T10:00:00Z",
		"detected_at": "2026-03-01 09:55:00",
		"tags":        []string{"payments"},
	})
	assert.Regexp(t, incidentNumberRe, inc.IncidentNumber)
	assert.Equal(t, domain.IncidentStatusOpen, inc.Status)
	require.NotNil(t, inc.DetectedAt)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 55, 0, 0, time.UTC), inc.DetectedAt.UTC())

	resp, err := client.PUT("/api/v1/incidents/"+inc.ID+"/status", map[string]string{
		"status": "investigating",
		"author": "oncall",
	})
	require.NoError(t, err)
	updated := decode[domain.Incident](t, resp, http.StatusOK)
	assert.Equal(t, domain.IncidentStatusInvestigating, updated.Status)
	assert.NotNil(t, updated.AcknowledgedAt)

	resp, err = client.PUT("/api/v1/incidents/"+inc.ID+"/assign", map[string]string{"assigned_to": "dana"})
	require.NoError(t, err)
	updated = decode[domain.Incident](t, resp, http.StatusOK)
	assert.Equal(t, "dana", updated.AssignedTo)

	resp, err = client.PUT("/api/v1/incidents/"+inc.ID+"/resolve", map[string]string{
		"resolved_at":        "2026-03-01T12:00:00Z",
		"resolved_by":        "dana",
		"resolution_summary": "rolled back",
	})
	require.NoError(t, err)
	updated = decode[domain.Incident](t, resp, http.StatusOK)
	assert.Equal(t, domain.IncidentStatusResolved, updated.Status)

	resp, err = client.GET("/api/v1/incidents/" + inc.ID + "/timeline")
	require.NoError(t, err)
	timeline := decode[[]domain.TimelineEntry](t, resp, http.StatusOK)
	require.Len(t, timeline, 3)
	assert.Equal(t, domain.TimelineEntryStatusChange, timeline[0].Type)
	assert.Equal(t, domain.TimelineEntryAssignment, timeline[1].Type)
	assert.Equal(t, domain.TimelineEntryResolution, timeline[2].Type)

	resp, err = client.GET("/api/v1/incidents/" + inc.ID + "/report")
	require.NoError(t, err)
	report := decode[struct {
		DurationHours *float64 `json:"duration_hours"`
	}](t, resp, http.StatusOK)
	require.NotNil(t, report.DurationHours)
	assert.InDelta(t, 2.0, *report.DurationHours, 0.001)

	resp, err = client.GET("/api/v1/metrics/summary")
	require.NoError(t, err)
	summary := decode[struct {
		MTTRHours float64 `json:"mttr_hours"`
	}](t, resp, http.StatusOK)
	assert.InDelta(t, 2.0, summary.MTTRHours, 0.001)
}

func TestIncidentRelatedRecords(t *testing.T) {
	client := newTestClient(t)
	client.LoginAs(t, "oncall", "pager")

	inc := createIncident(t, client, map[string]interface{}{"title": "VPN down"})

	resp, err := client.POST("/api/v1/incidents/"+inc.ID+"/responders", map[string]string{"person_name": "Ana", "role": "lead"})
	require.NoError(t, err)
	decode[domain.Responder](t, resp, http.StatusCreated)

	resp, err = client.POST("/api/v1/incidents/"+inc.ID+"/assets", map[string]string{"asset_name": "vpn-gw-1", "asset_type": "appliance"})
	require.NoError(t, err)
	decode[domain.Asset](t, resp, http.StatusCreated)

	resp, err = client.POST("/api/v1/incidents/"+inc.ID+"/communications", map[string]string{"channel": "email", "message": "investigating"})
	require.NoError(t, err)
	decode[domain.Communication](t, resp, http.StatusCreated)

	resp, err = client.GET("/api/v1/incidents/" + inc.ID)
	require.NoError(t, err)
	detail := decode[struct {
		Responders     []domain.Responder     `json:"responders"`
		AffectedAssets []domain.Asset         `json:"affected_assets"`
		Communications []domain.Communication `json:"communications"`
	}](t, resp, http.StatusOK)
	assert.Len(t, detail.Responders, 1)
	assert.Len(t, detail.AffectedAssets, 1)
	assert.Len(t, detail.Communications, 1)
}

func TestIncidentNumbersAreUniqueUnderConcurrency(t *testing.T) {
	client := newTestClient(t)
	client.LoginAs(t, "oncall", "pager")

	const workers = 20
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		numbers = make(map[string]struct{}, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := client.WithoutValidation().POST("/api/v1/incidents", map[string]string{
				"title": fmt.Sprintf("burst %d", i),
			})
			if !assert.NoError(t, err) {
				return
			}
			defer func() { _ = resp.Body.Close() }()
			if !assert.Equal(t, http.StatusCreated, resp.StatusCode) {
				return
			}
			var body envelope[domain.Incident]
			if !assert.NoError(t, json.NewDecoder(resp.Body).Decode(&body)) {
				return
			}
			mu.Lock()
			numbers[body.Data.IncidentNumber] = struct{}{}
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Len(t, numbers, workers)
}

// A year no other test writes to, so the counter starts from zero.
func TestIncidentNumbersAreGapFreeUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	pinned := time.Date(2099, 6, 1, 0, 0, 0, 0, time.UTC)
	alloc := sequence.NewAllocator(sequencepostgres.NewCounter()).WithClock(func() time.Time { return pinned })

	_, err := testApp.DB().Exec(ctx, `DELETE FROM counters WHERE year = $1`, pinned.Year())
	require.NoError(t, err)

	const workers = 20
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		numbers = make(map[string]struct{}, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := testApp.DB().Begin(ctx)
			if !assert.NoError(t, err) {
				return
			}
			defer func() { _ = tx.Rollback(ctx) }()

			number, err := alloc.AllocateIncidentNumberTx(ctx, tx)
			if !assert.NoError(t, err) || !assert.NoError(t, tx.Commit(ctx)) {
				return
			}
			mu.Lock()
			numbers[number] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	want := make(map[string]struct{}, workers)
	for n := 1; n <= workers; n++ {
		want[sequence.Format(sequence.KindIncident, pinned.Year(), n)] = struct{}{}
	}
	assert.Equal(t, want, numbers)
}

func TestProblemLinking(t *testing.T) {
	client := newTestClient(t)
	client.LoginAs(t, "oncall", "pager")

	first := createIncident(t, client, map[string]interface{}{"title": "disk full"})
	second := createIncident(t, client, map[string]interface{}{"title": "disk full again"})

	resp, err := client.POST("/api/v1/problems", map[string]string{"title": "log rotation", "priority": "high"})
	require.NoError(t, err)
	problem := decode[domain.Problem](t, resp, http.StatusCreated)
	assert.Equal(t, domain.FixStatusOpen, problem.FixStatus)

	for _, inc := range []domain.Incident{first, second, first} {
		resp, err = client.POST("/api/v1/problems/"+problem.ID+"/link/"+inc.ID, nil)
		require.NoError(t, err)
		decode[struct{}](t, resp, http.StatusOK)
	}

	resp, err = client.GET("/api/v1/problems/" + problem.ID)
	require.NoError(t, err)
	detail := decode[struct {
		IncidentCount int               `json:"incident_count"`
		Incidents     []domain.Incident `json:"incidents"`
	}](t, resp, http.StatusOK)
	assert.Equal(t, 2, detail.IncidentCount)
	assert.Len(t, detail.Incidents, 2)

	resp, err = client.WithoutValidation().POST("/api/v1/problems/"+problem.ID+"/link/"+uuid.NewString(), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestSessionIsolation(t *testing.T) {
	client := newTestClient(t)
	client.LoginAs(t, "oncall", "pager")
	other := client.InSession(uuid.NewString())

	inc := createIncident(t, client, map[string]interface{}{"title": "private"})

	resp, err := other.WithoutValidation().GET("/api/v1/incidents/" + inc.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = other.GET("/api/v1/incidents")
	require.NoError(t, err)
	page := decode[struct {
		Total int `json:"total"`
	}](t, resp, http.StatusOK)
	assert.Zero(t, page.Total)
}

func TestWriteAuthorization(t *testing.T) {
	anonymous := newTestClient(t).WithoutValidation()

	resp, err := anonymous.POST("/api/v1/incidents", map[string]string{"title": "x"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = anonymous.GET("/api/v1/incidents")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	viewer := newTestClient(t)
	viewer.LoginAs(t, "watcher", "viewer")
	resp, err = viewer.WithoutValidation().POST("/api/v1/incidents", map[string]string{"title": "x"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	_ = resp.Body.Close()

	responder := newTestClient(t)
	responder.LoginAs(t, "oncall", "pager")
	resp, err = responder.WithoutValidation().PUT("/api/v1/sla/critical", map[string]int{"resolution_target_minutes": 60})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	_ = resp.Body.Close()

	admin := newTestClient(t)
	admin.LoginAs(t, "admin", "admin123")
	resp, err = admin.PUT("/api/v1/sla/critical", map[string]int{"response_target_minutes": 15, "resolution_target_minutes": 60})
	require.NoError(t, err)
	target := decode[domain.SLATarget](t, resp, http.StatusOK)
	require.NotNil(t, target.ResolutionTargetMinutes)
	assert.Equal(t, 60, *target.ResolutionTargetMinutes)

	resp, err = admin.GET("/api/v1/me")
	require.NoError(t, err)
	me := decode[domain.User](t, resp, http.StatusOK)
	assert.Equal(t, domain.RoleAdmin, me.Role)
}

func TestSeededDashboard(t *testing.T) {
	client := newTestClient(t)

	ds, err := seed.Demo()
	require.NoError(t, err)

	svc := app.NewServices(testApp.DB())
	seeder := seed.NewSeeder(svc.IncidentsRepo, svc.ProblemsRepo, svc.SLARepo, svc.Allocator)

	res, err := seeder.Seed(context.Background(), client.SessionID, ds)
	require.NoError(t, err)
	assert.Equal(t, len(ds.Incidents), res.Incidents)

	_, err = seeder.Seed(context.Background(), client.SessionID, ds)
	assert.ErrorIs(t, err, seed.ErrAlreadySeeded)

	resp, err := client.GET("/api/v1/dashboard")
	require.NoError(t, err)
	dashboard := decode[struct {
		ActiveIncidents     int               `json:"active_incidents"`
		OpenIncidents       []domain.Incident `json:"open_incidents"`
		TrendingProblems    []domain.Problem  `json:"trending_problems"`
		IncidentsBySeverity []struct {
			Value int `json:"value"`
		} `json:"incidents_by_severity"`
	}](t, resp, http.StatusOK)
	assert.Equal(t, len(dashboard.OpenIncidents), dashboard.ActiveIncidents)
	assert.NotEmpty(t, dashboard.TrendingProblems)

	total := 0
	for _, entry := range dashboard.IncidentsBySeverity {
		total += entry.Value
	}
	assert.Equal(t, res.Incidents, total)

	resp, err = client.GET("/api/v1/sla/compliance")
	require.NoError(t, err)
	compliance := decode[struct {
		PerSeverity []struct {
			Severity domain.Severity `json:"severity"`
		} `json:"per_severity"`
	}](t, resp, http.StatusOK)
	assert.Len(t, compliance.PerSeverity, res.Targets)
}
