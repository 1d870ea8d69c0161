package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/formsvc/internal/config"
	"github.com/JonMunkholm/formsvc/internal/core"
	"github.com/JonMunkholm/formsvc/internal/database/memstore"
	"github.com/JonMunkholm/formsvc/internal/metrics"
	"github.com/JonMunkholm/formsvc/internal/web"
	"github.com/JonMunkholm/formsvc/internal/web/middleware"
)

const (
	testToken = "test-admin-token"
	fixedNow  = int64(1700000000)
)

type testEnv struct {
	server  *web.Server
	limiter *core.ExportLimiter
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	cfg := &config.Config{}
	cfg.Security.AdminToken = testToken
	cfg.Server.RequestTimeout = 5 * time.Second
	for _, fn := range mutate {
		fn(cfg)
	}

	limiter := core.NewExportLimiter(1, 20*time.Millisecond)
	svc := core.NewService(memstore.New(), core.Options{
		Clock:         core.FixedClock(fixedNow),
		ExportLimiter: limiter,
	})
	return &testEnv{
		server:  web.NewServer(svc, cfg, metrics.New()),
		limiter: limiter,
	}
}

// do sends a request through the router. body is JSON-encoded unless it is
// nil or already a string.
func (e *testEnv) do(t *testing.T, method, path string, body any, admin bool) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.1:1234"
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		req.Header.Set(middleware.AdminTokenHeader, testToken)
	}
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

var intakeFields = map[string]any{
	"fields": []map[string]any{
		{"key": "name", "label": "Name", "field_type": "text", "required": true},
		{"key": "email", "label": "Email", "field_type": "email", "required": true},
		{"key": "priority", "label": "Priority", "field_type": "select", "required": true, "options": []string{"low", "normal", "high"}},
	},
}

// publishIntake creates and publishes "Customer Intake" over HTTP.
func (e *testEnv) publishIntake(t *testing.T) core.FormDetail {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/api/admin/forms", map[string]string{"title": "Customer Intake"}, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	form := decode[core.FormDetail](t, rec)

	rec = e.do(t, http.MethodPut, fmt.Sprintf("/api/admin/forms/%d/fields", form.ID), intakeFields, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodPost, fmt.Sprintf("/api/admin/forms/%d/publish", form.ID), nil, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[core.FormDetail](t, rec)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(web.RequestIDHeader))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(web.RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get(web.RequestIDHeader))
}

func TestAdminRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/admin/forms", nil, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decode[web.ErrorResponse](t, rec)
	assert.Equal(t, "AUTH001", body.Code)

	rec = env.do(t, http.MethodGet, "/api/admin/forms?token="+testToken, nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFormLifecycle(t *testing.T) {
	env := newTestEnv(t)
	form := env.publishIntake(t)

	assert.Equal(t, "customer-intake", form.Slug)
	assert.Equal(t, core.StatusPublished, form.Status)
	require.Len(t, form.Fields, 3)
	assert.Equal(t, []string{"low", "normal", "high"}, form.Fields[2].Options)

	// Second form with the same title gets a suffixed slug.
	rec := env.do(t, http.MethodPost, "/api/admin/forms", map[string]string{"title": "Customer Intake"}, true)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "customer-intake-2", decode[core.FormDetail](t, rec).Slug)

	// Renaming onto a taken slug conflicts.
	rec = env.do(t, http.MethodPut, fmt.Sprintf("/api/admin/forms/%d", form.ID),
		map[string]string{"title": "Intake", "slug": "customer-intake-2"}, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slug already exists", decode[web.ErrorResponse](t, rec).Message)

	// Published versions cannot be edited.
	rec = env.do(t, http.MethodPut, fmt.Sprintf("/api/admin/forms/%d/fields", form.ID), intakeFields, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "published form version is immutable", decode[web.ErrorResponse](t, rec).Message)

	rec = env.do(t, http.MethodGet, "/api/admin/forms?page=1&page_size=1", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[core.Page[core.FormSummary]](t, rec)
	assert.Equal(t, 2, page.Total)
	assert.True(t, page.HasNext)
	require.Len(t, page.Items, 1)
	assert.Equal(t, form.ID, page.Items[0].ID)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/admin/forms/%d", form.ID), nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, form.Slug, decode[core.FormDetail](t, rec).Slug)

	rec = env.do(t, http.MethodDelete, fmt.Sprintf("/api/admin/forms/%d", form.ID), nil, true)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/admin/forms/%d", form.ID), nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decode[web.ErrorResponse](t, rec)
	assert.Equal(t, "NOT_FOUND", body.Code)
	assert.Equal(t, "not_found", body.Kind)
}

func TestCreateForm_Validation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/admin/forms", map[string]string{"title": "  "}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[web.ErrorResponse](t, rec)
	assert.Equal(t, "title is required", body.Message)
	assert.Equal(t, "title is required", body.Error)
	assert.Equal(t, "VALIDATION", body.Code)
	assert.Equal(t, "validation", body.Kind)

	rec = env.do(t, http.MethodPost, "/api/admin/forms", "{not json", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid JSON body", decode[web.ErrorResponse](t, rec).Message)
}

func TestBadParams(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/admin/forms?page_size=abc", nil, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "page_size must be an integer", decode[web.ErrorResponse](t, rec).Message)

	rec = env.do(t, http.MethodGet, "/api/admin/forms/abc", nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/no/such/route", nil, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode[web.ErrorResponse](t, rec).Code)
}

func TestPublicForm(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/admin/forms", map[string]string{"title": "Draft Only"}, true)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/f/draft-only", nil, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "published form not found", decode[web.ErrorResponse](t, rec).Message)

	form := env.publishIntake(t)
	rec = env.do(t, http.MethodGet, "/api/f/"+form.Slug, nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[core.FormDetail](t, rec)
	assert.Equal(t, form.ID, got.ID)
	assert.Len(t, got.Fields, 3)
}

func TestSubmitAndReadBack(t *testing.T) {
	env := newTestEnv(t)
	form := env.publishIntake(t)
	submitPath := "/api/f/" + form.Slug + "/submit"

	rec := env.do(t, http.MethodPost, submitPath, map[string]any{
		"values": map[string]string{"name": "Ada", "email": "ada@example.com", "priority": "high", "extra": "ignored"},
	}, false)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[core.SubmissionSummary](t, rec)
	assert.EqualValues(t, 1, first.SubmissionSeq)
	assert.Equal(t, fixedNow, first.CreatedAt)

	rec = env.do(t, http.MethodPost, submitPath, map[string]any{
		"values": map[string]string{"name": "Bob", "email": "not-an-email", "priority": "low"},
	}, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "field 'Email' must be a valid email", decode[web.ErrorResponse](t, rec).Message)

	rec = env.do(t, http.MethodPost, submitPath, map[string]any{
		"values": map[string]string{"name": "Bob", "email": "bob@example.com", "priority": "low"},
	}, false)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.EqualValues(t, 2, decode[core.SubmissionSummary](t, rec).SubmissionSeq)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/admin/forms/%d/submissions", form.ID), nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[core.Page[core.SubmissionSummary]](t, rec)
	assert.Equal(t, 2, page.Total)
	assert.False(t, page.HasNext)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/admin/forms/%d/submissions/%d", form.ID, first.ID), nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[core.SubmissionDetail](t, rec)
	assert.Equal(t, []core.Answer{
		{FieldKey: "email", Value: "ada@example.com"},
		{FieldKey: "name", Value: "Ada"},
		{FieldKey: "priority", Value: "high"},
	}, detail.Answers)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/admin/forms/%d/submissions/%d", form.ID+1000, first.ID), nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/f/missing/submit", map[string]any{"values": map[string]string{}}, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportCSV(t *testing.T) {
	env := newTestEnv(t)
	form := env.publishIntake(t)

	rec := env.do(t, http.MethodPost, "/api/f/"+form.Slug+"/submit", map[string]any{
		"values": map[string]string{"name": "Lovelace, Ada", "email": "ada@example.com", "priority": "high"},
	}, false)
	require.Equal(t, http.StatusCreated, rec.Code)
	sub := decode[core.SubmissionSummary](t, rec)

	path := fmt.Sprintf("/api/admin/forms/%d/export.csv?version=v1", form.ID)
	rec = env.do(t, http.MethodGet, path, nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="customer-intake-submissions.csv"`, rec.Header().Get("Content-Disposition"))

	want := "submission_id,created_at,name,email,priority\n" +
		fmt.Sprintf("%d,%d,\"Lovelace, Ada\",ada@example.com,high\n", sub.ID, fixedNow)
	assert.Equal(t, want, rec.Body.String())

	again := env.do(t, http.MethodGet, path, nil, true)
	assert.Equal(t, rec.Body.String(), again.Body.String())
}

func TestExportCSV_Errors(t *testing.T) {
	env := newTestEnv(t)
	form := env.publishIntake(t)

	rec := env.do(t, http.MethodGet, fmt.Sprintf("/api/admin/forms/%d/export.csv?version=v9", form.ID), nil, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unsupported export version: v9", decode[web.ErrorResponse](t, rec).Message)

	rec = env.do(t, http.MethodGet, "/api/admin/forms/424242/export.csv", nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/admin/forms/%d/export.csv", form.ID), nil, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExportCSV_LimiterSaturated(t *testing.T) {
	env := newTestEnv(t)
	form := env.publishIntake(t)

	require.NoError(t, env.limiter.Acquire(context.Background()))
	defer env.limiter.Release()

	rec := env.do(t, http.MethodGet, fmt.Sprintf("/api/admin/forms/%d/export.csv", form.ID), nil, true)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
	assert.Equal(t, "EXP001", decode[web.ErrorResponse](t, rec).Code)
}

func TestPublicRateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Rate.Enabled = true
		cfg.Rate.AdminPerMinute = 1000
		cfg.Rate.SubmitPerMinute = 1
		cfg.Rate.Burst = 2
	})

	for range 2 {
		rec := env.do(t, http.MethodGet, "/api/f/anything", nil, false)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/api/f/anything", nil, false)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE001", decode[web.ErrorResponse](t, rec).Code)

	// Admin routes use their own bucket.
	rec = env.do(t, http.MethodGet, "/api/admin/forms", nil, true)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodGet, "/health", nil, false)
	env.do(t, http.MethodGet, "/api/admin/forms/abc", nil, true)

	rec := env.do(t, http.MethodGet, "/metrics", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `forms_http_requests_total{method="GET",route="/health",status="200"} 1`)
	assert.Contains(t, body, `route="/api/admin/forms/{formID}`)
}
