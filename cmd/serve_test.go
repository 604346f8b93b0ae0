package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacificworks/licensing-portal/internal/analysis"
	"github.com/pacificworks/licensing-portal/internal/model"
	"github.com/pacificworks/licensing-portal/internal/store"
)

func newTestEnv(t *testing.T) *portalEnv {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "portal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	// Nil backend: analyze requests still answer, producing the
	// manual-review fallback result.
	svc := analysis.NewService(nil, st, analysis.Options{})
	return &portalEnv{Store: st, Analysis: svc}
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	router := newRouter(newTestEnv(t))
	rec := doRequest(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestRouter_ApplicationLifecycle(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rec := doRequest(t, router, http.MethodPost, "/api/applications", `{
		"companyName": "Coastal Abatement Ltd",
		"applicantName": "R. Moreau",
		"wizardData": {"firmAccountNumber": "29615302", "totalWorkers": 12, "certifiedWorkers": 4}
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created model.LicenseApplication
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.StatusDraft, created.Status)

	rec = doRequest(t, router, http.MethodGet, "/api/applications/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodPatch, "/api/applications/"+created.ID+"/status",
		`{"status": "under_review", "adminNotes": "assigned to reviewer"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/applications?status=under_review", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []model.LicenseApplication
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "assigned to reviewer", listed[0].AdminNotes)
}

func TestRouter_CreateApplicationValidation(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rec := doRequest(t, router, http.MethodPost, "/api/applications", `{"applicantName": "R. Moreau"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "companyName is required")

	rec = doRequest(t, router, http.MethodPost, "/api/applications", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_GetApplicationNotFound(t *testing.T) {
	router := newRouter(newTestEnv(t))
	rec := doRequest(t, router, http.MethodGet, "/api/applications/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_UpdateStatusRequiresStatus(t *testing.T) {
	router := newRouter(newTestEnv(t))
	rec := doRequest(t, router, http.MethodPatch, "/api/applications/some-id/status", `{"adminNotes": "x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_FactSheets(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rec := doRequest(t, router, http.MethodPost, "/api/fact-sheets", `[
		{"employerId": "29615302", "legalName": "Coastal Abatement Ltd", "activeStatus": "active", "overdueBalance": 1520.50},
		{"employerId": "29615303", "legalName": "North Shore Remediation", "activeStatus": "active"}
	]`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"imported":2`)

	rec = doRequest(t, router, http.MethodGet, "/api/fact-sheets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sheets []model.EmployerFactSheet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sheets))
	assert.Len(t, sheets, 2)

	rec = doRequest(t, router, http.MethodGet, "/api/fact-sheets/29615302", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Coastal Abatement Ltd")

	rec = doRequest(t, router, http.MethodGet, "/api/fact-sheets/00000000", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_AnalyzeAndFetchResult(t *testing.T) {
	env := newTestEnv(t)
	router := newRouter(env)

	rec := doRequest(t, router, http.MethodPost, "/api/applications", `{"companyName": "Coastal Abatement Ltd"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created model.LicenseApplication
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	// No result yet.
	rec = doRequest(t, router, http.MethodGet, "/api/applications/"+created.ID+"/analysis", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/applications/"+created.ID+"/analyze", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	// The dispatch is async; the nil-backend fallback persists quickly.
	var doc map[string]any
	require.Eventually(t, func() bool {
		var err error
		doc, err = env.Store.LoadAnalysis(context.Background(), analysis.AnalysisKey(created.ID))
		return err == nil && doc != nil
	}, 5*time.Second, 20*time.Millisecond)

	result := analysis.Normalize(doc)
	assert.Equal(t, model.RecommendManualReview, result.Recommendation)

	rec = doRequest(t, router, http.MethodGet, "/api/applications/"+created.ID+"/analysis", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

// legacyAnalysisStore serves a stored analysis document written under an
// older field naming convention.
type legacyAnalysisStore struct {
	store.Store
	doc map[string]any
}

func (s *legacyAnalysisStore) LoadAnalysis(context.Context, string) (map[string]any, error) {
	return s.doc, nil
}

func TestRouter_GetAnalysisNormalizesLegacyRecords(t *testing.T) {
	env := &portalEnv{Store: &legacyAnalysisStore{doc: map[string]any{
		"risk_score":     "HIGH",
		"recommendation": "REJECT",
		"web_presence_validation": map[string]any{
			"company_found": true,
		},
	}}}
	router := newRouter(env)

	rec := doRequest(t, router, http.MethodGet, "/api/applications/app-old/analysis", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result model.AIAnalysisResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, model.RiskHigh, result.RiskScore)
	assert.Equal(t, model.RecommendReject, result.Recommendation)
	assert.True(t, result.WebPresenceValidation.CompanyFound)
}

func TestRouter_AnalyzeUnknownApplication(t *testing.T) {
	router := newRouter(newTestEnv(t))
	rec := doRequest(t, router, http.MethodPost, "/api/applications/missing/analyze", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
