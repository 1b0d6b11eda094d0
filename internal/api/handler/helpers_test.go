package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/servicemap/internal/api/middleware"
	"github.com/kiranshivaraju/servicemap/internal/topology"
	"github.com/kiranshivaraju/servicemap/pkg/models"
	"github.com/stretchr/testify/require"
)

// --- mock topology service ---

// mockTopology implements every topology-facing handler interface. Unset
// funcs panic, which the test reports as a failure.
type mockTopology struct {
	getTopology    func(tenantID uuid.UUID, f topology.TopologyFilter) ([]models.ServiceView, error)
	getService     func(tenantID uuid.UUID, id int64) (*models.ServiceView, error)
	createService  func(tenantID uuid.UUID, in topology.ServiceInput, createdBy string) (*models.ServiceView, error)
	updateService  func(tenantID uuid.UUID, id int64, in topology.ServiceInput) (*models.ServiceView, error)
	deleteService  func(tenantID uuid.UUID, id int64) error
	createDep      func(tenantID uuid.UUID, id, target int64, protocol string) (*models.ServiceView, error)
	deleteDep      func(tenantID uuid.UUID, id, target int64) error
	listApps       func(tenantID uuid.UUID) ([]models.ApplicationView, error)
	getApp         func(tenantID, id uuid.UUID) (*models.ApplicationView, error)
	createApp      func(tenantID uuid.UUID, in topology.ApplicationInput) (*models.ApplicationView, error)
	updateApp      func(tenantID, id uuid.UUID, in topology.ApplicationInput) (*models.ApplicationView, error)
	deleteApp      func(tenantID, id uuid.UUID) error
	importSnapshot func(tenantID uuid.UUID, providerID string, snap models.TopologySnapshot) (*topology.ImportReport, error)
}

func (m *mockTopology) GetTopology(_ context.Context, tenantID uuid.UUID, f topology.TopologyFilter) ([]models.ServiceView, error) {
	return m.getTopology(tenantID, f)
}
func (m *mockTopology) GetService(_ context.Context, tenantID uuid.UUID, id int64) (*models.ServiceView, error) {
	return m.getService(tenantID, id)
}
func (m *mockTopology) CreateManualService(_ context.Context, tenantID uuid.UUID, in topology.ServiceInput, createdBy string) (*models.ServiceView, error) {
	return m.createService(tenantID, in, createdBy)
}
func (m *mockTopology) UpdateManualService(_ context.Context, tenantID uuid.UUID, id int64, in topology.ServiceInput) (*models.ServiceView, error) {
	return m.updateService(tenantID, id, in)
}
func (m *mockTopology) DeleteManualService(_ context.Context, tenantID uuid.UUID, id int64) error {
	return m.deleteService(tenantID, id)
}
func (m *mockTopology) CreateDependency(_ context.Context, tenantID uuid.UUID, id, target int64, protocol string) (*models.ServiceView, error) {
	return m.createDep(tenantID, id, target, protocol)
}
func (m *mockTopology) DeleteDependency(_ context.Context, tenantID uuid.UUID, id, target int64) error {
	return m.deleteDep(tenantID, id, target)
}
func (m *mockTopology) ListApplications(_ context.Context, tenantID uuid.UUID) ([]models.ApplicationView, error) {
	return m.listApps(tenantID)
}
func (m *mockTopology) GetApplication(_ context.Context, tenantID, id uuid.UUID) (*models.ApplicationView, error) {
	return m.getApp(tenantID, id)
}
func (m *mockTopology) CreateApplication(_ context.Context, tenantID uuid.UUID, in topology.ApplicationInput) (*models.ApplicationView, error) {
	return m.createApp(tenantID, in)
}
func (m *mockTopology) UpdateApplication(_ context.Context, tenantID, id uuid.UUID, in topology.ApplicationInput) (*models.ApplicationView, error) {
	return m.updateApp(tenantID, id, in)
}
func (m *mockTopology) DeleteApplication(_ context.Context, tenantID, id uuid.UUID) error {
	return m.deleteApp(tenantID, id)
}
func (m *mockTopology) ImportProviderTopology(_ context.Context, tenantID uuid.UUID, providerID string, snap models.TopologySnapshot) (*topology.ImportReport, error) {
	return m.importSnapshot(tenantID, providerID, snap)
}

var (
	_ TopologyReader     = (*mockTopology)(nil)
	_ ServiceWriter      = (*mockTopology)(nil)
	_ DependencyWriter   = (*mockTopology)(nil)
	_ ApplicationManager = (*mockTopology)(nil)
	_ TopologyImporter   = (*mockTopology)(nil)
)

// --- helpers ---

// request builds an authenticated request with chi URL params applied.
func request(t *testing.T, method, target string, body any, tenantID uuid.UUID, params map[string]string) *http.Request {
	t.Helper()
	var rdr io.Reader = http.NoBody
	switch b := body.(type) {
	case nil:
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		buf, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(buf)
	}

	r := httptest.NewRequest(method, target, rdr)
	r.Header.Set("Content-Type", "application/json")

	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	if tenantID != uuid.Nil {
		ctx = mw.SetTenantID(ctx, tenantID)
		ctx = mw.SetActor(ctx, "dev@example.com")
	}
	return r.WithContext(ctx)
}

func serve(h http.HandlerFunc, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func parseData(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	env := struct {
		Data any `json:"data"`
	}{Data: v}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env), rec.Body.String())
}

type errEnvelope struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

func parseErr(t *testing.T, rec *httptest.ResponseRecorder) errEnvelope {
	t.Helper()
	var env struct {
		Error errEnvelope `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env), rec.Body.String())
	return env.Error
}
