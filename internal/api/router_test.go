package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/servicemap/internal/api"
	mw "github.com/kiranshivaraju/servicemap/internal/api/middleware"
	"github.com/kiranshivaraju/servicemap/internal/api/response"
	"github.com/kiranshivaraju/servicemap/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// ─── fixtures ────────────────────────────────────────────────────────────────

var testTenantID = uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")

const (
	readKey  = "sm_read_contract_key_1234567890"
	writeKey = "sm_writ_contract_key_1234567890"
	adminKey = "sm_admn_contract_key_1234567890"
)

type stubKeys struct {
	keys []*models.APIKey
}

func newStubKeys(t *testing.T) *stubKeys {
	t.Helper()
	mk := func(raw string, scopes ...string) *models.APIKey {
		h, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.MinCost)
		require.NoError(t, err)
		return &models.APIKey{
			ID:        uuid.New(),
			TenantID:  testTenantID,
			Email:     "dev@example.com",
			KeyHash:   string(h),
			KeyPrefix: raw[:mw.KeyPrefixLen],
			Scopes:    scopes,
		}
	}
	return &stubKeys{keys: []*models.APIKey{
		mk(readKey, "read"),
		mk(writeKey, "read", "write"),
		mk(adminKey, "admin"),
	}}
}

func (s *stubKeys) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.KeyPrefix == prefix {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *stubKeys) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }

type stubCounter struct {
	mu       sync.Mutex
	counters map[string]int64
}

func (c *stubCounter) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key]++
	return c.counters[key], nil
}

// echo responds with the authenticated tenant and actor.
func echo(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, _ := mw.GetTenantID(r)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{
			"tenant_id": tenantID.String(),
			"actor":     mw.GetActor(r),
		}})
	}
}

func newTestServer(t *testing.T, perMinute int, mutate func(*api.Dependencies)) *httptest.Server {
	t.Helper()
	deps := api.Dependencies{
		Auth:      mw.NewAuth(newStubKeys(t)),
		RateLimit: mw.NewRateLimit(&stubCounter{counters: map[string]int64{}}, perMinute),

		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			response.JSON(w, map[string]string{"status": "ok"})
		},

		GetTopology:       echo(http.StatusOK),
		GetService:        echo(http.StatusOK),
		CreateService:     echo(http.StatusCreated),
		UpdateService:     echo(http.StatusOK),
		DeleteService:     echo(http.StatusNoContent),
		CreateDependency:  echo(http.StatusCreated),
		DeleteDependency:  echo(http.StatusNoContent),
		ListApplications:  echo(http.StatusOK),
		GetApplication:    echo(http.StatusOK),
		CreateApplication: echo(http.StatusCreated),
		UpdateApplication: echo(http.StatusOK),
		DeleteApplication: echo(http.StatusNoContent),
		SyncProvider:      echo(http.StatusOK),
		CreateKeyHandler:  echo(http.StatusCreated),
		ListKeysHandler:   echo(http.StatusOK),
		RevokeKeyHandler:  echo(http.StatusNoContent),
	}
	if mutate != nil {
		mutate(&deps)
	}
	srv := httptest.NewServer(api.NewRouter(deps))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, key string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, nil)
	require.NoError(t, err)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func errCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Error.Code
}

type route struct {
	method string
	path   string
	scope  string
}

var routes = []route{
	{"GET", "/api/v1/topology", "read"},
	{"GET", "/api/v1/services/1", "read"},
	{"GET", "/api/v1/applications", "read"},
	{"GET", "/api/v1/applications/" + uuid.NewString(), "read"},
	{"POST", "/api/v1/services", "write"},
	{"PUT", "/api/v1/services/1", "write"},
	{"DELETE", "/api/v1/services/1", "write"},
	{"POST", "/api/v1/services/1/dependencies/2", "write"},
	{"DELETE", "/api/v1/services/1/dependencies/2", "write"},
	{"POST", "/api/v1/applications", "write"},
	{"PUT", "/api/v1/applications/" + uuid.NewString(), "write"},
	{"DELETE", "/api/v1/applications/" + uuid.NewString(), "write"},
	{"POST", "/api/v1/providers/datadog/sync", "admin"},
	{"POST", "/api/v1/admin/keys", "admin"},
	{"GET", "/api/v1/admin/keys", "admin"},
	{"DELETE", "/api/v1/admin/keys/" + uuid.NewString(), "admin"},
}

// ─── tests ───────────────────────────────────────────────────────────────────

func TestRouter_HealthEndpoint_Public(t *testing.T) {
	srv := newTestServer(t, 60, nil)

	resp := do(t, srv, "GET", "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_MetricsEndpoint_Public(t *testing.T) {
	srv := newTestServer(t, 60, nil)
	do(t, srv, "GET", "/api/v1/topology", readKey)

	resp := do(t, srv, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `servicemap_http_requests_total{method="GET",route="/api/v1/topology",status="200"}`)
}

func TestRouter_ProtectedEndpoints_RequireAuth(t *testing.T) {
	srv := newTestServer(t, 60, nil)

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			resp := do(t, srv, rt.method, rt.path, "")
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, "INVALID_TOKEN", errCode(t, resp))
		})
	}
}

func TestRouter_ScopeEnforcement(t *testing.T) {
	srv := newTestServer(t, 1000, nil)

	granted := map[string]map[string]bool{
		readKey:  {"read": true},
		writeKey: {"read": true, "write": true},
		adminKey: {"read": true, "write": true, "admin": true},
	}
	for key, scopes := range granted {
		for _, rt := range routes {
			t.Run(key[:mw.KeyPrefixLen]+" "+rt.method+" "+rt.path, func(t *testing.T) {
				resp := do(t, srv, rt.method, rt.path, key)
				if scopes[rt.scope] {
					assert.Less(t, resp.StatusCode, 300)
				} else {
					assert.Equal(t, http.StatusForbidden, resp.StatusCode)
					assert.Equal(t, "FORBIDDEN", errCode(t, resp))
				}
			})
		}
	}
}

func TestRouter_ResolvesTenantAndActor(t *testing.T) {
	srv := newTestServer(t, 60, nil)

	resp := do(t, srv, "POST", "/api/v1/services", writeKey)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, testTenantID.String(), body.Data["tenant_id"])
	assert.Equal(t, "dev@example.com", body.Data["actor"])
}

func TestRouter_NilHandlerIsNotImplemented(t *testing.T) {
	srv := newTestServer(t, 60, func(d *api.Dependencies) { d.SyncProvider = nil })

	resp := do(t, srv, "POST", "/api/v1/providers/datadog/sync", adminKey)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	assert.Equal(t, "NOT_IMPLEMENTED", errCode(t, resp))
}

func TestRouter_RateLimited(t *testing.T) {
	srv := newTestServer(t, 2, nil)

	for i := 0; i < 2; i++ {
		resp := do(t, srv, "GET", "/api/v1/topology", readKey)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp := do(t, srv, "GET", "/api/v1/topology", readKey)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errCode(t, resp))

	// Buckets are per key.
	resp = do(t, srv, "GET", "/api/v1/topology", writeKey)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_NotFound(t *testing.T) {
	srv := newTestServer(t, 60, nil)

	resp := do(t, srv, "GET", "/api/v1/nonexistent", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errCode(t, resp))
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, 60, nil)

	resp := do(t, srv, "PATCH", "/api/v1/topology", readKey)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json"))
}
