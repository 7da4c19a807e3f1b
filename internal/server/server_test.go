package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotaward/quotaward/internal/core/engine"
	"github.com/quotaward/quotaward/internal/core/policy"
	"github.com/quotaward/quotaward/internal/core/store/memstore"
	apperrors "github.com/quotaward/quotaward/internal/errors"
	servermw "github.com/quotaward/quotaward/internal/server/middleware"
)

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv := New("127.0.0.1", 0, Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}

	var body apperrors.HTTPErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}

	if body.Error.Code != "NOT_FOUND" {
		t.Fatalf("expected error code NOT_FOUND, got %s", body.Error.Code)
	}
}

func newQuotaServer(t *testing.T, upstream http.Handler, adminToken string) *Server {
	t.Helper()

	store := memstore.New()
	registry := policy.Default()
	return New("127.0.0.1", 0, Dependencies{
		Quota:    &engine.Engine{Policy: registry, Store: store},
		Reporter: &engine.Reporter{Policy: registry, Store: store},
		Cleaner:  &engine.Collector{Store: store},
		Auth: servermw.AuthConfig{
			Keys: map[string]servermw.Principal{"sk_growth": {ID: "org-42", Tier: "growth"}},
		},
		Upstream:   upstream,
		AdminToken: adminToken,
	})
}

func TestServerProxiesAdmittedRequests(t *testing.T) {
	var gotIdentity, gotTier, gotPath, gotRequestID string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRequestID = r.Header.Get(servermw.RequestIDHeader)
		gotIdentity = r.Header.Get(HeaderQuotaIdentity)
		gotTier = r.Header.Get(HeaderQuotaTier)
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(backend.Close)

	target, err := url.Parse(backend.URL)
	require.NoError(t, err)
	srv := newQuotaServer(t, NewProxy(target, 5*time.Second), "")

	req := httptest.NewRequest(http.MethodPost, "/api/reports/quarterly", nil)
	req.Header.Set("X-API-Key", "sk_growth")
	req.Header.Set(HeaderQuotaIdentity, "spoofed")
	req.Header.Set(servermw.RequestIDHeader, "req-quarterly-1")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-quarterly-1", gotRequestID)
	assert.Equal(t, "org-42", gotIdentity)
	assert.Equal(t, "growth", gotTier)
	assert.Equal(t, "/api/reports/quarterly", gotPath)
	assert.Equal(t, "25", rec.Header().Get(servermw.HeaderRateLimitLimit))
	assert.Equal(t, "24", rec.Header().Get(servermw.HeaderRateLimitRemaining))
}

func TestServerWithoutUpstreamReturns404AfterQuota(t *testing.T) {
	srv := newQuotaServer(t, nil, "")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/anything", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	// The anonymous global check is the last one evaluated.
	assert.Equal(t, "30", rec.Header().Get(servermw.HeaderRateLimitLimit))
}

func TestServerUnknownAPIKeyIs401(t *testing.T) {
	srv := newQuotaServer(t, nil, "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/quota/status", nil)
	req.Header.Set("X-API-Key", "sk_unknown")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServerAdminCleanup(t *testing.T) {
	srv := newQuotaServer(t, nil, "s3cret")

	req := httptest.NewRequest(http.MethodPost, "/admin/quota/cleanup?max_age=86400", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"deleted":0`))

	noAdmin := newQuotaServer(t, nil, "")
	rec = httptest.NewRecorder()
	noAdmin.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/quota/cleanup", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerHealthDefaults(t *testing.T) {
	srv := New("127.0.0.1", 0, Dependencies{})

	for _, path := range []string{"/health", "/health/live", "/health/ready", "/health/startup"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestTimeoutsWithDefaults(t *testing.T) {
	got := Timeouts{Write: 5 * time.Second}.withDefaults()
	assert.Equal(t, 30*time.Second, got.Read)
	assert.Equal(t, 5*time.Second, got.Write)
	assert.Equal(t, 120*time.Second, got.Idle)
}

func TestTrackConn(t *testing.T) {
	s := New("127.0.0.1", 0, Dependencies{})

	s.trackConn(nil, http.StateNew)
	s.trackConn(nil, http.StateNew)
	s.trackConn(nil, http.StateActive)
	s.trackConn(nil, http.StateClosed)

	assert.EqualValues(t, 1, s.conns.Load())
}
