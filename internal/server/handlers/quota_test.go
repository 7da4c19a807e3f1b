package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotaward/quotaward/internal/core"
	"github.com/quotaward/quotaward/internal/core/engine"
	"github.com/quotaward/quotaward/internal/core/policy"
	"github.com/quotaward/quotaward/internal/core/store/memstore"
	"github.com/quotaward/quotaward/internal/server/middleware"
)

type fakeCleaner struct {
	gotAge time.Duration
	n      int
	err    error
}

func (f *fakeCleaner) Cleanup(_ context.Context, maxAge time.Duration) (int, error) {
	f.gotAge = maxAge
	return f.n, f.err
}

func TestQuotaStatus(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	clock := func() time.Time { return now }
	store := memstore.New()
	eng := &engine.Engine{Policy: policy.Default(), Store: store, Clock: clock}
	h := &QuotaHandler{Reporter: &engine.Reporter{Policy: policy.Default(), Store: store, Clock: clock}}

	handler := middleware.Authenticate(middleware.AuthConfig{TrustHeaders: true})(
		middleware.Quota(eng)(http.HandlerFunc(h.Status)))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/quota/status", nil)
	req.Header.Set("X-Principal-ID", "user123")
	req.Header.Set("X-Principal-Tier", "starter")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var status core.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, core.TierStarter, status.Plan)
	assert.Equal(t, 500, status.Global.Limit)
	// The status request itself went through the global check.
	assert.Equal(t, 1, status.Global.Used)
	assert.Equal(t, 499, status.Global.Remaining)
	assert.Equal(t, time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC), status.Global.ResetsAt)
}

type failingReporter struct{}

func (failingReporter) Status(context.Context, string, core.Tier) (core.Status, error) {
	return core.Status{}, core.NewStorageError("get", errors.New("redis: connection pool timeout"))
}

func TestQuotaStatus_StorageErrorIs503(t *testing.T) {
	h := &QuotaHandler{Reporter: failingReporter{}}
	handler := middleware.Quota(&engine.Engine{Policy: policy.Default(), Store: memstore.New()})(http.HandlerFunc(h.Status))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/quota/status", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection pool timeout")
}

func TestQuotaCleanup(t *testing.T) {
	tests := []struct {
		name       string
		auth       string
		query      string
		cleaner    *fakeCleaner
		wantStatus int
		wantAge    time.Duration
	}{
		{name: "missing token", query: "", cleaner: &fakeCleaner{}, wantStatus: http.StatusUnauthorized},
		{name: "wrong token", auth: "Bearer nope", cleaner: &fakeCleaner{}, wantStatus: http.StatusUnauthorized},
		{name: "default age", auth: "Bearer s3cret", cleaner: &fakeCleaner{n: 12}, wantStatus: http.StatusOK, wantAge: 24 * time.Hour},
		{name: "seconds", auth: "Bearer s3cret", query: "?max_age=86400", cleaner: &fakeCleaner{}, wantStatus: http.StatusOK, wantAge: 24 * time.Hour},
		{name: "duration", auth: "Bearer s3cret", query: "?max_age=48h", cleaner: &fakeCleaner{}, wantStatus: http.StatusOK, wantAge: 48 * time.Hour},
		{name: "invalid", auth: "Bearer s3cret", query: "?max_age=soon", cleaner: &fakeCleaner{}, wantStatus: http.StatusBadRequest},
		{name: "negative", auth: "Bearer s3cret", query: "?max_age=-5", cleaner: &fakeCleaner{}, wantStatus: http.StatusBadRequest},
		{name: "store error", auth: "Bearer s3cret", cleaner: &fakeCleaner{err: core.NewStorageError("delete", errors.New("locked"))}, wantStatus: http.StatusServiceUnavailable, wantAge: 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &QuotaHandler{Cleaner: tt.cleaner, AdminToken: "s3cret"}
			req := httptest.NewRequest(http.MethodPost, "/admin/quota/cleanup"+tt.query, nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()

			h.Cleanup(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantAge, tt.cleaner.gotAge)
			if tt.wantStatus == http.StatusOK {
				var body CleanupResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tt.cleaner.n, body.Deleted)
				assert.Equal(t, tt.wantAge.String(), body.MaxAge)
			}
		})
	}
}

func TestQuotaCleanup_DisabledWithoutToken(t *testing.T) {
	h := &QuotaHandler{Cleaner: &fakeCleaner{}}
	req := httptest.NewRequest(http.MethodPost, "/admin/quota/cleanup", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()

	h.Cleanup(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
