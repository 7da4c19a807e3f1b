package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotaward/quotaward/internal/core"
	"github.com/quotaward/quotaward/internal/server/middleware"
)

func TestHTTPStatusFromCode(t *testing.T) {
	tests := map[string]int{
		CodeInvalidInput:       http.StatusBadRequest,
		CodeUnauthorized:       http.StatusUnauthorized,
		CodeForbidden:          http.StatusForbidden,
		CodeNotFound:           http.StatusNotFound,
		CodeRateLimited:        http.StatusTooManyRequests,
		CodeDatabase:           http.StatusServiceUnavailable,
		CodeServiceUnavailable: http.StatusServiceUnavailable,
		CodeExternalService:    http.StatusBadGateway,
		CodeInternal:           http.StatusInternalServerError,
		"SOMETHING_ELSE":       http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, HTTPStatusFromCode(code), code)
	}
}

func TestEnsureEnvelopeStorageError(t *testing.T) {
	err := core.NewStorageError("get", fmt.Errorf("connection refused"))

	env := EnsureEnvelope(err)
	assert.Equal(t, CodeDatabase, env.Code)
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatusFromEnvelope(env))
}

func TestRespondWithErrorHidesCause(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/quota/status", nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDContextKey, "req-42"))
	rec := httptest.NewRecorder()

	RespondWithError(rec, req, core.NewStorageError("get", fmt.Errorf("dial tcp 10.0.0.5:6379: refused")))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, CodeDatabase, body.Error.Code)
	assert.Equal(t, "req-42", body.Error.RequestID)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
}

func TestWrapCarriesCorrelationID(t *testing.T) {
	ctx := context.WithValue(context.Background(), middleware.RequestIDContextKey, "req-7")

	env := WrapInvalidInput(ctx, fmt.Errorf("bad duration"), "invalid max_age")
	assert.Equal(t, CodeInvalidInput, env.Code)
	assert.Equal(t, "req-7", env.CorrelationID)
	assert.Nil(t, ResponseDetails(env))
}

func TestWrapConfigInvalidKeepsCauseInContext(t *testing.T) {
	env := WrapConfigInvalid(context.Background(), fmt.Errorf("unsupported store.driver %q", "mongo"), "configuration invalid")
	assert.Equal(t, CodeConfigInvalid, env.Code)
	assert.NotEmpty(t, env.CorrelationID)
	require.NotNil(t, env.Context)
	assert.Contains(t, fmt.Sprint(env.Context["wrapped_error"]), "mongo")
}

func TestStorageErrorsCarryOperation(t *testing.T) {
	err := core.NewStorageError("delete", fmt.Errorf("database is locked"))

	wrapped := WrapDatabaseError(context.Background(), err, "counter cleanup failed")
	assert.Equal(t, "delete", wrapped.Context["storage_op"])
	assert.Contains(t, fmt.Sprint(wrapped.Context["wrapped_error"]), "locked")

	ensured := EnsureEnvelope(err)
	assert.Equal(t, "delete", ensured.Context["storage_op"])

	plain := WrapInternal(context.Background(), fmt.Errorf("boom"), "unexpected")
	assert.NotContains(t, plain.Context, "storage_op")
}

func TestWithQuotaCallerStaysPrivate(t *testing.T) {
	env := WrapExternalService(context.Background(), fmt.Errorf("dial tcp: refused"), "upstream unavailable")
	env = WithQuotaCaller(env, core.Info{Identity: "203.0.113.7", Tier: core.TierAnonymous})

	assert.Equal(t, "203.0.113.7", env.Context["quota_identity"])
	assert.Equal(t, "anonymous", env.Context["quota_tier"])
	assert.Contains(t, fmt.Sprint(env.Context["wrapped_error"]), "refused")
	assert.Nil(t, ResponseDetails(env))

	untouched := WithQuotaCaller(NewNotFoundError("nope"), core.Info{})
	assert.Empty(t, untouched.Context)
}
