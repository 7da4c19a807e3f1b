package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotaward/quotaward/internal/core"
	apperrors "github.com/quotaward/quotaward/internal/errors"
	"github.com/quotaward/quotaward/internal/server/middleware"
)

func statusRequest() *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/quota/status", nil)
	info := core.Info{Identity: "user123", Tier: core.TierStarter}
	return req.WithContext(middleware.WithQuotaInfo(req.Context(), info))
}

func TestSetHTTPErrorResponder(t *testing.T) {
	t.Cleanup(func() { SetHTTPErrorResponder(nil) })

	var got error
	SetHTTPErrorResponder(func(w http.ResponseWriter, _ *http.Request, err error) {
		got = err
		w.WriteHeader(http.StatusTeapot)
	})

	h := &QuotaHandler{Reporter: failingReporter{}}
	rec := httptest.NewRecorder()
	h.Status(rec, statusRequest())

	require.Error(t, got)
	assert.Equal(t, http.StatusTeapot, rec.Code)

	// nil falls back to the plain JSON responder.
	SetHTTPErrorResponder(nil)
	rec = httptest.NewRecorder()
	h.Status(rec, statusRequest())
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), apperrors.CodeDatabase)
}
