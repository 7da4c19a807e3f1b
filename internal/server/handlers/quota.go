package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/quotaward/quotaward/internal/core"
	apperrors "github.com/quotaward/quotaward/internal/errors"
	"github.com/quotaward/quotaward/internal/metrics"
	"github.com/quotaward/quotaward/internal/server/middleware"
)

// DefaultCleanupMaxAge is used when the cleanup request has no max_age.
const DefaultCleanupMaxAge = 24 * time.Hour

// StatusReporter reads an identity's usage.
type StatusReporter interface {
	Status(ctx context.Context, identity string, tier core.Tier) (core.Status, error)
}

// Cleaner deletes expired counters.
type Cleaner interface {
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)
}

// QuotaHandler serves the quota status and cleanup endpoints.
type QuotaHandler struct {
	Reporter   StatusReporter
	Cleaner    Cleaner
	AdminToken string
}

// CleanupResponse is returned by Cleanup.
type CleanupResponse struct {
	Deleted int    `json:"deleted"`
	MaxAge  string `json:"max_age"`
}

// Status returns the caller's plan and global usage. The route must sit
// behind the quota middleware, which supplies the resolved identity.
func (h *QuotaHandler) Status(w http.ResponseWriter, r *http.Request) {
	info, ok := middleware.QuotaInfo(r.Context())
	if !ok {
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), fmt.Errorf("quota info missing"), "quota status unavailable"))
		return
	}

	status, err := h.Reporter.Status(r.Context(), info.Identity, info.Tier)
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "quota status unavailable"))
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// Cleanup runs one garbage collection batch. It requires the admin bearer token.
func (h *QuotaHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		respondWithError(w, r, apperrors.NewUnauthorizedError("admin token required"))
		return
	}

	maxAge, err := ParseMaxAge(r.URL.Query().Get("max_age"))
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid max_age"))
		return
	}

	deleted, err := h.Cleaner.Cleanup(r.Context(), maxAge)
	metrics.RecordAdminOperation("quota_cleanup", err == nil)
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "counter cleanup failed"))
		return
	}

	writeJSON(w, http.StatusOK, CleanupResponse{Deleted: deleted, MaxAge: maxAge.String()})
}

func (h *QuotaHandler) authorized(r *http.Request) bool {
	if h.AdminToken == "" {
		return false
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(h.AdminToken)) == 1
}

// ParseMaxAge accepts a Go duration ("36h") or whole seconds ("86400").
// An empty value yields DefaultCleanupMaxAge.
func ParseMaxAge(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultCleanupMaxAge, nil
	}

	var d time.Duration
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		d = time.Duration(secs) * time.Second
	} else if d, err = time.ParseDuration(raw); err != nil {
		return 0, fmt.Errorf("parse max_age %q: %w", raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("max_age must be positive, got %q", raw)
	}
	return d, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
