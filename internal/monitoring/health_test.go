package monitoring

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveHealth(t *testing.T, h *HealthChecker) (*httptest.ResponseRecorder, HealthStatus) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	var status HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	return rec, status
}

// TestHealthChecker_Healthy tests the happy path after a completed cycle
func TestHealthChecker_Healthy(t *testing.T) {
	h := NewHealthChecker(time.Minute)
	h.CycleCompleted()

	rec, status := serveHealth(t, h)
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

// TestHealthChecker_StaleIsDegraded tests that a missing cycle reports 503
func TestHealthChecker_StaleIsDegraded(t *testing.T) {
	h := NewHealthChecker(time.Minute)

	rec, status := serveHealth(t, h)
	assert.Equal(t, 503, rec.Code)
	assert.Equal(t, "degraded", status.Status)
}

// TestHealthChecker_StaleWithErrors tests that a checker that is both stale
// and has recorded errors writes a single unhealthy response
func TestHealthChecker_StaleWithErrors(t *testing.T) {
	h := NewHealthChecker(time.Minute)
	h.RecordError("ledger unavailable")

	rec, status := serveHealth(t, h)
	assert.Equal(t, 500, rec.Code)
	assert.Equal(t, "unhealthy", status.Status)
	assert.Contains(t, status.Errors, "ledger unavailable")
}

// TestHealthChecker_CycleClearsErrors tests error reset on a completed cycle
func TestHealthChecker_CycleClearsErrors(t *testing.T) {
	h := NewHealthChecker(time.Minute)
	h.RecordError("transient")
	h.CycleCompleted()

	rec, status := serveHealth(t, h)
	assert.Equal(t, 200, rec.Code)
	assert.Empty(t, status.Errors)
}
