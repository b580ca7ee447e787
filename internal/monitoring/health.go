package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

var startTime = time.Now()

type HealthChecker struct {
	mu            sync.RWMutex
	lastCycle     time.Time
	staleAfter    time.Duration
	emergencyStop bool
	errors        []string
}

type HealthStatus struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	LastCycle     time.Time `json:"last_cycle"`
	EmergencyStop bool      `json:"emergency_stop"`
	Uptime        string    `json:"uptime"`
	Errors        []string  `json:"errors,omitempty"`
}

// NewHealthChecker creates a checker that reports degraded once no control
// cycle has completed within staleAfter.
func NewHealthChecker(staleAfter time.Duration) *HealthChecker {
	return &HealthChecker{
		staleAfter: staleAfter,
		errors:     make([]string, 0),
	}
}

// CycleCompleted records a finished control cycle and clears stale errors.
func (h *HealthChecker) CycleCompleted() {
	h.mu.Lock()
	h.lastCycle = time.Now()
	h.errors = h.errors[:0]
	h.mu.Unlock()
}

// RecordError records a cycle error surfaced on the health endpoint.
func (h *HealthChecker) RecordError(msg string) {
	h.mu.Lock()
	h.errors = append(h.errors, msg)
	if len(h.errors) > 10 {
		h.errors = h.errors[len(h.errors)-10:]
	}
	h.mu.Unlock()
}

// SetEmergencyStop reflects the engine's emergency stop flag.
func (h *HealthChecker) SetEmergencyStop(active bool) {
	h.mu.Lock()
	h.emergencyStop = active
	h.mu.Unlock()
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	code := http.StatusOK
	if h.lastCycle.IsZero() || time.Since(h.lastCycle) > h.staleAfter {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	if len(h.errors) > 0 {
		status = "unhealthy"
		code = http.StatusInternalServerError
	}

	health := HealthStatus{
		Status:        status,
		Timestamp:     time.Now(),
		LastCycle:     h.lastCycle,
		EmergencyStop: h.emergencyStop,
		Uptime:        time.Since(startTime).String(),
		Errors:        h.errors,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(health)
}
