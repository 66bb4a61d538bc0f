package healthprobe

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// HealthChecker backs the /health and /ready endpoints. Liveness is
// unconditional; readiness flips once the simulator has loaded its books
// and started serving.
type HealthChecker struct {
	startTime time.Time
	ready     atomic.Bool
}

// New returns a checker that reports not-ready until SetReady(true).
func New() *HealthChecker {
	return &HealthChecker{startTime: time.Now()}
}

// SetReady flips the readiness gate.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

type probeStatus struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Message string `json:"message,omitempty"`
}

func (h *HealthChecker) writeStatus(w http.ResponseWriter, code int, status, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(probeStatus{
		Status:  status,
		Uptime:  time.Since(h.startTime).String(),
		Message: message,
	})
}

// Health is the liveness handler. It returns 200 as long as the process
// is up.
func (h *HealthChecker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.writeStatus(w, http.StatusOK, "healthy", "")
	}
}

// Ready is the readiness handler: 200 once ready, 503 before that and
// again during shutdown.
func (h *HealthChecker) Ready() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.ready.Load() {
			h.writeStatus(w, http.StatusServiceUnavailable, "not_ready", "simulator is starting")
			return
		}
		h.writeStatus(w, http.StatusOK, "ready", "")
	}
}
