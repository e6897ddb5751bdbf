package healthprobe

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// HealthChecker backs the liveness and readiness endpoints. Liveness is
// unconditional; readiness flips once the pipeline finishes starting up and
// can flip back during shutdown to drain traffic.
type HealthChecker struct {
	startedAt time.Time
	ready     atomic.Bool
	reason    atomic.Value
}

// New creates a HealthChecker that reports not-ready until SetReady(true).
func New() *HealthChecker {
	h := &HealthChecker{startedAt: time.Now()}
	h.reason.Store("pipeline is starting")
	return h
}

// SetReady marks the pipeline as ready (or not) to serve traffic.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// SetNotReadyReason sets the message returned while not ready.
func (h *HealthChecker) SetNotReadyReason(reason string) {
	h.reason.Store(reason)
}

// HealthResponse is the JSON body for both probes.
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Message string `json:"message,omitempty"`
}

func (h *HealthChecker) writeJSON(w http.ResponseWriter, code int, resp HealthResponse) {
	resp.Uptime = time.Since(h.startedAt).Round(time.Second).String()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// Health returns the liveness handler. It answers 200 whenever the process
// is up, regardless of pipeline state.
func (h *HealthChecker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
	}
}

// Ready returns the readiness handler: 200 once the pipeline is serving,
// 503 with a reason otherwise.
func (h *HealthChecker) Ready() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if !h.ready.Load() {
			reason, _ := h.reason.Load().(string)
			h.writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
				Status:  "not_ready",
				Message: reason,
			})
			return
		}
		h.writeJSON(w, http.StatusOK, HealthResponse{Status: "ready"})
	}
}
