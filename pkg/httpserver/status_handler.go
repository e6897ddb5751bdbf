package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sgriggs/mevflow/internal/admission"
	"github.com/sgriggs/mevflow/internal/circuitbreaker"
	"github.com/sgriggs/mevflow/internal/execution"
	"github.com/sgriggs/mevflow/internal/monitor"
	"github.com/sgriggs/mevflow/pkg/providerpool"
	"go.uber.org/zap"
)

// StatusHandler serves a consolidated pipeline status view.
type StatusHandler struct {
	breaker   *circuitbreaker.Breaker
	monitor   *monitor.Monitor
	pool      *providerpool.Pool
	executor  *execution.Executor
	admission *admission.Controller
	logger    *zap.Logger
}

// NewStatusHandler creates a status handler.
func NewStatusHandler(
	breaker *circuitbreaker.Breaker,
	mon *monitor.Monitor,
	pool *providerpool.Pool,
	executor *execution.Executor,
	ctrl *admission.Controller,
	logger *zap.Logger,
) *StatusHandler {
	return &StatusHandler{
		breaker:   breaker,
		monitor:   mon,
		pool:      pool,
		executor:  executor,
		admission: ctrl,
		logger:    logger,
	}
}

// StatusResponse represents the HTTP response for pipeline status.
type StatusResponse struct {
	Time      time.Time                     `json:"time"`
	Breaker   circuitbreaker.Status         `json:"breaker"`
	Monitor   monitor.Status                `json:"monitor"`
	Providers []providerpool.HealthSnapshot `json:"providers"`
	Executor  execution.Stats               `json:"executor"`
	Daily     DailyStatus                   `json:"daily"`
}

// DailyStatus carries today's admission counters.
type DailyStatus struct {
	LossUsedETH float64 `json:"loss_used_eth"`
	Trades      int     `json:"trades"`
	Wins        int     `json:"wins"`
}

// HandleStatus handles GET /status requests.
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	lossUsed, trades, wins := h.admission.DailySnapshot()

	response := StatusResponse{
		Time:      time.Now().UTC(),
		Breaker:   h.breaker.Status(),
		Monitor:   h.monitor.Status(),
		Providers: h.pool.Snapshot(),
		Executor:  h.executor.Stats(),
		Daily: DailyStatus{
			LossUsedETH: lossUsed,
			Trades:      trades,
			Wins:        wins,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	err := json.NewEncoder(w).Encode(response)
	if err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}
