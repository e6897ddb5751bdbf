package chainws

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReconnectConfig controls the retry schedule for dropped connections.
type ReconnectConfig struct {
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterPercent     float64 // 0.2 spreads each delay by up to 20%
}

// ReconnectManager schedules reconnection attempts. The delay is derived
// from the consecutive-failure count, so a successful connect resets the
// schedule to the initial delay.
type ReconnectManager struct {
	cfg    ReconnectConfig
	logger *zap.Logger

	mu       sync.Mutex
	failures int
}

// NewReconnectManager creates a reconnection manager.
func NewReconnectManager(cfg ReconnectConfig, logger *zap.Logger) *ReconnectManager {
	return &ReconnectManager{cfg: cfg, logger: logger}
}

// Reconnect retries connect until it succeeds or the context ends, waiting
// out the backoff delay before each attempt.
func (rm *ReconnectManager) Reconnect(ctx context.Context, connect func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		delay := rm.nextBackoff()

		rm.logger.Info("reconnect-scheduled",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay))
		ReconnectAttemptsTotal.Inc()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if err := connect(ctx); err != nil {
			rm.logger.Warn("reconnect-failed",
				zap.Int("attempt", attempt),
				zap.Error(err))
			ReconnectFailuresTotal.Inc()
			rm.incrementBackoff()
			continue
		}

		rm.Reset()
		rm.logger.Info("reconnect-established", zap.Int("attempt", attempt))
		return nil
	}
}

// Reset clears the failure count, restoring the initial delay.
func (rm *ReconnectManager) Reset() {
	rm.mu.Lock()
	rm.failures = 0
	rm.mu.Unlock()
}

func (rm *ReconnectManager) incrementBackoff() {
	rm.mu.Lock()
	rm.failures++
	rm.mu.Unlock()
}

// nextBackoff computes initial*multiplier^failures capped at MaxDelay, with
// jitter on top so concurrent reconnects spread out.
func (rm *ReconnectManager) nextBackoff() time.Duration {
	rm.mu.Lock()
	failures := rm.failures
	rm.mu.Unlock()

	delay := float64(rm.cfg.InitialDelay) * math.Pow(rm.cfg.BackoffMultiplier, float64(failures))
	if capped := float64(rm.cfg.MaxDelay); delay > capped {
		delay = capped
	}

	return time.Duration(delay * (1 + rand.Float64()*rm.cfg.JitterPercent))
}
