package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown gracefully shuts down the application.
// Intake stops first so in-flight executions can settle before the
// infrastructure below them goes away.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)

	// Cancel context to signal all components
	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Shutdown HTTP server
	err := a.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	// Stop strategy routing so no new opportunities enter the pipeline
	a.runner.Stop()

	// Drain in-flight executions
	a.executor.Stop()

	// Stop event ingestion
	a.monitor.Stop()

	// Close WebSocket subscriptions
	err = a.wsManager.Close()
	if err != nil {
		a.logger.Error("websocket-manager-close-error", zap.Error(err))
	}

	// Close provider pool
	err = a.pool.Close()
	if err != nil {
		a.logger.Error("provider-pool-close-error", zap.Error(err))
	}

	// Close storage last; outcome writes may still be flushing above
	err = a.sink.Close()
	if err != nil {
		a.logger.Error("storage-close-error", zap.Error(err))
	}

	// Wait for all goroutines
	a.wg.Wait()

	a.logger.Info("application-shutdown-complete")

	return nil
}
