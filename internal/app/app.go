package app

import (
	"context"
	"sync"

	"github.com/sgriggs/mevflow/internal/admission"
	"github.com/sgriggs/mevflow/internal/circuitbreaker"
	"github.com/sgriggs/mevflow/internal/execution"
	"github.com/sgriggs/mevflow/internal/monitor"
	"github.com/sgriggs/mevflow/internal/storage"
	"github.com/sgriggs/mevflow/internal/strategy"
	"github.com/sgriggs/mevflow/pkg/chainws"
	"github.com/sgriggs/mevflow/pkg/config"
	"github.com/sgriggs/mevflow/pkg/healthprobe"
	"github.com/sgriggs/mevflow/pkg/httpserver"
	"github.com/sgriggs/mevflow/pkg/providerpool"
	"github.com/sgriggs/mevflow/pkg/wallet"
	"go.uber.org/zap"
)

// App is the main application orchestrator.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server
	pool          *providerpool.Pool
	wsManager     *chainws.Manager
	monitor       *monitor.Monitor
	runner        *strategy.Runner
	breaker       *circuitbreaker.Breaker
	admission     *admission.Controller
	wallets       *wallet.Manager
	sink          storage.Sink
	executor      *execution.Executor
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// Options holds application options.
type Options struct {
	// Strategies to register with the runner. The pipeline runs with none
	// registered, which is useful for infrastructure smoke tests.
	Strategies []strategy.Strategy
}
