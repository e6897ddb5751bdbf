package app

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
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
	"github.com/sgriggs/mevflow/pkg/relay"
	"github.com/sgriggs/mevflow/pkg/types"
	"github.com/sgriggs/mevflow/pkg/wallet"
	"go.uber.org/zap"
)

// New creates a new application instance.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	healthChecker := healthprobe.New()

	pool, err := setupProviderPool(ctx, cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup provider pool: %w", err)
	}

	wsManager := setupWSManager(cfg, logger)

	mon, err := setupMonitor(cfg, logger, pool, wsManager)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup monitor: %w", err)
	}

	runner, err := strategy.NewRunner(&strategy.RunnerConfig{
		Monitor:    mon,
		Strategies: opts.Strategies,
		Logger:     logger,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup strategy runner: %w", err)
	}

	breaker, err := circuitbreaker.New(&circuitbreaker.Config{
		MaxConsecutiveFailures: cfg.BreakerMaxConsecutiveFailures,
		MaxHourlyFailures:      cfg.BreakerMaxHourlyFailures,
		Cooldown:               cfg.BreakerCooldown,
		StrategyFailureLimit:   cfg.BreakerStrategyFailureLimit,
		Logger:                 logger,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup circuit breaker: %w", err)
	}

	wallets, err := wallet.NewManager(&wallet.Config{
		PrivateKey: cfg.PrivateKey,
		BurnerKeys: cfg.BurnerKeys,
		ChainID:    cfg.ChainID,
		Logger:     logger,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup wallets: %w", err)
	}

	ctrl, err := admission.NewController(&admission.ControllerConfig{
		Config:  cfg,
		Breaker: breaker,
		Balance: &walletBalance{pool: pool, wallets: wallets},
		Logger:  logger,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup admission controller: %w", err)
	}

	sink, err := setupSink(cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup storage: %w", err)
	}

	executor, err := setupExecutor(cfg, logger, pool, wallets, breaker, ctrl, runner, sink)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup executor: %w", err)
	}

	statusHandler := httpserver.NewStatusHandler(breaker, mon, pool, executor, ctrl, logger)
	httpServer := httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: healthChecker,
		Status:        statusHandler,
	})

	return &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: healthChecker,
		httpServer:    httpServer,
		pool:          pool,
		wsManager:     wsManager,
		monitor:       mon,
		runner:        runner,
		breaker:       breaker,
		admission:     ctrl,
		wallets:       wallets,
		sink:          sink,
		executor:      executor,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

func setupProviderPool(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*providerpool.Pool, error) {
	return providerpool.Dial(ctx, &providerpool.PoolConfig{
		HealthInterval: cfg.HealthInterval,
		MaxBlockLag:    cfg.MaxBlockLag,
		Logger:         logger,
	}, cfg.RPCEndpoints)
}

func setupWSManager(cfg *config.Config, logger *zap.Logger) *chainws.Manager {
	return chainws.New(chainws.Config{
		URL:                   cfg.WSEndpoint,
		DialTimeout:           cfg.WSDialTimeout,
		PongTimeout:           cfg.WSPongTimeout,
		PingInterval:          cfg.WSPingInterval,
		ReconnectInitialDelay: cfg.WSReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.WSReconnectMaxDelay,
		ReconnectBackoffMult:  cfg.WSReconnectBackoffMult,
		MessageBufferSize:     cfg.WSMessageBufferSize,
		Logger:                logger,
	})
}

func setupMonitor(cfg *config.Config, logger *zap.Logger, pool *providerpool.Pool, ws *chainws.Manager) (*monitor.Monitor, error) {
	return monitor.New(&monitor.Config{
		Config:   cfg,
		Pool:     pool,
		WS:       ws,
		Registry: defaultRegistry(),
		Logger:   logger,
	})
}

// defaultRegistry binds the common DEX and lending selectors as wildcard
// entries; contract-specific decoders are layered on by strategies.
func defaultRegistry() *monitor.Registry {
	registry := monitor.NewRegistry()

	wildcard := common.Address{}

	// Uniswap V2 style routers.
	registry.Register(wildcard, monitor.Selector{0x38, 0xed, 0x17, 0x39}, types.EventSwap) // swapExactTokensForTokens
	registry.Register(wildcard, monitor.Selector{0x7f, 0xf3, 0x6a, 0xb5}, types.EventSwap) // swapExactETHForTokens
	registry.Register(wildcard, monitor.Selector{0x18, 0xcb, 0xaf, 0xe5}, types.EventSwap) // swapExactTokensForETH

	// Uniswap V3 router.
	registry.Register(wildcard, monitor.Selector{0x41, 0x4b, 0xf3, 0x89}, types.EventSwap) // exactInputSingle

	// Aave style lending pools.
	registry.Register(wildcard, monitor.Selector{0x00, 0xa7, 0x18, 0xa9}, types.EventLiquidation) // liquidationCall
	registry.Register(wildcard, monitor.Selector{0xab, 0x9c, 0x4b, 0x5d}, types.EventFlashLoan)   // flashLoan
	registry.Register(wildcard, monitor.Selector{0x42, 0xb0, 0xb7, 0x7c}, types.EventFlashLoan)   // flashLoanSimple

	return registry
}

func setupSink(cfg *config.Config, logger *zap.Logger) (storage.Sink, error) {
	if cfg.StorageMode == "postgres" {
		sink, err := storage.NewPostgresSink(&storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres sink: %w", err)
		}
		return sink, nil
	}

	return storage.NewConsoleSink(logger), nil
}

func setupExecutor(
	cfg *config.Config,
	logger *zap.Logger,
	pool *providerpool.Pool,
	wallets *wallet.Manager,
	breaker *circuitbreaker.Breaker,
	ctrl *admission.Controller,
	runner *strategy.Runner,
	sink storage.Sink,
) (*execution.Executor, error) {
	nonces, err := execution.NewNonceManager(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("create nonce manager: %w", err)
	}

	relayClient, err := setupRelay(cfg, logger)
	if err != nil {
		return nil, err
	}

	var bundleRelay execution.BundleRelay
	if relayClient != nil {
		bundleRelay = relayClient
	}

	return execution.New(&execution.Config{
		Config:        cfg,
		Pool:          pool,
		Wallets:       wallets,
		Nonces:        nonces,
		Simulator:     execution.NewCallSimulator(pool, logger),
		Relay:         bundleRelay,
		Breaker:       breaker,
		Admission:     ctrl,
		Strategies:    runner,
		Sink:          sink,
		Opportunities: runner.Opportunities(),
		Logger:        logger,
	})
}

// setupRelay builds the bundle relay client when a signing key is
// configured; without one, bundle dispatch is unavailable.
func setupRelay(cfg *config.Config, logger *zap.Logger) (*relay.Client, error) {
	if cfg.RelaySigningKey == "" {
		logger.Info("bundle-relay-disabled",
			zap.String("reason", "RELAY_SIGNING_KEY not set"))
		return nil, nil
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.RelaySigningKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse relay signing key: %w", err)
	}

	return relay.NewClient(&relay.Config{
		Endpoint:   cfg.RelayURL,
		SigningKey: key,
		Logger:     logger,
	})
}

// walletBalance adapts the main wallet's native balance to the admission
// controller's balance source.
type walletBalance struct {
	pool    *providerpool.Pool
	wallets *wallet.Manager
}

func (w *walletBalance) AvailableBalance(ctx context.Context) (float64, error) {
	balance, err := w.wallets.Balance(ctx, w.pool, w.wallets.Main())
	if err != nil {
		return 0, err
	}

	eth, _ := new(big.Float).Quo(new(big.Float).SetInt(balance), big.NewFloat(1e18)).Float64()
	return eth, nil
}
