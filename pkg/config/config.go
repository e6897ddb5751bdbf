package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel string
	HTTPPort string

	// Chain RPC
	RPCEndpoints   []RPCEndpoint
	WSEndpoint     string
	ChainID        int64
	BroadcastTopK  int
	HealthInterval time.Duration
	MaxBlockLag    uint64

	// WebSocket subscription transport
	WSDialTimeout           time.Duration
	WSPongTimeout           time.Duration
	WSPingInterval          time.Duration
	WSReconnectInitialDelay time.Duration
	WSReconnectMaxDelay     time.Duration
	WSReconnectBackoffMult  float64
	WSMessageBufferSize     int

	// Monitor
	HighValueThresholdETH float64
	MonitoredContracts    []string
	PendingTxTTL          time.Duration
	PendingSweepInterval  time.Duration
	MaxPendingCacheSize   int64
	DedupSetCeiling       int
	ReorgCheckInterval    time.Duration

	// Risk & admission
	MaxCompositeScore   float64
	GasPriceCeilingGwei float64
	MinProfitGasRatio   float64
	MaxTokenRisk        float64
	MaxVenueRisk        float64
	MaxSlippage         float64
	LiquidityMultiple   float64
	DailyLossBudgetETH  float64
	MinPositionETH      float64
	MaxPositionETH      float64
	KellyMinTrades      int
	KellyFraction       float64
	OpportunityHorizon  time.Duration

	// Circuit breaker
	BreakerMaxConsecutiveFailures int
	BreakerMaxHourlyFailures      int
	BreakerCooldown               time.Duration
	BreakerStrategyFailureLimit   int

	// Execution
	MaxConcurrentExecutions int
	ConfirmTimeout          time.Duration
	MinSimulatedProfitETH   float64
	BurnerRiskThreshold     float64

	// Wallets
	PrivateKey string
	BurnerKeys []string

	// Bundle relay
	RelayURL        string
	RelaySigningKey string

	// Storage
	StorageMode  string // "postgres" or "console"
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string
}

// RPCEndpoint describes one provider in the pool.
// Encoded in RPC_ENDPOINTS as "name=url@priority", comma separated;
// priority is optional and defaults to 0 (higher is preferred).
type RPCEndpoint struct {
	Name     string
	URL      string
	Priority int
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		// Application defaults
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),

		// Chain RPC defaults
		WSEndpoint:     os.Getenv("WS_ENDPOINT"),
		ChainID:        int64(getIntOrDefault("CHAIN_ID", 1)),
		BroadcastTopK:  getIntOrDefault("BROADCAST_TOP_K", 3),
		HealthInterval: getDurationOrDefault("PROVIDER_HEALTH_INTERVAL", 30*time.Second),
		MaxBlockLag:    uint64(getIntOrDefault("PROVIDER_MAX_BLOCK_LAG", 5)),

		// WebSocket defaults
		WSDialTimeout:           getDurationOrDefault("WS_DIAL_TIMEOUT", 10*time.Second),
		WSPongTimeout:           getDurationOrDefault("WS_PONG_TIMEOUT", 15*time.Second),
		WSPingInterval:          getDurationOrDefault("WS_PING_INTERVAL", 10*time.Second),
		WSReconnectInitialDelay: getDurationOrDefault("WS_RECONNECT_INITIAL_DELAY", 1*time.Second),
		WSReconnectMaxDelay:     getDurationOrDefault("WS_RECONNECT_MAX_DELAY", 30*time.Second),
		WSReconnectBackoffMult:  getFloat64OrDefault("WS_RECONNECT_BACKOFF_MULTIPLIER", 2.0),
		WSMessageBufferSize:     getIntOrDefault("WS_MESSAGE_BUFFER_SIZE", 1000),

		// Monitor defaults
		HighValueThresholdETH: getFloat64OrDefault("HIGH_VALUE_THRESHOLD_ETH", 10.0),
		MonitoredContracts:    getListOrDefault("MONITORED_CONTRACTS", nil),
		PendingTxTTL:          getDurationOrDefault("PENDING_TX_TTL", 60*time.Second),
		PendingSweepInterval:  getDurationOrDefault("PENDING_SWEEP_INTERVAL", 10*time.Second),
		MaxPendingCacheSize:   int64(getIntOrDefault("MAX_PENDING_CACHE_SIZE", 10000)),
		DedupSetCeiling:       getIntOrDefault("DEDUP_SET_CEILING", 50000),
		ReorgCheckInterval:    getDurationOrDefault("REORG_CHECK_INTERVAL", 5*time.Second),

		// Risk defaults
		MaxCompositeScore:   getFloat64OrDefault("MAX_COMPOSITE_SCORE", 7.0),
		GasPriceCeilingGwei: getFloat64OrDefault("GAS_PRICE_CEILING_GWEI", 300.0),
		MinProfitGasRatio:   getFloat64OrDefault("MIN_PROFIT_GAS_RATIO", 2.0),
		MaxTokenRisk:        getFloat64OrDefault("MAX_TOKEN_RISK", 7.0),
		MaxVenueRisk:        getFloat64OrDefault("MAX_VENUE_RISK", 7.0),
		MaxSlippage:         getFloat64OrDefault("MAX_SLIPPAGE", 0.03),
		LiquidityMultiple:   getFloat64OrDefault("LIQUIDITY_MULTIPLE", 10.0),
		DailyLossBudgetETH:  getFloat64OrDefault("DAILY_LOSS_BUDGET_ETH", 1.0),
		MinPositionETH:      getFloat64OrDefault("MIN_POSITION_ETH", 0.01),
		MaxPositionETH:      getFloat64OrDefault("MAX_POSITION_ETH", 10.0),
		KellyMinTrades:      getIntOrDefault("KELLY_MIN_TRADES", 20),
		KellyFraction:       getFloat64OrDefault("KELLY_FRACTION", 0.25),
		OpportunityHorizon:  getDurationOrDefault("OPPORTUNITY_HORIZON", 5*time.Second),

		// Circuit breaker defaults
		BreakerMaxConsecutiveFailures: getIntOrDefault("BREAKER_MAX_CONSECUTIVE_FAILURES", 5),
		BreakerMaxHourlyFailures:      getIntOrDefault("BREAKER_MAX_HOURLY_FAILURES", 20),
		BreakerCooldown:               getDurationOrDefault("BREAKER_COOLDOWN", 5*time.Minute),
		BreakerStrategyFailureLimit:   getIntOrDefault("BREAKER_STRATEGY_FAILURE_LIMIT", 10),

		// Execution defaults
		MaxConcurrentExecutions: getIntOrDefault("MAX_CONCURRENT_EXECUTIONS", 5),
		ConfirmTimeout:          getDurationOrDefault("CONFIRM_TIMEOUT", 30*time.Second),
		MinSimulatedProfitETH:   getFloat64OrDefault("MIN_SIMULATED_PROFIT_ETH", 0.005),
		BurnerRiskThreshold:     getFloat64OrDefault("BURNER_RISK_THRESHOLD", 5.0),

		// Wallets
		PrivateKey: os.Getenv("PRIVATE_KEY"),
		BurnerKeys: getListOrDefault("BURNER_KEYS", nil),

		// Bundle relay defaults
		RelayURL:        getEnvOrDefault("RELAY_URL", "https://relay.flashbots.net"),
		RelaySigningKey: os.Getenv("RELAY_SIGNING_KEY"),

		// Storage defaults
		StorageMode:  getEnvOrDefault("STORAGE_MODE", "console"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "mevflow"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", "mevflow123"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "mevflow"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
	}

	endpoints, err := parseRPCEndpoints(os.Getenv("RPC_ENDPOINTS"))
	if err != nil {
		return nil, fmt.Errorf("parse RPC_ENDPOINTS: %w", err)
	}
	cfg.RPCEndpoints = endpoints

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if len(c.RPCEndpoints) == 0 {
		return fmt.Errorf("RPC_ENDPOINTS cannot be empty")
	}

	if c.MaxCompositeScore <= 0 || c.MaxCompositeScore > 10 {
		return fmt.Errorf("MAX_COMPOSITE_SCORE must be in (0, 10], got %f", c.MaxCompositeScore)
	}

	if c.MinPositionETH > c.MaxPositionETH {
		return fmt.Errorf("MIN_POSITION_ETH %f exceeds MAX_POSITION_ETH %f",
			c.MinPositionETH, c.MaxPositionETH)
	}

	if c.MaxConcurrentExecutions <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_EXECUTIONS must be positive, got %d",
			c.MaxConcurrentExecutions)
	}

	if c.BreakerMaxConsecutiveFailures <= 0 {
		return fmt.Errorf("BREAKER_MAX_CONSECUTIVE_FAILURES must be positive, got %d",
			c.BreakerMaxConsecutiveFailures)
	}

	if c.StorageMode != "postgres" && c.StorageMode != "console" {
		return fmt.Errorf("STORAGE_MODE must be 'postgres' or 'console', got %q", c.StorageMode)
	}

	return nil
}

// parseRPCEndpoints parses "name=url@priority" comma-separated entries.
func parseRPCEndpoints(raw string) ([]RPCEndpoint, error) {
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	endpoints := make([]RPCEndpoint, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		name := ""
		rest := part
		if idx := strings.Index(part, "="); idx >= 0 {
			name = part[:idx]
			rest = part[idx+1:]
		}

		priority := 0
		if idx := strings.LastIndex(rest, "@"); idx >= 0 && !strings.Contains(rest[idx:], "/") {
			p, err := strconv.Atoi(rest[idx+1:])
			if err != nil {
				return nil, fmt.Errorf("invalid priority in %q: %w", part, err)
			}
			priority = p
			rest = rest[:idx]
		}

		if name == "" {
			name = fmt.Sprintf("provider-%d", len(endpoints))
		}

		endpoints = append(endpoints, RPCEndpoint{
			Name:     name,
			URL:      rest,
			Priority: priority,
		})
	}

	return endpoints, nil
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	list := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			list = append(list, part)
		}
	}

	return list
}
