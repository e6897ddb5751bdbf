package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/sgriggs/mevflow/pkg/config"
	"github.com/sgriggs/mevflow/pkg/providerpool"
	"github.com/sgriggs/mevflow/pkg/wallet"
	"github.com/spf13/cobra"
)

var nonceAddress string

var nonceCmd = &cobra.Command{
	Use:   "nonce",
	Short: "Query pending nonces",
	Long: `Display the chain's pending nonce for the main wallet, or for an
arbitrary address given with --address. Useful when diagnosing stuck or
replaced transactions.`,
	RunE: runNonce,
}

func init() {
	rootCmd.AddCommand(nonceCmd)

	nonceCmd.Flags().StringVarP(&nonceAddress, "address", "a", "", "Address to query instead of the main wallet")
}

func runNonce(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Warning: .env file not found\n")
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := providerpool.Dial(ctx, &providerpool.PoolConfig{
		HealthInterval: cfg.HealthInterval,
		MaxBlockLag:    cfg.MaxBlockLag,
		Logger:         logger,
	}, cfg.RPCEndpoints)
	if err != nil {
		return fmt.Errorf("dial providers: %w", err)
	}
	defer pool.Close()

	var address common.Address
	if nonceAddress != "" {
		if !common.IsHexAddress(nonceAddress) {
			return fmt.Errorf("invalid address %q", nonceAddress)
		}
		address = common.HexToAddress(nonceAddress)
	} else {
		wallets, err := wallet.NewManager(&wallet.Config{
			PrivateKey: cfg.PrivateKey,
			BurnerKeys: cfg.BurnerKeys,
			ChainID:    cfg.ChainID,
			Logger:     logger,
		})
		if err != nil {
			return fmt.Errorf("create wallet manager: %w", err)
		}
		address = wallets.Main().Address
	}

	var pending uint64
	err = pool.WithFallback(ctx, func(ctx context.Context, backend providerpool.Backend) error {
		var err error
		pending, err = backend.PendingNonceAt(ctx, address)
		return err
	})
	if err != nil {
		return fmt.Errorf("get pending nonce: %w", err)
	}

	fmt.Printf("Address: %s\n", address.Hex())
	fmt.Printf("Pending nonce: %d\n", pending)

	return nil
}
