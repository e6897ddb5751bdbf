package cmd

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/joho/godotenv"
	"github.com/sgriggs/mevflow/pkg/config"
	"github.com/sgriggs/mevflow/pkg/providerpool"
	"github.com/sgriggs/mevflow/pkg/wallet"
	"github.com/spf13/cobra"
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Check wallet balances",
	Long: `Display the native balance of the main wallet and every configured
burner wallet, fetched through the provider pool with fallback.`,
	RunE: runBalance,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func runBalance(cmd *cobra.Command, args []string) error {
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

	wallets, err := wallet.NewManager(&wallet.Config{
		PrivateKey: cfg.PrivateKey,
		BurnerKeys: cfg.BurnerKeys,
		ChainID:    cfg.ChainID,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("create wallet manager: %w", err)
	}

	fmt.Printf("=== Wallet Balances ===\n\n")

	mainKey := wallets.Main()
	balance, err := wallets.Balance(ctx, pool, mainKey)
	if err != nil {
		return fmt.Errorf("get main balance: %w", err)
	}

	fmt.Printf("Main   %s  %s ETH\n", mainKey.Address.Hex(), formatEther(balance))

	for i := 0; i < len(cfg.BurnerKeys); i++ {
		key := wallets.NextBurner()

		balance, err = wallets.Balance(ctx, pool, key)
		if err != nil {
			fmt.Printf("Burner %s  error: %v\n", key.Address.Hex(), err)
			continue
		}

		fmt.Printf("Burner %s  %s ETH\n", key.Address.Hex(), formatEther(balance))
	}

	return nil
}

func formatEther(wei *big.Int) string {
	eth := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e18))
	return eth.Text('f', 6)
}
