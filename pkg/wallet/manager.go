package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sgriggs/mevflow/pkg/providerpool"
	"go.uber.org/zap"
)

// Key is one signing identity.
type Key struct {
	Address common.Address
	priv    *ecdsa.PrivateKey
}

// Manager holds the main wallet plus a rotating set of burner wallets.
// Burners are handed out round-robin for adversarial opportunity kinds so a
// single identity is not linkable across sandwich attempts.
type Manager struct {
	main    *Key
	burners []*Key
	rrIdx   atomic.Uint32
	signer  gethtypes.Signer
	logger  *zap.Logger
}

// Config holds wallet manager configuration.
type Config struct {
	PrivateKey string   // hex, main wallet
	BurnerKeys []string // hex, optional
	ChainID    int64
	Logger     *zap.Logger
}

// NewManager parses keys and builds the manager.
func NewManager(cfg *Config) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.PrivateKey == "" {
		return nil, errors.New("private key cannot be empty")
	}
	if cfg.ChainID <= 0 {
		return nil, errors.New("chain id must be positive")
	}

	main, err := parseKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("parse main key: %w", err)
	}

	burners := make([]*Key, 0, len(cfg.BurnerKeys))
	for i, hex := range cfg.BurnerKeys {
		key, err := parseKey(hex)
		if err != nil {
			return nil, fmt.Errorf("parse burner key %d: %w", i, err)
		}
		burners = append(burners, key)
	}

	cfg.Logger.Info("wallet-manager-initialized",
		zap.String("main", main.Address.Hex()),
		zap.Int("burners", len(burners)))

	WalletsLoaded.Set(float64(1 + len(burners)))

	return &Manager{
		main:    main,
		burners: burners,
		signer:  gethtypes.LatestSignerForChainID(big.NewInt(cfg.ChainID)),
		logger:  cfg.Logger,
	}, nil
}

// Main returns the primary wallet.
func (m *Manager) Main() *Key {
	return m.main
}

// NextBurner returns the next burner wallet round-robin. Falls back to the
// main wallet when no burners are configured.
func (m *Manager) NextBurner() *Key {
	if len(m.burners) == 0 {
		return m.main
	}

	idx := m.rrIdx.Add(1)
	key := m.burners[int(idx-1)%len(m.burners)]

	BurnerRotationsTotal.Inc()

	return key
}

// SignTx signs a transaction with the given key for the configured chain.
func (m *Manager) SignTx(key *Key, tx *gethtypes.Transaction) (*gethtypes.Transaction, error) {
	signed, err := gethtypes.SignTx(tx, m.signer, key.priv)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}

	TransactionsSignedTotal.Inc()

	return signed, nil
}

// Balance fetches the key's native balance through the provider pool.
func (m *Manager) Balance(ctx context.Context, pool *providerpool.Pool, key *Key) (*big.Int, error) {
	var balance *big.Int

	err := pool.WithFallback(ctx, func(ctx context.Context, backend providerpool.Backend) error {
		var err error
		balance, err = backend.BalanceAt(ctx, key.Address, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}

	return balance, nil
}

func parseKey(hex string) (*Key, error) {
	priv, err := crypto.HexToECDSA(strings.TrimPrefix(hex, "0x"))
	if err != nil {
		return nil, err
	}

	return &Key{
		Address: crypto.PubkeyToAddress(priv.PublicKey),
		priv:    priv,
	}, nil
}
