package wallet

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WalletsLoaded tracks the number of configured signing identities.
	WalletsLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mevflow_wallets_loaded",
		Help: "Number of loaded wallet keys including burners",
	})

	// BurnerRotationsTotal counts burner wallet round-robin selections.
	BurnerRotationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mevflow_wallet_burner_rotations_total",
		Help: "Total burner wallet selections",
	})

	// TransactionsSignedTotal counts signed transactions.
	TransactionsSignedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mevflow_wallet_transactions_signed_total",
		Help: "Total transactions signed",
	})
)
