package monitor

import (
	"math/big"
	"sync"
)

const gasWindowSize = 10

// GasTracker keeps a rolling window of recent base fees and exposes a
// smoothed gas price for gasUpdate events.
type GasTracker struct {
	mu     sync.Mutex
	window []*big.Int
}

// NewGasTracker creates an empty tracker.
func NewGasTracker() *GasTracker {
	return &GasTracker{}
}

// Observe records a block base fee and returns the rolling average, or nil
// when the fee is absent (pre-EIP-1559 chains).
func (g *GasTracker) Observe(baseFee *big.Int) *big.Int {
	if baseFee == nil {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.window = append(g.window, new(big.Int).Set(baseFee))
	if len(g.window) > gasWindowSize {
		g.window = g.window[len(g.window)-gasWindowSize:]
	}

	sum := new(big.Int)
	for _, fee := range g.window {
		sum.Add(sum, fee)
	}

	return sum.Div(sum, big.NewInt(int64(len(g.window))))
}

// Current returns the latest rolling average without recording anything.
func (g *GasTracker) Current() *big.Int {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.window) == 0 {
		return nil
	}

	sum := new(big.Int)
	for _, fee := range g.window {
		sum.Add(sum, fee)
	}

	return sum.Div(sum, big.NewInt(int64(len(g.window))))
}
