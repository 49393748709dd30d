// internal/exchange/simulator.go
package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/whale-tracker/internal/domain"
)

type scriptedPosition struct {
	symbol, size, entry, pnl string
}

// simulationScript is replayed for every address: ETH opens, ETH grows and
// BTC opens, ETH closes while BTC shrinks and a SOL short opens, then
// everything is flat.
var simulationScript = [][]scriptedPosition{
	{
		{"ETH", "10", "2500", "500"},
	},
	{
		{"ETH", "12", "2500", "750"},
		{"BTC", "0.5", "45000", "1000"},
	},
	{
		{"BTC", "0.3", "45000", "500"},
		{"SOL", "-1000", "100", "-2000"},
	},
	{},
}

// SimulationCycles is the number of distinct scripted states.
var SimulationCycles = len(simulationScript)

// Simulator is a Fetcher that walks every address through a fixed script,
// one step per call. After the last step it keeps returning the final state.
type Simulator struct {
	mu    sync.Mutex
	steps map[string]int
	now   func() time.Time
}

func NewSimulator() *Simulator {
	return &Simulator{steps: make(map[string]int), now: time.Now}
}

func (s *Simulator) FetchPositions(ctx context.Context, address string) (domain.Positions, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	step := s.steps[address]
	if step < len(simulationScript)-1 {
		s.steps[address] = step + 1
	}
	s.mu.Unlock()

	at := s.now()
	positions := make(domain.Positions)
	for _, sp := range simulationScript[step] {
		positions[sp.symbol] = domain.NewPosition(sp.symbol,
			decimal.RequireFromString(sp.size),
			decimal.RequireFromString(sp.entry),
			decimal.RequireFromString(sp.pnl),
			at)
	}
	return positions, nil
}
