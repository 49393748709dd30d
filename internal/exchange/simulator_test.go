package exchange

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/whale-tracker/internal/domain"
)

func TestSimulator_Script(t *testing.T) {
	sim := NewSimulator()
	ctx := context.Background()

	symbols := func(p domain.Positions) []string {
		var out []string
		for _, s := range []string{"BTC", "ETH", "SOL"} {
			if _, ok := p[s]; ok {
				out = append(out, s)
			}
		}
		return out
	}

	want := [][]string{{"ETH"}, {"BTC", "ETH"}, {"BTC", "SOL"}, nil, nil}
	for i, w := range want {
		p, err := sim.FetchPositions(ctx, testAddr)
		require.NoError(t, err)
		assert.Equal(t, w, symbols(p), "step %d", i)
	}

	// addresses advance independently
	p, err := sim.FetchPositions(ctx, "0x3333333333333333333333333333333333333333")
	require.NoError(t, err)
	assert.Equal(t, []string{"ETH"}, symbols(p))
	assert.True(t, p["ETH"].MarketValue.Equal(decimal.NewFromInt(25000)))
}

func TestSimulator_ShortSide(t *testing.T) {
	sim := NewSimulator()
	for i := 0; i < 2; i++ {
		_, err := sim.FetchPositions(context.Background(), testAddr)
		require.NoError(t, err)
	}
	p, err := sim.FetchPositions(context.Background(), testAddr)
	require.NoError(t, err)
	assert.Equal(t, domain.SideShort, p["SOL"].Side)
	assert.True(t, p["SOL"].MarketValue.Equal(decimal.NewFromInt(100000)))
}

func TestSimulator_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSimulator().FetchPositions(ctx, testAddr)
	assert.ErrorIs(t, err, context.Canceled)
}
