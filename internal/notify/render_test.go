package notify

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/rovshanmuradov/whale-tracker/internal/domain"
)

const renderAddr = "0xabcdef0000000000000000000000000000001234"

func TestRender_AllKinds(t *testing.T) {
	at := time.Date(2024, 3, 1, 14, 5, 9, 0, time.UTC)
	prev := domain.NewPosition("ETH", decimal.NewFromInt(10), decimal.NewFromInt(2500), decimal.RequireFromString("-321.5"), at)
	cur := domain.NewPosition("ETH", decimal.NewFromInt(15), decimal.NewFromInt(2500), decimal.Zero, at)

	tests := []struct {
		change domain.PositionChange
		want   []string
	}{
		{
			domain.PositionChange{Kind: domain.ChangeOpened, Current: &cur, Magnitude: cur.MarketValue},
			[]string{"🟢 <b>Whale &amp; Co</b>", "OPENED ETH LONG", "$37,500.00 @ $2500"},
		},
		{
			domain.PositionChange{Kind: domain.ChangeClosed, Previous: &prev, Magnitude: prev.MarketValue},
			[]string{"🔴", "CLOSED ETH LONG", "$25,000.00", "PnL: -$321.50"},
		},
		{
			domain.PositionChange{Kind: domain.ChangeIncreased, Previous: &prev, Current: &cur, Magnitude: decimal.NewFromInt(12500)},
			[]string{"📈", "INCREASED ETH LONG", "+$12,500.00", "Total: $37,500.00"},
		},
		{
			domain.PositionChange{Kind: domain.ChangeDecreased, Previous: &cur, Current: &prev, Magnitude: decimal.NewFromInt(12500)},
			[]string{"📉", "DECREASED ETH LONG", "-$12,500.00", "Total: $25,000.00"},
		},
	}

	assert.Len(t, tests, len(domain.ChangeKinds))
	for _, tt := range tests {
		t.Run(tt.change.Kind.String(), func(t *testing.T) {
			tt.change.Address = renderAddr
			tt.change.Symbol = "ETH"
			tt.change.OccurredAt = at

			msg := Render(tt.change, "Whale & Co")
			for _, want := range tt.want {
				assert.Contains(t, msg, want)
			}
			assert.Contains(t, msg, "🕐 14:05:09")
			assert.Contains(t, msg, "<a href='https://hyperdash.xyz/address/"+renderAddr+"'>")
		})
	}
}

func TestRender_UnknownKindPanics(t *testing.T) {
	assert.Panics(t, func() {
		Render(domain.PositionChange{Kind: 42}, "x")
	})
}

func TestFormatUSD(t *testing.T) {
	tests := map[string]string{
		"0":          "$0.00",
		"999.999":    "$1,000.00",
		"1000":       "$1,000.00",
		"123456.7":   "$123,456.70",
		"1234567.89": "$1,234,567.89",
		"-22500":     "-$22,500.00",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatUSD(decimal.RequireFromString(in)), in)
	}
	assert.Equal(t, "+$5.00", FormatSignedUSD(decimal.NewFromInt(5)))
	assert.Equal(t, "-$5.00", FormatSignedUSD(decimal.NewFromInt(-5)))
}

func TestRenderNotices(t *testing.T) {
	at := time.Date(2024, 3, 1, 14, 5, 9, 0, time.UTC)

	msg := RenderError(errors.New("fetch <failed>"), at)
	assert.Contains(t, msg, "fetch &lt;failed&gt;")
	assert.Contains(t, msg, "14:05:09")

	msg = RenderStartup(StartupInfo{
		Addresses:          3,
		PollingInterval:    30 * time.Second,
		MinPositionSize:    decimal.NewFromInt(1000),
		MinChangeThreshold: decimal.NewFromInt(500),
	})
	assert.Contains(t, msg, "Monitoring 3 addresses")
	assert.Contains(t, msg, "Polling every 30s")
	assert.Contains(t, msg, "Min position: $1,000.00")
	assert.False(t, strings.Contains(msg, "Simulation"))

	assert.Contains(t, RenderShutdown(at), "2024-03-01 14:05:09")
}
