package tracker

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/whale-tracker/internal/domain"
)

const testAddr = "0x1111111111111111111111111111111111111111"

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func pos(symbol, size, price string) domain.Position {
	return domain.NewPosition(symbol, dec(size), dec(price), decimal.Zero, time.Unix(1700000000, 0).UTC())
}

func TestDetect_Scenario(t *testing.T) {
	d := NewDetector(dec("500"))
	prev := domain.Positions{"ETH": pos("ETH", "10", "2500")}
	cur := domain.Positions{
		"ETH": pos("ETH", "15", "2500"),
		"BTC": pos("BTC", "0.5", "45000"),
	}

	changes := d.Detect(testAddr, prev, cur, time.Now())
	require.Len(t, changes, 2)

	assert.Equal(t, "BTC", changes[0].Symbol)
	assert.Equal(t, domain.ChangeOpened, changes[0].Kind)
	assert.True(t, changes[0].Magnitude.Equal(dec("22500")))
	assert.Nil(t, changes[0].Previous)

	assert.Equal(t, "ETH", changes[1].Symbol)
	assert.Equal(t, domain.ChangeIncreased, changes[1].Kind)
	assert.True(t, changes[1].Magnitude.Equal(dec("12500")))

	for _, c := range changes {
		assert.NoError(t, c.Validate())
		assert.Equal(t, testAddr, c.Address)
	}
}

func TestDetect_SelfDiff(t *testing.T) {
	snapshots := []domain.Positions{
		nil,
		{},
		{"ETH": pos("ETH", "10", "2500")},
		{"ETH": pos("ETH", "10", "2500"), "BTC": pos("BTC", "-1", "45000"), "SOL": pos("SOL", "100", "150")},
	}

	for _, threshold := range []string{"0", "500"} {
		d := NewDetector(dec(threshold))
		for i, s := range snapshots {
			t.Run(fmt.Sprintf("threshold %s snapshot %d", threshold, i), func(t *testing.T) {
				assert.Empty(t, d.Detect(testAddr, s, s.Clone(), time.Now()))
			})
		}
	}
}

func TestDetect_Rules(t *testing.T) {
	d := NewDetector(dec("500"))

	tests := []struct {
		name      string
		prev      domain.Positions
		cur       domain.Positions
		wantKind  domain.ChangeKind
		wantMag   string
		wantEmpty bool
	}{
		{
			name:     "closed uses previous value",
			prev:     domain.Positions{"ETH": pos("ETH", "10", "2500")},
			cur:      domain.Positions{},
			wantKind: domain.ChangeClosed,
			wantMag:  "25000",
		},
		{
			name:      "delta below threshold",
			prev:      domain.Positions{"ETH": pos("ETH", "10", "2500")},
			cur:       domain.Positions{"ETH": pos("ETH", "10.1", "2500")},
			wantEmpty: true,
		},
		{
			name:     "delta at threshold",
			prev:     domain.Positions{"ETH": pos("ETH", "10", "2500")},
			cur:      domain.Positions{"ETH": pos("ETH", "10.2", "2500")},
			wantKind: domain.ChangeIncreased,
			wantMag:  "500",
		},
		{
			name:     "decrease",
			prev:     domain.Positions{"BTC": pos("BTC", "-1", "45000")},
			cur:      domain.Positions{"BTC": pos("BTC", "-0.5", "45000")},
			wantKind: domain.ChangeDecreased,
			wantMag:  "22500",
		},
		{
			name:      "side flip with equal value is quiet",
			prev:      domain.Positions{"SOL": pos("SOL", "100", "150")},
			cur:       domain.Positions{"SOL": pos("SOL", "-100", "150")},
			wantEmpty: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changes := d.Detect(testAddr, tt.prev, tt.cur, time.Now())
			if tt.wantEmpty {
				assert.Empty(t, changes)
				return
			}
			require.Len(t, changes, 1)
			assert.Equal(t, tt.wantKind, changes[0].Kind)
			assert.True(t, changes[0].Magnitude.Equal(dec(tt.wantMag)), "magnitude %s", changes[0].Magnitude)
			assert.NoError(t, changes[0].Validate())
		})
	}
}

func TestDetect_SortedAndIsolated(t *testing.T) {
	d := NewDetector(dec("500"))
	prev := domain.Positions{"ZEC": pos("ZEC", "100", "50"), "AVAX": pos("AVAX", "200", "30")}
	cur := domain.Positions{"BTC": pos("BTC", "1", "45000"), "DOGE": pos("DOGE", "100000", "0.1")}

	changes := d.Detect(testAddr, prev, cur, time.Now())
	var got []string
	for _, c := range changes {
		got = append(got, c.Symbol+":"+c.Kind.String())
	}
	assert.Equal(t, []string{"AVAX:closed", "BTC:opened", "DOGE:opened", "ZEC:closed"}, got)

	// the returned positions are copies
	changes[1].Current.Size = dec("99")
	assert.True(t, cur["BTC"].Size.Equal(dec("1")))
}
