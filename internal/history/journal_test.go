package history

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/whale-tracker/internal/domain"
	"github.com/rovshanmuradov/whale-tracker/internal/events"
)

const (
	addrA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	addrB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

var at = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func opened(addr, symbol string, value int64) domain.PositionChange {
	p := domain.NewPosition(symbol, decimal.NewFromInt(1), decimal.NewFromInt(value), decimal.Zero, at)
	return domain.PositionChange{
		Address:    addr,
		Symbol:     symbol,
		Kind:       domain.ChangeOpened,
		Current:    &p,
		Magnitude:  p.MarketValue,
		OccurredAt: at,
	}
}

func closed(addr, symbol string, value int64) domain.PositionChange {
	p := domain.NewPosition(symbol, decimal.NewFromInt(-1), decimal.NewFromInt(value), decimal.Zero, at)
	return domain.PositionChange{
		Address:    addr,
		Symbol:     symbol,
		Kind:       domain.ChangeClosed,
		Previous:   &p,
		Magnitude:  p.MarketValue,
		OccurredAt: at,
	}
}

func TestJournal_RecordAndCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "changes.csv")
	j, err := Open(path, 10, time.Hour, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, j.Record(opened(addrA, "BTC", 45000), "Quiet Whale"))
	require.NoError(t, j.Record(closed(addrB, "SOL", 100000), "Loud Shark"))
	assert.Equal(t, uint64(2), j.Stats().Persisted)
	require.NoError(t, j.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{"2024-06-01T10:00:00Z", addrA, "Quiet Whale", "BTC", "opened", "long", "45000", "", "45000", "45000"}, rows[1])
	assert.Equal(t, "closed", rows[2][4])
	assert.Equal(t, "short", rows[2][5])
	assert.Equal(t, "100000", rows[2][7])
	assert.Equal(t, "", rows[2][8])
}

func TestJournal_RingAndRecent(t *testing.T) {
	j, err := Open("", 3, time.Hour, zap.NewNop())
	require.NoError(t, err)

	for _, sym := range []string{"A", "B", "C", "D", "E"} {
		require.NoError(t, j.Record(opened(addrA, sym, 2000), ""))
	}

	var got []string
	for _, e := range j.Recent(0) {
		got = append(got, e.Change.Symbol)
	}
	assert.Equal(t, []string{"E", "D", "C"}, got)
	assert.Len(t, j.Recent(2), 2)
	assert.Len(t, j.Recent(99), 3)

	stats := j.Stats()
	assert.Equal(t, 5, stats.Total, "stats cover evicted entries too")
	assert.Equal(t, 5, stats.ByKind[domain.ChangeOpened])
	assert.True(t, stats.TotalMagnitude.Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, 1, stats.ActiveAddresses)
	assert.NoError(t, j.Close())
}

func TestJournal_TopMoversAndForAddress(t *testing.T) {
	j, err := Open("", 10, time.Hour, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, j.Record(opened(addrA, "BTC", 45000), ""))
	require.NoError(t, j.Record(opened(addrB, "ETH", 3000), ""))
	require.NoError(t, j.Record(closed(addrB, "SOL", 50000), ""))

	assert.Equal(t, []string{addrB, addrA}, j.TopMovers(5))
	assert.Equal(t, []string{addrB}, j.TopMovers(1))
	assert.Len(t, j.ForAddress(addrB), 2)
}

func TestJournal_FedByBus(t *testing.T) {
	bus := events.NewBus(zap.NewNop(), 16)
	j, err := Open("", 10, time.Hour, zap.NewNop())
	require.NoError(t, err)
	j.Subscribe(bus)

	require.NoError(t, bus.Publish(&events.ChangeDetectedEvent{
		BaseEvent: events.NewBase(events.ChangeDetected),
		Change:    opened(addrA, "BTC", 45000),
		Label:     "Quiet Whale",
	}))
	require.NoError(t, bus.Close())

	recent := j.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, "Quiet Whale", recent[0].Label)
}
