package positions

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/whale-tracker/internal/domain"
)

const (
	addrA = "0x1111111111111111111111111111111111111111"
	addrB = "0x2222222222222222222222222222222222222222"
)

func pos(symbol, size, price, pnl string) domain.Position {
	return domain.NewPosition(symbol,
		decimal.RequireFromString(size),
		decimal.RequireFromString(price),
		decimal.RequireFromString(pnl),
		time.Date(2024, 3, 9, 12, 30, 15, 123456789, time.UTC))
}

func assertSnapshotEqual(t *testing.T, want, got domain.Snapshot) {
	t.Helper()
	require.Len(t, got, len(want))
	for addr, positions := range want {
		require.Contains(t, got, addr)
		require.Len(t, got[addr], len(positions))
		for sym, p := range positions {
			assert.True(t, p.Equal(got[addr][sym]), "%s/%s: want %+v got %+v", addr, sym, p, got[addr][sym])
		}
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	store := Open(path, zaptest.NewLogger(t))

	snapshot := domain.Snapshot{
		addrA: {
			"ETH": pos("ETH", "10.000000000000000001", "2500.123456789012345678", "-12.000000001"),
			"SOL": pos("SOL", "-1000", "100.5", "-2000"),
		},
		addrB: {},
	}

	require.NoError(t, store.Save(snapshot))

	loaded, err := store.Load()
	require.NoError(t, err)
	assertSnapshotEqual(t, snapshot, loaded)
	assert.Equal(t, domain.SideShort, loaded[addrA]["SOL"].Side)
	assert.Equal(t, "10.000000000000000001", loaded[addrA]["ETH"].Size.String())
}

func TestStore_FileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	store := Open(path, zap.NewNop())
	store.Update(addrA, domain.Positions{"BTC": pos("BTC", "0.5", "45000", "1000")})
	require.NoError(t, store.Persist())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	body := string(raw)
	assert.Contains(t, body, `"size": "0.5"`)
	assert.Contains(t, body, `"entryPrice": "45000"`)
	assert.Contains(t, body, `"marketValue": "22500"`)
	assert.Contains(t, body, `"unrealizedPnl": "1000"`)
	assert.Contains(t, body, `"side": "long"`)
	assert.Contains(t, body, `"observedAt": "2024-03-09T12:30:15.123456789Z"`)
}

func TestStore_OpenReloadsState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	first := Open(path, zap.NewNop())
	first.Update(addrA, domain.Positions{"ETH": pos("ETH", "10", "2500", "0")})
	require.NoError(t, first.Persist())

	second := Open(path, zap.NewNop())
	assert.True(t, second.Known(addrA))
	assert.True(t, second.Get(addrA)["ETH"].MarketValue.Equal(decimal.NewFromInt(25000)))
}

func TestStore_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"0xabc": {"ETH": {"size": "oops"`), 0644))

	store := Open(path, zap.NewNop())
	assert.Empty(t, store.Snapshot())

	// a structurally valid file with a bad side is corrupt too
	require.NoError(t, os.WriteFile(path, []byte(`{"0xabc":{"ETH":{"size":"1","side":"up","entryPrice":"1","marketValue":"1","unrealizedPnl":"0","observedAt":"2024-01-01T00:00:00Z"}}}`), 0644))
	store = Open(path, zap.NewNop())
	assert.Empty(t, store.Snapshot())
}

func TestStore_CopiesAtBoundary(t *testing.T) {
	store := Open(filepath.Join(t.TempDir(), "p.json"), zap.NewNop())

	in := domain.Positions{"ETH": pos("ETH", "1", "2000", "0")}
	store.Update(addrA, in)
	delete(in, "ETH")
	assert.Len(t, store.Get(addrA), 1)

	out := store.Get(addrA)
	delete(out, "ETH")
	assert.Len(t, store.Get(addrA), 1)

	snap := store.Snapshot()
	snap[addrA]["BTC"] = pos("BTC", "1", "1", "0")
	assert.Len(t, store.Get(addrA), 1)

	store.Forget(addrA)
	assert.False(t, store.Known(addrA))
	assert.Empty(t, store.Get(addrA))
}

func TestStore_UpdateIsAtomicPerAddress(t *testing.T) {
	store := Open(filepath.Join(t.TempDir(), "p.json"), zap.NewNop())

	full := domain.Positions{
		"ETH": pos("ETH", "1", "2000", "0"),
		"BTC": pos("BTC", "1", "40000", "0"),
		"SOL": pos("SOL", "1", "100", "0"),
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			if i%2 == 0 {
				store.Update(addrA, full)
			} else {
				store.Update(addrA, domain.Positions{})
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			n := len(store.Get(addrA))
			assert.True(t, n == 0 || n == 3, "partial view of %d positions", n)
		}
	}()
	wg.Wait()
}

func TestStore_SaveFailureIsReported(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	store := Open(filepath.Join(blocker, "positions.json"), zap.NewNop())
	store.Update(addrA, domain.Positions{"ETH": pos("ETH", "1", "2000", "0")})
	assert.Error(t, store.Persist())
	// memory stays authoritative
	assert.Len(t, store.Get(addrA), 1)
}

func TestFilter(t *testing.T) {
	floor := decimal.NewFromInt(1000)
	raw := domain.Positions{
		"ZERO":  pos("ZERO", "0", "100", "0"),
		"SMALL": pos("SMALL", "9.99", "100", "0"),
		"EDGE":  pos("EDGE", "10", "100", "0"),
		"BIG":   pos("BIG", "-50", "100", "0"),
	}

	got := Filter(raw, floor)

	assert.Len(t, got, 2)
	assert.Contains(t, got, "EDGE")
	assert.Contains(t, got, "BIG")
	assert.Len(t, raw, 4, "input must not be modified")
}
