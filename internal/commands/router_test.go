package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/whale-tracker/internal/domain"
	"github.com/rovshanmuradov/whale-tracker/internal/registry"
)

type fixedLabeler string

func (l fixedLabeler) Generate(map[string]struct{}) string { return string(l) }

type countingFetcher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *countingFetcher) FetchPositions(_ context.Context, _ string) (domain.Positions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	at := time.Now()
	return domain.Positions{
		"ETH": domain.NewPosition("ETH", decimal.NewFromInt(10), decimal.NewFromInt(2500), decimal.NewFromInt(150), at),
		"BTC": domain.NewPosition("BTC", decimal.NewFromInt(-1), decimal.NewFromInt(45000), decimal.NewFromInt(-20), at),
	}, nil
}

type fixture struct {
	router      *Router
	addresses   *registry.AddressRegistry
	subscribers *registry.SubscriberRegistry
	fetcher     *countingFetcher
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	log := zaptest.NewLogger(t)

	addresses := registry.NewAddressRegistry(filepath.Join(dir, "addresses.json"), nil, fixedLabeler("Calm Orca"), nil, log)
	subscribers := registry.NewSubscriberRegistry(filepath.Join(dir, "subscribers.json"), nil, log)
	fetcher := &countingFetcher{}

	svc, err := NewService(addresses, fetcher, time.Minute, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	router := NewRouter(subscribers, log)
	svc.Register(router)

	return fixture{router: router, addresses: addresses, subscribers: subscribers, fetcher: fetcher}
}

func (f fixture) send(text string) string {
	return f.router.Handle(context.Background(), Request{ChatID: 77, Username: "ann", Text: text})
}

func TestRouter_RegistersSenderLazily(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, 0, f.subscribers.Len())

	f.send("/help")
	f.send("/list")

	assert.Equal(t, []int64{77}, f.subscribers.ListRecipients())
	sub, ok := f.subscribers.Get(77)
	require.True(t, ok)
	assert.Equal(t, "@ann", sub.DisplayName())
}

func TestRouter_AddListRemove(t *testing.T) {
	f := newFixture(t)

	reply := f.send("/add " + validAddr)
	assert.Contains(t, reply, "Now tracking <b>Calm Orca</b>")
	assert.Contains(t, reply, "https://hyperdash.xyz/address/"+validAddr)

	reply = f.send("/add " + validAddr + ":Other")
	assert.Contains(t, reply, "already being tracked")
	assert.Equal(t, 1, f.addresses.Len())

	reply = f.send("/list")
	assert.Contains(t, reply, "Tracked addresses (1)")
	assert.Contains(t, reply, "1. <b>Calm Orca</b>")

	reply = f.send("/remove " + validAddr)
	assert.Contains(t, reply, "Stopped tracking")
	assert.Equal(t, 0, f.addresses.Len())

	reply = f.send("/remove " + validAddr)
	assert.Contains(t, reply, "not being tracked")

	assert.Contains(t, f.send("/list"), "No addresses")
}

func TestRouter_InvalidInputDoesNotMutate(t *testing.T) {
	f := newFixture(t)

	assert.Contains(t, f.send("/add 0x1234"), "Invalid address format")
	assert.Contains(t, f.send("/add"), "Usage: add <address>")
	assert.Contains(t, f.send("/sell all"), "Unknown command")
	assert.Equal(t, 0, f.addresses.Len())
}

func TestRouter_CheckIsCachedPointQuery(t *testing.T) {
	f := newFixture(t)

	reply := f.send("/check " + validAddr)
	assert.Contains(t, reply, "BTC SHORT $45,000.00 (-$20.00)")
	assert.Contains(t, reply, "ETH LONG $25,000.00 (+$150.00)")
	assert.Less(t, strings.Index(reply, "BTC"), strings.Index(reply, "ETH"), "largest first")
	assert.Contains(t, reply, "Total: $70,000.00")
	assert.NotContains(t, reply, "cached")

	reply = f.send("/check " + validAddr)
	assert.Contains(t, reply, "cached")
	assert.Equal(t, 1, f.fetcher.calls)
	assert.Equal(t, 0, f.addresses.Len(), "check never tracks")
}

func TestRouter_CheckFetchError(t *testing.T) {
	f := newFixture(t)
	f.fetcher.err = errors.New("upstream <down>")

	reply := f.send("/check " + validAddr)
	assert.Contains(t, reply, "could not fetch positions")
	assert.Contains(t, reply, "&lt;down&gt;")
}

func TestRouter_MissingHandler(t *testing.T) {
	r := NewRouter(nil, zap.NewNop())
	assert.Contains(t, r.Handle(context.Background(), Request{Text: "/list"}), "not available")

	r.Register(NameList, HandlerFunc(func(context.Context, Request, Command) (string, error) {
		return "", fmt.Errorf("boom")
	}))
	assert.Equal(t, "❌ Error: boom", r.Handle(context.Background(), Request{Text: "/list"}))
}
