package registry

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/whale-tracker/internal/events"
)

func TestSubscriberRegistry_RegisterIdempotent(t *testing.T) {
	reg := NewSubscriberRegistry(filepath.Join(t.TempDir(), "subs.json"), nil, zap.NewNop())
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return first }

	sub, created, err := reg.Register(42, "whalewatcher", "Ann")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, first, sub.FirstSeenAt)

	reg.now = func() time.Time { return first.Add(time.Hour) }
	sub, created, err = reg.Register(42, "renamed", "Ann")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "renamed", sub.Username)
	assert.Equal(t, first, sub.FirstSeenAt)
	assert.Equal(t, 1, reg.Len())
}

func TestSubscriberRegistry_OrderAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subs.json")
	reg := NewSubscriberRegistry(path, nil, zap.NewNop())

	for _, id := range []int64{300, -100, 200} {
		_, _, err := reg.Register(id, "", "n")
		require.NoError(t, err)
	}
	assert.Equal(t, []int64{300, -100, 200}, reg.ListRecipients())

	removed, err := reg.Deregister(-100, "test")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = reg.Deregister(-100, "test")
	require.NoError(t, err)
	assert.False(t, removed)

	reloaded := NewSubscriberRegistry(path, nil, zap.NewNop())
	assert.Equal(t, []int64{300, 200}, reloaded.ListRecipients())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"300": {`)
	assert.Contains(t, string(raw), `"chat_id": 300`)
	assert.Contains(t, string(raw), `"first_name": "n"`)
	assert.Contains(t, string(raw), `"added_at"`)
}

func TestSubscriberRegistry_Bootstrap(t *testing.T) {
	reg := NewSubscriberRegistry(filepath.Join(t.TempDir(), "subs.json"), nil, zap.NewNop())

	require.NoError(t, reg.Bootstrap(0))
	assert.Equal(t, 0, reg.Len())

	require.NoError(t, reg.Bootstrap(555))
	assert.Equal(t, []int64{555}, reg.ListRecipients())

	_, err := reg.Deregister(555, "gone")
	require.NoError(t, err)
	_, _, err = reg.Register(777, "u", "")
	require.NoError(t, err)

	// someone is registered already: the default is not re-added
	require.NoError(t, reg.Bootstrap(555))
	assert.Equal(t, []int64{777}, reg.ListRecipients())
}

func TestSubscriberRegistry_DeregisterPublishes(t *testing.T) {
	bus := events.NewBus(zap.NewNop(), 8)

	var mu sync.Mutex
	var got []int64
	bus.SubscribeFunc(events.SubscriberRemoved, func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.(*events.SubscriberRemovedEvent).Recipient)
		return nil
	})

	reg := NewSubscriberRegistry(filepath.Join(t.TempDir(), "subs.json"), bus, zap.NewNop())
	_, _, err := reg.Register(9, "", "")
	require.NoError(t, err)
	_, err = reg.Deregister(9, "blocked")
	require.NoError(t, err)

	require.NoError(t, bus.Close())
	assert.Equal(t, []int64{9}, got)
}

func TestSubscriberRegistry_PersistFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	reg := NewSubscriberRegistry(filepath.Join(blocker, "subs.json"), nil, zap.NewNop())
	_, created, err := reg.Register(1, "", "")
	assert.True(t, created)
	assert.ErrorIs(t, err, ErrPersist)
	assert.Equal(t, []int64{1}, reg.ListRecipients())
}
