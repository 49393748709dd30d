package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBus_DeliversInOrder(t *testing.T) {
	bus := NewBus(zap.NewNop(), 16)

	var mu sync.Mutex
	var got []string
	bus.SubscribeFunc(FetchFailed, func(_ context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.(*FetchFailedEvent).Address)
		return nil
	})

	for _, addr := range []string{"a", "b", "c"} {
		require.NoError(t, bus.Publish(&FetchFailedEvent{BaseEvent: NewBase(FetchFailed), Address: addr}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Shutdown(ctx))

	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(zap.NewNop(), 4)
	defer bus.Close()

	calls := 0
	sub := bus.SubscribeFunc(AddressAdded, func(context.Context, Event) error {
		calls++
		return nil
	})
	require.NoError(t, bus.PublishSync(context.Background(), &AddressAddedEvent{BaseEvent: NewBase(AddressAdded)}))
	sub.Unsubscribe()
	require.NoError(t, bus.PublishSync(context.Background(), &AddressAddedEvent{BaseEvent: NewBase(AddressAdded)}))

	assert.Equal(t, 1, calls)
	assert.Empty(t, bus.Stats()["handlers_per_type"])
}

func TestBus_PublishSyncJoinsErrors(t *testing.T) {
	bus := NewBus(zap.NewNop(), 4)
	defer bus.Close()

	boom := errors.New("boom")
	bus.SubscribeFunc(CycleCompleted, func(context.Context, Event) error { return boom })

	err := bus.PublishSync(context.Background(), &CycleCompletedEvent{BaseEvent: NewBase(CycleCompleted)})
	assert.ErrorIs(t, err, boom)
}

func TestBus_PublishAfterShutdown(t *testing.T) {
	bus := NewBus(zap.NewNop(), 4)
	require.NoError(t, bus.Close())

	err := bus.Publish(&CycleCompletedEvent{BaseEvent: NewBase(CycleCompleted)})
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestBus_FullBufferDrops(t *testing.T) {
	bus := NewBus(zap.NewNop(), 1)
	defer bus.Close()

	block := make(chan struct{})
	bus.SubscribeFunc(ChangeDetected, func(context.Context, Event) error {
		<-block
		return nil
	})

	var full bool
	for i := 0; i < 10 && !full; i++ {
		err := bus.Publish(&ChangeDetectedEvent{BaseEvent: NewBase(ChangeDetected)})
		full = errors.Is(err, ErrBusFull)
	}
	close(block)

	assert.True(t, full)
}
