package bot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rovshanmuradov/whale-tracker/internal/domain"
	"github.com/rovshanmuradov/whale-tracker/internal/notify"
)

func TestStripTags(t *testing.T) {
	assert.Equal(t, "📈 Whale & Co increased BTC", stripTags("📈 <b>Whale &amp; Co</b> increased <i>BTC</i>"))
	assert.Equal(t, "plain", stripTags("plain"))
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := &logNotifier{logger: zap.New(core)}

	sent, err := n.Broadcast(context.Background(), domain.ChangeOpened, "<b>ETH</b> opened")
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	_, err = n.Announce(context.Background(), "started")
	require.NoError(t, err)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "ETH opened", entries[0].ContextMap()["message"])
	assert.Equal(t, "opened", entries[0].ContextMap()["kind"])
}

func TestLogNotifierSuppressesOpened(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := &logNotifier{logger: zap.New(core), policy: notify.Config{SuppressOpened: true}}

	sent, err := n.Broadcast(context.Background(), domain.ChangeOpened, "<b>ETH</b> opened")
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Zero(t, logs.Len())

	sent, err = n.Broadcast(context.Background(), domain.ChangeClosed, "<b>ETH</b> closed")
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	_, err = n.Announce(context.Background(), "started")
	require.NoError(t, err)
	assert.Equal(t, 2, logs.Len())
}
