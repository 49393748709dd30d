package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/whale-tracker/internal/domain"
)

const testAddr = "0x2222222222222222222222222222222222222222"

const stateBody = `{
  "assetPositions": [
    {"type": "oneWay", "position": {"coin": "ETH", "szi": "15.0", "entryPx": "2500.0", "unrealizedPnl": "120.5"}},
    {"type": "oneWay", "position": {"coin": "BTC", "szi": "-0.5", "entryPx": "45000", "unrealizedPnl": "-10"}},
    {"type": "oneWay", "position": {"coin": "DOGE", "szi": "0.0", "entryPx": "0.1", "unrealizedPnl": "0"}},
    {"type": "oneWay", "position": {"coin": "PURR", "szi": "100", "entryPx": null, "unrealizedPnl": "0"}}
  ]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{
		BaseURL:      srv.URL,
		MaxRetries:   3,
		RetryInitial: time.Millisecond,
	}, zaptest.NewLogger(t))
}

func TestClient_FetchPositions(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/info", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, map[string]string{"type": "clearinghouseState", "user": testAddr}, req)

		_, _ = w.Write([]byte(stateBody))
	})

	positions, err := client.FetchPositions(context.Background(), testAddr)
	require.NoError(t, err)
	require.Len(t, positions, 3)

	eth := positions["ETH"]
	assert.Equal(t, domain.SideLong, eth.Side)
	assert.True(t, eth.MarketValue.Equal(decimal.NewFromInt(37500)))
	assert.True(t, eth.UnrealizedPnL.Equal(decimal.RequireFromString("120.5")))

	btc := positions["BTC"]
	assert.Equal(t, domain.SideShort, btc.Side)
	assert.True(t, btc.Size.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, btc.MarketValue.Equal(decimal.NewFromInt(22500)))

	assert.NotContains(t, positions, "DOGE")
	assert.True(t, positions["PURR"].EntryPrice.IsZero())
}

func TestClient_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"assetPositions": []}`))
	})

	positions, err := client.FetchPositions(context.Background(), testAddr)
	require.NoError(t, err)
	assert.Empty(t, positions)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad user", http.StatusUnprocessableEntity)
	})

	_, err := client.FetchPositions(context.Background(), testAddr)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.False(t, apiErr.Temporary())
	assert.EqualValues(t, 1, calls.Load())
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.FetchPositions(context.Background(), testAddr)
	require.Error(t, err)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_MalformedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"assetPositions": "nope"}`))
	})

	_, err := client.FetchPositions(context.Background(), testAddr)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestClient_Ping(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "meta", req["type"])
		_, _ = w.Write([]byte(`{"universe": []}`))
	})

	assert.NoError(t, client.Ping(context.Background()))
}

func TestClient_ContextTimeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.FetchPositions(ctx, testAddr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
