// internal/exchange/client.go
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/whale-tracker/internal/domain"
)

const (
	MainnetURL = "https://api.hyperliquid.xyz"
	TestnetURL = "https://api.hyperliquid-testnet.xyz"
)

// Fetcher returns the current open positions of one account.
type Fetcher interface {
	FetchPositions(ctx context.Context, address string) (domain.Positions, error)
}

// APIError is a non-2xx answer from the info endpoint.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange api: status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether retrying may help.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

var ErrMalformedResponse = errors.New("malformed exchange response")

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL    string
	MaxRetries uint
	// RetryInitial is the first retry delay; later ones grow exponentially.
	RetryInitial time.Duration
	HTTPClient   *http.Client
}

// Client talks to the Hyperliquid info endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries uint
	initial    time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewClient creates an info endpoint client.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = MainnetURL
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = 500 * time.Millisecond
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: cfg.HTTPClient,
		maxRetries: cfg.MaxRetries,
		initial:    cfg.RetryInitial,
		logger:     logger.Named("exchange"),
		now:        time.Now,
	}
}

type infoRequest struct {
	Type string `json:"type"`
	User string `json:"user,omitempty"`
}

type clearinghouseState struct {
	AssetPositions []struct {
		Position struct {
			Coin          string          `json:"coin"`
			Szi           decimal.Decimal `json:"szi"`
			EntryPx       *string         `json:"entryPx"`
			UnrealizedPnl decimal.Decimal `json:"unrealizedPnl"`
		} `json:"position"`
	} `json:"assetPositions"`
}

// FetchPositions returns the non-zero positions of address. No size floor
// is applied here.
func (c *Client) FetchPositions(ctx context.Context, address string) (domain.Positions, error) {
	var state clearinghouseState
	if err := c.info(ctx, infoRequest{Type: "clearinghouseState", User: address}, &state); err != nil {
		return nil, fmt.Errorf("fetch positions for %s: %w", address, err)
	}

	at := c.now()
	positions := make(domain.Positions, len(state.AssetPositions))
	for _, ap := range state.AssetPositions {
		p := ap.Position
		if p.Coin == "" || p.Szi.IsZero() {
			continue
		}
		entry := decimal.Zero
		if p.EntryPx != nil && *p.EntryPx != "" {
			parsed, err := decimal.NewFromString(*p.EntryPx)
			if err != nil {
				return nil, fmt.Errorf("%w: entryPx for %s: %v", ErrMalformedResponse, p.Coin, err)
			}
			entry = parsed
		}
		positions[p.Coin] = domain.NewPosition(p.Coin, p.Szi, entry, p.UnrealizedPnl, at)
	}

	c.logger.Debug("Positions fetched",
		zap.String("address", address),
		zap.Int("positions", len(positions)))
	return positions, nil
}

// Ping checks that the endpoint answers a metadata request.
func (c *Client) Ping(ctx context.Context) error {
	var meta json.RawMessage
	return c.info(ctx, infoRequest{Type: "meta"}, &meta)
}

func (c *Client) info(ctx context.Context, req infoRequest, out any) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initial
	policy.MaxInterval = c.initial * 8

	notify := func(err error, d time.Duration) {
		c.logger.Debug("Retrying info request",
			zap.String("type", req.Type),
			zap.Duration("backoff", d),
			zap.Error(err))
	}

	operation := func() (struct{}, error) {
		return struct{}{}, c.post(ctx, payload, out)
	}

	_, err = backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(c.maxRetries),
		backoff.WithNotify(notify))
	return err
}

func (c *Client) post(ctx context.Context, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/info", bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		if apiErr.Temporary() {
			return apiErr
		}
		return backoff.Permanent(apiErr)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return backoff.Permanent(fmt.Errorf("%w: %v", ErrMalformedResponse, err))
	}
	return nil
}
