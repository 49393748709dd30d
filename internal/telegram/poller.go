// internal/telegram/poller.go
package telegram

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/whale-tracker/internal/commands"
)

// Router answers one inbound request.
type Router interface {
	Handle(ctx context.Context, req commands.Request) string
}

type updatesSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Poller long-polls the Bot API and routes text messages to a Router.
type Poller struct {
	client       updatesSource
	router       Router
	pollTimeout  time.Duration
	replyTimeout time.Duration
	logger       *zap.Logger
	offset       int64
}

func NewPoller(client *Client, router Router, pollTimeout time.Duration, logger *zap.Logger) *Poller {
	return newPoller(client, router, pollTimeout, logger)
}

func newPoller(client updatesSource, router Router, pollTimeout time.Duration, logger *zap.Logger) *Poller {
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	return &Poller{
		client:       client,
		router:       router,
		pollTimeout:  pollTimeout,
		replyTimeout: 10 * time.Second,
		logger:       logger.Named("telegram_poller"),
	}
}

// Run polls until ctx is cancelled. Poll errors back off exponentially.
func (p *Poller) Run(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = time.Minute

	p.logger.Info("Command polling started")
	defer p.logger.Info("Command polling stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		// the HTTP call must outlive the server-side long poll
		pollCtx, cancel := context.WithTimeout(ctx, p.pollTimeout+10*time.Second)
		updates, err := p.client.GetUpdates(pollCtx, p.offset, p.pollTimeout)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait := policy.NextBackOff()
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.RetryAfter > wait {
				wait = apiErr.RetryAfter
			}
			p.logger.Warn("Polling failed", zap.Error(err), zap.Duration("backoff", wait))
			if !sleep(ctx, wait) {
				return nil
			}
			continue
		}
		policy.Reset()

		for _, u := range updates {
			if u.UpdateID >= p.offset {
				p.offset = u.UpdateID + 1
			}
			p.dispatch(ctx, u)
		}
	}
}

// PollOnce fetches and handles one batch without waiting.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	updates, err := p.client.GetUpdates(ctx, p.offset, 0)
	if err != nil {
		return 0, err
	}
	for _, u := range updates {
		if u.UpdateID >= p.offset {
			p.offset = u.UpdateID + 1
		}
		p.dispatch(ctx, u)
	}
	return len(updates), nil
}

func (p *Poller) dispatch(ctx context.Context, u Update) {
	msg := u.Message
	if msg == nil || msg.Text == "" {
		return
	}

	req := commands.Request{ChatID: msg.Chat.ID, Text: msg.Text}
	if msg.From != nil {
		req.Username = msg.From.Username
		req.FirstName = msg.From.FirstName
	}

	reply := p.router.Handle(ctx, req)
	if reply == "" {
		return
	}

	replyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.replyTimeout)
	defer cancel()
	if err := p.client.SendMessage(replyCtx, msg.Chat.ID, reply); err != nil {
		p.logger.Warn("Failed to send reply", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
