// internal/notify/dispatcher.go
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/whale-tracker/internal/domain"
	"github.com/rovshanmuradov/whale-tracker/internal/events"
)

// Deliverer sends one rendered message to one recipient.
type Deliverer interface {
	Deliver(ctx context.Context, recipient int64, text string) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, recipient int64, text string) error

func (f DelivererFunc) Deliver(ctx context.Context, recipient int64, text string) error {
	return f(ctx, recipient, text)
}

// Recipients is the part of the subscriber registry the dispatcher needs.
type Recipients interface {
	ListRecipients() []int64
	Deregister(id int64, reason string) (bool, error)
}

// Config controls delivery pacing and suppression.
type Config struct {
	DeliverTimeout time.Duration
	DeliveryDelay  time.Duration
	// MaxRetryAfter caps the pause a rate-limited recipient can impose on
	// a broadcast. Zero means no cap.
	MaxRetryAfter time.Duration
	// SuppressOpened keeps opened changes out of outbound alerts. They are
	// still detected, stored and journaled.
	SuppressOpened bool
}

// DefaultConfig mirrors the configuration defaults.
func DefaultConfig() Config {
	return Config{
		DeliverTimeout: 10 * time.Second,
		DeliveryDelay:  100 * time.Millisecond,
		MaxRetryAfter:  30 * time.Second,
		SuppressOpened: true,
	}
}

// Dispatcher fans a rendered message out to every registered recipient.
type Dispatcher struct {
	deliverer  Deliverer
	recipients Recipients
	config     Config
	logger     *zap.Logger
	events     events.Publisher
}

// NewDispatcher wires a dispatcher. publisher may be nil.
func NewDispatcher(deliverer Deliverer, recipients Recipients, config Config, publisher events.Publisher, logger *zap.Logger) *Dispatcher {
	if publisher == nil {
		publisher = events.Discard
	}
	return &Dispatcher{
		deliverer:  deliverer,
		recipients: recipients,
		config:     config,
		logger:     logger.Named("notify"),
		events:     publisher,
	}
}

// Suppressed reports whether changes of kind are kept out of alerts.
func (d *Dispatcher) Suppressed(kind domain.ChangeKind) bool {
	return d.config.Suppressed(kind)
}

// Suppressed reports whether c keeps changes of kind out of alerts.
func (c Config) Suppressed(kind domain.ChangeKind) bool {
	switch kind {
	case domain.ChangeOpened:
		return c.SuppressOpened
	case domain.ChangeClosed, domain.ChangeIncreased, domain.ChangeDecreased:
		return false
	}
	return false
}

// Broadcast delivers text about a change of the given kind. A suppressed
// kind returns (0, nil) without contacting anyone.
func (d *Dispatcher) Broadcast(ctx context.Context, kind domain.ChangeKind, text string) (int, error) {
	if d.Suppressed(kind) {
		d.logger.Debug("Notification suppressed", zap.Stringer("kind", kind))
		return 0, nil
	}
	return d.deliverAll(ctx, text)
}

// Announce delivers a system notice (startup, shutdown, error alert).
// It is never suppressed.
func (d *Dispatcher) Announce(ctx context.Context, text string) (int, error) {
	return d.deliverAll(ctx, text)
}

// deliverAll walks the recipients in registration order. One failing
// recipient never stops the others. The returned count is the number of
// successful deliveries.
func (d *Dispatcher) deliverAll(ctx context.Context, text string) (int, error) {
	recipients := d.recipients.ListRecipients()
	if len(recipients) == 0 {
		d.logger.Warn("No recipients to notify")
		return 0, ErrNoRecipients
	}

	sent := 0
	var failures []error
	for i, id := range recipients {
		if i > 0 && !wait(ctx, d.config.DeliveryDelay) {
			d.logger.Info("Broadcast abandoned",
				zap.Int("sent", sent),
				zap.Int("remaining", len(recipients)-i))
			return sent, ctx.Err()
		}

		err := d.deliverOne(ctx, id, text)
		if pause := d.retryDelay(err); pause > 0 {
			// flood control is per bot, so everyone after this one waits too
			d.logger.Info("Rate limited, pausing broadcast",
				zap.Int64("chat_id", id),
				zap.Duration("pause", pause))
			if !wait(ctx, pause) {
				return sent, ctx.Err()
			}
			err = d.deliverOne(ctx, id, text)
		}
		if err == nil {
			sent++
			continue
		}

		failures = append(failures, fmt.Errorf("recipient %d: %w", id, err))
		permanent := errors.Is(err, ErrRecipientUnreachable)

		_ = d.events.Publish(&events.DeliveryFailedEvent{
			BaseEvent: events.NewBase(events.DeliveryFailed),
			Recipient: id,
			Permanent: permanent,
			Error:     err,
		})

		if !permanent {
			d.logger.Warn("Delivery failed", zap.Int64("chat_id", id), zap.Error(err))
			continue
		}

		d.logger.Warn("Recipient unreachable, deregistering", zap.Int64("chat_id", id), zap.Error(err))
		if _, derr := d.recipients.Deregister(id, err.Error()); derr != nil {
			d.logger.Error("Failed to deregister recipient", zap.Int64("chat_id", id), zap.Error(derr))
		}
	}

	if sent == 0 {
		return 0, fmt.Errorf("%w: %w", ErrAllDeliveriesFailed, errors.Join(failures...))
	}

	d.logger.Debug("Broadcast complete",
		zap.Int("sent", sent),
		zap.Int("failed", len(failures)))
	return sent, nil
}

// deliverOne returns when the deliverer answers or the per-recipient
// deadline passes, whichever is first. A deliverer that ignores ctx is left
// to finish on its own.
func (d *Dispatcher) deliverOne(ctx context.Context, id int64, text string) error {
	if d.config.DeliverTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.DeliverTimeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("deliverer panic: %v", r)
			}
		}()
		done <- d.deliverer.Deliver(ctx, id, text)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("deliver to %d: %w", id, ctx.Err())
	}
}

// retryDelay is the pause a rate-limited failure asks for, capped at
// MaxRetryAfter. Zero means the failure carries no pause.
func (d *Dispatcher) retryDelay(err error) time.Duration {
	var limited RateLimited
	if err == nil || !errors.As(err, &limited) {
		return 0
	}
	pause := limited.RetryDelay()
	if pause <= 0 {
		return 0
	}
	if d.config.MaxRetryAfter > 0 && pause > d.config.MaxRetryAfter {
		pause = d.config.MaxRetryAfter
	}
	return pause
}

// wait sleeps for d unless ctx ends first. It reports whether the full
// duration passed.
func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
