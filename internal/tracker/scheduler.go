// internal/tracker/scheduler.go
package tracker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/whale-tracker/internal/domain"
	"github.com/rovshanmuradov/whale-tracker/internal/events"
	"github.com/rovshanmuradov/whale-tracker/internal/exchange"
	"github.com/rovshanmuradov/whale-tracker/internal/notify"
	"github.com/rovshanmuradov/whale-tracker/internal/positions"
)

var (
	// ErrPersist marks a cycle whose snapshot could not be written. The
	// in-memory state is still current; the loop keeps its normal pace.
	ErrPersist = errors.New("snapshot persistence failed")

	ErrCyclePanic = errors.New("cycle panicked")
)

// Addresses is the read side of the address registry.
type Addresses interface {
	List() []domain.TrackedAddress
	Resolve(address string) string
	Contains(address string) bool
}

// Store is the part of the position store a cycle uses.
type Store interface {
	Get(address string) domain.Positions
	Update(address string, positions domain.Positions)
	Forget(address string)
	Persist() error
}

// Notifier delivers change alerts and system notices.
type Notifier interface {
	Broadcast(ctx context.Context, kind domain.ChangeKind, text string) (int, error)
	Announce(ctx context.Context, text string) (int, error)
}

// Config controls cycle pacing.
type Config struct {
	PollingInterval time.Duration
	// ErrorBackoff is the first sleep after a failed cycle. It doubles on
	// every consecutive failure up to MaxBackoff.
	ErrorBackoff       time.Duration
	MaxBackoff         time.Duration
	FetchTimeout       time.Duration
	Workers            int
	MinPositionSize    decimal.Decimal
	MinChangeThreshold decimal.Decimal
}

// Scheduler drives the poll, detect, persist, notify cycle.
type Scheduler struct {
	config    Config
	addresses Addresses
	fetcher   exchange.Fetcher
	store     Store
	detector  Detector
	notifier  Notifier
	events    events.Publisher
	logger    *zap.Logger
	now       func() time.Time

	state     atomic.Int32
	cycles    atomic.Uint64
	lastCycle atomic.Int64
}

// NewScheduler wires a scheduler. publisher may be nil.
func NewScheduler(config Config, addresses Addresses, fetcher exchange.Fetcher, store Store, notifier Notifier, publisher events.Publisher, logger *zap.Logger) *Scheduler {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.MaxBackoff < config.ErrorBackoff {
		config.MaxBackoff = config.ErrorBackoff * 10
	}
	if publisher == nil {
		publisher = events.Discard
	}
	return &Scheduler{
		config:    config,
		addresses: addresses,
		fetcher:   fetcher,
		store:     store,
		detector:  NewDetector(config.MinChangeThreshold),
		notifier:  notifier,
		events:    publisher,
		logger:    logger.Named("scheduler"),
		now:       time.Now,
	}
}

// State returns the current phase.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Cycles returns the number of cycles started.
func (s *Scheduler) Cycles() uint64 {
	return s.cycles.Load()
}

// LastCycle returns when the last cycle finished, zero before the first.
func (s *Scheduler) LastCycle() time.Time {
	n := s.lastCycle.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
}

// Run loops until ctx is cancelled. It only returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.config.ErrorBackoff
	policy.MaxInterval = s.config.MaxBackoff
	policy.RandomizationFactor = 0
	policy.Reset()

	s.logger.Info("Scheduler started",
		zap.Duration("interval", s.config.PollingInterval),
		zap.Int("workers", s.config.Workers))

	defer func() {
		s.setState(StateStopped)
		s.logger.Info("Scheduler stopped", zap.Uint64("cycles", s.Cycles()))
	}()

	for {
		_, err := s.RunCycle(ctx)
		if ctx.Err() != nil {
			return nil
		}

		wait := s.config.PollingInterval
		switch {
		case err == nil:
			policy.Reset()
		case errors.Is(err, ErrPersist) && !errors.Is(err, domain.ErrInvalidChange):
			// logged in RunCycle; memory is still current
			policy.Reset()
		default:
			wait = policy.NextBackOff()
			s.logger.Error("Cycle failed, backing off",
				zap.Error(err),
				zap.Duration("backoff", wait))
			s.announceError(ctx, err)
		}

		s.setState(StateSleeping)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// announceError tells recipients about a failed cycle. Its own failure is
// only logged.
func (s *Scheduler) announceError(ctx context.Context, cause error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Error announcement panicked", zap.Any("panic", r))
		}
	}()

	if _, err := s.notifier.Announce(ctx, notify.RenderError(cause, s.now())); err != nil {
		s.logger.Warn("Failed to announce cycle error", zap.Error(err))
	}
}

type fetchResult struct {
	positions domain.Positions
	err       error
}

// RunCycle performs one poll, detect, persist, notify pass and returns the
// detected changes. Per-address fetch failures are logged and skipped. An
// address whose detected changes fail validation keeps its stored state and
// the cycle reports domain.ErrInvalidChange after the other addresses were
// persisted and notified. Persistence runs even when ctx is cancelled
// mid-cycle; notification does not.
func (s *Scheduler) RunCycle(ctx context.Context) (changes []domain.PositionChange, err error) {
	started := s.now()
	cycle := s.cycles.Add(1)
	failed := 0
	var tracked []domain.TrackedAddress
	var invalid []error

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Cycle panicked",
				zap.Uint64("cycle", cycle),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrCyclePanic, r)
			s.setState(StateIdle)
		}

		finished := s.now()
		s.lastCycle.Store(finished.UnixNano())
		_ = s.events.Publish(&events.CycleCompletedEvent{
			BaseEvent: events.NewBase(events.CycleCompleted),
			Cycle:     cycle,
			Addresses: len(tracked),
			Failed:    failed,
			Changes:   len(changes),
			Duration:  finished.Sub(started),
			Err:       err,
		})
	}()

	s.setState(StatePolling)
	tracked = s.addresses.List()
	results := s.fetchAll(ctx, tracked)

	s.setState(StateDetecting)
	for i, addr := range tracked {
		res := results[i]
		if res.err != nil {
			failed++
			s.logger.Warn("Skipping address this cycle",
				zap.String("address", addr.Address),
				zap.String("label", addr.Label),
				zap.Error(res.err))
			_ = s.events.Publish(&events.FetchFailedEvent{
				BaseEvent: events.NewBase(events.FetchFailed),
				Address:   addr.Address,
				Error:     res.err,
			})
			continue
		}

		// removed while the fetch was in flight
		if !s.addresses.Contains(addr.Address) {
			s.logger.Debug("Address no longer tracked, dropping result", zap.String("address", addr.Address))
			continue
		}

		current := positions.Filter(res.positions, s.config.MinPositionSize)
		previous := s.store.Get(addr.Address)
		detected := s.detector.Detect(addr.Address, previous, current, s.now())
		if verr := validate(detected); verr != nil {
			s.logger.Error("Invalid change detected, keeping stored positions",
				zap.String("address", addr.Address),
				zap.Error(verr))
			invalid = append(invalid, fmt.Errorf("detect %s: %w", addr.Address, verr))
			continue
		}

		s.store.Update(addr.Address, current)
		if !s.addresses.Contains(addr.Address) {
			// lost a race with Remove; its forget may already have run
			s.store.Forget(addr.Address)
			continue
		}
		changes = append(changes, detected...)
	}

	if len(changes) > 0 {
		s.setState(StatePersisting)
		if perr := s.store.Persist(); perr != nil {
			s.logger.Error("Failed to persist snapshot", zap.Error(perr))
			err = fmt.Errorf("%w: %v", ErrPersist, perr)
		}
	}

	for _, c := range changes {
		_ = s.events.Publish(&events.ChangeDetectedEvent{
			BaseEvent: events.NewBase(events.ChangeDetected),
			Change:    c,
			Label:     s.addresses.Resolve(c.Address),
		})
	}

	s.logger.Info("Cycle complete",
		zap.Uint64("cycle", cycle),
		zap.Int("addresses", len(tracked)),
		zap.Int("failed", failed),
		zap.Int("changes", len(changes)))

	if len(changes) > 0 && ctx.Err() == nil {
		s.setState(StateNotifying)
		s.notifyAll(ctx, changes)
	}

	if len(invalid) > 0 {
		err = errors.Join(err, errors.Join(invalid...))
	}

	s.setState(StateIdle)
	return changes, err
}

func validate(changes []domain.PositionChange) error {
	for _, c := range changes {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("%s: %w", c.Symbol, err)
		}
	}
	return nil
}

// fetchAll fetches every address with bounded parallelism. Results line up
// with tracked.
func (s *Scheduler) fetchAll(ctx context.Context, tracked []domain.TrackedAddress) []fetchResult {
	results := make([]fetchResult, len(tracked))

	var g errgroup.Group
	g.SetLimit(s.config.Workers)
	for i, addr := range tracked {
		g.Go(func() error {
			results[i] = s.fetchOne(ctx, addr.Address)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (s *Scheduler) fetchOne(ctx context.Context, address string) (res fetchResult) {
	if err := ctx.Err(); err != nil {
		return fetchResult{err: err}
	}
	if s.config.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.FetchTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			res = fetchResult{err: fmt.Errorf("fetcher panic: %v", r)}
		}
	}()

	p, err := s.fetcher.FetchPositions(ctx, address)
	return fetchResult{positions: p, err: err}
}

// notifyAll sends one broadcast per change in detection order and stops
// early once shutdown began.
func (s *Scheduler) notifyAll(ctx context.Context, changes []domain.PositionChange) {
	for _, c := range changes {
		if ctx.Err() != nil {
			s.logger.Info("Shutdown in progress, skipping remaining notifications")
			return
		}

		text := notify.Render(c, s.addresses.Resolve(c.Address))
		sent, err := s.notifier.Broadcast(ctx, c.Kind, text)
		if err != nil {
			s.logger.Warn("Notification not delivered",
				zap.String("address", c.Address),
				zap.String("symbol", c.Symbol),
				zap.Stringer("kind", c.Kind),
				zap.Error(err))
			continue
		}
		s.logger.Debug("Notification sent",
			zap.String("symbol", c.Symbol),
			zap.Stringer("kind", c.Kind),
			zap.Int("recipients", sent))
	}
}
