// internal/bot/runner.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/whale-tracker/internal/alias"
	"github.com/rovshanmuradov/whale-tracker/internal/commands"
	"github.com/rovshanmuradov/whale-tracker/internal/config"
	"github.com/rovshanmuradov/whale-tracker/internal/events"
	"github.com/rovshanmuradov/whale-tracker/internal/exchange"
	"github.com/rovshanmuradov/whale-tracker/internal/history"
	"github.com/rovshanmuradov/whale-tracker/internal/httpapi"
	"github.com/rovshanmuradov/whale-tracker/internal/metrics"
	"github.com/rovshanmuradov/whale-tracker/internal/notify"
	"github.com/rovshanmuradov/whale-tracker/internal/positions"
	"github.com/rovshanmuradov/whale-tracker/internal/registry"
	"github.com/rovshanmuradov/whale-tracker/internal/telegram"
	"github.com/rovshanmuradov/whale-tracker/internal/tracker"
)

const (
	noticeTimeout   = 15 * time.Second
	shutdownTimeout = 30 * time.Second
	journalSize     = 500
	journalFlush    = 5 * time.Second
	eventBuffer     = 256
	maxRetryAfter   = 30 * time.Second
)

// Runner owns every long-lived component of the tracker.
type Runner struct {
	cfg      *config.Config
	logger   *zap.Logger
	simulate bool

	bus         *events.Bus
	store       *positions.Store
	addresses   *registry.AddressRegistry
	subscribers *registry.SubscriberRegistry
	journal     *history.Journal
	metrics     *metrics.Collector
	fetcher     exchange.Fetcher
	notifier    tracker.Notifier
	scheduler   *tracker.Scheduler
	commands    *commands.Service
	router      *commands.Router
	telegram    *telegram.Client
	poller      *telegram.Poller
	api         *httpapi.Server
	shutdown    *ShutdownHandler
}

// NewRunner builds the component graph from cfg. Nothing is started yet.
func NewRunner(cfg *config.Config, simulate bool, logger *zap.Logger) (*Runner, error) {
	r := &Runner{
		cfg:      cfg,
		logger:   logger,
		simulate: simulate,
		shutdown: NewShutdownHandler(logger, shutdownTimeout),
	}

	r.bus = events.NewBus(logger, eventBuffer)
	r.metrics = metrics.NewCollector()

	positionsFile := cfg.PositionsFile()
	if simulate {
		// keep scripted positions away from the live snapshot
		positionsFile = filepath.Join(cfg.DataDir, "positions.simulated.json")
	}
	r.store = positions.Open(positionsFile, logger)
	r.shutdown.AddFunc("positions", r.store.Persist)

	static := make([]registry.StaticAddress, 0, len(cfg.TrackedAddresses))
	for _, a := range cfg.TrackedAddresses {
		static = append(static, registry.StaticAddress{Address: a.Address, Label: a.Label})
	}
	r.addresses = registry.NewAddressRegistry(cfg.AddressesFile(), static, alias.NewGenerator(), r.bus, logger)
	r.subscribers = registry.NewSubscriberRegistry(cfg.SubscribersFile(), r.bus, logger)

	journal, err := history.Open(cfg.ChangesFile(), journalSize, journalFlush, logger)
	if err != nil {
		_ = r.bus.Close()
		return nil, fmt.Errorf("open change journal: %w", err)
	}
	r.journal = journal
	r.shutdown.Add("journal", r.journal)

	if simulate {
		r.fetcher = exchange.NewSimulator()
	} else {
		r.fetcher = exchange.NewClient(exchange.ClientConfig{
			BaseURL:    cfg.Endpoint(),
			HTTPClient: &http.Client{Timeout: cfg.FetchTimeout()},
		}, logger)
	}

	delivery := notify.Config{
		DeliverTimeout: cfg.DeliverTimeout(),
		DeliveryDelay:  cfg.DeliveryDelay(),
		MaxRetryAfter:  maxRetryAfter,
		SuppressOpened: !cfg.NotifyOpened,
	}
	if cfg.Telegram.Enabled {
		r.telegram = telegram.NewClient(telegram.DefaultBaseURL, cfg.Telegram.BotToken,
			&http.Client{Timeout: cfg.PollTimeout() + 15*time.Second}, logger)
		r.notifier = notify.NewDispatcher(r.telegram, r.subscribers, delivery, r.bus, logger)
	} else {
		r.notifier = &logNotifier{logger: logger.Named("console"), policy: delivery}
	}

	r.scheduler = tracker.NewScheduler(tracker.Config{
		PollingInterval:    cfg.PollingInterval(),
		ErrorBackoff:       cfg.ErrorBackoff(),
		MaxBackoff:         10 * cfg.ErrorBackoff(),
		FetchTimeout:       cfg.FetchTimeout(),
		Workers:            cfg.Workers,
		MinPositionSize:    cfg.MinPosition,
		MinChangeThreshold: cfg.MinChange,
	}, r.addresses, r.fetcher, r.store, r.notifier, r.bus, logger)

	r.commands, err = commands.NewService(r.addresses, r.fetcher, cfg.CheckCacheTTL(), logger)
	if err != nil {
		_ = r.journal.Close()
		_ = r.bus.Close()
		return nil, fmt.Errorf("build command service: %w", err)
	}
	r.shutdown.Add("command_service", r.commands)

	r.router = commands.NewRouter(r.subscribers, logger)
	r.commands.Register(r.router)

	if r.telegram != nil {
		r.poller = telegram.NewPoller(r.telegram, r.router, cfg.PollTimeout(), logger)
	}

	if cfg.HTTPAddr != "" {
		r.api = httpapi.NewServer(httpapi.Deps{
			Status:      r.scheduler,
			Addresses:   r.addresses,
			Positions:   r.store,
			Changes:     r.journal,
			Subscribers: r.subscribers,
			Events:      r.bus,
			Metrics:     r.metrics.Handler(),
		}, logger)
	}

	r.subscribe()

	// closed first so queued events reach the journal
	r.shutdown.Add("event_bus", r.bus)
	return r, nil
}

func (r *Runner) subscribe() {
	r.journal.Subscribe(r.bus)
	r.metrics.Subscribe(r.bus)

	r.bus.SubscribeFunc(events.AddressRemoved, func(_ context.Context, e events.Event) error {
		ev, ok := e.(*events.AddressRemovedEvent)
		if !ok {
			return fmt.Errorf("unexpected event %T", e)
		}
		r.store.Forget(ev.Address.Address)
		if err := r.store.Persist(); err != nil {
			r.logger.Warn("Failed to persist positions after removal",
				zap.String("address", ev.Address.Address),
				zap.Error(err))
		}
		return nil
	})

	r.bus.SubscribeFunc(events.SubscriberRemoved, func(_ context.Context, e events.Event) error {
		if ev, ok := e.(*events.SubscriberRemovedEvent); ok {
			r.logger.Info("Subscriber removed",
				zap.Int64("chat_id", ev.Recipient),
				zap.String("reason", ev.Reason))
		}
		return nil
	})
}

// Run starts the tracker and blocks until SIGINT/SIGTERM, ctx cancellation or
// a fatal component error, then shuts everything down.
func (r *Runner) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, w := range r.cfg.Warnings() {
		r.logger.Warn(w)
	}

	r.preflight(ctx)

	if r.cfg.Telegram.Enabled {
		if err := r.subscribers.Bootstrap(r.cfg.Telegram.ChatID); err != nil {
			r.logger.Warn("Failed to persist default subscriber", zap.Error(err))
		}
	}

	r.logger.Info("🚀 Whale tracker started",
		zap.Int("addresses", r.addresses.Len()),
		zap.Int("subscribers", r.subscribers.Len()),
		zap.Duration("polling_interval", r.cfg.PollingInterval()),
		zap.Bool("simulate", r.simulate))
	r.announce(ctx, notify.RenderStartup(notify.StartupInfo{
		Addresses:          r.addresses.Len(),
		PollingInterval:    r.cfg.PollingInterval(),
		MinPositionSize:    r.cfg.MinPosition,
		MinChangeThreshold: r.cfg.MinChange,
		Simulated:          r.simulate,
	}))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.scheduler.Run(gctx)
	})
	if r.poller != nil {
		g.Go(func() error {
			return r.poller.Run(gctx)
		})
	}
	if r.api != nil {
		g.Go(func() error {
			return r.api.Serve(gctx, r.cfg.HTTPAddr)
		})
	}

	runErr := g.Wait()
	if runErr != nil {
		r.logger.Error("Component failed", zap.Error(runErr))
	}
	r.logger.Info("🛑 Whale tracker stopping")

	// ctx is done by now; the notice gets its own deadline
	r.announce(context.Background(), notify.RenderShutdown(time.Now()))

	shutdownErr := r.shutdown.Shutdown(context.Background())
	return errors.Join(runErr, shutdownErr)
}

// preflight checks connectivity. Failures only warn; the scheduler retries.
func (r *Runner) preflight(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, noticeTimeout)
	defer cancel()

	if client, ok := r.fetcher.(*exchange.Client); ok {
		if err := client.Ping(ctx); err != nil {
			r.logger.Warn("Exchange API unreachable", zap.String("url", r.cfg.Endpoint()), zap.Error(err))
		} else {
			r.logger.Info("✅ Exchange API reachable", zap.String("url", r.cfg.Endpoint()))
		}
	}

	if r.telegram != nil {
		me, err := r.telegram.GetMe(ctx)
		if err != nil {
			r.logger.Warn("Telegram bot check failed", zap.Error(err))
		} else {
			r.logger.Info("✅ Telegram bot ready", zap.String("username", me.Username))
		}
	}
}

func (r *Runner) announce(ctx context.Context, text string) {
	ctx, cancel := context.WithTimeout(ctx, noticeTimeout)
	defer cancel()

	if _, err := r.notifier.Announce(ctx, text); err != nil {
		r.logger.Warn("Failed to send notice", zap.Error(err))
	}
}

// Scheduler exposes the scheduler for status reporting.
func (r *Runner) Scheduler() *tracker.Scheduler {
	return r.scheduler
}
