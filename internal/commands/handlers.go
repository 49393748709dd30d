// internal/commands/handlers.go
package commands

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/whale-tracker/internal/domain"
	"github.com/rovshanmuradov/whale-tracker/internal/exchange"
	"github.com/rovshanmuradov/whale-tracker/internal/notify"
	"github.com/rovshanmuradov/whale-tracker/internal/registry"
)

const helpText = "🐋 <b>Whale Tracker Commands</b>\n\n" +
	"📌 <b>/add address:label</b>\n" +
	"   Track an address with a custom label\n" +
	"   Example: /add 0x1234...5678:My Whale\n\n" +
	"📌 <b>/add address</b>\n" +
	"   Track an address with a generated label\n\n" +
	"🗑 <b>/remove address</b>\n" +
	"   Stop tracking an address\n\n" +
	"📊 <b>/list</b>\n" +
	"   Show all tracked addresses\n\n" +
	"🔍 <b>/check address</b>\n" +
	"   Show the live positions of any address\n\n" +
	"❓ <b>/help</b>\n" +
	"   Show this help message\n\n" +
	"📝 <b>Notes:</b>\n" +
	"• Addresses are 42 characters long and start with 0x\n" +
	"• Only actual position changes are alerted\n" +
	"• Newly opened positions may be skipped to avoid spam"

// Addresses is the mutable side of the address registry.
type Addresses interface {
	Add(address, label string) (domain.TrackedAddress, error)
	Remove(address string) (domain.TrackedAddress, error)
	List() []domain.TrackedAddress
}

// Service implements the built-in commands.
type Service struct {
	addresses Addresses
	fetcher   exchange.Fetcher
	cache     *ristretto.Cache
	ttl       time.Duration
	logger    *zap.Logger
}

// NewService builds the command handlers. checkTTL <= 0 disables caching
// of check results.
func NewService(addresses Addresses, fetcher exchange.Fetcher, checkTTL time.Duration, logger *zap.Logger) (*Service, error) {
	s := &Service{
		addresses: addresses,
		fetcher:   fetcher,
		ttl:       checkTTL,
		logger:    logger.Named("command_service"),
	}
	if checkTTL > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: 1e4,
			MaxCost:     1000,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create check cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Register binds every built-in command to r.
func (s *Service) Register(r *Router) {
	r.Register(NameAdd, HandlerFunc(s.add))
	r.Register(NameRemove, HandlerFunc(s.remove))
	r.Register(NameList, HandlerFunc(s.list))
	r.Register(NameCheck, HandlerFunc(s.check))
	r.Register(NameHelp, HandlerFunc(s.help))
	r.Register(NameStart, HandlerFunc(s.help))
}

// Close releases the check cache.
func (s *Service) Close() error {
	if s.cache != nil {
		s.cache.Close()
	}
	return nil
}

func (s *Service) add(_ context.Context, _ Request, cmd Command) (string, error) {
	c := cmd.(AddCommand)
	entry, err := s.addresses.Add(c.Address, c.Label)
	if err != nil && !errors.Is(err, registry.ErrPersist) {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✅ Now tracking <b>%s</b>\n", html.EscapeString(entry.Label))
	fmt.Fprintf(&b, "<code>%s</code>\n", entry.Address)
	fmt.Fprintf(&b, "📊 <a href='%s'>View on Hyperdash</a>", notify.HyperdashLink(entry.Address))
	if err != nil {
		b.WriteString("\n\n⚠️ Could not save to disk, the address will be forgotten on restart.")
	}
	return b.String(), nil
}

func (s *Service) remove(_ context.Context, _ Request, cmd Command) (string, error) {
	c := cmd.(RemoveCommand)
	entry, err := s.addresses.Remove(c.Address)
	if err != nil && !errors.Is(err, registry.ErrPersist) {
		return "", err
	}

	reply := fmt.Sprintf("🗑 Stopped tracking <b>%s</b>\n<code>%s</code>", html.EscapeString(entry.Label), entry.Address)
	if entry.Source == domain.SourceStatic {
		reply += "\n\nℹ️ This address is in the configuration and comes back after a restart."
	}
	if err != nil {
		reply += "\n\n⚠️ Could not save to disk, the address will be tracked again after a restart."
	}
	return reply, nil
}

func (s *Service) list(_ context.Context, _ Request, _ Command) (string, error) {
	entries := s.addresses.List()
	if len(entries) == 0 {
		return "📋 No addresses are being tracked. Use /add to start.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📋 <b>Tracked addresses (%d)</b>\n", len(entries))
	for i, e := range entries {
		fmt.Fprintf(&b, "\n%d. <b>%s</b>\n<code>%s</code>", i+1, html.EscapeString(e.Label), e.Address)
	}
	return b.String(), nil
}

func (s *Service) check(ctx context.Context, _ Request, cmd Command) (string, error) {
	c := cmd.(CheckCommand)
	positions, cached, err := s.Positions(ctx, c.Address)
	if err != nil {
		return "", fmt.Errorf("could not fetch positions: %w", err)
	}
	reply := RenderPositions(c.Address, positions)
	if cached {
		reply += "\n\n<i>cached</i>"
	}
	return reply, nil
}

// Positions is a read-only point query. It never touches the stored
// snapshot or the detector. The bool reports a cache hit.
func (s *Service) Positions(ctx context.Context, address string) (domain.Positions, bool, error) {
	if err := domain.ValidateAddress(address); err != nil {
		return nil, false, err
	}

	if s.cache != nil {
		if v, ok := s.cache.Get(address); ok {
			if p, ok := v.(domain.Positions); ok {
				return p.Clone(), true, nil
			}
		}
	}

	positions, err := s.fetcher.FetchPositions(ctx, address)
	if err != nil {
		return nil, false, err
	}

	if s.cache != nil {
		s.cache.SetWithTTL(address, positions.Clone(), 1, s.ttl)
		s.cache.Wait()
	}
	return positions, false, nil
}

func (s *Service) help(context.Context, Request, Command) (string, error) {
	return helpText, nil
}

// RenderPositions lists positions by market value, largest first.
func RenderPositions(address string, positions domain.Positions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔍 <b>%s</b>\n", domain.ShortAddress(address))

	if len(positions) == 0 {
		b.WriteString("No open positions.\n")
	} else {
		list := make([]domain.Position, 0, len(positions))
		for _, p := range positions {
			list = append(list, p)
		}
		sort.Slice(list, func(i, j int) bool {
			if c := list[i].MarketValue.Cmp(list[j].MarketValue); c != 0 {
				return c > 0
			}
			return list[i].Symbol < list[j].Symbol
		})

		for _, p := range list {
			fmt.Fprintf(&b, "• %s %s %s (%s)\n",
				html.EscapeString(p.Symbol),
				strings.ToUpper(string(p.Side)),
				notify.FormatUSD(p.MarketValue),
				notify.FormatSignedUSD(p.UnrealizedPnL))
		}
		fmt.Fprintf(&b, "💰 Total: %s\n", notify.FormatUSD(positions.TotalValue()))
	}

	fmt.Fprintf(&b, "📊 <a href='%s'>View on Hyperdash</a>", notify.HyperdashLink(address))
	return b.String()
}

// ReplyError maps command errors to user-facing text.
func ReplyError(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidAddress):
		return "❌ Invalid address format. Addresses start with 0x followed by 40 hex characters."
	case errors.Is(err, registry.ErrAlreadyTracked):
		return "⚠️ Address is already being tracked."
	case errors.Is(err, registry.ErrNotTracked):
		return "⚠️ Address is not being tracked."
	}
	return "❌ Error: " + html.EscapeString(err.Error())
}
