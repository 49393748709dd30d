// internal/notify/render.go
package notify

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/whale-tracker/internal/domain"
)

const hyperdashURL = "https://hyperdash.xyz/address/"

// HyperdashLink returns the public dashboard URL of address.
func HyperdashLink(address string) string {
	return hyperdashURL + address
}

// Render formats a change as a Telegram HTML message.
func Render(change domain.PositionChange, label string) string {
	var icon, action, details string
	side := strings.ToUpper(string(change.Side()))

	switch change.Kind {
	case domain.ChangeOpened:
		icon, action = "🟢", "OPENED"
		details = FormatUSD(change.Magnitude) + " @ $" + change.Current.EntryPrice.String()
	case domain.ChangeClosed:
		icon, action = "🔴", "CLOSED"
		details = FormatUSD(change.Magnitude) + "\nPnL: " + FormatSignedUSD(change.Previous.UnrealizedPnL)
	case domain.ChangeIncreased:
		icon, action = "📈", "INCREASED"
		details = "+" + FormatUSD(change.Magnitude) + "\nTotal: " + FormatUSD(change.Current.MarketValue)
	case domain.ChangeDecreased:
		icon, action = "📉", "DECREASED"
		details = "-" + FormatUSD(change.Magnitude) + "\nTotal: " + FormatUSD(change.Current.MarketValue)
	default:
		panic(fmt.Sprintf("notify: unhandled change kind %s", change.Kind))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s</b>\n", icon, html.EscapeString(label))
	fmt.Fprintf(&b, "%s %s %s\n", action, html.EscapeString(change.Symbol), side)
	fmt.Fprintf(&b, "%s\n", details)
	fmt.Fprintf(&b, "🕐 %s\n", change.OccurredAt.Format("15:04:05"))
	fmt.Fprintf(&b, "📊 <a href='%s'>View on Hyperdash</a>", HyperdashLink(change.Address))
	return b.String()
}

// RenderError formats an error alert.
func RenderError(err error, at time.Time) string {
	var b strings.Builder
	b.WriteString("⚠️ <b>Whale Tracker Error</b>\n\n")
	fmt.Fprintf(&b, "❌ %s\n", html.EscapeString(err.Error()))
	fmt.Fprintf(&b, "🕐 %s\n\n", at.Format("15:04:05"))
	b.WriteString("Please check the logs for more details.")
	return b.String()
}

// StartupInfo is what the startup notice reports.
type StartupInfo struct {
	Addresses          int
	PollingInterval    time.Duration
	MinPositionSize    decimal.Decimal
	MinChangeThreshold decimal.Decimal
	Simulated          bool
}

// RenderStartup formats the startup notice.
func RenderStartup(info StartupInfo) string {
	var b strings.Builder
	b.WriteString("🚀 <b>Whale Tracker Started</b>\n\n")
	if info.Simulated {
		b.WriteString("🧪 Simulation mode, no live data\n")
	}
	fmt.Fprintf(&b, "📡 Monitoring %d addresses\n", info.Addresses)
	fmt.Fprintf(&b, "⏱️ Polling every %s\n", info.PollingInterval)
	fmt.Fprintf(&b, "💰 Min position: %s\n", FormatUSD(info.MinPositionSize))
	fmt.Fprintf(&b, "📊 Min change: %s\n\n", FormatUSD(info.MinChangeThreshold))
	b.WriteString("🔍 Watching for whale movements...")
	return b.String()
}

// RenderShutdown formats the shutdown notice.
func RenderShutdown(at time.Time) string {
	return "🛑 <b>Whale Tracker Stopped</b>\n\n" +
		"📊 Monitoring session ended\n" +
		"🕐 " + at.Format("2006-01-02 15:04:05")
}

// FormatUSD renders v as $1,234.56.
func FormatUSD(v decimal.Decimal) string {
	s := groupThousands(v.Abs().StringFixed(2))
	if v.IsNegative() {
		return "-$" + s
	}
	return "$" + s
}

// FormatSignedUSD renders v with an explicit sign, e.g. +$1,234.56.
func FormatSignedUSD(v decimal.Decimal) string {
	if v.IsNegative() {
		return FormatUSD(v)
	}
	return "+" + FormatUSD(v)
}

func groupThousands(fixed string) string {
	intPart, frac, _ := strings.Cut(fixed, ".")
	if len(intPart) <= 3 {
		return fixed
	}

	var b strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
