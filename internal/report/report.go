// internal/report/report.go
package report

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/whale-tracker/internal/domain"
	"github.com/rovshanmuradov/whale-tracker/internal/notify"
)

const width = 72

// Result is the outcome of checking one address.
type Result struct {
	Address   string
	Positions domain.Positions
	Err       error
}

// Valid reports whether the address passed validation and was fetched.
func (r Result) Valid() bool { return r.Err == nil }

// Active reports whether the address holds any position.
func (r Result) Active() bool { return r.Err == nil && len(r.Positions) > 0 }

// Summary aggregates a batch of results.
type Summary struct {
	Checked    int
	Valid      int
	Active     int
	TotalValue decimal.Decimal
}

func Summarize(results []Result) Summary {
	s := Summary{Checked: len(results), TotalValue: decimal.Zero}
	for _, r := range results {
		if r.Valid() {
			s.Valid++
		}
		if r.Active() {
			s.Active++
			s.TotalValue = s.TotalValue.Add(r.Positions.TotalValue())
		}
	}
	return s
}

// Render formats the address testing report.
func Render(results []Result, st Styles) string {
	var b strings.Builder
	rule := st.Rule.Render(strings.Repeat("=", width))

	b.WriteString(rule + "\n")
	b.WriteString(st.Title.Render("📊 ADDRESS TESTING REPORT") + "\n")
	b.WriteString(rule + "\n")

	sum := Summarize(results)
	fmt.Fprintf(&b, "✅ Valid addresses: %d/%d\n", sum.Valid, sum.Checked)
	fmt.Fprintf(&b, "📈 Addresses with positions: %d/%d\n", sum.Active, sum.Checked)
	fmt.Fprintf(&b, "💰 Total position value: %s\n\n", notify.FormatUSD(sum.TotalValue))

	for _, r := range results {
		short := domain.ShortAddress(r.Address)
		switch {
		case !r.Valid():
			b.WriteString(st.Invalid.Render(fmt.Sprintf("❌ %s: %v", short, r.Err)) + "\n")
		case r.Active():
			b.WriteString(st.Active.Render(fmt.Sprintf("🟢 %s: %d positions, %s",
				short, len(r.Positions), notify.FormatUSD(r.Positions.TotalValue()))) + "\n")
			for _, sym := range r.Positions.Symbols() {
				p := r.Positions[sym]
				side := st.Long
				if p.Side == domain.SideShort {
					side = st.Short
				}
				fmt.Fprintf(&b, "   └─ %s %s: %s %s\n",
					p.Symbol,
					side.Render(strings.ToUpper(string(p.Side))),
					notify.FormatUSD(p.MarketValue),
					st.Muted.Render("@ "+p.EntryPrice.String()))
			}
		default:
			b.WriteString(st.Idle.Render(fmt.Sprintf("⚪ %s: No active positions", short)) + "\n")
		}
	}

	b.WriteString("\n" + rule + "\n")
	if sum.Active > 0 {
		b.WriteString("✅ Ready to track! Add these addresses to tracked_addresses or use /add\n")
	} else {
		b.WriteString(st.Warning.Render("⚠️  No addresses with active positions found.") + "\n")
	}
	return b.String()
}
