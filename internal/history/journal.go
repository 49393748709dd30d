// internal/history/journal.go
package history

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/whale-tracker/internal/domain"
	"github.com/rovshanmuradov/whale-tracker/internal/events"
	"github.com/rovshanmuradov/whale-tracker/internal/logger"
)

// Entry is one journaled change.
type Entry struct {
	Change domain.PositionChange `json:"change"`
	Label  string                `json:"label"`
}

// Stats summarizes everything recorded since the journal was opened.
type Stats struct {
	Total           int                       `json:"total"`
	ByKind          map[domain.ChangeKind]int `json:"byKind"`
	TotalMagnitude  decimal.Decimal           `json:"totalMagnitude"`
	ActiveAddresses int                       `json:"activeAddresses"`
	Since           time.Time                 `json:"since"`
	// Persisted counts rows written to the CSV file.
	Persisted uint64 `json:"persisted"`
}

var csvHeader = []string{
	"timestamp", "address", "label", "symbol", "kind", "side",
	"magnitude", "previous_value", "current_value", "entry_price",
}

// Journal keeps the most recent changes in memory and appends every change
// to a CSV file.
type Journal struct {
	mu      sync.RWMutex
	csv     *logger.SafeCSVWriter
	entries []Entry
	max     int
	logger  *zap.Logger

	since     time.Time
	total     int
	byKind    map[domain.ChangeKind]int
	magnitude decimal.Decimal
	addresses map[string]struct{}
}

// Open creates a journal appending to csvPath. An empty path keeps the
// journal in memory only.
func Open(csvPath string, maxEntries int, flushInterval time.Duration, log *zap.Logger) (*Journal, error) {
	if maxEntries <= 0 {
		maxEntries = 500
	}
	j := &Journal{
		entries:   make([]Entry, 0, maxEntries),
		max:       maxEntries,
		logger:    log.Named("history"),
		since:     time.Now(),
		byKind:    make(map[domain.ChangeKind]int),
		magnitude: decimal.Zero,
		addresses: make(map[string]struct{}),
	}

	if csvPath != "" {
		w, err := logger.NewSafeCSVWriter(csvPath, csvHeader, flushInterval, j.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open change journal: %w", err)
		}
		j.csv = w
	}

	j.logger.Info("Change journal ready",
		zap.String("csv_file", csvPath),
		zap.Int("max_memory_entries", maxEntries))
	return j, nil
}

// Record appends one change.
func (j *Journal) Record(change domain.PositionChange, label string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.csv != nil {
		if err := j.csv.WriteRecord(toCSV(change, label)); err != nil {
			j.logger.Error("Failed to journal change",
				zap.String("address", change.Address),
				zap.String("symbol", change.Symbol),
				zap.Error(err))
			return fmt.Errorf("failed to journal change: %w", err)
		}
	}

	if len(j.entries) >= j.max {
		j.entries = j.entries[1:]
	}
	j.entries = append(j.entries, Entry{Change: change, Label: label})

	j.total++
	j.byKind[change.Kind]++
	j.magnitude = j.magnitude.Add(change.Magnitude)
	j.addresses[change.Address] = struct{}{}

	return nil
}

// Recent returns up to limit entries, newest first. limit <= 0 means all
// retained entries.
func (j *Journal) Recent(limit int) []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if limit <= 0 || limit > len(j.entries) {
		limit = len(j.entries)
	}

	out := make([]Entry, 0, limit)
	for i := len(j.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, j.entries[i])
	}
	return out
}

// ForAddress returns the retained entries of one address, oldest first.
func (j *Journal) ForAddress(address string) []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var out []Entry
	for _, e := range j.entries {
		if e.Change.Address == address {
			out = append(out, e)
		}
	}
	return out
}

// Stats returns counters over every recorded change.
func (j *Journal) Stats() Stats {
	j.mu.RLock()
	defer j.mu.RUnlock()

	byKind := make(map[domain.ChangeKind]int, len(j.byKind))
	for k, v := range j.byKind {
		byKind[k] = v
	}
	stats := Stats{
		Total:           j.total,
		ByKind:          byKind,
		TotalMagnitude:  j.magnitude,
		ActiveAddresses: len(j.addresses),
		Since:           j.since,
	}
	if j.csv != nil {
		stats.Persisted, _ = j.csv.Stats()
	}
	return stats
}

// TopMovers returns the n addresses with the largest summed magnitude among
// the retained entries.
func (j *Journal) TopMovers(n int) []string {
	j.mu.RLock()
	sums := make(map[string]decimal.Decimal)
	for _, e := range j.entries {
		sums[e.Change.Address] = sums[e.Change.Address].Add(e.Change.Magnitude)
	}
	j.mu.RUnlock()

	addrs := make([]string, 0, len(sums))
	for a := range sums {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(a, b int) bool {
		if c := sums[addrs[a]].Cmp(sums[addrs[b]]); c != 0 {
			return c > 0
		}
		return addrs[a] < addrs[b]
	})
	if n > 0 && len(addrs) > n {
		addrs = addrs[:n]
	}
	return addrs
}

// Subscribe feeds the journal from change.detected events.
func (j *Journal) Subscribe(bus *events.Bus) events.Subscription {
	return bus.SubscribeFunc(events.ChangeDetected, func(_ context.Context, e events.Event) error {
		ev, ok := e.(*events.ChangeDetectedEvent)
		if !ok {
			return fmt.Errorf("unexpected event %T", e)
		}
		return j.Record(ev.Change, ev.Label)
	})
}

// Close flushes the CSV file.
func (j *Journal) Close() error {
	if j.csv == nil {
		return nil
	}
	return j.csv.Close()
}

func toCSV(c domain.PositionChange, label string) []string {
	prevValue, curValue, entry := "", "", ""
	if c.Previous != nil {
		prevValue = c.Previous.MarketValue.String()
		entry = c.Previous.EntryPrice.String()
	}
	if c.Current != nil {
		curValue = c.Current.MarketValue.String()
		entry = c.Current.EntryPrice.String()
	}
	return []string{
		c.OccurredAt.UTC().Format(time.RFC3339),
		c.Address,
		label,
		c.Symbol,
		c.Kind.String(),
		string(c.Side()),
		c.Magnitude.String(),
		prevValue,
		curValue,
		entry,
	}
}
