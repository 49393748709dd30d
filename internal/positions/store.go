// internal/positions/store.go
package positions

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/whale-tracker/internal/domain"
	"github.com/rovshanmuradov/whale-tracker/internal/storage"
)

// record is the on-disk shape of one position; the symbol is the map key.
type record struct {
	Size          decimal.Decimal `json:"size"`
	Side          string          `json:"side"`
	EntryPrice    decimal.Decimal `json:"entryPrice"`
	MarketValue   decimal.Decimal `json:"marketValue"`
	UnrealizedPnL decimal.Decimal `json:"unrealizedPnl"`
	ObservedAt    time.Time       `json:"observedAt"`
}

type document map[string]map[string]record

// Store owns the latest snapshot of every tracked address. Reads return
// copies; Update swaps a whole address under the write lock so no reader
// ever sees a half-updated address.
type Store struct {
	mu     sync.RWMutex
	file   *storage.JSONFile
	logger *zap.Logger
	state  domain.Snapshot

	// orders snapshot+write pairs so an older snapshot never lands last
	persistMu sync.Mutex
}

// Open creates a store backed by path and loads whatever is there.
func Open(path string, logger *zap.Logger) *Store {
	s := &Store{
		file:   storage.NewJSONFile(path),
		logger: logger.Named("positions"),
		state:  make(domain.Snapshot),
	}

	snapshot, err := s.Load()
	switch {
	case err == nil:
		s.state = snapshot
		s.logger.Info("Loaded stored positions", zap.Int("addresses", len(snapshot)))
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Info("No stored positions, starting empty", zap.String("file", path))
	default:
		s.logger.Error("Stored positions unreadable, starting empty",
			zap.String("file", path), zap.Error(err))
	}

	return s
}

// Load reads the durable snapshot. Callers treat any error as "empty".
func (s *Store) Load() (domain.Snapshot, error) {
	var doc document
	if err := s.file.Read(&doc); err != nil {
		return domain.Snapshot{}, err
	}

	snapshot := make(domain.Snapshot, len(doc))
	for addr, symbols := range doc {
		positions := make(domain.Positions, len(symbols))
		for sym, rec := range symbols {
			side, err := domain.ParseSide(rec.Side)
			if err != nil {
				return domain.Snapshot{}, fmt.Errorf("%w: %s/%s: %v", storage.ErrCorrupt, addr, sym, err)
			}
			positions[sym] = domain.Position{
				Symbol:        sym,
				Size:          rec.Size,
				Side:          side,
				EntryPrice:    rec.EntryPrice,
				MarketValue:   rec.MarketValue,
				UnrealizedPnL: rec.UnrealizedPnL,
				ObservedAt:    rec.ObservedAt,
			}
		}
		snapshot[addr] = positions
	}
	return snapshot, nil
}

// Save writes snapshot as the durable copy.
func (s *Store) Save(snapshot domain.Snapshot) error {
	doc := make(document, len(snapshot))
	for addr, positions := range snapshot {
		symbols := make(map[string]record, len(positions))
		for sym, pos := range positions {
			symbols[sym] = record{
				Size:          pos.Size,
				Side:          string(pos.Side),
				EntryPrice:    pos.EntryPrice,
				MarketValue:   pos.MarketValue,
				UnrealizedPnL: pos.UnrealizedPnL,
				ObservedAt:    pos.ObservedAt,
			}
		}
		doc[addr] = symbols
	}

	if err := s.file.Write(doc); err != nil {
		return fmt.Errorf("save positions: %w", err)
	}
	return nil
}

// Persist saves the current in-memory snapshot. Concurrent calls write in
// the order they took their snapshots.
func (s *Store) Persist() error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	return s.Save(s.Snapshot())
}

// Update replaces the positions of one address.
func (s *Store) Update(address string, positions domain.Positions) {
	next := positions.Clone()

	s.mu.Lock()
	s.state[address] = next
	s.mu.Unlock()
}

// Get returns a copy of the positions of one address (empty if unknown).
func (s *Store) Get(address string) domain.Positions {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state[address].Clone()
}

// Known reports whether the address has ever been stored.
func (s *Store) Known(address string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.state[address]
	return ok
}

// Forget drops an address from the snapshot.
func (s *Store) Forget(address string) {
	s.mu.Lock()
	delete(s.state, address)
	s.mu.Unlock()
}

// Snapshot returns a deep copy of the whole state.
func (s *Store) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state.Clone()
}
