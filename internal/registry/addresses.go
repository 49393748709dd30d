// internal/registry/addresses.go
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/whale-tracker/internal/domain"
	"github.com/rovshanmuradov/whale-tracker/internal/events"
	"github.com/rovshanmuradov/whale-tracker/internal/storage"
)

// Labeler produces a label that is not in existing.
type Labeler interface {
	Generate(existing map[string]struct{}) string
}

// StaticAddress is a configured address that is always tracked at startup.
type StaticAddress struct {
	Address string
	Label   string
}

// AddressRegistry is the single owner of the tracked address set.
type AddressRegistry struct {
	mu      sync.RWMutex
	file    *storage.JSONFile
	labeler Labeler
	logger  *zap.Logger
	events  events.Publisher
	now     func() time.Time

	order   []string
	entries map[string]domain.TrackedAddress
}

// NewAddressRegistry seeds the registry with static addresses and then the
// dynamic ones persisted at path. Invalid or duplicate entries are skipped
// with a warning; an unreadable file is logged and ignored.
func NewAddressRegistry(path string, static []StaticAddress, labeler Labeler, publisher events.Publisher, logger *zap.Logger) *AddressRegistry {
	if publisher == nil {
		publisher = events.Discard
	}
	r := &AddressRegistry{
		file:    storage.NewJSONFile(path),
		labeler: labeler,
		logger:  logger.Named("addresses"),
		events:  publisher,
		now:     time.Now,
		entries: make(map[string]domain.TrackedAddress),
	}

	started := r.now()
	for _, s := range static {
		if err := domain.ValidateAddress(s.Address); err != nil {
			r.logger.Warn("Skipping configured address", zap.String("address", s.Address), zap.Error(err))
			continue
		}
		if _, dup := r.entries[s.Address]; dup {
			continue
		}
		label := strings.TrimSpace(s.Label)
		if label == "" {
			label = r.labeler.Generate(r.labelsLocked())
		}
		r.insertLocked(domain.TrackedAddress{
			Address: s.Address,
			Label:   label,
			AddedAt: started,
			Source:  domain.SourceStatic,
		})
	}

	stored := newOrderedObject[string]()
	err := r.file.Read(stored)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		stored = newOrderedObject[string]()
	default:
		r.logger.Error("Address registry unreadable, using configured addresses only",
			zap.String("file", path), zap.Error(err))
		stored = newOrderedObject[string]()
	}

	for _, addr := range stored.keys {
		if err := domain.ValidateAddress(addr); err != nil {
			r.logger.Warn("Skipping stored address", zap.String("address", addr), zap.Error(err))
			continue
		}
		if _, dup := r.entries[addr]; dup {
			continue
		}
		label := strings.TrimSpace(stored.values[addr])
		if label == "" {
			label = r.labeler.Generate(r.labelsLocked())
		}
		r.insertLocked(domain.TrackedAddress{
			Address: addr,
			Label:   label,
			AddedAt: started,
			Source:  domain.SourceDynamic,
		})
	}

	r.logger.Info("Address registry ready",
		zap.Int("static", len(static)),
		zap.Int("stored", len(stored.keys)),
		zap.Int("tracked", len(r.order)))

	return r
}

// Add starts tracking address. An empty label gets a generated alias.
// When only the write to disk fails the address stays tracked and the
// returned error wraps ErrPersist.
func (r *AddressRegistry) Add(address, label string) (domain.TrackedAddress, error) {
	if err := domain.ValidateAddress(address); err != nil {
		return domain.TrackedAddress{}, err
	}

	r.mu.Lock()
	if _, exists := r.entries[address]; exists {
		r.mu.Unlock()
		return domain.TrackedAddress{}, fmt.Errorf("%w: %s", ErrAlreadyTracked, address)
	}

	label = strings.TrimSpace(label)
	if label == "" {
		label = r.labeler.Generate(r.labelsLocked())
	}
	entry := domain.TrackedAddress{
		Address: address,
		Label:   label,
		AddedAt: r.now(),
		Source:  domain.SourceDynamic,
	}
	r.insertLocked(entry)
	err := r.persistLocked()
	r.mu.Unlock()

	r.logger.Info("Address added", zap.String("address", address), zap.String("label", label))
	_ = r.events.Publish(&events.AddressAddedEvent{BaseEvent: events.NewBase(events.AddressAdded), Address: entry})

	return entry, err
}

// Remove stops tracking address. Static addresses are removed for the
// lifetime of the process only, since configuration re-adds them.
func (r *AddressRegistry) Remove(address string) (domain.TrackedAddress, error) {
	if err := domain.ValidateAddress(address); err != nil {
		return domain.TrackedAddress{}, err
	}

	r.mu.Lock()
	entry, exists := r.entries[address]
	if !exists {
		r.mu.Unlock()
		return domain.TrackedAddress{}, fmt.Errorf("%w: %s", ErrNotTracked, address)
	}

	delete(r.entries, address)
	for i, a := range r.order {
		if a == address {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	err := r.persistLocked()
	r.mu.Unlock()

	if entry.Source == domain.SourceStatic {
		r.logger.Warn("Configured address removed until restart", zap.String("address", address))
	}
	r.logger.Info("Address removed", zap.String("address", address), zap.String("label", entry.Label))
	_ = r.events.Publish(&events.AddressRemovedEvent{BaseEvent: events.NewBase(events.AddressRemoved), Address: entry})

	return entry, err
}

// List returns the tracked addresses in insertion order.
func (r *AddressRegistry) List() []domain.TrackedAddress {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.TrackedAddress, 0, len(r.order))
	for _, addr := range r.order {
		out = append(out, r.entries[addr])
	}
	return out
}

// Resolve returns the label for address, or its short form.
func (r *AddressRegistry) Resolve(address string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry, ok := r.entries[address]; ok && entry.Label != "" {
		return entry.Label
	}
	return domain.ShortAddress(address)
}

// Contains reports whether address is tracked.
func (r *AddressRegistry) Contains(address string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.entries[address]
	return ok
}

// Len returns the number of tracked addresses.
func (r *AddressRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.order)
}

func (r *AddressRegistry) insertLocked(entry domain.TrackedAddress) {
	r.entries[entry.Address] = entry
	r.order = append(r.order, entry.Address)
}

func (r *AddressRegistry) labelsLocked() map[string]struct{} {
	labels := make(map[string]struct{}, len(r.entries))
	for _, e := range r.entries {
		labels[e.Label] = struct{}{}
	}
	return labels
}

// persistLocked writes the dynamic addresses, in order, as {address: label}.
func (r *AddressRegistry) persistLocked() error {
	doc := newOrderedObject[string]()
	for _, addr := range r.order {
		entry := r.entries[addr]
		if entry.Source != domain.SourceDynamic {
			continue
		}
		doc.set(addr, entry.Label)
	}

	if err := r.file.Write(doc); err != nil {
		r.logger.Error("Failed to persist address registry", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}
