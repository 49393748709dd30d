// internal/registry/subscribers.go
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/whale-tracker/internal/domain"
	"github.com/rovshanmuradov/whale-tracker/internal/events"
	"github.com/rovshanmuradov/whale-tracker/internal/storage"
)

type subscriberRecord struct {
	ChatID    int64     `json:"chat_id"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name"`
	AddedAt   time.Time `json:"added_at"`
}

// SubscriberRegistry is the single owner of notification recipients.
type SubscriberRegistry struct {
	mu     sync.RWMutex
	file   *storage.JSONFile
	logger *zap.Logger
	events events.Publisher
	now    func() time.Time

	order   []int64
	entries map[int64]domain.Subscriber
}

// NewSubscriberRegistry loads the recipients persisted at path.
func NewSubscriberRegistry(path string, publisher events.Publisher, logger *zap.Logger) *SubscriberRegistry {
	if publisher == nil {
		publisher = events.Discard
	}
	r := &SubscriberRegistry{
		file:    storage.NewJSONFile(path),
		logger:  logger.Named("subscribers"),
		events:  publisher,
		now:     time.Now,
		entries: make(map[int64]domain.Subscriber),
	}

	stored := newOrderedObject[subscriberRecord]()
	err := r.file.Read(stored)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		stored = newOrderedObject[subscriberRecord]()
	default:
		r.logger.Error("Subscriber registry unreadable, starting empty",
			zap.String("file", path), zap.Error(err))
		stored = newOrderedObject[subscriberRecord]()
	}

	for _, key := range stored.keys {
		rec := stored.values[key]
		id := rec.ChatID
		if id == 0 {
			parsed, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				r.logger.Warn("Skipping stored subscriber", zap.String("key", key), zap.Error(err))
				continue
			}
			id = parsed
		}
		if _, dup := r.entries[id]; dup {
			continue
		}
		r.entries[id] = domain.Subscriber{
			ID:          id,
			Username:    rec.Username,
			FirstName:   rec.FirstName,
			FirstSeenAt: rec.AddedAt,
		}
		r.order = append(r.order, id)
	}

	r.logger.Info("Subscriber registry ready", zap.Int("subscribers", len(r.order)))
	return r
}

// Register adds a recipient or refreshes its display fields. FirstSeenAt
// never changes after the first registration. The bool reports whether
// the recipient is new.
func (r *SubscriberRegistry) Register(id int64, username, firstName string) (domain.Subscriber, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[id]; ok {
		if existing.Username == username && existing.FirstName == firstName {
			return existing, false, nil
		}
		existing.Username = username
		existing.FirstName = firstName
		r.entries[id] = existing
		return existing, false, r.persistLocked()
	}

	sub := domain.Subscriber{
		ID:          id,
		Username:    username,
		FirstName:   firstName,
		FirstSeenAt: r.now(),
	}
	r.entries[id] = sub
	r.order = append(r.order, id)

	r.logger.Info("Subscriber registered",
		zap.Int64("chat_id", id),
		zap.String("name", sub.DisplayName()))

	return sub, true, r.persistLocked()
}

// Deregister removes a recipient. It reports whether one was removed.
func (r *SubscriberRegistry) Deregister(id int64, reason string) (bool, error) {
	r.mu.Lock()
	if _, ok := r.entries[id]; !ok {
		r.mu.Unlock()
		return false, nil
	}
	delete(r.entries, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	err := r.persistLocked()
	r.mu.Unlock()

	r.logger.Warn("Subscriber removed", zap.Int64("chat_id", id), zap.String("reason", reason))
	_ = r.events.Publish(&events.SubscriberRemovedEvent{
		BaseEvent: events.NewBase(events.SubscriberRemoved),
		Recipient: id,
		Reason:    reason,
	})
	return true, err
}

// Bootstrap registers defaultID when no recipient exists yet. A zero id
// means no default is configured.
func (r *SubscriberRegistry) Bootstrap(defaultID int64) error {
	if defaultID == 0 || r.Len() > 0 {
		return nil
	}
	_, _, err := r.Register(defaultID, "", "")
	if err == nil {
		r.logger.Info("Default recipient registered", zap.Int64("chat_id", defaultID))
	}
	return err
}

// ListRecipients returns recipient ids in registration order.
func (r *SubscriberRegistry) ListRecipients() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]int64(nil), r.order...)
}

// List returns the recipients in registration order.
func (r *SubscriberRegistry) List() []domain.Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Subscriber, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id])
	}
	return out
}

// Get looks up a single recipient.
func (r *SubscriberRegistry) Get(id int64) (domain.Subscriber, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.entries[id]
	return s, ok
}

// Len returns the number of recipients.
func (r *SubscriberRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.order)
}

func (r *SubscriberRegistry) persistLocked() error {
	doc := newOrderedObject[subscriberRecord]()
	for _, id := range r.order {
		s := r.entries[id]
		doc.set(strconv.FormatInt(id, 10), subscriberRecord{
			ChatID:    s.ID,
			Username:  s.Username,
			FirstName: s.FirstName,
			AddedAt:   s.FirstSeenAt,
		})
	}

	if err := r.file.Write(doc); err != nil {
		r.logger.Error("Failed to persist subscriber registry", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}
