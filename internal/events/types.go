// internal/events/types.go
package events

import (
	"time"

	"github.com/rovshanmuradov/whale-tracker/internal/domain"
)

// EventType represents the type of event.
type EventType string

const (
	// Tracking events
	ChangeDetected EventType = "change.detected"
	CycleCompleted EventType = "cycle.completed"
	FetchFailed    EventType = "fetch.failed"

	// Delivery events
	DeliveryFailed    EventType = "delivery.failed"
	SubscriberRemoved EventType = "subscriber.removed"

	// Registry events
	AddressAdded   EventType = "address.added"
	AddressRemoved EventType = "address.removed"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

func NewBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, EventTime: time.Now()}
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// ChangeDetectedEvent is emitted for every detected change, including the
// ones whose notification is suppressed.
type ChangeDetectedEvent struct {
	BaseEvent
	Change domain.PositionChange
	Label  string
}

// CycleCompletedEvent summarizes one polling cycle.
type CycleCompletedEvent struct {
	BaseEvent
	Cycle     uint64
	Addresses int
	Failed    int
	Changes   int
	Duration  time.Duration
	Err       error
}

// FetchFailedEvent is emitted when an address is skipped for a cycle.
type FetchFailedEvent struct {
	BaseEvent
	Address string
	Error   error
}

// DeliveryFailedEvent is emitted for every failed delivery attempt.
type DeliveryFailedEvent struct {
	BaseEvent
	Recipient int64
	Permanent bool
	Error     error
}

// SubscriberRemovedEvent is emitted when a recipient is deregistered.
type SubscriberRemovedEvent struct {
	BaseEvent
	Recipient int64
	Reason    string
}

// AddressAddedEvent is emitted after a successful registry add.
type AddressAddedEvent struct {
	BaseEvent
	Address domain.TrackedAddress
}

// AddressRemovedEvent is emitted after a successful registry remove.
type AddressRemovedEvent struct {
	BaseEvent
	Address domain.TrackedAddress
}
