// internal/metrics/collector.go
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rovshanmuradov/whale-tracker/internal/domain"
	"github.com/rovshanmuradov/whale-tracker/internal/events"
)

// Collector owns a private registry fed from the event bus.
type Collector struct {
	registry *prometheus.Registry

	cycles             *prometheus.CounterVec
	cycleDuration      prometheus.Histogram
	changes            *prometheus.CounterVec
	fetchFailures      prometheus.Counter
	deliveryFailures   *prometheus.CounterVec
	subscribersRemoved prometheus.Counter
	trackedAddresses   prometheus.Gauge
}

func NewCollector() *Collector {
	c := &Collector{
		registry:           prometheus.NewRegistry(),
		cycles:             newCycles(),
		cycleDuration:      newCycleDuration(),
		changes:            newChanges(),
		fetchFailures:      newFetchFailures(),
		deliveryFailures:   newDeliveryFailures(),
		subscribersRemoved: newSubscribersRemoved(),
		trackedAddresses:   newTrackedAddresses(),
	}
	c.registry.MustRegister(
		c.cycles,
		c.cycleDuration,
		c.changes,
		c.fetchFailures,
		c.deliveryFailures,
		c.subscribersRemoved,
		c.trackedAddresses,
	)

	// zero series so dashboards see every kind from the start
	for _, k := range domain.ChangeKinds {
		c.changes.WithLabelValues(k.String())
	}
	return c
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) RecordCycle(ev *events.CycleCompletedEvent) {
	status := "ok"
	if ev.Err != nil {
		status = "failed"
	}
	c.cycles.WithLabelValues(status).Inc()
	c.cycleDuration.Observe(ev.Duration.Seconds())
	c.trackedAddresses.Set(float64(ev.Addresses))
}

func (c *Collector) RecordChange(kind domain.ChangeKind) {
	c.changes.WithLabelValues(kind.String()).Inc()
}

func (c *Collector) RecordFetchFailure() {
	c.fetchFailures.Inc()
}

func (c *Collector) RecordDeliveryFailure(permanent bool) {
	c.deliveryFailures.WithLabelValues(strconv.FormatBool(permanent)).Inc()
}

func (c *Collector) RecordSubscriberRemoved() {
	c.subscribersRemoved.Inc()
}

// Subscribe wires the collector to every event type it counts.
func (c *Collector) Subscribe(bus *events.Bus) []events.Subscription {
	return []events.Subscription{
		bus.SubscribeFunc(events.CycleCompleted, func(_ context.Context, e events.Event) error {
			ev, ok := e.(*events.CycleCompletedEvent)
			if !ok {
				return fmt.Errorf("unexpected event %T", e)
			}
			c.RecordCycle(ev)
			return nil
		}),
		bus.SubscribeFunc(events.ChangeDetected, func(_ context.Context, e events.Event) error {
			ev, ok := e.(*events.ChangeDetectedEvent)
			if !ok {
				return fmt.Errorf("unexpected event %T", e)
			}
			c.RecordChange(ev.Change.Kind)
			return nil
		}),
		bus.SubscribeFunc(events.FetchFailed, func(context.Context, events.Event) error {
			c.RecordFetchFailure()
			return nil
		}),
		bus.SubscribeFunc(events.DeliveryFailed, func(_ context.Context, e events.Event) error {
			ev, ok := e.(*events.DeliveryFailedEvent)
			if !ok {
				return fmt.Errorf("unexpected event %T", e)
			}
			c.RecordDeliveryFailure(ev.Permanent)
			return nil
		}),
		bus.SubscribeFunc(events.SubscriberRemoved, func(context.Context, events.Event) error {
			c.RecordSubscriberRemoved()
			return nil
		}),
	}
}
