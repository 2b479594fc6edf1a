/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	EventHealth EventType = "health"

	// Delivery pipeline events
	EventDeliveryDispatched EventType = "delivery.dispatched"
	EventDeliveryFailed     EventType = "delivery.failed"
	EventDeliverySkipped    EventType = "delivery.skipped"

	// Manager approval workflow events
	EventManagerSubmitted EventType = "manager.submitted"
	EventManagerApproved  EventType = "manager.approved"
	EventManagerRejected  EventType = "manager.rejected"

	// Daily matches events
	EventMatchesSelected EventType = "matches.selected"

	// Cache invalidation events
	EventChannelCreated EventType = "cache.channel_created"
	EventChannelUpdated EventType = "cache.channel_updated"
	EventChannelDeleted EventType = "cache.channel_deleted"
	EventRuleCreated    EventType = "cache.rule_created"
	EventRuleUpdated    EventType = "cache.rule_updated"
	EventRuleDeleted    EventType = "cache.rule_deleted"
	EventCouponUpdated  EventType = "cache.coupon_updated"

	// Legacy dashboard import job events
	EventImport EventType = "import"

	// Audit events (consumed by the audit service)
	EventAudit EventType = "audit"
)

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// PubSub is the bus surface services depend on. Bus satisfies it for the
// single-instance case; the eventbus package provides Redis- and
// NATS-backed implementations for multi-instance deployments.
type PubSub interface {
	Publish(eventType EventType, payload Payload)
	Subscribe(eventType EventType) Subscriber
	Unsubscribe(eventType EventType, sub Subscriber)
}

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 8)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers. Slow subscribers drop events
// rather than block the publisher.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs[eventType]...)
	b.mu.RUnlock()
	for _, sub := range subs {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	b.subs[eventType] = subs
	close(sub)
}
