/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"sync"
	"time"

	"github.com/botdeckhq/botdeck/internal/events"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const natsSubjectPrefix = "botdeck.events."

// NATSBus implements a NATS-backed event bus. Subjects follow the pattern
// "botdeck.events.{event_type}". If NATS is unreachable at startup the bus
// degrades to the in-memory fallback, mirroring RedisBus behaviour.
type NATSBus struct {
	conn     *nats.Conn
	logger   zerolog.Logger
	fallback *events.Bus
	nodeID   string

	mu          sync.RWMutex
	subs        map[events.EventType][]events.Subscriber
	natsSubs    map[events.EventType]*nats.Subscription
	useFallback bool
}

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "botdeck",
		MaxReconnects: -1, // unlimited
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NewNATSBus creates a NATS-backed event bus.
func NewNATSBus(cfg NATSConfig, logger zerolog.Logger) (*NATSBus, error) {
	nb := &NATSBus{
		logger:   logger,
		fallback: events.NewBus(),
		nodeID:   uuid.NewString(),
		subs:     make(map[events.EventType][]events.Subscriber),
		natsSubs: make(map[events.EventType]*nats.Subscription),
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		logger.Warn().Err(err).Msg("NATS connection failed, using in-memory fallback")
		nb.useFallback = true
		return nb, nil
	}

	nb.conn = conn
	logger.Info().Str("url", cfg.URL).Msg("NATS event bus initialized")
	return nb, nil
}

// Subscribe registers a subscriber for an event type.
func (nb *NATSBus) Subscribe(eventType events.EventType) events.Subscriber {
	nb.mu.Lock()
	defer nb.mu.Unlock()

	if nb.useFallback {
		return nb.fallback.Subscribe(eventType)
	}

	sub := make(events.Subscriber, 100)
	nb.subs[eventType] = append(nb.subs[eventType], sub)

	if _, exists := nb.natsSubs[eventType]; !exists {
		natsSub, err := nb.conn.Subscribe(natsSubjectPrefix+string(eventType), func(msg *nats.Msg) {
			nb.deliver(eventType, msg.Data)
		})
		if err != nil {
			nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("NATS subscribe failed")
		} else {
			nb.natsSubs[eventType] = natsSub
		}
	}

	return sub
}

// deliver fans a remote message out to local subscribers.
func (nb *NATSBus) deliver(eventType events.EventType, data []byte) {
	msg, err := unmarshalMessage(data)
	if err != nil {
		nb.logger.Error().Err(err).Msg("failed to unmarshal NATS message")
		return
	}

	// Skip our own messages, local delivery already happened.
	if msg.NodeID == nb.nodeID {
		return
	}

	nb.mu.RLock()
	subs := append([]events.Subscriber(nil), nb.subs[eventType]...)
	nb.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub <- msg.Payload:
		default:
			nb.logger.Warn().Str("event_type", string(eventType)).Msg("subscriber channel full, dropping event")
		}
	}
}

// Publish sends an event payload to all subscribers, local and remote.
func (nb *NATSBus) Publish(eventType events.EventType, payload events.Payload) {
	nb.fallback.Publish(eventType, payload)

	nb.mu.RLock()
	disabled := nb.useFallback
	nb.mu.RUnlock()
	if disabled {
		return
	}

	data, err := marshalMessage(eventType, payload, nb.nodeID)
	if err != nil {
		nb.logger.Error().Err(err).Msg("failed to marshal NATS message")
		return
	}

	if err := nb.conn.Publish(natsSubjectPrefix+string(eventType), data); err != nil {
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to NATS")
	}
}

// Unsubscribe removes a subscriber.
func (nb *NATSBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	nb.mu.Lock()
	defer nb.mu.Unlock()

	if nb.useFallback {
		nb.fallback.Unsubscribe(eventType, sub)
		return
	}

	subs := nb.subs[eventType]
	for i, s := range subs {
		if s == sub {
			nb.subs[eventType] = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}

	if len(nb.subs[eventType]) == 0 {
		if natsSub, exists := nb.natsSubs[eventType]; exists {
			if err := natsSub.Unsubscribe(); err != nil {
				nb.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("NATS unsubscribe failed")
			}
			delete(nb.natsSubs, eventType)
		}
	}
}

// Close drains and closes the NATS connection.
func (nb *NATSBus) Close() error {
	nb.mu.Lock()
	defer nb.mu.Unlock()

	if nb.conn == nil {
		return nil
	}
	if err := nb.conn.Drain(); err != nil {
		nb.conn.Close()
		return err
	}
	nb.logger.Info().Msg("NATS event bus closed")
	return nil
}
