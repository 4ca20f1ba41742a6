/*
Copyright (C) 2026 AdVero Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/adverolabs/advero/internal/events"
)

const natsSubjectPrefix = "advero.events."

// NATSBus implements a NATS-backed change notifier. Core NATS pub/sub
// is at-most-once, which matches the notifier contract: events are
// wake-up hints, the snapshot poll is the correctness backstop.
type NATSBus struct {
	conn     *nats.Conn
	logger   zerolog.Logger
	fallback *events.Bus
	nodeID   string

	mu            sync.Mutex
	subscriptions map[events.EventType]*nats.Subscription
}

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NewNATSBus creates a NATS-backed change notifier. Falls back to the
// in-memory bus if the initial connection fails.
func NewNATSBus(cfg NATSConfig, nodeID string, logger zerolog.Logger) (*NATSBus, error) {
	nb := &NATSBus{
		logger:        logger,
		fallback:      events.NewBus(),
		nodeID:        nodeID,
		subscriptions: make(map[events.EventType]*nats.Subscription),
	}

	conn, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected, change notifier degraded to polling")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		logger.Warn().Err(err).Msg("NATS connection failed, change notifier using in-memory fallback")
		return nb, nil
	}

	nb.conn = conn
	logger.Info().Str("url", cfg.URL).Msg("NATS change notifier initialized")
	return nb, nil
}

// Subscribe registers a subscriber for an event type. Remote messages
// on the matching subject are bridged into the fallback bus, so local
// and remote publishes share one delivery path.
func (nb *NATSBus) Subscribe(eventType events.EventType) events.Subscriber {
	sub := nb.fallback.Subscribe(eventType)

	if nb.conn == nil {
		return sub
	}

	nb.mu.Lock()
	defer nb.mu.Unlock()

	if _, exists := nb.subscriptions[eventType]; !exists {
		subject := natsSubjectPrefix + string(eventType)
		natsSub, err := nb.conn.Subscribe(subject, func(msg *nats.Msg) {
			remote, err := unmarshalMessage(msg.Data)
			if err != nil {
				nb.logger.Error().Err(err).Str("subject", subject).Msg("failed to unmarshal notifier message")
				return
			}
			if remote.NodeID == nb.nodeID {
				return
			}
			nb.fallback.Publish(eventType, remote.Payload)
		})
		if err != nil {
			nb.logger.Error().Err(err).Str("subject", subject).Msg("NATS subscribe failed")
			return sub
		}
		nb.subscriptions[eventType] = natsSub
	}

	return sub
}

// Publish sends an event payload to all subscribers (local and remote).
func (nb *NATSBus) Publish(eventType events.EventType, payload events.Payload) {
	nb.fallback.Publish(eventType, payload)

	if nb.conn == nil {
		return
	}

	data, err := marshalMessage(eventType, payload, nb.nodeID)
	if err != nil {
		nb.logger.Error().Err(err).Msg("failed to marshal notifier message")
		return
	}

	if err := nb.conn.Publish(natsSubjectPrefix+string(eventType), data); err != nil {
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to NATS")
	}
}

// Unsubscribe removes a subscriber.
func (nb *NATSBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	nb.fallback.Unsubscribe(eventType, sub)
}

// Close drains the NATS connection.
func (nb *NATSBus) Close() error {
	nb.mu.Lock()
	for _, sub := range nb.subscriptions {
		_ = sub.Unsubscribe()
	}
	nb.subscriptions = make(map[events.EventType]*nats.Subscription)
	nb.mu.Unlock()

	if nb.conn == nil {
		return nil
	}
	if err := nb.conn.Drain(); err != nil {
		return fmt.Errorf("drain nats connection: %w", err)
	}
	return nil
}
