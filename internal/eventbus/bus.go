/*
Copyright (C) 2026 AdVero Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus provides distributed change-notifier transports.
// All backends bridge remote messages into the in-process events.Bus.
// Delivery is best-effort: drops, duplicates, and reordering are
// tolerated downstream by snapshot reconciliation.
package eventbus

import "github.com/adverolabs/advero/internal/events"

// Bus is the transport-agnostic notifier surface.
type Bus interface {
	Subscribe(eventType events.EventType) events.Subscriber
	Publish(eventType events.EventType, payload events.Payload)
	Unsubscribe(eventType events.EventType, sub events.Subscriber)
	Close() error
}

// MemoryBus wraps the in-process bus behind the Bus interface for
// single-node deployments and tests.
type MemoryBus struct {
	*events.Bus
}

// NewMemoryBus creates an in-process notifier.
func NewMemoryBus(bus *events.Bus) *MemoryBus {
	return &MemoryBus{Bus: bus}
}

// Close is a no-op for the in-process bus.
func (m *MemoryBus) Close() error { return nil }
