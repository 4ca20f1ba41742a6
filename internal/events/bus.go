/*
Copyright (C) 2026 AdVero Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	// EventMediaChanged fires when a media record for a screen is
	// created, updated, or deleted. Best-effort: consumers must treat
	// it as a wake-up hint and re-fetch, never as the data itself.
	EventMediaChanged EventType = "media.changed"

	// EventPlaylistUpdated fires when a reconciliation pass publishes
	// a new playlist version for a screen.
	EventPlaylistUpdated EventType = "playlist.updated"

	// EventReconcileFailed fires when a snapshot fetch fails. The last
	// good playlist stays in effect.
	EventReconcileFailed EventType = "playlist.reconcile_failed"

	// Playback lifecycle events emitted by the scheduler.
	EventNowPlaying       EventType = "playback.now_playing"
	EventPlaybackProgress EventType = "playback.progress"
	EventPlaybackIdle     EventType = "playback.idle"

	// Session lifecycle events.
	EventSessionStarted EventType = "session.started"
	EventSessionStopped EventType = "session.stopped"
	EventSessionHealth  EventType = "session.health"
)

// Payload generic event payload.
type Payload map[string]any

// ScreenID extracts the screen identifier from a payload, if present.
func (p Payload) ScreenID() string {
	id, _ := p["screen_id"].(string)
	return id
}

// Subscriber receives event payloads.
type Subscriber chan Payload

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

// Publish sends payload to subscribers. Delivery is non-blocking; a
// slow subscriber drops events rather than stalling the publisher.
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
