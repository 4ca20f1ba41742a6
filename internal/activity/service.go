/*
Copyright (C) 2026 AdVero Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package activity turns engine events into the append-only activity
// log that venue owners see in their dashboard.
package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/adverolabs/advero/internal/events"
	"github.com/adverolabs/advero/internal/models"
)

// Recorder persists activity rows.
type Recorder interface {
	AppendActivity(ctx context.Context, entry models.ActivityLog) error
}

// Service subscribes to engine events and records the ones with
// operational value. Progress ticks are deliberately not recorded;
// they would flood the log at twenty rows a second.
type Service struct {
	recorder Recorder
	bus      *events.Bus
	logger   zerolog.Logger
}

// New creates the activity service.
func New(recorder Recorder, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		recorder: recorder,
		bus:      bus,
		logger:   logger.With().Str("component", "activity").Logger(),
	}
}

// Run consumes events until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	nowPlaying := s.bus.Subscribe(events.EventNowPlaying)
	idle := s.bus.Subscribe(events.EventPlaybackIdle)
	started := s.bus.Subscribe(events.EventSessionStarted)
	stopped := s.bus.Subscribe(events.EventSessionStopped)
	failed := s.bus.Subscribe(events.EventReconcileFailed)

	defer func() {
		s.bus.Unsubscribe(events.EventNowPlaying, nowPlaying)
		s.bus.Unsubscribe(events.EventPlaybackIdle, idle)
		s.bus.Unsubscribe(events.EventSessionStarted, started)
		s.bus.Unsubscribe(events.EventSessionStopped, stopped)
		s.bus.Unsubscribe(events.EventReconcileFailed, failed)
	}()

	s.logger.Info().Msg("activity recorder started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-nowPlaying:
			if !ok {
				return nil
			}
			s.recordNowPlaying(ctx, p)
		case p, ok := <-idle:
			if !ok {
				return nil
			}
			s.record(ctx, models.ActivityInfo, "playback.idle", "screen went idle", p)
		case p, ok := <-started:
			if !ok {
				return nil
			}
			s.record(ctx, models.ActivitySystem, "session.started", "playback session started", p)
		case p, ok := <-stopped:
			if !ok {
				return nil
			}
			s.record(ctx, models.ActivitySystem, "session.stopped", "playback session stopped", p)
		case p, ok := <-failed:
			if !ok {
				return nil
			}
			s.record(ctx, models.ActivityWarning, "playlist.reconcile_failed", "playlist snapshot fetch failed", p)
		}
	}
}

func (s *Service) recordNowPlaying(ctx context.Context, p events.Payload) {
	kind, _ := p["kind"].(string)
	if kind == "promo" {
		// Interstitials are platform housekeeping, not owner activity.
		return
	}
	mediaID, _ := p["media_id"].(string)
	s.record(ctx, models.ActivityInfo, "playback.now_playing",
		fmt.Sprintf("media %s on screen", mediaID), p)
}

func (s *Service) record(ctx context.Context, typ models.ActivityType, event, message string, p events.Payload) {
	entry := models.ActivityLog{
		ID:        uuid.NewString(),
		Type:      typ,
		Event:     event,
		Message:   message,
		Metadata:  map[string]any(p),
		ScreenID:  p.ScreenID(),
		CreatedAt: time.Now(),
	}
	if err := s.recorder.AppendActivity(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("event", event).Msg("activity write failed")
	}
}
