/*
Copyright (C) 2026 AdVero Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playback hosts the per-screen playback scheduler: a state
// machine that sequences ads and promo interstitials off the current
// playlist snapshot, with all transitions driven by wall-clock deltas
// rather than accumulated timer ticks.
package playback

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/adverolabs/advero/internal/events"
	"github.com/adverolabs/advero/internal/models"
	"github.com/adverolabs/advero/internal/playlist"
	"github.com/adverolabs/advero/internal/telemetry"
)

// Config carries the scheduler tunables.
type Config struct {
	// PromoEvery inserts a promo interstitial after every Nth
	// completed real item.
	PromoEvery int

	// PromoDuration is how long the interstitial holds the screen.
	PromoDuration time.Duration

	// MinItemDuration is the floor applied to ad durations.
	MinItemDuration time.Duration

	// ProgressTick is the cadence of progress checks during playback.
	// Removal of the on-screen item is detected at this granularity.
	ProgressTick time.Duration

	// HealthInterval is the cadence of session health snapshots.
	// Zero disables them.
	HealthInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.PromoEvery <= 0 {
		c.PromoEvery = 3
	}
	if c.PromoDuration <= 0 {
		c.PromoDuration = 10 * time.Second
	}
	if c.MinItemDuration <= 0 {
		c.MinItemDuration = 5 * time.Second
	}
	if c.ProgressTick <= 0 {
		c.ProgressTick = 50 * time.Millisecond
	}
	return c
}

// Source yields the current playlist snapshot. Snapshots are immutable;
// the scheduler re-reads the source at every decision point instead of
// holding on to one.
type Source interface {
	Current() *playlist.Playlist
}

// StatusWriter records that an item went on screen. The write is
// best-effort: the scheduler fires it once and never blocks on it.
type StatusWriter interface {
	MarkPlaying(ctx context.Context, mediaID string) error
}

// Session is the playback state machine for one screen.
type Session struct {
	screenID  string
	cfg       Config
	source    Source
	status    StatusWriter
	preloader playlist.Warmer
	bus       *events.Bus
	logger    zerolog.Logger

	ctx context.Context

	// processing guards the drive loop: at most one per session.
	// pending latches a kick that arrived while the loop was running,
	// so an update landing just as the loop exits is not lost.
	processing atomic.Bool
	pending    atomic.Bool

	mu          sync.Mutex
	state       State
	current     *Item
	startedAt   time.Time
	progress    float64
	cursor      int
	playedCount uint64
	lastPromoAt uint64
}

// NewSession builds a session. The preloader may be nil.
func NewSession(screenID string, cfg Config, source Source, status StatusWriter, preloader playlist.Warmer, bus *events.Bus, logger zerolog.Logger) *Session {
	return &Session{
		screenID:  screenID,
		cfg:       cfg.withDefaults(),
		source:    source,
		status:    status,
		preloader: preloader,
		bus:       bus,
		logger:    logger.With().Str("component", "playback").Str("screen_id", screenID).Logger(),
		state:     StateIdle,
	}
}

// Run drives the session until ctx is cancelled. Playlist updates for
// this screen kick the drive loop; a kick while the loop is already
// running is a no-op because the loop re-reads the source itself.
func (s *Session) Run(ctx context.Context) error {
	s.ctx = ctx

	updates := s.bus.Subscribe(events.EventPlaylistUpdated)
	defer s.bus.Unsubscribe(events.EventPlaylistUpdated, updates)

	var health *time.Ticker
	var healthC <-chan time.Time
	if s.cfg.HealthInterval > 0 {
		health = time.NewTicker(s.cfg.HealthInterval)
		healthC = health.C
		defer health.Stop()
	}

	s.Kick()

	for {
		select {
		case <-ctx.Done():
			s.setStopped()
			return ctx.Err()
		case payload, ok := <-updates:
			if !ok {
				return nil
			}
			if payload.ScreenID() != s.screenID {
				continue
			}
			s.Kick()
		case <-healthC:
			s.publishHealth()
		}
	}
}

// Kick starts the drive loop if it is not already running.
func (s *Session) Kick() {
	if !s.processing.CompareAndSwap(false, true) {
		s.pending.Store(true)
		return
	}
	go s.drive()
}

// drive sequences items until the playlist runs dry or the session is
// torn down. It runs on its own goroutine, at most one per session.
func (s *Session) drive() {
	defer func() {
		s.processing.Store(false)
		if s.ctx.Err() != nil {
			s.setStopped()
			return
		}
		s.toIdle()
		if s.pending.CompareAndSwap(true, false) {
			s.Kick()
		}
	}()

	// Counts consecutive expired skips so a playlist of nothing but
	// stale items cannot spin the loop. The reconciler retires them
	// on its next pass.
	expiredRun := 0

	for {
		if s.ctx.Err() != nil {
			return
		}

		pl := s.source.Current()
		n := pl.Len()
		if n == 0 {
			return
		}

		if s.promoDue() {
			if !s.playPromo() {
				return
			}
			continue
		}

		s.mu.Lock()
		if s.cursor >= n {
			s.cursor = 0
		}
		idx := s.cursor
		s.mu.Unlock()

		media := pl.Items[idx]
		if media.Expired(time.Now()) {
			telemetry.ExpiredSkipsTotal.WithLabelValues(s.screenID).Inc()
			s.logger.Debug().Str("media_id", media.ID).Msg("skipping expired item at dequeue")
			s.advance(n)
			expiredRun++
			if expiredRun >= n {
				return
			}
			continue
		}
		expiredRun = 0

		if s.preloader != nil && n > 1 {
			s.preloader.Warm(pl.Items[(idx+1)%n])
		}

		item := AdItem(media)
		s.startItem(item, idx, pl)
		// The write marks only the first transition into playing;
		// rotations over an already-playing item issue no write.
		if media.Status != models.StatusPlaying {
			s.markPlaying(media.ID)
		}

		completed := s.wait(item)
		if !completed {
			if s.ctx.Err() != nil {
				return
			}
			// The on-screen item vanished from the playlist. Drop to
			// idle, then let the loop resume with whatever remains.
			s.toIdle()
			continue
		}
		s.completeItem(item)
		s.advance(n)
	}
}

// promoDue reports whether the interstitial should run before the next
// ad. The count only ever advances on completed real items, so the
// promo fires exactly once per multiple-of-PromoEvery boundary.
func (s *Session) promoDue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playedCount > 0 &&
		s.playedCount%uint64(s.cfg.PromoEvery) == 0 &&
		s.playedCount != s.lastPromoAt
}

// playPromo runs the interstitial. Returns false if the session was
// torn down mid-promo.
func (s *Session) playPromo() bool {
	item := PromoItem()
	s.startItem(item, -1, s.source.Current())

	if !s.wait(item) {
		return s.ctx.Err() == nil
	}

	s.mu.Lock()
	s.lastPromoAt = s.playedCount
	s.mu.Unlock()
	telemetry.ItemsPlayedTotal.WithLabelValues(s.screenID, string(KindPromo)).Inc()
	return true
}

// startItem records the new on-screen item and announces it.
func (s *Session) startItem(item Item, idx int, pl *playlist.Playlist) {
	duration := item.Duration(s.cfg.MinItemDuration, s.cfg.PromoDuration)
	state := StatePlaying
	if item.Kind == KindPromo {
		state = StatePromo
	}

	s.mu.Lock()
	s.state = state
	s.current = &item
	s.startedAt = time.Now()
	s.progress = 0
	s.mu.Unlock()

	telemetry.PlaybackTransitionsTotal.WithLabelValues(s.screenID, state.String()).Inc()

	payload := events.Payload{
		"screen_id":        s.screenID,
		"kind":             string(item.Kind),
		"media_id":         item.ID(),
		"duration_ms":      duration.Milliseconds(),
		"playlist_version": pl.Version,
		"playlist_len":     pl.Len(),
		"position":         idx,
	}
	if item.Kind == KindAd {
		payload["file_url"] = item.Media.FileURL
		payload["media_type"] = string(item.Media.MediaType)
	}
	s.bus.Publish(events.EventNowPlaying, payload)

	s.logger.Info().
		Str("kind", string(item.Kind)).
		Str("media_id", item.ID()).
		Dur("duration", duration).
		Msg("item on screen")
}

// wait holds the screen for the item's duration, reporting progress on
// every tick. Returns false if the item was preempted: session torn
// down, or (for ads) the item removed from the playlist.
func (s *Session) wait(item Item) bool {
	duration := item.Duration(s.cfg.MinItemDuration, s.cfg.PromoDuration)
	start := time.Now()

	ticker := time.NewTicker(s.cfg.ProgressTick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return false
		case <-ticker.C:
		}

		// Completion is judged from the elapsed wall clock, not from
		// counted ticks, so a delayed tick cannot stretch the item.
		elapsed := time.Since(start)
		if elapsed >= duration {
			s.setProgress(1)
			return true
		}

		if item.Kind == KindAd {
			pl := s.source.Current()
			if !pl.Contains(item.ID()) {
				s.logger.Info().Str("media_id", item.ID()).Msg("on-screen item removed from playlist")
				return false
			}
		}

		progress := float64(elapsed) / float64(duration)
		s.setProgress(progress)
		s.bus.Publish(events.EventPlaybackProgress, events.Payload{
			"screen_id": s.screenID,
			"media_id":  item.ID(),
			"kind":      string(item.Kind),
			"progress":  progress,
		})
	}
}

// completeItem credits a finished ad.
func (s *Session) completeItem(item Item) {
	s.mu.Lock()
	s.playedCount++
	s.mu.Unlock()
	telemetry.ItemsPlayedTotal.WithLabelValues(s.screenID, string(item.Kind)).Inc()
}

// advance moves the cursor, wrapping at the playlist length.
func (s *Session) advance(n int) {
	s.mu.Lock()
	s.cursor = (s.cursor + 1) % n
	s.mu.Unlock()
}

// markPlaying issues the single best-effort status write. A failure is
// logged and counted, never retried; the next reconciliation pass sees
// the item either way.
func (s *Session) markPlaying(mediaID string) {
	if s.status == nil || s.ctx.Err() != nil {
		return
	}
	go func() {
		if err := s.status.MarkPlaying(s.ctx, mediaID); err != nil {
			telemetry.StatusWriteFailuresTotal.WithLabelValues(s.screenID).Inc()
			s.logger.Warn().Err(err).Str("media_id", mediaID).Msg("mark-as-playing write failed")
		}
	}()
}

func (s *Session) setProgress(p float64) {
	if p > 1 {
		p = 1
	}
	s.mu.Lock()
	s.progress = p
	s.mu.Unlock()
}

// toIdle clears the screen. No-op when already idle or stopped.
func (s *Session) toIdle() {
	s.mu.Lock()
	if s.state == StateIdle || s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	s.state = StateIdle
	s.current = nil
	s.progress = 0
	s.mu.Unlock()

	telemetry.PlaybackTransitionsTotal.WithLabelValues(s.screenID, StateIdle.String()).Inc()
	s.bus.Publish(events.EventPlaybackIdle, events.Payload{"screen_id": s.screenID})
	s.logger.Info().Msg("screen idle")
}

// setStopped is terminal.
func (s *Session) setStopped() {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	s.current = nil
	s.progress = 0
	s.mu.Unlock()

	telemetry.PlaybackTransitionsTotal.WithLabelValues(s.screenID, StateStopped.String()).Inc()
}

// Playlist returns the current playlist snapshot.
func (s *Session) Playlist() *playlist.Playlist {
	return s.source.Current()
}

// Status returns a point-in-time snapshot.
func (s *Session) Status() Status {
	pl := s.source.Current()

	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		ScreenID:        s.screenID,
		State:           s.state,
		StartedAt:       s.startedAt,
		Progress:        s.progress,
		Cursor:          s.cursor,
		PlayedCount:     s.playedCount,
		PlaylistVersion: pl.Version,
		PlaylistLen:     pl.Len(),
	}
	if s.current != nil {
		item := *s.current
		st.Current = &item
	}
	return st
}

func (s *Session) publishHealth() {
	st := s.Status()
	payload := events.Payload{
		"screen_id":        st.ScreenID,
		"state":            st.State.String(),
		"played_count":     st.PlayedCount,
		"playlist_version": st.PlaylistVersion,
		"playlist_len":     st.PlaylistLen,
	}
	if st.Current != nil {
		payload["media_id"] = st.Current.ID()
	}
	s.bus.Publish(events.EventSessionHealth, payload)
}
