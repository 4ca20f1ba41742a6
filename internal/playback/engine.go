/*
Copyright (C) 2026 AdVero Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/adverolabs/advero/internal/eventbus"
	"github.com/adverolabs/advero/internal/events"
	"github.com/adverolabs/advero/internal/playlist"
	"github.com/adverolabs/advero/internal/telemetry"
)

// Store is what the engine needs from the persistence layer.
type Store interface {
	playlist.Fetcher
	StatusWriter
}

// EngineConfig bundles the reconciler and scheduler tunables for every
// session the engine hosts.
type EngineConfig struct {
	// PollInterval is the reconciler's backstop poll cadence.
	PollInterval time.Duration

	Session Config
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	c.Session = c.Session.withDefaults()
	return c
}

// Handle controls one running screen session.
type Handle struct {
	ScreenID string

	session *Session
	cancel  context.CancelFunc
	once    sync.Once
	done    chan struct{}
}

// Teardown stops the session and waits for its loops to exit. Safe to
// call more than once.
func (h *Handle) Teardown() {
	h.once.Do(h.cancel)
	<-h.done
}

// Status snapshots the session.
func (h *Handle) Status() Status {
	return h.session.Status()
}

// Playlist returns the session's current playlist snapshot.
func (h *Handle) Playlist() *playlist.Playlist {
	return h.session.Playlist()
}

// Engine hosts one reconciler/scheduler pair per screen.
type Engine struct {
	cfg       EngineConfig
	store     Store
	preloader playlist.Warmer
	notifier  eventbus.Bus
	bus       *events.Bus
	logger    zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Handle
}

// NewEngine builds an engine. The preloader may be nil.
func NewEngine(cfg EngineConfig, store Store, preloader playlist.Warmer, notifier eventbus.Bus, bus *events.Bus, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:       cfg.withDefaults(),
		store:     store,
		preloader: preloader,
		notifier:  notifier,
		bus:       bus,
		logger:    logger.With().Str("component", "engine").Logger(),
		sessions:  make(map[string]*Handle),
	}
}

// Start spins up the reconciler and scheduler for a screen and returns
// the teardown handle. Starting an already-running screen returns the
// existing handle.
func (e *Engine) Start(screenID string) *Handle {
	e.mu.Lock()
	defer e.mu.Unlock()

	if h, ok := e.sessions[screenID]; ok {
		return h
	}

	ctx, cancel := context.WithCancel(context.Background())

	rec := playlist.NewReconciler(screenID, e.store, e.preloader, e.notifier, e.bus, e.cfg.PollInterval, e.logger)
	sess := NewSession(screenID, e.cfg.Session, rec, e.store, e.preloader, e.bus, e.logger)

	h := &Handle{
		ScreenID: screenID,
		session:  sess,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	e.sessions[screenID] = h

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		rec.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		sess.Run(ctx)
	}()

	go func() {
		wg.Wait()

		e.mu.Lock()
		if e.sessions[screenID] == h {
			delete(e.sessions, screenID)
		}
		e.mu.Unlock()
		close(h.done)

		telemetry.SessionsActive.Dec()
		e.bus.Publish(events.EventSessionStopped, events.Payload{"screen_id": screenID})
		e.logger.Info().Str("screen_id", screenID).Msg("session stopped")
	}()

	telemetry.SessionsActive.Inc()
	e.bus.Publish(events.EventSessionStarted, events.Payload{"screen_id": screenID})
	e.logger.Info().Str("screen_id", screenID).Msg("session started")
	return h
}

// Stop tears down the screen's session. Reports whether one was
// running.
func (e *Engine) Stop(screenID string) bool {
	e.mu.Lock()
	h, ok := e.sessions[screenID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	h.Teardown()
	return true
}

// Session returns the handle for a running screen.
func (e *Engine) Session(screenID string) (*Handle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.sessions[screenID]
	return h, ok
}

// Screens lists the screens with running sessions.
func (e *Engine) Screens() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Close tears down every session.
func (e *Engine) Close() {
	e.mu.Lock()
	handles := make([]*Handle, 0, len(e.sessions))
	for _, h := range e.sessions {
		handles = append(handles, h)
	}
	e.mu.Unlock()

	for _, h := range handles {
		h.Teardown()
	}
}
