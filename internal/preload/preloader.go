/*
Copyright (C) 2026 AdVero Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package preload primes media caches ahead of playback. A latency
// optimization only: failures are swallowed and nothing ever waits on
// a warm-up.
package preload

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/adverolabs/advero/internal/models"
	"github.com/adverolabs/advero/internal/telemetry"
)

// Preloader fetches media content into the local HTTP cache ahead of
// its playback slot.
type Preloader struct {
	client *http.Client
	logger zerolog.Logger

	mu     sync.Mutex
	warmed map[string]time.Time
	ttl    time.Duration
}

// New creates a preloader.
func New(logger zerolog.Logger) *Preloader {
	return &Preloader{
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger.With().Str("component", "preload").Logger(),
		warmed: make(map[string]time.Time),
		ttl:    10 * time.Minute,
	}
}

// Warm asynchronously primes the content for an item. Never blocks the
// caller; repeated requests for a recently warmed item are no-ops.
func (p *Preloader) Warm(item models.MediaItem) {
	if item.FileURL == "" {
		return
	}

	p.mu.Lock()
	if at, ok := p.warmed[item.ID]; ok && time.Since(at) < p.ttl {
		p.mu.Unlock()
		return
	}
	p.warmed[item.ID] = time.Now()
	p.prune()
	p.mu.Unlock()

	go p.fetch(item)
}

func (p *Preloader) fetch(item models.MediaItem) {
	telemetry.PreloadsTotal.Inc()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.FileURL, nil)
	if err != nil {
		p.fail(item, err)
		return
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.fail(item, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		p.logger.Debug().
			Str("media_id", item.ID).
			Int("status", resp.StatusCode).
			Msg("preload got error status")
		telemetry.PreloadFailuresTotal.Inc()
		p.forget(item.ID)
		return
	}

	// Drain so the OS/proxy cache keeps the full object.
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		p.fail(item, err)
		return
	}

	p.logger.Debug().
		Str("media_id", item.ID).
		Str("media_type", string(item.MediaType)).
		Msg("preloaded media")
}

func (p *Preloader) fail(item models.MediaItem, err error) {
	telemetry.PreloadFailuresTotal.Inc()
	p.logger.Debug().Err(err).Str("media_id", item.ID).Msg("preload failed")
	p.forget(item.ID)
}

// forget removes the warm marker so the next Warm retries.
func (p *Preloader) forget(id string) {
	p.mu.Lock()
	delete(p.warmed, id)
	p.mu.Unlock()
}

// prune drops stale warm markers. Caller holds p.mu.
func (p *Preloader) prune() {
	cutoff := time.Now().Add(-p.ttl)
	for id, at := range p.warmed {
		if at.Before(cutoff) {
			delete(p.warmed, id)
		}
	}
}
