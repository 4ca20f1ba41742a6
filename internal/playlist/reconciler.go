/*
Copyright (C) 2026 AdVero Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlist

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/adverolabs/advero/internal/eventbus"
	"github.com/adverolabs/advero/internal/events"
	"github.com/adverolabs/advero/internal/models"
	"github.com/adverolabs/advero/internal/telemetry"
)

// Fetcher pulls the full eligible item set for a screen on demand.
type Fetcher interface {
	FetchEligible(ctx context.Context, screenID string) ([]models.MediaItem, error)
}

// Warmer primes media ahead of playback. Fire-and-forget.
type Warmer interface {
	Warm(item models.MediaItem)
}

// Reconciler merges change notifications and periodic polling into one
// authoritative playlist. Change events are wake-up hints only; every
// pass is a full fetch-filter-sort-compare-publish cycle, so the
// engine recovers even when the notifier drops, duplicates, or
// reorders events, or is unreachable entirely.
type Reconciler struct {
	screenID  string
	fetcher   Fetcher
	preloader Warmer
	notifier  eventbus.Bus
	bus       *events.Bus
	interval  time.Duration
	logger    zerolog.Logger

	current atomic.Pointer[Playlist]
	version atomic.Uint64
}

// NewReconciler creates a reconciler for one screen.
//
// notifier carries remote media-change events; bus receives the local
// playlist-updated notifications consumed by the scheduler and API.
func NewReconciler(screenID string, fetcher Fetcher, preloader Warmer, notifier eventbus.Bus, bus *events.Bus, interval time.Duration, logger zerolog.Logger) *Reconciler {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	r := &Reconciler{
		screenID:  screenID,
		fetcher:   fetcher,
		preloader: preloader,
		notifier:  notifier,
		bus:       bus,
		interval:  interval,
		logger:    logger.With().Str("component", "reconciler").Str("screen_id", screenID).Logger(),
	}
	r.current.Store(Empty)
	return r
}

// Current returns the latest published playlist. Never nil. The value
// is immutable; callers may hold it across decision points.
func (r *Reconciler) Current() *Playlist {
	return r.current.Load()
}

// Run executes the reconciliation loop until context cancellation.
// One initial pass runs immediately so a restarting screen does not
// wait a full poll interval before showing content.
func (r *Reconciler) Run(ctx context.Context) error {
	changes := r.notifier.Subscribe(events.EventMediaChanged)
	defer r.notifier.Unsubscribe(events.EventMediaChanged, changes)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Msg("playlist reconciler started")

	r.refresh(ctx, "initial")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("playlist reconciler stopped")
			return ctx.Err()
		case payload, ok := <-changes:
			if !ok {
				return nil
			}
			// Events for other screens are irrelevant; events without
			// a screen id cannot be trusted either way, so re-fetch.
			if id := payload.ScreenID(); id != "" && id != r.screenID {
				continue
			}
			r.refresh(ctx, "event")
		case <-ticker.C:
			r.refresh(ctx, "poll")
		}
	}
}

// refresh performs one reconciliation pass: full fetch, client-side
// expiration filter, id-sequence compare, publish on change.
func (r *Reconciler) refresh(ctx context.Context, trigger string) {
	telemetry.ReconcilePassesTotal.WithLabelValues(r.screenID, trigger).Inc()

	fetched, err := r.fetcher.FetchEligible(ctx, r.screenID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		telemetry.ReconcileErrorsTotal.WithLabelValues(r.screenID).Inc()
		r.logger.Warn().Err(err).Str("trigger", trigger).Msg("snapshot fetch failed")
		r.bus.Publish(events.EventReconcileFailed, events.Payload{
			"screen_id": r.screenID,
			"trigger":   trigger,
			"error":     err.Error(),
		})
		return
	}

	now := time.Now()
	items := make([]models.MediaItem, 0, len(fetched))
	seen := make(map[string]struct{}, len(fetched))
	for _, item := range fetched {
		if item.Expired(now) {
			continue
		}
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		items = append(items, item)
	}
	// Oldest first, regardless of how the fetcher returned them.
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})

	prev := r.current.Load()
	next := &Playlist{Items: items}
	if prev.SameOrder(next) {
		return
	}

	// Preload items entering the playlist before publication, without
	// waiting for the warm-up to finish.
	if r.preloader != nil {
		for _, item := range items {
			if !prev.Contains(item.ID) {
				r.preloader.Warm(item)
			}
		}
	}

	next.Version = r.version.Add(1)
	r.current.Store(next)

	telemetry.PlaylistVersionsTotal.WithLabelValues(r.screenID).Inc()
	telemetry.PlaylistItems.WithLabelValues(r.screenID).Set(float64(len(items)))

	r.logger.Debug().
		Uint64("version", next.Version).
		Int("items", len(items)).
		Str("trigger", trigger).
		Msg("playlist updated")

	r.bus.Publish(events.EventPlaylistUpdated, events.Payload{
		"screen_id": r.screenID,
		"version":   next.Version,
		"items":     len(items),
	})
}
