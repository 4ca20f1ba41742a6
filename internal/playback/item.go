/*
Copyright (C) 2026 AdVero Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"time"

	"github.com/adverolabs/advero/internal/models"
)

// Kind discriminates what is occupying the screen.
type Kind string

const (
	// KindAd is a real MediaItem from the playlist.
	KindAd Kind = "ad"
	// KindPromo is the platform's own interstitial. Synthetic: it has
	// no media record and is never persisted.
	KindPromo Kind = "promo"
)

// PromoID is the stable identifier reported for promo interstitials.
const PromoID = "advero-promo"

// Item is the tagged variant the scheduler sequences: either a real ad
// or the promo interstitial. Keeping the promo a variant rather than a
// MediaItem with sentinel fields forces every consumer to handle both
// cases.
type Item struct {
	Kind  Kind
	Media models.MediaItem // valid only when Kind == KindAd
}

// AdItem wraps a media record.
func AdItem(m models.MediaItem) Item {
	return Item{Kind: KindAd, Media: m}
}

// PromoItem returns the promo interstitial.
func PromoItem() Item {
	return Item{Kind: KindPromo}
}

// ID returns the item identity used in events and membership checks.
func (i Item) ID() string {
	if i.Kind == KindPromo {
		return PromoID
	}
	return i.Media.ID
}

// Duration returns how long the item holds the screen. Ads clamp to
// the floor; the promo has its own fixed duration.
func (i Item) Duration(floor, promo time.Duration) time.Duration {
	if i.Kind == KindPromo {
		return promo
	}
	return i.Media.Duration(floor)
}
