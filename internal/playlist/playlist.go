/*
Copyright (C) 2026 AdVero Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playlist reconciles the remote media store into one ordered,
// de-duplicated, non-expired item sequence per screen.
package playlist

import (
	"github.com/adverolabs/advero/internal/models"
)

// Playlist is an immutable snapshot of the eligible items for a
// screen, ordered ascending by creation time. Consumers hold only a
// read reference; every reconciliation pass that observes a change
// publishes a whole new value, never an in-place edit.
type Playlist struct {
	Version uint64
	Items   []models.MediaItem
}

// Empty is the zero playlist, used before the first reconciliation.
var Empty = &Playlist{}

// Len returns the number of items.
func (p *Playlist) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Items)
}

// IDs returns the ordered id sequence.
func (p *Playlist) IDs() []string {
	ids := make([]string, len(p.Items))
	for i, item := range p.Items {
		ids[i] = item.ID
	}
	return ids
}

// Contains reports whether an item id is present.
func (p *Playlist) Contains(id string) bool {
	if p == nil {
		return false
	}
	for _, item := range p.Items {
		if item.ID == id {
			return true
		}
	}
	return false
}

// SameOrder reports whether the playlist's id sequence equals other's.
// Identity of the sequence, not of field values: a status flip from
// paid to playing does not constitute a playlist change.
func (p *Playlist) SameOrder(other *Playlist) bool {
	if p.Len() != other.Len() {
		return false
	}
	for i := range p.Items {
		if p.Items[i].ID != other.Items[i].ID {
			return false
		}
	}
	return true
}
