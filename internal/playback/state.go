/*
Copyright (C) 2026 AdVero Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import "time"

// State is the playback state of a screen session.
//
// Transitions:
//
//	Idle    -> Playing  (an eligible item is dequeued)
//	Idle    -> Promo    (promo cadence is due before the next ad)
//	Playing -> Playing  (next ad)
//	Playing -> Promo    (cadence due)
//	Promo   -> Playing
//	any     -> Idle     (playlist empty, or current item removed)
//	any     -> Stopped  (session teardown; terminal)
type State string

const (
	StateIdle    State = "idle"
	StatePromo   State = "promo"
	StatePlaying State = "playing"
	StateStopped State = "stopped"
)

func (s State) String() string { return string(s) }

// Status is a point-in-time snapshot of a session, safe to hand to API
// handlers. Current is nil when idle or stopped.
type Status struct {
	ScreenID        string    `json:"screen_id"`
	State           State     `json:"state"`
	Current         *Item     `json:"current,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	Progress        float64   `json:"progress"`
	Cursor          int       `json:"cursor"`
	PlayedCount     uint64    `json:"played_count"`
	PlaylistVersion uint64    `json:"playlist_version"`
	PlaylistLen     int       `json:"playlist_len"`
}
