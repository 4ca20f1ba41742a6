/*
Copyright (C) 2026 AdVero Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"testing"
	"time"
)

func TestMediaItemEligible(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		item MediaItem
		want bool
	}{
		{"paid without expiration", MediaItem{Status: StatusPaid}, true},
		{"playing without expiration", MediaItem{Status: StatusPlaying}, true},
		{"pending is not eligible", MediaItem{Status: StatusPending}, false},
		{"rejected is not eligible", MediaItem{Status: StatusRejected}, false},
		{"played is not eligible", MediaItem{Status: StatusPlayed}, false},
		{"paid but expired", MediaItem{Status: StatusPaid, ExpiresAt: &past}, false},
		{"paid expiring in the future", MediaItem{Status: StatusPaid, ExpiresAt: &future}, true},
		{"expiration equal to now counts as expired", MediaItem{Status: StatusPaid, ExpiresAt: &now}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.item.Eligible(now); got != tt.want {
				t.Errorf("Eligible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMediaItemDurationFloor(t *testing.T) {
	floor := 5 * time.Second

	tests := []struct {
		name    string
		seconds int
		want    time.Duration
	}{
		{"zero clamps to floor", 0, floor},
		{"negative clamps to floor", -7, floor},
		{"below floor clamps", 3, floor},
		{"at floor stays", 5, 5 * time.Second},
		{"above floor preserved", 30, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := MediaItem{DurationSeconds: tt.seconds}
			if got := m.Duration(floor); got != tt.want {
				t.Errorf("Duration(%v) = %v, want %v", floor, got, tt.want)
			}
		})
	}
}

func TestMediaItemExpired(t *testing.T) {
	now := time.Now()
	if (MediaItem{}).Expired(now) {
		t.Error("item without expiration reported expired")
	}
	past := now.Add(-time.Millisecond)
	if !(MediaItem{ExpiresAt: &past}).Expired(now) {
		t.Error("item past expiration not reported expired")
	}
}
